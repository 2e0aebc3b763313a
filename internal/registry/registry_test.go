package registry

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/kozaktomas/face-registry/internal/assets"
	"github.com/kozaktomas/face-registry/internal/descriptor"
	"github.com/kozaktomas/face-registry/internal/matcher"
	"github.com/kozaktomas/face-registry/internal/store"
)

// fakeExtractor derives a deterministic descriptor from the image bytes, so
// identical bytes always map to identical descriptors without any decoding.
type fakeExtractor struct{}

func (fakeExtractor) Extract(_ context.Context, data []byte) (descriptor.Descriptor, error) {
	if len(data) == 0 {
		return nil, descriptor.ErrUnreadableImage
	}
	h := fnv.New32a()
	h.Write(data)
	seed := h.Sum32()

	d := make(descriptor.Descriptor, descriptor.Dim)
	for i := range d {
		seed = seed*1664525 + 1013904223
		d[i] = float32(seed%1000)/1000 + 0.001
	}
	return d, nil
}

func newTestRegistry(t *testing.T) (*Registry, *assets.Manager) {
	t.Helper()
	dir := t.TempDir()

	st, err := store.Open(filepath.Join(dir, "profiles.json"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	am, err := assets.NewManager(filepath.Join(dir, "faces"))
	if err != nil {
		t.Fatalf("failed to create asset manager: %v", err)
	}

	return New(st, am, fakeExtractor{}, matcher.NewLinear(), 0.6), am
}

func img(content string) ImageUpload {
	return ImageUpload{Filename: content + ".jpg", Data: []byte(content)}
}

// checkConsistency verifies the two structural invariants: faces/descriptors
// alignment per profile, and disk/record agreement across the whole catalog.
func checkConsistency(t *testing.T, reg *Registry, am *assets.Manager) {
	t.Helper()

	referenced := make(map[assets.Ref]bool)
	for _, p := range reg.List() {
		if len(p.Faces) != len(p.Descriptors) {
			t.Errorf("profile %s: %d faces but %d descriptors", p.ID, len(p.Faces), len(p.Descriptors))
		}
		for _, ref := range p.Faces {
			if referenced[ref] {
				t.Errorf("asset %q referenced by more than one face entry", ref)
			}
			referenced[ref] = true
		}
	}

	onDisk, err := am.List()
	if err != nil {
		t.Fatalf("failed to list assets: %v", err)
	}
	if len(onDisk) != len(referenced) {
		t.Errorf("disk has %d assets but profiles reference %d", len(onDisk), len(referenced))
	}
	for _, ref := range onDisk {
		if !referenced[ref] {
			t.Errorf("orphan asset file %q", ref)
		}
	}
}

func TestCreate_Validation(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		input    CreateInput
		expected error
	}{
		{"missing name", CreateInput{Contact: "a@x", Images: []ImageUpload{img("a")}}, ErrValidation},
		{"missing contact", CreateInput{Name: "Alice", Images: []ImageUpload{img("a")}}, ErrValidation},
		{"blank name", CreateInput{Name: "   ", Contact: "a@x", Images: []ImageUpload{img("a")}}, ErrValidation},
		{"no images", CreateInput{Name: "Alice", Contact: "a@x"}, ErrNoImage},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := reg.Create(ctx, tc.input); !errors.Is(err, tc.expected) {
				t.Errorf("expected %v, got %v", tc.expected, err)
			}
		})
	}

	if len(reg.List()) != 0 {
		t.Error("failed creates must leave the collection empty")
	}
}

func TestCreate_RoundTrip(t *testing.T) {
	reg, am := newTestRegistry(t)

	created, err := reg.Create(context.Background(), CreateInput{
		Name:    "Alice",
		Contact: "alice@x",
		Place:   "Prague",
		Images:  []ImageUpload{img("face-1"), img("face-2")},
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if created.ID == "" {
		t.Error("expected a generated id")
	}
	if len(created.Faces) != 2 || len(created.Descriptors) != 2 {
		t.Errorf("expected 2 faces and 2 descriptors, got %d/%d", len(created.Faces), len(created.Descriptors))
	}
	if !created.CreatedAt.Equal(created.UpdatedAt) {
		t.Error("expected CreatedAt == UpdatedAt on a fresh profile")
	}

	got, err := reg.Get(created.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Name != "Alice" || got.Contact != "alice@x" || got.Place != "Prague" {
		t.Errorf("round trip mismatch: %+v", got)
	}
	if len(got.Faces) != 2 {
		t.Errorf("expected 2 faces after get, got %d", len(got.Faces))
	}

	checkConsistency(t, reg, am)
}

func TestCreate_UnreadableImageShortCircuits(t *testing.T) {
	reg, am := newTestRegistry(t)

	_, err := reg.Create(context.Background(), CreateInput{
		Name:    "Alice",
		Contact: "alice@x",
		Images:  []ImageUpload{img("good"), {Filename: "bad.jpg", Data: nil}},
	})
	if !errors.Is(err, descriptor.ErrUnreadableImage) {
		t.Fatalf("expected ErrUnreadableImage, got %v", err)
	}

	if len(reg.List()) != 0 {
		t.Error("failed create must not leave a profile behind")
	}
	checkConsistency(t, reg, am)
}

func TestCreate_Concurrent(t *testing.T) {
	reg, am := newTestRegistry(t)

	const n = 10
	var wg sync.WaitGroup
	ids := make([]string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p, err := reg.Create(context.Background(), CreateInput{
				Name:    "Person",
				Contact: "person@x",
				Images:  []ImageUpload{img(string(rune('a' + i)))},
			})
			if err != nil {
				t.Errorf("create %d failed: %v", i, err)
				return
			}
			ids[i] = p.ID
		}(i)
	}
	wg.Wait()

	seen := make(map[string]bool)
	for _, id := range ids {
		if seen[id] {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = true
	}

	if got := len(reg.List()); got != n {
		t.Errorf("expected %d profiles, got %d (lost update)", n, got)
	}
	checkConsistency(t, reg, am)
}

func TestUpdate_OnlyOverwriteProvided(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	created, err := reg.Create(ctx, CreateInput{
		Name: "Alice", Contact: "alice@x", Place: "Prague",
		Images: []ImageUpload{img("a")},
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	updated, err := reg.Update(ctx, created.ID, UpdateInput{Contact: "alice@y"})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}

	if updated.Contact != "alice@y" {
		t.Errorf("expected contact updated, got %q", updated.Contact)
	}
	if updated.Name != "Alice" {
		t.Errorf("empty name must keep the old value, got %q", updated.Name)
	}
	if updated.Place != "Prague" {
		t.Errorf("empty place must keep the old value, got %q", updated.Place)
	}
}

func TestUpdate_ReplaceFaces(t *testing.T) {
	reg, am := newTestRegistry(t)
	ctx := context.Background()

	created, err := reg.Create(ctx, CreateInput{
		Name: "Alice", Contact: "alice@x",
		Images: []ImageUpload{img("original")},
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	time.Sleep(time.Millisecond)

	updated, err := reg.Update(ctx, created.ID, UpdateInput{
		RemoveFaces: created.Faces,
		NewImages:   []ImageUpload{img("new-1"), img("new-2")},
	})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}

	if len(updated.Faces) != 2 || len(updated.Descriptors) != 2 {
		t.Errorf("expected 2 faces and 2 descriptors, got %d/%d", len(updated.Faces), len(updated.Descriptors))
	}
	if !updated.UpdatedAt.After(created.UpdatedAt) {
		t.Error("expected UpdatedAt to advance")
	}
	if !updated.CreatedAt.Equal(created.CreatedAt) {
		t.Error("CreatedAt must never change")
	}
	for _, ref := range updated.Faces {
		if ref == created.Faces[0] {
			t.Error("removed face still referenced")
		}
	}
	if am.Exists(created.Faces[0]) {
		t.Error("removed face file still on disk")
	}
	checkConsistency(t, reg, am)
}

func TestUpdate_UnknownRemoveRefIgnored(t *testing.T) {
	reg, am := newTestRegistry(t)
	ctx := context.Background()

	created, err := reg.Create(ctx, CreateInput{
		Name: "Alice", Contact: "alice@x",
		Images: []ImageUpload{img("keep")},
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	updated, err := reg.Update(ctx, created.ID, UpdateInput{
		RemoveFaces: []assets.Ref{"no-such-asset"},
	})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}

	if len(updated.Faces) != 1 {
		t.Errorf("expected 1 face kept, got %d", len(updated.Faces))
	}
	checkConsistency(t, reg, am)
}

func TestUpdate_NotFound(t *testing.T) {
	reg, am := newTestRegistry(t)

	_, err := reg.Update(context.Background(), "missing", UpdateInput{
		NewImages: []ImageUpload{img("a")},
	})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	// The rejected image must not leak onto disk.
	onDisk, err := am.List()
	if err != nil {
		t.Fatalf("failed to list assets: %v", err)
	}
	if len(onDisk) != 0 {
		t.Errorf("expected no asset files, got %d", len(onDisk))
	}
}

func TestDelete_RemovesRecordAndFiles(t *testing.T) {
	reg, am := newTestRegistry(t)
	ctx := context.Background()

	created, err := reg.Create(ctx, CreateInput{
		Name: "Alice", Contact: "alice@x",
		Images: []ImageUpload{img("a"), img("b")},
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if err := reg.Delete(created.ID); err != nil {
		t.Fatalf("delete failed: %v", err)
	}

	if _, err := reg.Get(created.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	onDisk, err := am.List()
	if err != nil {
		t.Fatalf("failed to list assets: %v", err)
	}
	if len(onDisk) != 0 {
		t.Errorf("expected no asset files after delete, got %d", len(onDisk))
	}
}

func TestDelete_NotFoundLeavesCollection(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	if _, err := reg.Create(ctx, CreateInput{
		Name: "Alice", Contact: "alice@x", Images: []ImageUpload{img("a")},
	}); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if err := reg.Delete("missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if len(reg.List()) != 1 {
		t.Errorf("failed delete must leave the collection unchanged, got %d profiles", len(reg.List()))
	}
}

func TestRecognize_EmptyCollection(t *testing.T) {
	reg, _ := newTestRegistry(t)

	result, err := reg.Recognize(context.Background(), []byte("query"), 0)
	if err != nil {
		t.Fatalf("recognize failed: %v", err)
	}

	if result.Matched {
		t.Error("expected no match against an empty collection")
	}
}

func TestRecognize_FindsOwner(t *testing.T) {
	reg, am := newTestRegistry(t)
	ctx := context.Background()

	created, err := reg.Create(ctx, CreateInput{
		Name: "Alice", Contact: "alice@x",
		Images: []ImageUpload{img("alice-face")},
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if _, err := reg.Create(ctx, CreateInput{
		Name: "Bob", Contact: "bob@x",
		Images: []ImageUpload{img("bob-face")},
	}); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	// The fake extractor maps identical bytes to identical descriptors, so
	// querying with Alice's image bytes is an exact-distance match.
	result, err := reg.Recognize(ctx, []byte("alice-face"), 0)
	if err != nil {
		t.Fatalf("recognize failed: %v", err)
	}

	if !result.Matched {
		t.Fatal("expected a match")
	}
	if result.Profile == nil || result.Profile.ID != created.ID {
		t.Errorf("expected Alice's profile, got %+v", result.Profile)
	}
	if result.Confidence < 0.99 {
		t.Errorf("expected confidence ~1 for identical bytes, got %f", result.Confidence)
	}

	// The query image must not be persisted.
	onDisk, err := am.List()
	if err != nil {
		t.Fatalf("failed to list assets: %v", err)
	}
	if len(onDisk) != 2 {
		t.Errorf("recognize must not store assets: expected 2 files, got %d", len(onDisk))
	}
}

func TestRecognize_InvalidThreshold(t *testing.T) {
	reg, _ := newTestRegistry(t)

	_, err := reg.Recognize(context.Background(), []byte("query"), 1.5)
	if !errors.Is(err, matcher.ErrInvalidThreshold) {
		t.Errorf("expected ErrInvalidThreshold, got %v", err)
	}
}

func TestRecognize_Deterministic(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	if _, err := reg.Create(ctx, CreateInput{
		Name: "Alice", Contact: "alice@x",
		Images: []ImageUpload{img("alice-face")},
	}); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	first, err := reg.Recognize(ctx, []byte("somebody"), 0)
	if err != nil {
		t.Fatalf("recognize failed: %v", err)
	}

	for i := 0; i < 5; i++ {
		result, err := reg.Recognize(ctx, []byte("somebody"), 0)
		if err != nil {
			t.Fatalf("recognize failed: %v", err)
		}
		if result.Matched != first.Matched || result.Confidence != first.Confidence {
			t.Fatalf("run %d differs: %+v vs %+v", i, result, first)
		}
	}
}

func TestFacePath(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	created, err := reg.Create(ctx, CreateInput{
		Name: "Alice", Contact: "alice@x",
		Images: []ImageUpload{img("a")},
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if _, err := reg.FacePath(created.Faces[0]); err != nil {
		t.Errorf("expected owned ref to resolve, got %v", err)
	}

	if _, err := reg.FacePath("unowned-ref"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for unowned ref, got %v", err)
	}
}

func TestCreate_ConcurrentWithIndex(t *testing.T) {
	dir := t.TempDir()
	st, err := store.Open(filepath.Join(dir, "profiles.json"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	am, err := assets.NewManager(filepath.Join(dir, "faces"))
	if err != nil {
		t.Fatalf("failed to create asset manager: %v", err)
	}
	idx := matcher.NewIndex()
	reg := New(st, am, fakeExtractor{}, idx, 0.6)
	ctx := context.Background()

	const n = 8
	images := make([][]byte, n)
	for i := range images {
		images[i] = []byte(fmt.Sprintf("face-%d", i))
	}

	var wg sync.WaitGroup
	ids := make([]string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p, err := reg.Create(ctx, CreateInput{
				Name:    fmt.Sprintf("Person %d", i),
				Contact: fmt.Sprintf("person-%d@x", i),
				Images:  []ImageUpload{{Filename: "face.jpg", Data: images[i]}},
			})
			if err != nil {
				t.Errorf("create %d failed: %v", i, err)
				return
			}
			ids[i] = p.ID
		}(i)
	}
	wg.Wait()

	// Every create rebuilds the index inside the store's critical section, so
	// no rebuild can overwrite a newer one with a stale snapshot.
	if got := idx.Count(); got != n {
		t.Fatalf("index holds %d descriptors after %d concurrent creates", got, n)
	}

	for i, id := range ids {
		result, err := reg.Recognize(ctx, images[i], 0)
		if err != nil {
			t.Fatalf("recognize %d failed: %v", i, err)
		}
		if !result.Matched || result.Profile == nil || result.Profile.ID != id {
			t.Errorf("profile %d missing from index-backed recognition: %+v", i, result)
		}
	}
}

func TestRegistry_WithIndexMatcher(t *testing.T) {
	dir := t.TempDir()
	st, err := store.Open(filepath.Join(dir, "profiles.json"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	am, err := assets.NewManager(filepath.Join(dir, "faces"))
	if err != nil {
		t.Fatalf("failed to create asset manager: %v", err)
	}
	idx := matcher.NewIndex()
	reg := New(st, am, fakeExtractor{}, idx, 0.6)
	ctx := context.Background()

	created, err := reg.Create(ctx, CreateInput{
		Name: "Alice", Contact: "alice@x",
		Images: []ImageUpload{img("alice-face")},
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	result, err := reg.Recognize(ctx, []byte("alice-face"), 0)
	if err != nil {
		t.Fatalf("recognize failed: %v", err)
	}
	if !result.Matched || result.Profile.ID != created.ID {
		t.Errorf("expected index-backed match for Alice, got %+v", result)
	}

	// Deleting the profile rebuilds the index; the match must disappear.
	if err := reg.Delete(created.ID); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	result, err = reg.Recognize(ctx, []byte("alice-face"), 0)
	if err != nil {
		t.Fatalf("recognize failed: %v", err)
	}
	if result.Matched {
		t.Errorf("expected no match after delete, got %+v", result)
	}
}
