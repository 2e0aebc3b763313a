// Package registry composes the store, the asset manager, the descriptor
// extractor and the matcher into the domain operations: create, update,
// delete and recognize.
package registry

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kozaktomas/face-registry/internal/assets"
	"github.com/kozaktomas/face-registry/internal/descriptor"
	"github.com/kozaktomas/face-registry/internal/matcher"
	"github.com/kozaktomas/face-registry/internal/store"
)

// ImageUpload is one uploaded face image.
type ImageUpload struct {
	Filename string
	Data     []byte
}

// CreateInput holds the fields for a new profile.
type CreateInput struct {
	Name    string
	Contact string
	Place   string
	Images  []ImageUpload
}

// UpdateInput holds a partial profile update. Empty text fields leave the
// existing value untouched; there is no way to clear a field to empty (see
// the update docs below).
type UpdateInput struct {
	Name        string
	Contact     string
	Place       string
	RemoveFaces []assets.Ref
	NewImages   []ImageUpload
}

// RecognizeResult is the outcome of matching a query image against the
// catalog.
type RecognizeResult struct {
	Matched    bool           `json:"matched"`
	Confidence float64        `json:"confidence,omitempty"`
	Profile    *store.Profile `json:"profile,omitempty"`
}

// Registry serves the profile catalog. All mutations funnel through the
// store's single write lock; asset file writes and removals happen inside
// that critical section so a profile record and its files change as one unit.
type Registry struct {
	store     *store.Store
	assets    *assets.Manager
	extractor descriptor.Extractor
	matcher   matcher.Matcher
	threshold float64
	now       func() time.Time
}

// New creates a registry. threshold is the default recognition threshold used
// when a query does not carry its own. If the matcher maintains derived
// search state, it is seeded from the loaded collection.
func New(st *store.Store, am *assets.Manager, ex descriptor.Extractor, m matcher.Matcher, threshold float64) *Registry {
	r := &Registry{
		store:     st,
		assets:    am,
		extractor: ex,
		matcher:   m,
		threshold: threshold,
		now:       time.Now,
	}
	r.rebuildIndex(r.store.List())
	return r
}

// List returns all profiles in insertion order.
func (r *Registry) List() []store.Profile {
	return r.store.List()
}

// Get returns the profile with the given id.
func (r *Registry) Get(id string) (store.Profile, error) {
	p, ok := r.store.Get(id)
	if !ok {
		return store.Profile{}, ErrNotFound
	}
	return p, nil
}

// Create validates the input, extracts a descriptor per image, stores the
// image files and appends the new profile, all as one mutation.
func (r *Registry) Create(ctx context.Context, in CreateInput) (store.Profile, error) {
	if strings.TrimSpace(in.Name) == "" || strings.TrimSpace(in.Contact) == "" {
		return store.Profile{}, ErrValidation
	}
	if len(in.Images) == 0 {
		return store.Profile{}, ErrNoImage
	}

	// Descriptor extraction is pure, so it runs before the critical section.
	descriptors, err := r.extractAll(ctx, in.Images)
	if err != nil {
		return store.Profile{}, err
	}

	now := r.now()
	profile := store.Profile{
		ID:          uuid.NewString(),
		Name:        in.Name,
		Contact:     in.Contact,
		Place:       in.Place,
		Descriptors: descriptors,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err = r.store.Mutate(func(profiles *[]store.Profile) error {
		refs, err := r.storeAll(in.Images)
		if err != nil {
			return err
		}
		profile.Faces = refs
		*profiles = append(*profiles, profile)
		r.rebuildIndex(*profiles)
		return nil
	})
	if err != nil {
		return store.Profile{}, err
	}

	return profile.Clone(), nil
}

// Update applies a partial update. Text fields are overwritten only when a
// non-empty value is provided; an empty string means "not supplied", so a
// field can never be cleared to empty through this operation. Requested face
// removals are best-effort on the file side and never fail the update.
func (r *Registry) Update(ctx context.Context, id string, in UpdateInput) (store.Profile, error) {
	if _, ok := r.store.Get(id); !ok {
		return store.Profile{}, ErrNotFound
	}

	newDescriptors, err := r.extractAll(ctx, in.NewImages)
	if err != nil {
		return store.Profile{}, err
	}

	var updated store.Profile
	err = r.store.Mutate(func(profiles *[]store.Profile) error {
		p := findProfile(*profiles, id)
		if p == nil {
			return ErrNotFound
		}

		if in.Name != "" {
			p.Name = in.Name
		}
		if in.Contact != "" {
			p.Contact = in.Contact
		}
		if in.Place != "" {
			p.Place = in.Place
		}

		removed := dropFaces(p, in.RemoveFaces)

		newRefs, err := r.storeAll(in.NewImages)
		if err != nil {
			return err
		}
		p.Faces = append(p.Faces, newRefs...)
		p.Descriptors = append(p.Descriptors, newDescriptors...)

		p.UpdatedAt = r.now()

		// File removal happens after the record edit so no reference ever
		// dangles; a failed removal only leaves a stray file, which is logged.
		r.assets.RemoveAll(removed)
		updated = p.Clone()
		r.rebuildIndex(*profiles)
		return nil
	})
	if err != nil {
		return store.Profile{}, err
	}

	return updated, nil
}

// Delete removes the profile and its asset files. File removal is
// best-effort and never fails the delete.
func (r *Registry) Delete(id string) error {
	return r.store.Mutate(func(profiles *[]store.Profile) error {
		for i := range *profiles {
			if (*profiles)[i].ID != id {
				continue
			}
			refs := (*profiles)[i].Faces
			*profiles = append((*profiles)[:i], (*profiles)[i+1:]...)
			r.assets.RemoveAll(refs)
			r.rebuildIndex(*profiles)
			return nil
		}
		return ErrNotFound
	})
}

// Recognize extracts a descriptor from the query image and matches it against
// the current collection snapshot. The query image and its descriptor are
// never persisted. A zero threshold selects the configured default; values
// outside [0, 1] are rejected by the matcher.
func (r *Registry) Recognize(ctx context.Context, imageData []byte, threshold float64) (RecognizeResult, error) {
	if threshold == 0 {
		threshold = r.threshold
	}

	query, err := r.extractor.Extract(ctx, imageData)
	if err != nil {
		return RecognizeResult{}, err
	}

	result, err := r.matcher.Match(query, r.candidates(), threshold)
	if err != nil {
		return RecognizeResult{}, err
	}
	if !result.Matched {
		return RecognizeResult{Matched: false}, nil
	}

	profile, ok := r.store.Get(result.ProfileID)
	if !ok {
		// The collection changed between match and lookup.
		log.Printf("recognize: matched profile %s no longer exists", result.ProfileID)
		return RecognizeResult{Matched: false}, nil
	}

	return RecognizeResult{
		Matched:    true,
		Confidence: result.Confidence,
		Profile:    &profile,
	}, nil
}

// FacePath resolves an asset reference to its on-disk path for read-only
// serving. A ref that no profile owns is reported as not found even when a
// stray file exists.
func (r *Registry) FacePath(ref assets.Ref) (string, error) {
	if !r.refOwned(ref) {
		return "", ErrNotFound
	}
	path, err := r.assets.Path(ref)
	if err != nil {
		return "", ErrNotFound
	}
	return path, nil
}

// extractAll runs the extractor over every image. Fails fast so a bad image
// short-circuits before any asset is written.
func (r *Registry) extractAll(ctx context.Context, images []ImageUpload) ([]descriptor.Descriptor, error) {
	descriptors := make([]descriptor.Descriptor, 0, len(images))
	for _, img := range images {
		d, err := r.extractor.Extract(ctx, img.Data)
		if err != nil {
			return nil, fmt.Errorf("extracting descriptor from %s: %w", img.Filename, err)
		}
		descriptors = append(descriptors, d)
	}
	return descriptors, nil
}

// storeAll writes every image to asset storage. On failure the files already
// written are rolled back so no orphan survives a failed mutation.
func (r *Registry) storeAll(images []ImageUpload) ([]assets.Ref, error) {
	refs := make([]assets.Ref, 0, len(images))
	for _, img := range images {
		ref, err := r.assets.Store(img.Data, img.Filename)
		if err != nil {
			r.assets.RemoveAll(refs)
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

// candidates builds the matcher's view of the current collection.
func (r *Registry) candidates() []matcher.Candidate {
	profiles := r.store.List()
	cands := make([]matcher.Candidate, 0, len(profiles))
	for _, p := range profiles {
		cands = append(cands, matcher.Candidate{
			ProfileID:   p.ID,
			Descriptors: p.Descriptors,
		})
	}
	return cands
}

// rebuildIndex rebuilds the matcher's derived state from the mutated
// collection. Called inside the store's critical section so rebuilds happen in
// the same order as the mutations they reflect; a rebuild outside the lock
// could overwrite a newer one with a stale snapshot. Descriptors are cloned so
// the index never aliases the store's live slices.
func (r *Registry) rebuildIndex(profiles []store.Profile) {
	rb, ok := r.matcher.(matcher.Rebuilder)
	if !ok {
		return
	}
	cands := make([]matcher.Candidate, 0, len(profiles))
	for _, p := range profiles {
		c := p.Clone()
		cands = append(cands, matcher.Candidate{
			ProfileID:   c.ID,
			Descriptors: c.Descriptors,
		})
	}
	rb.Rebuild(cands)
}

// refOwned reports whether any profile references the given asset.
func (r *Registry) refOwned(ref assets.Ref) bool {
	for _, p := range r.store.List() {
		for _, f := range p.Faces {
			if f == ref {
				return true
			}
		}
	}
	return false
}

// findProfile returns a pointer into the slice for in-place mutation.
func findProfile(profiles []store.Profile, id string) *store.Profile {
	for i := range profiles {
		if profiles[i].ID == id {
			return &profiles[i]
		}
	}
	return nil
}

// dropFaces removes the requested refs and their index-aligned descriptors
// from the profile. Unknown refs are skipped. Returns the refs actually
// removed.
func dropFaces(p *store.Profile, toRemove []assets.Ref) []assets.Ref {
	if len(toRemove) == 0 {
		return nil
	}

	requested := make(map[assets.Ref]bool, len(toRemove))
	for _, ref := range toRemove {
		requested[ref] = true
	}

	var removed []assets.Ref
	keptFaces := p.Faces[:0]
	keptDescriptors := p.Descriptors[:0]
	for i, ref := range p.Faces {
		if requested[ref] {
			removed = append(removed, ref)
			continue
		}
		keptFaces = append(keptFaces, ref)
		keptDescriptors = append(keptDescriptors, p.Descriptors[i])
	}
	p.Faces = keptFaces
	p.Descriptors = keptDescriptors
	return removed
}
