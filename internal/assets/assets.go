// Package assets owns the on-disk face image files. Every stored file is
// referenced by exactly one profile; the registry keeps the reference list
// and this package keeps the bytes.
package assets

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Ref is an opaque reference to a stored face asset. It doubles as the
// retrieval key for read-only serving and as the entry in a profile's face
// list.
type Ref string

// ErrInvalidRef is returned for refs that would escape the storage directory.
var ErrInvalidRef = errors.New("invalid asset reference")

// Manager stores and removes face image files in a single directory.
type Manager struct {
	dir string
}

// NewManager creates a manager rooted at dir, creating the directory if
// needed.
func NewManager(dir string) (*Manager, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating faces directory: %w", err)
	}
	return &Manager{dir: dir}, nil
}

// Store writes the image bytes under a unique name and returns its reference.
// The name combines a random UUID with a sanitized slug of the original
// filename; O_EXCL creation guards against the (unlikely) collision, so two
// concurrent uploads can never overwrite each other.
func (m *Manager) Store(imageData []byte, originalName string) (Ref, error) {
	slug := slugFilename(originalName)

	for attempt := 0; attempt < 3; attempt++ {
		name := uuid.NewString()
		if slug != "" {
			name += "_" + slug
		}

		f, err := os.OpenFile(filepath.Join(m.dir, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("creating asset file: %w", err)
		}

		if _, err := f.Write(imageData); err != nil {
			f.Close()
			_ = os.Remove(f.Name())
			return "", fmt.Errorf("writing asset file: %w", err)
		}
		if err := f.Close(); err != nil {
			_ = os.Remove(f.Name())
			return "", fmt.Errorf("closing asset file: %w", err)
		}

		return Ref(name), nil
	}

	return "", errors.New("could not generate a unique asset name")
}

// Path returns the on-disk path for a ref, rejecting refs that point outside
// the storage directory.
func (m *Manager) Path(ref Ref) (string, error) {
	name := string(ref)
	if name == "" || filepath.Base(name) != name {
		return "", ErrInvalidRef
	}
	return filepath.Join(m.dir, name), nil
}

// Exists reports whether the backing file for a ref is present.
func (m *Manager) Exists(ref Ref) bool {
	path, err := m.Path(ref)
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}

// Remove deletes the backing file for a ref. An already-missing file is not
// an error: the desired end state (no file) is achieved either way, so the
// call succeeds idempotently.
func (m *Manager) Remove(ref Ref) error {
	path, err := m.Path(ref)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing asset %s: %w", ref, err)
	}
	return nil
}

// RemoveAll removes every ref best-effort. Individual failures are logged and
// never abort the containing mutation; a stray file is preferable to a record
// stuck in limbo.
func (m *Manager) RemoveAll(refs []Ref) {
	for _, ref := range refs {
		if err := m.Remove(ref); err != nil {
			log.Printf("asset cleanup: %v", err)
		}
	}
}

// List returns the names of all stored asset files.
func (m *Manager) List() ([]Ref, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return nil, fmt.Errorf("reading faces directory: %w", err)
	}
	refs := make([]Ref, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		refs = append(refs, Ref(e.Name()))
	}
	return refs, nil
}
