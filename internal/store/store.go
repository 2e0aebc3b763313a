// Package store holds the profile collection: an in-memory slice guarded by
// a single lock, persisted as one versioned JSON snapshot that is rewritten
// wholesale on every mutation.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/renameio"
)

// snapshotVersion is bumped when the snapshot layout changes.
const snapshotVersion = 1

// ErrStorage marks a failure to read or write the persisted snapshot.
var ErrStorage = errors.New("storage failure")

// snapshot is the persisted document holding the full collection.
type snapshot struct {
	Version  int       `json:"version"`
	Profiles []Profile `json:"profiles"`
}

// Store is the authoritative profile collection. All mutations run through
// Mutate, which serializes them and persists the snapshot before releasing
// the write lock. Reads take the read lock and return deep copies, so they
// observe either the state fully before or fully after any mutation.
type Store struct {
	mu       sync.RWMutex
	path     string
	profiles []Profile
}

// Open loads the snapshot at path, or starts with an empty collection when
// the file does not exist yet.
func Open(path string) (*Store, error) {
	s := &Store{path: path}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: reading snapshot: %v", ErrStorage, err)
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("%w: parsing snapshot %s: %v", ErrStorage, path, err)
	}
	if snap.Version != snapshotVersion {
		return nil, fmt.Errorf("%w: unsupported snapshot version %d", ErrStorage, snap.Version)
	}

	s.profiles = snap.Profiles
	return s, nil
}

// List returns all profiles in insertion order.
func (s *Store) List() []Profile {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Profile, len(s.profiles))
	for i, p := range s.profiles {
		out[i] = p.Clone()
	}
	return out
}

// Get returns the profile with the given id.
func (s *Store) Get(id string) (Profile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := range s.profiles {
		if s.profiles[i].ID == id {
			return s.profiles[i].Clone(), true
		}
	}
	return Profile{}, false
}

// Count returns the number of profiles.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.profiles)
}

// Mutate runs fn against the collection under the write lock and persists the
// result. If fn returns an error, nothing is persisted and the in-memory
// state is restored. If persisting fails the in-memory mutation is kept (the
// documented memory/disk gap until the next successful write) and the error
// is surfaced wrapped in ErrStorage.
func (s *Store) Mutate(fn func(profiles *[]Profile) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Deep copy so a failed mutation cannot leave partial in-place edits.
	before := make([]Profile, len(s.profiles))
	for i, p := range s.profiles {
		before[i] = p.Clone()
	}

	if err := fn(&s.profiles); err != nil {
		s.profiles = before
		return err
	}

	if err := s.persist(); err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return nil
}

// persist rewrites the whole snapshot atomically (write to temp, rename).
// Caller holds the write lock.
func (s *Store) persist() error {
	data, err := json.MarshalIndent(snapshot{Version: snapshotVersion, Profiles: s.profiles}, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o750); err != nil {
		return fmt.Errorf("creating snapshot directory: %w", err)
	}
	if err := renameio.WriteFile(s.path, data, 0o640); err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}
	return nil
}
