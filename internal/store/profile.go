package store

import (
	"time"

	"github.com/kozaktomas/face-registry/internal/assets"
	"github.com/kozaktomas/face-registry/internal/descriptor"
)

// Profile is a person record. Faces and Descriptors are index-aligned: entry
// i of Descriptors was extracted from the image behind entry i of Faces, and
// the two slices are always the same length.
type Profile struct {
	ID          string                  `json:"id"`
	Name        string                  `json:"name"`
	Contact     string                  `json:"contact"`
	Place       string                  `json:"place,omitempty"`
	Faces       []assets.Ref            `json:"faces"`
	Descriptors []descriptor.Descriptor `json:"descriptors"`
	CreatedAt   time.Time               `json:"created_at"`
	UpdatedAt   time.Time               `json:"updated_at"`
}

// Clone returns a deep copy so callers can never alias the store's state.
func (p Profile) Clone() Profile {
	c := p
	c.Faces = make([]assets.Ref, len(p.Faces))
	copy(c.Faces, p.Faces)
	c.Descriptors = make([]descriptor.Descriptor, len(p.Descriptors))
	for i, d := range p.Descriptors {
		c.Descriptors[i] = make(descriptor.Descriptor, len(d))
		copy(c.Descriptors[i], d)
	}
	return c
}
