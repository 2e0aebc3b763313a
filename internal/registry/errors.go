package registry

import "errors"

var (
	// ErrNotFound means the referenced profile does not exist.
	ErrNotFound = errors.New("profile not found")

	// ErrValidation means a required field is missing or invalid.
	ErrValidation = errors.New("name and contact are required")

	// ErrNoImage means a create request arrived without any face image.
	ErrNoImage = errors.New("at least one face image is required")
)
