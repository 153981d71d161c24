package layer

import "errors"

var (
	// ErrConfiguration reports an invalid layer configuration. It is
	// returned from constructors; a failed construction cannot be
	// retried with the same configuration.
	ErrConfiguration = errors.New("layer: invalid configuration")

	// ErrShapeMismatch reports step inputs whose shapes do not agree
	// with the layer configuration or with each other.
	ErrShapeMismatch = errors.New("layer: shape mismatch")
)
