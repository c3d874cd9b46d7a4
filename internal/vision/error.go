package vision

import "errors"

// Error definitions for the vision package.
var (
	// ErrDecode reports bytes that are not a supported image.
	ErrDecode = errors.New("unsupported or corrupt image")

	// ErrPreprocess reports image geometry that cannot be turned into a tensor.
	ErrPreprocess = errors.New("cannot preprocess image")
)
