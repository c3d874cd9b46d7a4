package inference

import "errors"

// Error definitions for the inference package.
var (
	ErrShapeMismatch = errors.New("tensor shape does not match the model input")
	ErrInference     = errors.New("inference failed")
)
