package onnx

import "errors"

// ErrUnavailable is returned when the ONNX Runtime shared library cannot be used.
var ErrUnavailable = errors.New("onnx runtime unavailable")
