package service

import "errors"

// Error definitions for the service package.
var (
	ErrUnavailable    = errors.New("classifier is not ready")
	ErrResultNotFound = errors.New("result not found")
)
