package model

import "errors"

// Error definitions for the model package.
var (
	ErrModelLoad  = errors.New("failed to load model")
	ErrNotLoaded  = errors.New("no model loaded")
	ErrNoArtifact = errors.New("model file is missing and no source is configured")
)
