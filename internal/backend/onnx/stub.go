//go:build !cgo

package onnx

import (
	"context"

	"github.com/ekisa-team/leafsight/internal/backend"
)

// Backend is a placeholder used in builds without cgo.
type Backend struct{}

// NewBackend creates a backend whose Load always fails.
func NewBackend(string) *Backend {
	return &Backend{}
}

// Provider returns the backend provider.
func (b *Backend) Provider() backend.BackendProvider {
	return backend.BackendProviderONNXRuntime
}

// Load reports that the runtime was not compiled in.
func (b *Backend) Load(context.Context, *backend.LoadRequest) (backend.Session, error) {
	return nil, ErrUnavailable
}

// Close does nothing.
func (b *Backend) Close() error {
	return nil
}
