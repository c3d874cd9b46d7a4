package main

import (
	"fmt"
	"time"

	"github.com/ekisa-team/leafsight/internal/backend"
	"github.com/ekisa-team/leafsight/internal/backend/command"
	"github.com/ekisa-team/leafsight/internal/backend/onnx"
	"github.com/ekisa-team/leafsight/internal/config"
	"github.com/ekisa-team/leafsight/internal/mapsafe"
)

// newBackends registers the backends the config can use.
func newBackends(cfg *config.Config) (*backend.Registry, error) {
	registry := backend.NewRegistry()

	if err := registry.Register(onnx.NewBackend(cfg.Model.Runtime.LibraryPath)); err != nil {
		return nil, err
	}

	if len(cfg.Model.Runtime.Command) > 0 {
		timeout := mapsafe.Get(cfg.Model.Runtime.Parameters(), "timeout", time.Duration(0))
		b, err := command.NewBackend(cfg.Model.Runtime.Command, timeout)
		if err != nil {
			return nil, fmt.Errorf("failed to create command backend: %w", err)
		}
		if err := registry.Register(b); err != nil {
			return nil, err
		}
	}

	return registry, nil
}
