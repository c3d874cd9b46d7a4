package model

import (
	"fmt"
	"maps"
	"path/filepath"
	"slices"
	"time"

	"github.com/ekisa-team/leafsight/internal/backend"
	"github.com/ekisa-team/leafsight/internal/config"
	"github.com/ekisa-team/leafsight/internal/tensor"
)

// Spec describes the classifier to provision.
type Spec struct {
	Source     config.ModelSource
	Parameters map[string]any
	ID         string
	Path       string
	Backend    backend.BackendProvider
	Labels     []string
	Input      tensor.Shape
}

// SpecFromConfig builds the spec of the configured model.
func SpecFromConfig(cfg *config.Config) (Spec, error) {
	src, err := cfg.Model.GetSource()
	if err != nil && cfg.Model.Path == "" {
		return Spec{}, fmt.Errorf("model %s: %w", cfg.Model.ID, err)
	}

	return Spec{
		ID:         cfg.Model.ID,
		Path:       cfg.ArtifactPath(),
		Source:     src,
		Backend:    backend.BackendProvider(cfg.Model.Backend),
		Parameters: cfg.Model.Runtime.Parameters(),
		Labels:     slices.Clone(cfg.Model.Labels),
		Input:      tensor.ImageShape(cfg.Model.Input.Height, cfg.Model.Input.Width),
	}, nil
}

func (s Spec) key() string {
	return filepath.Clean(s.Path)
}

// Artifact is the model file a handle was loaded from.
type Artifact struct {
	Path    string
	Source  string
	Size    int64
	Fetched bool
}

// Handle is a loaded, ready-to-use classifier. It is read-only once created.
type Handle struct {
	Session  backend.Session
	LoadedAt time.Time
	ID       string
	Backend  backend.BackendProvider
	Artifact Artifact
	Labels   []string

	input  tensor.Shape
	params map[string]any
}

// InputShape is the tensor shape the classifier accepts.
func (h *Handle) InputShape() tensor.Shape {
	return h.Session.InputShape()
}

// satisfies reports whether the handle was loaded for an equivalent spec.
func (h *Handle) satisfies(s Spec) bool {
	return h.Backend == s.Backend &&
		h.input == s.Input &&
		slices.Equal(h.Labels, s.Labels) &&
		maps.Equal(h.params, s.Parameters)
}
