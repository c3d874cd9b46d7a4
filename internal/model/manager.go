package model

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/ekisa-team/leafsight/internal/backend"
	"github.com/ekisa-team/leafsight/internal/config"
	"github.com/ekisa-team/leafsight/internal/config/source"
	"github.com/ekisa-team/leafsight/internal/xfs"
)

// Manager provisions classifiers and memoises the loaded handles.
type Manager struct {
	fetcher  *source.Fetcher
	backends *backend.Registry
	registry *Registry

	mu      sync.RWMutex // guards current and retired
	current *Handle
	retired []*Handle
}

// NewManager creates a Manager that downloads with fetcher and loads with backends.
func NewManager(fetcher *source.Fetcher, backends *backend.Registry) *Manager {
	return &Manager{
		fetcher:  fetcher,
		backends: backends,
		registry: NewRegistry(),
	}
}

// Registry returns the handle registry.
func (m *Manager) Registry() *Registry {
	return m.registry
}

// GetOrCreate returns a ready handle for spec, downloading and loading the
// model the first time. Concurrent first callers wait for the single
// in-flight provisioning. Failures are not cached, so calling again retries.
func (m *Manager) GetOrCreate(ctx context.Context, spec Spec) (*Handle, error) {
	e := m.registry.lookup(spec.key())

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.handle != nil {
		if e.handle.satisfies(spec) {
			return e.handle, nil
		}
		m.retire(e.handle)
		e.handle = nil
	}

	artifact, err := m.provision(ctx, spec)
	if err != nil {
		return nil, err
	}

	h, err := m.LoadFromDisk(ctx, artifact, spec)
	if err != nil {
		return nil, err
	}

	e.handle = h
	return h, nil
}

// provision makes sure the artifact is on disk.
func (m *Manager) provision(ctx context.Context, spec Spec) (Artifact, error) {
	path := spec.key()

	if spec.Source == nil {
		ok, err := xfs.NonEmptyFile(path)
		if err != nil {
			return Artifact{}, fmt.Errorf("%w: %w", ErrNoArtifact, err)
		}
		if !ok {
			return Artifact{}, fmt.Errorf("%w: %s", ErrNoArtifact, path)
		}
		info, err := os.Stat(path)
		if err != nil {
			return Artifact{}, fmt.Errorf("%w: %w", ErrNoArtifact, err)
		}
		return Artifact{Path: path, Source: "local", Size: info.Size()}, nil
	}

	res, err := m.fetcher.FetchIfAbsent(ctx, path, spec.Source)
	if err != nil {
		return Artifact{}, err
	}

	return Artifact{
		Path:    res.Path,
		Source:  spec.Source.String(),
		Size:    res.Size,
		Fetched: res.Fetched,
	}, nil
}

// LoadFromDisk opens an artifact with the backend named by spec.
func (m *Manager) LoadFromDisk(ctx context.Context, artifact Artifact, spec Spec) (*Handle, error) {
	b, err := m.backends.MustGet(spec.Backend)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrModelLoad, err)
	}

	start := time.Now()
	session, err := b.Load(ctx, &backend.LoadRequest{
		Parameters: spec.Parameters,
		ModelPath:  artifact.Path,
		Input:      spec.Input,
		Classes:    len(spec.Labels),
	})
	if err != nil {
		slog.Error("Failed to load model", "model_id", spec.ID, "path", artifact.Path, "backend", spec.Backend, "error", err)
		return nil, fmt.Errorf("%w: %s: %w", ErrModelLoad, artifact.Path, err)
	}

	slog.Info("Model loaded",
		"model_id", spec.ID,
		"backend", spec.Backend,
		"path", artifact.Path,
		"size", humanize.Bytes(uint64(max(artifact.Size, 0))),
		"input_shape", session.InputShape().String(),
		"elapsed", time.Since(start).Round(time.Millisecond),
	)

	return &Handle{
		Session:  session,
		LoadedAt: time.Now(),
		ID:       spec.ID,
		Backend:  spec.Backend,
		Artifact: artifact,
		Labels:   spec.Labels,
		input:    spec.Input,
		params:   maps.Clone(spec.Parameters),
	}, nil
}

// LoadFromConfig provisions the configured model and makes it current.
func (m *Manager) LoadFromConfig(ctx context.Context, cfg *config.Config) (*Handle, error) {
	spec, err := SpecFromConfig(cfg)
	if err != nil {
		return nil, err
	}

	h, err := m.GetOrCreate(ctx, spec)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != nil && m.current != h {
		slog.Info("Switched model", "from", m.current.Artifact.Path, "to", h.Artifact.Path)
	}
	m.current = h
	return h, nil
}

// Current returns the handle made current by LoadFromConfig.
func (m *Manager) Current() (*Handle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.current == nil {
		return nil, ErrNotLoaded
	}
	return m.current, nil
}

// retire keeps a replaced handle alive until Close, since requests may still use it.
func (m *Manager) retire(h *Handle) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.retired = append(m.retired, h)
}

// Close releases every session the manager loaded.
func (m *Manager) Close() error {
	loaded := m.registry.List()

	m.mu.Lock()
	handles := append(m.retired, loaded...)
	m.retired = nil
	m.current = nil
	m.mu.Unlock()

	var errs []error
	for _, h := range handles {
		if err := h.Session.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", h.Artifact.Path, err))
		}
	}
	return errors.Join(errs...)
}
