//go:build cgo

// Package onnx runs ONNX classifiers in-process through ONNX Runtime.
package onnx

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/ekisa-team/leafsight/internal/backend"
	"github.com/ekisa-team/leafsight/internal/mapsafe"
	"github.com/ekisa-team/leafsight/internal/tensor"
)

// Backend implements backend.Backend for ONNX Runtime.
type Backend struct {
	libraryPath string

	once    sync.Once
	initErr error
}

// NewBackend creates an ONNX Runtime backend. An empty libraryPath uses the
// platform default name of the shared library.
func NewBackend(libraryPath string) *Backend {
	return &Backend{libraryPath: libraryPath}
}

// Provider returns the backend provider.
func (b *Backend) Provider() backend.BackendProvider {
	return backend.BackendProviderONNXRuntime
}

func (b *Backend) init() error {
	b.once.Do(func() {
		if ort.IsInitialized() {
			return
		}
		if b.libraryPath != "" {
			ort.SetSharedLibraryPath(b.libraryPath)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			b.initErr = fmt.Errorf("%w: %w", ErrUnavailable, err)
		}
	})
	return b.initErr
}

// Load opens the model and checks that it is a single NHWC image classifier.
func (b *Backend) Load(ctx context.Context, req *backend.LoadRequest) (backend.Session, error) {
	if err := b.init(); err != nil {
		return nil, err
	}

	inputs, outputs, err := ort.GetInputOutputInfo(req.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read model info: %w", err)
	}
	if len(inputs) != 1 || len(outputs) < 1 {
		return nil, fmt.Errorf("%w: %d inputs, %d outputs", backend.ErrUnsupportedModel, len(inputs), len(outputs))
	}

	shape, err := inputShape(inputs[0].Dimensions, req.Input)
	if err != nil {
		return nil, err
	}

	classes := req.Classes
	if dims := outputs[0].Dimensions; len(dims) > 0 && dims[len(dims)-1] > 0 {
		n := int(dims[len(dims)-1])
		if classes > 0 && n != classes {
			return nil, fmt.Errorf("%w: model has %d classes, %d labels configured", backend.ErrUnsupportedModel, n, classes)
		}
		classes = n
	}
	if classes <= 0 {
		return nil, fmt.Errorf("%w: unknown class count", backend.ErrUnsupportedModel)
	}

	options, err := sessionOptions(req.Parameters)
	if err != nil {
		return nil, err
	}
	if options != nil {
		defer options.Destroy()
	}

	session, err := ort.NewDynamicAdvancedSession(req.ModelPath,
		[]string{inputs[0].Name}, []string{outputs[0].Name}, options)
	if err != nil {
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	slog.Debug("ONNX session created",
		"model", req.ModelPath,
		"input", inputs[0].Name,
		"output", outputs[0].Name,
		"input_shape", shape.String(),
		"classes", classes,
	)

	return &Session{session: session, shape: shape, classes: classes}, nil
}

// sessionOptions builds options from load parameters, or nil for the runtime defaults.
func sessionOptions(params map[string]any) (*ort.SessionOptions, error) {
	threads := mapsafe.Get(params, "threads", 0)
	if threads <= 0 {
		return nil, nil
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	if err := options.SetIntraOpNumThreads(threads); err != nil {
		options.Destroy()
		return nil, fmt.Errorf("failed to set intra-op threads: %w", err)
	}
	return options, nil
}

// Close tears down the runtime environment if this backend created it.
func (b *Backend) Close() error {
	if b.initErr != nil || !ort.IsInitialized() {
		return nil
	}
	return ort.DestroyEnvironment()
}

// Session wraps a dynamic ONNX session. Tensors are allocated per call so
// concurrent predictions never share buffers.
type Session struct {
	session *ort.DynamicAdvancedSession
	shape   tensor.Shape
	classes int
}

// InputShape returns the model input shape.
func (s *Session) InputShape() tensor.Shape {
	return s.shape
}

// Predict runs the model on a single image tensor.
func (s *Session) Predict(ctx context.Context, in *tensor.Tensor) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	input, err := ort.NewTensor(ort.NewShape(in.Shape.Int64()...), in.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer input.Destroy()

	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(s.classes)))
	if err != nil {
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}
	defer output.Destroy()

	if err := s.session.Run([]ort.Value{input}, []ort.Value{output}); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	scores := make([]float32, s.classes)
	copy(scores, output.GetData())
	return scores, nil
}

// Close destroys the ONNX session.
func (s *Session) Close() error {
	if s.session == nil {
		return nil
	}
	return s.session.Destroy()
}
