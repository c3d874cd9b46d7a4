// Package command runs classifiers that live outside the process, such as
// Keras models behind a small Python script.
//
// The program is called as
//
//	<command...> --model <path> --describe
//
// at load time and must print {"input_shape": [1,H,W,3], "classes": N}, then
//
//	<command...> --model <path> --shape 1,H,W,3
//
// for every prediction, reading the tensor as little-endian float32 values
// from stdin and printing the score array as JSON.
package command

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/ekisa-team/leafsight/internal/backend"
	"github.com/ekisa-team/leafsight/internal/tensor"
)

const defaultTimeout = 30 * time.Second

// Backend implements backend.Backend for external classifier programs.
type Backend struct {
	executor *backend.Executor
}

// NewBackend creates a command backend. command is the program followed by its leading arguments.
func NewBackend(command []string, timeout time.Duration) (*Backend, error) {
	if len(command) == 0 {
		return nil, fmt.Errorf("command backend: no command configured")
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	executor, err := backend.NewExecutor(command[0], command[1:], timeout)
	if err != nil {
		return nil, err
	}

	return &Backend{executor: executor}, nil
}

// NewBackendWithExecutor creates a backend around an existing executor.
func NewBackendWithExecutor(executor *backend.Executor) *Backend {
	return &Backend{executor: executor}
}

// Provider returns the backend provider.
func (b *Backend) Provider() backend.BackendProvider {
	return backend.BackendProviderCommand
}

type description struct {
	InputShape []int `json:"input_shape"`
	Classes    int   `json:"classes"`
}

// Load asks the program to describe the model, which also proves the artifact opens.
func (b *Backend) Load(ctx context.Context, req *backend.LoadRequest) (backend.Session, error) {
	stdout, stderr, err := b.executor.Execute(ctx, []string{"--model", req.ModelPath, "--describe"}, nil)
	if err != nil {
		return nil, fmt.Errorf("describe failed: %w\nstderr: %s", err, stderr)
	}

	var desc description
	if err := json.Unmarshal(stdout, &desc); err != nil {
		return nil, fmt.Errorf("invalid describe output: %w", err)
	}

	shape, err := inputShape(desc.InputShape, req.Input)
	if err != nil {
		return nil, err
	}
	if req.Classes > 0 && desc.Classes != req.Classes {
		return nil, fmt.Errorf("%w: model has %d classes, %d labels configured", backend.ErrUnsupportedModel, desc.Classes, req.Classes)
	}

	slog.Debug("Command classifier described",
		"model", req.ModelPath,
		"input_shape", shape.String(),
		"classes", desc.Classes,
	)

	return &Session{
		executor:  b.executor,
		modelPath: req.ModelPath,
		shape:     shape,
		classes:   desc.Classes,
	}, nil
}

// Close cleans up resources. The command backend holds none.
func (b *Backend) Close() error {
	return nil
}

// Session runs one program invocation per prediction.
type Session struct {
	executor  *backend.Executor
	modelPath string
	shape     tensor.Shape
	classes   int
}

// InputShape returns the described input shape.
func (s *Session) InputShape() tensor.Shape {
	return s.shape
}

// Predict streams the tensor to the program and parses its scores.
func (s *Session) Predict(ctx context.Context, in *tensor.Tensor) ([]float32, error) {
	var stdin bytes.Buffer
	stdin.Grow(len(in.Data) * 4)
	if err := binary.Write(&stdin, binary.LittleEndian, in.Data); err != nil {
		return nil, fmt.Errorf("encode tensor: %w", err)
	}

	shape := fmt.Sprintf("%d,%d,%d,%d", in.Shape[0], in.Shape[1], in.Shape[2], in.Shape[3])
	stdout, stderr, err := s.executor.Execute(ctx, []string{"--model", s.modelPath, "--shape", shape}, &stdin)
	if err != nil {
		return nil, fmt.Errorf("execution failed: %w\nstderr: %s", err, stderr)
	}

	var scores []float32
	if err := json.Unmarshal(bytes.TrimSpace(stdout), &scores); err != nil {
		return nil, fmt.Errorf("invalid prediction output: %w", err)
	}
	if len(scores) != s.classes {
		return nil, fmt.Errorf("expected %d scores, got %d", s.classes, len(scores))
	}

	return scores, nil
}

// Close releases the session.
func (s *Session) Close() error {
	return nil
}

// inputShape accepts [1,H,W,3] or [H,W,3]; non-positive dimensions are taken from declared.
func inputShape(dims []int, declared tensor.Shape) (tensor.Shape, error) {
	if len(dims) == 3 {
		dims = append([]int{1}, dims...)
	}
	if len(dims) != 4 || dims[3] != tensor.Channels || (dims[0] != 1 && dims[0] > 0) {
		return tensor.Shape{}, fmt.Errorf("%w: input shape %v", backend.ErrUnsupportedModel, dims)
	}

	h, w := dims[1], dims[2]
	if h <= 0 {
		h = declared.Height()
	}
	if w <= 0 {
		w = declared.Width()
	}
	if h <= 0 || w <= 0 {
		return tensor.Shape{}, fmt.Errorf("%w: dynamic input size and no declared size", backend.ErrUnsupportedModel)
	}

	return tensor.ImageShape(h, w), nil
}
