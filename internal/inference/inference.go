// Package inference runs a preprocessed tensor through a loaded classifier.
package inference

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ekisa-team/leafsight/internal/model"
	"github.com/ekisa-team/leafsight/internal/tensor"
)

// Predict returns one score per label for a single image. The tensor shape
// is checked before the engine is called. Engine failures are not retried.
func Predict(ctx context.Context, h *model.Handle, t *tensor.Tensor) ([]float32, error) {
	want := h.InputShape()
	if t == nil || t.Shape != want || len(t.Data) != want.Elements() {
		return nil, fmt.Errorf("%w: model expects %s, got %s", ErrShapeMismatch, want, describe(t))
	}

	start := time.Now()
	scores, err := h.Session.Predict(ctx, t)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInference, err)
	}
	if len(scores) != len(h.Labels) {
		return nil, fmt.Errorf("%w: model returned %d scores for %d labels", ErrShapeMismatch, len(scores), len(h.Labels))
	}

	slog.Debug("Inference completed", "model_id", h.ID, "elapsed", time.Since(start).Round(time.Microsecond))
	return scores, nil
}

func describe(t *tensor.Tensor) string {
	if t == nil {
		return "no tensor"
	}
	return t.Shape.String()
}
