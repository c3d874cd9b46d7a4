package onnx

import (
	"fmt"
	"log/slog"

	"github.com/ekisa-team/leafsight/internal/backend"
	"github.com/ekisa-team/leafsight/internal/tensor"
)

// inputShape validates an ONNX input shape as [N,H,W,3]. Dynamic dimensions
// (-1 or 0) are filled from declared; the batch is always 1.
func inputShape(dims []int64, declared tensor.Shape) (tensor.Shape, error) {
	if len(dims) != 4 || dims[3] != tensor.Channels || dims[0] > 1 {
		return tensor.Shape{}, fmt.Errorf("%w: input shape %v", backend.ErrUnsupportedModel, dims)
	}

	h, w := int(dims[1]), int(dims[2])
	if h <= 0 {
		h = declared.Height()
	}
	if w <= 0 {
		w = declared.Width()
	}
	if h <= 0 || w <= 0 {
		return tensor.Shape{}, fmt.Errorf("%w: dynamic input size and no declared size", backend.ErrUnsupportedModel)
	}
	if declared.Elements() > 0 && (h != declared.Height() || w != declared.Width()) {
		slog.Warn("Model input size differs from configuration, using the model's",
			"model", fmt.Sprintf("%dx%d", h, w),
			"configured", fmt.Sprintf("%dx%d", declared.Height(), declared.Width()),
		)
	}

	return tensor.ImageShape(h, w), nil
}
