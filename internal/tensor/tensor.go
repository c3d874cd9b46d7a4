// Package tensor holds the dense float32 image tensor handed to classifiers.
package tensor

import "fmt"

// Channels is the channel count of every image tensor.
const Channels = 3

// Shape is a 4-D NHWC shape: batch, height, width, channels.
type Shape [4]int

// ImageShape returns the single-image shape [1, h, w, 3].
func ImageShape(h, w int) Shape {
	return Shape{1, h, w, Channels}
}

// Elements returns the number of values a tensor of this shape holds.
func (s Shape) Elements() int {
	n := 1
	for _, d := range s {
		n *= d
	}
	return n
}

// Height returns the H dimension.
func (s Shape) Height() int { return s[1] }

// Width returns the W dimension.
func (s Shape) Width() int { return s[2] }

// Int64 returns the shape as int64 dimensions.
func (s Shape) Int64() []int64 {
	return []int64{int64(s[0]), int64(s[1]), int64(s[2]), int64(s[3])}
}

func (s Shape) String() string {
	return fmt.Sprintf("[%d %d %d %d]", s[0], s[1], s[2], s[3])
}

// Tensor is a row-major NHWC float32 tensor.
type Tensor struct {
	Data  []float32
	Shape Shape
}

// New allocates a zeroed tensor of the given shape.
func New(shape Shape) *Tensor {
	return &Tensor{
		Shape: shape,
		Data:  make([]float32, shape.Elements()),
	}
}

// At returns the value at batch 0, row y, column x, channel c.
func (t *Tensor) At(y, x, c int) float32 {
	return t.Data[(y*t.Shape[2]+x)*t.Shape[3]+c]
}
