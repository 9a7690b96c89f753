// Package preprocess converts uploaded image bytes into model input tensors.
package preprocess

import (
	"fmt"
	"strings"
)

// Layout is the memory order of the input tensor.
type Layout string

const (
	// LayoutNHWC is batch, height, width, channel (Keras/TensorFlow).
	LayoutNHWC Layout = "NHWC"
	// LayoutNCHW is batch, channel, height, width (PyTorch).
	LayoutNCHW Layout = "NCHW"
)

// Channels is the number of color channels fed to the model.
const Channels = 3

// ParseLayout parses a layout name case-insensitively.
func ParseLayout(s string) (Layout, error) {
	switch Layout(strings.ToUpper(strings.TrimSpace(s))) {
	case LayoutNHWC:
		return LayoutNHWC, nil
	case LayoutNCHW:
		return LayoutNCHW, nil
	default:
		return "", fmt.Errorf("unknown tensor layout %q", s)
	}
}

// Spec describes the input a model expects.
type Spec struct {
	Width     int
	Height    int
	Layout    Layout
	Normalize bool // scale pixel values from [0,255] to [0,1]
}

// DefaultSpec returns the 128x128 NHWC spec with raw [0,255] pixel values.
func DefaultSpec() Spec {
	return Spec{Width: 128, Height: 128, Layout: LayoutNHWC}
}

// Validate reports whether the spec can produce a tensor.
func (s Spec) Validate() error {
	if s.Width <= 0 || s.Height <= 0 {
		return fmt.Errorf("invalid input size %dx%d", s.Width, s.Height)
	}
	if s.Layout != LayoutNHWC && s.Layout != LayoutNCHW {
		return fmt.Errorf("unknown tensor layout %q", s.Layout)
	}
	return nil
}

// Shape returns the batched input shape for the spec.
func (s Spec) Shape() []int64 {
	if s.Layout == LayoutNCHW {
		return []int64{1, Channels, int64(s.Height), int64(s.Width)}
	}
	return []int64{1, int64(s.Height), int64(s.Width), Channels}
}

// Tensor is a dense float32 tensor in row-major order.
type Tensor struct {
	Data  []float32
	Shape []int64
	// Layout records how Data is ordered so remote runtimes can rebuild nested arrays.
	Layout Layout
}

// Len returns the number of elements implied by Shape.
func (t Tensor) Len() int {
	if len(t.Shape) == 0 {
		return 0
	}
	n := int64(1)
	for _, d := range t.Shape {
		n *= d
	}
	return int(n)
}
