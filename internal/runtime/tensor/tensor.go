// Package tensor is the dense float32 array type shared by the synthesis
// graph. Activations keep a leading batch dimension of 1, so most values are
// [1, channels, frames].
package tensor

import (
	"errors"
	"fmt"
	"math"
)

type Tensor struct {
	shape []int64
	data  []float32
}

// New copies data into a tensor of the given shape.
func New(data []float32, shape []int64) (*Tensor, error) {
	n, err := numel(shape)
	if err != nil {
		return nil, err
	}
	if len(data) != n {
		return nil, fmt.Errorf("tensor: %d values for shape %v (%d elements)", len(data), shape, n)
	}

	return wrap(append([]float32(nil), data...), shape), nil
}

func Zeros(shape []int64) (*Tensor, error) {
	n, err := numel(shape)
	if err != nil {
		return nil, err
	}

	return wrap(make([]float32, n), shape), nil
}

// wrap adopts data without copying it. The shape slice is copied.
func wrap(data []float32, shape []int64) *Tensor {
	return &Tensor{shape: append([]int64(nil), shape...), data: data}
}

func (t *Tensor) Shape() []int64 {
	if t == nil {
		return nil
	}
	return append([]int64(nil), t.shape...)
}

// Data returns a copy of the values.
func (t *Tensor) Data() []float32 {
	if t == nil {
		return nil
	}
	return append([]float32(nil), t.data...)
}

// RawData exposes the backing slice. Treat it as read-only unless the tensor
// was created by the caller.
func (t *Tensor) RawData() []float32 {
	if t == nil {
		return nil
	}
	return t.data
}

func (t *Tensor) ElemCount() int {
	if t == nil {
		return 0
	}
	return len(t.data)
}

func (t *Tensor) Rank() int {
	if t == nil {
		return 0
	}
	return len(t.shape)
}

// Dim returns the size of dimension i, counting negative i from the end, or
// 0 when i is out of range.
func (t *Tensor) Dim(i int) int64 {
	if t == nil {
		return 0
	}
	d, err := axis(i, len(t.shape))
	if err != nil {
		return 0
	}
	return t.shape[d]
}

func (t *Tensor) Clone() *Tensor {
	if t == nil {
		return nil
	}
	return wrap(append([]float32(nil), t.data...), t.shape)
}

// Reshape returns a copy with a new shape of the same element count.
func (t *Tensor) Reshape(shape []int64) (*Tensor, error) {
	if t == nil {
		return nil, errors.New("tensor: reshape of nil tensor")
	}
	n, err := numel(shape)
	if err != nil {
		return nil, err
	}
	if n != len(t.data) {
		return nil, fmt.Errorf("tensor: reshape %v to %v changes element count", t.shape, shape)
	}
	return wrap(append([]float32(nil), t.data...), shape), nil
}

// Scale multiplies every value by s in place.
func (t *Tensor) Scale(s float32) {
	if t == nil {
		return
	}
	for i := range t.data {
		t.data[i] *= s
	}
}

func numel(shape []int64) (int, error) {
	n := int64(1)
	for i, d := range shape {
		if d < 0 {
			return 0, fmt.Errorf("tensor: negative dimension %d at axis %d of %v", d, i, shape)
		}
		if d != 0 && n > math.MaxInt32/d {
			return 0, fmt.Errorf("tensor: shape %v too large", shape)
		}
		n *= d
	}
	return int(n), nil
}

// axis resolves a possibly negative dimension index.
func axis(dim, rank int) (int, error) {
	if dim < 0 {
		dim += rank
	}
	if dim < 0 || dim >= rank {
		return 0, fmt.Errorf("dim %d out of range for rank %d", dim, rank)
	}
	return dim, nil
}

// split views shape as [outer, shape[dim], inner].
func split(shape []int64, dim int) (outer, n, inner int) {
	outer, inner = 1, 1
	for i, d := range shape {
		switch {
		case i < dim:
			outer *= int(d)
		case i > dim:
			inner *= int(d)
		}
	}
	return outer, int(shape[dim]), inner
}
