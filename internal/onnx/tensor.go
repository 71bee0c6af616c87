package onnx

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

type TensorDType string

const (
	DTypeFloat32 TensorDType = "float32"
	DTypeInt64   TensorDType = "int64"
)

// Tensor is a host buffer handed to or returned by a graph. Exactly one of
// f32 and i64 is populated, matching dtype.
type Tensor struct {
	dtype TensorDType
	shape []int64
	f32   []float32
	i64   []int64
}

// Float32Tensor copies data into a float32 tensor of the given shape.
func Float32Tensor(data []float32, shape []int64) (*Tensor, error) {
	if err := checkCount(shape, len(data)); err != nil {
		return nil, err
	}
	return &Tensor{dtype: DTypeFloat32, shape: append([]int64(nil), shape...), f32: append([]float32(nil), data...)}, nil
}

// Int64Tensor copies data into an int64 tensor of the given shape.
func Int64Tensor(data []int64, shape []int64) (*Tensor, error) {
	if err := checkCount(shape, len(data)); err != nil {
		return nil, err
	}
	return &Tensor{dtype: DTypeInt64, shape: append([]int64(nil), shape...), i64: append([]int64(nil), data...)}, nil
}

func (t *Tensor) DType() TensorDType { return t.dtype }

func (t *Tensor) Shape() []int64 { return append([]int64(nil), t.shape...) }

// Float32s returns a copy of the elements of a float32 tensor.
func (t *Tensor) Float32s() ([]float32, error) {
	if t == nil {
		return nil, errors.New("onnx: nil tensor")
	}
	if t.dtype != DTypeFloat32 {
		return nil, fmt.Errorf("onnx: want float32 tensor, have %s", t.dtype)
	}
	return append([]float32(nil), t.f32...), nil
}

// Int64s returns a copy of the elements of an int64 tensor.
func (t *Tensor) Int64s() ([]int64, error) {
	if t == nil {
		return nil, errors.New("onnx: nil tensor")
	}
	if t.dtype != DTypeInt64 {
		return nil, fmt.Errorf("onnx: want int64 tensor, have %s", t.dtype)
	}
	return append([]int64(nil), t.i64...), nil
}

// canonicalDType maps the dtype spellings exporters write into sidecars
// ("float", "tensor(float)", "long", ...) onto TensorDType.
func canonicalDType(raw string) (TensorDType, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if inner, ok := strings.CutPrefix(s, "tensor("); ok {
		s = strings.TrimSuffix(inner, ")")
	}

	switch s {
	case "float", "float32":
		return DTypeFloat32, nil
	case "int64", "long":
		return DTypeInt64, nil
	}
	return "", fmt.Errorf("unsupported tensor dtype %q", raw)
}

func checkCount(shape []int64, n int) error {
	want, err := elementCount(shape)
	if err != nil {
		return err
	}
	if want != n {
		return fmt.Errorf("shape %v expects %d elements, got %d", shape, want, n)
	}
	return nil
}

// elementCount is the product of shape; a scalar holds one element.
func elementCount(shape []int64) (int, error) {
	n := int64(1)
	for i, d := range shape {
		if d < 1 {
			return 0, fmt.Errorf("shape[%d]=%d is not positive", i, d)
		}
		if n > math.MaxInt32/d {
			return 0, fmt.Errorf("shape %v is too large", shape)
		}
		n *= d
	}
	return int(n), nil
}
