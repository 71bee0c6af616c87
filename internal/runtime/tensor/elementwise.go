package tensor

import (
	"errors"
	"fmt"
	"slices"
)

// Map returns fn applied to every value of x.
func Map(x *Tensor, fn func(float32) float32) *Tensor {
	if x == nil {
		return nil
	}
	out := make([]float32, len(x.data))
	for i, v := range x.data {
		out[i] = fn(v)
	}
	return wrap(out, x.shape)
}

// Add returns a + b for equal shapes.
func Add(a, b *Tensor) (*Tensor, error) {
	if err := sameShape("add", a, b); err != nil {
		return nil, err
	}
	out := make([]float32, len(a.data))
	for i := range out {
		out[i] = a.data[i] + b.data[i]
	}
	return wrap(out, a.shape), nil
}

// AddInPlace accumulates src into dst.
func AddInPlace(dst, src *Tensor) error {
	if err := sameShape("add in place", dst, src); err != nil {
		return err
	}
	for i, v := range src.data {
		dst.data[i] += v
	}
	return nil
}

// BroadcastAdd adds with NumPy broadcasting: shapes align from the right
// and size-1 dimensions stretch.
func BroadcastAdd(a, b *Tensor) (*Tensor, error) {
	if a == nil || b == nil {
		return nil, errors.New("tensor: broadcast add of nil tensor")
	}

	rank := max(len(a.shape), len(b.shape))
	as, bs := padLeft(a.shape, rank), padLeft(b.shape, rank)

	shape := make([]int64, rank)
	for i := range rank {
		switch {
		case as[i] == bs[i], bs[i] == 1:
			shape[i] = as[i]
		case as[i] == 1:
			shape[i] = bs[i]
		default:
			return nil, fmt.Errorf("tensor: cannot broadcast %v with %v", a.shape, b.shape)
		}
	}

	out, err := Zeros(shape)
	if err != nil {
		return nil, err
	}

	// Walk the output with an odometer, advancing each source only along
	// its non-stretched axes.
	astr, bstr := broadcastStrides(as), broadcastStrides(bs)
	idx := make([]int64, rank)
	var ai, bi int64
	for o := range out.data {
		out.data[o] = a.data[ai] + b.data[bi]

		for d := rank - 1; d >= 0; d-- {
			idx[d]++
			ai += astr[d]
			bi += bstr[d]
			if idx[d] < shape[d] {
				break
			}
			ai -= astr[d] * idx[d]
			bi -= bstr[d] * idx[d]
			idx[d] = 0
		}
	}

	return out, nil
}

// DotProduct sums a[i]*b[i] over the shorter length.
func DotProduct(a, b []float32) float32 {
	n := min(len(a), len(b))
	a, b = a[:n], b[:n]

	var s0, s1, s2, s3 float32
	i := 0
	for ; i+4 <= n; i += 4 {
		s0 += a[i] * b[i]
		s1 += a[i+1] * b[i+1]
		s2 += a[i+2] * b[i+2]
		s3 += a[i+3] * b[i+3]
	}
	for ; i < n; i++ {
		s0 += a[i] * b[i]
	}
	return (s0 + s1) + (s2 + s3)
}

func sameShape(op string, a, b *Tensor) error {
	if a == nil || b == nil {
		return fmt.Errorf("tensor: %s of nil tensor", op)
	}
	if !slices.Equal(a.shape, b.shape) {
		return fmt.Errorf("tensor: %s shape mismatch %v vs %v", op, a.shape, b.shape)
	}
	return nil
}

func padLeft(shape []int64, rank int) []int64 {
	out := make([]int64, rank)
	pad := rank - len(shape)
	for i := range out {
		if i < pad {
			out[i] = 1
		} else {
			out[i] = shape[i-pad]
		}
	}
	return out
}

// broadcastStrides are row-major strides with stretched (size-1) axes
// zeroed.
func broadcastStrides(shape []int64) []int64 {
	str := make([]int64, len(shape))
	step := int64(1)
	for i := len(shape) - 1; i >= 0; i-- {
		if shape[i] != 1 {
			str[i] = step
		}
		step *= shape[i]
	}
	return str
}
