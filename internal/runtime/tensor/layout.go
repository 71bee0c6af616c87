package tensor

import (
	"errors"
	"fmt"
	"slices"
)

// Narrow keeps length entries of dim starting at start.
func (t *Tensor) Narrow(dim int, start, length int64) (*Tensor, error) {
	if t == nil {
		return nil, errors.New("tensor: narrow of nil tensor")
	}
	d, err := axis(dim, len(t.shape))
	if err != nil {
		return nil, fmt.Errorf("tensor: narrow: %w", err)
	}
	if start < 0 || length < 0 || start+length > t.shape[d] {
		return nil, fmt.Errorf("tensor: narrow [%d, %d) out of range for dim %d of %v", start, start+length, d, t.shape)
	}

	rows := make([]int64, length)
	for i := range rows {
		rows[i] = start + int64(i)
	}
	return t.pick(d, rows), nil
}

// Gather selects the listed entries of dim, in order.
func (t *Tensor) Gather(dim int, indices []int64) (*Tensor, error) {
	if t == nil {
		return nil, errors.New("tensor: gather of nil tensor")
	}
	if len(indices) == 0 {
		return nil, errors.New("tensor: gather needs at least one index")
	}
	d, err := axis(dim, len(t.shape))
	if err != nil {
		return nil, fmt.Errorf("tensor: gather: %w", err)
	}
	for i, idx := range indices {
		if idx < 0 || idx >= t.shape[d] {
			return nil, fmt.Errorf("tensor: gather index %d (%d) out of range for dim %d of %v", i, idx, d, t.shape)
		}
	}
	return t.pick(d, indices), nil
}

// pick copies the inner blocks of the chosen rows of dim.
func (t *Tensor) pick(dim int, rows []int64) *Tensor {
	outer, n, inner := split(t.shape, dim)

	out := make([]float32, 0, outer*len(rows)*inner)
	for o := range outer {
		base := o * n * inner
		for _, r := range rows {
			src := base + int(r)*inner
			out = append(out, t.data[src:src+inner]...)
		}
	}

	shape := slices.Clone(t.shape)
	shape[dim] = int64(len(rows))
	return wrap(out, shape)
}

// Transpose swaps two dimensions.
func (t *Tensor) Transpose(dim1, dim2 int) (*Tensor, error) {
	if t == nil {
		return nil, errors.New("tensor: transpose of nil tensor")
	}
	d1, err := axis(dim1, len(t.shape))
	if err != nil {
		return nil, fmt.Errorf("tensor: transpose: %w", err)
	}
	d2, err := axis(dim2, len(t.shape))
	if err != nil {
		return nil, fmt.Errorf("tensor: transpose: %w", err)
	}
	if d1 == d2 {
		return t.Clone(), nil
	}
	if d1 > d2 {
		d1, d2 = d2, d1
	}

	shape := slices.Clone(t.shape)
	shape[d1], shape[d2] = shape[d2], shape[d1]
	if len(t.data) == 0 {
		return wrap(nil, shape), nil
	}

	// View the source as [a, n1, b, n2, c] and write [a, n2, b, n1, c].
	a, n1, rest := split(t.shape, d1)
	n2 := int(t.shape[d2])
	_, _, c := split(t.shape, d2)
	b := rest / (n2 * c)

	out := make([]float32, len(t.data))
	o := 0
	for ia := range a {
		for j := range n2 {
			for ib := range b {
				for i := range n1 {
					src := (((ia*n1+i)*b+ib)*n2 + j) * c
					copy(out[o:o+c], t.data[src:src+c])
					o += c
				}
			}
		}
	}

	return wrap(out, shape), nil
}

// Concat joins tensors along dim. All other dimensions must agree.
func Concat(tensors []*Tensor, dim int) (*Tensor, error) {
	if len(tensors) == 0 || tensors[0] == nil {
		return nil, errors.New("tensor: concat needs a first tensor")
	}
	first := tensors[0]
	d, err := axis(dim, len(first.shape))
	if err != nil {
		return nil, fmt.Errorf("tensor: concat: %w", err)
	}

	shape := slices.Clone(first.shape)
	shape[d] = 0
	for i, t := range tensors {
		if t == nil {
			return nil, fmt.Errorf("tensor: concat tensor %d is nil", i)
		}
		if !sameExcept(t.shape, first.shape, d) {
			return nil, fmt.Errorf("tensor: concat tensor %d shape %v does not fit %v on dim %d", i, t.shape, first.shape, d)
		}
		shape[d] += t.shape[d]
	}

	n, err := numel(shape)
	if err != nil {
		return nil, err
	}
	outer, _, inner := split(shape, d)

	out := make([]float32, 0, n)
	for o := range outer {
		for _, t := range tensors {
			block := int(t.shape[d]) * inner
			out = append(out, t.data[o*block:(o+1)*block]...)
		}
	}

	return wrap(out, shape), nil
}

func sameExcept(a, b []int64, dim int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if i != dim && a[i] != b[i] {
			return false
		}
	}
	return true
}
