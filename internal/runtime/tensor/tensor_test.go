package tensor

import (
	"math"
	"slices"
	"testing"
)

func mustNew(t *testing.T, data []float32, shape ...int64) *Tensor {
	t.Helper()

	x, err := New(data, shape)
	if err != nil {
		t.Fatalf("New(%v): %v", shape, err)
	}
	return x
}

func seq(n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(i)
	}
	return out
}

func near(a, b []float32, tol float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if math.Abs(float64(a[i]-b[i])) > tol {
			return false
		}
	}
	return true
}

func TestNewValidatesShape(t *testing.T) {
	tests := []struct {
		name  string
		data  []float32
		shape []int64
		ok    bool
	}{
		{name: "matching", data: seq(6), shape: []int64{2, 3}, ok: true},
		{name: "scalar", data: []float32{7}, shape: nil, ok: true},
		{name: "zero dim", data: nil, shape: []int64{0, 4}, ok: true},
		{name: "length mismatch", data: seq(5), shape: []int64{2, 3}},
		{name: "negative", data: nil, shape: []int64{-1, 2}},
		{name: "overflow", data: nil, shape: []int64{1 << 20, 1 << 20}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.data, tt.shape)
			if (err == nil) != tt.ok {
				t.Fatalf("New error = %v, want ok=%v", err, tt.ok)
			}
		})
	}
}

func TestNewCopiesInput(t *testing.T) {
	data := []float32{1, 2}
	x := mustNew(t, data, 2)
	data[0] = 9

	if x.RawData()[0] != 1 {
		t.Fatal("New must copy its input")
	}

	got := x.Data()
	got[1] = 9
	if x.RawData()[1] != 2 {
		t.Fatal("Data must return a copy")
	}
}

func TestAccessors(t *testing.T) {
	x := mustNew(t, seq(24), 2, 3, 4)

	if x.Rank() != 3 || x.ElemCount() != 24 {
		t.Fatalf("rank=%d elems=%d", x.Rank(), x.ElemCount())
	}

	dims := []struct {
		i    int
		want int64
	}{{0, 2}, {1, 3}, {2, 4}, {-1, 4}, {-3, 2}, {3, 0}, {-4, 0}}
	for _, d := range dims {
		if got := x.Dim(d.i); got != d.want {
			t.Errorf("Dim(%d) = %d, want %d", d.i, got, d.want)
		}
	}

	var nilT *Tensor
	if nilT.Shape() != nil || nilT.Dim(0) != 0 || nilT.Rank() != 0 || nilT.Clone() != nil {
		t.Fatal("nil tensor accessors should return zero values")
	}
}

func TestReshapeAndScale(t *testing.T) {
	x := mustNew(t, seq(6), 2, 3)

	y, err := x.Reshape([]int64{3, 2})
	if err != nil {
		t.Fatalf("Reshape: %v", err)
	}
	if !slices.Equal(y.Shape(), []int64{3, 2}) || !slices.Equal(y.Data(), seq(6)) {
		t.Fatalf("reshaped %v %v", y.Shape(), y.Data())
	}

	y.Scale(2)
	if x.RawData()[5] != 5 || y.RawData()[5] != 10 {
		t.Fatal("Reshape must not share storage")
	}

	if _, err := x.Reshape([]int64{4}); err == nil {
		t.Fatal("expected element count error")
	}
}
