package onnx

import (
	"reflect"
	"strings"
	"testing"
)

func TestFloat32Tensor(t *testing.T) {
	src := []float32{1, 2, 3, 4}
	tt, err := Float32Tensor(src, []int64{2, 2})
	if err != nil {
		t.Fatalf("Float32Tensor: %v", err)
	}
	src[0] = 9

	if tt.DType() != DTypeFloat32 {
		t.Errorf("dtype = %s", tt.DType())
	}
	if !reflect.DeepEqual(tt.Shape(), []int64{2, 2}) {
		t.Errorf("shape = %v", tt.Shape())
	}

	got, err := tt.Float32s()
	if err != nil {
		t.Fatalf("Float32s: %v", err)
	}
	if !reflect.DeepEqual(got, []float32{1, 2, 3, 4}) {
		t.Errorf("data = %v, tensor must not alias its input", got)
	}

	if _, err := tt.Int64s(); err == nil {
		t.Error("Int64s on a float32 tensor should fail")
	}
}

func TestInt64Tensor(t *testing.T) {
	tt, err := Int64Tensor([]int64{7}, nil)
	if err != nil {
		t.Fatalf("Int64Tensor scalar: %v", err)
	}
	got, err := tt.Int64s()
	if err != nil || !reflect.DeepEqual(got, []int64{7}) {
		t.Fatalf("Int64s = %v, %v", got, err)
	}
	if _, err := tt.Float32s(); err == nil {
		t.Error("Float32s on an int64 tensor should fail")
	}

	_, err = Int64Tensor([]int64{1, 2, 3}, []int64{2, 2})
	if err == nil || !strings.Contains(err.Error(), "expects 4 elements, got 3") {
		t.Fatalf("shape mismatch error = %v", err)
	}
}

func TestNilTensorAccessors(t *testing.T) {
	var tt *Tensor
	if _, err := tt.Float32s(); err == nil {
		t.Error("expected error from nil tensor")
	}
	if _, err := tt.Int64s(); err == nil {
		t.Error("expected error from nil tensor")
	}
}

func TestCanonicalDType(t *testing.T) {
	tests := map[string]TensorDType{
		"float":         DTypeFloat32,
		"tensor(float)": DTypeFloat32,
		" Float32 ":     DTypeFloat32,
		"int64":         DTypeInt64,
		"tensor(int64)": DTypeInt64,
		"long":          DTypeInt64,
	}
	for raw, want := range tests {
		got, err := canonicalDType(raw)
		if err != nil || got != want {
			t.Errorf("canonicalDType(%q) = %q, %v; want %q", raw, got, err, want)
		}
	}

	for _, bad := range []string{"bool", "tensor(float16)", ""} {
		if _, err := canonicalDType(bad); err == nil {
			t.Errorf("canonicalDType(%q) should fail", bad)
		}
	}
}

func TestElementCount(t *testing.T) {
	tests := []struct {
		shape   []int64
		want    int
		wantErr bool
	}{
		{shape: nil, want: 1},
		{shape: []int64{2, 3, 4}, want: 24},
		{shape: []int64{2, 0}, wantErr: true},
		{shape: []int64{-1}, wantErr: true},
		{shape: []int64{1 << 20, 1 << 20}, wantErr: true},
	}

	for _, tc := range tests {
		got, err := elementCount(tc.shape)
		if tc.wantErr {
			if err == nil {
				t.Errorf("elementCount(%v) = %d, want error", tc.shape, got)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Errorf("elementCount(%v) = %d, %v; want %d", tc.shape, got, err, tc.want)
		}
	}
}
