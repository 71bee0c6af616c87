package safetensors

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// File layout: an 8-byte little-endian header length, a JSON header
// mapping tensor names to dtype, shape and byte range, then the payload.

const metadataKey = "__metadata__"

// maxHeaderBytes bounds the JSON header so a corrupt length prefix cannot
// trigger a huge allocation.
const maxHeaderBytes = 100 << 20

const (
	dtypeF32  = "F32"
	dtypeF16  = "F16"
	dtypeBF16 = "BF16"
)

type headerEntry struct {
	DType   string  `json:"dtype"`
	Shape   []int64 `json:"shape"`
	Offsets [2]int  `json:"data_offsets"`
}

type header struct {
	entries  map[string]headerEntry
	metadata map[string]string
}

// splitFile separates the header from the payload and decodes the header.
func splitFile(data []byte) (header, []byte, error) {
	if len(data) < 8 {
		return header{}, nil, fmt.Errorf("safetensors: file too short (%d bytes)", len(data))
	}

	n := binary.LittleEndian.Uint64(data)
	if n > maxHeaderBytes || n > uint64(len(data)-8) {
		return header{}, nil, fmt.Errorf("safetensors: header length %d exceeds file size %d", n, len(data))
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data[8:8+n], &raw); err != nil {
		return header{}, nil, fmt.Errorf("safetensors: parse header: %w", err)
	}

	h := header{entries: make(map[string]headerEntry, len(raw))}
	for name, msg := range raw {
		if name == metadataKey {
			if err := json.Unmarshal(msg, &h.metadata); err != nil {
				return header{}, nil, fmt.Errorf("safetensors: decode metadata: %w", err)
			}
			continue
		}

		var e headerEntry
		if err := json.Unmarshal(msg, &e); err != nil {
			return header{}, nil, fmt.Errorf("safetensors: header entry %q: %w", name, err)
		}
		e.DType = strings.ToUpper(e.DType)
		h.entries[name] = e
	}

	return h, data[8+n:], nil
}

// check validates e against a payload of size bytes.
func (e headerEntry) check(size int) error {
	width, err := dtypeWidth(e.DType)
	if err != nil {
		return err
	}

	n, err := numel(e.Shape)
	if err != nil {
		return err
	}

	lo, hi := e.Offsets[0], e.Offsets[1]
	if lo < 0 || hi < lo || hi > size {
		return fmt.Errorf("data range [%d:%d] outside payload of %d bytes", lo, hi, size)
	}
	if hi-lo < n*width {
		return fmt.Errorf("needs %d bytes, range holds %d", n*width, hi-lo)
	}

	return nil
}

func dtypeWidth(dtype string) (int, error) {
	switch dtype {
	case dtypeF32:
		return 4, nil
	case dtypeF16, dtypeBF16:
		return 2, nil
	}
	return 0, fmt.Errorf("unsupported dtype %q", dtype)
}

// numel is the element count of shape. A zero dimension yields an empty
// tensor.
func numel(shape []int64) (int, error) {
	n := int64(1)
	for _, d := range shape {
		switch {
		case d < 0:
			return 0, fmt.Errorf("negative dimension in %v", shape)
		case d == 0:
			return 0, nil
		case n > math.MaxInt32/d:
			return 0, fmt.Errorf("shape %v is too large", shape)
		}
		n *= d
	}
	return int(n), nil
}

// decodeFloats widens n little-endian elements of dtype to float32.
func decodeFloats(raw []byte, dtype string, n int) ([]float32, error) {
	width, err := dtypeWidth(dtype)
	if err != nil {
		return nil, err
	}
	if len(raw) < n*width {
		return nil, fmt.Errorf("need %d bytes for %d %s values, have %d", n*width, n, dtype, len(raw))
	}

	out := make([]float32, n)
	switch dtype {
	case dtypeF32:
		for i := range out {
			out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[4*i:]))
		}
	case dtypeF16:
		for i := range out {
			out[i] = halfToFloat(binary.LittleEndian.Uint16(raw[2*i:]))
		}
	case dtypeBF16:
		for i := range out {
			out[i] = math.Float32frombits(uint32(binary.LittleEndian.Uint16(raw[2*i:])) << 16)
		}
	}
	return out, nil
}

// halfToFloat converts an IEEE 754 binary16 value.
func halfToFloat(h uint16) float32 {
	sign := float32(1)
	if h&0x8000 != 0 {
		sign = -1
	}
	exp := int(h>>10) & 0x1f
	frac := uint32(h & 0x3ff)

	switch exp {
	case 0:
		// Subnormal or signed zero: frac * 2^-24.
		return sign * float32(math.Ldexp(float64(frac), -24))
	case 0x1f:
		if frac != 0 {
			return float32(math.NaN())
		}
		return sign * float32(math.Inf(1))
	}

	bits := uint32(h&0x8000)<<16 | uint32(exp-15+127)<<23 | frac<<13
	return math.Float32frombits(bits)
}
