package safetensors

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"slices"
	"strings"
	"sync"
)

// Tensor is one decoded checkpoint entry, widened to float32.
type Tensor struct {
	Name  string
	Shape []int64
	Data  []float32
}

// KeyMapper renames checkpoint tensors on load. Returning keep=false drops
// the tensor.
type KeyMapper func(name string) (mapped string, keep bool)

// StripPrefix removes the first matching prefix, as left behind by
// DataParallel ("module.") or wrapper exports ("model.").
func StripPrefix(prefixes ...string) KeyMapper {
	return func(name string) (string, bool) {
		for _, p := range prefixes {
			if rest, ok := strings.CutPrefix(name, p); ok {
				return rest, true
			}
		}
		return name, true
	}
}

// StoreOptions controls tensor renaming. By default dropped and colliding
// names are skipped; Strict turns both into errors.
type StoreOptions struct {
	KeyMapper KeyMapper
	Strict    bool
}

type slot struct {
	source string
	dtype  string
	shape  []int64
	lo, hi int
}

// Store is an opened checkpoint. Tensors are decoded on demand, and every
// read is recorded so callers can list entries nothing consumed.
type Store struct {
	payload  []byte
	slots    map[string]slot
	names    []string
	metadata map[string]string

	mu   sync.Mutex
	read map[string]bool
}

// OpenStore reads a whole .safetensors file into memory.
func OpenStore(path string, opts StoreOptions) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("safetensors: %w", err)
	}

	s, err := OpenStoreFromBytes(data, opts)
	if err != nil {
		return nil, fmt.Errorf("%w (%s)", err, path)
	}
	return s, nil
}

func OpenStoreFromBytes(data []byte, opts StoreOptions) (*Store, error) {
	h, payload, err := splitFile(data)
	if err != nil {
		return nil, err
	}

	s := &Store{
		payload:  payload,
		slots:    make(map[string]slot, len(h.entries)),
		metadata: h.metadata,
		read:     make(map[string]bool),
	}

	// Sorted source order makes collision handling deterministic.
	for _, src := range slices.Sorted(maps.Keys(h.entries)) {
		e := h.entries[src]
		if err := e.check(len(payload)); err != nil {
			return nil, fmt.Errorf("safetensors: tensor %q: %w", src, err)
		}

		name, keep := src, true
		if opts.KeyMapper != nil {
			name, keep = opts.KeyMapper(src)
			name = strings.TrimSpace(name)
		}

		switch {
		case !keep && opts.Strict:
			return nil, fmt.Errorf("safetensors: tensor %q rejected by key mapper", src)
		case !keep:
			continue
		case name == "":
			return nil, fmt.Errorf("safetensors: tensor %q maps to an empty name", src)
		}

		if prev, dup := s.slots[name]; dup {
			if opts.Strict {
				return nil, fmt.Errorf("safetensors: %q and %q both map to %q", prev.source, src, name)
			}
			continue
		}

		s.slots[name] = slot{source: src, dtype: e.DType, shape: e.Shape, lo: e.Offsets[0], hi: e.Offsets[1]}
		s.names = append(s.names, name)
	}

	if len(s.slots) == 0 {
		return nil, errors.New("safetensors: no tensors found")
	}
	slices.Sort(s.names)

	return s, nil
}

// Metadata returns a copy of the __metadata__ string map.
func (s *Store) Metadata() map[string]string {
	return maps.Clone(s.metadata)
}

// Names lists the (mapped) tensor names, sorted.
func (s *Store) Names() []string {
	return slices.Clone(s.names)
}

func (s *Store) Has(name string) bool {
	_, ok := s.slots[name]
	return ok
}

// Shape returns the shape of name without decoding its data.
func (s *Store) Shape(name string) ([]int64, bool) {
	sl, ok := s.slots[name]
	if !ok {
		return nil, false
	}
	return slices.Clone(sl.shape), true
}

// Tensor decodes name into a fresh float32 buffer.
func (s *Store) Tensor(name string) (*Tensor, error) {
	sl, ok := s.slots[name]
	if !ok {
		return nil, fmt.Errorf("safetensors: tensor %q not found (have %s)", name, preview(s.names, 8))
	}

	n, err := numel(sl.shape)
	if err != nil {
		return nil, fmt.Errorf("safetensors: tensor %q: %w", name, err)
	}
	data, err := decodeFloats(s.payload[sl.lo:sl.hi], sl.dtype, n)
	if err != nil {
		return nil, fmt.Errorf("safetensors: tensor %q: %w", name, err)
	}

	s.mu.Lock()
	s.read[name] = true
	s.mu.Unlock()

	return &Tensor{Name: name, Shape: slices.Clone(sl.shape), Data: data}, nil
}

// Unused lists tensors that were never read, sorted.
func (s *Store) Unused() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []string
	for _, name := range s.names {
		if !s.read[name] {
			out = append(out, name)
		}
	}
	return out
}

// Close drops the file contents. The Store must not be used afterwards.
func (s *Store) Close() {
	s.payload = nil
	s.slots = nil
}

func preview(names []string, limit int) string {
	switch {
	case len(names) == 0:
		return "none"
	case len(names) > limit:
		return strings.Join(names[:limit], ", ") + ", ..."
	}
	return strings.Join(names, ", ")
}
