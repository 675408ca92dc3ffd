package analyzer

import (
	"fmt"
	"sync"

	"github.com/alexhholmes/teric/internal/schema"
)

// SizeOf returns the inline size in bytes of a field type. Buffers and
// pointers report the size of their inline slot; struct sizes are computed
// without memoization, use a TypeRegistry when sizing many types.
func SizeOf(t schema.Type) (int, error) {
	return NewTypeRegistry().SizeOf(t)
}

// TypeRegistry memoizes inline struct sizes. It is safe for concurrent use.
type TypeRegistry struct {
	mu    sync.RWMutex
	types map[*schema.Struct]int // struct → inline size in bytes
}

func NewTypeRegistry() *TypeRegistry {
	return &TypeRegistry{
		types: make(map[*schema.Struct]int),
	}
}

// Register records the size of a struct
func (r *TypeRegistry) Register(s *schema.Struct, size int) {
	r.mu.Lock()
	r.types[s] = size
	r.mu.Unlock()
}

// Lookup returns the size of a registered struct
func (r *TypeRegistry) Lookup(s *schema.Struct) (int, bool) {
	r.mu.RLock()
	size, ok := r.types[s]
	r.mu.RUnlock()
	return size, ok
}

// SizeOf calculates the inline size of t, registering every struct it
// visits along the way.
func (r *TypeRegistry) SizeOf(t schema.Type) (int, error) {
	return r.sizeOf(t, nil)
}

func (r *TypeRegistry) sizeOf(t schema.Type, visiting []*schema.Struct) (int, error) {
	switch t := t.(type) {
	case schema.AtomType:
		if !t.Kind.Valid() {
			return 0, fmt.Errorf("invalid atom kind: %s", t.Kind)
		}
		return t.Kind.Size(), nil

	case schema.ArrayType:
		if t.Len <= 0 {
			return 0, fmt.Errorf("array length must be positive: %s", t)
		}
		elemSize, err := r.sizeOf(t.Elem, visiting)
		if err != nil {
			return 0, fmt.Errorf("array element: %w", err)
		}
		return t.Len * elemSize, nil

	case schema.BufferType:
		return t.SlotSize(), nil

	case schema.PointerType:
		return 4, nil

	case *schema.Struct:
		if t == nil {
			return 0, fmt.Errorf("nil struct")
		}
		if size, ok := r.Lookup(t); ok {
			return size, nil
		}
		for _, v := range visiting {
			if v == t {
				return 0, fmt.Errorf("struct %s contains itself inline", t.Name())
			}
		}
		visiting = append(visiting, t)

		size := 0
		for _, f := range t.Fields() {
			n, err := r.sizeOf(f.Type, visiting)
			if err != nil {
				return 0, fmt.Errorf("%s.%s: %w", t.Name(), f.Name, err)
			}
			size += n
		}
		r.Register(t, size)
		return size, nil
	}
	return 0, fmt.Errorf("unknown type: %T", t)
}
