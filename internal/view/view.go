// Package view reads serialized blobs back using the same offset rules as
// the generated C accessors.
package view

import (
	"encoding/binary"
	"strconv"

	"github.com/alexhholmes/teric/internal/analyzer"
	terr "github.com/alexhholmes/teric/internal/errors"
	"github.com/alexhholmes/teric/internal/schema"
)

// Struct is a read-only window onto one struct frame in a blob
type Struct struct {
	blob     []byte
	base     int
	schema   *schema.Struct
	layout   *analyzer.AnalyzedLayout
	registry *analyzer.TypeRegistry
	path     []string
}

// Open returns the root struct of blob, which must have been serialized
// from an instance of root.
func Open(blob []byte, root *schema.Struct) (*Struct, error) {
	if root == nil {
		return nil, terr.New(terr.PhaseRead, terr.KindInvalidSchema).
			Detail("root struct is nil").
			Build()
	}
	return open(blob, 0, root, analyzer.NewTypeRegistry(), []string{root.Name()})
}

func open(blob []byte, base int, s *schema.Struct, reg *analyzer.TypeRegistry, path []string) (*Struct, error) {
	layout, err := analyzer.Analyze(s, reg)
	if err != nil {
		return nil, terr.New(terr.PhaseRead, terr.KindInvalidSchema).
			Path(path...).
			Cause(err).
			Build()
	}
	if base < 0 || base+layout.Size > len(blob) {
		return nil, terr.OutOfBounds(terr.PhaseRead, path, base+layout.Size, len(blob))
	}
	return &Struct{
		blob:     blob,
		base:     base,
		schema:   s,
		layout:   layout,
		registry: reg,
		path:     path,
	}, nil
}

// Schema returns the struct the frame was written from
func (s *Struct) Schema() *schema.Struct { return s.schema }

// Base returns the frame's offset from the start of the blob
func (s *Struct) Base() int { return s.base }

// Bytes returns the frame's inline bytes
func (s *Struct) Bytes() []byte { return s.blob[s.base : s.base+s.layout.Size] }

func (s *Struct) sub(name string) []string {
	return append(append([]string(nil), s.path...), name)
}

func (s *Struct) region(name string) (analyzer.Region, error) {
	r, ok := s.layout.Region(name)
	if !ok {
		return r, terr.NotFound(terr.PhaseRead, s.path, name)
	}
	return r, nil
}

func (s *Struct) mismatch(name string, r analyzer.Region, want string) error {
	return terr.New(terr.PhaseRead, terr.KindTypeMismatch).
		Path(s.sub(name)...).
		Type(r.Field.Type.String()).
		Detail("field is not %s", want).
		Build()
}

// Atom decodes the named atom field
func (s *Struct) Atom(name string) (*schema.Atom, error) {
	r, err := s.region(name)
	if err != nil {
		return nil, err
	}
	t, ok := r.Field.Type.(schema.AtomType)
	if !ok {
		return nil, s.mismatch(name, r, "an atom")
	}
	return schema.DecodeAtom(t.Kind, s.blob[s.base+r.Start:]), nil
}

// Nested returns the named inline struct field
func (s *Struct) Nested(name string) (*Struct, error) {
	r, err := s.region(name)
	if err != nil {
		return nil, err
	}
	t, ok := r.Field.Type.(*schema.Struct)
	if !ok {
		return nil, s.mismatch(name, r, "a struct")
	}
	return open(s.blob, s.base+r.Start, t, s.registry, s.sub(name))
}

// Array returns the named fixed array field
func (s *Struct) Array(name string) (*Array, error) {
	r, err := s.region(name)
	if err != nil {
		return nil, err
	}
	t, ok := r.Field.Type.(schema.ArrayType)
	if !ok {
		return nil, s.mismatch(name, r, "an array")
	}
	return s.array(t, s.base+r.Start, s.sub(name))
}

func (s *Struct) array(t schema.ArrayType, at int, path []string) (*Array, error) {
	size, err := s.registry.SizeOf(t.Elem)
	if err != nil {
		return nil, terr.New(terr.PhaseRead, terr.KindInvalidSchema).Path(path...).Cause(err).Build()
	}
	return &Array{owner: s, typ: t, at: at, elemSize: size, path: path}, nil
}

// String returns the text of a string array or string buffer field
func (s *Struct) String(name string) (string, error) {
	r, err := s.region(name)
	if err != nil {
		return "", err
	}
	switch t := r.Field.Type.(type) {
	case schema.ArrayType:
		if t.IsString {
			return cstring(s.blob[s.base+r.Start : s.base+r.Boundary]), nil
		}
	case schema.BufferType:
		if t.IsString {
			b, err := s.Buffer(name)
			if err != nil {
				return "", err
			}
			return b.String(), nil
		}
	}
	return "", s.mismatch(name, r, "a string")
}

// Buffer follows the named buffer slot to its payload
func (s *Struct) Buffer(name string) (*Buffer, error) {
	r, err := s.region(name)
	if err != nil {
		return nil, err
	}
	t, ok := r.Field.Type.(schema.BufferType)
	if !ok {
		return nil, s.mismatch(name, r, "a buffer")
	}
	path := s.sub(name)

	offset := int(binary.LittleEndian.Uint32(s.blob[s.base+r.Start:]))
	// Payloads always follow the owner's inline bytes
	if offset < s.layout.Size {
		return nil, terr.OutOfBounds(terr.PhaseRead, path, offset, s.layout.Size)
	}
	at := s.base + offset
	if at > len(s.blob) {
		return nil, terr.OutOfBounds(terr.PhaseRead, path, at, len(s.blob))
	}

	elemSize, err := s.registry.SizeOf(t.Elem)
	if err != nil {
		return nil, terr.New(terr.PhaseRead, terr.KindInvalidSchema).Path(path...).Cause(err).Build()
	}

	b := &Buffer{owner: s, typ: t, at: at, elemSize: elemSize, path: path}
	if t.IsString {
		n := 0
		for at+n < len(s.blob) && s.blob[at+n] != 0 {
			n++
		}
		if at+n >= len(s.blob) {
			return nil, terr.OutOfBounds(terr.PhaseRead, path, at+n, len(s.blob))
		}
		b.count = n
		return b, nil
	}

	b.count = int(binary.LittleEndian.Uint32(s.blob[s.base+r.Start+4:]))
	if end := at + b.count*elemSize; end > len(s.blob) || end < at {
		return nil, terr.OutOfBounds(terr.PhaseRead, path, end, len(s.blob))
	}
	return b, nil
}

// Pointer follows the named pointer slot. A zero delta resolves to the
// owning struct, the same as the C accessor.
func (s *Struct) Pointer(name string) (*Struct, error) {
	r, err := s.region(name)
	if err != nil {
		return nil, err
	}
	t, ok := r.Field.Type.(schema.PointerType)
	if !ok {
		return nil, s.mismatch(name, r, "a pointer")
	}
	delta := int32(binary.LittleEndian.Uint32(s.blob[s.base+r.Start:]))
	return open(s.blob, s.base+int(delta), t.Target, s.registry, s.sub(name))
}

// Delta returns the raw stored delta of the named pointer field
func (s *Struct) Delta(name string) (int32, error) {
	r, err := s.region(name)
	if err != nil {
		return 0, err
	}
	if _, ok := r.Field.Type.(schema.PointerType); !ok {
		return 0, s.mismatch(name, r, "a pointer")
	}
	return int32(binary.LittleEndian.Uint32(s.blob[s.base+r.Start:])), nil
}

// Array is a fixed inline sequence
type Array struct {
	owner    *Struct
	typ      schema.ArrayType
	at       int
	elemSize int
	path     []string
}

// Len returns the declared element count
func (a *Array) Len() int { return a.typ.Len }

func (a *Array) check(i int) error {
	if i < 0 || i >= a.typ.Len {
		return terr.OutOfBounds(terr.PhaseRead, a.path, i, a.typ.Len)
	}
	return nil
}

// Atom decodes atom element i
func (a *Array) Atom(i int) (*schema.Atom, error) {
	if err := a.check(i); err != nil {
		return nil, err
	}
	t, ok := a.typ.Elem.(schema.AtomType)
	if !ok {
		return nil, terr.TypeMismatch(terr.PhaseRead, a.path, a.typ.String(), "atom element")
	}
	return schema.DecodeAtom(t.Kind, a.owner.blob[a.at+i*a.elemSize:]), nil
}

// Struct returns struct element i
func (a *Array) Struct(i int) (*Struct, error) {
	if err := a.check(i); err != nil {
		return nil, err
	}
	t, ok := a.typ.Elem.(*schema.Struct)
	if !ok {
		return nil, terr.TypeMismatch(terr.PhaseRead, a.path, a.typ.String(), "struct element")
	}
	return open(a.owner.blob, a.at+i*a.elemSize, t, a.owner.registry,
		append(append([]string(nil), a.path...), strconv.Itoa(i)))
}

// Array returns the inner array at i of a multi-dimensional array
func (a *Array) Array(i int) (*Array, error) {
	if err := a.check(i); err != nil {
		return nil, err
	}
	t, ok := a.typ.Elem.(schema.ArrayType)
	if !ok {
		return nil, terr.TypeMismatch(terr.PhaseRead, a.path, a.typ.String(), "array element")
	}
	return a.owner.array(t, a.at+i*a.elemSize, append(append([]string(nil), a.path...), strconv.Itoa(i)))
}

// Buffer is an out-of-line payload
type Buffer struct {
	owner    *Struct
	typ      schema.BufferType
	at       int
	count    int
	elemSize int
	path     []string
}

// Len returns the element count; for string buffers, the text length
func (b *Buffer) Len() int { return b.count }

// Offset returns the payload's position from the start of the blob
func (b *Buffer) Offset() int { return b.at }

func (b *Buffer) check(i int) error {
	if i < 0 || i >= b.count {
		return terr.OutOfBounds(terr.PhaseRead, b.path, i, b.count)
	}
	return nil
}

// Atom decodes atom element i
func (b *Buffer) Atom(i int) (*schema.Atom, error) {
	if err := b.check(i); err != nil {
		return nil, err
	}
	t, ok := b.typ.Elem.(schema.AtomType)
	if !ok {
		return nil, terr.TypeMismatch(terr.PhaseRead, b.path, b.typ.String(), "atom element")
	}
	return schema.DecodeAtom(t.Kind, b.owner.blob[b.at+i*b.elemSize:]), nil
}

// Struct returns struct element i, addressed as the C accessor does
func (b *Buffer) Struct(i int) (*Struct, error) {
	if err := b.check(i); err != nil {
		return nil, err
	}
	t, ok := b.typ.Elem.(*schema.Struct)
	if !ok {
		return nil, terr.TypeMismatch(terr.PhaseRead, b.path, b.typ.String(), "struct element")
	}
	return open(b.owner.blob, b.at+i*b.elemSize, t, b.owner.registry,
		append(append([]string(nil), b.path...), strconv.Itoa(i)))
}

// String returns the payload as text for byte-wide buffers
func (b *Buffer) String() string {
	return string(b.owner.blob[b.at : b.at+b.count*b.elemSize])
}

func cstring(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
