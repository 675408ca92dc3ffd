package schema

import (
	"fmt"
	"strings"
)

// Type is the closed set of field kinds: AtomType, *Struct, ArrayType,
// BufferType and PointerType.
type Type interface {
	// CType returns the native type name used for the element in
	// declarations.
	CType() string
	// Declare returns the member declaration lines for a field of this
	// type named name.
	Declare(name string) []string
	String() string

	isType()
}

// AtomType is a fixed-width scalar field
type AtomType struct {
	Kind AtomKind
}

// AtomOf returns the atom type for kind
func AtomOf(kind AtomKind) AtomType { return AtomType{Kind: kind} }

func (AtomType) isType() {}

func (t AtomType) CType() string { return t.Kind.CName() }

func (t AtomType) Declare(name string) []string {
	return []string{fmt.Sprintf("%s %s;", t.Kind.CName(), name)}
}

func (t AtomType) String() string { return t.Kind.String() }

// ArrayType is a fixed-size inline array. Multi-dimensional arrays nest
// ArrayType elements; they are always rectangular.
type ArrayType struct {
	Elem Type
	Len  int
	// IsString stores a null-terminated byte run; the last slot is reserved
	// for the terminator.
	IsString bool
}

// ArrayOf returns an array type with the given dimensions, outermost
// first: ArrayOf(f, 4, 3) declares f[4][3].
func ArrayOf(elem Type, dims ...int) ArrayType {
	for i := len(dims) - 1; i > 0; i-- {
		elem = ArrayType{Elem: elem, Len: dims[i]}
	}
	n := 0
	if len(dims) > 0 {
		n = dims[0]
	}
	return ArrayType{Elem: elem, Len: n}
}

// StringOf returns a char array of the given capacity in string mode
func StringOf(capacity int) ArrayType {
	return ArrayType{Elem: AtomType{Kind: Char}, Len: capacity, IsString: true}
}

func (ArrayType) isType() {}

// Dims returns the dimensions, outermost first
func (t ArrayType) Dims() []int {
	dims := []int{t.Len}
	for e, ok := t.Elem.(ArrayType); ok; e, ok = e.Elem.(ArrayType) {
		dims = append(dims, e.Len)
	}
	return dims
}

// Base returns the innermost element type
func (t ArrayType) Base() Type {
	var elem Type = t
	for {
		a, ok := elem.(ArrayType)
		if !ok {
			return elem
		}
		elem = a.Elem
	}
}

func (t ArrayType) CType() string { return t.Base().CType() }

func (t ArrayType) Declare(name string) []string {
	var b strings.Builder
	b.WriteString(t.Base().CType())
	b.WriteByte(' ')
	b.WriteString(name)
	for _, d := range t.Dims() {
		fmt.Fprintf(&b, "[%d]", d)
	}
	b.WriteByte(';')
	return []string{b.String()}
}

func (t ArrayType) String() string {
	var b strings.Builder
	for _, d := range t.Dims() {
		fmt.Fprintf(&b, "[%d]", d)
	}
	b.WriteString(t.Base().String())
	if t.IsString {
		b.WriteString(" (string)")
	}
	return b.String()
}

// BufferType is a growable sequence stored out of line
type BufferType struct {
	Elem Type
	// IsString omits the count slot and null-terminates the payload.
	IsString bool
	// Align is the byte alignment of the payload start within the blob.
	Align int
}

// BufferOf returns a buffer type with alignment 1
func BufferOf(elem Type) BufferType {
	return BufferType{Elem: elem, Align: 1}
}

// StringBufferOf returns a null-terminated char buffer
func StringBufferOf() BufferType {
	return BufferType{Elem: AtomType{Kind: Char}, IsString: true, Align: 1}
}

func (BufferType) isType() {}

func (t BufferType) CType() string { return t.Elem.CType() }

// OffsetMember and CountMember name the inline slot members
func OffsetMember(name string) string { return name + "_offset" }
func CountMember(name string) string  { return name + "_count" }

func (t BufferType) Declare(name string) []string {
	lines := []string{fmt.Sprintf("uint32_t %s;", OffsetMember(name))}
	if !t.IsString {
		lines = append(lines, fmt.Sprintf("uint32_t %s;", CountMember(name)))
	}
	return lines
}

// SlotSize returns the inline bytes of the buffer slot
func (t BufferType) SlotSize() int {
	if t.IsString {
		return 4
	}
	return 8
}

// Accessor returns the read-back function for a buffer field of owner.
// The element address is the owner's address plus the stored offset plus
// index times the element size.
func (t BufferType) Accessor(owner *Struct, name, inline string) string {
	var b strings.Builder
	self := owner.TypedefName()
	fn := self + "_" + name
	elem := t.Elem.CType()
	if t.IsString {
		fmt.Fprintf(&b, "%s %s *%s(%s *self)\n{\n", inline, elem, fn, self)
		fmt.Fprintf(&b, "\treturn (%s *)((char *)self + self->%s);\n}\n", elem, OffsetMember(name))
		return b.String()
	}
	fmt.Fprintf(&b, "%s %s *%s(%s *self, uint32_t index)\n{\n", inline, elem, fn, self)
	fmt.Fprintf(&b, "\treturn (%s *)((char *)self + self->%s + index * sizeof(%s));\n}\n",
		elem, OffsetMember(name), elem)
	return b.String()
}

func (t BufferType) String() string {
	s := "[]" + t.Elem.String()
	if t.IsString {
		s += " (string)"
	}
	if t.Align > 1 {
		s += fmt.Sprintf(" align=%d", t.Align)
	}
	return s
}

// PointerType is an optional non-owning reference to one struct instance
type PointerType struct {
	Target *Struct
}

// PointerTo returns a pointer type targeting s
func PointerTo(s *Struct) PointerType { return PointerType{Target: s} }

func (PointerType) isType() {}

func (t PointerType) CType() string { return t.Target.TypedefName() }

func (t PointerType) Declare(name string) []string {
	return []string{fmt.Sprintf("int32_t %s;", OffsetMember(name))}
}

// Accessor returns the read-back function for a pointer field of owner.
// A stored delta of zero resolves to the owner itself; unset pointers are
// only written as zero when the serializer is told to allow them.
func (t PointerType) Accessor(owner *Struct, name, inline string) string {
	var b strings.Builder
	self := owner.TypedefName()
	target := t.Target.TypedefName()
	fmt.Fprintf(&b, "%s %s *%s_%s(%s *self)\n{\n", inline, target, self, name, self)
	fmt.Fprintf(&b, "\treturn (%s *)((char *)self + self->%s);\n}\n", target, OffsetMember(name))
	return b.String()
}

func (t PointerType) String() string {
	if t.Target == nil {
		return "*<nil>"
	}
	return "*" + t.Target.Name()
}
