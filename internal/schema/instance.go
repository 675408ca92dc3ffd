package schema

import (
	"fmt"
	"strings"

	terr "github.com/alexhholmes/teric/internal/errors"
)

// Value is the closed set of instance values: *Atom, *Instance, *Array,
// *Buffer and *Pointer.
type Value interface {
	Type() Type
	// Duplicate returns a copy sharing no mutable state with the original.
	// Pointers copy the reference, not the target.
	Duplicate() Value

	isValue()
}

func newValue(t Type) (Value, error) {
	switch t := t.(type) {
	case AtomType:
		return NewAtom(t.Kind), nil
	case *Struct:
		return t.New()
	case ArrayType:
		a := &Array{typ: t, elems: make([]Value, t.Len)}
		for i := range a.elems {
			v, err := newValue(t.Elem)
			if err != nil {
				return nil, err
			}
			a.elems[i] = v
		}
		return a, nil
	case BufferType:
		return &Buffer{typ: t}, nil
	case PointerType:
		return &Pointer{typ: t}, nil
	}
	return nil, terr.InvalidSchema(nil, "unknown field type %T", t)
}

// Instance is one populated struct. Instances are owned by the caller and
// are not safe for concurrent mutation.
type Instance struct {
	schema *Struct
	values []Value
}

func (i *Instance) isValue() {}

// Type returns the instance's schema
func (i *Instance) Type() Type { return i.schema }

// Schema returns the struct the instance was created from
func (i *Instance) Schema() *Struct { return i.schema }

// Duplicate deep-copies the instance. Pointer fields keep their targets.
func (i *Instance) Duplicate() Value {
	c := &Instance{schema: i.schema, values: make([]Value, len(i.values))}
	for n, v := range i.values {
		c.values[n] = v.Duplicate()
	}
	return c
}

// Clone is Duplicate with the concrete type
func (i *Instance) Clone() *Instance {
	return i.Duplicate().(*Instance)
}

// Value returns the value of the field at index n in declaration order
func (i *Instance) Value(n int) Value { return i.values[n] }

// Field returns the named field's value
func (i *Instance) Field(name string) (Value, error) {
	n, ok := i.schema.index[name]
	if !ok {
		return nil, terr.NotFound(terr.PhasePush, []string{i.schema.name}, name)
	}
	return i.values[n], nil
}

func (i *Instance) mustField(name string) Value {
	v, err := i.Field(name)
	if err != nil {
		panic(err)
	}
	return v
}

// The typed accessors below panic when the field does not exist or has a
// different kind; use Field for checked access.

// Atom returns the named atom field
func (i *Instance) Atom(name string) *Atom {
	v, ok := i.mustField(name).(*Atom)
	if !ok {
		panic(fmt.Sprintf("schema: %s.%s is not an atom", i.schema.name, name))
	}
	return v
}

// Struct returns the named inline struct field
func (i *Instance) Struct(name string) *Instance {
	v, ok := i.mustField(name).(*Instance)
	if !ok {
		panic(fmt.Sprintf("schema: %s.%s is not a struct", i.schema.name, name))
	}
	return v
}

// Array returns the named array field
func (i *Instance) Array(name string) *Array {
	v, ok := i.mustField(name).(*Array)
	if !ok {
		panic(fmt.Sprintf("schema: %s.%s is not an array", i.schema.name, name))
	}
	return v
}

// Buffer returns the named buffer field
func (i *Instance) Buffer(name string) *Buffer {
	v, ok := i.mustField(name).(*Buffer)
	if !ok {
		panic(fmt.Sprintf("schema: %s.%s is not a buffer", i.schema.name, name))
	}
	return v
}

// Pointer returns the named pointer field
func (i *Instance) Pointer(name string) *Pointer {
	v, ok := i.mustField(name).(*Pointer)
	if !ok {
		panic(fmt.Sprintf("schema: %s.%s is not a pointer", i.schema.name, name))
	}
	return v
}

// Set assigns a raw Go value to the named field. Atoms take numbers,
// arrays and buffers take slices (or strings in string mode), nested
// structs take map[string]any or an instance of the same schema, and
// pointers take an *Instance or nil.
func (i *Instance) Set(name string, v any) error {
	field, err := i.Field(name)
	if err != nil {
		return err
	}
	if inst, ok := v.(*Instance); ok {
		if _, nested := field.(*Instance); nested {
			if inst.schema != i.schema.fields[i.schema.index[name]].Type {
				return terr.TypeMismatch(terr.PhasePush, []string{i.schema.name, name},
					field.Type().String(), inst.schema.name)
			}
			i.values[i.schema.index[name]] = inst
			return nil
		}
	}
	return assign(field, v, []string{i.schema.name, name})
}

// Array is a fixed-size inline sequence
type Array struct {
	typ   ArrayType
	elems []Value
}

func (a *Array) isValue() {}

// Type returns the array's schema type
func (a *Array) Type() Type { return a.typ }

// Duplicate copies every element
func (a *Array) Duplicate() Value {
	c := &Array{typ: a.typ, elems: make([]Value, len(a.elems))}
	for i, e := range a.elems {
		c.elems[i] = e.Duplicate()
	}
	return c
}

// Len returns the fixed element count
func (a *Array) Len() int { return len(a.elems) }

// Index returns element i
func (a *Array) Index(i int) Value { return a.elems[i] }

// Set assigns a raw value to element i
func (a *Array) Set(i int, v any) error {
	if i < 0 || i >= len(a.elems) {
		return terr.CapacityExceeded(terr.PhasePush, nil, i+1, len(a.elems))
	}
	return assign(a.elems[i], v, []string{fmt.Sprint(i)})
}

// Fill assigns values to the leading elements. Supplying more values than
// the array holds fails with CapacityExceeded.
func (a *Array) Fill(values ...any) error {
	if len(values) > len(a.elems) {
		return terr.CapacityExceeded(terr.PhasePush, nil, len(values), len(a.elems))
	}
	for i, v := range values {
		if err := assign(a.elems[i], v, []string{fmt.Sprint(i)}); err != nil {
			return err
		}
	}
	return nil
}

// SetString stores s followed by a terminator and clears the remaining
// capacity. s plus its terminator must fit.
func (a *Array) SetString(s string) error {
	if !a.typ.IsString {
		return terr.TypeMismatch(terr.PhasePush, nil, a.typ.String(), s)
	}
	if err := checkText(a.typ.String(), s); err != nil {
		return err
	}
	if len(s)+1 > len(a.elems) {
		return terr.CapacityExceeded(terr.PhasePush, nil, len(s)+1, len(a.elems))
	}
	for i, e := range a.elems {
		var c byte
		if i < len(s) {
			c = s[i]
		}
		e.(*Atom).bits = uint64(c)
	}
	return nil
}

// String returns the contents up to the first terminator for string
// arrays, and a bracketed element list otherwise.
func (a *Array) String() string {
	if a.typ.IsString {
		return bytesUntilNul(a.elems)
	}
	return fmt.Sprint(a.elems)
}

// Buffer is a growable sequence written out of line
type Buffer struct {
	typ   BufferType
	elems []Value
}

func (b *Buffer) isValue() {}

// Type returns the buffer's schema type
func (b *Buffer) Type() Type { return b.typ }

// Duplicate copies every element
func (b *Buffer) Duplicate() Value {
	c := &Buffer{typ: b.typ, elems: make([]Value, len(b.elems))}
	for i, e := range b.elems {
		c.elems[i] = e.Duplicate()
	}
	return c
}

// Len returns the number of pushed elements
func (b *Buffer) Len() int { return len(b.elems) }

// Index returns element i
func (b *Buffer) Index(i int) Value { return b.elems[i] }

// Align returns the payload alignment
func (b *Buffer) Align() int { return b.typ.Align }

// IsString reports whether the buffer is null-terminated instead of counted
func (b *Buffer) IsString() bool { return b.typ.IsString }

// Reset removes all elements
func (b *Buffer) Reset() { b.elems = b.elems[:0] }

// Push appends v, converting it to the element kind. Struct elements may
// be an *Instance of the element schema, which is stored as is so
// pointers can refer to it, or a map[string]any used to populate a new
// element. Strings append their bytes to byte-wide buffers.
func (b *Buffer) Push(v any) error {
	switch e := b.typ.Elem.(type) {
	case AtomType:
		if s, ok := v.(string); ok && e.Kind.IsByte() {
			if b.typ.IsString {
				if err := checkText(b.typ.String(), s); err != nil {
					return err
				}
			}
			for i := 0; i < len(s); i++ {
				b.elems = append(b.elems, &Atom{kind: e.Kind, bits: uint64(s[i])})
			}
			return nil
		}
		a := NewAtom(e.Kind)
		if err := a.Set(v); err != nil {
			return err
		}
		b.elems = append(b.elems, a)
		return nil
	case *Struct:
		switch x := v.(type) {
		case *Instance:
			if x.schema != e {
				return terr.TypeMismatch(terr.PhasePush, nil, e.TypedefName(), x.schema.name)
			}
			b.elems = append(b.elems, x)
			return nil
		case map[string]any:
			inst, err := e.New()
			if err != nil {
				return err
			}
			if err := assign(inst, x, nil); err != nil {
				return err
			}
			b.elems = append(b.elems, inst)
			return nil
		}
		return terr.TypeMismatch(terr.PhasePush, nil, e.TypedefName(), v)
	}
	return terr.TypeMismatch(terr.PhasePush, nil, b.typ.String(), v)
}

// PushNew appends a default element of the struct element schema and
// returns it for population.
func (b *Buffer) PushNew() (*Instance, error) {
	e, ok := b.typ.Elem.(*Struct)
	if !ok {
		return nil, terr.TypeMismatch(terr.PhasePush, nil, b.typ.String(), "struct element")
	}
	inst, err := e.New()
	if err != nil {
		return nil, err
	}
	b.elems = append(b.elems, inst)
	return inst, nil
}

// SetString replaces the contents with the bytes of s
func (b *Buffer) SetString(s string) error {
	a, ok := b.typ.Elem.(AtomType)
	if !ok || !a.Kind.IsByte() {
		return terr.TypeMismatch(terr.PhasePush, nil, b.typ.String(), s)
	}
	if b.typ.IsString {
		if err := checkText(b.typ.String(), s); err != nil {
			return err
		}
	}
	b.Reset()
	return b.Push(s)
}

// String returns the contents as text for byte-wide buffers
func (b *Buffer) String() string {
	if a, ok := b.typ.Elem.(AtomType); ok && a.Kind.IsByte() {
		return bytesUntilNul(b.elems)
	}
	return fmt.Sprint(b.elems)
}

// Pointer is an optional non-owning reference to another instance
type Pointer struct {
	typ    PointerType
	target *Instance
}

func (p *Pointer) isValue() {}

// Type returns the pointer's schema type
func (p *Pointer) Type() Type { return p.typ }

// Duplicate copies the reference
func (p *Pointer) Duplicate() Value {
	c := *p
	return &c
}

// Set points at target, which must be an instance of the declared target
// struct.
func (p *Pointer) Set(target *Instance) error {
	if target == nil {
		p.target = nil
		return nil
	}
	if target.schema != p.typ.Target {
		return terr.TypeMismatch(terr.PhasePush, nil, p.typ.Target.TypedefName(), target.schema.name)
	}
	p.target = target
	return nil
}

// Clear unsets the pointer
func (p *Pointer) Clear() { p.target = nil }

// Target returns the referenced instance or nil
func (p *Pointer) Target() *Instance { return p.target }

// IsSet reports whether the pointer references an instance
func (p *Pointer) IsSet() bool { return p.target != nil }

func bytesUntilNul(elems []Value) string {
	buf := make([]byte, 0, len(elems))
	for _, e := range elems {
		c := byte(e.(*Atom).bits)
		if c == 0 {
			break
		}
		buf = append(buf, c)
	}
	return string(buf)
}

// checkText rejects strings the terminator would cut short
func checkText(typ, s string) error {
	if i := strings.IndexByte(s, 0); i >= 0 {
		return terr.New(terr.PhasePush, terr.KindTypeMismatch).
			Type(typ).
			Value(s).
			Detail("embedded NUL at byte %d", i).
			Build()
	}
	return nil
}
