package schema

import (
	"fmt"
	"regexp"

	terr "github.com/alexhholmes/teric/internal/errors"
)

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Field is one named member of a Struct
type Field struct {
	Name    string
	Type    Type
	Default any

	def Value // built at Seal from Type and Default
}

// FieldOption customizes a field while it is declared
type FieldOption func(*fieldConfig)

type fieldConfig struct {
	def   any
	align int
}

// Default sets the initial value every new instance starts with. Array
// fields apply a scalar default to each element; string fields take a
// string.
func Default(v any) FieldOption {
	return func(c *fieldConfig) { c.def = v }
}

// Align sets the payload alignment of a buffer field
func Align(n int) FieldOption {
	return func(c *fieldConfig) { c.align = n }
}

// Struct is an ordered, named collection of fields. It is declared with
// the builder methods and frozen by Seal; instances are created with New.
//
//	vert := schema.NewStruct("Vert").
//		Array("co", schema.AtomOf(schema.Float32), 3)
//	mesh := schema.NewStruct("Mesh").
//		Atom("strength", schema.Float32, schema.Default(1.0)).
//		Buffer("verts", vert, schema.Align(4))
type Struct struct {
	name    string
	typedef string
	fields  []Field
	index   map[string]int
	sealed  bool
	err     error
}

// NewStruct starts the declaration of a struct named name
func NewStruct(name string) *Struct {
	return &Struct{
		name:  name,
		index: make(map[string]int),
	}
}

func (*Struct) isType() {}

// Name returns the schema identifier
func (s *Struct) Name() string { return s.name }

// TypedefName returns the declared native type name, which defaults to
// the schema identifier.
func (s *Struct) TypedefName() string {
	if s.typedef != "" {
		return s.typedef
	}
	return s.name
}

// Fields returns the fields in declaration order
func (s *Struct) Fields() []Field { return s.fields }

// NumField returns the number of fields
func (s *Struct) NumField() int { return len(s.fields) }

// FieldIndex returns the position of the named field
func (s *Struct) FieldIndex(name string) (int, bool) {
	i, ok := s.index[name]
	return i, ok
}

// Sealed reports whether Seal has succeeded
func (s *Struct) Sealed() bool { return s.sealed }

func (s *Struct) CType() string { return s.TypedefName() }

func (s *Struct) Declare(name string) []string {
	return []string{fmt.Sprintf("%s %s;", s.TypedefName(), name)}
}

func (s *Struct) String() string { return s.name }

// Typedef overrides the native type name
func (s *Struct) Typedef(name string) *Struct {
	if s.check() {
		s.typedef = name
	}
	return s
}

// Field appends a field of any type
func (s *Struct) Field(name string, t Type, opts ...FieldOption) *Struct {
	if !s.check() {
		return s
	}
	var cfg fieldConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.align != 0 {
		bt, ok := t.(BufferType)
		if !ok {
			s.fail(terr.InvalidSchema([]string{s.name, name}, "align applies to buffers only, got %s", t))
			return s
		}
		bt.Align = cfg.align
		t = bt
	}
	if _, dup := s.index[name]; dup {
		s.fail(terr.InvalidSchema([]string{s.name, name}, "duplicate field"))
		return s
	}
	s.index[name] = len(s.fields)
	s.fields = append(s.fields, Field{Name: name, Type: t, Default: cfg.def})
	return s
}

// Atom appends a scalar field
func (s *Struct) Atom(name string, kind AtomKind, opts ...FieldOption) *Struct {
	return s.Field(name, AtomType{Kind: kind}, opts...)
}

// Char appends a single char field
func (s *Struct) Char(name string, opts ...FieldOption) *Struct {
	return s.Field(name, AtomType{Kind: Char}, opts...)
}

// Nested appends an inline struct field
func (s *Struct) Nested(name string, child *Struct, opts ...FieldOption) *Struct {
	return s.Field(name, child, opts...)
}

// Array appends a one-dimensional fixed array; use Field with ArrayOf for
// more dimensions.
func (s *Struct) Array(name string, elem Type, n int, opts ...FieldOption) *Struct {
	return s.Field(name, ArrayType{Elem: elem, Len: n}, opts...)
}

// FixedString appends a fixed-capacity null-terminated char array
func (s *Struct) FixedString(name string, capacity int, opts ...FieldOption) *Struct {
	return s.Field(name, StringOf(capacity), opts...)
}

// Buffer appends a dynamic out-of-line sequence
func (s *Struct) Buffer(name string, elem Type, opts ...FieldOption) *Struct {
	return s.Field(name, BufferOf(elem), opts...)
}

// StringBuffer appends a dynamic null-terminated char sequence
func (s *Struct) StringBuffer(name string, opts ...FieldOption) *Struct {
	return s.Field(name, StringBufferOf(), opts...)
}

// Pointer appends an optional reference to an instance of target
func (s *Struct) Pointer(name string, target *Struct) *Struct {
	return s.Field(name, PointerType{Target: target})
}

func (s *Struct) check() bool {
	if s.err != nil {
		return false
	}
	if s.sealed {
		s.err = terr.InvalidSchema([]string{s.name}, "struct is sealed")
		return false
	}
	return true
}

func (s *Struct) fail(err error) {
	if s.err == nil {
		s.err = err
	}
}

// Seal validates the declaration and freezes it. Inline children (nested
// structs and array elements) must already be sealed; buffer elements and
// pointer targets may be sealed later, which allows self-referential and
// mutually referential graphs.
func (s *Struct) Seal() (*Struct, error) {
	if s.sealed {
		return s, nil
	}
	if s.err != nil {
		return nil, s.err
	}
	if err := s.validate(); err != nil {
		s.err = err
		return nil, err
	}
	for i := range s.fields {
		f := &s.fields[i]
		v, err := newValue(f.Type)
		if err != nil {
			return nil, err
		}
		if f.Default != nil {
			if err := assign(v, f.Default, []string{s.name, f.Name}); err != nil {
				s.err = terr.New(terr.PhaseDeclare, terr.KindInvalidSchema).
					Path(s.name, f.Name).
					Detail("bad default").
					Cause(err).
					Build()
				return nil, s.err
			}
		}
		f.def = v
	}
	s.sealed = true
	return s, nil
}

// MustSeal is like Seal but panics on error
func (s *Struct) MustSeal() *Struct {
	sealed, err := s.Seal()
	if err != nil {
		panic(err)
	}
	return sealed
}

func (s *Struct) validate() error {
	if !identRe.MatchString(s.name) {
		return terr.InvalidSchema([]string{s.name}, "invalid struct name")
	}
	if !identRe.MatchString(s.TypedefName()) {
		return terr.InvalidSchema([]string{s.name}, "invalid typedef %q", s.TypedefName())
	}
	if len(s.fields) == 0 {
		return terr.InvalidSchema([]string{s.name}, "struct has no fields")
	}

	members := make(map[string]string)
	for _, f := range s.fields {
		path := []string{s.name, f.Name}
		if !identRe.MatchString(f.Name) {
			return terr.InvalidSchema(path, "invalid field name")
		}
		if err := s.validateType(path, f.Type, false); err != nil {
			return err
		}
		// Buffer and pointer slots expand into suffixed members that must
		// not collide with other fields.
		for _, m := range memberNames(f) {
			if other, ok := members[m]; ok {
				return terr.InvalidSchema(path, "member %q collides with field %q", m, other)
			}
			members[m] = f.Name
		}
	}
	return nil
}

func memberNames(f Field) []string {
	switch t := f.Type.(type) {
	case BufferType:
		if t.IsString {
			return []string{OffsetMember(f.Name)}
		}
		return []string{OffsetMember(f.Name), CountMember(f.Name)}
	case PointerType:
		return []string{OffsetMember(f.Name)}
	}
	return []string{f.Name}
}

func (s *Struct) validateType(path []string, t Type, inArray bool) error {
	switch t := t.(type) {
	case AtomType:
		if !t.Kind.Valid() {
			return terr.InvalidSchema(path, "invalid atom kind %d", t.Kind)
		}
	case *Struct:
		if t == nil {
			return terr.InvalidSchema(path, "nil struct")
		}
		if t == s {
			return terr.InvalidSchema(path, "struct cannot contain itself inline")
		}
		if !t.sealed {
			return terr.InvalidSchema(path, "inline struct %s is not sealed", t.name)
		}
	case ArrayType:
		if t.Len <= 0 {
			return terr.InvalidSchema(path, "array length must be positive, got %d", t.Len)
		}
		if t.Elem == nil {
			return terr.InvalidSchema(path, "array has no element type")
		}
		if t.IsString {
			a, ok := t.Elem.(AtomType)
			if !ok || !a.Kind.IsByte() {
				return terr.InvalidSchema(path, "string array needs a byte-wide element, got %s", t.Elem)
			}
		}
		switch t.Elem.(type) {
		case BufferType, PointerType:
			return terr.InvalidSchema(path, "array elements must be inline, got %s", t.Elem)
		}
		return s.validateType(path, t.Elem, true)
	case BufferType:
		if inArray {
			return terr.InvalidSchema(path, "buffers cannot be array elements")
		}
		if t.Align <= 0 || t.Align&(t.Align-1) != 0 {
			return terr.InvalidSchema(path, "align must be a power of 2, got %d", t.Align)
		}
		switch e := t.Elem.(type) {
		case AtomType:
			if !e.Kind.Valid() {
				return terr.InvalidSchema(path, "invalid atom kind %d", e.Kind)
			}
			if t.IsString && !e.Kind.IsByte() {
				return terr.InvalidSchema(path, "string buffer needs a byte-wide element, got %s", e)
			}
		case *Struct:
			if e == nil {
				return terr.InvalidSchema(path, "nil buffer element")
			}
			if t.IsString {
				return terr.InvalidSchema(path, "string buffer needs a byte-wide element, got %s", e)
			}
		default:
			return terr.InvalidSchema(path, "buffer element must be an atom or struct, got %s", t.Elem)
		}
	case PointerType:
		if t.Target == nil {
			return terr.InvalidSchema(path, "pointer has no target")
		}
	default:
		return terr.InvalidSchema(path, "unknown field type %T", t)
	}
	return nil
}

// New creates an instance whose fields are independent copies of the
// declared defaults.
func (s *Struct) New() (*Instance, error) {
	if !s.sealed {
		return nil, terr.New(terr.PhasePush, terr.KindInvalidSchema).
			Path(s.name).
			Detail("struct is not sealed").
			Build()
	}
	inst := &Instance{schema: s, values: make([]Value, len(s.fields))}
	for i, f := range s.fields {
		inst.values[i] = f.def.Duplicate()
	}
	return inst, nil
}

// MustNew is like New but panics on error
func (s *Struct) MustNew() *Instance {
	inst, err := s.New()
	if err != nil {
		panic(err)
	}
	return inst
}

// Reachable returns every struct reachable from s through any field,
// including s itself, in depth-first discovery order.
func (s *Struct) Reachable() []*Struct {
	var out []*Struct
	seen := make(map[*Struct]bool)
	var walk func(*Struct)
	var walkType func(Type)
	walk = func(st *Struct) {
		if seen[st] {
			return
		}
		seen[st] = true
		out = append(out, st)
		for _, f := range st.fields {
			walkType(f.Type)
		}
	}
	walkType = func(t Type) {
		switch t := t.(type) {
		case *Struct:
			walk(t)
		case ArrayType:
			walkType(t.Elem)
		case BufferType:
			walkType(t.Elem)
		case PointerType:
			walk(t.Target)
		}
	}
	walk(s)
	return out
}
