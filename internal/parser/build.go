package parser

import (
	"errors"
	"go/ast"
	"go/token"
	"strconv"

	terr "github.com/alexhholmes/teric/internal/errors"
	"github.com/alexhholmes/teric/internal/schema"
)

// Package holds the sealed schema built from one annotated source file
type Package struct {
	Structs map[string]*schema.Struct
	Order   []string // Declaration order
	Root    string   // Type marked with `@teric root`, if any
}

// Lookup returns the struct declared under the Go type name
func (p *Package) Lookup(name string) (*schema.Struct, error) {
	s, ok := p.Structs[name]
	if !ok {
		return nil, terr.NotFound(terr.PhaseParse, nil, name)
	}
	return s, nil
}

// RootStruct returns name, or the annotated root when name is empty
func (p *Package) RootStruct(name string) (*schema.Struct, error) {
	if name == "" {
		name = p.Root
	}
	if name == "" {
		return nil, terr.New(terr.PhaseParse, terr.KindNotFound).
			Detail("no root given and no type is annotated with root").
			Build()
	}
	return p.Lookup(name)
}

// LoadFile parses an annotated Go file and builds its schema
func LoadFile(filename string) (*Package, error) {
	types, err := ParseFile(filename)
	if err != nil {
		return nil, err
	}
	return Build(types)
}

// Build converts parsed declarations into sealed structs. Field types map
// as follows:
//
//	int8..uint64, float32, float64, byte, rune → atom
//	byte `teric:"char"`                         → char
//	[N]T                                        → array (nested for [N][M]T)
//	[N]byte `teric:"string"`                    → fixed string
//	[]T                                         → buffer
//	string, []byte `teric:"string"`             → string buffer
//	*T                                          → pointer
//	T                                           → nested struct
//
// T must be another annotated type of the same file.
func Build(types []*TypeDecl) (*Package, error) {
	b := &builder{
		pkg: &Package{Structs: make(map[string]*schema.Struct, len(types))},
	}

	for _, t := range types {
		if _, dup := b.pkg.Structs[t.Name]; dup {
			b.fail(t.Pos, []string{t.Name}, "duplicate type")
			continue
		}
		s := schema.NewStruct(t.Name)
		if t.Anno.Typedef != "" {
			s.Typedef(t.Anno.Typedef)
		}
		if t.Anno.Root {
			if b.pkg.Root != "" {
				b.fail(t.Pos, []string{t.Name}, "root already set by %s", b.pkg.Root)
			}
			b.pkg.Root = t.Name
		}
		b.pkg.Structs[t.Name] = s
		b.pkg.Order = append(b.pkg.Order, t.Name)
	}
	if len(b.errs) > 0 {
		return nil, errors.Join(b.errs...)
	}

	for _, t := range types {
		s := b.pkg.Structs[t.Name]
		for _, f := range t.Fields {
			b.addField(s, t.Name, f)
		}
	}
	if len(b.errs) > 0 {
		return nil, errors.Join(b.errs...)
	}

	state := make(map[*schema.Struct]int)
	for _, name := range b.pkg.Order {
		if err := b.seal(b.pkg.Structs[name], state, nil); err != nil {
			return nil, err
		}
	}
	return b.pkg, nil
}

type builder struct {
	pkg  *Package
	errs []error
}

func (b *builder) fail(pos token.Position, path []string, format string, args ...any) {
	args = append([]any{pos}, args...)
	b.errs = append(b.errs, terr.New(terr.PhaseParse, terr.KindInvalidSchema).
		Path(path...).
		Detail("%s: "+format, args...).
		Build())
}

func (b *builder) addField(s *schema.Struct, typeName string, f Field) {
	path := []string{typeName, f.Name}
	t, err := b.resolve(f.Expr, f.Tag, path)
	if err != nil {
		b.errs = append(b.errs, err)
		return
	}

	var opts []schema.FieldOption
	if f.Tag.Align != 0 {
		if _, ok := t.(schema.BufferType); !ok {
			b.fail(f.Pos, path, "align applies to slices only")
			return
		}
		opts = append(opts, schema.Align(f.Tag.Align))
	}
	if f.Tag.HasDefault {
		def, err := parseDefault(t, f.Tag.Default, path)
		if err != nil {
			b.errs = append(b.errs, err)
			return
		}
		opts = append(opts, schema.Default(def))
	}
	s.Field(f.Name, t, opts...)
}

func (b *builder) resolve(expr ast.Expr, tag *FieldTag, path []string) (schema.Type, error) {
	switch t := expr.(type) {
	case *ast.Ident:
		if t.Name == "string" {
			return schema.StringBufferOf(), nil
		}
		if kind, ok := atomKind(t.Name, tag); ok {
			return schema.AtomOf(kind), nil
		}
		switch t.Name {
		case "int", "uint", "uintptr", "bool", "complex64", "complex128":
			return nil, terr.InvalidSchema(path, "%s has no fixed binary layout", t.Name)
		}
		s, ok := b.pkg.Structs[t.Name]
		if !ok {
			return nil, terr.NotFound(terr.PhaseParse, path[:len(path)-1], t.Name)
		}
		return s, nil

	case *ast.ArrayType:
		if t.Len == nil {
			if tag.String {
				if !isByteIdent(t.Elt) {
					return nil, terr.InvalidSchema(path, "string applies to []byte only")
				}
				return schema.StringBufferOf(), nil
			}
			elem, err := b.resolve(t.Elt, tag, path)
			if err != nil {
				return nil, err
			}
			if _, ok := elem.(schema.BufferType); ok {
				return nil, terr.InvalidSchema(path, "buffer of buffers is not supported")
			}
			return schema.BufferOf(elem), nil
		}

		n, err := arrayLen(t.Len)
		if err != nil {
			return nil, terr.InvalidSchema(path, "%v", err)
		}
		if tag.String {
			if !isByteIdent(t.Elt) {
				return nil, terr.InvalidSchema(path, "string applies to [N]byte only")
			}
			return schema.StringOf(n), nil
		}
		elem, err := b.resolve(t.Elt, tag, path)
		if err != nil {
			return nil, err
		}
		return schema.ArrayType{Elem: elem, Len: n}, nil

	case *ast.StarExpr:
		ident, ok := t.X.(*ast.Ident)
		if !ok {
			return nil, terr.InvalidSchema(path, "pointer to %s is not supported", typeToString(t.X))
		}
		s, ok := b.pkg.Structs[ident.Name]
		if !ok {
			return nil, terr.NotFound(terr.PhaseParse, path[:len(path)-1], ident.Name)
		}
		return schema.PointerTo(s), nil
	}
	return nil, terr.InvalidSchema(path, "unsupported type %s", typeToString(expr))
}

func atomKind(name string, tag *FieldTag) (schema.AtomKind, bool) {
	kind, ok := schema.ParseAtomKind(name)
	if !ok {
		return 0, false
	}
	if tag.Char && kind.IsByte() {
		return schema.Char, true
	}
	return kind, true
}

func isByteIdent(expr ast.Expr) bool {
	ident, ok := expr.(*ast.Ident)
	return ok && (ident.Name == "byte" || ident.Name == "uint8")
}

func arrayLen(expr ast.Expr) (int, error) {
	lit, ok := expr.(*ast.BasicLit)
	if !ok || lit.Kind != token.INT {
		return 0, errors.New("array length must be an integer literal")
	}
	n, err := strconv.ParseInt(lit.Value, 0, 32)
	if err != nil || n <= 0 {
		return 0, errors.New("array length must be positive, got " + lit.Value)
	}
	return int(n), nil
}

// parseDefault converts a tag default into the value Default expects.
// Arrays take one scalar for every element; string fields take the text.
func parseDefault(t schema.Type, raw string, path []string) (any, error) {
	switch t := t.(type) {
	case schema.AtomType:
		return parseAtom(t.Kind, raw, path)
	case schema.ArrayType:
		if t.IsString {
			return raw, nil
		}
		elem, ok := t.Base().(schema.AtomType)
		if !ok {
			break
		}
		return parseAtom(elem.Kind, raw, path)
	case schema.BufferType:
		if t.IsString {
			return raw, nil
		}
	}
	return nil, terr.InvalidSchema(path, "default is not supported for %s", t)
}

func parseAtom(kind schema.AtomKind, raw string, path []string) (any, error) {
	switch {
	case kind == schema.Char && len(raw) == 1:
		return raw, nil
	case kind.IsFloat():
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, terr.TypeMismatch(terr.PhaseParse, path, kind.String(), raw)
		}
		return f, nil
	case kind.IsSigned():
		i, err := strconv.ParseInt(raw, 0, 64)
		if err != nil {
			return nil, terr.TypeMismatch(terr.PhaseParse, path, kind.String(), raw)
		}
		return i, nil
	default:
		u, err := strconv.ParseUint(raw, 0, 64)
		if err != nil {
			return nil, terr.TypeMismatch(terr.PhaseParse, path, kind.String(), raw)
		}
		return u, nil
	}
}

const (
	unsealed = iota
	sealing
	sealed
)

// seal seals s after every struct it embeds inline
func (b *builder) seal(s *schema.Struct, state map[*schema.Struct]int, chain []string) error {
	chain = append(chain, s.Name())
	switch state[s] {
	case sealed:
		return nil
	case sealing:
		return terr.InvalidSchema(chain, "inline cycle")
	}
	state[s] = sealing

	for _, f := range s.Fields() {
		if child := inlineStruct(f.Type); child != nil {
			if err := b.seal(child, state, chain); err != nil {
				return err
			}
		}
	}

	if _, err := s.Seal(); err != nil {
		return err
	}
	state[s] = sealed
	return nil
}

func inlineStruct(t schema.Type) *schema.Struct {
	switch t := t.(type) {
	case *schema.Struct:
		return t
	case schema.ArrayType:
		return inlineStruct(t.Base())
	}
	return nil
}
