package codegen

import (
	"fmt"
	"strings"
	"unicode"

	"go.uber.org/zap"

	"github.com/alexhholmes/teric/internal/analyzer"
	terr "github.com/alexhholmes/teric/internal/errors"
	"github.com/alexhholmes/teric/internal/schema"
)

// DefaultInlineMacro is the function attribute macro accessors are declared with
const DefaultInlineMacro = "TERIC_INLINE"

// Options controls header output
type Options struct {
	Guard         string // include guard macro; derived from the root typedef if empty
	InlineMacro   string // accessor attribute macro; DefaultInlineMacro if empty
	StaticAsserts bool   // emit _Static_assert for every struct size
	Comments      bool   // annotate members with their inline offset
}

// DefaultOptions returns the options the CLI uses when nothing is configured
func DefaultOptions() Options {
	return Options{
		InlineMacro:   DefaultInlineMacro,
		StaticAsserts: true,
		Comments:      true,
	}
}

// Generator generates C declarations matching the serializer's layout
type Generator struct {
	opts     Options
	registry *analyzer.TypeRegistry
}

// NewGenerator creates a new header generator
func NewGenerator(opts Options) *Generator {
	if opts.InlineMacro == "" {
		opts.InlineMacro = DefaultInlineMacro
	}
	return &Generator{
		opts:     opts,
		registry: analyzer.NewTypeRegistry(),
	}
}

// emitCtx carries the state of one Generate call
type emitCtx struct {
	defined  map[*schema.Struct]bool
	typedefs map[string]*schema.Struct
	layouts  map[*schema.Struct]*analyzer.AnalyzedLayout
	order    []*schema.Struct // bodies in dependency order
}

// Generate returns the header text for root and every struct reachable from
// it. Each call starts from a fresh context, so generators may be reused.
func (g *Generator) Generate(root *schema.Struct) (string, error) {
	if root == nil {
		return "", terr.New(terr.PhaseHeader, terr.KindInvalidSchema).
			Detail("root struct is nil").
			Build()
	}

	ctx := &emitCtx{
		defined:  make(map[*schema.Struct]bool),
		typedefs: make(map[string]*schema.Struct),
		layouts:  make(map[*schema.Struct]*analyzer.AnalyzedLayout),
	}

	// Phase 1: Discover and validate every reachable struct
	reachable := root.Reachable()
	for _, s := range reachable {
		if !s.Sealed() {
			return "", terr.New(terr.PhaseHeader, terr.KindInvalidSchema).
				Path(s.Name()).
				Detail("struct is not sealed").
				Build()
		}
		name := s.TypedefName()
		if other, ok := ctx.typedefs[name]; ok && other != s {
			return "", terr.New(terr.PhaseHeader, terr.KindInvalidSchema).
				Path(s.Name()).
				Type(name).
				Detail("typedef already used by struct %s", other.Name()).
				Build()
		}
		ctx.typedefs[name] = s

		analyzed, err := analyzer.Analyze(s, g.registry)
		if err != nil {
			return "", terr.New(terr.PhaseHeader, terr.KindInvalidSchema).
				Path(s.Name()).
				Cause(err).
				Build()
		}
		ctx.layouts[s] = analyzed
	}

	// Phase 2: Order bodies so children precede their parents. Inline
	// children must come first; other references only prefer to.
	for _, s := range postOrder(root) {
		g.orderBodies(ctx, s)
	}

	var out strings.Builder
	guard := g.guard(root)

	out.WriteString("/* Code generated by teric. DO NOT EDIT. */\n\n")
	out.WriteString(fmt.Sprintf("#ifndef %s\n", guard))
	out.WriteString(fmt.Sprintf("#define %s\n\n", guard))
	out.WriteString("#include <stdint.h>\n\n")
	out.WriteString(fmt.Sprintf("#ifndef %s\n", g.opts.InlineMacro))
	out.WriteString(fmt.Sprintf("#define %s static inline\n", g.opts.InlineMacro))
	out.WriteString("#endif\n\n")

	// Forward declarations in discovery order
	for _, s := range reachable {
		name := s.TypedefName()
		out.WriteString(fmt.Sprintf("typedef struct %s %s;\n", name, name))
	}
	out.WriteString("\n")

	out.WriteString("#pragma pack(push, 1)\n\n")
	for _, s := range ctx.order {
		out.WriteString(g.generateBody(ctx.layouts[s]))
	}
	out.WriteString("#pragma pack(pop)\n")

	// Accessors follow every body so element sizes are always complete
	for _, s := range ctx.order {
		accessors := g.generateAccessors(s)
		if accessors != "" {
			out.WriteString("\n")
			out.WriteString(accessors)
		}
	}

	out.WriteString(fmt.Sprintf("\n#endif /* %s */\n", guard))

	Logger().Debug("generated",
		zap.String("root", root.Name()),
		zap.String("guard", guard),
		zap.Int("structs", len(ctx.order)),
		zap.Int("bytes", out.Len()),
	)
	return out.String(), nil
}

// orderBodies appends s after every struct it embeds inline
func (g *Generator) orderBodies(ctx *emitCtx, s *schema.Struct) {
	if ctx.defined[s] {
		return
	}
	ctx.defined[s] = true
	for _, f := range s.Fields() {
		if child := inlineStruct(f.Type); child != nil {
			g.orderBodies(ctx, child)
		}
	}
	ctx.order = append(ctx.order, s)
}

// postOrder returns every struct reachable from root, each after the structs
// it references unless a cycle leads back to it
func postOrder(root *schema.Struct) []*schema.Struct {
	var out []*schema.Struct
	seen := make(map[*schema.Struct]bool)
	var walk func(*schema.Struct)
	walk = func(s *schema.Struct) {
		if seen[s] {
			return
		}
		seen[s] = true
		for _, f := range s.Fields() {
			if child := referencedStruct(f.Type); child != nil {
				walk(child)
			}
		}
		out = append(out, s)
	}
	walk(root)
	return out
}

// referencedStruct returns the struct t refers to by any kind of edge
func referencedStruct(t schema.Type) *schema.Struct {
	switch t := t.(type) {
	case schema.BufferType:
		return referencedStruct(t.Elem)
	case schema.PointerType:
		return t.Target
	}
	return inlineStruct(t)
}

// inlineStruct returns the struct stored inline by t, looking through arrays
func inlineStruct(t schema.Type) *schema.Struct {
	switch t := t.(type) {
	case *schema.Struct:
		return t
	case schema.ArrayType:
		return inlineStruct(t.Base())
	}
	return nil
}

// generateBody generates the struct definition and its size assertion
func (g *Generator) generateBody(analyzed *analyzer.AnalyzedLayout) string {
	var code strings.Builder
	name := analyzed.TypeName

	code.WriteString(fmt.Sprintf("struct %s\n{\n", name))
	for _, region := range analyzed.Regions {
		decls := region.Field.Type.Declare(region.Field.Name)
		members := region.Members()
		for i, decl := range decls {
			code.WriteString("\t")
			code.WriteString(decl)
			if g.opts.Comments && i < len(members) {
				code.WriteString(fmt.Sprintf(" /* offset %d */", members[i].Offset))
			}
			code.WriteString("\n")
		}
	}
	code.WriteString("};\n")

	if g.opts.StaticAsserts {
		code.WriteString(fmt.Sprintf("_Static_assert(sizeof(%s) == %d, \"%s layout\");\n",
			name, analyzed.Size, name))
	}
	code.WriteString("\n")

	return code.String()
}

// generateAccessors generates read-back functions for buffer and pointer fields
func (g *Generator) generateAccessors(s *schema.Struct) string {
	var code strings.Builder
	for _, f := range s.Fields() {
		var fn string
		switch t := f.Type.(type) {
		case schema.BufferType:
			fn = t.Accessor(s, f.Name, g.opts.InlineMacro)
		case schema.PointerType:
			fn = t.Accessor(s, f.Name, g.opts.InlineMacro)
		default:
			continue
		}
		if code.Len() > 0 {
			code.WriteString("\n")
		}
		code.WriteString(fn)
	}
	return code.String()
}

// guard returns the configured include guard or one derived from root
func (g *Generator) guard(root *schema.Struct) string {
	if g.opts.Guard != "" {
		return g.opts.Guard
	}
	var b strings.Builder
	for i, r := range root.TypedefName() {
		if i > 0 && unicode.IsUpper(r) {
			b.WriteByte('_')
		}
		b.WriteRune(unicode.ToUpper(r))
	}
	b.WriteString("_H")
	return b.String()
}
