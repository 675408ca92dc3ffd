package codegen

import (
	"errors"
	"strings"
	"testing"

	terr "github.com/alexhholmes/teric/internal/errors"
	"github.com/alexhholmes/teric/internal/schema"
)

func meshSchema() (*schema.Struct, *schema.Struct) {
	vert := schema.NewStruct("Vert").
		Array("co", schema.AtomOf(schema.Float32), 3).
		MustSeal()
	mesh := schema.NewStruct("Mesh").
		Typedef("mesh_t").
		Atom("strength", schema.Float32).
		Buffer("verts", vert, schema.Align(4)).
		StringBuffer("name").
		Pointer("active", vert).
		MustSeal()
	return mesh, vert
}

func TestGenerateMesh(t *testing.T) {
	mesh, _ := meshSchema()

	code, err := NewGenerator(DefaultOptions()).Generate(mesh)
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}

	want := []string{
		"#ifndef MESH_T_H",
		"#define MESH_T_H",
		"#include <stdint.h>",
		"#define TERIC_INLINE static inline",
		"typedef struct mesh_t mesh_t;",
		"typedef struct Vert Vert;",
		"#pragma pack(push, 1)",
		"struct Vert\n{\n\tfloat co[3]; /* offset 0 */\n};",
		"_Static_assert(sizeof(Vert) == 12, \"Vert layout\");",
		"\tfloat strength; /* offset 0 */",
		"\tuint32_t verts_offset; /* offset 4 */",
		"\tuint32_t verts_count; /* offset 8 */",
		"\tuint32_t name_offset; /* offset 12 */",
		"\tint32_t active_offset; /* offset 16 */",
		"_Static_assert(sizeof(mesh_t) == 20, \"mesh_t layout\");",
		"#pragma pack(pop)",
		"TERIC_INLINE Vert *mesh_t_verts(mesh_t *self, uint32_t index)",
		"return (Vert *)((char *)self + self->verts_offset + index * sizeof(Vert));",
		"TERIC_INLINE char *mesh_t_name(mesh_t *self)",
		"TERIC_INLINE Vert *mesh_t_active(mesh_t *self)",
		"#endif /* MESH_T_H */",
	}
	for _, w := range want {
		if !strings.Contains(code, w) {
			t.Errorf("Missing %q in:\n%s", w, code)
		}
	}
}

func TestGenerateOrdering(t *testing.T) {
	mesh, _ := meshSchema()

	code, err := NewGenerator(DefaultOptions()).Generate(mesh)
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}

	order := []string{
		"typedef struct mesh_t mesh_t;",
		"typedef struct Vert Vert;",
		"struct Vert\n",
		"struct mesh_t\n",
		"#pragma pack(pop)",
		"mesh_t_verts(",
	}
	last := -1
	for _, s := range order {
		idx := strings.Index(code, s)
		if idx < 0 {
			t.Fatalf("Missing %q", s)
		}
		if idx < last {
			t.Errorf("%q appears out of order", s)
		}
		last = idx
	}
}

func TestGenerateChildrenBeforeParents(t *testing.T) {
	leaf := schema.NewStruct("Leaf").Atom("v", schema.Uint8).MustSeal()
	mid := schema.NewStruct("Mid").Field("leaves", schema.ArrayOf(leaf, 2, 2)).MustSeal()
	top := schema.NewStruct("Top").Nested("mid", mid).Nested("leaf", leaf).MustSeal()

	code, err := NewGenerator(Options{}).Generate(top)
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}

	leafIdx := strings.Index(code, "struct Leaf\n")
	midIdx := strings.Index(code, "struct Mid\n")
	topIdx := strings.Index(code, "struct Top\n")
	if !(leafIdx >= 0 && leafIdx < midIdx && midIdx < topIdx) {
		t.Errorf("Bodies out of dependency order: Leaf=%d Mid=%d Top=%d", leafIdx, midIdx, topIdx)
	}

	if !strings.Contains(code, "\tLeaf leaves[2][2];\n") {
		t.Error("Missing multi-dimensional struct array member")
	}

	// Options{} disables comments and asserts
	if strings.Contains(code, "/* offset") || strings.Contains(code, "_Static_assert") {
		t.Error("Comments and asserts should be off")
	}
}

func TestGenerateDedup(t *testing.T) {
	shared := schema.NewStruct("Shared").Atom("v", schema.Uint32).MustSeal()
	a := schema.NewStruct("A").Nested("s", shared).MustSeal()
	b := schema.NewStruct("B").Buffer("items", shared).MustSeal()
	root := schema.NewStruct("Root").
		Nested("a", a).
		Nested("b", b).
		Pointer("s", shared).
		MustSeal()

	code, err := NewGenerator(DefaultOptions()).Generate(root)
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}

	if n := strings.Count(code, "typedef struct Shared Shared;"); n != 1 {
		t.Errorf("Shared forward declared %d times, want 1", n)
	}
	if n := strings.Count(code, "struct Shared\n{"); n != 1 {
		t.Errorf("Shared defined %d times, want 1", n)
	}
}

func TestGenerateSelfReferential(t *testing.T) {
	node := schema.NewStruct("Node")
	node.Atom("value", schema.Int32).
		Pointer("parent", node).
		Buffer("children", node)
	node.MustSeal()

	code, err := NewGenerator(DefaultOptions()).Generate(node)
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}

	if n := strings.Count(code, "struct Node\n{"); n != 1 {
		t.Errorf("Node defined %d times, want 1", n)
	}
	if !strings.Contains(code, "TERIC_INLINE Node *Node_parent(Node *self)") {
		t.Error("Missing parent accessor")
	}
	if !strings.Contains(code, "TERIC_INLINE Node *Node_children(Node *self, uint32_t index)") {
		t.Error("Missing children accessor")
	}
}

func TestGenerateMutuallyReferential(t *testing.T) {
	a := schema.NewStruct("A")
	b := schema.NewStruct("B")
	a.Atom("x", schema.Uint8).Pointer("b", b)
	b.Atom("y", schema.Uint8).Buffer("as", a)
	a.MustSeal()
	b.MustSeal()

	code, err := NewGenerator(DefaultOptions()).Generate(a)
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}

	if strings.Index(code, "typedef struct B B;") > strings.Index(code, "struct A\n") {
		t.Error("B must be forward declared before A's body")
	}
}

func TestGenerateFreshContextPerCall(t *testing.T) {
	mesh, vert := meshSchema()
	gen := NewGenerator(DefaultOptions())

	first, err := gen.Generate(mesh)
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}
	second, err := gen.Generate(mesh)
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}
	if first != second {
		t.Error("Repeated generation should be identical")
	}

	// Vert alone still gets its own body after generating Mesh
	code, err := gen.Generate(vert)
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}
	if !strings.Contains(code, "struct Vert\n{") {
		t.Error("Vert body missing on second generator call")
	}
	if strings.Contains(code, "mesh_t") {
		t.Error("Unrelated struct leaked from previous call")
	}
}

func TestGenerateGuardAndMacro(t *testing.T) {
	mesh, _ := meshSchema()

	code, err := NewGenerator(Options{Guard: "MY_GUARD", InlineMacro: "FORCE_INLINE"}).Generate(mesh)
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}

	if !strings.Contains(code, "#ifndef MY_GUARD\n#define MY_GUARD") {
		t.Error("Missing custom guard")
	}
	if !strings.Contains(code, "#define FORCE_INLINE static inline") {
		t.Error("Missing custom inline macro")
	}
	if !strings.Contains(code, "FORCE_INLINE Vert *mesh_t_verts(") {
		t.Error("Accessor should use custom inline macro")
	}
}

func TestGenerateErrors(t *testing.T) {
	if _, err := NewGenerator(Options{}).Generate(nil); err == nil {
		t.Error("Expected error for nil root")
	}

	// Unsealed pointer target
	loose := schema.NewStruct("Loose").Atom("x", schema.Uint8)
	root := schema.NewStruct("Root").Pointer("p", loose).MustSeal()
	_, err := NewGenerator(Options{}).Generate(root)
	if !errors.Is(err, terr.ErrInvalidSchema) {
		t.Errorf("Expected invalid schema error, got %v", err)
	}

	// Two structs sharing one typedef
	x := schema.NewStruct("X").Typedef("same_t").Atom("v", schema.Uint8).MustSeal()
	y := schema.NewStruct("Y").Typedef("same_t").Atom("v", schema.Uint16).MustSeal()
	both := schema.NewStruct("Both").Nested("x", x).Nested("y", y).MustSeal()
	_, err = NewGenerator(Options{}).Generate(both)
	if err == nil || !strings.Contains(err.Error(), "typedef already used") {
		t.Errorf("Expected typedef collision, got %v", err)
	}
}

func TestGenerateInlineOrderWinsOverCycle(t *testing.T) {
	// A holds a buffer of B while B embeds A inline, so A must be defined first
	b := schema.NewStruct("B")
	a := schema.NewStruct("A").Atom("x", schema.Uint8).Buffer("bs", b).MustSeal()
	b.Nested("a", a).Atom("y", schema.Uint8).MustSeal()

	code, err := NewGenerator(DefaultOptions()).Generate(a)
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}

	if strings.Index(code, "struct A\n") > strings.Index(code, "struct B\n") {
		t.Error("A must be defined before B embeds it")
	}
	if !strings.Contains(code, "_Static_assert(sizeof(B) == 10, \"B layout\");") {
		t.Errorf("Unexpected B size in:\n%s", code)
	}
}
