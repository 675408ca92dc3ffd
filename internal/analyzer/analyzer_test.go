package analyzer

import (
	"strings"
	"testing"

	"github.com/alexhholmes/teric/internal/schema"
)

func TestAnalyze_Atoms(t *testing.T) {
	// Header uint64, Flags uint16, Footer uint32
	s := schema.NewStruct("Page").
		Atom("header", schema.Uint64).
		Atom("flags", schema.Uint16).
		Atom("footer", schema.Uint32).
		MustSeal()

	analyzed, err := Analyze(s, NewTypeRegistry())
	if err != nil {
		t.Fatalf("Analyze() error: %v", err)
	}

	if !analyzed.IsValid() {
		t.Errorf("Layout should be valid, errors: %v", analyzed.Errors)
	}

	if len(analyzed.Regions) != 3 {
		t.Fatalf("Expected 3 regions, got %d", len(analyzed.Regions))
	}

	want := [][2]int{{0, 8}, {8, 10}, {10, 14}}
	for i, r := range analyzed.Regions {
		if r.Start != want[i][0] || r.Boundary != want[i][1] {
			t.Errorf("%s region: got [%d, %d), want [%d, %d)",
				r.Field.Name, r.Start, r.Boundary, want[i][0], want[i][1])
		}
		if r.Kind != InlineRegion {
			t.Errorf("%s region: got kind %s, want inline", r.Field.Name, r.Kind)
		}
	}

	if analyzed.Size != 14 {
		t.Errorf("Size = %d, want 14", analyzed.Size)
	}
}

func TestAnalyze_Slots(t *testing.T) {
	vert := schema.NewStruct("Vert").
		Array("co", schema.AtomOf(schema.Float32), 3).
		MustSeal()

	mesh := schema.NewStruct("Mesh").
		Atom("strength", schema.Float32).
		Buffer("verts", vert).
		StringBuffer("name").
		Pointer("active", vert).
		MustSeal()

	analyzed, err := Analyze(mesh, nil)
	if err != nil {
		t.Fatalf("Analyze() error: %v", err)
	}

	if analyzed.Size != 4+8+4+4 {
		t.Errorf("Size = %d, want 20", analyzed.Size)
	}

	slots := analyzed.Slots()
	if len(slots) != 3 {
		t.Fatalf("Expected 3 slots, got %d", len(slots))
	}

	verts, ok := analyzed.Region("verts")
	if !ok {
		t.Fatal("verts region not found")
	}
	members := verts.Members()
	if len(members) != 2 {
		t.Fatalf("verts members: got %d, want 2", len(members))
	}
	if members[0].Name != "verts_offset" || members[0].Offset != 4 {
		t.Errorf("verts offset member: got %+v", members[0])
	}
	if members[1].Name != "verts_count" || members[1].Offset != 8 {
		t.Errorf("verts count member: got %+v", members[1])
	}

	name, _ := analyzed.Region("name")
	if m := name.Members(); len(m) != 1 || m[0].Name != "name_offset" || m[0].Offset != 12 {
		t.Errorf("name members: got %+v", m)
	}

	active, _ := analyzed.Region("active")
	if active.Start != 16 || active.Kind != SlotRegion {
		t.Errorf("active region: got start %d kind %s", active.Start, active.Kind)
	}

	if _, ok := analyzed.Region("missing"); ok {
		t.Error("missing region should not be found")
	}
}

func TestAnalyze_Nested(t *testing.T) {
	inner := schema.NewStruct("Inner").
		Atom("a", schema.Uint8).
		Atom("b", schema.Uint32).
		MustSeal()

	outer := schema.NewStruct("Outer").
		Atom("tag", schema.Uint16).
		Nested("inner", inner).
		Field("grid", schema.ArrayOf(inner, 2, 2)).
		MustSeal()

	reg := NewTypeRegistry()
	analyzed, err := Analyze(outer, reg)
	if err != nil {
		t.Fatalf("Analyze() error: %v", err)
	}

	// No padding between the 1 byte and 4 byte members
	if analyzed.Size != 2+5+20 {
		t.Errorf("Size = %d, want 27", analyzed.Size)
	}

	grid, _ := analyzed.Region("grid")
	if grid.Start != 7 || grid.Size() != 20 {
		t.Errorf("grid region: got [%d, %d)", grid.Start, grid.Boundary)
	}

	if size, ok := reg.Lookup(inner); !ok || size != 5 {
		t.Errorf("Lookup(Inner) = %d, %v; want 5, true", size, ok)
	}
}

func TestAnalyze_Nil(t *testing.T) {
	if _, err := Analyze(nil, nil); err == nil {
		t.Error("Expected error for nil struct")
	}
}

func TestDetectCollisions(t *testing.T) {
	f := func(name string) schema.Field {
		return schema.Field{Name: name, Type: schema.AtomOf(schema.Uint64)}
	}
	a := &AnalyzedLayout{
		TypeName: "Page",
		Regions: []Region{
			{Start: 0, Boundary: 8, Field: f("field1")},
			{Start: 4, Boundary: 12, Field: f("field2")},
			{Start: 16, Boundary: 24, Field: f("field3")},
		},
	}

	detectCollisions(a)

	if a.IsValid() {
		t.Fatal("Layout should be invalid")
	}
	if len(a.Errors) != 2 {
		t.Fatalf("Expected 2 errors, got %v", a.Errors)
	}
	if !strings.HasPrefix(a.Errors[0], "collision") {
		t.Errorf("Expected collision error, got: %s", a.Errors[0])
	}
	if !strings.HasPrefix(a.Errors[1], "gap") {
		t.Errorf("Expected gap error, got: %s", a.Errors[1])
	}
}
