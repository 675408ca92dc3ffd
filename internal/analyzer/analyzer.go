package analyzer

import (
	"fmt"

	"github.com/alexhholmes/teric/internal/schema"
)

// Region represents the inline bytes of one field within its struct
type Region struct {
	Kind     RegionKind
	Start    int // Byte offset where region begins
	Boundary int // Byte offset where region ends (exclusive)
	Field    schema.Field
}

type RegionKind int

const (
	InlineRegion RegionKind = iota // Atom, array or nested struct stored in place
	SlotRegion                     // Buffer or pointer slot patched after layout
)

func (k RegionKind) String() string {
	switch k {
	case InlineRegion:
		return "inline"
	case SlotRegion:
		return "slot"
	}
	return fmt.Sprintf("RegionKind(%d)", int(k))
}

// Size returns the region's width in bytes
func (r Region) Size() int { return r.Boundary - r.Start }

// Member is one named member of the native declaration
type Member struct {
	Name   string
	Offset int
	Size   int
}

// Members expands the region into its declared members. Buffer slots hold
// an offset and, unless in string mode, a count; pointer slots hold a delta.
func (r Region) Members() []Member {
	switch t := r.Field.Type.(type) {
	case schema.BufferType:
		m := []Member{{Name: schema.OffsetMember(r.Field.Name), Offset: r.Start, Size: 4}}
		if !t.IsString {
			m = append(m, Member{Name: schema.CountMember(r.Field.Name), Offset: r.Start + 4, Size: 4})
		}
		return m
	case schema.PointerType:
		return []Member{{Name: schema.OffsetMember(r.Field.Name), Offset: r.Start, Size: 4}}
	}
	return []Member{{Name: r.Field.Name, Offset: r.Start, Size: r.Size()}}
}

// AnalyzedLayout contains the analyzed inline layout of one struct
type AnalyzedLayout struct {
	TypeName string
	Size     int
	Regions  []Region
	Errors   []string // Validation errors

	index map[string]int
}

// Analyze computes the inline regions of s in declaration order. Fields are
// packed with no implicit padding, so each region starts where the previous
// one ends and the struct size is the sum of the field sizes.
func Analyze(s *schema.Struct, registry *TypeRegistry) (*AnalyzedLayout, error) {
	if s == nil {
		return nil, fmt.Errorf("struct is nil")
	}
	if registry == nil {
		registry = NewTypeRegistry()
	}

	a := &AnalyzedLayout{
		TypeName: s.TypedefName(),
		index:    make(map[string]int, s.NumField()),
	}

	// Phase 1: Build regions from fields
	offset := 0
	for _, field := range s.Fields() {
		region, err := buildRegion(field, offset, registry)
		if err != nil {
			a.Errors = append(a.Errors, fmt.Sprintf("%s: %v", field.Name, err))
			continue
		}
		a.index[field.Name] = len(a.Regions)
		a.Regions = append(a.Regions, region)
		offset = region.Boundary
	}
	a.Size = offset

	if len(a.Errors) > 0 {
		return a, fmt.Errorf("layout of %s has %d errors: %s", s.Name(), len(a.Errors), a.Errors[0])
	}

	// Phase 2: Cross-check against the registry
	if size, err := registry.SizeOf(s); err != nil {
		a.Errors = append(a.Errors, err.Error())
		return a, err
	} else if size != a.Size {
		err := fmt.Errorf("size mismatch for %s: regions cover %d bytes, registry has %d",
			s.Name(), a.Size, size)
		a.Errors = append(a.Errors, err.Error())
		return a, err
	}

	// Phase 3: Detect collisions
	detectCollisions(a)
	if len(a.Errors) > 0 {
		return a, fmt.Errorf("layout of %s has %d errors: %s", s.Name(), len(a.Errors), a.Errors[0])
	}

	return a, nil
}

func buildRegion(field schema.Field, offset int, registry *TypeRegistry) (Region, error) {
	size, err := registry.SizeOf(field.Type)
	if err != nil {
		return Region{}, fmt.Errorf("cannot determine size: %w", err)
	}

	r := Region{
		Kind:     InlineRegion,
		Start:    offset,
		Boundary: offset + size,
		Field:    field,
	}
	switch field.Type.(type) {
	case schema.BufferType, schema.PointerType:
		r.Kind = SlotRegion
	}
	return r, nil
}

func detectCollisions(a *AnalyzedLayout) {
	// Regions must tile the struct without gaps or overlap
	for i := 0; i < len(a.Regions)-1; i++ {
		r1 := a.Regions[i]
		r2 := a.Regions[i+1]

		if r1.Boundary > r2.Start {
			a.Errors = append(a.Errors,
				fmt.Sprintf("collision: %s [%d, %d) overlaps %s [%d, %d)",
					r1.Field.Name, r1.Start, r1.Boundary,
					r2.Field.Name, r2.Start, r2.Boundary))
		} else if r1.Boundary < r2.Start {
			a.Errors = append(a.Errors,
				fmt.Sprintf("gap: %d bytes between %s and %s",
					r2.Start-r1.Boundary, r1.Field.Name, r2.Field.Name))
		}
	}
}

// Region returns the region of the named field
func (a *AnalyzedLayout) Region(name string) (Region, bool) {
	i, ok := a.index[name]
	if !ok {
		return Region{}, false
	}
	return a.Regions[i], true
}

// Slots returns the buffer and pointer regions in declaration order
func (a *AnalyzedLayout) Slots() []Region {
	var out []Region
	for _, r := range a.Regions {
		if r.Kind == SlotRegion {
			out = append(out, r)
		}
	}
	return out
}

// IsValid returns true if layout has no errors
func (a *AnalyzedLayout) IsValid() bool {
	return len(a.Errors) == 0
}
