package serialize

import (
	"encoding/binary"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/alexhholmes/teric/internal/analyzer"
	terr "github.com/alexhholmes/teric/internal/errors"
	"github.com/alexhholmes/teric/internal/schema"
)

func u32(b []byte, at int) uint32 { return binary.LittleEndian.Uint32(b[at:]) }
func i32(b []byte, at int) int32  { return int32(binary.LittleEndian.Uint32(b[at:])) }

func TestEmptyStringBuffer(t *testing.T) {
	s := schema.NewStruct("Named").StringBuffer("name").MustSeal()
	inst := s.MustNew()
	require.NoError(t, inst.Buffer("name").SetString(""))

	blob, err := Serialize(inst)
	require.NoError(t, err)

	// One offset slot pointing at a lone terminator
	assert.Equal(t, []byte{4, 0, 0, 0, 0}, blob)
}

func TestStringBuffer(t *testing.T) {
	s := schema.NewStruct("Named").
		Atom("id", schema.Uint16).
		StringBuffer("name").
		MustSeal()
	inst := s.MustNew()
	require.NoError(t, inst.Set("id", 7))
	require.NoError(t, inst.Set("name", "cube"))

	blob, err := Serialize(inst)
	require.NoError(t, err)

	assert.Equal(t, []byte{7, 0, 6, 0, 0, 0, 'c', 'u', 'b', 'e', 0}, blob)
}

func TestCountedBuffer(t *testing.T) {
	s := schema.NewStruct("Values").Buffer("vals", schema.AtomOf(schema.Uint32)).MustSeal()
	inst := s.MustNew()
	require.NoError(t, inst.Buffer("vals").Push(1))
	require.NoError(t, inst.Buffer("vals").Push(2))

	blob, err := Serialize(inst)
	require.NoError(t, err)

	require.Len(t, blob, 8+8)
	assert.Equal(t, uint32(8), u32(blob, 0))
	assert.Equal(t, uint32(2), u32(blob, 4))
	assert.Equal(t, uint32(1), u32(blob, 8))
	assert.Equal(t, uint32(2), u32(blob, 12))
}

func TestAtomsAndArrays(t *testing.T) {
	s := schema.NewStruct("Mixed").
		Atom("a", schema.Int8).
		Atom("b", schema.Uint16).
		Atom("f", schema.Float32).
		FixedString("name", 6).
		Field("grid", schema.ArrayOf(schema.AtomOf(schema.Uint8), 2, 2)).
		MustSeal()
	inst := s.MustNew()
	require.NoError(t, inst.Set("a", -1))
	require.NoError(t, inst.Set("b", 0x0102))
	require.NoError(t, inst.Set("f", 1.0))
	require.NoError(t, inst.Set("name", "abc"))
	require.NoError(t, inst.Set("grid", [][]int{{1, 2}, {3, 4}}))

	blob, err := Serialize(inst)
	require.NoError(t, err)

	want := []byte{
		0xff,
		0x02, 0x01,
		0x00, 0x00, 0x80, 0x3f,
		'a', 'b', 'c', 0, 0, 0,
		1, 2, 3, 4,
	}
	assert.Equal(t, want, blob)
}

func pointerGraph(t *testing.T, bFirst bool) (*schema.Instance, *schema.Struct) {
	t.Helper()
	b := schema.NewStruct("B").Atom("v", schema.Uint32).MustSeal()
	a := schema.NewStruct("A").Pointer("p", b).Atom("id", schema.Uint32).MustSeal()

	root := schema.NewStruct("Root")
	if bFirst {
		root.Buffer("bs", b).Buffer("as", a)
	} else {
		root.Buffer("as", a).Buffer("bs", b)
	}
	root.MustSeal()

	inst := root.MustNew()
	bi, err := inst.Buffer("bs").PushNew()
	require.NoError(t, err)
	require.NoError(t, bi.Set("v", 99))
	ai, err := inst.Buffer("as").PushNew()
	require.NoError(t, err)
	require.NoError(t, ai.Pointer("p").Set(bi))
	return inst, root
}

func TestPointerForward(t *testing.T) {
	inst, _ := pointerGraph(t, false)

	blob, err := Serialize(inst)
	require.NoError(t, err)

	// Root inline [0, 16), A at 16, B at 24
	assert.Equal(t, uint32(16), u32(blob, 0))
	assert.Equal(t, uint32(24), u32(blob, 8))
	delta := i32(blob, 16)
	assert.Equal(t, int32(8), delta)
	assert.Equal(t, uint32(99), u32(blob, 16+int(delta)))
}

func TestPointerBackward(t *testing.T) {
	inst, _ := pointerGraph(t, true)

	blob, err := Serialize(inst)
	require.NoError(t, err)

	// Root inline [0, 16), B at 16, A at 20
	assert.Equal(t, uint32(16), u32(blob, 0))
	assert.Equal(t, uint32(20), u32(blob, 8))
	delta := i32(blob, 20)
	assert.Equal(t, int32(-4), delta)
	assert.Equal(t, uint32(99), u32(blob, 20+int(delta)))
}

func TestBreadthFirstLevels(t *testing.T) {
	outer := schema.NewStruct("Outer").Buffer("inner", schema.AtomOf(schema.Uint8)).MustSeal()
	root := schema.NewStruct("Root").
		Buffer("outer", outer).
		Buffer("tail", schema.AtomOf(schema.Uint8)).
		MustSeal()

	inst := root.MustNew()
	o, err := inst.Buffer("outer").PushNew()
	require.NoError(t, err)
	require.NoError(t, o.Set("inner", []int{1, 2, 3}))
	require.NoError(t, inst.Set("tail", []int{0xaa, 0xbb}))

	blob, stats, err := New().SerializeStats(inst)
	require.NoError(t, err)

	assert.Equal(t, []int{2, 1}, stats.Levels)

	outerStart := int(u32(blob, 0))
	tailStart := int(u32(blob, 8))
	tailEnd := tailStart + int(u32(blob, 12))
	innerStart := outerStart + int(u32(blob, outerStart))

	assert.Equal(t, 16, outerStart)
	assert.Equal(t, 24, tailStart)
	assert.GreaterOrEqual(t, innerStart, tailEnd, "second-level payload must follow every first-level payload")
	assert.Equal(t, []byte{1, 2, 3}, blob[innerStart:innerStart+3])
	assert.Len(t, blob, 29)
}

func TestAlignment(t *testing.T) {
	s := schema.NewStruct("Aligned").
		Atom("tag", schema.Uint8).
		Buffer("data", schema.AtomOf(schema.Uint32), schema.Align(8)).
		Buffer("more", schema.AtomOf(schema.Uint16), schema.Align(16)).
		MustSeal()
	inst := s.MustNew()
	require.NoError(t, inst.Set("data", []int{7}))
	require.NoError(t, inst.Set("more", []int{1, 2}))

	blob, stats, err := New().SerializeStats(inst)
	require.NoError(t, err)

	data := int(u32(blob, 1))
	more := int(u32(blob, 9))
	assert.Zero(t, data%8)
	assert.Zero(t, more%16)
	assert.Equal(t, 24, data)
	assert.Equal(t, 32, more)
	assert.Equal(t, 7+4, stats.Padding)
	for _, b := range blob[17:24] {
		assert.Zero(t, b, "padding must be zero")
	}
}

func TestSelfReferentialTree(t *testing.T) {
	node := schema.NewStruct("Node")
	node.Atom("value", schema.Int32).
		Pointer("parent", node).
		Buffer("children", node)
	node.MustSeal()

	root := node.MustNew()
	require.NoError(t, root.Set("value", 1))
	require.NoError(t, root.Pointer("parent").Set(root))
	child, err := root.Buffer("children").PushNew()
	require.NoError(t, err)
	require.NoError(t, child.Set("value", 2))
	require.NoError(t, child.Pointer("parent").Set(root))

	blob, err := Serialize(root)
	require.NoError(t, err)

	// Root points at itself
	assert.Equal(t, int32(0), i32(blob, 4))

	childBase := int(u32(blob, 8))
	assert.Equal(t, 16, childBase)
	assert.Equal(t, uint32(1), u32(blob, 12))
	assert.Equal(t, int32(2), i32(blob, childBase))

	// Child points back at the root
	delta := i32(blob, childBase+4)
	assert.Equal(t, int32(-16), delta)
	assert.Equal(t, 0, childBase+int(delta))

	// The child's empty children buffer is placed after its frame
	assert.Equal(t, uint32(16), u32(blob, childBase+8))
	assert.Equal(t, uint32(0), u32(blob, childBase+12))
	assert.Len(t, blob, 32)
}

func TestBufferCycleRejected(t *testing.T) {
	node := schema.NewStruct("Node")
	node.Atom("v", schema.Uint8).Buffer("kids", node)
	node.MustSeal()

	root := node.MustNew()
	require.NoError(t, root.Buffer("kids").Push(root))

	_, err := Serialize(root)
	assert.True(t, errors.Is(err, terr.ErrInvalidSchema), "got %v", err)
	assert.Contains(t, err.Error(), "contains itself through a buffer")

	// Deeper cycle: the grandchild holds the root
	root = node.MustNew()
	child, err := root.Buffer("kids").PushNew()
	require.NoError(t, err)
	require.NoError(t, child.Buffer("kids").Push(root))
	_, err = Serialize(root)
	assert.True(t, errors.Is(err, terr.ErrInvalidSchema), "got %v", err)
}

func TestSharedBufferElement(t *testing.T) {
	node := schema.NewStruct("Node")
	node.Atom("v", schema.Uint8).Buffer("kids", node)
	node.MustSeal()

	root := node.MustNew()
	leaf := node.MustNew()
	require.NoError(t, leaf.Set("v", 9))
	child, err := root.Buffer("kids").PushNew()
	require.NoError(t, err)
	require.NoError(t, root.Buffer("kids").Push(leaf))
	require.NoError(t, child.Buffer("kids").Push(leaf))

	// A sibling or cousin is not an ancestor
	blob, err := Serialize(root)
	require.NoError(t, err)
	assert.NotEmpty(t, blob)
}

func TestNestedFramesAreSelfRelative(t *testing.T) {
	inner := schema.NewStruct("Inner").
		Atom("x", schema.Uint8).
		Buffer("items", schema.AtomOf(schema.Uint8)).
		MustSeal()
	outer := schema.NewStruct("Outer").
		Atom("tag", schema.Uint32).
		Nested("inner", inner).
		Pointer("to_inner", inner).
		MustSeal()

	inst := outer.MustNew()
	in := inst.Struct("inner")
	require.NoError(t, in.Set("items", []int{5}))
	require.NoError(t, inst.Pointer("to_inner").Set(in))

	blob, err := Serialize(inst)
	require.NoError(t, err)

	// Outer inline: tag [0,4), inner [4,13), to_inner [13,17)
	innerBase := 4
	items := innerBase + int(u32(blob, innerBase+1))
	assert.Equal(t, 17, items)
	assert.Equal(t, byte(5), blob[items])
	assert.Equal(t, int32(4), i32(blob, 13))
}

func TestUnsetPointer(t *testing.T) {
	target := schema.NewStruct("Target").Atom("v", schema.Uint8).MustSeal()
	s := schema.NewStruct("Holder").Atom("v", schema.Uint8).Pointer("p", target).MustSeal()

	inst := s.MustNew()
	require.NoError(t, inst.Set("v", 3))

	_, err := Serialize(inst)
	require.Error(t, err)
	assert.True(t, errors.Is(err, terr.ErrUnresolvedPointer), "got %v", err)
	assert.Contains(t, err.Error(), "Holder.p")

	blob, stats, err := New(WithUnsetPointers(PolicyZero)).SerializeStats(inst)
	require.NoError(t, err)
	assert.Equal(t, []byte{3, 0, 0, 0, 0}, blob)
	assert.Equal(t, 1, stats.Unset)
}

func TestPointerOutsideGraph(t *testing.T) {
	target := schema.NewStruct("Target").Atom("v", schema.Uint8).MustSeal()
	s := schema.NewStruct("Holder").Pointer("p", target).MustSeal()

	inst := s.MustNew()
	require.NoError(t, inst.Pointer("p").Set(target.MustNew()))

	_, err := Serialize(inst)
	require.Error(t, err)
	assert.True(t, errors.Is(err, terr.ErrUnresolvedPointer), "got %v", err)
	assert.Contains(t, err.Error(), "not part of the serialized graph")
}

func TestNilRoot(t *testing.T) {
	_, err := Serialize(nil)
	assert.True(t, errors.Is(err, terr.ErrInvalidSchema), "got %v", err)
}

func meshInstance(t *testing.T) *schema.Instance {
	t.Helper()
	vert := schema.NewStruct("Vert").
		Array("co", schema.AtomOf(schema.Float32), 3).
		MustSeal()
	mesh := schema.NewStruct("Mesh").
		Atom("strength", schema.Float32, schema.Default(1.0)).
		FixedString("label", 8).
		Buffer("verts", vert, schema.Align(4)).
		StringBuffer("name").
		Pointer("active", vert).
		MustSeal()

	inst := mesh.MustNew()
	require.NoError(t, inst.Set("label", "cube"))
	require.NoError(t, inst.Set("name", "default cube"))
	for i := 0; i < 8; i++ {
		v, err := inst.Buffer("verts").PushNew()
		require.NoError(t, err)
		require.NoError(t, v.Set("co", []float64{float64(i), float64(i * 2), float64(i * 3)}))
	}
	active := inst.Buffer("verts").Index(3).(*schema.Instance)
	require.NoError(t, inst.Pointer("active").Set(active))
	return inst
}

func TestBufferRoundTrip(t *testing.T) {
	inst := meshInstance(t)

	blob, err := Serialize(inst)
	require.NoError(t, err)

	layout, err := analyzer.Analyze(inst.Schema(), nil)
	require.NoError(t, err)
	verts, _ := layout.Region("verts")

	off := int(u32(blob, verts.Start))
	count := int(u32(blob, verts.Start+4))
	require.Equal(t, 8, count)

	for i := 0; i < count; i++ {
		at := off + i*12
		for j := 0; j < 3; j++ {
			got := schema.DecodeAtom(schema.Float32, blob[at+j*4:]).Float()
			assert.Equal(t, float64(i*(j+1)), got, "vert %d co[%d]", i, j)
		}
	}

	active, _ := layout.Region("active")
	delta := int(i32(blob, active.Start))
	assert.Equal(t, off+3*12, delta)
}

func TestInlineSizeMatchesDeclaredSize(t *testing.T) {
	inst := meshInstance(t)

	_, stats, err := New().SerializeStats(inst)
	require.NoError(t, err)

	size, err := analyzer.SizeOf(inst.Schema())
	require.NoError(t, err)
	assert.Equal(t, size, stats.Inline)
	assert.Equal(t, 4+8+8+4+4, stats.Inline)
}

func TestDeterministic(t *testing.T) {
	inst := meshInstance(t)
	s := New()

	first, err := s.Serialize(inst)
	require.NoError(t, err)
	second, err := s.Serialize(inst)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestConcurrentSerialize(t *testing.T) {
	inst := meshInstance(t)
	s := New()
	want, err := s.Serialize(inst)
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([][]byte, 16)
	errs := make([]error, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = s.Serialize(inst)
		}(i)
	}
	wg.Wait()

	for i := range results {
		require.NoError(t, errs[i])
		assert.Equal(t, want, results[i])
	}
}

func TestStatsLogged(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	s := New(WithLogger(zap.New(core)), WithSizeHint(128))

	blob, stats, err := s.SerializeStats(meshInstance(t))
	require.NoError(t, err)

	assert.Equal(t, len(blob), stats.Bytes)
	assert.Equal(t, 2, stats.Buffers)
	assert.Equal(t, 1, stats.Pointers)
	assert.Equal(t, 1+8, stats.Structs)

	entries := logs.FilterMessage("serialized").All()
	require.Len(t, entries, 1)
	assert.Equal(t, int64(stats.Bytes), entries[0].ContextMap()["bytes"])
}
