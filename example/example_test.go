package example

import (
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexhholmes/teric/internal/analyzer"
	"github.com/alexhholmes/teric/internal/codegen"
	"github.com/alexhholmes/teric/internal/config"
	"github.com/alexhholmes/teric/internal/document"
	"github.com/alexhholmes/teric/internal/parser"
	"github.com/alexhholmes/teric/internal/schema"
	"github.com/alexhholmes/teric/internal/serialize"
	"github.com/alexhholmes/teric/internal/view"
)

func loadPackage(t *testing.T) *parser.Package {
	t.Helper()
	pkg, err := parser.LoadFile("mesh.go")
	require.NoError(t, err)
	return pkg
}

func loadDocument(t *testing.T, root *schema.Struct, path string) *schema.Instance {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	format, err := document.FormatOf(path)
	require.NoError(t, err)
	inst, err := document.Load(data, format, root)
	require.NoError(t, err)
	return inst
}

func TestSchemaSizes(t *testing.T) {
	pkg := loadPackage(t)

	for name, want := range map[string]int{
		"Vert":      12,
		"Mesh":      44, // strength 4, label 16, verts 8, faces 8, name 4, active 4
		"SceneNode": 84, // id 4, matrix 64, mesh 4, parent 4, children 8
		"Scene":     92,
	} {
		s, err := pkg.Lookup(name)
		require.NoError(t, err)
		size, err := analyzer.SizeOf(s)
		require.NoError(t, err)
		assert.Equal(t, want, size, name)
	}

	root, err := pkg.RootStruct("")
	require.NoError(t, err)
	assert.Equal(t, "my_struct", root.TypedefName())
}

func TestCube(t *testing.T) {
	pkg := loadPackage(t)
	mesh, err := pkg.RootStruct("")
	require.NoError(t, err)

	inst := loadDocument(t, mesh, "testdata/cube.yaml")
	blob, err := serialize.Serialize(inst)
	require.NoError(t, err)

	v, err := view.Open(blob, mesh)
	require.NoError(t, err)

	strength, err := v.Atom("strength")
	require.NoError(t, err)
	assert.Equal(t, 1.0, strength.Float())

	label, err := v.String("label")
	require.NoError(t, err)
	assert.Equal(t, "cube", label)

	verts, err := v.Buffer("verts")
	require.NoError(t, err)
	assert.Equal(t, 4, verts.Len())
	assert.Zero(t, verts.Offset()%4)

	faces, err := v.Buffer("faces")
	require.NoError(t, err)
	assert.Equal(t, 6, faces.Len())

	active, err := v.Pointer("active")
	require.NoError(t, err)
	co, err := active.Array("co")
	require.NoError(t, err)
	x, err := co.Atom(0)
	require.NoError(t, err)
	y, err := co.Atom(1)
	require.NoError(t, err)
	assert.Equal(t, 1.0, x.Float())
	assert.Equal(t, 1.0, y.Float())
}

func TestCubeHeader(t *testing.T) {
	pkg := loadPackage(t)
	mesh, err := pkg.RootStruct("")
	require.NoError(t, err)

	header, err := codegen.NewGenerator(codegen.DefaultOptions()).Generate(mesh)
	require.NoError(t, err)

	for _, want := range []string{
		"#ifndef MY_STRUCT_H",
		"typedef struct my_struct my_struct;",
		"typedef struct my_vert my_vert;",
		"_Static_assert(sizeof(my_struct) == 44",
		"_Static_assert(sizeof(my_vert) == 12",
		"uint32_t verts_offset;",
		"uint32_t verts_count;",
		"int32_t active_offset;",
	} {
		assert.Contains(t, header, want)
	}
	assert.Less(t, strings.Index(header, "struct my_vert\n{"), strings.Index(header, "struct my_struct\n{"),
		"vertex body precedes the mesh body")
}

func TestScene(t *testing.T) {
	pkg := loadPackage(t)
	scene, err := pkg.Lookup("Scene")
	require.NoError(t, err)

	inst := loadDocument(t, scene, "testdata/scene.json")

	// Strict serialization refuses the unset pointers
	_, err = serialize.Serialize(inst)
	require.Error(t, err)

	blob, err := serialize.New(serialize.WithUnsetPointers(serialize.PolicyZero)).Serialize(inst)
	require.NoError(t, err)

	decoded, err := view.Decode(blob, scene)
	require.NoError(t, err)

	meshes := decoded.Buffer("meshes")
	require.Equal(t, 2, meshes.Len())
	assert.Equal(t, 0.5, meshes.Index(0).(*schema.Instance).Atom("strength").Float())
	assert.Equal(t, 1.0, meshes.Index(1).(*schema.Instance).Atom("strength").Float())

	root := decoded.Struct("root")
	children := root.Buffer("children")
	require.Equal(t, 2, children.Len())
	for i := 0; i < children.Len(); i++ {
		child := children.Index(i).(*schema.Instance)
		assert.Same(t, root, child.Pointer("parent").Target())
		assert.Same(t, meshes.Index(i), child.Pointer("mesh").Target())
		assert.False(t, child.Pointer("mesh").Target().Pointer("active").IsSet())
	}

	// An unset pointer to the holder's own type reads back as a self
	// reference; both write the same zero delta.
	assert.Same(t, root, root.Pointer("parent").Target())
	assert.False(t, root.Pointer("mesh").IsSet())

	again, err := serialize.New(serialize.WithUnsetPointers(serialize.PolicyZero)).Serialize(decoded)
	require.NoError(t, err)
	assert.Equal(t, blob, again)
}

func TestConfig(t *testing.T) {
	cfg, err := config.Load("testdata/teric.yaml")
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "Mesh", cfg.Root)
	assert.Equal(t, "MESH_INLINE", cfg.HeaderOptions().InlineMacro)
}
