// Package example holds annotated types used by the teric command:
//
//	teric -schema example/mesh.go -data example/testdata/cube.yaml \
//		-blob cube.bin -header mesh.h
package example

// Vert is one mesh vertex
//
// @teric typedef=my_vert
type Vert struct {
	Co [3]float32 `teric:"name=co"`
}

// Mesh is a named vertex list with an optional selected vertex
//
// @teric typedef=my_struct root
type Mesh struct {
	Strength float32  `teric:"name=strength,default=1.0"`
	Label    [16]byte `teric:"name=label,string"`
	Verts    []Vert   `teric:"name=verts,align=4"`
	Faces    []uint16 `teric:"name=faces"`
	Name     string   `teric:"name=name"`
	Active   *Vert    `teric:"name=active"`
}

// SceneNode is a node of a scene graph. Children are stored out of line
// and point back at their parent.
//
// @teric typedef=scene_node
type SceneNode struct {
	ID       uint32        `teric:"name=id"`
	Matrix   [4][4]float32 `teric:"name=matrix"`
	Mesh     *Mesh         `teric:"name=mesh"`
	Parent   *SceneNode    `teric:"name=parent"`
	Children []SceneNode   `teric:"name=children"`
}

// Scene owns the meshes its nodes refer to
//
// @teric typedef=scene
type Scene struct {
	Meshes []Mesh    `teric:"name=meshes,align=8"`
	Root   SceneNode `teric:"name=root"`
}
