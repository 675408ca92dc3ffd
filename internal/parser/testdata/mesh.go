package testdata

// Vert is a single vertex
//
// @teric typedef=vert_t
type Vert struct {
	Co [3]float32 `teric:"name=co"`
}

// @teric typedef=mesh_t root
type Mesh struct {
	Strength float32  `teric:"name=strength,default=1.0"`
	Label    [8]byte  `teric:"name=label,string"`
	Verts    []Vert   `teric:"name=verts,align=4"`
	Name     string   `teric:"name=name"`
	Active   *Vert    `teric:"name=active"`
	Cache    []uint64 `teric:"-"`
}

// No annotation - should be skipped
type Ignored struct {
	Field uint32
}

type (
	// @teric
	Node struct {
		Value    int32
		Parent   *Node
		Children []Node
	}
)
