package testdata

// @teric size=4096
type BadAnnotation struct {
	A uint32
}

// @teric
type BadTag struct {
	A uint32 `teric:"align=3"`
	B uint32 `teric:"bogus"`
}

// @teric
type Embedded struct {
	Node
}
