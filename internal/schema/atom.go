package schema

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"

	terr "github.com/alexhholmes/teric/internal/errors"
)

// AtomKind identifies a fixed-width scalar
type AtomKind uint8

const (
	Int8 AtomKind = iota + 1
	Int16
	Int32
	Int64
	Uint8
	Uint16
	Uint32
	Uint64
	Float32
	Float64
	Char
)

var atomInfo = [...]struct {
	name  string
	cname string
	size  int
}{
	Int8:    {"int8", "int8_t", 1},
	Int16:   {"int16", "int16_t", 2},
	Int32:   {"int32", "int32_t", 4},
	Int64:   {"int64", "int64_t", 8},
	Uint8:   {"uint8", "uint8_t", 1},
	Uint16:  {"uint16", "uint16_t", 2},
	Uint32:  {"uint32", "uint32_t", 4},
	Uint64:  {"uint64", "uint64_t", 8},
	Float32: {"float32", "float", 4},
	Float64: {"float64", "double", 8},
	Char:    {"char", "char", 1},
}

// Valid reports whether k is one of the declared kinds
func (k AtomKind) Valid() bool {
	return k >= Int8 && k <= Char
}

// Size returns the encoded width in bytes
func (k AtomKind) Size() int {
	if !k.Valid() {
		return 0
	}
	return atomInfo[k].size
}

// CName returns the native primitive type name
func (k AtomKind) CName() string {
	if !k.Valid() {
		return "void"
	}
	return atomInfo[k].cname
}

func (k AtomKind) String() string {
	if !k.Valid() {
		return fmt.Sprintf("AtomKind(%d)", uint8(k))
	}
	return atomInfo[k].name
}

// IsFloat reports whether k is a floating-point kind
func (k AtomKind) IsFloat() bool {
	return k == Float32 || k == Float64
}

// IsSigned reports whether k is a signed integer kind. Char is treated as
// signed, matching the common C ABI.
func (k AtomKind) IsSigned() bool {
	switch k {
	case Int8, Int16, Int32, Int64, Char:
		return true
	}
	return false
}

// IsByte reports whether k is one byte wide and may hold string data
func (k AtomKind) IsByte() bool {
	return k == Char || k == Int8 || k == Uint8
}

// ParseAtomKind resolves Go and C primitive names
//
//	"uint32", "uint32_t" → Uint32
//	"byte"               → Uint8
//	"float", "float32"   → Float32
func ParseAtomKind(name string) (AtomKind, bool) {
	switch name {
	case "byte":
		return Uint8, true
	case "rune":
		return Int32, true
	case "float":
		return Float32, true
	case "double":
		return Float64, true
	}
	name = strings.TrimSuffix(name, "_t")
	for k := Int8; k <= Char; k++ {
		if atomInfo[k].name == name {
			return k, true
		}
	}
	return 0, false
}

// Atom is a fixed-width scalar value. The value is held as its encoded bit
// pattern, truncated to the kind's width.
type Atom struct {
	kind AtomKind
	bits uint64
}

// NewAtom returns a zero-valued atom of the given kind
func NewAtom(kind AtomKind) *Atom {
	return &Atom{kind: kind}
}

func (a *Atom) isValue() {}

// Type returns the atom's schema type
func (a *Atom) Type() Type { return AtomType{Kind: a.kind} }

// Kind returns the atom kind
func (a *Atom) Kind() AtomKind { return a.kind }

// Duplicate returns an independent copy
func (a *Atom) Duplicate() Value {
	c := *a
	return &c
}

// Set stores v, failing with TypeMismatch when the kind cannot represent it
func (a *Atom) Set(v any) error {
	bits, ok := convertAtom(a.kind, v)
	if !ok {
		return terr.TypeMismatch(terr.PhasePush, nil, a.kind.CName(), v)
	}
	a.bits = bits
	return nil
}

// Int returns the value as a signed integer
func (a *Atom) Int() int64 {
	switch a.kind {
	case Int8, Char:
		return int64(int8(a.bits))
	case Int16:
		return int64(int16(a.bits))
	case Int32:
		return int64(int32(a.bits))
	case Float32, Float64:
		return int64(a.Float())
	}
	return int64(a.bits)
}

// Uint returns the value as an unsigned integer
func (a *Atom) Uint() uint64 {
	if a.kind.IsSigned() || a.kind.IsFloat() {
		return uint64(a.Int())
	}
	return a.bits
}

// Float returns the value as a float64
func (a *Atom) Float() float64 {
	switch a.kind {
	case Float32:
		return float64(math.Float32frombits(uint32(a.bits)))
	case Float64:
		return math.Float64frombits(a.bits)
	}
	if a.kind.IsSigned() {
		return float64(a.Int())
	}
	return float64(a.bits)
}

// Interface returns the value as the matching Go type
func (a *Atom) Interface() any {
	switch a.kind {
	case Int8:
		return int8(a.bits)
	case Int16:
		return int16(a.bits)
	case Int32:
		return int32(a.bits)
	case Int64:
		return int64(a.bits)
	case Uint8:
		return uint8(a.bits)
	case Uint16:
		return uint16(a.bits)
	case Uint32:
		return uint32(a.bits)
	case Uint64:
		return a.bits
	case Float32:
		return math.Float32frombits(uint32(a.bits))
	case Float64:
		return math.Float64frombits(a.bits)
	case Char:
		return byte(a.bits)
	}
	return nil
}

// AppendTo appends the little-endian encoding to dst
func (a *Atom) AppendTo(dst []byte) []byte {
	switch a.kind.Size() {
	case 1:
		return append(dst, byte(a.bits))
	case 2:
		return binary.LittleEndian.AppendUint16(dst, uint16(a.bits))
	case 4:
		return binary.LittleEndian.AppendUint32(dst, uint32(a.bits))
	case 8:
		return binary.LittleEndian.AppendUint64(dst, a.bits)
	}
	return dst
}

// DecodeAtom reads an atom of the given kind from the start of b
func DecodeAtom(kind AtomKind, b []byte) *Atom {
	a := &Atom{kind: kind}
	switch kind.Size() {
	case 1:
		a.bits = uint64(b[0])
	case 2:
		a.bits = uint64(binary.LittleEndian.Uint16(b))
	case 4:
		a.bits = uint64(binary.LittleEndian.Uint32(b))
	case 8:
		a.bits = binary.LittleEndian.Uint64(b)
	}
	return a
}

func (a *Atom) String() string {
	if a.kind == Char {
		c := byte(a.bits)
		if c >= 0x20 && c < 0x7f {
			return fmt.Sprintf("'%c'", c)
		}
		return fmt.Sprintf("'\\x%02x'", c)
	}
	return fmt.Sprint(a.Interface())
}

// convertAtom returns the encoded bits of v for kind, or false when v is
// not a number the kind can hold.
func convertAtom(kind AtomKind, v any) (uint64, bool) {
	switch x := v.(type) {
	case *Atom:
		if x.kind.IsFloat() {
			return fromFloat(kind, x.Float())
		}
		if x.kind.IsSigned() {
			return fromInt(kind, x.Int())
		}
		return fromUint(kind, x.bits)
	case int:
		return fromInt(kind, int64(x))
	case int8:
		return fromInt(kind, int64(x))
	case int16:
		return fromInt(kind, int64(x))
	case int32:
		return fromInt(kind, int64(x))
	case int64:
		return fromInt(kind, x)
	case uint:
		return fromUint(kind, uint64(x))
	case uint8:
		return fromUint(kind, uint64(x))
	case uint16:
		return fromUint(kind, uint64(x))
	case uint32:
		return fromUint(kind, uint64(x))
	case uint64:
		return fromUint(kind, x)
	case float32:
		return fromFloat(kind, float64(x))
	case float64:
		return fromFloat(kind, x)
	case string:
		// A one-character string is accepted for byte-wide kinds.
		if kind.IsByte() && len(x) == 1 {
			return uint64(x[0]), true
		}
	}
	return 0, false
}

func intRange(kind AtomKind) (int64, uint64) {
	switch kind {
	case Int8:
		return math.MinInt8, math.MaxInt8
	case Int16:
		return math.MinInt16, math.MaxInt16
	case Int32:
		return math.MinInt32, math.MaxInt32
	case Int64:
		return math.MinInt64, math.MaxInt64
	case Uint8:
		return 0, math.MaxUint8
	case Uint16:
		return 0, math.MaxUint16
	case Uint32:
		return 0, math.MaxUint32
	case Uint64:
		return 0, math.MaxUint64
	case Char:
		// Both signed and unsigned byte values are accepted.
		return math.MinInt8, math.MaxUint8
	}
	return 0, 0
}

func mask(kind AtomKind, bits uint64) uint64 {
	if kind.Size() == 8 {
		return bits
	}
	return bits & (1<<(8*kind.Size()) - 1)
}

func fromInt(kind AtomKind, x int64) (uint64, bool) {
	switch kind {
	case Float32:
		return uint64(math.Float32bits(float32(x))), true
	case Float64:
		return math.Float64bits(float64(x)), true
	}
	lo, hi := intRange(kind)
	if x < lo || (x > 0 && uint64(x) > hi) {
		return 0, false
	}
	return mask(kind, uint64(x)), true
}

func fromUint(kind AtomKind, x uint64) (uint64, bool) {
	switch kind {
	case Float32:
		return uint64(math.Float32bits(float32(x))), true
	case Float64:
		return math.Float64bits(float64(x)), true
	}
	_, hi := intRange(kind)
	if x > hi {
		return 0, false
	}
	return mask(kind, x), true
}

func fromFloat(kind AtomKind, f float64) (uint64, bool) {
	switch kind {
	case Float32:
		if !math.IsInf(f, 0) && !math.IsNaN(f) && math.Abs(f) > math.MaxFloat32 {
			return 0, false
		}
		return uint64(math.Float32bits(float32(f))), true
	case Float64:
		return math.Float64bits(f), true
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, false
	}
	if f < 0 {
		if f < math.MinInt64 {
			return 0, false
		}
		return fromInt(kind, int64(f))
	}
	if f >= math.MaxUint64 {
		return 0, false
	}
	return fromUint(kind, uint64(f))
}
