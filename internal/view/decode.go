package view

import (
	"fmt"

	terr "github.com/alexhholmes/teric/internal/errors"
	"github.com/alexhholmes/teric/internal/schema"
)

// frameKey identifies a struct frame; a nested struct at offset zero shares
// its parent's base but never its schema.
type frameKey struct {
	base   int
	schema *schema.Struct
}

type pendingPointer struct {
	ptr    *schema.Pointer
	target frameKey
	owner  frameKey
	path   []string
}

type decoder struct {
	frames   map[frameKey]*schema.Instance
	pointers []pendingPointer
}

// Decode rebuilds an instance graph from blob. Buffer payloads become
// buffer elements and pointers are reattached to the decoded instance at
// their target frame. A zero delta resolves like any other delta; when no
// frame of the target type starts at the owner it is read as unset.
func Decode(blob []byte, root *schema.Struct) (*schema.Instance, error) {
	v, err := Open(blob, root)
	if err != nil {
		return nil, err
	}
	d := &decoder{frames: make(map[frameKey]*schema.Instance)}

	inst, err := root.New()
	if err != nil {
		return nil, err
	}
	if err := d.decodeStruct(v, inst); err != nil {
		return nil, err
	}

	for _, p := range d.pointers {
		target, ok := d.frames[p.target]
		if !ok {
			if p.target.base == p.owner.base {
				// Zero delta with no frame of the target type: written as unset
				continue
			}
			return nil, terr.UnresolvedPointer(terr.PhaseRead, p.path,
				fmt.Sprintf("no %s frame at offset %d", p.target.schema.Name(), p.target.base))
		}
		if err := p.ptr.Set(target); err != nil {
			return nil, err
		}
	}
	return inst, nil
}

func (d *decoder) decodeStruct(v *Struct, inst *schema.Instance) error {
	key := frameKey{base: v.base, schema: v.schema}
	d.frames[key] = inst

	for i, f := range v.schema.Fields() {
		if err := d.decodeField(v, inst.Value(i), f, key); err != nil {
			return err
		}
	}
	return nil
}

func (d *decoder) decodeField(v *Struct, value schema.Value, f schema.Field, owner frameKey) error {
	switch val := value.(type) {
	case *schema.Atom:
		a, err := v.Atom(f.Name)
		if err != nil {
			return err
		}
		return val.Set(a)

	case *schema.Instance:
		nested, err := v.Nested(f.Name)
		if err != nil {
			return err
		}
		return d.decodeStruct(nested, val)

	case *schema.Array:
		a, err := v.Array(f.Name)
		if err != nil {
			return err
		}
		return d.decodeArray(a, val)

	case *schema.Buffer:
		b, err := v.Buffer(f.Name)
		if err != nil {
			return err
		}
		return d.decodeBuffer(b, val)

	case *schema.Pointer:
		delta, err := v.Delta(f.Name)
		if err != nil {
			return err
		}
		d.pointers = append(d.pointers, pendingPointer{
			ptr:    val,
			target: frameKey{base: v.base + int(delta), schema: f.Type.(schema.PointerType).Target},
			owner:  owner,
			path:   v.sub(f.Name),
		})
	}
	return nil
}

func (d *decoder) decodeArray(a *Array, val *schema.Array) error {
	for i := 0; i < a.Len(); i++ {
		switch elem := val.Index(i).(type) {
		case *schema.Atom:
			x, err := a.Atom(i)
			if err != nil {
				return err
			}
			if err := elem.Set(x); err != nil {
				return err
			}
		case *schema.Instance:
			s, err := a.Struct(i)
			if err != nil {
				return err
			}
			if err := d.decodeStruct(s, elem); err != nil {
				return err
			}
		case *schema.Array:
			inner, err := a.Array(i)
			if err != nil {
				return err
			}
			if err := d.decodeArray(inner, elem); err != nil {
				return err
			}
		}
	}
	return nil
}

func (d *decoder) decodeBuffer(b *Buffer, val *schema.Buffer) error {
	val.Reset()
	if val.IsString() {
		return val.SetString(b.String())
	}
	for i := 0; i < b.Len(); i++ {
		switch b.typ.Elem.(type) {
		case schema.AtomType:
			x, err := b.Atom(i)
			if err != nil {
				return err
			}
			if err := val.Push(x); err != nil {
				return err
			}
		case *schema.Struct:
			s, err := b.Struct(i)
			if err != nil {
				return err
			}
			elem, err := val.PushNew()
			if err != nil {
				return err
			}
			if err := d.decodeStruct(s, elem); err != nil {
				return err
			}
		}
	}
	return nil
}
