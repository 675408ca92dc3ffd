package schema

import (
	"fmt"
	"reflect"
	"sort"

	terr "github.com/alexhholmes/teric/internal/errors"
)

// assign converts a raw Go value into v in place
func assign(v Value, raw any, path []string) error {
	switch v := v.(type) {
	case *Atom:
		if err := v.Set(raw); err != nil {
			return withPath(err, path)
		}
		return nil

	case *Array:
		return assignArray(v, raw, path)

	case *Buffer:
		return assignBuffer(v, raw, path)

	case *Pointer:
		switch x := raw.(type) {
		case nil:
			v.Clear()
			return nil
		case *Instance:
			return withPath(v.Set(x), path)
		}
		return terr.TypeMismatch(terr.PhasePush, path, v.typ.String(), raw)

	case *Instance:
		return assignStruct(v, raw, path)
	}
	return terr.TypeMismatch(terr.PhasePush, path, fmt.Sprintf("%T", v), raw)
}

func assignArray(a *Array, raw any, path []string) error {
	switch x := raw.(type) {
	case string:
		if !a.typ.IsString {
			return terr.TypeMismatch(terr.PhasePush, path, a.typ.String(), raw)
		}
		return withPath(a.SetString(x), path)
	case *Array:
		if len(x.elems) != len(a.elems) {
			return terr.TypeMismatch(terr.PhasePush, path, a.typ.String(), x.typ.String())
		}
		for i, e := range x.elems {
			if err := assign(a.elems[i], e, appendPath(path, i)); err != nil {
				return err
			}
		}
		return nil
	}

	items, ok := sliceItems(raw)
	if !ok {
		// A scalar default fills every element.
		for i := range a.elems {
			if err := assign(a.elems[i], raw, appendPath(path, i)); err != nil {
				return err
			}
		}
		return nil
	}
	if len(items) > len(a.elems) {
		return terr.CapacityExceeded(terr.PhasePush, path, len(items), len(a.elems))
	}
	for i, item := range items {
		if err := assign(a.elems[i], item, appendPath(path, i)); err != nil {
			return err
		}
	}
	return nil
}

func assignBuffer(b *Buffer, raw any, path []string) error {
	if x, ok := raw.(*Buffer); ok {
		if x.typ.Elem != b.typ.Elem {
			return terr.TypeMismatch(terr.PhasePush, path, b.typ.String(), x.typ.String())
		}
		b.elems = x.Duplicate().(*Buffer).elems
		return nil
	}
	if s, ok := raw.(string); ok {
		return withPath(b.SetString(s), path)
	}
	items, ok := sliceItems(raw)
	if !ok {
		return terr.TypeMismatch(terr.PhasePush, path, b.typ.String(), raw)
	}
	b.Reset()
	for i, item := range items {
		if err := b.Push(item); err != nil {
			return withPath(err, appendPath(path, i))
		}
	}
	return nil
}

func assignStruct(inst *Instance, raw any, path []string) error {
	switch x := raw.(type) {
	case *Instance:
		if x.schema != inst.schema {
			return terr.TypeMismatch(terr.PhasePush, path, inst.schema.TypedefName(), x.schema.name)
		}
		for i, v := range x.values {
			inst.values[i] = v.Duplicate()
		}
		return nil
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			n, ok := inst.schema.index[k]
			if !ok {
				return terr.NotFound(terr.PhasePush, path, k)
			}
			if err := assign(inst.values[n], x[k], append(append([]string(nil), path...), k)); err != nil {
				return err
			}
		}
		return nil
	}
	return terr.TypeMismatch(terr.PhasePush, path, inst.schema.TypedefName(), raw)
}

// sliceItems returns the elements of any slice or array value
func sliceItems(raw any) ([]any, bool) {
	if items, ok := raw.([]any); ok {
		return items, true
	}
	rv := reflect.ValueOf(raw)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	items := make([]any, rv.Len())
	for i := range items {
		items[i] = rv.Index(i).Interface()
	}
	return items, true
}

func appendPath(path []string, i int) []string {
	return append(append([]string(nil), path...), fmt.Sprint(i))
}

// withPath attaches path to a structured error that has none
func withPath(err error, path []string) error {
	if e, ok := err.(*terr.Error); ok && len(e.Path) == 0 && len(path) > 0 {
		e.Path = path
	}
	return err
}
