// Package document populates schema instances from JSON or YAML documents.
//
// Objects map to struct fields, lists to arrays and buffers, and strings
// to string fields. Any struct object may carry an "$id"; a pointer field
// holds the id of its target:
//
//	strength: 0.5
//	verts:
//	  - {$id: v0, co: [0, 0, 0]}
//	  - {$id: v1, co: [1, 0, 0]}
//	active: v1
//
// Pointers are resolved after the whole document is read, so they may
// refer forward or to the object that holds them.
package document

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	terr "github.com/alexhholmes/teric/internal/errors"
	"github.com/alexhholmes/teric/internal/schema"
)

// IDKey is the object key naming a struct for pointer references
const IDKey = "$id"

// Format selects the document syntax
type Format int

const (
	FormatJSON Format = iota
	FormatYAML
)

func (f Format) String() string {
	switch f {
	case FormatJSON:
		return "json"
	case FormatYAML:
		return "yaml"
	default:
		return fmt.Sprintf("Format(%d)", int(f))
	}
}

// ParseFormat resolves a format name or file extension
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(name, ".")) {
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	}
	return 0, fmt.Errorf("unknown document format: %q", name)
}

// FormatOf returns the format implied by a file name
func FormatOf(filename string) (Format, error) {
	return ParseFormat(filepath.Ext(filename))
}

// Load decodes data and populates a new instance of root
func Load(data []byte, format Format, root *schema.Struct) (*schema.Instance, error) {
	if root == nil {
		return nil, terr.New(terr.PhaseLoad, terr.KindInvalidSchema).
			Detail("root struct is nil").
			Build()
	}

	tree, err := decode(data, format)
	if err != nil {
		return nil, terr.New(terr.PhaseLoad, terr.KindTypeMismatch).
			Type(format.String()).
			Detail("malformed document").
			Cause(err).
			Build()
	}

	inst, err := root.New()
	if err != nil {
		return nil, err
	}

	l := &loader{ids: make(map[string]*schema.Instance)}
	if err := l.loadStruct(inst, tree, []string{root.Name()}); err != nil {
		return nil, err
	}
	if err := l.resolve(); err != nil {
		return nil, err
	}

	Logger().Debug("loaded",
		zap.String("root", root.Name()),
		zap.Stringer("format", format),
		zap.Int("ids", len(l.ids)),
		zap.Int("pointers", len(l.pointers)),
	)
	return inst, nil
}

func decode(data []byte, format Format) (any, error) {
	var tree any
	switch format {
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		if err := dec.Decode(&tree); err != nil {
			return nil, err
		}
		if _, err := dec.Token(); !errors.Is(err, io.EOF) {
			return nil, errors.New("trailing data after document")
		}
		return tree, nil

	case FormatYAML:
		if err := yaml.Unmarshal(data, &tree); err != nil {
			return nil, err
		}
		return normalize(tree), nil
	}
	return nil, fmt.Errorf("unknown format %s", format)
}

// normalize converts YAML maps with non-string keys into map[string]any
func normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, vv := range t {
			t[k] = normalize(vv)
		}
		return t
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, vv := range t {
			out[fmt.Sprint(k)] = normalize(vv)
		}
		return out
	case []any:
		for i := range t {
			t[i] = normalize(t[i])
		}
		return t
	}
	return v
}

type pendingPointer struct {
	ptr  *schema.Pointer
	id   string
	path []string
}

type loader struct {
	ids      map[string]*schema.Instance
	pointers []pendingPointer
}

func sub(path []string, name string) []string {
	return append(append([]string(nil), path...), name)
}

func index(path []string, i int) []string {
	return sub(path, strconv.Itoa(i))
}

func mismatch(path []string, typ string, value any) error {
	return terr.TypeMismatch(terr.PhaseLoad, path, typ, value)
}

// located moves an instance error into the load phase at path
func located(err error, path []string) error {
	var e *terr.Error
	if !errors.As(err, &e) {
		return err
	}
	out := *e
	out.Phase = terr.PhaseLoad
	if len(out.Path) == 0 {
		out.Path = path
	}
	return &out
}

func (l *loader) loadStruct(inst *schema.Instance, raw any, path []string) error {
	obj, ok := raw.(map[string]any)
	if !ok {
		return mismatch(path, inst.Schema().TypedefName(), raw)
	}

	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if k == IDKey {
			id, ok := obj[k].(string)
			if !ok || id == "" {
				return mismatch(sub(path, k), "string", obj[k])
			}
			if _, dup := l.ids[id]; dup {
				return terr.New(terr.PhaseLoad, terr.KindInvalidSchema).
					Path(sub(path, k)...).
					Value(id).
					Detail("duplicate id").
					Build()
			}
			l.ids[id] = inst
			continue
		}

		value, err := inst.Field(k)
		if err != nil {
			return terr.NotFound(terr.PhaseLoad, path, k)
		}
		if err := l.loadValue(value, obj[k], sub(path, k)); err != nil {
			return err
		}
	}
	return nil
}

func (l *loader) loadValue(value schema.Value, raw any, path []string) error {
	switch v := value.(type) {
	case *schema.Atom:
		return l.loadAtom(v, raw, path)

	case *schema.Instance:
		return l.loadStruct(v, raw, path)

	case *schema.Array:
		return l.loadArray(v, raw, path)

	case *schema.Buffer:
		return l.loadBuffer(v, raw, path)

	case *schema.Pointer:
		switch id := raw.(type) {
		case nil:
			v.Clear()
			return nil
		case string:
			l.pointers = append(l.pointers, pendingPointer{ptr: v, id: id, path: path})
			return nil
		}
		return mismatch(path, v.Type().String(), raw)
	}
	return mismatch(path, fmt.Sprintf("%T", value), raw)
}

func (l *loader) loadAtom(a *schema.Atom, raw any, path []string) error {
	n, err := number(raw)
	if err != nil {
		return mismatch(path, a.Kind().String(), raw)
	}
	if err := a.Set(n); err != nil {
		return located(err, path)
	}
	return nil
}

// number converts decoded scalars to values Atom.Set accepts
func number(raw any) (any, error) {
	switch x := raw.(type) {
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i, nil
		}
		if u, err := strconv.ParseUint(string(x), 10, 64); err == nil {
			return u, nil
		}
		return x.Float64()
	case int, int64, uint64, float64, string:
		return x, nil
	}
	return nil, fmt.Errorf("not a number: %v", raw)
}

func (l *loader) loadArray(a *schema.Array, raw any, path []string) error {
	if s, ok := raw.(string); ok {
		if err := a.SetString(s); err != nil {
			return located(err, path)
		}
		return nil
	}

	items, ok := raw.([]any)
	if !ok {
		return mismatch(path, a.Type().String(), raw)
	}
	if len(items) > a.Len() {
		return terr.CapacityExceeded(terr.PhaseLoad, path, len(items), a.Len())
	}
	for i, item := range items {
		if err := l.loadValue(a.Index(i), item, index(path, i)); err != nil {
			return err
		}
	}
	return nil
}

func (l *loader) loadBuffer(b *schema.Buffer, raw any, path []string) error {
	b.Reset()
	if s, ok := raw.(string); ok {
		if err := b.SetString(s); err != nil {
			return located(err, path)
		}
		return nil
	}

	items, ok := raw.([]any)
	if !ok {
		return mismatch(path, b.Type().String(), raw)
	}
	elem := b.Type().(schema.BufferType).Elem
	for i, item := range items {
		p := index(path, i)
		if _, ok := elem.(*schema.Struct); ok {
			inst, err := b.PushNew()
			if err != nil {
				return located(err, p)
			}
			if err := l.loadStruct(inst, item, p); err != nil {
				return err
			}
			continue
		}

		n, err := number(item)
		if err != nil {
			return mismatch(p, elem.String(), item)
		}
		if err := b.Push(n); err != nil {
			return located(err, p)
		}
	}
	return nil
}

func (l *loader) resolve() error {
	for _, p := range l.pointers {
		target, ok := l.ids[p.id]
		if !ok {
			return terr.UnresolvedPointer(terr.PhaseLoad, p.path, fmt.Sprintf("unknown id %q", p.id))
		}
		if err := p.ptr.Set(target); err != nil {
			return located(err, p.path)
		}
	}
	return nil
}
