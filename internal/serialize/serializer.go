// Package serialize lays out an instance graph as one relocatable blob.
//
// Serialization runs in three passes. The main pass writes every struct's
// inline bytes depth-first in declared field order, reserving placeholders
// for buffer and pointer slots. The allocation pass appends buffer payloads
// breadth-first, one nesting level at a time, and patches each buffer slot
// with the unsigned distance from its owning struct to the payload. The
// post-write pass patches each pointer slot with the signed distance from
// its owning struct to the target.
//
// Every struct's frame starts at its own inline bytes, whether it is the
// root, nested inline, an array element or a buffer element. This differs
// from a shared-frame layout, where a nested struct reuses its parent's
// base and buffer elements reuse the buffer's: here a slot's offset is
// always measured from the struct that directly contains it, which is the
// "owner" the generated accessors receive as self. A reader holding a
// struct address can therefore follow any of its slots with plain address
// arithmetic and no relocation table.
//
// Instance graphs may be cyclic through pointers only. An instance that
// reaches itself through buffer elements is rejected, since its payload
// would never end.
package serialize

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"

	"go.uber.org/zap"

	"github.com/alexhholmes/teric/internal/analyzer"
	terr "github.com/alexhholmes/teric/internal/errors"
	"github.com/alexhholmes/teric/internal/schema"
)

// Serializer converts instances into blobs. A Serializer holds only
// configuration and a size memo; all layout state lives in the call, so one
// Serializer may be used from many goroutines.
type Serializer struct {
	unset    UnsetPolicy
	logger   *zap.Logger
	sizeHint int
	registry *analyzer.TypeRegistry
}

// New creates a serializer with the given options
func New(opts ...Option) *Serializer {
	s := &Serializer{registry: analyzer.NewTypeRegistry()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Serialize lays out root with the default options
func Serialize(root *schema.Instance) ([]byte, error) {
	return New().Serialize(root)
}

// Stats describes one serialization
type Stats struct {
	Bytes    int   // total blob length
	Inline   int   // inline bytes of the root struct
	Structs  int   // struct frames written
	Buffers  int   // buffer payloads written
	Levels   []int // buffers written per allocation level
	Pointers int   // pointer slots patched
	Unset    int   // pointer slots left zero by PolicyZero
	Padding  int   // zero bytes inserted for alignment
}

// Serialize lays out root and returns the blob
func (s *Serializer) Serialize(root *schema.Instance) ([]byte, error) {
	blob, _, err := s.SerializeStats(root)
	return blob, err
}

// SerializeStats is Serialize that also reports layout statistics
func (s *Serializer) SerializeStats(root *schema.Instance) ([]byte, Stats, error) {
	if root == nil {
		return nil, Stats{}, terr.New(terr.PhaseSerialize, terr.KindInvalidSchema).
			Detail("root instance is nil").
			Build()
	}

	inline, err := s.registry.SizeOf(root.Schema())
	if err != nil {
		return nil, Stats{}, terr.New(terr.PhaseSerialize, terr.KindInvalidSchema).
			Path(root.Schema().Name()).
			Cause(err).
			Build()
	}

	hint := s.sizeHint
	if hint < inline {
		hint = inline
	}
	w := &writer{
		s:     s,
		out:   make([]byte, 0, hint),
		bases: make(map[*schema.Instance]int),
		path:  []string{root.Schema().Name()},
	}

	// Pass 1: main
	if err := w.writeStruct(root); err != nil {
		return nil, Stats{}, err
	}
	w.stats.Inline = len(w.out)

	// Pass 2: allocation
	for len(w.next) > 0 {
		level := w.next
		w.next = nil
		w.stats.Levels = append(w.stats.Levels, len(level))
		for _, p := range level {
			if err := w.allocate(p); err != nil {
				return nil, Stats{}, err
			}
		}
	}

	// Pass 3: post-write
	for _, p := range w.pointers {
		if err := w.resolve(p); err != nil {
			return nil, Stats{}, err
		}
	}

	w.stats.Bytes = len(w.out)
	s.log().Debug("serialized",
		zap.String("root", root.Schema().Name()),
		zap.Int("bytes", w.stats.Bytes),
		zap.Int("inline", w.stats.Inline),
		zap.Int("structs", w.stats.Structs),
		zap.Int("buffers", w.stats.Buffers),
		zap.Ints("levels", w.stats.Levels),
		zap.Int("pointers", w.stats.Pointers),
		zap.Int("padding", w.stats.Padding))

	return w.out, w.stats, nil
}

func (s *Serializer) log() *zap.Logger {
	if s.logger != nil {
		return s.logger
	}
	return Logger()
}

// pendingBuffer is a buffer slot awaiting its payload
type pendingBuffer struct {
	pos       int // placeholder position
	owner     int // owning struct base
	buf       *schema.Buffer
	path      []string
	ancestors []*schema.Instance // structs enclosing the slot, outermost first
}

// pendingPointer is a pointer slot awaiting its target's base
type pendingPointer struct {
	pos   int
	owner int
	ptr   *schema.Pointer
	path  []string
}

// writer holds the state of one serialization
type writer struct {
	s        *Serializer
	out      []byte
	bases    map[*schema.Instance]int
	next     []pendingBuffer
	pointers []pendingPointer
	path     []string
	stats    Stats

	// ancestors holds the structs being written, including those whose
	// buffers led to the current payload.
	ancestors []*schema.Instance
}

func (w *writer) push(name string) { w.path = append(w.path, name) }
func (w *writer) pop()             { w.path = w.path[:len(w.path)-1] }

func (w *writer) snapshot() []string {
	return append([]string(nil), w.path...)
}

func (w *writer) writeStruct(inst *schema.Instance) error {
	for _, a := range w.ancestors {
		if a == inst {
			return terr.New(terr.PhaseSerialize, terr.KindInvalidSchema).
				Path(w.snapshot()...).
				Type(inst.Schema().TypedefName()).
				Detail("instance contains itself through a buffer").
				Build()
		}
	}
	w.ancestors = append(w.ancestors, inst)

	base := len(w.out)
	// An instance reachable more than once keeps its first frame as the
	// pointer target.
	if _, seen := w.bases[inst]; !seen {
		w.bases[inst] = base
	}
	w.stats.Structs++

	st := inst.Schema()
	for i, f := range st.Fields() {
		w.push(f.Name)
		if err := w.writeValue(inst.Value(i), base); err != nil {
			return err
		}
		w.pop()
	}

	size, err := w.s.registry.SizeOf(st)
	if err != nil {
		return terr.New(terr.PhaseSerialize, terr.KindInvalidSchema).
			Path(w.snapshot()...).
			Cause(err).
			Build()
	}
	if got := len(w.out) - base; got != size {
		return terr.New(terr.PhaseSerialize, terr.KindInvalidSchema).
			Path(w.snapshot()...).
			Type(st.TypedefName()).
			Detail("wrote %d inline bytes, declared size is %d", got, size).
			Build()
	}
	w.ancestors = w.ancestors[:len(w.ancestors)-1]
	return nil
}

func (w *writer) writeValue(v schema.Value, owner int) error {
	switch v := v.(type) {
	case *schema.Atom:
		w.out = v.AppendTo(w.out)

	case *schema.Instance:
		return w.writeStruct(v)

	case *schema.Array:
		for i := 0; i < v.Len(); i++ {
			w.push(strconv.Itoa(i))
			if err := w.writeValue(v.Index(i), owner); err != nil {
				return err
			}
			w.pop()
		}

	case *schema.Buffer:
		pos := len(w.out)
		w.out = append(w.out, 0, 0, 0, 0)
		if !v.IsString() {
			if uint64(v.Len()) > math.MaxUint32 {
				return terr.Overflow(terr.PhaseSerialize, w.snapshot(), v.Len(), "uint32_t")
			}
			w.out = binary.LittleEndian.AppendUint32(w.out, uint32(v.Len()))
		}
		w.next = append(w.next, pendingBuffer{
			pos:       pos,
			owner:     owner,
			buf:       v,
			path:      w.snapshot(),
			ancestors: append([]*schema.Instance(nil), w.ancestors...),
		})

	case *schema.Pointer:
		pos := len(w.out)
		w.out = append(w.out, 0, 0, 0, 0)
		w.pointers = append(w.pointers, pendingPointer{pos: pos, owner: owner, ptr: v, path: w.snapshot()})

	default:
		return terr.New(terr.PhaseSerialize, terr.KindTypeMismatch).
			Path(w.snapshot()...).
			Detail("unknown value %T", v).
			Build()
	}
	return nil
}

func (w *writer) allocate(p pendingBuffer) error {
	if align := p.buf.Align(); align > 1 {
		pad := (align - len(w.out)%align) % align
		for i := 0; i < pad; i++ {
			w.out = append(w.out, 0)
		}
		w.stats.Padding += pad
	}

	start := len(w.out)
	offset := start - p.owner
	if uint64(offset) > math.MaxUint32 {
		return terr.Overflow(terr.PhaseSerialize, p.path, offset, "uint32_t")
	}
	binary.LittleEndian.PutUint32(w.out[p.pos:], uint32(offset))
	w.stats.Buffers++

	w.path = append(w.path[:0], p.path...)
	w.ancestors = p.ancestors
	for i := 0; i < p.buf.Len(); i++ {
		w.push(strconv.Itoa(i))
		if err := w.writeValue(p.buf.Index(i), start); err != nil {
			return err
		}
		w.pop()
	}
	if p.buf.IsString() {
		w.out = append(w.out, 0)
	}
	return nil
}

func (w *writer) resolve(p pendingPointer) error {
	w.stats.Pointers++

	target := p.ptr.Target()
	if target == nil {
		if w.s.unset == PolicyZero {
			w.stats.Unset++
			return nil
		}
		return terr.UnresolvedPointer(terr.PhaseSerialize, p.path, "pointer is unset")
	}

	base, ok := w.bases[target]
	if !ok {
		return terr.UnresolvedPointer(terr.PhaseSerialize, p.path,
			fmt.Sprintf("target %s is not part of the serialized graph", target.Schema().Name()))
	}

	delta := int64(base) - int64(p.owner)
	if delta < math.MinInt32 || delta > math.MaxInt32 {
		return terr.Overflow(terr.PhaseSerialize, p.path, delta, "int32_t")
	}
	binary.LittleEndian.PutUint32(w.out[p.pos:], uint32(int32(delta)))
	return nil
}
