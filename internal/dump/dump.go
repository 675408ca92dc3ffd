// Package dump prints instance graphs as indented trees
package dump

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/alexhholmes/teric/internal/schema"
)

// Styles colors the parts of a tree line
type Styles struct {
	Struct  lipgloss.Style
	Field   lipgloss.Style
	Type    lipgloss.Style
	Value   lipgloss.Style
	Pointer lipgloss.Style
	Branch  lipgloss.Style
}

// DefaultStyles returns the colored styles used on terminals
func DefaultStyles() Styles {
	return Styles{
		Struct:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7D56F4")),
		Field:   lipgloss.NewStyle().Foreground(lipgloss.Color("#98FB98")),
		Type:    lipgloss.NewStyle().Foreground(lipgloss.Color("#87CEEB")),
		Value:   lipgloss.NewStyle().Foreground(lipgloss.Color("#FAFAFA")),
		Pointer: lipgloss.NewStyle().Foreground(lipgloss.Color("#FFB86C")),
		Branch:  lipgloss.NewStyle().Foreground(lipgloss.Color("#666666")),
	}
}

// PlainStyles renders every part unchanged
func PlainStyles() Styles {
	s := lipgloss.NewStyle()
	return Styles{Struct: s, Field: s, Type: s, Value: s, Pointer: s, Branch: s}
}

// Options control Fprint
type Options struct {
	NoColor bool
	// MaxElems limits the buffer elements printed; 0 prints all
	MaxElems int
	Styles   *Styles
}

// Fprint writes inst and everything reachable from it as a tree:
//
//	Mesh (mesh_t)
//	├── strength: float32 = 1
//	├── verts: []Vert [2]
//	│   ├── 0: Vert
//	│   │   └── co: [3]float32 = [0 0 0]
//	│   └── 1: Vert
//	│       └── co: [3]float32 = [1 0.5 -1]
//	└── active: *Vert -> Mesh.verts.1
//
// Pointers print the path where their target first appears.
func Fprint(w io.Writer, inst *schema.Instance, opts Options) error {
	if inst == nil {
		return fmt.Errorf("dump: nil instance")
	}

	styles := DefaultStyles()
	switch {
	case opts.NoColor:
		styles = PlainStyles()
	case opts.Styles != nil:
		styles = *opts.Styles
	}

	p := &printer{
		w:       bufio.NewWriter(w),
		styles:  styles,
		opts:    opts,
		paths:   make(map[*schema.Instance]string),
		printed: make(map[*schema.Instance]bool),
	}
	p.index(inst, inst.Schema().Name())

	p.printed[inst] = true
	p.line("", p.header(inst))
	p.fields(inst, "")
	return p.w.Flush()
}

// Sprint returns the uncolored tree of inst
func Sprint(inst *schema.Instance) string {
	var b strings.Builder
	if err := Fprint(&b, inst, Options{NoColor: true}); err != nil {
		return err.Error()
	}
	return b.String()
}

type printer struct {
	w       *bufio.Writer
	styles  Styles
	opts    Options
	paths   map[*schema.Instance]string
	printed map[*schema.Instance]bool
}

// index records the first path of every instance in the same depth-first
// order the tree is printed in
func (p *printer) index(inst *schema.Instance, path string) {
	if _, seen := p.paths[inst]; seen {
		return
	}
	p.paths[inst] = path
	for i, f := range inst.Schema().Fields() {
		p.indexValue(inst.Value(i), path+"."+f.Name)
	}
}

func (p *printer) indexValue(v schema.Value, path string) {
	switch v := v.(type) {
	case *schema.Instance:
		p.index(v, path)
	case *schema.Array:
		for i := 0; i < v.Len(); i++ {
			p.indexValue(v.Index(i), path+"."+strconv.Itoa(i))
		}
	case *schema.Buffer:
		for i := 0; i < v.Len(); i++ {
			p.indexValue(v.Index(i), path+"."+strconv.Itoa(i))
		}
	}
}

func (p *printer) line(prefix, text string) {
	p.w.WriteString(p.styles.Branch.Render(prefix))
	p.w.WriteString(text)
	p.w.WriteByte('\n')
}

func (p *printer) header(inst *schema.Instance) string {
	s := inst.Schema()
	text := p.styles.Struct.Render(s.Name())
	if s.TypedefName() != s.Name() {
		text += " " + p.styles.Type.Render("("+s.TypedefName()+")")
	}
	return text
}

func branch(last bool) (string, string) {
	if last {
		return "└── ", "    "
	}
	return "├── ", "│   "
}

func (p *printer) fields(inst *schema.Instance, indent string) {
	fields := inst.Schema().Fields()
	for i, f := range fields {
		p.value(f.Name, inst.Value(i), indent, i == len(fields)-1)
	}
}

func (p *printer) label(name string, t schema.Type) string {
	return p.styles.Field.Render(name) + ": " + p.styles.Type.Render(t.String())
}

func (p *printer) value(name string, v schema.Value, indent string, last bool) {
	head, next := branch(last)

	switch v := v.(type) {
	case *schema.Atom:
		p.line(indent+head, p.label(name, v.Type())+" = "+p.styles.Value.Render(v.String()))

	case *schema.Instance:
		if p.printed[v] {
			// Pushed into more than one place; print it once
			p.line(indent+head, p.styles.Field.Render(name)+": "+p.header(v)+" "+
				p.styles.Pointer.Render("= "+p.paths[v]))
			return
		}
		p.printed[v] = true
		p.line(indent+head, p.styles.Field.Render(name)+": "+p.header(v))
		p.fields(v, indent+next)

	case *schema.Array:
		t := v.Type().(schema.ArrayType)
		if t.IsString {
			p.line(indent+head, p.label(name, t)+" = "+p.styles.Value.Render(strconv.Quote(v.String())))
			return
		}
		if _, ok := t.Base().(schema.AtomType); ok {
			p.line(indent+head, p.label(name, t)+" = "+p.styles.Value.Render(inline(v)))
			return
		}
		p.line(indent+head, p.label(name, t))
		for i := 0; i < v.Len(); i++ {
			p.value(strconv.Itoa(i), v.Index(i), indent+next, i == v.Len()-1)
		}

	case *schema.Buffer:
		t := v.Type().(schema.BufferType)
		if t.IsString {
			p.line(indent+head, p.label(name, t)+" = "+p.styles.Value.Render(strconv.Quote(v.String())))
			return
		}
		count := p.styles.Value.Render(fmt.Sprintf("[%d]", v.Len()))
		if _, ok := t.Elem.(schema.AtomType); ok {
			p.line(indent+head, p.label(name, t)+" "+count+" = "+p.styles.Value.Render(p.atoms(v)))
			return
		}
		p.line(indent+head, p.label(name, t)+" "+count)
		n := v.Len()
		if p.opts.MaxElems > 0 && n > p.opts.MaxElems {
			n = p.opts.MaxElems
		}
		for i := 0; i < n; i++ {
			p.value(strconv.Itoa(i), v.Index(i), indent+next, i == v.Len()-1)
		}
		if n < v.Len() {
			p.line(indent+next+"└── ", p.styles.Value.Render(fmt.Sprintf("... %d more", v.Len()-n)))
		}

	case *schema.Pointer:
		target := "null"
		if v.IsSet() {
			path, ok := p.paths[v.Target()]
			if !ok {
				path = "<outside " + v.Target().Schema().Name() + ">"
			}
			target = "-> " + path
		}
		p.line(indent+head, p.label(name, v.Type())+" "+p.styles.Pointer.Render(target))
	}
}

func (p *printer) atoms(b *schema.Buffer) string {
	n := b.Len()
	if p.opts.MaxElems > 0 && n > p.opts.MaxElems {
		n = p.opts.MaxElems
	}
	parts := make([]string, 0, n+1)
	for i := 0; i < n; i++ {
		parts = append(parts, b.Index(i).(*schema.Atom).String())
	}
	if n < b.Len() {
		parts = append(parts, "...")
	}
	return "[" + strings.Join(parts, " ") + "]"
}

// inline renders an atom array, nesting brackets per dimension
func inline(a *schema.Array) string {
	parts := make([]string, a.Len())
	for i := range parts {
		switch e := a.Index(i).(type) {
		case *schema.Atom:
			parts[i] = e.String()
		case *schema.Array:
			parts[i] = inline(e)
		}
	}
	return "[" + strings.Join(parts, " ") + "]"
}
