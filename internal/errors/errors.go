// Package errors defines the structured error type shared by the schema
// model, the serializer and the header generator.
package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseDeclare   Phase = "declare"   // schema construction
	PhasePush      Phase = "push"      // instance mutation
	PhaseSerialize Phase = "serialize" // blob layout
	PhaseHeader    Phase = "header"    // declaration generation
	PhaseParse     Phase = "parse"     // annotated source parsing
	PhaseLoad      Phase = "load"      // instance documents
	PhaseRead      Phase = "read"      // blob read-back
)

// Kind categorizes the error
type Kind string

const (
	KindTypeMismatch      Kind = "type_mismatch"
	KindCapacityExceeded  Kind = "capacity_exceeded"
	KindUnresolvedPointer Kind = "unresolved_pointer"
	KindInvalidSchema     Kind = "invalid_schema"
	KindOverflow          Kind = "overflow"
	KindNotFound          Kind = "not_found"
	KindOutOfBounds       Kind = "out_of_bounds"
)

// Sentinels for errors.Is. They carry no Phase, so they match an error of
// the same Kind raised in any phase.
var (
	ErrTypeMismatch      = &Error{Kind: KindTypeMismatch}
	ErrCapacityExceeded  = &Error{Kind: KindCapacityExceeded}
	ErrUnresolvedPointer = &Error{Kind: KindUnresolvedPointer}
	ErrInvalidSchema     = &Error{Kind: KindInvalidSchema}
	ErrOverflow          = &Error{Kind: KindOverflow}
	ErrNotFound          = &Error{Kind: KindNotFound}
	ErrOutOfBounds       = &Error{Kind: KindOutOfBounds}
)

// Error is the structured error type used throughout teric
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	Type   string
	Detail string
	Path   []string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	if e.Phase != "" {
		b.WriteByte('[')
		b.WriteString(string(e.Phase))
		b.WriteString("] ")
	}
	b.WriteString(string(e.Kind))

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.Type != "" {
		b.WriteString(": type ")
		b.WriteString(e.Type)
	}

	if e.Detail != "" {
		if e.Type != "" {
			b.WriteString(" - ")
		} else {
			b.WriteString(": ")
		}
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error. Kinds must agree; the
// phase is only compared when the target names one.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if e.Kind != t.Kind {
		return false
	}
	return t.Phase == "" || e.Phase == t.Phase
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Path sets the field path
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// Type sets the declared type name involved
func (b *Builder) Type(t string) *Builder {
	b.err.Type = t
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// TypeMismatch creates a type mismatch error
func TypeMismatch(phase Phase, path []string, typ string, value any) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindTypeMismatch,
		Path:   path,
		Type:   typ,
		Value:  value,
		Detail: fmt.Sprintf("cannot represent %v (%T)", value, value),
	}
}

// CapacityExceeded creates an error for a write past a fixed capacity
func CapacityExceeded(phase Phase, path []string, need, capacity int) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindCapacityExceeded,
		Path:   path,
		Detail: fmt.Sprintf("need %d elements, capacity is %d", need, capacity),
		Value:  need,
	}
}

// UnresolvedPointer creates an error for a pointer with no usable target
func UnresolvedPointer(phase Phase, path []string, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnresolvedPointer,
		Path:   path,
		Detail: detail,
	}
}

// InvalidSchema creates a schema validation error
func InvalidSchema(path []string, detail string, args ...any) *Error {
	return &Error{
		Phase:  PhaseDeclare,
		Kind:   KindInvalidSchema,
		Path:   path,
		Detail: fmt.Sprintf(detail, args...),
	}
}

// Overflow creates an overflow error
func Overflow(phase Phase, path []string, value any, targetType string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOverflow,
		Path:   path,
		Type:   targetType,
		Detail: fmt.Sprintf("value %v overflows %s", value, targetType),
		Value:  value,
	}
}

// NotFound creates an error for an unknown field or name
func NotFound(phase Phase, path []string, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Path:   path,
		Detail: fmt.Sprintf("%q not found", name),
	}
}

// OutOfBounds creates an out of bounds error
func OutOfBounds(phase Phase, path []string, index, length int) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOutOfBounds,
		Path:   path,
		Detail: fmt.Sprintf("index %d out of bounds (length %d)", index, length),
		Value:  index,
	}
}
