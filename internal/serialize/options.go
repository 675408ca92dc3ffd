package serialize

import "go.uber.org/zap"

// UnsetPolicy decides how a pointer with no target is written
type UnsetPolicy int

const (
	// PolicyReject fails the serialization with UnresolvedPointer.
	PolicyReject UnsetPolicy = iota
	// PolicyZero writes a zero delta. Readers that follow a zero delta land
	// on the pointer's own struct, so they must check for it.
	PolicyZero
)

func (p UnsetPolicy) String() string {
	switch p {
	case PolicyReject:
		return "reject"
	case PolicyZero:
		return "zero"
	}
	return "unknown"
}

// Option configures a Serializer
type Option func(*Serializer)

// WithUnsetPointers sets the policy for pointers that were never set
func WithUnsetPointers(p UnsetPolicy) Option {
	return func(s *Serializer) { s.unset = p }
}

// WithLogger overrides the package logger for one serializer
func WithLogger(l *zap.Logger) Option {
	return func(s *Serializer) { s.logger = l }
}

// WithSizeHint preallocates n bytes for the output blob
func WithSizeHint(n int) Option {
	return func(s *Serializer) { s.sizeHint = n }
}
