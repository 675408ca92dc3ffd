package parser

import (
	"fmt"
	"strconv"
	"strings"
)

// FieldTag holds the options of a `teric:"..."` struct tag
type FieldTag struct {
	Name       string // Member name override
	Skip       bool   // Field is not part of the layout
	String     bool   // Null-terminated text: [N]byte arrays or []byte buffers
	Char       bool   // Byte-wide fields use the char kind
	Align      int    // Buffer payload alignment (0 = default)
	Default    string // Raw default value
	HasDefault bool
}

// ParseTag parses teric struct tags
//
// Semantics:
//   - "-" or "skip"  : Field is ignored
//   - "name=x"       : Member is named x instead of the Go field name
//   - "string"       : [N]byte is a fixed string, []byte a string buffer
//   - "char"         : byte, [N]byte or []byte use char elements
//   - "align=N"      : Buffer payload starts on an N-byte boundary
//   - "default=V"    : Initial value; must be the last option so V may
//     contain commas
//
// Examples:
//
//	"string"               → fixed string or string buffer
//	"align=16"             → buffer aligned to 16 bytes
//	"char,default=x"       → char field defaulting to 'x'
//	"name=co,default=1.0"  → member co, every element 1.0
func ParseTag(tag string) (*FieldTag, error) {
	f := &FieldTag{}
	if tag == "" {
		return f, nil
	}
	if tag == "-" {
		f.Skip = true
		return f, nil
	}

	rest := tag
	for rest != "" {
		var part string
		if strings.HasPrefix(rest, "default=") {
			part, rest = rest, ""
		} else if i := strings.IndexByte(rest, ','); i >= 0 {
			part, rest = rest[:i], rest[i+1:]
			if rest == "" {
				return nil, fmt.Errorf("trailing comma in tag: %q", tag)
			}
		} else {
			part, rest = rest, ""
		}

		key, value, hasValue := strings.Cut(part, "=")
		switch key {
		case "skip":
			f.Skip = true
		case "string":
			f.String = true
		case "char":
			f.Char = true
		case "name":
			if !identRe.MatchString(value) {
				return nil, fmt.Errorf("name must be a C identifier, got: %q", value)
			}
			f.Name = value
		case "align":
			align, err := strconv.Atoi(value)
			if err != nil {
				return nil, fmt.Errorf("invalid align value: %s", value)
			}
			if align <= 0 || (align&(align-1)) != 0 {
				return nil, fmt.Errorf("align must be a power of 2, got: %d", align)
			}
			f.Align = align
		case "default":
			f.Default = value
			f.HasDefault = true
		case "":
			return nil, fmt.Errorf("empty option in tag: %q", tag)
		default:
			return nil, fmt.Errorf("unknown parameter: %s", key)
		}

		switch key {
		case "skip", "string", "char":
			if hasValue {
				return nil, fmt.Errorf("%s takes no value, got: %s", key, value)
			}
		case "name", "align":
			if !hasValue {
				return nil, fmt.Errorf("%s= requires a value", key)
			}
		}
	}

	return f, nil
}
