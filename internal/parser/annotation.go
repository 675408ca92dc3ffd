package parser

import (
	"fmt"
	"regexp"
	"strings"
)

// TypeAnnotation holds a parsed @teric annotation
type TypeAnnotation struct {
	Typedef string // Native type name; the Go type name when empty
	Root    bool   // Marks the default root struct of the file
}

var (
	annotationRe = regexp.MustCompile(`^@teric(?:\s+(.*))?$`)
	pairRe       = regexp.MustCompile(`^(\w+)(?:=(\S+))?$`)
	identRe      = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
)

// ParseAnnotation parses a @teric annotation from cleaned comment text
//
// Expected format:
//
//	// @teric
//	// @teric typedef=mesh_t
//	// @teric typedef=mesh_t root
//
// Params are space-separated key=value pairs or bare flags.
func ParseAnnotation(comment string) (*TypeAnnotation, error) {
	matches := annotationRe.FindStringSubmatch(strings.TrimSpace(comment))
	if matches == nil {
		return nil, fmt.Errorf("no @teric annotation found")
	}

	anno := &TypeAnnotation{}
	for _, param := range strings.Fields(matches[1]) {
		pair := pairRe.FindStringSubmatch(param)
		if pair == nil {
			return nil, fmt.Errorf("invalid parameter: %s", param)
		}
		key, value := pair[1], pair[2]

		switch key {
		case "typedef":
			if !identRe.MatchString(value) {
				return nil, fmt.Errorf("typedef must be a C identifier, got: %q", value)
			}
			anno.Typedef = value

		case "root":
			if value != "" {
				return nil, fmt.Errorf("root takes no value, got: %s", value)
			}
			anno.Root = true

		default:
			return nil, fmt.Errorf("unknown parameter: %s", key)
		}
	}

	return anno, nil
}

// FindAnnotation searches comment lines for a @teric annotation.
// A line that starts with @teric but fails to parse is reported as an error.
func FindAnnotation(comments []string) (*TypeAnnotation, bool, error) {
	for _, comment := range comments {
		if !strings.HasPrefix(comment, "@teric") {
			continue
		}
		anno, err := ParseAnnotation(comment)
		if err != nil {
			return nil, true, err
		}
		return anno, true, nil
	}
	return nil, false, nil
}

// CleanComment strips comment markers from one comment
//
//	"// @teric typedef=mesh_t"   → "@teric typedef=mesh_t"
//	"/* @teric typedef=mesh_t */" → "@teric typedef=mesh_t"
func CleanComment(line string) string {
	line = strings.TrimSpace(line)
	switch {
	case strings.HasPrefix(line, "//"):
		line = strings.TrimPrefix(line, "//")
	case strings.HasPrefix(line, "/*") && strings.HasSuffix(line, "*/"):
		line = strings.TrimSuffix(strings.TrimPrefix(line, "/*"), "*/")
	}
	return strings.TrimSpace(line)
}
