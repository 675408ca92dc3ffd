package parser

import (
	"errors"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"reflect"
	"strings"

	terr "github.com/alexhholmes/teric/internal/errors"
)

// TagKey is the struct tag key read from annotated types
const TagKey = "teric"

// TypeDecl represents a parsed struct with a @teric annotation
type TypeDecl struct {
	Name   string
	Anno   *TypeAnnotation
	Fields []Field
	Pos    token.Position
}

// Field represents one layout member of an annotated struct
type Field struct {
	Name   string // Member name, after any name= override
	GoName string
	GoType string
	Expr   ast.Expr
	Tag    *FieldTag
	Pos    token.Position
}

// ParseFile parses a Go source file and extracts types with @teric annotations
func ParseFile(filename string) ([]*TypeDecl, error) {
	return ParseSource(filename, nil)
}

// ParseSource is like ParseFile but reads from src when it is not nil
func ParseSource(filename string, src any) ([]*TypeDecl, error) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, filename, src, parser.ParseComments)
	if err != nil {
		return nil, terr.New(terr.PhaseParse, terr.KindInvalidSchema).
			Path(filename).
			Cause(err).
			Build()
	}

	p := &extractor{fset: fset}
	types := p.extractTypes(file)
	if len(p.errs) > 0 {
		return nil, errors.Join(p.errs...)
	}
	return types, nil
}

type extractor struct {
	fset *token.FileSet
	errs []error
}

func (p *extractor) fail(pos token.Pos, path []string, format string, args ...any) {
	p.errs = append(p.errs, terr.New(terr.PhaseParse, terr.KindInvalidSchema).
		Path(path...).
		Detail("%s: %s", p.fset.Position(pos), fmt.Sprintf(format, args...)).
		Build())
}

func (p *extractor) extractTypes(file *ast.File) []*TypeDecl {
	var types []*TypeDecl

	for _, decl := range file.Decls {
		genDecl, ok := decl.(*ast.GenDecl)
		if !ok || genDecl.Tok != token.TYPE {
			continue
		}

		for _, spec := range genDecl.Specs {
			typeSpec := spec.(*ast.TypeSpec)

			// Grouped declarations carry their comment on the TypeSpec
			doc := typeSpec.Doc
			if doc == nil && len(genDecl.Specs) == 1 {
				doc = genDecl.Doc
			}
			anno, err := extractAnnotation(doc)
			if err != nil {
				p.fail(typeSpec.Pos(), []string{typeSpec.Name.Name}, "%v", err)
				continue
			}
			if anno == nil {
				continue // No @teric, skip this type
			}

			structType, ok := typeSpec.Type.(*ast.StructType)
			if !ok {
				p.fail(typeSpec.Pos(), []string{typeSpec.Name.Name}, "@teric applies to struct types only")
				continue
			}

			types = append(types, &TypeDecl{
				Name:   typeSpec.Name.Name,
				Anno:   anno,
				Fields: p.extractFields(typeSpec.Name.Name, structType),
				Pos:    p.fset.Position(typeSpec.Pos()),
			})
		}
	}

	return types
}

func extractAnnotation(doc *ast.CommentGroup) (*TypeAnnotation, error) {
	if doc == nil {
		return nil, nil
	}

	var lines []string
	for _, comment := range doc.List {
		lines = append(lines, CleanComment(comment.Text))
	}

	anno, found, err := FindAnnotation(lines)
	if !found {
		return nil, nil
	}
	return anno, err
}

func (p *extractor) extractFields(typeName string, structType *ast.StructType) []Field {
	var fields []Field

	for _, field := range structType.Fields.List {
		if len(field.Names) == 0 {
			p.fail(field.Pos(), []string{typeName, typeToString(field.Type)}, "embedded fields are not supported")
			continue
		}

		var raw string
		if field.Tag != nil {
			raw = reflect.StructTag(strings.Trim(field.Tag.Value, "`")).Get(TagKey)
		}
		tag, err := ParseTag(raw)
		if err != nil {
			p.fail(field.Pos(), []string{typeName, field.Names[0].Name}, "%v", err)
			continue
		}
		if tag.Skip {
			continue
		}
		if tag.Name != "" && len(field.Names) > 1 {
			p.fail(field.Pos(), []string{typeName, field.Names[0].Name}, "name= on a multi-name field")
			continue
		}

		for _, name := range field.Names {
			member := name.Name
			if tag.Name != "" {
				member = tag.Name
			}
			fields = append(fields, Field{
				Name:   member,
				GoName: name.Name,
				GoType: typeToString(field.Type),
				Expr:   field.Type,
				Tag:    tag,
				Pos:    p.fset.Position(name.Pos()),
			})
		}
	}

	if len(fields) == 0 {
		p.fail(structType.Pos(), []string{typeName}, "no layout fields")
	}
	return fields
}

// typeToString converts AST type expression to string
func typeToString(expr ast.Expr) string {
	switch t := expr.(type) {
	case *ast.Ident:
		return t.Name

	case *ast.ArrayType:
		if t.Len == nil {
			return "[]" + typeToString(t.Elt)
		}
		return fmt.Sprintf("[%s]%s", exprToString(t.Len), typeToString(t.Elt))

	case *ast.StarExpr:
		return "*" + typeToString(t.X)

	case *ast.SelectorExpr:
		return typeToString(t.X) + "." + t.Sel.Name

	default:
		return "unknown"
	}
}

func exprToString(expr ast.Expr) string {
	switch e := expr.(type) {
	case *ast.BasicLit:
		return e.Value
	case *ast.Ident:
		return e.Name
	default:
		return "?"
	}
}
