package interp

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"go/types"
	"strconv"
	"strings"

	"github.com/overturetool/tempo-plotting-tool/pkg/model"
)

var basicTypes = map[string]bool{
	"bool": true, "string": true, "byte": true, "rune": true,
	"int": true, "int8": true, "int16": true, "int32": true, "int64": true,
	"uint": true, "uint8": true, "uint16": true, "uint32": true, "uint64": true, "uintptr": true,
	"float32": true, "float64": true, "complex64": true, "complex128": true,
}

// ctorKind is the shape of a NewX constructor.
type ctorKind int

const (
	ctorNone     ctorKind = iota
	ctorPointer           // func NewX() *X
	ctorValue             // func NewX() X
	ctorPointerE          // func NewX() (*X, error)
	ctorValueE            // func NewX() (X, error)
)

// program is the parsed model source.
type program struct {
	fset    *token.FileSet
	file    *ast.File
	src     string
	classes []*model.ClassDef
	byName  map[string]*model.ClassDef
	named   map[string]ast.Expr // non-struct type declarations
	ctors   map[string]ctorKind
	imports []string
}

// parseProgram parses src as a Go file. A missing package clause is added
// and any package name is rewritten to main.
func parseProgram(src string) (*program, error) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "model.go", src, parser.PackageClauseOnly)
	if err != nil {
		src = "package main\n\n" + src
	} else if file.Name.Name != "main" {
		off := fset.Position(file.Name.Pos()).Offset
		src = src[:off] + "main" + src[off+len(file.Name.Name):]
	}

	fset = token.NewFileSet()
	file, err = parser.ParseFile(fset, "model.go", src, parser.SkipObjectResolution)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSource, err)
	}

	p := &program{
		fset:   fset,
		file:   file,
		src:    src,
		byName: make(map[string]*model.ClassDef),
		named:  make(map[string]ast.Expr),
		ctors:  make(map[string]ctorKind),
	}
	for _, imp := range file.Imports {
		path, _ := strconv.Unquote(imp.Path.Value)
		p.imports = append(p.imports, path)
	}

	// First pass declares every class so fields can reference later ones.
	var structs []*ast.TypeSpec
	for _, decl := range file.Decls {
		gen, ok := decl.(*ast.GenDecl)
		if !ok || gen.Tok != token.TYPE {
			continue
		}
		for _, spec := range gen.Specs {
			ts := spec.(*ast.TypeSpec)
			if ts.TypeParams != nil && len(ts.TypeParams.List) > 0 {
				continue
			}
			if _, ok := ts.Type.(*ast.StructType); ok {
				class := &model.ClassDef{Name: ts.Name.Name}
				p.classes = append(p.classes, class)
				p.byName[class.Name] = class
				structs = append(structs, ts)
				continue
			}
			p.named[ts.Name.Name] = ts.Type
		}
	}

	for _, ts := range structs {
		class := p.byName[ts.Name.Name]
		for _, field := range ts.Type.(*ast.StructType).Fields.List {
			typ := p.describe(field.Type, nil)
			if len(field.Names) == 0 {
				class.Fields = append(class.Fields, model.FieldDef{Name: baseName(field.Type), Type: typ})
				continue
			}
			for _, name := range field.Names {
				class.Fields = append(class.Fields, model.FieldDef{Name: name.Name, Type: typ})
			}
		}
	}

	for _, decl := range file.Decls {
		fn, ok := decl.(*ast.FuncDecl)
		if !ok {
			continue
		}
		if fn.Recv == nil {
			p.constructor(fn)
			continue
		}
		if len(fn.Recv.List) == 0 {
			continue
		}
		class, ok := p.byName[baseName(fn.Recv.List[0].Type)]
		if !ok {
			continue
		}
		class.Operations = append(class.Operations, model.OperationDef{
			Name:    fn.Name.Name,
			Params:  typeList(fn.Type.Params),
			Results: typeList(fn.Type.Results),
		})
	}
	return p, nil
}

// describe classifies a field type. seen stops named type loops.
func (p *program) describe(expr ast.Expr, seen map[string]bool) model.TypeDescriptor {
	name := types.ExprString(expr)
	switch t := expr.(type) {
	case *ast.Ident:
		if class, ok := p.byName[t.Name]; ok {
			return model.TypeDescriptor{Name: name, Kind: model.KindComposite, Class: class}
		}
		if basicTypes[t.Name] {
			return model.TypeDescriptor{Name: name, Kind: model.KindBasic}
		}
		if under, ok := p.named[t.Name]; ok && !seen[t.Name] {
			if seen == nil {
				seen = make(map[string]bool)
			}
			seen[t.Name] = true
			d := p.describe(under, seen)
			d.Name = name
			return d
		}
	case *ast.ParenExpr:
		return p.describe(t.X, seen)
	case *ast.StarExpr:
		inner := p.describe(t.X, seen)
		if inner.Kind == model.KindComposite {
			inner.Name = name
			return inner
		}
		return model.TypeDescriptor{Name: name, Kind: model.KindOptional}
	case *ast.ArrayType:
		return model.TypeDescriptor{Name: name, Kind: model.KindSequence}
	case *ast.MapType:
		return model.TypeDescriptor{Name: name, Kind: model.KindMap}
	case *ast.FuncType:
		return model.TypeDescriptor{Name: name, Kind: model.KindFunction}
	}
	return model.TypeDescriptor{Name: name, Kind: model.KindUnknown}
}

func (p *program) constructor(fn *ast.FuncDecl) {
	className, ok := strings.CutPrefix(fn.Name.Name, "New")
	if !ok {
		return
	}
	if _, ok := p.byName[className]; !ok {
		return
	}
	if fn.Type.TypeParams != nil || (fn.Type.Params != nil && len(fn.Type.Params.List) > 0) {
		return
	}

	results := typeList(fn.Type.Results)
	switch {
	case len(results) == 1 && results[0] == "*"+className:
		p.ctors[className] = ctorPointer
	case len(results) == 1 && results[0] == className:
		p.ctors[className] = ctorValue
	case len(results) == 2 && results[0] == "*"+className && results[1] == "error":
		p.ctors[className] = ctorPointerE
	case len(results) == 2 && results[0] == className && results[1] == "error":
		p.ctors[className] = ctorValueE
	}
}

// typeList flattens a parameter list into one type per value.
func typeList(fields *ast.FieldList) []string {
	if fields == nil {
		return nil
	}
	var out []string
	for _, f := range fields.List {
		typ := types.ExprString(f.Type)
		n := len(f.Names)
		if n == 0 {
			n = 1
		}
		for i := 0; i < n; i++ {
			out = append(out, typ)
		}
	}
	return out
}

// baseName strips pointers, qualifiers and type arguments from a type.
func baseName(expr ast.Expr) string {
	for {
		switch t := expr.(type) {
		case *ast.StarExpr:
			expr = t.X
		case *ast.SelectorExpr:
			return t.Sel.Name
		case *ast.IndexExpr:
			expr = t.X
		case *ast.IndexListExpr:
			expr = t.X
		case *ast.Ident:
			return t.Name
		default:
			return types.ExprString(expr)
		}
	}
}
