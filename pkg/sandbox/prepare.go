package sandbox

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"sort"
	"strconv"
	"strings"

	"lab47.dev/fomod/pkg/fomod"
)

const (
	legacyImport = "fomm/scripting"
	scriptType   = "Script"
	entryMethod  = "OnActivate"
	baseSuffix   = "BaseScript"
)

// EntryKind is the shape of a script's entry point, decided once when the
// source is prepared.
type EntryKind int

const (
	// EntryInstance scripts declare OnActivate as a method of Script.
	EntryInstance EntryKind = iota

	// EntryStatic scripts declare OnActivate as a package level function.
	EntryStatic
)

func (k EntryKind) String() string {
	if k == EntryStatic {
		return "static"
	}

	return "instance"
}

// Prepared is script source ready for compilation. Every rewrite keeps
// line numbers intact so diagnostics point at the author's text.
type Prepared struct {
	Source      string
	Entry       EntryKind
	Diagnostics []Diagnostic
}

type edit struct {
	start, end int
	text       string
}

type preparer struct {
	fset  *token.FileSet
	file  *ast.File
	src   string
	edits []edit
	diags []Diagnostic
}

func (p *preparer) offset(pos token.Pos) int {
	return p.fset.Position(pos).Offset
}

func (p *preparer) replace(from, to token.Pos, text string) {
	p.edits = append(p.edits, edit{p.offset(from), p.offset(to), text})
}

// blank replaces a range with spaces, leaving newlines in place.
func (p *preparer) blank(from, to token.Pos) {
	start, end := p.offset(from), p.offset(to)

	text := []byte(p.src[start:end])
	for i, b := range text {
		if b != '\n' {
			text[i] = ' '
		}
	}

	p.edits = append(p.edits, edit{start, end, string(text)})
}

func (p *preparer) warn(pos token.Pos, format string, args ...interface{}) {
	pp := p.fset.Position(pos)
	p.diags = append(p.diags, Diagnostic{
		Line: pp.Line, Column: pp.Column, Message: fmt.Sprintf(format, args...), Warning: true,
	})
}

func (p *preparer) fail(pos token.Pos, format string, args ...interface{}) {
	d := Diagnostic{Message: fmt.Sprintf(format, args...)}

	if pos.IsValid() {
		pp := p.fset.Position(pos)
		d.Line, d.Column = pp.Line, pp.Column
	}

	p.diags = append(p.diags, d)
}

// Prepare checks that src declares a Script type embedding the fomod base
// and an OnActivate entry point, then rewrites it for the interpreter:
// the package becomes main, the legacy import is dropped and its uses are
// pointed at fomod, and the fomod import is added when missing.
func Prepare(src string) (*Prepared, error) {
	fset := token.NewFileSet()

	file, err := parser.ParseFile(fset, "script.go", src, parser.AllErrors)
	if err != nil {
		return nil, &CompileError{Diagnostics: syntaxDiagnostics(err)}
	}

	p := &preparer{fset: fset, file: file, src: src}

	if file.Name.Name != "main" {
		p.replace(file.Name.Pos(), file.Name.End(), "main")
	}

	alias, legacy := p.imports()

	if alias == "" {
		alias = fomod.ImportPath
		p.edits = append(p.edits, edit{
			start: p.offset(file.Name.End()),
			end:   p.offset(file.Name.End()),
			text:  fmt.Sprintf("; import %q", fomod.ImportPath),
		})
	}

	base := p.checkBase(alias)
	p.rewriteLegacy(legacy, alias, base)

	entry, ok := p.entry()

	if !ok || hasErrors(p.diags) {
		return nil, &CompileError{Diagnostics: p.diags}
	}

	return &Prepared{Source: p.apply(), Entry: entry, Diagnostics: p.diags}, nil
}

// imports drops legacy imports and reports the name fomod is imported
// under, along with the qualifiers the legacy imports used.
func (p *preparer) imports() (string, []string) {
	var (
		alias  string
		legacy []string
	)

	for _, decl := range p.file.Decls {
		gd, ok := decl.(*ast.GenDecl)
		if !ok || gd.Tok != token.IMPORT {
			continue
		}

		for _, spec := range gd.Specs {
			is := spec.(*ast.ImportSpec)

			path, err := strconv.Unquote(is.Path.Value)
			if err != nil {
				continue
			}

			switch {
			case strings.EqualFold(path, legacyImport):
				qual := "scripting"
				if is.Name != nil {
					qual = is.Name.Name
				}

				legacy = append(legacy, qual)

				if gd.Lparen.IsValid() {
					p.blank(is.Pos(), is.End())
				} else {
					p.blank(gd.Pos(), gd.End())
				}

				p.warn(is.Pos(), "import %s is obsolete, using %q", is.Path.Value, fomod.ImportPath)
			case path == fomod.ImportPath && alias == "":
				alias = fomod.ImportPath
				if is.Name != nil && is.Name.Name != "_" {
					alias = is.Name.Name
				}
			}
		}
	}

	return alias, legacy
}

func (p *preparer) structs() map[string]*ast.TypeSpec {
	out := make(map[string]*ast.TypeSpec)

	for _, decl := range p.file.Decls {
		gd, ok := decl.(*ast.GenDecl)
		if !ok || gd.Tok != token.TYPE {
			continue
		}

		for _, spec := range gd.Specs {
			ts := spec.(*ast.TypeSpec)
			if _, ok := ts.Type.(*ast.StructType); ok {
				out[ts.Name.Name] = ts
			}
		}
	}

	return out
}

// findBase follows embedded fields from the named type until it reaches a
// reference to a base script type.
func findBase(types map[string]*ast.TypeSpec, name string, seen map[string]bool) ast.Expr {
	ts, ok := types[name]
	if !ok || seen[name] {
		return nil
	}

	seen[name] = true

	for _, field := range ts.Type.(*ast.StructType).Fields.List {
		if len(field.Names) != 0 {
			continue
		}

		typ := field.Type
		if star, ok := typ.(*ast.StarExpr); ok {
			typ = star.X
		}

		switch t := typ.(type) {
		case *ast.SelectorExpr:
			if strings.HasSuffix(t.Sel.Name, baseSuffix) {
				return t
			}
		case *ast.Ident:
			if _, local := types[t.Name]; local {
				if found := findBase(types, t.Name, seen); found != nil {
					return found
				}
			} else if strings.HasSuffix(t.Name, baseSuffix) {
				return t
			}
		}
	}

	return nil
}

// checkBase verifies Script derives from the base type and points the
// reference at fomod's. It returns the rewritten expression, if any.
func (p *preparer) checkBase(alias string) ast.Expr {
	types := p.structs()

	ts, ok := types[scriptType]
	if !ok {
		p.fail(token.NoPos, "no %s type declared", scriptType)
		return nil
	}

	base := findBase(types, scriptType, make(map[string]bool))
	if base == nil {
		p.fail(ts.Pos(), "%s must embed %s.%s", scriptType, fomod.ImportPath, baseSuffix)
		return nil
	}

	want := alias + "." + baseSuffix
	if alias == "." {
		want = baseSuffix
	}

	have := p.src[p.offset(base.Pos()):p.offset(base.End())]
	if have != want {
		p.replace(base.Pos(), base.End(), want)
		p.warn(base.Pos(), "base type %s rewritten to %s", have, want)
	}

	return base
}

func (p *preparer) rewriteLegacy(legacy []string, alias string, skip ast.Expr) {
	if len(legacy) == 0 {
		return
	}

	names := make(map[string]bool)
	for _, q := range legacy {
		names[q] = true
	}

	ast.Inspect(p.file, func(n ast.Node) bool {
		sel, ok := n.(*ast.SelectorExpr)
		if !ok || sel == skip {
			return true
		}

		id, ok := sel.X.(*ast.Ident)
		if !ok || id.Obj != nil || !names[id.Name] {
			return true
		}

		if alias == "." {
			p.blank(id.Pos(), sel.Sel.Pos())
		} else {
			p.replace(id.Pos(), id.End(), alias)
		}

		return true
	})
}

func isBoolThunk(ft *ast.FuncType) bool {
	if ft.Params.NumFields() != 0 || ft.Results.NumFields() != 1 {
		return false
	}

	id, ok := ft.Results.List[0].Type.(*ast.Ident)

	return ok && id.Name == "bool"
}

func receiverName(fd *ast.FuncDecl) string {
	typ := fd.Recv.List[0].Type
	if star, ok := typ.(*ast.StarExpr); ok {
		typ = star.X
	}

	if id, ok := typ.(*ast.Ident); ok {
		return id.Name
	}

	return ""
}

// entry resolves the entry point shape. A method on Script wins over a
// package level function.
func (p *preparer) entry() (EntryKind, bool) {
	var static *ast.FuncDecl

	for _, decl := range p.file.Decls {
		fd, ok := decl.(*ast.FuncDecl)
		if !ok || fd.Name.Name != entryMethod {
			continue
		}

		if fd.Recv != nil && receiverName(fd) != scriptType {
			continue
		}

		if !isBoolThunk(fd.Type) {
			p.fail(fd.Pos(), "%s must take no arguments and return bool", entryMethod)
			return 0, false
		}

		if fd.Recv != nil {
			return EntryInstance, true
		}

		static = fd
	}

	if static != nil {
		return EntryStatic, true
	}

	p.fail(token.NoPos, "%s: no %s method declared on %s", ErrNoEntryPoint, entryMethod, scriptType)

	return 0, false
}

func (p *preparer) apply() string {
	edits := p.edits

	sort.SliceStable(edits, func(i, j int) bool {
		return edits[i].start > edits[j].start
	})

	out := p.src

	for _, e := range edits {
		out = out[:e.start] + e.text + out[e.end:]
	}

	return out
}
