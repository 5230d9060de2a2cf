package instrument

import (
	"go/ast"
	"go/token"
	"go/types"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/kolkov/affinity/internal/affinity/classify"
)

// Hook is one guarded function found in a file.
type Hook struct {
	// Var is the generated package-level variable holding the operation.
	Var string

	// Type is the qualified receiver type ("widgets.Button"), or the
	// package name for constructors.
	Type string

	// Signature is the canonical classification key.
	Signature classify.Signature

	// Exempt reports whether the exempt entry hook was chosen.
	Exempt bool

	// Constructor reports a New<Type> function.
	Constructor bool

	// Attach names the parameter recorded as attached component, if any.
	Attach string

	// Pos is the position of the function declaration.
	Pos token.Position

	decl *ast.FuncDecl
}

// hasDirective reports whether doc contains the directive line.
func hasDirective(doc *ast.CommentGroup, directive string) bool {
	if doc == nil {
		return false
	}
	for _, c := range doc.List {
		if strings.TrimSpace(c.Text) == directive {
			return true
		}
	}
	return false
}

// guardedTypes returns the names of type declarations in file carrying the
// guarded directive. The directive may sit on the type spec or, for a
// single-spec declaration, on the enclosing type declaration.
func guardedTypes(file *ast.File) []string {
	var names []string
	for _, decl := range file.Decls {
		gen, ok := decl.(*ast.GenDecl)
		if !ok || gen.Tok != token.TYPE {
			continue
		}
		for _, spec := range gen.Specs {
			ts := spec.(*ast.TypeSpec)
			if hasDirective(ts.Doc, GuardedDirective) ||
				(len(gen.Specs) == 1 && hasDirective(gen.Doc, GuardedDirective)) {
				names = append(names, ts.Name.Name)
			}
		}
	}
	return names
}

// receiverType returns the base type name of a method receiver:
// T, *T, T[K] and *T[K, V] all yield T.
func receiverType(recv *ast.FieldList) string {
	if recv == nil || len(recv.List) == 0 {
		return ""
	}
	expr := recv.List[0].Type
	for {
		switch e := expr.(type) {
		case *ast.StarExpr:
			expr = e.X
		case *ast.ParenExpr:
			expr = e.X
		case *ast.IndexExpr:
			expr = e.X
		case *ast.IndexListExpr:
			expr = e.X
		case *ast.Ident:
			return e.Name
		default:
			return ""
		}
	}
}

// signatureOf builds the classification key of fn from its declared
// parameter and result types.
func signatureOf(fn *ast.FuncDecl) classify.Signature {
	return classify.Signature{
		Name:    fn.Name.Name,
		Params:  fieldTypes(fn.Type.Params),
		Results: fieldTypes(fn.Type.Results),
	}
}

func fieldTypes(fl *ast.FieldList) []string {
	if fl == nil {
		return nil
	}
	var out []string
	for _, f := range fl.List {
		t := types.ExprString(f.Type)
		n := len(f.Names)
		if n == 0 {
			n = 1
		}
		for i := 0; i < n; i++ {
			out = append(out, t)
		}
	}
	return out
}

// attachParam returns the first named pointer parameter of fn, the
// component an attach method records.
func attachParam(fn *ast.FuncDecl) string {
	for _, f := range fn.Type.Params.List {
		if _, ok := f.Type.(*ast.StarExpr); !ok {
			continue
		}
		for _, n := range f.Names {
			if n.Name != "_" {
				return n.Name
			}
		}
	}
	return ""
}

func isExported(name string) bool {
	r, _ := utf8.DecodeRuneInString(name)
	return unicode.IsUpper(r)
}

// opVar returns the generated variable name for a hook.
func opVar(typeName, funcName string) string {
	if typeName == "" {
		return opPrefix + funcName
	}
	return opPrefix + typeName + "_" + funcName
}

// weaver inserts hooks into one parsed file.
type weaver struct {
	fset    *token.FileSet
	file    *ast.File
	pkg     string
	guarded map[string]bool
	attach  map[string]bool
	cl      *classify.Classifier

	hooks []Hook
	stats Stats
}

// collect finds the functions to guard without modifying the AST.
func (w *weaver) collect() error {
	for _, decl := range w.file.Decls {
		if pos, ok := wovenVar(decl); ok {
			return NewInstrumentationErrorWithSuggestion(w.fset, pos,
				"file is already woven",
				"Weave the original sources, not the output of a previous run")
		}
		fn, ok := decl.(*ast.FuncDecl)
		if !ok {
			continue
		}

		typeName := receiverType(fn.Recv)
		isAttach := hasDirective(fn.Doc, AttachDirective)

		var hook Hook
		switch {
		case fn.Recv != nil && w.guarded[typeName]:
			if !isExported(fn.Name.Name) && !hasDirective(fn.Doc, GuardedDirective) {
				continue
			}
			hook = Hook{
				Var:  opVar(typeName, fn.Name.Name),
				Type: w.pkg + "." + typeName,
			}
			isAttach = isAttach || w.attach[fn.Name.Name]
		case fn.Recv == nil && strings.HasPrefix(fn.Name.Name, "New") && w.guarded[strings.TrimPrefix(fn.Name.Name, "New")]:
			hook = Hook{
				Var:         opVar("", fn.Name.Name),
				Type:        w.pkg,
				Constructor: true,
			}
		default:
			if isAttach {
				return NewInstrumentationErrorWithSuggestion(w.fset, fn.Pos(),
					"attach directive on "+fn.Name.Name+", which is not a method of a guarded type",
					"Mark the receiver type with "+GuardedDirective)
			}
			continue
		}

		if fn.Body == nil {
			continue
		}
		if hasDirective(fn.Doc, IgnoreDirective) {
			w.stats.Ignored++
			continue
		}

		hook.Signature = signatureOf(fn)
		hook.Exempt = w.cl.IsExempt(hook.Signature)
		hook.Pos = w.fset.Position(fn.Pos())
		hook.decl = fn
		if isAttach {
			hook.Attach = attachParam(fn)
			if hook.Attach == "" {
				return NewInstrumentationErrorWithSuggestion(w.fset, fn.Pos(),
					"attach method "+fn.Name.Name+" has no pointer parameter to record",
					"Take the child component as a named pointer parameter")
			}
		}

		w.hooks = append(w.hooks, hook)
		switch {
		case hook.Constructor:
			w.stats.Constructors++
		case hook.Exempt:
			w.stats.Exempt++
		default:
			w.stats.Strict++
		}
		if hook.Attach != "" {
			w.stats.AttachSites++
		}
	}
	return nil
}

// wovenVar reports a generated operation variable in decl.
func wovenVar(decl ast.Decl) (token.Pos, bool) {
	gen, ok := decl.(*ast.GenDecl)
	if !ok || gen.Tok != token.VAR {
		return token.NoPos, false
	}
	for _, spec := range gen.Specs {
		for _, n := range spec.(*ast.ValueSpec).Names {
			if strings.HasPrefix(n.Name, opPrefix) {
				return n.Pos(), true
			}
		}
	}
	return token.NoPos, false
}

// apply inserts the hook statements at the top of each guarded body.
// alias is the file's name for the runtime package.
func (w *weaver) apply(alias string) {
	for _, h := range w.hooks {
		h.decl.Body.List = append(hookStmts(alias, h), h.decl.Body.List...)
	}
}

// hookStmts builds:
//
//	defer affinity.Exit(affinity.EnterStrict(_affinityOp_Button_SetText))
//	affinity.ContainerAttach(child)
func hookStmts(alias string, h Hook) []ast.Stmt {
	enter := "EnterStrict"
	if h.Exempt {
		enter = "EnterExempt"
	}
	stmts := []ast.Stmt{
		&ast.DeferStmt{
			Call: &ast.CallExpr{
				Fun: sel(alias, "Exit"),
				Args: []ast.Expr{&ast.CallExpr{
					Fun:  sel(alias, enter),
					Args: []ast.Expr{ast.NewIdent(h.Var)},
				}},
			},
		},
	}
	if h.Attach != "" {
		stmts = append(stmts, &ast.ExprStmt{X: &ast.CallExpr{
			Fun:  sel(alias, "ContainerAttach"),
			Args: []ast.Expr{ast.NewIdent(h.Attach)},
		}})
	}
	return stmts
}

func sel(pkg, name string) *ast.SelectorExpr {
	return &ast.SelectorExpr{X: ast.NewIdent(pkg), Sel: ast.NewIdent(name)}
}
