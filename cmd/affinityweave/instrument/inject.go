package instrument

import (
	"go/ast"
	"go/token"
	"strconv"
)

// injectImport makes sure file imports the monitor runtime and returns the
// name woven code must use to refer to it.
//
// Edge cases:
//   - runtime already imported: its alias (or the default name) is reused
//   - dot or blank import of the runtime: a second, named import is added
//   - no import block: one is created after the package clause
//   - single ungrouped import: converted to a grouped block
func injectImport(file *ast.File) string {
	for _, imp := range file.Imports {
		path, err := strconv.Unquote(imp.Path.Value)
		if err != nil || path != RuntimeImportPath {
			continue
		}
		if imp.Name == nil {
			return RuntimeAlias
		}
		if imp.Name.Name != "." && imp.Name.Name != "_" {
			return imp.Name.Name
		}
	}

	var importDecl *ast.GenDecl
	for _, decl := range file.Decls {
		if gen, ok := decl.(*ast.GenDecl); ok && gen.Tok == token.IMPORT {
			importDecl = gen
			break
		}
	}
	if importDecl == nil {
		importDecl = &ast.GenDecl{Tok: token.IMPORT, Lparen: 1}
		file.Decls = append([]ast.Decl{importDecl}, file.Decls...)
	}

	spec := &ast.ImportSpec{
		Name: ast.NewIdent(RuntimeAlias),
		Path: &ast.BasicLit{Kind: token.STRING, Value: strconv.Quote(RuntimeImportPath)},
	}
	importDecl.Specs = append(importDecl.Specs, spec)
	if importDecl.Lparen == 0 && len(importDecl.Specs) > 1 {
		importDecl.Lparen = importDecl.Pos()
	}

	file.Imports = nil
	for _, decl := range file.Decls {
		gen, ok := decl.(*ast.GenDecl)
		if !ok || gen.Tok != token.IMPORT {
			continue
		}
		for _, s := range gen.Specs {
			if imp, ok := s.(*ast.ImportSpec); ok {
				file.Imports = append(file.Imports, imp)
			}
		}
	}
	return RuntimeAlias
}
