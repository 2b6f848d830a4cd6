package linter

import (
	"strings"
	"unicode"

	"github.com/eatikrh/kleis-sub001/internal/ast"
	"github.com/eatikrh/kleis-sub001/internal/diagnostic"
	"github.com/eatikrh/kleis-sub001/internal/structure"
)

// Linter performs style and best-practice checks on a structure document.
// It reports warnings (never errors) using the diagnostic system.
type Linter struct {
	doc  *structure.Document
	ops  *structure.OperationRegistry
	reg  *structure.Registry
	diag *diagnostic.Diagnostics
}

// Lint runs all lint rules on doc. reg is the registry the document was
// loaded into, so names declared by other documents resolve.
func Lint(doc *structure.Document, reg *structure.Registry) *diagnostic.Diagnostics {
	l := &Linter{
		doc:  doc,
		ops:  structure.BuildOperations(reg),
		reg:  reg,
		diag: diagnostic.New(),
	}

	l.lintStructures()
	l.lintData()
	l.lintGoals()

	l.diag.SetFile(doc.Path)
	return l.diag
}

// lintStructures checks all structure declarations.
func (l *Linter) lintStructures() {
	for _, s := range l.doc.Structures {
		l.checkStructureNaming(s)
		l.checkStructureWithoutAxioms(s)
		l.checkOperationNaming(s)
		l.checkUnusedOperations(s)
		l.checkFunctionParams(s)
		l.checkUnboundNames(s)
	}
}

// lintData checks all data type declarations.
func (l *Linter) lintData() {
	for _, d := range l.doc.Data {
		if !isPascalCase(d.Name) {
			l.diag.Warningf(d.Line, d.Column,
				"data type '%s' should use PascalCase naming", d.Name)
		}
		for _, v := range d.Variants {
			if !isPascalCase(v.Name) {
				l.diag.Warningf(d.Line, d.Column,
					"constructor '%s.%s' should use PascalCase naming", d.Name, v.Name)
			}
		}
	}
}

// lintGoals checks all goal declarations.
func (l *Linter) lintGoals() {
	seen := make(map[string]bool)
	for _, g := range l.doc.Goals {
		if seen[g.Name] {
			l.diag.Warningf(g.Line, g.Column,
				"goal '%s' is declared more than once", g.Name)
		}
		seen[g.Name] = true

		var names []string
		for _, e := range g.Exprs() {
			names = append(names, ast.OperationNames(e)...)
			names = append(names, ast.FreeObjects(e)...)
		}
		owned := len(g.Structures) > 0
		for _, n := range names {
			if len(l.ops.Owners(n)) > 0 {
				owned = true
				break
			}
		}
		if !owned {
			l.diag.Warningf(g.Line, g.Column,
				"goal '%s' uses no structure; it is checked against built-in theories only", g.Name)
		}
	}
}

// --- Lint rules ---

// checkStructureNaming warns if a structure name is not PascalCase.
func (l *Linter) checkStructureNaming(s *structure.StructureDef) {
	if !isPascalCase(s.Name) {
		l.diag.Warningf(s.Line, s.Column,
			"structure '%s' should use PascalCase naming", s.Name)
	}
}

// checkStructureWithoutAxioms warns if a structure declares operations but
// constrains none of them.
func (l *Linter) checkStructureWithoutAxioms(s *structure.StructureDef) {
	if len(s.Operations()) == 0 {
		return
	}
	if len(l.reg.Axioms(s.Name)) == 0 && s.Extends == nil {
		c, err := l.reg.Closure(s.Name)
		if err == nil && len(c.Axioms) > 0 {
			return
		}
		l.diag.Warningf(s.Line, s.Column,
			"structure '%s' has operations but no axioms", s.Name)
	}
}

// checkOperationNaming warns if an operation starts with an uppercase
// letter, which reads as a data constructor.
func (l *Linter) checkOperationNaming(s *structure.StructureDef) {
	for _, op := range s.Operations() {
		runes := []rune(op.Name)
		if len(runes) > 0 && unicode.IsUpper(runes[0]) {
			l.diag.Warningf(s.Line, s.Column,
				"operation '%s.%s' starts with an uppercase letter and reads like a constructor", s.Name, op.Name)
		}
		if _, isCtor := l.reg.ConstructorOwner(op.Name); isCtor {
			l.diag.Warningf(s.Line, s.Column,
				"operation '%s.%s' has the same name as a data constructor", s.Name, op.Name)
		}
	}
}

// checkUnusedOperations warns if an operation appears in no axiom of its
// structure or of any structure that requires it.
func (l *Linter) checkUnusedOperations(s *structure.StructureDef) {
	used := make(map[string]bool)
	collect := func(e ast.Expression) {
		for _, n := range ast.OperationNames(e) {
			used[n] = true
		}
		for _, n := range ast.FreeObjects(e) {
			used[n] = true
		}
	}
	for _, name := range l.reg.Names() {
		c, err := l.reg.Closure(name)
		if err != nil || !contains(c.Order, s.Name) {
			continue
		}
		for _, ax := range c.Axioms {
			collect(ax.Prop)
		}
		for _, fn := range l.reg.FunctionDefs(name) {
			collect(fn.Body)
		}
	}
	for _, op := range s.Operations() {
		if !used[op.Name] {
			l.diag.Warningf(s.Line, s.Column,
				"operation '%s.%s' is not constrained by any axiom", s.Name, op.Name)
		}
	}
}

// checkFunctionParams warns about derived-operation parameters the body
// never uses.
func (l *Linter) checkFunctionParams(s *structure.StructureDef) {
	for _, fn := range l.reg.FunctionDefs(s.Name) {
		free := make(map[string]bool)
		for _, n := range ast.FreeObjects(fn.Body) {
			free[n] = true
		}
		for _, p := range fn.Params {
			if !free[p] && !strings.HasPrefix(p, "_") {
				l.diag.Warningf(s.Line, s.Column,
					"parameter '%s' of '%s.%s' is never used", p, s.Name, fn.Name)
			}
		}
	}
}

// checkUnboundNames warns about free names in axioms that no structure
// declares. The solver treats them as fresh constants, which is rarely
// what the author meant.
func (l *Linter) checkUnboundNames(s *structure.StructureDef) {
	for _, ax := range l.reg.Axioms(s.Name) {
		for _, n := range ast.FreeObjects(ax.Prop) {
			if n == "true" || n == "false" || len(l.ops.Owners(n)) > 0 {
				continue
			}
			if _, ok := l.reg.ConstructorOwner(n); ok {
				continue
			}
			l.diag.Warningf(s.Line, s.Column,
				"axiom '%s.%s' uses '%s', which no structure declares; quantify it or declare it as an operation", s.Name, ax.Name, n)
		}
	}
}

func contains(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}

// isPascalCase returns true if the name starts with an uppercase letter
// and contains no underscores.
func isPascalCase(name string) bool {
	if len(name) == 0 {
		return false
	}
	runes := []rune(name)
	if !unicode.IsUpper(runes[0]) {
		return false
	}
	return !strings.ContainsRune(name, '_')
}
