package structure

import (
	"fmt"
	"strings"

	"github.com/eatikrh/kleis-sub001/internal/ast"
)

// StructureRef names a structure applied to type arguments, e.g. Semigroup(M)
type StructureRef struct {
	Name string
	Args []ast.TypeExpr
}

func (r StructureRef) String() string {
	if len(r.Args) == 0 {
		return r.Name
	}
	args := make([]string, len(r.Args))
	for i, a := range r.Args {
		args[i] = a.String()
	}
	return fmt.Sprintf("%s(%s)", r.Name, strings.Join(args, ", "))
}

// ParseRef parses "Name" or "Name(T1, T2)" into a StructureRef
func ParseRef(src string) (StructureRef, error) {
	t, err := ast.ParseType(src)
	if err != nil {
		return StructureRef{}, err
	}
	switch tt := t.(type) {
	case *ast.NamedType:
		return StructureRef{Name: tt.Name}, nil
	case *ast.ParametricType:
		return StructureRef{Name: tt.Name, Args: tt.Args}, nil
	}
	return StructureRef{}, fmt.Errorf("%q is not a structure reference", src)
}

// Member is one entry of a structure or implements body
type Member interface {
	memberNode()
}

// Field is a named component of the carrier
type Field struct {
	Name string
	Type ast.TypeExpr
}

// Operation declares an operation and its signature. A signature that is
// not a function type makes the operation a constant (identity element).
type Operation struct {
	Name      string
	Signature ast.TypeExpr
}

// Axiom is a named boolean proposition
type Axiom struct {
	Name string
	Prop ast.Expression
}

// Nested is a sub-structure such as `structure additive : AbelianGroup(R)`
// declared inside a parent. Structure may be empty for purely inline members.
type Nested struct {
	Name      string
	Structure *StructureRef
	Members   []Member
}

// FunctionDef is a derived operation with a definitional body
type FunctionDef struct {
	Name   string
	Params []string
	Body   ast.Expression
}

func (*Field) memberNode()       {}
func (*Operation) memberNode()   {}
func (*Axiom) memberNode()       {}
func (*Nested) memberNode()      {}
func (*FunctionDef) memberNode() {}

// StructureDef is an algebraic structure declaration. It is immutable once
// registered.
type StructureDef struct {
	Name       string
	TypeParams []string
	Members    []Member
	Extends    *StructureRef
	Over       *StructureRef
	Where      []StructureRef
	Line       int
	Column     int
}

// Operations returns the direct operation members
func (s *StructureDef) Operations() []*Operation {
	var ops []*Operation
	for _, m := range s.Members {
		if op, ok := m.(*Operation); ok {
			ops = append(ops, op)
		}
	}
	return ops
}

// NestedStructures returns the direct nested members
func (s *StructureDef) NestedStructures() []*Nested {
	var out []*Nested
	for _, m := range s.Members {
		if n, ok := m.(*Nested); ok {
			out = append(out, n)
		}
	}
	return out
}

// ImplementsDef records `implements S(T) over F where C(T)`
type ImplementsDef struct {
	Structure string
	TypeArgs  []ast.TypeExpr
	Members   []Member
	Over      *StructureRef
	Where     []StructureRef
	Line      int
	Column    int
}

// TypeKey is the concrete-type key used by the operation registry
func (i *ImplementsDef) TypeKey() string {
	args := make([]string, len(i.TypeArgs))
	for j, a := range i.TypeArgs {
		args[j] = a.String()
	}
	return strings.Join(args, ", ")
}

// DataField is one field of a data constructor
type DataField struct {
	Name string // optional
	Type ast.TypeExpr
}

// Variant is one constructor of a data type
type Variant struct {
	Name   string
	Fields []DataField
}

// DataDef is an algebraic data type declaration
type DataDef struct {
	Name       string
	TypeParams []string
	Variants   []Variant
	Line       int
	Column     int
}

// AccessorName returns the field accessor name used for field i of a
// variant: the field's own name if given, else Variant_i.
func (v Variant) AccessorName(i int) string {
	if v.Fields[i].Name != "" {
		return v.Fields[i].Name
	}
	return fmt.Sprintf("%s_%d", v.Name, i)
}

// NamedAxiom is an axiom qualified with the structure that declared it
type NamedAxiom struct {
	Structure string
	Name      string
	Prop      ast.Expression
}

// QualifiedName returns Structure.Name
func (a NamedAxiom) QualifiedName() string {
	return a.Structure + "." + a.Name
}
