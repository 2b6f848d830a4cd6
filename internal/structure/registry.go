package structure

import (
	"fmt"
	"sort"
	"strings"

	"github.com/eatikrh/kleis-sub001/internal/ast"
)

// Registry holds every structure, implements block and data type known to
// a session, keyed by name.
type Registry struct {
	structures   map[string]*StructureDef
	order        []string // registration order
	implements   []*ImplementsDef
	data         map[string]*DataDef
	dataOrder    []string
	constructors map[string]string // constructor name -> data type name
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		structures:   make(map[string]*StructureDef),
		data:         make(map[string]*DataDef),
		constructors: make(map[string]string),
	}
}

// IdentityElement is a nullary operation of a structure
type IdentityElement struct {
	Name string
	Type ast.TypeExpr
}

// Register adds a structure. Duplicate names are rejected, and so is a
// structure whose extends chain leads back to itself or that names itself
// as its over or nested structure.
func (r *Registry) Register(def *StructureDef) error {
	if def == nil || def.Name == "" {
		return fmt.Errorf("structure must have a name")
	}
	if _, exists := r.structures[def.Name]; exists {
		return fmt.Errorf("structure %q is already registered", def.Name)
	}
	if def.Over != nil && def.Over.Name == def.Name {
		return fmt.Errorf("structure %q cannot be declared over itself", def.Name)
	}
	for _, n := range def.NestedStructures() {
		if n.Structure != nil && n.Structure.Name == def.Name {
			return fmt.Errorf("structure %q cannot nest itself as %q", def.Name, n.Name)
		}
	}
	if def.Extends != nil {
		chain := []string{def.Name}
		seen := map[string]bool{def.Name: true}
		next := def.Extends.Name
		for next != "" {
			chain = append(chain, next)
			if seen[next] {
				return fmt.Errorf("extends cycle: %s", strings.Join(chain, " -> "))
			}
			seen[next] = true
			parent, ok := r.structures[next]
			if !ok || parent.Extends == nil {
				break
			}
			next = parent.Extends.Name
		}
	}

	r.structures[def.Name] = def
	r.order = append(r.order, def.Name)
	return nil
}

// RegisterImplements records an implements block for a registered structure
func (r *Registry) RegisterImplements(impl *ImplementsDef) error {
	if _, ok := r.structures[impl.Structure]; !ok {
		return fmt.Errorf("implements references unknown structure %q", impl.Structure)
	}
	r.implements = append(r.implements, impl)
	return nil
}

// RegisterData adds a data type. Constructor names must be unique across
// all data types.
func (r *Registry) RegisterData(d *DataDef) error {
	if _, exists := r.data[d.Name]; exists {
		return fmt.Errorf("data type %q is already registered", d.Name)
	}
	if len(d.Variants) == 0 {
		return fmt.Errorf("data type %q has no constructors", d.Name)
	}
	for _, v := range d.Variants {
		if owner, taken := r.constructors[v.Name]; taken {
			return fmt.Errorf("constructor %q of %q is already declared by %q", v.Name, d.Name, owner)
		}
	}
	for _, v := range d.Variants {
		r.constructors[v.Name] = d.Name
	}
	r.data[d.Name] = d
	r.dataOrder = append(r.dataOrder, d.Name)
	return nil
}

// Get returns a structure by name
func (r *Registry) Get(name string) (*StructureDef, bool) {
	s, ok := r.structures[name]
	return s, ok
}

// Names returns structure names in registration order
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// Len returns the number of registered structures
func (r *Registry) Len() int {
	return len(r.structures)
}

// Axioms returns the direct axioms of a structure, excluding anything
// inherited or nested.
func (r *Registry) Axioms(name string) []NamedAxiom {
	s, ok := r.structures[name]
	if !ok {
		return nil
	}
	var out []NamedAxiom
	for _, m := range s.Members {
		if ax, ok := m.(*Axiom); ok {
			out = append(out, NamedAxiom{Structure: name, Name: ax.Name, Prop: ax.Prop})
		}
	}
	return out
}

// nestedAxioms returns inline axioms of nested members, qualified by the
// nested member's name.
func nestedAxioms(owner string, prefix string, members []Member) []NamedAxiom {
	var out []NamedAxiom
	for _, m := range members {
		n, ok := m.(*Nested)
		if !ok {
			continue
		}
		qual := prefix + n.Name
		for _, nm := range n.Members {
			if ax, ok := nm.(*Axiom); ok {
				out = append(out, NamedAxiom{Structure: owner, Name: qual + "." + ax.Name, Prop: ax.Prop})
			}
		}
		out = append(out, nestedAxioms(owner, qual+".", n.Members)...)
	}
	return out
}

// WhereConstraints returns the structure's own where references followed by
// those declared on any implements block for it.
func (r *Registry) WhereConstraints(name string) []StructureRef {
	var out []StructureRef
	if s, ok := r.structures[name]; ok {
		out = append(out, s.Where...)
	}
	for _, impl := range r.implements {
		if impl.Structure == name {
			out = append(out, impl.Where...)
		}
	}
	return out
}

// Implements returns the implements blocks registered for a structure
func (r *Registry) Implements(name string) []*ImplementsDef {
	var out []*ImplementsDef
	for _, impl := range r.implements {
		if impl.Structure == name {
			out = append(out, impl)
		}
	}
	return out
}

// AllImplements returns every implements block in registration order
func (r *Registry) AllImplements() []*ImplementsDef {
	return append([]*ImplementsDef(nil), r.implements...)
}

// IdentityElements returns the nullary operations of a structure,
// including those of nested members.
func (r *Registry) IdentityElements(name string) []IdentityElement {
	s, ok := r.structures[name]
	if !ok {
		return nil
	}
	return identityElements(s.Members)
}

func identityElements(members []Member) []IdentityElement {
	var out []IdentityElement
	for _, m := range members {
		switch mm := m.(type) {
		case *Operation:
			if mm.Signature != nil && !ast.IsFunctionType(mm.Signature) {
				out = append(out, IdentityElement{Name: mm.Name, Type: mm.Signature})
			}
		case *Nested:
			out = append(out, identityElements(mm.Members)...)
		}
	}
	return out
}

// FunctionDefs returns derived operations of a structure and its nested members
func (r *Registry) FunctionDefs(name string) []*FunctionDef {
	s, ok := r.structures[name]
	if !ok {
		return nil
	}
	return functionDefs(s.Members)
}

func functionDefs(members []Member) []*FunctionDef {
	var out []*FunctionDef
	for _, m := range members {
		switch mm := m.(type) {
		case *FunctionDef:
			out = append(out, mm)
		case *Nested:
			out = append(out, functionDefs(mm.Members)...)
		}
	}
	return out
}

// DataTypes returns data types in registration order
func (r *Registry) DataTypes() []*DataDef {
	out := make([]*DataDef, 0, len(r.dataOrder))
	for _, n := range r.dataOrder {
		out = append(out, r.data[n])
	}
	return out
}

// DataType returns a data type by name
func (r *Registry) DataType(name string) (*DataDef, bool) {
	d, ok := r.data[name]
	return d, ok
}

// ConstructorOwner returns the data type that declares a constructor
func (r *Registry) ConstructorOwner(ctor string) (string, bool) {
	d, ok := r.constructors[ctor]
	return d, ok
}

// Closure is the result of a guarded traversal from one structure
type Closure struct {
	Root string
	// Order lists the reached structures with dependencies before the
	// structures that require them; Root is last.
	Order []string
	// Axioms of every structure in Order, in the same order.
	Axioms []NamedAxiom
	// Missing lists referenced structures that are not registered.
	Missing []string
}

// Closure computes the transitive set of structures and axioms required by
// name through extends, over, where (including implements-level where
// clauses) and nested relationships. Each structure is visited once.
func (r *Registry) Closure(name string) (*Closure, error) {
	if _, ok := r.structures[name]; !ok {
		return nil, fmt.Errorf("unknown structure %q", name)
	}
	c := &Closure{Root: name}
	visited := make(map[string]bool)
	missing := make(map[string]bool)

	var visit func(n string)
	visit = func(n string) {
		if visited[n] {
			return
		}
		visited[n] = true
		s, ok := r.structures[n]
		if !ok {
			if !missing[n] {
				missing[n] = true
				c.Missing = append(c.Missing, n)
			}
			return
		}
		for _, dep := range r.directDependencies(s) {
			visit(dep)
		}
		c.Order = append(c.Order, n)
		c.Axioms = append(c.Axioms, r.Axioms(n)...)
		c.Axioms = append(c.Axioms, nestedAxioms(n, "", s.Members)...)
	}
	visit(name)
	return c, nil
}

// directDependencies lists the structures s requires, where constraints
// first, then extends, over and nested structure types.
func (r *Registry) directDependencies(s *StructureDef) []string {
	var deps []string
	for _, w := range r.WhereConstraints(s.Name) {
		deps = append(deps, w.Name)
	}
	if s.Extends != nil {
		deps = append(deps, s.Extends.Name)
	}
	if s.Over != nil {
		deps = append(deps, s.Over.Name)
	}
	for _, impl := range r.Implements(s.Name) {
		if impl.Over != nil {
			deps = append(deps, impl.Over.Name)
		}
	}
	var nested func(members []Member)
	nested = func(members []Member) {
		for _, m := range members {
			if n, ok := m.(*Nested); ok {
				if n.Structure != nil {
					deps = append(deps, n.Structure.Name)
				}
				nested(n.Members)
			}
		}
	}
	nested(s.Members)
	return deps
}

// ClosureOf merges the closures of several structures, keeping first-seen
// order and dropping duplicates.
func (r *Registry) ClosureOf(names []string) (*Closure, error) {
	merged := &Closure{Root: strings.Join(names, ",")}
	seen := make(map[string]bool)
	seenMissing := make(map[string]bool)
	for _, n := range names {
		c, err := r.Closure(n)
		if err != nil {
			return nil, err
		}
		for _, s := range c.Order {
			if seen[s] {
				continue
			}
			seen[s] = true
			merged.Order = append(merged.Order, s)
			for _, ax := range c.Axioms {
				if ax.Structure == s {
					merged.Axioms = append(merged.Axioms, ax)
				}
			}
		}
		for _, m := range c.Missing {
			if !seenMissing[m] {
				seenMissing[m] = true
				merged.Missing = append(merged.Missing, m)
			}
		}
	}
	sort.Strings(merged.Missing)
	return merged, nil
}
