package structure

import (
	"fmt"
	"sort"
	"strings"
)

// OperationRegistry is the derived index built once all structures and
// implements blocks are registered: operation name to owning structures,
// and concrete type to the structures it implements.
type OperationRegistry struct {
	owners     map[string][]string
	typeImpls  map[string][]string
	signatures map[string]*Operation
}

// BuildOperations indexes the registry. Implementing a structure counts as
// implementing every structure in its extends chain.
func BuildOperations(r *Registry) *OperationRegistry {
	o := &OperationRegistry{
		owners:     make(map[string][]string),
		typeImpls:  make(map[string][]string),
		signatures: make(map[string]*Operation),
	}

	for _, name := range r.order {
		s := r.structures[name]
		var walk func(members []Member)
		walk = func(members []Member) {
			for _, m := range members {
				switch mm := m.(type) {
				case *Operation:
					o.addOwner(mm.Name, name)
					if _, ok := o.signatures[mm.Name]; !ok {
						o.signatures[mm.Name] = mm
					}
				case *FunctionDef:
					o.addOwner(mm.Name, name)
				case *Nested:
					walk(mm.Members)
				}
			}
		}
		walk(s.Members)
	}

	for _, impl := range r.implements {
		key := impl.TypeKey()
		seen := make(map[string]bool)
		for next := impl.Structure; next != "" && !seen[next]; {
			seen[next] = true
			o.addImpl(key, next)
			parent, ok := r.structures[next]
			if !ok || parent.Extends == nil {
				break
			}
			next = parent.Extends.Name
		}
	}
	return o
}

func (o *OperationRegistry) addOwner(op, structure string) {
	for _, s := range o.owners[op] {
		if s == structure {
			return
		}
	}
	o.owners[op] = append(o.owners[op], structure)
}

func (o *OperationRegistry) addImpl(typ, structure string) {
	for _, s := range o.typeImpls[typ] {
		if s == structure {
			return
		}
	}
	o.typeImpls[typ] = append(o.typeImpls[typ], structure)
}

// Owners returns the structures that declare op, in registration order
func (o *OperationRegistry) Owners(op string) []string {
	return append([]string(nil), o.owners[op]...)
}

// Signature returns the first declaration of op
func (o *OperationRegistry) Signature(op string) (*Operation, bool) {
	s, ok := o.signatures[op]
	return s, ok
}

// Structures returns the structures implemented by a concrete type
func (o *OperationRegistry) Structures(typ string) []string {
	return append([]string(nil), o.typeImpls[typ]...)
}

// Types returns every concrete type with at least one implementation
func (o *OperationRegistry) Types() []string {
	out := make([]string, 0, len(o.typeImpls))
	for t := range o.typeImpls {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Implements reports whether typ implements structure
func (o *OperationRegistry) Implements(typ, structure string) bool {
	for _, s := range o.typeImpls[typ] {
		if s == structure {
			return true
		}
	}
	return false
}

// ValidateApplication checks that op applied to a value of typ is backed
// by an implementation of one of op's owning structures.
func (o *OperationRegistry) ValidateApplication(op, typ string) error {
	owners := o.owners[op]
	if len(owners) == 0 {
		return fmt.Errorf("operation %q is not declared by any structure", op)
	}
	for _, s := range owners {
		if o.Implements(typ, s) {
			return nil
		}
	}
	return fmt.Errorf("operation %q requires %s for type %s, but %s implements none of them",
		op, strings.Join(owners, " or "), typ, typ)
}
