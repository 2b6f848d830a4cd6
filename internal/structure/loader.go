package structure

import (
	"fmt"
	"os"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"

	"github.com/eatikrh/kleis-sub001/internal/ast"
	"github.com/eatikrh/kleis-sub001/internal/diagnostic"
)

// GoalKind selects the check performed for a goal
type GoalKind string

const (
	GoalVerify      GoalKind = "verify"
	GoalSatisfiable GoalKind = "satisfiable"
	GoalEquivalent  GoalKind = "equivalent"
)

// Goal is a proof obligation declared in a structure document
type Goal struct {
	Name string
	Kind GoalKind
	// Structures optionally forces structures into context in addition to
	// those discovered from the proposition.
	Structures []string
	Prop       ast.Expression
	Left       ast.Expression // equivalent goals only
	Right      ast.Expression
	File       string
	Line       int
	Column     int
}

// Exprs returns the expressions the goal checks
func (g Goal) Exprs() []ast.Expression {
	if g.Kind == GoalEquivalent {
		if g.Left == nil || g.Right == nil {
			return nil
		}
		return []ast.Expression{g.Left, g.Right}
	}
	if g.Prop == nil {
		return nil
	}
	return []ast.Expression{g.Prop}
}

// Document is the decoded content of one structure document
type Document struct {
	Path       string
	Structures []*StructureDef
	Implements []*ImplementsDef
	Data       []*DataDef
	Goals      []Goal
}

// LoadFile reads and decodes a structure document. The returned error is
// reserved for I/O failures; content problems are reported as diagnostics.
func LoadFile(path string) (*Document, *diagnostic.Diagnostics, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("reading %s: %w", path, err)
	}
	doc, diags := Parse(data)
	doc.Path = path
	for i := range doc.Goals {
		doc.Goals[i].File = path
	}
	diags.SetFile(path)
	return doc, diags, nil
}

// Parse decodes a structure document
func Parse(data []byte) (*Document, *diagnostic.Diagnostics) {
	d := &decoder{diags: diagnostic.New()}
	doc := &Document{}

	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		d.diags.Errorf(0, 0, "invalid YAML: %v", err)
		return doc, d.diags
	}
	if len(root.Content) == 0 {
		return doc, d.diags
	}
	top := root.Content[0]
	if top.Kind != yaml.MappingNode {
		d.errorAt(top, "document must be a mapping with structures, implements, data and goals")
		return doc, d.diags
	}

	for i := 0; i+1 < len(top.Content); i += 2 {
		key, val := top.Content[i], top.Content[i+1]
		switch key.Value {
		case "structures":
			for _, n := range d.seq(val) {
				if s := d.structure(n); s != nil {
					doc.Structures = append(doc.Structures, s)
				}
			}
		case "implements":
			for _, n := range d.seq(val) {
				if impl := d.implements(n); impl != nil {
					doc.Implements = append(doc.Implements, impl)
				}
			}
		case "data":
			for _, n := range d.seq(val) {
				if dd := d.dataDef(n); dd != nil {
					doc.Data = append(doc.Data, dd)
				}
			}
		case "goals":
			for _, n := range d.seq(val) {
				if g, ok := d.goal(n); ok {
					doc.Goals = append(doc.Goals, g)
				}
			}
		default:
			d.diags.ErrorWithHint(key.Line, key.Column, fmt.Sprintf("unknown section %q", key.Value),
				"expected one of: structures, implements, data, goals")
		}
	}
	return doc, d.diags
}

// Register adds the document's declarations to r: data types, then
// structures, then implements blocks.
func (doc *Document) Register(r *Registry) *diagnostic.Diagnostics {
	diags := diagnostic.New()
	for _, dd := range doc.Data {
		if err := r.RegisterData(dd); err != nil {
			diags.ErrorfInFile(doc.Path, dd.Line, dd.Column, "%v", err)
		}
	}
	for _, s := range doc.Structures {
		if err := r.Register(s); err != nil {
			diags.ErrorfInFile(doc.Path, s.Line, s.Column, "%v", err)
		}
	}
	for _, impl := range doc.Implements {
		if err := r.RegisterImplements(impl); err != nil {
			diags.ErrorfInFile(doc.Path, impl.Line, impl.Column, "%v", err)
		}
	}
	return diags
}

// LoadInto loads several documents into one registry and returns the goals
// of all of them.
func LoadInto(r *Registry, paths ...string) ([]Goal, *diagnostic.Diagnostics, error) {
	all := diagnostic.New()
	var docs []*Document
	for _, p := range paths {
		doc, diags, err := LoadFile(p)
		if err != nil {
			return nil, all, err
		}
		all.Merge(diags)
		docs = append(docs, doc)
	}
	// Data types and structures from every document go in before any
	// implements block so documents may reference each other.
	var goals []Goal
	for _, doc := range docs {
		partial := &Document{Path: doc.Path, Data: doc.Data, Structures: doc.Structures}
		all.Merge(partial.Register(r))
		goals = append(goals, doc.Goals...)
	}
	for _, doc := range docs {
		partial := &Document{Path: doc.Path, Implements: doc.Implements}
		all.Merge(partial.Register(r))
	}
	return goals, all, nil
}

type decoder struct {
	diags *diagnostic.Diagnostics
}

func (d *decoder) errorAt(n *yaml.Node, format string, args ...interface{}) {
	d.diags.Errorf(n.Line, n.Column, format, args...)
}

func (d *decoder) seq(n *yaml.Node) []*yaml.Node {
	if n.Kind == yaml.ScalarNode && n.ShortTag() == "!!null" {
		return nil
	}
	if n.Kind != yaml.SequenceNode {
		d.errorAt(n, "expected a list")
		return nil
	}
	return n.Content
}

// fields returns a mapping node's values keyed by key, reporting keys
// outside allowed.
func (d *decoder) fields(n *yaml.Node, what string, allowed ...string) map[string]*yaml.Node {
	if n.Kind != yaml.MappingNode {
		d.errorAt(n, "%s must be a mapping", what)
		return nil
	}
	out := make(map[string]*yaml.Node)
	for i := 0; i+1 < len(n.Content); i += 2 {
		key := n.Content[i]
		ok := false
		for _, a := range allowed {
			if key.Value == a {
				ok = true
				break
			}
		}
		if !ok {
			d.diags.ErrorWithHint(key.Line, key.Column, fmt.Sprintf("unknown key %q in %s", key.Value, what),
				"allowed keys: "+strings.Join(allowed, ", "))
			continue
		}
		out[key.Value] = n.Content[i+1]
	}
	return out
}

func (d *decoder) scalar(n *yaml.Node, what string) (string, bool) {
	if n == nil || n.Kind != yaml.ScalarNode || n.Value == "" {
		if n != nil {
			d.errorAt(n, "%s must be a non-empty string", what)
		}
		return "", false
	}
	return n.Value, true
}

func (d *decoder) stringList(n *yaml.Node, what string) []string {
	if n == nil {
		return nil
	}
	var out []string
	for _, item := range d.seq(n) {
		if s, ok := d.scalar(item, what); ok {
			out = append(out, s)
		}
	}
	return out
}

func (d *decoder) typeExpr(n *yaml.Node) ast.TypeExpr {
	s, ok := d.scalar(n, "type")
	if !ok {
		return nil
	}
	t, err := ast.ParseType(s)
	if err != nil {
		d.errorAt(n, "%v", err)
		return nil
	}
	return t
}

func (d *decoder) ref(n *yaml.Node) *StructureRef {
	s, ok := d.scalar(n, "structure reference")
	if !ok {
		return nil
	}
	r, err := ParseRef(s)
	if err != nil {
		d.errorAt(n, "%v", err)
		return nil
	}
	return &r
}

func (d *decoder) refs(n *yaml.Node) []StructureRef {
	if n == nil {
		return nil
	}
	if n.Kind == yaml.ScalarNode {
		if r := d.ref(n); r != nil {
			return []StructureRef{*r}
		}
		return nil
	}
	var out []StructureRef
	for _, item := range d.seq(n) {
		if r := d.ref(item); r != nil {
			out = append(out, *r)
		}
	}
	return out
}

var memberKeys = []string{"fields", "operations", "axioms", "nested", "functions"}

func (d *decoder) members(f map[string]*yaml.Node) []Member {
	var out []Member
	if n, ok := f["fields"]; ok {
		for _, item := range d.seq(n) {
			ff := d.fields(item, "field", "name", "type")
			if name, ok := d.scalar(ff["name"], "field name"); ok {
				out = append(out, &Field{Name: name, Type: d.typeExpr(ff["type"])})
			}
		}
	}
	if n, ok := f["operations"]; ok {
		for _, item := range d.seq(n) {
			of := d.fields(item, "operation", "name", "type")
			name, ok := d.scalar(of["name"], "operation name")
			if !ok {
				if of != nil && of["name"] == nil {
					d.errorAt(item, "operation is missing a name")
				}
				continue
			}
			var sig ast.TypeExpr
			if of["type"] != nil {
				sig = d.typeExpr(of["type"])
			}
			out = append(out, &Operation{Name: name, Signature: sig})
		}
	}
	if n, ok := f["axioms"]; ok {
		for _, item := range d.seq(n) {
			af := d.fields(item, "axiom", "name", "prop")
			name, ok := d.scalar(af["name"], "axiom name")
			if !ok {
				if af != nil && af["name"] == nil {
					d.errorAt(item, "axiom is missing a name")
				}
				continue
			}
			if af["prop"] == nil {
				d.errorAt(item, "axiom %q has no prop", name)
				continue
			}
			if prop := d.expr(af["prop"]); prop != nil {
				out = append(out, &Axiom{Name: name, Prop: prop})
			}
		}
	}
	if n, ok := f["functions"]; ok {
		for _, item := range d.seq(n) {
			ff := d.fields(item, "function", "name", "params", "body")
			name, ok := d.scalar(ff["name"], "function name")
			if !ok || ff["body"] == nil {
				if ok {
					d.errorAt(item, "function %q has no body", name)
				}
				continue
			}
			if body := d.expr(ff["body"]); body != nil {
				out = append(out, &FunctionDef{Name: name, Params: d.stringList(ff["params"], "parameter"), Body: body})
			}
		}
	}
	if n, ok := f["nested"]; ok {
		for _, item := range d.seq(n) {
			allowed := append([]string{"name", "structure"}, memberKeys...)
			nf := d.fields(item, "nested structure", allowed...)
			name, ok := d.scalar(nf["name"], "nested structure name")
			if !ok {
				continue
			}
			nested := &Nested{Name: name, Members: d.members(nf)}
			if nf["structure"] != nil {
				nested.Structure = d.ref(nf["structure"])
			}
			out = append(out, nested)
		}
	}
	return out
}

func (d *decoder) structure(n *yaml.Node) *StructureDef {
	allowed := append([]string{"name", "params", "extends", "over", "where"}, memberKeys...)
	f := d.fields(n, "structure", allowed...)
	if f == nil {
		return nil
	}
	name, ok := d.scalar(f["name"], "structure name")
	if !ok {
		if f["name"] == nil {
			d.errorAt(n, "structure is missing a name")
		}
		return nil
	}
	s := &StructureDef{
		Name:       name,
		TypeParams: d.stringList(f["params"], "type parameter"),
		Members:    d.members(f),
		Where:      d.refs(f["where"]),
		Line:       n.Line,
		Column:     n.Column,
	}
	if f["extends"] != nil {
		s.Extends = d.ref(f["extends"])
	}
	if f["over"] != nil {
		s.Over = d.ref(f["over"])
	}
	return s
}

func (d *decoder) implements(n *yaml.Node) *ImplementsDef {
	allowed := append([]string{"structure", "args", "over", "where"}, memberKeys...)
	f := d.fields(n, "implements", allowed...)
	if f == nil {
		return nil
	}
	name, ok := d.scalar(f["structure"], "implemented structure")
	if !ok {
		if f["structure"] == nil {
			d.errorAt(n, "implements is missing a structure")
		}
		return nil
	}
	impl := &ImplementsDef{
		Structure: name,
		Members:   d.members(f),
		Where:     d.refs(f["where"]),
		Line:      n.Line,
		Column:    n.Column,
	}
	if f["args"] != nil {
		for _, a := range d.seq(f["args"]) {
			if t := d.typeExpr(a); t != nil {
				impl.TypeArgs = append(impl.TypeArgs, t)
			}
		}
	}
	if f["over"] != nil {
		impl.Over = d.ref(f["over"])
	}
	return impl
}

func (d *decoder) dataDef(n *yaml.Node) *DataDef {
	f := d.fields(n, "data type", "name", "params", "variants")
	if f == nil {
		return nil
	}
	name, ok := d.scalar(f["name"], "data type name")
	if !ok {
		return nil
	}
	dd := &DataDef{Name: name, TypeParams: d.stringList(f["params"], "type parameter"), Line: n.Line, Column: n.Column}
	if f["variants"] == nil {
		d.errorAt(n, "data type %q has no variants", name)
		return nil
	}
	for _, vn := range d.seq(f["variants"]) {
		if vn.Kind == yaml.ScalarNode {
			dd.Variants = append(dd.Variants, Variant{Name: vn.Value})
			continue
		}
		vf := d.fields(vn, "variant", "name", "fields")
		vname, ok := d.scalar(vf["name"], "variant name")
		if !ok {
			continue
		}
		v := Variant{Name: vname}
		if vf["fields"] != nil {
			for _, fn := range d.seq(vf["fields"]) {
				if fn.Kind == yaml.ScalarNode {
					v.Fields = append(v.Fields, DataField{Type: d.typeExpr(fn)})
					continue
				}
				ff := d.fields(fn, "variant field", "name", "type")
				fname, _ := d.scalar(ff["name"], "field name")
				v.Fields = append(v.Fields, DataField{Name: fname, Type: d.typeExpr(ff["type"])})
			}
		}
		dd.Variants = append(dd.Variants, v)
	}
	return dd
}

func (d *decoder) goal(n *yaml.Node) (Goal, bool) {
	f := d.fields(n, "goal", "name", "kind", "structures", "prop", "left", "right")
	if f == nil {
		return Goal{}, false
	}
	g := Goal{Kind: GoalVerify, Line: n.Line, Column: n.Column}
	if name, ok := d.scalar(f["name"], "goal name"); ok {
		g.Name = name
	} else {
		return Goal{}, false
	}
	if f["kind"] != nil {
		kind, _ := d.scalar(f["kind"], "goal kind")
		switch GoalKind(kind) {
		case GoalVerify, GoalSatisfiable, GoalEquivalent:
			g.Kind = GoalKind(kind)
		default:
			d.diags.ErrorWithHint(f["kind"].Line, f["kind"].Column, fmt.Sprintf("unknown goal kind %q", kind),
				"use verify, satisfiable or equivalent")
			return Goal{}, false
		}
	}
	g.Structures = d.stringList(f["structures"], "structure name")
	if g.Kind == GoalEquivalent {
		if f["left"] == nil || f["right"] == nil {
			d.errorAt(n, "equivalent goal %q needs left and right", g.Name)
			return Goal{}, false
		}
		g.Left, g.Right = d.expr(f["left"]), d.expr(f["right"])
		return g, g.Left != nil && g.Right != nil
	}
	if f["prop"] == nil {
		d.errorAt(n, "goal %q has no prop", g.Name)
		return Goal{}, false
	}
	g.Prop = d.expr(f["prop"])
	return g, g.Prop != nil
}

// Expression encoding. Scalars are objects or numeric constants. A mapping
// whose first key is an operator name is an application; a small set of
// reserved keys introduce the other expression forms.

var reservedForms = map[string][]string{
	"forall":      {"forall", "where", "body"},
	"exists":      {"exists", "where", "body"},
	"if":          {"if", "then", "else"},
	"let":         {"let", "type", "value", "in"},
	"match":       {"match", "cases"},
	"lambda":      {"lambda", "body"},
	"list":        {"list"},
	"ascribe":     {"ascribe", "type"},
	"string":      {"string"},
	"const":       {"const"},
	"object":      {"object"},
	"placeholder": {"placeholder"},
}

func (d *decoder) expr(n *yaml.Node) ast.Expression {
	switch n.Kind {
	case yaml.ScalarNode:
		switch n.ShortTag() {
		case "!!int", "!!float":
			return &ast.Const{Value: n.Value, Line: n.Line, Column: n.Column}
		case "!!bool":
			return &ast.Const{Value: strings.ToLower(n.Value), Line: n.Line, Column: n.Column}
		case "!!null":
			d.errorAt(n, "empty expression")
			return nil
		}
		return &ast.Object{Name: n.Value, Line: n.Line, Column: n.Column}
	case yaml.MappingNode:
		if len(n.Content) == 0 {
			d.errorAt(n, "empty expression")
			return nil
		}
		head := n.Content[0].Value
		if keys, ok := reservedForms[head]; ok {
			return d.form(n, head, d.fields(n, head+" expression", keys...))
		}
		if len(n.Content) != 2 {
			d.diags.ErrorWithHint(n.Line, n.Column, fmt.Sprintf("application of %q must have exactly one key", head),
				"write {op: [arg1, arg2]}")
			return nil
		}
		op := &ast.Operation{Name: head, Line: n.Line, Column: n.Column}
		args := n.Content[1]
		switch {
		case args.Kind == yaml.SequenceNode:
			for _, a := range args.Content {
				e := d.expr(a)
				if e == nil {
					return nil
				}
				op.Args = append(op.Args, e)
			}
		case args.Kind == yaml.ScalarNode && args.ShortTag() == "!!null":
		default:
			e := d.expr(args)
			if e == nil {
				return nil
			}
			op.Args = []ast.Expression{e}
		}
		return op
	}
	d.errorAt(n, "unsupported expression node")
	return nil
}

func (d *decoder) form(n *yaml.Node, head string, f map[string]*yaml.Node) ast.Expression {
	line, col := n.Line, n.Column
	need := func(key string) ast.Expression {
		v, ok := f[key]
		if !ok {
			d.errorAt(n, "%s expression is missing %q", head, key)
			return nil
		}
		return d.expr(v)
	}

	switch head {
	case "forall", "exists":
		q := &ast.Quantifier{Kind: ast.ForAll, Line: line, Column: col}
		if head == "exists" {
			q.Kind = ast.Exists
		}
		for _, v := range d.binders(f[head]) {
			q.Vars = append(q.Vars, ast.QuantifiedVar{Name: v.Name, Type: v.Type})
		}
		if len(q.Vars) == 0 {
			d.errorAt(n, "%s binds no variables", head)
			return nil
		}
		if f["where"] != nil {
			if q.Where = d.expr(f["where"]); q.Where == nil {
				return nil
			}
		}
		if q.Body = need("body"); q.Body == nil {
			return nil
		}
		return q
	case "if":
		c := &ast.Conditional{Cond: d.expr(f["if"]), Then: need("then"), Else: need("else"), Line: line, Column: col}
		if c.Cond == nil || c.Then == nil || c.Else == nil {
			return nil
		}
		return c
	case "let":
		l := &ast.Let{Pattern: d.pattern(f["let"]), Value: need("value"), Body: need("in"), Line: line, Column: col}
		if f["type"] != nil {
			l.Type, _ = d.scalar(f["type"], "let type")
		}
		if l.Pattern == nil || l.Value == nil || l.Body == nil {
			return nil
		}
		return l
	case "match":
		m := &ast.Match{Scrutinee: d.expr(f["match"]), Line: line, Column: col}
		if m.Scrutinee == nil || f["cases"] == nil {
			if f["cases"] == nil {
				d.errorAt(n, "match expression has no cases")
			}
			return nil
		}
		for _, cn := range d.seq(f["cases"]) {
			cf := d.fields(cn, "match case", "pattern", "guard", "body")
			if cf["pattern"] == nil || cf["body"] == nil {
				d.errorAt(cn, "match case needs pattern and body")
				return nil
			}
			mc := ast.MatchCase{Pattern: d.pattern(cf["pattern"]), Body: d.expr(cf["body"])}
			if cf["guard"] != nil {
				mc.Guard = d.expr(cf["guard"])
			}
			if mc.Pattern == nil || mc.Body == nil {
				return nil
			}
			m.Cases = append(m.Cases, mc)
		}
		return m
	case "lambda":
		l := &ast.Lambda{Body: need("body"), Line: line, Column: col}
		for _, b := range d.binders(f["lambda"]) {
			l.Params = append(l.Params, ast.LambdaParam{Name: b.Name, Type: b.Type})
		}
		if l.Body == nil {
			return nil
		}
		return l
	case "list":
		l := &ast.List{Line: line, Column: col}
		for _, en := range d.seq(f["list"]) {
			e := d.expr(en)
			if e == nil {
				return nil
			}
			l.Elements = append(l.Elements, e)
		}
		return l
	case "ascribe":
		a := &ast.Ascription{Expr: d.expr(f["ascribe"]), Line: line, Column: col}
		a.Type, _ = d.scalar(f["type"], "ascribed type")
		if a.Expr == nil || a.Type == "" {
			return nil
		}
		return a
	case "string":
		return &ast.String{Value: f["string"].Value, Line: line, Column: col}
	case "const":
		return &ast.Const{Value: f["const"].Value, Line: line, Column: col}
	case "object":
		return &ast.Object{Name: f["object"].Value, Line: line, Column: col}
	case "placeholder":
		return &ast.Placeholder{Hint: f["placeholder"].Value, Line: line, Column: col}
	}
	return nil
}

type binder struct {
	Name string
	Type string
}

// binders decodes variable lists: "x", "x : ℝ", [x, y], [{name: x, type: ℝ}]
func (d *decoder) binders(n *yaml.Node) []binder {
	if n == nil {
		return nil
	}
	parse := func(item *yaml.Node) (binder, bool) {
		if item.Kind == yaml.MappingNode {
			bf := d.fields(item, "variable", "name", "type")
			name, ok := d.scalar(bf["name"], "variable name")
			if !ok {
				return binder{}, false
			}
			b := binder{Name: name}
			if bf["type"] != nil {
				b.Type, _ = d.scalar(bf["type"], "variable type")
			}
			return b, true
		}
		s, ok := d.scalar(item, "variable")
		if !ok {
			return binder{}, false
		}
		name, typ, _ := strings.Cut(s, ":")
		return binder{Name: strings.TrimSpace(name), Type: strings.TrimSpace(typ)}, true
	}
	if n.Kind == yaml.ScalarNode {
		// "x, y : ℝ" shares one annotation across all names
		names, typ, _ := strings.Cut(n.Value, ":")
		var out []binder
		for _, name := range strings.Split(names, ",") {
			if name = strings.TrimSpace(name); name != "" {
				out = append(out, binder{Name: name, Type: strings.TrimSpace(typ)})
			}
		}
		return out
	}
	var out []binder
	for _, item := range d.seq(n) {
		if b, ok := parse(item); ok {
			out = append(out, b)
		}
	}
	return out
}

// pattern decodes "_", literals, lowercase names (variables), capitalized
// names (nullary constructors) and {Ctor: [patterns]}.
func (d *decoder) pattern(n *yaml.Node) ast.Pattern {
	if n == nil {
		return nil
	}
	switch n.Kind {
	case yaml.ScalarNode:
		switch {
		case n.Value == "_":
			return &ast.PatternWildcard{Line: n.Line, Column: n.Column}
		case n.ShortTag() == "!!int" || n.ShortTag() == "!!float" || n.ShortTag() == "!!bool":
			return &ast.PatternConst{Value: n.Value, Line: n.Line, Column: n.Column}
		case startsUpper(n.Value):
			return &ast.PatternConstructor{Name: n.Value, Line: n.Line, Column: n.Column}
		}
		return &ast.PatternVar{Name: n.Value, Line: n.Line, Column: n.Column}
	case yaml.MappingNode:
		if len(n.Content) != 2 {
			d.errorAt(n, "constructor pattern must have exactly one key")
			return nil
		}
		pc := &ast.PatternConstructor{Name: n.Content[0].Value, Line: n.Line, Column: n.Column}
		args := n.Content[1]
		if args.Kind != yaml.SequenceNode {
			args = &yaml.Node{Kind: yaml.SequenceNode, Content: []*yaml.Node{args}}
		}
		for _, a := range args.Content {
			p := d.pattern(a)
			if p == nil {
				return nil
			}
			pc.Args = append(pc.Args, p)
		}
		return pc
	}
	d.errorAt(n, "unsupported pattern")
	return nil
}

func startsUpper(s string) bool {
	for _, r := range s {
		return unicode.IsUpper(r)
	}
	return false
}
