package z3

import (
	"context"
	"fmt"
	"strings"

	"github.com/eatikrh/kleis-sub001/internal/ast"
	"github.com/eatikrh/kleis-sub001/internal/solver"
	"github.com/eatikrh/kleis-sub001/internal/solver/smtlib"
)

// maxDecodeDepth bounds recursion into nested data values
const maxDecodeDepth = 8

type tracked struct {
	name string
	term term
}

// witness reads a value for every tracked variable from the current model.
// A variable whose value cannot be read is bound to a placeholder constant;
// the raw model is always kept.
func (b *Backend) witness(ctx context.Context, vars []tracked) *solver.Witness {
	w := &solver.Witness{Raw: b.sess.model(ctx)}
	for _, v := range vars {
		val, err := b.decode(ctx, v.term.text, v.term.sort, 0)
		if err != nil {
			b.logger.Debug("could not read witness value", "var", v.name, "error", err)
			val = ast.NewConst(unknownValue)
		}
		w.Bindings = append(w.Bindings, solver.Binding{Name: v.name, Value: val})
	}
	return w
}

func (b *Backend) datatypeForSort(sort string) *datatype {
	for _, dt := range b.tr.datatypes {
		if dt.sort == sort {
			return dt
		}
	}
	return nil
}

// decode turns the model value of a term into an expression. Data values
// become constructor applications under their source names.
func (b *Backend) decode(ctx context.Context, text, sort string, depth int) (ast.Expression, error) {
	vals, err := b.sess.values(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	v := vals[0]

	if strings.HasPrefix(sort, "(KList ") && depth < maxDecodeDepth {
		return b.decodeList(ctx, text, strings.TrimSuffix(strings.TrimPrefix(sort, "(KList "), ")"), depth)
	}
	dt := b.datatypeForSort(sort)
	if dt == nil || depth >= maxDecodeDepth {
		return valueConverter{}.ToExpression(v)
	}

	if e, ok := b.decodePrinted(v, dt); ok {
		return e, nil
	}
	return b.decodeByTesters(ctx, text, dt, depth)
}

// decodePrinted reads a data value z3 printed as a plain constructor term
func (b *Backend) decodePrinted(v *smtlib.SExpr, dt *datatype) (ast.Expression, bool) {
	name := v.Atom
	if v.IsList {
		name = v.Head()
	}
	for _, variant := range dt.variants {
		if variant.symbol != name {
			continue
		}
		if len(variant.fields) == 0 && !v.IsList {
			return ast.NewObject(variant.name), true
		}
		if !v.IsList || len(v.List)-1 != len(variant.fields) {
			return nil, false
		}
		args := make([]ast.Expression, len(variant.fields))
		for i, f := range variant.fields {
			inner := b.datatypeForSort(f.sort)
			if inner != nil {
				e, ok := b.decodePrinted(v.List[i+1], inner)
				if !ok {
					return nil, false
				}
				args[i] = e
				continue
			}
			e, err := valueConverter{}.ToExpression(v.List[i+1])
			if err != nil {
				return nil, false
			}
			args[i] = e
		}
		return ast.NewOp(variant.name, args...), true
	}
	return nil, false
}

// decodeByTesters asks the model which constructor built the term, then
// recurses into its fields through the accessors.
func (b *Backend) decodeByTesters(ctx context.Context, text string, dt *datatype, depth int) (ast.Expression, error) {
	testers := make([]string, len(dt.variants))
	for i, v := range dt.variants {
		testers[i] = fmt.Sprintf("((_ is %s) %s)", v.symbol, text)
	}
	vals, err := b.sess.values(ctx, testers)
	if err != nil {
		return nil, err
	}
	conv := valueConverter{}
	for i, val := range vals {
		ok, err := conv.ToBool(val)
		if err != nil || !ok {
			continue
		}
		v := dt.variants[i]
		if len(v.fields) == 0 {
			return ast.NewObject(v.name), nil
		}
		args := make([]ast.Expression, len(v.fields))
		for j, f := range v.fields {
			e, err := b.decode(ctx, fmt.Sprintf("(%s %s)", f.accessor, text), f.sort, depth+1)
			if err != nil {
				return nil, err
			}
			args[j] = e
		}
		return ast.NewOp(v.name, args...), nil
	}
	return nil, fmt.Errorf("no constructor of %s matches %s", dt.name, text)
}

func (b *Backend) decodeList(ctx context.Context, text, elemSort string, depth int) (ast.Expression, error) {
	list := &ast.List{}
	cur := text
	for i := 0; i < maxListWitness; i++ {
		vals, err := b.sess.values(ctx, []string{fmt.Sprintf("((_ is kcons) %s)", cur)})
		if err != nil {
			return nil, err
		}
		isCons, err := valueConverter{}.ToBool(vals[0])
		if err != nil {
			return nil, err
		}
		if !isCons {
			return list, nil
		}
		head, err := b.decode(ctx, fmt.Sprintf("(khead %s)", cur), elemSort, depth+1)
		if err != nil {
			return nil, err
		}
		list.Elements = append(list.Elements, head)
		cur = fmt.Sprintf("(ktail %s)", cur)
	}
	return list, nil
}

const maxListWitness = 32
