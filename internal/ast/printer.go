package ast

import (
	"fmt"
	"strings"
)

// infixSymbols maps operation names to the infix symbol used when
// rendering. Names that are already symbols print as themselves.
var infixSymbols = map[string]string{
	"plus":         "+",
	"add":          "+",
	"minus":        "-",
	"subtract":     "-",
	"times":        "×",
	"multiply":     "×",
	"divide":       "/",
	"equals":       "=",
	"eq":           "=",
	"neq":          "≠",
	"not_equals":   "≠",
	"less_than":    "<",
	"lt":           "<",
	"greater_than": ">",
	"gt":           ">",
	"leq":          "≤",
	"geq":          "≥",
	"and":          "∧",
	"logical_and":  "∧",
	"or":           "∨",
	"logical_or":   "∨",
	"implies":      "⟹",
	"iff":          "⟺",
	"+":            "+",
	"-":            "-",
	"*":            "×",
	"×":            "×",
	"·":            "·",
	"/":            "/",
	"=":            "=",
	"≠":            "≠",
	"<":            "<",
	">":            ">",
	"≤":            "≤",
	"≥":            "≥",
	"∧":            "∧",
	"∨":            "∨",
	"⟹":            "⟹",
	"⟺":            "⟺",
}

var prefixSymbols = map[string]string{
	"negate":      "-",
	"not":         "¬",
	"logical_not": "¬",
	"¬":           "¬",
}

// InfixSymbol returns the infix rendering of an operation name, if any
func InfixSymbol(name string) (string, bool) {
	s, ok := infixSymbols[name]
	return s, ok
}

// Format renders an expression as Kleis source text
func Format(expr Expression) string {
	var sb strings.Builder
	writeExpr(&sb, expr)
	return sb.String()
}

func writeExpr(sb *strings.Builder, expr Expression) {
	switch e := expr.(type) {
	case nil:
		sb.WriteString("?")
	case *Const:
		sb.WriteString(e.Value)
	case *String:
		fmt.Fprintf(sb, "%q", e.Value)
	case *Object:
		sb.WriteString(e.Name)
	case *Operation:
		writeOperation(sb, e)
	case *Quantifier:
		sb.WriteString(e.Kind.String())
		sb.WriteString("(")
		for i, v := range e.Vars {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(v.Name)
			if v.Type != "" {
				sb.WriteString(" : " + v.Type)
			}
		}
		if e.Where != nil {
			sb.WriteString(" where ")
			writeExpr(sb, e.Where)
		}
		sb.WriteString("). ")
		writeExpr(sb, e.Body)
	case *Conditional:
		sb.WriteString("if ")
		writeExpr(sb, e.Cond)
		sb.WriteString(" then ")
		writeExpr(sb, e.Then)
		sb.WriteString(" else ")
		writeExpr(sb, e.Else)
	case *Let:
		sb.WriteString("let ")
		writePattern(sb, e.Pattern)
		if e.Type != "" {
			sb.WriteString(" : " + e.Type)
		}
		sb.WriteString(" = ")
		writeExpr(sb, e.Value)
		sb.WriteString(" in ")
		writeExpr(sb, e.Body)
	case *Match:
		sb.WriteString("match ")
		writeExpr(sb, e.Scrutinee)
		sb.WriteString(" { ")
		for i, c := range e.Cases {
			if i > 0 {
				sb.WriteString(" | ")
			}
			writePattern(sb, c.Pattern)
			if c.Guard != nil {
				sb.WriteString(" if ")
				writeExpr(sb, c.Guard)
			}
			sb.WriteString(" => ")
			writeExpr(sb, c.Body)
		}
		sb.WriteString(" }")
	case *Lambda:
		sb.WriteString("λ")
		for _, p := range e.Params {
			sb.WriteString(" ")
			if p.Type != "" {
				fmt.Fprintf(sb, "(%s : %s)", p.Name, p.Type)
			} else {
				sb.WriteString(p.Name)
			}
		}
		sb.WriteString(" . ")
		writeExpr(sb, e.Body)
	case *List:
		sb.WriteString("[")
		for i, el := range e.Elements {
			if i > 0 {
				sb.WriteString(", ")
			}
			writeExpr(sb, el)
		}
		sb.WriteString("]")
	case *Ascription:
		writeOperand(sb, e.Expr)
		sb.WriteString(" : " + e.Type)
	case *Placeholder:
		if e.Hint != "" {
			fmt.Fprintf(sb, "□{%s}", e.Hint)
		} else {
			sb.WriteString("□")
		}
	default:
		fmt.Fprintf(sb, "<%T>", expr)
	}
}

func writeOperation(sb *strings.Builder, op *Operation) {
	if sym, ok := infixSymbols[op.Name]; ok && len(op.Args) == 2 {
		writeOperand(sb, op.Args[0])
		sb.WriteString(" " + sym + " ")
		writeOperand(sb, op.Args[1])
		return
	}
	if sym, ok := prefixSymbols[op.Name]; ok && len(op.Args) == 1 {
		sb.WriteString(sym)
		writeOperand(sb, op.Args[0])
		return
	}
	sb.WriteString(op.Name)
	sb.WriteString("(")
	for i, a := range op.Args {
		if i > 0 {
			sb.WriteString(", ")
		}
		writeExpr(sb, a)
	}
	sb.WriteString(")")
}

// writeOperand parenthesizes compound operands of infix/prefix operators
func writeOperand(sb *strings.Builder, expr Expression) {
	if needsParens(expr) {
		sb.WriteString("(")
		writeExpr(sb, expr)
		sb.WriteString(")")
		return
	}
	writeExpr(sb, expr)
}

func needsParens(expr Expression) bool {
	switch e := expr.(type) {
	case *Operation:
		if _, ok := infixSymbols[e.Name]; ok && len(e.Args) == 2 {
			return true
		}
		return false
	case *Quantifier, *Conditional, *Let, *Lambda, *Ascription:
		return true
	case *Const:
		return strings.HasPrefix(e.Value, "-")
	}
	return false
}

func writePattern(sb *strings.Builder, p Pattern) {
	switch pt := p.(type) {
	case *PatternVar:
		sb.WriteString(pt.Name)
	case *PatternWildcard:
		sb.WriteString("_")
	case *PatternConst:
		sb.WriteString(pt.Value)
	case *PatternConstructor:
		sb.WriteString(pt.Name)
		if len(pt.Args) > 0 {
			sb.WriteString("(")
			for i, a := range pt.Args {
				if i > 0 {
					sb.WriteString(", ")
				}
				writePattern(sb, a)
			}
			sb.WriteString(")")
		}
	default:
		sb.WriteString("?")
	}
}
