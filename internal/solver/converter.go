package solver

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/eatikrh/kleis-sub001/internal/ast"
)

// Converter maps engine-native values (type V) back to expressions and
// primitives.
type Converter[V any] interface {
	ToExpression(v V) (ast.Expression, error)
	ToInt64(v V) (int64, error)
	ToBool(v V) (bool, error)
	ToFloat64(v V) (float64, error)
	ToString(v V) (string, error)
}

// ExtractInt64 reads an integer constant expression
func ExtractInt64(e ast.Expression) (int64, error) {
	c, ok := e.(*ast.Const)
	if !ok {
		return 0, fmt.Errorf("expected integer constant, got %s", ast.Format(e))
	}
	n, err := strconv.ParseInt(c.Value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("expected integer constant, got %q", c.Value)
	}
	return n, nil
}

// ExtractBool reads a boolean constant or object (true/True/TRUE)
func ExtractBool(e ast.Expression) (bool, error) {
	var s string
	switch v := e.(type) {
	case *ast.Const:
		s = v.Value
	case *ast.Object:
		s = v.Name
	default:
		return false, fmt.Errorf("expected boolean, got %s", ast.Format(e))
	}
	return ParseBool(s)
}

// ParseBool accepts the spellings engines use for booleans
func ParseBool(s string) (bool, error) {
	switch s {
	case "true", "True", "TRUE":
		return true, nil
	case "false", "False", "FALSE":
		return false, nil
	}
	return false, fmt.Errorf("expected boolean, got %q", s)
}

// ExtractFloat64 reads a numeric constant
func ExtractFloat64(e ast.Expression) (float64, error) {
	c, ok := e.(*ast.Const)
	if !ok {
		return 0, fmt.Errorf("expected numeric constant, got %s", ast.Format(e))
	}
	f, err := strconv.ParseFloat(c.Value, 64)
	if err != nil {
		return 0, fmt.Errorf("expected numeric constant, got %q", c.Value)
	}
	return f, nil
}

// ExtractVarName returns the name of an object expression
func ExtractVarName(e ast.Expression) (string, error) {
	o, ok := e.(*ast.Object)
	if !ok || strings.TrimSpace(o.Name) == "" {
		return "", fmt.Errorf("expected variable, got %s", ast.Format(e))
	}
	return o.Name, nil
}
