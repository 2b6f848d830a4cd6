// Package smtlib reads and writes the SMT-LIB 2 s-expressions exchanged
// with an SMT solver process.
package smtlib

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode"
)

// SExpr is an atom, a string literal or a list
type SExpr struct {
	Atom   string
	List   []*SExpr
	IsList bool
	// IsString marks a "..." literal; Atom holds the unescaped text.
	IsString bool
}

// NewAtom builds an atom
func NewAtom(s string) *SExpr { return &SExpr{Atom: s} }

// NewList builds a list
func NewList(items ...*SExpr) *SExpr { return &SExpr{IsList: true, List: items} }

// Head returns the first atom of a list, or "" when there is none
func (s *SExpr) Head() string {
	if s == nil || !s.IsList || len(s.List) == 0 || s.List[0].IsList {
		return ""
	}
	return s.List[0].Atom
}

// IsAtom reports whether s is the atom a
func (s *SExpr) IsAtom(a string) bool {
	return s != nil && !s.IsList && !s.IsString && s.Atom == a
}

func (s *SExpr) String() string {
	var sb strings.Builder
	s.write(&sb)
	return sb.String()
}

func (s *SExpr) write(sb *strings.Builder) {
	switch {
	case s == nil:
		sb.WriteString("()")
	case s.IsString:
		sb.WriteString(StringLit(s.Atom))
	case !s.IsList:
		sb.WriteString(s.Atom)
	default:
		sb.WriteByte('(')
		for i, item := range s.List {
			if i > 0 {
				sb.WriteByte(' ')
			}
			item.write(sb)
		}
		sb.WriteByte(')')
	}
}

// Reader reads consecutive s-expressions from a stream
type Reader struct {
	r *bufio.Reader
}

// NewReader wraps r
func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReader(r)}
}

// Read returns the next complete s-expression
func (rd *Reader) Read() (*SExpr, error) {
	if err := rd.skipSpace(); err != nil {
		return nil, err
	}
	c, _, err := rd.r.ReadRune()
	if err != nil {
		return nil, err
	}
	switch c {
	case '(':
		list := NewList()
		for {
			if err := rd.skipSpace(); err != nil {
				return nil, unexpectedEOF(err)
			}
			next, _, err := rd.r.ReadRune()
			if err != nil {
				return nil, unexpectedEOF(err)
			}
			if next == ')' {
				return list, nil
			}
			if err := rd.r.UnreadRune(); err != nil {
				return nil, err
			}
			item, err := rd.Read()
			if err != nil {
				return nil, unexpectedEOF(err)
			}
			list.List = append(list.List, item)
		}
	case ')':
		return nil, fmt.Errorf("unexpected ')'")
	case '"':
		return rd.readString()
	case '|':
		var sb strings.Builder
		sb.WriteRune('|')
		for {
			r, _, err := rd.r.ReadRune()
			if err != nil {
				return nil, unexpectedEOF(err)
			}
			sb.WriteRune(r)
			if r == '|' {
				return NewAtom(sb.String()), nil
			}
		}
	default:
		var sb strings.Builder
		sb.WriteRune(c)
		for {
			r, _, err := rd.r.ReadRune()
			if err == io.EOF {
				return NewAtom(sb.String()), nil
			}
			if err != nil {
				return nil, err
			}
			if unicode.IsSpace(r) || r == '(' || r == ')' || r == '"' || r == ';' {
				if err := rd.r.UnreadRune(); err != nil {
					return nil, err
				}
				return NewAtom(sb.String()), nil
			}
			sb.WriteRune(r)
		}
	}
}

func (rd *Reader) readString() (*SExpr, error) {
	var sb strings.Builder
	for {
		r, _, err := rd.r.ReadRune()
		if err != nil {
			return nil, unexpectedEOF(err)
		}
		if r == '"' {
			// "" is an escaped quote inside a string literal
			next, _, err := rd.r.ReadRune()
			if err == nil && next == '"' {
				sb.WriteRune('"')
				continue
			}
			if err == nil {
				if err := rd.r.UnreadRune(); err != nil {
					return nil, err
				}
			}
			return &SExpr{Atom: sb.String(), IsString: true}, nil
		}
		sb.WriteRune(r)
	}
}

func (rd *Reader) skipSpace() error {
	for {
		r, _, err := rd.r.ReadRune()
		if err != nil {
			return err
		}
		if r == ';' {
			if _, err := rd.r.ReadString('\n'); err != nil {
				return err
			}
			continue
		}
		if !unicode.IsSpace(r) {
			return rd.r.UnreadRune()
		}
	}
}

func unexpectedEOF(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}

// ParseAll parses every s-expression in src
func ParseAll(src string) ([]*SExpr, error) {
	rd := NewReader(strings.NewReader(src))
	var out []*SExpr
	for {
		s, err := rd.Read()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
}

// Parse parses exactly one s-expression
func Parse(src string) (*SExpr, error) {
	all, err := ParseAll(src)
	if err != nil {
		return nil, err
	}
	if len(all) != 1 {
		return nil, fmt.Errorf("expected one s-expression, found %d", len(all))
	}
	return all[0], nil
}

// Symbol renders name as an SMT-LIB symbol, quoting it with |...| when it
// is not a simple symbol.
func Symbol(name string) string {
	if IsSimpleSymbol(name) {
		return name
	}
	return "|" + strings.ReplaceAll(name, "|", "_") + "|"
}

const symbolPunct = "~!@$%^&*_-+=<>.?/"

// IsSimpleSymbol reports whether name needs no quoting
func IsSimpleSymbol(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		switch {
		case r < 128 && (unicode.IsLetter(r) || strings.ContainsRune(symbolPunct, r)):
		case r < 128 && unicode.IsDigit(r) && i > 0:
		default:
			return false
		}
	}
	return true
}

// Unquote strips |...| from a quoted symbol
func Unquote(sym string) string {
	if len(sym) >= 2 && strings.HasPrefix(sym, "|") && strings.HasSuffix(sym, "|") {
		return sym[1 : len(sym)-1]
	}
	return sym
}

// StringLit renders s as an SMT-LIB string literal
func StringLit(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// Numeral renders numeric source text as an SMT-LIB term: negative values
// use the unary minus function, decimals stay decimals.
func Numeral(text string) (string, bool, error) {
	neg := strings.HasPrefix(text, "-")
	body := strings.TrimPrefix(text, "-")
	if body == "" {
		return "", false, fmt.Errorf("invalid number %q", text)
	}
	isReal := false
	for i, r := range body {
		switch {
		case r >= '0' && r <= '9':
		case r == '.' && !isReal && i > 0 && i < len(body)-1:
			isReal = true
		default:
			return "", false, fmt.Errorf("invalid number %q", text)
		}
	}
	if neg {
		return "(- " + body + ")", isReal, nil
	}
	return body, isReal, nil
}
