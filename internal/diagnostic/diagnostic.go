package diagnostic

import (
	"fmt"
	"sort"
	"strings"
)

// Severity represents the severity level of a diagnostic message
type Severity int

const (
	Error Severity = iota
	Warning
	Info
)

// String returns the string representation of the severity level
func (s Severity) String() string {
	switch s {
	case Error:
		return "error"
	case Warning:
		return "warning"
	case Info:
		return "info"
	default:
		return "unknown"
	}
}

// ansi color per severity, used when rendering to a terminal
func (s Severity) color() string {
	switch s {
	case Error:
		return "\033[31m"
	case Warning:
		return "\033[33m"
	default:
		return "\033[36m"
	}
}

// Diagnostic is a single problem found while loading a structure document
type Diagnostic struct {
	Severity Severity
	Message  string
	Line     int
	Column   int
	File     string // optional document path
	Hint     string // optional suggestion
}

// Diagnostics collects messages for one load of one or more documents
type Diagnostics struct {
	items []Diagnostic
}

// New creates a new empty Diagnostics collection
func New() *Diagnostics {
	return &Diagnostics{}
}

func (d *Diagnostics) add(sev Severity, file string, line, col int, msg, hint string) {
	d.items = append(d.items, Diagnostic{
		Severity: sev,
		Message:  msg,
		Line:     line,
		Column:   col,
		File:     file,
		Hint:     hint,
	})
}

// Errorf adds an error diagnostic with formatted message
func (d *Diagnostics) Errorf(line, col int, format string, args ...interface{}) {
	d.add(Error, "", line, col, fmt.Sprintf(format, args...), "")
}

// Warningf adds a warning diagnostic with formatted message
func (d *Diagnostics) Warningf(line, col int, format string, args ...interface{}) {
	d.add(Warning, "", line, col, fmt.Sprintf(format, args...), "")
}

// ErrorWithHint adds an error diagnostic with a suggestion
func (d *Diagnostics) ErrorWithHint(line, col int, msg, hint string) {
	d.add(Error, "", line, col, msg, hint)
}

// ErrorfInFile adds an error diagnostic attributed to a specific document
func (d *Diagnostics) ErrorfInFile(file string, line, col int, format string, args ...interface{}) {
	d.add(Error, file, line, col, fmt.Sprintf(format, args...), "")
}

// SetFile attributes every diagnostic without a file to file
func (d *Diagnostics) SetFile(file string) {
	for i := range d.items {
		if d.items[i].File == "" {
			d.items[i].File = file
		}
	}
}

// Merge appends all diagnostics from other
func (d *Diagnostics) Merge(other *Diagnostics) {
	if other == nil {
		return
	}
	d.items = append(d.items, other.items...)
}

// HasErrors returns true if there are any error-level diagnostics
func (d *Diagnostics) HasErrors() bool {
	return d.ErrorCount() > 0
}

// Errors returns only the error-level diagnostics
func (d *Diagnostics) Errors() []Diagnostic {
	var errs []Diagnostic
	for _, item := range d.items {
		if item.Severity == Error {
			errs = append(errs, item)
		}
	}
	return errs
}

// All returns all diagnostics regardless of severity
func (d *Diagnostics) All() []Diagnostic {
	return d.items
}

// Count returns the total number of diagnostics
func (d *Diagnostics) Count() int {
	return len(d.items)
}

// ErrorCount returns the number of error-level diagnostics
func (d *Diagnostics) ErrorCount() int {
	count := 0
	for _, item := range d.items {
		if item.Severity == Error {
			count++
		}
	}
	return count
}

// Sort orders diagnostics by file, line and column
func (d *Diagnostics) Sort() {
	sort.SliceStable(d.items, func(i, j int) bool {
		a, b := d.items[i], d.items[j]
		if a.File != b.File {
			return a.File < b.File
		}
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		return a.Column < b.Column
	})
}

// Err returns nil when there are no errors, otherwise an error whose
// message is the formatted error list.
func (d *Diagnostics) Err() error {
	if !d.HasErrors() {
		return nil
	}
	errs := New()
	errs.items = d.Errors()
	return fmt.Errorf("%d error(s) loading structures:\n%s", errs.Count(), errs.Format(""))
}

// Format returns human-readable messages:
//
//	error[algebra.yaml:3:10]: structure "Monoid" is already registered
//	  hint: rename one of the declarations
func (d *Diagnostics) Format(filename string) string {
	return d.render(filename, false)
}

// FormatColor is Format with ANSI severity colors
func (d *Diagnostics) FormatColor(filename string) string {
	return d.render(filename, true)
}

func (d *Diagnostics) render(filename string, color bool) string {
	var builder strings.Builder
	for i, item := range d.items {
		file := filename
		if item.File != "" {
			file = item.File
		}

		sev := item.Severity.String()
		if color {
			sev = item.Severity.color() + sev + "\033[0m"
		}
		fmt.Fprintf(&builder, "%s[%s:%d:%d]: %s", sev, file, item.Line, item.Column, item.Message)

		if item.Hint != "" {
			fmt.Fprintf(&builder, "\n  hint: %s", item.Hint)
		}
		if i < len(d.items)-1 {
			builder.WriteString("\n")
		}
	}
	return builder.String()
}
