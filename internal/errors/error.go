package errors

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var positionPattern = regexp.MustCompile(`([^\s:]+):(\d+):(\d+)`)

// Category represents the type of error.
type Category string

const (
	CategoryConfig  Category = "config"
	CategoryModel   Category = "model"
	CategoryRuntime Category = "runtime"
	CategoryServer  Category = "server"
	CategoryCLI     Category = "cli"
)

// Location is a position in model source or a config file.
type Location struct {
	File   string `json:"file"`
	Line   int    `json:"line"`
	Column int    `json:"column,omitempty"`
}

// String returns the location as file:line[:column].
func (l *Location) String() string {
	if l == nil {
		return ""
	}
	if l.Column > 0 {
		return fmt.Sprintf("%s:%d:%d", l.File, l.Line, l.Column)
	}
	return fmt.Sprintf("%s:%d", l.File, l.Line)
}

// TempoError is a structured error with a code, location and hint.
type TempoError struct {
	// Code is a stable identifier such as "T101".
	Code string

	Category Category
	Message  string
	Detail   string
	Location *Location

	// Context holds the source lines around Location.
	Context []string

	Suggestion string
	Wrapped    error
}

// Error implements the error interface.
func (e *TempoError) Error() string {
	msg := e.Message
	if e.Code != "" {
		msg = e.Code + ": " + msg
	}
	if e.Wrapped != nil {
		msg += ": " + e.Wrapped.Error()
	}
	return msg
}

// Unwrap returns the wrapped error for errors.Is/As support.
func (e *TempoError) Unwrap() error {
	return e.Wrapped
}

// WithLocation sets the source location.
func (e *TempoError) WithLocation(file string, line, column int) *TempoError {
	e.Location = &Location{File: file, Line: line, Column: column}
	return e
}

// WithLocationFromError extracts the first "file:line:col" position in
// err, as produced by go/parser.
func (e *TempoError) WithLocationFromError(err error) *TempoError {
	if err == nil {
		return e
	}
	m := positionPattern.FindStringSubmatch(err.Error())
	if m == nil {
		return e
	}
	line, _ := strconv.Atoi(m[2])
	col, _ := strconv.Atoi(m[3])
	if line > 0 {
		e.Location = &Location{File: m[1], Line: line, Column: col}
	}
	return e
}

// WithSource fills Context with up to five lines of src around Location.
func (e *TempoError) WithSource(src string) *TempoError {
	if e.Location == nil || e.Location.Line <= 0 {
		return e
	}
	e.Context = contextLines(strings.Split(src, "\n"), e.Location.Line, 5)
	return e
}

// WithSuggestion sets the hint.
func (e *TempoError) WithSuggestion(s string) *TempoError {
	e.Suggestion = s
	return e
}

// WithDetail sets the longer explanation.
func (e *TempoError) WithDetail(d string) *TempoError {
	e.Detail = d
	return e
}

// Wrap sets the underlying error.
func (e *TempoError) Wrap(err error) *TempoError {
	e.Wrapped = err
	return e
}

// contextStart returns the first line number shown for Context.
func (e *TempoError) contextStart() int {
	start := e.Location.Line - 5/2
	if start < 1 {
		start = 1
	}
	return start
}

func contextLines(lines []string, target, size int) []string {
	start := target - size/2
	if start < 1 {
		start = 1
	}
	end := target + size/2
	if end > len(lines) {
		end = len(lines)
	}
	if start > end {
		return nil
	}
	return lines[start-1 : end]
}

// New creates a TempoError from a registered code.
func New(code string) *TempoError {
	template, ok := registry[code]
	if !ok {
		return &TempoError{Code: code, Message: "Unknown error"}
	}
	return &TempoError{
		Code:       code,
		Category:   template.Category,
		Message:    template.Message,
		Detail:     template.Detail,
		Suggestion: template.Suggestion,
	}
}

// Newf creates an uncoded TempoError with a formatted message.
func Newf(category Category, format string, args ...any) *TempoError {
	return &TempoError{
		Category: category,
		Message:  fmt.Sprintf(format, args...),
	}
}

// FromError returns err as a TempoError, wrapping it under code if needed.
func FromError(err error, code string) *TempoError {
	if err == nil {
		return nil
	}
	if te, ok := err.(*TempoError); ok {
		return te
	}
	return New(code).Wrap(err)
}
