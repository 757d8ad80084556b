// Package interp runs model source in an embedded yaegi interpreter and
// exposes it as a model.Runtime.
package interp

import (
	"context"
	"errors"
	"fmt"
	"go/token"
	"log/slog"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"

	"github.com/overturetool/tempo-plotting-tool/pkg/model"
)

var (
	ErrInvalidSource    = errors.New("interp: invalid model source")
	ErrForbiddenImport  = errors.New("interp: forbidden import")
	ErrUnknownClass     = errors.New("interp: unknown class")
	ErrUnknownOperation = errors.New("interp: unknown operation")
	ErrNotCreated       = errors.New("interp: variable not created")
	ErrInvalidName      = errors.New("interp: invalid name")

	// ErrBusy is returned while an abandoned operation is still running.
	ErrBusy = errors.New("interp: an abandoned operation is still running")

	// ErrAbandoned wraps the context error of an operation that was left
	// running. The model may hold the effects of a partial step.
	ErrAbandoned = errors.New("interp: operation abandoned, model may be partially updated")
)

// varsTable holds every instance created through Create.
const varsTable = "_tempoVars"

// DefaultAllowedImports are the packages model source may import.
var DefaultAllowedImports = []string{
	"bytes",
	"encoding/json",
	"errors",
	"fmt",
	"math",
	"math/rand",
	"sort",
	"strconv",
	"strings",
	"time",
	"unicode",
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithAllowedImports replaces the import allowlist.
func WithAllowedImports(pkgs ...string) Option {
	return func(r *Runtime) {
		r.allowed = make(map[string]bool, len(pkgs))
		for _, p := range pkgs {
			r.allowed[p] = true
		}
	}
}

// WithLogger sets the runtime logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runtime) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// Runtime is a live model hosted by a yaegi interpreter.
// All interpreter access is serialized. An evaluation whose context ends
// keeps running in the background; until it returns every other call fails
// with ErrBusy. Model operations are expected to terminate.
type Runtime struct {
	mu      sync.Mutex
	i       *interp.Interpreter
	pending chan struct{} // closed when the abandoned evaluation returns
	prog    *program
	allowed map[string]bool
	logger  *slog.Logger

	// instances maps a created variable to its class name.
	instances map[string]string
}

// New parses and evaluates src. The source must only declare things; no
// instance exists until Create is called.
func New(ctx context.Context, src string, opts ...Option) (*Runtime, error) {
	r := &Runtime{
		logger:    slog.Default(),
		instances: make(map[string]string),
	}
	WithAllowedImports(DefaultAllowedImports...)(r)
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("component", "interp")

	prog, err := parseProgram(src)
	if err != nil {
		return nil, err
	}
	if err := r.validateImports(prog.imports); err != nil {
		return nil, err
	}
	r.prog = prog

	r.i = interp.New(interp.Options{})
	if err := r.i.Use(stdlib.Symbols); err != nil {
		return nil, fmt.Errorf("interp: load stdlib: %w", err)
	}

	code := prog.src + "\nvar " + varsTable + " = map[string]interface{}{}\n"
	if _, err := r.eval(ctx, code); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSource, err)
	}

	r.logger.Info("model source loaded", "classes", len(prog.classes))
	return r, nil
}

func (r *Runtime) validateImports(imports []string) error {
	var forbidden []string
	for _, path := range imports {
		if !r.allowed[path] {
			forbidden = append(forbidden, path)
		}
	}
	if len(forbidden) == 0 {
		return nil
	}
	sort.Strings(forbidden)
	return fmt.Errorf("%w: %s", ErrForbiddenImport, strings.Join(forbidden, ", "))
}

// Classes returns the class definitions in declaration order.
func (r *Runtime) Classes() []*model.ClassDef {
	return r.prog.classes
}

// Create instantiates className and binds it to name. A NewX constructor
// is used when the source declares one; otherwise the zero value is used.
func (r *Runtime) Create(ctx context.Context, name, className string) error {
	if !token.IsIdentifier(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	class, ok := model.FindClass(r.prog.classes, className)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownClass, className)
	}

	var code string
	slot := fmt.Sprintf("%s[%q]", varsTable, name)
	switch r.prog.ctors[class.Name] {
	case ctorPointer:
		code = fmt.Sprintf("func() error { %s = New%s(); return nil }()", slot, class.Name)
	case ctorValue:
		code = fmt.Sprintf("func() error { v := New%s(); %s = &v; return nil }()", class.Name, slot)
	case ctorPointerE:
		code = fmt.Sprintf("func() error { v, err := New%s(); if err != nil { return err }; %s = v; return nil }()", class.Name, slot)
	case ctorValueE:
		code = fmt.Sprintf("func() error { v, err := New%s(); if err != nil { return err }; %s = &v; return nil }()", class.Name, slot)
	default:
		code = fmt.Sprintf("func() error { %s = &%s{}; return nil }()", slot, class.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	v, err := r.eval(ctx, code)
	if err != nil {
		return err
	}
	if err := asError(v); err != nil {
		return err
	}
	r.instances[name] = class.Name
	r.logger.Debug("instance created", "name", name, "class", class.Name)
	return nil
}

// Value evaluates a qualified field path below the root instance and
// formats the result.
func (r *Runtime) Value(ctx context.Context, path string) (string, error) {
	expr, err := r.rootExpr(path)
	if err != nil {
		return "", err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	v, err := r.eval(ctx, expr)
	if err != nil {
		return "", err
	}
	return format(v), nil
}

// Call invokes a parameterless operation of the root instance and returns
// its formatted results.
func (r *Runtime) Call(ctx context.Context, operation string) (string, error) {
	if !token.IsIdentifier(operation) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, operation)
	}
	r.mu.Lock()
	className, ok := r.instances[model.RootVarName]
	r.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrNotCreated, model.RootVarName)
	}

	class, _ := model.FindClass(r.prog.classes, className)
	op, ok := class.Operation(operation)
	if !ok || len(op.Params) > 0 {
		return "", fmt.Errorf("%w: %s.%s", ErrUnknownOperation, className, operation)
	}

	expr, err := r.rootExpr("")
	if err != nil {
		return "", err
	}
	expr = callExpr(expr+"."+op.Name+"()", op.Results)

	r.mu.Lock()
	defer r.mu.Unlock()

	v, err := r.eval(ctx, expr)
	if err != nil {
		return "", err
	}
	if n := len(op.Results); n > 0 && op.Results[n-1] == "error" {
		if err := asError(v); err != nil {
			return "", err
		}
	}
	return format(v), nil
}

// rootExpr builds the expression reaching path from the root instance.
func (r *Runtime) rootExpr(path string) (string, error) {
	r.mu.Lock()
	className, ok := r.instances[model.RootVarName]
	r.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrNotCreated, model.RootVarName)
	}

	expr := fmt.Sprintf("%s[%q].(*%s)", varsTable, model.RootVarName, className)
	if path == "" {
		return expr, nil
	}
	for _, part := range strings.Split(path, model.Separator) {
		if !token.IsIdentifier(part) {
			return "", fmt.Errorf("%w: %q", ErrInvalidName, path)
		}
	}
	return "(" + expr + ")." + path, nil
}

// callExpr wraps call so that it evaluates to a single value. A trailing
// error result is returned in place of the values when non-nil.
func callExpr(call string, results []string) string {
	n := len(results)
	if n == 0 {
		return "func() interface{} { " + call + "; return nil }()"
	}
	hasErr := results[n-1] == "error"
	if n == 1 {
		return call
	}

	names := make([]string, n)
	for i := range names {
		names[i] = fmt.Sprintf("r%d", i)
	}
	values := names
	var check string
	if hasErr {
		values = names[:n-1]
		check = fmt.Sprintf("if %s != nil { return %s }; ", names[n-1], names[n-1])
	}
	ret := values[0]
	if len(values) > 1 {
		ret = "[]interface{}{" + strings.Join(values, ", ") + "}"
	}
	return fmt.Sprintf("func() interface{} { %s := %s; %sreturn %s }()",
		strings.Join(names, ", "), call, check, ret)
}

// Busy reports whether an abandoned operation is still running.
func (r *Runtime) Busy() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.busy()
}

// busy must be called with mu held.
func (r *Runtime) busy() bool {
	if r.pending == nil {
		return false
	}
	select {
	case <-r.pending:
		r.pending = nil
		return false
	default:
		return true
	}
}

type evalResult struct {
	v   reflect.Value
	err error
}

// eval runs code, converting interpreter panics into errors. It must be
// called with mu held. When ctx ends first the evaluation is abandoned and
// the runtime stays busy until it returns.
func (r *Runtime) eval(ctx context.Context, code string) (reflect.Value, error) {
	if r.busy() {
		return reflect.Value{}, ErrBusy
	}
	if err := ctx.Err(); err != nil {
		return reflect.Value{}, err
	}

	results := make(chan evalResult, 1)
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		var res evalResult
		defer func() {
			if p := recover(); p != nil {
				res.err = fmt.Errorf("interp: panic: %v", p)
			}
			results <- res
		}()
		res.v, res.err = r.i.Eval(code)
	}()

	select {
	case res := <-results:
		return res.v, res.err
	case <-ctx.Done():
		r.pending = finished
		r.logger.Warn("evaluation abandoned", "error", ctx.Err())
		return reflect.Value{}, fmt.Errorf("%w: %w", ErrAbandoned, ctx.Err())
	}
}

func asError(v reflect.Value) error {
	if !v.IsValid() || !v.CanInterface() {
		return nil
	}
	if err, ok := v.Interface().(error); ok {
		return err
	}
	return nil
}

func format(v reflect.Value) string {
	if !v.IsValid() || !v.CanInterface() {
		return ""
	}
	x := v.Interface()
	if x == nil {
		return ""
	}
	rv := reflect.ValueOf(x)
	if rv.Kind() == reflect.Pointer && !rv.IsNil() {
		x = rv.Elem().Interface()
	}
	return fmt.Sprint(x)
}
