package model

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

// CycleGuard selects how recursive class references are cut.
type CycleGuard int

const (
	// GuardPath skips a class that is already on the current recursion path.
	GuardPath CycleGuard = iota

	// GuardSelf only skips a field whose class is the class being walked.
	GuardSelf
)

// DefaultMaxDepth bounds the walk when GuardSelf lets a cycle through.
const DefaultMaxDepth = 32

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithCycleGuard sets the cycle guard. Default: GuardPath.
func WithCycleGuard(g CycleGuard) BuilderOption {
	return func(b *Builder) {
		b.guard = g
	}
}

// WithMaxDepth sets the maximum nesting depth. Default: DefaultMaxDepth.
func WithMaxDepth(depth int) BuilderOption {
	return func(b *Builder) {
		if depth > 0 {
			b.maxDepth = depth
		}
	}
}

// WithLogger sets the builder logger.
func WithLogger(logger *slog.Logger) BuilderOption {
	return func(b *Builder) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// Builder derives the ModelStructure from the selected root class.
// The cached structure belongs to the Builder, so independent builders can
// coexist in one process.
type Builder struct {
	runtime  Runtime
	guard    CycleGuard
	maxDepth int
	logger   *slog.Logger

	// mu protects root and structure
	mu        sync.Mutex
	root      *ClassDef
	structure *ModelStructure

	group singleflight.Group
	walks atomic.Int64
}

// NewBuilder creates a Builder over rt.
func NewBuilder(rt Runtime, opts ...BuilderOption) *Builder {
	b := &Builder{
		runtime:  rt,
		guard:    GuardPath,
		maxDepth: DefaultMaxDepth,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.With("component", "structure_builder")
	return b
}

// SelectRoot chooses the root class by name, ignoring case. Choosing a
// different class drops a previously built structure.
func (b *Builder) SelectRoot(name string) error {
	if b.runtime == nil {
		return ErrNoRuntime
	}
	class, ok := FindClass(b.runtime.Classes(), name)
	if !ok {
		return fmt.Errorf("%w: %q", ErrRootClassNotFound, name)
	}

	b.mu.Lock()
	if b.root != class {
		b.root = class
		b.structure = nil
	}
	b.mu.Unlock()

	b.logger.Info("root class selected", "class", class.Name)
	return nil
}

// Root returns the selected root class, or nil.
func (b *Builder) Root() *ClassDef {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.root
}

// Structure returns the cached structure, or nil if Build has not succeeded.
func (b *Builder) Structure() *ModelStructure {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.structure
}

// Reset forgets the selected root and the cached structure.
func (b *Builder) Reset() {
	b.mu.Lock()
	b.root = nil
	b.structure = nil
	b.mu.Unlock()
}

// Walks returns how many times the object graph has been walked.
func (b *Builder) Walks() int64 {
	return b.walks.Load()
}

// Build returns the model structure, creating it on the first successful call.
func (b *Builder) Build(ctx context.Context) (*ModelStructure, error) {
	b.mu.Lock()
	root, cached := b.root, b.structure
	b.mu.Unlock()

	if root == nil {
		return nil, ErrRootNotSelected
	}
	if cached != nil {
		return cached, nil
	}

	v, err, _ := b.group.Do(root.Name, func() (any, error) {
		b.mu.Lock()
		if b.root == root && b.structure != nil {
			s := b.structure
			b.mu.Unlock()
			return s, nil
		}
		b.mu.Unlock()

		s, err := b.build(ctx, root)
		if err != nil {
			return nil, err
		}

		b.mu.Lock()
		if b.root == root {
			b.structure = s
		}
		b.mu.Unlock()
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*ModelStructure), nil
}

func (b *Builder) build(ctx context.Context, root *ClassDef) (*ModelStructure, error) {
	if err := b.runtime.Create(ctx, RootVarName, root.Name); err != nil {
		b.logger.Warn("root instantiation failed", "class", root.Name, "error", err)
		return nil, fmt.Errorf("%w: %s: %w", ErrRootInstantiationFailed, root.Name, err)
	}

	s := &ModelStructure{
		RootClass: root.Name,
		Node: Node{
			Type: TypeDescriptor{Name: root.Name, Kind: KindComposite, Class: root},
		},
	}

	w := &walker{
		guard:    b.guard,
		maxDepth: b.maxDepth,
		onPath:   make(map[*ClassDef]int),
	}
	b.walks.Add(1)
	if err := w.walk(root, &s.Node, 0); err != nil {
		return nil, err
	}

	b.logger.Info("model structure built",
		"class", root.Name,
		"nodes", s.Count())
	return s, nil
}

type walker struct {
	guard    CycleGuard
	maxDepth int
	onPath   map[*ClassDef]int
}

func (w *walker) walk(class *ClassDef, parent *Node, depth int) error {
	if depth > w.maxDepth {
		return fmt.Errorf("%w: %d at %q", ErrMaxDepthExceeded, w.maxDepth, parent.Name)
	}

	w.onPath[class]++
	defer func() {
		w.onPath[class]--
		if w.onPath[class] == 0 {
			delete(w.onPath, class)
		}
	}()

	for _, field := range class.Fields {
		child := parent.AddChild(field.Name, field.Type)
		if !field.Type.IsComposite() || w.skip(class, field.Type.Class) {
			continue
		}
		if err := w.walk(field.Type.Class, child, depth+1); err != nil {
			return err
		}
	}
	return nil
}

func (w *walker) skip(current, inner *ClassDef) bool {
	if w.guard == GuardSelf {
		return sameClass(current, inner)
	}
	return w.onPath[inner] > 0
}

func sameClass(a, b *ClassDef) bool {
	if a == b {
		return true
	}
	return a != nil && b != nil && strings.EqualFold(a.Name, b.Name)
}
