// Package model turns the live object graph of an interpreted model into a
// finite Node tree that can be sent to subscription clients.
//
// A Runtime exposes the class definitions of the loaded model and can create
// the root instance. A Builder owns the selected root class and the cached
// ModelStructure:
//
//	b := model.NewBuilder(rt)
//	if err := b.SelectRoot("world"); err != nil { ... } // case-insensitive
//	structure, err := b.Build(ctx)
//
// Build instantiates the root class once, then walks its declared fields
// depth-first. Every field becomes a Node whose name is the dot-joined path
// from the root ("a", "a.b", ...). Fields whose type is a composite class are
// expanded with that class's own fields. Operations never appear in the tree.
//
// # Cycles
//
// By default a class that is already on the current recursion path is not
// expanded again, so A -> B -> A stops at the second A. WithCycleGuard(GuardSelf)
// restores the narrower rule that only skips a field whose class is the class
// being walked; longer cycles are then cut by WithMaxDepth and reported as
// ErrMaxDepthExceeded.
//
// # Concurrency
//
// Build is safe for concurrent use. Concurrent first calls share one walk and
// receive the same *ModelStructure; a failed build caches nothing.
package model
