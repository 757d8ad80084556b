package model

import (
	"context"
	"strings"
)

// Kind classifies a declared type.
type Kind string

const (
	KindBasic     Kind = "basic"
	KindComposite Kind = "composite"
	KindSequence  Kind = "sequence"
	KindMap       Kind = "map"
	KindOptional  Kind = "optional"
	KindFunction  Kind = "function"
	KindUnknown   Kind = "unknown"
)

// TypeDescriptor is the declared type of a field.
type TypeDescriptor struct {
	// Name is the type as written in the model source.
	Name string `json:"name"`

	Kind Kind `json:"kind"`

	// Class is the definition of a composite type, nil otherwise.
	Class *ClassDef `json:"-"`
}

// IsComposite reports whether the type has its own field set to expand.
func (t TypeDescriptor) IsComposite() bool {
	return t.Kind == KindComposite && t.Class != nil
}

func (t TypeDescriptor) String() string {
	return t.Name
}

// FieldDef is an instance variable of a class.
type FieldDef struct {
	Name string
	Type TypeDescriptor
}

// OperationDef is a method of a class.
type OperationDef struct {
	Name    string
	Params  []string
	Results []string
}

// ClassDef is an entity definition of the loaded model.
type ClassDef struct {
	Name       string
	Fields     []FieldDef
	Operations []OperationDef
}

// Operation returns the operation with the given name.
func (c *ClassDef) Operation(name string) (OperationDef, bool) {
	for _, op := range c.Operations {
		if op.Name == name {
			return op, true
		}
	}
	return OperationDef{}, false
}

// FindClass returns the class whose name equals name ignoring case.
func FindClass(classes []*ClassDef, name string) (*ClassDef, bool) {
	for _, c := range classes {
		if c != nil && strings.EqualFold(c.Name, name) {
			return c, true
		}
	}
	return nil, false
}

// RootVarName is the interpreter variable holding the root instance.
const RootVarName = "root"

// Runtime is the interpreted model that owns the live object graph.
type Runtime interface {
	// Classes returns the entity definitions of the loaded model.
	Classes() []*ClassDef

	// Create instantiates className and binds it to name.
	Create(ctx context.Context, name, className string) error
}
