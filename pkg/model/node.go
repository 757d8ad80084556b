package model

import "strings"

// Separator joins field names into qualified names.
const Separator = "."

// Node is one field of the structural model.
type Node struct {
	// Name is the qualified name: the dot-joined field path from the root.
	Name string `json:"name"`

	// Field is the simple field name.
	Field string `json:"field,omitempty"`

	Type TypeDescriptor `json:"type"`

	Children []*Node `json:"children,omitempty"`

	// Parent is a non-owning back reference, nil for the root.
	Parent *Node `json:"-"`
}

// AddChild appends a node for field under n and returns it.
func (n *Node) AddChild(field string, typ TypeDescriptor) *Node {
	child := &Node{
		Name:   qualify(n.Name, field),
		Field:  field,
		Type:   typ,
		Parent: n,
	}
	n.Children = append(n.Children, child)
	return child
}

// Path rebuilds the qualified name by following parent references.
func (n *Node) Path() string {
	var parts []string
	for cur := n; cur != nil && cur.Field != ""; cur = cur.Parent {
		parts = append(parts, cur.Field)
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.Join(parts, Separator)
}

// Child returns the direct child with the given simple field name.
func (n *Node) Child(field string) *Node {
	for _, c := range n.Children {
		if c.Field == field {
			return c
		}
	}
	return nil
}

// Walk visits n and its descendants depth-first. Returning false from fn
// skips the children of that node.
func (n *Node) Walk(fn func(*Node) bool) {
	if n == nil || !fn(n) {
		return
	}
	for _, c := range n.Children {
		c.Walk(fn)
	}
}

func qualify(parent, field string) string {
	if parent == "" {
		return field
	}
	return parent + Separator + field
}

// ModelStructure is the root of the Node tree.
type ModelStructure struct {
	RootClass string `json:"rootClass"`
	Node
}

// Find returns the node with the given qualified name.
func (m *ModelStructure) Find(name string) *Node {
	if m == nil || name == "" {
		return nil
	}
	cur := &m.Node
	for _, field := range strings.Split(name, Separator) {
		cur = cur.Child(field)
		if cur == nil {
			return nil
		}
	}
	return cur
}

// Count returns the number of field nodes in the tree.
func (m *ModelStructure) Count() int {
	if m == nil {
		return 0
	}
	count := -1
	m.Walk(func(*Node) bool {
		count++
		return true
	})
	return count
}

// Names returns every qualified name in depth-first order.
func (m *ModelStructure) Names() []string {
	if m == nil {
		return nil
	}
	var names []string
	m.Walk(func(n *Node) bool {
		if n.Name != "" {
			names = append(names, n.Name)
		}
		return true
	})
	return names
}
