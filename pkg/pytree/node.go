// Package pytree parses Python cell source into an owned, mutable syntax
// tree with full position information. The tree is the substrate for cell
// compilation: scope analysis, trailing-expression surgery, and source
// position remapping all operate on it.
package pytree

// Grammar node type constants for the Python grammar.
const (
	TypeModule         = "module"
	TypeComment        = "comment"
	TypeExpressionStmt = "expression_statement"
	TypeFunctionDef    = "function_definition"
	TypeClassDef       = "class_definition"
	TypeDecoratedDef   = "decorated_definition"
	TypeDecorator      = "decorator"
	TypeImport         = "import_statement"
	TypeImportFrom     = "import_from_statement"
	TypeReturn         = "return_statement"
	TypeWith           = "with_statement"
	TypeBlock          = "block"
	TypePass           = "pass_statement"
	TypeIdentifier     = "identifier"
	TypeAttribute      = "attribute"
	TypeCall           = "call"
	TypeAssignment     = "assignment"
	TypeExpression     = "expression"
	TypeNone           = "none"
)

// Positions holds 1-based line/column spans plus byte offsets for a node.
// Byte offsets index the original cell source and are not adjusted by
// position remapping. LineOnly marks nodes that carry no meaningful column
// information; remapping shifts only their lines.
type Positions struct {
	StartLine uint
	StartCol  uint
	StartByte uint
	EndLine   uint
	EndCol    uint
	EndByte   uint
	LineOnly  bool
}

// Node is a single syntax tree node. Only named grammar nodes are
// materialized; anonymous tokens are folded into the fields that need them
// (Semicolon). Pos is nil for synthesized nodes that have no source span.
type Node struct {
	Type      string
	FieldName string // grammar field name in the parent, "" if positional
	Token     string // source text, kept for leaf nodes only
	Pos       *Positions
	Semicolon bool // expression_statement terminated by an explicit ';'
	Children  []*Node
}

// IsLeaf reports whether the node has no children.
func (n *Node) IsLeaf() bool {
	return len(n.Children) == 0
}

// ChildByField returns the first child carrying the given grammar field
// name, or nil.
func (n *Node) ChildByField(field string) *Node {
	for _, child := range n.Children {
		if child.FieldName == field {
			return child
		}
	}

	return nil
}

// ChildrenByField returns all children carrying the given grammar field name.
func (n *Node) ChildrenByField(field string) []*Node {
	var out []*Node

	for _, child := range n.Children {
		if child.FieldName == field {
			out = append(out, child)
		}
	}

	return out
}

// FirstChildOfType returns the first direct child of the given type, or nil.
func (n *Node) FirstChildOfType(nodeType string) *Node {
	for _, child := range n.Children {
		if child.Type == nodeType {
			return child
		}
	}

	return nil
}

// Body returns the node's statement children, skipping comments. For a
// module node this is the top-level statement list; for a block node the
// block's statements.
func (n *Node) Body() []*Node {
	var stmts []*Node

	for _, child := range n.Children {
		if child.Type == TypeComment {
			continue
		}

		stmts = append(stmts, child)
	}

	return stmts
}

// RemoveChild removes the given child by identity. No-op when absent.
func (n *Node) RemoveChild(target *Node) {
	for i, child := range n.Children {
		if child == target {
			n.Children = append(n.Children[:i], n.Children[i+1:]...)

			return
		}
	}
}

// Walk visits the node and all descendants in pre-order. Returning false
// from the visitor prunes the subtree.
func (n *Node) Walk(visit func(*Node) bool) {
	if n == nil {
		return
	}

	if !visit(n) {
		return
	}

	for _, child := range n.Children {
		child.Walk(visit)
	}
}

// Find returns all nodes in the tree for which the predicate holds.
// Traversal is pre-order.
func (n *Node) Find(predicate func(*Node) bool) []*Node {
	var out []*Node

	n.Walk(func(candidate *Node) bool {
		if predicate(candidate) {
			out = append(out, candidate)
		}

		return true
	})

	return out
}

// FindByType returns all nodes of the given type, in pre-order.
func (n *Node) FindByType(nodeType string) []*Node {
	return n.Find(func(candidate *Node) bool { return candidate.Type == nodeType })
}

// Clone returns a deep copy of the tree. Positions are copied, not shared,
// so the clone can be mutated (split, remapped) independently.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}

	clone := &Node{
		Type:      n.Type,
		FieldName: n.FieldName,
		Token:     n.Token,
		Semicolon: n.Semicolon,
	}

	if n.Pos != nil {
		pos := *n.Pos
		clone.Pos = &pos
	}

	if len(n.Children) > 0 {
		clone.Children = make([]*Node, len(n.Children))
		for i, child := range n.Children {
			clone.Children[i] = child.Clone()
		}
	}

	return clone
}

// Span extracts the node's exact textual span from the original source.
// Returns "" when the node has no positions.
func (n *Node) Span(source []byte) string {
	if n.Pos == nil {
		return ""
	}

	start, end := n.Pos.StartByte, n.Pos.EndByte
	if start > end || end > uint(len(source)) {
		return ""
	}

	return string(source[start:end])
}
