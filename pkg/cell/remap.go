package cell

import "github.com/Sumatoshi-tech/cellforge/pkg/pytree"

// FixSourcePosition shifts every position-bearing node of the tree by the
// anchor's line and column deltas, in place, so compiled artifacts report
// diagnostics against the user's authoring file. Nodes without positions
// are left untouched, and line-only nodes shift only their lines. The
// function is total for any well-formed tree.
func FixSourcePosition(root *pytree.Node, pos SourcePosition) {
	lineDelta := pos.Line
	colDelta := pos.Col

	root.Walk(func(n *pytree.Node) bool {
		p := n.Pos
		if p == nil {
			return true
		}

		p.StartLine = shift(p.StartLine, lineDelta)
		p.EndLine = shift(p.EndLine, lineDelta)

		if p.LineOnly {
			return true
		}

		p.StartCol = shift(p.StartCol, colDelta)
		p.EndCol = shift(p.EndCol, colDelta)

		return true
	})
}

// shift applies a signed delta to an unsigned position, clamping at zero
// instead of wrapping.
func shift(value uint, delta int) uint {
	shifted := int(value) + delta
	if shifted < 0 {
		return 0
	}

	return uint(shifted)
}
