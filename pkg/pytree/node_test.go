package pytree

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, source string) *Node {
	t.Helper()

	tree, err := Parse([]byte(source))
	require.NoError(t, err)

	return tree
}

func TestNode_BodySkipsComments(t *testing.T) {
	t.Parallel()

	tree := mustParse(t, "# header\nx = 1\n# footer\n")

	body := tree.Body()
	require.Len(t, body, 1)
	assert.Equal(t, TypeExpressionStmt, body[0].Type)
}

func TestNode_RemoveChild(t *testing.T) {
	t.Parallel()

	tree := mustParse(t, "x = 1\ny = 2\n")

	body := tree.Body()
	tree.RemoveChild(body[1])

	assert.Len(t, tree.Body(), 1)
}

func TestNode_RemoveChildByIdentity(t *testing.T) {
	t.Parallel()

	tree := mustParse(t, "x = 1\n")

	// A structurally equal but distinct node is not removed.
	tree.RemoveChild(tree.Body()[0].Clone())

	assert.Len(t, tree.Body(), 1)
}

func TestNode_CloneIsDeep(t *testing.T) {
	t.Parallel()

	tree := mustParse(t, "x = 1\n")
	clone := tree.Clone()

	clone.Body()[0].Pos.StartLine = 99

	assert.Equal(t, uint(1), tree.Body()[0].Pos.StartLine)
	assert.Equal(t, uint(99), clone.Body()[0].Pos.StartLine)
}

func TestNode_WalkPrunes(t *testing.T) {
	t.Parallel()

	tree := mustParse(t, "def f():\n    inner = 1\n")

	sawInner := false

	tree.Walk(func(n *Node) bool {
		if n.Token == "inner" {
			sawInner = true
		}

		// Prune function bodies.
		return n.Type != TypeFunctionDef
	})

	assert.False(t, sawInner)
}

func TestNode_FindByType(t *testing.T) {
	t.Parallel()

	tree := mustParse(t, "with open(p) as f:\n    data = f.read()\n")

	withs := tree.FindByType(TypeWith)
	require.Len(t, withs, 1)
	assert.Equal(t, uint(1), withs[0].Pos.StartLine)
}

func TestNode_Span(t *testing.T) {
	t.Parallel()

	source := "total = 1 + 2\n"
	tree := mustParse(t, source)

	assign := tree.Body()[0].FirstChildOfType(TypeAssignment)
	require.NotNil(t, assign)

	right := assign.ChildByField("right")
	require.NotNil(t, right)
	assert.Equal(t, "1 + 2", right.Span([]byte(source)))
}
