package pytree

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Empty(t *testing.T) {
	t.Parallel()

	tree, err := Parse(nil)

	require.NoError(t, err)
	assert.Equal(t, TypeModule, tree.Type)
	assert.Empty(t, tree.Body())
}

func TestParse_CommentOnly(t *testing.T) {
	t.Parallel()

	tree, err := Parse([]byte("# just a comment\n"))

	require.NoError(t, err)
	// Comments are in the tree but not in the statement body.
	assert.Empty(t, tree.Body())
	assert.NotEmpty(t, tree.Children)
}

func TestParse_Assignment(t *testing.T) {
	t.Parallel()

	tree, err := Parse([]byte("x = 1\n"))

	require.NoError(t, err)

	body := tree.Body()
	require.Len(t, body, 1)
	assert.Equal(t, TypeExpressionStmt, body[0].Type)

	assign := body[0].FirstChildOfType(TypeAssignment)
	require.NotNil(t, assign)

	left := assign.ChildByField("left")
	require.NotNil(t, left)
	assert.Equal(t, "x", left.Token)
}

func TestParse_Positions(t *testing.T) {
	t.Parallel()

	tree, err := Parse([]byte("x = 1\ny = 2\n"))

	require.NoError(t, err)

	body := tree.Body()
	require.Len(t, body, 2)

	// Positions are 1-based.
	assert.Equal(t, uint(1), body[0].Pos.StartLine)
	assert.Equal(t, uint(1), body[0].Pos.StartCol)
	assert.Equal(t, uint(2), body[1].Pos.StartLine)
}

func TestParse_SyntaxError(t *testing.T) {
	t.Parallel()

	_, err := Parse([]byte("def broken(:\n"))

	var perr *ParseError

	require.Error(t, err)
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, uint(1), perr.Line)
}

func TestParse_RepairedInputIsRejected(t *testing.T) {
	t.Parallel()

	// The parser patches some malformed input with zero-width missing
	// tokens instead of an ERROR node; those trees must be rejected too.
	tests := []struct {
		name   string
		source string
	}{
		{name: "unclosed parameter list", source: "def f(:\n"},
		{name: "missing indent after colon", source: "if True:\nx = 1\n"},
		{name: "unclosed paren", source: "x = (1\n"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			_, err := Parse([]byte(tc.source))

			var perr *ParseError

			require.Error(t, err)
			require.ErrorAs(t, err, &perr)
		})
	}
}

func TestParse_SyntaxErrorPosition(t *testing.T) {
	t.Parallel()

	_, err := Parse([]byte("x = 1\n(]\n"))

	var perr *ParseError

	require.ErrorAs(t, err, &perr)
	assert.Equal(t, uint(2), perr.Line)
}

func TestParse_TrailingSemicolon(t *testing.T) {
	t.Parallel()

	tree, err := Parse([]byte("x + 1;\n"))

	require.NoError(t, err)

	body := tree.Body()
	require.Len(t, body, 1)
	assert.True(t, body[0].Semicolon)
}

func TestParse_SemicolonWithSpace(t *testing.T) {
	t.Parallel()

	tree, err := Parse([]byte("x + 1  ;\n"))

	require.NoError(t, err)
	assert.True(t, tree.Body()[0].Semicolon)
}

func TestParse_NoSemicolon(t *testing.T) {
	t.Parallel()

	tree, err := Parse([]byte("x + 1\n"))

	require.NoError(t, err)
	assert.False(t, tree.Body()[0].Semicolon)
}

func TestParse_FunctionFields(t *testing.T) {
	t.Parallel()

	tree, err := Parse([]byte("def f(a, b):\n    return a + b\n"))

	require.NoError(t, err)

	fn := tree.Body()[0]
	require.Equal(t, TypeFunctionDef, fn.Type)

	name := fn.ChildByField("name")
	require.NotNil(t, name)
	assert.Equal(t, "f", name.Token)

	assert.NotNil(t, fn.ChildByField("parameters"))
	assert.NotNil(t, fn.ChildByField("body"))
}

func TestParse_DecoratedDefinition(t *testing.T) {
	t.Parallel()

	tree, err := Parse([]byte("@app.cell\ndef f():\n    pass\n"))

	require.NoError(t, err)

	decorated := tree.Body()[0]
	require.Equal(t, TypeDecoratedDef, decorated.Type)

	inner := decorated.ChildByField("definition")
	require.NotNil(t, inner)
	assert.Equal(t, TypeFunctionDef, inner.Type)
	assert.NotNil(t, decorated.FirstChildOfType(TypeDecorator))
}

func TestParse_TreeIsDetached(t *testing.T) {
	t.Parallel()

	// The returned tree must stay valid after Parse returns; it owns
	// all of its strings and positions.
	tree, err := Parse([]byte("value = [1, 2, 3]\n"))

	require.NoError(t, err)

	found := tree.Find(func(n *Node) bool { return n.Token == "value" })
	require.NotEmpty(t, found)
	assert.Equal(t, TypeIdentifier, found[0].Type)
}

func TestParse_ConcurrentUse(t *testing.T) {
	t.Parallel()

	done := make(chan error, 8)

	for range 8 {
		go func() {
			_, err := Parse([]byte("import os\nx = os.getcwd()\n"))
			done <- err
		}()
	}

	for range 8 {
		require.NoError(t, <-done)
	}
}

func TestParseError_Message(t *testing.T) {
	t.Parallel()

	err := &ParseError{Line: 3, Col: 7}

	assert.Equal(t, "syntax error at line 3, column 7", err.Error())
	assert.False(t, errors.Is(err, assert.AnError))
}
