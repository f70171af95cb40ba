package cell

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/cellforge/pkg/linecache"
	"github.com/Sumatoshi-tech/cellforge/pkg/pytree"
	"github.com/Sumatoshi-tech/cellforge/pkg/scope"
)

func compile(t *testing.T, code string, opts Options) *CompiledCell {
	t.Helper()

	compiled, err := Compile(code, "t0", opts)
	require.NoError(t, err)

	return compiled
}

func TestCompile_EmptyCellIsInert(t *testing.T) {
	t.Parallel()

	for _, code := range []string{"", "   \n\t\n", "# only a comment\n"} {
		compiled := compile(t, code, Options{})

		assert.True(t, compiled.Inert())
		assert.Nil(t, compiled.Body)
		assert.Nil(t, compiled.LastExpr)
		assert.Empty(t, compiled.Defs)
		assert.Empty(t, compiled.Refs)
		assert.Equal(t, Key(""), compiled.Key)
		assert.Equal(t, "python", compiled.Language)
		assert.False(t, compiled.ImportWorkspace.IsImportBlock)
		assert.Empty(t, compiled.ImportWorkspace.ImportedDefs)
	}
}

func TestCompile_KeyIsContentHashOfOriginalText(t *testing.T) {
	t.Parallel()

	first := compile(t, "x = 1\n", Options{})
	second := compile(t, "x = 1\n", Options{})
	other := compile(t, "x = 2\n", Options{})

	assert.Equal(t, first.Key, second.Key)
	assert.NotEqual(t, first.Key, other.Key)
	assert.Equal(t, Key("x = 1\n"), first.Key)
}

func TestCompile_NbspNormalization(t *testing.T) {
	t.Parallel()

	compiled := compile(t, "x = 1\n", Options{})

	assert.Equal(t, "x = 1\n", compiled.Code)
	// The key covers the text as the user wrote it.
	assert.Equal(t, Key("x = 1\n"), compiled.Key)
	assert.True(t, compiled.Defs.Has("x"))
}

func TestCompile_ParseErrorIsFatal(t *testing.T) {
	t.Parallel()

	_, err := Compile("def broken(:\n", "t0", Options{})

	var perr *pytree.ParseError

	require.Error(t, err)
	assert.ErrorAs(t, err, &perr)
}

func TestCompile_DefsAndRefs(t *testing.T) {
	t.Parallel()

	compiled := compile(t, "y = x + 1\n", Options{})

	assert.True(t, compiled.Defs.Has("y"))
	assert.True(t, compiled.Refs.Has("x"))
	assert.Empty(t, compiled.Temporaries)
}

func TestCompile_UnderscoreNamesAreTemporaries(t *testing.T) {
	t.Parallel()

	compiled := compile(t, "_tmp = 1\nresult = _tmp + 1\n", Options{})

	assert.True(t, compiled.Defs.Has("result"))
	assert.False(t, compiled.Defs.Has("_tmp"))
	assert.True(t, compiled.Temporaries.Has("_tmp"))
	// Variable metadata is projected onto visible defs only.
	assert.Contains(t, compiled.VariableData, "result")
	assert.NotContains(t, compiled.VariableData, "_tmp")
}

func TestCompile_TrailingExpressionSplit(t *testing.T) {
	t.Parallel()

	compiled := compile(t, "x = 1\nx + 1\n", Options{})

	require.NotNil(t, compiled.Body)
	require.NotNil(t, compiled.LastExpr)

	assert.Equal(t, ModeExec, compiled.Body.Mode)
	assert.Equal(t, ModeEval, compiled.LastExpr.Mode)
	assert.Equal(t, "x + 1", compiled.LastExpr.Source)

	// The trailing expression is removed from the body tree but kept in
	// the retained full tree.
	assert.Len(t, compiled.Body.Tree.Body(), 1)
	assert.Len(t, compiled.Tree.Body(), 2)
}

func TestCompile_SemicolonSuppressesValue(t *testing.T) {
	t.Parallel()

	compiled := compile(t, "x = 1\nx + 1;\n", Options{})

	require.NotNil(t, compiled.LastExpr)
	assert.Equal(t, "None", compiled.LastExpr.Source)
	// The body keeps the suppressed expression; only the displayed
	// value changes.
	assert.Len(t, compiled.Body.Tree.Body(), 2)
}

func TestCompile_StatementOnlyCellEvaluatesNone(t *testing.T) {
	t.Parallel()

	compiled := compile(t, "x = 1\n", Options{})

	require.NotNil(t, compiled.LastExpr)
	assert.Equal(t, "None", compiled.LastExpr.Source)

	// The synthesized constant anchors one line past the source.
	wrapper := compiled.LastExpr.Tree
	assert.Equal(t, uint(2), wrapper.Pos.StartLine)
}

func TestCompile_BothArtifactsShareFilenameAndFlags(t *testing.T) {
	t.Parallel()

	compiled := compile(t, "x = 1\nx\n", Options{})

	assert.Equal(t, compiled.Body.Filename, compiled.LastExpr.Filename)
	assert.Equal(t, FlagAllowTopLevelAwait, compiled.Body.Flags)
	assert.Equal(t, FlagAllowTopLevelAwait, compiled.LastExpr.Flags)
}

func TestCompile_SyntheticFilenameRegistersLineCache(t *testing.T) {
	t.Parallel()

	lc := linecache.New()
	compiled := compile(t, "x = 1\nx\n", Options{LineCache: lc})

	assert.True(t, strings.HasSuffix(compiled.Body.Filename, ".py"))
	assert.Equal(t, CellID("t0"), CellIDFromFilename(compiled.Body.Filename))

	entry, ok := lc.Get(compiled.Body.Filename)
	require.True(t, ok)
	assert.Equal(t, []string{"x = 1\n", "x\n"}, entry.Lines)
}

func TestCompile_AnchorRemapsTrees(t *testing.T) {
	t.Parallel()

	compiled := compile(t, "x = 1\nx + 1\n", Options{
		SourcePosition: &SourcePosition{Filename: "/nb/app.py", Line: 10, Col: 0},
	})

	assert.Equal(t, "/nb/app.py", compiled.Body.Filename)

	// Line 1 of the cell now reports as line 11 of the file.
	first := compiled.Body.Tree.Body()[0]
	assert.Equal(t, uint(11), first.Pos.StartLine)

	// The eval artifact is remapped independently.
	assert.Equal(t, uint(12), compiled.LastExpr.Tree.Pos.StartLine)
}

func TestCompile_AnchoredCellSkipsLineCache(t *testing.T) {
	t.Parallel()

	lc := linecache.New()
	compile(t, "x = 1\n", Options{
		SourcePosition: &SourcePosition{Filename: "/nb/app.py", Line: 0, Col: 0},
		LineCache:      lc,
	})

	assert.Equal(t, 0, lc.Len())
}

func TestCompile_TestCellClassification(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		code string
		want bool
	}{
		{"test function", "def test_addition():\n    assert 1 + 1 == 2\n", true},
		{"test class", "class TestMath:\n    def test_add(self):\n        assert True\n", true},
		{"bare return", "return\n", true},
		{"mixed content", "x = 1\ndef test_x():\n    assert x\n", false},
		{"plain cell", "x = 1\n", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			compiled := compile(t, tc.code, Options{})
			assert.Equal(t, tc.want, compiled.Test)
		})
	}
}

// recordingRewriter captures rewrite calls and optionally fails.
type recordingRewriter struct {
	called   bool
	filename string
	fail     bool
}

func (r *recordingRewriter) Rewrite(_ *pytree.Node, _ []byte, filename string) error {
	r.called = true
	r.filename = filename

	if r.fail {
		return errors.New("rewrite backend unavailable")
	}

	return nil
}

func TestCompile_RewriterInvokedForTestCells(t *testing.T) {
	t.Parallel()

	rw := &recordingRewriter{}
	compiled := compile(t, "def test_me():\n    assert True\n", Options{Rewriter: rw})

	assert.True(t, compiled.Test)
	assert.True(t, rw.called)
	assert.Equal(t, compiled.Body.Filename, rw.filename)
}

func TestCompile_RewriterSkippedWithoutRequest(t *testing.T) {
	t.Parallel()

	rw := &recordingRewriter{}
	compile(t, "x = 1\n", Options{Rewriter: rw})

	assert.False(t, rw.called)
}

func TestCompile_RewriterForcedByOption(t *testing.T) {
	t.Parallel()

	rw := &recordingRewriter{}
	compile(t, "x = 1\n", Options{Rewriter: rw, TestRewrite: true})

	assert.True(t, rw.called)
}

func TestCompile_RewriteFailureIsNotFatal(t *testing.T) {
	t.Parallel()

	rw := &recordingRewriter{fail: true}
	compiled := compile(t, "def test_me():\n    assert True\n", Options{Rewriter: rw})

	assert.True(t, rw.called)
	assert.NotNil(t, compiled.Body)
}

func TestCompile_NilRewriterIsConfiguration(t *testing.T) {
	t.Parallel()

	compiled := compile(t, "def test_me():\n    assert True\n", Options{TestRewrite: true})

	assert.True(t, compiled.Test)
	assert.NotNil(t, compiled.Body)
}

func TestCompile_ImportBlock(t *testing.T) {
	t.Parallel()

	compiled := compile(t, "import os\nimport sys\n", Options{})

	assert.True(t, compiled.ImportWorkspace.IsImportBlock)
	assert.True(t, compiled.Defs.Has("os"))
	assert.True(t, compiled.Defs.Has("sys"))
}

func TestCompile_NonImportBlock(t *testing.T) {
	t.Parallel()

	compiled := compile(t, "import os\nx = 1\n", Options{})

	assert.False(t, compiled.ImportWorkspace.IsImportBlock)
}

func TestCompile_CarriedImportsByStructuralEquality(t *testing.T) {
	t.Parallel()

	carried := []scope.ImportData{
		{Definition: "os", Module: "os"},
		{Definition: "np", Module: "numpy"},
	}

	compiled := compile(t, "import os\nimport numpy as np\nimport sys\n", Options{CarriedImports: carried})

	assert.True(t, compiled.ImportWorkspace.ImportedDefs.Has("os"))
	assert.True(t, compiled.ImportWorkspace.ImportedDefs.Has("np"))
	// sys was not previously imported; it must re-execute.
	assert.False(t, compiled.ImportWorkspace.ImportedDefs.Has("sys"))
}

func TestCompile_CarriedImportsIgnoreSameNameDifferentModule(t *testing.T) {
	t.Parallel()

	carried := []scope.ImportData{{Definition: "np", Module: "numpypro"}}

	compiled := compile(t, "import numpy as np\n", Options{CarriedImports: carried})

	assert.False(t, compiled.ImportWorkspace.ImportedDefs.Has("np"))
}

func TestCompile_SQLDetection(t *testing.T) {
	t.Parallel()

	compiled := compile(t, "df = mo.sql(\"SELECT * FROM t\")\n", Options{})

	assert.Equal(t, "sql", compiled.Language)
}

func TestCompile_RetainedTreeIsUnsplit(t *testing.T) {
	t.Parallel()

	compiled := compile(t, "x = 1\nx\n", Options{})

	// splitTrailing mutates only the body copy.
	assert.Len(t, compiled.Tree.Body(), 2)
}

func TestKey_Deterministic(t *testing.T) {
	t.Parallel()

	assert.Equal(t, Key("abc"), Key("abc"))
	assert.NotEqual(t, Key("abc"), Key("abd"))
}
