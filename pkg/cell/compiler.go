package cell

import (
	"log/slog"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/Sumatoshi-tech/cellforge/pkg/linecache"
	"github.com/Sumatoshi-tech/cellforge/pkg/pytree"
	"github.com/Sumatoshi-tech/cellforge/pkg/scope"
	"github.com/Sumatoshi-tech/cellforge/pkg/textutil"
)

// TestRewriter rewrites a cell's statement tree for richer test failure
// messages. It is an optional capability: a nil rewriter is a
// configuration state, not an error, and a failing rewrite is never fatal
// to compilation.
type TestRewriter interface {
	Rewrite(module *pytree.Node, code []byte, filename string) error
}

// Options carries the optional inputs of a compilation request.
type Options struct {
	// SourcePosition anchors the cell to its true location in an
	// authoring file. Nil for cells with no real backing file; those
	// register a synthetic filename with the line cache instead.
	SourcePosition *SourcePosition
	// CarriedImports is the import-provenance record of a prior
	// compilation of the same logical cell.
	CarriedImports []scope.ImportData
	// TestRewrite requests assertion rewriting even for cells not
	// classified as test-only.
	TestRewrite bool
	// Rewriter is the injected rewrite strategy; nil skips rewriting.
	Rewriter TestRewriter
	// LineCache overrides the process-wide debug line cache.
	LineCache *linecache.Cache
}

// Key computes the cache key for a cell's source text. Identical user
// edits always produce identical keys regardless of internal rewriting.
func Key(code string) uint64 {
	return xxhash.Sum64String(code)
}

// Compile parses, analyzes, splits, remaps, and compiles one cell.
//
// Parse errors are fatal and propagate verbatim. Rewrite failures are
// swallowed with a logged warning. Compilation either fully produces a
// CompiledCell or returns an error; there is no partial state.
func Compile(code string, id CellID, opts Options) (*CompiledCell, error) {
	// Some remote frontends send non-breaking spaces in place of
	// spaces, which fail to parse while looking identical.
	normalized := strings.ReplaceAll(code, " ", " ")

	tree, err := pytree.Parse([]byte(normalized))
	if err != nil {
		return nil, err
	}

	if len(tree.Body()) == 0 {
		// Whitespace or comments only: a valid, inert cell.
		return &CompiledCell{
			Key:          Key(""),
			Code:         normalized,
			Tree:         tree,
			Defs:         scope.Names{},
			Refs:         scope.Names{},
			Temporaries:  scope.Names{},
			VariableData: map[string][]scope.VariableData{},
			DeletedRefs:  scope.Names{},
			Language:     "python",
			ImportWorkspace: ImportWorkspace{
				ImportedDefs: scope.Names{},
			},
			ID: id,
		}, nil
	}

	isTest := containsOnlyTests(tree)
	isImportBlock := isImportBlock(tree)

	analysis := scope.NewVisitor("cell_" + string(id)).Visit(tree)

	// The unsplit tree is retained for downstream static analysis.
	original := tree.Clone()

	lastExprTree := splitTrailing(tree, normalized)

	filename := Filename(id, "")
	if opts.SourcePosition != nil {
		FixSourcePosition(tree, *opts.SourcePosition)
		FixSourcePosition(lastExprTree, *opts.SourcePosition)
		filename = opts.SourcePosition.Filename
	} else {
		// No backing file: register the cell's code so debuggers can
		// still find it.
		lc := opts.LineCache
		if lc == nil {
			lc = linecache.Default()
		}

		lc.Put(filename, normalized)
	}

	if (isTest || opts.TestRewrite) && opts.Rewriter != nil {
		if rerr := opts.Rewriter.Rewrite(tree, []byte(normalized), filename); rerr != nil {
			slog.Warn("assertion rewriting failed, continuing without it",
				"cell_id", string(id), "error", rerr)
		}
	}

	body := &Executable{
		Filename: filename,
		Mode:     ModeExec,
		Tree:     tree,
		Source:   normalized,
		Flags:    FlagAllowTopLevelAwait,
	}
	lastExpr := &Executable{
		Filename: filename,
		Mode:     ModeEval,
		Tree:     lastExprTree,
		Source:   exprSource(lastExprTree, normalized),
		Flags:    FlagAllowTopLevelAwait,
	}

	defs := scope.Names{}
	temporaries := scope.Names{}

	for name := range analysis.Defs {
		if IsLocal(name) {
			temporaries.Add(name)
		} else {
			defs.Add(name)
		}
	}

	variableData := make(map[string][]scope.VariableData, len(defs))

	for name := range defs {
		if data, ok := analysis.VariableData[name]; ok {
			variableData[name] = data
		}
	}

	return &CompiledCell{
		Key:             Key(code),
		Code:            normalized,
		Tree:            original,
		Defs:            defs,
		Refs:            analysis.Refs,
		Temporaries:     temporaries,
		VariableData:    variableData,
		DeletedRefs:     analysis.DeletedRefs,
		Language:        analysis.Language,
		ImportWorkspace: importWorkspace(isImportBlock, variableData, opts.CarriedImports),
		Body:            body,
		LastExpr:        lastExpr,
		Test:            isTest,
		ID:              id,
	}, nil
}

// containsOnlyTests reports whether every top-level statement is a
// function or class definition whose name starts with the test prefix.
// A bare top-level return is a structural signal of test content.
func containsOnlyTests(tree *pytree.Node) bool {
	body := tree.Body()

	for _, stmt := range body {
		if stmt.Type == pytree.TypeReturn {
			return true
		}

		decl := stmt
		if decl.Type == pytree.TypeDecoratedDef {
			if inner := decl.ChildByField("definition"); inner != nil {
				decl = inner
			}
		}

		if decl.Type != pytree.TypeFunctionDef && decl.Type != pytree.TypeClassDef {
			return false
		}

		name := declName(decl)
		if !strings.HasPrefix(strings.ToLower(name), testNamePrefix) {
			return false
		}
	}

	return len(body) > 0
}

func isImportBlock(tree *pytree.Node) bool {
	for _, stmt := range tree.Body() {
		if stmt.Type != pytree.TypeImport && stmt.Type != pytree.TypeImportFrom {
			return false
		}
	}

	return true
}

func declName(decl *pytree.Node) string {
	name := decl.ChildByField("name")
	if name == nil {
		return ""
	}

	return name.Token
}

// splitTrailing detaches the cell's trailing bare expression into a
// standalone evaluable tree, or synthesizes a None-valued expression
// anchored one line past the source when the cell ends in a statement or
// a semicolon-suppressed expression. The module tree is mutated in place.
func splitTrailing(tree *pytree.Node, code string) *pytree.Node {
	body := tree.Body()
	final := body[len(body)-1]

	if expr := trailingExpression(final); expr != nil {
		if len(final.Body()) == 1 {
			tree.RemoveChild(final)
		} else {
			final.RemoveChild(expr)
		}

		// Promotion to a standalone expression loses the statement's
		// column span; restore it from the statement's end column.
		return &pytree.Node{
			Type: pytree.TypeExpression,
			Pos: &pytree.Positions{
				StartLine: final.Pos.StartLine,
				EndLine:   expr.Pos.EndLine,
				StartCol:  final.Pos.EndCol,
				EndCol:    final.Pos.EndCol,
				StartByte: expr.Pos.StartByte,
				EndByte:   expr.Pos.EndByte,
			},
			Children: []*pytree.Node{expr},
		}
	}

	// The synthesized constant anchors one line past the cell's source,
	// so it can never shadow a user diagnostic.
	line := uint(textutil.CountLines([]byte(code))) + 1
	none := &pytree.Node{
		Type:  pytree.TypeNone,
		Token: "None",
		Pos: &pytree.Positions{
			StartLine: line,
			EndLine:   line,
			StartCol:  final.Pos.EndCol,
			EndCol:    final.Pos.EndCol,
		},
	}

	return &pytree.Node{
		Type: pytree.TypeExpression,
		Pos: &pytree.Positions{
			StartLine: line,
			EndLine:   line,
			StartCol:  final.Pos.EndCol,
			EndCol:    final.Pos.EndCol,
		},
		Children: []*pytree.Node{none},
	}
}

// trailingExpression returns the final bare expression of the statement,
// or nil when the statement is not a splittable expression statement.
func trailingExpression(final *pytree.Node) *pytree.Node {
	if final.Type != pytree.TypeExpressionStmt || final.Semicolon {
		return nil
	}

	exprs := final.Body()
	if len(exprs) == 0 {
		return nil
	}

	last := exprs[len(exprs)-1]

	// Assignments are statements, not values.
	if last.Type == pytree.TypeAssignment || last.Type == "augmented_assignment" {
		return nil
	}

	return last
}

func exprSource(wrapper *pytree.Node, code string) string {
	if len(wrapper.Children) == 1 && wrapper.Children[0].Type == pytree.TypeNone &&
		wrapper.Children[0].Token == "None" && wrapper.Pos.StartByte == wrapper.Pos.EndByte {
		return "None"
	}

	source := wrapper.Span([]byte(code))
	if source == "" {
		return "None"
	}

	return source
}

func importWorkspace(isImportBlock bool, variableData map[string][]scope.VariableData, carried []scope.ImportData) ImportWorkspace {
	workspace := ImportWorkspace{
		IsImportBlock: isImportBlock,
		ImportedDefs:  scope.Names{},
	}

	if !isImportBlock || carried == nil {
		return workspace
	}

	// An import carries over when its underlying descriptor is
	// structurally identical to a previous one, not merely same-named.
	for _, data := range variableData {
		for _, datum := range data {
			if datum.ImportData == nil {
				continue
			}

			for _, previous := range carried {
				if previous == *datum.ImportData {
					workspace.ImportedDefs.Add(datum.ImportData.Definition)
				}
			}
		}
	}

	return workspace
}
