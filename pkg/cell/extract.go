package cell

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Sumatoshi-tech/cellforge/pkg/pytree"
	"github.com/Sumatoshi-tech/cellforge/pkg/textutil"
)

// Sentinel errors for extraction. These are distinct from parse errors:
// the source parsed fine, but the declaration does not follow the cell
// calling convention.
var (
	ErrExtraction  = errors.New("expected a decorated declaration")
	errNoWithBlock = errors.New("no context block found at entry line")
)

// FrameSource is the explicit registration record for a context-block
// cell. There is no stack or source reflection here, so the caller passes
// the enclosing source span itself: the full text of the function or
// module that contains the block, where that text starts, and the line of
// the block's header.
type FrameSource struct {
	// Filename is the authoring file, used for anchoring.
	Filename string
	// Source is the complete enclosing source (module or function body).
	Source string
	// FirstLine is the 1-based line of Source within Filename, or 0 when
	// Source is the whole file.
	FirstLine int
	// EntryLine is the 1-based line of the block header within Filename.
	EntryLine int
	// Anonymous suppresses anchoring, for deterministic tests.
	Anonymous bool
}

// FuncSource is the explicit registration record for a declaration-derived
// cell: the declaration's text, where it lives, and how the enclosing
// module is being run.
type FuncSource struct {
	// Name is the declared function or class name.
	Name string
	// Source is the full declaration text, possibly indented.
	Source string
	// File is the absolute authoring file path; "" when none exists.
	File string
	// FirstLine is the 1-based line of Source within File.
	FirstLine int
	// Module is the import-spec name of the enclosing module. "" means
	// dynamically executed code with no spec.
	Module string
	// Params are the declared parameter names, recorded for
	// signature-drift detection and never analyzed.
	Params []string
	// Wrapped points at the underlying source when this descriptor
	// represents a caching or decorating wrapper.
	Wrapped *FuncSource
}

// anchored resolves the script-versus-library policy for a source.
// The rules are explicit rather than inferred:
//   - a wrapper chain is followed to the true underlying source first;
//   - a source with no backing file is never anchored;
//   - a source registered under the reserved app module name runs as an
//     imported library, and anchoring would leak internal paths;
//   - everything else, including dynamically executed code with no
//     module spec, is treated as a script and anchored.
func (s FuncSource) anchored() bool {
	resolved := s
	for resolved.Wrapped != nil {
		resolved = *resolved.Wrapped
	}

	if resolved.File == "" {
		return false
	}

	return resolved.Module != appModuleName
}

// sourcePosition builds the anchor for a declaration-derived cell, or nil
// when the anchoring policy forbids one.
func sourcePosition(src FuncSource, line, col int) *SourcePosition {
	if !src.anchored() {
		return nil
	}

	resolved := src
	for resolved.Wrapped != nil {
		resolved = *resolved.Wrapped
	}

	return &SourcePosition{Filename: resolved.File, Line: line, Col: col}
}

// extractWithBlock recovers the body of the context block entered at the
// frame's entry line: the implicit setup cell.
func extractWithBlock(frame FrameSource) (string, *SourcePosition, error) {
	entry := frame.EntryLine
	// When the block sits inside a function (e.g. under a test harness)
	// the entry line is absolute but the source span is not; correct by
	// the span's first line.
	if frame.FirstLine > 0 {
		entry += 1 - frame.FirstLine
	}

	lines := strings.Split(frame.Source, "\n")

	tree, err := pytree.Parse([]byte(textutil.Dedent(frame.Source)))
	if err != nil {
		return "", nil, err
	}

	block, err := containedWithBlock(tree, uint(entry))
	if err != nil {
		return "", nil, err
	}

	body := block.Body()
	if len(body) == 0 {
		return "", nil, fmt.Errorf("%w: line %d", errNoWithBlock, frame.EntryLine)
	}

	start := body[0]
	end := body[len(body)-1]

	endLine := int(end.Pos.EndLine)
	// A sole trailing "pass" is the placeholder for a comment-only
	// block; it is not part of the user's cell.
	if start == end && endLine-1 < len(lines) && strings.TrimSpace(lines[endLine-1]) == "pass" {
		endLine--
	}

	if entry > endLine || endLine > len(lines) {
		return "", nil, fmt.Errorf("%w: line %d", errNoWithBlock, frame.EntryLine)
	}

	code := strings.TrimRight(textutil.Dedent(strings.Join(lines[entry:endLine], "\n")), " \t\n")

	var pos *SourcePosition
	if !frame.Anonymous {
		base := 0
		if frame.FirstLine > 0 {
			base = frame.FirstLine - 1
		}

		pos = &SourcePosition{
			Filename: frame.Filename,
			Line:     base + int(start.Pos.StartLine) - 1,
			Col:      int(start.Pos.StartCol) - 1,
		}
	}

	return code, pos, nil
}

// containedWithBlock locates the with statement entered at the given
// line, preferring an exact header match and otherwise the innermost
// block spanning the line.
func containedWithBlock(tree *pytree.Node, entry uint) (*pytree.Node, error) {
	var exact, containing *pytree.Node

	for _, with := range tree.FindByType(pytree.TypeWith) {
		if with.Pos.StartLine == entry {
			// Pre-order: a later exact match is more deeply nested.
			exact = with
		}

		if with.Pos.StartLine <= entry && entry <= with.Pos.EndLine {
			if containing == nil || with.Pos.StartLine >= containing.Pos.StartLine {
				containing = with
			}
		}
	}

	chosen := exact
	if chosen == nil {
		chosen = containing
	}

	if chosen == nil {
		return nil, fmt.Errorf("%w: line %d", errNoWithBlock, entry)
	}

	block := chosen.ChildByField("body")
	if block == nil {
		block = chosen.FirstChildOfType(pytree.TypeBlock)
	}

	if block == nil {
		return nil, fmt.Errorf("%w: line %d", errNoWithBlock, entry)
	}

	return block, nil
}

// extractTopLevel recovers the cell body of a top-level declaration: the
// whole declaration minus its leading marker decorator. Returns the cell
// code, the decorator's end line within the declaration, and whether the
// declaration is a class.
func extractTopLevel(src FuncSource) (string, uint, bool, error) {
	funcCode := textutil.Dedent(src.Source)

	tree, err := pytree.Parse([]byte(funcCode))
	if err != nil {
		return "", 0, false, err
	}

	body := tree.Body()
	if len(body) == 0 || body[0].Type != pytree.TypeDecoratedDef {
		return "", 0, false, fmt.Errorf("%w: %s", ErrExtraction, src.Name)
	}

	decorated := body[0]

	decorator := decorated.FirstChildOfType(pytree.TypeDecorator)
	if decorator == nil {
		return "", 0, false, fmt.Errorf("%w: %s", ErrExtraction, src.Name)
	}

	inner := decorated.ChildByField("definition")
	isClass := inner != nil && inner.Type == pytree.TypeClassDef

	// Everything after the decorator's last line is the cell body; the
	// tree is not unparsed because that would strip comments.
	lines := strings.Split(funcCode, "\n")
	decoratorEnd := decorator.Pos.EndLine

	if int(decoratorEnd) >= len(lines) {
		return "", 0, false, fmt.Errorf("%w: %s", ErrExtraction, src.Name)
	}

	code := strings.TrimSpace(textutil.Dedent(strings.Join(lines[decoratorEnd:], "\n")))

	return code, decoratorEnd, isClass, nil
}

// extractFuncBody recovers the body of a cell-marked function. Returns
// the cell code plus the body's first line and column within the
// declaration, for anchoring.
func extractFuncBody(src FuncSource) (string, uint, uint, error) {
	funcCode := textutil.Dedent(src.Source)

	tree, err := pytree.Parse([]byte(funcCode))
	if err != nil {
		return "", 0, 0, err
	}

	fn, err := markedFunction(tree, src.Name)
	if err != nil {
		return "", 0, 0, err
	}

	block := fn.ChildByField("body")
	if block == nil {
		return "", 0, 0, fmt.Errorf("%w: %s", ErrExtraction, src.Name)
	}

	lines := strings.Split(funcCode, "\n")
	startLine := block.Pos.StartLine
	col := block.Pos.StartCol - 1

	var code string
	if startLine == fn.Pos.StartLine {
		// Single-line definition: the body shares the def line.
		line := lines[startLine-1]
		code = strings.TrimSpace(line[min(int(col), len(line)):])
	} else {
		endLine := min(int(block.Pos.EndLine), len(lines))
		code = strings.TrimRight(textutil.Dedent(strings.Join(lines[startLine-1:endLine], "\n")), " \t\n")
	}

	return code, startLine, col, nil
}

// markedFunction locates the function definition of a cell-marked
// callable: either decorated with the cell marker or a bare definition
// presumed marked by the caller.
func markedFunction(tree *pytree.Node, name string) (*pytree.Node, error) {
	body := tree.Body()
	if len(body) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrExtraction, name)
	}

	decl := body[0]

	if decl.Type == pytree.TypeFunctionDef {
		return decl, nil
	}

	if decl.Type != pytree.TypeDecoratedDef {
		return nil, fmt.Errorf("%w: %s", ErrExtraction, name)
	}

	marked := false

	for _, child := range decl.Children {
		if child.Type == pytree.TypeDecorator && isCellDecorator(child) {
			marked = true

			break
		}
	}

	if !marked {
		return nil, fmt.Errorf("%w: %s", ErrExtraction, name)
	}

	fn := decl.ChildByField("definition")
	if fn == nil || fn.Type != pytree.TypeFunctionDef {
		return nil, fmt.Errorf("%w: %s", ErrExtraction, name)
	}

	return fn, nil
}

// isCellDecorator recognizes the cell marker: @cell, @app.cell, or
// @app.cell(...).
func isCellDecorator(decorator *pytree.Node) bool {
	for _, expr := range decorator.Children {
		candidate := expr
		if candidate.Type == pytree.TypeCall {
			candidate = candidate.ChildByField("function")
		}

		if candidate == nil {
			continue
		}

		switch candidate.Type {
		case pytree.TypeIdentifier:
			if candidate.Token == "cell" {
				return true
			}
		case pytree.TypeAttribute:
			attr := candidate.ChildByField("attribute")
			if attr != nil && attr.Token == "cell" {
				return true
			}
		}
	}

	return false
}
