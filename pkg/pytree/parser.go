package pytree

import (
	"context"
	"fmt"
	"sync"

	python "github.com/alexaandru/go-sitter-forest/python"
	sitter "github.com/alexaandru/go-tree-sitter-bare"
)

// ParseError reports malformed source text. It carries the 1-based position
// of the first syntax error so callers can surface it against the user's
// cell. Parse errors are fatal; no partial tree is returned.
type ParseError struct {
	Line uint
	Col  uint
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("syntax error at line %d, column %d", e.Line, e.Col)
}

// pythonLanguage is constructed once; tree-sitter languages are immutable
// and safe for concurrent use.
var (
	pythonLanguage     *sitter.Language
	pythonLanguageOnce sync.Once
)

func language() *sitter.Language {
	pythonLanguageOnce.Do(func() {
		pythonLanguage = sitter.NewLanguage(python.GetLanguage())
	})

	return pythonLanguage
}

// tsParserPool reuses tree-sitter parser instances across Parse calls.
// Parsers are not safe for concurrent use, so each Parse checks one out.
var tsParserPool = sync.Pool{
	New: func() any {
		tsParser := sitter.NewParser()
		tsParser.SetLanguage(language())

		return tsParser
	},
}

// fieldsByType lists the grammar field names captured per node type. Fields
// not listed here are still reachable positionally through Children.
var fieldsByType = map[string][]string{
	TypeFunctionDef:        {"name", "parameters", "return_type", "body"},
	TypeClassDef:           {"name", "superclasses", "body"},
	TypeDecoratedDef:       {"definition"},
	TypeAssignment:         {"left", "type", "right"},
	"augmented_assignment": {"left", "right"},
	"named_expression":     {"name", "value"},
	TypeImportFrom:         {"module_name"},
	"aliased_import":       {"name", "alias"},
	TypeCall:               {"function", "arguments"},
	"keyword_argument":     {"name", "value"},
	"for_statement":        {"left", "right", "body"},
	"for_in_clause":        {"left", "right"},
	TypeWith:               {"body"},
	"while_statement":      {"condition", "body"},
	"lambda":               {"parameters", "body"},
	"default_parameter":    {"name", "value"},
	"typed_parameter":      {"type"},
	"typed_default_parameter": {
		"name", "type", "value",
	},
	"attribute":  {"object", "attribute"},
	"subscript":  {"value", "subscript"},
	"as_pattern": {"alias"},
}

// Parse parses Python cell source into an owned Node tree. The returned
// tree is fully detached from tree-sitter memory and safe to mutate.
// Malformed source yields a *ParseError and no tree.
func Parse(content []byte) (*Node, error) {
	tsParser, ok := tsParserPool.Get().(*sitter.Parser)
	if !ok {
		tsParser = sitter.NewParser()
		tsParser.SetLanguage(language())
	}
	defer tsParserPool.Put(tsParser)

	tree, err := tsParser.ParseString(context.Background(), nil, content)
	if err != nil {
		return nil, fmt.Errorf("pytree: parse: %w", err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.IsNull() {
		return nil, &ParseError{Line: 1, Col: 1}
	}

	if root.HasError() {
		if perr := findSyntaxError(root); perr != nil {
			return nil, perr
		}

		return nil, &ParseError{Line: 1, Col: 1}
	}

	return convert(root, content, ""), nil
}

// findSyntaxError walks the raw tree-sitter tree looking for ERROR nodes
// and MISSING tokens. The parser repairs some malformed input by inserting
// zero-width MISSING tokens instead of an ERROR node, so both must be
// rejected. Returns the position of the first one found, or nil for a
// clean tree.
func findSyntaxError(tsNode sitter.Node) *ParseError {
	if tsNode.IsError() || tsNode.IsMissing() {
		point := tsNode.StartPoint()

		return &ParseError{Line: uint(point.Row) + 1, Col: uint(point.Column) + 1}
	}

	for idx := range tsNode.ChildCount() {
		if perr := findSyntaxError(tsNode.Child(idx)); perr != nil {
			return perr
		}
	}

	return nil
}

// convert materializes a named tree-sitter node and its named descendants.
func convert(tsNode sitter.Node, source []byte, fieldName string) *Node {
	start := tsNode.StartPoint()
	end := tsNode.EndPoint()

	out := &Node{
		Type:      tsNode.Type(),
		FieldName: fieldName,
		Pos: &Positions{
			StartLine: uint(start.Row) + 1,
			StartCol:  uint(start.Column) + 1,
			StartByte: uint(tsNode.StartByte()),
			EndLine:   uint(end.Row) + 1,
			EndCol:    uint(end.Column) + 1,
			EndByte:   uint(tsNode.EndByte()),
		},
	}

	fields := fieldRanges(tsNode, out.Type)

	for idx := range tsNode.NamedChildCount() {
		child := tsNode.NamedChild(idx)
		out.Children = append(out.Children, convert(child, source, fields[childKeyOf(child)]))
	}

	if len(out.Children) == 0 {
		out.Token = spanText(tsNode, source)
	}

	if out.Type == TypeExpressionStmt {
		out.Semicolon = endsWithSemicolon(tsNode, source)
	}

	return out
}

// childKey identifies a child within its parent for field-name resolution.
// Named siblings never share both a byte range and a type.
type childKey struct {
	start uint
	end   uint
	typ   string
}

func childKeyOf(tsNode sitter.Node) childKey {
	return childKey{start: uint(tsNode.StartByte()), end: uint(tsNode.EndByte()), typ: tsNode.Type()}
}

// fieldRanges maps each field-bearing child of tsNode to its field name.
func fieldRanges(tsNode sitter.Node, nodeType string) map[childKey]string {
	names := fieldsByType[nodeType]
	if len(names) == 0 {
		return nil
	}

	out := make(map[childKey]string, len(names))

	for _, field := range names {
		child := tsNode.ChildByFieldName(field)
		if child.IsNull() {
			continue
		}

		out[childKeyOf(child)] = field
	}

	return out
}

// endsWithSemicolon reports whether the statement is immediately
// followed by an explicit ';'. The grammar inlines the separator into
// the enclosing block, so the token is found by scanning the source just
// past the statement's span rather than its own children.
func endsWithSemicolon(tsNode sitter.Node, source []byte) bool {
	for i := int(tsNode.EndByte()); i < len(source); i++ {
		switch source[i] {
		case ' ', '\t':
			continue
		case ';':
			return true
		default:
			return false
		}
	}

	return false
}

func spanText(tsNode sitter.Node, source []byte) string {
	start, end := tsNode.StartByte(), tsNode.EndByte()
	if uint(end) > uint(len(source)) || start > end {
		return ""
	}

	return string(source[start:end])
}
