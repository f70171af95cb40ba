// Package scope performs static dataflow analysis over a parsed Python
// cell: which names the cell defines, which names it reads from other
// cells, which it deletes, and how each definition was made. The reactive
// scheduler uses these facts to decide what to re-run when a cell changes.
package scope

import (
	"strings"

	"github.com/Sumatoshi-tech/cellforge/pkg/pytree"
)

// Names is a set of Python identifiers.
type Names map[string]struct{}

// Add inserts name into the set.
func (n Names) Add(name string) { n[name] = struct{}{} }

// Has reports set membership.
func (n Names) Has(name string) bool {
	_, ok := n[name]

	return ok
}

// VariableKind classifies how a name was defined.
type VariableKind string

// Variable kinds.
const (
	KindFunction VariableKind = "function"
	KindClass    VariableKind = "class"
	KindImport   VariableKind = "import"
	KindVariable VariableKind = "variable"
)

// ImportData describes a single import binding. Two ImportData values are
// structurally equal when every field matches; this is how carried-over
// imports are recognized across recompilations, independent of whether an
// unrelated definition reuses the name.
type ImportData struct {
	// Definition is the name the import binds in the cell's namespace.
	Definition string
	// Module is the imported module path.
	Module string
	// ImportedSymbol is "module.symbol" for from-imports, "" otherwise.
	ImportedSymbol string
	// Level is the relative-import level (number of leading dots).
	Level int
}

// VariableData is per-definition metadata for one binding of a name.
type VariableData struct {
	Kind       VariableKind
	ImportData *ImportData
}

// Result is the outcome of analyzing one cell.
type Result struct {
	Defs         Names
	Refs         Names
	DeletedRefs  Names
	VariableData map[string][]VariableData
	Language     string
}

// Visitor analyzes a single cell tree. The prefix scopes any internal
// names the visitor generates, so concurrent analyses of different cells
// never collide.
type Visitor struct {
	prefix  string
	defs    Names
	refs    Names
	deleted Names
	varData map[string][]VariableData
}

// NewVisitor creates a visitor whose generated names are scoped by prefix
// (conventionally "cell_" plus the cell id).
func NewVisitor(prefix string) *Visitor {
	return &Visitor{
		prefix:  prefix,
		defs:    Names{},
		refs:    Names{},
		deleted: Names{},
		varData: map[string][]VariableData{},
	}
}

// env tracks name resolution state during the reference pass.
type env struct {
	// seen holds top-level names already bound in execution order.
	seen Names
	// chain holds enclosing nested scopes, innermost last.
	chain []Names
	// deferred marks bodies that execute after the whole cell has run
	// (function and lambda bodies), where forward references to any
	// top-level definition are legal.
	deferred bool
}

func (e env) nested(bound Names, deferred bool) env {
	chain := make([]Names, len(e.chain), len(e.chain)+1)
	copy(chain, e.chain)

	return env{seen: e.seen, chain: append(chain, bound), deferred: e.deferred || deferred}
}

// Visit analyzes the module tree and returns the collected dataflow facts.
// The tree is read, never mutated.
func (v *Visitor) Visit(module *pytree.Node) *Result {
	body := module.Body()

	// Binding pass: every top-level definition, regardless of order.
	for _, stmt := range body {
		v.collectStmt(stmt)
	}

	// Reference pass: loads resolved in execution order at the top level,
	// against the full definition set inside deferred bodies.
	root := env{seen: Names{}}
	for _, stmt := range body {
		v.visitStmt(stmt, root)
	}

	return &Result{
		Defs:         v.defs,
		Refs:         v.refs,
		DeletedRefs:  v.deleted,
		VariableData: v.varData,
		Language:     detectLanguage(module),
	}
}

func (v *Visitor) addDef(name string, kind VariableKind, imp *ImportData) {
	if name == "" {
		return
	}

	v.defs.Add(name)
	v.varData[name] = append(v.varData[name], VariableData{Kind: kind, ImportData: imp})
}

// collectStmt records the bindings a top-level statement introduces.
// Compound statements (if/for/while/try/with) bind into the cell scope;
// function, class, lambda, and comprehension bodies do not.
func (v *Visitor) collectStmt(stmt *pytree.Node) {
	switch stmt.Type {
	case pytree.TypeFunctionDef:
		v.addDef(identifierToken(stmt.ChildByField("name")), KindFunction, nil)
		v.collectGlobals(stmt.ChildByField("body"))
	case pytree.TypeClassDef:
		v.addDef(identifierToken(stmt.ChildByField("name")), KindClass, nil)
	case pytree.TypeDecoratedDef:
		if def := stmt.ChildByField("definition"); def != nil {
			v.collectStmt(def)
		}
	case pytree.TypeImport, "future_import_statement":
		v.collectImport(stmt)
	case pytree.TypeImportFrom:
		v.collectImportFrom(stmt)
	case "for_statement":
		v.bindTargets(stmt.ChildByField("left"))
		v.collectChildren(stmt, stmt.ChildByField("left"), stmt.ChildByField("right"))
	case pytree.TypeWith:
		v.collectWith(stmt)
	case "try_statement", "if_statement", "while_statement",
		"elif_clause", "else_clause", "except_clause", "finally_clause", pytree.TypeBlock:
		v.collectChildren(stmt, nil, nil)
	case pytree.TypeExpressionStmt:
		for _, child := range stmt.Children {
			v.collectExpr(child)
		}
	default:
		// Simple statements hold no cell-scope bindings beyond walruses.
		v.collectExpr(stmt)
	}
}

func (v *Visitor) collectChildren(stmt *pytree.Node, skip, exprOnly *pytree.Node) {
	if exprOnly != nil {
		v.collectExpr(exprOnly)
	}

	for _, child := range stmt.Children {
		if child == skip || child == exprOnly || child.Type == pytree.TypeComment {
			continue
		}

		v.collectStmt(child)
	}
}

func (v *Visitor) collectWith(stmt *pytree.Node) {
	for _, item := range stmt.FindByType("with_item") {
		for _, pattern := range item.FindByType("as_pattern") {
			if alias := pattern.ChildByField("alias"); alias != nil {
				v.bindTargets(alias)
			}
		}
	}

	if body := stmt.ChildByField("body"); body != nil {
		v.collectChildren(body, nil, nil)
	}
}

// collectExpr records bindings made by expression-level constructs:
// assignments, augmented assignments, and walrus expressions.
func (v *Visitor) collectExpr(expr *pytree.Node) {
	if expr == nil {
		return
	}

	switch expr.Type {
	case pytree.TypeAssignment:
		v.bindTargets(expr.ChildByField("left"))
		v.collectExpr(expr.ChildByField("right"))

		return
	case "augmented_assignment":
		v.bindTargets(expr.ChildByField("left"))
		v.collectExpr(expr.ChildByField("right"))

		return
	case "named_expression":
		v.addDef(identifierToken(expr.ChildByField("name")), KindVariable, nil)
		v.collectExpr(expr.ChildByField("value"))

		return
	case pytree.TypeFunctionDef, pytree.TypeClassDef, "lambda":
		// Nested scope; nothing binds at cell level.
		return
	}

	for _, child := range expr.Children {
		v.collectExpr(child)
	}
}

// bindTargets records every identifier bound by an assignment target
// (plain names, tuple/list patterns, starred targets). Attribute and
// subscript targets mutate existing objects and bind nothing.
func (v *Visitor) bindTargets(target *pytree.Node) {
	if target == nil {
		return
	}

	switch target.Type {
	case pytree.TypeIdentifier:
		v.addDef(target.Token, KindVariable, nil)
	case "pattern_list", "tuple_pattern", "list_pattern", "list_splat_pattern", "tuple", "list", "as_pattern_target":
		for _, child := range target.Children {
			v.bindTargets(child)
		}
	case pytree.TypeAttribute, "subscript":
		// Mutation of an existing object; resolved as a reference.
	}
}

// collectGlobals promotes names declared global and assigned inside a
// function body to cell-scope definitions.
func (v *Visitor) collectGlobals(body *pytree.Node) {
	if body == nil {
		return
	}

	declared := Names{}

	for _, stmt := range body.FindByType("global_statement") {
		for _, ident := range stmt.FindByType(pytree.TypeIdentifier) {
			declared.Add(ident.Token)
		}
	}

	if len(declared) == 0 {
		return
	}

	assigned := Names{}
	collectAssignedNames(body, assigned)

	for name := range declared {
		if assigned.Has(name) {
			v.addDef(name, KindVariable, nil)
		}
	}
}

func collectAssignedNames(root *pytree.Node, into Names) {
	root.Walk(func(n *pytree.Node) bool {
		switch n.Type {
		case pytree.TypeAssignment, "augmented_assignment":
			if left := n.ChildByField("left"); left != nil {
				for _, ident := range left.FindByType(pytree.TypeIdentifier) {
					into.Add(ident.Token)
				}
			}
		case "named_expression":
			into.Add(identifierToken(n.ChildByField("name")))
		}

		return true
	})
}

func (v *Visitor) collectImport(stmt *pytree.Node) {
	for _, child := range stmt.Children {
		switch child.Type {
		case "dotted_name":
			module := dottedText(child)
			// "import a.b.c" binds the top-level package name.
			v.addDef(firstIdentifier(child), KindImport, &ImportData{
				Definition: firstIdentifier(child),
				Module:     module,
			})
		case "aliased_import":
			module := dottedText(child.ChildByField("name"))
			alias := identifierToken(child.ChildByField("alias"))
			v.addDef(alias, KindImport, &ImportData{
				Definition: alias,
				Module:     module,
			})
		}
	}
}

func (v *Visitor) collectImportFrom(stmt *pytree.Node) {
	moduleNode := stmt.ChildByField("module_name")
	module, level := moduleAndLevel(moduleNode)

	for _, child := range stmt.Children {
		if child == moduleNode {
			continue
		}

		switch child.Type {
		case "dotted_name":
			name := dottedText(child)
			v.addDef(name, KindImport, &ImportData{
				Definition:     name,
				Module:         module,
				ImportedSymbol: module + "." + name,
				Level:          level,
			})
		case "aliased_import":
			name := dottedText(child.ChildByField("name"))
			alias := identifierToken(child.ChildByField("alias"))
			v.addDef(alias, KindImport, &ImportData{
				Definition:     alias,
				Module:         module,
				ImportedSymbol: module + "." + name,
				Level:          level,
			})
		case "wildcard_import":
			// "from m import *": bindings unknowable statically.
		}
	}
}

func moduleAndLevel(moduleNode *pytree.Node) (string, int) {
	if moduleNode == nil {
		return "", 0
	}

	if moduleNode.Type == "relative_import" {
		level := 0
		module := ""

		for _, child := range moduleNode.Children {
			switch child.Type {
			case "import_prefix":
				level = strings.Count(child.Token, ".")
			case "dotted_name":
				module = dottedText(child)
			}
		}

		return module, level
	}

	return dottedText(moduleNode), 0
}

// visitStmt performs the reference pass over one statement.
func (v *Visitor) visitStmt(stmt *pytree.Node, e env) {
	switch stmt.Type {
	case pytree.TypeComment, pytree.TypePass, "break_statement", "continue_statement",
		"global_statement", "nonlocal_statement", pytree.TypeImport,
		pytree.TypeImportFrom, "future_import_statement":
		v.bindStmt(stmt, e)
	case pytree.TypeExpressionStmt:
		for _, child := range stmt.Children {
			v.visitExpr(child, e)
		}
	case pytree.TypeFunctionDef:
		v.visitFunctionDef(stmt, e)
	case pytree.TypeClassDef:
		v.visitClassDef(stmt, e)
	case pytree.TypeDecoratedDef:
		for _, dec := range stmt.ChildrenByField("") {
			if dec.Type == pytree.TypeDecorator {
				v.visitExpr(dec, e)
			}
		}

		if def := stmt.ChildByField("definition"); def != nil {
			v.visitStmt(def, e)
		}
	case "for_statement":
		v.visitExpr(stmt.ChildByField("right"), e)
		v.bind(stmt.ChildByField("left"), e)
		v.visitBodies(stmt, e, stmt.ChildByField("left"), stmt.ChildByField("right"))
	case pytree.TypeWith:
		v.visitWith(stmt, e)
	case "delete_statement":
		v.visitDelete(stmt, e)
	case "match_statement":
		v.visitMatch(stmt, e)
	default:
		// return/raise/assert/if/while/try and friends: visit
		// expressions and nested statements in source order.
		for _, child := range stmt.Children {
			if isStatementLike(child.Type) {
				v.visitStmt(child, e)
			} else {
				v.visitExpr(child, e)
			}
		}
	}
}

// bindStmt updates the execution-order seen set for binding statements
// that produce no references of their own.
func (v *Visitor) bindStmt(stmt *pytree.Node, e env) {
	switch stmt.Type {
	case pytree.TypeImport, pytree.TypeImportFrom, "future_import_statement":
		for _, ident := range stmt.FindByType(pytree.TypeIdentifier) {
			v.bindName(ident.Token, e)
		}
	}
}

func (v *Visitor) visitBodies(stmt *pytree.Node, e env, skip ...*pytree.Node) {
	for _, child := range stmt.Children {
		skipped := false

		for _, s := range skip {
			if child == s {
				skipped = true

				break
			}
		}

		if skipped || child.Type == pytree.TypeComment {
			continue
		}

		v.visitStmt(child, e)
	}
}

func (v *Visitor) visitWith(stmt *pytree.Node, e env) {
	for _, item := range stmt.FindByType("with_item") {
		for _, pattern := range item.FindByType("as_pattern") {
			// Context expression first, then the alias binding.
			if len(pattern.Children) > 0 {
				v.visitExpr(pattern.Children[0], e)
			}

			if alias := pattern.ChildByField("alias"); alias != nil {
				v.bind(alias, e)
			}
		}

		if item.FirstChildOfType("as_pattern") == nil {
			for _, child := range item.Children {
				v.visitExpr(child, e)
			}
		}
	}

	if body := stmt.ChildByField("body"); body != nil {
		v.visitStmt(body, e)
	}
}

// visitDelete records explicit deletions. A deleted name defined by the
// cell itself stays a plain definition; deleting a foreign name is both a
// reference and a deleted reference.
func (v *Visitor) visitDelete(stmt *pytree.Node, e env) {
	for _, ident := range stmt.FindByType(pytree.TypeIdentifier) {
		name := ident.Token
		if v.defs.Has(name) || boundInChain(name, e) {
			continue
		}

		if IsBuiltin(name) {
			continue
		}

		v.refs.Add(name)
		v.deleted.Add(name)
	}
}

func (v *Visitor) visitMatch(stmt *pytree.Node, e env) {
	for _, child := range stmt.Children {
		if child.Type != "case_clause" {
			v.visitExpr(child, e)

			continue
		}

		// Case patterns bind, they do not load.
		for _, part := range child.Children {
			if part.Type == pytree.TypeBlock {
				v.visitStmt(part, e)
			}
		}
	}
}

func (v *Visitor) visitFunctionDef(stmt *pytree.Node, e env) {
	// Defaults and annotations evaluate at definition time, in the
	// defining scope.
	params := stmt.ChildByField("parameters")
	if params != nil {
		for _, param := range params.Children {
			v.visitParamEagerParts(param, e)
		}
	}

	if ret := stmt.ChildByField("return_type"); ret != nil {
		v.visitExpr(ret, e)
	}

	v.bindName(identifierToken(stmt.ChildByField("name")), e)

	body := stmt.ChildByField("body")
	if body == nil {
		return
	}

	bound := Names{}
	bindParamNames(params, bound)
	collectAssignedNames(body, bound)
	collectLocalDefNames(body, bound)
	dropGlobalDeclared(body, bound)

	v.visitStmt(body, e.nested(bound, true))
}

func (v *Visitor) visitClassDef(stmt *pytree.Node, e env) {
	if bases := stmt.ChildByField("superclasses"); bases != nil {
		for _, base := range bases.Children {
			v.visitExpr(base, e)
		}
	}

	v.bindName(identifierToken(stmt.ChildByField("name")), e)

	body := stmt.ChildByField("body")
	if body == nil {
		return
	}

	// Class bodies execute immediately in their own scope.
	bound := Names{}
	collectAssignedNames(body, bound)
	collectLocalDefNames(body, bound)

	v.visitStmt(body, e.nested(bound, false))
}

func (v *Visitor) visitParamEagerParts(param *pytree.Node, e env) {
	switch param.Type {
	case "default_parameter", "typed_default_parameter":
		if value := param.ChildByField("value"); value != nil {
			v.visitExpr(value, e)
		}

		if typ := param.ChildByField("type"); typ != nil {
			v.visitExpr(typ, e)
		}
	case "typed_parameter":
		if typ := param.ChildByField("type"); typ != nil {
			v.visitExpr(typ, e)
		}
	}
}

// visitExpr resolves loads within an expression tree.
func (v *Visitor) visitExpr(expr *pytree.Node, e env) {
	if expr == nil {
		return
	}

	switch expr.Type {
	case pytree.TypeIdentifier:
		v.maybeRef(expr.Token, e)
	case pytree.TypeAttribute:
		// Only the object side resolves names; the attribute name is a
		// member lookup, not a load.
		v.visitExpr(expr.ChildByField("object"), e)
	case "keyword_argument":
		v.visitExpr(expr.ChildByField("value"), e)
	case pytree.TypeAssignment:
		v.visitExpr(expr.ChildByField("right"), e)

		if typ := expr.ChildByField("type"); typ != nil {
			v.visitExpr(typ, e)
		}

		v.bind(expr.ChildByField("left"), e)
	case "augmented_assignment":
		v.visitExpr(expr.ChildByField("left"), e)
		v.visitExpr(expr.ChildByField("right"), e)
		v.bind(expr.ChildByField("left"), e)
	case "named_expression":
		v.visitExpr(expr.ChildByField("value"), e)
		v.bind(expr.ChildByField("name"), e)
	case "lambda":
		v.visitLambda(expr, e)
	case "list_comprehension", "set_comprehension", "dictionary_comprehension", "generator_expression":
		v.visitComprehension(expr, e)
	case pytree.TypeFunctionDef, pytree.TypeClassDef:
		v.visitStmt(expr, e)
	default:
		for _, child := range expr.Children {
			v.visitExpr(child, e)
		}
	}
}

func (v *Visitor) visitLambda(expr *pytree.Node, e env) {
	params := expr.ChildByField("parameters")
	if params != nil {
		for _, param := range params.Children {
			v.visitParamEagerParts(param, e)
		}
	}

	bound := Names{}
	bindParamNames(params, bound)

	if body := expr.ChildByField("body"); body != nil {
		v.visitExpr(body, e.nested(bound, true))
	}
}

func (v *Visitor) visitComprehension(expr *pytree.Node, e env) {
	bound := Names{}
	inner := e.nested(bound, false)

	// Clause targets bind before the element expression is evaluated,
	// even though the element appears first in the source. The first
	// iterable resolves in the enclosing scope; later clauses see the
	// targets bound before them, so each clause binds as it is walked.
	for _, child := range expr.Children {
		if child.Type != "for_in_clause" {
			continue
		}

		v.visitExpr(child.ChildByField("right"), inner)

		if left := child.ChildByField("left"); left != nil {
			for _, ident := range left.FindByType(pytree.TypeIdentifier) {
				bound.Add(ident.Token)
			}
		}
	}

	for _, child := range expr.Children {
		switch child.Type {
		case "for_in_clause":
		case "if_clause":
			for _, cond := range child.Children {
				v.visitExpr(cond, inner)
			}
		default:
			v.visitExpr(child, inner)
		}
	}
}

// bind marks target names as bound in the innermost scope.
func (v *Visitor) bind(target *pytree.Node, e env) {
	if target == nil {
		return
	}

	switch target.Type {
	case pytree.TypeIdentifier:
		v.bindName(target.Token, e)
	case "pattern_list", "tuple_pattern", "list_pattern", "list_splat_pattern", "tuple", "list", "as_pattern_target":
		for _, child := range target.Children {
			v.bind(child, e)
		}
	case pytree.TypeAttribute, "subscript":
		v.visitExpr(target, e)
	}
}

func (v *Visitor) bindName(name string, e env) {
	if name == "" {
		return
	}

	if len(e.chain) > 0 {
		e.chain[len(e.chain)-1].Add(name)

		return
	}

	e.seen.Add(name)
}

func (v *Visitor) maybeRef(name string, e env) {
	if name == "" || boundInChain(name, e) {
		return
	}

	if e.deferred {
		if v.defs.Has(name) {
			return
		}
	} else if e.seen.Has(name) {
		return
	}

	if IsBuiltin(name) {
		return
	}

	v.refs.Add(name)
}

func boundInChain(name string, e env) bool {
	for i := len(e.chain) - 1; i >= 0; i-- {
		if e.chain[i].Has(name) {
			return true
		}
	}

	return false
}

func bindParamNames(params *pytree.Node, into Names) {
	if params == nil {
		return
	}

	for _, param := range params.Children {
		switch param.Type {
		case pytree.TypeIdentifier:
			into.Add(param.Token)
		case "default_parameter", "typed_default_parameter":
			into.Add(identifierToken(param.ChildByField("name")))
		case "typed_parameter", "list_splat_pattern", "dictionary_splat_pattern":
			if ident := param.FirstChildOfType(pytree.TypeIdentifier); ident != nil {
				into.Add(ident.Token)
			}
		}
	}
}

func collectLocalDefNames(body *pytree.Node, into Names) {
	body.Walk(func(n *pytree.Node) bool {
		switch n.Type {
		case pytree.TypeFunctionDef, pytree.TypeClassDef:
			into.Add(identifierToken(n.ChildByField("name")))

			return false
		case pytree.TypeImport, pytree.TypeImportFrom:
			for _, ident := range n.FindByType(pytree.TypeIdentifier) {
				into.Add(ident.Token)
			}

			return false
		case "for_statement":
			if left := n.ChildByField("left"); left != nil {
				for _, ident := range left.FindByType(pytree.TypeIdentifier) {
					into.Add(ident.Token)
				}
			}
		}

		return true
	})
}

func dropGlobalDeclared(body *pytree.Node, bound Names) {
	for _, stmt := range body.FindByType("global_statement") {
		for _, ident := range stmt.FindByType(pytree.TypeIdentifier) {
			delete(bound, ident.Token)
		}
	}
}

func isStatementLike(nodeType string) bool {
	switch nodeType {
	case pytree.TypeBlock, "if_statement", "elif_clause", "else_clause",
		"while_statement", "for_statement", "try_statement", "except_clause",
		"except_group_clause", "finally_clause", pytree.TypeWith,
		pytree.TypeFunctionDef, pytree.TypeClassDef, pytree.TypeDecoratedDef,
		pytree.TypeExpressionStmt, "return_statement", "delete_statement",
		"raise_statement", "assert_statement", pytree.TypePass,
		"break_statement", "continue_statement", "match_statement",
		pytree.TypeImport, pytree.TypeImportFrom, "global_statement",
		"nonlocal_statement":
		return true
	}

	return false
}

func identifierToken(n *pytree.Node) string {
	if n == nil || n.Type != pytree.TypeIdentifier {
		return ""
	}

	return n.Token
}

func firstIdentifier(n *pytree.Node) string {
	if n == nil {
		return ""
	}

	if n.Type == pytree.TypeIdentifier {
		return n.Token
	}

	for _, child := range n.Children {
		if name := firstIdentifier(child); name != "" {
			return name
		}
	}

	return ""
}

func dottedText(n *pytree.Node) string {
	if n == nil {
		return ""
	}

	if n.Type == pytree.TypeIdentifier {
		return n.Token
	}

	var parts []string

	for _, child := range n.Children {
		if text := dottedText(child); text != "" {
			parts = append(parts, text)
		}
	}

	return strings.Join(parts, ".")
}

// detectLanguage tags the cell's source dialect. A cell whose sole
// statement is a mo.sql(...) call, optionally assigned to a name, is an
// embedded SQL cell; everything else is Python.
func detectLanguage(module *pytree.Node) string {
	body := module.Body()
	if len(body) != 1 || body[0].Type != pytree.TypeExpressionStmt {
		return "python"
	}

	stmts := body[0].Body()
	if len(stmts) != 1 {
		return "python"
	}

	expr := stmts[0]
	if expr.Type == pytree.TypeAssignment {
		expr = expr.ChildByField("right")
	}

	if expr == nil || expr.Type != pytree.TypeCall {
		return "python"
	}

	fn := expr.ChildByField("function")
	if fn == nil || fn.Type != pytree.TypeAttribute {
		return "python"
	}

	object := fn.ChildByField("object")
	attr := fn.ChildByField("attribute")

	if identifierToken(object) == "mo" && attr != nil && attr.Token == "sql" {
		return "sql"
	}

	return "python"
}
