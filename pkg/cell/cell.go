// Package cell turns a unit of notebook source text into an executable
// unit annotated with the static dataflow facts the reactive scheduler
// needs: defined names, referenced names, and import provenance.
package cell

import (
	"github.com/Sumatoshi-tech/cellforge/pkg/pytree"
	"github.com/Sumatoshi-tech/cellforge/pkg/scope"
)

// CellID is an opaque token unique within a notebook. It persists across
// recompilations of the same logical cell.
type CellID string

// Mode distinguishes the two executable artifacts of a cell.
type Mode string

// Execution modes.
const (
	ModeExec Mode = "exec" // statement body
	ModeEval Mode = "eval" // trailing-expression evaluator
)

// Flag is a compilation flag applied to an executable artifact. Flags are
// always local to the cell; nothing is inherited from the host
// environment, so a cell's own directives must be explicit.
type Flag uint8

// FlagAllowTopLevelAwait permits a suspendable expression at the top
// level of the artifact.
const FlagAllowTopLevelAwait Flag = 1 << iota

// Executable is a compiled artifact handed to the external executor: the
// isolated tree, its exact source span, and the filename diagnostics
// should resolve against.
type Executable struct {
	Filename string
	Mode     Mode
	Tree     *pytree.Node
	Source   string
	Flags    Flag
}

// SourcePosition re-anchors a cell's internal tree to its true location in
// an authoring file. Line and Col are the deltas added to the cell's
// internal 1-based positions.
type SourcePosition struct {
	Filename string
	Line     int
	Col      int
}

// ImportWorkspace records whether a cell is purely import statements and
// which of its definitions are carried-over imports from a prior
// compilation of the same logical cell.
type ImportWorkspace struct {
	IsImportBlock bool
	ImportedDefs  scope.Names
}

// CompiledCell is the immutable artifact of one compilation request. It is
// discarded and replaced, never mutated, on recompilation.
type CompiledCell struct {
	// Key is the content hash of the original, unmodified user text.
	Key uint64
	// Code is the cell text after whitespace normalization.
	Code string
	// Tree is the unsplit syntax tree, kept for downstream static
	// analysis and export.
	Tree *pytree.Node

	// Defs are names the cell defines that are visible to other cells.
	Defs scope.Names
	// Refs are names the cell reads but does not itself define.
	Refs scope.Names
	// Temporaries are names defined and consumed only within the cell's
	// own scope.
	Temporaries scope.Names
	// VariableData maps each externally visible defined name to metadata
	// about how it was defined.
	VariableData map[string][]scope.VariableData
	// DeletedRefs are names the cell explicitly deletes during execution.
	DeletedRefs scope.Names

	// Language is the detected source dialect ("python" or "sql").
	Language string

	ImportWorkspace ImportWorkspace

	// Body executes the cell's statements; nil for inert cells.
	Body *Executable
	// LastExpr evaluates the cell's displayed value; nil for inert cells.
	LastExpr *Executable

	// Test marks cells that contain only test content.
	Test bool

	ID CellID
}

// Inert reports whether the cell has no executable content (empty,
// whitespace, or comments only).
func (c *CompiledCell) Inert() bool {
	return c.Body == nil
}

// Cell is the named, addressable handle wrapped around a CompiledCell.
// The handle's identity persists across recompilations; only the wrapped
// CompiledCell is swapped.
type Cell struct {
	// Name is the human-facing cell name, possibly synthesized with
	// TopLevelCellPrefix or SetupCellName.
	Name string
	// Compiled is the wrapped compilation artifact.
	Compiled *CompiledCell
	// TestAllowed permits test content in this cell.
	TestAllowed bool
	// ExpectedSignature holds the parameter names captured at definition
	// time for function-derived cells, for later signature-drift
	// detection. Nil otherwise.
	ExpectedSignature []string
}

// ID returns the stable identifier of the wrapped cell.
func (c *Cell) ID() CellID {
	return c.Compiled.ID
}
