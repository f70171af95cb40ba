package cell

import (
	"fmt"
	"strings"

	"github.com/Sumatoshi-tech/cellforge/pkg/linecache"
	"github.com/Sumatoshi-tech/cellforge/pkg/nbir"
	"github.com/Sumatoshi-tech/cellforge/pkg/scope"
)

// FactoryOptions carries the cross-cutting knobs shared by every
// factory. The zero value compiles without anchoring overrides, test
// rewriting, or a private line cache.
type FactoryOptions struct {
	// AnonymousFile suppresses source anchoring even when the source
	// descriptor carries a file, for deterministic test runs.
	AnonymousFile bool
	// TestRewrite requests the rewrite pass for every cell, not just
	// the ones classified as test cells.
	TestRewrite bool
	// Rewriter is the injected test-rewrite capability; nil disables
	// rewriting regardless of classification.
	Rewriter TestRewriter
	// LineCache receives synthetic-file sources; nil uses the process
	// default.
	LineCache *linecache.Cache
	// CarriedImports seeds import-block bookkeeping from a prior
	// compilation of the same cell.
	CarriedImports []scope.ImportData
}

// ContextCellFactory builds the setup cell from a registered context
// block. Setup cells are never test-rewritten: they run before any
// harness exists.
func ContextCellFactory(id CellID, frame FrameSource, opts FactoryOptions) (*Cell, error) {
	code, pos, err := extractWithBlock(frame)
	if err != nil {
		return nil, fmt.Errorf("extract setup block: %w", err)
	}

	compiled, err := Compile(code, id, Options{
		SourcePosition: pos,
		CarriedImports: opts.CarriedImports,
		LineCache:      opts.LineCache,
	})
	if err != nil {
		return nil, err
	}

	return &Cell{Name: SetupCellName, Compiled: compiled}, nil
}

// TopLevelCellFactory builds a cell from a decorated top-level function
// or class declaration. The declaration itself is the cell body; only
// the marker decorator is stripped.
func TopLevelCellFactory(id CellID, src FuncSource, opts FactoryOptions) (*Cell, error) {
	code, decoratorEnd, isClass, err := extractTopLevel(src)
	if err != nil {
		return nil, err
	}

	var pos *SourcePosition
	if !opts.AnonymousFile {
		pos = sourcePosition(src, src.FirstLine+int(decoratorEnd)-1, 0)
	}

	compiled, err := Compile(code, id, Options{
		SourcePosition: pos,
		CarriedImports: opts.CarriedImports,
		TestRewrite:    opts.TestRewrite,
		Rewriter:       opts.Rewriter,
		LineCache:      opts.LineCache,
	})
	if err != nil {
		return nil, err
	}

	namedTest := strings.HasPrefix(src.Name, testFunctionPrefix)
	if isClass {
		namedTest = strings.HasPrefix(src.Name, testClassPrefix)
	}

	return &Cell{
		Name:        TopLevelCellPrefix + src.Name,
		Compiled:    compiled,
		TestAllowed: compiled.Test || namedTest,
	}, nil
}

// NewCell builds a cell from a cell-marked function: the function's body
// is the cell code, and its parameter list is recorded as the expected
// signature for drift detection.
func NewCell(id CellID, src FuncSource, opts FactoryOptions) (*Cell, error) {
	code, bodyStart, bodyCol, err := extractFuncBody(src)
	if err != nil {
		return nil, err
	}

	var pos *SourcePosition
	if !opts.AnonymousFile {
		pos = sourcePosition(src, src.FirstLine+int(bodyStart)-2, int(bodyCol))
	}

	compiled, err := Compile(code, id, Options{
		SourcePosition: pos,
		CarriedImports: opts.CarriedImports,
		TestRewrite:    opts.TestRewrite,
		Rewriter:       opts.Rewriter,
		LineCache:      opts.LineCache,
	})
	if err != nil {
		return nil, err
	}

	return &Cell{
		Name:              src.Name,
		Compiled:          compiled,
		TestAllowed:       compiled.Test || strings.HasPrefix(src.Name, testFunctionPrefix),
		ExpectedSignature: src.Params,
	}, nil
}

// IRCellFactory builds a cell from a serialized definition. IR cells
// have no authoring file, so they are never anchored and never
// rewritten.
func IRCellFactory(id CellID, def nbir.CellDef, opts FactoryOptions) (*Cell, error) {
	compiled, err := Compile(def.Code, id, Options{
		CarriedImports: opts.CarriedImports,
		LineCache:      opts.LineCache,
	})
	if err != nil {
		return nil, fmt.Errorf("compile cell %q: %w", def.Name, err)
	}

	name := def.Name

	switch def.Kind {
	case nbir.KindFunction, nbir.KindClass:
		name = TopLevelCellPrefix + def.Name
	case nbir.KindSetup:
		name = SetupCellName
	}

	return &Cell{
		Name:        name,
		Compiled:    compiled,
		TestAllowed: compiled.Test || strings.HasPrefix(def.Name, testNamePrefix),
	}, nil
}
