package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/sergi/go-diff/diffmatchpatch"
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/cellforge/pkg/cell"
	"github.com/Sumatoshi-tech/cellforge/pkg/scope"
)

// diffArgCount is the number of arguments expected by the diff command.
const diffArgCount = 2

// ErrUnsupportedDiffFmt indicates an unknown diff output format.
var ErrUnsupportedDiffFmt = errors.New("unsupported format")

// DiffCommand holds configuration for the diff command.
type DiffCommand struct {
	format string
	output string
}

// NewDiffCommand creates the diff subcommand.
func NewDiffCommand() *cobra.Command {
	dc := &DiffCommand{}

	cmd := &cobra.Command{
		Use:   "diff old.py new.py",
		Short: "Compare two cells and report definition drift",
		Long: `Compile two files as cells and report how their definitions,
references, and source differ.

Examples:
  cellforge diff old.py new.py           # Drift summary plus source diff
  cellforge diff -f json old.py new.py   # Machine-readable drift`,
		Args: cobra.ExactArgs(diffArgCount),
		RunE: func(_ *cobra.Command, args []string) error {
			return dc.run(args[0], args[1])
		},
	}

	cmd.Flags().StringVarP(&dc.format, "format", "f", "text", "output format (text, json)")
	cmd.Flags().StringVarP(&dc.output, "output", "o", "", "output file (default: stdout)")

	return cmd
}

// drift captures the dependency-level difference between two cells.
type drift struct {
	Same         bool     `json:"same"`
	AddedDefs    []string `json:"added_defs"`
	RemovedDefs  []string `json:"removed_defs"`
	AddedRefs    []string `json:"added_refs"`
	RemovedRefs  []string `json:"removed_refs"`
	OldLanguage  string   `json:"old_language"`
	NewLanguage  string   `json:"new_language"`
	SourceChange string   `json:"source_change,omitempty"`
}

func (dc *DiffCommand) run(oldPath, newPath string) error {
	oldCell, err := compileFile(oldPath, "old")
	if err != nil {
		return err
	}

	newCell, err := compileFile(newPath, "new")
	if err != nil {
		return err
	}

	writer, closeFn, err := openOutput(dc.output)
	if err != nil {
		return err
	}
	defer closeFn()

	report := detectDrift(oldCell, newCell)

	switch dc.format {
	case "json":
		enc := json.NewEncoder(writer)
		enc.SetIndent("", "  ")

		if encodeErr := enc.Encode(report); encodeErr != nil {
			return fmt.Errorf("encode drift: %w", encodeErr)
		}

		return nil
	case "text":
		writeDrift(writer, report)

		return nil
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedDiffFmt, dc.format)
	}
}

func compileFile(path string, id cell.CellID) (*cell.CompiledCell, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file %s: %w", path, err)
	}

	compiled, err := cell.Compile(string(raw), id, cell.Options{})
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", path, err)
	}

	return compiled, nil
}

func detectDrift(oldCell, newCell *cell.CompiledCell) drift {
	report := drift{
		Same:        oldCell.Key == newCell.Key,
		AddedDefs:   setDifference(newCell.Defs, oldCell.Defs),
		RemovedDefs: setDifference(oldCell.Defs, newCell.Defs),
		AddedRefs:   setDifference(newCell.Refs, oldCell.Refs),
		RemovedRefs: setDifference(oldCell.Refs, newCell.Refs),
		OldLanguage: oldCell.Language,
		NewLanguage: newCell.Language,
	}

	if !report.Same {
		dmp := diffmatchpatch.New()
		diffs := dmp.DiffMain(oldCell.Code, newCell.Code, false)
		report.SourceChange = dmp.DiffPrettyText(dmp.DiffCleanupSemantic(diffs))
	}

	return report
}

// setDifference returns the sorted names present in a but not in b.
func setDifference(a, b scope.Names) []string {
	diff := make(scope.Names)

	for name := range a {
		if !b.Has(name) {
			diff.Add(name)
		}
	}

	return sortedNames(diff)
}

func writeDrift(w io.Writer, report drift) {
	if report.Same {
		fmt.Fprintln(w, "cells are identical")

		return
	}

	fmt.Fprintf(w, "defs:  +%s  -%s\n", joinNames(report.AddedDefs), joinNames(report.RemovedDefs))
	fmt.Fprintf(w, "refs:  +%s  -%s\n", joinNames(report.AddedRefs), joinNames(report.RemovedRefs))

	if report.OldLanguage != report.NewLanguage {
		fmt.Fprintf(w, "language: %s -> %s\n", report.OldLanguage, report.NewLanguage)
	}

	fmt.Fprintln(w, report.SourceChange)
}
