package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/cellforge/pkg/cell"
	"github.com/Sumatoshi-tech/cellforge/pkg/pytree"
)

// InspectCommand holds configuration for the inspect command.
type InspectCommand struct {
	format string
	output string
	cellID string
}

// NewInspectCommand creates the inspect subcommand.
func NewInspectCommand() *cobra.Command {
	ic := &InspectCommand{}

	cmd := &cobra.Command{
		Use:   "inspect <cell.py>",
		Short: "Show the compiled artifacts of a single cell",
		Long: `Compile one file as a cell and dump its executable artifacts,
dependency sets, and syntax tree.

Examples:
  cellforge inspect cell.py            # Human-readable dump
  cellforge inspect -f json cell.py    # Machine-readable dump`,
		Args: cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return ic.run(args[0])
		},
	}

	cmd.Flags().StringVarP(&ic.format, "format", "f", "text", "output format (text, json)")
	cmd.Flags().StringVarP(&ic.output, "output", "o", "", "output file (default: stdout)")
	cmd.Flags().StringVar(&ic.cellID, "id", "main", "cell id")

	return cmd
}

func (ic *InspectCommand) run(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}

	compiled, err := cell.Compile(string(raw), cell.CellID(ic.cellID), cell.Options{})
	if err != nil {
		return err
	}

	writer, closeFn, err := openOutput(ic.output)
	if err != nil {
		return err
	}
	defer closeFn()

	if ic.format == "json" {
		return writeInspectJSON(writer, compiled)
	}

	writeInspectText(writer, compiled)

	return nil
}

// inspectReport is the JSON shape of an inspected cell.
type inspectReport struct {
	ID          string   `json:"id"`
	Key         string   `json:"key"`
	Language    string   `json:"language"`
	Test        bool     `json:"test"`
	Defs        []string `json:"defs"`
	Refs        []string `json:"refs"`
	Temporaries []string `json:"temporaries"`
	DeletedRefs []string `json:"deleted_refs"`
	ImportBlock bool     `json:"import_block"`
	Body        *artifactReport `json:"body,omitempty"`
	LastExpr    *artifactReport `json:"last_expr,omitempty"`
}

type artifactReport struct {
	Filename string `json:"filename"`
	Mode     string `json:"mode"`
	Source   string `json:"source"`
}

func writeInspectJSON(w io.Writer, compiled *cell.CompiledCell) error {
	report := inspectReport{
		ID:          string(compiled.ID),
		Key:         fmt.Sprintf("%016x", compiled.Key),
		Language:    compiled.Language,
		Test:        compiled.Test,
		Defs:        sortedNames(compiled.Defs),
		Refs:        sortedNames(compiled.Refs),
		Temporaries: sortedNames(compiled.Temporaries),
		DeletedRefs: sortedNames(compiled.DeletedRefs),
		ImportBlock: compiled.ImportWorkspace.IsImportBlock,
		Body:        artifactToReport(compiled.Body),
		LastExpr:    artifactToReport(compiled.LastExpr),
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}

	return nil
}

func artifactToReport(exec *cell.Executable) *artifactReport {
	if exec == nil {
		return nil
	}

	return &artifactReport{
		Filename: exec.Filename,
		Mode:     string(exec.Mode),
		Source:   exec.Source,
	}
}

func writeInspectText(w io.Writer, compiled *cell.CompiledCell) {
	fmt.Fprintf(w, "cell %s (key %016x)\n", compiled.ID, compiled.Key)
	fmt.Fprintf(w, "  language:    %s\n", compiled.Language)
	fmt.Fprintf(w, "  test:        %v\n", compiled.Test)
	fmt.Fprintf(w, "  defs:        %s\n", joinNames(sortedNames(compiled.Defs)))
	fmt.Fprintf(w, "  refs:        %s\n", joinNames(sortedNames(compiled.Refs)))
	fmt.Fprintf(w, "  temporaries: %s\n", joinNames(sortedNames(compiled.Temporaries)))

	writeArtifactText(w, "body", compiled.Body)
	writeArtifactText(w, "last expr", compiled.LastExpr)

	if compiled.Tree != nil {
		fmt.Fprintf(w, "tree:\n")
		writeTree(w, compiled.Tree, 1)
	}
}

func writeArtifactText(w io.Writer, label string, exec *cell.Executable) {
	if exec == nil {
		return
	}

	fmt.Fprintf(w, "%s (%s, %s):\n", label, exec.Mode, exec.Filename)

	for _, line := range strings.Split(exec.Source, "\n") {
		fmt.Fprintf(w, "  | %s\n", line)
	}
}

// writeTree dumps a syntax tree with one node per line.
func writeTree(w io.Writer, node *pytree.Node, depth int) {
	indent := strings.Repeat("  ", depth)

	if node.Pos != nil {
		fmt.Fprintf(w, "%s%s [%d:%d]", indent, node.Type, node.Pos.StartLine, node.Pos.StartCol)
	} else {
		fmt.Fprintf(w, "%s%s", indent, node.Type)
	}

	if node.IsLeaf() && node.Token != "" {
		fmt.Fprintf(w, " %q", node.Token)
	}

	fmt.Fprintln(w)

	for _, child := range node.Children {
		writeTree(w, child, depth+1)
	}
}
