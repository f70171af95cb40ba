// Package commands implements CLI command handlers for cellforge.
package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/src-d/enry/v2"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/Sumatoshi-tech/cellforge/internal/cache"
	"github.com/Sumatoshi-tech/cellforge/internal/config"
	"github.com/Sumatoshi-tech/cellforge/internal/observability"
	"github.com/Sumatoshi-tech/cellforge/pkg/cell"
	"github.com/Sumatoshi-tech/cellforge/pkg/nbir"
	"github.com/Sumatoshi-tech/cellforge/pkg/textutil"
)

// Sentinel errors for the compile command.
var (
	// ErrBinaryInput indicates the input file is not text.
	ErrBinaryInput = errors.New("input is binary")
	// ErrUnsupportedInput indicates the input is neither a notebook
	// document nor Python source.
	ErrUnsupportedInput = errors.New("unsupported input type")
)

// Languages accepted for the input file, as classified by enry.
const (
	langPython = "Python"
	langJSON   = "JSON"
)

// CompileCommand holds configuration and dependencies for the compile command.
type CompileCommand struct {
	configPath string
	format     string
	cellID     string
	output     string
	anonymous  bool
}

// NewCompileCommand creates the compile subcommand.
func NewCompileCommand() *cobra.Command {
	cc := &CompileCommand{}

	cmd := &cobra.Command{
		Use:   "compile <notebook.json|cell.py>",
		Short: "Compile a notebook document or a single cell",
		Long: `Compile notebook cells into executable artifacts with dependency metadata.

Examples:
  cellforge compile notebook.json         # Compile a serialized notebook
  cellforge compile cell.py               # Compile one file as a single cell
  cellforge compile -f json notebook.json # Machine-readable output`,
		Args: cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return cc.run(args[0])
		},
	}

	cmd.Flags().StringVarP(&cc.configPath, "config", "c", "", "config file path")
	cmd.Flags().StringVarP(&cc.format, "format", "f", "", "output format (table, json); overrides config")
	cmd.Flags().StringVar(&cc.cellID, "id", "main", "cell id for single-file input")
	cmd.Flags().StringVarP(&cc.output, "output", "o", "", "output file (default: stdout)")
	cmd.Flags().BoolVar(&cc.anonymous, "anonymous", false, "disable source anchoring")

	return cmd
}

// compileResult is one row of compile output.
type compileResult struct {
	Name     string   `json:"name"`
	ID       string   `json:"id"`
	Key      string   `json:"key"`
	Defs     []string `json:"defs"`
	Refs     []string `json:"refs"`
	Language string   `json:"language"`
	Test     bool     `json:"test"`
	Size     int      `json:"size"`
	Error    string   `json:"error,omitempty"`
}

func (cc *CompileCommand) run(path string) error {
	cfg, err := config.LoadConfig(cc.configPath)
	if err != nil {
		return err
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}

	if textutil.IsBinary(raw) {
		return fmt.Errorf("%w: %s", ErrBinaryInput, path)
	}

	tel := newTelemetry(cfg.Telemetry.Enabled)
	defer tel.report()

	results, err := cc.compileInput(path, raw, cfg, tel)
	if err != nil {
		return err
	}

	writer, closeFn, err := openOutput(cc.output)
	if err != nil {
		return err
	}
	defer closeFn()

	format := cfg.Output.Format
	if cc.format != "" {
		format = cc.format
	}

	return renderResults(writer, results, format, cfg.Output.Color)
}

// compileInput dispatches on the enry classification of the input file:
// JSON is a serialized notebook, Python is a single standalone cell.
func (cc *CompileCommand) compileInput(path string, raw []byte, cfg *config.Config, tel *telemetry) ([]compileResult, error) {
	switch enry.GetLanguage(filepath.Base(path), raw) {
	case langJSON:
		doc, err := nbir.Decode(raw)
		if err != nil {
			return nil, err
		}

		return cc.compileDocument(doc, cfg, tel), nil
	case langPython:
		result := cc.compileSingle(string(raw), cell.CellID(cc.cellID), tel)

		return []compileResult{result}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedInput, path)
	}
}

func (cc *CompileCommand) compileDocument(doc *nbir.Document, cfg *config.Config, tel *telemetry) []compileResult {
	var cc2 *cache.CompileCache
	if cfg.Cache.Enabled {
		cc2 = cache.New(cfg.CacheMaxBytes())
		restoreSnapshot(cc2, cfg.Cache.SnapshotPath)
	}

	opts := cell.FactoryOptions{
		AnonymousFile: cc.anonymous || cfg.Compiler.AnonymousFiles,
		TestRewrite:   cfg.Compiler.TestRewrite,
	}

	results := make([]compileResult, 0, len(doc.Cells))

	for i, def := range doc.Cells {
		id := cell.CellID(fmt.Sprintf("c%d", i))

		if cc2 != nil {
			hit := cc2.Get(cell.Key(def.Code))
			tel.cacheLookup(hit != nil)

			if hit != nil {
				results = append(results, resultFromCompiled(def.Name, hit))

				continue
			}
		}

		start := time.Now()
		done := tel.inflight("ir")

		built, err := cell.IRCellFactory(id, def, opts)

		done()

		if err != nil {
			tel.compile("ir", observability.StatusError, time.Since(start))
			results = append(results, compileResult{Name: def.Name, ID: string(id), Error: err.Error()})

			continue
		}

		tel.compile("ir", observability.StatusOK, time.Since(start))

		if cc2 != nil {
			cc2.Put(built.Compiled)
		}

		results = append(results, resultFromCell(built))
	}

	if cc2 != nil {
		saveSnapshot(cc2, cfg.Cache.SnapshotPath)
	}

	return results
}

func (cc *CompileCommand) compileSingle(code string, id cell.CellID, tel *telemetry) compileResult {
	start := time.Now()
	done := tel.inflight("file")

	compiled, err := cell.Compile(code, id, cell.Options{})

	done()

	if err != nil {
		tel.compile("file", observability.StatusError, time.Since(start))

		return compileResult{Name: string(id), ID: string(id), Error: err.Error()}
	}

	tel.compile("file", observability.StatusOK, time.Since(start))

	return resultFromCompiled(string(id), compiled)
}

func resultFromCell(built *cell.Cell) compileResult {
	result := resultFromCompiled(built.Name, built.Compiled)
	result.Test = built.TestAllowed

	return result
}

func resultFromCompiled(name string, compiled *cell.CompiledCell) compileResult {
	return compileResult{
		Name:     name,
		ID:       string(compiled.ID),
		Key:      fmt.Sprintf("%016x", compiled.Key),
		Defs:     sortedNames(compiled.Defs),
		Refs:     sortedNames(compiled.Refs),
		Language: compiled.Language,
		Test:     compiled.Test,
		Size:     len(compiled.Code),
	}
}

func restoreSnapshot(cc *cache.CompileCache, path string) {
	if path == "" {
		return
	}

	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer f.Close()

	restoreErr := cc.Restore(f, func(code string, id cell.CellID) (*cell.CompiledCell, error) {
		return cell.Compile(code, id, cell.Options{})
	})
	if restoreErr != nil {
		slog.Warn("cache snapshot restore failed", "path", path, "error", restoreErr)
	}
}

func saveSnapshot(cc *cache.CompileCache, path string) {
	if path == "" {
		return
	}

	f, err := os.Create(path)
	if err != nil {
		slog.Warn("cache snapshot create failed", "path", path, "error", err)

		return
	}
	defer f.Close()

	if err := cc.Snapshot(f); err != nil {
		slog.Warn("cache snapshot write failed", "path", path, "error", err)
	}
}

func openOutput(path string) (io.Writer, func(), error) {
	if path == "" {
		return os.Stdout, func() {}, nil
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("create output file: %w", err)
	}

	return f, func() { f.Close() }, nil
}

func renderResults(w io.Writer, results []compileResult, format string, useColor bool) error {
	switch format {
	case config.FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")

		if err := enc.Encode(results); err != nil {
			return fmt.Errorf("encode results: %w", err)
		}

		return nil
	case config.FormatTable, "":
		renderTable(w, results, useColor)

		return nil
	default:
		return fmt.Errorf("%w: %q", config.ErrInvalidFormat, format)
	}
}

func renderTable(w io.Writer, results []compileResult, useColor bool) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleLight)
	tw.AppendHeader(table.Row{"Name", "Key", "Defs", "Refs", "Lang", "Test", "Size"})

	total := 0

	for _, r := range results {
		if r.Error != "" {
			tw.AppendRow(table.Row{r.Name, "-", errorCell(r.Error, useColor), "-", "-", "-", "-"})

			continue
		}

		total += r.Size

		tw.AppendRow(table.Row{
			r.Name,
			r.Key,
			joinNames(r.Defs),
			joinNames(r.Refs),
			r.Language,
			r.Test,
			humanize.IBytes(uint64(r.Size)),
		})
	}

	tw.AppendFooter(table.Row{"", "", "", "", "", "total", humanize.IBytes(uint64(total))})
	tw.Render()
}

// telemetry wraps the optional metric pipeline. When disabled every
// method is a no-op so call sites stay unconditional.
type telemetry struct {
	reader  *sdkmetric.ManualReader
	metrics *observability.CompileMetrics
	ctx     context.Context
}

func newTelemetry(enabled bool) *telemetry {
	if !enabled {
		return &telemetry{}
	}

	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	metrics, err := observability.NewCompileMetrics(provider.Meter("cellforge"))
	if err != nil {
		slog.Warn("telemetry disabled", "error", err)

		return &telemetry{}
	}

	return &telemetry{reader: reader, metrics: metrics, ctx: context.Background()}
}

func (t *telemetry) compile(factory, status string, d time.Duration) {
	if t.metrics == nil {
		return
	}

	t.metrics.RecordCompile(t.ctx, factory, status, d)

	if status == observability.StatusError {
		t.metrics.RecordParseError(t.ctx, factory)
	}
}

// inflight marks one compile in progress and returns its release func.
func (t *telemetry) inflight(factory string) func() {
	if t.metrics == nil {
		return func() {}
	}

	return t.metrics.TrackInflight(t.ctx, factory)
}

func (t *telemetry) cacheLookup(hit bool) {
	if t.metrics == nil {
		return
	}

	t.metrics.RecordCacheLookup(t.ctx, hit)
}

// report collects the accumulated instruments and logs a summary.
func (t *telemetry) report() {
	if t.reader == nil {
		return
	}

	var rm metricdata.ResourceMetrics
	if err := t.reader.Collect(t.ctx, &rm); err != nil {
		slog.Warn("telemetry collect failed", "error", err)

		return
	}

	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			slog.Debug("metric", "name", m.Name, "unit", m.Unit)
		}
	}

	slog.Info("telemetry collected", "scopes", len(rm.ScopeMetrics))
}
