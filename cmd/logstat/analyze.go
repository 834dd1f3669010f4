package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/sync/errgroup"

	"github.com/tinytelemetry/logstat/internal/ingest"
	"github.com/tinytelemetry/logstat/internal/logsource"
	"github.com/tinytelemetry/logstat/internal/model"
	"github.com/tinytelemetry/logstat/internal/stopwords"
	"github.com/tinytelemetry/logstat/internal/store"
)

const summarySuffix = ".stats.json"

var errInputsFailed = errors.New("one or more inputs failed")

// stdio carries the process streams so commands can run against buffers.
type stdio struct {
	in       io.Reader
	out, err io.Writer
}

// analysisInput is one input and where its summary goes. An empty dest means
// standard output.
type analysisInput struct {
	path string
	dest string
}

type analysisResult struct {
	analysisInput
	outcome *ingest.Outcome
	err     error
}

// runAnalyze implements `logstat analyze [flags] PATH...`.
func runAnalyze(ctx context.Context, cfg appConfig, args []string, std stdio) error {
	fs := flag.NewFlagSet("analyze", flag.ContinueOnError)
	fs.SetOutput(std.err)
	pattern := fs.String("pattern", cfg.Pattern, "glob for files inside directory arguments")
	outputDir := fs.String("output-dir", cfg.OutputDir, "directory for summary files (default: next to each input)")
	output := fs.String("o", "", "summary file for a single input")
	concurrency := fs.Int("concurrency", cfg.Concurrency, "inputs analyzed in parallel")
	persist := fs.Bool("persist", cfg.StoreEnabled, "also save each run to the store")
	quiet := fs.Bool("quiet", false, "suppress the report on stderr")
	fs.Usage = func() {
		fmt.Fprintln(fs.Output(), "Usage: logstat analyze [flags] PATH...")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return errors.New("analyze: at least one PATH is required")
	}
	if *concurrency <= 0 {
		return fmt.Errorf("analyze: invalid concurrency: %d", *concurrency)
	}

	inputs, err := planInputs(fs.Args(), *pattern, *output, *outputDir)
	if err != nil {
		return fmt.Errorf("analyze: %w", err)
	}

	set, err := stopwords.FromConfig(cfg.StopwordsFile)
	if err != nil {
		return fmt.Errorf("analyze: %w", err)
	}
	runner := &ingest.Runner{
		Options: ingest.Options{
			Stopwords:   set,
			TopKeywords: cfg.TopKeywords,
			MaxLineSize: cfg.MaxLineSize,
		},
		StoreEntries: cfg.StoreEntries,
		InsertConfig: cfg.insertConfig(),
	}
	if *persist {
		st, err := store.NewStore(cfg.storeConfig())
		if err != nil {
			return fmt.Errorf("analyze: open store: %w", err)
		}
		defer st.Close()
		runner.Store = st
	}

	results := make([]analysisResult, len(inputs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(*concurrency)
	for i, in := range inputs {
		g.Go(func() error {
			// Input failures are reported per input and never cancel siblings.
			out, err := analyzeInput(gctx, runner, in, *persist, std)
			results[i] = analysisResult{analysisInput: in, outcome: out, err: err}
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, r := range results {
		if r.err != nil {
			failed++
			fmt.Fprintf(std.err, "input %s: %v\n", r.path, r.err)
		}
	}
	if !*quiet {
		printReport(std.err, results)
	}
	if failed > 0 {
		return fmt.Errorf("%w: %d of %d", errInputsFailed, failed, len(results))
	}
	return nil
}

func analyzeInput(ctx context.Context, runner *ingest.Runner, in analysisInput, persist bool, std stdio) (*ingest.Outcome, error) {
	var src logsource.Source
	if in.path == logsource.StdinName {
		src = logsource.NewStreamSource("stdin", std.in)
	} else {
		src = logsource.ForPath(in.path)
	}

	out, err := runner.Run(ctx, src, persist)
	if err != nil {
		return nil, err
	}
	if err := writeSummary(in.dest, out.Result.Stats, std.out); err != nil {
		return nil, fmt.Errorf("write summary: %w", err)
	}
	return out, nil
}

// planInputs expands directory arguments and assigns each input its summary
// destination.
func planInputs(args []string, pattern, output, outputDir string) ([]analysisInput, error) {
	var paths []string
	stdinSeen := false
	for _, arg := range args {
		if arg == logsource.StdinName {
			if stdinSeen {
				return nil, errors.New("stdin given more than once")
			}
			stdinSeen = true
			paths = append(paths, arg)
			continue
		}
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			paths = append(paths, arg)
			continue
		}
		found, err := logsource.Discover(arg, pattern)
		if err != nil {
			return nil, err
		}
		if len(found) == 0 {
			return nil, fmt.Errorf("no files in %s match %q", arg, pattern)
		}
		paths = append(paths, found...)
	}

	if output != "" {
		if len(paths) != 1 {
			return nil, fmt.Errorf("-o needs exactly one input, got %d", len(paths))
		}
		return []analysisInput{{path: paths[0], dest: output}}, nil
	}

	inputs := make([]analysisInput, 0, len(paths))
	seen := make(map[string]string, len(paths))
	for _, p := range paths {
		dest := summaryPath(p, outputDir)
		if prev, ok := seen[dest]; ok && dest != "" {
			return nil, fmt.Errorf("inputs %s and %s would both write %s", prev, p, dest)
		}
		seen[dest] = p
		inputs = append(inputs, analysisInput{path: p, dest: dest})
	}
	return inputs, nil
}

// summaryPath returns where the summary of input goes; "" is standard output.
func summaryPath(input, outputDir string) string {
	if input == logsource.StdinName {
		return ""
	}
	if outputDir != "" {
		return filepath.Join(outputDir, filepath.Base(input)+summarySuffix)
	}
	return input + summarySuffix
}

// writeSummary writes stats as two-space indented JSON. File output goes
// through a temp file and rename so a reader never sees a partial summary.
func writeSummary(path string, stats *model.LogStats, stdout io.Writer) error {
	data, err := json.MarshalIndent(stats, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')

	if path == "" {
		_, err := stdout.Write(data)
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(0644); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func printReport(w io.Writer, results []analysisResult) {
	dim := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	green := lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	red := lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	bold := lipgloss.NewStyle().Bold(true)

	header := []string{"INPUT", "ENTRIES", "TOP PROCESS", "TOP HOST", "SUMMARY"}
	rows := make([][]string, 0, len(results))
	for _, r := range results {
		if r.err != nil {
			rows = append(rows, []string{displayName(r.path), "-", "-", "-", "failed"})
			continue
		}
		st := r.outcome.Result.Stats
		dest := r.dest
		if dest == "" {
			dest = "stdout"
		}
		rows = append(rows, []string{
			displayName(r.path),
			strconv.Itoa(st.TotalEntries),
			orDash(st.MostFrequentProcess),
			orDash(st.MostFrequentHostname),
			dest,
		})
	}

	widths := make([]int, len(header))
	for _, row := range append([][]string{header}, rows...) {
		for i, cell := range row {
			widths[i] = max(widths[i], lipgloss.Width(cell))
		}
	}

	render := func(row []string, style func(col int) lipgloss.Style) string {
		cells := make([]string, len(row))
		for i, cell := range row {
			cells[i] = style(i).Width(widths[i] + 2).Render(cell)
		}
		return "  " + strings.TrimRight(lipgloss.JoinHorizontal(lipgloss.Top, cells...), " ")
	}

	lines := []string{"", render(header, func(int) lipgloss.Style { return bold })}
	for i, row := range rows {
		failed := results[i].err != nil
		lines = append(lines, render(row, func(col int) lipgloss.Style {
			switch {
			case failed && col == len(row)-1:
				return red
			case col == len(row)-1:
				return green
			case col == 0:
				return lipgloss.NewStyle()
			default:
				return dim
			}
		}))
	}
	lines = append(lines, "")
	fmt.Fprintln(w, strings.Join(lines, "\n"))
}

func displayName(path string) string {
	if path == logsource.StdinName {
		return "stdin"
	}
	return path
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
