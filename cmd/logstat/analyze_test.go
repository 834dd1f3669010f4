package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tinytelemetry/logstat/internal/model"
)

const validLog = "Jul 1 09:00:55 calvisitor-10-105-160-95 kernel[0]: AppleThunderboltNHIType2::prePCIWake - power up complete\n" +
	"Jul 1 09:01:05 calvisitor-10-105-160-95 com.apple.CDScheduler[43]: Thermal pressure state: 1 Memory pressure state: 0\n" +
	"Jul 1 09:01:06 authorMacBook-Pro kernel[0]: Wake reason: EC.LidOpen\n"

const invalidLog = "Jul 1 09:00:55 host kernel[0]: fine\n" +
	"Jul 1 09:00:56 host no bracket here\n"

func testConfig(t *testing.T) appConfig {
	t.Helper()
	isolateHome(t)
	cfg, err := loadConfig("")
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	return cfg
}

func testStdio(in string) (stdio, *bytes.Buffer, *bytes.Buffer) {
	var out, errOut bytes.Buffer
	return stdio{in: strings.NewReader(in), out: &out, err: &errOut}, &out, &errOut
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func readSummary(t *testing.T, path string) model.LogStats {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read summary: %v", err)
	}
	var stats model.LogStats
	if err := json.Unmarshal(data, &stats); err != nil {
		t.Fatalf("unmarshal summary: %v", err)
	}
	return stats
}

func TestWriteSummary_Format(t *testing.T) {
	t.Parallel()

	stats := &model.LogStats{
		ByProcess:   map[string]uint32{},
		ByHostname:  map[string]uint32{},
		TopKeywords: []string{},
	}
	var buf bytes.Buffer
	if err := writeSummary("", stats, &buf); err != nil {
		t.Fatalf("writeSummary: %v", err)
	}

	want := `{
  "total_entries": 0,
  "by_process": {},
  "by_hostname": {},
  "most_frequent_process": "",
  "most_frequent_hostname": "",
  "top_keywords": []
}
`
	if buf.String() != want {
		t.Fatalf("summary =\n%s\nwant\n%s", buf.String(), want)
	}
}

func TestWriteSummary_FileIsAtomic(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "out.stats.json")
	stats := &model.LogStats{TotalEntries: 2, TopKeywords: []string{"wake"}}
	if err := writeSummary(path, stats, nil); err != nil {
		t.Fatalf("writeSummary: %v", err)
	}

	got := readSummary(t, path)
	if got.TotalEntries != 2 || len(got.TopKeywords) != 1 {
		t.Errorf("summary = %+v", got)
	}
	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("leftover temp files: %v", entries)
	}
}

func TestPlanInputs(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.log"), validLog)
	writeFile(t, filepath.Join(dir, "sub", "b.log"), validLog)
	writeFile(t, filepath.Join(dir, "notes.txt"), "x")

	inputs, err := planInputs([]string{dir}, "**/*.log", "", "")
	if err != nil {
		t.Fatalf("planInputs: %v", err)
	}
	if len(inputs) != 2 {
		t.Fatalf("inputs = %+v, want 2", inputs)
	}
	if inputs[0].path != filepath.Join(dir, "a.log") || inputs[0].dest != filepath.Join(dir, "a.log.stats.json") {
		t.Errorf("inputs[0] = %+v", inputs[0])
	}

	inputs, err = planInputs([]string{"-"}, "", "", "")
	if err != nil {
		t.Fatalf("planInputs stdin: %v", err)
	}
	if inputs[0].dest != "" {
		t.Errorf("stdin dest = %q, want stdout", inputs[0].dest)
	}

	out := t.TempDir()
	inputs, err = planInputs([]string{filepath.Join(dir, "a.log")}, "", "", out)
	if err != nil {
		t.Fatalf("planInputs output-dir: %v", err)
	}
	if want := filepath.Join(out, "a.log.stats.json"); inputs[0].dest != want {
		t.Errorf("dest = %q, want %q", inputs[0].dest, want)
	}
}

func TestPlanInputs_Errors(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	a := filepath.Join(dir, "a.log")
	b := filepath.Join(dir, "sub", "a.log")
	writeFile(t, a, validLog)
	writeFile(t, b, validLog)

	tests := []struct {
		name      string
		args      []string
		pattern   string
		output    string
		outputDir string
	}{
		{"stdin twice", []string{"-", "-"}, "", "", ""},
		{"missing path", []string{filepath.Join(dir, "missing.log")}, "", "", ""},
		{"o with many inputs", []string{a, b}, "", "x.json", ""},
		{"output-dir collision", []string{a, b}, "", "", t.TempDir()},
		{"no matches", []string{dir}, "*.gz", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := planInputs(tt.args, tt.pattern, tt.output, tt.outputDir); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestRunAnalyze_WritesSummaries(t *testing.T) {
	cfg := testConfig(t)
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "system.log"), validLog)
	writeFile(t, filepath.Join(dir, "archive", "old.log"), validLog)

	std, _, _ := testStdio("")
	if err := runAnalyze(context.Background(), cfg, []string{"-quiet", dir}, std); err != nil {
		t.Fatalf("runAnalyze: %v", err)
	}

	for _, p := range []string{"system.log", filepath.Join("archive", "old.log")} {
		stats := readSummary(t, filepath.Join(dir, p+summarySuffix))
		if stats.TotalEntries != 3 {
			t.Errorf("%s: total_entries = %d, want 3", p, stats.TotalEntries)
		}
		if stats.MostFrequentProcess != "kernel" {
			t.Errorf("%s: most_frequent_process = %q", p, stats.MostFrequentProcess)
		}
		if stats.MostFrequentHostname != "calvisitor-10-105-160-95" {
			t.Errorf("%s: most_frequent_hostname = %q", p, stats.MostFrequentHostname)
		}
	}
}

func TestRunAnalyze_FailedInputIsIsolated(t *testing.T) {
	cfg := testConfig(t)
	dir := t.TempDir()
	good := filepath.Join(dir, "good.log")
	bad := filepath.Join(dir, "bad.log")
	writeFile(t, good, validLog)
	writeFile(t, bad, invalidLog)

	std, _, errOut := testStdio("")
	err := runAnalyze(context.Background(), cfg, []string{good, bad}, std)
	if !errors.Is(err, errInputsFailed) {
		t.Fatalf("runAnalyze error = %v, want errInputsFailed", err)
	}

	if _, err := os.Stat(good + summarySuffix); err != nil {
		t.Errorf("good input has no summary: %v", err)
	}
	if _, err := os.Stat(bad + summarySuffix); !os.IsNotExist(err) {
		t.Errorf("bad input summary exists or stat failed: %v", err)
	}

	msg := errOut.String()
	if !strings.Contains(msg, "input "+bad+": record 2") || !strings.Contains(msg, "malformed record") {
		t.Errorf("stderr = %q", msg)
	}
	if !strings.Contains(msg, "failed") {
		t.Errorf("report does not mark failure: %q", msg)
	}
}

func TestRunAnalyze_Stdin(t *testing.T) {
	cfg := testConfig(t)

	std, out, _ := testStdio(validLog)
	if err := runAnalyze(context.Background(), cfg, []string{"-quiet", "-"}, std); err != nil {
		t.Fatalf("runAnalyze: %v", err)
	}

	var stats model.LogStats
	if err := json.Unmarshal(out.Bytes(), &stats); err != nil {
		t.Fatalf("stdout is not a summary: %v\n%s", err, out.String())
	}
	if stats.TotalEntries != 3 {
		t.Errorf("total_entries = %d, want 3", stats.TotalEntries)
	}
	if stats.ByHostname["authorMacBook-Pro"] != 1 {
		t.Errorf("by_hostname = %v", stats.ByHostname)
	}
}

func TestRunAnalyze_OutputFlag(t *testing.T) {
	cfg := testConfig(t)
	dir := t.TempDir()
	in := filepath.Join(dir, "system.log")
	writeFile(t, in, validLog)
	dest := filepath.Join(dir, "out", "summary.json")

	std, _, _ := testStdio("")
	if err := runAnalyze(context.Background(), cfg, []string{"-quiet", "-o", dest, in}, std); err != nil {
		t.Fatalf("runAnalyze: %v", err)
	}
	if stats := readSummary(t, dest); stats.TotalEntries != 3 {
		t.Errorf("total_entries = %d, want 3", stats.TotalEntries)
	}
	if _, err := os.Stat(in + summarySuffix); !os.IsNotExist(err) {
		t.Errorf("default summary written despite -o: %v", err)
	}
}

func TestRunAnalyze_Persist(t *testing.T) {
	cfg := testConfig(t)
	cfg.DBPath = filepath.Join(t.TempDir(), "runs.db")
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "system.log"), validLog)

	std, _, _ := testStdio("")
	if err := runAnalyze(context.Background(), cfg, []string{"-quiet", "-persist", dir}, std); err != nil {
		t.Fatalf("runAnalyze: %v", err)
	}
	if _, err := os.Stat(cfg.DBPath); err != nil {
		t.Fatalf("store file not created: %v", err)
	}
}

func TestRunAnalyze_RequiresPath(t *testing.T) {
	cfg := testConfig(t)

	std, _, _ := testStdio("")
	if err := runAnalyze(context.Background(), cfg, nil, std); err == nil {
		t.Fatal("expected error without PATH")
	}
}

func TestRunAnalyze_ReportListsInputs(t *testing.T) {
	cfg := testConfig(t)
	dir := t.TempDir()
	in := filepath.Join(dir, "system.log")
	writeFile(t, in, validLog)

	std, _, errOut := testStdio("")
	if err := runAnalyze(context.Background(), cfg, []string{in}, std); err != nil {
		t.Fatalf("runAnalyze: %v", err)
	}
	report := errOut.String()
	for _, want := range []string{"INPUT", in, "kernel", in + summarySuffix} {
		if !strings.Contains(report, want) {
			t.Errorf("report missing %q:\n%s", want, report)
		}
	}
}
