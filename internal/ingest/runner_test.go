package ingest

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/tinytelemetry/logstat/internal/logparse"
	"github.com/tinytelemetry/logstat/internal/logsource"
	"github.com/tinytelemetry/logstat/internal/store"
	"github.com/tinytelemetry/logstat/internal/stopwords"
)

func newRunnerStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.NewStore(store.Config{Driver: store.DriverSQLite})
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRunnerPersists(t *testing.T) {
	st := newRunnerStore(t)
	r := &Runner{
		Options:      Options{Stopwords: stopwords.English()},
		Store:        st,
		StoreEntries: true,
	}

	out, err := r.Run(context.Background(), logsource.NewStreamSource("10.0.0.7:51234", strings.NewReader(sample)), true)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !out.Persisted {
		t.Error("Persisted = false")
	}
	if out.Run.Source != "10.0.0.7:51234" {
		t.Errorf("Source = %q", out.Run.Source)
	}
	if out.Run.TotalEntries != 3 {
		t.Errorf("TotalEntries = %d, want 3", out.Run.TotalEntries)
	}
	if out.Run.Digest != FormatDigest(out.Result.Digest) || len(out.Run.Digest) != 16 {
		t.Errorf("Digest = %q, want 16 hex digits of %x", out.Run.Digest, out.Result.Digest)
	}

	stored, err := st.GetRunStats(out.Run.ID)
	if err != nil {
		t.Fatalf("GetRunStats: %v", err)
	}
	if !reflect.DeepEqual(stored, out.Result.Stats) {
		t.Errorf("stored stats = %+v, want %+v", stored, out.Result.Stats)
	}

	byDigest, err := st.RunByDigest(out.Run.Digest)
	if err != nil {
		t.Fatalf("RunByDigest: %v", err)
	}
	if byDigest.ID != out.Run.ID {
		t.Errorf("RunByDigest = %s, want %s", byDigest.ID, out.Run.ID)
	}

	entries, err := st.TotalEntryCount()
	if err != nil {
		t.Fatalf("TotalEntryCount: %v", err)
	}
	if entries != 3 {
		t.Errorf("TotalEntryCount = %d, want 3", entries)
	}
}

func TestRunnerWithoutPersist(t *testing.T) {
	st := newRunnerStore(t)
	r := &Runner{Store: st, StoreEntries: true}

	out, err := r.Run(context.Background(), logsource.NewStreamSource("body", strings.NewReader(sample)), false)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Persisted || out.Run.ID == "" {
		t.Errorf("outcome = %+v, want an unpersisted run with an ID", out.Run)
	}

	n, err := st.TotalRunCount()
	if err != nil {
		t.Fatalf("TotalRunCount: %v", err)
	}
	if n != 0 {
		t.Errorf("TotalRunCount = %d, want 0", n)
	}
}

func TestRunnerNoStore(t *testing.T) {
	r := &Runner{}
	out, err := r.Run(context.Background(), logsource.NewStreamSource("body", strings.NewReader(sample)), true)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Persisted {
		t.Error("Persisted = true without a store")
	}
}

func TestRunnerParseErrorLeavesNothing(t *testing.T) {
	st := newRunnerStore(t)
	r := &Runner{Store: st, StoreEntries: true}

	input := sample + "Jul 1 09:05:00 host no bracket here\n"
	out, err := r.Run(context.Background(), logsource.NewStreamSource("bad", strings.NewReader(input)), true)
	if out != nil {
		t.Errorf("outcome = %+v, want nil", out)
	}
	if !errors.Is(err, logparse.ErrMalformedRecord) {
		t.Fatalf("Run error = %v, want ErrMalformedRecord", err)
	}

	counts, err := st.TableRowCounts()
	if err != nil {
		t.Fatalf("TableRowCounts: %v", err)
	}
	for table, n := range counts {
		if n != 0 {
			t.Errorf("table %s has %d rows, want 0", table, n)
		}
	}
}

func TestRunnerOpenError(t *testing.T) {
	src := logsource.NewStreamSource("once", strings.NewReader(sample))
	r := &Runner{}
	if _, err := r.Run(context.Background(), src, false); err != nil {
		t.Fatalf("first Run: %v", err)
	}

	if _, err := r.Run(context.Background(), src, false); !errors.Is(err, logsource.ErrAlreadyOpened) {
		t.Errorf("second Run error = %v, want ErrAlreadyOpened", err)
	}
}
