package ingest

import (
	"bytes"
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"testing/iotest"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/tinytelemetry/logstat/internal/logparse"
	"github.com/tinytelemetry/logstat/internal/model"
	"github.com/tinytelemetry/logstat/internal/stopwords"
)

const sample = "Jul 1 09:00:55 calvisitor-10-105-160-95 kernel[43]: Alfa Bravo Charlie\n" +
	"Jul 1 09:01:05 calvisitor-10-105-160-95 sshd[101]: Accepted publickey for alfa\n\x00\n" +
	"Jul 1 09:02:00 authorMacBook-Pro kernel[0]: the bravo is back\n"

type recordingSink struct {
	entries []model.StoredEntry
}

func (s *recordingSink) Add(e model.StoredEntry) { s.entries = append(s.entries, e) }

func TestAnalyze(t *testing.T) {
	res, err := Analyze(context.Background(), iotest.HalfReader(strings.NewReader(sample)), Options{
		Stopwords: stopwords.English(),
	})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	if res.Entries != 3 {
		t.Errorf("Entries = %d, want 3", res.Entries)
	}
	if res.Bytes != int64(len(sample)) {
		t.Errorf("Bytes = %d, want %d", res.Bytes, len(sample))
	}
	if res.Digest != xxhash.Sum64String(sample) {
		t.Errorf("Digest = %x, want %x", res.Digest, xxhash.Sum64String(sample))
	}

	want := &model.LogStats{
		TotalEntries:         3,
		ByProcess:            map[string]uint32{"kernel": 2, "sshd": 1},
		ByHostname:           map[string]uint32{"calvisitor-10-105-160-95": 2, "authorMacBook-Pro": 1},
		MostFrequentProcess:  "kernel",
		MostFrequentHostname: "calvisitor-10-105-160-95",
		TopKeywords:          []string{"alfa", "bravo", "accepted", "back", "charlie", "publickey"},
	}
	if !reflect.DeepEqual(res.Stats, want) {
		t.Errorf("Stats = %+v, want %+v", res.Stats, want)
	}
}

func TestAnalyzeMatchesAnalyzeBytes(t *testing.T) {
	opts := Options{Stopwords: stopwords.English()}

	streamed, err := Analyze(context.Background(), strings.NewReader(sample), opts)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	buffered, err := AnalyzeBytes([]byte(sample), opts)
	if err != nil {
		t.Fatalf("AnalyzeBytes: %v", err)
	}

	if !reflect.DeepEqual(buffered, streamed) {
		t.Errorf("Analyze = %+v, AnalyzeBytes = %+v", streamed, buffered)
	}
}

func TestAnalyzeParseErrorAbortsRun(t *testing.T) {
	input := sample + "Jul 1 09:03:00 host no-pid-here: oops\n" + sample
	sink := &recordingSink{}

	res, err := Analyze(context.Background(), strings.NewReader(input), Options{Sink: sink})
	if res != nil {
		t.Errorf("Analyze result = %+v, want nil", res)
	}

	var perr *logparse.ParseError
	if !errors.As(err, &perr) || !errors.Is(err, logparse.ErrMalformedRecord) {
		t.Fatalf("Analyze error = %v, want a malformed record ParseError", err)
	}
	if perr.Record != 4 {
		t.Errorf("Record = %d, want 4", perr.Record)
	}
	if len(sink.entries) != 3 {
		t.Errorf("sink got %d entries, want 3", len(sink.entries))
	}

	res, err = AnalyzeBytes([]byte(input), Options{})
	if res != nil || !errors.Is(err, logparse.ErrMalformedRecord) {
		t.Errorf("AnalyzeBytes = (%+v, %v), want ErrMalformedRecord", res, err)
	}
}

func TestAnalyzeSink(t *testing.T) {
	sink := &recordingSink{}
	ref := time.Date(2024, time.August, 1, 0, 0, 0, 0, time.UTC)

	if _, err := AnalyzeBytes([]byte(sample), Options{Sink: sink, RunID: "run-1", Reference: ref}); err != nil {
		t.Fatalf("AnalyzeBytes: %v", err)
	}

	if len(sink.entries) != 3 {
		t.Fatalf("sink got %d entries, want 3", len(sink.entries))
	}
	for i, e := range sink.entries {
		if e.RunID != "run-1" || e.Seq != i+1 {
			t.Errorf("entry %d tagged (%q, %d), want (run-1, %d)", i, e.RunID, e.Seq, i+1)
		}
	}
	second := sink.entries[1]
	if second.ProcessName != "sshd" || second.PID != 101 {
		t.Errorf("entry 2 = %s[%d], want sshd[101]", second.ProcessName, second.PID)
	}
	if want := time.Date(2024, time.July, 1, 9, 1, 5, 0, time.UTC); !second.Time.Equal(want) {
		t.Errorf("entry 2 time = %v, want %v", second.Time, want)
	}
}

func TestAnalyzeCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := Analyze(ctx, strings.NewReader(sample), Options{})
	if res != nil || !errors.Is(err, context.Canceled) {
		t.Errorf("Analyze = (%+v, %v), want context.Canceled", res, err)
	}
}

func TestAnalyzeReadError(t *testing.T) {
	boom := errors.New("boom")
	r := iotest.DataErrReader(&errAfter{data: []byte(sample), err: boom})

	res, err := Analyze(context.Background(), r, Options{})
	if res != nil || !errors.Is(err, boom) {
		t.Errorf("Analyze = (%+v, %v), want %v", res, err, boom)
	}
}

func TestAnalyzeEmptyInput(t *testing.T) {
	res, err := Analyze(context.Background(), bytes.NewReader(nil), Options{})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if res.Entries != 0 || res.Stats.TotalEntries != 0 || len(res.Stats.TopKeywords) != 0 {
		t.Errorf("empty input result = %+v", res)
	}
	if res.Digest != xxhash.Sum64(nil) {
		t.Errorf("Digest = %x, want %x", res.Digest, xxhash.Sum64(nil))
	}
}

type errAfter struct {
	data []byte
	err  error
}

func (r *errAfter) Read(p []byte) (int, error) {
	if len(r.data) == 0 {
		return 0, r.err
	}
	n := copy(p, r.data)
	r.data = r.data[n:]
	return n, nil
}
