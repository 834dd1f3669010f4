package ingest

import (
	"time"

	"github.com/tinytelemetry/logstat/internal/model"
	"github.com/tinytelemetry/logstat/internal/stats"
	"github.com/tinytelemetry/logstat/internal/timestamp"
)

// Processor folds parsed entries into a stats.Builder and routes them to the
// optional entry sink.
type Processor struct {
	builder *stats.Builder
	sink    EntrySink
	runID   string
	ref     time.Time
	seq     int
}

// NewProcessor creates a processor for one run.
func NewProcessor(opts Options) *Processor {
	ref := opts.Reference
	if ref.IsZero() {
		ref = time.Now()
	}
	return &Processor{
		builder: stats.NewBuilder(opts.Stopwords, stats.WithTopKeywords(opts.TopKeywords)),
		sink:    opts.Sink,
		runID:   opts.RunID,
		ref:     ref,
	}
}

// Process counts one entry.
func (p *Processor) Process(entry model.LogEntry) {
	p.seq++
	p.builder.Add(entry)

	if p.sink == nil {
		return
	}
	stored := model.StoredEntry{
		RunID:    p.runID,
		Seq:      p.seq,
		LogEntry: entry,
	}
	if t, ok := timestamp.ResolveSyslog(entry.Timestamp, p.ref); ok {
		stored.Time = t
	}
	p.sink.Add(stored)
}

// Entries returns the number of entries processed.
func (p *Processor) Entries() int { return p.seq }

// Finish finalizes the run. The processor cannot be used afterwards.
func (p *Processor) Finish() *model.LogStats {
	return p.builder.Finalize()
}
