package ingest

import (
	"time"

	"github.com/tinytelemetry/logstat/internal/model"
	"github.com/tinytelemetry/logstat/internal/stopwords"
)

// EntrySink observes every parsed entry of a run, in input order.
// InsertBuffer in the store package is the production implementation.
type EntrySink interface {
	Add(entry model.StoredEntry)
}

// Options configures one analysis run.
type Options struct {
	// Stopwords excluded from keyword counts. Nil excludes nothing.
	Stopwords stopwords.Set
	// TopKeywords is the keyword cutoff, model.DefaultTopKeywords when zero.
	TopKeywords int
	// MaxLineSize bounds a single record for streamed input.
	MaxLineSize int
	// Sink receives each entry tagged with RunID. Optional.
	Sink  EntrySink
	RunID string
	// Reference resolves yearless timestamps for the sink; time.Now when zero.
	Reference time.Time
}

// Result is the outcome of a successful run.
type Result struct {
	Stats   *model.LogStats
	Digest  uint64 // xxhash64 of every byte consumed
	Bytes   int64
	Entries int
}
