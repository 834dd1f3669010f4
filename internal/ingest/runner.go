package ingest

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/tinytelemetry/logstat/internal/logsource"
	"github.com/tinytelemetry/logstat/internal/memstats"
	"github.com/tinytelemetry/logstat/internal/model"
	"github.com/tinytelemetry/logstat/internal/store"
)

// RunStore is the storage contract a Runner persists to.
type RunStore interface {
	model.RunWriter
	model.EntryWriter
}

// Runner analyzes sources and optionally persists the outcome.
type Runner struct {
	// Options applied to every run; RunID and Sink are set per run.
	Options Options
	// Store receives persisted runs. Nil disables persistence.
	Store RunStore
	// StoreEntries also persists every parsed entry.
	StoreEntries bool
	InsertConfig store.InsertBufferConfig
}

// Outcome is a completed run.
type Outcome struct {
	Run       model.Run
	Result    *Result
	Persisted bool
}

// Run opens src, analyzes it and, when persist is set and a store is
// configured, saves the run. A failed run leaves nothing behind in the store.
func (r *Runner) Run(ctx context.Context, src logsource.Source, persist bool) (*Outcome, error) {
	rc, err := src.Open(ctx)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	run := model.Run{
		ID:        uuid.NewString(),
		Source:    src.Name(),
		StartedAt: time.Now().UTC(),
	}
	persist = persist && r.Store != nil

	opts := r.Options
	opts.RunID = run.ID
	opts.Sink = nil
	var buf *store.InsertBuffer
	if persist && r.StoreEntries {
		buf = store.NewInsertBuffer(r.Store, r.InsertConfig)
		opts.Sink = buf
	}

	res, err := Analyze(ctx, rc, opts)
	if buf != nil {
		if cerr := buf.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("store entries: %w", cerr)
		}
	}
	if err != nil {
		if buf != nil {
			r.discard(run.ID)
		}
		return nil, err
	}

	run.FinishedAt = time.Now().UTC()
	run.Digest = FormatDigest(res.Digest)
	run.Bytes = res.Bytes
	run.TotalEntries = res.Entries

	if persist {
		if err := r.Store.SaveRun(run, res.Stats); err != nil {
			if buf != nil {
				r.discard(run.ID)
			}
			return nil, fmt.Errorf("save run: %w", err)
		}
	}

	log.Printf("ingest: run %s source=%s entries=%d bytes=%d digest=%s persisted=%t %s",
		run.ID, run.Source, run.TotalEntries, run.Bytes, run.Digest, persist, memstats.Summary())
	return &Outcome{Run: run, Result: res, Persisted: persist}, nil
}

func (r *Runner) discard(runID string) {
	if err := r.Store.DeleteRun(runID); err != nil {
		log.Printf("ingest: failed to discard partial run %s: %v", runID, err)
	}
}

// FormatDigest renders an input digest the way runs store it.
func FormatDigest(d uint64) string {
	return fmt.Sprintf("%016x", d)
}
