package store

import (
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tinytelemetry/logstat/internal/model"
)

// DefaultFlushQueueSize is the number of batches that can be queued for async flushing.
const DefaultFlushQueueSize = 64

// InsertBuffer batches the entries of a run and flushes them asynchronously.
// Add never blocks on database writes; batches go to a flush goroutine.
type InsertBuffer struct {
	writer        model.EntryWriter
	mu            sync.Mutex
	pending       []model.StoredEntry
	flushChan     chan []model.StoredEntry // async flush queue
	maxBatch      int
	flushInterval time.Duration
	done          chan struct{}
	wg            sync.WaitGroup
	tickWg        sync.WaitGroup // separate WaitGroup for tickLoop
	closeOnce     sync.Once

	errMu    sync.Mutex
	firstErr error
	flushed  atomic.Int64

	// backpressureCount tracks inline flushes for throttled logging.
	backpressureCount atomic.Int64
	lastBPLog         atomic.Int64 // unix timestamp of last backpressure log
}

// InsertBufferConfig holds tunable parameters for the insert buffer.
type InsertBufferConfig struct {
	BatchSize      int
	FlushInterval  time.Duration
	FlushQueueSize int
}

// NewInsertBuffer creates an insert buffer that flushes to writer.
func NewInsertBuffer(writer model.EntryWriter, conf ...InsertBufferConfig) *InsertBuffer {
	batchSize := 2000
	flushInterval := 100 * time.Millisecond
	flushQueueSize := DefaultFlushQueueSize
	if len(conf) > 0 {
		if conf[0].BatchSize > 0 {
			batchSize = conf[0].BatchSize
		}
		if conf[0].FlushInterval > 0 {
			flushInterval = conf[0].FlushInterval
		}
		if conf[0].FlushQueueSize > 0 {
			flushQueueSize = conf[0].FlushQueueSize
		}
	}

	b := &InsertBuffer{
		writer:        writer,
		pending:       make([]model.StoredEntry, 0, batchSize),
		flushChan:     make(chan []model.StoredEntry, flushQueueSize),
		maxBatch:      batchSize,
		flushInterval: flushInterval,
		done:          make(chan struct{}),
	}

	b.wg.Add(1)
	go b.flushWorker()

	b.wg.Add(1)
	b.tickWg.Add(1)
	go b.tickLoop()

	return b
}

// tickLoop periodically drains the pending buffer.
func (b *InsertBuffer) tickLoop() {
	defer b.wg.Done()
	defer b.tickWg.Done()
	ticker := time.NewTicker(b.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			b.drainPending()
		case <-b.done:
			b.drainPending() // final drain
			return
		}
	}
}

// logBackpressure emits a throttled warning (at most once per 10 seconds) when
// the flush channel is full and an inline flush is triggered.
func (b *InsertBuffer) logBackpressure() {
	count := b.backpressureCount.Add(1)
	now := time.Now().Unix()
	last := b.lastBPLog.Load()
	if now-last >= 10 && b.lastBPLog.CompareAndSwap(last, now) {
		log.Printf("store: backpressure, %d inline flushes (flush channel full)", count)
	}
}

// drainPending moves pending entries to the flush channel.
func (b *InsertBuffer) drainPending() {
	b.mu.Lock()
	if len(b.pending) == 0 {
		b.mu.Unlock()
		return
	}
	batch := b.pending
	b.pending = make([]model.StoredEntry, 0, b.maxBatch)
	b.mu.Unlock()

	b.send(batch)
}

// send hands a batch to the flush worker, flushing inline when the queue is full.
func (b *InsertBuffer) send(batch []model.StoredEntry) {
	select {
	case b.flushChan <- batch:
	default:
		b.logBackpressure()
		b.flush(batch)
	}
}

// flushWorker processes batches from the flush channel.
func (b *InsertBuffer) flushWorker() {
	defer b.wg.Done()
	for batch := range b.flushChan {
		b.flush(batch)
	}
}

func (b *InsertBuffer) flush(batch []model.StoredEntry) {
	if len(batch) == 0 {
		return
	}
	if err := b.writer.InsertEntryBatch(batch); err != nil {
		log.Printf("store: flush error (run %s, %d entries): %v", batch[0].RunID, len(batch), err)
		b.errMu.Lock()
		if b.firstErr == nil {
			b.firstErr = err
		}
		b.errMu.Unlock()
		return
	}
	b.flushed.Add(int64(len(batch)))
}

// Add queues an entry for batch insertion.
func (b *InsertBuffer) Add(entry model.StoredEntry) {
	b.mu.Lock()
	b.pending = append(b.pending, entry)
	var batch []model.StoredEntry
	if len(b.pending) >= b.maxBatch {
		batch = b.pending
		b.pending = make([]model.StoredEntry, 0, b.maxBatch)
	}
	b.mu.Unlock()

	if batch != nil {
		b.send(batch)
	}
}

// Flushed returns the number of entries written so far.
func (b *InsertBuffer) Flushed() int64 {
	return b.flushed.Load()
}

// Close flushes remaining entries, waits for all writes to complete and
// returns the first flush error, if any. Add must not be called afterwards.
func (b *InsertBuffer) Close() error {
	b.closeOnce.Do(func() {
		close(b.done)
		// Wait for tickLoop to finish its final drain before closing flushChan.
		b.tickWg.Wait()
		close(b.flushChan)
		b.wg.Wait()
	})

	b.errMu.Lock()
	defer b.errMu.Unlock()
	return b.firstErr
}

// InsertEntryBatch appends a batch of entries in a single transaction.
func (s *Store) InsertEntryBatch(entries []model.StoredEntry) error {
	if len(entries) == 0 {
		return nil
	}

	ctx, cancel := s.queryCtx()
	defer cancel()

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO entries (run_id, seq, ts, raw_timestamp, hostname, process, pid, message) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, e := range entries {
		var ts any
		if !e.Time.IsZero() {
			ts = e.Time.UnixMilli()
		}
		if _, err := stmt.ExecContext(ctx,
			e.RunID, int64(e.Seq), ts, e.Timestamp, e.Hostname, e.ProcessName, int64(e.PID), e.Message,
		); err != nil {
			return fmt.Errorf("entry insert: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// RunEntries returns up to limit stored entries of a run in input order.
func (s *Store) RunEntries(runID string, limit int) ([]model.StoredEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx()
	defer cancel()

	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, ts, raw_timestamp, hostname, process, pid, message FROM entries WHERE run_id = ? ORDER BY seq LIMIT ?`,
		runID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]model.StoredEntry, 0)
	for rows.Next() {
		var (
			e   model.StoredEntry
			seq int64
			ts  *int64
			pid int64
		)
		if err := rows.Scan(&seq, &ts, &e.Timestamp, &e.Hostname, &e.ProcessName, &pid, &e.Message); err != nil {
			log.Printf("store: scan error (RunEntries): %v", err)
			continue
		}
		e.RunID = runID
		e.Seq = int(seq)
		e.PID = uint32(pid)
		if ts != nil {
			e.Time = time.UnixMilli(*ts).UTC()
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
