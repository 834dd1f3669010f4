package store

import (
	"sync"
	"testing"
	"time"
)

func TestRetentionCleaner_StopIsIdempotent(t *testing.T) {
	store := newTestStore(t, DriverSQLite)
	cleaner := NewRetentionCleaner(store, RetentionConfig{RetentionDays: 1})
	if cleaner == nil {
		t.Fatal("expected non-nil retention cleaner")
	}

	cleaner.Stop()
	cleaner.Stop()
}

func TestRetentionCleaner_Disabled(t *testing.T) {
	cleaner := NewRetentionCleaner(newTestStore(t, DriverSQLite), RetentionConfig{RetentionDays: 0})
	if cleaner != nil {
		t.Fatal("expected nil cleaner when retention is disabled")
	}
	cleaner.Stop()
}

func TestRetentionCleaner_StartupCleanup(t *testing.T) {
	store := newTestStore(t, DriverSQLite)
	saveRun(t, store, sampleRun("expired", time.Now().Add(-10*24*time.Hour)), sampleStats())
	saveRun(t, store, sampleRun("recent", time.Now()), sampleStats())

	cleaner := NewRetentionCleaner(store, RetentionConfig{RetentionDays: 7})
	defer cleaner.Stop()

	total, err := store.TotalRunCount()
	if err != nil {
		t.Fatalf("TotalRunCount: %v", err)
	}
	if total != 1 {
		t.Errorf("TotalRunCount after startup cleanup = %d, want 1", total)
	}
}

type countingPruner struct {
	mu     sync.Mutex
	calls  int
	cutoff time.Time
}

func (p *countingPruner) DeleteBefore(cutoff time.Time) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	p.cutoff = cutoff
	return 0, nil
}

func (p *countingPruner) snapshot() (int, time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls, p.cutoff
}

func TestRetentionCleaner_Ticks(t *testing.T) {
	p := &countingPruner{}
	cleaner := NewRetentionCleaner(p, RetentionConfig{RetentionDays: 2, Interval: 10 * time.Millisecond})
	defer cleaner.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for {
		calls, cutoff := p.snapshot()
		if calls >= 3 {
			age := time.Since(cutoff)
			if age < 47*time.Hour || age > 49*time.Hour {
				t.Errorf("cutoff age = %v, want about 48h", age)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("cleanup ran %d times, want at least 3", calls)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
