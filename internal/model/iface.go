package model

import "time"

// RunWriter persists finalized runs.
type RunWriter interface {
	SaveRun(run Run, stats *LogStats) error
	DeleteRun(id string) error
}

// EntryWriter provides append-oriented writes for parsed entries.
type EntryWriter interface {
	InsertEntryBatch(entries []StoredEntry) error
}

// RunReader provides read-only access to persisted runs.
type RunReader interface {
	GetRun(id string) (*Run, error)
	GetRunStats(id string) (*LogStats, error)
	ListRuns(limit int) ([]Run, error)
	RunByDigest(digest string) (*Run, error)
	TotalRunCount() (int64, error)
	TotalEntryCount() (int64, error)
	TopProcesses(limit int) ([]DimensionCount, error)
	TopHostnames(limit int) ([]DimensionCount, error)
}

// SchemaQuerier provides schema introspection and arbitrary read-only queries.
type SchemaQuerier interface {
	ExecuteQuery(query string) ([]map[string]interface{}, error)
	GetSchemaDescription() string
	TableRowCounts() (map[string]int64, error)
	TableColumns() (map[string][]Column, error)
}

// RunPruner deletes runs that finished before a cutoff.
type RunPruner interface {
	DeleteBefore(cutoff time.Time) (int64, error)
}

// ReadAPI is the unified read contract for the HTTP surface.
type ReadAPI interface {
	RunReader
	SchemaQuerier
}
