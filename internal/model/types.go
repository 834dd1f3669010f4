package model

import "time"

// LogEntry is one parsed syslog record.
// Timestamp, Hostname and ProcessName may be empty; see logparse.ParseLine.
type LogEntry struct {
	Timestamp   string // "<month> <day> <time>", no year
	Hostname    string
	ProcessName string
	PID         uint32
	Message     string
}

// LogStats is the finalized summary of one analysis run.
// Field names are part of the summary file format and must not change.
type LogStats struct {
	TotalEntries         int               `json:"total_entries"`
	ByProcess            map[string]uint32 `json:"by_process"`
	ByHostname           map[string]uint32 `json:"by_hostname"`
	MostFrequentProcess  string            `json:"most_frequent_process"`
	MostFrequentHostname string            `json:"most_frequent_hostname"`
	TopKeywords          []string          `json:"top_keywords"`
}

// Run describes one persisted analysis.
type Run struct {
	ID           string    `json:"id"`
	Source       string    `json:"source"`
	Digest       string    `json:"digest"` // xxhash64 of the consumed input, hex
	Bytes        int64     `json:"bytes"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
	TotalEntries int       `json:"total_entries"`
}

// StoredEntry is a LogEntry tagged with the run it belongs to.
type StoredEntry struct {
	RunID string
	Seq   int       // 1-based record index within the run
	Time  time.Time // zero when the timestamp could not be resolved
	LogEntry
}

// KeywordCount is a keyword and its occurrence count.
type KeywordCount struct {
	Keyword string
	Count   uint32
}

// DimensionCount is a value of a dimension (process, hostname) and its total
// count across stored runs.
type DimensionCount struct {
	Value string `json:"value"`
	Count int64  `json:"count"`
}

// Column describes one column of a store table.
type Column struct {
	Name string `json:"column"`
	Type string `json:"type"`
}
