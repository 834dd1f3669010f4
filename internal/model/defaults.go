package model

// Shared defaults used by the CLI, the HTTP API and the TCP ingest path.
const (
	DefaultTopKeywords = 11
	DefaultMaxLineSize = 1024 * 1024 // 1MB
)
