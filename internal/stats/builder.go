// Package stats folds parsed log entries into frequency tables and derives
// the ranked summary fields of model.LogStats.
package stats

import (
	"errors"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/tinytelemetry/logstat/internal/model"
	"github.com/tinytelemetry/logstat/internal/stopwords"
)

// ErrFinalized is the panic value raised when a Builder is used after Finalize.
var ErrFinalized = errors.New("stats: builder already finalized")

// Option configures a Builder.
type Option func(*Builder)

// WithTopKeywords sets the minimum number of keywords kept by Finalize.
// Non-positive values are ignored.
func WithTopKeywords(n int) Option {
	return func(b *Builder) {
		if n > 0 {
			b.topN = n
		}
	}
}

// Builder accumulates per-process, per-host and keyword counts.
//
// A Builder has a single writer and is not safe for concurrent use. It is
// consumed by Finalize; any later call panics with ErrFinalized.
type Builder struct {
	stopwords stopwords.Set
	lower     cases.Caser
	topN      int

	totalEntries int
	byProcess    map[string]uint32
	byHostname   map[string]uint32
	keywordCount map[string]uint32

	finalized bool
}

// NewBuilder creates an empty Builder. set is consulted for every keyword;
// a nil set excludes nothing.
func NewBuilder(set stopwords.Set, opts ...Option) *Builder {
	b := &Builder{
		stopwords:    set,
		lower:        cases.Lower(language.Und),
		topN:         model.DefaultTopKeywords,
		byProcess:    make(map[string]uint32),
		byHostname:   make(map[string]uint32),
		keywordCount: make(map[string]uint32),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Add counts one entry.
func (b *Builder) Add(entry model.LogEntry) {
	b.checkOpen()

	b.totalEntries++
	b.byProcess[entry.ProcessName]++
	b.byHostname[entry.Hostname]++

	for _, token := range splitWords(entry.Message) {
		keyword := b.lower.String(token)
		if keyword == "" {
			continue
		}
		if b.stopwords != nil && b.stopwords.Contains(keyword) {
			continue
		}
		b.keywordCount[keyword]++
	}
}

// TotalEntries returns the number of entries added so far.
func (b *Builder) TotalEntries() int {
	b.checkOpen()
	return b.totalEntries
}

// KeywordCount returns the running count for keyword.
func (b *Builder) KeywordCount(keyword string) uint32 {
	b.checkOpen()
	return b.keywordCount[keyword]
}

// Finalize computes the derived fields and hands the accumulated tables over
// to the returned LogStats. The Builder cannot be used afterwards.
func (b *Builder) Finalize() *model.LogStats {
	b.checkOpen()
	b.finalized = true

	stats := &model.LogStats{
		TotalEntries:         b.totalEntries,
		ByProcess:            b.byProcess,
		ByHostname:           b.byHostname,
		MostFrequentProcess:  MostFrequent(b.byProcess),
		MostFrequentHostname: MostFrequent(b.byHostname),
		TopKeywords:          TopKeywords(b.keywordCount, b.topN),
	}

	b.byProcess = nil
	b.byHostname = nil
	b.keywordCount = nil
	b.stopwords = nil
	return stats
}

func (b *Builder) checkOpen() {
	if b.finalized {
		panic(ErrFinalized)
	}
}
