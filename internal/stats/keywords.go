package stats

import (
	"cmp"
	"slices"
	"strings"
	"unicode"

	"github.com/tinytelemetry/logstat/internal/model"
)

// splitWords splits s on every rune that is not alphabetic. Digits,
// punctuation and whitespace are all delimiters.
func splitWords(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool { return !isAlphabetic(r) })
}

func isAlphabetic(r rune) bool {
	return unicode.IsLetter(r) || unicode.In(r, unicode.Nl, unicode.Other_Alphabetic)
}

// RankKeywords orders counts by count descending, then keyword ascending.
func RankKeywords(counts map[string]uint32) []model.KeywordCount {
	ranked := make([]model.KeywordCount, 0, len(counts))
	for k, c := range counts {
		ranked = append(ranked, model.KeywordCount{Keyword: k, Count: c})
	}
	slices.SortFunc(ranked, func(a, b model.KeywordCount) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return strings.Compare(a.Keyword, b.Keyword)
	})
	return ranked
}

// TopKeywords returns at least the n highest ranked keywords. The list runs
// past the n-th keyword only while the count equals the n-th keyword's count,
// so a tie group at the cutoff is never split. With fewer than n distinct
// keywords all of them are returned. The result is never nil.
func TopKeywords(counts map[string]uint32, n int) []string {
	if n <= 0 {
		n = model.DefaultTopKeywords
	}
	ranked := RankKeywords(counts)

	top := make([]string, 0, min(n, len(ranked)))
	for i, kc := range ranked {
		if i >= n && kc.Count != ranked[n-1].Count {
			break
		}
		top = append(top, kc.Keyword)
	}
	return top
}

// MostFrequent returns the key with the highest count. Ties go to the
// lexicographically smallest key. An empty table yields "".
func MostFrequent(counts map[string]uint32) string {
	var (
		best      string
		bestCount uint32
	)
	for k, c := range counts {
		if c > bestCount || (c == bestCount && k < best) {
			best, bestCount = k, c
		}
	}
	return best
}
