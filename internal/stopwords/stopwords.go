// Package stopwords provides the stopword sets used by keyword counting.
package stopwords

import (
	"bufio"
	_ "embed"
	"strings"
	"sync"
)

//go:embed english.txt
var englishText string

// Set is a membership test over lowercase words.
type Set interface {
	Contains(word string) bool
}

// List is a Set backed by a map. Words are stored lowercased.
type List map[string]struct{}

// New builds a List from words, lowercasing and trimming each one.
// Blank words are ignored.
func New(words ...string) List {
	l := make(List, len(words))
	for _, w := range words {
		l.add(w)
	}
	return l
}

// Contains reports whether word is in the list.
func (l List) Contains(word string) bool {
	_, ok := l[word]
	return ok
}

// Len returns the number of words in the list.
func (l List) Len() int { return len(l) }

func (l List) add(word string) {
	word = strings.ToLower(strings.TrimSpace(word))
	if word == "" {
		return
	}
	l[word] = struct{}{}
}

var english = sync.OnceValue(func() List {
	return parseText(englishText)
})

// English returns the NLTK English stopword list. The list is built once and
// shared; callers must not modify it.
func English() List {
	return english()
}

// Union returns a Set that contains a word when any of sets does.
// Nil sets are skipped.
func Union(sets ...Set) Set {
	out := make(union, 0, len(sets))
	for _, s := range sets {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

type union []Set

func (u union) Contains(word string) bool {
	for _, s := range u {
		if s.Contains(word) {
			return true
		}
	}
	return false
}

// parseText reads one word per line. Blank lines and lines starting with '#'
// are ignored.
func parseText(text string) List {
	l := make(List)
	scanner := bufio.NewScanner(strings.NewReader(text))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		l.add(line)
	}
	return l
}
