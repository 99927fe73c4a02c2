package tagger

import (
	"strings"

	"github.com/adambuttrick/affil/internal/textutil"
)

// Dictionary is an immutable set of lowercase entries. The zero value is
// an empty dictionary. It is safe for concurrent reads.
type Dictionary struct {
	set map[string]struct{}
}

// NewDictionary builds a dictionary from raw lines. Each entry is trimmed
// and lowercased; blank entries are dropped.
func NewDictionary(entries []string) Dictionary {
	set := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		set[textutil.Lower(e)] = struct{}{}
	}
	return Dictionary{set: set}
}

// Contains reports whether word, compared case-insensitively, is in d.
func (d Dictionary) Contains(word string) bool {
	_, ok := d.set[textutil.Lower(word)]
	return ok
}

// Len returns the number of entries.
func (d Dictionary) Len() int { return len(d.set) }

// Dictionaries groups the three lookup sets used by feature extraction.
type Dictionaries struct {
	Countries    Dictionary
	Institutions Dictionary
	Addresses    Dictionary
}
