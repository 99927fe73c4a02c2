package tagger

import (
	"errors"
	"fmt"
	"strings"
)

// ErrLengthMismatch is returned when tokens and labels differ in length.
var ErrLengthMismatch = errors.New("tagger: tokens and labels differ in length")

// Span is a maximal run of consecutive tokens sharing one label.
// Tokens[Start:End] produced it.
type Span struct {
	Label Label  `json:"label"`
	Text  string `json:"text"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}

// Entities groups span texts by entity class, in input order.
type Entities struct {
	Institutions []string `json:"institutions"`
	Addresses    []string `json:"addresses"`
	Countries    []string `json:"countries"`
}

// NewEntities returns an Entities value with empty, non-nil lists.
func NewEntities() Entities {
	return Entities{
		Institutions: []string{},
		Addresses:    []string{},
		Countries:    []string{},
	}
}

// Segment collapses a token/label sequence into spans. Span texts are the
// tokens joined by a single space. The spans partition the input.
func Segment(tokens []string, labels []Label) ([]Span, error) {
	if len(tokens) != len(labels) {
		return nil, fmt.Errorf("%w: %d tokens, %d labels", ErrLengthMismatch, len(tokens), len(labels))
	}
	spans := []Span{}
	start := 0
	for i := 1; i <= len(tokens); i++ {
		if i < len(tokens) && labels[i] == labels[start] {
			continue
		}
		spans = append(spans, Span{
			Label: labels[start],
			Text:  strings.Join(tokens[start:i], " "),
			Start: start,
			End:   i,
		})
		start = i
	}
	return spans, nil
}

// Group sorts spans into entity lists. Other spans are dropped.
func Group(spans []Span) Entities {
	e := NewEntities()
	for _, s := range spans {
		switch s.Label {
		case Institution:
			e.Institutions = append(e.Institutions, s.Text)
		case Address:
			e.Addresses = append(e.Addresses, s.Text)
		case Country:
			e.Countries = append(e.Countries, s.Text)
		}
	}
	return e
}

// Aggregate segments the sequence and groups the spans. Empty input gives
// three empty lists.
func Aggregate(tokens []string, labels []Label) (Entities, error) {
	spans, err := Segment(tokens, labels)
	if err != nil {
		return Entities{}, err
	}
	return Group(spans), nil
}
