package tagger

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

func TestAggregate(t *testing.T) {
	tokens := []string{"Dept", ".", "of", "Physics", ",", "MIT", ",", "Cambridge", ",", "MA", ",", "USA"}
	in, o, ad, co := Institution, Other, Address, Country
	labels := []Label{in, in, in, in, in, in, o, ad, ad, ad, o, co}

	got, err := Aggregate(tokens, labels)
	if err != nil {
		t.Fatal(err)
	}
	want := Entities{
		Institutions: []string{"Dept . of Physics , MIT"},
		Addresses:    []string{"Cambridge , MA"},
		Countries:    []string{"USA"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Aggregate = %+v, want %+v", got, want)
	}
}

func TestAggregateEmpty(t *testing.T) {
	got, err := Aggregate(nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if got.Institutions == nil || got.Addresses == nil || got.Countries == nil {
		t.Error("lists should be empty, not nil")
	}
	if len(got.Institutions)+len(got.Addresses)+len(got.Countries) != 0 {
		t.Errorf("Aggregate(empty) = %+v", got)
	}
}

func TestAggregateKeepsOrder(t *testing.T) {
	tokens := []string{"A", "B", ",", "C", ",", "D"}
	labels := []Label{Institution, Institution, Other, Institution, Other, Institution}
	got, err := Aggregate(tokens, labels)
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"A B", "C", "D"}; !reflect.DeepEqual(got.Institutions, want) {
		t.Errorf("Institutions = %v, want %v", got.Institutions, want)
	}
}

func TestSegmentPartitions(t *testing.T) {
	tests := [][]Label{
		{Institution},
		{Other, Other, Other},
		{Institution, Address, Institution, Country},
		{Country, Country, Other, Address, Address, Address},
	}
	for _, labels := range tests {
		tokens := make([]string, len(labels))
		for i := range tokens {
			tokens[i] = strings.Repeat("x", i+1)
		}
		spans, err := Segment(tokens, labels)
		if err != nil {
			t.Fatal(err)
		}
		next := 0
		for i, s := range spans {
			if s.Start != next || s.End <= s.Start {
				t.Fatalf("%v: span %d covers [%d,%d), want start %d", labels, i, s.Start, s.End, next)
			}
			if s.Text != strings.Join(tokens[s.Start:s.End], " ") {
				t.Errorf("%v: span %d text %q", labels, i, s.Text)
			}
			for j := s.Start; j < s.End; j++ {
				if labels[j] != s.Label {
					t.Errorf("%v: token %d label %s inside %s span", labels, j, labels[j], s.Label)
				}
			}
			if i > 0 && spans[i-1].Label == s.Label {
				t.Errorf("%v: adjacent spans %d and %d share a label", labels, i-1, i)
			}
			next = s.End
		}
		if next != len(tokens) {
			t.Errorf("%v: spans end at %d, want %d", labels, next, len(tokens))
		}
	}
}

func TestSegmentLengthMismatch(t *testing.T) {
	_, err := Segment([]string{"a", "b"}, []Label{Other})
	if !errors.Is(err, ErrLengthMismatch) {
		t.Errorf("err = %v, want ErrLengthMismatch", err)
	}
}

func TestParseLabel(t *testing.T) {
	tests := map[string]Label{
		"INSTITUTION": Institution,
		"address":     Address,
		" Country ":   Country,
		"O":           Other,
		"OTHER":       Other,
	}
	for in, want := range tests {
		got, err := ParseLabel(in)
		if err != nil || got != want {
			t.Errorf("ParseLabel(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := ParseLabel("PERSON"); err == nil {
		t.Error("expected error for unknown label")
	}
}
