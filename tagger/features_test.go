package tagger

import (
	"reflect"
	"strings"
	"testing"

	"github.com/adambuttrick/affil/internal/textutil"
)

func testDictionaries() Dictionaries {
	return Dictionaries{
		Countries:    NewDictionary([]string{"USA", " United Kingdom ", "uk", ""}),
		Institutions: NewDictionary([]string{"university", "Princeton", "dept", "institute"}),
		Addresses:    NewDictionary([]string{"street", "cambridge", "ma"}),
	}
}

func TestDictionary(t *testing.T) {
	d := NewDictionary([]string{"  USA ", "", "   ", "France"})
	if d.Len() != 2 {
		t.Errorf("Len = %d, want 2", d.Len())
	}
	for _, w := range []string{"usa", "USA", "Usa", "france"} {
		if !d.Contains(w) {
			t.Errorf("Contains(%q) = false, want true", w)
		}
	}
	if d.Contains("") || d.Contains("germany") {
		t.Error("unexpected membership")
	}
	var zero Dictionary
	if zero.Contains("usa") || zero.Len() != 0 {
		t.Error("zero dictionary should be empty")
	}
}

func TestExtractBoundaryMarkers(t *testing.T) {
	dicts := testDictionaries()
	tokens := textutil.TokenizeStrings("Dept. of Physics, MIT, Cambridge, MA, USA")

	first := Extract(tokens, 0, dicts).Map()
	if first["BOS"] != true {
		t.Error("first token should carry BOS")
	}
	for k := range first {
		if strings.HasPrefix(k, "-1:") || strings.HasPrefix(k, "-2:") {
			t.Errorf("first token has %q", k)
		}
	}
	if _, ok := first["EOS"]; ok {
		t.Error("first token should not carry EOS")
	}

	last := Extract(tokens, len(tokens)-1, dicts).Map()
	if last["EOS"] != true {
		t.Error("last token should carry EOS")
	}
	for k := range last {
		if strings.HasPrefix(k, "+1:") || strings.HasPrefix(k, "+2:") {
			t.Errorf("last token has %q", k)
		}
	}

	second := Extract(tokens, 1, dicts).Map()
	if second["-1:word.lower()"] != "dept" {
		t.Errorf("-1:word.lower() = %v, want dept", second["-1:word.lower()"])
	}
	if _, ok := second["-2:word.lower()"]; ok {
		t.Error("second token should have no -2 block")
	}
	if _, ok := second["BOS"]; ok {
		t.Error("second token should not carry BOS")
	}
}

func TestExtractWindow(t *testing.T) {
	dicts := testDictionaries()
	tokens := textutil.TokenizeStrings("Dept. of Physics, MIT, Cambridge, MA, USA")
	f := Extract(tokens, 5, dicts).Map() // MIT

	want := map[string]any{
		"bias":                    1.0,
		"word.lower()":            "mit",
		"word.isupper()":          true,
		"word.allupper()":         true,
		"word.islower()":          false,
		"word.startupper()":       false,
		"-2:word.lower()":         "physics",
		"-2:word.istitle()":       true,
		"-1:word.lower()":         ",",
		"+1:word.lower()":         ",",
		"+2:word.lower()":         "cambridge",
		"+2:word.isaddress()":     true,
		"+2:word.isinstitution()": false,
	}
	for k, v := range want {
		if f[k] != v {
			t.Errorf("%s = %v, want %v", k, f[k], v)
		}
	}
	// 13 current-token features plus four neighbour blocks of 8.
	if len(f) != 13+4*8 {
		t.Errorf("got %d features, want %d", len(f), 13+4*8)
	}

	usa := Extract(tokens, len(tokens)-1, dicts).Map()
	if usa["word.iscountry()"] != true {
		t.Error("USA should be a country")
	}
	if usa["-2:word.isaddress()"] != true {
		t.Error("MA should be an address keyword")
	}
}

func TestExtractSingleToken(t *testing.T) {
	f := Extract([]string{"Princeton"}, 0, testDictionaries())
	if !f.Word.IsInstitution {
		t.Error("princeton should be an institution keyword")
	}
	if !f.BOS || !f.EOS {
		t.Errorf("BOS = %v, EOS = %v; want both", f.BOS, f.EOS)
	}
	if f.Prev1 != nil || f.Prev2 != nil || f.Next1 != nil || f.Next2 != nil {
		t.Error("single token should have no neighbours")
	}

	attrs := f.Attributes()
	want := map[string]float64{
		"bias":                   1,
		"word.lower()=princeton": 1,
		"word.istitle()":         1,
		"word.startupper()":      1,
		"word.isinstitution()":   1,
		"BOS":                    1,
		"EOS":                    1,
	}
	if !reflect.DeepEqual(attrs, want) {
		t.Errorf("Attributes = %v, want %v", attrs, want)
	}
}

func TestExtractDeterministic(t *testing.T) {
	dicts := testDictionaries()
	tokens := textutil.TokenizeStrings("Institute of Physics, 12 Main Street, London, UK")
	a := SentenceFeatures(tokens, dicts)
	b := SentenceFeatures(tokens, dicts)
	if !reflect.DeepEqual(a, b) {
		t.Error("feature extraction is not deterministic")
	}
	if len(a) != len(tokens) {
		t.Fatalf("got %d feature records, want %d", len(a), len(tokens))
	}
}

func TestShapeFeatures(t *testing.T) {
	dicts := Dictionaries{}
	tests := []struct {
		word                                   string
		digit, upper, lower, title, startUpper bool
	}{
		{"12345", true, false, false, false, false},
		{"MIT", false, true, false, false, false},
		{"physics", false, false, true, false, false},
		{"Physics", false, false, false, true, true},
		{"P", false, true, false, true, false},
		{",", false, false, false, false, false},
	}
	for _, tt := range tests {
		f := Extract([]string{tt.word}, 0, dicts)
		got := []bool{f.Word.IsDigit, f.Word.IsUpper, f.Word.IsLower, f.Word.IsTitle, f.StartUpper}
		want := []bool{tt.digit, tt.upper, tt.lower, tt.title, tt.startUpper}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("%q: digit/upper/lower/title/startupper = %v, want %v", tt.word, got, want)
		}
		m := f.Map()
		if m["word.isnumber()"] != m["word.isdigit()"] || m["word.allupper()"] != m["word.isupper()"] || m["word.alllower()"] != m["word.islower()"] {
			t.Errorf("%q: duplicate features disagree", tt.word)
		}
	}
}
