package textutil

import (
	"reflect"
	"strings"
	"testing"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		input string
		want  []string
	}{
		{"", []string{}},
		{"   ", []string{}},
		{"Dept. of Physics, MIT, Cambridge, MA, USA", []string{"Dept", ".", "of", "Physics", ",", "MIT", ",", "Cambridge", ",", "MA", ",", "USA"}},
		{"Room 101B", []string{"Room", "101", "B"}},
		{"Université de Montréal", []string{"Université", "de", "Montréal"}},
		{"école", []string{"école"}},
		{"São Paulo-SP", []string{"São", "Paulo", "-", "SP"}},
		{"北京大学", []string{"北京大学"}},
		{"a_b", []string{"a", "_", "b"}},
		{"(CNRS)", []string{"(", "CNRS", ")"}},
		{"٣٤ Street", []string{"٣٤", "Street"}},
	}
	for _, tt := range tests {
		got := TokenizeStrings(tt.input)
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("Tokenize(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestTokenizeKinds(t *testing.T) {
	tokens := Tokenize("MIT 02139 !")
	want := []Kind{Letters, Digits, Symbol}
	if len(tokens) != len(want) {
		t.Fatalf("got %d tokens, want %d", len(tokens), len(want))
	}
	for i, tok := range tokens {
		if tok.Kind != want[i] {
			t.Errorf("token %d (%q) kind = %v, want %v", i, tok.Text, tok.Kind, want[i])
		}
	}
}

func TestTokenizeOffsetsRoundTrip(t *testing.T) {
	inputs := []string{
		"Dept. of Physics, MIT, Cambridge, MA, USA",
		"  Institut   Pasteur,\tParis\n France ",
		"Zürich (ETH)",
	}
	for _, input := range inputs {
		tokens := Tokenize(input)
		var b strings.Builder
		last := 0
		for _, tok := range tokens {
			if gap := input[last:tok.Start]; strings.TrimSpace(gap) != "" {
				t.Errorf("%q: non-space gap %q before %q", input, gap, tok.Text)
			}
			if input[tok.Start:tok.End] != tok.Text {
				t.Errorf("%q: offsets [%d,%d) do not cover %q", input, tok.Start, tok.End, tok.Text)
			}
			b.WriteString(input[last:tok.End])
			last = tok.End
		}
		b.WriteString(input[last:])
		if b.String() != input {
			t.Errorf("reconstructed %q, want %q", b.String(), input)
		}
		if strings.Join(strings.Fields(input), "") != strings.Join(Texts(tokens), "") {
			t.Errorf("%q: tokens do not cover all non-space text", input)
		}
	}
}

func TestTokenizeIsPure(t *testing.T) {
	a := TokenizeStrings("Harvard Medical School, Boston")
	b := TokenizeStrings("Harvard Medical School, Boston")
	if !reflect.DeepEqual(a, b) {
		t.Errorf("repeated calls differ: %v vs %v", a, b)
	}
}

func TestLower(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"MIT", "mit"},
		{"ΟΔΟΣ", "οδος"},
		{"123", "123"},
	}
	for _, tt := range tests {
		if got := Lower(tt.input); got != tt.want {
			t.Errorf("Lower(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestNormalizePunctuation(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"Dept . of Physics , MIT", "Dept. of Physics, MIT"},
		{"Univ  of   Oxford", "Univ of Oxford"},
		{"U . S . A", "U.S. A"},
		{"É . U . A", "É.U. A"},
		{"Univ . de Montréal", "Univ. de Montréal"},
		{"Inst . U . S . Army", "Inst. U.S. Army"},
		{"École . U . S .", "École. U.S."},
		{"King ' s College", "King' s College"},
		{"Hello !", "Hello!"},
		{"  MIT  ", "MIT"},
		{"", ""},
		{"Harvard", "Harvard"},
	}
	for _, tt := range tests {
		if got := NormalizePunctuation(tt.input); got != tt.want {
			t.Errorf("NormalizePunctuation(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestNormalizeWhitespaces(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"hello\nworld", "hello world"},
		{"hello\r\nworld", "hello world"},
		{"a  b   c", "a b c"},
	}
	for _, tt := range tests {
		got := NormalizeWhitespaces(tt.input)
		if got != tt.want {
			t.Errorf("NormalizeWhitespaces(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
