// Package textutil provides tokenization and text normalization for affiliation strings.
package textutil

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Kind classifies a token.
type Kind int

const (
	Letters Kind = iota // maximal run of letters
	Digits              // maximal run of decimal digits
	Symbol              // single character that is neither letter, digit nor space
)

func (k Kind) String() string {
	switch k {
	case Letters:
		return "letters"
	case Digits:
		return "digits"
	default:
		return "symbol"
	}
}

// Token is a substring of the input with its byte offsets.
type Token struct {
	Text  string
	Kind  Kind
	Start int // byte offset of the first byte
	End   int // byte offset one past the last byte
}

// Tokenize splits text into letter runs, digit runs and single symbol
// characters. Whitespace separates tokens and is never emitted.
// Combining marks continue a letter run so that decomposed accents stay
// attached to their base letter.
func Tokenize(text string) []Token {
	var tokens []Token
	i := 0
	for i < len(text) {
		r, size := utf8.DecodeRuneInString(text[i:])
		switch {
		case unicode.IsSpace(r):
			i += size
		case unicode.IsLetter(r):
			j := i + size
			for j < len(text) {
				nr, nsize := utf8.DecodeRuneInString(text[j:])
				if !unicode.IsLetter(nr) && !unicode.Is(unicode.M, nr) {
					break
				}
				j += nsize
			}
			tokens = append(tokens, Token{Text: text[i:j], Kind: Letters, Start: i, End: j})
			i = j
		case unicode.IsDigit(r):
			j := i + size
			for j < len(text) {
				nr, nsize := utf8.DecodeRuneInString(text[j:])
				if !unicode.IsDigit(nr) {
					break
				}
				j += nsize
			}
			tokens = append(tokens, Token{Text: text[i:j], Kind: Digits, Start: i, End: j})
			i = j
		default:
			tokens = append(tokens, Token{Text: text[i : i+size], Kind: Symbol, Start: i, End: i + size})
			i += size
		}
	}
	return tokens
}

// Texts returns the token strings in order.
func Texts(tokens []Token) []string {
	out := make([]string, len(tokens))
	for i, t := range tokens {
		out[i] = t.Text
	}
	return out
}

// TokenizeStrings is Tokenize followed by Texts.
func TokenizeStrings(text string) []string {
	return Texts(Tokenize(text))
}

// Lower applies full Unicode lowercasing, including context-sensitive
// mappings such as the final sigma.
func Lower(s string) string {
	// A Caser is stateful and must not be shared between goroutines.
	return cases.Lower(language.Und).String(s)
}

var (
	newlineRe    = regexp.MustCompile(`[\n\r]`)
	multiSpaceRe = regexp.MustCompile(`\s{2,}`)
)

// NormalizeWhitespaces replaces newlines and multiple whitespace with a single space.
func NormalizeWhitespaces(text string) string {
	text = newlineRe.ReplaceAllString(text, " ")
	return multiSpaceRe.ReplaceAllString(text, " ")
}

// punctRe alternatives, tried leftmost-first:
//  1. spaced abbreviation such as "U . S ." or "É . U ."
//  2. punctuation with optional surrounding spaces
//  3. a free-standing apostrophe preceded by a space
//  4. any other whitespace run
//
// RE2's \w and \b are ASCII only, so word characters are spelled out and
// the word-start condition of alternative 1 is checked in NormalizePunctuation.
var punctRe = regexp.MustCompile(`([\pL\pN_])\s*\.\s*([\pL\pN_])\s*\.\s*|\s*([.,!?])\s*|\s+'(\s)|\s+`)

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsNumber(r)
}

// NormalizePunctuation tidies text built by joining tokens with spaces:
// "Dept . of Physics , MIT" becomes "Dept. of Physics, MIT".
func NormalizePunctuation(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	last, pos := 0, 0
	for pos < len(text) {
		m := punctRe.FindStringSubmatchIndex(text[pos:])
		if m == nil {
			break
		}
		for i := range m {
			if m[i] >= 0 {
				m[i] += pos
			}
		}
		if m[2] >= 0 && m[0] > 0 {
			// An abbreviation must start a word; otherwise skip its first rune.
			if r, _ := utf8.DecodeLastRuneInString(text[:m[0]]); isWordRune(r) {
				_, size := utf8.DecodeRuneInString(text[m[0]:])
				pos = m[0] + size
				continue
			}
		}
		b.WriteString(text[last:m[0]])
		switch {
		case m[2] >= 0:
			b.WriteString(text[m[2]:m[3]])
			b.WriteByte('.')
			b.WriteString(text[m[4]:m[5]])
			b.WriteString(". ")
		case m[6] >= 0:
			b.WriteString(text[m[6]:m[7]])
			b.WriteByte(' ')
		case m[8] >= 0:
			b.WriteString("' ")
		default:
			b.WriteByte(' ')
		}
		last, pos = m[1], m[1]
	}
	b.WriteString(text[last:])
	return strings.TrimSpace(multiSpaceRe.ReplaceAllString(b.String(), " "))
}
