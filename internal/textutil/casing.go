package textutil

import (
	"unicode"
	"unicode/utf8"
)

// The predicates below follow Python's str methods, which the feature
// schema was defined against. A rune is "cased" when it is upper, lower
// or title case.

// IsDigits reports whether s is non-empty and every rune is a decimal digit.
func IsDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// IsUpper reports whether s has at least one cased rune and all cased runes are upper case.
func IsUpper(s string) bool {
	cased := false
	for _, r := range s {
		switch {
		case unicode.IsLower(r), unicode.IsTitle(r):
			return false
		case unicode.IsUpper(r):
			cased = true
		}
	}
	return cased
}

// IsLower reports whether s has at least one cased rune and all cased runes are lower case.
func IsLower(s string) bool {
	cased := false
	for _, r := range s {
		switch {
		case unicode.IsUpper(r), unicode.IsTitle(r):
			return false
		case unicode.IsLower(r):
			cased = true
		}
	}
	return cased
}

// IsTitle reports whether s is title cased: upper and title case runes
// only follow uncased runes, lower case runes only follow cased runes.
func IsTitle(s string) bool {
	cased, prevCased := false, false
	for _, r := range s {
		switch {
		case unicode.IsUpper(r), unicode.IsTitle(r):
			if prevCased {
				return false
			}
			prevCased, cased = true, true
		case unicode.IsLower(r):
			if !prevCased {
				return false
			}
			prevCased, cased = true, true
		default:
			prevCased = false
		}
	}
	return cased
}

// StartsUpper reports whether s has more than one rune, starts with an
// upper case rune and the remainder is lower case.
func StartsUpper(s string) bool {
	if utf8.RuneCountInString(s) < 2 {
		return false
	}
	first, size := utf8.DecodeRuneInString(s)
	return unicode.IsUpper(first) && IsLower(s[size:])
}
