package tagger

import (
	"github.com/adambuttrick/affil/crf"
	"github.com/adambuttrick/affil/internal/textutil"
)

// SchemaVersion identifies the feature names produced by Extract. Models
// persisted under a different version are rejected on load.
const SchemaVersion = 1

// TokenFeatures are the shape and dictionary facts about one token. They
// are emitted for the current token and for each neighbour in the window.
type TokenFeatures struct {
	Lower         string
	IsDigit       bool
	IsUpper       bool
	IsLower       bool
	IsTitle       bool
	IsCountry     bool
	IsInstitution bool
	IsAddress     bool
}

func tokenFeatures(word string, dicts Dictionaries) TokenFeatures {
	lower := textutil.Lower(word)
	return TokenFeatures{
		Lower:         lower,
		IsDigit:       textutil.IsDigits(word),
		IsUpper:       textutil.IsUpper(word),
		IsLower:       textutil.IsLower(word),
		IsTitle:       textutil.IsTitle(word),
		IsCountry:     dicts.Countries.Contains(lower),
		IsInstitution: dicts.Institutions.Contains(lower),
		IsAddress:     dicts.Addresses.Contains(lower),
	}
}

func (f TokenFeatures) put(m map[string]any, prefix string) {
	m[prefix+"word.lower()"] = f.Lower
	m[prefix+"word.isdigit()"] = f.IsDigit
	m[prefix+"word.isupper()"] = f.IsUpper
	m[prefix+"word.islower()"] = f.IsLower
	m[prefix+"word.istitle()"] = f.IsTitle
	m[prefix+"word.iscountry()"] = f.IsCountry
	m[prefix+"word.isinstitution()"] = f.IsInstitution
	m[prefix+"word.isaddress()"] = f.IsAddress
}

// Features is the feature record for one token position: the token itself,
// up to two neighbours on each side, and the sequence boundary markers.
// A nil neighbour is outside the sequence.
type Features struct {
	Word       TokenFeatures
	StartUpper bool

	Prev2, Prev1 *TokenFeatures
	Next1, Next2 *TokenFeatures

	BOS bool // i == 0, replaces the -1 block
	EOS bool // i == len-1, replaces the +1 block
}

// Extract returns the features of tokens[i]. It depends only on the token
// texts and the dictionaries, never on labels.
func Extract(tokens []string, i int, dicts Dictionaries) Features {
	word := tokens[i]
	f := Features{
		Word:       tokenFeatures(word, dicts),
		StartUpper: textutil.StartsUpper(word),
	}
	neighbour := func(j int) *TokenFeatures {
		tf := tokenFeatures(tokens[j], dicts)
		return &tf
	}

	if i > 0 {
		f.Prev1 = neighbour(i - 1)
	} else {
		f.BOS = true
	}
	if i > 1 {
		f.Prev2 = neighbour(i - 2)
	}
	if i < len(tokens)-1 {
		f.Next1 = neighbour(i + 1)
	} else {
		f.EOS = true
	}
	if i < len(tokens)-2 {
		f.Next2 = neighbour(i + 2)
	}
	return f
}

// SentenceFeatures extracts features for every position of tokens.
func SentenceFeatures(tokens []string, dicts Dictionaries) []Features {
	feats := make([]Features, len(tokens))
	for i := range tokens {
		feats[i] = Extract(tokens, i, dicts)
	}
	return feats
}

// Map returns the features as a name to value mapping, using the names the
// model was trained with.
func (f Features) Map() map[string]any {
	m := map[string]any{
		"bias":              1.0,
		"word.isnumber()":   f.Word.IsDigit,
		"word.allupper()":   f.Word.IsUpper,
		"word.alllower()":   f.Word.IsLower,
		"word.startupper()": f.StartUpper,
	}
	f.Word.put(m, "")

	if f.Prev1 != nil {
		f.Prev1.put(m, "-1:")
	}
	if f.BOS {
		m["BOS"] = true
	}
	if f.Prev2 != nil {
		f.Prev2.put(m, "-2:")
	}
	if f.Next1 != nil {
		f.Next1.put(m, "+1:")
	}
	if f.EOS {
		m["EOS"] = true
	}
	if f.Next2 != nil {
		f.Next2.put(m, "+2:")
	}
	return m
}

// Attributes converts the features to weighted CRF attributes.
func (f Features) Attributes() map[string]float64 {
	return crf.FeaturesToAttributes(f.Map())
}

// SentenceAttributes extracts CRF attributes for every position of tokens.
func SentenceAttributes(tokens []string, dicts Dictionaries) []map[string]float64 {
	attrs := make([]map[string]float64, len(tokens))
	for i, f := range SentenceFeatures(tokens, dicts) {
		attrs[i] = f.Attributes()
	}
	return attrs
}
