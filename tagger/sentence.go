package tagger

import "fmt"

// TaggedSentence is an ordered sequence of (token, label) pairs.
type TaggedSentence struct {
	Tokens []string `json:"tokens"`
	Labels []Label  `json:"labels"`
}

// Append adds tokens, all carrying label.
func (s *TaggedSentence) Append(label Label, tokens ...string) {
	for _, tok := range tokens {
		s.Tokens = append(s.Tokens, tok)
		s.Labels = append(s.Labels, label)
	}
}

// Len returns the number of tokens.
func (s TaggedSentence) Len() int { return len(s.Tokens) }

// Validate checks that every token has exactly one known label.
func (s TaggedSentence) Validate() error {
	if len(s.Tokens) != len(s.Labels) {
		return fmt.Errorf("%w: %d tokens, %d labels", ErrLengthMismatch, len(s.Tokens), len(s.Labels))
	}
	for i, l := range s.Labels {
		if !l.Valid() {
			return fmt.Errorf("tagger: token %d (%q) has unknown label %q", i, s.Tokens[i], l)
		}
	}
	return nil
}
