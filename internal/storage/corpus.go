package storage

import (
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/adambuttrick/affil/internal/textutil"
	"github.com/adambuttrick/affil/tagger"
)

// CorpusOptions controls how the training corpus is read.
type CorpusOptions struct {
	// DropDuplicates skips affiliations whose token/label sequence was
	// already seen.
	DropDuplicates bool
}

var tagLabels = map[string]tagger.Label{
	"institution": tagger.Institution,
	"addr-line":   tagger.Address,
	"country":     tagger.Country,
}

// separator is inserted between sibling elements of one affiliation.
const separator = ","

// ReadCorpus reads a tagged affiliation corpus from an XML file.
func ReadCorpus(path string, opts CorpusOptions) ([]tagger.TaggedSentence, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIO, err)
	}
	defer f.Close()

	sentences, err := ParseCorpus(f, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return sentences, nil
}

// ParseCorpus reads a tagged affiliation corpus. Each <aff> child of the
// root element becomes one sentence: the leading text of each child element
// is tokenized and labelled by the element's tag, and a "," token labelled
// O follows every element but the last. Affiliations without tokens are
// dropped.
func ParseCorpus(r io.Reader, opts CorpusOptions) ([]tagger.TaggedSentence, error) {
	d := xml.NewDecoder(r)
	var (
		sentences []tagger.TaggedSentence
		seen      map[uint64]bool
		depth     int
		sawRoot   bool
		skipped   int
	)
	if opts.DropDuplicates {
		seen = make(map[uint64]bool)
	}

	for {
		tok, err := d.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: parse corpus: %w", ErrIO, err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			sawRoot = true
			if depth != 2 || t.Name.Local != "aff" {
				continue
			}
			children, err := readAffiliation(d)
			if err != nil {
				return nil, fmt.Errorf("%w: parse corpus: %w", ErrIO, err)
			}
			depth--
			s := buildSentence(children)
			if s.Len() == 0 {
				continue
			}
			if seen != nil {
				h := sentenceHash(s)
				if seen[h] {
					skipped++
					continue
				}
				seen[h] = true
			}
			sentences = append(sentences, s)
		case xml.EndElement:
			depth--
		}
	}
	if !sawRoot {
		return nil, fmt.Errorf("%w: parse corpus: no root element", ErrIO)
	}
	slog.Debug("Read corpus", "affiliations", len(sentences), "duplicates", skipped)
	return sentences, nil
}

type element struct {
	tag  string
	text string // leading text, before any nested element
}

// readAffiliation consumes tokens up to and including the end of the
// current <aff> element and returns its direct children.
func readAffiliation(d *xml.Decoder) ([]element, error) {
	var (
		children []element
		depth    int
		leading  bool
		buf      strings.Builder
	)
	for {
		tok, err := d.Token()
		if err == io.EOF {
			return nil, io.ErrUnexpectedEOF
		}
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			switch {
			case depth == 1:
				children = append(children, element{tag: t.Name.Local})
				buf.Reset()
				leading = true
			case depth == 2 && leading:
				children[len(children)-1].text = buf.String()
				leading = false
			}
		case xml.CharData:
			if depth == 1 && leading {
				buf.Write(t)
			}
		case xml.EndElement:
			if depth == 0 {
				return children, nil
			}
			if depth == 1 && leading {
				children[len(children)-1].text = buf.String()
				leading = false
			}
			depth--
		}
	}
}

func buildSentence(children []element) tagger.TaggedSentence {
	var s tagger.TaggedSentence
	for i, el := range children {
		text := strings.TrimSpace(el.text)
		if text == "" {
			continue
		}
		if label, ok := tagLabels[el.tag]; ok {
			s.Append(label, textutil.TokenizeStrings(text)...)
		}
		if i != len(children)-1 && s.Len() > 0 {
			s.Append(tagger.Other, separator)
		}
	}
	return s
}

func sentenceHash(s tagger.TaggedSentence) uint64 {
	h := xxhash.New()
	for i, tok := range s.Tokens {
		_, _ = h.WriteString(tok)
		_, _ = h.WriteString("\x00")
		_, _ = h.WriteString(string(s.Labels[i]))
		_, _ = h.WriteString("\x01")
	}
	return h.Sum64()
}

