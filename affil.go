// Package affil extracts institutions, addresses and countries from
// free-text academic affiliation strings.
//
// It tokenizes the string, labels each token with a linear-chain CRF and
// groups consecutive tokens with the same label into entities.
//
//	dicts, _ := affil.LoadDictionaries("data/countries.txt", "data/institution_keywords.txt", "data/address_keywords.txt")
//	p, _ := affil.Load("model/affiliation_parser_crf_model.json", dicts)
//	e, _ := p.Parse("Dept. of Physics, MIT, Cambridge, MA, USA")
//	fmt.Println(e.Institutions) // ["Dept . of Physics , MIT"]
//	fmt.Println(e.Countries)    // ["USA"]
package affil

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"github.com/adambuttrick/affil/internal/storage"
	"github.com/adambuttrick/affil/internal/textutil"
	"github.com/adambuttrick/affil/tagger"
)

// Parser runs the affiliation pipeline with a trained model and a fixed
// set of dictionaries. It is safe for concurrent use.
type Parser struct {
	model *tagger.Model
	dicts tagger.Dictionaries
}

// New creates a Parser from a trained model.
func New(model *tagger.Model, dicts tagger.Dictionaries) (*Parser, error) {
	if model == nil {
		return nil, fmt.Errorf("affil: %w: nil model", ErrInference)
	}
	return &Parser{model: model, dicts: dicts}, nil
}

// Load loads a trained model from path.
func Load(path string, dicts tagger.Dictionaries) (*Parser, error) {
	m, err := tagger.Load(path)
	if err != nil {
		return nil, fmt.Errorf("affil: %w", err)
	}
	return &Parser{model: m, dicts: dicts}, nil
}

// LoadDictionaries reads the three dictionary files.
func LoadDictionaries(countries, institutions, addresses string) (tagger.Dictionaries, error) {
	dicts, err := storage.LoadDictionaries(countries, institutions, addresses)
	if err != nil {
		return tagger.Dictionaries{}, fmt.Errorf("affil: %w", err)
	}
	return dicts, nil
}

// Save writes the model to path.
func (p *Parser) Save(path string) error {
	if p == nil || p.model == nil {
		return fmt.Errorf("affil: %w: parser not initialized", ErrInference)
	}
	if err := tagger.Save(p.model, path); err != nil {
		return fmt.Errorf("affil: %w", err)
	}
	if info, err := os.Stat(path); err == nil {
		slog.Info("Model saved", "path", path, "size", humanize.Bytes(uint64(info.Size())))
	}
	return nil
}

// Model returns the underlying tagger model.
func (p *Parser) Model() *tagger.Model { return p.model }

// Dictionaries returns the dictionaries the parser extracts features with.
func (p *Parser) Dictionaries() tagger.Dictionaries { return p.dicts }

// Tag tokenizes text and labels every token. Text without tokens yields
// an empty sentence.
func (p *Parser) Tag(text string) (tagger.TaggedSentence, error) {
	if p == nil || p.model == nil {
		return tagger.TaggedSentence{}, fmt.Errorf("affil: %w: parser not initialized", ErrInference)
	}
	tokens := textutil.TokenizeStrings(text)
	if len(tokens) == 0 {
		return tagger.TaggedSentence{Tokens: []string{}, Labels: []tagger.Label{}}, nil
	}
	labels, err := p.model.Predict(tokens, p.dicts)
	if err != nil {
		return tagger.TaggedSentence{}, fmt.Errorf("affil: %w", err)
	}
	if slog.Default().Enabled(context.Background(), slog.LevelDebug) {
		pairs := make([]string, len(tokens))
		for i := range tokens {
			pairs[i] = tokens[i] + "/" + string(labels[i])
		}
		slog.Debug("Parsed affiliation", "text", text, "tokens", pairs)
	}
	return tagger.TaggedSentence{Tokens: tokens, Labels: labels}, nil
}

// Parse extracts the entities of one affiliation string. An empty or
// token-free string gives three empty lists.
func (p *Parser) Parse(text string) (tagger.Entities, error) {
	s, err := p.Tag(text)
	if err != nil {
		return tagger.Entities{}, err
	}
	e, err := tagger.Aggregate(s.Tokens, s.Labels)
	if err != nil {
		return tagger.Entities{}, fmt.Errorf("affil: %w", err)
	}
	return e, nil
}

// ParseBatch parses texts on up to workers goroutines. Results keep the
// input order. workers <= 0 uses GOMAXPROCS.
func (p *Parser) ParseBatch(ctx context.Context, texts []string, workers int) ([]tagger.Entities, error) {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	out := make([]tagger.Entities, len(texts))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, text := range texts {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			e, err := p.Parse(text)
			if err != nil {
				return fmt.Errorf("text %d: %w", i, err)
			}
			out[i] = e
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
