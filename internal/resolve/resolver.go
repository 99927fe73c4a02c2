// Package resolve matches affiliation strings to organizations, falling back
// to queries built from CRF-parsed entities when the raw string finds nothing.
package resolve

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/adambuttrick/affil/internal/lookup"
	"github.com/adambuttrick/affil/internal/textutil"
	"github.com/adambuttrick/affil/tagger"
)

// Lookup stages.
const (
	StagePrimary  = "primary"
	StageFallback = "fallback"
)

// EntityParser extracts entities from an affiliation string.
type EntityParser interface {
	Parse(text string) (tagger.Entities, error)
}

// MatchTypes names the outcome of each resolution path.
type MatchTypes struct {
	Primary  string
	Fallback string
	None     string
}

var (
	RORMatchTypes    = MatchTypes{Primary: "initial_query", Fallback: "fallback_query", None: "no_match"}
	MarpleMatchTypes = MatchTypes{Primary: "marple", Fallback: "crf_fallback", None: "no_match"}
)

// Attempt is one lookup request.
type Attempt struct {
	Stage   string
	Query   string
	Matches []lookup.Match
	Err     error
	Elapsed time.Duration
}

// Outcome is the result of resolving one affiliation.
type Outcome struct {
	Affiliation     string
	Matches         []lookup.Match
	MatchType       string
	Attempts        []Attempt
	FallbackQueries []string
	Elapsed         time.Duration
	ParseErr        error // set when the CRF parse failed
}

// Requests returns the number of lookup requests made.
func (o Outcome) Requests() int { return len(o.Attempts) }

// Resolver runs the primary lookup and the CRF fallback chain.
type Resolver struct {
	Primary  lookup.Matcher
	Fallback lookup.Matcher // nil means Primary
	Parser   EntityParser
	Names    MatchTypes
	Metrics  *Metrics
}

// Resolve matches one affiliation. Lookup errors do not stop the chain; they
// are logged and kept on the attempt.
func (r *Resolver) Resolve(ctx context.Context, affiliation string) (out Outcome) {
	start := time.Now()
	names := r.names()
	out = Outcome{Affiliation: affiliation, MatchType: names.None}
	defer func() {
		out.Elapsed = time.Since(start)
	}()

	a := r.lookup(ctx, StagePrimary, r.Primary, affiliation)
	out.Attempts = append(out.Attempts, a)
	if len(a.Matches) > 0 {
		out.Matches = a.Matches
		out.MatchType = names.Primary
		r.Metrics.recordOutcome(out.MatchType)
		return out
	}
	slog.Debug("No match for initial query", "affiliation", affiliation)

	queries, err := r.fallbackQueries(affiliation)
	if err != nil {
		slog.Error("Error in fallback query", "affiliation", affiliation, "error", err)
		out.ParseErr = err
		r.Metrics.recordOutcome(out.MatchType)
		return out
	}

	fallback := r.Fallback
	if fallback == nil {
		fallback = r.Primary
	}
	for _, q := range queries {
		if ctx.Err() != nil {
			break
		}
		out.FallbackQueries = append(out.FallbackQueries, q)
		a := r.lookup(ctx, StageFallback, fallback, q)
		out.Attempts = append(out.Attempts, a)
		if len(a.Matches) > 0 {
			out.Matches = a.Matches
			out.MatchType = names.Fallback
			break
		}
	}
	slog.Debug("Fallback queries executed",
		"affiliation", affiliation,
		"queries", strings.Join(out.FallbackQueries, "; "),
		"matched", len(out.Matches) > 0)
	r.Metrics.recordOutcome(out.MatchType)
	return out
}

func (r *Resolver) names() MatchTypes {
	if r.Names == (MatchTypes{}) {
		return RORMatchTypes
	}
	return r.Names
}

func (r *Resolver) lookup(ctx context.Context, stage string, m lookup.Matcher, query string) Attempt {
	start := time.Now()
	matches, err := m.Match(ctx, query)
	a := Attempt{Stage: stage, Query: query, Matches: matches, Err: err, Elapsed: time.Since(start)}
	switch {
	case err != nil:
		slog.Error("Error for query", "stage", stage, "query", query, "error", err)
		a.Matches = nil
	case len(matches) > 0:
		slog.Debug("Match found", "stage", stage, "query", query, "id", matches[0].ID, "score", matches[0].Score)
	}
	r.Metrics.recordLookup(a)
	return a
}

// fallbackQueries builds one query per parsed institution, each suffixed
// with the first parsed country.
func (r *Resolver) fallbackQueries(affiliation string) ([]string, error) {
	if r.Parser == nil {
		return nil, nil
	}
	e, err := r.Parser.Parse(affiliation)
	if err != nil {
		return nil, err
	}
	var country string
	if len(e.Countries) > 0 {
		country = e.Countries[0]
	}
	queries := make([]string, 0, len(e.Institutions))
	for _, inst := range e.Institutions {
		queries = append(queries, FallbackQuery(inst, country))
	}
	return queries, nil
}

// FallbackQuery joins a normalized institution and country with ", ",
// trimming separator characters from both ends.
func FallbackQuery(institution, country string) string {
	q := textutil.NormalizePunctuation(institution) + ", " + textutil.NormalizePunctuation(country)
	return strings.Trim(q, ", ")
}
