package resolve

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// AffiliationColumn is the input column holding the text to resolve.
const AffiliationColumn = "affiliation"

// OutputColumns are appended to the input header.
var OutputColumns = []string{"predicted_ror_id", "prediction_score", "match_type", "fallback_queries"}

// ErrMissingColumn is returned when the input has no affiliation column.
var ErrMissingColumn = errors.New("resolve: input has no affiliation column")

// Summary aggregates a batch run.
type Summary struct {
	Rows       int
	Requests   int
	MatchTypes map[string]int
	LookupTime time.Duration // summed over all requests
	Elapsed    time.Duration
}

// AvgRequestTime returns the mean time of one lookup request.
func (s Summary) AvgRequestTime() time.Duration {
	if s.Requests == 0 {
		return 0
	}
	return s.LookupTime / time.Duration(s.Requests)
}

// ProcessCSV resolves every row of r and writes the rows to w with the
// result columns appended, in input order. At most workers rows are resolved
// at once.
func ProcessCSV(ctx context.Context, r io.Reader, w io.Writer, res *Resolver, workers int) (Summary, error) {
	start := time.Now()
	summary := Summary{MatchTypes: make(map[string]int)}

	br := bufio.NewReader(r)
	if b, err := br.Peek(3); err == nil && string(b) == "\xef\xbb\xbf" {
		_, _ = br.Discard(3)
	}
	cr := csv.NewReader(br)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return summary, fmt.Errorf("resolve: empty input: %w", ErrMissingColumn)
	}
	if err != nil {
		return summary, fmt.Errorf("resolve: read header: %w", err)
	}
	col := slices.Index(header, AffiliationColumn)
	if col < 0 {
		return summary, ErrMissingColumn
	}

	rows, err := cr.ReadAll()
	if err != nil {
		return summary, fmt.Errorf("resolve: read rows: %w", err)
	}

	outcomes := make([]Outcome, len(rows))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(workers, 1))
	for i, row := range rows {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			var aff string
			if col < len(row) {
				aff = row[col]
			}
			outcomes[i] = res.Resolve(gctx, aff)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return summary, err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(slices.Concat(header, OutputColumns)); err != nil {
		return summary, fmt.Errorf("resolve: write header: %w", err)
	}
	for i, row := range rows {
		o := outcomes[i]
		// Pad short rows so the appended columns line up with the header.
		record := make([]string, max(len(row), len(header)), max(len(row), len(header))+len(OutputColumns))
		copy(record, row)
		ids, scores := formatMatches(o)
		record = append(record, ids, scores, o.MatchType, strings.Join(o.FallbackQueries, "; "))
		if err := cw.Write(record); err != nil {
			return summary, fmt.Errorf("resolve: write row %d: %w", i+1, err)
		}

		summary.Rows++
		summary.Requests += o.Requests()
		for _, a := range o.Attempts {
			summary.LookupTime += a.Elapsed
		}
		summary.MatchTypes[o.MatchType]++
		slog.Debug("Processed affiliation",
			"affiliation", o.Affiliation,
			"match_type", o.MatchType,
			"fallback_queries", strings.Join(o.FallbackQueries, "; "))
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return summary, fmt.Errorf("resolve: flush: %w", err)
	}

	summary.Elapsed = time.Since(start)
	slog.Info("Processed affiliations",
		"rows", summary.Rows,
		"requests", summary.Requests,
		"avg_request_time", summary.AvgRequestTime(),
		"elapsed", summary.Elapsed)
	return summary, nil
}

func formatMatches(o Outcome) (ids, scores string) {
	if len(o.Matches) == 0 {
		return "", ""
	}
	idList := make([]string, len(o.Matches))
	scoreList := make([]string, len(o.Matches))
	for i, m := range o.Matches {
		idList[i] = m.ID
		scoreList[i] = FormatScore(m.Score)
	}
	return strings.Join(idList, ";"), strings.Join(scoreList, ";")
}

// FormatScore renders a score with the shortest exact decimal, keeping one
// fractional digit for whole numbers ("1.0", "0.97").
func FormatScore(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eEnN") {
		s += ".0"
	}
	return s
}
