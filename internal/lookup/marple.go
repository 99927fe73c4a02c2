package lookup

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
)

// DefaultMarpleURL is the public Crossref Marple service.
const DefaultMarpleURL = "https://marple.research.crossref.org"

// Marple matching strategies.
const (
	SingleSearch = "affiliation-single-search"
	MultiSearch  = "affiliation-multi-search"
)

// Marple queries the Crossref Marple affiliation matcher with a fixed
// strategy and returns its best item.
type Marple struct {
	BaseURL  string
	Strategy string
	client   *Client
	retry    retrypolicy.RetryPolicy[[]Match]
}

// NewMarple creates a Marple matcher. An empty baseURL uses
// DefaultMarpleURL and an empty strategy uses SingleSearch.
func NewMarple(baseURL, strategy string, client *Client) *Marple {
	if baseURL == "" {
		baseURL = DefaultMarpleURL
	}
	if strategy == "" {
		strategy = SingleSearch
	}
	return &Marple{
		BaseURL:  strings.TrimRight(baseURL, "/"),
		Strategy: strategy,
		client:   client,
		retry: retrypolicy.Builder[[]Match]().
			HandleErrors(ErrTransient).
			WithBackoff(client.waitMin, client.waitMax).
			WithMaxRetries(client.retries).
			Build(),
	}
}

type marpleResponse struct {
	Status  string `json:"status"`
	Message struct {
		Items []struct {
			ID         string  `json:"id"`
			Confidence float64 `json:"confidence"`
		} `json:"items"`
	} `json:"message"`
}

func (m *Marple) Match(ctx context.Context, query string) ([]Match, error) {
	u := m.BaseURL + "/match?" + url.Values{
		"task":     {"affiliation-matching"},
		"input":    {query},
		"strategy": {m.Strategy},
	}.Encode()

	matches, err := failsafe.With(m.retry).WithContext(ctx).Get(func() ([]Match, error) {
		var resp marpleResponse
		if err := m.client.getJSON(ctx, u, &resp); err != nil {
			return nil, err
		}
		if resp.Status != "ok" {
			return nil, fmt.Errorf("%w: marple status %q", ErrTransient, resp.Status)
		}
		if len(resp.Message.Items) == 0 {
			return nil, nil
		}
		item := resp.Message.Items[0]
		return []Match{{ID: item.ID, Score: item.Confidence}}, nil
	})
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		slog.Debug("No Marple match found", "query", query, "strategy", m.Strategy)
		return nil, nil
	}
	slog.Debug("Marple match found", "query", query, "strategy", m.Strategy, "id", matches[0].ID, "confidence", matches[0].Score)
	return matches, nil
}
