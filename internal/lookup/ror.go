package lookup

import (
	"context"
	"log/slog"
	"net/url"
	"strings"
)

// DefaultRORURL is the public ROR API.
const DefaultRORURL = "https://api.ror.org"

// ROR queries the ROR affiliation matching endpoint and returns the item
// the service marked as chosen.
type ROR struct {
	BaseURL string
	client  *Client
}

// NewROR creates a ROR matcher. An empty baseURL uses DefaultRORURL.
func NewROR(baseURL string, client *Client) *ROR {
	if baseURL == "" {
		baseURL = DefaultRORURL
	}
	return &ROR{BaseURL: strings.TrimRight(baseURL, "/"), client: client}
}

type rorResponse struct {
	Items []struct {
		Chosen       bool    `json:"chosen"`
		Score        float64 `json:"score"`
		Organization struct {
			ID string `json:"id"`
		} `json:"organization"`
	} `json:"items"`
}

func (r *ROR) Match(ctx context.Context, query string) ([]Match, error) {
	u := r.BaseURL + "/organizations?" + url.Values{"affiliation": {query}}.Encode()
	var resp rorResponse
	if err := r.client.getJSON(ctx, u, &resp); err != nil {
		return nil, err
	}
	for _, item := range resp.Items {
		if item.Chosen {
			slog.Debug("ROR match found", "query", query, "id", item.Organization.ID, "score", item.Score)
			return []Match{{ID: item.Organization.ID, Score: item.Score}}, nil
		}
	}
	slog.Debug("No ROR match found", "query", query)
	return nil, nil
}
