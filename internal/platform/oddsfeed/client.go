package oddsfeed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/oddsmesh/oddsmesh/internal/domain"
)

// Client is the REST client for the odds provider.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates an odds provider REST client.
//
// baseURL is the API root, e.g. "https://api.oddsprovider.example/v4".
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Odds fetches the current odds snapshot for every listed game of one
// sport.
func (c *Client) Odds(ctx context.Context, sport string) ([]domain.GameOdds, error) {
	params := url.Values{}
	if c.apiKey != "" {
		params.Set("apiKey", c.apiKey)
	}

	path := fmt.Sprintf("/sports/%s/odds", url.PathEscape(sport))
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	body, err := c.get(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("oddsfeed: get odds for %s: %w", sport, err)
	}

	var games []Game
	if err := json.Unmarshal(body, &games); err != nil {
		return nil, fmt.Errorf("oddsfeed: decode odds: %w", err)
	}

	out := make([]domain.GameOdds, 0, len(games))
	for _, g := range games {
		out = append(out, g.ToDomain())
	}
	return out, nil
}

// Sports lists the sport keys the provider currently covers.
func (c *Client) Sports(ctx context.Context) ([]string, error) {
	params := url.Values{}
	if c.apiKey != "" {
		params.Set("apiKey", c.apiKey)
	}

	body, err := c.get(ctx, "/sports?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("oddsfeed: get sports: %w", err)
	}

	var resp []struct {
		Key string `json:"key"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("oddsfeed: decode sports: %w", err)
	}

	keys := make([]string, 0, len(resp))
	for _, s := range resp {
		keys = append(keys, s.Key)
	}
	return keys, nil
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, err
	}

	switch resp.StatusCode {
	case http.StatusOK:
		return body, nil
	case http.StatusNotFound:
		return nil, domain.ErrNotFound
	case http.StatusTooManyRequests:
		return nil, domain.ErrRateLimited
	default:
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, truncate(body, 200))
	}
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		b = b[:n]
	}
	return string(b)
}
