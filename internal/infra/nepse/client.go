package nepse

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"nepse_watch/internal/domain"
	"nepse_watch/internal/infra"
)

// Client fetches the daily trade stat list from a NEPSE mirror.
// Every call hits the network once: no retry, no cache.
type Client struct {
	apiURL     string
	userAgent  string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a quote client for apiURL. timeout bounds a single
// request; zero leaves the transport default.
func NewClient(apiURL string, timeout time.Duration) *Client {
	return &Client{
		apiURL:    apiURL,
		userAgent: infra.DefaultUserAgent,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: slog.Default().With("module", "nepse_client"),
	}
}

// NewClientFromConfig builds a client from the api.nepse section
func NewClientFromConfig(cfg *infra.Config) *Client {
	c := NewClient(cfg.API.Nepse.URL, cfg.FetchTimeout())
	if cfg.API.Nepse.UserAgent != "" {
		c.userAgent = cfg.API.Nepse.UserAgent
	}
	return c
}

// FetchAll issues one GET and decodes the quote list. Field presence inside
// each quote is not validated.
func (c *Client) FetchAll(ctx context.Context) ([]domain.Quote, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL, nil)
	if err != nil {
		return nil, domain.NewNetworkError("fetch", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, domain.NewNetworkError("fetch", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.NewNetworkError("read", err)
	}

	c.logger.Debug("NEPSE response",
		slog.Int("status", resp.StatusCode),
		slog.Int("bytes", len(body)),
		slog.String("body", string(body)),
	)

	return decodeQuotes(resp.StatusCode, body)
}

var errNotArray = errors.New("response is not a JSON array")

func decodeQuotes(status int, body []byte) ([]domain.Quote, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, &domain.QuoteError{Kind: domain.ErrEmptyResponse, Status: status}
	}
	if trimmed[0] == '<' {
		return nil, &domain.QuoteError{Kind: domain.ErrMalformedResponse, Status: status}
	}
	if status < 200 || status > 299 {
		return nil, &domain.QuoteError{Kind: domain.ErrMalformedResponse, Status: status}
	}

	// A bare null decodes into a nil slice without error
	if trimmed[0] != '[' {
		return nil, &domain.QuoteError{Kind: domain.ErrParseError, Status: status, Err: errNotArray}
	}

	var quotes []domain.Quote
	if err := json.Unmarshal(trimmed, &quotes); err != nil {
		return nil, &domain.QuoteError{Kind: domain.ErrParseError, Status: status, Err: err}
	}
	return quotes, nil
}
