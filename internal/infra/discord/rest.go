package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"nepse_watch/internal/domain"
)

// maxMessageLen is Discord's per-message content limit
const maxMessageLen = 2000

// A 429 is waited out and retried only when the wait is short.
const (
	maxRateLimitWait    = 5 * time.Second
	maxRateLimitRetries = 3
)

// RateLimitError reports a 429 the client gave up on.
type RateLimitError struct {
	Route      string
	RetryAfter time.Duration
	Global     bool
}

func (e *RateLimitError) Error() string {
	scope := "route"
	if e.Global {
		scope = "global"
	}
	return fmt.Sprintf("discord %s: %s rate limited, retry after %s", e.Route, scope, e.RetryAfter)
}

// Client is the Discord REST client. It doubles as the domain.Notifier:
// Send opens (and caches) a DM channel, then posts into it.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *slog.Logger

	mu         sync.Mutex
	dmChannels map[string]string // user ID -> DM channel ID
}

// NewClient creates a REST client for baseURL (e.g. https://discord.com/api/v10)
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:    10,
				IdleConnTimeout: 30 * time.Second,
			},
		},
		logger:     slog.Default().With("module", "discord_rest"),
		dmChannels: make(map[string]string),
	}
}

// Send delivers text to the user's DM channel
func (c *Client) Send(ctx context.Context, userID, text string) error {
	channelID, err := c.dmChannel(ctx, userID)
	if err != nil {
		return &domain.DeliveryError{UserID: userID, Err: err}
	}
	if err := c.SendMessage(ctx, channelID, text); err != nil {
		return &domain.DeliveryError{UserID: userID, Err: err}
	}
	return nil
}

func (c *Client) dmChannel(ctx context.Context, userID string) (string, error) {
	c.mu.Lock()
	id, ok := c.dmChannels[userID]
	c.mu.Unlock()
	if ok {
		return id, nil
	}

	var ch channel
	if err := c.do(ctx, http.MethodPost, "/users/@me/channels", createDMRequest{RecipientID: userID}, &ch); err != nil {
		return "", fmt.Errorf("open DM: %w", err)
	}
	if ch.ID == "" {
		return "", fmt.Errorf("open DM: empty channel id")
	}

	c.mu.Lock()
	c.dmChannels[userID] = ch.ID
	c.mu.Unlock()
	c.logger.Debug("Opened DM channel", slog.String("user_id", userID), slog.String("channel_id", ch.ID))
	return ch.ID, nil
}

// SendMessage posts content into a channel, truncated to Discord's limit.
func (c *Client) SendMessage(ctx context.Context, channelID, content string) error {
	if r := []rune(content); len(r) > maxMessageLen {
		content = string(r[:maxMessageLen-1]) + "…"
	}
	return c.do(ctx, http.MethodPost, "/channels/"+channelID+"/messages", createMessageRequest{Content: content}, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		payload = b
	}

	for attempt := 0; ; attempt++ {
		err := c.doOnce(ctx, method, path, payload, out)

		var rl *RateLimitError
		if !errors.As(err, &rl) || rl.RetryAfter > maxRateLimitWait || attempt >= maxRateLimitRetries {
			return err
		}

		c.logger.Warn("Rate limited, waiting before retry",
			slog.String("route", rl.Route),
			slog.Duration("retry_after", rl.RetryAfter),
			slog.Bool("global", rl.Global),
			slog.Int("attempt", attempt+1))

		timer := time.NewTimer(rl.RetryAfter)
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
	}
}

func (c *Client) doOnce(ctx context.Context, method, path string, payload []byte, out interface{}) error {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bot "+c.token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "DiscordBot (https://github.com/nepse-watch, 1.0)")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.NewNetworkError(method+" "+path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.NewNetworkError("read", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return parseRateLimit(method+" "+path, resp.Header, respBody)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr apiError
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Message != "" {
			return fmt.Errorf("discord %s %s: status %d: %s (code %d)", method, path, resp.StatusCode, apiErr.Message, apiErr.Code)
		}
		return fmt.Errorf("discord %s %s: status %d", method, path, resp.StatusCode)
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("decode %s response: %w", path, err)
		}
	}
	return nil
}

// parseRateLimit reads the wait from the JSON body, falling back to the
// Retry-After header (seconds).
func parseRateLimit(route string, header http.Header, body []byte) *RateLimitError {
	var apiErr apiError
	_ = json.Unmarshal(body, &apiErr)

	secs := apiErr.RetryAfter
	if secs <= 0 {
		if v, err := strconv.ParseFloat(header.Get("Retry-After"), 64); err == nil {
			secs = v
		}
	}
	if secs < 0 {
		secs = 0
	}

	return &RateLimitError{
		Route:      route,
		RetryAfter: time.Duration(secs * float64(time.Second)),
		Global:     apiErr.Global || header.Get("X-RateLimit-Global") == "true",
	}
}
