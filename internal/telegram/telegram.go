// Package telegram is a minimal Bot API client covering the calls this
// service makes: sending text and photo messages with optional inline
// keyboards, and long-polling for updates.
//
// No SDK is used; the Bot API surface needed here is a handful of JSON POST
// endpoints.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"rexbot/internal/models"
)

const defaultBaseURL = "https://api.telegram.org"

// RateLimitError reports a flood-control rejection and how long the platform
// asks the sender to wait.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}

// APIError is a non-rate-limit rejection from the Bot API.
type APIError struct {
	Code        int
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram api error %d: %s", e.Code, e.Description)
}

// Client calls the Bot API over HTTP.
type Client struct {
	token   string
	baseURL string
	httpc   *http.Client
}

// Opts holds optional client configuration.
type Opts struct {
	BaseURL    string
	HTTPClient *http.Client
}

// Option configures a Client.
type Option func(*Opts)

// WithBaseURL overrides the API endpoint, for tests.
func WithBaseURL(url string) Option {
	return func(o *Opts) { o.BaseURL = url }
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(o *Opts) { o.HTTPClient = c }
}

// NewClient creates a Bot API client for the given bot token.
func NewClient(token string, options ...Option) *Client {
	opts := Opts{
		BaseURL:    defaultBaseURL,
		HTTPClient: &http.Client{Timeout: 35 * time.Second},
	}
	for _, opt := range options {
		opt(&opts)
	}
	return &Client{token: token, baseURL: opts.BaseURL, httpc: opts.HTTPClient}
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	ErrorCode   int             `json:"error_code"`
	Description string          `json:"description"`
	Parameters  *struct {
		RetryAfter int `json:"retry_after"`
	} `json:"parameters"`
}

func (c *Client) call(ctx context.Context, method string, payload any, result any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", method, err)
	}
	url := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", method, err)
	}
	defer resp.Body.Close()

	var api apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&api); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", method, err)
	}
	if !api.OK {
		if api.ErrorCode == http.StatusTooManyRequests && api.Parameters != nil {
			return &RateLimitError{RetryAfter: time.Duration(api.Parameters.RetryAfter) * time.Second}
		}
		return &APIError{Code: api.ErrorCode, Description: api.Description}
	}
	if result != nil {
		if err := json.Unmarshal(api.Result, result); err != nil {
			return fmt.Errorf("failed to decode %s result: %w", method, err)
		}
	}
	return nil
}

// SendMessage sends an HTML-formatted text message.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string, keyboard *models.Keyboard) error {
	payload := map[string]any{
		"chat_id":    chatID,
		"text":       text,
		"parse_mode": "HTML",
	}
	if keyboard != nil {
		payload["reply_markup"] = keyboard
	}
	return c.call(ctx, "sendMessage", payload, nil)
}

// SendPhoto sends a photo by platform file identifier with an optional
// HTML caption.
func (c *Client) SendPhoto(ctx context.Context, chatID int64, photoID, caption string, keyboard *models.Keyboard) error {
	payload := map[string]any{
		"chat_id":    chatID,
		"photo":      photoID,
		"parse_mode": "HTML",
	}
	if caption != "" {
		payload["caption"] = caption
	}
	if keyboard != nil {
		payload["reply_markup"] = keyboard
	}
	return c.call(ctx, "sendPhoto", payload, nil)
}
