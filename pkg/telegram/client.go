// Package telegram is a minimal Bot API client covering channel posting.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

const defaultBaseURL = "https://api.telegram.org"

// ParseModeMarkdown renders captions with legacy Markdown markup.
const ParseModeMarkdown = "Markdown"

// Client posts messages through the Telegram Bot API.
//
// Calls are single-shot: a publish that timed out may still have landed, so
// retrying here could double-post. Callers decide what a failed publish
// means; this client only reports it.
type Client interface {
	SendMessage(ctx context.Context, msg Message) error
	SendPhoto(ctx context.Context, photo Photo) error
	GetMe(ctx context.Context) (*BotInfo, error)
}

// Message is the body of the sendMessage method.
type Message struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode,omitempty"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview,omitempty"`
}

// Photo is the body of the sendPhoto method. Photo holds a public URL; the
// Bot API fetches it server-side.
type Photo struct {
	ChatID    string `json:"chat_id"`
	Photo     string `json:"photo"`
	Caption   string `json:"caption,omitempty"`
	ParseMode string `json:"parse_mode,omitempty"`
}

// BotInfo describes the authenticated bot, from getMe.
type BotInfo struct {
	ID        int64  `json:"id"`
	IsBot     bool   `json:"is_bot"`
	FirstName string `json:"first_name"`
	Username  string `json:"username"`
}

type responseParameters struct {
	RetryAfter      int   `json:"retry_after,omitempty"`
	MigrateToChatID int64 `json:"migrate_to_chat_id,omitempty"`
}

type apiResponse struct {
	OK          bool                `json:"ok"`
	Result      json.RawMessage     `json:"result,omitempty"`
	ErrorCode   int                 `json:"error_code,omitempty"`
	Description string              `json:"description,omitempty"`
	Parameters  *responseParameters `json:"parameters,omitempty"`
}

// APIError is a Bot API response with ok=false.
type APIError struct {
	Code        int
	Description string
	RetryAfter  time.Duration
}

func (e *APIError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("telegram: api error %d: %s (retry after %s)", e.Code, e.Description, e.RetryAfter)
	}
	return fmt.Sprintf("telegram: api error %d: %s", e.Code, e.Description)
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = strings.TrimRight(u, "/")
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	token   string
	baseURL string
	http    *http.Client
}

// NewClient creates a Bot API client for the given bot token.
func NewClient(token string, opts ...Option) Client {
	c := &httpClient{
		token:   token,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 5,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) SendMessage(ctx context.Context, msg Message) error {
	return c.call(ctx, "sendMessage", msg, nil)
}

func (c *httpClient) SendPhoto(ctx context.Context, photo Photo) error {
	return c.call(ctx, "sendPhoto", photo, nil)
}

func (c *httpClient) GetMe(ctx context.Context) (*BotInfo, error) {
	var info BotInfo
	if err := c.call(ctx, "getMe", nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (c *httpClient) call(ctx context.Context, method string, body any, result any) error {
	var rdr io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return eris.Wrapf(err, "telegram: marshal %s", method)
		}
		rdr = bytes.NewReader(payload)
	}

	url := c.baseURL + "/bot" + c.token + "/" + method
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, rdr)
	if err != nil {
		return eris.Wrapf(err, "telegram: create %s request", method)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return eris.Wrapf(err, "telegram: %s request", method)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrapf(err, "telegram: read %s response", method)
	}

	var api apiResponse
	if err := json.Unmarshal(respBody, &api); err != nil {
		return eris.Errorf("telegram: %s returned status %d with unreadable body", method, resp.StatusCode)
	}

	if !api.OK {
		apiErr := &APIError{Code: api.ErrorCode, Description: api.Description}
		if api.Parameters != nil && api.Parameters.RetryAfter > 0 {
			apiErr.RetryAfter = time.Duration(api.Parameters.RetryAfter) * time.Second
		}
		return apiErr
	}

	if result != nil && api.Result != nil {
		if err := json.Unmarshal(api.Result, result); err != nil {
			return eris.Wrapf(err, "telegram: decode %s result", method)
		}
	}
	return nil
}
