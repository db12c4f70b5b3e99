package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultChatURL    = "https://api.anthropic.com/v1/chat/completions"
	DefaultChatModel  = "claude-3-5-haiku-latest"
	DefaultAPIVersion = "2023-06-01"
	DefaultMaxTokens  = 1000
	DefaultTimeout    = 30 * time.Second

	maxResponseBytes = 1 << 20
)

// Completer sends a prompt to a language model and returns the raw text of
// its first reply. Failures are returned as *Error with KindUpstream.
type Completer interface {
	Complete(ctx context.Context, messages []Message) (string, error)
}

// ChatConfig configures a ChatClient. Zero values fall back to the defaults.
type ChatConfig struct {
	APIKey     string
	URL        string
	Model      string
	APIVersion string
	MaxTokens  int
	Timeout    time.Duration
	// HTTPClient is copied; its Timeout is replaced by Timeout.
	HTTPClient *http.Client
}

// ChatClient talks to an OpenAI-compatible chat completions endpoint.
// The credential is captured at construction and never re-read.
type ChatClient struct {
	apiKey     string
	url        string
	model      string
	apiVersion string
	maxTokens  int
	httpClient *http.Client
}

var _ Completer = (*ChatClient)(nil)

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content json.RawMessage `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// NewChatClient validates cfg and returns a client. A missing API key is a
// configuration error.
func NewChatClient(cfg ChatConfig) (*ChatClient, error) {
	key := strings.TrimSpace(cfg.APIKey)
	if key == "" {
		return nil, configError(ErrMissingAPIKey)
	}

	c := &ChatClient{
		apiKey:     key,
		url:        orDefault(cfg.URL, DefaultChatURL),
		model:      orDefault(cfg.Model, DefaultChatModel),
		apiVersion: orDefault(cfg.APIVersion, DefaultAPIVersion),
		maxTokens:  cfg.MaxTokens,
	}
	if c.maxTokens <= 0 {
		c.maxTokens = DefaultMaxTokens
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	hc := http.Client{}
	if cfg.HTTPClient != nil {
		hc = *cfg.HTTPClient
	}
	hc.Timeout = timeout
	c.httpClient = &hc

	return c, nil
}

// Model returns the configured model name.
func (c *ChatClient) Model() string {
	return c.model
}

// Complete issues exactly one POST and returns choices[0].message.content.
func (c *ChatClient) Complete(ctx context.Context, messages []Message) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: 0,
		MaxTokens:   c.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return "", &Error{Kind: KindUpstream, Message: "build request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", c.apiKey)
	req.Header.Set("Anthropic-Version", c.apiVersion)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", upstreamError(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", upstreamError(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &Error{
			Kind:    KindUpstream,
			Status:  resp.StatusCode,
			Message: upstreamMessage(raw, resp.StatusCode),
		}
	}

	var out chatResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", &Error{Kind: KindUpstream, Status: resp.StatusCode, Message: "undecodable response body", Err: err}
	}
	if len(out.Choices) == 0 {
		return "", noContent(resp.StatusCode)
	}
	var content string
	rc := out.Choices[0].Message.Content
	if len(rc) == 0 || string(rc) == "null" || json.Unmarshal(rc, &content) != nil {
		return "", noContent(resp.StatusCode)
	}
	return content, nil
}

func noContent(status int) *Error {
	return &Error{Kind: KindUpstream, Status: status, Message: ErrNoContent.Error(), Err: ErrNoContent}
}

// upstreamMessage prefers the provider's error.message and never echoes the
// raw body.
func upstreamMessage(raw []byte, status int) string {
	var er errorResponse
	if json.Unmarshal(raw, &er) == nil && strings.TrimSpace(er.Error.Message) != "" {
		return er.Error.Message
	}
	if text := http.StatusText(status); text != "" {
		return text
	}
	return fmt.Sprintf("unexpected status %d", status)
}

func orDefault(v, def string) string {
	if s := strings.TrimSpace(v); s != "" {
		return s
	}
	return def
}
