// Package authclient talks to a login server over HTTPS. It implements
// login.Fetcher.
package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mesmerverse/vettid-dev/loginkit/login"
)

// maxResponseBytes bounds every reply body.
const maxResponseBytes = 10 << 20

// Config holds client settings. Zero values fall back to DefaultConfig.
type Config struct {
	BaseURL    string        `yaml:"base_url"`
	APIKey     string        `yaml:"api_key"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
	RetryWait  time.Duration `yaml:"retry_wait"`

	// HTTPClient replaces the default client built from Timeout.
	HTTPClient *http.Client `yaml:"-"`
}

// DefaultConfig returns the default client settings.
func DefaultConfig() Config {
	return Config{
		BaseURL:    "http://localhost:8080",
		Timeout:    30 * time.Second,
		MaxRetries: 2,
		RetryWait:  500 * time.Millisecond,
	}
}

// Client is a login.Fetcher over HTTP.
type Client struct {
	baseURL    string
	apiKey     string
	maxRetries int
	retryWait  time.Duration
	http       *http.Client
}

var _ login.Fetcher = (*Client)(nil)

// New creates a client from cfg.
func New(cfg Config) *Client {
	def := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryWait <= 0 {
		cfg.RetryWait = def.RetryWait
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		maxRetries: cfg.MaxRetries,
		retryWait:  cfg.RetryWait,
		http:       httpClient,
	}
}

// Fetch sends one JSON request. Transport errors are retried with
// exponential backoff; any reply from the server, including a non-2xx one,
// is final.
func (c *Client) Fetch(ctx context.Context, method, path string, body any) (json.RawMessage, error) {
	var payload []byte
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		payload = data
	}

	requestID := uuid.NewString()
	for attempt := 0; ; attempt++ {
		resp, err := c.do(ctx, method, path, payload, requestID)
		if err == nil {
			return c.readReply(resp)
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("request to %s cancelled: %w", path, ctx.Err())
		}
		if attempt >= c.maxRetries {
			return nil, fmt.Errorf("failed to reach login server: %w", err)
		}

		wait := c.retryWait << attempt
		log.Warn().Err(err).
			Str("path", path).
			Str("request_id", requestID).
			Int("attempt", attempt+1).
			Dur("wait", wait).
			Msg("Login server unreachable, retrying")

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("request to %s cancelled: %w", path, ctx.Err())
		case <-timer.C:
		}
	}
}

func (c *Client) do(ctx context.Context, method, path string, payload []byte, requestID string) (*http.Response, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-Id", requestID)
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Token "+c.apiKey)
	}
	return c.http.Do(req)
}

func (c *Client) readReply(resp *http.Response) (json.RawMessage, error) {
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read reply: %w", err)
	}
	if len(data) > maxResponseBytes {
		return nil, fmt.Errorf("reply exceeds %d bytes", maxResponseBytes)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &login.ServerError{Status: resp.StatusCode, Message: errorMessage(data)}
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return json.RawMessage(`{}`), nil
	}
	return data, nil
}

func errorMessage(data []byte) string {
	var reply login.ErrorReply
	if err := json.Unmarshal(data, &reply); err == nil && reply.Error != "" {
		return reply.Error
	}
	msg := strings.TrimSpace(string(data))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return msg
}
