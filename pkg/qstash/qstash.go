package qstash

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	contractx "github.com/omniflowhq/omniflow/agent/contract"
)

type Config struct {
	URL         string        `split_words:"true" required:"true"`
	Token       string        `split_words:"true" required:"true"`
	Destination string        `split_words:"true" required:"true"`
	Timeout     time.Duration `split_words:"true" default:"10s"`
}

// Client publishes messages through QStash's HTTP API.
type Client struct {
	baseURL     string
	token       string
	destination string
	httpClient  *http.Client
}

func NewClient(cfg Config) (*Client, error) {
	baseURL := strings.TrimSpace(cfg.URL)
	if baseURL == "" {
		return nil, errors.New("qstash url is required")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.Destination) == "" {
		return nil, errors.New("qstash destination is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		token:       strings.TrimSpace(cfg.Token),
		destination: strings.TrimSpace(cfg.Destination),
		httpClient:  &http.Client{Timeout: timeout},
	}, nil
}

func MustNew(cfg Config) *Client {
	client, err := NewClient(cfg)
	if err != nil {
		panic(err)
	}
	return client
}

// Publish enqueues one JSON message for the configured destination.
func (c *Client) Publish(ctx context.Context, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("qstash: encode payload: %w", err)
	}

	endpoint := c.baseURL + "/v2/publish/" + url.PathEscape(c.destination)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("qstash: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("qstash: publish: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("qstash: publish returned status %d", resp.StatusCode)
	}
	return nil
}

// TracePublisher ships per-turn decision traces to the audit queue.
type TracePublisher struct {
	client *Client
}

var _ contractx.TracePublisher = (*TracePublisher)(nil)

func NewTracePublisher(client *Client) *TracePublisher {
	return &TracePublisher{client: client}
}

type traceEnvelope struct {
	SessionID string               `json:"session_id"`
	Result    contractx.TurnResult `json:"result"`
	EmittedAt time.Time            `json:"emitted_at"`
}

func (p *TracePublisher) PublishTrace(ctx context.Context, sessionID string, result contractx.TurnResult) error {
	if p == nil || p.client == nil {
		return nil
	}
	return p.client.Publish(ctx, traceEnvelope{
		SessionID: sessionID,
		Result:    result,
		EmittedAt: time.Now().UTC(),
	})
}
