package push

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

// Message is one Expo push message.
type Message struct {
	To    string         `json:"to"`
	Title string         `json:"title,omitempty"`
	Body  string         `json:"body"`
	Data  map[string]any `json:"data,omitempty"`
}

type ticket struct {
	Status  string `json:"status"`
	ID      string `json:"id,omitempty"`
	Message string `json:"message,omitempty"`
}

type response struct {
	// Expo returns an object for single messages and an array for batches.
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"errors,omitempty"`
}

// Client talks to the Expo push API.
type Client struct {
	http    *http.Client
	url     string
	token   string
	breaker *CircuitBreaker
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient swaps the transport, e.g. for httptest servers.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		if c != nil {
			cl.http = c
		}
	}
}

// WithCircuitBreaker replaces the breaker built from Config. Nil disables it.
func WithCircuitBreaker(cb *CircuitBreaker) Option {
	return func(cl *Client) {
		cl.breaker = cb
	}
}

// NewClient creates an Expo push client. Without an access token the client
// is not Configured and Send returns ErrNotConfigured.
func NewClient(cfg Config, opts ...Option) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	c := &Client{
		http: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		url:   cfg.URL,
		token: cfg.AccessToken,
	}
	if cfg.BreakerFailures > 0 {
		c.breaker = NewCircuitBreaker(cfg.BreakerFailures, 1, cfg.BreakerRecovery)
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configured reports whether an access token and endpoint are set.
func (c *Client) Configured() bool {
	return c != nil && c.token != "" && c.url != ""
}

// Send posts one message. Any non-2xx status or an "error" ticket is a failure.
func (c *Client) Send(ctx context.Context, msg Message) error {
	if !c.Configured() {
		return ErrNotConfigured
	}
	if strings.TrimSpace(msg.To) == "" {
		return ErrInvalidToken
	}
	if c.breaker != nil && !c.breaker.Allow() {
		return ErrCircuitOpen
	}

	err := c.send(ctx, msg)
	if c.breaker != nil {
		if err == nil {
			c.breaker.RecordSuccess()
		} else {
			c.breaker.RecordFailure()
		}
	}
	return err
}

func (c *Client) send(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("%w: marshal message: %w", ErrSendFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSendFailed, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSendFailed, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("%w: status %d: %s", ErrSendFailed, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	return checkTickets(body)
}

func checkTickets(body []byte) error {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	var r response
	if err := json.Unmarshal(body, &r); err != nil {
		// 2xx without a parsable body still counts as accepted.
		return nil
	}
	if len(r.Errors) > 0 {
		return fmt.Errorf("%w: %s", ErrSendFailed, r.Errors[0].Message)
	}

	var tickets []ticket
	var one ticket
	switch {
	case json.Unmarshal(r.Data, &one) == nil && one.Status != "":
		tickets = []ticket{one}
	default:
		_ = json.Unmarshal(r.Data, &tickets)
	}
	for _, t := range tickets {
		if t.Status == "error" {
			return fmt.Errorf("%w: %s", ErrSendFailed, t.Message)
		}
	}
	return nil
}
