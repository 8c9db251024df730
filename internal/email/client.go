package email

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/sony/gobreaker/v2"
)

type Message struct {
	From    string `json:"from,omitempty"`
	To      string `json:"to" validate:"required,email"`
	Subject string `json:"subject" validate:"required,max=200"`
	Text    string `json:"text,omitempty"`
	HTML    string `json:"html,omitempty"`
}

// ErrRejected marks a 4xx answer from the mail service. It does not count
// against the breaker since retrying the same message cannot succeed.
var ErrRejected = errors.New("mail rejected")

type Client struct {
	baseURL    string
	from       string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[struct{}]
	logger     *slog.Logger
}

type ClientOption func(*gobreaker.Settings)

// WithBreakerTimeout sets how long the breaker stays open before probing again.
func WithBreakerTimeout(d time.Duration) ClientOption {
	return func(s *gobreaker.Settings) { s.Timeout = d }
}

// NewClient sends through the mail service at baseURL. Messages without a
// sender get from.
func NewClient(baseURL, from string, httpClient *http.Client, logger *slog.Logger, opts ...ClientOption) *Client {
	settings := gobreaker.Settings{
		Name:        "email-service",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrRejected)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	}
	for _, opt := range opts {
		opt(&settings)
	}

	return &Client{
		baseURL:    baseURL,
		from:       from,
		httpClient: httpClient,
		breaker:    gobreaker.NewCircuitBreaker[struct{}](settings),
		logger:     logger,
	}
}

// Send delivers msg once. There are no retries; an open breaker fails fast
// with gobreaker.ErrOpenState.
func (c *Client) Send(ctx context.Context, msg Message) error {
	if msg.From == "" {
		msg.From = c.from
	}

	_, err := c.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, c.post(ctx, msg)
	})
	if err != nil {
		return fmt.Errorf("send email to %s: %w", msg.To, err)
	}
	return nil
}

func (c *Client) post(ctx context.Context, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/send", bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: status %d: %s", ErrRejected, resp.StatusCode, bytes.TrimSpace(body))
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("email service returned status %d", resp.StatusCode)
	}
	return nil
}
