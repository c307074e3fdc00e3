// Package deliveryclient executes webhook delivery attempts over HTTP.
//
// The client never returns an error for a failed delivery; every attempt
// yields a DeliveryResult that the classifier turns into a decision. Only
// programming errors (an unbuildable request) surface as errors.
package deliveryclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hookhub/relay/internal/models"
)

const (
	DefaultUserAgent      = "HookHub-Relay/1.0"
	DefaultTimeout        = 10 * time.Second
	DefaultConnectTimeout = 5 * time.Second

	maxResponseBytes = 64 * 1024
)

// DeliveryResult captures the outcome of a single delivery attempt.
// StatusCode is 0 when no HTTP response was received. Retryable is the
// transport-level hint (5xx, 429 and transport failures); the classifier
// has the final say. ResponseBody is capped at maxResponseBytes.
type DeliveryResult struct {
	Success           bool
	Retryable         bool
	StatusCode        int
	ResponseBody      string
	ErrorMessage      string
	RetryAfterSeconds *int
	Duration          time.Duration
}

type Client struct {
	httpClient *http.Client
	userAgent  string
}

type Option func(*Client)

func WithUserAgent(userAgent string) Option {
	return func(c *Client) {
		c.userAgent = userAgent
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

func WithConnectTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Transport = newTransport(timeout)
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func New(opts ...Option) *Client {
	client := &Client{
		httpClient: &http.Client{
			Timeout:   DefaultTimeout,
			Transport: newTransport(DefaultConnectTimeout),
		},
		userAgent: DefaultUserAgent,
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

func newTransport(connectTimeout time.Duration) *http.Transport {
	return &http.Transport{
		DialContext: (&net.Dialer{
			Timeout: connectTimeout,
		}).DialContext,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}
}

// Deliver POSTs the event payload to the webhook URL. A 2xx response is a
// success; everything else, including transport failures, is a classified
// failure.
func (c *Client) Deliver(ctx context.Context, webhook *models.Webhook, event *models.Event) (*DeliveryResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhook.URL, bytes.NewReader(event.Payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("X-Relay-Event-ID", event.ID)
	req.Header.Set("X-Relay-Webhook-ID", webhook.ID)
	if event.RetryCount > 0 {
		req.Header.Set("X-Relay-Retry-Count", strconv.Itoa(event.RetryCount))
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	duration := time.Since(start)
	if err != nil {
		return &DeliveryResult{
			Success:      false,
			Retryable:    true,
			StatusCode:   0,
			ErrorMessage: fmt.Sprintf("%s: %v", classifyNetworkError(err), err),
			Duration:     duration,
		}, nil
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	// Drain the remainder so the connection can be reused.
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return &DeliveryResult{
			Success:      true,
			StatusCode:   resp.StatusCode,
			ResponseBody: string(body),
			Duration:     duration,
		}, nil
	}

	result := &DeliveryResult{
		Success:      false,
		Retryable:    resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests,
		StatusCode:   resp.StatusCode,
		ResponseBody: string(body),
		ErrorMessage: fmt.Sprintf("request failed with status %d", resp.StatusCode),
		Duration:     duration,
	}
	if seconds := parseRetryAfter(resp.Header.Get("Retry-After"), time.Now()); seconds != nil {
		result.RetryAfterSeconds = seconds
	}
	return result, nil
}

// parseRetryAfter handles both delay-seconds and HTTP-date forms. Invalid or
// non-positive values are ignored.
func parseRetryAfter(value string, now time.Time) *int {
	if value == "" {
		return nil
	}
	if seconds, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
		if seconds <= 0 {
			return nil
		}
		return &seconds
	}
	if t, err := http.ParseTime(value); err == nil {
		seconds := int(t.Sub(now) / time.Second)
		if seconds <= 0 {
			return nil
		}
		return &seconds
	}
	return nil
}

// classifyNetworkError tags transport failures so the error classifier can
// derive the failure type from the message.
//
//   - dns_error:          lookup failed or domain does not exist
//   - connection_refused: nothing listening at the target
//   - connection_reset:   connection dropped by the server
//   - timeout:            I/O timeout or context deadline exceeded
//   - tls_error:          certificate or handshake failure
//   - network_error:      everything else
func classifyNetworkError(err error) string {
	if err == nil {
		return "unknown"
	}

	errStr := err.Error()

	switch {
	case strings.Contains(errStr, "no such host"):
		return "dns_error"
	case strings.Contains(errStr, "connection refused"):
		return "connection_refused"
	case strings.Contains(errStr, "connection reset"):
		return "connection_reset"
	case strings.Contains(errStr, "i/o timeout"):
		return "timeout"
	case strings.Contains(errStr, "context deadline exceeded"):
		return "timeout"
	case strings.Contains(errStr, "Client.Timeout exceeded"):
		return "timeout"
	case strings.Contains(errStr, "tls:") || strings.Contains(errStr, "x509:"):
		return "tls_error"
	default:
		return "network_error"
	}
}
