// Package advisor is the HTTP client for the remote classification advisor.
//
// The advisor is strictly optional and fail-open: any transport failure,
// non-200 response, or parse failure is returned as an error for the caller
// to ignore, and classification falls back to the local rule engine.
package advisor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const (
	DefaultTimeout       = 5 * time.Second
	DefaultMinConfidence = 0.6
)

type Request struct {
	ErrorSignature    ErrorSignature `json:"error_signature"`
	RetryCount        int            `json:"retry_count"`
	RecentFailureRate float64        `json:"recent_failure_rate"`
	WebhookHealth     WebhookHealth  `json:"webhook_health"`
}

type ErrorSignature struct {
	HTTPStatusCode      int    `json:"http_status_code"`
	ErrorType           string `json:"error_type"`
	ErrorMessagePattern string `json:"error_message_pattern"`
}

type WebhookHealth struct {
	WebhookID           string `json:"webhook_id"`
	TotalFailures       int64  `json:"total_failures"`
	TotalSuccesses      int64  `json:"total_successes"`
	ConsecutiveFailures int    `json:"consecutive_failures"`
	CircuitBreakerState string `json:"circuit_breaker_state"`
}

type Response struct {
	Decision        string    `json:"decision"`
	ConfidenceScore float64   `json:"confidence_score"`
	Explanation     string    `json:"explanation"`
	FallbackUsed    bool      `json:"fallback_used"`
	Evidence        *Evidence `json:"evidence,omitempty"`
}

type Evidence struct {
	SampleSize      int      `json:"sample_size"`
	SuccessRate     float64  `json:"success_rate"`
	DecisionType    string   `json:"decision_type"`
	SimilarityScore *float64 `json:"similarity_score,omitempty"`
	ConfidenceScore float64  `json:"confidence_score"`
}

type Client struct {
	url        string
	httpClient *http.Client
}

type Option func(*Client)

func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func New(url string, opts ...Option) *Client {
	client := &Client{
		url: url,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// Advise posts the error signature and health context and returns the
// advisor's verdict. The caller decides whether to adopt it.
func (c *Client) Advise(ctx context.Context, request *Request) (*Response, error) {
	body, err := json.Marshal(request)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("advisor returned status %d", resp.StatusCode)
	}

	response := &Response{}
	if err := json.NewDecoder(resp.Body).Decode(response); err != nil {
		return nil, fmt.Errorf("decode advisor response: %w", err)
	}
	return response, nil
}
