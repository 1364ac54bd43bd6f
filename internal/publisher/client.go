package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gojektech/heimdall"
	"github.com/gojektech/heimdall/httpclient"
)

const (
	retryBackoff   = 200 * time.Millisecond
	retryMaxJitter = 100 * time.Millisecond
)

// PublishResult mirrors the POST /publish response.
type PublishResult struct {
	Accepted   int `json:"accepted"`
	Duplicates int `json:"duplicates"`
	Failed     int `json:"failed"`
}

// Stats mirrors the subset of GET /stats the publisher checks.
type Stats struct {
	Received         int64    `json:"received"`
	UniqueProcessed  int64    `json:"unique_processed"`
	DuplicateDropped int64    `json:"duplicate_dropped"`
	QueueLength      int      `json:"queue_length"`
	Topics           []string `json:"topics"`
}

// Settled reports whether the queue is empty and every received event is
// accounted for.
func (s Stats) Settled() bool {
	return s.QueueLength == 0 && s.Received == s.UniqueProcessed+s.DuplicateDropped
}

// Client talks to the aggregator over HTTP with retries on transport errors
// and 5xx responses.
type Client struct {
	baseURL string
	http    *httpclient.Client
}

// NewClient creates a client for the aggregator at baseURL.
func NewClient(baseURL string, timeout time.Duration, retries int) *Client {
	backoff := heimdall.NewConstantBackoff(retryBackoff, retryMaxJitter)
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: httpclient.NewClient(
			httpclient.WithHTTPTimeout(timeout),
			httpclient.WithRetryCount(retries),
			httpclient.WithRetrier(heimdall.NewRetrier(backoff)),
		),
	}
}

// Publish sends one batch.
func (c *Client) Publish(ctx context.Context, events []Event) (PublishResult, error) {
	body, err := json.Marshal(events)
	if err != nil {
		return PublishResult{}, fmt.Errorf("marshal batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/publish", bytes.NewReader(body))
	if err != nil {
		return PublishResult{}, fmt.Errorf("build publish request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var res PublishResult
	if err := c.do(req, &res); err != nil {
		return PublishResult{}, fmt.Errorf("publish %d events: %w", len(events), err)
	}
	return res, nil
}

// Stats fetches the aggregator's counters.
func (c *Client) Stats(ctx context.Context) (Stats, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/stats", http.NoBody)
	if err != nil {
		return Stats{}, fmt.Errorf("build stats request: %w", err)
	}

	var st Stats
	if err := c.do(req, &st); err != nil {
		return Stats{}, fmt.Errorf("get stats: %w", err)
	}
	return st, nil
}

// WaitReady polls /stats until it answers or attempts run out.
func (c *Client) WaitReady(ctx context.Context, attempts int, delay time.Duration) error {
	var lastErr error
	for i := 0; i < attempts; i++ {
		if _, lastErr = c.Stats(ctx); lastErr == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %w", ErrNotReady, ctx.Err())
		case <-time.After(delay):
		}
	}
	return fmt.Errorf("%w: %w", ErrNotReady, lastErr)
}

func (c *Client) do(req *http.Request, out any) error {
	// heimdall can return an error from an earlier attempt together with the
	// final response; the response wins.
	resp, err := c.http.Do(req)
	if resp == nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	raw, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return fmt.Errorf("read response: %w", readErr)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d: %s", ErrUnexpected, resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: decode body: %w", ErrUnexpected, err)
	}
	return nil
}
