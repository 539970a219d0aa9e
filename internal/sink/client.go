// Package sink submits resolved messages to the serverless processing
// function that renders them on a streamer's overlay.
package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/mmattdonk/solrock-eventsub/internal/metrics"
)

// Submission is the processor's request body.
type Submission struct {
	Message   string `json:"message"`
	OverlayID string `json:"overlayId"`
}

// StatusError is returned when the processor answers with a non-2xx status.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("processor status %d", e.Code)
}

// Client posts submissions to a single processor URL. Any 2xx is an ack.
type Client struct {
	url        string
	httpClient *http.Client
	metrics    *metrics.Metrics
}

// NewClient returns a sink client. httpClient may be nil.
func NewClient(url string, httpClient *http.Client, m *metrics.Metrics) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{url: url, httpClient: httpClient, metrics: m}
}

// Submit posts s once. There is no retry; the caller bounds the call with ctx.
func (c *Client) Submit(ctx context.Context, s Submission) error {
	body, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode submission: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build processor request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.Downstream("processor", 0)
		return fmt.Errorf("submit to processor: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))
	c.metrics.Downstream("processor", resp.StatusCode)

	if resp.StatusCode/100 != 2 {
		return &StatusError{Code: resp.StatusCode}
	}
	return nil
}
