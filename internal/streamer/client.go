// Package streamer looks up the streamer that owns a Twitch broadcaster id
// in the solrock API.
package streamer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/mmattdonk/solrock-eventsub/internal/metrics"
)

const maxResponseSize = 1 << 20

// ErrNotFound is returned when no streamer (or no overlay) is registered for
// a broadcaster id.
var ErrNotFound = errors.New("streamer not found")

// Record is the part of a streamer the gateway needs.
type Record struct {
	ID        string `json:"id"`
	OverlayID string `json:"overlayId"`
}

type lookupResponse struct {
	Message  string  `json:"message"`
	Streamer *Record `json:"streamer"`
}

// StatusError is returned for a non-2xx response other than 404.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("streamer api status %d", e.Code)
}

// Client calls GET {baseURL}/api/streamers/streamerId/{id}.
type Client struct {
	baseURL    string
	secret     string
	httpClient *http.Client
	metrics    *metrics.Metrics
}

// NewClient returns a lookup client. secret is sent in the "secret" header
// the API expects. httpClient may be nil.
func NewClient(baseURL, secret string, httpClient *http.Client, m *metrics.Metrics) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		secret:     secret,
		httpClient: httpClient,
		metrics:    m,
	}
}

// GetByBroadcasterID resolves a broadcaster id. The caller bounds the call
// with ctx.
func (c *Client) GetByBroadcasterID(ctx context.Context, broadcasterID string) (Record, error) {
	endpoint := c.baseURL + "/api/streamers/streamerId/" + url.PathEscape(broadcasterID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Record{}, fmt.Errorf("build streamer request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("secret", c.secret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.Downstream("streamer_api", 0)
		return Record{}, fmt.Errorf("streamer lookup: %w", err)
	}
	defer resp.Body.Close()
	c.metrics.Downstream("streamer_api", resp.StatusCode)

	if resp.StatusCode == http.StatusNotFound {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseSize))
		return Record{}, fmt.Errorf("%w: broadcaster %s", ErrNotFound, broadcasterID)
	}
	if resp.StatusCode/100 != 2 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseSize))
		return Record{}, &StatusError{Code: resp.StatusCode}
	}

	var body lookupResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseSize)).Decode(&body); err != nil {
		return Record{}, fmt.Errorf("decode streamer response: %w", err)
	}
	if body.Streamer == nil || body.Streamer.ID == "" {
		return Record{}, fmt.Errorf("%w: broadcaster %s", ErrNotFound, broadcasterID)
	}
	if body.Streamer.OverlayID == "" {
		return Record{}, fmt.Errorf("%w: streamer %s has no overlay", ErrNotFound, body.Streamer.ID)
	}
	return *body.Streamer, nil
}
