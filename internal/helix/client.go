// Package helix creates EventSub webhook subscriptions through the Twitch
// Helix API.
package helix

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/mmattdonk/solrock-eventsub/internal/eventsub"
	"github.com/mmattdonk/solrock-eventsub/internal/metrics"
)

// ErrAlreadyExists is returned when Twitch answers 409: an identical
// subscription is already registered.
var ErrAlreadyExists = errors.New("subscription already exists")

// Condition selects the broadcaster a subscription applies to.
type Condition struct {
	BroadcasterUserID string `json:"broadcaster_user_id"`
}

// Transport tells Twitch where and how to deliver.
type Transport struct {
	Method   string `json:"method"`
	Callback string `json:"callback"`
	Secret   string `json:"secret,omitempty"`
}

// SubscriptionRequest is the body of POST /eventsub/subscriptions.
type SubscriptionRequest struct {
	Type      string    `json:"type"`
	Version   string    `json:"version"`
	Condition Condition `json:"condition"`
	Transport Transport `json:"transport"`
}

type createResponse struct {
	Data []eventsub.Subscription `json:"data"`
}

// APIError is a non-2xx Helix response.
type APIError struct {
	Code    int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("helix status %d", e.Code)
	}
	return fmt.Sprintf("helix status %d: %s", e.Code, e.Message)
}

// Client is a minimal Helix client authenticated with an app access token.
type Client struct {
	baseURL     string
	clientID    string
	accessToken string
	httpClient  *http.Client
	metrics     *metrics.Metrics
}

// NewClient returns a Helix client. baseURL is normally
// https://api.twitch.tv/helix. httpClient may be nil.
func NewClient(baseURL, clientID, accessToken string, httpClient *http.Client, m *metrics.Metrics) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		clientID:    clientID,
		accessToken: accessToken,
		httpClient:  httpClient,
		metrics:     m,
	}
}

// CreateSubscription registers one subscription. Twitch answers 202 and then
// sends a webhook_callback_verification to the callback.
func (c *Client) CreateSubscription(ctx context.Context, req SubscriptionRequest) (eventsub.Subscription, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return eventsub.Subscription{}, fmt.Errorf("encode subscription: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/eventsub/subscriptions", bytes.NewReader(body))
	if err != nil {
		return eventsub.Subscription{}, fmt.Errorf("build helix request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Client-Id", c.clientID)
	httpReq.Header.Set("Authorization", "Bearer "+c.accessToken)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.metrics.Downstream("helix", 0)
		return eventsub.Subscription{}, fmt.Errorf("create subscription: %w", err)
	}
	defer resp.Body.Close()
	c.metrics.Downstream("helix", resp.StatusCode)

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return eventsub.Subscription{}, fmt.Errorf("read helix response: %w", err)
	}

	if resp.StatusCode == http.StatusConflict {
		return eventsub.Subscription{}, ErrAlreadyExists
	}
	if resp.StatusCode/100 != 2 {
		var apiErr struct {
			Message string `json:"message"`
		}
		_ = json.Unmarshal(raw, &apiErr)
		return eventsub.Subscription{}, &APIError{Code: resp.StatusCode, Message: apiErr.Message}
	}

	var out createResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return eventsub.Subscription{}, fmt.Errorf("decode helix response: %w", err)
	}
	if len(out.Data) == 0 {
		return eventsub.Subscription{}, errors.New("helix response has no subscription")
	}
	return out.Data[0], nil
}
