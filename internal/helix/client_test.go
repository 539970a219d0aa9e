package helix

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmattdonk/solrock-eventsub/internal/eventsub"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestCreateSubscription(t *testing.T) {
	var got SubscriptionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/helix/eventsub/subscriptions", r.URL.Path)
		assert.Equal(t, "client-id", r.Header.Get("Client-Id"))
		assert.Equal(t, "Bearer app-token", r.Header.Get("Authorization"))
		b, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(b, &got))

		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"data":[{"id":"sub-1","status":"webhook_callback_verification_pending","type":"channel.cheer","version":"1"}],"total":1}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/helix/", "client-id", "app-token", srv.Client(), nil)
	sub, err := c.CreateSubscription(context.Background(), SubscriptionRequest{
		Type:      eventsub.TypeCheer,
		Version:   "1",
		Condition: Condition{BroadcasterUserID: "42"},
		Transport: Transport{Method: "webhook", Callback: "https://gw.example.com/eventsub", Secret: "eventsub-secret"},
	})
	require.NoError(t, err)
	assert.Equal(t, "sub-1", sub.ID)
	assert.Equal(t, "webhook_callback_verification_pending", sub.Status)

	assert.Equal(t, "42", got.Condition.BroadcasterUserID)
	assert.Equal(t, "eventsub-secret", got.Transport.Secret)
	assert.Equal(t, "webhook", got.Transport.Method)
}

func TestCreateSubscription_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		check  func(t *testing.T, err error)
	}{
		{
			name:   "conflict",
			status: http.StatusConflict,
			body:   `{"error":"Conflict","status":409,"message":"subscription already exists"}`,
			check: func(t *testing.T, err error) {
				assert.True(t, errors.Is(err, ErrAlreadyExists), "got %v", err)
			},
		},
		{
			name:   "unauthorized",
			status: http.StatusUnauthorized,
			body:   `{"error":"Unauthorized","status":401,"message":"Invalid OAuth token"}`,
			check: func(t *testing.T, err error) {
				var apiErr *APIError
				require.True(t, errors.As(err, &apiErr), "got %v", err)
				assert.Equal(t, http.StatusUnauthorized, apiErr.Code)
				assert.Equal(t, "Invalid OAuth token", apiErr.Message)
			},
		},
		{
			name:   "empty data",
			status: http.StatusAccepted,
			body:   `{"data":[]}`,
			check: func(t *testing.T, err error) {
				assert.Error(t, err)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewClient(srv.URL, "id", "token", srv.Client(), nil).CreateSubscription(context.Background(), SubscriptionRequest{})
			tt.check(t, err)
		})
	}
}

// fakeCreator records requests and fails for the types in failFor.
type fakeCreator struct {
	mu       sync.Mutex
	requests []SubscriptionRequest
	failFor  map[string]error
	delayFor map[string]time.Duration
}

func (f *fakeCreator) CreateSubscription(ctx context.Context, req SubscriptionRequest) (eventsub.Subscription, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	if d := f.delayFor[req.Type]; d > 0 {
		time.Sleep(d)
	}
	if err := f.failFor[req.Type]; err != nil {
		return eventsub.Subscription{}, err
	}
	return eventsub.Subscription{ID: "id-" + req.Type, Type: req.Type, Status: "webhook_callback_verification_pending"}, nil
}

func TestRegistrar_RegistersBothTypes(t *testing.T) {
	fc := &fakeCreator{}
	r := NewRegistrar(fc, "https://gw.example.com/eventsub", "eventsub-secret", testLogger())

	regs, err := r.Register(context.Background(), "42")
	require.NoError(t, err)
	require.Len(t, regs, 2)
	require.Len(t, fc.requests, 2)

	types := []string{fc.requests[0].Type, fc.requests[1].Type}
	sort.Strings(types)
	assert.Equal(t, []string{eventsub.TypeCheer, eventsub.TypeSubscriptionMessage}, types)

	for _, req := range fc.requests {
		assert.Equal(t, "1", req.Version)
		assert.Equal(t, "42", req.Condition.BroadcasterUserID)
		assert.Equal(t, Transport{Method: "webhook", Callback: "https://gw.example.com/eventsub", Secret: "eventsub-secret"}, req.Transport)
	}
}

func TestRegistrar_ResultOrderFollowsTypes(t *testing.T) {
	// The first type finishes last; results still come back in DefaultTypes order.
	fc := &fakeCreator{delayFor: map[string]time.Duration{DefaultTypes[0]: 50 * time.Millisecond}}
	r := NewRegistrar(fc, "https://gw.example.com/eventsub", "eventsub-secret", testLogger())

	regs, err := r.Register(context.Background(), "42")
	require.NoError(t, err)
	require.Len(t, regs, len(DefaultTypes))
	for i, typ := range DefaultTypes {
		assert.Equal(t, typ, regs[i].Type)
		assert.Equal(t, "id-"+typ, regs[i].SubscriptionID)
	}
}

func TestRegistrar_ExistingSubscriptionIsSuccess(t *testing.T) {
	fc := &fakeCreator{failFor: map[string]error{eventsub.TypeCheer: ErrAlreadyExists}}
	r := NewRegistrar(fc, "https://gw.example.com/eventsub", "eventsub-secret", testLogger())

	regs, err := r.Register(context.Background(), "42")
	require.NoError(t, err)

	statuses := map[string]string{}
	for _, reg := range regs {
		statuses[reg.Type] = reg.Status
	}
	assert.Equal(t, "exists", statuses[eventsub.TypeCheer])
}

func TestRegistrar_Failure(t *testing.T) {
	fc := &fakeCreator{failFor: map[string]error{eventsub.TypeSubscriptionMessage: &APIError{Code: 400}}}
	r := NewRegistrar(fc, "https://gw.example.com/eventsub", "eventsub-secret", testLogger())

	_, err := r.Register(context.Background(), "42")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr), "got %v", err)
	assert.Contains(t, err.Error(), eventsub.TypeSubscriptionMessage)
}

func TestRegistrar_EmptyBroadcaster(t *testing.T) {
	fc := &fakeCreator{}
	_, err := NewRegistrar(fc, "cb", "s", testLogger()).Register(context.Background(), "")
	assert.Error(t, err)
	assert.Empty(t, fc.requests)
}
