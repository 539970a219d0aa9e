package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/mmattdonk/solrock-eventsub/internal/events"
	"github.com/mmattdonk/solrock-eventsub/internal/helix"
	"github.com/mmattdonk/solrock-eventsub/internal/metrics"
)

const apiSecret = "api-secret"

type mockRegistrar struct {
	mu         sync.Mutex
	calls      []string
	registerFn func(ctx context.Context, broadcasterID string) ([]helix.Registration, error)
}

func (m *mockRegistrar) Register(ctx context.Context, broadcasterID string) ([]helix.Registration, error) {
	m.mu.Lock()
	m.calls = append(m.calls, broadcasterID)
	m.mu.Unlock()
	if m.registerFn != nil {
		return m.registerFn(ctx, broadcasterID)
	}
	return []helix.Registration{
		{Type: "channel.subscription.message", SubscriptionID: "a", Status: "webhook_callback_verification_pending"},
		{Type: "channel.cheer", SubscriptionID: "b", Status: "webhook_callback_verification_pending"},
	}, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestServer(t *testing.T, registrar Registrar, eventsub http.Handler) (*Server, *events.Hub, *prometheus.Registry) {
	t.Helper()
	if eventsub == nil {
		eventsub = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		})
	}
	reg := prometheus.NewRegistry()
	hub := events.NewHub(16)
	s := New(Config{
		APISecret:         apiSecret,
		LedgerBackend:     "sqlite",
		RegistrationRate:  100,
		RegistrationBurst: 100,
	}, eventsub, registrar, hub, reg, metrics.New(reg), testLogger())
	return s, hub, reg
}

func do(s *Server, method, path, body, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	s, _, _ := newTestServer(t, &mockRegistrar{}, nil)

	rec := do(s, http.MethodGet, "/healthz", "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp HealthzResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "sqlite", resp.Ledger)
	assert.True(t, resp.RegistrationEnabled)
	assert.GreaterOrEqual(t, resp.UptimeSeconds, int64(0))
}

func TestEventSubIsMounted(t *testing.T) {
	called := false
	s, _, _ := newTestServer(t, nil, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := do(s, http.MethodPost, "/eventsub", `{}`, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.True(t, called)

	rec = do(s, http.MethodGet, "/eventsub", "", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	s, _, _ := newTestServer(t, &mockRegistrar{}, nil)

	// Produce at least one sample.
	do(s, http.MethodPost, "/newuser", `{"streamerId":"42"}`, apiSecret)

	rec := do(s, http.MethodGet, "/metrics", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "eventsub_gw_helix_registrations_total")
}

func TestNewUser(t *testing.T) {
	tests := []struct {
		name      string
		token     string
		body      string
		registrar *mockRegistrar
		want      int
		wantCalls int
	}{
		{
			name:      "registers both subscriptions",
			token:     apiSecret,
			body:      `{"streamerId":"42"}`,
			registrar: &mockRegistrar{},
			want:      http.StatusOK,
			wantCalls: 1,
		},
		{
			name:      "missing token",
			body:      `{"streamerId":"42"}`,
			registrar: &mockRegistrar{},
			want:      http.StatusForbidden,
		},
		{
			name:      "wrong token",
			token:     "not-the-secret",
			body:      `{"streamerId":"42"}`,
			registrar: &mockRegistrar{},
			want:      http.StatusForbidden,
		},
		{
			name:      "missing streamer id",
			token:     apiSecret,
			body:      `{}`,
			registrar: &mockRegistrar{},
			want:      http.StatusBadRequest,
		},
		{
			name:      "invalid json",
			token:     apiSecret,
			body:      `{"streamerId":`,
			registrar: &mockRegistrar{},
			want:      http.StatusBadRequest,
		},
		{
			name:  "helix failure",
			token: apiSecret,
			body:  `{"streamerId":"42"}`,
			registrar: &mockRegistrar{registerFn: func(ctx context.Context, id string) ([]helix.Registration, error) {
				return nil, &helix.APIError{Code: 401, Message: "Invalid OAuth token"}
			}},
			want:      http.StatusBadGateway,
			wantCalls: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, hub, _ := newTestServer(t, tt.registrar, nil)

			rec := do(s, http.MethodPost, "/newuser", tt.body, tt.token)
			assert.Equal(t, tt.want, rec.Code)
			assert.Len(t, tt.registrar.calls, tt.wantCalls)

			if tt.want == http.StatusOK {
				var resp NewUserResponse
				require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
				assert.Equal(t, "OK", resp.Status)
				assert.Len(t, resp.Subscriptions, 2)
				assert.Equal(t, []string{"42"}, tt.registrar.calls)

				snap := hub.SnapshotSince(0)
				require.Len(t, snap, 2)
				assert.Equal(t, events.SubscriptionRegistered, snap[0].Type)
			}
			if tt.want == http.StatusBadGateway {
				assert.NotContains(t, rec.Body.String(), "OAuth")
			}
		})
	}
}

func TestNewUser_RegistrationDisabled(t *testing.T) {
	s, _, _ := newTestServer(t, nil, nil)

	rec := do(s, http.MethodPost, "/newuser", `{"streamerId":"42"}`, apiSecret)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestNewUser_RateLimited(t *testing.T) {
	reg := prometheus.NewRegistry()
	s := New(Config{
		APISecret:         apiSecret,
		RegistrationRate:  0.001,
		RegistrationBurst: 1,
	}, http.NotFoundHandler(), &mockRegistrar{}, events.NewHub(4), reg, metrics.New(reg), testLogger())
	h := s.Handler()

	send := func() int {
		req := httptest.NewRequest(http.MethodPost, "/newuser", strings.NewReader(`{"streamerId":"42"}`))
		req.Header.Set("Authorization", "Bearer "+apiSecret)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, send())
	assert.Equal(t, http.StatusTooManyRequests, send())
}

func TestNewUser_RateLimitIsPerClient(t *testing.T) {
	reg := prometheus.NewRegistry()
	s := New(Config{
		APISecret:         apiSecret,
		RegistrationRate:  0.001,
		RegistrationBurst: 2,
	}, http.NotFoundHandler(), &mockRegistrar{}, events.NewHub(4), reg, metrics.New(reg), testLogger())
	h := s.Handler()

	send := func(remoteAddr, token string) int {
		req := httptest.NewRequest(http.MethodPost, "/newuser", strings.NewReader(`{"streamerId":"42"}`))
		req.RemoteAddr = remoteAddr
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	// An unauthenticated client drains its own bucket.
	assert.Equal(t, http.StatusForbidden, send("198.51.100.7:4000", ""))
	assert.Equal(t, http.StatusForbidden, send("198.51.100.7:4001", "wrong"))
	assert.Equal(t, http.StatusTooManyRequests, send("198.51.100.7:4002", ""))

	// The admin on another address is unaffected.
	assert.Equal(t, http.StatusOK, send("203.0.113.9:5000", apiSecret))
	assert.Equal(t, http.StatusOK, send("203.0.113.9:5001", apiSecret))
	assert.Equal(t, http.StatusTooManyRequests, send("203.0.113.9:5002", apiSecret))
}

func TestClientLimiters_PrunesIdleClients(t *testing.T) {
	c := newClientLimiters(rate.Limit(0.001), 1)
	start := time.Unix(1700000000, 0)

	for i := 0; i < maxTrackedClients; i++ {
		require.True(t, c.allow(fmt.Sprintf("10.0.%d.%d", i/256, i%256), start))
	}
	require.Len(t, c.clients, maxTrackedClients)

	later := start.Add(clientIdleTTL + time.Second)
	assert.True(t, c.allow("192.0.2.50", later))
	assert.Len(t, c.clients, 1)
	assert.False(t, c.allow("192.0.2.50", later))
}

func TestEvents_RequiresToken(t *testing.T) {
	s, _, _ := newTestServer(t, nil, nil)
	rec := do(s, http.MethodGet, "/events", "", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestEvents_StreamsSnapshotAndLiveEvents(t *testing.T) {
	s, hub, _ := newTestServer(t, nil, nil)
	hub.Publish(events.DeliveryChallenge, map[string]string{"subscription_type": "channel.cheer"})

	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/events", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+apiSecret)

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	readEvent := func() (string, string) {
		var typ, data string
		for {
			line, err := reader.ReadString('\n')
			require.NoError(t, err)
			line = strings.TrimRight(line, "\n")
			switch {
			case strings.HasPrefix(line, "event: "):
				typ = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				data = strings.TrimPrefix(line, "data: ")
			case line == "" && typ != "":
				return typ, data
			}
		}
	}

	typ, data := readEvent()
	assert.Equal(t, events.DeliveryChallenge, typ)
	assert.JSONEq(t, `{"subscription_type":"channel.cheer"}`, data)

	hub.Publish(events.NotificationDispatched, map[string]string{"overlay_id": "ov1"})
	typ, data = readEvent()
	assert.Equal(t, events.NotificationDispatched, typ)
	assert.JSONEq(t, `{"overlay_id":"ov1"}`, data)
}

func openEventStream(t *testing.T, s *Server, query, lastEventID string) *bufio.Reader {
	t.Helper()
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/events"+query, nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+apiSecret)
	if lastEventID != "" {
		req.Header.Set("Last-Event-ID", lastEventID)
	}

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	require.Equal(t, http.StatusOK, resp.StatusCode)
	return bufio.NewReader(resp.Body)
}

// nextEvent reads frames until one carrying an event type is complete.
func nextEvent(t *testing.T, reader *bufio.Reader) (id, typ string) {
	t.Helper()
	for {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		switch {
		case strings.HasPrefix(line, "id: "):
			id = strings.TrimPrefix(line, "id: ")
		case strings.HasPrefix(line, "event: "):
			typ = strings.TrimPrefix(line, "event: ")
		case line == "" && typ != "":
			return id, typ
		}
	}
}

func TestEvents_ResumesAndFiltersByType(t *testing.T) {
	s, hub, _ := newTestServer(t, nil, nil)
	hub.Publish(events.SubscriptionRevoked, nil)    // 1, before Last-Event-ID
	hub.Publish(events.NotificationDispatched, nil) // 2, filtered
	hub.Publish(events.SubscriptionRegistered, nil) // 3

	reader := openEventStream(t, s, "?type=subscription,delivery.challenge", "1")

	id, typ := nextEvent(t, reader)
	assert.Equal(t, "3", id)
	assert.Equal(t, events.SubscriptionRegistered, typ)

	hub.Publish(events.NotificationFailed, nil)
	hub.Publish(events.DeliveryRejected, nil)
	hub.Publish(events.DeliveryChallenge, nil)

	id, typ = nextEvent(t, reader)
	assert.Equal(t, "6", id)
	assert.Equal(t, events.DeliveryChallenge, typ)
}

func TestEvents_SendsRetryAndKeepAlive(t *testing.T) {
	reg := prometheus.NewRegistry()
	s := New(Config{
		APISecret:       apiSecret,
		EventsKeepAlive: 20 * time.Millisecond,
	}, http.NotFoundHandler(), nil, events.NewHub(4), reg, metrics.New(reg), testLogger())

	reader := openEventStream(t, s, "", "")

	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "retry: 3000\n", line)

	for {
		line, err = reader.ReadString('\n')
		require.NoError(t, err)
		if line == ": keep-alive\n" {
			return
		}
	}
}

func TestEventStream_Wants(t *testing.T) {
	tests := []struct {
		filter    string
		eventType string
		want      bool
	}{
		{"", events.DeliveryRejected, true},
		{"notification", events.NotificationDropped, true},
		{"notification", events.DeliveryDuplicate, false},
		{"delivery.duplicate", events.DeliveryDuplicate, true},
		{"delivery.dup", events.DeliveryDuplicate, false},
		{" subscription , delivery ", events.SubscriptionRevoked, true},
		{",,", events.SubscriptionRevoked, true},
	}
	for _, tt := range tests {
		st := &eventStream{kinds: parseKinds(tt.filter)}
		assert.Equal(t, tt.want, st.wants(tt.eventType), "filter %q type %q", tt.filter, tt.eventType)
	}
}

func TestParseLastEventID(t *testing.T) {
	assert.Equal(t, int64(0), parseLastEventID(""))
	assert.Equal(t, int64(0), parseLastEventID("abc"))
	assert.Equal(t, int64(0), parseLastEventID("-4"))
	assert.Equal(t, int64(12), parseLastEventID("12"))
}

func TestStart_ShutsDownOnCancel(t *testing.T) {
	s, _, _ := newTestServer(t, nil, nil)
	s.config.Listen = "127.0.0.1:0"

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.True(t, errors.Is(err, context.Canceled), "got %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
