package api

import "github.com/mmattdonk/solrock-eventsub/internal/helix"

// HealthzResponse is the response for GET /healthz.
type HealthzResponse struct {
	Status              string `json:"status"`
	UptimeSeconds       int64  `json:"uptime_seconds"`
	Ledger              string `json:"ledger"`
	RegistrationEnabled bool   `json:"registration_enabled"`
	EventSubscribers    int    `json:"event_subscribers"`
	EventsDropped       uint64 `json:"events_dropped"`
}

// NewUserRequest is the body of POST /newuser.
type NewUserRequest struct {
	StreamerID string `json:"streamerId"`
}

// NewUserResponse is the response for a successful POST /newuser.
type NewUserResponse struct {
	Status        string               `json:"status"`
	Subscriptions []helix.Registration `json:"subscriptions"`
}

// ErrorResponse is the JSON response for API errors.
type ErrorResponse struct {
	Error string `json:"error"`
}
