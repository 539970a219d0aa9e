package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mmattdonk/solrock-eventsub/internal/auth"
	"github.com/mmattdonk/solrock-eventsub/internal/events"
)

const maxNewUserBody = 64 << 10

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	ledger := s.config.LedgerBackend
	if ledger == "" {
		ledger = "none"
	}
	respondJSON(w, http.StatusOK, HealthzResponse{
		Status:              "ok",
		UptimeSeconds:       int64(time.Since(s.startedAt).Seconds()),
		Ledger:              ledger,
		RegistrationEnabled: s.registrar != nil,
		EventSubscribers:    s.events.Subscribers(),
		EventsDropped:       s.events.Dropped(),
	})
}

// handleNewUser handles POST /newuser: it registers the gateway's EventSub
// subscriptions for a streamer's broadcaster id.
func (s *Server) handleNewUser(w http.ResponseWriter, r *http.Request) {
	if s.registrar == nil {
		s.writeError(w, http.StatusServiceUnavailable, "subscription registration is not configured")
		return
	}

	var req NewUserRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxNewUserBody))
	if err := dec.Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.StreamerID = strings.TrimSpace(req.StreamerID)
	if req.StreamerID == "" {
		s.writeError(w, http.StatusBadRequest, "streamerId is required")
		return
	}

	p, _ := auth.PrincipalFromContext(r.Context())
	logger := s.logger.With("broadcaster_id", req.StreamerID, "admin_request_id", p.RequestID)

	regs, err := s.registrar.Register(r.Context(), req.StreamerID)
	if err != nil {
		s.metrics.Registration("failed")
		logger.Error("subscription registration failed", "error", err)
		s.writeError(w, http.StatusBadGateway, "subscription registration failed")
		return
	}

	s.metrics.Registration("ok")
	for _, reg := range regs {
		s.events.Publish(events.SubscriptionRegistered, map[string]string{
			"broadcaster_id":    req.StreamerID,
			"subscription_type": reg.Type,
			"subscription_id":   reg.SubscriptionID,
			"status":            reg.Status,
			"admin_request_id":  p.RequestID,
		})
	}
	logger.Info("subscriptions registered", "count", len(regs))

	respondJSON(w, http.StatusOK, NewUserResponse{Status: "OK", Subscriptions: regs})
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, ErrorResponse{Error: message})
}
