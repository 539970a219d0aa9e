package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/mmattdonk/solrock-eventsub/internal/dispatch"
	"github.com/mmattdonk/solrock-eventsub/internal/events"
	"github.com/mmattdonk/solrock-eventsub/internal/eventsub"
	"github.com/mmattdonk/solrock-eventsub/internal/ledger"
	"github.com/mmattdonk/solrock-eventsub/internal/log"
	"github.com/mmattdonk/solrock-eventsub/internal/metrics"
)

// Server is the POST /eventsub endpoint. It is an http.Handler; the API
// server mounts it on the public router.
type Server struct {
	config     Config
	dispatcher Dispatcher
	ledger     Ledger
	events     events.Publisher
	metrics    *metrics.Metrics
	logger     *slog.Logger
	now        func() time.Time
}

// New creates the endpoint. ledger, hub and m may be nil.
func New(config Config, dispatcher Dispatcher, ledger Ledger, hub events.Publisher, m *metrics.Metrics, logger *slog.Logger) *Server {
	if config.MaxBodySize <= 0 {
		config.MaxBodySize = DefaultMaxBodySize
	}
	return &Server{
		config:     config,
		dispatcher: dispatcher,
		ledger:     ledger,
		events:     hub,
		metrics:    m,
		logger:     logger,
		now:        time.Now,
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
	s.handleEventSub(ww, r)
	s.metrics.Delivery(Classify(r.Header.Get(eventsub.HeaderMessageType)).String(), ww.Status())
}

// handleEventSub authenticates, classifies and acts on one delivery. Nothing
// in the body is interpreted until the signature has been verified.
func (s *Server) handleEventSub(w http.ResponseWriter, r *http.Request) {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "application/json" {
		s.respondError(w, http.StatusUnsupportedMediaType, "unsupported media type")
		return
	}

	// Enforce body size limit
	body, err := io.ReadAll(io.LimitReader(r.Body, s.config.MaxBodySize+1))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	if int64(len(body)) > s.config.MaxBodySize {
		s.respondError(w, http.StatusRequestEntityTooLarge, "payload too large")
		return
	}

	raw := eventsub.CaptureRequest(r.Header, body)
	logger := log.WithMessage(s.logger, raw.MessageID).With(
		"request_id", middleware.GetReqID(r.Context()),
	)

	if err := s.authenticate(raw); err != nil {
		logger.Warn("eventsub delivery rejected", "error", err)
		s.publish(events.DeliveryRejected, map[string]string{
			"message_id": raw.MessageID,
			"reason":     rejectReason(err),
		})
		s.respondError(w, http.StatusForbidden, "forbidden")
		return
	}

	route := Classify(raw.MessageType)
	if route == RouteUnknown {
		logger.Info("ignoring eventsub delivery with unknown message type",
			"message_type", raw.MessageType,
		)
		w.WriteHeader(http.StatusNoContent)
		return
	}

	n, err := eventsub.Parse(raw.MessageType, raw.Body)
	if err != nil {
		logger.Warn("malformed eventsub delivery", "message_type", raw.MessageType, "error", err)
		s.respondError(w, http.StatusBadRequest, "malformed notification")
		return
	}
	logger = log.WithSubscription(logger, n.Subscription.Type)

	switch route {
	case RouteChallenge:
		s.handleChallenge(w, n, logger)
	case RouteNotification:
		s.handleNotification(r.Context(), w, raw, n, logger)
	case RouteRevocation:
		s.handleRevocation(w, raw, n, logger)
	}
}

// authenticate checks the signature headers and, after the signature passes,
// the replay window.
func (s *Server) authenticate(raw eventsub.RawRequest) error {
	if raw.MessageID == "" || raw.Timestamp == "" || raw.Signature == "" {
		return fmt.Errorf("%w: missing eventsub headers", ErrSignatureMismatch)
	}
	if !Verify(s.config.Secret, raw.MessageID, raw.Timestamp, raw.Body, raw.Signature) {
		return ErrSignatureMismatch
	}

	if s.config.MaxMessageAge <= 0 {
		return nil
	}
	sent, err := time.Parse(time.RFC3339Nano, raw.Timestamp)
	if err != nil {
		return fmt.Errorf("%w: unparseable timestamp %q", ErrStaleMessage, raw.Timestamp)
	}
	age := s.now().Sub(sent)
	if age > s.config.MaxMessageAge || age < -s.config.MaxMessageAge {
		return fmt.Errorf("%w: age %s", ErrStaleMessage, age.Round(time.Second))
	}
	return nil
}

func (s *Server) handleChallenge(w http.ResponseWriter, n eventsub.Notification, logger *slog.Logger) {
	logger.Info("answering eventsub callback verification",
		"subscription_id", n.Subscription.ID,
		"status", n.Subscription.Status,
	)
	s.publish(events.DeliveryChallenge, map[string]string{
		"subscription_id":   n.Subscription.ID,
		"subscription_type": n.Subscription.Type,
	})

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, n.Challenge)
}

func (s *Server) handleNotification(ctx context.Context, w http.ResponseWriter, raw eventsub.RawRequest, n eventsub.Notification, logger *slog.Logger) {
	claimed := false
	if s.ledger != nil {
		outcome, err := s.ledger.Claim(ctx, raw.MessageID, ledger.Digest(raw.Body))
		switch {
		case err != nil:
			// Fail open: a ledger outage must not stop delivery.
			logger.Warn("delivery ledger unavailable, dispatching without duplicate check", "error", err)
			s.metrics.LedgerClaim("error")
		case outcome == ledger.Fresh:
			claimed = true
			s.metrics.LedgerClaim(outcome.String())
		default:
			s.metrics.LedgerClaim(outcome.String())
			if outcome == ledger.Conflict {
				logger.Warn("message id reused with a different body, keeping the first delivery")
			} else {
				logger.Info("duplicate eventsub delivery acknowledged")
			}
			s.publish(events.DeliveryDuplicate, map[string]string{
				"message_id":        raw.MessageID,
				"subscription_type": n.Subscription.Type,
				"outcome":           outcome.String(),
			})
			w.WriteHeader(http.StatusNoContent)
			return
		}
	}

	res, err := s.dispatcher.Dispatch(ctx, n)
	if err != nil {
		if claimed {
			s.release(ctx, raw.MessageID, logger)
		}
		logger.Error("eventsub dispatch failed",
			"broadcaster_id", res.BroadcasterID,
			"error", err,
		)
		s.publish(events.NotificationFailed, map[string]string{
			"message_id":        raw.MessageID,
			"subscription_type": n.Subscription.Type,
			"broadcaster_id":    res.BroadcasterID,
			"reason":            failureReason(err),
		})
		s.respondError(w, http.StatusInternalServerError, "event dispatch failed")
		return
	}

	if res.Dropped {
		s.publish(events.NotificationDropped, map[string]string{
			"message_id":        raw.MessageID,
			"subscription_type": n.Subscription.Type,
		})
	} else {
		logger.Info("eventsub notification dispatched",
			"broadcaster_id", res.BroadcasterID,
			"overlay_id", res.OverlayID,
		)
		s.publish(events.NotificationDispatched, map[string]string{
			"message_id":        raw.MessageID,
			"subscription_type": n.Subscription.Type,
			"broadcaster_id":    res.BroadcasterID,
			"overlay_id":        res.OverlayID,
		})
	}
	w.WriteHeader(http.StatusNoContent)
}

// release drops the claim so Twitch's retry of a failed dispatch is processed.
func (s *Server) release(ctx context.Context, messageID string, logger *slog.Logger) {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := s.ledger.Release(rctx, messageID); err != nil {
		logger.Warn("failed to release delivery claim", "error", err)
	}
}

func (s *Server) handleRevocation(w http.ResponseWriter, raw eventsub.RawRequest, n eventsub.Notification, logger *slog.Logger) {
	logger.Warn("eventsub subscription revoked",
		"subscription_id", n.Subscription.ID,
		"status", n.Subscription.Status,
		"condition", string(n.Subscription.Condition),
	)
	s.publish(events.SubscriptionRevoked, map[string]any{
		"message_id":        raw.MessageID,
		"subscription_id":   n.Subscription.ID,
		"subscription_type": n.Subscription.Type,
		"status":            n.Subscription.Status,
		"condition":         n.Subscription.Condition,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) publish(eventType string, data any) {
	if s.events != nil {
		s.events.Publish(eventType, data)
	}
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, ErrStaleMessage):
		return "stale_timestamp"
	default:
		return "signature_mismatch"
	}
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, dispatch.ErrStreamerNotFound):
		return "streamer_not_found"
	case errors.Is(err, dispatch.ErrDownstreamUnavailable):
		return "downstream_unavailable"
	default:
		return "error"
	}
}

// respondJSON sends a JSON response.
func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// respondError sends a JSON error response.
func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, ErrorResponse{Error: message})
}
