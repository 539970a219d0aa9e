package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mmattdonk/solrock-eventsub/internal/eventsub"
	"github.com/mmattdonk/solrock-eventsub/internal/metrics"
	"github.com/mmattdonk/solrock-eventsub/internal/sink"
	"github.com/mmattdonk/solrock-eventsub/internal/streamer"
)

//go:generate mockgen -destination=mocks/mock_dispatch.go -package=mocks github.com/mmattdonk/solrock-eventsub/internal/dispatch StreamerLookup,ProcessingSink

var (
	// ErrStreamerNotFound means the broadcaster has no registered streamer.
	ErrStreamerNotFound = errors.New("streamer not found")
	// ErrDownstreamUnavailable means the lookup or the submission failed.
	ErrDownstreamUnavailable = errors.New("downstream unavailable")
)

// StreamerLookup resolves a broadcaster id to a streamer record. It returns
// an error wrapping streamer.ErrNotFound when there is no match.
type StreamerLookup interface {
	GetByBroadcasterID(ctx context.Context, broadcasterID string) (streamer.Record, error)
}

// ProcessingSink accepts a resolved message for processing.
type ProcessingSink interface {
	Submit(ctx context.Context, s sink.Submission) error
}

// Config bounds the two downstream calls.
type Config struct {
	LookupTimeout time.Duration
	SinkTimeout   time.Duration
}

const defaultTimeout = 5 * time.Second

// Result describes what Dispatch did with a notification.
type Result struct {
	// Dropped is set when the subscription type has no route.
	Dropped       bool
	BroadcasterID string
	StreamerID    string
	OverlayID     string
}

// Dispatcher routes notifications to the processing sink. It holds no
// mutable state and is safe for concurrent use.
type Dispatcher struct {
	config  Config
	lookup  StreamerLookup
	sink    ProcessingSink
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// New creates a dispatcher. m may be nil.
func New(config Config, lookup StreamerLookup, sink ProcessingSink, logger *slog.Logger, m *metrics.Metrics) *Dispatcher {
	if config.LookupTimeout <= 0 {
		config.LookupTimeout = defaultTimeout
	}
	if config.SinkTimeout <= 0 {
		config.SinkTimeout = defaultTimeout
	}
	return &Dispatcher{
		config:  config,
		lookup:  lookup,
		sink:    sink,
		logger:  logger,
		metrics: m,
	}
}

// Dispatch performs exactly one lookup and at most one submission for a
// routable notification. Unroutable subscription types return
// Result{Dropped: true} and a nil error.
func (d *Dispatcher) Dispatch(ctx context.Context, n eventsub.Notification) (Result, error) {
	start := time.Now()
	subType := n.Subscription.Type

	broadcasterID, message, ok := extract(n.Event)
	if !ok {
		d.logger.Info("dropping notification with unhandled subscription type",
			"subscription_type", subType,
		)
		d.metrics.Dispatch(subType, "dropped", time.Since(start))
		return Result{Dropped: true}, nil
	}
	res := Result{BroadcasterID: broadcasterID}

	// Outbound calls must finish even if the inbound client goes away.
	base := context.WithoutCancel(ctx)

	lookupCtx, cancel := context.WithTimeout(base, d.config.LookupTimeout)
	rec, err := d.lookup.GetByBroadcasterID(lookupCtx, broadcasterID)
	cancel()
	if err != nil {
		if errors.Is(err, streamer.ErrNotFound) {
			d.metrics.Dispatch(subType, "not_found", time.Since(start))
			return res, fmt.Errorf("%w: broadcaster %s: %v", ErrStreamerNotFound, broadcasterID, err)
		}
		d.metrics.Dispatch(subType, "unavailable", time.Since(start))
		return res, fmt.Errorf("%w: streamer lookup: %v", ErrDownstreamUnavailable, err)
	}
	res.StreamerID = rec.ID
	res.OverlayID = rec.OverlayID

	sinkCtx, cancel := context.WithTimeout(base, d.config.SinkTimeout)
	err = d.sink.Submit(sinkCtx, sink.Submission{Message: message, OverlayID: rec.OverlayID})
	cancel()
	if err != nil {
		d.metrics.Dispatch(subType, "unavailable", time.Since(start))
		return res, fmt.Errorf("%w: submit: %v", ErrDownstreamUnavailable, err)
	}

	d.metrics.Dispatch(subType, "dispatched", time.Since(start))
	return res, nil
}

// extract returns the broadcaster id and chat message for event types that
// have a route.
func extract(ev eventsub.EventPayload) (broadcasterID, message string, ok bool) {
	switch e := ev.(type) {
	case eventsub.SubscriptionMessageEvent:
		return e.BroadcasterUserID, e.Message.Text, true
	case eventsub.CheerEvent:
		return e.BroadcasterUserID, e.Message, true
	default:
		return "", "", false
	}
}
