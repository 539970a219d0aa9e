package helix

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/mmattdonk/solrock-eventsub/internal/eventsub"
)

// SubscriptionCreator is the part of Client the Registrar needs.
type SubscriptionCreator interface {
	CreateSubscription(ctx context.Context, req SubscriptionRequest) (eventsub.Subscription, error)
}

// DefaultTypes are the subscriptions registered for every streamer.
var DefaultTypes = []string{eventsub.TypeSubscriptionMessage, eventsub.TypeCheer}

// Registrar registers the gateway's subscriptions for a broadcaster.
type Registrar struct {
	creator  SubscriptionCreator
	callback string
	secret   string
	types    []string
	logger   *slog.Logger
}

// NewRegistrar returns a Registrar that points Twitch at callback and signs
// deliveries with secret, the same secret the webhook endpoint verifies with.
func NewRegistrar(creator SubscriptionCreator, callback, secret string, logger *slog.Logger) *Registrar {
	return &Registrar{
		creator:  creator,
		callback: callback,
		secret:   secret,
		types:    DefaultTypes,
		logger:   logger,
	}
}

// Registration is the outcome for one subscription type.
type Registration struct {
	Type           string `json:"type"`
	SubscriptionID string `json:"subscription_id,omitempty"`
	Status         string `json:"status"`
}

// Register creates every subscription type concurrently. An already
// registered subscription counts as success. The first failure cancels the
// remaining requests and is returned.
func (r *Registrar) Register(ctx context.Context, broadcasterID string) ([]Registration, error) {
	if broadcasterID == "" {
		return nil, errors.New("broadcaster id is empty")
	}

	// Indexed by position in r.types so the result order is stable.
	out := make([]Registration, len(r.types))

	g, gctx := errgroup.WithContext(ctx)
	for i, subType := range r.types {
		g.Go(func() error {
			sub, err := r.creator.CreateSubscription(gctx, SubscriptionRequest{
				Type:      subType,
				Version:   "1",
				Condition: Condition{BroadcasterUserID: broadcasterID},
				Transport: Transport{Method: "webhook", Callback: r.callback, Secret: r.secret},
			})

			reg := Registration{Type: subType}
			switch {
			case errors.Is(err, ErrAlreadyExists):
				reg.Status = "exists"
			case err != nil:
				return fmt.Errorf("register %s for %s: %w", subType, broadcasterID, err)
			default:
				reg.SubscriptionID = sub.ID
				reg.Status = sub.Status
			}

			r.logger.Info("eventsub subscription registered",
				"broadcaster_id", broadcasterID,
				"subscription_type", subType,
				"subscription_id", reg.SubscriptionID,
				"status", reg.Status,
			)
			out[i] = reg
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
