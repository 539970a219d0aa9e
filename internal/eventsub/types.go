// Package eventsub models Twitch EventSub webhook deliveries: the request
// headers, the message types, and the notification body as a tagged union
// keyed by subscription type.
package eventsub

import (
	"encoding/json"
	"net/http"
	"time"
)

// Request headers set by Twitch on every webhook delivery.
const (
	HeaderMessageID        = "Twitch-Eventsub-Message-Id"
	HeaderMessageTimestamp = "Twitch-Eventsub-Message-Timestamp"
	HeaderMessageSignature = "Twitch-Eventsub-Message-Signature"
	HeaderMessageType      = "Twitch-Eventsub-Message-Type"
)

// Values of the Twitch-Eventsub-Message-Type header.
const (
	MessageTypeVerification = "webhook_callback_verification"
	MessageTypeNotification = "notification"
	MessageTypeRevocation   = "revocation"
)

// Subscription types this gateway dispatches.
const (
	TypeSubscriptionMessage = "channel.subscription.message"
	TypeCheer               = "channel.cheer"
)

// RawRequest is an immutable capture of a delivery as it arrived. Body holds
// the exact bytes read from the connection; the signature is computed over
// them, so they are never re-encoded.
type RawRequest struct {
	MessageID   string
	Timestamp   string
	Signature   string
	MessageType string
	Body        []byte
}

// CaptureRequest copies the EventSub headers out of h and pairs them with body.
func CaptureRequest(h http.Header, body []byte) RawRequest {
	return RawRequest{
		MessageID:   h.Get(HeaderMessageID),
		Timestamp:   h.Get(HeaderMessageTimestamp),
		Signature:   h.Get(HeaderMessageSignature),
		MessageType: h.Get(HeaderMessageType),
		Body:        body,
	}
}

// Subscription is the subscription block common to every message type.
type Subscription struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Version   string          `json:"version"`
	Status    string          `json:"status"`
	Condition json.RawMessage `json:"condition"`
	CreatedAt time.Time       `json:"created_at"`
}

// Notification is the parsed view of a verified delivery body.
type Notification struct {
	MessageType  string
	Subscription Subscription
	Event        EventPayload
	Challenge    string
}

// EventPayload is implemented by SubscriptionMessageEvent, CheerEvent and
// OtherEvent only.
type EventPayload interface {
	Kind() string
	isEventPayload()
}

// SubscriptionMessageEvent is the event of a channel.subscription.message
// notification (a resubscription shared in chat).
type SubscriptionMessageEvent struct {
	BroadcasterUserID    string
	BroadcasterUserLogin string
	UserName             string
	Message              ResubMessage
}

// ResubMessage is the chat message attached to a resubscription.
type ResubMessage struct {
	Text string `json:"text"`
}

// CheerEvent is the event of a channel.cheer notification.
type CheerEvent struct {
	BroadcasterUserID    string
	BroadcasterUserLogin string
	UserName             string
	IsAnonymous          bool
	Message              string
	Bits                 int
}

// OtherEvent carries the event of any subscription type without a dedicated
// variant.
type OtherEvent struct {
	Type string
	Raw  json.RawMessage
}

func (SubscriptionMessageEvent) Kind() string { return TypeSubscriptionMessage }
func (CheerEvent) Kind() string               { return TypeCheer }
func (e OtherEvent) Kind() string             { return e.Type }

func (SubscriptionMessageEvent) isEventPayload() {}
func (CheerEvent) isEventPayload()               {}
func (OtherEvent) isEventPayload()               {}
