package eventsub

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformedNotification is returned when a verified body does not parse
// or lacks a field its message type requires.
var ErrMalformedNotification = errors.New("malformed notification")

type wireNotification struct {
	Subscription *Subscription  `json:"subscription"`
	Event        json.RawMessage `json:"event"`
	Challenge    *string         `json:"challenge"`
}

type wireSubscriptionMessage struct {
	BroadcasterUserID    *string       `json:"broadcaster_user_id"`
	BroadcasterUserLogin string        `json:"broadcaster_user_login"`
	UserName             string        `json:"user_name"`
	Message              *wireResubMessage `json:"message"`
}

type wireResubMessage struct {
	Text *string `json:"text"`
}

type wireCheer struct {
	BroadcasterUserID    *string `json:"broadcaster_user_id"`
	BroadcasterUserLogin string  `json:"broadcaster_user_login"`
	UserName             *string `json:"user_name"`
	IsAnonymous          bool    `json:"is_anonymous"`
	Message              *string `json:"message"`
	Bits                 int     `json:"bits"`
}

// Parse decodes body for the given message type. It must only be called on a
// body whose signature has already been verified.
//
// A verification message needs a non-empty challenge. A notification needs a
// subscription type and an event; the event is decoded into the variant for
// that type. A revocation needs a subscription. Any other message type is
// rejected, callers are expected to route unknown types before parsing.
func Parse(messageType string, body []byte) (Notification, error) {
	var w wireNotification
	if err := json.Unmarshal(body, &w); err != nil {
		return Notification{}, fmt.Errorf("%w: %v", ErrMalformedNotification, err)
	}

	n := Notification{MessageType: messageType}
	if w.Subscription != nil {
		n.Subscription = *w.Subscription
	}

	switch messageType {
	case MessageTypeVerification:
		if w.Challenge == nil || *w.Challenge == "" {
			return Notification{}, fmt.Errorf("%w: challenge is missing", ErrMalformedNotification)
		}
		n.Challenge = *w.Challenge
		return n, nil

	case MessageTypeNotification:
		if w.Subscription == nil || w.Subscription.Type == "" {
			return Notification{}, fmt.Errorf("%w: subscription.type is missing", ErrMalformedNotification)
		}
		if len(w.Event) == 0 || string(w.Event) == "null" {
			return Notification{}, fmt.Errorf("%w: event is missing", ErrMalformedNotification)
		}
		ev, err := decodeEvent(w.Subscription.Type, w.Event)
		if err != nil {
			return Notification{}, err
		}
		n.Event = ev
		return n, nil

	case MessageTypeRevocation:
		if w.Subscription == nil || w.Subscription.Type == "" {
			return Notification{}, fmt.Errorf("%w: subscription is missing", ErrMalformedNotification)
		}
		return n, nil
	}

	return Notification{}, fmt.Errorf("%w: unsupported message type %q", ErrMalformedNotification, messageType)
}

func decodeEvent(subscriptionType string, raw json.RawMessage) (EventPayload, error) {
	switch subscriptionType {
	case TypeSubscriptionMessage:
		var w wireSubscriptionMessage
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, fmt.Errorf("%w: %s event: %v", ErrMalformedNotification, subscriptionType, err)
		}
		if w.BroadcasterUserID == nil || *w.BroadcasterUserID == "" {
			return nil, fmt.Errorf("%w: %s event: broadcaster_user_id is missing", ErrMalformedNotification, subscriptionType)
		}
		if w.Message == nil || w.Message.Text == nil {
			return nil, fmt.Errorf("%w: %s event: message.text is missing", ErrMalformedNotification, subscriptionType)
		}
		return SubscriptionMessageEvent{
			BroadcasterUserID:    *w.BroadcasterUserID,
			BroadcasterUserLogin: w.BroadcasterUserLogin,
			UserName:             w.UserName,
			Message:              ResubMessage{Text: *w.Message.Text},
		}, nil

	case TypeCheer:
		var w wireCheer
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, fmt.Errorf("%w: %s event: %v", ErrMalformedNotification, subscriptionType, err)
		}
		if w.BroadcasterUserID == nil || *w.BroadcasterUserID == "" {
			return nil, fmt.Errorf("%w: %s event: broadcaster_user_id is missing", ErrMalformedNotification, subscriptionType)
		}
		if w.Message == nil {
			return nil, fmt.Errorf("%w: %s event: message is missing", ErrMalformedNotification, subscriptionType)
		}
		ev := CheerEvent{
			BroadcasterUserID:    *w.BroadcasterUserID,
			BroadcasterUserLogin: w.BroadcasterUserLogin,
			IsAnonymous:          w.IsAnonymous,
			Message:              *w.Message,
			Bits:                 w.Bits,
		}
		// Anonymous cheers carry a null user_name.
		if w.UserName != nil {
			ev.UserName = *w.UserName
		}
		return ev, nil
	}

	return OtherEvent{Type: subscriptionType, Raw: raw}, nil
}
