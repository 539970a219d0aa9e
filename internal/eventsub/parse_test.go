package eventsub

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Verification(t *testing.T) {
	n, err := Parse(MessageTypeVerification, []byte(`{"challenge":"abc123"}`))
	require.NoError(t, err)
	assert.Equal(t, "abc123", n.Challenge)
	assert.Nil(t, n.Event)
}

func TestParse_CheerNotification(t *testing.T) {
	body := []byte(`{
		"subscription": {"id": "sub-1", "type": "channel.cheer", "version": "1", "status": "enabled",
			"condition": {"broadcaster_user_id": "42"}, "created_at": "2022-07-01T10:00:00Z"},
		"event": {"broadcaster_user_id": "42", "broadcaster_user_login": "solrock", "user_name": null,
			"is_anonymous": true, "message": "hi", "bits": 100}
	}`)

	n, err := Parse(MessageTypeNotification, body)
	require.NoError(t, err)
	assert.Equal(t, TypeCheer, n.Subscription.Type)
	assert.Equal(t, "enabled", n.Subscription.Status)
	assert.JSONEq(t, `{"broadcaster_user_id": "42"}`, string(n.Subscription.Condition))

	ev, ok := n.Event.(CheerEvent)
	require.True(t, ok, "event should be a CheerEvent, got %T", n.Event)
	assert.Equal(t, "42", ev.BroadcasterUserID)
	assert.Equal(t, "hi", ev.Message)
	assert.Equal(t, 100, ev.Bits)
	assert.True(t, ev.IsAnonymous)
	assert.Empty(t, ev.UserName)
}

func TestParse_SubscriptionMessageNotification(t *testing.T) {
	body := []byte(`{
		"subscription": {"type": "channel.subscription.message"},
		"event": {"broadcaster_user_id": "7", "user_name": "viewer", "message": {"text": "love the stream", "emotes": []}}
	}`)

	n, err := Parse(MessageTypeNotification, body)
	require.NoError(t, err)

	ev, ok := n.Event.(SubscriptionMessageEvent)
	require.True(t, ok, "event should be a SubscriptionMessageEvent, got %T", n.Event)
	assert.Equal(t, "7", ev.BroadcasterUserID)
	assert.Equal(t, "viewer", ev.UserName)
	assert.Equal(t, "love the stream", ev.Message.Text)
	assert.Equal(t, TypeSubscriptionMessage, ev.Kind())
}

func TestParse_UnknownSubscriptionTypeKeepsRawEvent(t *testing.T) {
	body := []byte(`{"subscription": {"type": "channel.follow"}, "event": {"user_id": "9"}}`)

	n, err := Parse(MessageTypeNotification, body)
	require.NoError(t, err)

	ev, ok := n.Event.(OtherEvent)
	require.True(t, ok)
	assert.Equal(t, "channel.follow", ev.Kind())
	assert.JSONEq(t, `{"user_id": "9"}`, string(ev.Raw))
}

func TestParse_Revocation(t *testing.T) {
	body := []byte(`{"subscription": {"type": "channel.cheer", "status": "authorization_revoked",
		"condition": {"broadcaster_user_id": "42"}}}`)

	n, err := Parse(MessageTypeRevocation, body)
	require.NoError(t, err)
	assert.Equal(t, "authorization_revoked", n.Subscription.Status)
}

func TestParse_Malformed(t *testing.T) {
	tests := []struct {
		name        string
		messageType string
		body        string
	}{
		{"invalid json", MessageTypeNotification, `{"subscription":`},
		{"not an object", MessageTypeNotification, `[]`},
		{"challenge missing", MessageTypeVerification, `{}`},
		{"challenge empty", MessageTypeVerification, `{"challenge":""}`},
		{"challenge wrong type", MessageTypeVerification, `{"challenge":12}`},
		{"subscription missing", MessageTypeNotification, `{"event":{}}`},
		{"subscription type missing", MessageTypeNotification, `{"subscription":{},"event":{}}`},
		{"event missing", MessageTypeNotification, `{"subscription":{"type":"channel.cheer"}}`},
		{"event null", MessageTypeNotification, `{"subscription":{"type":"channel.cheer"},"event":null}`},
		{"cheer broadcaster missing", MessageTypeNotification, `{"subscription":{"type":"channel.cheer"},"event":{"message":"hi"}}`},
		{"cheer message missing", MessageTypeNotification, `{"subscription":{"type":"channel.cheer"},"event":{"broadcaster_user_id":"42"}}`},
		{"cheer message wrong type", MessageTypeNotification, `{"subscription":{"type":"channel.cheer"},"event":{"broadcaster_user_id":"42","message":{"text":"hi"}}}`},
		{"resub message missing", MessageTypeNotification, `{"subscription":{"type":"channel.subscription.message"},"event":{"broadcaster_user_id":"42"}}`},
		{"resub message text missing", MessageTypeNotification, `{"subscription":{"type":"channel.subscription.message"},"event":{"broadcaster_user_id":"42","message":{}}}`},
		{"resub message text null", MessageTypeNotification, `{"subscription":{"type":"channel.subscription.message"},"event":{"broadcaster_user_id":"42","message":{"text":null}}}`},
		{"resub message text wrong type", MessageTypeNotification, `{"subscription":{"type":"channel.subscription.message"},"event":{"broadcaster_user_id":"42","message":{"text":7}}}`},
		{"resub broadcaster empty", MessageTypeNotification, `{"subscription":{"type":"channel.subscription.message"},"event":{"broadcaster_user_id":"","message":{"text":"x"}}}`},
		{"revocation without subscription", MessageTypeRevocation, `{}`},
		{"unsupported message type", "something_else", `{}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.messageType, []byte(tt.body))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformedNotification), "error should wrap ErrMalformedNotification: %v", err)
		})
	}
}

func TestCaptureRequest(t *testing.T) {
	h := http.Header{}
	h.Set(HeaderMessageID, "msg-1")
	h.Set(HeaderMessageTimestamp, "2023-01-01T00:00:00Z")
	h.Set(HeaderMessageSignature, "sha256=abc")
	h.Set(HeaderMessageType, MessageTypeNotification)
	body := []byte(`{"a": 1}`)

	raw := CaptureRequest(h, body)
	assert.Equal(t, "msg-1", raw.MessageID)
	assert.Equal(t, "2023-01-01T00:00:00Z", raw.Timestamp)
	assert.Equal(t, "sha256=abc", raw.Signature)
	assert.Equal(t, MessageTypeNotification, raw.MessageType)
	assert.Equal(t, body, raw.Body)
}
