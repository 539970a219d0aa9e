// Package dispatch turns a verified EventSub notification into a downstream
// submission.
//
// For each notification the dispatcher extracts the broadcaster id and the
// chat message from the event, resolves the broadcaster to a streamer and its
// overlay through a StreamerLookup, and submits {message, overlayId} to a
// ProcessingSink. The two calls run sequentially in the caller's goroutine,
// each under its own timeout.
//
// Routing by subscription type:
//   - channel.subscription.message → event.message.text
//   - channel.cheer → event.message
//   - anything else → logged and dropped (no outbound calls)
//
// Error handling:
//   - no streamer for the broadcaster → ErrStreamerNotFound
//   - lookup or submit failed (transport, timeout, non-2xx) → ErrDownstreamUnavailable
//
// Downstream calls are detached from the inbound request's cancellation: a
// client that disconnects does not abort a submission that is under way.
// Failed submissions are not retried here; the endpoint answers 500 and
// Twitch redelivers.
package dispatch
