package webhook

import "github.com/mmattdonk/solrock-eventsub/internal/eventsub"

// Route is the action the endpoint takes for a verified delivery.
type Route int

const (
	RouteUnknown Route = iota
	RouteChallenge
	RouteNotification
	RouteRevocation
)

// Classify maps the Twitch-Eventsub-Message-Type header to a Route. It must
// only be consulted after the signature has been verified.
func Classify(messageType string) Route {
	switch messageType {
	case eventsub.MessageTypeVerification:
		return RouteChallenge
	case eventsub.MessageTypeNotification:
		return RouteNotification
	case eventsub.MessageTypeRevocation:
		return RouteRevocation
	default:
		return RouteUnknown
	}
}

func (r Route) String() string {
	switch r {
	case RouteChallenge:
		return "challenge"
	case RouteNotification:
		return "notification"
	case RouteRevocation:
		return "revocation"
	default:
		return "unknown"
	}
}
