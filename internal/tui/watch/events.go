package watch

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/mmattdonk/solrock-eventsub/internal/events"
)

const maxStreamLines = 10

func renderEventStream(eventLog []events.Event, theme Theme, width int) string {
	innerWidth := width - 4

	if len(eventLog) == 0 {
		content := lipgloss.JoinVertical(lipgloss.Left,
			theme.Title.Render("EVENT STREAM"),
			theme.Dim.Render("  Waiting for events..."),
		)
		return theme.Border.Width(innerWidth).Render(content)
	}

	var lines []string
	for i, e := range eventLog {
		if i >= maxStreamLines {
			break
		}
		lines = append(lines, formatEvent(e, theme))
	}

	eventsText := lipgloss.NewStyle().Padding(0, 1).Render(strings.Join(lines, "\n"))
	content := lipgloss.JoinVertical(lipgloss.Left,
		theme.Title.Render("EVENT STREAM"),
		eventsText,
	)

	return theme.Border.Width(innerWidth).Render(content)
}

func formatEvent(e events.Event, theme Theme) string {
	ts := theme.Dim.Render(e.At.Format("15:04:05"))

	var typeStyle lipgloss.Style
	switch e.Type {
	case events.NotificationDispatched, events.SubscriptionRegistered:
		typeStyle = theme.StatusOK
	case events.NotificationFailed, events.DeliveryRejected:
		typeStyle = theme.StatusFailed
	case events.DeliveryDuplicate, events.SubscriptionRevoked:
		typeStyle = theme.StatusWarn
	case events.DeliveryChallenge:
		typeStyle = theme.Highlight
	default:
		typeStyle = theme.Dim
	}

	typeName := typeStyle.Render(fmt.Sprintf("%-24s", e.Type))
	return fmt.Sprintf("%s %s %s", ts, typeName, describeEvent(e))
}

// describeEvent builds a one-line summary from the event payload.
func describeEvent(e events.Event) string {
	f := decodeFields(e)

	var parts []string
	if f.MessageID != "" {
		id := f.MessageID
		if len(id) > 8 {
			id = id[:8]
		}
		parts = append(parts, fmt.Sprintf("[%s]", id))
	}
	if f.SubscriptionType != "" {
		parts = append(parts, f.SubscriptionType)
	}
	if f.BroadcasterID != "" {
		parts = append(parts, "broadcaster="+f.BroadcasterID)
	}
	for _, v := range []string{f.Reason, f.Outcome, f.Status} {
		if v != "" {
			parts = append(parts, v)
		}
	}

	if len(parts) == 0 {
		raw := string(e.Data)
		if len(raw) > 60 {
			raw = raw[:60] + "..."
		}
		return raw
	}
	return strings.Join(parts, " ")
}
