package watch

import (
	"encoding/json"
	"sort"
	"strconv"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"

	"github.com/mmattdonk/solrock-eventsub/internal/events"
)

// Totals counts deliveries by outcome since the watch started.
type Totals struct {
	Dispatched int
	Dropped    int
	Failed     int
	Duplicates int
	Rejected   int
	Challenges int
	Revoked    int
}

// BroadcasterState tracks one broadcaster discovered from events.
type BroadcasterState struct {
	ID         string
	Dispatched int
	Failed     int
	LastType   string
	LastSeen   time.Time
}

// eventFields are the payload keys the gateway puts on activity events.
type eventFields struct {
	MessageID        string `json:"message_id"`
	SubscriptionType string `json:"subscription_type"`
	BroadcasterID    string `json:"broadcaster_id"`
	OverlayID        string `json:"overlay_id"`
	Reason           string `json:"reason"`
	Outcome          string `json:"outcome"`
	Status           string `json:"status"`
}

func decodeFields(e events.Event) eventFields {
	var f eventFields
	_ = json.Unmarshal(e.Data, &f)
	return f
}

// updateStats folds one event into the totals and per-broadcaster state.
func updateStats(totals *Totals, broadcasters map[string]*BroadcasterState, e events.Event) {
	f := decodeFields(e)

	switch e.Type {
	case events.NotificationDispatched:
		totals.Dispatched++
	case events.NotificationDropped:
		totals.Dropped++
	case events.NotificationFailed:
		totals.Failed++
	case events.DeliveryDuplicate:
		totals.Duplicates++
	case events.DeliveryRejected:
		totals.Rejected++
	case events.DeliveryChallenge:
		totals.Challenges++
	case events.SubscriptionRevoked:
		totals.Revoked++
	}

	if f.BroadcasterID == "" {
		return
	}
	b, ok := broadcasters[f.BroadcasterID]
	if !ok {
		b = &BroadcasterState{ID: f.BroadcasterID}
		broadcasters[f.BroadcasterID] = b
	}
	switch e.Type {
	case events.NotificationDispatched:
		b.Dispatched++
	case events.NotificationFailed:
		b.Failed++
	}
	if f.SubscriptionType != "" {
		b.LastType = f.SubscriptionType
	}
	b.LastSeen = e.At
}

func newBroadcasterTable() table.Model {
	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "Broadcaster", Width: 16},
			{Title: "Sent", Width: 6},
			{Title: "Failed", Width: 6},
			{Title: "Last type", Width: 30},
			{Title: "Seen", Width: 10},
		}),
		table.WithHeight(6),
	)
	styles := table.DefaultStyles()
	styles.Header = styles.Header.Bold(true).Foreground(lipgloss.Color("#61AFEF"))
	t.SetStyles(styles)
	return t
}

// broadcasterRows returns table rows ordered by most recent activity.
func broadcasterRows(broadcasters map[string]*BroadcasterState) []table.Row {
	list := make([]*BroadcasterState, 0, len(broadcasters))
	for _, b := range broadcasters {
		list = append(list, b)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].LastSeen.Equal(list[j].LastSeen) {
			return list[i].ID < list[j].ID
		}
		return list[i].LastSeen.After(list[j].LastSeen)
	})

	rows := make([]table.Row, 0, len(list))
	for _, b := range list {
		rows = append(rows, table.Row{
			b.ID,
			strconv.Itoa(b.Dispatched),
			strconv.Itoa(b.Failed),
			b.LastType,
			b.LastSeen.Format("15:04:05"),
		})
	}
	return rows
}

func renderBroadcasters(t table.Model, theme Theme, width int) string {
	innerWidth := width - 4

	body := t.View()
	if len(t.Rows()) == 0 {
		body = theme.Dim.Render("  No notifications yet")
	}
	content := lipgloss.JoinVertical(lipgloss.Left,
		theme.Title.Render("BROADCASTERS"),
		body,
	)
	return theme.Border.Width(innerWidth).Render(content)
}
