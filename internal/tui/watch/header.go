package watch

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// HealthState tracks gateway health from /healthz polling.
type HealthState struct {
	Status              string
	UptimeSeconds       int64
	Ledger              string
	RegistrationEnabled bool
	EventSubscribers    int
	Connected           bool
	LastCheck           time.Time
}

func renderHeader(health HealthState, totals Totals, lastEvent time.Time, spinnerView string, theme Theme, width int) string {
	innerWidth := width - 4

	statusText := theme.StatusOK.Render("HEALTHY")
	if !health.Connected {
		statusText = theme.StatusFailed.Render("CONNECTING")
	} else if health.Status != "ok" && health.Status != "" {
		statusText = theme.StatusFailed.Render("DEGRADED")
	}

	uptime := formatDuration(time.Duration(health.UptimeSeconds) * time.Second)

	lastEventStr := "never"
	if !lastEvent.IsZero() {
		lastEventStr = fmt.Sprintf("%s ago", time.Since(lastEvent).Round(time.Second))
	}

	registration := "off"
	if health.RegistrationEnabled {
		registration = "on"
	}

	clock := theme.Dim.Render(time.Now().Format("15:04:05"))
	titleText := fmt.Sprintf(" EVENTSUB WATCH %s", spinnerView)
	pad := innerWidth - lipgloss.Width(titleText) - lipgloss.Width(clock) - 4
	if pad < 1 {
		pad = 1
	}
	titleLine := titleText + strings.Repeat(" ", pad) + clock + " "

	statsLine := fmt.Sprintf(" %s  up %s  ledger: %s  registration: %s  watchers: %d",
		statusText,
		uptime,
		theme.Highlight.Render(orDash(health.Ledger)),
		registration,
		health.EventSubscribers,
	)

	countsLine := fmt.Sprintf(" %s %s %s %s %s",
		theme.StatusOK.Render(fmt.Sprintf("sent %d", totals.Dispatched)),
		theme.StatusFailed.Render(fmt.Sprintf("failed %d", totals.Failed)),
		theme.StatusDropped.Render(fmt.Sprintf("dropped %d", totals.Dropped)),
		theme.StatusWarn.Render(fmt.Sprintf("dup %d", totals.Duplicates)),
		theme.StatusFailed.Render(fmt.Sprintf("rejected %d", totals.Rejected)),
	)

	activityLine := fmt.Sprintf(" Last event: %s", lastEventStr)

	content := lipgloss.JoinVertical(lipgloss.Left,
		titleLine,
		statsLine,
		countsLine,
		activityLine,
	)

	return theme.Border.Width(innerWidth).Render(content)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
}
