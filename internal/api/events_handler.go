package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mmattdonk/solrock-eventsub/internal/events"
)

// sseRetry is the reconnect delay suggested to clients, in milliseconds.
const sseRetry = 3000

// eventStream writes hub events to one SSE client. lastID is the newest
// event already sent; anything at or below it is skipped.
type eventStream struct {
	w       http.ResponseWriter
	flusher http.Flusher
	kinds   []string
	lastID  int64
}

// handleEvents streams gateway activity (delivery outcomes, revocations and
// registrations) to an operator. A Last-Event-ID header resumes from the
// backlog; ?type=notification,subscription limits the stream to event type
// prefixes.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	// Long-lived; the server's WriteTimeout would cut it off.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	stream := &eventStream{
		w:       w,
		flusher: flusher,
		kinds:   parseKinds(r.URL.Query().Get("type")),
		lastID:  parseLastEventID(r.Header.Get("Last-Event-ID")),
	}

	// Subscribe before reading the backlog so nothing published in between
	// is lost; the ID check in send drops the overlap.
	live, unsubscribe := s.events.Subscribe()
	defer unsubscribe()

	if err := stream.retry(sseRetry); err != nil {
		return
	}
	for _, ev := range s.events.SnapshotSince(stream.lastID) {
		if err := stream.send(ev); err != nil {
			return
		}
	}
	stream.flusher.Flush()

	keepAlive := time.NewTicker(s.config.EventsKeepAlive)
	defer keepAlive.Stop()

	for {
		var err error
		select {
		case <-r.Context().Done():
			return
		case ev, open := <-live:
			if !open {
				return
			}
			err = stream.send(ev)
		case <-keepAlive.C:
			err = stream.comment("keep-alive")
		}
		if err != nil {
			s.logger.Debug("event stream closed", "error", err, "last_id", stream.lastID)
			return
		}
		stream.flusher.Flush()
	}
}

// send writes one event unless it was already delivered or is filtered out.
// Filtered events still advance lastID so a reconnect does not replay them.
func (st *eventStream) send(ev events.Event) error {
	if ev.ID <= st.lastID {
		return nil
	}
	st.lastID = ev.ID
	if !st.wants(ev.Type) {
		return nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "id: %d\n", ev.ID)
	if ev.Type != "" {
		fmt.Fprintf(&b, "event: %s\n", ev.Type)
	}
	// Hub payloads are compact JSON, so a single data line suffices.
	fmt.Fprintf(&b, "data: %s\n\n", ev.Data)
	_, err := st.w.Write([]byte(b.String()))
	return err
}

func (st *eventStream) comment(text string) error {
	_, err := fmt.Fprintf(st.w, ": %s\n\n", text)
	return err
}

func (st *eventStream) retry(ms int) error {
	_, err := fmt.Fprintf(st.w, "retry: %d\n\n", ms)
	return err
}

func (st *eventStream) wants(eventType string) bool {
	if len(st.kinds) == 0 {
		return true
	}
	for _, k := range st.kinds {
		if eventType == k || strings.HasPrefix(eventType, k+".") {
			return true
		}
	}
	return false
}

// parseKinds splits a comma separated type filter. Empty means everything.
func parseKinds(v string) []string {
	var kinds []string
	for _, k := range strings.Split(v, ",") {
		if k = strings.TrimSpace(k); k != "" {
			kinds = append(kinds, k)
		}
	}
	return kinds
}

func parseLastEventID(v string) int64 {
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
