package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/mgeist/codereel/internal/jobs"
	"github.com/mgeist/codereel/internal/stream"
)

// keepaliveInterval spaces out SSE comment lines so idle proxies do not
// drop the connection between events.
const keepaliveInterval = 30 * time.Second

// JobStream handles GET /api/jobs/{id}/stream (SSE endpoint)
// A reconnecting client sends its last seen event id and receives the
// missed events as a single history batch before live events resume.
func (h *Handler) JobStream(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	// Unknown jobs get a 404 before any subscription happens; subscribing
	// would create a hub entry that nothing ever tears down.
	if _, err := h.store.Get(id); err != nil {
		if errors.Is(err, jobs.ErrJobNotFound) {
			writeError(w, http.StatusNotFound, "Job not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	lastEventID := r.Header.Get("Last-Event-ID")
	if lastEventID == "" {
		lastEventID = r.URL.Query().Get("lastEventId")
	}

	sub := h.hub.Subscribe(id, lastEventID)
	defer h.hub.Unsubscribe(id, sub)

	ticker := time.NewTicker(keepaliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return

		case event, open := <-sub.Events():
			if !open {
				return
			}
			if err := writeEvent(w, event); err != nil {
				return
			}
			flusher.Flush()

			// Once the terminal status has been delivered and nothing is
			// queued behind it, the stream is over for this client.
			if h.hub.IsComplete(id) && len(sub.Events()) == 0 {
				return
			}

		case <-ticker.C:
			fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		}
	}
}

// writeEvent serializes one event as an SSE frame. The event id doubles
// as the client's reconnect cursor.
func writeEvent(w http.ResponseWriter, event stream.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", event.ID, event.Type, payload)
	return err
}
