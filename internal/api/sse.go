package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/reelwright/hevcsup/internal/bus"
)

// handleSSE streams every bus event (scan_progress, scan_complete,
// encoding_progress, encoding_complete) to the client over a single
// subscribe/unsubscribe connection.
func (a *API) handleSSE(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	events := a.Bus.Subscribe()
	defer a.Bus.Unsubscribe(events)

	for {
		select {
		case <-r.Context().Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			sendEvent(w, flusher, evt)
		}
	}
}

func sendEvent(w http.ResponseWriter, flusher http.Flusher, evt bus.Event) {
	data, err := json.Marshal(evt)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Type, data)
	flusher.Flush()
}
