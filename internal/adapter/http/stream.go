package http

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/skyfuse/skyfuse/internal/service"
)

// StreamTask serves a task's update stream over Server-Sent Events. The
// stream opens with a snapshot of the current status, then relays frames
// until the terminal done frame. Attaching to a finished task replays its
// outcome immediately.
func (h *Handlers) StreamTask(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")

	t, err := h.manager.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, err, "task not found")
		return
	}

	ch, stop, err := h.manager.Attach(id)
	if err != nil {
		writeDomainError(w, err, "task not found")
		return
	}
	defer stop()

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	if !t.Status.Terminal() {
		writeFrame(w, service.Frame{Type: service.FrameStatus, TaskID: t.ID, Status: t.Status})
		flusher.Flush()
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case f, open := <-ch:
			if !open {
				return
			}
			writeFrame(w, f)
			flusher.Flush()
			if f.Type == service.FrameDone {
				return
			}
		}
	}
}

func writeFrame(w http.ResponseWriter, f service.Frame) {
	data, err := json.Marshal(f)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", f.Type, data)
}
