package queueapi

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/linnemanlabs/bursar/internal/triage"
)

// handleRun executes a full pipeline run and blocks until the summary is
// ready.
func (a *API) handleRun(w http.ResponseWriter, r *http.Request) {
	summary, err := a.pipeline.ProcessMailbox(r.Context(), nil)
	if err != nil {
		a.logger.Error(r.Context(), err, "pipeline run failed")
		http.Error(w, `{"error":"triage run failed"}`, http.StatusInternalServerError)
		return
	}

	a.writeJSON(w, http.StatusOK, summary)
}

// handleStream executes a pipeline run while streaming progress events to
// the client as server-sent events. A client disconnect aborts the run
// before anything is committed.
func (a *API) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, `{"error":"streaming unsupported"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	emit := func(ev triage.Event) error {
		if err := r.Context().Err(); err != nil {
			return err
		}
		data, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("marshal event: %w", err)
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return fmt.Errorf("write event: %w", err)
		}
		flusher.Flush()
		return nil
	}

	if _, err := a.pipeline.ProcessMailbox(r.Context(), emit); err != nil {
		// The terminal error event has already been emitted where possible;
		// the stream itself may be gone.
		a.logger.Error(r.Context(), err, "streamed pipeline run failed")
	}
}
