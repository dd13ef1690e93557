package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/google/uuid"

	"github.com/kalambet/emconsole/internal/board"
)

const eventBuffer = 64

// handleEvents streams board changes as server-sent events. A client that
// falls more than eventBuffer changes behind is disconnected and is expected
// to reconnect and reload the board.
func handleEvents(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			httpError(w, http.StatusInternalServerError, "api_error", "streaming not supported")
			return
		}

		changes := make(chan board.Change, eventBuffer)
		lagged := make(chan struct{})
		var once sync.Once
		unsubscribe := deps.Board.Subscribe(func(c board.Change) {
			select {
			case changes <- c:
			default:
				once.Do(func() { close(lagged) })
			}
		})
		defer unsubscribe()

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, ": connected\n\n")
		flusher.Flush()

		for {
			select {
			case <-r.Context().Done():
				return
			case <-lagged:
				slog.Debug("event subscriber lagged, closing stream", "remote", r.RemoteAddr)
				return
			case c := <-changes:
				payload, err := json.Marshal(c)
				if err != nil {
					slog.Warn("failed to marshal board change", "error", err)
					continue
				}
				fmt.Fprintf(w, "event: %s\nid: %s\ndata: %s\n\n", c.Kind, uuid.New().String(), payload)
				flusher.Flush()
			}
		}
	}
}
