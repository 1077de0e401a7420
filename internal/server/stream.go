package server

import (
	"fmt"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"benchline/internal/engine"
	"benchline/internal/notify"
)

var streamHeartbeat = 30 * time.Second

// registerStream mounts the server-sent event stream of work notifications.
//
//	GET {base}/events/stream?order_id=...
func registerStream(r chi.Router, basePath string, e *engine.Engine, hub *notify.Hub, log *zap.Logger) {
	if hub == nil {
		return
	}
	r.Get(path.Join(basePath, "events/stream"), func(w http.ResponseWriter, req *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			respondStatusError(w, newAPIError(http.StatusInternalServerError, "internal_error", "streaming unsupported", nil))
			return
		}
		orderID := strings.TrimSpace(req.URL.Query().Get("order_id"))
		if orderID != "" {
			o, err := e.GetOrder(req.Context(), orderID)
			if err != nil {
				respondStatusError(w, handleError(err))
				return
			}
			orderID = o.ID
		}
		client := &notify.Client{
			ID:      uuid.NewString(),
			OrderID: orderID,
			Events:  make(chan notify.Event, 64),
		}
		hub.Register(client)

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")
		w.WriteHeader(http.StatusOK)

		fmt.Fprintf(w, "event: connected\ndata: {\"client_id\":%q}\n\n", client.ID)
		flusher.Flush()

		heartbeat := time.NewTicker(streamHeartbeat)
		defer heartbeat.Stop()
		for {
			select {
			case <-req.Context().Done():
				hub.Unregister(client.ID)
				return
			case evt, ok := <-client.Events:
				if !ok {
					return
				}
				if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Type, evt.Data); err != nil {
					log.Debug("stream write failed", zap.String("client_id", client.ID), zap.Error(err))
					hub.Unregister(client.ID)
					return
				}
				flusher.Flush()
			case <-heartbeat.C:
				fmt.Fprint(w, ": keepalive\n\n")
				flusher.Flush()
			}
		}
	})
}
