package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/trellisviz/trellis/internal/core/port"
)

const heartbeatInterval = 30 * time.Second

// Events streams combined state snapshots as Server-Sent Events, one
// subscription per connected client. The first event carries the current
// state; afterwards every filter recompute and selection replacement pushes
// a new one. A slow client gets the latest state, not the full history.
func (h *Handler) Events(c echo.Context) error {
	w := c.Response()
	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set(echo.HeaderCacheControl, "no-cache")
	w.Header().Set(echo.HeaderConnection, "keep-alive")
	w.WriteHeader(http.StatusOK)
	w.Flush()

	// Keep-latest buffer. The watch callback runs inside mutations and must
	// not block, so a full channel drops the stale snapshot and keeps the
	// new one.
	updates := make(chan port.StateSnapshot, 1)
	sub := h.session.WatchState(func(snap port.StateSnapshot) {
		for {
			select {
			case updates <- snap:
				return
			default:
				select {
				case <-updates:
				default:
				}
			}
		}
	})
	defer sub.Close()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil

		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return nil
			}
			w.Flush()

		case snap := <-updates:
			data, err := json.Marshal(snap)
			if err != nil {
				return err
			}
			if _, err := fmt.Fprintf(w, "event: state\ndata: %s\n\n", data); err != nil {
				return nil
			}
			w.Flush()
		}
	}
}
