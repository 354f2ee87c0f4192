// Package live implements the optional GET /health/stream endpoint: a
// read-only WebSocket that pushes the same snapshot GET /health returns,
// once per second.
package live

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"nhooyr.io/websocket"
)

// SnapshotFunc returns the current status snapshot, identical in shape to
// GET /health's JSON body.
type SnapshotFunc func() any

// Handler upgrades the connection and streams snapshots until the client
// disconnects or the request context is cancelled.
func Handler(snapshot SnapshotFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "closing")

		ctx := r.Context()
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()

		for {
			data, err := json.Marshal(snapshot())
			if err != nil {
				return
			}
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err = conn.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				return
			}

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}
}
