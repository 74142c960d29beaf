package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/MarcoPoloResearchLab/drawsync/internal/drawsync"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	RunEventName             = "sync-run"
	heartbeatEventName       = "heartbeat"
	defaultHeartbeatInterval = 25 * time.Second
)

// handleEventStream relays finished runs of one game as server-sent events until the client leaves.
func (h *httpHandler) handleEventStream(c *gin.Context) {
	game, ok := h.gameParam(c)
	if !ok {
		return
	}
	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming_unsupported"})
		return
	}

	ctx := c.Request.Context()
	stream, cleanup := h.events.Subscribe(ctx, game)
	defer cleanup()

	header := c.Writer.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	if err := writeEvent(c.Writer, heartbeatEventName, gin.H{"game": game, "timestamp": h.clock().UTC()}); err != nil {
		return
	}
	flusher.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case event, open := <-stream:
			if !open {
				return
			}
			if err := writeEvent(c.Writer, RunEventName, event); err != nil {
				h.logger.Debug("event stream closed", zap.String("game", game.String()), zap.Error(err))
				return
			}
			flusher.Flush()
		case <-ticker.C:
			if err := writeEvent(c.Writer, heartbeatEventName, gin.H{"game": game, "timestamp": h.clock().UTC()}); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeEvent(writer http.ResponseWriter, name string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(writer, "event: %s\ndata: %s\n\n", name, data)
	return err
}

var _ RunSubscriber = (*drawsync.EventHub)(nil)
