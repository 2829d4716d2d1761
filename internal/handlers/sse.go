package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/debatehub/backend/internal/middleware"
	"github.com/debatehub/backend/internal/services"
	"github.com/debatehub/backend/internal/utils"
	"github.com/debatehub/backend/pkg/logger"
	"github.com/debatehub/backend/pkg/response"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const sseKeepAlive = 25 * time.Second

// SSEHandler streams moderation events to moderator dashboards.
type SSEHandler struct {
	hub *services.SSEHub
}

func NewSSEHandler(hub *services.SSEHub) *SSEHandler {
	return &SSEHandler{hub: hub}
}

// StreamModerationEvents handles SSE connections. EventSource cannot set
// headers, so the token may also come from the query string.
// GET /api/events/moderation
func (h *SSEHandler) StreamModerationEvents(c *gin.Context) {
	token := middleware.BearerToken(c, true)
	if token == "" {
		response.Unauthorized(c, "Unauthorized")
		return
	}

	claims, err := utils.ParseToken(token)
	if err != nil {
		response.Unauthorized(c, "Invalid token")
		return
	}
	if !claims.IsModerator() {
		response.Forbidden(c, "moderator access required")
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	clientID := uuid.New().String()

	events := h.hub.Subscribe(clientID)
	defer h.hub.Unsubscribe(clientID)

	logger.Info().Str("client_id", clientID).Str("user_id", claims.UserID).Int("total", h.hub.ClientCount()).Msg("SSE client connected")

	keepAlive := time.NewTicker(sseKeepAlive)
	defer keepAlive.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case event, ok := <-events:
			if !ok {
				return false
			}
			data, err := json.Marshal(event)
			if err != nil {
				logger.Error().Err(err).Msg("SSE marshal error")
				return true
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, data)
			c.Writer.Flush()
			return true
		case <-keepAlive.C:
			fmt.Fprint(w, ": ping\n\n")
			c.Writer.Flush()
			return true
		case <-c.Request.Context().Done():
			logger.Info().Str("client_id", clientID).Msg("SSE client disconnected")
			return false
		}
	})
}
