package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	gws "github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/w1nex5372/ernioCasino-sub000/internal/domain"
	"github.com/w1nex5372/ernioCasino-sub000/internal/server/websocket"
	"github.com/w1nex5372/ernioCasino-sub000/pkg/config"
)

// SessionStatusHandler upgrades /status to a WebSocket that receives the user's
// session snapshots and completion signals.
type SessionStatusHandler struct {
	logger   zerolog.Logger
	wsHub    *websocket.WsHub
	cfg      config.WebSocketConfig
	upgrader gws.Upgrader
}

func NewSessionStatusHandler(wsHub *websocket.WsHub, cfg config.WebSocketConfig, logger zerolog.Logger) *SessionStatusHandler {
	upgrader := gws.Upgrader{
		ReadBufferSize:  cfg.ReadBufferSize,
		WriteBufferSize: cfg.WriteBufferSize,
	}
	if !cfg.CheckOrigin {
		upgrader.CheckOrigin = func(r *http.Request) bool { return true }
	}

	return &SessionStatusHandler{
		logger:   logger.With().Str("component", "ws_handler").Logger(),
		wsHub:    wsHub,
		cfg:      cfg,
		upgrader: upgrader,
	}
}

// GET /status?user_id=
func (h *SessionStatusHandler) HandleWebSocket(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		h.logger.Error().Msg("User ID missing from WebSocket request")
		c.JSON(http.StatusBadRequest, domain.ApiResponse{
			Message: "user_id query parameter is required",
			Success: false,
			Status:  http.StatusBadRequest,
		})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		h.logger.Err(err).Str("user_id", userID).Msg("Failed to upgrade to WebSocket")
		return
	}

	client := websocket.NewClient(userID, conn, h.cfg.PingPeriod, h.logger)
	h.wsHub.Register <- client
	h.logger.Info().
		Str("user_id", userID).
		Str("client_id", client.ID()).
		Msg("WebSocket client registration sent")

	go client.WritePump()
	go func() {
		defer func() {
			h.wsHub.Unregister <- client
		}()
		client.ReadPump()
	}()
}
