package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"

	"github.com/choiseongjun/chat-with-stream/internal/config"
	"github.com/choiseongjun/chat-with-stream/internal/hub"
	"github.com/choiseongjun/chat-with-stream/internal/service"
	"github.com/choiseongjun/chat-with-stream/pkg/log"
)

type WSHandler struct {
	hub      *hub.Hub
	service  service.ChatService
	wsCfg    config.WebSocketConfig
	upgrader websocket.Upgrader
}

func NewWSHandler(h *hub.Hub, svc service.ChatService, wsCfg config.WebSocketConfig, policy *cors.Cors) *WSHandler {
	return &WSHandler{
		hub:     h,
		service: svc,
		wsCfg:   wsCfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(policy),
		},
	}
}

// HandleWebSocket upgrades the request and serves the connection until it
// is torn down.
func (h *WSHandler) HandleWebSocket(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error
		l.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	session := hub.NewSession(uuid.New().String(), conn.RemoteAddr().String(), h.wsCfg.OutboundCapacity)
	if err := h.hub.Register(session); err != nil {
		l.Error().Err(err).Msg("failed to register session")
		_ = conn.Close()
		return
	}

	l.Info().
		Str(log.FieldSessionID, session.ID).
		Str(log.FieldRemoteAddr, session.RemoteAddr).
		Msg("websocket connected")

	client := hub.NewClient(session, h.hub, conn, h.service, h.wsCfg)
	client.Run(ctx)
}

func (h *WSHandler) RegisterRoutes(r *gin.Engine) {
	r.GET(h.wsCfg.Path, h.HandleWebSocket)
}
