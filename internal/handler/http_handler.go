package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/choiseongjun/chat-with-stream/internal/domain"
	"github.com/choiseongjun/chat-with-stream/internal/hub"
	"github.com/choiseongjun/chat-with-stream/internal/service"
	"github.com/choiseongjun/chat-with-stream/pkg/log"
	"github.com/choiseongjun/chat-with-stream/pkg/response"
)

type HTTPHandler struct {
	chatService service.ChatService
	hub         *hub.Hub
}

func NewHTTPHandler(chatService service.ChatService, h *hub.Hub) *HTTPHandler {
	return &HTTPHandler{
		chatService: chatService,
		hub:         h,
	}
}

func (h *HTTPHandler) RegisterRoutes(r *gin.Engine) {
	api := r.Group("/api/v1")
	{
		api.GET("/rooms/:room_id/messages", h.GetMessages)
		api.GET("/rooms/:room_id/sessions", h.GetSessions)
	}

	r.GET("/health", h.Health)
}

// MessagesResponse is the body of the room history endpoint.
type MessagesResponse struct {
	RoomID   string               `json:"room_id"`
	Messages []domain.ChatMessage `json:"messages"`
}

// SessionsResponse is the body of the room presence endpoint.
type SessionsResponse struct {
	RoomID     string   `json:"room_id"`
	SessionIDs []string `json:"session_ids"`
	Count      int      `json:"count"`
}

func (h *HTTPHandler) GetMessages(c *gin.Context) {
	roomID := c.Param("room_id")
	if roomID == "" {
		response.BadRequest(c, "room_id is required")
		return
	}

	messages, err := h.chatService.GetMessages(c.Request.Context(), roomID)
	if err != nil {
		l := log.Ctx(c.Request.Context())
		l.Error().Err(err).Msg("failed to get messages")
		_ = c.Error(err)
		if errors.Is(err, domain.ErrStorage) {
			response.Unavailable(c, "message store unavailable")
			return
		}
		response.InternalError(c, "failed to get messages")
		return
	}

	response.Success(c, MessagesResponse{
		RoomID:   roomID,
		Messages: messages,
	})
}

func (h *HTTPHandler) GetSessions(c *gin.Context) {
	roomID := c.Param("room_id")
	if roomID == "" {
		response.BadRequest(c, "room_id is required")
		return
	}

	ids := h.chatService.GetSessions(roomID)
	response.Success(c, SessionsResponse{
		RoomID:     roomID,
		SessionIDs: ids,
		Count:      len(ids),
	})
}

func (h *HTTPHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"sessions": h.hub.SessionCount(),
		"rooms":    h.hub.Registry().RoomCount(),
	})
}
