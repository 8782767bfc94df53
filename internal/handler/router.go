package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/cors"

	"github.com/choiseongjun/chat-with-stream/pkg/log"
)

// NewRouter wires the HTTP API and the WebSocket endpoint behind the CORS
// policy.
func NewRouter(ws *WSHandler, api *HTTPHandler, policy *cors.Cors) http.Handler {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(log.GinMiddleware(log.L()))

	ws.RegisterRoutes(r)
	api.RegisterRoutes(r)

	return policy.Handler(r)
}
