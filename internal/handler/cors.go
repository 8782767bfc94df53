package handler

import (
	"net/http"

	"github.com/rs/cors"

	"github.com/choiseongjun/chat-with-stream/internal/config"
)

// NewCORS builds the CORS policy shared by the HTTP API and the WebSocket
// origin check. Origins may contain one "*" wildcard, e.g. http://localhost:*.
func NewCORS(cfg config.CORSConfig) *cors.Cors {
	return cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
	})
}

// originChecker adapts a CORS policy to websocket.Upgrader.CheckOrigin.
// Requests without an Origin header are not from a browser and pass.
func originChecker(policy *cors.Cors) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		if r.Header.Get("Origin") == "" {
			return true
		}
		return policy.OriginAllowed(r)
	}
}
