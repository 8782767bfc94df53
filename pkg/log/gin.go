package log

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	headerRequestID = "X-Request-ID"
	fieldUpgrade    = "upgrade"
	fieldErrors     = "errors"
)

// GinMiddleware attaches a request-scoped logger to the request context and
// logs each request when it ends. The request id is taken from X-Request-ID
// or generated, and echoed back.
//
// A WebSocket upgrade ends when its connection closes, so that entry's
// latency is the connection lifetime. Server errors log at error level,
// client errors at warn, and health checks at debug.
func GinMiddleware(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		reqID := c.GetHeader(headerRequestID)
		if reqID == "" {
			reqID = uuid.NewString()
		}
		upgrade := c.IsWebsocket()

		zc := logger.With().
			Str(FieldRequestID, reqID).
			Str(FieldMethod, c.Request.Method).
			Str(FieldPath, c.Request.URL.Path).
			Str(FieldClientIP, c.ClientIP())
		if roomID := c.Param("room_id"); roomID != "" {
			zc = zc.Str(FieldRoomID, roomID)
		}
		if upgrade {
			zc = zc.Str(fieldUpgrade, "websocket")
		}
		child := zc.Logger()

		c.Header(headerRequestID, reqID)
		c.Request = c.Request.WithContext(WithLogger(c.Request.Context(), child))

		c.Next()

		status := c.Writer.Status()
		var evt *zerolog.Event
		switch {
		case status >= http.StatusInternalServerError:
			evt = child.Error()
		case status >= http.StatusBadRequest:
			evt = child.Warn()
		case c.FullPath() == "/health":
			evt = child.Debug()
		default:
			evt = child.Info()
		}

		evt = evt.Int(FieldStatus, status).
			Float64(FieldLatency, float64(time.Since(start).Microseconds())/1000)
		if len(c.Errors) > 0 {
			evt = evt.Str(fieldErrors, c.Errors.String())
		}

		msg := "request completed"
		if upgrade {
			msg = "websocket session ended"
		}
		evt.Msg(msg)
	}
}
