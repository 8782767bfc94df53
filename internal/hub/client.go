package hub

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/choiseongjun/chat-with-stream/internal/config"
	"github.com/choiseongjun/chat-with-stream/internal/domain"
	"github.com/choiseongjun/chat-with-stream/pkg/log"
)

// maxCloseReason is the close frame payload limit minus the status code.
const maxCloseReason = 123

// Conn is the subset of *websocket.Conn used by a Client.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

// MessageHandler processes inbound frames of a connection.
type MessageHandler interface {
	// HandleMessage is called for every data frame, in receipt order. An
	// error wrapping domain.ErrProtocol terminates the connection.
	HandleMessage(ctx context.Context, session *Session, data []byte) error
	// HandleDisconnect is called exactly once after teardown.
	HandleDisconnect(ctx context.Context, session *Session, reason error)
}

// Client drives one WebSocket connection: a reader, a writer draining the
// session's OutboundBuffer, and a watchdog for pings and idle timeout.
type Client struct {
	session *Session
	hub     *Hub
	conn    Conn
	handler MessageHandler
	config  config.WebSocketConfig
	retry   RetryPolicy

	logCtx       context.Context
	cancel       context.CancelFunc
	lastActivity atomic.Int64
	once         sync.Once
	done         chan struct{}
}

func NewClient(session *Session, hub *Hub, conn Conn, handler MessageHandler, cfg config.WebSocketConfig) *Client {
	return &Client{
		session: session,
		hub:     hub,
		conn:    conn,
		handler: handler,
		config:  cfg,
		retry: RetryPolicy{
			Attempts: cfg.RetryAttempts,
			Backoff:  cfg.RetryBackoff,
		},
		done: make(chan struct{}),
	}
}

// Session returns the client's session.
func (c *Client) Session() *Session {
	return c.session
}

// Done is closed once the connection is fully torn down.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Run serves the connection until teardown. The session must already be
// registered with the hub.
func (c *Client) Run(ctx context.Context) {
	ctx = log.With(ctx, func(zc zerolog.Context) zerolog.Context {
		return zc.Str(log.FieldSessionID, c.session.ID).Str(log.FieldRemoteAddr, c.session.RemoteAddr)
	})
	c.logCtx = log.WithLogger(context.Background(), log.Ctx(ctx))

	ctx, c.cancel = context.WithCancel(ctx)
	c.touch()

	go c.writePump(ctx)
	go c.watchdog(ctx)
	c.readPump(ctx)

	<-c.done
}

func (c *Client) readPump(ctx context.Context) {
	c.conn.SetReadLimit(c.config.MaxMessageSize)
	c.conn.SetPongHandler(func(string) error {
		c.extendReadDeadline()
		return nil
	})

	// A failed read leaves the connection unusable, so reads are not retried.
	for {
		c.extendReadDeadline()
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) && ctx.Err() == nil {
				l := log.Ctx(ctx)
				l.Warn().Err(err).Msg("websocket read failed")
			}
			c.shutdown(fmt.Errorf("%w: read: %v", domain.ErrConnection, err))
			return
		}

		c.touch()

		if err := c.handler.HandleMessage(ctx, c.session, data); err != nil {
			l := log.Ctx(ctx)
			if errors.Is(err, domain.ErrProtocol) {
				l.Warn().Err(err).Msg("protocol violation, closing connection")
				c.session.Outbound.Fail(err)
				return
			}
			l.Warn().Err(err).Msg("message handling failed")
		}
	}
}

func (c *Client) writePump(ctx context.Context) {
	for {
		data, err := c.session.Outbound.Next(ctx)
		if err != nil {
			c.shutdown(err)
			return
		}

		if err := c.write(data); err != nil {
			c.shutdown(fmt.Errorf("%w: write: %v", domain.ErrConnection, err))
			return
		}
		c.touch()
	}
}

// watchdog sends pings and enforces the idle timeout. Only data frames count
// as activity.
func (c *Client) watchdog(ctx context.Context) {
	var pingC <-chan time.Time
	if c.config.PingInterval > 0 {
		ticker := time.NewTicker(c.config.PingInterval)
		defer ticker.Stop()
		pingC = ticker.C
	}

	var idleC <-chan time.Time
	var idle *time.Timer
	if c.config.IdleTimeout > 0 {
		idle = time.NewTimer(c.config.IdleTimeout)
		defer idle.Stop()
		idleC = idle.C
	}

	for {
		select {
		case <-ctx.Done():
			return

		case <-pingC:
			if err := c.ping(ctx); err != nil {
				if ctx.Err() != nil {
					return
				}
				l := log.Ctx(ctx)
				l.Warn().Err(err).Msg("ping failed")
				c.shutdown(fmt.Errorf("%w: ping: %v", domain.ErrConnection, err))
				return
			}

		case <-idleC:
			since := time.Since(time.Unix(0, c.lastActivity.Load()))
			if since >= c.config.IdleTimeout {
				l := log.Ctx(ctx)
				l.Info().Dur("idle", since).Msg("connection idle, closing")
				c.shutdown(fmt.Errorf("%w: no data for %s", domain.ErrIdleTimeout, since.Truncate(time.Millisecond)))
				return
			}
			idle.Reset(c.config.IdleTimeout - since)
		}
	}
}

func (c *Client) write(data []byte) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// ping sends a ping frame with bounded retries. A control write that times
// out behind a busy data writer leaves the connection usable and is retried
// with a fresh deadline.
func (c *Client) ping(ctx context.Context) error {
	return withRetry(ctx, c.retry, func() error {
		return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.config.WriteWait))
	}, c.retryable)
}

// shutdown tears the connection down once, whatever the exit path.
func (c *Client) shutdown(reason error) {
	c.once.Do(func() {
		if code, text := closeFrame(reason); code != 0 {
			deadline := time.Now().Add(c.config.WriteWait)
			_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), deadline)
		}

		c.cancel()
		c.hub.Unregister(c.session.ID)
		c.handler.HandleDisconnect(c.logCtx, c.session, reason)
		_ = c.conn.Close()

		l := log.Ctx(c.logCtx)
		l.Debug().AnErr("reason", reason).Msg("connection closed")
		close(c.done)
	})
}

func (c *Client) retryable(err error) bool {
	return isTransient(err)
}

func (c *Client) touch() {
	c.lastActivity.Store(time.Now().UnixNano())
}

func (c *Client) extendReadDeadline() {
	if c.config.PongWait > 0 {
		_ = c.conn.SetReadDeadline(time.Now().Add(c.config.PongWait))
	}
}

// closeFrame maps a terminal error to a close status. A zero code means the
// peer is already gone and no frame is sent.
func closeFrame(reason error) (int, string) {
	switch {
	case errors.Is(reason, domain.ErrConnection):
		return 0, ""
	case errors.Is(reason, domain.ErrProtocol):
		return websocket.CloseInvalidFramePayloadData, truncateReason(reason.Error())
	case errors.Is(reason, ErrBufferFull):
		return websocket.CloseTryAgainLater, "outbound buffer overflow"
	case errors.Is(reason, domain.ErrIdleTimeout):
		return websocket.CloseGoingAway, "idle timeout"
	case errors.Is(reason, ErrBufferClosed),
		errors.Is(reason, context.Canceled),
		errors.Is(reason, context.DeadlineExceeded):
		return websocket.CloseGoingAway, "server closing"
	default:
		return websocket.CloseInternalServerErr, "internal error"
	}
}

func truncateReason(s string) string {
	if len(s) <= maxCloseReason {
		return s
	}
	cut := maxCloseReason
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
