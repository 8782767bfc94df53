package domain

import "errors"

// Error taxonomy. Concrete errors wrap one of these with %w.
var (
	// ErrProtocol is a malformed or unparseable envelope. Terminates the
	// offending connection only.
	ErrProtocol = errors.New("protocol error")
	// ErrStorage is a durable store failure.
	ErrStorage = errors.New("storage error")
	// ErrCache is a recent-message cache failure.
	ErrCache = errors.New("cache error")
	// ErrChannel is a shared broadcast channel failure.
	ErrChannel = errors.New("channel error")
	// ErrConnection is a network failure on one connection.
	ErrConnection = errors.New("connection error")
	// ErrIdleTimeout is raised when a connection made no progress in time.
	ErrIdleTimeout = errors.New("idle timeout")
)
