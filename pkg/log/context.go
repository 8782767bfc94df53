package log

import (
	"context"

	"github.com/rs/zerolog"
)

type loggerKey struct{}

// WithLogger returns a copy of ctx carrying logger.
func WithLogger(ctx context.Context, logger zerolog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// Ctx returns the logger carried by ctx, or the global logger.
func Ctx(ctx context.Context) zerolog.Logger {
	if l, ok := ctx.Value(loggerKey{}).(zerolog.Logger); ok {
		return l
	}
	return L()
}

// With derives a child of the context logger by applying fields and returns
// a context carrying it.
func With(ctx context.Context, fields func(zerolog.Context) zerolog.Context) context.Context {
	l := Ctx(ctx)
	return WithLogger(ctx, fields(l.With()).Logger())
}

// WithStr is With for a single string field.
func WithStr(ctx context.Context, key, value string) context.Context {
	return With(ctx, func(zc zerolog.Context) zerolog.Context {
		return zc.Str(key, value)
	})
}
