// Package log is a small levelled logger carried on the context.
package log

import (
	"context"
	"io"
	"os"
)

// Sink receives every entry at or above the logger's level.
type Sink interface {
	Log(entry Entry) error
}

type contextKey struct{}

// discard is used when nothing was attached to the context, so library
// callers that never configure logging stay silent.
var discard = New(Error, newPlainSink(io.Discard, false, false))

// FromContext returns the logger attached to ctx, or a silent one.
func FromContext(ctx context.Context) *Logger {
	if logger, ok := ctx.Value(contextKey{}).(*Logger); ok {
		return logger
	}
	return discard
}

// ContextWithLogger attaches logger to ctx.
func ContextWithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, contextKey{}, logger)
}

// ContextWithNewDefaultLogger attaches a debug logger writing to stderr.
func ContextWithNewDefaultLogger(ctx context.Context) context.Context {
	return ContextWithLogger(ctx, Configure(os.Stderr, Config{Level: Debug}))
}
