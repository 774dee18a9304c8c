package logger

import (
	"context"

	"go.uber.org/zap"
)

type loggerKey struct{}

var nop = zap.NewNop()

// ContextWithLogger returns a child context carrying the logger, so
// request-scoped fields travel with the request.
func ContextWithLogger(ctx context.Context, l *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, l)
}

// FromContext returns the logger carried by ctx, or a nop logger when none
// was attached. Never returns nil.
func FromContext(ctx context.Context) *zap.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*zap.Logger); ok {
		return l
	}
	return nop
}
