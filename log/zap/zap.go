// Package zap adapts a *zap.Logger to client.Logger.
package zap

import (
	"sort"

	"github.com/zoobzio/derive/client"
	"go.uber.org/zap"
)

// ZapLogger logs client requests and decode failures through a zap logger.
// Fields become zap.Any fields in key order.
type ZapLogger struct{ L *zap.Logger }

var _ client.Logger = ZapLogger{}

// New wraps l. A nil l logs nothing.
func New(l *zap.Logger) ZapLogger {
	if l == nil {
		l = zap.NewNop()
	}
	return ZapLogger{L: l}
}

func (z ZapLogger) Debug(msg string, f client.Fields) { z.L.Debug(msg, zf(f)...) }
func (z ZapLogger) Info(msg string, f client.Fields)  { z.L.Info(msg, zf(f)...) }
func (z ZapLogger) Warn(msg string, f client.Fields)  { z.L.Warn(msg, zf(f)...) }
func (z ZapLogger) Error(msg string, f client.Fields) { z.L.Error(msg, zf(f)...) }

// zf converts fields in key order so log lines are stable.
func zf(f client.Fields) []zap.Field {
	if len(f) == 0 {
		return nil
	}
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]zap.Field, 0, len(f))
	for _, k := range keys {
		out = append(out, zap.Any(k, f[k]))
	}
	return out
}
