package router

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	logx "postbot/pkg/logx"
)

// slowRequest promotes request logs from debug to info.
const slowRequest = 750 * time.Millisecond

type Middleware func(next HandlerFunc) HandlerFunc

// Chain wraps h so that m[0] runs first.
func Chain(h HandlerFunc, m ...Middleware) HandlerFunc {
	for i := len(m) - 1; i >= 0; i-- {
		h = m[i](h)
	}
	return h
}

// WithTimeout bounds each handler; d <= 0 disables it.
func WithTimeout(d time.Duration) Middleware {
	if d <= 0 {
		return func(next HandlerFunc) HandlerFunc { return next }
	}
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) error {
			ctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()
			return next(ctx, req)
		}
	}
}

// Recover turns a handler panic into an error so one bad update cannot
// take down a shard worker.
func Recover(log logx.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) (err error) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}
				loggerFor(log, req).Error("handler panic",
					logx.String("cmd", req.Command),
					logx.Any("panic", r),
					logx.String("stack", string(debug.Stack())),
				)
				err = fmt.Errorf("handler %q panicked: %v", req.Command, r)
			}()
			return next(ctx, req)
		}
	}
}

// LogRequests writes one line per handled update.
func LogRequests(log logx.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) error {
			began := time.Now()
			err := next(ctx, req)
			took := time.Since(began)

			l := loggerFor(log, req).With(
				logx.String("kind", string(req.Update.Kind)),
				logx.String("cmd", req.Command),
				logx.Duration("took", took),
			)
			switch {
			case err != nil:
				l.Warn("update failed", logx.Err(err))
			case took >= slowRequest:
				l.Info("update handled (slow)")
			default:
				l.Debug("update handled")
			}
			return err
		}
	}
}

// loggerFor prefers the request logger, which already carries rid and
// from_id.
func loggerFor(log logx.Logger, req *Request) logx.Logger {
	if req == nil || req.Logger.IsZero() {
		return log
	}
	return req.Logger
}
