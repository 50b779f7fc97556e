package ctxutil

import (
	"context"
	"strings"
)

type requestKey struct{}

// Request identifies the admin API call that started a piece of work.
type Request struct {
	TraceID   string
	RequestID string
}

func (r Request) empty() bool { return r.TraceID == "" && r.RequestID == "" }

func WithRequest(ctx context.Context, r Request) context.Context {
	r.TraceID = strings.TrimSpace(r.TraceID)
	r.RequestID = strings.TrimSpace(r.RequestID)
	if r.empty() {
		return ctx
	}
	return context.WithValue(ctx, requestKey{}, r)
}

func RequestFrom(ctx context.Context) (Request, bool) {
	if ctx == nil {
		return Request{}, false
	}
	r, ok := ctx.Value(requestKey{}).(Request)
	return r, ok
}

// RequestID returns the request id carried by ctx, or "".
func RequestID(ctx context.Context) string {
	r, _ := RequestFrom(ctx)
	return r.RequestID
}
