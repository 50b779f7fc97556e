package ctxutil

import (
	"context"
	"strings"
)

// Source says which path asked for an aggregate recompute.
type Source string

const (
	SourceRow     Source = "row"
	SourceBulk    Source = "bulk"
	SourceDirect  Source = "direct"
	SourceRefresh Source = "refresh"
)

type triggerKey struct{}

// Trigger describes the write that caused a recompute, e.g. an insert into poll_item.
type Trigger struct {
	Source Source
	Table  string
	Op     string
}

// String renders "source[:table[:op]]", e.g. "row:poll_item:insert".
func (t Trigger) String() string {
	if t.Source == "" {
		return ""
	}
	parts := []string{string(t.Source)}
	if t.Table != "" {
		parts = append(parts, t.Table)
		if t.Op != "" {
			parts = append(parts, t.Op)
		}
	}
	return strings.Join(parts, ":")
}

func WithTrigger(ctx context.Context, t Trigger) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, triggerKey{}, t)
}

// EnsureTrigger attaches t unless ctx already names a trigger.
func EnsureTrigger(ctx context.Context, t Trigger) context.Context {
	if _, ok := TriggerFrom(ctx); ok {
		return ctx
	}
	return WithTrigger(ctx, t)
}

func TriggerFrom(ctx context.Context) (Trigger, bool) {
	if ctx == nil {
		return Trigger{}, false
	}
	t, ok := ctx.Value(triggerKey{}).(Trigger)
	return t, ok
}
