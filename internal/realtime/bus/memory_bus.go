package bus

import (
	"context"
	"fmt"
	"sync"

	domainagg "github.com/yungbote/aggsync/internal/domain/aggregates"
)

// MemoryBus delivers changes to in-process forwarders. It is used when no Redis address
// is configured.
type MemoryBus struct {
	mu       sync.RWMutex
	channel  string
	metrics  Metrics
	handlers map[int]func(domainagg.Change)
	next     int
	closed   bool
}

func NewMemoryBus(metrics Metrics) *MemoryBus {
	return &MemoryBus{channel: "memory", metrics: metrics, handlers: map[int]func(domainagg.Change){}}
}

func (b *MemoryBus) Publish(_ context.Context, change domainagg.Change) error {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		b.observe("closed")
		return fmt.Errorf("memory bus closed")
	}
	handlers := make([]func(domainagg.Change), 0, len(b.handlers))
	for _, h := range b.handlers {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(change)
	}
	b.observe("ok")
	return nil
}

// StartForwarder registers onChange until ctx is done.
func (b *MemoryBus) StartForwarder(ctx context.Context, onChange func(c domainagg.Change)) error {
	if onChange == nil {
		return fmt.Errorf("onChange callback required")
	}
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return fmt.Errorf("memory bus closed")
	}
	id := b.next
	b.next++
	b.handlers[id] = onChange
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.handlers, id)
		b.mu.Unlock()
	}()
	return nil
}

func (b *MemoryBus) Close() error {
	b.mu.Lock()
	b.closed = true
	b.handlers = map[int]func(domainagg.Change){}
	b.mu.Unlock()
	return nil
}

func (b *MemoryBus) observe(status string) {
	if b.metrics != nil {
		b.metrics.IncEventPublished(b.channel, status)
	}
}
