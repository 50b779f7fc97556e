package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	domainagg "github.com/yungbote/aggsync/internal/domain/aggregates"
	"github.com/yungbote/aggsync/internal/platform/logger"
)

type RedisOptions struct {
	Addr    string
	Channel string
	Metrics Metrics
}

type redisBus struct {
	log     *logger.Logger
	rdb     *goredis.Client
	channel string
	metrics Metrics
}

func NewRedisBus(log *logger.Logger, opts RedisOptions) (Bus, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	addr := strings.TrimSpace(opts.Addr)
	if addr == "" {
		return nil, fmt.Errorf("missing redis address")
	}
	ch := strings.TrimSpace(opts.Channel)
	if ch == "" {
		ch = DefaultChannel
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &redisBus{
		log:     log.With("service", "RedisChangeBus", "channel", ch),
		rdb:     rdb,
		channel: ch,
		metrics: opts.Metrics,
	}, nil
}

func (b *redisBus) Publish(ctx context.Context, change domainagg.Change) error {
	if b == nil || b.rdb == nil {
		return fmt.Errorf("redis change bus not initialized")
	}
	raw, err := json.Marshal(change)
	if err != nil {
		b.observe("encode_error")
		return err
	}
	if err := b.rdb.Publish(ctx, b.channel, raw).Err(); err != nil {
		b.observe("error")
		return err
	}
	b.observe("ok")
	return nil
}

func (b *redisBus) observe(status string) {
	if b.metrics != nil {
		b.metrics.IncEventPublished(b.channel, status)
	}
}

func (b *redisBus) StartForwarder(ctx context.Context, onChange func(c domainagg.Change)) error {
	if b == nil || b.rdb == nil {
		return fmt.Errorf("redis change bus not initialized")
	}
	if onChange == nil {
		return fmt.Errorf("onChange callback required")
	}

	sub := b.rdb.Subscribe(ctx, b.channel)

	// ensures subscription actually started
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("redis subscribe: %w", err)
	}

	go func() {
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					_ = sub.Close()
					return
				}
				var change domainagg.Change
				if err := json.Unmarshal([]byte(m.Payload), &change); err != nil {
					b.log.Warn("bad aggregate change payload", "error", err)
					continue
				}
				onChange(change)
			}
		}
	}()

	return nil
}

func (b *redisBus) Close() error {
	if b == nil || b.rdb == nil {
		return nil
	}
	return b.rdb.Close()
}
