package bus

import (
	"context"

	domainagg "github.com/yungbote/aggsync/internal/domain/aggregates"
)

// Bus fans aggregate changes out to other processes. It satisfies aggregates.Notifier.
type Bus interface {
	Publish(ctx context.Context, change domainagg.Change) error
	StartForwarder(ctx context.Context, onChange func(c domainagg.Change)) error
	Close() error
}

// Metrics receives one observation per publish attempt.
type Metrics interface {
	IncEventPublished(channel, status string)
}

const DefaultChannel = "aggregate_changes"
