package testutil

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/aggsync/internal/domain/blog"
	"github.com/yungbote/aggsync/internal/domain/polls"
)

// SeedPost inserts a post directly, bypassing repos and observers.
func SeedPost(tb testing.TB, ctx context.Context, tx *gorm.DB, title string) *blog.Post {
	tb.Helper()
	p := &blog.Post{ID: uuid.New(), Title: title}
	if err := tx.WithContext(ctx).Create(p).Error; err != nil {
		tb.Fatalf("seed post: %v", err)
	}
	return p
}

// SeedPoll inserts a poll directly, bypassing repos and observers.
func SeedPoll(tb testing.TB, ctx context.Context, tx *gorm.DB, question string) *polls.Poll {
	tb.Helper()
	p := &polls.Poll{ID: uuid.New(), Question: question}
	if err := tx.WithContext(ctx).Create(p).Error; err != nil {
		tb.Fatalf("seed poll: %v", err)
	}
	return p
}

// SeedItem inserts a poll item directly, bypassing repos and observers.
func SeedItem(tb testing.TB, ctx context.Context, tx *gorm.DB, poll *polls.Poll, score int64) *polls.Item {
	tb.Helper()
	it := &polls.Item{ID: uuid.New(), Score: score}
	it.SetPoll(poll)
	if err := tx.WithContext(ctx).Create(it).Error; err != nil {
		tb.Fatalf("seed poll item: %v", err)
	}
	return it
}

// Reload reads a row of T by primary key.
func Reload[T any](tb testing.TB, ctx context.Context, tx *gorm.DB, id uuid.UUID) *T {
	tb.Helper()
	var out T
	if err := tx.WithContext(ctx).Where("id = ?", id).Take(&out).Error; err != nil {
		tb.Fatalf("reload: %v", err)
	}
	return &out
}
