package db

import (
	"fmt"

	"gorm.io/gorm"

	domagg "github.com/yungbote/aggsync/internal/domain/aggregates"
	"github.com/yungbote/aggsync/internal/domain/blog"
	"github.com/yungbote/aggsync/internal/domain/polls"
)

// Models lists every table the service owns, in migration order.
func Models() []interface{} {
	return []interface{}{
		// Blog
		&blog.Post{},
		&blog.Comment{},

		// Polls
		&polls.Poll{},
		&polls.Item{},

		// Aggregate bookkeeping
		&domagg.RefreshRun{},
	}
}

func AutoMigrateAll(db *gorm.DB) error {
	if err := db.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}
