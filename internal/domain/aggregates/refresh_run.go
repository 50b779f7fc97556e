package aggregates

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	RefreshStatusRunning   = "running"
	RefreshStatusSucceeded = "succeeded"
	RefreshStatusFailed    = "failed"
)

// RefreshRun records one full recomputation of a definition across all parents.
type RefreshRun struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Definition string    `gorm:"column:definition;not null;index" json:"definition"`
	Status     string    `gorm:"column:status;not null;index" json:"status"`

	Parents int64 `gorm:"column:parents;not null;default:0" json:"parents"`
	Changed int64 `gorm:"column:changed;not null;default:0" json:"changed"`

	Error   string         `gorm:"column:error;not null;default:''" json:"error,omitempty"`
	Details datatypes.JSON `gorm:"column:details" json:"details,omitempty"`

	StartedAt  time.Time  `gorm:"column:started_at;not null" json:"started_at"`
	FinishedAt *time.Time `gorm:"column:finished_at" json:"finished_at,omitempty"`
}

func (RefreshRun) TableName() string { return "aggregate_refresh_run" }
