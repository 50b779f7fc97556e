package polls

import (
	"time"

	"github.com/google/uuid"
)

type Poll struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Question string    `gorm:"column:question;not null;default:''" json:"question"`

	// Maintained from poll_item.
	TotalScore   *int64   `gorm:"column:total_score" json:"total_score"`
	VotesCount   *int64   `gorm:"column:votes_count" json:"votes_count"`
	AverageScore *float64 `gorm:"column:average_score" json:"average_score"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (Poll) TableName() string { return "poll" }

type Item struct {
	ID     uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	PollID *uuid.UUID `gorm:"type:uuid;column:poll_id;index" json:"poll_id,omitempty"`
	Label  string     `gorm:"column:label;not null;default:''" json:"label"`
	Score  int64      `gorm:"column:score;not null;default:0" json:"score"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (Item) TableName() string { return "poll_item" }

func (i *Item) SetPoll(p *Poll) {
	if p == nil {
		i.PollID = nil
		return
	}
	id := p.ID
	i.PollID = &id
}
