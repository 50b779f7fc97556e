package blog

import (
	"time"

	"github.com/google/uuid"
)

type Comment struct {
	ID       uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	PostID   *uuid.UUID `gorm:"type:uuid;column:post_id;index" json:"post_id,omitempty"`
	Body     string     `gorm:"column:body;not null;default:''" json:"body"`
	Approved bool       `gorm:"column:approved;not null;default:false" json:"approved"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (Comment) TableName() string { return "comment" }

// SetPost attaches the comment to p, or detaches it when p is nil.
func (c *Comment) SetPost(p *Post) {
	if p == nil {
		c.PostID = nil
		return
	}
	id := p.ID
	c.PostID = &id
}
