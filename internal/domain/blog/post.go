package blog

import (
	"time"

	"github.com/google/uuid"
)

// Post owns comments. Its count columns are maintained from the comment table and stay
// NULL until a comment first references the post.
type Post struct {
	ID    uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Title string    `gorm:"column:title;not null;default:''" json:"title"`

	CommentsCount         *int64 `gorm:"column:comments_count" json:"comments_count"`
	NbComments            *int64 `gorm:"column:nb_comments" json:"nb_comments"`
	ApprovedCommentsCount *int64 `gorm:"column:approved_comments_count" json:"approved_comments_count"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (Post) TableName() string { return "post" }
