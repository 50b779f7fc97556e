package repos

import (
	"gorm.io/gorm"

	"github.com/yungbote/aggsync/internal/domain/blog"
	"github.com/yungbote/aggsync/internal/domain/polls"
	"github.com/yungbote/aggsync/internal/platform/logger"
)

type PostRepo = EntityRepo[blog.Post]
type CommentRepo = EntityRepo[blog.Comment]
type PollRepo = EntityRepo[polls.Poll]
type PollItemRepo = EntityRepo[polls.Item]

// Set holds one repo per model. Observers given to NewSet watch every repo.
type Set struct {
	Posts       PostRepo
	Comments    CommentRepo
	Polls       PollRepo
	PollItems   PollItemRepo
	RefreshRuns RefreshRunRepo
}

func NewSet(db *gorm.DB, baseLog *logger.Logger, observers ...Observer) (*Set, error) {
	var (
		s   = &Set{RefreshRuns: NewRefreshRunRepo(db, baseLog)}
		err error
	)
	if s.Posts, err = NewEntityRepo[blog.Post](db, baseLog, observers...); err != nil {
		return nil, err
	}
	if s.Comments, err = NewEntityRepo[blog.Comment](db, baseLog, observers...); err != nil {
		return nil, err
	}
	if s.Polls, err = NewEntityRepo[polls.Poll](db, baseLog, observers...); err != nil {
		return nil, err
	}
	if s.PollItems, err = NewEntityRepo[polls.Item](db, baseLog, observers...); err != nil {
		return nil, err
	}
	return s, nil
}

// Observe registers obs on every entity repo in the set.
func (s *Set) Observe(obs Observer) {
	s.Posts.Observe(obs)
	s.Comments.Observe(obs)
	s.Polls.Observe(obs)
	s.PollItems.Observe(obs)
}
