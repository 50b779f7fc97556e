package repos

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	domagg "github.com/yungbote/aggsync/internal/domain/aggregates"
	"github.com/yungbote/aggsync/internal/platform/dbctx"
	"github.com/yungbote/aggsync/internal/platform/logger"
)

type RefreshRunRepo interface {
	Start(dbc dbctx.Context, definition string) (*domagg.RefreshRun, error)
	Finish(dbc dbctx.Context, run *domagg.RefreshRun, parents, changed int64, details datatypes.JSON, runErr error) error
	GetByID(dbc dbctx.Context, id uuid.UUID) (*domagg.RefreshRun, error)
	ListRecent(dbc dbctx.Context, definition string, limit int) ([]*domagg.RefreshRun, error)
}

type refreshRunRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewRefreshRunRepo(db *gorm.DB, baseLog *logger.Logger) RefreshRunRepo {
	r := &refreshRunRepo{db: db}
	if baseLog != nil {
		r.log = baseLog.With("repo", "RefreshRunRepo")
	}
	return r
}

func (r *refreshRunRepo) Start(dbc dbctx.Context, definition string) (*domagg.RefreshRun, error) {
	run := &domagg.RefreshRun{
		ID:         uuid.New(),
		Definition: definition,
		Status:     domagg.RefreshStatusRunning,
		StartedAt:  time.Now().UTC(),
	}
	if err := dbc.DB(r.db).Create(run).Error; err != nil {
		return nil, err
	}
	return run, nil
}

func (r *refreshRunRepo) Finish(dbc dbctx.Context, run *domagg.RefreshRun, parents, changed int64, details datatypes.JSON, runErr error) error {
	if run == nil {
		return nil
	}
	now := time.Now().UTC()
	run.Parents = parents
	run.Changed = changed
	run.Details = details
	run.FinishedAt = &now
	run.Status = domagg.RefreshStatusSucceeded
	run.Error = ""
	if runErr != nil {
		run.Status = domagg.RefreshStatusFailed
		run.Error = runErr.Error()
	}
	return dbc.DB(r.db).Model(&domagg.RefreshRun{}).
		Where("id = ?", run.ID).
		Updates(map[string]interface{}{
			"status":      run.Status,
			"parents":     run.Parents,
			"changed":     run.Changed,
			"details":     run.Details,
			"error":       run.Error,
			"finished_at": run.FinishedAt,
		}).Error
}

func (r *refreshRunRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*domagg.RefreshRun, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var run domagg.RefreshRun
	err := dbc.DB(r.db).Where("id = ?", id).Take(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

func (r *refreshRunRepo) ListRecent(dbc dbctx.Context, definition string, limit int) ([]*domagg.RefreshRun, error) {
	if limit <= 0 {
		limit = 20
	}
	q := dbc.DB(r.db).Order("started_at DESC").Limit(limit)
	if definition != "" {
		q = q.Where("definition = ?", definition)
	}
	var out []*domagg.RefreshRun
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
