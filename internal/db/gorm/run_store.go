package gorm

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/thebtf/ideahunter/pkg/models"
)

// RunStore records pipeline run history.
type RunStore struct {
	db *gorm.DB
}

// NewRunStore creates a new run store.
func NewRunStore(store *Store) *RunStore {
	return &RunStore{db: store.DB}
}

// StartRun inserts a running PipelineRun and returns it.
func (s *RunStore) StartRun(ctx context.Context, startedAt time.Time) (*models.PipelineRun, error) {
	row := &PipelineRun{
		ID:             uuid.NewString(),
		Status:         models.RunStatusRunning,
		StartedAtEpoch: epochOrNow(startedAt),
	}
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		return nil, err
	}
	return toModelRun(row), nil
}

// FinishRun stores the final status and counters of a run.
func (s *RunStore) FinishRun(ctx context.Context, run *models.PipelineRun) error {
	finished := time.Now()
	if run.FinishedAt != nil {
		finished = *run.FinishedAt
	}
	return s.db.WithContext(ctx).
		Model(&PipelineRun{}).
		Where("id = ?", run.ID).
		Updates(map[string]any{
			"status":            run.Status,
			"fetched":           run.Fetched,
			"new_posts":         run.New,
			"processed":         run.Processed,
			"no_problem":        run.NoProblem,
			"extract_failed":    run.ExtractFailed,
			"errors":            run.Errors,
			"error":             nullString(run.Error),
			"finished_at":       sql.NullString{String: finished.UTC().Format(time.RFC3339), Valid: true},
			"finished_at_epoch": sql.NullInt64{Int64: finished.UnixMilli(), Valid: true},
		}).Error
}

// LatestRun returns the most recently started run, or nil, nil if none.
func (s *RunStore) LatestRun(ctx context.Context) (*models.PipelineRun, error) {
	var row PipelineRun
	err := s.db.WithContext(ctx).Order("started_at_epoch DESC").First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return toModelRun(&row), nil
}

// RecentRuns returns up to limit runs, newest first.
func (s *RunStore) RecentRuns(ctx context.Context, limit int) ([]*models.PipelineRun, error) {
	var rows []PipelineRun
	err := s.db.WithContext(ctx).
		Order("started_at_epoch DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	runs := make([]*models.PipelineRun, len(rows))
	for i := range rows {
		runs[i] = toModelRun(&rows[i])
	}
	return runs, nil
}

func toModelRun(r *PipelineRun) *models.PipelineRun {
	return &models.PipelineRun{
		ID:         r.ID,
		Status:     r.Status,
		Error:      r.Error.String,
		StartedAt:  epochToTime(r.StartedAtEpoch),
		FinishedAt: nullEpochToTime(r.FinishedAtEpoch),
		RunStats: models.RunStats{
			Fetched:       r.Fetched,
			New:           r.New,
			Processed:     r.Processed,
			NoProblem:     r.NoProblem,
			ExtractFailed: r.ExtractFailed,
			Errors:        r.Errors,
		},
	}
}
