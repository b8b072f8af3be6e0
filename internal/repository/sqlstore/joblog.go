package sqlstore

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/availability-api/internal/model"
	"github.com/jwalitptl/availability-api/internal/repository"
)

type jobLogRepository struct {
	BaseRepository
}

func NewJobLogRepository(db *sqlx.DB) repository.JobLogRepository {
	return &jobLogRepository{BaseRepository: NewBaseRepository(db)}
}

func (r *jobLogRepository) Start(ctx context.Context, name model.JobName, runID string, startedAt time.Time, capacity int) (int64, error) {
	var id int64
	err := r.withTx(ctx, func(tx BaseRepository) error {
		if err := tx.get(ctx, &id, `
			INSERT INTO job_logs (job_name, run_id, status, message, started_at)
			VALUES (?, ?, ?, '', ?)
			RETURNING id`,
			string(name), runID, string(model.JobStatusStarted), startedAt.UTC(),
		); err != nil {
			return wrap("insert job log", err)
		}

		if _, err := tx.exec(ctx, `
			DELETE FROM job_logs
			WHERE id NOT IN (SELECT id FROM job_logs ORDER BY id DESC LIMIT ?)`,
			capacity,
		); err != nil {
			return wrap("trim job logs", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (r *jobLogRepository) Finish(ctx context.Context, id int64, status model.JobStatus, message string, finishedAt time.Time) error {
	// The record may already have been evicted by newer runs.
	_, err := r.exec(ctx, `
		UPDATE job_logs
		SET status = ?, message = ?, finished_at = ?
		WHERE id = ?`,
		string(status), message, finishedAt.UTC(), id,
	)
	if err != nil {
		return wrap("finish job log", err)
	}
	return nil
}

func (r *jobLogRepository) Recent(ctx context.Context, limit int) ([]*model.JobLog, error) {
	var logs []*model.JobLog
	err := r.selectAll(ctx, &logs, `
		SELECT id, job_name, run_id, status, message, started_at, finished_at
		FROM job_logs
		ORDER BY id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, wrap("list job logs", err)
	}
	return logs, nil
}
