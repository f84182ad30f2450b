package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/proshano/kcru-mailer/internal/domain"
)

// RunsRepo implements dispatch.RunRecorder against PostgreSQL.
type RunsRepo struct{ db *sql.DB }

// NewRunsRepo creates a Postgres-backed run history repository.
func NewRunsRepo(db *sql.DB) *RunsRepo { return &RunsRepo{db: db} }

func (r *RunsRepo) RecordRun(ctx context.Context, run domain.DispatchRun) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO dispatch_runs
			(id, campaign, trigger, total, sent, skipped, errors,
			 started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, run.ID, run.Campaign, run.Trigger,
		run.Stats.Total, run.Stats.Sent, run.Stats.Skipped, run.Stats.Errors,
		run.StartedAt, run.FinishedAt)
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	return nil
}

func (r *RunsRepo) ListRuns(ctx context.Context, limit int) ([]domain.DispatchRun, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, campaign, trigger, total, sent, skipped, errors,
		       started_at, finished_at
		FROM dispatch_runs
		ORDER BY started_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []domain.DispatchRun
	for rows.Next() {
		var run domain.DispatchRun
		if err := rows.Scan(
			&run.ID, &run.Campaign, &run.Trigger,
			&run.Stats.Total, &run.Stats.Sent, &run.Stats.Skipped, &run.Stats.Errors,
			&run.StartedAt, &run.FinishedAt,
		); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		out = append(out, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return out, nil
}
