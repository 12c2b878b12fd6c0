package repository

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/mmeshcher/ruesvertes/internal/model"
)

// DueJobs возвращает задачи outbox, время очередной попытки которых наступило.
func (r *PostgresRepository) DueJobs(ctx context.Context, limit int) ([]model.OutboxJob, error) {
	query, args, err := psql.Select(
		"id",
		"order_id",
		"kind",
		"state",
		"attempts",
		"last_error",
		"next_attempt_at",
		"created_at",
	).
		From("outbox_jobs").
		Where(sq.Eq{"state": string(model.JobStatePending)}).
		Where(sq.LtOrEq{"next_attempt_at": time.Now()}).
		OrderBy("next_attempt_at ASC", "id ASC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build due jobs query: %w", err)
	}

	var jobs []model.OutboxJob
	err = r.withRetry(ctx, func(ctx context.Context) error {
		rows, err := r.pool.Query(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("select due jobs: %w", err)
		}
		defer rows.Close()

		jobs = jobs[:0]
		for rows.Next() {
			var (
				job   model.OutboxJob
				kind  string
				state string
			)
			if err := rows.Scan(&job.ID, &job.OrderID, &kind, &state, &job.Attempts, &job.LastError, &job.NextAttemptAt, &job.CreatedAt); err != nil {
				return fmt.Errorf("scan job: %w", err)
			}
			job.Kind = model.JobKind(kind)
			job.State = model.JobState(state)
			jobs = append(jobs, job)
		}

		if err := rows.Err(); err != nil {
			return fmt.Errorf("rows error: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return jobs, nil
}

// CompleteJob помечает задачу выполненной.
func (r *PostgresRepository) CompleteJob(ctx context.Context, id int64) error {
	return r.updateJob(ctx, psql.Update("outbox_jobs").
		Set("state", string(model.JobStateDone)).
		Set("last_error", "").
		Set("updated_at", time.Now()).
		Where(sq.Eq{"id": id}))
}

// RetryJob откладывает задачу до nextAttemptAt и увеличивает счётчик попыток.
func (r *PostgresRepository) RetryJob(ctx context.Context, id int64, attempts int, lastError string, nextAttemptAt time.Time) error {
	return r.updateJob(ctx, psql.Update("outbox_jobs").
		Set("attempts", attempts).
		Set("last_error", lastError).
		Set("next_attempt_at", nextAttemptAt).
		Set("updated_at", time.Now()).
		Where(sq.Eq{"id": id}))
}

// BuryJob прекращает попытки выполнить задачу.
func (r *PostgresRepository) BuryJob(ctx context.Context, id int64, attempts int, lastError string) error {
	return r.updateJob(ctx, psql.Update("outbox_jobs").
		Set("state", string(model.JobStateDead)).
		Set("attempts", attempts).
		Set("last_error", lastError).
		Set("updated_at", time.Now()).
		Where(sq.Eq{"id": id}))
}

func (r *PostgresRepository) updateJob(ctx context.Context, b sq.UpdateBuilder) error {
	query, args, err := b.ToSql()
	if err != nil {
		return fmt.Errorf("build job update query: %w", err)
	}

	return r.withRetry(ctx, func(ctx context.Context) error {
		if _, err := r.pool.Exec(ctx, query, args...); err != nil {
			return fmt.Errorf("update job: %w", err)
		}
		return nil
	})
}
