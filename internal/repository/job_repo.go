package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"narrato-backend/internal/models"
)

type JobRepo struct {
	pool *pgxpool.Pool
}

func NewJobRepo(pool *pgxpool.Pool) *JobRepo {
	return &JobRepo{pool: pool}
}

func (r *JobRepo) Create(ctx context.Context, j *models.Job) error {
	query := `INSERT INTO jobs (id, type, segment_id, language, status, retry_count, max_retries)
		VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING created_at`

	return r.pool.QueryRow(ctx, query,
		j.ID, j.Type, j.SegmentID, j.Language, j.Status, j.RetryCount, j.MaxRetries,
	).Scan(&j.CreatedAt)
}

func (r *JobRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	j := &models.Job{}
	query := `SELECT id, type, segment_id, language, status, retry_count, max_retries,
		error_message, result_url, created_at, completed_at
		FROM jobs WHERE id = $1`

	err := r.pool.QueryRow(ctx, query, id).Scan(
		&j.ID, &j.Type, &j.SegmentID, &j.Language, &j.Status, &j.RetryCount, &j.MaxRetries,
		&j.ErrorMessage, &j.ResultURL, &j.CreatedAt, &j.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	return j, nil
}

func (r *JobRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	query := "UPDATE jobs SET status = $1 WHERE id = $2"
	if status == "completed" || status == "failed" {
		query = "UPDATE jobs SET status = $1, completed_at = NOW() WHERE id = $2"
	}
	_, err := r.pool.Exec(ctx, query, status, id)
	return err
}

func (r *JobRepo) UpdateError(ctx context.Context, id uuid.UUID, errMsg string, retryCount int) error {
	_, err := r.pool.Exec(ctx,
		"UPDATE jobs SET error_message = $1, retry_count = $2 WHERE id = $3", errMsg, retryCount, id)
	return err
}

func (r *JobRepo) UpdateResult(ctx context.Context, id uuid.UUID, resultURL string) error {
	_, err := r.pool.Exec(ctx,
		"UPDATE jobs SET result_url = $1 WHERE id = $2", resultURL, id)
	return err
}
