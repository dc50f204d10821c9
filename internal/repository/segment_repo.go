package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"narrato-backend/internal/models"
)

type SegmentRepo struct {
	pool *pgxpool.Pool
}

func NewSegmentRepo(pool *pgxpool.Pool) *SegmentRepo {
	return &SegmentRepo{pool: pool}
}

const segmentColumns = `id, document_id, position, title, title_translated, summary, summary_translated,
	audio_url, audio_duration_seconds, audio_translated_url, audio_translated_duration_seconds,
	silent_video_url, video_url, video_translated_url,
	video_status, video_status_translated, created_at, updated_at`

func (r *SegmentRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Segment, error) {
	s := &models.Segment{}
	query := `SELECT ` + segmentColumns + ` FROM segments WHERE id = $1`

	err := r.pool.QueryRow(ctx, query, id).Scan(
		&s.ID, &s.DocumentID, &s.Position, &s.Title, &s.TitleTranslated, &s.Summary, &s.SummaryTranslated,
		&s.AudioURL, &s.AudioDurationSeconds, &s.AudioTranslatedURL, &s.AudioTranslatedDurationSeconds,
		&s.SilentVideoURL, &s.VideoURL, &s.VideoTranslatedURL,
		&s.VideoStatus, &s.VideoStatusTranslated, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (r *SegmentRepo) Create(ctx context.Context, s *models.Segment) error {
	s.ID = uuid.New()

	query := `INSERT INTO segments (id, document_id, position, title, title_translated, summary, summary_translated)
		VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING created_at, updated_at`

	return r.pool.QueryRow(ctx, query,
		s.ID, s.DocumentID, s.Position, s.Title, s.TitleTranslated, s.Summary, s.SummaryTranslated,
	).Scan(&s.CreatedAt, &s.UpdatedAt)
}

// UpdateVideoStatus writes the per-language generation status. The silent
// video step is language-agnostic but still reports through the status of
// the language whose audio drove reconciliation.
func (r *SegmentRepo) UpdateVideoStatus(ctx context.Context, id uuid.UUID, lang models.Language, status string) error {
	column := "video_status"
	if lang == models.LanguageTranslated {
		column = "video_status_translated"
	}
	_, err := r.pool.Exec(ctx,
		"UPDATE segments SET "+column+" = $1, updated_at = NOW() WHERE id = $2", status, id)
	return err
}

func (r *SegmentRepo) UpdateAudio(ctx context.Context, id uuid.UUID, lang models.Language, url string, durationSeconds float64) error {
	query := `UPDATE segments SET audio_url = $1, audio_duration_seconds = $2, updated_at = NOW() WHERE id = $3`
	if lang == models.LanguageTranslated {
		query = `UPDATE segments SET audio_translated_url = $1, audio_translated_duration_seconds = $2, updated_at = NOW() WHERE id = $3`
	}
	_, err := r.pool.Exec(ctx, query, url, durationSeconds, id)
	return err
}

func (r *SegmentRepo) UpdateSilentVideo(ctx context.Context, id uuid.UUID, url string) error {
	_, err := r.pool.Exec(ctx,
		"UPDATE segments SET silent_video_url = $1, updated_at = NOW() WHERE id = $2", url, id)
	return err
}

func (r *SegmentRepo) UpdateFinalVideo(ctx context.Context, id uuid.UUID, lang models.Language, url string) error {
	query := `UPDATE segments SET video_url = $1, updated_at = NOW() WHERE id = $2`
	if lang == models.LanguageTranslated {
		query = `UPDATE segments SET video_translated_url = $1, updated_at = NOW() WHERE id = $2`
	}
	_, err := r.pool.Exec(ctx, query, url, id)
	return err
}

func (r *SegmentRepo) UpdateTranslation(ctx context.Context, id uuid.UUID, title, summary string) error {
	_, err := r.pool.Exec(ctx,
		"UPDATE segments SET title_translated = $1, summary_translated = $2, updated_at = NOW() WHERE id = $3",
		title, summary, id)
	return err
}
