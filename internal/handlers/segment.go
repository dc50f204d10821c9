package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"

	"narrato-backend/internal/models"
	"narrato-backend/internal/repository"
	"narrato-backend/internal/worker"
)

type SegmentHandler struct {
	segmentRepo *repository.SegmentRepo
	jobRepo     *repository.JobRepo
	redis       *redis.Client
}

func NewSegmentHandler(segmentRepo *repository.SegmentRepo, jobRepo *repository.JobRepo, redisClient *redis.Client) *SegmentHandler {
	return &SegmentHandler{
		segmentRepo: segmentRepo,
		jobRepo:     jobRepo,
		redis:       redisClient,
	}
}

type generateRequest struct {
	Language models.Language `json:"language"`
}

func (h *SegmentHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid segment id", r))
		return
	}

	segment, err := h.segmentRepo.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "Segment not found", r))
			return
		}
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to load segment", r))
		return
	}

	writeJSON(w, http.StatusOK, segment)
}

func (h *SegmentHandler) GenerateAudio(w http.ResponseWriter, r *http.Request) {
	h.enqueue(w, r, models.JobTypeAudio, true)
}

func (h *SegmentHandler) GenerateSilentVideo(w http.ResponseWriter, r *http.Request) {
	h.enqueue(w, r, models.JobTypeSilentVideo, false)
}

func (h *SegmentHandler) GenerateFinalVideo(w http.ResponseWriter, r *http.Request) {
	h.enqueue(w, r, models.JobTypeFinalVideo, true)
}

func (h *SegmentHandler) GenerateComposite(w http.ResponseWriter, r *http.Request) {
	h.enqueue(w, r, models.JobTypeComposite, true)
}

func (h *SegmentHandler) GenerateTranslatedComposite(w http.ResponseWriter, r *http.Request) {
	h.enqueue(w, r, models.JobTypeCompositeTranslated, false)
}

// enqueue validates the segment, records a queue job, and pushes it onto
// the worker queue. The response is 202 with the job id; callers poll the
// job or the segment record for the artifact URL.
func (h *SegmentHandler) enqueue(w http.ResponseWriter, r *http.Request, jobType string, takesLanguage bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid segment id", r))
		return
	}

	lang := models.LanguageSource
	if jobType == models.JobTypeCompositeTranslated {
		lang = models.LanguageTranslated
	}
	if takesLanguage && r.Body != nil {
		var req generateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err == nil && req.Language != "" {
			lang = req.Language
		}
	}
	if !lang.Valid() {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid language", r))
		return
	}

	if _, err := h.segmentRepo.GetByID(r.Context(), id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "Segment not found", r))
			return
		}
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to load segment", r))
		return
	}

	job := &models.Job{
		ID:         uuid.New(),
		Type:       jobType,
		SegmentID:  id,
		Language:   lang,
		Status:     "queued",
		MaxRetries: 3,
	}
	if err := h.jobRepo.Create(r.Context(), job); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to create job", r))
		return
	}

	jobBytes, _ := json.Marshal(job)
	if err := h.redis.RPush(r.Context(), worker.QueueName(jobType), string(jobBytes)).Err(); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to enqueue job", r))
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"job_id":   job.ID,
		"status":   job.Status,
		"language": lang,
	})
}

// Shared helpers

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func errorResp(code, message string, r *http.Request) models.ErrorResponse {
	return models.ErrorResponse{
		Error: models.APIError{
			Code:      code,
			Message:   message,
			RequestID: r.Header.Get("X-Request-ID"),
		},
	}
}
