package models

import (
	"time"

	"github.com/google/uuid"
)

// Queue job types, one per pipeline operation.
const (
	JobTypeAudio               = "audio-generation"
	JobTypeSilentVideo         = "silent-video-generation"
	JobTypeFinalVideo          = "final-video-generation"
	JobTypeComposite           = "composite-generation"
	JobTypeCompositeTranslated = "composite-translated-generation"
)

type Job struct {
	ID           uuid.UUID  `json:"id"`
	Type         string     `json:"type"`
	SegmentID    uuid.UUID  `json:"segment_id"`
	Language     Language   `json:"language"`
	Status       string     `json:"status"` // "queued" | "processing" | "completed" | "failed"
	RetryCount   int        `json:"retry_count"`
	MaxRetries   int        `json:"max_retries"`
	ErrorMessage *string    `json:"error_message"`
	ResultURL    *string    `json:"result_url"`
	CreatedAt    time.Time  `json:"created_at"`
	CompletedAt  *time.Time `json:"completed_at"`
}

// WebSocket message types
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

type StatusUpdate struct {
	SegmentID uuid.UUID `json:"segment_id"`
	Language  Language  `json:"language"`
	Step      string    `json:"step"`
}

type CompletedEvent struct {
	SegmentID   uuid.UUID `json:"segment_id"`
	Language    Language  `json:"language"`
	ArtifactURL string    `json:"artifact_url"`
}

type ErrorEvent struct {
	SegmentID    uuid.UUID `json:"segment_id"`
	Language     Language  `json:"language"`
	ErrorCode    string    `json:"error_code"`
	ErrorMessage string    `json:"error_message"`
}

// API Error response
type APIError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
}

type ErrorResponse struct {
	Error APIError `json:"error"`
}
