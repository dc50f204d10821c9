package models

import (
	"time"

	"github.com/google/uuid"
)

// Language selects which narration variant of a segment an operation targets.
type Language string

const (
	LanguageSource     Language = "source"
	LanguageTranslated Language = "translated"
)

func (l Language) Valid() bool {
	return l == LanguageSource || l == LanguageTranslated
}

// Video generation status per (segment, language).
const (
	VideoStatusPending    = "pending"
	VideoStatusGenerating = "generating"
	VideoStatusCompleted  = "completed"
	VideoStatusFailed     = "failed"
)

type Segment struct {
	ID         uuid.UUID `json:"id"`
	DocumentID uuid.UUID `json:"document_id"`
	Position   int       `json:"position"`

	Title             string  `json:"title"`
	TitleTranslated   *string `json:"title_translated"`
	Summary           string  `json:"summary"`
	SummaryTranslated *string `json:"summary_translated"`

	AudioURL                       *string  `json:"audio_url"`
	AudioDurationSeconds           *float64 `json:"audio_duration_seconds"`
	AudioTranslatedURL             *string  `json:"audio_translated_url"`
	AudioTranslatedDurationSeconds *float64 `json:"audio_translated_duration_seconds"`

	// The silent visual track is language-agnostic and shared by both
	// final videos.
	SilentVideoURL     *string `json:"silent_video_url"`
	VideoURL           *string `json:"video_url"`
	VideoTranslatedURL *string `json:"video_translated_url"`

	VideoStatus           string `json:"video_status"`
	VideoStatusTranslated string `json:"video_status_translated"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NarrationText returns the title+summary narration for a language.
// Missing translated fields yield empty strings.
func (s *Segment) NarrationText(lang Language) string {
	if lang == LanguageTranslated {
		title, summary := "", ""
		if s.TitleTranslated != nil {
			title = *s.TitleTranslated
		}
		if s.SummaryTranslated != nil {
			summary = *s.SummaryTranslated
		}
		if title == "" {
			return summary
		}
		if summary == "" {
			return title
		}
		return title + ". " + summary
	}
	if s.Title == "" {
		return s.Summary
	}
	if s.Summary == "" {
		return s.Title
	}
	return s.Title + ". " + s.Summary
}

func (s *Segment) AudioFor(lang Language) (url *string, duration *float64) {
	if lang == LanguageTranslated {
		return s.AudioTranslatedURL, s.AudioTranslatedDurationSeconds
	}
	return s.AudioURL, s.AudioDurationSeconds
}

func (s *Segment) VideoFor(lang Language) *string {
	if lang == LanguageTranslated {
		return s.VideoTranslatedURL
	}
	return s.VideoURL
}

func (s *Segment) StatusFor(lang Language) string {
	if lang == LanguageTranslated {
		return s.VideoStatusTranslated
	}
	return s.VideoStatus
}

type Document struct {
	ID        uuid.UUID `json:"id"`
	Title     string    `json:"title"`
	SourceURL *string   `json:"source_url"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}
