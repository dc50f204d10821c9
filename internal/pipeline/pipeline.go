package pipeline

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"

	"narrato-backend/internal/media"
	"narrato-backend/internal/models"
	"narrato-backend/internal/services"
)

// SpeechService produces a narration audio file and its measured duration.
type SpeechService interface {
	Synthesize(ctx context.Context, ws *media.Workspace, text, voice string) (string, float64, error)
}

// ClipService produces the ordered silent clip URLs for a narration text.
type ClipService interface {
	Generate(ctx context.Context, text, styleQualifier string) ([]string, error)
}

// Assembler is the local media toolchain.
type Assembler interface {
	Concat(ctx context.Context, ws *media.Workspace, inputs []string, outName string) (string, error)
	RepeatTrimmed(ctx context.Context, ws *media.Workspace, input string, repeat int, capSeconds float64, outName string) (string, error)
	Merge(ctx context.Context, ws *media.Workspace, videoPath, audioPath, outName string) (string, error)
	ProbeDuration(ctx context.Context, path string) (float64, error)
}

// ArtifactStore persists a finished file and returns its durable URL.
type ArtifactStore interface {
	Save(localPath string) (string, error)
}

// Fetcher downloads an artifact URL into a local path.
type Fetcher interface {
	Download(ctx context.Context, url, destPath string) error
}

// SegmentStore is the segment persistence surface the pipeline mutates.
type SegmentStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Segment, error)
	UpdateVideoStatus(ctx context.Context, id uuid.UUID, lang models.Language, status string) error
	UpdateAudio(ctx context.Context, id uuid.UUID, lang models.Language, url string, durationSeconds float64) error
	UpdateSilentVideo(ctx context.Context, id uuid.UUID, url string) error
	UpdateFinalVideo(ctx context.Context, id uuid.UUID, lang models.Language, url string) error
	UpdateTranslation(ctx context.Context, id uuid.UUID, title, summary string) error
}

// ProgressPublisher fans pipeline step updates out to watchers. May be nil.
type ProgressPublisher interface {
	Publish(segmentID uuid.UUID, lang models.Language, step string)
}

// Pipeline orchestrates the per-segment media generation chain:
// audio → silent video → final video, per language variant.
type Pipeline struct {
	segments   SegmentStore
	speech     SpeechService
	clips      ClipService
	translator services.Translator
	assembler  Assembler
	store      ArtifactStore
	fetcher    Fetcher
	progress   ProgressPublisher

	voice           string
	voiceTranslated string
	styleQualifier  string
	workRoot        string
}

func New(
	segments SegmentStore,
	speech SpeechService,
	clips ClipService,
	translator services.Translator,
	assembler Assembler,
	store ArtifactStore,
	fetcher Fetcher,
	progress ProgressPublisher,
	voice, voiceTranslated, styleQualifier, workRoot string,
) *Pipeline {
	return &Pipeline{
		segments:        segments,
		speech:          speech,
		clips:           clips,
		translator:      translator,
		assembler:       assembler,
		store:           store,
		fetcher:         fetcher,
		progress:        progress,
		voice:           voice,
		voiceTranslated: voiceTranslated,
		styleQualifier:  styleQualifier,
		workRoot:        workRoot,
	}
}

// GenerateAudio synthesizes the narration audio for one language and
// persists the artifact. Re-invocation overwrites the prior audio.
func (p *Pipeline) GenerateAudio(ctx context.Context, segmentID uuid.UUID, lang models.Language) (string, error) {
	if !lang.Valid() {
		return "", &services.ValidationError{Message: fmt.Sprintf("invalid language %q", lang)}
	}

	segment, err := p.segments.GetByID(ctx, segmentID)
	if err != nil {
		return "", &services.NotFoundError{Message: fmt.Sprintf("segment %s not found", segmentID)}
	}

	p.segments.UpdateVideoStatus(ctx, segmentID, lang, models.VideoStatusGenerating)

	url, err := p.generateAudio(ctx, segment, lang)
	if err != nil {
		return "", p.fail(ctx, segmentID, lang, err)
	}

	p.segments.UpdateVideoStatus(ctx, segmentID, lang, models.VideoStatusCompleted)
	return url, nil
}

func (p *Pipeline) generateAudio(ctx context.Context, segment *models.Segment, lang models.Language) (string, error) {
	text := segment.NarrationText(lang)
	if text == "" {
		return "", &services.ValidationError{Message: fmt.Sprintf("segment %s has no %s narration text", segment.ID, lang)}
	}

	ws, err := media.NewWorkspace(p.workRoot)
	if err != nil {
		return "", err
	}
	defer ws.Cleanup()

	p.publish(segment.ID, lang, "synthesizing narration audio")

	voice := p.voice
	if lang == models.LanguageTranslated {
		voice = p.voiceTranslated
	}

	audioPath, duration, err := p.speech.Synthesize(ctx, ws, text, voice)
	if err != nil {
		return "", err
	}

	url, err := p.store.Save(audioPath)
	if err != nil {
		return "", err
	}

	if err := p.segments.UpdateAudio(ctx, segment.ID, lang, url, duration); err != nil {
		return "", err
	}

	log.Printf("Segment %s: %s audio ready (%.1fs)", segment.ID, lang, duration)
	return url, nil
}

// GenerateSilentVideo produces the shared silent visual track, reconciled
// against whichever audio duration is currently available (source audio
// preferred). The artifact is shared by both languages' merges.
func (p *Pipeline) GenerateSilentVideo(ctx context.Context, segmentID uuid.UUID) (string, error) {
	segment, err := p.segments.GetByID(ctx, segmentID)
	if err != nil {
		return "", &services.NotFoundError{Message: fmt.Sprintf("segment %s not found", segmentID)}
	}

	lang, audioDuration, err := availableAudio(segment)
	if err != nil {
		return "", err
	}

	p.segments.UpdateVideoStatus(ctx, segmentID, lang, models.VideoStatusGenerating)

	url, err := p.generateSilentVideo(ctx, segment, lang, audioDuration)
	if err != nil {
		return "", p.fail(ctx, segmentID, lang, err)
	}

	p.segments.UpdateVideoStatus(ctx, segmentID, lang, models.VideoStatusCompleted)
	return url, nil
}

func (p *Pipeline) generateSilentVideo(ctx context.Context, segment *models.Segment, lang models.Language, audioDuration float64) (string, error) {
	text := segment.NarrationText(lang)
	if text == "" {
		return "", &services.ValidationError{Message: fmt.Sprintf("segment %s has no %s narration text", segment.ID, lang)}
	}

	ws, err := media.NewWorkspace(p.workRoot)
	if err != nil {
		return "", err
	}
	defer ws.Cleanup()

	p.publish(segment.ID, lang, "generating silent clips")

	// Style qualifier applies to the source-language variant only.
	style := ""
	if lang == models.LanguageSource {
		style = p.styleQualifier
	}

	clipURLs, err := p.clips.Generate(ctx, text, style)
	if err != nil {
		return "", err
	}

	clipPaths := make([]string, len(clipURLs))
	for i, clipURL := range clipURLs {
		dest := ws.Path(fmt.Sprintf("clip_%02d.mp4", i))
		if err := p.fetcher.Download(ctx, clipURL, dest); err != nil {
			return "", err
		}
		clipPaths[i] = dest
	}

	p.publish(segment.ID, lang, "reconciling video duration")

	reconciled, err := p.reconcile(ctx, ws, clipPaths, audioDuration)
	if err != nil {
		return "", err
	}

	url, err := p.store.Save(reconciled)
	if err != nil {
		return "", err
	}

	if err := p.segments.UpdateSilentVideo(ctx, segment.ID, url); err != nil {
		return "", err
	}

	log.Printf("Segment %s: silent video ready (target %.0fs)", segment.ID, audioDuration)
	return url, nil
}

// GenerateFinalVideo merges the shared silent video with the requested
// language's audio. Both prerequisite artifacts must already exist.
func (p *Pipeline) GenerateFinalVideo(ctx context.Context, segmentID uuid.UUID, lang models.Language) (string, error) {
	if !lang.Valid() {
		return "", &services.ValidationError{Message: fmt.Sprintf("invalid language %q", lang)}
	}

	segment, err := p.segments.GetByID(ctx, segmentID)
	if err != nil {
		return "", &services.NotFoundError{Message: fmt.Sprintf("segment %s not found", segmentID)}
	}

	p.segments.UpdateVideoStatus(ctx, segmentID, lang, models.VideoStatusGenerating)

	url, err := p.generateFinalVideo(ctx, segment, lang)
	if err != nil {
		return "", p.fail(ctx, segmentID, lang, err)
	}

	p.segments.UpdateVideoStatus(ctx, segmentID, lang, models.VideoStatusCompleted)
	return url, nil
}

func (p *Pipeline) generateFinalVideo(ctx context.Context, segment *models.Segment, lang models.Language) (string, error) {
	audioURL, _ := segment.AudioFor(lang)
	if audioURL == nil {
		return "", &services.ValidationError{Message: fmt.Sprintf("segment %s has no %s audio artifact; generate audio first", segment.ID, lang)}
	}
	if segment.SilentVideoURL == nil {
		return "", &services.ValidationError{Message: fmt.Sprintf("segment %s has no silent video artifact; generate it first", segment.ID)}
	}

	ws, err := media.NewWorkspace(p.workRoot)
	if err != nil {
		return "", err
	}
	defer ws.Cleanup()

	p.publish(segment.ID, lang, "merging audio and video")

	audioPath := ws.Path("audio.mp3")
	if err := p.fetcher.Download(ctx, *audioURL, audioPath); err != nil {
		return "", err
	}
	videoPath := ws.Path("silent.mp4")
	if err := p.fetcher.Download(ctx, *segment.SilentVideoURL, videoPath); err != nil {
		return "", err
	}

	merged, err := p.assembler.Merge(ctx, ws, videoPath, audioPath, "final.mp4")
	if err != nil {
		return "", err
	}

	url, err := p.store.Save(merged)
	if err != nil {
		return "", err
	}

	if err := p.segments.UpdateFinalVideo(ctx, segment.ID, lang, url); err != nil {
		return "", err
	}

	log.Printf("Segment %s: %s final video ready", segment.ID, lang)
	return url, nil
}

// GenerateComposite runs the full chain for one language, skipping steps
// whose artifacts already exist. An existing final video for the language
// forces full regeneration so a stale audio artifact from a previous edit
// is never silently reused.
func (p *Pipeline) GenerateComposite(ctx context.Context, segmentID uuid.UUID, lang models.Language) (string, error) {
	if !lang.Valid() {
		return "", &services.ValidationError{Message: fmt.Sprintf("invalid language %q", lang)}
	}

	segment, err := p.segments.GetByID(ctx, segmentID)
	if err != nil {
		return "", &services.NotFoundError{Message: fmt.Sprintf("segment %s not found", segmentID)}
	}

	force := segment.VideoFor(lang) != nil
	if force {
		log.Printf("Segment %s: %s final video exists, regenerating all steps", segmentID, lang)
	}

	audioURL, _ := segment.AudioFor(lang)
	if force || audioURL == nil {
		if _, err := p.GenerateAudio(ctx, segmentID, lang); err != nil {
			return "", err
		}
	}

	if force || segment.SilentVideoURL == nil {
		if _, err := p.GenerateSilentVideo(ctx, segmentID); err != nil {
			return "", err
		}
	}

	return p.GenerateFinalVideo(ctx, segmentID, lang)
}

// GenerateTranslatedComposite ensures the translated narration exists, then
// runs the composite chain for the translated language.
func (p *Pipeline) GenerateTranslatedComposite(ctx context.Context, segmentID uuid.UUID) (string, error) {
	segment, err := p.segments.GetByID(ctx, segmentID)
	if err != nil {
		return "", &services.NotFoundError{Message: fmt.Sprintf("segment %s not found", segmentID)}
	}

	if err := p.ensureTranslation(ctx, segment); err != nil {
		return "", p.fail(ctx, segmentID, models.LanguageTranslated, err)
	}

	return p.GenerateComposite(ctx, segmentID, models.LanguageTranslated)
}

// ensureTranslation fills missing translated fields with two one-shot
// calls: title first, then summary. The translator fails open, so a still-
// missing summary after the attempt is an input error, not a translator
// failure.
func (p *Pipeline) ensureTranslation(ctx context.Context, segment *models.Segment) error {
	title := ""
	if segment.TitleTranslated != nil {
		title = *segment.TitleTranslated
	}
	summary := ""
	if segment.SummaryTranslated != nil {
		summary = *segment.SummaryTranslated
	}

	if title != "" && summary != "" {
		return nil
	}

	if title == "" {
		title = p.translator.Translate(ctx, services.TruncateAtSentence(segment.Title, services.ShortTextLimit))
	}
	if summary == "" {
		summary = p.translator.Translate(ctx, segment.Summary)
	}

	if title != "" || summary != "" {
		if err := p.segments.UpdateTranslation(ctx, segment.ID, title, summary); err != nil {
			return err
		}
		if title != "" {
			segment.TitleTranslated = &title
		}
		if summary != "" {
			segment.SummaryTranslated = &summary
		}
	}

	if summary == "" {
		return &services.ValidationError{Message: fmt.Sprintf("segment %s has no translated summary and translation is unavailable; retry later", segment.ID)}
	}
	return nil
}

// availableAudio picks the audio duration reconciliation targets, preferring
// the source language.
func availableAudio(segment *models.Segment) (models.Language, float64, error) {
	if segment.AudioURL != nil && segment.AudioDurationSeconds != nil {
		return models.LanguageSource, *segment.AudioDurationSeconds, nil
	}
	if segment.AudioTranslatedURL != nil && segment.AudioTranslatedDurationSeconds != nil {
		return models.LanguageTranslated, *segment.AudioTranslatedDurationSeconds, nil
	}
	return models.LanguageSource, 0, &services.ValidationError{
		Message: fmt.Sprintf("segment %s has no audio artifact in either language; generate audio first", segment.ID),
	}
}

func (p *Pipeline) fail(ctx context.Context, segmentID uuid.UUID, lang models.Language, err error) error {
	p.segments.UpdateVideoStatus(ctx, segmentID, lang, models.VideoStatusFailed)
	log.Printf("Segment %s: %s generation failed: %v", segmentID, lang, err)
	return err
}

func (p *Pipeline) publish(segmentID uuid.UUID, lang models.Language, step string) {
	if p.progress != nil {
		p.progress.Publish(segmentID, lang, step)
	}
}
