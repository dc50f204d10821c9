package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"

	"narrato-backend/internal/media"
	"narrato-backend/internal/models"
	"narrato-backend/internal/services"
)

type fakeSegmentStore struct {
	segment      *models.Segment
	statuses     []string
	translations [][2]string
}

func (f *fakeSegmentStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Segment, error) {
	if f.segment == nil || f.segment.ID != id {
		return nil, fmt.Errorf("segment %s not found", id)
	}
	cp := *f.segment
	return &cp, nil
}

func (f *fakeSegmentStore) UpdateVideoStatus(ctx context.Context, id uuid.UUID, lang models.Language, status string) error {
	f.statuses = append(f.statuses, string(lang)+":"+status)
	if lang == models.LanguageTranslated {
		f.segment.VideoStatusTranslated = status
	} else {
		f.segment.VideoStatus = status
	}
	return nil
}

func (f *fakeSegmentStore) UpdateAudio(ctx context.Context, id uuid.UUID, lang models.Language, url string, durationSeconds float64) error {
	if lang == models.LanguageTranslated {
		f.segment.AudioTranslatedURL = &url
		f.segment.AudioTranslatedDurationSeconds = &durationSeconds
	} else {
		f.segment.AudioURL = &url
		f.segment.AudioDurationSeconds = &durationSeconds
	}
	return nil
}

func (f *fakeSegmentStore) UpdateSilentVideo(ctx context.Context, id uuid.UUID, url string) error {
	f.segment.SilentVideoURL = &url
	return nil
}

func (f *fakeSegmentStore) UpdateFinalVideo(ctx context.Context, id uuid.UUID, lang models.Language, url string) error {
	if lang == models.LanguageTranslated {
		f.segment.VideoTranslatedURL = &url
	} else {
		f.segment.VideoURL = &url
	}
	return nil
}

func (f *fakeSegmentStore) UpdateTranslation(ctx context.Context, id uuid.UUID, title, summary string) error {
	f.translations = append(f.translations, [2]string{title, summary})
	if title != "" {
		f.segment.TitleTranslated = &title
	}
	if summary != "" {
		f.segment.SummaryTranslated = &summary
	}
	return nil
}

type fakeSpeech struct {
	calls    int
	voices   []string
	duration float64
	err      error
}

func (f *fakeSpeech) Synthesize(ctx context.Context, ws *media.Workspace, text, voice string) (string, float64, error) {
	f.calls++
	f.voices = append(f.voices, voice)
	if f.err != nil {
		return "", 0, f.err
	}
	return ws.Path("narration.mp3"), f.duration, nil
}

type fakeClips struct {
	calls  int
	styles []string
	err    error
}

func (f *fakeClips) Generate(ctx context.Context, text, styleQualifier string) ([]string, error) {
	f.calls++
	f.styles = append(f.styles, styleQualifier)
	if f.err != nil {
		return nil, f.err
	}
	urls := make([]string, services.ClipCount)
	for i := range urls {
		urls[i] = fmt.Sprintf("https://videogen.example/clip-%d.mp4", i)
	}
	return urls, nil
}

type repeatCall struct {
	repeat int
	cap    float64
}

type fakeAssembler struct {
	measured    float64
	concatCalls int
	mergeCalls  int
	repeatCalls []repeatCall
}

func (f *fakeAssembler) Concat(ctx context.Context, ws *media.Workspace, inputs []string, outName string) (string, error) {
	f.concatCalls++
	return ws.Path(outName), nil
}

func (f *fakeAssembler) RepeatTrimmed(ctx context.Context, ws *media.Workspace, input string, repeat int, capSeconds float64, outName string) (string, error) {
	f.repeatCalls = append(f.repeatCalls, repeatCall{repeat: repeat, cap: capSeconds})
	return ws.Path(outName), nil
}

func (f *fakeAssembler) Merge(ctx context.Context, ws *media.Workspace, videoPath, audioPath, outName string) (string, error) {
	f.mergeCalls++
	return ws.Path(outName), nil
}

func (f *fakeAssembler) ProbeDuration(ctx context.Context, path string) (float64, error) {
	return f.measured, nil
}

type fakeArtifacts struct {
	saves int
}

func (f *fakeArtifacts) Save(localPath string) (string, error) {
	f.saves++
	return "https://media.example/artifacts/" + filepath.Base(localPath), nil
}

type fakeFetcher struct {
	urls []string
}

func (f *fakeFetcher) Download(ctx context.Context, url, destPath string) error {
	f.urls = append(f.urls, url)
	return os.WriteFile(destPath, []byte("media"), 0644)
}

type fakeTranslator struct {
	inputs []string
	out    map[string]string
}

func (f *fakeTranslator) Translate(ctx context.Context, text string) string {
	f.inputs = append(f.inputs, text)
	return f.out[text]
}

type testEnv struct {
	pipe      *Pipeline
	store     *fakeSegmentStore
	speech    *fakeSpeech
	clips     *fakeClips
	assembler *fakeAssembler
	artifacts *fakeArtifacts
	fetcher   *fakeFetcher
	trans     *fakeTranslator
	workRoot  string
}

func newTestEnv(t *testing.T, segment *models.Segment) *testEnv {
	t.Helper()
	env := &testEnv{
		store:     &fakeSegmentStore{segment: segment},
		speech:    &fakeSpeech{duration: 41.3},
		clips:     &fakeClips{},
		assembler: &fakeAssembler{measured: 15.2},
		artifacts: &fakeArtifacts{},
		fetcher:   &fakeFetcher{},
		trans:     &fakeTranslator{out: map[string]string{}},
		workRoot:  t.TempDir(),
	}
	env.pipe = New(
		env.store, env.speech, env.clips, env.trans, env.assembler,
		env.artifacts, env.fetcher, nil,
		"en-main", "kk-main", "cinematic vertical", env.workRoot,
	)
	return env
}

func newSegment() *models.Segment {
	return &models.Segment{
		ID:      uuid.New(),
		Title:   "The Fall of Constantinople",
		Summary: "In 1453 the city walls were breached after a long siege, ending the Byzantine era.",
	}
}

func strPtr(s string) *string     { return &s }
func floatPtr(f float64) *float64 { return &f }

func assertNoLeftoverWorkspaces(t *testing.T, workRoot string) {
	t.Helper()
	entries, err := os.ReadDir(workRoot)
	if err != nil {
		t.Fatalf("read work root: %v", err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "pipeline-") {
			t.Errorf("Leftover workspace %s after pipeline run", e.Name())
		}
	}
}

func TestReconcileRepeatsAndCaps(t *testing.T) {
	env := newTestEnv(t, newSegment())
	ws, err := media.NewWorkspace(env.workRoot)
	if err != nil {
		t.Fatalf("NewWorkspace: %v", err)
	}
	defer ws.Cleanup()

	// 41.3s of audio against a 15.2s concatenated video: target 42,
	// ceil(42/15.2) = 3 repeats, hard cap at 42.
	if _, err := env.pipe.reconcile(context.Background(), ws, []string{"a", "b", "c"}, 41.3); err != nil {
		t.Fatalf("reconcile: %v", err)
	}

	if len(env.assembler.repeatCalls) != 1 {
		t.Fatalf("Expected one repeat-trim call, got %d", len(env.assembler.repeatCalls))
	}
	call := env.assembler.repeatCalls[0]
	if call.repeat != 3 {
		t.Errorf("Expected repeat count 3, got %d", call.repeat)
	}
	if call.cap != 42 {
		t.Errorf("Expected duration cap 42, got %v", call.cap)
	}
}

func TestReconcileSkipsRepeatWhenVideoCovers(t *testing.T) {
	env := newTestEnv(t, newSegment())
	ws, err := media.NewWorkspace(env.workRoot)
	if err != nil {
		t.Fatalf("NewWorkspace: %v", err)
	}
	defer ws.Cleanup()

	out, err := env.pipe.reconcile(context.Background(), ws, []string{"a"}, 12.4)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if len(env.assembler.repeatCalls) != 0 {
		t.Errorf("Expected no repeat-trim when target <= measured, got %d calls", len(env.assembler.repeatCalls))
	}
	if filepath.Base(out) != "silent_concat.mp4" {
		t.Errorf("Expected the concatenated output, got %s", out)
	}
}

func TestReconcileRejectsNonPositiveDuration(t *testing.T) {
	env := newTestEnv(t, newSegment())
	env.assembler.measured = 0
	ws, err := media.NewWorkspace(env.workRoot)
	if err != nil {
		t.Fatalf("NewWorkspace: %v", err)
	}
	defer ws.Cleanup()

	if _, err := env.pipe.reconcile(context.Background(), ws, []string{"a"}, 10); err == nil {
		t.Fatal("Expected error for zero measured duration")
	}
}

func TestRepeatCount(t *testing.T) {
	tests := []struct {
		target, measured float64
		want             int
	}{
		{42, 15.2, 3},
		{15, 15, 1},
		{16, 15, 2},
		{30, 15, 2},
		{31, 15, 3},
	}
	for _, tc := range tests {
		if got := repeatCount(tc.target, tc.measured); got != tc.want {
			t.Errorf("repeatCount(%v, %v) = %d, want %d", tc.target, tc.measured, got, tc.want)
		}
	}
}

func TestGenerateAudioSelectsVoicePerLanguage(t *testing.T) {
	seg := newSegment()
	seg.TitleTranslated = strPtr("Константинопольдің құлауы")
	seg.SummaryTranslated = strPtr("1453 жылы ұзақ қоршаудан кейін қала қабырғалары бұзылды.")
	env := newTestEnv(t, seg)

	if _, err := env.pipe.GenerateAudio(context.Background(), seg.ID, models.LanguageSource); err != nil {
		t.Fatalf("source audio: %v", err)
	}
	if _, err := env.pipe.GenerateAudio(context.Background(), seg.ID, models.LanguageTranslated); err != nil {
		t.Fatalf("translated audio: %v", err)
	}

	if len(env.speech.voices) != 2 || env.speech.voices[0] != "en-main" || env.speech.voices[1] != "kk-main" {
		t.Errorf("Unexpected voices %v", env.speech.voices)
	}
	if env.store.segment.AudioURL == nil || env.store.segment.AudioTranslatedURL == nil {
		t.Error("Audio artifacts were not persisted for both languages")
	}
	if d := env.store.segment.AudioDurationSeconds; d == nil || *d != 41.3 {
		t.Errorf("Probed duration not persisted: %v", d)
	}
	assertNoLeftoverWorkspaces(t, env.workRoot)
}

func TestGenerateSilentVideoPrefersSourceAudio(t *testing.T) {
	seg := newSegment()
	seg.AudioURL = strPtr("https://media.example/a.mp3")
	seg.AudioDurationSeconds = floatPtr(9.2)
	seg.AudioTranslatedURL = strPtr("https://media.example/b.mp3")
	seg.AudioTranslatedDurationSeconds = floatPtr(50)
	env := newTestEnv(t, seg)
	env.assembler.measured = 5

	if _, err := env.pipe.GenerateSilentVideo(context.Background(), seg.ID); err != nil {
		t.Fatalf("GenerateSilentVideo: %v", err)
	}

	// Source audio (9.2s -> target 10) drives reconciliation, not the
	// translated 50s track.
	if len(env.assembler.repeatCalls) != 1 || env.assembler.repeatCalls[0].cap != 10 {
		t.Errorf("Expected reconciliation against source audio (cap 10), got %+v", env.assembler.repeatCalls)
	}
	if env.clips.styles[0] != "cinematic vertical" {
		t.Errorf("Source variant must carry the style qualifier, got %q", env.clips.styles[0])
	}
	if env.store.segment.SilentVideoURL == nil {
		t.Error("Silent video URL was not persisted")
	}
	if len(env.fetcher.urls) != services.ClipCount {
		t.Errorf("Expected %d clip downloads, got %d", services.ClipCount, len(env.fetcher.urls))
	}
	assertNoLeftoverWorkspaces(t, env.workRoot)
}

func TestGenerateSilentVideoWithoutAudioFails(t *testing.T) {
	seg := newSegment()
	env := newTestEnv(t, seg)

	_, err := env.pipe.GenerateSilentVideo(context.Background(), seg.ID)
	var ve *services.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("Expected ValidationError, got %v", err)
	}
	if env.clips.calls != 0 {
		t.Errorf("Expected no clip generation without audio, got %d calls", env.clips.calls)
	}
}

func TestGenerateFinalVideoRequiresPrerequisites(t *testing.T) {
	seg := newSegment()
	env := newTestEnv(t, seg)

	_, err := env.pipe.GenerateFinalVideo(context.Background(), seg.ID, models.LanguageSource)
	var ve *services.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("Expected ValidationError, got %v", err)
	}
	if env.assembler.mergeCalls != 0 {
		t.Errorf("Expected no merge without prerequisites, got %d", env.assembler.mergeCalls)
	}
	if env.store.segment.VideoStatus != models.VideoStatusFailed {
		t.Errorf("Expected failed status, got %q", env.store.segment.VideoStatus)
	}
}

func TestGenerateCompositeSkipsExistingArtifacts(t *testing.T) {
	seg := newSegment()
	seg.AudioURL = strPtr("https://media.example/a.mp3")
	seg.AudioDurationSeconds = floatPtr(20)
	seg.SilentVideoURL = strPtr("https://media.example/silent.mp4")
	env := newTestEnv(t, seg)

	url, err := env.pipe.GenerateComposite(context.Background(), seg.ID, models.LanguageSource)
	if err != nil {
		t.Fatalf("GenerateComposite: %v", err)
	}
	if url == "" {
		t.Error("Expected final video URL")
	}

	// Existing artifacts mean zero external generation calls; only the
	// local merge runs.
	if env.speech.calls != 0 {
		t.Errorf("Expected audio step skipped, got %d synth calls", env.speech.calls)
	}
	if env.clips.calls != 0 {
		t.Errorf("Expected silent video step skipped, got %d clip calls", env.clips.calls)
	}
	if env.assembler.mergeCalls != 1 {
		t.Errorf("Expected exactly one merge, got %d", env.assembler.mergeCalls)
	}
	if env.store.segment.VideoStatus != models.VideoStatusCompleted {
		t.Errorf("Expected completed status, got %q", env.store.segment.VideoStatus)
	}
	assertNoLeftoverWorkspaces(t, env.workRoot)
}

func TestGenerateCompositeForcesRegenerationWhenFinalExists(t *testing.T) {
	seg := newSegment()
	seg.AudioURL = strPtr("https://media.example/a.mp3")
	seg.AudioDurationSeconds = floatPtr(20)
	seg.SilentVideoURL = strPtr("https://media.example/silent.mp4")
	seg.VideoURL = strPtr("https://media.example/final.mp4")
	env := newTestEnv(t, seg)

	if _, err := env.pipe.GenerateComposite(context.Background(), seg.ID, models.LanguageSource); err != nil {
		t.Fatalf("GenerateComposite: %v", err)
	}

	if env.speech.calls != 1 {
		t.Errorf("Expected forced audio regeneration, got %d synth calls", env.speech.calls)
	}
	if env.clips.calls != 1 {
		t.Errorf("Expected forced silent video regeneration, got %d clip calls", env.clips.calls)
	}
	if env.assembler.mergeCalls != 1 {
		t.Errorf("Expected one merge, got %d", env.assembler.mergeCalls)
	}
}

func TestGenerateCompositeStopsOnStepFailure(t *testing.T) {
	seg := newSegment()
	env := newTestEnv(t, seg)
	env.speech.err = &services.QuotaError{Message: "speech quota exhausted"}

	_, err := env.pipe.GenerateComposite(context.Background(), seg.ID, models.LanguageSource)
	var qe *services.QuotaError
	if !errors.As(err, &qe) {
		t.Fatalf("Expected QuotaError, got %v", err)
	}
	if env.clips.calls != 0 || env.assembler.mergeCalls != 0 {
		t.Error("Later steps must not run after an earlier step fails")
	}
	if env.store.segment.VideoStatus != models.VideoStatusFailed {
		t.Errorf("Expected failed status, got %q", env.store.segment.VideoStatus)
	}
	assertNoLeftoverWorkspaces(t, env.workRoot)
}

func TestGenerateTranslatedCompositeTranslatesFirst(t *testing.T) {
	seg := newSegment()
	env := newTestEnv(t, seg)
	env.trans.out = map[string]string{
		seg.Title:   "Аударылған тақырып",
		seg.Summary: "Аударылған мазмұндама.",
	}

	if _, err := env.pipe.GenerateTranslatedComposite(context.Background(), seg.ID); err != nil {
		t.Fatalf("GenerateTranslatedComposite: %v", err)
	}

	if len(env.store.translations) != 1 {
		t.Fatalf("Expected one translation persistence, got %d", len(env.store.translations))
	}
	if env.store.segment.TitleTranslated == nil || env.store.segment.SummaryTranslated == nil {
		t.Error("Translated fields were not persisted")
	}
	if env.speech.voices[0] != "kk-main" {
		t.Errorf("Expected translated voice, got %q", env.speech.voices[0])
	}
	// Translated narration carries no style qualifier.
	if env.clips.styles[0] != "" {
		t.Errorf("Translated variant must not carry the style qualifier, got %q", env.clips.styles[0])
	}
	if env.store.segment.VideoTranslatedURL == nil {
		t.Error("Translated final video was not persisted")
	}
}

func TestGenerateTranslatedCompositeTitleIsCapped(t *testing.T) {
	seg := newSegment()
	seg.Title = strings.Repeat("History of the region. ", 20)
	env := newTestEnv(t, seg)

	env.pipe.GenerateTranslatedComposite(context.Background(), seg.ID)

	if len(env.trans.inputs) == 0 {
		t.Fatal("Translator was never called")
	}
	want := services.TruncateAtSentence(seg.Title, services.ShortTextLimit)
	if env.trans.inputs[0] != want {
		t.Errorf("Title must be sentence-truncated before translation:\ngot:  %q\nwant: %q", env.trans.inputs[0], want)
	}
}

func TestGenerateTranslatedCompositeFailsOpenWithoutSummary(t *testing.T) {
	seg := newSegment()
	env := newTestEnv(t, seg)
	// Translator returns nothing for everything.

	_, err := env.pipe.GenerateTranslatedComposite(context.Background(), seg.ID)
	var ve *services.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("Expected ValidationError, got %v", err)
	}
	if !strings.Contains(ve.Message, "translated summary") {
		t.Errorf("Error should point at the missing translated summary: %s", ve.Message)
	}
	if env.store.segment.VideoStatusTranslated != models.VideoStatusFailed {
		t.Errorf("Expected translated failed status, got %q", env.store.segment.VideoStatusTranslated)
	}
	if env.speech.calls != 0 {
		t.Errorf("Expected no synthesis without narration text, got %d", env.speech.calls)
	}
}

func TestEnsureTranslationPersistsPartialResult(t *testing.T) {
	seg := newSegment()
	env := newTestEnv(t, seg)
	// Only the title translates; the summary call fails open.
	env.trans.out = map[string]string{seg.Title: "Аударылған тақырып"}

	_, err := env.pipe.GenerateTranslatedComposite(context.Background(), seg.ID)
	if err == nil {
		t.Fatal("Expected error when summary translation is unavailable")
	}
	if len(env.store.translations) != 1 {
		t.Fatalf("Partial translation must still be persisted, got %d updates", len(env.store.translations))
	}
	if got := env.store.translations[0]; got[0] == "" || got[1] != "" {
		t.Errorf("Expected persisted title with empty summary, got %v", got)
	}
}

func TestGenerateAudioUnknownSegment(t *testing.T) {
	env := newTestEnv(t, newSegment())

	_, err := env.pipe.GenerateAudio(context.Background(), uuid.New(), models.LanguageSource)
	var nfe *services.NotFoundError
	if !errors.As(err, &nfe) {
		t.Fatalf("Expected NotFoundError, got %v", err)
	}
}

func TestGenerateAudioInvalidLanguage(t *testing.T) {
	env := newTestEnv(t, newSegment())

	_, err := env.pipe.GenerateAudio(context.Background(), env.store.segment.ID, models.Language("klingon"))
	var ve *services.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("Expected ValidationError, got %v", err)
	}
}
