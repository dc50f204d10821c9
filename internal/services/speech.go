package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"narrato-backend/internal/media"
)

// ShortTextLimit is the character cap for the synchronous synthesis mode.
const ShortTextLimit = 150

// sentenceBoundaryFloor: a boundary earlier than 70% of the limit is too
// aggressive a cut, fall back to a hard truncation at the limit instead.
const sentenceBoundaryFloor = 0.7

// DurationProber measures a media file's real duration. Provider-reported
// durations are not trusted.
type DurationProber interface {
	ProbeDuration(ctx context.Context, path string) (float64, error)
}

// SpeechClient talks to the TTS provider. Short texts go through a single
// synchronous call; longer texts are submitted as jobs and polled.
type SpeechClient struct {
	baseURL    string
	apiKey     string
	client     *http.Client
	poller     *Poller
	downloader *Downloader
	prober     DurationProber
	retryDelay time.Duration
}

func NewSpeechClient(baseURL, apiKey string, client *http.Client, poller *Poller, downloader *Downloader, prober DurationProber) *SpeechClient {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &SpeechClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		client:     client,
		poller:     poller,
		downloader: downloader,
		prober:     prober,
		retryDelay: 2 * time.Second,
	}
}

// Synthesize produces a narration audio file inside ws and returns its path
// and measured duration in seconds.
func (c *SpeechClient) Synthesize(ctx context.Context, ws *media.Workspace, text, voice string) (string, float64, error) {
	if strings.TrimSpace(text) == "" {
		return "", 0, &ValidationError{Message: "narration text is empty"}
	}

	outPath := ws.Path("narration.mp3")

	var err error
	if utf8.RuneCountInString(text) <= ShortTextLimit {
		err = c.synthesizeShort(ctx, TruncateAtSentence(text, ShortTextLimit), voice, outPath)
	} else {
		err = c.synthesizeLong(ctx, text, voice, outPath)
	}
	if err != nil {
		return "", 0, err
	}

	duration, err := c.prober.ProbeDuration(ctx, outPath)
	if err != nil {
		return "", 0, fmt.Errorf("probing synthesized audio: %w", err)
	}
	return outPath, duration, nil
}

// synthesizeShort performs the single-call mode: the response body is the
// audio itself.
func (c *SpeechClient) synthesizeShort(ctx context.Context, text, voice, outPath string) error {
	payload, _ := json.Marshal(map[string]string{
		"text":  text,
		"voice": voice,
	})

	var audio []byte
	err := retryFixed(ctx, 3, c.retryDelay, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/speech", bytes.NewReader(payload))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.apiKey)

		resp, err := c.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if err := checkProviderStatus(resp, "speech"); err != nil {
			return err
		}

		audio, err = io.ReadAll(resp.Body)
		return err
	})
	if err != nil {
		return err
	}

	return os.WriteFile(outPath, audio, 0644)
}

// synthesizeLong submits a synthesis job and polls it, then downloads the
// result URL.
func (c *SpeechClient) synthesizeLong(ctx context.Context, text, voice, outPath string) error {
	jobID, err := c.submitJob(ctx, text, voice)
	if err != nil {
		return err
	}

	result, err := c.poller.Await(ctx, jobID, c.pollJob)
	if err != nil {
		return err
	}
	if result.Status != JobStatusSucceeded {
		return fmt.Errorf("speech synthesis job %s ended %s: %s", jobID, result.Status, result.ErrorMessage)
	}

	return c.downloader.Download(ctx, result.ResultURL, outPath)
}

func (c *SpeechClient) submitJob(ctx context.Context, text, voice string) (string, error) {
	payload, _ := json.Marshal(map[string]string{
		"text":  text,
		"voice": voice,
	})

	var jobID string
	err := retryFixed(ctx, 3, c.retryDelay, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/speech/jobs", bytes.NewReader(payload))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.apiKey)

		resp, err := c.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if err := checkProviderStatus(resp, "speech"); err != nil {
			return err
		}

		var body struct {
			JobID string `json:"job_id"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return err
		}
		if body.JobID == "" {
			return fmt.Errorf("speech provider returned empty job id")
		}
		jobID = body.JobID
		return nil
	})
	return jobID, err
}

func (c *SpeechClient) pollJob(ctx context.Context, jobID string) (PollResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/speech/jobs/"+jobID, nil)
	if err != nil {
		return PollResult{}, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return PollResult{}, err
	}
	defer resp.Body.Close()

	if err := checkProviderStatus(resp, "speech"); err != nil {
		return PollResult{}, err
	}

	var body struct {
		Status    string `json:"status"`
		ResultURL string `json:"result_url"`
		Error     string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return PollResult{}, err
	}

	return PollResult{
		Status:       JobStatus(body.Status),
		ResultURL:    body.ResultURL,
		ErrorMessage: body.Error,
	}, nil
}

// TruncateAtSentence cuts text to at most limit runes, preferring the last
// sentence-ending punctuation before the limit. A boundary earlier than 70%
// of the limit is ignored in favor of a hard cut.
func TruncateAtSentence(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}

	window := runes[:limit]
	boundary := -1
	for i, r := range window {
		switch r {
		case '.', '!', '?', ';', '。', '！', '？', '；', '…':
			boundary = i
		}
	}

	if boundary >= int(float64(limit)*sentenceBoundaryFloor) {
		return string(window[:boundary+1])
	}
	return string(window)
}
