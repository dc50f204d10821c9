package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode"

	"golang.org/x/sync/errgroup"
)

// Fixed clip geometry: reconciliation against the audio duration happens
// after generation, never by varying these.
const (
	ClipCount           = 3
	ClipDurationSeconds = 5
)

const maxSimplifyLevel = 3

// ClipSubmitter is the external text-to-video service surface.
type ClipSubmitter interface {
	SubmitClip(ctx context.Context, prompt string, durationSeconds int) (string, error)
	PollClip(ctx context.Context, jobID string) (PollResult, error)
}

// VideoGenClient is the HTTP implementation of ClipSubmitter.
type VideoGenClient struct {
	baseURL    string
	apiKey     string
	client     *http.Client
	retryDelay time.Duration
}

func NewVideoGenClient(baseURL, apiKey string, client *http.Client) *VideoGenClient {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &VideoGenClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		client:     client,
		retryDelay: 2 * time.Second,
	}
}

func (c *VideoGenClient) SubmitClip(ctx context.Context, prompt string, durationSeconds int) (string, error) {
	payload, _ := json.Marshal(map[string]interface{}{
		"prompt":           prompt,
		"duration_seconds": durationSeconds,
		"aspect_ratio":     "9:16",
	})

	var jobID string
	err := retryFixed(ctx, 3, c.retryDelay, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/videos/jobs", bytes.NewReader(payload))
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

		if err := checkProviderStatus(resp, "videogen"); err != nil {
			return err
		}

		var body struct {
			JobID string `json:"job_id"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return err
		}
		if body.JobID == "" {
			return fmt.Errorf("videogen provider returned empty job id")
		}
		jobID = body.JobID
		return nil
	})
	return jobID, err
}

func (c *VideoGenClient) PollClip(ctx context.Context, jobID string) (PollResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/videos/jobs/"+jobID, nil)
	if err != nil {
		return PollResult{}, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return PollResult{}, err
	}
	defer resp.Body.Close()

	if err := checkProviderStatus(resp, "videogen"); err != nil {
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

// ClipGenerator turns narration text into ClipCount silent clip URLs.
// Clips are mutually independent and generated concurrently; the first
// permanent clip failure cancels the rest.
type ClipGenerator struct {
	service ClipSubmitter
	poller  *Poller
}

func NewClipGenerator(service ClipSubmitter, poller *Poller) *ClipGenerator {
	return &ClipGenerator{service: service, poller: poller}
}

// Generate returns the ordered clip URLs. styleQualifier, when non-empty,
// is appended to each clip prompt (source-language variant only).
func (g *ClipGenerator) Generate(ctx context.Context, text, styleQualifier string) ([]string, error) {
	if strings.TrimSpace(text) == "" {
		return nil, &ValidationError{Message: "narration text is empty"}
	}

	parts := SplitClipText(text, ClipCount)
	urls := make([]string, len(parts))

	grp, grpCtx := errgroup.WithContext(ctx)
	grp.SetLimit(ClipCount)
	for i, part := range parts {
		grp.Go(func() error {
			url, err := g.generateClip(grpCtx, part, styleQualifier)
			if err != nil {
				return fmt.Errorf("clip %d: %w", i+1, err)
			}
			urls[i] = url
			return nil
		})
	}
	if err := grp.Wait(); err != nil {
		return nil, err
	}

	return urls, nil
}

// generateClip drives one clip to completion, escalating through
// simplification levels on content-policy rejections. Any other terminal
// failure propagates immediately.
func (g *ClipGenerator) generateClip(ctx context.Context, text, styleQualifier string) (string, error) {
	for level := 0; level <= maxSimplifyLevel; level++ {
		prompt := text
		if level > 0 {
			prompt = SimplifyClipText(text, level)
		}
		if styleQualifier != "" {
			prompt = prompt + ", " + styleQualifier
		}

		jobID, err := g.service.SubmitClip(ctx, prompt, ClipDurationSeconds)
		if err != nil {
			return "", err
		}

		result, err := g.poller.Await(ctx, jobID, g.service.PollClip)
		if err != nil {
			return "", err
		}

		if result.Status == JobStatusSucceeded {
			return result.ResultURL, nil
		}

		if result.Status == JobStatusFailed && isContentPolicyMessage(result.ErrorMessage) {
			if level == maxSimplifyLevel {
				return "", &ContentPolicyError{
					Message: fmt.Sprintf("clip generation rejected by content policy after %d simplified attempts (original text: %q)", maxSimplifyLevel, text),
				}
			}
			continue
		}

		return "", fmt.Errorf("clip generation job %s ended %s: %s", jobID, result.Status, result.ErrorMessage)
	}

	// Unreachable: the loop either returns a URL or an error.
	return "", fmt.Errorf("clip generation fell through simplification loop")
}

// SplitClipText splits text into n contiguous, roughly equal substrings by
// rune count, preserving order. The concatenation of the parts is exactly
// the input.
func SplitClipText(text string, n int) []string {
	runes := []rune(text)
	parts := make([]string, 0, n)

	base := len(runes) / n
	rem := len(runes) % n
	start := 0
	for i := 0; i < n; i++ {
		size := base
		if i < rem {
			size++
		}
		parts = append(parts, string(runes[start:start+size]))
		start += size
	}
	return parts
}

// flaggedTerms are stripped at simplification level 1 and above.
var flaggedTerms = []string{
	"blood", "bloody", "kill", "killed", "murder", "weapon", "gun", "knife",
	"death", "dead", "corpse", "violence", "violent", "war", "bomb", "drug",
	"suicide", "naked", "nude",
}

// SimplifyClipText rewrites a clip prompt at an escalating simplification
// level. Level 1 strips flagged terms and punctuation, level 2 truncates to
// 50 characters, level 3 to 30. An empty result falls back to the first 20
// characters of the original text.
func SimplifyClipText(text string, level int) string {
	simplified := stripFlagged(text)

	switch {
	case level >= 3:
		simplified = truncateRunes(simplified, 30)
	case level == 2:
		simplified = truncateRunes(simplified, 50)
	}

	if strings.TrimSpace(simplified) == "" {
		return truncateRunes(text, 20)
	}
	return simplified
}

func stripFlagged(text string) string {
	var sb strings.Builder
	for _, r := range text {
		if unicode.IsPunct(r) || unicode.IsSymbol(r) {
			continue
		}
		sb.WriteRune(r)
	}

	words := strings.Fields(sb.String())
	kept := words[:0]
	for _, w := range words {
		if !isFlaggedTerm(strings.ToLower(w)) {
			kept = append(kept, w)
		}
	}
	return strings.Join(kept, " ")
}

func isFlaggedTerm(word string) bool {
	for _, term := range flaggedTerms {
		if word == term {
			return true
		}
	}
	return false
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}

func isContentPolicyMessage(msg string) bool {
	m := strings.ToLower(msg)
	return strings.Contains(m, "content policy") ||
		strings.Contains(m, "content_policy") ||
		strings.Contains(m, "safety") ||
		strings.Contains(m, "sensitive") ||
		strings.Contains(m, "flagged")
}
