package services

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// Translator fills in the translated-language variant of a segment. It
// fails open: on any error an empty string is returned so the pipeline can
// proceed with a partial record and retry translation later.
type Translator interface {
	Translate(ctx context.Context, text string) string
}

type GeminiTranslator struct {
	client   *genai.Client
	model    *genai.GenerativeModel
	rateChan chan struct{} // Token bucket
}

func NewGeminiTranslator(apiKey string, concurrentReqs int) (*GeminiTranslator, error) {
	ctx := context.Background()
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	model := client.GenerativeModel("gemini-3-flash-preview")
	model.SetTemperature(0.2)
	model.SetTopP(0.95)

	if concurrentReqs <= 0 {
		concurrentReqs = 5
	}
	rateChan := make(chan struct{}, concurrentReqs)
	for i := 0; i < concurrentReqs; i++ {
		rateChan <- struct{}{}
	}

	return &GeminiTranslator{
		client:   client,
		model:    model,
		rateChan: rateChan,
	}, nil
}

func (t *GeminiTranslator) Close() {
	t.client.Close()
}

func (t *GeminiTranslator) Translate(ctx context.Context, text string) string {
	if strings.TrimSpace(text) == "" {
		return ""
	}

	select {
	case <-t.rateChan:
		defer func() { t.rateChan <- struct{}{} }()
	case <-ctx.Done():
		return ""
	}

	prompt := "Translate the following text to English. Return only the translation, no commentary:\n\n" + text

	resp, err := t.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		log.Printf("translation failed: %v", err)
		return ""
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			sb.WriteString(string(txt))
		}
	}
	return strings.TrimSpace(sb.String())
}
