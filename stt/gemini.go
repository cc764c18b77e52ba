package stt

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

type GeminiClient struct {
	model  *genai.GenerativeModel
	logger *log.Logger
}

func NewGeminiClient(
	ctx context.Context,
	apiKey string,
	logger *log.Logger,
) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is not set")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	model := client.GenerativeModel("gemini-1.5-flash")
	model.GenerationConfig.SetTemperature(0.1)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{
			genai.Text(
				"Transcribe this voice chat segment as accurately as possible, " +
					"with good grammar and punctuation. Reply with the transcript " +
					"only, no commentary.",
			),
		},
	}

	return &GeminiClient{model: model, logger: logger}, nil
}

func (c *GeminiClient) Transcribe(
	ctx context.Context,
	audio []byte,
) (string, error) {
	resp, err := c.model.GenerateContent(
		ctx,
		genai.Blob{MIMEType: "audio/ogg", Data: audio},
	)
	if err != nil {
		return "", classify(fmt.Errorf("gemini request failed: %w", err))
	}

	var text strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if t, ok := part.(genai.Text); ok {
				text.WriteString(string(t))
			}
		}
	}

	transcript := strings.TrimSpace(text.String())
	c.logger.Debug("hear", "txt", transcript)

	return transcript, nil
}
