package llm

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"
)

// SummarizeTranscript produces a markdown meeting summary of a rendered
// transcript document.
func SummarizeTranscript(
	ctx context.Context,
	openaiAPIKey string,
	transcript string,
) (string, error) {
	if transcript == "" {
		return "Nothing was said in this session", nil
	}

	client := openai.NewClient(openaiAPIKey)

	req := openai.ChatCompletionRequest{
		Model:     openai.GPT4o,
		MaxTokens: 800,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleSystem,
				Content: "Summarize the following voice session transcript as markdown. " +
					"Open with a one-paragraph overview, then key points as bullets, " +
					"then action items with who said them. " +
					"Treat [inaudible] markers as gaps, not content.",
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: transcript,
			},
		},
	}

	resp, err := client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("OpenAI API error: %w", err)
	}

	return resp.Choices[0].Message.Content, nil
}
