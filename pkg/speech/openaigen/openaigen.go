// Package openaigen implements speech.Generator over OpenAI chat
// completions, as a config-selectable alternative to Gemini.
package openaigen

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

type Generator struct {
	client openai.Client
	model  string
}

func New(apiKey, model string) *Generator {
	if model == "" {
		model = openai.ChatModelGPT4oMini
	}
	return &Generator{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}
}

func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	chatCompletion, err := g.client.Chat.Completions.New(
		ctx,
		openai.ChatCompletionNewParams{
			Messages: []openai.ChatCompletionMessageParamUnion{
				openai.UserMessage(prompt),
			},
			Model: g.model,
		},
	)
	if err != nil {
		return "", fmt.Errorf("completion failed: %w", err)
	}
	if len(chatCompletion.Choices) == 0 {
		return "", fmt.Errorf("no completion choices received")
	}
	return chatCompletion.Choices[0].Message.Content, nil
}
