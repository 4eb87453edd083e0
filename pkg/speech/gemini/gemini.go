// Package gemini implements speech.Generator using the Google Gemini API.
package gemini

import (
	"context"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/voxline/voxline/pkg/Logger"
)

type Generator struct {
	client *genai.Client
	model  *genai.GenerativeModel
	logger *Logger.Logger
}

type Config struct {
	APIKey    string
	ModelName string // e.g. "gemini-2.5-flash"
}

func New(ctx context.Context, cfg Config, logger *Logger.Logger) (*Generator, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	modelName := cfg.ModelName
	if modelName == "" {
		modelName = "gemini-2.5-flash"
	}

	return &Generator{
		client: client,
		model:  client.GenerativeModel(modelName),
		logger: logger,
	}, nil
}

// Generate runs one content generation call for the finalized transcript.
func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := g.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("failed to generate content: %w", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("no response candidates received")
	}

	var responseText string
	for _, part := range resp.Candidates[0].Content.Parts {
		if textPart, ok := part.(genai.Text); ok {
			responseText += string(textPart)
		}
	}
	if responseText == "" {
		return "", fmt.Errorf("empty response received")
	}

	g.logger.Debugf("gemini response: %s", responseText)
	return responseText, nil
}

func (g *Generator) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}
