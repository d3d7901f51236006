package gemini

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// Provider generates embeddings using Google's Gemini API.
type Provider struct {
	client *genai.Client
	model  string
}

func New(ctx context.Context, apiKey, modelName string) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GenAI API key is required")
	}
	if modelName == "" {
		modelName = "gemini-embedding-001"
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &Provider{client: client, model: modelName}, nil
}

// Embed returns a semantic-similarity embedding for text. Empty input yields
// an empty vector without calling the backend.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return []float32{}, nil
	}

	contents := []*genai.Content{
		genai.NewContentFromText(text, genai.RoleUser),
	}

	result, err := p.client.Models.EmbedContent(ctx,
		p.model,
		contents,
		&genai.EmbedContentConfig{
			TaskType: "SEMANTIC_SIMILARITY",
		},
	)
	if err != nil {
		return nil, fmt.Errorf("GenAI embed failed: %w", err)
	}
	if len(result.Embeddings) == 0 {
		return nil, fmt.Errorf("no embeddings returned")
	}
	return result.Embeddings[0].Values, nil
}
