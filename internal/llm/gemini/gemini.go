package gemini

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/Love-M-365/Clario/internal/llm"
	"github.com/Love-M-365/Clario/internal/model"
)

// Generator produces text with Google's Gemini API.
type Generator struct {
	client *genai.Client
	model  string
}

func New(ctx context.Context, apiKey, modelName string) (*Generator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GenAI API key is required")
	}
	if modelName == "" {
		modelName = "gemini-2.5-flash"
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &Generator{client: client, model: modelName}, nil
}

func (g *Generator) Generate(ctx context.Context, req llm.Request) (string, error) {
	contents := make([]*genai.Content, 0, len(req.History)+1)
	for _, t := range req.History {
		var role genai.Role = genai.RoleUser
		if t.Role == model.RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(t.Text, role))
	}
	if req.Prompt != "" {
		contents = append(contents, genai.NewContentFromText(req.Prompt, genai.RoleUser))
	}
	if len(contents) == 0 {
		return "", fmt.Errorf("empty generation request")
	}

	cfg := &genai.GenerateContentConfig{}
	if req.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if req.JSONResponse {
		cfg.ResponseMIMEType = "application/json"
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, cfg)
	if err != nil {
		return "", fmt.Errorf("GenAI generate failed: %w", err)
	}
	if len(resp.Candidates) == 0 {
		return "", llm.ErrNoCandidates
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", llm.ErrNoCandidates
	}
	return text, nil
}
