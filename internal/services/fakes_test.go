package services

import (
	"context"
	"errors"

	"github.com/Love-M-365/Clario/internal/llm"
)

// scriptedGenerator returns queued replies in order and records every request
// it saw. Once the queue is drained it returns errExhausted unless Default is
// set.
type scriptedGenerator struct {
	replies  []string
	errs     []error
	Default  string
	Requests []llm.Request
}

var errExhausted = errors.New("no scripted reply left")

func (g *scriptedGenerator) Generate(_ context.Context, req llm.Request) (string, error) {
	g.Requests = append(g.Requests, req)
	i := len(g.Requests) - 1
	if i < len(g.errs) && g.errs[i] != nil {
		return "", g.errs[i]
	}
	if i < len(g.replies) {
		return g.replies[i], nil
	}
	if g.Default != "" {
		return g.Default, nil
	}
	return "", errExhausted
}

// failingGenerator always errors.
type failingGenerator struct{}

func (failingGenerator) Generate(context.Context, llm.Request) (string, error) {
	return "", errors.New("backend unavailable")
}

// fixedEmbedder returns the same vector for every input, or Err if set.
type fixedEmbedder struct {
	Vec []float32
	Err error
}

func (e *fixedEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if e.Err != nil {
		return nil, e.Err
	}
	if text == "" {
		return []float32{}, nil
	}
	return append([]float32(nil), e.Vec...), nil
}
