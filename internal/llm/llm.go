package llm

import (
	"context"
	"errors"

	"github.com/Love-M-365/Clario/internal/model"
)

// ErrNoCandidates is returned when the backend produced no usable text
// (blocked, filtered, or empty). Callers substitute documented fallbacks and
// never surface this to the end user.
var ErrNoCandidates = errors.New("llm: no candidates returned")

// Turn is one role-tagged line of conversation history.
type Turn struct {
	Role model.ChatRole
	Text string
}

// Request is a structured generation prompt. History is optional; Prompt is
// the trailing user content. JSONResponse asks the backend for a strict
// application/json reply.
type Request struct {
	System       string
	History      []Turn
	Prompt       string
	JSONResponse bool
}

// Generator maps a structured prompt to generated text.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}
