package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/Love-M-365/Clario/internal/llm"
	"github.com/Love-M-365/Clario/internal/model"
	"github.com/Love-M-365/Clario/internal/store"
)

// RelationshipService mines chat messages for mentions of people and keeps a
// per-user ledger of how each relationship is trending.
type RelationshipService struct {
	store store.Store
	gen   llm.Generator
	log   zerolog.Logger
}

func NewRelationshipService(st store.Store, gen llm.Generator, log zerolog.Logger) *RelationshipService {
	return &RelationshipService{store: st, gen: gen, log: log.With().Str("service", "relationships").Logger()}
}

type extractedPerson struct {
	Name         string `json:"name"`
	RelationType string `json:"relation_type"`
}

type extraction struct {
	People []extractedPerson `json:"people"`
}

const extractionInstructions = `You analyze a single chat message and extract every person mentioned by name, along with the emotional tone of the interaction described.

Respond with JSON only, matching exactly this schema:
{"people": [{"name": "<first name, lowercase>", "relation_type": "conflict" | "positive" | "neutral"}]}

If no people are mentioned, respond with {"people": []}.`

// ExtractAndSave asks the model which people the message mentions and upserts
// a relationship record for each. Extraction and persistence failures are
// logged and swallowed; this is a best-effort side channel off the chat path.
func (s *RelationshipService) ExtractAndSave(ctx context.Context, userID, message string) {
	people := s.extract(ctx, message)
	if len(people) == 0 {
		return
	}
	now := time.Now().UTC()
	for _, p := range people {
		name := strings.ToLower(strings.TrimSpace(p.Name))
		if name == "" {
			continue
		}
		rt := model.RelationType(strings.ToLower(strings.TrimSpace(p.RelationType)))
		if !model.ValidRelationType(rt) {
			rt = model.RelationNeutral
		}
		if _, err := s.store.Relationships().Upsert(ctx, userID, name, rt, message, now); err != nil {
			s.log.Error().Stack().Err(err).
				Str("userId", userID).
				Str("name", name).
				Msg("failed to upsert relationship")
		}
	}
}

// extract calls the model in JSON mode and parses the schema. A response that
// fails to parse is retried once with a fresh generation; any remaining
// failure yields no people.
func (s *RelationshipService) extract(ctx context.Context, message string) []extractedPerson {
	req := llm.Request{
		System:       extractionInstructions,
		Prompt:       fmt.Sprintf("Message: %q", message),
		JSONResponse: true,
	}
	for attempt := 0; attempt < 2; attempt++ {
		raw, err := s.gen.Generate(ctx, req)
		if err != nil {
			s.log.Warn().Err(err).Msg("relationship extraction call failed")
			return nil
		}
		var out extraction
		if err := json.Unmarshal([]byte(raw), &out); err != nil {
			s.log.Warn().Err(err).Int("attempt", attempt).Msg("relationship extraction returned malformed JSON")
			continue
		}
		return out.People
	}
	return nil
}

// List returns every relationship record for userID.
func (s *RelationshipService) List(ctx context.Context, userID string) ([]*model.RelationshipRecord, error) {
	return s.store.Relationships().List(ctx, userID)
}
