package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Love-M-365/Clario/internal/llm"
	"github.com/Love-M-365/Clario/internal/model"
	"github.com/Love-M-365/Clario/internal/store"
)

// MoodResult is a sentiment reading for a piece of text.
type MoodResult struct {
	Score       float64 `json:"score"`
	Tag         string  `json:"tag"`
	Explanation string  `json:"explanation"`
}

const moodInstructions = `You are a sentiment analyzer for a mental wellness app. Given a user's text, respond with JSON only, matching exactly this schema:
{"score": <number between -1.0 and 1.0>, "tag": "<single lowercase word such as happy, sad, anxious, calm, angry, neutral>", "explanation": "<one short sentence>"}`

// MoodService scores free text for emotional tone. Analysis never fails from
// the caller's perspective; any trouble falls back to a neutral reading.
type MoodService struct {
	store store.Store
	gen   llm.Generator
	log   zerolog.Logger
}

func NewMoodService(st store.Store, gen llm.Generator, log zerolog.Logger) *MoodService {
	return &MoodService{store: st, gen: gen, log: log.With().Str("service", "mood").Logger()}
}

// Analyze scores text and, when userID is known, records the reading as a
// mood entry. The entry write is best effort.
func (s *MoodService) Analyze(ctx context.Context, userID, text string) *MoodResult {
	text = strings.TrimSpace(text)
	if text == "" {
		return &MoodResult{Score: 0, Tag: "neutral"}
	}

	res := s.score(ctx, text)
	if userID != "" {
		entry := &model.MoodEntry{
			ID:          uuid.New().String(),
			UserID:      userID,
			Text:        text,
			Score:       res.Score,
			Tag:         res.Tag,
			Explanation: res.Explanation,
			Timestamp:   time.Now().UTC(),
		}
		if _, err := s.store.Moods().Append(ctx, entry); err != nil {
			s.log.Error().Stack().Err(err).Str("userId", userID).Msg("failed to record mood entry")
		}
	}
	return res
}

func (s *MoodService) score(ctx context.Context, text string) *MoodResult {
	req := llm.Request{
		System:       moodInstructions,
		Prompt:       fmt.Sprintf("Text: %q", text),
		JSONResponse: true,
	}
	for attempt := 0; attempt < 2; attempt++ {
		raw, err := s.gen.Generate(ctx, req)
		if err != nil {
			s.log.Warn().Err(err).Msg("mood analysis call failed")
			return &MoodResult{Score: 0, Tag: "neutral"}
		}
		var out MoodResult
		if err := json.Unmarshal([]byte(raw), &out); err != nil {
			s.log.Warn().Err(err).Int("attempt", attempt).Msg("mood analysis returned malformed JSON")
			continue
		}
		if out.Score > 1 {
			out.Score = 1
		} else if out.Score < -1 {
			out.Score = -1
		}
		out.Tag = strings.ToLower(strings.TrimSpace(out.Tag))
		if out.Tag == "" {
			out.Tag = "neutral"
		}
		return &out
	}
	return &MoodResult{Score: 0, Tag: "neutral"}
}

// History returns the most recent mood entries for userID, newest last.
func (s *MoodService) History(ctx context.Context, userID string, limit int) ([]*model.MoodEntry, error) {
	return s.store.Moods().List(ctx, userID, limit)
}
