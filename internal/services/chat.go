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

const chatFallbackReply = "Sorry, I couldn't generate a response right now."

const companionPersona = `You are Clario, a warm, emotionally intelligent companion. You listen closely, remember what the user has told you, and respond with empathy in 2-4 sentences. You are supportive but honest, and you never lecture.`

const summaryInstructions = `Condense the following conversation into a short third-person summary that preserves the user's situation, recurring themes, names of people mentioned, and emotional state. Keep it under 150 words.`

// ChatResult is the outcome of one companion chat turn. While onboarding is
// still in progress Onboarding is set instead of Reply.
type ChatResult struct {
	Reply      string
	Onboarding *OnboardingResult
}

// ChatService drives the main companion conversation. Each turn it routes to
// onboarding until the questionnaire is done, then assembles a prompt from
// the profile, a rolling summary of older turns, and the most recent turns.
type ChatService struct {
	store          store.Store
	gen            llm.Generator
	onboarding     *OnboardingService
	relationships  *RelationshipService
	summaryTrigger int
	maxRecentTurns int
	log            zerolog.Logger
}

func NewChatService(st store.Store, gen llm.Generator, ob *OnboardingService, rel *RelationshipService, summaryTrigger, maxRecentTurns int, log zerolog.Logger) *ChatService {
	if summaryTrigger <= 0 {
		summaryTrigger = 10
	}
	if maxRecentTurns <= 0 {
		maxRecentTurns = 8
	}
	return &ChatService{
		store:          st,
		gen:            gen,
		onboarding:     ob,
		relationships:  rel,
		summaryTrigger: summaryTrigger,
		maxRecentTurns: maxRecentTurns,
		log:            log.With().Str("service", "chat").Logger(),
	}
}

// HandleTurn processes one user message. Both the user message and the reply
// are appended to the message log after generation, so a failed generation
// still records the turn with the fallback reply.
func (s *ChatService) HandleTurn(ctx context.Context, userID, message string) (*ChatResult, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("%w: userId is required", model.ErrValidation)
	}

	profile, err := s.store.Profiles().Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !profile.OnboardingComplete {
		res, err := s.onboarding.Advance(ctx, userID, message)
		if err != nil {
			return nil, err
		}
		if res.Status == OnboardingInProgress {
			return &ChatResult{Onboarding: res}, nil
		}
		// Completion message doubles as the reply for this turn.
		return &ChatResult{Reply: res.Message, Onboarding: res}, nil
	}

	if strings.TrimSpace(message) == "" {
		return nil, fmt.Errorf("%w: message is required", model.ErrValidation)
	}

	history, err := s.store.Messages().List(ctx, userID, 0)
	if err != nil {
		return nil, err
	}

	var summary string
	if len(history) >= s.summaryTrigger {
		summary = s.summarize(ctx, history)
	}

	if s.relationships != nil {
		s.relationships.ExtractAndSave(ctx, userID, message)
	}

	reply := s.generateReply(ctx, profile, summary, history, message)

	now := time.Now().UTC()
	userMsg := &model.ChatMessage{
		ID:        uuid.New().String(),
		UserID:    userID,
		Role:      model.RoleUser,
		Text:      message,
		Timestamp: now,
	}
	if _, err := s.store.Messages().Append(ctx, userMsg); err != nil {
		return nil, err
	}
	aiMsg := &model.ChatMessage{
		ID:        uuid.New().String(),
		UserID:    userID,
		Role:      model.RoleAssistant,
		Text:      reply,
		Timestamp: now.Add(time.Millisecond),
	}
	if _, err := s.store.Messages().Append(ctx, aiMsg); err != nil {
		return nil, err
	}

	return &ChatResult{Reply: reply}, nil
}

// summarize condenses the full history. Failures degrade to no summary.
func (s *ChatService) summarize(ctx context.Context, history []*model.ChatMessage) string {
	var b strings.Builder
	for _, m := range history {
		fmt.Fprintf(&b, "%s (%s): %s\n", strings.ToUpper(string(m.Role)), m.Timestamp.Format(time.RFC3339), m.Text)
	}
	out, err := s.gen.Generate(ctx, llm.Request{
		System: summaryInstructions,
		Prompt: b.String(),
	})
	if err != nil {
		s.log.Warn().Err(err).Msg("memory summarization failed, continuing without summary")
		return ""
	}
	return out
}

func (s *ChatService) generateReply(ctx context.Context, profile *model.UserProfile, summary string, history []*model.ChatMessage, message string) string {
	recent := history
	if max := 2 * s.maxRecentTurns; len(recent) > max {
		recent = recent[len(recent)-max:]
	}

	var b strings.Builder
	if len(profile.Answers) > 0 {
		if pj, err := json.Marshal(profile.Answers); err == nil {
			fmt.Fprintf(&b, "What you know about the user:\n%s\n\n", pj)
		}
	}
	if summary != "" {
		fmt.Fprintf(&b, "Summary of the conversation so far:\n%s\n\n", summary)
	}
	if len(recent) > 0 {
		b.WriteString("Recent messages:\n")
		for _, m := range recent {
			fmt.Fprintf(&b, "%s (%s): %s\n", strings.ToUpper(string(m.Role)), m.Timestamp.Format(time.RFC3339), m.Text)
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "USER: %s\n\nRespond as Clario.", message)

	reply, err := s.gen.Generate(ctx, llm.Request{
		System: companionPersona,
		Prompt: b.String(),
	})
	if err != nil || strings.TrimSpace(reply) == "" {
		s.log.Error().Stack().Err(err).Str("userId", profile.UserID).Msg("chat generation failed")
		return chatFallbackReply
	}
	return reply
}
