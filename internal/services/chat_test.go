package services

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Love-M-365/Clario/internal/model"
	"github.com/Love-M-365/Clario/internal/store"
	"github.com/Love-M-365/Clario/internal/store/memstore"
)

func newChatService(st store.Store, gen *scriptedGenerator) *ChatService {
	ob := NewOnboardingService(st, zerolog.Nop())
	return NewChatService(st, gen, ob, nil, 10, 8, zerolog.Nop())
}

func completeOnboarding(t *testing.T, st store.Store, userID string) {
	t.Helper()
	answers := make(map[string]string, len(onboardingKeys))
	for _, k := range onboardingKeys {
		answers[k] = "x"
	}
	err := st.Profiles().Put(context.Background(), &model.UserProfile{
		UserID:             userID,
		Answers:            answers,
		NextIndex:          len(onboardingKeys),
		OnboardingComplete: true,
	})
	require.NoError(t, err)
}

func TestChat_RoutesToOnboardingUntilComplete(t *testing.T) {
	st := memstore.New()
	gen := &scriptedGenerator{}
	svc := newChatService(st, gen)

	res, err := svc.HandleTurn(context.Background(), "u1", "")
	require.NoError(t, err)
	require.NotNil(t, res.Onboarding)
	assert.Equal(t, OnboardingInProgress, res.Onboarding.Status)
	assert.Equal(t, onboardingQuestions[0], res.Onboarding.Question)

	// No generation, no chat log writes while onboarding.
	assert.Empty(t, gen.Requests)
	msgs, err := st.Messages().List(context.Background(), "u1", 0)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestChat_GeneratesReplyAndLogsBothSides(t *testing.T) {
	st := memstore.New()
	completeOnboarding(t, st, "u1")
	gen := &scriptedGenerator{replies: []string{"That sounds like a lot to carry."}}
	svc := newChatService(st, gen)

	res, err := svc.HandleTurn(context.Background(), "u1", "work has been brutal")
	require.NoError(t, err)
	assert.Equal(t, "That sounds like a lot to carry.", res.Reply)

	msgs, err := st.Messages().List(context.Background(), "u1", 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, model.RoleUser, msgs[0].Role)
	assert.Equal(t, "work has been brutal", msgs[0].Text)
	assert.Equal(t, model.RoleAssistant, msgs[1].Role)
	assert.Equal(t, res.Reply, msgs[1].Text)

	// Profile answers are part of the prompt.
	require.Len(t, gen.Requests, 1)
	assert.Contains(t, gen.Requests[0].Prompt, "work has been brutal")
}

func TestChat_GenerationFailureReturnsFallbackAndStillLogs(t *testing.T) {
	st := memstore.New()
	completeOnboarding(t, st, "u1")
	gen := &scriptedGenerator{errs: []error{errExhausted}}
	svc := newChatService(st, gen)

	res, err := svc.HandleTurn(context.Background(), "u1", "hello?")
	require.NoError(t, err)
	assert.Equal(t, chatFallbackReply, res.Reply)

	msgs, err := st.Messages().List(context.Background(), "u1", 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, chatFallbackReply, msgs[1].Text)
}

func TestChat_SummaryKicksInAtTrigger(t *testing.T) {
	st := memstore.New()
	completeOnboarding(t, st, "u1")
	ctx := context.Background()

	// Seed 10 messages so the summary trigger fires on the next turn.
	for i := 0; i < 10; i++ {
		role := model.RoleUser
		if i%2 == 1 {
			role = model.RoleAssistant
		}
		_, err := st.Messages().Append(ctx, &model.ChatMessage{
			ID: fmt.Sprintf("m%d", i), UserID: "u1", Role: role, Text: fmt.Sprintf("turn %d", i),
		})
		require.NoError(t, err)
	}

	gen := &scriptedGenerator{replies: []string{
		"User has been talking about work stress.", // summary call
		"Tell me more about that.",                 // reply call
	}}
	svc := newChatService(st, gen)

	res, err := svc.HandleTurn(ctx, "u1", "still stressed")
	require.NoError(t, err)
	assert.Equal(t, "Tell me more about that.", res.Reply)

	require.Len(t, gen.Requests, 2)
	// The summary feeds the reply prompt.
	assert.Contains(t, gen.Requests[1].Prompt, "User has been talking about work stress.")
}

func TestChat_BelowTriggerNoSummaryCall(t *testing.T) {
	st := memstore.New()
	completeOnboarding(t, st, "u1")
	gen := &scriptedGenerator{replies: []string{"I'm here."}}
	svc := newChatService(st, gen)

	_, err := svc.HandleTurn(context.Background(), "u1", "hey")
	require.NoError(t, err)
	assert.Len(t, gen.Requests, 1)
}

func TestChat_RecentWindowIsBounded(t *testing.T) {
	st := memstore.New()
	completeOnboarding(t, st, "u1")
	ctx := context.Background()

	for i := 0; i < 30; i++ {
		_, err := st.Messages().Append(ctx, &model.ChatMessage{
			ID: fmt.Sprintf("m%d", i), UserID: "u1", Role: model.RoleUser, Text: fmt.Sprintf("turn-%02d", i),
		})
		require.NoError(t, err)
	}

	gen := &scriptedGenerator{replies: []string{"summary", "reply"}}
	svc := newChatService(st, gen)

	_, err := svc.HandleTurn(ctx, "u1", "latest")
	require.NoError(t, err)

	prompt := gen.Requests[1].Prompt
	// Only the last 2*8 turns appear verbatim.
	assert.Contains(t, prompt, "turn-29")
	assert.Contains(t, prompt, "turn-14")
	assert.False(t, strings.Contains(prompt, "turn-13\n"), "older turns should only reach the model via the summary")
}

func TestChat_ValidationErrors(t *testing.T) {
	st := memstore.New()
	completeOnboarding(t, st, "u1")
	svc := newChatService(st, &scriptedGenerator{})

	_, err := svc.HandleTurn(context.Background(), "", "hi")
	assert.ErrorIs(t, err, model.ErrValidation)

	_, err = svc.HandleTurn(context.Background(), "u1", "  ")
	assert.ErrorIs(t, err, model.ErrValidation)
}
