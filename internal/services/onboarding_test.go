package services

import (
	"context"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Love-M-365/Clario/internal/store/memstore"
)

func TestOnboarding_QuestionAndKeyCountsMatch(t *testing.T) {
	assert.Equal(t, len(onboardingKeys), len(onboardingQuestions))
}

func TestOnboarding_FirstContactReturnsGreeting(t *testing.T) {
	st := memstore.New()
	svc := NewOnboardingService(st, zerolog.Nop())

	res, err := svc.Advance(context.Background(), "u1", "")
	require.NoError(t, err)
	assert.Equal(t, OnboardingInProgress, res.Status)
	assert.Equal(t, onboardingQuestions[0], res.Question)

	// No answer means no write.
	p, err := st.Profiles().Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 0, p.NextIndex)
	assert.Empty(t, p.Answers)
}

func TestOnboarding_AnswerAdvancesCursor(t *testing.T) {
	st := memstore.New()
	svc := NewOnboardingService(st, zerolog.Nop())
	ctx := context.Background()

	res, err := svc.Advance(ctx, "u1", "Priya")
	require.NoError(t, err)
	assert.Equal(t, OnboardingInProgress, res.Status)
	assert.Equal(t, onboardingQuestions[1], res.Question)

	p, err := st.Profiles().Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, p.NextIndex)
	assert.Equal(t, "Priya", p.Answers["name"])
}

func TestOnboarding_EmptyAnswerReasksCurrentQuestion(t *testing.T) {
	st := memstore.New()
	svc := NewOnboardingService(st, zerolog.Nop())
	ctx := context.Background()

	_, err := svc.Advance(ctx, "u1", "Priya")
	require.NoError(t, err)

	res, err := svc.Advance(ctx, "u1", "   ")
	require.NoError(t, err)
	assert.Equal(t, onboardingQuestions[1], res.Question)

	p, err := st.Profiles().Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, p.NextIndex)
}

func TestOnboarding_FullRunCompletes(t *testing.T) {
	st := memstore.New()
	svc := NewOnboardingService(st, zerolog.Nop())
	ctx := context.Background()

	var last *OnboardingResult
	for i := range onboardingKeys {
		var err error
		last, err = svc.Advance(ctx, "u1", fmt.Sprintf("answer-%d", i))
		require.NoError(t, err)
	}
	assert.Equal(t, OnboardingDone, last.Status)
	assert.NotEmpty(t, last.Message)

	p, err := st.Profiles().Get(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, p.OnboardingComplete)
	assert.Len(t, p.Answers, len(onboardingKeys))

	// Completion is monotonic: further answers never reopen the flow.
	res, err := svc.Advance(ctx, "u1", "one more thing")
	require.NoError(t, err)
	assert.Equal(t, OnboardingDone, res.Status)

	p, err = st.Profiles().Get(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, p.OnboardingComplete)
	assert.Len(t, p.Answers, len(onboardingKeys))
}
