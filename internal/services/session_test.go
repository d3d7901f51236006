package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Love-M-365/Clario/internal/model"
	"github.com/Love-M-365/Clario/internal/store"
	"github.com/Love-M-365/Clario/internal/store/memstore"
)

func newSessionService(st store.Store, gen *scriptedGenerator, emb *fixedEmbedder) *SessionService {
	if emb == nil {
		emb = &fixedEmbedder{Vec: []float32{1, 0, 0}}
	}
	return NewSessionService(st, gen, emb, zerolog.Nop())
}

func TestSession_StartUsesDefaultsAndSeedsGreeting(t *testing.T) {
	st := memstore.New()
	svc := newSessionService(st, &scriptedGenerator{}, nil)
	ctx := context.Background()

	res, err := svc.Start(ctx, "u1", "", "")
	require.NoError(t, err)
	assert.NotEmpty(t, res.SessionID)
	assert.Equal(t, model.PhaseInitialAnalysis, res.Phase)
	assert.Contains(t, res.InitialAIMessage, "'the issue'")
	assert.Contains(t, res.InitialAIMessage, "'find some clarity'")

	sess, err := st.Sessions().Get(ctx, "u1", res.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "the issue", sess.PersonInChair)
	assert.Equal(t, "find some clarity", sess.UserGoal)

	msgs, err := st.SessionMessages().List(ctx, "u1", res.SessionID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, model.RoleAssistant, msgs[0].Role)
	assert.Equal(t, model.PerspectiveFacilitator, msgs[0].Perspective)
	assert.Equal(t, model.PhaseInitialAnalysis, msgs[0].Phase)
}

func TestSession_StartRequiresUser(t *testing.T) {
	svc := newSessionService(memstore.New(), &scriptedGenerator{}, nil)
	_, err := svc.Start(context.Background(), "", "my boss", "set a boundary")
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestSession_AnalyzeContinuesProbingBeforeTrigger(t *testing.T) {
	st := memstore.New()
	gen := &scriptedGenerator{replies: []string{"What do you think is underneath that?"}}
	svc := newSessionService(st, gen, nil)
	ctx := context.Background()

	started, err := svc.Start(ctx, "u1", "my boss", "set a boundary")
	require.NoError(t, err)

	res, err := svc.AnalyzeInitialProblem(ctx, "u1", started.SessionID, "I dread meetings with him")
	require.NoError(t, err)
	assert.False(t, res.Transitioned)
	assert.Equal(t, model.PhaseInitialAnalysis, res.Phase)
	assert.Equal(t, "What do you think is underneath that?", res.AIMessage)

	// Session stays in pre-analysis.
	sess, err := st.Sessions().Get(ctx, "u1", started.SessionID)
	require.NoError(t, err)
	assert.Equal(t, model.PhaseInitialAnalysis, sess.Phase)

	// Both sides of the turn were logged.
	msgs, err := st.SessionMessages().List(ctx, "u1", started.SessionID)
	require.NoError(t, err)
	assert.Len(t, msgs, 3) // greeting + user + facilitator
}

func TestSession_AnalyzeRetriesWithoutSystemInstruction(t *testing.T) {
	st := memstore.New()
	gen := &scriptedGenerator{
		errs:    []error{errExhausted},
		replies: []string{"", "What feels hardest about that?"},
	}
	svc := newSessionService(st, gen, nil)
	ctx := context.Background()

	started, err := svc.Start(ctx, "u1", "my boss", "set a boundary")
	require.NoError(t, err)

	res, err := svc.AnalyzeInitialProblem(ctx, "u1", started.SessionID, "I dread meetings with him")
	require.NoError(t, err)
	assert.False(t, res.Transitioned)
	assert.Equal(t, "What feels hardest about that?", res.AIMessage)

	require.Len(t, gen.Requests, 2)
	assert.NotEmpty(t, gen.Requests[0].System)
	assert.Empty(t, gen.Requests[1].System) // retry drops the facilitator instruction
}

func TestSession_AnalyzeFallbackAfterBothAttemptsFail(t *testing.T) {
	st := memstore.New()
	gen := &scriptedGenerator{errs: []error{errExhausted, errExhausted}}
	svc := newSessionService(st, gen, nil)
	ctx := context.Background()

	started, err := svc.Start(ctx, "u1", "my boss", "")
	require.NoError(t, err)

	res, err := svc.AnalyzeInitialProblem(ctx, "u1", started.SessionID, "I dread meetings with him")
	require.NoError(t, err)
	assert.Len(t, gen.Requests, 2)
	assert.Contains(t, res.AIMessage, "trouble gathering my thoughts")
	assert.Contains(t, res.AIMessage, "my boss")
}

func TestSession_AnalyzeTriggerPhraseTransitions(t *testing.T) {
	st := memstore.New()
	gen := &scriptedGenerator{replies: []string{
		`{"statement": "You feel unseen at work.", "rootEmotion": "Resentment", "causeOfEmotion": "Being talked over"}`,
	}}
	svc := newSessionService(st, gen, nil)
	ctx := context.Background()

	started, err := svc.Start(ctx, "u1", "my boss", "set a boundary")
	require.NoError(t, err)

	res, err := svc.AnalyzeInitialProblem(ctx, "u1", started.SessionID, "can you analyze what's going on?")
	require.NoError(t, err)
	assert.True(t, res.Transitioned)
	assert.Equal(t, model.PhaseEmptyChairReady, res.Phase)
	assert.Equal(t, "Resentment", res.RootEmotion)
	assert.Contains(t, res.AIMessage, "You feel unseen at work.")
	assert.Contains(t, res.AIMessage, "BLUE Chair")

	sess, err := st.Sessions().Get(ctx, "u1", started.SessionID)
	require.NoError(t, err)
	assert.Equal(t, model.PhaseEmptyChairReady, sess.Phase)
	assert.Equal(t, "Resentment", sess.RootEmotion)
	assert.Equal(t, "Being talked over", sess.CauseOfEmotion)
}

func TestSession_AnalyzeLengthTriggerTransitions(t *testing.T) {
	st := memstore.New()
	// 5 probe replies, then the structured analysis.
	gen := &scriptedGenerator{
		Default: `{"statement": "s", "rootEmotion": "r", "causeOfEmotion": "c"}`,
		replies: []string{"q1", "q2"},
	}
	svc := newSessionService(st, gen, nil)
	ctx := context.Background()

	started, err := svc.Start(ctx, "u1", "", "")
	require.NoError(t, err)

	r1, err := svc.AnalyzeInitialProblem(ctx, "u1", started.SessionID, "turn one")
	require.NoError(t, err)
	assert.False(t, r1.Transitioned) // greeting + user = 2 messages in phase

	r2, err := svc.AnalyzeInitialProblem(ctx, "u1", started.SessionID, "turn two")
	require.NoError(t, err)
	assert.False(t, r2.Transitioned) // 4 messages

	r3, err := svc.AnalyzeInitialProblem(ctx, "u1", started.SessionID, "turn three")
	require.NoError(t, err)
	assert.True(t, r3.Transitioned) // 6th message in phase hits the length trigger
}

func TestSession_AnalyzeWrongPhaseConflicts(t *testing.T) {
	st := memstore.New()
	gen := &scriptedGenerator{replies: []string{
		`{"statement": "s", "rootEmotion": "r", "causeOfEmotion": "c"}`,
	}}
	svc := newSessionService(st, gen, nil)
	ctx := context.Background()

	started, err := svc.Start(ctx, "u1", "", "")
	require.NoError(t, err)
	_, err = svc.AnalyzeInitialProblem(ctx, "u1", started.SessionID, "analyze this please")
	require.NoError(t, err)

	_, err = svc.AnalyzeInitialProblem(ctx, "u1", started.SessionID, "more thoughts")
	assert.ErrorIs(t, err, model.ErrConflict)
}

func TestSession_AnalyzeUnknownSession(t *testing.T) {
	svc := newSessionService(memstore.New(), &scriptedGenerator{}, nil)
	_, err := svc.AnalyzeInitialProblem(context.Background(), "u1", "nope", "hello")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestSession_AnalyzeDistillationFailureStaysInPhase(t *testing.T) {
	st := memstore.New()
	gen := &scriptedGenerator{errs: []error{errExhausted}}
	svc := newSessionService(st, gen, nil)
	ctx := context.Background()

	started, err := svc.Start(ctx, "u1", "my boss", "")
	require.NoError(t, err)

	res, err := svc.AnalyzeInitialProblem(ctx, "u1", started.SessionID, "please analyze this")
	require.NoError(t, err)
	assert.False(t, res.Transitioned)
	assert.Contains(t, res.AIMessage, "my boss")

	sess, err := st.Sessions().Get(ctx, "u1", started.SessionID)
	require.NoError(t, err)
	assert.Equal(t, model.PhaseInitialAnalysis, sess.Phase)
}

func TestSession_AnalyzeUnparseableAnalysisKeptAsStatement(t *testing.T) {
	st := memstore.New()
	gen := &scriptedGenerator{replies: []string{"plain prose", "still plain prose"}}
	svc := newSessionService(st, gen, nil)
	ctx := context.Background()

	started, err := svc.Start(ctx, "u1", "", "")
	require.NoError(t, err)

	res, err := svc.AnalyzeInitialProblem(ctx, "u1", started.SessionID, "break this down for me")
	require.NoError(t, err)
	assert.True(t, res.Transitioned)
	assert.Equal(t, "Not identified", res.RootEmotion)
	assert.Equal(t, "Not identified", res.CauseOfEmotion)
	assert.Contains(t, res.AIMessage, "still plain prose")
	assert.Len(t, gen.Requests, 2) // one retry on malformed JSON
}

func TestSession_ProcessMessageValidatesPerspective(t *testing.T) {
	svc := newSessionService(memstore.New(), &scriptedGenerator{}, nil)
	_, err := svc.ProcessMessage(context.Background(), "u1", "", "hello", "green")
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestSession_ProcessMessageLazyCreatesSession(t *testing.T) {
	st := memstore.New()
	gen := &scriptedGenerator{replies: []string{"What does that bring up for you?"}}
	svc := newSessionService(st, gen, nil)
	ctx := context.Background()

	res, err := svc.ProcessMessage(ctx, "u1", "", "I never felt heard", model.PerspectiveBlue)
	require.NoError(t, err)
	assert.NotEmpty(t, res.SessionID)
	assert.Equal(t, model.PhaseEmptyChairReady, res.Phase)
	assert.Equal(t, "What does that bring up for you?", res.AIMessage)

	sess, err := st.Sessions().Get(ctx, "u1", res.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "the issue", sess.PersonInChair)
	assert.Equal(t, model.PhaseEmptyChairReady, sess.Phase)

	msgs, err := st.SessionMessages().List(ctx, "u1", res.SessionID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, model.PerspectiveBlue, msgs[0].Perspective)
	assert.Equal(t, model.PerspectiveFacilitator, msgs[1].Perspective)
}

func TestSession_ProcessMessageRejectsPreAnalysisSession(t *testing.T) {
	st := memstore.New()
	svc := newSessionService(st, &scriptedGenerator{}, nil)
	ctx := context.Background()

	started, err := svc.Start(ctx, "u1", "", "")
	require.NoError(t, err)

	_, err = svc.ProcessMessage(ctx, "u1", started.SessionID, "hello", model.PerspectiveBlue)
	assert.ErrorIs(t, err, model.ErrConflict)
}

func TestSession_ProcessMessagePrefixesChairTurns(t *testing.T) {
	st := memstore.New()
	gen := &scriptedGenerator{Default: "Go on."}
	svc := newSessionService(st, gen, nil)
	ctx := context.Background()

	res, err := svc.ProcessMessage(ctx, "u1", "", "you always dismiss me", model.PerspectiveBlue)
	require.NoError(t, err)
	_, err = svc.ProcessMessage(ctx, "u1", res.SessionID, "I was only trying to help", model.PerspectiveRed)
	require.NoError(t, err)

	last := gen.Requests[len(gen.Requests)-1]
	require.Len(t, last.History, 3)
	assert.Equal(t, "[BLUE Chair]: you always dismiss me", last.History[0].Text)
	assert.Equal(t, model.RoleAssistant, last.History[1].Role)
	assert.Equal(t, "[RED Chair]: I was only trying to help", last.History[2].Text)
}

func TestSession_ProcessMessageFallbackOnGenerationFailure(t *testing.T) {
	st := memstore.New()
	gen := &scriptedGenerator{errs: []error{errExhausted}}
	svc := newSessionService(st, gen, nil)

	res, err := svc.ProcessMessage(context.Background(), "u1", "", "hello", model.PerspectiveBlue)
	require.NoError(t, err)
	assert.Equal(t, dialogueFallbackReply, res.AIMessage)
}

func seedSummarizedSession(t *testing.T, st store.Store, userID, id, person string, startTime time.Time, reflectionVec []float32) {
	t.Helper()
	_, err := st.Sessions().Create(context.Background(), &model.Session{
		SessionID:     id,
		UserID:        userID,
		PersonInChair: person,
		UserGoal:      "goal-" + id,
		Phase:         model.PhaseEmptyChairReady,
		StartTime:     startTime,
	})
	require.NoError(t, err)
	err = st.Sessions().SaveSummaries(context.Background(), userID, id, model.SessionSummaries{
		BlueSummary:         "blue-" + id,
		RedSummary:          "red-" + id,
		Reflection:          "reflection-" + id,
		BlueEmbedding:       []float32{1, 1, 1},
		RedEmbedding:        []float32{1, 1, 1},
		ReflectionEmbedding: reflectionVec,
		EndTime:             startTime.Add(time.Hour),
	})
	require.NoError(t, err)
}

func TestSession_RecallPicksTopTwoBySimilarity(t *testing.T) {
	st := memstore.New()
	base := time.Now().UTC().Add(-24 * time.Hour)

	// Current message embeds to {1,0,0}. Similarities: s1=1.0, s2=0.0, s3~0.7.
	seedSummarizedSession(t, st, "u1", "s1", "my boss", base, []float32{1, 0, 0})
	seedSummarizedSession(t, st, "u1", "s2", "my boss", base.Add(time.Minute), []float32{0, 1, 0})
	seedSummarizedSession(t, st, "u1", "s3", "my boss", base.Add(2*time.Minute), []float32{1, 1, 0})

	gen := &scriptedGenerator{Default: "Go on."}
	svc := newSessionService(st, gen, &fixedEmbedder{Vec: []float32{1, 0, 0}})
	ctx := context.Background()

	_, err := st.Sessions().Create(ctx, &model.Session{
		SessionID: "current", UserID: "u1", PersonInChair: "my boss", UserGoal: "g",
		Phase: model.PhaseEmptyChairReady, StartTime: time.Now().UTC(),
	})
	require.NoError(t, err)

	_, err = svc.ProcessMessage(ctx, "u1", "current", "he did it again", model.PerspectiveBlue)
	require.NoError(t, err)

	system := gen.Requests[0].System
	assert.Contains(t, system, "reflection-s1")
	assert.Contains(t, system, "reflection-s3")
	assert.NotContains(t, system, "reflection-s2")
}

func TestSession_RecallSkipsOtherPeopleAndUnsummarized(t *testing.T) {
	st := memstore.New()
	base := time.Now().UTC().Add(-24 * time.Hour)
	seedSummarizedSession(t, st, "u1", "other-person", "my sister", base, []float32{1, 0, 0})

	// Unsummarized session about the same person.
	_, err := st.Sessions().Create(context.Background(), &model.Session{
		SessionID: "raw", UserID: "u1", PersonInChair: "my boss", UserGoal: "g",
		Phase: model.PhaseEmptyChairReady, StartTime: base,
	})
	require.NoError(t, err)

	gen := &scriptedGenerator{Default: "Go on."}
	svc := newSessionService(st, gen, nil)

	res, err := svc.ProcessMessage(context.Background(), "u1", "", "hello", model.PerspectiveBlue)
	require.NoError(t, err)
	assert.NotEmpty(t, res.AIMessage)
	assert.NotContains(t, gen.Requests[0].System, "reflection-")
}

func TestSession_RecallIncludesSessionsWithSilentRedChair(t *testing.T) {
	st := memstore.New()
	ctx := context.Background()
	base := time.Now().UTC().Add(-24 * time.Hour)

	// A past session where the red chair never spoke: placeholder summary,
	// no red embedding. It must still be recallable.
	_, err := st.Sessions().Create(ctx, &model.Session{
		SessionID: "quiet", UserID: "u1", PersonInChair: "my boss", UserGoal: "goal-quiet",
		Phase: model.PhaseEmptyChairReady, StartTime: base,
	})
	require.NoError(t, err)
	err = st.Sessions().SaveSummaries(ctx, "u1", "quiet", model.SessionSummaries{
		BlueSummary:         "blue-quiet",
		RedSummary:          redSummaryPlaceholder,
		Reflection:          "reflection-quiet",
		BlueEmbedding:       []float32{1, 1, 1},
		ReflectionEmbedding: []float32{1, 0, 0},
		EndTime:             base.Add(time.Hour),
	})
	require.NoError(t, err)

	gen := &scriptedGenerator{Default: "Go on."}
	svc := newSessionService(st, gen, nil)

	_, err = st.Sessions().Create(ctx, &model.Session{
		SessionID: "current", UserID: "u1", PersonInChair: "my boss", UserGoal: "g",
		Phase: model.PhaseEmptyChairReady, StartTime: time.Now().UTC(),
	})
	require.NoError(t, err)

	_, err = svc.ProcessMessage(ctx, "u1", "current", "he did it again", model.PerspectiveBlue)
	require.NoError(t, err)

	system := gen.Requests[0].System
	assert.Contains(t, system, "reflection-quiet")
	assert.Contains(t, system, redSummaryPlaceholder)
}

func TestSession_GenerateSummariesPartitionsByPerspective(t *testing.T) {
	st := memstore.New()
	gen := &scriptedGenerator{Default: "Go on."}
	emb := &fixedEmbedder{Vec: []float32{0.5, 0.5}}
	svc := newSessionService(st, gen, emb)
	ctx := context.Background()

	res, err := svc.ProcessMessage(ctx, "u1", "", "I feel abandoned", model.PerspectiveBlue)
	require.NoError(t, err)
	_, err = svc.ProcessMessage(ctx, "u1", res.SessionID, "I had my reasons", model.PerspectiveRed)
	require.NoError(t, err)

	gen.Requests = nil
	gen.Default = ""
	gen.replies = []string{"blue summary text", "red summary text", "reflection text"}

	out, err := svc.GenerateSummaries(ctx, "u1", res.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "blue summary text", out.BlueSummary)
	assert.Equal(t, "red summary text", out.RedSummary)
	assert.Equal(t, "reflection text", out.Reflection)

	require.Len(t, gen.Requests, 3)
	assert.Contains(t, gen.Requests[0].Prompt, "I feel abandoned")
	assert.NotContains(t, gen.Requests[0].Prompt, "I had my reasons")
	assert.Contains(t, gen.Requests[1].Prompt, "I had my reasons")
	assert.Contains(t, gen.Requests[2].Prompt, "[BLUE Chair]: I feel abandoned")

	sess, err := st.Sessions().Get(ctx, "u1", res.SessionID)
	require.NoError(t, err)
	assert.True(t, sess.HasSummaries())
	require.NotNil(t, sess.EndTime)
	assert.Equal(t, []float32{0.5, 0.5}, sess.ReflectionEmbedding)
}

func TestSession_GenerateSummariesPlaceholdersOnEmptyOrFailure(t *testing.T) {
	st := memstore.New()
	gen := &scriptedGenerator{Default: "Go on."}
	svc := newSessionService(st, gen, nil)
	ctx := context.Background()

	// Only blue-chair turns; red stays a placeholder.
	res, err := svc.ProcessMessage(ctx, "u1", "", "just me talking", model.PerspectiveBlue)
	require.NoError(t, err)

	gen.Requests = nil
	gen.Default = ""
	gen.replies = []string{"blue summary", "reflection"}

	out, err := svc.GenerateSummaries(ctx, "u1", res.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "blue summary", out.BlueSummary)
	assert.Equal(t, redSummaryPlaceholder, out.RedSummary)
	assert.Equal(t, "reflection", out.Reflection)
	assert.Len(t, gen.Requests, 2)
}

func TestSession_GenerateSummariesUnknownSession(t *testing.T) {
	svc := newSessionService(memstore.New(), &scriptedGenerator{}, nil)
	_, err := svc.GenerateSummaries(context.Background(), "u1", "missing")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestSession_TriggerPhrases(t *testing.T) {
	for _, msg := range []string{
		"please ANALYZE this",
		"what's the root cause here",
		"help me make sense of this",
	} {
		assert.True(t, hasTriggerPhrase(msg), fmt.Sprintf("expected trigger in %q", msg))
	}
	assert.False(t, hasTriggerPhrase("I just feel tired today"))
}
