// Package storetest contains a backend-agnostic compliance suite for the
// Store interface. Every backend wires it up in its own _test.go file.
package storetest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Love-M-365/Clario/internal/model"
	"github.com/Love-M-365/Clario/internal/store"
)

// Factory returns a fresh, empty store for each subtest.
type Factory func(t *testing.T) store.Store

// RunSuite exercises every Store operation against the given backend.
func RunSuite(t *testing.T, newStore Factory) {
	t.Run("ProfileLifecycle", func(t *testing.T) { testProfileLifecycle(t, newStore(t)) })
	t.Run("MessageLog", func(t *testing.T) { testMessageLog(t, newStore(t)) })
	t.Run("RelationshipUpsert", func(t *testing.T) { testRelationshipUpsert(t, newStore(t)) })
	t.Run("MoodLog", func(t *testing.T) { testMoodLog(t, newStore(t)) })
	t.Run("SessionLifecycle", func(t *testing.T) { testSessionLifecycle(t, newStore(t)) })
	t.Run("SessionAnalysisCAS", func(t *testing.T) { testSessionAnalysisCAS(t, newStore(t)) })
	t.Run("SessionRecallFilter", func(t *testing.T) { testSessionRecallFilter(t, newStore(t)) })
	t.Run("SessionMessageLog", func(t *testing.T) { testSessionMessageLog(t, newStore(t)) })
}

func testProfileLifecycle(t *testing.T, st store.Store) {
	ctx := context.Background()

	// Unknown user yields a zero-value profile, not an error.
	p, err := st.Profiles().Get(ctx, "nobody")
	require.NoError(t, err)
	assert.Equal(t, "nobody", p.UserID)
	assert.Equal(t, 0, p.NextIndex)
	assert.False(t, p.OnboardingComplete)

	p.Answers = map[string]string{"name": "Priya"}
	p.NextIndex = 1
	require.NoError(t, st.Profiles().Put(ctx, p))

	got, err := st.Profiles().Get(ctx, "nobody")
	require.NoError(t, err)
	assert.Equal(t, "Priya", got.Answers["name"])
	assert.Equal(t, 1, got.NextIndex)

	// Put is a full-document upsert.
	got.NextIndex = 2
	got.Answers["age"] = "29"
	got.OnboardingComplete = true
	require.NoError(t, st.Profiles().Put(ctx, got))

	got, err = st.Profiles().Get(ctx, "nobody")
	require.NoError(t, err)
	assert.Equal(t, 2, got.NextIndex)
	assert.True(t, got.OnboardingComplete)
	assert.Len(t, got.Answers, 2)
}

func testMessageLog(t *testing.T, st store.Store) {
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Second)

	for i := 0; i < 5; i++ {
		role := model.RoleUser
		if i%2 == 1 {
			role = model.RoleAssistant
		}
		_, err := st.Messages().Append(ctx, &model.ChatMessage{
			ID:        fmt.Sprintf("m%d", i),
			UserID:    "u1",
			Role:      role,
			Text:      fmt.Sprintf("msg %d", i),
			Timestamp: base.Add(time.Duration(i) * time.Second),
		})
		require.NoError(t, err)
	}

	all, err := st.Messages().List(ctx, "u1", 0)
	require.NoError(t, err)
	require.Len(t, all, 5)
	assert.Equal(t, "msg 0", all[0].Text)
	assert.Equal(t, "msg 4", all[4].Text)

	// Limit keeps the newest entries, still in ascending order.
	tail, err := st.Messages().List(ctx, "u1", 2)
	require.NoError(t, err)
	require.Len(t, tail, 2)
	assert.Equal(t, "msg 3", tail[0].Text)
	assert.Equal(t, "msg 4", tail[1].Text)

	other, err := st.Messages().List(ctx, "u2", 0)
	require.NoError(t, err)
	assert.Empty(t, other)
}

func testRelationshipUpsert(t *testing.T, st store.Store) {
	ctx := context.Background()
	t1 := time.Now().UTC().Truncate(time.Second)
	t2 := t1.Add(time.Minute)

	rec, err := st.Relationships().Upsert(ctx, "u1", "rohan", model.RelationConflict, "we argued", t1)
	require.NoError(t, err)
	assert.Equal(t, model.RelationConflict, rec.LastRelationType)
	require.Len(t, rec.History, 1)

	rec, err = st.Relationships().Upsert(ctx, "u1", "rohan", model.RelationPositive, "we made up", t2)
	require.NoError(t, err)
	assert.Equal(t, model.RelationPositive, rec.LastRelationType)
	require.Len(t, rec.History, 2)
	assert.Equal(t, "we argued", rec.History[0].Message)
	assert.Equal(t, "we made up", rec.History[1].Message)

	_, err = st.Relationships().Upsert(ctx, "u1", "ana", model.RelationNeutral, "saw ana", t2)
	require.NoError(t, err)

	recs, err := st.Relationships().List(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "ana", recs[0].Name)
	assert.Equal(t, "rohan", recs[1].Name)
}

func testMoodLog(t *testing.T, st store.Store) {
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Second)

	for i := 0; i < 3; i++ {
		_, err := st.Moods().Append(ctx, &model.MoodEntry{
			ID:        fmt.Sprintf("e%d", i),
			UserID:    "u1",
			Text:      fmt.Sprintf("entry %d", i),
			Score:     float64(i) * 0.1,
			Tag:       "calm",
			Timestamp: base.Add(time.Duration(i) * time.Second),
		})
		require.NoError(t, err)
	}

	all, err := st.Moods().List(ctx, "u1", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "entry 0", all[0].Text)
	assert.InDelta(t, 0.2, all[2].Score, 1e-9)

	tail, err := st.Moods().List(ctx, "u1", 1)
	require.NoError(t, err)
	require.Len(t, tail, 1)
	assert.Equal(t, "entry 2", tail[0].Text)
}

func testSessionLifecycle(t *testing.T, st store.Store) {
	ctx := context.Background()
	start := time.Now().UTC().Truncate(time.Second)

	_, err := st.Sessions().Get(ctx, "u1", "missing")
	assert.ErrorIs(t, err, model.ErrNotFound)

	_, err = st.Sessions().Create(ctx, &model.Session{
		SessionID:     "s1",
		UserID:        "u1",
		PersonInChair: "my boss",
		UserGoal:      "set a boundary",
		Phase:         model.PhaseInitialAnalysis,
		StartTime:     start,
	})
	require.NoError(t, err)

	sess, err := st.Sessions().Get(ctx, "u1", "s1")
	require.NoError(t, err)
	assert.Equal(t, "my boss", sess.PersonInChair)
	assert.Equal(t, model.PhaseInitialAnalysis, sess.Phase)
	assert.Nil(t, sess.EndTime)
	assert.False(t, sess.HasSummaries())

	// Sessions are scoped per user.
	_, err = st.Sessions().Get(ctx, "u2", "s1")
	assert.ErrorIs(t, err, model.ErrNotFound)

	end := start.Add(time.Hour)
	err = st.Sessions().SaveSummaries(ctx, "u1", "s1", model.SessionSummaries{
		BlueSummary:         "blue",
		RedSummary:          "red",
		Reflection:          "refl",
		BlueEmbedding:       []float32{1, 2},
		RedEmbedding:        []float32{3, 4},
		ReflectionEmbedding: []float32{5, 6},
		EndTime:             end,
	})
	require.NoError(t, err)

	sess, err = st.Sessions().Get(ctx, "u1", "s1")
	require.NoError(t, err)
	assert.True(t, sess.HasSummaries())
	assert.Equal(t, []float32{5, 6}, sess.ReflectionEmbedding)
	require.NotNil(t, sess.EndTime)
	assert.True(t, sess.EndTime.Equal(end))

	err = st.Sessions().SaveSummaries(ctx, "u1", "missing", model.SessionSummaries{EndTime: end})
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func testSessionAnalysisCAS(t *testing.T, st store.Store) {
	ctx := context.Background()
	_, err := st.Sessions().Create(ctx, &model.Session{
		SessionID: "s1", UserID: "u1", PersonInChair: "p", UserGoal: "g",
		Phase: model.PhaseInitialAnalysis, StartTime: time.Now().UTC(),
	})
	require.NoError(t, err)

	a := model.PreAnalysis{Statement: "stmt", RootEmotion: "fear", CauseOfEmotion: "uncertainty"}
	require.NoError(t, st.Sessions().SaveAnalysis(ctx, "u1", "s1", a))

	sess, err := st.Sessions().Get(ctx, "u1", "s1")
	require.NoError(t, err)
	assert.Equal(t, model.PhaseEmptyChairReady, sess.Phase)
	assert.Equal(t, "stmt", sess.AnalysisStatement)
	assert.Equal(t, "fear", sess.RootEmotion)

	// Second transition attempt conflicts.
	err = st.Sessions().SaveAnalysis(ctx, "u1", "s1", a)
	assert.ErrorIs(t, err, model.ErrConflict)

	err = st.Sessions().SaveAnalysis(ctx, "u1", "missing", a)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func testSessionRecallFilter(t *testing.T, st store.Store) {
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Second)

	mk := func(id, person string, offset time.Duration, summarized bool) {
		_, err := st.Sessions().Create(ctx, &model.Session{
			SessionID: id, UserID: "u1", PersonInChair: person, UserGoal: "g",
			Phase: model.PhaseEmptyChairReady, StartTime: base.Add(offset),
		})
		require.NoError(t, err)
		if summarized {
			err = st.Sessions().SaveSummaries(ctx, "u1", id, model.SessionSummaries{
				BlueSummary: "b", RedSummary: "r", Reflection: "x",
				BlueEmbedding:       []float32{1},
				RedEmbedding:        []float32{1},
				ReflectionEmbedding: []float32{1},
				EndTime:             base.Add(offset + time.Minute),
			})
			require.NoError(t, err)
		}
	}

	mk("old", "my boss", 0, true)
	mk("new", "my boss", time.Hour, true)
	mk("raw", "my boss", 2*time.Hour, false)
	mk("sister", "my sister", 3*time.Hour, true)

	got, err := st.Sessions().ListRecentByPerson(ctx, "u1", "my boss", 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "new", got[0].SessionID)
	assert.Equal(t, "old", got[1].SessionID)

	// Limit applies after the newest-first ordering.
	got, err = st.Sessions().ListRecentByPerson(ctx, "u1", "my boss", 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "new", got[0].SessionID)
}

func testSessionMessageLog(t *testing.T, st store.Store) {
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Second)

	_, err := st.SessionMessages().Append(ctx, &model.SessionMessage{
		ID: "m1", SessionID: "s1", UserID: "u1",
		Role: model.RoleAssistant, Perspective: model.PerspectiveFacilitator,
		Phase: model.PhaseInitialAnalysis, Text: "welcome", Timestamp: base,
	})
	require.NoError(t, err)
	_, err = st.SessionMessages().Append(ctx, &model.SessionMessage{
		ID: "m2", SessionID: "s1", UserID: "u1",
		Role: model.RoleUser, Perspective: model.PerspectiveBlue,
		Phase: model.PhaseEmptyChairReady, Text: "I feel stuck", Timestamp: base.Add(time.Second),
	})
	require.NoError(t, err)

	msgs, err := st.SessionMessages().List(ctx, "u1", "s1")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "welcome", msgs[0].Text)
	assert.Equal(t, model.PerspectiveFacilitator, msgs[0].Perspective)
	assert.Equal(t, "I feel stuck", msgs[1].Text)
	assert.Equal(t, model.PhaseEmptyChairReady, msgs[1].Phase)

	other, err := st.SessionMessages().List(ctx, "u1", "s2")
	require.NoError(t, err)
	assert.Empty(t, other)
}
