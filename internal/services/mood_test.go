package services

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Love-M-365/Clario/internal/store/memstore"
)

func TestMood_AnalyzeScoresAndRecords(t *testing.T) {
	st := memstore.New()
	gen := &scriptedGenerator{replies: []string{
		`{"score": -0.7, "tag": "Sad", "explanation": "Expresses loss."}`,
	}}
	svc := NewMoodService(st, gen, zerolog.Nop())

	res := svc.Analyze(context.Background(), "u1", "I miss my dog so much")
	assert.InDelta(t, -0.7, res.Score, 1e-9)
	assert.Equal(t, "sad", res.Tag)
	assert.Equal(t, "Expresses loss.", res.Explanation)

	entries, err := svc.History(context.Background(), "u1", 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "I miss my dog so much", entries[0].Text)
	assert.Equal(t, "sad", entries[0].Tag)
}

func TestMood_EmptyTextIsNeutralWithoutCall(t *testing.T) {
	st := memstore.New()
	gen := &scriptedGenerator{}
	svc := NewMoodService(st, gen, zerolog.Nop())

	res := svc.Analyze(context.Background(), "u1", "   ")
	assert.Equal(t, 0.0, res.Score)
	assert.Equal(t, "neutral", res.Tag)
	assert.Empty(t, gen.Requests)

	entries, err := svc.History(context.Background(), "u1", 0)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestMood_GenerationFailureFallsBackToNeutral(t *testing.T) {
	svc := NewMoodService(memstore.New(), failingGenerator{}, zerolog.Nop())

	res := svc.Analyze(context.Background(), "u1", "terrible day")
	assert.Equal(t, 0.0, res.Score)
	assert.Equal(t, "neutral", res.Tag)
}

func TestMood_ScoreClampedToRange(t *testing.T) {
	gen := &scriptedGenerator{replies: []string{`{"score": 3.5, "tag": "ecstatic", "explanation": ""}`}}
	svc := NewMoodService(memstore.New(), gen, zerolog.Nop())

	res := svc.Analyze(context.Background(), "", "best day ever")
	assert.Equal(t, 1.0, res.Score)
}

func TestMood_AnonymousAnalysisIsNotRecorded(t *testing.T) {
	st := memstore.New()
	gen := &scriptedGenerator{replies: []string{`{"score": 0.4, "tag": "calm", "explanation": ""}`}}
	svc := NewMoodService(st, gen, zerolog.Nop())

	res := svc.Analyze(context.Background(), "", "feeling okay")
	assert.Equal(t, "calm", res.Tag)
}
