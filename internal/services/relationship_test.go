package services

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Love-M-365/Clario/internal/model"
	"github.com/Love-M-365/Clario/internal/store/memstore"
)

func TestRelationship_ExtractAndSave(t *testing.T) {
	st := memstore.New()
	gen := &scriptedGenerator{replies: []string{
		`{"people": [{"name": "Rohan", "relation_type": "conflict"}, {"name": "mom", "relation_type": "positive"}]}`,
	}}
	svc := NewRelationshipService(st, gen, zerolog.Nop())

	svc.ExtractAndSave(context.Background(), "u1", "I fought with Rohan again but mom cheered me up")

	recs, err := svc.List(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, recs, 2)

	// Sorted by name; names normalized to lowercase.
	assert.Equal(t, "mom", recs[0].Name)
	assert.Equal(t, model.RelationPositive, recs[0].LastRelationType)
	assert.Equal(t, "rohan", recs[1].Name)
	assert.Equal(t, model.RelationConflict, recs[1].LastRelationType)
	require.Len(t, recs[1].History, 1)
	assert.Equal(t, "I fought with Rohan again but mom cheered me up", recs[1].History[0].Message)

	if assert.Len(t, gen.Requests, 1) {
		assert.True(t, gen.Requests[0].JSONResponse)
	}
}

func TestRelationship_RepeatMentionAppendsHistory(t *testing.T) {
	st := memstore.New()
	gen := &scriptedGenerator{replies: []string{
		`{"people": [{"name": "rohan", "relation_type": "conflict"}]}`,
		`{"people": [{"name": "Rohan", "relation_type": "positive"}]}`,
	}}
	svc := NewRelationshipService(st, gen, zerolog.Nop())
	ctx := context.Background()

	svc.ExtractAndSave(ctx, "u1", "Rohan yelled at me")
	svc.ExtractAndSave(ctx, "u1", "Rohan apologized today")

	recs, err := svc.List(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, model.RelationPositive, recs[0].LastRelationType)
	assert.Len(t, recs[0].History, 2)
}

func TestRelationship_UnknownTypeBecomesNeutral(t *testing.T) {
	st := memstore.New()
	gen := &scriptedGenerator{replies: []string{
		`{"people": [{"name": "lee", "relation_type": "complicated"}]}`,
	}}
	svc := NewRelationshipService(st, gen, zerolog.Nop())

	svc.ExtractAndSave(context.Background(), "u1", "saw Lee at the store")

	recs, err := svc.List(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, model.RelationNeutral, recs[0].LastRelationType)
}

func TestRelationship_MalformedJSONRetriedOnce(t *testing.T) {
	st := memstore.New()
	gen := &scriptedGenerator{replies: []string{
		`not json`,
		`{"people": [{"name": "ana", "relation_type": "positive"}]}`,
	}}
	svc := NewRelationshipService(st, gen, zerolog.Nop())

	svc.ExtractAndSave(context.Background(), "u1", "Ana called")

	recs, err := svc.List(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Len(t, gen.Requests, 2)
}

func TestRelationship_GenerationFailureIsSwallowed(t *testing.T) {
	st := memstore.New()
	svc := NewRelationshipService(st, failingGenerator{}, zerolog.Nop())

	svc.ExtractAndSave(context.Background(), "u1", "I met Sam")

	recs, err := svc.List(context.Background(), "u1")
	require.NoError(t, err)
	assert.Empty(t, recs)
}
