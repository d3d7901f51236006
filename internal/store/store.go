package store

import (
	"context"
	"time"

	"github.com/Love-M-365/Clario/internal/model"
)

// Store exposes persistence operations required by services.
// Implementations live under internal/store/<driver>/ (postgres, sqlite,
// memstore).
type Store interface {
	Profiles() Profiles
	Messages() Messages
	Relationships() Relationships
	Moods() Moods
	Sessions() Sessions
	SessionMessages() SessionMessages
}

// Profiles persists the per-user onboarding profile document.
type Profiles interface {
	// Get returns the stored profile, or a zero-value profile for the user
	// when none exists yet. It never returns model.ErrNotFound.
	Get(ctx context.Context, userID string) (*model.UserProfile, error)
	// Put upserts the whole profile document.
	Put(ctx context.Context, p *model.UserProfile) error
}

// Messages is the append-only, timestamp-ordered main chat log.
type Messages interface {
	Append(ctx context.Context, m *model.ChatMessage) (*model.ChatMessage, error)
	// List returns messages ordered by timestamp ascending. limit <= 0 means
	// the whole log; otherwise only the most recent limit entries are
	// returned, still in ascending order.
	List(ctx context.Context, userID string, limit int) ([]*model.ChatMessage, error)
}

// Relationships stores one record per normalized person name per user.
type Relationships interface {
	// Upsert creates the record on first mention; on subsequent mentions it
	// appends a history event and overwrites the last_* fields.
	Upsert(ctx context.Context, userID, name string, rt model.RelationType, message string, at time.Time) (*model.RelationshipRecord, error)
	List(ctx context.Context, userID string) ([]*model.RelationshipRecord, error)
}

// Moods is the append-only per-user mood log.
type Moods interface {
	Append(ctx context.Context, e *model.MoodEntry) (*model.MoodEntry, error)
	List(ctx context.Context, userID string, limit int) ([]*model.MoodEntry, error)
}

// Sessions persists Empty-Chair session documents.
type Sessions interface {
	Create(ctx context.Context, s *model.Session) (*model.Session, error)
	// Get returns model.ErrNotFound when the session does not exist for the
	// user.
	Get(ctx context.Context, userID, sessionID string) (*model.Session, error)
	// SaveAnalysis stores the pre-analysis outcome and moves the session from
	// initial_analysis to empty_chair_ready in one compare-and-set. It
	// returns model.ErrConflict when the session is no longer in
	// initial_analysis.
	SaveAnalysis(ctx context.Context, userID, sessionID string, a model.PreAnalysis) error
	// SaveSummaries stores the end-of-session summaries, embeddings and end
	// time.
	SaveSummaries(ctx context.Context, userID, sessionID string, sum model.SessionSummaries) error
	// ListRecentByPerson returns up to limit sessions for the user with the
	// same personInChair and a non-empty blue summary embedding, newest
	// first. The caller excludes the current session.
	ListRecentByPerson(ctx context.Context, userID, personInChair string, limit int) ([]*model.Session, error)
}

// SessionMessages is the append-only, timestamp-ordered per-session log.
type SessionMessages interface {
	Append(ctx context.Context, m *model.SessionMessage) (*model.SessionMessage, error)
	List(ctx context.Context, userID, sessionID string) ([]*model.SessionMessage, error)
}
