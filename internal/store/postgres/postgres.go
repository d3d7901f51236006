// Package postgres implements the Store interface on PostgreSQL via the pgx
// stdlib driver. It is the backend for cloud deployments.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pkg/errors"

	"github.com/Love-M-365/Clario/internal/model"
	"github.com/Love-M-365/Clario/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS profiles (
    user_id             TEXT PRIMARY KEY,
    answers             JSONB NOT NULL DEFAULT '{}'::jsonb,
    next_index          INT NOT NULL DEFAULT 0,
    onboarding_complete BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE TABLE IF NOT EXISTS chat_messages (
    id      TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    role    TEXT NOT NULL,
    text    TEXT NOT NULL,
    ts      TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_chat_messages_user_ts ON chat_messages (user_id, ts);

CREATE TABLE IF NOT EXISTS relationships (
    user_id               TEXT NOT NULL,
    name                  TEXT NOT NULL,
    last_interaction_time TIMESTAMPTZ NOT NULL,
    last_relation_type    TEXT NOT NULL,
    history               JSONB NOT NULL DEFAULT '[]'::jsonb,
    PRIMARY KEY (user_id, name)
);

CREATE TABLE IF NOT EXISTS mood_entries (
    id          TEXT PRIMARY KEY,
    user_id     TEXT NOT NULL,
    text        TEXT NOT NULL,
    score       DOUBLE PRECISION NOT NULL,
    tag         TEXT NOT NULL,
    explanation TEXT NOT NULL DEFAULT '',
    ts          TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_mood_entries_user_ts ON mood_entries (user_id, ts);

CREATE TABLE IF NOT EXISTS sessions (
    user_id              TEXT NOT NULL,
    session_id           TEXT NOT NULL,
    person_in_chair      TEXT NOT NULL,
    user_goal            TEXT NOT NULL,
    session_phase        TEXT NOT NULL,
    start_time           TIMESTAMPTZ NOT NULL,
    end_time             TIMESTAMPTZ,
    analysis_statement   TEXT NOT NULL DEFAULT '',
    root_emotion         TEXT NOT NULL DEFAULT '',
    cause_of_emotion     TEXT NOT NULL DEFAULT '',
    blue_summary         TEXT NOT NULL DEFAULT '',
    red_summary          TEXT NOT NULL DEFAULT '',
    reflection           TEXT NOT NULL DEFAULT '',
    blue_embedding       JSONB,
    red_embedding        JSONB,
    reflection_embedding JSONB,
    PRIMARY KEY (user_id, session_id)
);
CREATE INDEX IF NOT EXISTS idx_sessions_user_person ON sessions (user_id, person_in_chair, start_time);

CREATE TABLE IF NOT EXISTS session_messages (
    id          TEXT PRIMARY KEY,
    session_id  TEXT NOT NULL,
    user_id     TEXT NOT NULL,
    role        TEXT NOT NULL,
    perspective TEXT NOT NULL DEFAULT '',
    phase       TEXT NOT NULL,
    text        TEXT NOT NULL,
    ts          TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_session_messages_session_ts ON session_messages (user_id, session_id, ts);
`

// Store is the PostgreSQL-backed implementation of store.Store.
type Store struct {
	db *sql.DB
}

var _ store.Store = (*Store)(nil)

// Open connects to the database at dsn and ensures the schema exists.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open postgres connection")
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to ping postgres")
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to bootstrap postgres schema")
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// HealthPing verifies the database is reachable.
func (s *Store) HealthPing(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Profiles() store.Profiles               { return (*profiles)(s) }
func (s *Store) Messages() store.Messages               { return (*messages)(s) }
func (s *Store) Relationships() store.Relationships     { return (*relationships)(s) }
func (s *Store) Moods() store.Moods                     { return (*moods)(s) }
func (s *Store) Sessions() store.Sessions               { return (*sessions)(s) }
func (s *Store) SessionMessages() store.SessionMessages { return (*sessionMessages)(s) }

func encodeVec(v []float32) (sql.NullString, error) {
	if len(v) == 0 {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func decodeVec(ns sql.NullString) []float32 {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	var v []float32
	if err := json.Unmarshal([]byte(ns.String), &v); err != nil {
		return nil
	}
	return v
}

type profiles Store

func (p *profiles) Get(ctx context.Context, userID string) (*model.UserProfile, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT answers, next_index, onboarding_complete FROM profiles WHERE user_id = $1`, userID)
	var answersJSON []byte
	var nextIndex int
	var complete bool
	if err := row.Scan(&answersJSON, &nextIndex, &complete); err != nil {
		if err == sql.ErrNoRows {
			return &model.UserProfile{UserID: userID}, nil
		}
		return nil, errors.Wrap(err, "failed to load profile")
	}
	out := &model.UserProfile{UserID: userID, NextIndex: nextIndex, OnboardingComplete: complete}
	if err := json.Unmarshal(answersJSON, &out.Answers); err != nil {
		return nil, errors.Wrap(err, "corrupt profile answers")
	}
	return out, nil
}

func (p *profiles) Put(ctx context.Context, profile *model.UserProfile) error {
	if profile.UserID == "" {
		return fmt.Errorf("%w: userId is required", model.ErrValidation)
	}
	answers := profile.Answers
	if answers == nil {
		answers = map[string]string{}
	}
	answersJSON, err := json.Marshal(answers)
	if err != nil {
		return errors.Wrap(err, "failed to encode profile answers")
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO profiles (user_id, answers, next_index, onboarding_complete)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE SET
			answers = EXCLUDED.answers,
			next_index = EXCLUDED.next_index,
			onboarding_complete = EXCLUDED.onboarding_complete`,
		profile.UserID, answersJSON, profile.NextIndex, profile.OnboardingComplete)
	return errors.Wrap(err, "failed to upsert profile")
}

type messages Store

func (m *messages) Append(ctx context.Context, msg *model.ChatMessage) (*model.ChatMessage, error) {
	_, err := m.db.ExecContext(ctx,
		`INSERT INTO chat_messages (id, user_id, role, text, ts) VALUES ($1, $2, $3, $4, $5)`,
		msg.ID, msg.UserID, string(msg.Role), msg.Text, msg.Timestamp.UTC())
	if err != nil {
		return nil, errors.Wrap(err, "failed to append chat message")
	}
	out := *msg
	return &out, nil
}

func (m *messages) List(ctx context.Context, userID string, limit int) ([]*model.ChatMessage, error) {
	query := `SELECT id, role, text, ts FROM chat_messages WHERE user_id = $1 ORDER BY ts ASC`
	args := []any{userID}
	if limit > 0 {
		query = `SELECT id, role, text, ts FROM (
			SELECT id, role, text, ts FROM chat_messages WHERE user_id = $1 ORDER BY ts DESC LIMIT $2
		) recent ORDER BY ts ASC`
		args = append(args, limit)
	}
	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list chat messages")
	}
	defer rows.Close()

	var out []*model.ChatMessage
	for rows.Next() {
		msg := &model.ChatMessage{UserID: userID}
		var role string
		if err := rows.Scan(&msg.ID, &role, &msg.Text, &msg.Timestamp); err != nil {
			return nil, errors.Wrap(err, "failed to scan chat message")
		}
		msg.Role = model.ChatRole(role)
		out = append(out, msg)
	}
	return out, rows.Err()
}

type relationships Store

func (r *relationships) Upsert(ctx context.Context, userID, name string, rt model.RelationType, message string, at time.Time) (*model.RelationshipRecord, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to begin relationship upsert")
	}
	defer tx.Rollback()

	rec := &model.RelationshipRecord{UserID: userID, Name: name}
	var historyJSON []byte
	row := tx.QueryRowContext(ctx,
		`SELECT history FROM relationships WHERE user_id = $1 AND name = $2 FOR UPDATE`, userID, name)
	switch err := row.Scan(&historyJSON); err {
	case nil:
		if err := json.Unmarshal(historyJSON, &rec.History); err != nil {
			return nil, errors.Wrap(err, "corrupt relationship history")
		}
	case sql.ErrNoRows:
		// first mention
	default:
		return nil, errors.Wrap(err, "failed to load relationship")
	}

	rec.LastInteractionTime = at
	rec.LastRelationType = rt
	rec.History = append(rec.History, model.RelationshipEvent{Timestamp: at, Type: rt, Message: message})
	newHistory, err := json.Marshal(rec.History)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode relationship history")
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO relationships (user_id, name, last_interaction_time, last_relation_type, history)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, name) DO UPDATE SET
			last_interaction_time = EXCLUDED.last_interaction_time,
			last_relation_type = EXCLUDED.last_relation_type,
			history = EXCLUDED.history`,
		userID, name, at.UTC(), string(rt), newHistory)
	if err != nil {
		return nil, errors.Wrap(err, "failed to upsert relationship")
	}
	if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "failed to commit relationship upsert")
	}
	return rec, nil
}

func (r *relationships) List(ctx context.Context, userID string) ([]*model.RelationshipRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT name, last_interaction_time, last_relation_type, history
		FROM relationships WHERE user_id = $1 ORDER BY name ASC`, userID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list relationships")
	}
	defer rows.Close()

	out := []*model.RelationshipRecord{}
	for rows.Next() {
		rec := &model.RelationshipRecord{UserID: userID}
		var lastType string
		var historyJSON []byte
		if err := rows.Scan(&rec.Name, &rec.LastInteractionTime, &lastType, &historyJSON); err != nil {
			return nil, errors.Wrap(err, "failed to scan relationship")
		}
		rec.LastRelationType = model.RelationType(lastType)
		if err := json.Unmarshal(historyJSON, &rec.History); err != nil {
			return nil, errors.Wrap(err, "corrupt relationship history")
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type moods Store

func (m *moods) Append(ctx context.Context, e *model.MoodEntry) (*model.MoodEntry, error) {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO mood_entries (id, user_id, text, score, tag, explanation, ts)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		e.ID, e.UserID, e.Text, e.Score, e.Tag, e.Explanation, e.Timestamp.UTC())
	if err != nil {
		return nil, errors.Wrap(err, "failed to append mood entry")
	}
	out := *e
	return &out, nil
}

func (m *moods) List(ctx context.Context, userID string, limit int) ([]*model.MoodEntry, error) {
	query := `SELECT id, text, score, tag, explanation, ts FROM mood_entries WHERE user_id = $1 ORDER BY ts ASC`
	args := []any{userID}
	if limit > 0 {
		query = `SELECT id, text, score, tag, explanation, ts FROM (
			SELECT id, text, score, tag, explanation, ts FROM mood_entries WHERE user_id = $1 ORDER BY ts DESC LIMIT $2
		) recent ORDER BY ts ASC`
		args = append(args, limit)
	}
	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list mood entries")
	}
	defer rows.Close()

	var out []*model.MoodEntry
	for rows.Next() {
		e := &model.MoodEntry{UserID: userID}
		if err := rows.Scan(&e.ID, &e.Text, &e.Score, &e.Tag, &e.Explanation, &e.Timestamp); err != nil {
			return nil, errors.Wrap(err, "failed to scan mood entry")
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

type sessions Store

const sessionColumns = `session_id, person_in_chair, user_goal, session_phase, start_time, end_time,
	analysis_statement, root_emotion, cause_of_emotion,
	blue_summary, red_summary, reflection,
	blue_embedding, red_embedding, reflection_embedding`

func (s *sessions) Create(ctx context.Context, sess *model.Session) (*model.Session, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (user_id, session_id, person_in_chair, user_goal, session_phase, start_time)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		sess.UserID, sess.SessionID, sess.PersonInChair, sess.UserGoal, string(sess.Phase), sess.StartTime.UTC())
	if err != nil {
		return nil, errors.Wrap(err, "failed to create session")
	}
	out := *sess
	return &out, nil
}

func scanSession(userID string, scan func(dest ...any) error) (*model.Session, error) {
	sess := &model.Session{UserID: userID}
	var phase string
	var endTime sql.NullTime
	var blueVec, redVec, reflVec sql.NullString
	err := scan(
		&sess.SessionID, &sess.PersonInChair, &sess.UserGoal, &phase, &sess.StartTime, &endTime,
		&sess.AnalysisStatement, &sess.RootEmotion, &sess.CauseOfEmotion,
		&sess.BlueSummary, &sess.RedSummary, &sess.Reflection,
		&blueVec, &redVec, &reflVec)
	if err != nil {
		return nil, err
	}
	sess.Phase = model.SessionPhase(phase)
	if endTime.Valid {
		t := endTime.Time
		sess.EndTime = &t
	}
	sess.BlueEmbedding = decodeVec(blueVec)
	sess.RedEmbedding = decodeVec(redVec)
	sess.ReflectionEmbedding = decodeVec(reflVec)
	return sess, nil
}

func (s *sessions) Get(ctx context.Context, userID, sessionID string) (*model.Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE user_id = $1 AND session_id = $2`,
		userID, sessionID)
	sess, err := scanSession(userID, row.Scan)
	if err == sql.ErrNoRows {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to load session")
	}
	return sess, nil
}

func (s *sessions) SaveAnalysis(ctx context.Context, userID, sessionID string, a model.PreAnalysis) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET
			session_phase = $1,
			analysis_statement = $2,
			root_emotion = $3,
			cause_of_emotion = $4
		WHERE user_id = $5 AND session_id = $6 AND session_phase = $7`,
		string(model.PhaseEmptyChairReady), a.Statement, a.RootEmotion, a.CauseOfEmotion,
		userID, sessionID, string(model.PhaseInitialAnalysis))
	if err != nil {
		return errors.Wrap(err, "failed to save session analysis")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to save session analysis")
	}
	if n == 0 {
		if _, err := s.Get(ctx, userID, sessionID); err != nil {
			return err
		}
		return fmt.Errorf("%w: session %s already left %s", model.ErrConflict, sessionID, model.PhaseInitialAnalysis)
	}
	return nil
}

func (s *sessions) SaveSummaries(ctx context.Context, userID, sessionID string, sum model.SessionSummaries) error {
	blueVec, err := encodeVec(sum.BlueEmbedding)
	if err != nil {
		return errors.Wrap(err, "failed to encode blue embedding")
	}
	redVec, err := encodeVec(sum.RedEmbedding)
	if err != nil {
		return errors.Wrap(err, "failed to encode red embedding")
	}
	reflVec, err := encodeVec(sum.ReflectionEmbedding)
	if err != nil {
		return errors.Wrap(err, "failed to encode reflection embedding")
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET
			blue_summary = $1, red_summary = $2, reflection = $3,
			blue_embedding = $4, red_embedding = $5, reflection_embedding = $6,
			end_time = $7
		WHERE user_id = $8 AND session_id = $9`,
		sum.BlueSummary, sum.RedSummary, sum.Reflection,
		blueVec, redVec, reflVec,
		sum.EndTime.UTC(), userID, sessionID)
	if err != nil {
		return errors.Wrap(err, "failed to save session summaries")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to save session summaries")
	}
	if n == 0 {
		return model.ErrNotFound
	}
	return nil
}

func (s *sessions) ListRecentByPerson(ctx context.Context, userID, personInChair string, limit int) ([]*model.Session, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+sessionColumns+` FROM sessions
		WHERE user_id = $1 AND person_in_chair = $2 AND blue_embedding IS NOT NULL
		ORDER BY start_time DESC LIMIT $3`,
		userID, personInChair, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list sessions by person")
	}
	defer rows.Close()

	var out []*model.Session
	for rows.Next() {
		sess, err := scanSession(userID, rows.Scan)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan session")
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

type sessionMessages Store

func (s *sessionMessages) Append(ctx context.Context, msg *model.SessionMessage) (*model.SessionMessage, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO session_messages (id, session_id, user_id, role, perspective, phase, text, ts)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		msg.ID, msg.SessionID, msg.UserID, string(msg.Role), string(msg.Perspective), string(msg.Phase), msg.Text, msg.Timestamp.UTC())
	if err != nil {
		return nil, errors.Wrap(err, "failed to append session message")
	}
	out := *msg
	return &out, nil
}

func (s *sessionMessages) List(ctx context.Context, userID, sessionID string) ([]*model.SessionMessage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, role, perspective, phase, text, ts FROM session_messages
		WHERE user_id = $1 AND session_id = $2 ORDER BY ts ASC`,
		userID, sessionID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list session messages")
	}
	defer rows.Close()

	var out []*model.SessionMessage
	for rows.Next() {
		msg := &model.SessionMessage{UserID: userID, SessionID: sessionID}
		var role, perspective, phase string
		if err := rows.Scan(&msg.ID, &role, &perspective, &phase, &msg.Text, &msg.Timestamp); err != nil {
			return nil, errors.Wrap(err, "failed to scan session message")
		}
		msg.Role = model.ChatRole(role)
		msg.Perspective = model.ChairPerspective(perspective)
		msg.Phase = model.SessionPhase(phase)
		out = append(out, msg)
	}
	return out, rows.Err()
}
