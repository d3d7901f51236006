// Package sqlite implements the Store interface on an embedded SQLite
// database. It is the default backend for local development: the schema is
// bootstrapped on open, so a DSN pointing at a fresh file is enough.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	"github.com/Love-M-365/Clario/internal/model"
	"github.com/Love-M-365/Clario/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS profiles (
    user_id             TEXT PRIMARY KEY,
    answers             TEXT NOT NULL DEFAULT '{}',
    next_index          INTEGER NOT NULL DEFAULT 0,
    onboarding_complete INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS chat_messages (
    id      TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    role    TEXT NOT NULL,
    text    TEXT NOT NULL,
    ts      TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_chat_messages_user_ts ON chat_messages (user_id, ts);

CREATE TABLE IF NOT EXISTS relationships (
    user_id               TEXT NOT NULL,
    name                  TEXT NOT NULL,
    last_interaction_time TEXT NOT NULL,
    last_relation_type    TEXT NOT NULL,
    history               TEXT NOT NULL DEFAULT '[]',
    PRIMARY KEY (user_id, name)
);

CREATE TABLE IF NOT EXISTS mood_entries (
    id          TEXT PRIMARY KEY,
    user_id     TEXT NOT NULL,
    text        TEXT NOT NULL,
    score       REAL NOT NULL,
    tag         TEXT NOT NULL,
    explanation TEXT NOT NULL DEFAULT '',
    ts          TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_mood_entries_user_ts ON mood_entries (user_id, ts);

CREATE TABLE IF NOT EXISTS sessions (
    user_id              TEXT NOT NULL,
    session_id           TEXT NOT NULL,
    person_in_chair      TEXT NOT NULL,
    user_goal            TEXT NOT NULL,
    session_phase        TEXT NOT NULL,
    start_time           TEXT NOT NULL,
    end_time             TEXT,
    analysis_statement   TEXT NOT NULL DEFAULT '',
    root_emotion         TEXT NOT NULL DEFAULT '',
    cause_of_emotion     TEXT NOT NULL DEFAULT '',
    blue_summary         TEXT NOT NULL DEFAULT '',
    red_summary          TEXT NOT NULL DEFAULT '',
    reflection           TEXT NOT NULL DEFAULT '',
    blue_embedding       TEXT,
    red_embedding        TEXT,
    reflection_embedding TEXT,
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
    ts          TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_session_messages_session_ts ON session_messages (user_id, session_id, ts);
`

// Store is the SQLite-backed implementation of store.Store.
type Store struct {
	db *sql.DB
}

var _ store.Store = (*Store)(nil)

// Open opens (and bootstraps) a SQLite database at path. ":memory:" gives an
// ephemeral database for tests.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open sqlite database")
	}
	// modernc sqlite is not safe for concurrent writers on one connection
	// pool entry, so serialize access.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to bootstrap sqlite schema")
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// HealthPing verifies the database answers a trivial query.
func (s *Store) HealthPing(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Profiles() store.Profiles               { return (*profiles)(s) }
func (s *Store) Messages() store.Messages               { return (*messages)(s) }
func (s *Store) Relationships() store.Relationships     { return (*relationships)(s) }
func (s *Store) Moods() store.Moods                     { return (*moods)(s) }
func (s *Store) Sessions() store.Sessions               { return (*sessions)(s) }
func (s *Store) SessionMessages() store.SessionMessages { return (*sessionMessages)(s) }

func encodeTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func decodeTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// encodeVec renders an embedding as JSON; nil/empty vectors become SQL NULL
// so the recall query can filter on presence.
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
		`SELECT answers, next_index, onboarding_complete FROM profiles WHERE user_id = ?`, userID)
	var answersJSON string
	var nextIndex int
	var complete bool
	if err := row.Scan(&answersJSON, &nextIndex, &complete); err != nil {
		if err == sql.ErrNoRows {
			return &model.UserProfile{UserID: userID}, nil
		}
		return nil, errors.Wrap(err, "failed to load profile")
	}
	out := &model.UserProfile{UserID: userID, NextIndex: nextIndex, OnboardingComplete: complete}
	if err := json.Unmarshal([]byte(answersJSON), &out.Answers); err != nil {
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
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			answers = excluded.answers,
			next_index = excluded.next_index,
			onboarding_complete = excluded.onboarding_complete`,
		profile.UserID, string(answersJSON), profile.NextIndex, profile.OnboardingComplete)
	return errors.Wrap(err, "failed to upsert profile")
}

type messages Store

func (m *messages) Append(ctx context.Context, msg *model.ChatMessage) (*model.ChatMessage, error) {
	_, err := m.db.ExecContext(ctx,
		`INSERT INTO chat_messages (id, user_id, role, text, ts) VALUES (?, ?, ?, ?, ?)`,
		msg.ID, msg.UserID, string(msg.Role), msg.Text, encodeTime(msg.Timestamp))
	if err != nil {
		return nil, errors.Wrap(err, "failed to append chat message")
	}
	out := *msg
	return &out, nil
}

func (m *messages) List(ctx context.Context, userID string, limit int) ([]*model.ChatMessage, error) {
	query := `SELECT id, role, text, ts FROM chat_messages WHERE user_id = ? ORDER BY ts ASC`
	args := []any{userID}
	if limit > 0 {
		// Take the newest limit rows, then flip back to ascending.
		query = `SELECT id, role, text, ts FROM (
			SELECT id, role, text, ts FROM chat_messages WHERE user_id = ? ORDER BY ts DESC LIMIT ?
		) ORDER BY ts ASC`
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
		var role, ts string
		if err := rows.Scan(&msg.ID, &role, &msg.Text, &ts); err != nil {
			return nil, errors.Wrap(err, "failed to scan chat message")
		}
		msg.Role = model.ChatRole(role)
		msg.Timestamp = decodeTime(ts)
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
	var historyJSON string
	row := tx.QueryRowContext(ctx,
		`SELECT history FROM relationships WHERE user_id = ? AND name = ?`, userID, name)
	switch err := row.Scan(&historyJSON); err {
	case nil:
		if err := json.Unmarshal([]byte(historyJSON), &rec.History); err != nil {
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
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (user_id, name) DO UPDATE SET
			last_interaction_time = excluded.last_interaction_time,
			last_relation_type = excluded.last_relation_type,
			history = excluded.history`,
		userID, name, encodeTime(at), string(rt), string(newHistory))
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
		FROM relationships WHERE user_id = ? ORDER BY name ASC`, userID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list relationships")
	}
	defer rows.Close()

	out := []*model.RelationshipRecord{}
	for rows.Next() {
		rec := &model.RelationshipRecord{UserID: userID}
		var lastAt, lastType, historyJSON string
		if err := rows.Scan(&rec.Name, &lastAt, &lastType, &historyJSON); err != nil {
			return nil, errors.Wrap(err, "failed to scan relationship")
		}
		rec.LastInteractionTime = decodeTime(lastAt)
		rec.LastRelationType = model.RelationType(lastType)
		if err := json.Unmarshal([]byte(historyJSON), &rec.History); err != nil {
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
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.UserID, e.Text, e.Score, e.Tag, e.Explanation, encodeTime(e.Timestamp))
	if err != nil {
		return nil, errors.Wrap(err, "failed to append mood entry")
	}
	out := *e
	return &out, nil
}

func (m *moods) List(ctx context.Context, userID string, limit int) ([]*model.MoodEntry, error) {
	query := `SELECT id, text, score, tag, explanation, ts FROM mood_entries WHERE user_id = ? ORDER BY ts ASC`
	args := []any{userID}
	if limit > 0 {
		query = `SELECT id, text, score, tag, explanation, ts FROM (
			SELECT id, text, score, tag, explanation, ts FROM mood_entries WHERE user_id = ? ORDER BY ts DESC LIMIT ?
		) ORDER BY ts ASC`
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
		var ts string
		if err := rows.Scan(&e.ID, &e.Text, &e.Score, &e.Tag, &e.Explanation, &ts); err != nil {
			return nil, errors.Wrap(err, "failed to scan mood entry")
		}
		e.Timestamp = decodeTime(ts)
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
		VALUES (?, ?, ?, ?, ?, ?)`,
		sess.UserID, sess.SessionID, sess.PersonInChair, sess.UserGoal, string(sess.Phase), encodeTime(sess.StartTime))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create session")
	}
	out := *sess
	return &out, nil
}

func scanSession(userID string, scan func(dest ...any) error) (*model.Session, error) {
	sess := &model.Session{UserID: userID}
	var phase, startTime string
	var endTime sql.NullString
	var blueVec, redVec, reflVec sql.NullString
	err := scan(
		&sess.SessionID, &sess.PersonInChair, &sess.UserGoal, &phase, &startTime, &endTime,
		&sess.AnalysisStatement, &sess.RootEmotion, &sess.CauseOfEmotion,
		&sess.BlueSummary, &sess.RedSummary, &sess.Reflection,
		&blueVec, &redVec, &reflVec)
	if err != nil {
		return nil, err
	}
	sess.Phase = model.SessionPhase(phase)
	sess.StartTime = decodeTime(startTime)
	if endTime.Valid {
		t := decodeTime(endTime.String)
		sess.EndTime = &t
	}
	sess.BlueEmbedding = decodeVec(blueVec)
	sess.RedEmbedding = decodeVec(redVec)
	sess.ReflectionEmbedding = decodeVec(reflVec)
	return sess, nil
}

func (s *sessions) Get(ctx context.Context, userID, sessionID string) (*model.Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE user_id = ? AND session_id = ?`,
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
			session_phase = ?,
			analysis_statement = ?,
			root_emotion = ?,
			cause_of_emotion = ?
		WHERE user_id = ? AND session_id = ? AND session_phase = ?`,
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
			blue_summary = ?, red_summary = ?, reflection = ?,
			blue_embedding = ?, red_embedding = ?, reflection_embedding = ?,
			end_time = ?
		WHERE user_id = ? AND session_id = ?`,
		sum.BlueSummary, sum.RedSummary, sum.Reflection,
		blueVec, redVec, reflVec,
		encodeTime(sum.EndTime), userID, sessionID)
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
		WHERE user_id = ? AND person_in_chair = ? AND blue_embedding IS NOT NULL
		ORDER BY start_time DESC LIMIT ?`,
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
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.SessionID, msg.UserID, string(msg.Role), string(msg.Perspective), string(msg.Phase), msg.Text, encodeTime(msg.Timestamp))
	if err != nil {
		return nil, errors.Wrap(err, "failed to append session message")
	}
	out := *msg
	return &out, nil
}

func (s *sessionMessages) List(ctx context.Context, userID, sessionID string) ([]*model.SessionMessage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, role, perspective, phase, text, ts FROM session_messages
		WHERE user_id = ? AND session_id = ? ORDER BY ts ASC`,
		userID, sessionID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list session messages")
	}
	defer rows.Close()

	var out []*model.SessionMessage
	for rows.Next() {
		msg := &model.SessionMessage{UserID: userID, SessionID: sessionID}
		var role, perspective, phase, ts string
		if err := rows.Scan(&msg.ID, &role, &perspective, &phase, &msg.Text, &ts); err != nil {
			return nil, errors.Wrap(err, "failed to scan session message")
		}
		msg.Role = model.ChatRole(role)
		msg.Perspective = model.ChairPerspective(perspective)
		msg.Phase = model.SessionPhase(phase)
		msg.Timestamp = decodeTime(ts)
		out = append(out, msg)
	}
	return out, rows.Err()
}
