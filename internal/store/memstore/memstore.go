// Package memstore provides an in-memory Store used by tests and local
// development. All operations copy on read and write so callers never share
// internal state.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Love-M-365/Clario/internal/model"
	"github.com/Love-M-365/Clario/internal/store"
)

type Memstore struct {
	mu sync.RWMutex

	profiles        map[string]*model.UserProfile                  // userID
	messages        map[string][]*model.ChatMessage                // userID
	relationships   map[string]map[string]*model.RelationshipRecord // userID -> name
	moods           map[string][]*model.MoodEntry                  // userID
	sessions        map[string]map[string]*model.Session           // userID -> sessionID
	sessionMessages map[string]map[string][]*model.SessionMessage  // userID -> sessionID
}

var _ store.Store = (*Memstore)(nil)

func New() *Memstore {
	return &Memstore{
		profiles:        make(map[string]*model.UserProfile),
		messages:        make(map[string][]*model.ChatMessage),
		relationships:   make(map[string]map[string]*model.RelationshipRecord),
		moods:           make(map[string][]*model.MoodEntry),
		sessions:        make(map[string]map[string]*model.Session),
		sessionMessages: make(map[string]map[string][]*model.SessionMessage),
	}
}

func (m *Memstore) Profiles() store.Profiles               { return (*profiles)(m) }
func (m *Memstore) Messages() store.Messages               { return (*messages)(m) }
func (m *Memstore) Relationships() store.Relationships     { return (*relationships)(m) }
func (m *Memstore) Moods() store.Moods                     { return (*moods)(m) }
func (m *Memstore) Sessions() store.Sessions               { return (*sessions)(m) }
func (m *Memstore) SessionMessages() store.SessionMessages { return (*sessionMessages)(m) }

func (m *Memstore) Close() error { return nil }

type profiles Memstore

func (p *profiles) Get(_ context.Context, userID string) (*model.UserProfile, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	stored, ok := p.profiles[userID]
	if !ok {
		return &model.UserProfile{UserID: userID}, nil
	}
	return cloneProfile(stored), nil
}

func (p *profiles) Put(_ context.Context, profile *model.UserProfile) error {
	if profile.UserID == "" {
		return fmt.Errorf("%w: userId is required", model.ErrValidation)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.profiles[profile.UserID] = cloneProfile(profile)
	return nil
}

func cloneProfile(in *model.UserProfile) *model.UserProfile {
	out := *in
	if in.Answers != nil {
		out.Answers = make(map[string]string, len(in.Answers))
		for k, v := range in.Answers {
			out.Answers[k] = v
		}
	}
	return &out
}

type messages Memstore

func (m *messages) Append(_ context.Context, msg *model.ChatMessage) (*model.ChatMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *msg
	m.messages[msg.UserID] = append(m.messages[msg.UserID], &cp)
	out := cp
	return &out, nil
}

func (m *messages) List(_ context.Context, userID string, limit int) ([]*model.ChatMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	all := m.messages[userID]
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	out := make([]*model.ChatMessage, 0, len(all))
	for _, msg := range all {
		cp := *msg
		out = append(out, &cp)
	}
	return out, nil
}

type relationships Memstore

func (r *relationships) Upsert(_ context.Context, userID, name string, rt model.RelationType, message string, at time.Time) (*model.RelationshipRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	byName, ok := r.relationships[userID]
	if !ok {
		byName = make(map[string]*model.RelationshipRecord)
		r.relationships[userID] = byName
	}
	rec, ok := byName[name]
	if !ok {
		rec = &model.RelationshipRecord{UserID: userID, Name: name}
		byName[name] = rec
	}
	rec.LastInteractionTime = at
	rec.LastRelationType = rt
	rec.History = append(rec.History, model.RelationshipEvent{Timestamp: at, Type: rt, Message: message})
	return cloneRelationship(rec), nil
}

func (r *relationships) List(_ context.Context, userID string) ([]*model.RelationshipRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*model.RelationshipRecord, 0, len(r.relationships[userID]))
	for _, rec := range r.relationships[userID] {
		out = append(out, cloneRelationship(rec))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func cloneRelationship(in *model.RelationshipRecord) *model.RelationshipRecord {
	out := *in
	out.History = append([]model.RelationshipEvent(nil), in.History...)
	return &out
}

type moods Memstore

func (m *moods) Append(_ context.Context, e *model.MoodEntry) (*model.MoodEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *e
	m.moods[e.UserID] = append(m.moods[e.UserID], &cp)
	out := cp
	return &out, nil
}

func (m *moods) List(_ context.Context, userID string, limit int) ([]*model.MoodEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	all := m.moods[userID]
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	out := make([]*model.MoodEntry, 0, len(all))
	for _, e := range all {
		cp := *e
		out = append(out, &cp)
	}
	return out, nil
}

type sessions Memstore

func (s *sessions) Create(_ context.Context, sess *model.Session) (*model.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byID, ok := s.sessions[sess.UserID]
	if !ok {
		byID = make(map[string]*model.Session)
		s.sessions[sess.UserID] = byID
	}
	if _, exists := byID[sess.SessionID]; exists {
		return nil, fmt.Errorf("%w: session %s already exists", model.ErrConflict, sess.SessionID)
	}
	byID[sess.SessionID] = cloneSession(sess)
	return cloneSession(sess), nil
}

func (s *sessions) Get(_ context.Context, userID, sessionID string) (*model.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[userID][sessionID]
	if !ok {
		return nil, model.ErrNotFound
	}
	return cloneSession(sess), nil
}

func (s *sessions) SaveAnalysis(_ context.Context, userID, sessionID string, a model.PreAnalysis) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[userID][sessionID]
	if !ok {
		return model.ErrNotFound
	}
	if sess.Phase != model.PhaseInitialAnalysis {
		return fmt.Errorf("%w: session %s is in phase %q", model.ErrConflict, sessionID, sess.Phase)
	}
	sess.Phase = model.PhaseEmptyChairReady
	sess.AnalysisStatement = a.Statement
	sess.RootEmotion = a.RootEmotion
	sess.CauseOfEmotion = a.CauseOfEmotion
	return nil
}

func (s *sessions) SaveSummaries(_ context.Context, userID, sessionID string, sum model.SessionSummaries) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[userID][sessionID]
	if !ok {
		return model.ErrNotFound
	}
	sess.BlueSummary = sum.BlueSummary
	sess.RedSummary = sum.RedSummary
	sess.Reflection = sum.Reflection
	sess.BlueEmbedding = append([]float32(nil), sum.BlueEmbedding...)
	sess.RedEmbedding = append([]float32(nil), sum.RedEmbedding...)
	sess.ReflectionEmbedding = append([]float32(nil), sum.ReflectionEmbedding...)
	end := sum.EndTime
	sess.EndTime = &end
	return nil
}

func (s *sessions) ListRecentByPerson(_ context.Context, userID, personInChair string, limit int) ([]*model.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*model.Session
	for _, sess := range s.sessions[userID] {
		if sess.PersonInChair != personInChair || len(sess.BlueEmbedding) == 0 {
			continue
		}
		out = append(out, cloneSession(sess))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.After(out[j].StartTime) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func cloneSession(in *model.Session) *model.Session {
	out := *in
	out.BlueEmbedding = append([]float32(nil), in.BlueEmbedding...)
	out.RedEmbedding = append([]float32(nil), in.RedEmbedding...)
	out.ReflectionEmbedding = append([]float32(nil), in.ReflectionEmbedding...)
	if in.EndTime != nil {
		end := *in.EndTime
		out.EndTime = &end
	}
	return &out
}

type sessionMessages Memstore

func (s *sessionMessages) Append(_ context.Context, msg *model.SessionMessage) (*model.SessionMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bySession, ok := s.sessionMessages[msg.UserID]
	if !ok {
		bySession = make(map[string][]*model.SessionMessage)
		s.sessionMessages[msg.UserID] = bySession
	}
	cp := *msg
	bySession[msg.SessionID] = append(bySession[msg.SessionID], &cp)
	out := cp
	return &out, nil
}

func (s *sessionMessages) List(_ context.Context, userID, sessionID string) ([]*model.SessionMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := s.sessionMessages[userID][sessionID]
	out := make([]*model.SessionMessage, 0, len(all))
	for _, msg := range all {
		cp := *msg
		out = append(out, &cp)
	}
	return out, nil
}
