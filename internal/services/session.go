package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Love-M-365/Clario/internal/embeddings"
	"github.com/Love-M-365/Clario/internal/llm"
	"github.com/Love-M-365/Clario/internal/model"
	"github.com/Love-M-365/Clario/internal/store"
)

const (
	defaultPersonInChair = "the issue"
	defaultUserGoal      = "find some clarity"

	// The pre-analysis phase hands off to the chair dialogue either on an
	// explicit trigger phrase or after this many user+facilitator exchanges.
	preAnalysisLengthTrigger = 6

	recallCandidateLimit = 10
	recallTopK           = 2

	dialogueFallbackReply = "I understand. Can you tell me more about that feeling?"

	blueSummaryPlaceholder = "No Blue Chair summary generated."
	redSummaryPlaceholder  = "No Red Chair summary generated."
	reflectionPlaceholder  = "No overall session reflection generated."
)

var analysisTriggerPhrases = []string{
	"analyze",
	"analysis",
	"decode",
	"summarize my feelings",
	"tell me the root",
	"core emotion",
	"root cause",
	"what's the core issue",
	"help me understand the core",
	"identify the main",
	"what's really going on",
	"break this down",
	"make sense of this",
}

// SessionService runs Empty Chair dialogue sessions: a short pre-analysis
// conversation that distills the user's problem, then a two-chair dialogue
// with semantic recall of past sessions about the same person.
type SessionService struct {
	store store.Store
	gen   llm.Generator
	emb   embeddings.Provider
	log   zerolog.Logger
}

func NewSessionService(st store.Store, gen llm.Generator, emb embeddings.Provider, log zerolog.Logger) *SessionService {
	return &SessionService{store: st, gen: gen, emb: emb, log: log.With().Str("service", "sessions").Logger()}
}

// StartSessionResult is the outcome of opening a new session.
type StartSessionResult struct {
	SessionID        string
	Phase            model.SessionPhase
	InitialAIMessage string
}

// Start opens a new session in the pre-analysis phase and seeds it with a
// facilitator greeting.
func (s *SessionService) Start(ctx context.Context, userID, personInChair, userGoal string) (*StartSessionResult, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("%w: userId is required", model.ErrValidation)
	}
	personInChair = strings.TrimSpace(personInChair)
	if personInChair == "" {
		personInChair = defaultPersonInChair
	}
	userGoal = strings.TrimSpace(userGoal)
	if userGoal == "" {
		userGoal = defaultUserGoal
	}

	sess := &model.Session{
		SessionID:     uuid.New().String(),
		UserID:        userID,
		PersonInChair: personInChair,
		UserGoal:      userGoal,
		Phase:         model.PhaseInitialAnalysis,
		StartTime:     time.Now().UTC(),
	}
	if _, err := s.store.Sessions().Create(ctx, sess); err != nil {
		return nil, err
	}

	greeting := fmt.Sprintf(
		"Hello! Welcome to your session. Today, you want to explore '%s' to '%s'.\n\n"+
			"Before we begin the Empty Chair dialogue, let's take a moment to understand what's truly at the heart of this. "+
			"Please describe, in your own words, what this situation brings up for you.",
		personInChair, userGoal)

	if err := s.appendSessionMessage(ctx, sess, model.RoleAssistant, model.PerspectiveFacilitator, greeting); err != nil {
		return nil, err
	}

	s.log.Info().Str("userId", userID).Str("sessionId", sess.SessionID).Msg("session started")
	return &StartSessionResult{
		SessionID:        sess.SessionID,
		Phase:            sess.Phase,
		InitialAIMessage: greeting,
	}, nil
}

// AnalyzeResult is the outcome of one pre-analysis turn.
type AnalyzeResult struct {
	SessionID      string
	Phase          model.SessionPhase
	AIMessage      string
	RootEmotion    string
	CauseOfEmotion string
	Transitioned   bool
}

// AnalyzeInitialProblem advances the pre-analysis conversation. When a
// trigger phrase appears in the message, or the exchange has run long enough,
// it distills the problem statement and transitions the session to the chair
// dialogue phase.
func (s *SessionService) AnalyzeInitialProblem(ctx context.Context, userID, sessionID, message string) (*AnalyzeResult, error) {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(sessionID) == "" || strings.TrimSpace(message) == "" {
		return nil, fmt.Errorf("%w: userId, sessionId and message are required", model.ErrValidation)
	}

	sess, err := s.store.Sessions().Get(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Phase != model.PhaseInitialAnalysis {
		return nil, fmt.Errorf("%w: session is in phase %q, not %q", model.ErrConflict, sess.Phase, model.PhaseInitialAnalysis)
	}

	msgs, err := s.store.SessionMessages().List(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}

	var history []llm.Turn
	var transcript strings.Builder
	phaseCount := 0
	for _, m := range msgs {
		if m.Phase != model.PhaseInitialAnalysis {
			continue
		}
		phaseCount++
		history = append(history, llm.Turn{Role: m.Role, Text: m.Text})
		label := "USER"
		if m.Role == model.RoleAssistant {
			label = "AI"
		}
		fmt.Fprintf(&transcript, "[%s]: %s\n", label, m.Text)
	}
	history = append(history, llm.Turn{Role: model.RoleUser, Text: message})
	fmt.Fprintf(&transcript, "[USER]: %s\n", message)
	phaseCount++

	result := &AnalyzeResult{SessionID: sessionID, Phase: sess.Phase}

	if hasTriggerPhrase(message) || phaseCount >= preAnalysisLengthTrigger {
		analysis, err := s.distillProblem(ctx, sess, transcript.String())
		if err != nil {
			// Distillation failed outright; stay in pre-analysis and probe again.
			s.log.Error().Stack().Err(err).Str("sessionId", sessionID).Msg("problem distillation failed")
			result.AIMessage = fmt.Sprintf(
				"I'm sorry, I'm having a little trouble gathering my thoughts. Could you tell me more about what's on your mind regarding '%s'?",
				sess.PersonInChair)
		} else {
			if err := s.store.Sessions().SaveAnalysis(ctx, userID, sessionID, *analysis); err != nil {
				return nil, err
			}
			result.Phase = model.PhaseEmptyChairReady
			result.RootEmotion = analysis.RootEmotion
			result.CauseOfEmotion = analysis.CauseOfEmotion
			result.Transitioned = true
			result.AIMessage = fmt.Sprintf(
				"%s\n\n**Root Emotion:** %s\n**Cause of Emotion:** %s\n\n"+
					"Now that we've named this, we can move into the Empty Chair dialogue. "+
					"**To begin, please share your first thoughts about '%s' from your BLUE Chair perspective.**",
				analysis.Statement, analysis.RootEmotion, analysis.CauseOfEmotion, sess.PersonInChair)
		}
	} else {
		system := fmt.Sprintf(
			"You are an empathetic facilitator in the opening phase of an Empty Chair session. "+
				"The user wants to talk about '%s' and their goal is to '%s'. "+
				"Ask one brief, open-ended question (1-2 sentences) that helps them articulate what is really bothering them. Do not analyze yet.",
			sess.PersonInChair, sess.UserGoal)
		reply, err := s.gen.Generate(ctx, llm.Request{System: system, History: history})
		if err != nil || strings.TrimSpace(reply) == "" {
			// Retry once without the system instruction before giving up.
			s.log.Warn().Err(err).Str("sessionId", sessionID).Msg("pre-analysis generation failed, retrying without system instruction")
			reply, err = s.gen.Generate(ctx, llm.Request{History: history})
		}
		if err != nil || strings.TrimSpace(reply) == "" {
			s.log.Error().Stack().Err(err).Str("sessionId", sessionID).Msg("pre-analysis generation failed")
			reply = fmt.Sprintf(
				"I'm sorry, I'm having a little trouble gathering my thoughts. Could you tell me more about what's on your mind regarding '%s'?",
				sess.PersonInChair)
		}
		result.AIMessage = reply
	}

	// Both sides of the turn are logged under the phase the turn ran in.
	if err := s.appendSessionMessage(ctx, sess, model.RoleUser, "", message); err != nil {
		return nil, err
	}
	if err := s.appendSessionMessage(ctx, sess, model.RoleAssistant, model.PerspectiveFacilitator, result.AIMessage); err != nil {
		return nil, err
	}
	return result, nil
}

func hasTriggerPhrase(message string) bool {
	lower := strings.ToLower(message)
	for _, phrase := range analysisTriggerPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

type distilledAnalysis struct {
	Statement      string `json:"statement"`
	RootEmotion    string `json:"rootEmotion"`
	CauseOfEmotion string `json:"causeOfEmotion"`
}

// distillProblem asks the model for a structured reading of the pre-analysis
// transcript. A parse failure is retried once; a response that still is not
// valid JSON is kept verbatim as the statement with the emotion fields marked
// unidentified.
func (s *SessionService) distillProblem(ctx context.Context, sess *model.Session, transcript string) (*model.PreAnalysis, error) {
	system := fmt.Sprintf(
		"You are a therapist distilling the core of a user's problem before an Empty Chair exercise about '%s'. The user's goal is to '%s'. "+
			"Given the conversation transcript, respond with JSON only, matching exactly this schema: "+
			`{"statement": "<2-3 empathetic sentences reflecting the heart of the problem back to the user>", "rootEmotion": "<one or two words>", "causeOfEmotion": "<one short phrase>"}`,
		sess.PersonInChair, sess.UserGoal)
	req := llm.Request{System: system, Prompt: transcript, JSONResponse: true}

	var raw string
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		raw, err = s.gen.Generate(ctx, req)
		if err != nil {
			return nil, err
		}
		var out distilledAnalysis
		if jerr := json.Unmarshal([]byte(raw), &out); jerr != nil {
			s.log.Warn().Err(jerr).Int("attempt", attempt).Msg("analysis response was not valid JSON")
			continue
		}
		if out.Statement == "" {
			out.Statement = raw
		}
		if out.RootEmotion == "" {
			out.RootEmotion = "Not identified"
		}
		if out.CauseOfEmotion == "" {
			out.CauseOfEmotion = "Not identified"
		}
		return &model.PreAnalysis{
			Statement:      out.Statement,
			RootEmotion:    out.RootEmotion,
			CauseOfEmotion: out.CauseOfEmotion,
		}, nil
	}
	return &model.PreAnalysis{
		Statement:      raw,
		RootEmotion:    "Not identified",
		CauseOfEmotion: "Not identified",
	}, nil
}

// DialogueResult is the outcome of one chair-dialogue turn.
type DialogueResult struct {
	SessionID string
	Phase     model.SessionPhase
	AIMessage string
}

// ProcessMessage handles one turn of the chair dialogue. A missing session is
// created lazily, already in the dialogue phase, so clients can jump straight
// into the exercise.
func (s *SessionService) ProcessMessage(ctx context.Context, userID, sessionID, message string, perspective model.ChairPerspective) (*DialogueResult, error) {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(message) == "" {
		return nil, fmt.Errorf("%w: userId and message are required", model.ErrValidation)
	}
	if perspective != model.PerspectiveBlue && perspective != model.PerspectiveRed {
		return nil, fmt.Errorf("%w: perspective must be %q or %q", model.ErrValidation, model.PerspectiveBlue, model.PerspectiveRed)
	}

	sess, err := s.getOrCreateDialogueSession(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Phase != model.PhaseEmptyChairReady {
		return nil, fmt.Errorf("%w: session is in phase %q, complete the initial analysis first", model.ErrConflict, sess.Phase)
	}

	vec, err := s.emb.Embed(ctx, message)
	if err != nil {
		s.log.Warn().Err(err).Str("sessionId", sess.SessionID).Msg("message embedding failed, recall will be unranked")
		vec = nil
	}
	memory := s.recallPastSessions(ctx, sess, vec)

	msgs, err := s.store.SessionMessages().List(ctx, userID, sess.SessionID)
	if err != nil {
		return nil, err
	}
	var history []llm.Turn
	for _, m := range msgs {
		if m.Phase != model.PhaseEmptyChairReady {
			continue
		}
		if m.Role == model.RoleAssistant {
			history = append(history, llm.Turn{Role: model.RoleAssistant, Text: m.Text})
			continue
		}
		history = append(history, llm.Turn{Role: model.RoleUser, Text: chairPrefix(m.Perspective) + m.Text})
	}
	history = append(history, llm.Turn{Role: model.RoleUser, Text: chairPrefix(perspective) + message})

	system := fmt.Sprintf(
		"You are an empathetic facilitator for an Empty Chair therapy session. "+
			"The person in the 'RED Chair' is '%s'. The user's goal for this session is to '%s'. "+
			"Always respond with a short, open-ended question or prompt (1-2 sentences max) that encourages deeper reflection.",
		sess.PersonInChair, sess.UserGoal)
	if memory != "" {
		system += "\n\n" + memory
	}

	reply, err := s.gen.Generate(ctx, llm.Request{System: system, History: history})
	if err != nil || strings.TrimSpace(reply) == "" {
		s.log.Error().Stack().Err(err).Str("sessionId", sess.SessionID).Msg("dialogue generation failed")
		reply = dialogueFallbackReply
	}

	userMsg := &model.SessionMessage{
		ID:          uuid.New().String(),
		SessionID:   sess.SessionID,
		UserID:      userID,
		Role:        model.RoleUser,
		Perspective: perspective,
		Phase:       sess.Phase,
		Text:        message,
		Timestamp:   time.Now().UTC(),
	}
	if _, err := s.store.SessionMessages().Append(ctx, userMsg); err != nil {
		return nil, err
	}
	if err := s.appendSessionMessage(ctx, sess, model.RoleAssistant, model.PerspectiveFacilitator, reply); err != nil {
		return nil, err
	}

	return &DialogueResult{SessionID: sess.SessionID, Phase: sess.Phase, AIMessage: reply}, nil
}

func (s *SessionService) getOrCreateDialogueSession(ctx context.Context, userID, sessionID string) (*model.Session, error) {
	if sessionID != "" {
		sess, err := s.store.Sessions().Get(ctx, userID, sessionID)
		if err == nil {
			return sess, nil
		}
		if !errors.Is(err, model.ErrNotFound) {
			return nil, err
		}
	} else {
		sessionID = uuid.New().String()
	}
	sess := &model.Session{
		SessionID:     sessionID,
		UserID:        userID,
		PersonInChair: defaultPersonInChair,
		UserGoal:      defaultUserGoal,
		Phase:         model.PhaseEmptyChairReady,
		StartTime:     time.Now().UTC(),
	}
	if _, err := s.store.Sessions().Create(ctx, sess); err != nil {
		return nil, err
	}
	s.log.Info().Str("userId", userID).Str("sessionId", sessionID).Msg("dialogue session created lazily")
	return sess, nil
}

func chairPrefix(p model.ChairPerspective) string {
	if p == model.PerspectiveRed {
		return "[RED Chair]: "
	}
	return "[BLUE Chair]: "
}

// recallPastSessions ranks summarized past sessions about the same person by
// cosine similarity between the current message embedding and each session's
// reflection embedding, and renders the top matches as a context block.
func (s *SessionService) recallPastSessions(ctx context.Context, sess *model.Session, vec []float32) string {
	past, err := s.store.Sessions().ListRecentByPerson(ctx, sess.UserID, sess.PersonInChair, recallCandidateLimit)
	if err != nil {
		s.log.Warn().Err(err).Str("sessionId", sess.SessionID).Msg("past session lookup failed")
		return ""
	}

	type scored struct {
		score   float64
		session *model.Session
	}
	var candidates []scored
	for _, p := range past {
		if p.SessionID == sess.SessionID || !p.HasSummaries() {
			continue
		}
		candidates = append(candidates, scored{
			score:   CosineSimilarity(vec, p.ReflectionEmbedding),
			session: p,
		})
	}
	if len(candidates) == 0 {
		return ""
	}
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].score > candidates[j].score })
	if len(candidates) > recallTopK {
		candidates = candidates[:recallTopK]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "### User's past session learnings about '%s':\n", sess.PersonInChair)
	for _, c := range candidates {
		p := c.session
		fmt.Fprintf(&b, "Past session (%s, goal: %s):\n", p.StartTime.Format("2006-01-02"), p.UserGoal)
		fmt.Fprintf(&b, "  User perspective (Blue): %s\n", p.BlueSummary)
		fmt.Fprintf(&b, "  Other perspective (Red): %s\n", p.RedSummary)
		fmt.Fprintf(&b, "  Reflection: %s\n", p.Reflection)
	}
	return b.String()
}

// SummariesResult is the outcome of closing out a session.
type SummariesResult struct {
	SessionID   string
	BlueSummary string
	RedSummary  string
	Reflection  string
}

// GenerateSummaries produces the Blue Chair summary, Red Chair summary, and
// overall reflection for a session, embeds each, and persists them with the
// session end time. Each of the three is independent; a failure in one leaves
// its placeholder and does not block the others.
func (s *SessionService) GenerateSummaries(ctx context.Context, userID, sessionID string) (*SummariesResult, error) {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(sessionID) == "" {
		return nil, fmt.Errorf("%w: userId and sessionId are required", model.ErrValidation)
	}

	sess, err := s.store.Sessions().Get(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	msgs, err := s.store.SessionMessages().List(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}

	var blueTexts, redTexts []string
	var transcript strings.Builder
	for _, m := range msgs {
		if m.Phase != model.PhaseEmptyChairReady {
			continue
		}
		if m.Role == model.RoleUser {
			switch m.Perspective {
			case model.PerspectiveRed:
				redTexts = append(redTexts, m.Text)
			default:
				blueTexts = append(blueTexts, m.Text)
			}
			fmt.Fprintf(&transcript, "%s%s\n", chairPrefix(m.Perspective), m.Text)
		} else {
			fmt.Fprintf(&transcript, "[Facilitator]: %s\n", m.Text)
		}
	}

	sum := model.SessionSummaries{
		BlueSummary: blueSummaryPlaceholder,
		RedSummary:  redSummaryPlaceholder,
		Reflection:  reflectionPlaceholder,
		EndTime:     time.Now().UTC(),
	}

	if len(blueTexts) > 0 {
		prompt := fmt.Sprintf(
			"Summarize, in 2-3 sentences and second person, what the user expressed from their own (Blue Chair) perspective during this Empty Chair session about '%s':\n\n%s",
			sess.PersonInChair, strings.Join(blueTexts, "\n"))
		sum.BlueSummary, sum.BlueEmbedding = s.summarizeAndEmbed(ctx, sess.SessionID, "blue", prompt, blueSummaryPlaceholder)
	}
	if len(redTexts) > 0 {
		prompt := fmt.Sprintf(
			"Summarize, in 2-3 sentences, what the user voiced while speaking as '%s' (the Red Chair) during this Empty Chair session:\n\n%s",
			sess.PersonInChair, strings.Join(redTexts, "\n"))
		sum.RedSummary, sum.RedEmbedding = s.summarizeAndEmbed(ctx, sess.SessionID, "red", prompt, redSummaryPlaceholder)
	}
	if transcript.Len() > 0 {
		prompt := fmt.Sprintf(
			"Write a 2-3 sentence reflection on this Empty Chair session about '%s' (goal: '%s'), naming the key insight the user reached or is circling:\n\n%s",
			sess.PersonInChair, sess.UserGoal, transcript.String())
		sum.Reflection, sum.ReflectionEmbedding = s.summarizeAndEmbed(ctx, sess.SessionID, "reflection", prompt, reflectionPlaceholder)
	}

	if err := s.store.Sessions().SaveSummaries(ctx, userID, sessionID, sum); err != nil {
		return nil, err
	}
	return &SummariesResult{
		SessionID:   sessionID,
		BlueSummary: sum.BlueSummary,
		RedSummary:  sum.RedSummary,
		Reflection:  sum.Reflection,
	}, nil
}

func (s *SessionService) summarizeAndEmbed(ctx context.Context, sessionID, which, prompt, placeholder string) (string, []float32) {
	text, err := s.gen.Generate(ctx, llm.Request{Prompt: prompt})
	if err != nil || strings.TrimSpace(text) == "" {
		s.log.Warn().Err(err).Str("sessionId", sessionID).Str("summary", which).Msg("summary generation failed")
		return placeholder, nil
	}
	vec, err := s.emb.Embed(ctx, text)
	if err != nil {
		s.log.Warn().Err(err).Str("sessionId", sessionID).Str("summary", which).Msg("summary embedding failed")
		return text, nil
	}
	return text, vec
}

func (s *SessionService) appendSessionMessage(ctx context.Context, sess *model.Session, role model.ChatRole, perspective model.ChairPerspective, text string) error {
	msg := &model.SessionMessage{
		ID:          uuid.New().String(),
		SessionID:   sess.SessionID,
		UserID:      sess.UserID,
		Role:        role,
		Perspective: perspective,
		Phase:       sess.Phase,
		Text:        text,
		Timestamp:   time.Now().UTC(),
	}
	_, err := s.store.SessionMessages().Append(ctx, msg)
	return err
}
