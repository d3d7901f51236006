package model

import "time"

// ChatRole identifies who authored a chat turn.
type ChatRole string

const (
	RoleUser      ChatRole = "user"
	RoleAssistant ChatRole = "assistant"
)

// ChairPerspective tags Empty-Chair session messages. User turns carry blue
// or red; facilitator replies carry facilitator.
type ChairPerspective string

const (
	PerspectiveBlue        ChairPerspective = "blue"
	PerspectiveRed         ChairPerspective = "red"
	PerspectiveFacilitator ChairPerspective = "facilitator"
)

// SessionPhase is the Empty-Chair session state. Transitions only move
// forward: initial_analysis -> empty_chair_ready. Session end is implicit via
// EndTime presence.
type SessionPhase string

const (
	PhaseInitialAnalysis SessionPhase = "initial_analysis"
	PhaseEmptyChairReady SessionPhase = "empty_chair_ready"
)

// RelationType is the extracted sentiment of a mentioned relationship.
type RelationType string

const (
	RelationConflict RelationType = "conflict"
	RelationPositive RelationType = "positive"
	RelationNeutral  RelationType = "neutral"
)

// ValidRelationType reports whether rt is one of the closed enum values.
func ValidRelationType(rt RelationType) bool {
	switch rt {
	case RelationConflict, RelationPositive, RelationNeutral:
		return true
	}
	return false
}

// UserProfile holds the onboarding questionnaire state for one user.
// Answers are filled strictly in canonical key order; NextIndex is the
// explicit cursor, so answered keys are always a prefix of the key list.
type UserProfile struct {
	UserID             string            `json:"userId"`
	Answers            map[string]string `json:"answers"`
	NextIndex          int               `json:"nextIndex"`
	OnboardingComplete bool              `json:"onboardingComplete"`
}

// ChatMessage is one immutable turn in a user's main chat log.
type ChatMessage struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Role      ChatRole  `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// RelationshipEvent is one append-only history entry on a relationship.
type RelationshipEvent struct {
	Timestamp time.Time    `json:"timestamp"`
	Type      RelationType `json:"type"`
	Message   string       `json:"message"`
}

// RelationshipRecord aggregates mentions of one person, keyed by the
// lower-cased name per user. History grows without bound.
type RelationshipRecord struct {
	UserID              string              `json:"userId"`
	Name                string              `json:"name"`
	LastInteractionTime time.Time           `json:"lastInteractionTime"`
	LastRelationType    RelationType        `json:"lastRelationType"`
	History             []RelationshipEvent `json:"history"`
}

// MoodEntry is a scored piece of free text persisted per user.
type MoodEntry struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	Text        string    `json:"text"`
	Score       float64   `json:"score"`
	Tag         string    `json:"tag"`
	Explanation string    `json:"explanation,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// Session is one Empty-Chair session. Summary fields and embeddings are set
// by the end-of-session summarization and serve as long-term memory for
// future sessions with the same PersonInChair.
type Session struct {
	SessionID     string       `json:"sessionId"`
	UserID        string       `json:"userId"`
	PersonInChair string       `json:"personInChair"`
	UserGoal      string       `json:"userGoal"`
	Phase         SessionPhase `json:"sessionPhase"`
	StartTime     time.Time    `json:"startTime"`
	EndTime       *time.Time   `json:"endTime,omitempty"`

	AnalysisStatement string `json:"analysisStatement,omitempty"`
	RootEmotion       string `json:"rootEmotion,omitempty"`
	CauseOfEmotion    string `json:"causeOfEmotion,omitempty"`

	BlueSummary         string    `json:"blueSummary,omitempty"`
	RedSummary          string    `json:"redSummary,omitempty"`
	Reflection          string    `json:"overallSessionReflection,omitempty"`
	BlueEmbedding       []float32 `json:"blueSummaryEmbedding,omitempty"`
	RedEmbedding        []float32 `json:"redSummaryEmbedding,omitempty"`
	ReflectionEmbedding []float32 `json:"reflectionEmbedding,omitempty"`
}

// HasSummaries reports whether a past session carries the fields recall
// depends on: the blue embedding marking it summarized and the reflection
// embedding used for ranking. A silent red chair does not disqualify it.
func (s *Session) HasSummaries() bool {
	return len(s.BlueEmbedding) > 0 && len(s.ReflectionEmbedding) > 0
}

// SessionMessage is one immutable message inside a session, tagged with the
// phase it was produced in.
type SessionMessage struct {
	ID          string           `json:"id"`
	SessionID   string           `json:"sessionId"`
	UserID      string           `json:"userId"`
	Role        ChatRole         `json:"role"`
	Perspective ChairPerspective `json:"perspective,omitempty"`
	Phase       SessionPhase     `json:"phase"`
	Text        string           `json:"text"`
	Timestamp   time.Time        `json:"timestamp"`
}

// PreAnalysis holds the parsed outcome of the pre-analysis generation call.
type PreAnalysis struct {
	Statement      string `json:"statement"`
	RootEmotion    string `json:"rootEmotion"`
	CauseOfEmotion string `json:"causeOfEmotion"`
}

// SessionSummaries carries the end-of-session summarization results.
type SessionSummaries struct {
	BlueSummary         string
	RedSummary          string
	Reflection          string
	BlueEmbedding       []float32
	RedEmbedding        []float32
	ReflectionEmbedding []float32
	EndTime             time.Time
}
