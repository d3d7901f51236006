package services

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/Love-M-365/Clario/internal/store"
)

// onboardingKeys are the profile fields collected during onboarding, in the
// order they are asked. onboardingQuestions[i] is the prompt whose answer is
// stored under onboardingKeys[i].
var onboardingKeys = []string{
	"name",
	"age",
	"gender",
	"mood_scale",
	"stress_status",
	"therapy_history",
	"main_goal",
	"life_areas",
	"important_people",
	"track_interactions",
	"sleep_hours",
	"exercise_habit",
	"self_care_habits",
	"check_in_if_low",
	"trusted_person",
	"conversation_length_pref",
	"no_talk_topics",
}

var onboardingQuestions = []string{
	"Hi there! I'm Clario, your companion. Before we start, I'd love to get to know you a little. What should I call you?",
	"Nice to meet you! How old are you?",
	"What gender do you identify as?",
	"On a scale of 1-10, how would you rate your overall mood lately?",
	"How stressed have you been feeling recently?",
	"Have you ever spoken with a therapist or counselor before?",
	"What's the main thing you'd like to work on together?",
	"Which areas of your life feel most affected right now (work, family, relationships, health)?",
	"Who are the most important people in your life?",
	"Would you like me to keep track of how your interactions with people go?",
	"How many hours of sleep do you usually get?",
	"Do you exercise regularly?",
	"What do you currently do to take care of yourself?",
	"If I notice you seem low, would you like me to check in on you?",
	"Is there someone you trust that you can lean on when things get hard?",
	"Do you prefer short check-ins or longer conversations?",
	"Lastly, are there any topics you'd rather not talk about?",
}

// OnboardingStatus tells the caller whether the questionnaire is finished.
type OnboardingStatus string

const (
	OnboardingInProgress OnboardingStatus = "in_progress"
	OnboardingDone       OnboardingStatus = "complete"
)

// OnboardingResult is the outcome of one onboarding turn.
type OnboardingResult struct {
	Status   OnboardingStatus
	Question string
	Message  string
}

const onboardingCompleteMessage = "That's everything I need, thank you for sharing! I'm here whenever you want to talk."

// OnboardingService walks a user through the intake questionnaire one answer
// at a time, keeping an explicit cursor in the profile so progress survives
// restarts and repeated requests.
type OnboardingService struct {
	store store.Store
	log   zerolog.Logger
}

func NewOnboardingService(st store.Store, log zerolog.Logger) *OnboardingService {
	return &OnboardingService{store: st, log: log.With().Str("service", "onboarding").Logger()}
}

// Advance records answer (if non-empty) against the question at the profile's
// cursor and returns either the next question or a completion message.
// Completion is monotonic: once a profile is complete it never reverts.
func (s *OnboardingService) Advance(ctx context.Context, userID, answer string) (*OnboardingResult, error) {
	profile, err := s.store.Profiles().Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if profile.OnboardingComplete {
		return &OnboardingResult{Status: OnboardingDone, Message: onboardingCompleteMessage}, nil
	}

	answer = strings.TrimSpace(answer)
	if answer != "" {
		if profile.NextIndex < len(onboardingKeys) {
			if profile.Answers == nil {
				profile.Answers = make(map[string]string)
			}
			profile.Answers[onboardingKeys[profile.NextIndex]] = answer
			profile.NextIndex++
		}
		if profile.NextIndex >= len(onboardingKeys) {
			profile.OnboardingComplete = true
		}
		if err := s.store.Profiles().Put(ctx, profile); err != nil {
			return nil, err
		}
	}

	if profile.OnboardingComplete {
		s.log.Info().Str("userId", userID).Msg("onboarding complete")
		return &OnboardingResult{Status: OnboardingDone, Message: onboardingCompleteMessage}, nil
	}
	return &OnboardingResult{
		Status:   OnboardingInProgress,
		Question: onboardingQuestions[profile.NextIndex],
	}, nil
}
