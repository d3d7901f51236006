package api

import (
	"encoding/json"
	"net/http"

	"github.com/Love-M-365/Clario/internal/api/respond"
	"github.com/Love-M-365/Clario/internal/model"
)

type chatRequest struct {
	Message string `json:"message"`
}

type chatResponse struct {
	Reply    string `json:"reply,omitempty"`
	Status   string `json:"status,omitempty"`
	Question string `json:"question,omitempty"`
	Message  string `json:"message,omitempty"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.WriteBadRequest(w, "invalid JSON body")
		return
	}

	res, err := s.chat.HandleTurn(r.Context(), userIDFrom(r.Context()), req.Message)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	out := chatResponse{Reply: res.Reply}
	if res.Onboarding != nil {
		out.Status = string(res.Onboarding.Status)
		out.Question = res.Onboarding.Question
		out.Message = res.Onboarding.Message
	}
	respond.WriteJSON(w, http.StatusOK, out)
}

type onboardingRequest struct {
	Answer string `json:"answer"`
}

type onboardingResponse struct {
	Status   string `json:"status"`
	Question string `json:"question,omitempty"`
	Message  string `json:"message,omitempty"`
}

func (s *Server) handleOnboarding(w http.ResponseWriter, r *http.Request) {
	var req onboardingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.WriteBadRequest(w, "invalid JSON body")
		return
	}

	res, err := s.onboarding.Advance(r.Context(), userIDFrom(r.Context()), req.Answer)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, onboardingResponse{
		Status:   string(res.Status),
		Question: res.Question,
		Message:  res.Message,
	})
}

func (s *Server) handleRelations(w http.ResponseWriter, r *http.Request) {
	recs, err := s.relations.List(r.Context(), userIDFrom(r.Context()))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if recs == nil {
		// A user with no relationships gets an empty list, not null.
		recs = []*model.RelationshipRecord{}
	}
	respond.WriteJSON(w, http.StatusOK, map[string]any{"relations": recs})
}

type moodRequest struct {
	Text   string `json:"text"`
	UserID string `json:"userId"`
}

func (s *Server) handleMood(w http.ResponseWriter, r *http.Request) {
	var req moodRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.WriteBadRequest(w, "invalid JSON body")
		return
	}

	// A verified token outranks any userId claimed in the body.
	userID := userIDFrom(r.Context())
	if userID == "" {
		userID = req.UserID
	}
	res := s.moods.Analyze(r.Context(), userID, req.Text)
	respond.WriteJSON(w, http.StatusOK, res)
}
