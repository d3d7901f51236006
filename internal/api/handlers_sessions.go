package api

import (
	"encoding/json"
	"net/http"

	"github.com/Love-M-365/Clario/internal/api/respond"
	"github.com/Love-M-365/Clario/internal/model"
)

type startSessionRequest struct {
	UserID        string `json:"userId"`
	PersonInChair string `json:"personInChair"`
	UserGoal      string `json:"userGoal"`
}

type startSessionResponse struct {
	SessionID        string `json:"sessionId"`
	InitialAIMessage string `json:"initialAiMessage"`
	SessionPhase     string `json:"sessionPhase"`
}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.WriteBadRequest(w, "invalid JSON body")
		return
	}

	res, err := s.sessions.Start(r.Context(), req.UserID, req.PersonInChair, req.UserGoal)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, startSessionResponse{
		SessionID:        res.SessionID,
		InitialAIMessage: res.InitialAIMessage,
		SessionPhase:     string(res.Phase),
	})
}

type analyzeSessionRequest struct {
	UserID    string `json:"userId"`
	SessionID string `json:"sessionId"`
	Message   string `json:"message"`
}

type analyzeSessionResponse struct {
	SessionID      string `json:"sessionId"`
	AIMessage      string `json:"aiMessage"`
	SessionPhase   string `json:"sessionPhase"`
	RootEmotion    string `json:"rootEmotion,omitempty"`
	CauseOfEmotion string `json:"causeOfEmotion,omitempty"`
}

func (s *Server) handleAnalyzeSession(w http.ResponseWriter, r *http.Request) {
	var req analyzeSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.WriteBadRequest(w, "invalid JSON body")
		return
	}

	res, err := s.sessions.AnalyzeInitialProblem(r.Context(), req.UserID, req.SessionID, req.Message)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, analyzeSessionResponse{
		SessionID:      res.SessionID,
		AIMessage:      res.AIMessage,
		SessionPhase:   string(res.Phase),
		RootEmotion:    res.RootEmotion,
		CauseOfEmotion: res.CauseOfEmotion,
	})
}

type sessionMessageRequest struct {
	UserID      string `json:"userId"`
	SessionID   string `json:"sessionId"`
	Message     string `json:"message"`
	Perspective string `json:"perspective"`
}

type sessionMessageResponse struct {
	SessionID    string `json:"sessionId"`
	AIMessage    string `json:"aiMessage"`
	SessionPhase string `json:"sessionPhase"`
}

func (s *Server) handleSessionMessage(w http.ResponseWriter, r *http.Request) {
	var req sessionMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.WriteBadRequest(w, "invalid JSON body")
		return
	}

	res, err := s.sessions.ProcessMessage(r.Context(), req.UserID, req.SessionID, req.Message, model.ChairPerspective(req.Perspective))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, sessionMessageResponse{
		SessionID:    res.SessionID,
		AIMessage:    res.AIMessage,
		SessionPhase: string(res.Phase),
	})
}

type sessionSummariesRequest struct {
	UserID    string `json:"userId"`
	SessionID string `json:"sessionId"`
}

type sessionSummariesResponse struct {
	SessionID                string `json:"sessionId"`
	BlueSummary              string `json:"blueSummary"`
	RedSummary               string `json:"redSummary"`
	OverallSessionReflection string `json:"overallSessionReflection"`
}

func (s *Server) handleSessionSummaries(w http.ResponseWriter, r *http.Request) {
	var req sessionSummariesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.WriteBadRequest(w, "invalid JSON body")
		return
	}

	res, err := s.sessions.GenerateSummaries(r.Context(), req.UserID, req.SessionID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, sessionSummariesResponse{
		SessionID:                res.SessionID,
		BlueSummary:              res.BlueSummary,
		RedSummary:               res.RedSummary,
		OverallSessionReflection: res.Reflection,
	})
}
