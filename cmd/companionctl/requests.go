package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

func postJSON(apiURL, path, token string, payload any, out io.Writer) error {
	body, _ := json.Marshal(payload)
	req, err := http.NewRequest(http.MethodPost, apiURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return do(req, out)
}

func getJSON(apiURL, path, token string, out io.Writer) error {
	req, err := http.NewRequest(http.MethodGet, apiURL+path, nil)
	if err != nil {
		return err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return do(req, out)
}

func do(req *http.Request, out io.Writer) error {
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("http %d: %s", resp.StatusCode, string(data))
	}
	_, err = io.Copy(out, resp.Body)
	return err
}

func runChat(apiURL, token, message string, out io.Writer) error {
	return postJSON(apiURL, "/api/chat", token, map[string]string{"message": message}, out)
}

func runRelations(apiURL, token string, out io.Writer) error {
	return getJSON(apiURL, "/api/relations", token, out)
}

func runMood(apiURL, token, userID, text string, out io.Writer) error {
	if text == "" {
		return fmt.Errorf("text cannot be empty")
	}
	return postJSON(apiURL, "/api/mood", token, map[string]string{"text": text, "userId": userID}, out)
}

func runStartSession(apiURL, userID, person, goal string, out io.Writer) error {
	return postJSON(apiURL, "/api/sessions", "", map[string]string{
		"userId": userID, "personInChair": person, "userGoal": goal,
	}, out)
}

func runAnalyze(apiURL, userID, sessionID, message string, out io.Writer) error {
	if message == "" {
		return fmt.Errorf("message cannot be empty")
	}
	return postJSON(apiURL, "/api/sessions/analyze", "", map[string]string{
		"userId": userID, "sessionId": sessionID, "message": message,
	}, out)
}

func runSessionMessage(apiURL, userID, sessionID, message, perspective string, out io.Writer) error {
	if message == "" {
		return fmt.Errorf("message cannot be empty")
	}
	return postJSON(apiURL, "/api/sessions/messages", "", map[string]string{
		"userId": userID, "sessionId": sessionID, "message": message, "perspective": perspective,
	}, out)
}

func runSummaries(apiURL, userID, sessionID string, out io.Writer) error {
	return postJSON(apiURL, "/api/sessions/summaries", "", map[string]string{
		"userId": userID, "sessionId": sessionID,
	}, out)
}
