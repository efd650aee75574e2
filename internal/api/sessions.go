package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/querypilot/querypilot/internal/convo"
	"github.com/querypilot/querypilot/internal/pipeline"
)

type askRequest struct {
	Question string `json:"question"`
}

type askResponse struct {
	SessionID string          `json:"session_id"`
	Answer    pipeline.Answer `json:"answer"`
}

func handleStartSession(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Sessions == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "SESSIONS_NOT_CONFIGURED", "session manager is not configured", false, nil)
		return
	}
	session := deps.Sessions.StartSession()
	writeJSON(w, http.StatusCreated, map[string]any{"session_id": session.ID()})
}

func handleEndSession(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Sessions == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "SESSIONS_NOT_CONFIGURED", "session manager is not configured", false, nil)
		return
	}
	sessionID := r.PathValue("id")
	if err := deps.Sessions.EndSession(sessionID); err != nil {
		if errors.Is(err, convo.ErrSessionNotFound) {
			writeError(r.Context(), w, http.StatusNotFound, "SESSION_NOT_FOUND", "session was not found", false, nil)
			return
		}
		writeError(r.Context(), w, http.StatusInternalServerError, "SESSION_ERROR", err.Error(), true, nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func handleAsk(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Pipeline == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "PIPELINE_NOT_CONFIGURED", "pipeline is not configured", false, nil)
		return
	}

	var request askRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid ask request body", false, map[string]any{"details": err.Error()})
		return
	}
	if strings.TrimSpace(request.Question) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "QUESTION_REQUIRED", "question is required", false, nil)
		return
	}

	sessionID := r.PathValue("id")
	outcome, err := deps.Pipeline.Answer(r.Context(), sessionID, request.Question)
	if err != nil {
		handleAskError(r.Context(), w, err)
		return
	}

	if outcome.Failure != nil {
		writeTurnFailure(r.Context(), w, outcome.Failure)
		return
	}
	writeJSON(w, http.StatusOK, askResponse{
		SessionID: sessionID,
		Answer:    *outcome.Answer,
	})
}

func handleAskError(ctx context.Context, w http.ResponseWriter, err error) {
	if errors.Is(err, convo.ErrSessionNotFound) {
		writeError(ctx, w, http.StatusNotFound, "SESSION_NOT_FOUND", "session was not found", false, nil)
		return
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		writeError(ctx, w, http.StatusServiceUnavailable, "REQUEST_CANCELLED", "request was cancelled before the turn resolved", true, nil)
		return
	}
	writeError(ctx, w, http.StatusInternalServerError, "PIPELINE_ERROR", err.Error(), true, nil)
}

// writeTurnFailure maps terminal pipeline failures onto the error
// envelope. The three kinds stay distinct so callers can tell a bad
// question from a sick backend.
func writeTurnFailure(ctx context.Context, w http.ResponseWriter, failure *pipeline.TurnFailure) {
	extra := map[string]any{"details": failure.Detail}
	switch failure.Kind {
	case pipeline.TerminalExhaustedRetries:
		writeError(ctx, w, http.StatusUnprocessableEntity, "EXHAUSTED_RETRIES", failure.UserMessage, false, extra)
	case pipeline.TerminalSynthUnavailable:
		writeError(ctx, w, http.StatusServiceUnavailable, "SYNTH_UNAVAILABLE", failure.UserMessage, true, extra)
	case pipeline.TerminalStoreUnavailable:
		writeError(ctx, w, http.StatusServiceUnavailable, "STORE_UNAVAILABLE", failure.UserMessage, true, extra)
	default:
		writeError(ctx, w, http.StatusInternalServerError, "TURN_FAILED", failure.UserMessage, false, extra)
	}
}
