// Package api provides HTTP handlers for ScamPipe endpoints.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/BTreeMap/ScamPipe/internal/genai"
	"github.com/BTreeMap/ScamPipe/internal/models"
)

// transcriptExcerptSize bounds how much history is handed to the generator.
const transcriptExcerptSize = 12

// EngageRequest is the POST /api/v1/engage payload.
type EngageRequest struct {
	ConversationID string `json:"conversation_id,omitempty"`
	Message        string `json:"message"`
}

// EngageResponse is the engagement decision plus the generated persona reply.
type EngageResponse struct {
	ConversationID      string           `json:"conversation_id"`
	Action              string           `json:"action"`
	Reply               string           `json:"reply"`
	TerminateAfterReply bool             `json:"terminate_after_reply"`
	ScamScore           float64          `json:"scam_score"`
	Intent              string           `json:"intent"`
	ScamType            string           `json:"scam_type"`
	TurnCount           int              `json:"turn_count"`
	Status              string           `json:"status"`
	NewArtifacts        []models.Artifact `json:"new_artifacts,omitempty"`
	ReplySource         string           `json:"reply_source"` // model or template
	Corrected           bool             `json:"corrected,omitempty"`
}

// engageHandler handles POST /api/v1/engage: one inbound scammer message in,
// one persona reply and directive out.
func (s *Server) engageHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		slog.Warn("Server.engageHandler: method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req EngageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.engageHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}

	result, err := s.engine.ProcessTurn(r.Context(), req.ConversationID, req.Message)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	reply, source := s.generateReply(r, result)
	if _, err := s.engine.RecordReply(r.Context(), result.Directive.ConversationID, reply); err != nil {
		slog.Error("Server.engageHandler: failed to record reply", "error", err, "conversation_id", result.Directive.ConversationID)
	}

	resp := EngageResponse{
		ConversationID:      result.Directive.ConversationID,
		Action:              string(result.Directive.Action),
		Reply:               reply,
		TerminateAfterReply: result.Directive.TerminateAfterReply,
		ScamScore:           result.Classification.ScamScore,
		Intent:              string(result.Classification.Intent),
		ScamType:            string(result.Classification.ScamType),
		TurnCount:           result.State.TurnCount,
		Status:              string(result.State.Status),
		NewArtifacts:        result.NewArtifacts,
		ReplySource:         source,
		Corrected:           result.Corrected,
	}
	writeJSONResponse(w, http.StatusOK, models.Success(resp))
}

// generateReply asks the model backend for the persona reply, falling back to
// templates when it is unavailable.
func (s *Server) generateReply(r *http.Request, result *models.TurnResult) (reply, source string) {
	state := result.State
	if s.generator != nil {
		text, err := s.generator.GenerateReply(r.Context(), genai.ReplyRequest{
			PersonaHint:  result.Directive.PersonaHint,
			Transcript:   state.RecentTranscript(transcriptExcerptSize),
			Intelligence: state.Intelligence,
		})
		if err == nil {
			return text, "model"
		}
		slog.Warn("Server.generateReply: generation unavailable, using template",
			"error", err, "conversation_id", state.ConversationID)
	}

	lastMessage := ""
	if n := len(state.Transcript); n > 0 {
		lastMessage = state.Transcript[n-1].Body
	}
	return genai.FallbackReply(state.PersonaName, state.TurnCount, lastMessage, result.Directive.Action), "template"
}

// conversationsHandler handles GET /api/v1/conversations.
func (s *Server) conversationsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	states, err := s.engine.Conversations(r.Context())
	if err != nil {
		slog.Error("Server.conversationsHandler: list failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to list conversations"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(states))
}

// conversationHandler handles GET and DELETE on /api/v1/conversations/{id}.
// DELETE terminates the conversation immediately.
func (s *Server) conversationHandler(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/v1/conversations/")
	if id == "" || strings.Contains(id, "/") {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid conversation id"))
		return
	}

	switch r.Method {
	case http.MethodGet:
		state, err := s.engine.Conversation(r.Context(), id)
		if err != nil {
			s.writeEngineError(w, err)
			return
		}
		writeJSONResponse(w, http.StatusOK, models.Success(state))
	case http.MethodDelete:
		state, err := s.engine.Terminate(r.Context(), id)
		if err != nil {
			s.writeEngineError(w, err)
			return
		}
		slog.Info("Server.conversationHandler: conversation terminated by operator", "conversation_id", id)
		writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Conversation terminated", state))
	default:
		w.Header().Set("Allow", "GET, DELETE")
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// writeEngineError maps engine error kinds onto HTTP statuses.
func (s *Server) writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrInvalidInput):
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
	case errors.Is(err, models.ErrConversationNotFound):
		writeJSONResponse(w, http.StatusNotFound, models.Error("Conversation not found"))
	case errors.Is(err, models.ErrConflictingState):
		writeJSONResponse(w, http.StatusConflict, models.Error("Conversation is terminated"))
	case errors.Is(err, models.ErrClassificationUnavailable):
		slog.Error("Server.writeEngineError: classification unavailable", "error", err)
		writeJSONResponse(w, http.StatusServiceUnavailable, models.Error("Classification temporarily unavailable"))
	default:
		slog.Error("Server.writeEngineError: internal error", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Internal server error"))
	}
}
