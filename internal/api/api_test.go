package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/BTreeMap/ScamPipe/internal/engage"
	"github.com/BTreeMap/ScamPipe/internal/engine"
	"github.com/BTreeMap/ScamPipe/internal/genai"
	"github.com/BTreeMap/ScamPipe/internal/models"
)

// stubGenerator is a canned reply backend for handler tests.
type stubGenerator struct {
	reply string
	err   error
}

func (g stubGenerator) GenerateReply(ctx context.Context, req genai.ReplyRequest) (string, error) {
	return g.reply, g.err
}

// envelope mirrors the standard response wrapper with a raw result payload.
type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

func newTestServer(opts ...Option) *Server {
	eng := engine.New(engine.WithSelector(engage.NewSelector(
		engage.WithMaxTurns(1000),
		engage.WithLowRiskStreak(1000),
	)))
	return NewServer(eng, opts...)
}

func doJSON(t *testing.T, handler http.Handler, method, path, body string, header map[string]string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	var env envelope
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
			t.Fatalf("%s %s: invalid response JSON: %v (body %q)", method, path, err, rec.Body.String())
		}
	}
	return rec, env
}

func engageBody(conversationID, message string) string {
	b, _ := json.Marshal(EngageRequest{ConversationID: conversationID, Message: message})
	return string(b)
}

func TestEngageHappyPath(t *testing.T) {
	handler := newTestServer().Routes()

	rec, env := doJSON(t, handler, http.MethodPost, "/api/v1/engage",
		engageBody("", "Congratulations, you have won the lottery jackpot! Pay the processing fee immediately."), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", rec.Code, rec.Body.String())
	}
	if env.Status != "ok" {
		t.Fatalf("envelope status = %q, want ok", env.Status)
	}

	var resp EngageResponse
	if err := json.Unmarshal(env.Result, &resp); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if !strings.HasPrefix(resp.ConversationID, "conv_") {
		t.Errorf("conversation id = %q, want conv_ prefix", resp.ConversationID)
	}
	if resp.TurnCount != 1 {
		t.Errorf("turn count = %d, want 1", resp.TurnCount)
	}
	if resp.Reply == "" {
		t.Errorf("reply is empty")
	}
	if resp.ReplySource != "template" {
		t.Errorf("reply source = %q, want template without a generator", resp.ReplySource)
	}
	if resp.ScamScore < 0.5 {
		t.Errorf("scam score = %v, want a high score for an obvious scam", resp.ScamScore)
	}
}

func TestEngageGeneratorSources(t *testing.T) {
	body := engageBody("", "Urgent, verify your otp immediately")

	handler := newTestServer(WithGenerator(stubGenerator{reply: "oh dear, which bank did you say?"})).Routes()
	_, env := doJSON(t, handler, http.MethodPost, "/api/v1/engage", body, nil)
	var resp EngageResponse
	if err := json.Unmarshal(env.Result, &resp); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if resp.ReplySource != "model" || resp.Reply != "oh dear, which bank did you say?" {
		t.Errorf("with generator: source %q reply %q, want model reply", resp.ReplySource, resp.Reply)
	}

	failing := stubGenerator{err: fmt.Errorf("backend: %w", models.ErrGenerationUnavailable)}
	handler = newTestServer(WithGenerator(failing)).Routes()
	_, env = doJSON(t, handler, http.MethodPost, "/api/v1/engage", body, nil)
	if err := json.Unmarshal(env.Result, &resp); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if resp.ReplySource != "template" || resp.Reply == "" {
		t.Errorf("with failing generator: source %q reply %q, want template fallback", resp.ReplySource, resp.Reply)
	}
}

func TestEngageBadRequests(t *testing.T) {
	handler := newTestServer().Routes()

	rec, env := doJSON(t, handler, http.MethodPost, "/api/v1/engage", "{not json", nil)
	if rec.Code != http.StatusBadRequest || env.Status != "error" {
		t.Errorf("invalid JSON: status = %d envelope %q, want 400 error", rec.Code, env.Status)
	}

	rec, env = doJSON(t, handler, http.MethodPost, "/api/v1/engage", engageBody("", "   "), nil)
	if rec.Code != http.StatusBadRequest || env.Status != "error" {
		t.Errorf("empty message: status = %d envelope %q, want 400 error", rec.Code, env.Status)
	}

	rec, _ = doJSON(t, handler, http.MethodGet, "/api/v1/engage", "", nil)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET engage: status = %d, want 405", rec.Code)
	}
}

func TestAPIKeyAuth(t *testing.T) {
	handler := newTestServer(WithAPIKey("sesame")).Routes()
	body := engageBody("", "hello")

	rec, env := doJSON(t, handler, http.MethodPost, "/api/v1/engage", body, nil)
	if rec.Code != http.StatusUnauthorized || env.Status != "error" {
		t.Errorf("missing key: status = %d, want 401", rec.Code)
	}

	rec, _ = doJSON(t, handler, http.MethodPost, "/api/v1/engage", body, map[string]string{"X-API-Key": "wrong"})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong key: status = %d, want 401", rec.Code)
	}

	rec, _ = doJSON(t, handler, http.MethodPost, "/api/v1/engage", body, map[string]string{"X-API-Key": "sesame"})
	if rec.Code != http.StatusOK {
		t.Errorf("correct key: status = %d, want 200", rec.Code)
	}

	// Health stays open regardless of the key.
	rec, _ = doJSON(t, handler, http.MethodGet, "/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("health: status = %d, want 200", rec.Code)
	}
}

func TestConversationLifecycle(t *testing.T) {
	handler := newTestServer().Routes()

	_, env := doJSON(t, handler, http.MethodPost, "/api/v1/engage", engageBody("conv_life", "call me at 555-123-4567"), nil)
	var resp EngageResponse
	if err := json.Unmarshal(env.Result, &resp); err != nil {
		t.Fatalf("decode engage result: %v", err)
	}

	rec, env := doJSON(t, handler, http.MethodGet, "/api/v1/conversations/conv_life", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET conversation: status = %d", rec.Code)
	}
	var state models.ConversationState
	if err := json.Unmarshal(env.Result, &state); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if got := state.Intelligence[models.ArtifactPhone]; len(got) != 1 || got[0] != "5551234567" {
		t.Errorf("intelligence PHONE = %v, want the captured number", got)
	}

	rec, _ = doJSON(t, handler, http.MethodGet, "/api/v1/conversations", "", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("list conversations: status = %d, want 200", rec.Code)
	}

	rec, _ = doJSON(t, handler, http.MethodDelete, "/api/v1/conversations/conv_life", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("DELETE conversation: status = %d", rec.Code)
	}

	rec, _ = doJSON(t, handler, http.MethodPost, "/api/v1/engage", engageBody("conv_life", "are you still there"), nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("engage terminated conversation: status = %d, want 409", rec.Code)
	}
}

func TestConversationErrors(t *testing.T) {
	handler := newTestServer().Routes()

	rec, _ := doJSON(t, handler, http.MethodGet, "/api/v1/conversations/conv_missing", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("GET unknown: status = %d, want 404", rec.Code)
	}

	rec, _ = doJSON(t, handler, http.MethodGet, "/api/v1/conversations/", "", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("GET empty id: status = %d, want 400", rec.Code)
	}

	rec, _ = doJSON(t, handler, http.MethodPut, "/api/v1/conversations/conv_x", "", nil)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("PUT conversation: status = %d, want 405", rec.Code)
	}
}

func TestExtraRoutesBypassAuth(t *testing.T) {
	hit := false
	handler := newTestServer(
		WithAPIKey("sesame"),
		WithRoute("/webhook/test", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hit = true
			w.WriteHeader(http.StatusOK)
		})),
	).Routes()

	rec, _ := doJSON(t, handler, http.MethodPost, "/webhook/test", "From=x&Body=y", nil)
	if rec.Code != http.StatusOK || !hit {
		t.Errorf("extra route: status = %d hit = %v, want 200 without API key", rec.Code, hit)
	}
}

func TestWriteEngineErrorMapping(t *testing.T) {
	s := newTestServer()
	tests := []struct {
		err  error
		want int
	}{
		{models.ErrInvalidInput, http.StatusBadRequest},
		{models.ErrConversationNotFound, http.StatusNotFound},
		{models.ErrConflictingState, http.StatusConflict},
		{models.ErrClassificationUnavailable, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range tests {
		rec := httptest.NewRecorder()
		s.writeEngineError(rec, fmt.Errorf("wrapped: %w", tc.err))
		if rec.Code != tc.want {
			t.Errorf("writeEngineError(%v) = %d, want %d", tc.err, rec.Code, tc.want)
		}
	}
}
