// Package engine orchestrates one conversation turn: classify the inbound
// message, extract and merge intelligence, update persistent state atomically,
// and select the next engagement move.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/BTreeMap/ScamPipe/internal/classify"
	"github.com/BTreeMap/ScamPipe/internal/engage"
	"github.com/BTreeMap/ScamPipe/internal/extract"
	"github.com/BTreeMap/ScamPipe/internal/metrics"
	"github.com/BTreeMap/ScamPipe/internal/models"
	"github.com/BTreeMap/ScamPipe/internal/store"
)

// DefaultRiskAlpha is the EMA smoothing factor for the conversation risk
// score: new = alpha*turn_score + (1-alpha)*old.
const DefaultRiskAlpha = 0.5

// Opts holds configuration options for the engine.
type Opts struct {
	Store      store.Store
	Classifier *classify.Classifier
	Selector   *engage.Selector
	Metrics    *metrics.Metrics
	RiskAlpha  float64
}

// Option defines a configuration option for the engine.
type Option func(*Opts)

// WithStore sets the conversation state store.
func WithStore(s store.Store) Option {
	return func(o *Opts) { o.Store = s }
}

// WithClassifier sets the message classifier.
func WithClassifier(c *classify.Classifier) Option {
	return func(o *Opts) { o.Classifier = c }
}

// WithSelector sets the engagement strategy selector.
func WithSelector(s *engage.Selector) Option {
	return func(o *Opts) { o.Selector = s }
}

// WithMetrics wires Prometheus instrumentation. Nil disables it.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Opts) { o.Metrics = m }
}

// WithRiskAlpha sets the EMA smoothing factor for the risk score.
func WithRiskAlpha(alpha float64) Option {
	return func(o *Opts) { o.RiskAlpha = alpha }
}

// Engine is the per-turn orchestrator.
type Engine struct {
	store      store.Store
	classifier *classify.Classifier
	selector   *engage.Selector
	pipeline   *extract.Pipeline
	metrics    *metrics.Metrics
	riskAlpha  float64
}

// New creates an engine. Missing collaborators get defaults: an in-memory
// store, a heuristic-only classifier, and a default-policy selector.
func New(opts ...Option) *Engine {
	cfg := Opts{RiskAlpha: DefaultRiskAlpha}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Store == nil {
		cfg.Store = store.NewInMemoryStore()
	}
	if cfg.Classifier == nil {
		cfg.Classifier = classify.New()
	}
	if cfg.Selector == nil {
		cfg.Selector = engage.NewSelector()
	}
	if cfg.RiskAlpha <= 0 || cfg.RiskAlpha > 1 {
		cfg.RiskAlpha = DefaultRiskAlpha
	}
	return &Engine{
		store:      cfg.Store,
		classifier: cfg.Classifier,
		selector:   cfg.Selector,
		pipeline:   extract.NewPipeline(),
		metrics:    cfg.Metrics,
		riskAlpha:  cfg.RiskAlpha,
	}
}

// NewConversationID generates a fresh conversation identifier.
func NewConversationID() string {
	return "conv_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// ProcessTurn runs one inbound message through the full turn pipeline and
// returns the engagement directive for the caller to act on. When
// conversationID is empty a new conversation is created and its generated id
// returned in the directive.
func (e *Engine) ProcessTurn(ctx context.Context, conversationID, rawMessage string) (*models.TurnResult, error) {
	message, ok := models.NormalizeMessage(rawMessage)
	if !ok {
		e.metrics.ObserveTurnError("invalid_input")
		return nil, fmt.Errorf("engine: empty message: %w", models.ErrInvalidInput)
	}
	if conversationID == "" {
		conversationID = NewConversationID()
		slog.Debug("Engine.ProcessTurn: new conversation", "conversation_id", conversationID)
	}

	state, err := e.store.GetOrCreate(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if state.Status == models.StatusTerminated {
		e.metrics.ObserveTurnError("conflicting_state")
		return nil, fmt.Errorf("engine: conversation %s is terminated: %w", conversationID, models.ErrConflictingState)
	}

	classifyStart := time.Now()
	classification, err := e.classifier.Classify(ctx, message, state)
	e.metrics.ObserveClassifyDuration(time.Since(classifyStart).Seconds())
	if err != nil {
		if errors.Is(err, models.ErrInvalidInput) {
			e.metrics.ObserveTurnError("invalid_input")
			return nil, err
		}
		e.metrics.ObserveTurnError("classification_unavailable")
		return nil, fmt.Errorf("engine: classifier failed: %w: %w", models.ErrClassificationUnavailable, err)
	}

	artifacts := e.pipeline.Extract(message)
	for _, tactic := range classification.Tactics {
		artifacts = append(artifacts, models.Artifact{Kind: models.ArtifactTactic, Value: tactic})
	}

	var fresh []models.Artifact
	now := time.Now().UTC()
	updated, err := e.store.Update(ctx, conversationID, func(s *models.ConversationState) error {
		fresh = extract.Merge(s, artifacts)
		s.RiskScore = e.riskAlpha*classification.ScamScore + (1-e.riskAlpha)*s.RiskScore
		if e.selector.IsLowRisk(classification.ScamScore) && len(fresh) == 0 {
			s.LowRiskStreak++
		} else {
			s.LowRiskStreak = 0
		}
		s.TurnCount++
		s.LastActivityAt = now
		if classification.ScamType != models.ScamTypeUnknown {
			s.ScamType = classification.ScamType
		}
		if s.PersonaName == "" {
			s.PersonaName = engage.PersonaForScamType(s.ScamType).Name
		}
		s.Transcript = append(s.Transcript, models.TranscriptEntry{Role: "scammer", Body: message, Timestamp: now})
		return nil
	})
	if err != nil {
		if errors.Is(err, models.ErrConflictingState) {
			e.metrics.ObserveTurnError("conflicting_state")
		}
		return nil, err
	}

	for _, a := range fresh {
		e.metrics.ObserveArtifact(string(a.Kind))
	}

	directive := e.selector.SelectAction(updated, classification, fresh)

	result := &models.TurnResult{
		Directive:      directive,
		Classification: classification,
		NewArtifacts:   fresh,
		State:          updated,
	}
	if err := e.applyDirective(ctx, result); err != nil {
		return nil, err
	}

	e.metrics.ObserveTurn(string(result.Directive.Action), classification.ScamScore)
	slog.Info("Engine.ProcessTurn: turn processed",
		"conversation_id", conversationID,
		"turn_count", result.State.TurnCount,
		"action", result.Directive.Action,
		"scam_score", classification.ScamScore,
		"risk_score", result.State.RiskScore,
		"new_artifacts", len(fresh))
	return result, nil
}

// applyDirective persists the status change the directive implies. When the
// implied transition violates the status machine the engine corrects the
// directive to the nearest valid wind-down and flags the turn.
func (e *Engine) applyDirective(ctx context.Context, result *models.TurnResult) error {
	state := result.State
	desired := state.Status
	if result.Directive.Action == models.ActionDisengage {
		desired = models.StatusDisengaging
	}

	if !models.ValidStatusTransition(state.Status, desired) {
		slog.Warn("Engine.applyDirective: invalid status transition corrected",
			"conversation_id", state.ConversationID,
			"from", state.Status, "to", desired,
			"error", models.ErrStateTransitionCorrected)
		e.metrics.ObserveTurnError("state_transition_corrected")
		desired = models.StatusDisengaging
		result.Directive.Action = models.ActionDisengage
		result.Corrected = true
	}
	// A conversation already winding down never climbs back to ACTIVE; any
	// non-disengage pick at that point is corrected too.
	if state.Status == models.StatusDisengaging && result.Directive.Action != models.ActionDisengage {
		slog.Warn("Engine.applyDirective: non-disengage action during wind-down corrected",
			"conversation_id", state.ConversationID,
			"action", result.Directive.Action,
			"error", models.ErrStateTransitionCorrected)
		e.metrics.ObserveTurnError("state_transition_corrected")
		result.Directive.Action = models.ActionDisengage
		result.Corrected = true
		desired = models.StatusDisengaging
	}

	if desired == state.Status {
		return nil
	}
	updated, err := e.store.Update(ctx, state.ConversationID, func(s *models.ConversationState) error {
		s.Status = desired
		return nil
	})
	if err != nil {
		return fmt.Errorf("engine: failed to persist status %s: %w", desired, err)
	}
	result.State = updated
	return nil
}

// RecordReply appends the persona's outbound reply to the transcript and
// finishes the wind-down: a DISENGAGING conversation transitions to
// TERMINATED once its final reply is recorded.
func (e *Engine) RecordReply(ctx context.Context, conversationID, reply string) (*models.ConversationState, error) {
	now := time.Now().UTC()
	return e.store.Update(ctx, conversationID, func(s *models.ConversationState) error {
		if reply != "" {
			s.Transcript = append(s.Transcript, models.TranscriptEntry{Role: "persona", Body: reply, Timestamp: now})
		}
		if s.Status == models.StatusDisengaging {
			s.Status = models.StatusTerminated
			slog.Info("Engine.RecordReply: conversation terminated after farewell", "conversation_id", conversationID)
		}
		s.LastActivityAt = now
		return nil
	})
}

// Terminate closes a conversation immediately, bypassing the wind-down. Used
// for idle timeouts and operator action. Terminating a TERMINATED
// conversation is a no-op.
func (e *Engine) Terminate(ctx context.Context, conversationID string) (*models.ConversationState, error) {
	state, err := e.store.Update(ctx, conversationID, func(s *models.ConversationState) error {
		s.Status = models.StatusTerminated
		return nil
	})
	if errors.Is(err, models.ErrConflictingState) {
		return e.store.Get(ctx, conversationID)
	}
	if err != nil {
		return nil, err
	}
	slog.Info("Engine.Terminate: conversation terminated", "conversation_id", conversationID)
	return state, nil
}

// Conversation returns the current state for id.
func (e *Engine) Conversation(ctx context.Context, id string) (*models.ConversationState, error) {
	return e.store.Get(ctx, id)
}

// Conversations lists all conversation records.
func (e *Engine) Conversations(ctx context.Context) ([]*models.ConversationState, error) {
	states, err := e.store.List(ctx)
	if err != nil {
		return nil, err
	}
	live := 0
	for _, s := range states {
		if s.Status != models.StatusTerminated {
			live++
		}
	}
	e.metrics.SetActiveConversations(live)
	return states, nil
}
