package engage

import (
	"fmt"
	"log/slog"

	"github.com/BTreeMap/ScamPipe/internal/models"
)

// Defaults for the selector policy.
const (
	// DefaultMaxTurns caps engagement cost per conversation.
	DefaultMaxTurns = 20
	// DefaultLowRiskFloor is the scam score under which a turn counts as low risk.
	DefaultLowRiskFloor = 0.3
	// DefaultLowRiskStreak is how many consecutive low-risk, no-intelligence
	// turns trigger a disengage.
	DefaultLowRiskStreak = 3
)

// Opts holds configuration options for the selector.
type Opts struct {
	MaxTurns      int
	LowRiskFloor  float64
	LowRiskStreak int
}

// Option defines a configuration option for the selector.
type Option func(*Opts)

// WithMaxTurns sets the hard turn cap before forced disengagement.
func WithMaxTurns(n int) Option {
	return func(o *Opts) { o.MaxTurns = n }
}

// WithLowRiskFloor sets the scam-score floor for the low-risk streak counter.
func WithLowRiskFloor(f float64) Option {
	return func(o *Opts) { o.LowRiskFloor = f }
}

// WithLowRiskStreak sets the consecutive low-risk turn count that triggers disengagement.
func WithLowRiskStreak(n int) Option {
	return func(o *Opts) { o.LowRiskStreak = n }
}

// Selector picks the next engagement action from conversation state and the
// current turn's classification. The policy is deterministic so behavior is
// reproducible in tests.
type Selector struct {
	maxTurns      int
	lowRiskFloor  float64
	lowRiskStreak int
}

// NewSelector creates a selector with the given policy options.
func NewSelector(opts ...Option) *Selector {
	cfg := Opts{
		MaxTurns:      DefaultMaxTurns,
		LowRiskFloor:  DefaultLowRiskFloor,
		LowRiskStreak: DefaultLowRiskStreak,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Selector{
		maxTurns:      cfg.MaxTurns,
		lowRiskFloor:  cfg.LowRiskFloor,
		lowRiskStreak: cfg.LowRiskStreak,
	}
}

// IsLowRisk reports whether a per-turn scam score falls under the configured floor.
func (s *Selector) IsLowRisk(score float64) bool {
	return score < s.lowRiskFloor
}

// SelectAction applies the engagement policy:
//
//  1. Past the turn cap: DISENGAGE and terminate after one farewell reply.
//  2. Low-risk streak with no new intelligence: DISENGAGE (the correspondent
//     gave up, or this was never a scam).
//  3. Fresh FINANCIAL_ID or PHONE intelligence while still ACTIVE: PROBE for
//     more (a second payment channel, a supervisor contact).
//  4. Otherwise alternate STALL on even turn counts and CONTINUE on odd ones
//     so the reply cadence has no detectable fixed pattern.
func (s *Selector) SelectAction(state *models.ConversationState, classification models.ClassificationResult, fresh []models.Artifact) models.EngagementDirective {
	directive := models.EngagementDirective{ConversationID: state.ConversationID}

	switch {
	case state.TurnCount > s.maxTurns:
		directive.Action = models.ActionDisengage
		directive.TerminateAfterReply = true
		slog.Info("Selector.SelectAction: turn cap reached", "conversation_id", state.ConversationID, "turn_count", state.TurnCount)
	case state.LowRiskStreak >= s.lowRiskStreak:
		directive.Action = models.ActionDisengage
		slog.Info("Selector.SelectAction: low-risk streak disengage", "conversation_id", state.ConversationID, "streak", state.LowRiskStreak)
	case hasHighValueArtifact(fresh) && state.Status != models.StatusDisengaging:
		directive.Action = models.ActionProbe
	case state.TurnCount%2 == 0:
		directive.Action = models.ActionStall
	default:
		directive.Action = models.ActionContinue
	}

	directive.PersonaHint = s.buildHint(directive.Action, state)
	return directive
}

// hasHighValueArtifact reports whether this turn captured intelligence worth
// probing deeper for.
func hasHighValueArtifact(fresh []models.Artifact) bool {
	for _, a := range fresh {
		if a.Kind == models.ArtifactFinancialID || a.Kind == models.ArtifactPhone {
			return true
		}
	}
	return false
}

// buildHint assembles the generation guidance: persona prompt, stage-based
// extraction focus, and the action-specific instruction.
func (s *Selector) buildHint(action models.EngagementAction, state *models.ConversationState) string {
	persona, ok := PersonaByName(state.PersonaName)
	if !ok {
		persona = PersonaForScamType(state.ScamType)
	}
	return fmt.Sprintf("%s\n\nCONVERSATION TURN: %d\n\n%s\n\n%s\n\nKeep responses natural, 1-3 sentences. Never reveal you are an AI or that you suspect a scam.",
		persona.SystemPrompt, state.TurnCount, stageGuidance(state.TurnCount), actionGuidance(action))
}

// stageGuidance shifts the extraction focus as the conversation matures:
// identity first, contact channels next, then payment details.
func stageGuidance(turnCount int) string {
	switch {
	case turnCount < 2:
		return "Focus on: appearing confused but interested, asking for the caller's name and organization, and requesting more explanation about the situation."
	case turnCount < 4:
		return "Focus on: asking for their contact number or an alternative way to reach them, requesting official documentation or reference numbers, and, if payment is mentioned, asking for bank details to verify legitimacy."
	default:
		return "Focus on: asking for the exact bank account or payment handle, requesting their supervisor's contact, asking for written confirmation before proceeding, and expressing slight hesitation to encourage more persuasion."
	}
}

func actionGuidance(action models.EngagementAction) string {
	switch action {
	case models.ActionProbe:
		return "They just shared valuable details. Ask a natural follow-up that pulls out one more: a second payment option, a direct phone number, or a supervisor's name."
	case models.ActionStall:
		return "Buy time. Be vague and slow: mention being busy, needing to find your glasses or check with someone, and promise to get back to it shortly."
	case models.ActionDisengage:
		return "Wind the conversation down politely without raising suspicion. Give a mundane reason you cannot continue right now and do not commit to anything."
	default:
		return "Keep the conversation moving. Respond in character, show interest, and ask one clarifying question."
	}
}
