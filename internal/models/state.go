// Package models defines conversation state structures for ScamPipe.
package models

import "time"

// ConversationStatus represents the lifecycle stage of a conversation.
type ConversationStatus string

const (
	// StatusActive means the conversation is being engaged normally.
	StatusActive ConversationStatus = "ACTIVE"
	// StatusDisengaging means a wind-down was decided; one further reply may be sent.
	StatusDisengaging ConversationStatus = "DISENGAGING"
	// StatusTerminated means the conversation is closed; further mutation is rejected.
	StatusTerminated ConversationStatus = "TERMINATED"
)

// ValidStatusTransition reports whether moving from one status to another is
// allowed. The machine only moves forward: ACTIVE -> DISENGAGING ->
// TERMINATED, or ACTIVE -> TERMINATED for hard cutoffs. Self transitions are
// allowed (a turn that does not change status).
func ValidStatusTransition(from, to ConversationStatus) bool {
	if from == to {
		return from != ""
	}
	switch from {
	case StatusActive:
		return to == StatusDisengaging || to == StatusTerminated
	case StatusDisengaging:
		return to == StatusTerminated
	default:
		return false
	}
}

// ConversationState is the single persistent record per conversation.
// It is mutated exclusively through the store's atomic Update.
type ConversationState struct {
	ConversationID string                    `json:"conversation_id"`
	TurnCount      int                       `json:"turn_count"`
	Status         ConversationStatus        `json:"status"`
	RiskScore      float64                   `json:"risk_score"` // EMA of per-turn scam scores, [0,1]
	Intelligence   map[ArtifactKind][]string `json:"intelligence,omitempty"`
	// LowRiskStreak counts consecutive turns with a low scam score and no
	// newly captured intelligence; the selector disengages past a threshold.
	LowRiskStreak  int               `json:"low_risk_streak"`
	PersonaName    string            `json:"persona_name,omitempty"`
	ScamType       ScamType          `json:"scam_type,omitempty"`
	Transcript     []TranscriptEntry `json:"transcript,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	LastActivityAt time.Time         `json:"last_activity_at"`
}

// NewConversationState creates a fresh ACTIVE record for the given id.
func NewConversationState(id string, now time.Time) *ConversationState {
	return &ConversationState{
		ConversationID: id,
		Status:         StatusActive,
		Intelligence:   make(map[ArtifactKind][]string),
		CreatedAt:      now,
		LastActivityAt: now,
	}
}

// HasArtifact reports whether the given value is already recorded under kind.
func (s *ConversationState) HasArtifact(kind ArtifactKind, value string) bool {
	for _, v := range s.Intelligence[kind] {
		if v == value {
			return true
		}
	}
	return false
}

// AddArtifact records a normalized artifact value, enforcing uniqueness per
// kind. It reports whether the value was actually new.
func (s *ConversationState) AddArtifact(kind ArtifactKind, value string) bool {
	if value == "" || s.HasArtifact(kind, value) {
		return false
	}
	if s.Intelligence == nil {
		s.Intelligence = make(map[ArtifactKind][]string)
	}
	s.Intelligence[kind] = append(s.Intelligence[kind], value)
	return true
}

// ArtifactCount returns the total number of recorded artifact values.
func (s *ConversationState) ArtifactCount() int {
	total := 0
	for _, values := range s.Intelligence {
		total += len(values)
	}
	return total
}

// RecentTranscript returns up to max of the latest transcript entries.
func (s *ConversationState) RecentTranscript(max int) []TranscriptEntry {
	if max <= 0 || len(s.Transcript) <= max {
		return s.Transcript
	}
	return s.Transcript[len(s.Transcript)-max:]
}

// Clone returns a deep copy so callers can hand state across goroutines
// without sharing the intelligence map or transcript slice.
func (s *ConversationState) Clone() *ConversationState {
	if s == nil {
		return nil
	}
	out := *s
	out.Intelligence = make(map[ArtifactKind][]string, len(s.Intelligence))
	for kind, values := range s.Intelligence {
		out.Intelligence[kind] = append([]string(nil), values...)
	}
	out.Transcript = append([]TranscriptEntry(nil), s.Transcript...)
	return &out
}
