// Package models defines the core data structures for ScamPipe.
//
// It includes conversation state, per-turn classification and extraction
// results, and engagement directives, which are shared across modules.
package models

import (
	"strings"
	"time"
)

// ArtifactKind identifies the category of an extracted intelligence artifact.
type ArtifactKind string

const (
	// ArtifactFinancialID covers bank account numbers, payment handles and routing codes.
	ArtifactFinancialID ArtifactKind = "FINANCIAL_ID"
	// ArtifactURL covers normalized web addresses.
	ArtifactURL ArtifactKind = "URL"
	// ArtifactPhone covers digits-only canonical phone numbers.
	ArtifactPhone ArtifactKind = "PHONE"
	// ArtifactEmail covers lower-cased email addresses.
	ArtifactEmail ArtifactKind = "EMAIL"
	// ArtifactNamedEntity covers names and organizations claimed by the correspondent.
	ArtifactNamedEntity ArtifactKind = "NAMED_ENTITY"
	// ArtifactTactic covers social-engineering tactic tags.
	ArtifactTactic ArtifactKind = "TACTIC"
)

// IsValidArtifactKind checks if the given artifact kind is supported.
func IsValidArtifactKind(k ArtifactKind) bool {
	switch k {
	case ArtifactFinancialID, ArtifactURL, ArtifactPhone, ArtifactEmail, ArtifactNamedEntity, ArtifactTactic:
		return true
	default:
		return false
	}
}

// Artifact is a single normalized (kind, value) pair produced by the extractor.
type Artifact struct {
	Kind  ArtifactKind `json:"kind"`
	Value string       `json:"value"`
}

// Entity is a raw classifier match with its character span in the source text.
type Entity struct {
	Kind  ArtifactKind `json:"kind"`
	Value string       `json:"value"`
	Start int          `json:"start"`
	End   int          `json:"end"`
}

// IntentCategory labels the apparent intent of an inbound message.
type IntentCategory string

const (
	IntentRequestInfo    IntentCategory = "REQUEST_INFO"
	IntentRequestPayment IntentCategory = "REQUEST_PAYMENT"
	IntentThreat         IntentCategory = "THREAT"
	IntentSmallTalk      IntentCategory = "SMALL_TALK"
	IntentUnknown        IntentCategory = "UNKNOWN"
)

// ScamType is the classifier's best guess at the fraud family in play.
type ScamType string

const (
	ScamTypeLotteryFraud      ScamType = "lottery_fraud"
	ScamTypeBankImpersonation ScamType = "bank_impersonation"
	ScamTypeGovtImpersonation ScamType = "government_impersonation"
	ScamTypeTechSupport       ScamType = "tech_support_scam"
	ScamTypeAdvanceFee        ScamType = "advance_fee_fraud"
	ScamTypePhishing          ScamType = "phishing"
	ScamTypePaymentAppFraud   ScamType = "payment_app_fraud"
	ScamTypeJobScam           ScamType = "job_scam"
	ScamTypeInvestmentScam    ScamType = "investment_scam"
	ScamTypeRomanceScam       ScamType = "romance_scam"
	ScamTypeDeliveryScam      ScamType = "delivery_scam"
	ScamTypeUnknown           ScamType = "unknown"
)

// ClassificationResult is the ephemeral per-turn output of the classifier.
type ClassificationResult struct {
	ScamScore         float64             `json:"scam_score"` // bounded [0,1]
	Intent            IntentCategory      `json:"intent"`
	ScamType          ScamType            `json:"scam_type"`
	Tactics           []string            `json:"tactics,omitempty"`
	RawEntities       []Entity            `json:"raw_entities,omitempty"`
	KeywordMatches    map[string][]string `json:"keyword_matches,omitempty"`
	HeuristicTriggers []string            `json:"heuristic_triggers,omitempty"`
	ModelAssisted     bool                `json:"model_assisted"` // false when the model signal was unavailable
}

// EngagementAction is the next move the strategy selector picked.
type EngagementAction string

const (
	// ActionContinue keeps the conversation moving without a specific agenda.
	ActionContinue EngagementAction = "CONTINUE"
	// ActionProbe deepens engagement to pull more intelligence out.
	ActionProbe EngagementAction = "PROBE"
	// ActionStall buys time with vague, slow responses.
	ActionStall EngagementAction = "STALL"
	// ActionDisengage winds the conversation down.
	ActionDisengage EngagementAction = "DISENGAGE"
)

// EngagementDirective is the engine's per-turn decision handed to the caller.
type EngagementDirective struct {
	Action              EngagementAction `json:"action"`
	PersonaHint         string           `json:"persona_hint"`
	TerminateAfterReply bool             `json:"terminate_after_reply"`
	ConversationID      string           `json:"conversation_id"`
}

// TurnResult bundles the directive with per-turn observability data.
type TurnResult struct {
	Directive      EngagementDirective  `json:"directive"`
	Classification ClassificationResult `json:"classification"`
	NewArtifacts   []Artifact           `json:"new_artifacts,omitempty"`
	State          *ConversationState   `json:"state,omitempty"`
	// Corrected is true when the selector proposed an invalid status
	// transition and the engine snapped it to the nearest valid state.
	Corrected bool `json:"corrected,omitempty"`
}

// TranscriptEntry is a single message in the conversation history.
type TranscriptEntry struct {
	Role      string    `json:"role"` // "scammer" or "persona"
	Body      string    `json:"body"`
	Timestamp time.Time `json:"timestamp"`
}

// NormalizeMessage trims an inbound message and reports whether anything is left.
func NormalizeMessage(raw string) (string, bool) {
	trimmed := strings.TrimSpace(raw)
	return trimmed, trimmed != ""
}
