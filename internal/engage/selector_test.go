package engage

import (
	"testing"
	"time"

	"github.com/BTreeMap/ScamPipe/internal/models"
)

func TestSelectActionTurnCap(t *testing.T) {
	sel := NewSelector(WithMaxTurns(5))
	state := models.NewConversationState("conv_a", time.Now())
	state.TurnCount = 6

	got := sel.SelectAction(state, models.ClassificationResult{}, nil)
	if got.Action != models.ActionDisengage {
		t.Errorf("action past turn cap = %s, want DISENGAGE", got.Action)
	}
	if !got.TerminateAfterReply {
		t.Errorf("TerminateAfterReply = false past turn cap, want true")
	}
}

// TestSelectActionLowRiskStreak drives six turns the way the engine does:
// three high-risk scores followed by three low-risk, no-intelligence turns.
// The disengage must land exactly on the sixth turn.
func TestSelectActionLowRiskStreak(t *testing.T) {
	const alpha = 0.5
	sel := NewSelector()
	state := models.NewConversationState("conv_a", time.Now())

	scores := []float64{0.9, 0.9, 0.9, 0.1, 0.1, 0.1}
	for i, score := range scores {
		state.RiskScore = alpha*score + (1-alpha)*state.RiskScore
		if sel.IsLowRisk(score) {
			state.LowRiskStreak++
		} else {
			state.LowRiskStreak = 0
		}
		state.TurnCount++

		got := sel.SelectAction(state, models.ClassificationResult{ScamScore: score}, nil)
		if i < len(scores)-1 {
			if got.Action == models.ActionDisengage {
				t.Errorf("turn %d: premature DISENGAGE (streak %d)", i+1, state.LowRiskStreak)
			}
		} else {
			if got.Action != models.ActionDisengage {
				t.Errorf("turn %d: action = %s, want DISENGAGE", i+1, got.Action)
			}
			if got.TerminateAfterReply {
				t.Errorf("streak disengage should not set TerminateAfterReply")
			}
		}
	}
}

func TestSelectActionProbe(t *testing.T) {
	sel := NewSelector()
	state := models.NewConversationState("conv_a", time.Now())
	state.TurnCount = 3

	tests := []struct {
		name  string
		fresh []models.Artifact
		want  models.EngagementAction
	}{
		{"fresh financial id", []models.Artifact{{Kind: models.ArtifactFinancialID, Value: "00991234"}}, models.ActionProbe},
		{"fresh phone", []models.Artifact{{Kind: models.ArtifactPhone, Value: "5551234567"}}, models.ActionProbe},
		{"fresh email is not high value", []models.Artifact{{Kind: models.ArtifactEmail, Value: "a@b.example"}}, models.ActionContinue},
		{"no fresh intelligence", nil, models.ActionContinue},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := sel.SelectAction(state, models.ClassificationResult{ScamScore: 0.8}, tc.fresh)
			if got.Action != tc.want {
				t.Errorf("action = %s, want %s", got.Action, tc.want)
			}
		})
	}
}

func TestSelectActionNoProbeWhileDisengaging(t *testing.T) {
	sel := NewSelector()
	state := models.NewConversationState("conv_a", time.Now())
	state.TurnCount = 3
	state.Status = models.StatusDisengaging

	fresh := []models.Artifact{{Kind: models.ArtifactFinancialID, Value: "00991234"}}
	got := sel.SelectAction(state, models.ClassificationResult{ScamScore: 0.8}, fresh)
	if got.Action == models.ActionProbe {
		t.Errorf("PROBE while DISENGAGING, want a non-probe action")
	}
}

func TestSelectActionStallContinueAlternation(t *testing.T) {
	sel := NewSelector()
	state := models.NewConversationState("conv_a", time.Now())

	for turn := 1; turn <= 6; turn++ {
		state.TurnCount = turn
		got := sel.SelectAction(state, models.ClassificationResult{ScamScore: 0.8}, nil)
		want := models.ActionContinue
		if turn%2 == 0 {
			want = models.ActionStall
		}
		if got.Action != want {
			t.Errorf("turn %d: action = %s, want %s", turn, got.Action, want)
		}
	}
}

func TestIsLowRisk(t *testing.T) {
	sel := NewSelector()
	if !sel.IsLowRisk(0.29) {
		t.Errorf("IsLowRisk(0.29) = false, want true")
	}
	if sel.IsLowRisk(0.3) {
		t.Errorf("IsLowRisk(0.3) = true, want false at the floor")
	}

	custom := NewSelector(WithLowRiskFloor(0.5))
	if !custom.IsLowRisk(0.49) {
		t.Errorf("custom floor IsLowRisk(0.49) = false, want true")
	}
}

func TestSelectActionAlwaysHasHint(t *testing.T) {
	sel := NewSelector()
	state := models.NewConversationState("conv_a", time.Now())
	state.TurnCount = 1
	state.ScamType = models.ScamTypeLotteryFraud

	got := sel.SelectAction(state, models.ClassificationResult{}, nil)
	if got.PersonaHint == "" {
		t.Errorf("PersonaHint empty, want persona guidance")
	}
	if got.ConversationID != "conv_a" {
		t.Errorf("ConversationID = %q, want conv_a", got.ConversationID)
	}
}

func TestPersonaForScamType(t *testing.T) {
	tests := []struct {
		scamType models.ScamType
		want     string
	}{
		{models.ScamTypeLotteryFraud, "Elderly Person"},
		{models.ScamTypeBankImpersonation, "Elderly Person"},
		{models.ScamTypeGovtImpersonation, "Small Business Owner"},
		{models.ScamTypeJobScam, "College Student"},
		{models.ScamTypeInvestmentScam, "Young Professional"},
		{models.ScamTypeDeliveryScam, "Small Business Owner"},
	}
	for _, tc := range tests {
		if got := PersonaForScamType(tc.scamType); got.Name != tc.want {
			t.Errorf("PersonaForScamType(%s) = %q, want %q", tc.scamType, got.Name, tc.want)
		}
	}

	// Unknown types still resolve to some persona.
	if got := PersonaForScamType(models.ScamTypeUnknown); got.Name == "" {
		t.Errorf("PersonaForScamType(unknown) returned empty persona")
	}
}

func TestPersonaByName(t *testing.T) {
	p, ok := PersonaByName("Elderly Person")
	if !ok || p.SystemPrompt == "" {
		t.Errorf("PersonaByName(Elderly Person) = (%+v, %v), want a populated persona", p, ok)
	}
	if _, ok := PersonaByName("Nobody"); ok {
		t.Errorf("PersonaByName(Nobody) found a persona, want miss")
	}
}
