package genai

import (
	"strings"
	"testing"

	"github.com/BTreeMap/ScamPipe/internal/models"
)

func TestFallbackReply(t *testing.T) {
	tests := []struct {
		name        string
		persona     string
		turnCount   int
		lastMessage string
		action      models.EngagementAction
		wantSub     string
	}{
		{"disengage overrides everything", "Elderly Person", 5, "send the money", models.ActionDisengage, "someone is at the door"},
		{"elderly opener", "Elderly Person", 1, "you won a prize", models.ActionContinue, "very confusing"},
		{"professional opener", "Young Professional", 1, "you won a prize", models.ActionContinue, "name and company"},
		{"business owner opener", "Small Business Owner", 0, "tax notice", models.ActionStall, "my business taxes"},
		{"unknown persona opener", "College Student", 1, "you won a prize", models.ActionContinue, "tell me more"},
		{"second turn payment ask", "Elderly Person", 2, "please pay the fee", models.ActionContinue, "verify first"},
		{"second turn no payment ask", "Elderly Person", 2, "this is the cyber cell", models.ActionContinue, "number to call you back"},
		{"late turn bank details", "Elderly Person", 6, "wire it to our bank account", models.ActionProbe, "exact account number"},
		{"late turn no bank details", "Elderly Person", 6, "do it quickly", models.ActionProbe, "supervisor's number"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := FallbackReply(tc.persona, tc.turnCount, tc.lastMessage, tc.action)
			if !strings.Contains(got, tc.wantSub) {
				t.Errorf("FallbackReply(%q, %d, %q, %s) = %q, want substring %q",
					tc.persona, tc.turnCount, tc.lastMessage, tc.action, got, tc.wantSub)
			}
		})
	}
}

func TestBuildMessages(t *testing.T) {
	req := ReplyRequest{
		PersonaHint: "You are a retired teacher.",
		Transcript: []models.TranscriptEntry{
			{Role: "scammer", Body: "you won the lottery"},
			{Role: "persona", Body: "oh my, really?"},
			{Role: "scammer", Body: "yes, pay the fee"},
		},
		Intelligence: map[models.ArtifactKind][]string{
			models.ArtifactPhone: {"5551234567"},
		},
	}

	messages := buildMessages(req)
	if len(messages) != 5 {
		t.Fatalf("len(messages) = %d, want 5 (2 system + 3 transcript)", len(messages))
	}
	if messages[0].OfSystem == nil || messages[1].OfSystem == nil {
		t.Errorf("messages 0 and 1 should be system messages")
	}
	if messages[2].OfUser == nil {
		t.Errorf("scammer entry should map to a user message")
	}
	if messages[3].OfAssistant == nil {
		t.Errorf("persona entry should map to an assistant message")
	}
	if messages[4].OfUser == nil {
		t.Errorf("final scammer entry should map to a user message")
	}

	// Without intelligence there is only the persona system message.
	req.Intelligence = nil
	if got := buildMessages(req); len(got) != 4 {
		t.Errorf("len(messages) without intelligence = %d, want 4", len(got))
	}
}

func TestFormatIntelligence(t *testing.T) {
	if got := formatIntelligence(nil); got != "" {
		t.Errorf("formatIntelligence(nil) = %q, want empty", got)
	}

	got := formatIntelligence(map[models.ArtifactKind][]string{
		models.ArtifactPhone:       {"5551234567"},
		models.ArtifactFinancialID: {"00991234", "992288112233"},
	})
	if !strings.HasPrefix(got, "Intelligence already collected") {
		t.Errorf("snapshot missing header: %q", got)
	}
	if !strings.Contains(got, "FINANCIAL_ID: 00991234, 992288112233") {
		t.Errorf("snapshot missing financial ids: %q", got)
	}
	// Kinds are emitted in a fixed order so prompts are reproducible.
	if strings.Index(got, "FINANCIAL_ID") > strings.Index(got, "PHONE") {
		t.Errorf("FINANCIAL_ID should precede PHONE: %q", got)
	}
}
