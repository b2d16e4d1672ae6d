package classify

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/BTreeMap/ScamPipe/internal/models"
)

// stubScorer is a canned model-assisted scorer for tests.
type stubScorer struct {
	score float64
	err   error
}

func (s stubScorer) ScoreMessage(ctx context.Context, text string) (float64, error) {
	return s.score, s.err
}

func TestClassifyEmptyMessage(t *testing.T) {
	c := New()
	for _, text := range []string{"", "   ", "\n\t"} {
		_, err := c.Classify(context.Background(), text, nil)
		if !errors.Is(err, models.ErrInvalidInput) {
			t.Errorf("Classify(%q) error = %v, want ErrInvalidInput", text, err)
		}
	}
}

func TestClassifyScamVsBenign(t *testing.T) {
	c := New()

	scam := "Congratulations! You have won a lottery prize. Pay the processing fee immediately to account 1234-5678-9012."
	got, err := c.Classify(context.Background(), scam, nil)
	if err != nil {
		t.Fatalf("Classify scam message: %v", err)
	}
	if got.ScamScore < 0.7 {
		t.Errorf("scam score = %v, want >= 0.7", got.ScamScore)
	}
	if len(got.HeuristicTriggers) == 0 {
		t.Errorf("expected heuristic triggers for scam message, got none")
	}

	benign := "hey are we still meeting for lunch tomorrow?"
	got, err = c.Classify(context.Background(), benign, nil)
	if err != nil {
		t.Fatalf("Classify benign message: %v", err)
	}
	if got.ScamScore > 0.2 {
		t.Errorf("benign score = %v, want <= 0.2", got.ScamScore)
	}
	if got.Intent != models.IntentSmallTalk {
		t.Errorf("benign intent = %s, want SMALL_TALK", got.Intent)
	}
}

func TestClassifyIntent(t *testing.T) {
	c := New()
	tests := []struct {
		name string
		text string
		want models.IntentCategory
	}{
		{"payment request", "transfer the deposit and send money now", models.IntentRequestPayment},
		{"info request", "verify your otp and cvv and password please", models.IntentRequestInfo},
		{"threat", "you will be arrested and jailed, this is illegal", models.IntentThreat},
		{"tie resolves unknown", "wire the fine", models.IntentUnknown},
		{"no signal is small talk", "good morning, nice weather today", models.IntentSmallTalk},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := c.Classify(context.Background(), tc.text, nil)
			if err != nil {
				t.Fatalf("Classify(%q): %v", tc.text, err)
			}
			if got.Intent != tc.want {
				t.Errorf("Classify(%q).Intent = %s, want %s", tc.text, got.Intent, tc.want)
			}
		})
	}
}

func TestClassifyScamType(t *testing.T) {
	c := New()

	got, err := c.Classify(context.Background(), "Congratulations, you have won the lottery jackpot lucky draw!", nil)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if got.ScamType != models.ScamTypeLotteryFraud {
		t.Errorf("scam type = %s, want LOTTERY_FRAUD", got.ScamType)
	}

	got, err = c.Classify(context.Background(), "install anydesk so I can fix your computer", nil)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if got.ScamType != models.ScamTypeTechSupport {
		t.Errorf("scam type = %s, want TECH_SUPPORT", got.ScamType)
	}
}

func TestClassifyScamTypePriorFallback(t *testing.T) {
	c := New()
	prior := models.NewConversationState("conv_prior", time.Now())
	prior.ScamType = models.ScamTypeInvestmentScam

	// A weak turn keeps the established type instead of resetting to unknown.
	got, err := c.Classify(context.Background(), "ok tell me more", prior)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if got.ScamType != models.ScamTypeInvestmentScam {
		t.Errorf("scam type = %s, want prior INVESTMENT_SCAM", got.ScamType)
	}

	got, err = c.Classify(context.Background(), "ok tell me more", nil)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if got.ScamType != models.ScamTypeUnknown {
		t.Errorf("scam type without prior = %s, want UNKNOWN", got.ScamType)
	}
}

func TestClassifyTactics(t *testing.T) {
	c := New()
	got, err := c.Classify(context.Background(), "Urgent! Pay the processing fee to account 1234-5678-9012 immediately.", nil)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	want := []string{"time_pressure", "fee_demand", "financial_extraction"}
	for _, tag := range want {
		found := false
		for _, tactic := range got.Tactics {
			if tactic == tag {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("tactics %v missing %q", got.Tactics, tag)
		}
	}
}

func TestClassifyModelBlend(t *testing.T) {
	c := New(WithScorer(stubScorer{score: 1.0}), WithModelWeight(0.5))

	// Heuristics see nothing here, so the blended score is pure model weight.
	got, err := c.Classify(context.Background(), "hello there friend", nil)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if !got.ModelAssisted {
		t.Errorf("ModelAssisted = false, want true")
	}
	if math.Abs(got.ScamScore-0.5) > 1e-9 {
		t.Errorf("blended score = %v, want 0.5", got.ScamScore)
	}
}

func TestClassifyScorerFailureDegrades(t *testing.T) {
	text := "Urgent! Verify your otp immediately."

	plain, err := New().Classify(context.Background(), text, nil)
	if err != nil {
		t.Fatalf("Classify without scorer: %v", err)
	}

	degraded, err := New(WithScorer(stubScorer{err: errors.New("backend down")})).Classify(context.Background(), text, nil)
	if err != nil {
		t.Fatalf("Classify with failing scorer: %v", err)
	}
	if degraded.ModelAssisted {
		t.Errorf("ModelAssisted = true after scorer failure, want false")
	}
	if degraded.ScamScore != plain.ScamScore {
		t.Errorf("degraded score = %v, want heuristic-only %v", degraded.ScamScore, plain.ScamScore)
	}
}
