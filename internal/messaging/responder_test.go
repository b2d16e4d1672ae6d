package messaging

import (
	"context"
	"sync"
	"testing"

	"github.com/BTreeMap/ScamPipe/internal/engage"
	"github.com/BTreeMap/ScamPipe/internal/engine"
	"github.com/BTreeMap/ScamPipe/internal/models"
)

type fakeSent struct {
	To   string
	Body string
}

// fakeService is an in-memory channel service for responder tests.
type fakeService struct {
	inbound chan models.InboundMessage
	mu      sync.Mutex
	sent    []fakeSent
}

func newFakeService() *fakeService {
	return &fakeService{inbound: make(chan models.InboundMessage, 10)}
}

func (f *fakeService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return recipient, nil
}

func (f *fakeService) SendMessage(ctx context.Context, to string, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, fakeSent{To: to, Body: body})
	return nil
}

func (f *fakeService) Start(ctx context.Context) error { return nil }
func (f *fakeService) Stop() error                     { return nil }

func (f *fakeService) Inbound() <-chan models.InboundMessage { return f.inbound }

func (f *fakeService) messages() []fakeSent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]fakeSent(nil), f.sent...)
}

func steadyEngine() *engine.Engine {
	return engine.New(engine.WithSelector(engage.NewSelector(
		engage.WithMaxTurns(1000),
		engage.WithLowRiskStreak(1000),
	)))
}

func TestResponderRepliesToInbound(t *testing.T) {
	svc := newFakeService()
	eng := steadyEngine()
	r := NewResponder(svc, eng, WithReplyDelay(0, 0))

	svc.inbound <- models.InboundMessage{From: "+15550001111", Body: "call me at 555-123-4567"}
	close(svc.inbound)
	r.Run(context.Background())

	sent := svc.messages()
	if len(sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(sent))
	}
	if sent[0].To != "+15550001111" || sent[0].Body == "" {
		t.Errorf("sent = %+v, want a non-empty reply to the sender", sent[0])
	}

	conversationID := r.conversations["+15550001111"]
	if conversationID == "" {
		t.Fatalf("no conversation mapped for sender")
	}
	state, err := eng.Conversation(context.Background(), conversationID)
	if err != nil {
		t.Fatalf("Conversation: %v", err)
	}
	if state.TurnCount != 1 {
		t.Errorf("turn count = %d, want 1", state.TurnCount)
	}
	if last := state.Transcript[len(state.Transcript)-1]; last.Role != "persona" {
		t.Errorf("last transcript role = %s, want the recorded reply", last.Role)
	}
}

func TestResponderDisengageForgetsSender(t *testing.T) {
	svc := newFakeService()
	eng := engine.New(engine.WithSelector(engage.NewSelector(engage.WithLowRiskStreak(1))))
	r := NewResponder(svc, eng, WithReplyDelay(0, 0))

	svc.inbound <- models.InboundMessage{From: "+15550002222", Body: "hello how are you doing"}
	close(svc.inbound)
	r.Run(context.Background())

	if len(svc.messages()) != 1 {
		t.Fatalf("sent %d messages, want the farewell", len(svc.messages()))
	}
	if len(r.conversations) != 0 {
		t.Errorf("sender mapping retained after disengage: %v", r.conversations)
	}

	states, err := eng.Conversations(context.Background())
	if err != nil {
		t.Fatalf("Conversations: %v", err)
	}
	if len(states) != 1 {
		t.Fatalf("have %d conversations, want 1", len(states))
	}
	state, err := eng.Conversation(context.Background(), states[0].ConversationID)
	if err != nil {
		t.Fatalf("Conversation: %v", err)
	}
	if state.Status != models.StatusTerminated {
		t.Errorf("status after farewell = %s, want TERMINATED", state.Status)
	}
}

func TestResponderDropsTerminatedConversation(t *testing.T) {
	svc := newFakeService()
	eng := steadyEngine()
	ctx := context.Background()

	if _, err := eng.ProcessTurn(ctx, "conv_dead", "you won the lottery"); err != nil {
		t.Fatalf("ProcessTurn: %v", err)
	}
	if _, err := eng.Terminate(ctx, "conv_dead"); err != nil {
		t.Fatalf("Terminate: %v", err)
	}

	r := NewResponder(svc, eng, WithReplyDelay(0, 0))
	r.conversations["+15550003333"] = "conv_dead"

	svc.inbound <- models.InboundMessage{From: "+15550003333", Body: "are you still there"}
	close(svc.inbound)
	r.Run(ctx)

	if len(svc.messages()) != 0 {
		t.Errorf("sent %d messages for a terminated conversation, want 0", len(svc.messages()))
	}
	if _, ok := r.conversations["+15550003333"]; ok {
		t.Errorf("terminated conversation mapping retained")
	}
}
