package messaging

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/BTreeMap/ScamPipe/internal/engine"
	"github.com/BTreeMap/ScamPipe/internal/genai"
	"github.com/BTreeMap/ScamPipe/internal/metrics"
	"github.com/BTreeMap/ScamPipe/internal/models"
)

// Reply delay bounds. A small randomized pause before each reply avoids the
// instant-response automation signal.
const (
	DefaultMinReplyDelay = 3 * time.Second
	DefaultMaxReplyDelay = 20 * time.Second
)

// Responder consumes inbound scammer messages from a channel service, runs
// them through the engine, and sends the persona reply back on the same
// channel. One conversation is tracked per sender.
type Responder struct {
	service   Service
	engine    *engine.Engine
	generator genai.Generator
	metrics   *metrics.Metrics

	minDelay time.Duration
	maxDelay time.Duration

	mu            sync.Mutex
	conversations map[string]string // sender -> conversation id
}

// ResponderOpts holds configuration options for the responder.
type ResponderOpts struct {
	Generator genai.Generator
	Metrics   *metrics.Metrics
	MinDelay  time.Duration
	MaxDelay  time.Duration
}

// ResponderOption defines a configuration option for the responder.
type ResponderOption func(*ResponderOpts)

// WithGenerator sets the reply generation backend.
func WithGenerator(g genai.Generator) ResponderOption {
	return func(o *ResponderOpts) { o.Generator = g }
}

// WithMetrics wires Prometheus instrumentation.
func WithMetrics(m *metrics.Metrics) ResponderOption {
	return func(o *ResponderOpts) { o.Metrics = m }
}

// WithReplyDelay sets the randomized delay window before each reply.
// Zero maximum disables the delay.
func WithReplyDelay(min, max time.Duration) ResponderOption {
	return func(o *ResponderOpts) {
		o.MinDelay = min
		o.MaxDelay = max
	}
}

// NewResponder creates a responder for the given channel service and engine.
func NewResponder(service Service, eng *engine.Engine, opts ...ResponderOption) *Responder {
	cfg := ResponderOpts{MinDelay: DefaultMinReplyDelay, MaxDelay: DefaultMaxReplyDelay}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Responder{
		service:       service,
		engine:        eng,
		generator:     cfg.Generator,
		metrics:       cfg.Metrics,
		minDelay:      cfg.MinDelay,
		maxDelay:      cfg.MaxDelay,
		conversations: make(map[string]string),
	}
}

// Run consumes the inbound channel until it closes or ctx is canceled.
func (r *Responder) Run(ctx context.Context) {
	slog.Info("Responder.Run: consuming inbound messages")
	for {
		select {
		case <-ctx.Done():
			slog.Info("Responder.Run: stopping on context cancellation")
			return
		case msg, ok := <-r.service.Inbound():
			if !ok {
				slog.Info("Responder.Run: inbound channel closed")
				return
			}
			r.handleInbound(ctx, msg)
		}
	}
}

// handleInbound runs one scammer message through the engine and replies.
func (r *Responder) handleInbound(ctx context.Context, msg models.InboundMessage) {
	conversationID := r.conversationFor(msg.From)

	result, err := r.engine.ProcessTurn(ctx, conversationID, msg.Body)
	if err != nil {
		if errors.Is(err, models.ErrConflictingState) {
			// Conversation already terminated; drop the sender mapping so a
			// future message starts fresh.
			slog.Info("Responder.handleInbound: message for terminated conversation dropped", "from", msg.From, "conversation_id", conversationID)
			r.forget(msg.From)
			return
		}
		slog.Error("Responder.handleInbound: turn processing failed", "error", err, "from", msg.From)
		return
	}
	r.remember(msg.From, result.Directive.ConversationID)

	reply := r.buildReply(ctx, result, msg.Body)
	r.pause(ctx)
	if err := r.service.SendMessage(ctx, msg.From, reply); err != nil {
		slog.Error("Responder.handleInbound: failed to send reply", "error", err, "from", msg.From)
		return
	}
	if _, err := r.engine.RecordReply(ctx, result.Directive.ConversationID, reply); err != nil {
		slog.Error("Responder.handleInbound: failed to record reply", "error", err, "conversation_id", result.Directive.ConversationID)
	}
	if result.State.Status == models.StatusDisengaging {
		r.forget(msg.From)
	}
}

// buildReply asks the generation backend for the persona reply, falling back
// to templates when unavailable.
func (r *Responder) buildReply(ctx context.Context, result *models.TurnResult, lastMessage string) string {
	if r.generator != nil {
		text, err := r.generator.GenerateReply(ctx, genai.ReplyRequest{
			PersonaHint:  result.Directive.PersonaHint,
			Transcript:   result.State.RecentTranscript(12),
			Intelligence: result.State.Intelligence,
		})
		if err == nil {
			return text
		}
		slog.Warn("Responder.buildReply: generation unavailable, using template", "error", err, "conversation_id", result.State.ConversationID)
		r.metrics.ObserveGenerationFallback()
	}
	return genai.FallbackReply(result.State.PersonaName, result.State.TurnCount, lastMessage, result.Directive.Action)
}

// pause sleeps a randomized human-like delay, respecting cancellation.
func (r *Responder) pause(ctx context.Context) {
	if r.maxDelay <= 0 {
		return
	}
	delay := r.minDelay
	if spread := r.maxDelay - r.minDelay; spread > 0 {
		delay += time.Duration(rand.Int63n(int64(spread)))
	}
	select {
	case <-time.After(delay):
	case <-ctx.Done():
	}
}

func (r *Responder) conversationFor(sender string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.conversations[sender]
}

func (r *Responder) remember(sender, conversationID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conversations[sender] = conversationID
}

func (r *Responder) forget(sender string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conversations, sender)
}
