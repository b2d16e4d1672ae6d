// Package genai generates persona replies through the OpenAI chat API.
//
// Calls are rate limited and wrapped in a circuit breaker so a failing model
// backend degrades to template fallbacks instead of stalling turns.
package genai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/BTreeMap/ScamPipe/internal/models"
)

// Defaults for the generation client.
const (
	DefaultModel                  = openai.ChatModelGPT4oMini
	DefaultMaxConsecutiveFailures = 3
	DefaultBreakerTimeout         = 30 * time.Second
	DefaultRequestsPerSecond      = 2
	DefaultBurst                  = 4
	DefaultMaxReplyTokens         = 200
)

// ReplyRequest carries everything the backend needs to produce one persona reply.
type ReplyRequest struct {
	// PersonaHint is the full system guidance from the strategy selector.
	PersonaHint string
	// Transcript is the recent conversation excerpt, newest last. The latest
	// scammer message is expected to be the final entry.
	Transcript []models.TranscriptEntry
	// Intelligence is a snapshot of captured artifacts, given to the model as
	// context on what is already known.
	Intelligence map[models.ArtifactKind][]string
}

// Generator produces persona reply text.
type Generator interface {
	GenerateReply(ctx context.Context, req ReplyRequest) (string, error)
}

// Opts holds configuration options for the client.
type Opts struct {
	APIKey                 string
	BaseURL                string
	Model                  string
	MaxConsecutiveFailures uint32
	BreakerTimeout         time.Duration
	RequestsPerSecond      float64
	Burst                  int
}

// Option defines a configuration option for the client.
type Option func(*Opts)

// WithAPIKey sets the API key.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithBaseURL overrides the API endpoint, e.g. for OpenRouter.
func WithBaseURL(url string) Option {
	return func(o *Opts) { o.BaseURL = url }
}

// WithModel sets the chat model.
func WithModel(model string) Option {
	return func(o *Opts) { o.Model = model }
}

// WithMaxConsecutiveFailures sets how many consecutive failures trip the breaker.
func WithMaxConsecutiveFailures(n uint32) Option {
	return func(o *Opts) { o.MaxConsecutiveFailures = n }
}

// WithBreakerTimeout sets how long the breaker stays open before probing again.
func WithBreakerTimeout(d time.Duration) Option {
	return func(o *Opts) { o.BreakerTimeout = d }
}

// WithRateLimit caps outbound model calls.
func WithRateLimit(rps float64, burst int) Option {
	return func(o *Opts) {
		o.RequestsPerSecond = rps
		o.Burst = burst
	}
}

// Client talks to an OpenAI-compatible chat completion endpoint.
type Client struct {
	client  openai.Client
	model   string
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
}

// NewClient creates a generation client. The API key is required.
func NewClient(opts ...Option) (*Client, error) {
	cfg := Opts{
		Model:                  DefaultModel,
		MaxConsecutiveFailures: DefaultMaxConsecutiveFailures,
		BreakerTimeout:         DefaultBreakerTimeout,
		RequestsPerSecond:      DefaultRequestsPerSecond,
		Burst:                  DefaultBurst,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("genai: API key not set")
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.BaseURL))
	}

	maxFailures := cfg.MaxConsecutiveFailures
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "genai",
		Timeout: cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("genai: circuit breaker state change", "name", name, "from", from.String(), "to", to.String())
		},
	})

	return &Client{
		client:  openai.NewClient(reqOpts...),
		model:   cfg.Model,
		breaker: breaker,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
	}, nil
}

// GenerateReply produces one persona reply. Failures, including an open
// breaker, are wrapped in models.ErrGenerationUnavailable; the caller decides
// the fallback.
func (c *Client) GenerateReply(ctx context.Context, req ReplyRequest) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("genai: rate limiter: %w: %w", models.ErrGenerationUnavailable, err)
	}

	messages := buildMessages(req)
	result, err := c.breaker.Execute(func() (interface{}, error) {
		completion, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
			Model:               c.model,
			Messages:            messages,
			MaxCompletionTokens: openai.Int(DefaultMaxReplyTokens),
		})
		if err != nil {
			return nil, err
		}
		if len(completion.Choices) == 0 {
			return nil, fmt.Errorf("no choices returned")
		}
		return strings.TrimSpace(completion.Choices[0].Message.Content), nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			slog.Warn("Client.GenerateReply: breaker rejected call", "error", err)
		} else {
			slog.Error("Client.GenerateReply: completion failed", "error", err)
		}
		return "", fmt.Errorf("genai: %w: %w", models.ErrGenerationUnavailable, err)
	}
	return result.(string), nil
}

// ScoreMessage asks the model for a standalone scam likelihood in [0,1]. It
// satisfies the classifier's model-assist hook.
func (c *Client) ScoreMessage(ctx context.Context, text string) (float64, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, fmt.Errorf("genai: rate limiter: %w", err)
	}
	result, err := c.breaker.Execute(func() (interface{}, error) {
		completion, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
			Model: c.model,
			Messages: []openai.ChatCompletionMessageParamUnion{
				openai.SystemMessage("You rate how likely a message is part of a scam or fraud attempt. Reply with only a decimal number between 0.0 and 1.0."),
				openai.UserMessage(text),
			},
			MaxCompletionTokens: openai.Int(8),
		})
		if err != nil {
			return nil, err
		}
		if len(completion.Choices) == 0 {
			return nil, fmt.Errorf("no choices returned")
		}
		return strings.TrimSpace(completion.Choices[0].Message.Content), nil
	})
	if err != nil {
		return 0, fmt.Errorf("genai: score failed: %w", err)
	}
	score, err := strconv.ParseFloat(result.(string), 64)
	if err != nil {
		return 0, fmt.Errorf("genai: unparseable score %q: %w", result, err)
	}
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	return score, nil
}

// buildMessages maps the transcript onto chat roles: scammer turns become
// user messages, persona turns become assistant messages.
func buildMessages(req ReplyRequest) []openai.ChatCompletionMessageParamUnion {
	messages := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(req.PersonaHint),
	}
	if snapshot := formatIntelligence(req.Intelligence); snapshot != "" {
		messages = append(messages, openai.SystemMessage(snapshot))
	}
	for _, entry := range req.Transcript {
		if entry.Role == "persona" {
			messages = append(messages, openai.AssistantMessage(entry.Body))
		} else {
			messages = append(messages, openai.UserMessage(entry.Body))
		}
	}
	return messages
}

func formatIntelligence(intel map[models.ArtifactKind][]string) string {
	if len(intel) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Intelligence already collected from this correspondent (do not ask for these again):\n")
	for _, kind := range []models.ArtifactKind{
		models.ArtifactFinancialID, models.ArtifactPhone, models.ArtifactEmail,
		models.ArtifactURL, models.ArtifactNamedEntity, models.ArtifactTactic,
	} {
		if values := intel[kind]; len(values) > 0 {
			fmt.Fprintf(&b, "- %s: %s\n", kind, strings.Join(values, ", "))
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
