package classify

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/BTreeMap/ScamPipe/internal/extract"
	"github.com/BTreeMap/ScamPipe/internal/models"
)

// Scorer provides an optional model-assisted scam score for a message.
// Implementations must be safe for concurrent use.
type Scorer interface {
	ScoreMessage(ctx context.Context, text string) (float64, error)
}

// Default tuning constants for the classifier.
const (
	// DefaultScorerTimeout bounds the model-assisted call; on expiry the
	// classifier falls back to the heuristic-only score.
	DefaultScorerTimeout = 3 * time.Second
	// DefaultModelWeight is the share of the final score taken from the
	// model-assisted signal when it is available.
	DefaultModelWeight = 0.4
)

// Opts holds configuration options for the classifier.
type Opts struct {
	Scorer        Scorer
	ScorerTimeout time.Duration
	ModelWeight   float64
}

// Option defines a configuration option for the classifier.
type Option func(*Opts)

// WithScorer attaches a model-assisted scorer.
func WithScorer(s Scorer) Option {
	return func(o *Opts) { o.Scorer = s }
}

// WithScorerTimeout bounds the model-assisted call.
func WithScorerTimeout(d time.Duration) Option {
	return func(o *Opts) { o.ScorerTimeout = d }
}

// WithModelWeight sets the blend weight for the model-assisted score.
func WithModelWeight(w float64) Option {
	return func(o *Opts) { o.ModelWeight = w }
}

// Classifier combines weighted keyword tables, entity-pattern signals,
// heuristic rules, and an optional model-assisted score into a per-turn
// classification. It holds no mutable state and is safe for concurrent use.
type Classifier struct {
	pipeline      *extract.Pipeline
	scorer        Scorer
	scorerTimeout time.Duration
	modelWeight   float64
}

// New creates a classifier, applying any provided options.
func New(opts ...Option) *Classifier {
	cfg := Opts{ScorerTimeout: DefaultScorerTimeout, ModelWeight: DefaultModelWeight}
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("classify.New: classifier created", "model_assisted", cfg.Scorer != nil, "scorer_timeout", cfg.ScorerTimeout)
	return &Classifier{
		pipeline:      extract.NewPipeline(),
		scorer:        cfg.Scorer,
		scorerTimeout: cfg.ScorerTimeout,
		modelWeight:   cfg.ModelWeight,
	}
}

// Classify labels one inbound message. Empty input fails with
// models.ErrInvalidInput. Model-backend failure degrades to the
// heuristic-only score rather than failing the call.
func (c *Classifier) Classify(ctx context.Context, text string, prior *models.ConversationState) (models.ClassificationResult, error) {
	trimmed, ok := models.NormalizeMessage(text)
	if !ok {
		return models.ClassificationResult{}, fmt.Errorf("classify: empty message: %w", models.ErrInvalidInput)
	}
	lower := strings.ToLower(trimmed)

	categoryScores, keywordMatches := analyzeKeywords(lower)
	entities := c.pipeline.FindEntities(trimmed)
	artifacts := c.pipeline.Extract(trimmed)
	entityScore := scoreEntities(artifacts)
	heuristicScore, triggers := applyHeuristics(lower, artifacts, keywordMatches)
	comboScore := scoreCombinations(keywordMatches)

	score := blendScores(categoryScores, entityScore, heuristicScore, comboScore)

	result := models.ClassificationResult{
		Intent:            classifyIntent(keywordMatches, artifacts),
		ScamType:          classifyScamType(keywordMatches, triggers, prior),
		Tactics:           identifyTactics(keywordMatches, artifacts, triggers),
		RawEntities:       entities,
		KeywordMatches:    keywordMatches,
		HeuristicTriggers: triggers,
	}

	if c.scorer != nil {
		modelScore, err := c.scoreWithModel(ctx, trimmed)
		if err != nil {
			slog.Warn("Classifier.Classify: model score unavailable, using heuristic only", "error", err)
		} else {
			score = (1-c.modelWeight)*score + c.modelWeight*modelScore
			result.ModelAssisted = true
		}
	}

	result.ScamScore = clamp01(score)
	slog.Debug("Classifier.Classify: classified message",
		"scam_score", result.ScamScore, "intent", result.Intent,
		"scam_type", result.ScamType, "model_assisted", result.ModelAssisted)
	return result, nil
}

// scoreWithModel runs the model-assisted scorer under the configured deadline.
func (c *Classifier) scoreWithModel(ctx context.Context, text string) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, c.scorerTimeout)
	defer cancel()
	score, err := c.scorer.ScoreMessage(ctx, text)
	if err != nil {
		return 0, err
	}
	return clamp01(score), nil
}

// analyzeKeywords scores each keyword category against the lower-cased text.
func analyzeKeywords(lower string) (map[string]float64, map[string][]string) {
	scores := make(map[string]float64, len(allCategories))
	matches := make(map[string][]string)
	padded := " " + lower + " "
	for category, keywords := range allCategories {
		var categoryScore float64
		var categoryMatches []string
		for keyword, weight := range keywords {
			if !strings.Contains(lower, keyword) {
				continue
			}
			categoryScore += weight
			// whole-phrase hits count a little extra
			if strings.Contains(padded, " "+keyword+" ") {
				categoryScore += weight * 0.2
			}
			categoryMatches = append(categoryMatches, keyword)
		}
		if len(categoryMatches) > 0 {
			sort.Strings(categoryMatches)
			scores[category] = min1(categoryScore / float64(len(categoryMatches)))
			matches[category] = categoryMatches
		}
	}
	return scores, matches
}

// scoreEntities weights extracted artifacts; financial identifiers and URLs
// are the strongest signals.
func scoreEntities(artifacts []models.Artifact) float64 {
	var score float64
	for _, a := range artifacts {
		switch a.Kind {
		case models.ArtifactFinancialID:
			score += 0.4
		case models.ArtifactURL:
			score += 0.3
			if extract.AnalyzeURL(a.Value).Suspicious {
				score += 0.15
			}
		case models.ArtifactPhone:
			score += 0.2
		case models.ArtifactEmail:
			score += 0.1
		case models.ArtifactNamedEntity:
			score += 0.1
		}
	}
	return min1(score)
}

// applyHeuristics runs the rule layer and returns its score and trigger tags.
func applyHeuristics(lower string, artifacts []models.Artifact, keywordMatches map[string][]string) (float64, []string) {
	var score float64
	var triggers []string
	hasKind := func(kind models.ArtifactKind) bool {
		for _, a := range artifacts {
			if a.Kind == kind {
				return true
			}
		}
		return false
	}
	containsAny := func(words ...string) bool {
		for _, w := range words {
			if strings.Contains(lower, w) {
				return true
			}
		}
		return false
	}

	if len(keywordMatches["urgency"]) > 0 && hasKind(models.ArtifactFinancialID) {
		score += 0.4
		triggers = append(triggers, "urgent_financial_request")
	}
	if len(keywordMatches["authority"]) > 0 && len(keywordMatches["threat"]) > 0 {
		score += 0.45
		triggers = append(triggers, "authority_with_threat")
	}
	if len(keywordMatches["reward"]) > 0 && len(keywordMatches["payment"]) > 0 {
		score += 0.5
		triggers = append(triggers, "prize_requires_payment")
	}
	if containsAny("otp", "cvv", "atm pin", "one time password") {
		score += 0.6
		triggers = append(triggers, "sensitive_info_request")
	}
	if containsAny("anydesk", "teamviewer", "screen share", "remote access") {
		score += 0.7
		triggers = append(triggers, "remote_access_request")
	}
	if containsAny("blocked", "suspended", "frozen", "deactivated") && len(keywordMatches["urgency"]) > 0 {
		score += 0.5
		triggers = append(triggers, "account_threat_urgency")
	}
	if containsAny("arrest", "warrant", "jail", "court", "police") {
		score += 0.45
		triggers = append(triggers, "legal_threat")
	}
	if len(keywordMatches["job"]) > 0 && len(keywordMatches["payment"]) > 0 {
		score += 0.55
		triggers = append(triggers, "job_fee_scam")
	}
	if len(keywordMatches["investment"]) > 0 && containsAny("guaranteed", "assured", "no risk", "100%") {
		score += 0.6
		triggers = append(triggers, "guaranteed_returns")
	}
	if containsAny("lottery", "lucky draw", "jackpot") {
		score += 0.55
		triggers = append(triggers, "lottery_bait")
	}
	if (strings.Contains(lower, "double") || strings.Contains(lower, "triple")) && containsAny("money", "investment") {
		score += 0.65
		triggers = append(triggers, "money_multiplication_promise")
	}
	if len(keywordMatches["urgency"]) >= 3 {
		score += 0.3
		triggers = append(triggers, "excessive_urgency")
	}
	return min1(score), triggers
}

// scoreCombinations adds bonuses for high-risk category pairs, capped at 0.5.
func scoreCombinations(keywordMatches map[string][]string) float64 {
	var score float64
	for _, combo := range highRiskCombinations {
		all := true
		for _, category := range combo.categories {
			if len(keywordMatches[category]) == 0 {
				all = false
				break
			}
		}
		if all {
			score += combo.bonus
		}
	}
	if score > 0.5 {
		score = 0.5
	}
	return score
}

// blendScores combines the layers into a single confidence, boosting when
// several independent layers fire together.
func blendScores(categoryScores map[string]float64, entityScore, heuristicScore, comboScore float64) float64 {
	var maxKeyword, sumKeyword float64
	for _, s := range categoryScores {
		sumKeyword += s
		if s > maxKeyword {
			maxKeyword = s
		}
	}
	avgKeyword := 0.0
	if len(categoryScores) > 0 {
		avgKeyword = sumKeyword / float64(len(allCategories))
	}

	score := maxKeyword*0.25 + avgKeyword*0.10 + entityScore*0.20 + heuristicScore*0.35 + comboScore*0.10

	strongSignals := 0
	if maxKeyword > 0.5 {
		strongSignals++
	}
	if entityScore > 0.3 {
		strongSignals++
	}
	if heuristicScore > 0.3 {
		strongSignals++
	}
	if comboScore > 0.2 {
		strongSignals++
	}
	switch {
	case strongSignals >= 3:
		score *= 1.3
	case strongSignals >= 2:
		score *= 1.15
	}
	return clamp01(score)
}

// classifyIntent picks the highest-confidence intent rule; ties resolve to
// UNKNOWN, and no signal at all reads as small talk.
func classifyIntent(keywordMatches map[string][]string, artifacts []models.Artifact) models.IntentCategory {
	scores := map[models.IntentCategory]int{
		models.IntentRequestPayment: len(keywordMatches["payment"]),
		models.IntentRequestInfo:    len(keywordMatches["info_request"]),
		models.IntentThreat:         len(keywordMatches["threat"]),
	}
	for _, a := range artifacts {
		if a.Kind == models.ArtifactFinancialID {
			scores[models.IntentRequestPayment]++
		}
	}

	best := models.IntentUnknown
	bestScore, tied := 0, false
	for _, intent := range []models.IntentCategory{models.IntentRequestPayment, models.IntentRequestInfo, models.IntentThreat} {
		s := scores[intent]
		switch {
		case s > bestScore:
			best, bestScore, tied = intent, s, false
		case s == bestScore && s > 0:
			tied = true
		}
	}
	if bestScore == 0 {
		return models.IntentSmallTalk
	}
	if tied {
		return models.IntentUnknown
	}
	return best
}

// scamTypeRules maps keyword categories to the scam families they indicate.
var scamTypeRules = map[models.ScamType][]string{
	models.ScamTypeLotteryFraud:      {"reward"},
	models.ScamTypeBankImpersonation: {"authority", "threat", "info_request"},
	models.ScamTypeGovtImpersonation: {"authority", "threat"},
	models.ScamTypePaymentAppFraud:   {"payment", "info_request"},
	models.ScamTypeJobScam:           {"job", "payment"},
	models.ScamTypeInvestmentScam:    {"investment"},
	models.ScamTypeRomanceScam:       {"romance", "payment"},
	models.ScamTypeDeliveryScam:      {"delivery", "payment"},
	models.ScamTypeTechSupport:       {"info_request", "threat"},
	models.ScamTypeAdvanceFee:        {"reward", "payment"},
	models.ScamTypePhishing:          {"info_request", "authority"},
}

// triggerTypeBoosts maps heuristic triggers to the scam family they pin down.
var triggerTypeBoosts = map[string]models.ScamType{
	"lottery_bait":                 models.ScamTypeLotteryFraud,
	"prize_requires_payment":       models.ScamTypeAdvanceFee,
	"authority_with_threat":        models.ScamTypeGovtImpersonation,
	"legal_threat":                 models.ScamTypeGovtImpersonation,
	"sensitive_info_request":       models.ScamTypePhishing,
	"remote_access_request":        models.ScamTypeTechSupport,
	"job_fee_scam":                 models.ScamTypeJobScam,
	"guaranteed_returns":           models.ScamTypeInvestmentScam,
	"money_multiplication_promise": models.ScamTypeInvestmentScam,
	"account_threat_urgency":       models.ScamTypeBankImpersonation,
	"urgent_financial_request":     models.ScamTypePaymentAppFraud,
}

// classifyScamType picks the most likely scam family, falling back to the
// conversation's previously established type when the current turn is weak.
func classifyScamType(keywordMatches map[string][]string, triggers []string, prior *models.ConversationState) models.ScamType {
	typeScores := make(map[models.ScamType]float64)
	for scamType, categories := range scamTypeRules {
		for _, category := range categories {
			typeScores[scamType] += float64(len(keywordMatches[category])) * 0.3
		}
	}
	for _, trigger := range triggers {
		if scamType, ok := triggerTypeBoosts[trigger]; ok {
			typeScores[scamType] += 0.5
		}
	}

	best, bestScore := models.ScamTypeUnknown, 0.0
	for scamType, s := range typeScores {
		if s > bestScore || (s == bestScore && s > 0 && scamType < best) {
			best, bestScore = scamType, s
		}
	}
	if bestScore <= 0.2 {
		if prior != nil && prior.ScamType != "" && prior.ScamType != models.ScamTypeUnknown {
			return prior.ScamType
		}
		return models.ScamTypeUnknown
	}
	return best
}

// identifyTactics tags the social-engineering tactics observed this turn.
func identifyTactics(keywordMatches map[string][]string, artifacts []models.Artifact, triggers []string) []string {
	seen := make(map[string]bool)
	var tactics []string
	add := func(tag string) {
		if tag != "" && !seen[tag] {
			seen[tag] = true
			tactics = append(tactics, tag)
		}
	}
	for category := range keywordMatches {
		add(categoryTactics[category])
	}
	for _, a := range artifacts {
		switch a.Kind {
		case models.ArtifactFinancialID:
			add("financial_extraction")
		case models.ArtifactURL:
			add("phishing_links")
		case models.ArtifactPhone:
			add("contact_collection")
		}
	}
	for _, trigger := range triggers {
		add(trigger)
	}
	sort.Strings(tactics)
	return tactics
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func min1(v float64) float64 {
	if v > 1 {
		return 1
	}
	return v
}
