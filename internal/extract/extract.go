// Package extract pulls structured intelligence artifacts out of raw,
// adversarial message text.
//
// Extraction runs as an ordered pipeline of typed stages, each owning one
// artifact kind. Stages never fail: malformed input simply yields no
// artifacts. Values are normalized before return so that textually different
// but semantically identical artifacts merge under dedup.
package extract

import (
	"log/slog"
	"regexp"
	"strings"

	"github.com/BTreeMap/ScamPipe/internal/models"
)

// Stage is a single typed extractor in the pipeline. Implementations are
// stateless and safe for concurrent use.
type Stage interface {
	// Kind returns the artifact kind this stage produces.
	Kind() models.ArtifactKind
	// Find returns raw entities with character spans in the source text.
	Find(text string) []models.Entity
	// Normalize canonicalizes a raw match; empty output drops the match.
	Normalize(raw string) string
}

// Pipeline composes extraction stages in a fixed order.
type Pipeline struct {
	stages []Stage
}

// NewPipeline creates the default extraction pipeline. Order matters: email
// runs before financial handles so that dotted domains are claimed as EMAIL,
// and financial runs before phone so that marker-introduced account digits
// are never misread as phone numbers.
func NewPipeline() *Pipeline {
	return &Pipeline{
		stages: []Stage{
			&emailStage{},
			&urlStage{},
			&financialStage{},
			&phoneStage{},
			&namedEntityStage{},
		},
	}
}

// Extract returns deduplicated normalized artifacts found in text.
// It never returns an error; unmatched patterns yield no artifacts.
func (p *Pipeline) Extract(text string) []models.Artifact {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	var out []models.Artifact
	seen := make(map[models.ArtifactKind]map[string]bool)
	claimed := newSpanSet()
	for _, stage := range p.stages {
		kind := stage.Kind()
		for _, ent := range stage.Find(text) {
			if claimed.overlaps(ent.Start, ent.End) {
				continue
			}
			value := stage.Normalize(ent.Value)
			if value == "" {
				continue
			}
			if seen[kind] == nil {
				seen[kind] = make(map[string]bool)
			}
			if seen[kind][value] {
				continue
			}
			seen[kind][value] = true
			claimed.add(ent.Start, ent.End)
			out = append(out, models.Artifact{Kind: kind, Value: value})
		}
	}
	slog.Debug("Pipeline.Extract: extraction complete", "text_length", len(text), "artifacts", len(out))
	return out
}

// FindEntities returns raw matches with spans for all stages, without
// deduplication. The classifier uses these as lexical signals.
func (p *Pipeline) FindEntities(text string) []models.Entity {
	var out []models.Entity
	for _, stage := range p.stages {
		out = append(out, stage.Find(text)...)
	}
	return out
}

// Merge unions artifacts into the conversation's intelligence sets and
// returns only the values that were actually new. Re-merging identical
// artifacts is a no-op.
func Merge(state *models.ConversationState, artifacts []models.Artifact) []models.Artifact {
	var fresh []models.Artifact
	for _, a := range artifacts {
		if state.AddArtifact(a.Kind, a.Value) {
			fresh = append(fresh, a)
		}
	}
	return fresh
}

// spanSet tracks already-claimed character ranges so later stages do not
// re-report substrings of earlier matches (e.g. the digits of an email).
type spanSet struct {
	spans [][2]int
}

func newSpanSet() *spanSet { return &spanSet{} }

func (s *spanSet) add(start, end int) {
	s.spans = append(s.spans, [2]int{start, end})
}

func (s *spanSet) overlaps(start, end int) bool {
	for _, sp := range s.spans {
		if start < sp[1] && end > sp[0] {
			return true
		}
	}
	return false
}

func findWithPattern(re *regexp.Regexp, kind models.ArtifactKind, text string, group int) []models.Entity {
	var out []models.Entity
	for _, idx := range re.FindAllStringSubmatchIndex(text, -1) {
		start, end := idx[2*group], idx[2*group+1]
		if start < 0 || end <= start {
			continue
		}
		out = append(out, models.Entity{Kind: kind, Value: text[start:end], Start: start, End: end})
	}
	return out
}

// emailStage extracts email addresses (dotted domains only).
type emailStage struct{}

var emailPattern = regexp.MustCompile(`(?i)\b[a-z0-9._%+-]+@[a-z0-9-]+(?:\.[a-z0-9-]+)+\b`)

func (s *emailStage) Kind() models.ArtifactKind { return models.ArtifactEmail }

func (s *emailStage) Find(text string) []models.Entity {
	return findWithPattern(emailPattern, models.ArtifactEmail, text, 0)
}

func (s *emailStage) Normalize(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// urlStage extracts web addresses, explicit scheme or www-prefixed.
type urlStage struct{}

var urlPattern = regexp.MustCompile(`(?i)\b(?:https?://|www\.)[^\s<>"']+`)

func (s *urlStage) Kind() models.ArtifactKind { return models.ArtifactURL }

func (s *urlStage) Find(text string) []models.Entity {
	return findWithPattern(urlPattern, models.ArtifactURL, text, 0)
}

func (s *urlStage) Normalize(raw string) string {
	return NormalizeURL(raw)
}

// phoneStage extracts phone numbers in common separator formats.
type phoneStage struct{}

var phonePatterns = []*regexp.Regexp{
	// +1 (555) 123-4567, 555-123-4567, 555.123.4567, 555 123 4567
	regexp.MustCompile(`(?:\+?\d{1,2}[\s.-])?\(?\d{3}\)?[\s.-]\d{3}[\s.-]\d{4}\b`),
	// bare 10-13 digit runs with an optional leading +
	regexp.MustCompile(`\+?\b\d{10,13}\b`),
}

func (s *phoneStage) Kind() models.ArtifactKind { return models.ArtifactPhone }

func (s *phoneStage) Find(text string) []models.Entity {
	var out []models.Entity
	claimed := newSpanSet()
	for _, re := range phonePatterns {
		for _, ent := range findWithPattern(re, models.ArtifactPhone, text, 0) {
			if claimed.overlaps(ent.Start, ent.End) {
				continue
			}
			claimed.add(ent.Start, ent.End)
			out = append(out, ent)
		}
	}
	return out
}

func (s *phoneStage) Normalize(raw string) string {
	return NormalizePhone(raw)
}

// financialStage extracts financial identifiers: account numbers introduced
// by an account marker, bank routing codes, and payment handles (user@bank
// without a dotted domain). Deliberately conservative: bare digit runs are
// never flagged.
type financialStage struct{}

var (
	// account numbers require a structural marker before the digits
	accountPattern = regexp.MustCompile(`(?i)\b(?:acct|account|acc|a/c|iban)\b[\s:#.=-]*([0-9][0-9\s.-]{5,30}[0-9])`)
	// 4 letters + 0 + 6 alphanumerics, the common bank routing code shape
	routingPattern = regexp.MustCompile(`\b[A-Z]{4}0[A-Z0-9]{6}\b`)
	// payment handle: local part @ short bare handle (no dot)
	handlePattern = regexp.MustCompile(`(?i)\b[a-z0-9._-]{3,}@[a-z]{2,15}\b`)
)

func (s *financialStage) Kind() models.ArtifactKind { return models.ArtifactFinancialID }

func (s *financialStage) Find(text string) []models.Entity {
	var out []models.Entity
	out = append(out, findWithPattern(accountPattern, models.ArtifactFinancialID, text, 1)...)
	out = append(out, findWithPattern(routingPattern, models.ArtifactFinancialID, text, 0)...)
	for _, ent := range findWithPattern(handlePattern, models.ArtifactFinancialID, text, 0) {
		// dotted domains are emails, claimed by the email stage
		if at := strings.LastIndex(ent.Value, "@"); at >= 0 && !strings.Contains(ent.Value[at:], ".") {
			out = append(out, ent)
		}
	}
	return out
}

func (s *financialStage) Normalize(raw string) string {
	return NormalizeFinancialID(raw)
}

// namedEntityStage extracts names and organizations the correspondent claims.
type namedEntityStage struct{}

var namePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?:(?i:my name is|this is|i am|i'm|speaking with))\s+((?:[A-Z][a-z]+)(?:\s+[A-Z][a-z]+){0,2})\b`),
	regexp.MustCompile(`(?:(?i:calling from|officer from|representing|on behalf of))\s+((?:[A-Z][A-Za-z&]*)(?:\s+[A-Z][A-Za-z&]*){0,3})\b`),
}

func (s *namedEntityStage) Kind() models.ArtifactKind { return models.ArtifactNamedEntity }

func (s *namedEntityStage) Find(text string) []models.Entity {
	var out []models.Entity
	for _, re := range namePatterns {
		out = append(out, findWithPattern(re, models.ArtifactNamedEntity, text, 1)...)
	}
	return out
}

func (s *namedEntityStage) Normalize(raw string) string {
	name := strings.Join(strings.Fields(raw), " ")
	if len(name) < 3 {
		return ""
	}
	return name
}
