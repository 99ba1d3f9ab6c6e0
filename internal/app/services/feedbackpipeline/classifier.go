package feedbackpipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/oddside/automation-runtime/internal/app/domain/feedback"
)

// PromptVersion is stamped on every classification so a later prompt change
// can be tracked against the results it produced.
const PromptVersion = "v1"

// Classifier turns raw feedback content into a Classification. The LLM
// collaborator (external, optional) and the deterministic keyword fallback
// both implement it so Pipeline can treat them identically.
type Classifier interface {
	Classify(ctx context.Context, content, feedbackType string) (feedback.Classification, error)
}

// categoryRule is one keyword group that, on a match, sets the category and
// contributes to confidence and evidence.
type categoryRule struct {
	category feedback.Category
	keywords []string
}

// categoryRules mirrors the product's keyword-classification table: the
// first rule with any matching keyword wins, scored by how many rules hit.
var categoryRules = []categoryRule{
	{feedback.CategoryBug, []string{"bug", "error", "crash", "broken", "doesn't work", "not working", "failed"}},
	{feedback.CategorySettlement, []string{"settlement", "settle", "chips", "cash out", "cashout"}},
	{feedback.CategoryPayment, []string{"payment", "venmo", "zelle", "stripe", "paid but"}},
	{feedback.CategoryAccess, []string{"can't join", "access denied", "permission", "can't see"}},
	{feedback.CategoryFeature, []string{"feature", "wish", "would be nice", "suggestion", "request"}},
	{feedback.CategoryUX, []string{"confus", "hard to", "difficult", "unclear", "interface"}},
}

// severityKeywords forces a minimum severity when any of its keywords
// appear, independent of the category match; "critical" is checked before
// "high" so a message carrying both lands on the higher one.
var severityKeywords = []struct {
	severity feedback.Severity
	keywords []string
}{
	{feedback.SeverityCritical, []string{"money", "lost", "wrong amount", "security", "data", "crash"}},
	{feedback.SeverityHigh, []string{"broken", "doesn't work", "can't", "error", "failed", "settlement"}},
}

var (
	positiveKeywords = []string{"love", "great", "awesome", "amazing", "thank", "excellent", "perfect"}
	negativeKeywords = []string{"hate", "terrible", "worst", "awful", "frustrat", "annoying", "angry", "disappointed"}
)

var tagKeywords = map[string][]string{
	"settlement":   {"settlement", "settle"},
	"payment":      {"payment", "paid", "venmo", "zelle", "stripe"},
	"notification": {"notification", "alert"},
	"mobile":       {"mobile", "app", "phone", "ios", "android"},
	"web":          {"web", "browser", "desktop"},
	"game":         {"game", "poker", "hand"},
}

// KeywordClassifier is the always-available fallback: no external call, no
// credentials, just substring matching against a fixed table. It never
// errors — there is nothing left to fall back to.
type KeywordClassifier struct{}

// NewKeywordClassifier builds a KeywordClassifier.
func NewKeywordClassifier() *KeywordClassifier {
	return &KeywordClassifier{}
}

// Classify implements Classifier.
func (k *KeywordClassifier) Classify(_ context.Context, content, feedbackType string) (feedback.Classification, error) {
	lower := strings.ToLower(content)

	category := feedback.CategoryOther
	confidence := 0.4
	if feedbackType != "" {
		category = feedback.Category(feedbackType)
		confidence = 0.5
	}

	var evidence []string
	matched := false
	for _, rule := range categoryRules {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				if !matched {
					category = rule.category
					matched = true
				}
				evidence = append(evidence, kw)
				confidence = min(0.7, confidence+0.1)
				break
			}
		}
	}

	severity := feedback.SeverityMedium
	for _, sk := range severityKeywords {
		hit := false
		for _, kw := range sk.keywords {
			if strings.Contains(lower, kw) {
				hit = true
				evidence = append(evidence, kw)
			}
		}
		if hit {
			severity = sk.severity
			break
		}
	}

	sentiment := "neutral"
	if containsAny(lower, positiveKeywords) {
		sentiment = "positive"
	} else if containsAny(lower, negativeKeywords) {
		sentiment = "negative"
	}

	var tags []string
	for tag, kws := range tagKeywords {
		if containsAny(lower, kws) {
			tags = append(tags, tag)
		}
	}

	summary := content
	if len(summary) > 100 {
		summary = summary[:100] + "..."
	}
	reasoning := "keyword match: no strong keywords"
	if len(evidence) > 0 {
		reasoning = fmt.Sprintf("keyword match: %s", strings.Join(dedupe(evidence), ", "))
	}

	return feedback.Classification{
		Category:         category,
		Severity:         severity,
		Confidence:       confidence,
		Sentiment:        sentiment,
		Tags:             tags,
		EvidenceKeywords: dedupe(evidence),
		Summary:          summary,
		Reasoning:        reasoning,
		PromptVersion:    PromptVersion,
		Model:            "",
	}, nil
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}

func dedupe(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(in))
	var out []string
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
