// Package feedbackpipeline implements C11: PII redaction and duplicate
// detection on submission, classification (LLM with keyword fallback),
// severity/SLA assignment, and two-tier auto-fix dispatch gated by
// policy.FeedbackPolicy.
package feedbackpipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/oddside/automation-runtime/internal/app/domain/feedback"
	"github.com/oddside/automation-runtime/internal/app/services/policy"
	"github.com/oddside/automation-runtime/internal/app/storage"
	"github.com/oddside/automation-runtime/pkg/logger"
)

// piiPattern is one fixed regex substitution applied before a submission is
// ever persisted.
type piiPattern struct {
	re          *regexp.Regexp
	replacement string
}

// piiPatterns is deliberately ordered card/SSN/email/phone before the
// catch-all long-numeric-account pattern, since the account pattern alone
// would also match a already-redacted card or phone number's digits.
var piiPatterns = []piiPattern{
	{regexp.MustCompile(`\b\d{4}[\s-]?\d{4}[\s-]?\d{4}[\s-]?\d{4}\b`), "[CARD_REDACTED]"},
	{regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`), "[SSN_REDACTED]"},
	{regexp.MustCompile(`(?i)\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`), "[EMAIL_REDACTED]"},
	{regexp.MustCompile(`\b(?:\+?1[-.\s]?)?\(?\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}\b`), "[PHONE_REDACTED]"},
	{regexp.MustCompile(`\b\d{5,}(?:[-\s]\d{4,})?\b`), "[ACCOUNT_REDACTED]"},
}

// redactPII scrubs text against the fixed PII pattern table.
func redactPII(text string) string {
	for _, p := range piiPatterns {
		text = p.re.ReplaceAllString(text, p.replacement)
	}
	return text
}

// duplicateWindow is how far back a matching content hash is treated as a
// duplicate of an earlier submission, scoped to the same group.
const duplicateWindow = 7 * 24 * time.Hour

// contentHash truncates a SHA-256 of the lower-cased, whitespace-normalized
// content to 16 hex chars; good enough for dedup, not a security boundary.
func contentHash(content string) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(content)), " ")
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])[:16]
}

// fixRule maps a keyword group to one of the auto-fixable types the
// feedback policy already knows cooldowns for.
type fixRule struct {
	fixType  string
	tier     policy.FeedbackTier
	keywords []string
}

// fixRules mirrors the product's auto-fixable-pattern table, retargeted at
// the four fix types FeedbackPolicy already carries cooldowns for.
// recompute_ledger is read-only (it recomputes and compares, never writes),
// so it is the only verify-tier rule; the other three mutate state a host
// or admin must confirm.
var fixRules = []fixRule{
	{
		fixType: "recompute_ledger", tier: policy.TierVerify,
		keywords: []string{
			"settlement wrong", "settlement incorrect", "settlement error",
			"wrong amount", "settle wrong", "bad settlement", "incorrect settlement",
			"chips don't add up", "chip count wrong", "cash out wrong", "cashout wrong",
		},
	},
	{
		fixType: "resend_invite", tier: policy.TierMutate,
		keywords: []string{
			"can't join", "cannot join", "unable to join", "won't let me join",
			"access denied", "no access", "can't see the game", "not in group",
			"can't find the group", "permission denied",
		},
	},
	{
		fixType: "void_duplicate_game", tier: policy.TierMutate,
		keywords: []string{
			"duplicate game", "created twice", "two games", "game twice", "duplicated the game",
		},
	},
	{
		fixType: "reissue_payment", tier: policy.TierMutate,
		keywords: []string{
			"payment not tracked", "payment missing", "payment not showing",
			"paid but not showing", "already paid", "payment not recorded",
			"stripe not working", "didn't record my payment",
		},
	},
}

// detectFix reports the first auto-fixable pattern content matches, if any.
func detectFix(content string) (fixType string, tier policy.FeedbackTier, ok bool) {
	lower := strings.ToLower(content)
	for _, r := range fixRules {
		for _, kw := range r.keywords {
			if strings.Contains(lower, kw) {
				return r.fixType, r.tier, true
			}
		}
	}
	return "", "", false
}

// FixExecutor runs an auto-fix the policy has already allowed. It returns a
// short human-readable result string recorded on the feedback entry.
type FixExecutor interface {
	ExecuteFix(ctx context.Context, req policy.AutoFixRequest) (string, error)
}

// LoggerFixExecutor records every fix attempt through the structured logger
// instead of touching real ledger/invite/game state.
type LoggerFixExecutor struct {
	log *logger.Logger
}

// NewLoggerFixExecutor builds a LoggerFixExecutor.
func NewLoggerFixExecutor(log *logger.Logger) *LoggerFixExecutor {
	return &LoggerFixExecutor{log: log}
}

// ExecuteFix implements FixExecutor.
func (e *LoggerFixExecutor) ExecuteFix(_ context.Context, req policy.AutoFixRequest) (string, error) {
	e.log.WithField("feedback_id", req.Feedback.FeedbackID).
		WithField("fix_type", req.FixType).
		WithField("tier", string(req.Tier)).
		Info("dispatching feedback auto-fix")
	return fmt.Sprintf("logged %s for %s", req.FixType, req.Feedback.FeedbackID), nil
}

// SubmitInput is a new feedback submission before redaction, hashing, or
// classification.
type SubmitInput struct {
	UserID       string
	FeedbackType string
	Content      string
	GroupID      string
	GameID       string
	PotCents     int64
}

// SubmitResult reports what Submit did with a submission.
type SubmitResult struct {
	Feedback  *feedback.Feedback
	Duplicate bool
}

// Pipeline runs every feedback submission through redaction, dedup,
// classification, and auto-fix dispatch.
type Pipeline struct {
	store      storage.Store
	policy     *policy.FeedbackPolicy
	classifier Classifier
	fallback   *KeywordClassifier
	executor   FixExecutor
	now        func() time.Time
}

// New builds a Pipeline. classifier is the optional LLM collaborator; pass
// nil to classify with the keyword fallback alone.
func New(store storage.Store, feedbackPolicy *policy.FeedbackPolicy, classifier Classifier, executor FixExecutor) *Pipeline {
	return &Pipeline{
		store: store, policy: feedbackPolicy, classifier: classifier,
		fallback: NewKeywordClassifier(), executor: executor, now: time.Now,
	}
}

func (p *Pipeline) clock() time.Time {
	if p.now != nil {
		return p.now()
	}
	return time.Now()
}

// Submit runs the full C11 pipeline over one feedback submission: redact,
// dedup, classify, assign severity/SLA, and attempt a verify-tier auto-fix
// if one is detected and the policy allows it.
func (p *Pipeline) Submit(ctx context.Context, in SubmitInput) (*SubmitResult, error) {
	if in.UserID == "" || in.Content == "" {
		return nil, fmt.Errorf("user_id and content are required")
	}

	hash := contentHash(in.Content)
	existing, err := p.findDuplicate(ctx, in.GroupID, hash)
	if err != nil {
		return nil, fmt.Errorf("check duplicate: %w", err)
	}
	if existing != nil {
		if err := p.appendEvent(ctx, existing.FeedbackID, "duplicate_attempt", ""); err != nil {
			return nil, fmt.Errorf("record duplicate attempt: %w", err)
		}
		return &SubmitResult{Feedback: existing, Duplicate: true}, nil
	}

	now := p.clock()
	redacted := redactPII(in.Content)

	fb := &feedback.Feedback{
		FeedbackID:   uuid.NewString(),
		UserID:       in.UserID,
		FeedbackType: in.FeedbackType,
		Content:      redacted,
		ContentHash:  hash,
		ContextRefs:  feedback.ContextRefs{GroupID: in.GroupID, GameID: in.GameID},
		Status:       feedback.StatusNew,
		OwnerType:    feedback.OwnerSystem,
		Events:       []feedback.Event{{At: now, Kind: "created", Message: in.FeedbackType}},
		CreatedAt:    now,
	}

	classification, err := p.classify(ctx, redacted, in.FeedbackType)
	if err != nil {
		return nil, fmt.Errorf("classify feedback: %w", err)
	}
	fb.ApplyClassification(classification, now)

	if err := p.store.InsertOne(ctx, fb.FeedbackID, fb); err != nil {
		return nil, fmt.Errorf("insert feedback: %w", err)
	}

	if err := p.dispatchFix(ctx, fb, redacted, in.PotCents); err != nil {
		return nil, fmt.Errorf("dispatch auto-fix: %w", err)
	}
	if err := p.upsertFeedback(ctx, fb); err != nil {
		return nil, fmt.Errorf("persist auto-fix dispatch: %w", err)
	}
	return &SubmitResult{Feedback: fb, Duplicate: false}, nil
}

// classify tries the optional LLM classifier first and falls back to
// keywords on a nil classifier or a failed call — classification is
// best-effort, never a reason to drop the submission.
func (p *Pipeline) classify(ctx context.Context, content, feedbackType string) (feedback.Classification, error) {
	if p.classifier != nil {
		if c, err := p.classifier.Classify(ctx, content, feedbackType); err == nil {
			return c, nil
		}
	}
	return p.fallback.Classify(ctx, content, feedbackType)
}

// dispatchFix attempts the detected auto-fix, if any. Only a verify-tier
// fix runs unattended here since a mutate-tier fix needs a confirmed
// host/admin, which a bare submission never carries; those are instead
// flagged for host action and picked up later through ConfirmFix.
func (p *Pipeline) dispatchFix(ctx context.Context, fb *feedback.Feedback, content string, potCents int64) error {
	fixType, tier, ok := detectFix(content)
	if !ok {
		return nil
	}

	if tier == policy.TierMutate {
		fb.Status = feedback.StatusNeedsHostAction
		fb.OwnerType = feedback.OwnerHost
		fb.Events = append(fb.Events, feedback.Event{At: p.clock(), Kind: "fix_candidate_detected", Message: fixType})
		return nil
	}

	return p.attemptFix(ctx, fb, fixType, tier, policy.Role(""), false, potCents)
}

// ConfirmFix re-runs a mutate-tier auto-fix a host or admin has now
// confirmed, for a feedback entry previously flagged by dispatchFix.
func (p *Pipeline) ConfirmFix(ctx context.Context, feedbackID, fixType string, actorRole policy.Role, potCents int64) error {
	var fb feedback.Feedback
	if err := p.store.FindOne(ctx, storage.Filter{"feedback_id": feedbackID}, &fb); err != nil {
		return fmt.Errorf("find feedback %s: %w", feedbackID, err)
	}
	return p.attemptFix(ctx, &fb, fixType, policy.TierMutate, actorRole, true, potCents)
}

func (p *Pipeline) attemptFix(ctx context.Context, fb *feedback.Feedback, fixType string, tier policy.FeedbackTier, actorRole policy.Role, confirmed bool, potCents int64) error {
	req := policy.AutoFixRequest{
		Feedback: fb, FixType: fixType, Tier: tier,
		Confirmed: confirmed, ActorRole: actorRole, PotCents: potCents,
		LastAttemptAt: fb.LastAutoFixAt, RetryCount: fb.AutoFixRetryCount,
	}
	dec, err := p.policy.Check(ctx, req)
	if err != nil {
		return fmt.Errorf("feedback policy check: %w", err)
	}

	now := p.clock()
	if !dec.Allowed {
		fb.Events = append(fb.Events, feedback.Event{At: now, Kind: "fix_blocked", Message: dec.BlockedReason})
		return p.upsertFeedback(ctx, fb)
	}

	fb.AutoFixRetryCount++
	fb.LastAutoFixAt = &now

	result, err := p.executor.ExecuteFix(ctx, req)
	if err != nil {
		fb.Events = append(fb.Events, feedback.Event{At: now, Kind: "fix_failed", Message: err.Error()})
		return p.upsertFeedback(ctx, fb)
	}

	fb.AutoFixAttempted = true
	fb.AutoFixResult = result
	fb.Status = feedback.StatusAutoFixed
	fb.Events = append(fb.Events, feedback.Event{At: now, Kind: "fix_applied", Message: result})
	return p.upsertFeedback(ctx, fb)
}

// upsertFeedback persists fb's mutable fields; new entries are inserted by
// Submit directly, so this only ever updates an existing one.
func (p *Pipeline) upsertFeedback(ctx context.Context, fb *feedback.Feedback) error {
	return p.store.UpdateOne(ctx, storage.Filter{"feedback_id": fb.FeedbackID}, storage.Update{
		Set: map[string]any{
			"status":               string(fb.Status),
			"owner_type":           string(fb.OwnerType),
			"auto_fix_attempted":   fb.AutoFixAttempted,
			"auto_fix_result":      fb.AutoFixResult,
			"auto_fix_retry_count": fb.AutoFixRetryCount,
			"last_auto_fix_at":     fb.LastAutoFixAt,
			"events":               fb.Events,
		},
	})
}

func (p *Pipeline) findDuplicate(ctx context.Context, groupID, hash string) (*feedback.Feedback, error) {
	var candidates []feedback.Feedback
	filter := storage.Filter{"content_hash": hash, "context_refs.group_id": groupID}
	if err := p.store.Find(ctx, filter, nil, 0, &candidates); err != nil {
		return nil, err
	}
	cutoff := p.clock().Add(-duplicateWindow)
	for _, c := range candidates {
		if c.CreatedAt.After(cutoff) {
			found := c
			return &found, nil
		}
	}
	return nil, nil
}

func (p *Pipeline) appendEvent(ctx context.Context, feedbackID, kind, message string) error {
	return p.store.UpdateOne(ctx, storage.Filter{"feedback_id": feedbackID}, storage.Update{
		Push: map[string]any{"events": feedback.Event{At: p.clock(), Kind: kind, Message: message}},
	})
}
