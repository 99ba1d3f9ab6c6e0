package app

import (
	"context"

	"github.com/oddside/automation-runtime/internal/app/domain/event"
	"github.com/oddside/automation-runtime/internal/app/services/feedbackpipeline"
)

// handleFeedbackSubmitted adapts a feedback_submitted event into a
// feedbackpipeline.SubmitInput and runs it through the pipeline. The event's
// payload fields are optional beyond user_id/content; everything else just
// narrows classification and auto-fix dispatch.
func handleFeedbackSubmitted(pipeline *feedbackpipeline.Pipeline) func(ctx context.Context, evt event.Event) error {
	return func(ctx context.Context, evt event.Event) error {
		in := feedbackpipeline.SubmitInput{
			UserID:       stringField(evt.Payload, "user_id"),
			FeedbackType: stringField(evt.Payload, "feedback_type"),
			Content:      stringField(evt.Payload, "content"),
			GroupID:      stringField(evt.Payload, "group_id"),
			GameID:       stringField(evt.Payload, "game_id"),
			PotCents:     int64Field(evt.Payload, "pot_cents"),
		}
		_, err := pipeline.Submit(ctx, in)
		return err
	}
}

func stringField(payload map[string]any, key string) string {
	s, _ := payload[key].(string)
	return s
}

func int64Field(payload map[string]any, key string) int64 {
	switch v := payload[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	default:
		return 0
	}
}
