// Package delivery adapts automation and nudge output onto outbound
// channels. LoggerExecutor is the baseline adapter: every other channel
// (push, email, in-app) plugs in behind the same ActionExecutor contract and
// can wrap or replace it without touching the engine that calls it.
package delivery

import (
	"context"
	"fmt"

	"github.com/oddside/automation-runtime/internal/app/domain/automation"
	"github.com/oddside/automation-runtime/pkg/logger"
)

// LoggerExecutor records every action through the structured logger instead
// of dispatching to a real channel. It satisfies automationengine.ActionExecutor
// and the policy/runner layers it feeds don't know the difference, which is
// what keeps a staging environment runnable without provider credentials.
type LoggerExecutor struct {
	log *logger.Logger
}

// NewLoggerExecutor builds a LoggerExecutor that writes through log.
func NewLoggerExecutor(log *logger.Logger) *LoggerExecutor {
	return &LoggerExecutor{log: log}
}

// Execute implements automationengine.ActionExecutor.
func (e *LoggerExecutor) Execute(ctx context.Context, action automation.Action, payload map[string]any, ownerID string) (string, error) {
	e.log.WithField("owner_id", ownerID).
		WithField("action_type", string(action.Type)).
		WithField("params", action.Params).
		Info("dispatching automation action")
	return fmt.Sprintf("logged %s for %s", action.Type, ownerID), nil
}
