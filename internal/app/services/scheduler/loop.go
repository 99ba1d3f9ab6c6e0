// Package scheduler provides a generic lifecycle-managed periodic loop,
// reused for every background scan the runtime needs (job enqueue, job
// dispatch, digests, and the proactive game/stale/RSVP/settlement scans).
package scheduler

import (
	"context"
	"math/rand"
	"sync"
	"time"

	core "github.com/oddside/automation-runtime/internal/app/core/service"
	"github.com/oddside/automation-runtime/internal/app/system"
	"github.com/oddside/automation-runtime/pkg/logger"
)

// Ensure Loop implements system.Service.
var _ system.Service = (*Loop)(nil)

// TickFunc performs one scan/enqueue/dispatch cycle.
type TickFunc func(ctx context.Context) error

// Loop runs tickFn on a fixed interval, started after a random jitter in
// [jitterMin, jitterMax) so many loops booted at once don't all fire
// together.
type Loop struct {
	name      string
	interval  time.Duration
	jitterMin time.Duration
	jitterMax time.Duration
	tickFn    TickFunc
	log       *logger.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// New builds a named periodic Loop. jitterMin/jitterMax may both be zero to
// disable the startup stagger (used by tests).
func New(name string, interval, jitterMin, jitterMax time.Duration, tickFn TickFunc, log *logger.Logger) *Loop {
	if log == nil {
		log = logger.NewDefault(name)
	}
	return &Loop{name: name, interval: interval, jitterMin: jitterMin, jitterMax: jitterMax, tickFn: tickFn, log: log}
}

// Name returns the loop's service identifier.
func (l *Loop) Name() string { return l.name }

// Descriptor advertises the loop's architectural placement.
func (l *Loop) Descriptor() core.Descriptor {
	return core.Descriptor{
		Name:   l.name,
		Domain: "scheduling",
		Layer:  core.LayerEngine,
	}.WithCapabilities("periodic-scan")
}

func (l *Loop) jitter() time.Duration {
	if l.jitterMax <= l.jitterMin {
		return l.jitterMin
	}
	span := l.jitterMax - l.jitterMin
	return l.jitterMin + time.Duration(rand.Int63n(int64(span)))
}

// Start begins the background ticking goroutine after the configured
// startup jitter.
func (l *Loop) Start(ctx context.Context) error {
	l.mu.Lock()
	if l.running {
		l.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.running = true
	l.mu.Unlock()

	delay := l.jitter()
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-runCtx.Done():
			return
		case <-timer.C:
		}

		l.runTick(runCtx)

		ticker := time.NewTicker(l.interval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				l.runTick(runCtx)
			}
		}
	}()

	l.log.Infof("%s started (interval=%s, jitter=%s-%s)", l.name, l.interval, l.jitterMin, l.jitterMax)
	return nil
}

func (l *Loop) runTick(ctx context.Context) {
	if l.tickFn == nil {
		return
	}
	if err := l.tickFn(ctx); err != nil {
		l.log.WithError(err).Warnf("%s tick failed", l.name)
	}
}

// Stop halts the ticking goroutine and waits for the in-flight tick, if any,
// to finish.
func (l *Loop) Stop(ctx context.Context) error {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return nil
	}
	cancel := l.cancel
	l.running = false
	l.cancel = nil
	l.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		l.wg.Wait()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	l.log.Infof("%s stopped", l.name)
	return nil
}
