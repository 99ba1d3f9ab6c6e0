package system

import (
	"context"
	"fmt"
	"sync"

	core "github.com/oddside/automation-runtime/internal/app/core/service"
)

// Manager owns a fixed set of Services and drives their lifecycle together.
// Services start in registration order; if one fails to start, the manager
// stops everything already started (in reverse) before returning the error.
// Services stop in reverse registration order regardless of how they were
// started, so teardown unwinds dependencies the same way a defer stack would.
type Manager struct {
	mu       sync.Mutex
	services []Service
	started  []Service
	startOne sync.Once
	stopOnce sync.Once
}

// NewManager builds a Manager over the given services, preserving order.
func NewManager(services ...Service) *Manager {
	return &Manager{services: append([]Service(nil), services...)}
}

// Register appends a service. It must be called before Start.
func (m *Manager) Register(svc Service) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.services = append(m.services, svc)
}

// Start starts every registered service in order. On failure it unwinds
// (stops) every service already started, then returns the original error
// wrapped with the failing service's name.
func (m *Manager) Start(ctx context.Context) error {
	var startErr error
	m.startOne.Do(func() {
		m.mu.Lock()
		services := append([]Service(nil), m.services...)
		m.mu.Unlock()

		for _, svc := range services {
			if err := svc.Start(ctx); err != nil {
				startErr = fmt.Errorf("start %s: %w", svc.Name(), err)
				m.unwind(ctx)
				return
			}
			m.mu.Lock()
			m.started = append(m.started, svc)
			m.mu.Unlock()
		}
	})
	return startErr
}

// unwind stops every started service in reverse order, best-effort. Callers
// hold no lock when invoking this; it takes its own snapshot.
func (m *Manager) unwind(ctx context.Context) {
	m.mu.Lock()
	started := append([]Service(nil), m.started...)
	m.started = nil
	m.mu.Unlock()

	for i := len(started) - 1; i >= 0; i-- {
		_ = started[i].Stop(ctx)
	}
}

// Stop stops every started service in reverse order and returns the first
// error encountered, continuing to stop the rest regardless.
func (m *Manager) Stop(ctx context.Context) error {
	var stopErr error
	m.stopOnce.Do(func() {
		m.mu.Lock()
		started := append([]Service(nil), m.started...)
		m.started = nil
		m.mu.Unlock()

		for i := len(started) - 1; i >= 0; i-- {
			if err := started[i].Stop(ctx); err != nil && stopErr == nil {
				stopErr = fmt.Errorf("stop %s: %w", started[i].Name(), err)
			}
		}
	})
	return stopErr
}

// Descriptors returns descriptors for every registered service that
// implements DescriptorProvider, sorted for deterministic presentation.
func (m *Manager) Descriptors() []core.Descriptor {
	m.mu.Lock()
	services := append([]Service(nil), m.services...)
	m.mu.Unlock()

	var providers []DescriptorProvider
	for _, svc := range services {
		if dp, ok := svc.(DescriptorProvider); ok {
			providers = append(providers, dp)
		}
	}
	return CollectDescriptors(providers)
}
