package system

import (
	"context"
	"errors"
	"testing"

	core "github.com/oddside/automation-runtime/internal/app/core/service"
)

type fakeService struct {
	name      string
	startErr  error
	startedAt *int
	stoppedAt *int
	seq       *int
	descr     *core.Descriptor
}

func (f *fakeService) Name() string { return f.name }

func (f *fakeService) Start(ctx context.Context) error {
	if f.startErr != nil {
		return f.startErr
	}
	*f.seq++
	*f.startedAt = *f.seq
	return nil
}

func (f *fakeService) Stop(ctx context.Context) error {
	*f.seq++
	*f.stoppedAt = *f.seq
	return nil
}

func (f *fakeService) Descriptor() core.Descriptor {
	if f.descr != nil {
		return *f.descr
	}
	return core.Descriptor{Name: f.name, Layer: core.LayerEngine}
}

func TestManagerStartsInOrderStopsInReverse(t *testing.T) {
	seq := 0
	var startA, startB, stopA, stopB int
	a := &fakeService{name: "a", seq: &seq, startedAt: &startA, stoppedAt: &stopA}
	b := &fakeService{name: "b", seq: &seq, startedAt: &startB, stoppedAt: &stopB}

	mgr := NewManager(a, b)
	if err := mgr.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if startA >= startB {
		t.Fatalf("expected a to start before b: a=%d b=%d", startA, startB)
	}

	if err := mgr.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if stopB >= stopA {
		t.Fatalf("expected b to stop before a: b=%d a=%d", stopB, stopA)
	}
}

func TestManagerUnwindsOnStartFailure(t *testing.T) {
	seq := 0
	var startA, stopA, startB int
	a := &fakeService{name: "a", seq: &seq, startedAt: &startA, stoppedAt: &stopA}
	failErr := errors.New("boom")
	b := &fakeService{name: "b", seq: &seq, startedAt: &startB, startErr: failErr}

	mgr := NewManager(a, b)
	err := mgr.Start(context.Background())
	if err == nil {
		t.Fatalf("expected start error")
	}
	if !errors.Is(err, failErr) {
		t.Fatalf("expected wrapped failErr, got %v", err)
	}
	if stopA == 0 {
		t.Fatalf("expected already-started service a to be stopped during unwind")
	}
}

func TestManagerDescriptorsSortedByLayer(t *testing.T) {
	seq := 0
	var sA, sB, stA, stB int
	descrA := core.Descriptor{Name: "zeta", Layer: core.LayerData}
	descrB := core.Descriptor{Name: "alpha", Layer: core.LayerIngress}
	a := &fakeService{name: "zeta", seq: &seq, startedAt: &sA, stoppedAt: &stA, descr: &descrA}
	b := &fakeService{name: "alpha", seq: &seq, startedAt: &sB, stoppedAt: &stB, descr: &descrB}

	mgr := NewManager(a, b)
	descriptors := mgr.Descriptors()
	if len(descriptors) != 2 {
		t.Fatalf("expected 2 descriptors, got %d", len(descriptors))
	}
	if descriptors[0].Name != "zeta" {
		t.Fatalf("expected data-layer descriptor first (layers sort by name), got %s", descriptors[0].Name)
	}
}
