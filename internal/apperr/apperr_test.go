package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsMatchesWrappedKind(t *testing.T) {
	base := New(KindPolicyBlocked, "quiet_hours")
	wrapped := fmt.Errorf("reminder denied: %w", base)

	if !Is(wrapped, KindPolicyBlocked) {
		t.Fatalf("expected Is to find the wrapped policy_blocked kind")
	}
	if Is(wrapped, KindFatal) {
		t.Fatalf("expected Is to reject a non-matching kind")
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(KindExternalUnavailable, "persistence unavailable", cause)

	if !errors.Is(err, cause) {
		t.Fatalf("expected errors.Is to find the wrapped cause")
	}
	if KindOf(err) != KindExternalUnavailable {
		t.Fatalf("expected KindOf to report external_unavailable, got %s", KindOf(err))
	}
}

func TestKindOfUnTaggedError(t *testing.T) {
	if KindOf(errors.New("plain")) != "" {
		t.Fatalf("expected empty Kind for an untagged error")
	}
}
