package policy

import (
	"context"
	"testing"
	"time"
)

func TestMemoryCounterIncrementsAndExpires(t *testing.T) {
	now := time.Now()
	c := NewMemoryCounter()
	c.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		if _, err := c.Increment(context.Background(), "k", time.Minute); err != nil {
			t.Fatalf("Increment: %v", err)
		}
	}
	got, err := c.Get(context.Background(), "k")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != 3 {
		t.Fatalf("expected count 3, got %d", got)
	}

	c.now = func() time.Time { return now.Add(2 * time.Minute) }
	got, _ = c.Get(context.Background(), "k")
	if got != 0 {
		t.Fatalf("expected count reset after ttl expiry, got %d", got)
	}
}
