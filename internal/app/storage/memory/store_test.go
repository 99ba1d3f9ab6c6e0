package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/oddside/automation-runtime/internal/app/storage"
)

type widget struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Priority int    `json:"priority"`
	Tags     []any  `json:"tags,omitempty"`
}

func TestInsertAndFindOne(t *testing.T) {
	s := New()
	ctx := context.Background()
	if err := s.InsertOne(ctx, "w1", widget{ID: "w1", Name: "alpha", Priority: 3}); err != nil {
		t.Fatalf("InsertOne: %v", err)
	}

	var got widget
	if err := s.FindOne(ctx, storage.Filter{"name": "alpha"}, &got); err != nil {
		t.Fatalf("FindOne: %v", err)
	}
	if got.Priority != 3 {
		t.Fatalf("expected priority 3, got %d", got.Priority)
	}
}

func TestFindOneNotFound(t *testing.T) {
	s := New()
	var got widget
	err := s.FindOne(context.Background(), storage.Filter{"name": "nope"}, &got)
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFindSortedAndLimited(t *testing.T) {
	s := New()
	ctx := context.Background()
	_ = s.InsertOne(ctx, "w1", widget{ID: "w1", Name: "a", Priority: 1})
	_ = s.InsertOne(ctx, "w2", widget{ID: "w2", Name: "b", Priority: 3})
	_ = s.InsertOne(ctx, "w3", widget{ID: "w3", Name: "c", Priority: 2})

	var out []widget
	if err := s.Find(ctx, nil, &storage.Sort{Field: "priority", Desc: true}, 2, &out); err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(out) != 2 || out[0].Priority != 3 || out[1].Priority != 2 {
		t.Fatalf("expected top-2 by priority desc, got %+v", out)
	}
}

func TestUpdateOneSetIncPush(t *testing.T) {
	s := New()
	ctx := context.Background()
	_ = s.InsertOne(ctx, "w1", widget{ID: "w1", Name: "alpha", Priority: 1})

	update := storage.Update{
		Set:  map[string]any{"name": "beta"},
		Inc:  map[string]int64{"priority": 2},
		Push: map[string]any{"tags": "urgent"},
	}
	if err := s.UpdateOne(ctx, storage.Filter{"id": "w1"}, update); err != nil {
		t.Fatalf("UpdateOne: %v", err)
	}

	var got widget
	_ = s.FindOne(ctx, storage.Filter{"id": "w1"}, &got)
	if got.Name != "beta" || got.Priority != 3 {
		t.Fatalf("expected name=beta priority=3, got %+v", got)
	}
	if len(got.Tags) != 1 || got.Tags[0] != "urgent" {
		t.Fatalf("expected tags=[urgent], got %+v", got.Tags)
	}
}

func TestCountAndDistinct(t *testing.T) {
	s := New()
	ctx := context.Background()
	_ = s.InsertOne(ctx, "w1", widget{ID: "w1", Name: "a", Priority: 1})
	_ = s.InsertOne(ctx, "w2", widget{ID: "w2", Name: "a", Priority: 2})
	_ = s.InsertOne(ctx, "w3", widget{ID: "w3", Name: "b", Priority: 1})

	count, err := s.CountDocuments(ctx, storage.Filter{"name": "a"})
	if err != nil {
		t.Fatalf("CountDocuments: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected count 2, got %d", count)
	}

	distinct, err := s.Distinct(ctx, "name", nil)
	if err != nil {
		t.Fatalf("Distinct: %v", err)
	}
	if len(distinct) != 2 {
		t.Fatalf("expected 2 distinct names, got %v", distinct)
	}
}

func TestDeleteOne(t *testing.T) {
	s := New()
	ctx := context.Background()
	_ = s.InsertOne(ctx, "w1", widget{ID: "w1", Name: "alpha"})

	if err := s.DeleteOne(ctx, storage.Filter{"id": "w1"}); err != nil {
		t.Fatalf("DeleteOne: %v", err)
	}
	var got widget
	if err := s.FindOne(ctx, storage.Filter{"id": "w1"}, &got); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected document to be gone, got err=%v", err)
	}
}
