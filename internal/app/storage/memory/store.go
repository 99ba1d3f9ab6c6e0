// Package memory implements storage.Store in-process, for tests and local
// development. Documents are kept JSON-encoded so filtering and decoding use
// the same code path a JSONB-backed adapter would.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/oddside/automation-runtime/internal/app/storage"
)

// Store is a thread-safe, in-memory implementation of storage.Store backed
// by a single logical collection.
type Store struct {
	mu   sync.RWMutex
	docs map[string]map[string]any
	// order preserves insertion order so unsorted Find calls are
	// deterministic across runs, matching real document stores closely
	// enough for tests that don't specify a Sort.
	order []string
}

// New returns an empty Store.
func New() *Store {
	return &Store{docs: make(map[string]map[string]any)}
}

func toMap(doc any) (map[string]any, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal document: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("unmarshal document: %w", err)
	}
	return m, nil
}

func decodeInto(m map[string]any, out any) error {
	raw, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal stored document: %w", err)
	}
	return json.Unmarshal(raw, out)
}

func decodeSliceInto(ms []map[string]any, out any) error {
	raw, err := json.Marshal(ms)
	if err != nil {
		return fmt.Errorf("marshal stored documents: %w", err)
	}
	return json.Unmarshal(raw, out)
}

// InsertOne stores a deep copy of doc under id.
func (s *Store) InsertOne(ctx context.Context, id string, doc any) error {
	m, err := toMap(doc)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.docs[id]; !exists {
		s.order = append(s.order, id)
	}
	s.docs[id] = m
	return nil
}

func fieldValue(doc map[string]any, path string) (any, bool) {
	parts := strings.Split(path, ".")
	var cur any = doc
	for _, p := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[p]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func matches(doc map[string]any, filter storage.Filter) bool {
	for field, want := range filter {
		got, ok := fieldValue(doc, field)
		if !ok {
			return false
		}
		if !equalLoose(got, want) {
			return false
		}
	}
	return true
}

// equalLoose compares JSON-decoded values (float64 for all numbers) against
// caller-supplied Go literals (which may be int) without requiring callers
// to match numeric types exactly.
func equalLoose(got, want any) bool {
	if gf, ok := toFloat(got); ok {
		if wf, ok := toFloat(want); ok {
			return gf == wf
		}
	}
	return got == want
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func (s *Store) matchingIDs(filter storage.Filter) []string {
	var ids []string
	for _, id := range s.order {
		if matches(s.docs[id], filter) {
			ids = append(ids, id)
		}
	}
	return ids
}

// FindOne returns the first document matching filter in insertion order.
func (s *Store) FindOne(ctx context.Context, filter storage.Filter, out any) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, id := range s.order {
		if matches(s.docs[id], filter) {
			return decodeInto(s.docs[id], out)
		}
	}
	return storage.ErrNotFound
}

// Find returns documents matching filter, optionally sorted and limited.
func (s *Store) Find(ctx context.Context, filter storage.Filter, srt *storage.Sort, limit int, out any) error {
	s.mu.RLock()
	ids := s.matchingIDs(filter)
	docs := make([]map[string]any, 0, len(ids))
	for _, id := range ids {
		docs = append(docs, s.docs[id])
	}
	s.mu.RUnlock()

	if srt != nil {
		sort.SliceStable(docs, func(i, j int) bool {
			vi, _ := fieldValue(docs[i], srt.Field)
			vj, _ := fieldValue(docs[j], srt.Field)
			less := lessThan(vi, vj)
			if srt.Desc {
				return !less && !equalLoose(vi, vj)
			}
			return less
		})
	}
	if limit > 0 && len(docs) > limit {
		docs = docs[:limit]
	}
	return decodeSliceInto(docs, out)
}

func lessThan(a, b any) bool {
	if af, ok := toFloat(a); ok {
		if bf, ok := toFloat(b); ok {
			return af < bf
		}
	}
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		return as < bs
	}
	return false
}

func applyUpdate(doc map[string]any, update storage.Update) {
	for k, v := range update.Set {
		doc[k] = v
	}
	for k, delta := range update.Inc {
		cur, _ := toFloat(doc[k])
		doc[k] = cur + float64(delta)
	}
	for k, v := range update.Push {
		arr, _ := doc[k].([]any)
		doc[k] = append(arr, v)
	}
	for k, v := range update.AddToSet {
		arr, _ := doc[k].([]any)
		found := false
		for _, existing := range arr {
			if equalLoose(existing, v) {
				found = true
				break
			}
		}
		if !found {
			doc[k] = append(arr, v)
		}
	}
}

// UpdateOne applies update to the first document matching filter.
func (s *Store) UpdateOne(ctx context.Context, filter storage.Filter, update storage.Update) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.order {
		if matches(s.docs[id], filter) {
			applyUpdate(s.docs[id], update)
			return nil
		}
	}
	return storage.ErrNotFound
}

// UpdateMany applies update to every document matching filter.
func (s *Store) UpdateMany(ctx context.Context, filter storage.Filter, update storage.Update) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var count int64
	for _, id := range s.order {
		if matches(s.docs[id], filter) {
			applyUpdate(s.docs[id], update)
			count++
		}
	}
	return count, nil
}

// DeleteOne removes the first document matching filter.
func (s *Store) DeleteOne(ctx context.Context, filter storage.Filter) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, id := range s.order {
		if matches(s.docs[id], filter) {
			delete(s.docs, id)
			s.order = append(s.order[:i], s.order[i+1:]...)
			return nil
		}
	}
	return storage.ErrNotFound
}

// CountDocuments counts documents matching filter.
func (s *Store) CountDocuments(ctx context.Context, filter storage.Filter) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.matchingIDs(filter))), nil
}

// Distinct returns the distinct values of field among documents matching
// filter, in first-seen order.
func (s *Store) Distinct(ctx context.Context, field string, filter storage.Filter) ([]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []any
	seen := make([]any, 0)
	for _, id := range s.matchingIDs(filter) {
		v, ok := fieldValue(s.docs[id], field)
		if !ok {
			continue
		}
		dup := false
		for _, sv := range seen {
			if equalLoose(sv, v) {
				dup = true
				break
			}
		}
		if !dup {
			seen = append(seen, v)
			out = append(out, v)
		}
	}
	return out, nil
}
