// Package postgres implements storage.Store on top of a single JSONB
// "doc" column per collection, generalizing the base_store transaction
// helpers to the core's generic document-store contract instead of one
// normalized table per domain.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/oddside/automation-runtime/internal/app/storage"
	basepg "github.com/oddside/automation-runtime/pkg/storage/postgres"
)

// Store is a storage.Store backed by a table with an "id" primary key and a
// "doc" JSONB column holding the full document.
type Store struct {
	base *basepg.BaseStore
}

// NewStore wraps db for the given table, which must already exist with
// columns (id TEXT PRIMARY KEY, doc JSONB NOT NULL). EnsureTable creates it
// if missing.
func NewStore(db *sqlx.DB, table string) *Store {
	return &Store{base: basepg.NewBaseStore(db, table)}
}

// EnsureTable idempotently creates the collection's backing table.
func (s *Store) EnsureTable(ctx context.Context) error {
	query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id TEXT PRIMARY KEY,
		doc JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`, s.base.TableName())
	_, err := s.base.ExecContext(ctx, query)
	return err
}

func jsonPath(field string) string {
	parts := strings.Split(field, ".")
	quoted := make([]string, len(parts))
	for i, p := range parts {
		quoted[i] = p
	}
	return "{" + strings.Join(quoted, ",") + "}"
}

// InsertOne stores doc as JSONB under id.
func (s *Store) InsertOne(ctx context.Context, id string, doc any) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}
	query := fmt.Sprintf("INSERT INTO %s (id, doc) VALUES ($1, $2)", s.base.TableName())
	_, err = s.base.ExecContext(ctx, query, id, raw)
	return err
}

// buildWhere renders a Filter into a WHERE clause comparing each field's
// JSON path as text, starting argument numbering at startIdx.
func buildWhere(filter storage.Filter, startIdx int) (string, []any) {
	if len(filter) == 0 {
		return "", nil
	}
	var clauses []string
	var args []any
	idx := startIdx
	for field, want := range filter {
		clauses = append(clauses, fmt.Sprintf("doc #>> '%s' = $%d", jsonPath(field), idx))
		args = append(args, fmt.Sprintf("%v", want))
		idx++
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// FindOne returns the first row matching filter, decoded into out.
func (s *Store) FindOne(ctx context.Context, filter storage.Filter, out any) error {
	where, args := buildWhere(filter, 1)
	query := fmt.Sprintf("SELECT doc FROM %s%s LIMIT 1", s.base.TableName(), where)
	var raw []byte
	err := s.base.QueryRowContext(ctx, query, args...).Scan(&raw)
	if err == sql.ErrNoRows {
		return storage.ErrNotFound
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

// Find returns rows matching filter, sorted and limited, decoded into out
// (a pointer to a slice).
func (s *Store) Find(ctx context.Context, filter storage.Filter, srt *storage.Sort, limit int, out any) error {
	where, args := buildWhere(filter, 1)
	query := fmt.Sprintf("SELECT doc FROM %s%s", s.base.TableName(), where)
	if srt != nil {
		dir := "ASC"
		if srt.Desc {
			dir = "DESC"
		}
		query += fmt.Sprintf(" ORDER BY doc #>> '%s' %s", jsonPath(srt.Field), dir)
	}
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.base.QueryContext(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	var docs []json.RawMessage
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return err
		}
		docs = append(docs, json.RawMessage(raw))
	}
	if err := rows.Err(); err != nil {
		return err
	}

	combined, err := json.Marshal(docs)
	if err != nil {
		return err
	}
	return json.Unmarshal(combined, out)
}

// UpdateOne applies update to the first row matching filter.
func (s *Store) UpdateOne(ctx context.Context, filter storage.Filter, update storage.Update) error {
	id, err := s.idOf(ctx, filter)
	if err != nil {
		return err
	}
	return s.applyUpdateByID(ctx, id, update)
}

// UpdateMany applies update to every row matching filter.
func (s *Store) UpdateMany(ctx context.Context, filter storage.Filter, update storage.Update) (int64, error) {
	ids, err := s.idsOf(ctx, filter)
	if err != nil {
		return 0, err
	}
	var count int64
	for _, id := range ids {
		if err := s.applyUpdateByID(ctx, id, update); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

func (s *Store) idOf(ctx context.Context, filter storage.Filter) (string, error) {
	where, args := buildWhere(filter, 1)
	query := fmt.Sprintf("SELECT id FROM %s%s LIMIT 1", s.base.TableName(), where)
	var id string
	err := s.base.QueryRowContext(ctx, query, args...).Scan(&id)
	if err == sql.ErrNoRows {
		return "", storage.ErrNotFound
	}
	return id, err
}

func (s *Store) idsOf(ctx context.Context, filter storage.Filter) ([]string, error) {
	where, args := buildWhere(filter, 1)
	query := fmt.Sprintf("SELECT id FROM %s%s", s.base.TableName(), where)
	rows, err := s.base.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// applyUpdateByID applies Set/Inc/Push/AddToSet to a single row, each as its
// own jsonb_set round trip — simple over clever, since updates here are
// infrequent and small.
func (s *Store) applyUpdateByID(ctx context.Context, id string, update storage.Update) error {
	for field, value := range update.Set {
		raw, err := json.Marshal(value)
		if err != nil {
			return err
		}
		query := fmt.Sprintf("UPDATE %s SET doc = jsonb_set(doc, $1, $2, true) WHERE id = $3", s.base.TableName())
		if _, err := s.base.ExecContext(ctx, query, jsonPath(field), raw, id); err != nil {
			return err
		}
	}
	for field, delta := range update.Inc {
		query := fmt.Sprintf(
			"UPDATE %s SET doc = jsonb_set(doc, $1, to_jsonb(COALESCE((doc #>> $1)::numeric, 0) + $2), true) WHERE id = $3",
			s.base.TableName(),
		)
		if _, err := s.base.ExecContext(ctx, query, jsonPath(field), delta, id); err != nil {
			return err
		}
	}
	for field, value := range update.Push {
		raw, err := json.Marshal(value)
		if err != nil {
			return err
		}
		query := fmt.Sprintf(
			"UPDATE %s SET doc = jsonb_set(doc, $1, COALESCE(doc #> $1, '[]'::jsonb) || jsonb_build_array($2::jsonb), true) WHERE id = $3",
			s.base.TableName(),
		)
		if _, err := s.base.ExecContext(ctx, query, jsonPath(field), raw, id); err != nil {
			return err
		}
	}
	for field, value := range update.AddToSet {
		raw, err := json.Marshal(value)
		if err != nil {
			return err
		}
		query := fmt.Sprintf(`UPDATE %s SET doc = jsonb_set(
			doc, $1,
			CASE WHEN COALESCE(doc #> $1, '[]'::jsonb) @> jsonb_build_array($2::jsonb)
				THEN COALESCE(doc #> $1, '[]'::jsonb)
				ELSE COALESCE(doc #> $1, '[]'::jsonb) || jsonb_build_array($2::jsonb)
			END,
			true
		) WHERE id = $3`, s.base.TableName())
		if _, err := s.base.ExecContext(ctx, query, jsonPath(field), raw, id); err != nil {
			return err
		}
	}
	return nil
}

// DeleteOne removes the first row matching filter.
func (s *Store) DeleteOne(ctx context.Context, filter storage.Filter) error {
	id, err := s.idOf(ctx, filter)
	if err != nil {
		return err
	}
	return s.base.DeleteByID(ctx, id)
}

// CountDocuments counts rows matching filter.
func (s *Store) CountDocuments(ctx context.Context, filter storage.Filter) (int64, error) {
	where, args := buildWhere(filter, 1)
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s%s", s.base.TableName(), where)
	var count int64
	err := s.base.QueryRowContext(ctx, query, args...).Scan(&count)
	return count, err
}

// Distinct returns the distinct text values of field among rows matching
// filter.
func (s *Store) Distinct(ctx context.Context, field string, filter storage.Filter) ([]any, error) {
	where, args := buildWhere(filter, 1)
	sep := " WHERE "
	if where != "" {
		sep = " AND "
	}
	query := fmt.Sprintf("SELECT DISTINCT doc #>> '%s' FROM %s%s%s doc #>> '%s' IS NOT NULL",
		jsonPath(field), s.base.TableName(), where, sep, jsonPath(field))
	rows, err := s.base.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []any
	for rows.Next() {
		var v sql.NullString
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		if v.Valid {
			out = append(out, v.String)
		}
	}
	return out, rows.Err()
}
