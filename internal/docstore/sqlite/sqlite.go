// Package sqlite is the durable docstore backend: one documents table keyed
// by (collection, id) with a JSON body, queried through json_extract.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"moneta/internal/core"
	"moneta/internal/docstore"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

func Open(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := runMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *Store) Save(ctx context.Context, collection, id string, doc docstore.Document) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return storageErr(err, "encode document %s/%s", collection, id)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO documents (collection, id, body, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (collection, id)
		DO UPDATE SET body = excluded.body, updated_at = CURRENT_TIMESTAMP`,
		collection, id, string(body))
	if err != nil {
		return storageErr(err, "save document %s/%s", collection, id)
	}

	slog.DebugContext(ctx, "Document saved", "collection", collection, "id", id)
	return nil
}

func (s *Store) Get(ctx context.Context, collection, id string) (docstore.Document, error) {
	var body string
	err := s.db.QueryRowContext(ctx,
		`SELECT body FROM documents WHERE collection = ? AND id = ?`,
		collection, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s/%s", docstore.ErrNotFound, collection, id)
	}
	if err != nil {
		return nil, storageErr(err, "get document %s/%s", collection, id)
	}

	var doc docstore.Document
	if err := json.Unmarshal([]byte(body), &doc); err != nil {
		return nil, storageErr(err, "decode document %s/%s", collection, id)
	}
	return doc, nil
}

func (s *Store) Delete(ctx context.Context, collection, id string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM documents WHERE collection = ? AND id = ?`, collection, id)
	if err != nil {
		return storageErr(err, "delete document %s/%s", collection, id)
	}
	return nil
}

func (s *Store) Query(ctx context.Context, collection string, q docstore.Query) ([]docstore.Document, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	var (
		where = []string{"collection = ?"}
		args  = []any{collection}
	)
	for field, want := range q.Eq {
		where = append(where, fmt.Sprintf("json_extract(body, '$.%s') = ?", field))
		args = append(args, want)
	}
	if q.DateField != "" {
		if q.DateFrom != "" {
			where = append(where, fmt.Sprintf("json_extract(body, '$.%s') >= ?", q.DateField))
			args = append(args, q.DateFrom)
		}
		if q.DateTo != "" {
			where = append(where, fmt.Sprintf("json_extract(body, '$.%s') <= ?", q.DateField))
			args = append(args, q.DateTo)
		}
	}

	query := "SELECT body FROM documents WHERE " + strings.Join(where, " AND ")
	if q.OrderBy != "" {
		query += fmt.Sprintf(" ORDER BY json_extract(body, '$.%s')", q.OrderBy)
		if q.Desc {
			query += " DESC"
		}
	}
	if q.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr(err, "query collection %s", collection)
	}
	defer rows.Close()

	var out []docstore.Document
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, storageErr(err, "scan document in %s", collection)
		}
		var doc docstore.Document
		if err := json.Unmarshal([]byte(body), &doc); err != nil {
			return nil, storageErr(err, "decode document in %s", collection)
		}
		out = append(out, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr(err, "iterate collection %s", collection)
	}
	return out, nil
}

// storageErr marks an engine failure with core.ErrStorage while keeping the
// underlying error matchable.
func storageErr(err error, format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), errors.Join(core.ErrStorage, err))
}
