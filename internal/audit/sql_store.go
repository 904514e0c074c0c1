package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	_ "modernc.org/sqlite"
)

const table = "console_audit"

// timeLayout has a fixed width so timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLStore implements Store on SQLite.
type SQLStore struct {
	db *sql.DB
	qb squirrel.StatementBuilderType
}

// OpenSQL opens the SQLite database at dsn and creates the audit table.
func OpenSQL(ctx context.Context, dsn string) (*SQLStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening audit db: %w", err)
	}
	// SQLite allows one writer; the bus consumer is the only one anyway.
	db.SetMaxOpenConns(1)
	s := &SQLStore{
		db: db,
		qb: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Question),
	}
	if err := s.CreateTable(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// CreateTable creates the audit table if it does not exist.
func (s *SQLStore) CreateTable(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS `+table+` (
			id          TEXT PRIMARY KEY,
			occurred_at TEXT NOT NULL,
			actor       TEXT NOT NULL,
			doctype     TEXT NOT NULL,
			name        TEXT NOT NULL,
			fields      TEXT NOT NULL DEFAULT '[]'
		);
		CREATE INDEX IF NOT EXISTS idx_console_audit_document
			ON `+table+` (doctype, name, occurred_at DESC);
	`)
	if err != nil {
		return fmt.Errorf("creating audit table: %w", err)
	}
	return nil
}

func (s *SQLStore) Write(ctx context.Context, e Entry) error {
	fields, err := json.Marshal(e.Fields)
	if err != nil {
		return err
	}
	if e.Fields == nil {
		fields = []byte("[]")
	}
	query, args, err := s.qb.Insert(table).
		Columns("id", "occurred_at", "actor", "doctype", "name", "fields").
		Values(e.ID, e.OccurredAt.UTC().Format(timeLayout), e.Actor, e.Doctype, e.Name, string(fields)).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("writing audit entry: %w", err)
	}
	return nil
}

func (s *SQLStore) ByDocument(ctx context.Context, doctype, name string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	query, args, err := s.qb.Select("id", "occurred_at", "actor", "doctype", "name", "fields").
		From(table).
		Where(squirrel.Eq{"doctype": doctype, "name": name}).
		OrderBy("occurred_at DESC", "rowid DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying audit entries: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e          Entry
			occurredAt string
			fields     string
		)
		if err := rows.Scan(&e.ID, &occurredAt, &e.Actor, &e.Doctype, &e.Name, &fields); err != nil {
			return nil, err
		}
		if e.OccurredAt, err = time.Parse(timeLayout, occurredAt); err != nil {
			return nil, fmt.Errorf("audit entry %s: %w", e.ID, err)
		}
		if err := json.Unmarshal([]byte(fields), &e.Fields); err != nil {
			return nil, fmt.Errorf("audit entry %s: %w", e.ID, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLStore) Close() error { return s.db.Close() }
