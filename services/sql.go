package services

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// SQL runs parameterised statements against a database/sql handle. Rows
// come back as hashes keyed by column name.
type SQL struct {
	db       *sql.DB
	ownsDB   bool
	readOnly bool
	maxRows  int
}

type SQLOption func(*SQL)

// ReadOnly rejects Exec.
func ReadOnly() SQLOption { return func(s *SQL) { s.readOnly = true } }

// MaxRows caps how many rows Query returns.
func MaxRows(n int) SQLOption { return func(s *SQL) { s.maxRows = n } }

func NewSQL(db *sql.DB, opts ...SQLOption) *SQL {
	s := &SQL{db: db, maxRows: 1000}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OpenSQL connects to a Postgres dsn through the pgx driver.
func OpenSQL(ctx context.Context, dsn string, opts ...SQLOption) (*SQL, error) {
	db, err := sql.Open("pgx", strings.TrimSpace(dsn))
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	s := NewSQL(db, opts...)
	s.ownsDB = true
	return s, nil
}

// Query returns the rows produced by query.
func (s *SQL) Query(ctx context.Context, query string, args ...any) ([]map[string]any, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sql.query: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	out := []map[string]any{}
	for rows.Next() {
		if s.maxRows > 0 && len(out) == s.maxRows {
			return nil, fmt.Errorf("sql.query: more than %d rows", s.maxRows)
		}
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(map[string]any, len(cols))
		for i, col := range cols {
			row[col] = scriptValue(values[i])
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// QueryOne returns the first row of query, or nil.
func (s *SQL) QueryOne(ctx context.Context, query string, args ...any) (map[string]any, error) {
	rows, err := s.Query(ctx, query, args...)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return rows[0], nil
}

// Exec runs a statement and returns the affected row count.
func (s *SQL) Exec(ctx context.Context, statement string, args ...any) (int64, error) {
	if s.readOnly {
		return 0, fmt.Errorf("sql.exec: connection is read-only")
	}
	res, err := s.db.ExecContext(ctx, statement, args...)
	if err != nil {
		return 0, fmt.Errorf("sql.exec: %w", err)
	}
	return res.RowsAffected()
}

func scriptValue(v any) any {
	switch t := v.(type) {
	case []byte:
		return string(t)
	case time.Time:
		return t.Format(time.RFC3339Nano)
	case int32:
		return int64(t)
	case float32:
		return float64(t)
	}
	return v
}

func (s *SQL) Close() error {
	if s.ownsDB {
		return s.db.Close()
	}
	return nil
}

func (s *SQL) MethodDocs() map[string]string {
	return map[string]string{
		"query":     "Runs a query with $1-style arguments and returns rows as hashes.",
		"query_one": "Like query but returns only the first row, or nil.",
		"exec":      "Runs a statement and returns the affected row count.",
	}
}
