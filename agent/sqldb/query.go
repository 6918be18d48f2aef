package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/uptrace/bun"
)

type QueryResult struct {
	Columns   []string         `json:"columns"`
	Rows      []map[string]any `json:"rows"`
	Truncated bool             `json:"truncated,omitempty"`
}

var readOnlyPrefixes = []string{"SELECT", "WITH", "EXPLAIN", "PRAGMA", "SHOW"}

// writeKeywords catches data-modifying CTEs such as
// WITH d AS (DELETE ... RETURNING *) SELECT * FROM d.
var writeKeywords = regexp.MustCompile(`(?i)\b(INSERT|UPDATE|DELETE|MERGE|UPSERT|REPLACE|TRUNCATE|DROP|ALTER|CREATE)\b`)

// CheckReadOnly rejects anything but a single read statement.
func CheckReadOnly(query string) (string, error) {
	q := strings.TrimSpace(query)
	q = strings.TrimSpace(strings.TrimRight(q, "; \t\n"))
	if q == "" {
		return "", fmt.Errorf("%w: empty statement", ErrReadOnly)
	}
	if strings.Contains(q, ";") {
		return "", fmt.Errorf("%w: multiple statements", ErrReadOnly)
	}

	fields := strings.Fields(q)
	keyword := strings.ToUpper(strings.TrimLeft(fields[0], "("))
	for _, prefix := range readOnlyPrefixes {
		if keyword != prefix {
			continue
		}
		if prefix == "PRAGMA" && strings.Contains(q, "=") {
			return "", fmt.Errorf("%w: PRAGMA assignments", ErrReadOnly)
		}
		if (prefix == "WITH" || prefix == "EXPLAIN") && writeKeywords.MatchString(q) {
			return "", fmt.Errorf("%w: %s wraps a write", ErrReadOnly, prefix)
		}
		return q, nil
	}
	return "", fmt.Errorf("%w: %s", ErrReadOnly, keyword)
}

// Query runs a read-only statement and returns at most MaxRows rows.
func (d *DB) Query(ctx context.Context, query string) (*QueryResult, error) {
	q, err := CheckReadOnly(query)
	if err != nil {
		return nil, err
	}

	// The keyword guard is lexical; postgres additionally runs the statement
	// in a READ ONLY transaction so the server refuses any write.
	if d.driver == DriverPostgres {
		var result *QueryResult
		err := d.db.RunInTx(ctx, &sql.TxOptions{ReadOnly: true}, func(ctx context.Context, tx bun.Tx) error {
			rows, err := tx.Tx.QueryContext(ctx, q)
			if err != nil {
				return fmt.Errorf("sqldb: query: %w", err)
			}
			defer rows.Close()
			result, err = d.collect(ctx, rows)
			return err
		})
		if err != nil {
			return nil, err
		}
		return result, nil
	}

	// Raw *sql.DB so '?' inside the statement is not taken as a bun placeholder.
	rows, err := d.db.DB.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("sqldb: query: %w", err)
	}
	defer rows.Close()
	return d.collect(ctx, rows)
}

func (d *DB) collect(ctx context.Context, rows *sql.Rows) (*QueryResult, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("sqldb: columns: %w", err)
	}

	result := &QueryResult{Columns: columns, Rows: []map[string]any{}}
	for rows.Next() {
		if len(result.Rows) == d.maxRows {
			result.Truncated = true
			break
		}
		row := map[string]any{}
		if err := d.db.ScanRow(ctx, rows, &row); err != nil {
			return nil, fmt.Errorf("sqldb: scan: %w", err)
		}
		normalizeRow(row)
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqldb: rows: %w", err)
	}
	return result, nil
}

// normalizeRow turns driver byte slices into text and times into RFC 3339 so
// rows marshal to readable JSON.
func normalizeRow(row map[string]any) {
	for k, v := range row {
		switch val := v.(type) {
		case []byte:
			row[k] = string(val)
		case time.Time:
			row[k] = val.Format(time.RFC3339)
		}
	}
}
