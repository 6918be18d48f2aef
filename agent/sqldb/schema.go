package sqldb

import (
	"context"
	"fmt"
	"strings"

	"github.com/uptrace/bun"
)

type Column struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	NotNull    bool   `json:"not_null"`
	PrimaryKey bool   `json:"primary_key"`
}

type TableSchema struct {
	Name       string           `json:"name"`
	Columns    []Column         `json:"columns"`
	SampleRows []map[string]any `json:"sample_rows"`
}

type columnRow struct {
	Name    string `bun:"name"`
	Type    string `bun:"type"`
	NotNull int    `bun:"not_null"`
	PK      int    `bun:"pk"`
}

const sqliteColumns = `SELECT name, type, "notnull" AS not_null, CASE WHEN pk > 0 THEN 1 ELSE 0 END AS pk
FROM pragma_table_info(?) ORDER BY cid`

const postgresColumns = `SELECT c.column_name AS name, c.data_type AS type,
  CASE WHEN c.is_nullable = 'NO' THEN 1 ELSE 0 END AS not_null,
  CASE WHEN EXISTS (
    SELECT 1 FROM information_schema.table_constraints tc
    JOIN information_schema.key_column_usage kcu
      ON tc.constraint_name = kcu.constraint_name AND tc.table_schema = kcu.table_schema
    WHERE tc.constraint_type = 'PRIMARY KEY' AND tc.table_schema = c.table_schema
      AND tc.table_name = c.table_name AND kcu.column_name = c.column_name
  ) THEN 1 ELSE 0 END AS pk
FROM information_schema.columns c
WHERE c.table_schema = current_schema() AND c.table_name = ?
ORDER BY c.ordinal_position`

// TableSchemas describes the named tables with a few sample rows each.
// Names are checked against ListTables before being used as identifiers.
func (d *DB) TableSchemas(ctx context.Context, names []string) ([]TableSchema, error) {
	known, err := d.ListTables(ctx)
	if err != nil {
		return nil, err
	}
	index := make(map[string]string, len(known))
	for _, name := range known {
		index[strings.ToLower(name)] = name
	}

	schemas := make([]TableSchema, 0, len(names))
	for _, raw := range names {
		name, ok := index[strings.ToLower(strings.TrimSpace(raw))]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownTable, strings.TrimSpace(raw))
		}

		schema, err := d.tableSchema(ctx, name)
		if err != nil {
			return nil, err
		}
		schemas = append(schemas, schema)
	}
	return schemas, nil
}

func (d *DB) tableSchema(ctx context.Context, name string) (TableSchema, error) {
	query := sqliteColumns
	if d.driver == DriverPostgres {
		query = postgresColumns
	}

	var rows []columnRow
	if err := d.db.NewRaw(query, name).Scan(ctx, &rows); err != nil {
		return TableSchema{}, fmt.Errorf("sqldb: describe %s: %w", name, err)
	}

	schema := TableSchema{Name: name, Columns: make([]Column, 0, len(rows))}
	for _, r := range rows {
		schema.Columns = append(schema.Columns, Column{
			Name:       r.Name,
			Type:       r.Type,
			NotNull:    r.NotNull != 0,
			PrimaryKey: r.PK != 0,
		})
	}

	var samples []map[string]any
	if err := d.db.NewRaw("SELECT * FROM ? LIMIT ?", bun.Ident(name), sampleRows).Scan(ctx, &samples); err != nil {
		return TableSchema{}, fmt.Errorf("sqldb: sample %s: %w", name, err)
	}
	for _, row := range samples {
		normalizeRow(row)
	}
	schema.SampleRows = samples
	return schema, nil
}

// Render formats the schema as a CREATE TABLE statement followed by the
// sample rows, tab separated.
func (s TableSchema) Render() string {
	defs := make([]string, 0, len(s.Columns)+1)
	header := make([]string, 0, len(s.Columns))
	var pks []string
	for _, c := range s.Columns {
		def := "\t" + c.Name + " " + c.Type
		if c.NotNull {
			def += " NOT NULL"
		}
		defs = append(defs, def)
		header = append(header, c.Name)
		if c.PrimaryKey {
			pks = append(pks, c.Name)
		}
	}
	if len(pks) > 0 {
		defs = append(defs, "\tPRIMARY KEY ("+strings.Join(pks, ", ")+")")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE %s (\n%s\n)\n", s.Name, strings.Join(defs, ",\n"))
	fmt.Fprintf(&b, "\n/*\n%d rows from %s table:\n", len(s.SampleRows), s.Name)
	b.WriteString(strings.Join(header, "\t"))
	b.WriteString("\n")
	for _, row := range s.SampleRows {
		cells := make([]string, 0, len(header))
		for _, col := range header {
			cells = append(cells, fmt.Sprint(row[col]))
		}
		b.WriteString(strings.Join(cells, "\t"))
		b.WriteString("\n")
	}
	b.WriteString("*/")
	return b.String()
}
