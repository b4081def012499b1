package tables

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kmassidik/engagement/internal/common/config"
	"github.com/lib/pq"
)

// Catalog is the read side of the database the loader walks
type Catalog interface {
	ListTables(ctx context.Context) ([]string, error)
	DescribeTable(ctx context.Context, name string) (*TableInfo, error)
	LoadTable(ctx context.Context, name string, limit int) (*TableData, error)
}

type Inspector struct {
	db *sql.DB
}

func NewInspector(db *sql.DB) *Inspector {
	return &Inspector{db: db}
}

// ListTables returns every base table of the public schema ordered by name
func (i *Inspector) ListTables(ctx context.Context) ([]string, error) {
	query := `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = 'public'
		AND table_type = 'BASE TABLE'
		ORDER BY table_name
	`

	rows, err := i.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan table name: %w", err)
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

// DescribeTable loads column metadata and the exact row count
func (i *Inspector) DescribeTable(ctx context.Context, name string) (*TableInfo, error) {
	query := `
		SELECT column_name, data_type, is_nullable, column_default
		FROM information_schema.columns
		WHERE table_name = $1 AND table_schema = 'public'
		ORDER BY ordinal_position
	`

	rows, err := i.db.QueryContext(ctx, query, name)
	if err != nil {
		return nil, fmt.Errorf("failed to describe %s: %w", name, err)
	}
	defer rows.Close()

	info := &TableInfo{Name: name}
	for rows.Next() {
		var col Column
		var nullable string
		var def sql.NullString
		if err := rows.Scan(&col.Name, &col.DataType, &nullable, &def); err != nil {
			return nil, fmt.Errorf("failed to scan column of %s: %w", name, err)
		}
		col.Nullable = nullable == "YES"
		if def.Valid {
			col.Default = &def.String
		}
		info.Columns = append(info.Columns, col)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read columns of %s: %w", name, err)
	}

	countQuery := "SELECT COUNT(*) FROM " + pq.QuoteIdentifier(name)
	if err := i.db.QueryRowContext(ctx, countQuery).Scan(&info.RowCount); err != nil {
		return nil, fmt.Errorf("failed to count rows of %s: %w", name, err)
	}

	return info, nil
}

// LoadTable reads up to limit rows of a table; limit <= 0 reads everything
func (i *Inspector) LoadTable(ctx context.Context, name string, limit int) (*TableData, error) {
	if !config.IsIdentifier(name) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTable, name)
	}

	query := "SELECT * FROM " + pq.QuoteIdentifier(name)
	var args []interface{}
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}

	rows, err := i.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", name, err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns of %s: %w", name, err)
	}

	data := &TableData{Name: name, Columns: columns}
	for rows.Next() {
		values := make([]interface{}, len(columns))
		ptrs := make([]interface{}, len(columns))
		for j := range values {
			ptrs[j] = &values[j]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row of %s: %w", name, err)
		}
		data.Rows = append(data.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read rows of %s: %w", name, err)
	}

	return data, nil
}
