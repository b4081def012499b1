package reload

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/kmassidik/engagement/internal/common/config"
	"github.com/kmassidik/engagement/internal/common/db"
	"github.com/kmassidik/engagement/internal/common/logger"
	"github.com/kmassidik/engagement/internal/common/metrics"
	"github.com/lib/pq"
)

// Loader replaces a table with the contents of a CSV
type Loader struct {
	db     *db.DB
	logger *logger.Logger
}

func NewLoader(database *db.DB, log *logger.Logger) *Loader {
	return &Loader{db: database, logger: log}
}

// ReloadFile reads path and reloads the table it describes
func (l *Loader) ReloadFile(ctx context.Context, path string, spec TableSpec) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	rows, err := ReadCSV(f, spec)
	if err != nil {
		return 0, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	l.logger.Infof("Read %d rows from %s", len(rows), path)

	return l.Reload(ctx, spec, rows)
}

// Reload drops and recreates the table and bulk-copies rows in one
// transaction, returning the number of rows inserted.
func (l *Loader) Reload(ctx context.Context, spec TableSpec, rows []Row) (int, error) {
	if !config.IsIdentifier(spec.Name) {
		return 0, fmt.Errorf("invalid table name %q", spec.Name)
	}
	for _, col := range spec.Columns {
		if !config.IsIdentifier(col.Name) {
			return 0, fmt.Errorf("invalid column name %q", col.Name)
		}
	}

	err := l.db.WithTransaction(ctx, func(ctx context.Context, tx *sql.Tx) error {
		table := pq.QuoteIdentifier(spec.Name)

		if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+table); err != nil {
			return fmt.Errorf("failed to drop %s: %w", spec.Name, err)
		}
		if _, err := tx.ExecContext(ctx, spec.CreateSQL(table)); err != nil {
			return fmt.Errorf("failed to create %s: %w", spec.Name, err)
		}
		l.logger.Infof("Table '%s' created", spec.Name)

		stmt, err := tx.PrepareContext(ctx, pq.CopyIn(spec.Name, spec.ColumnNames()...))
		if err != nil {
			return fmt.Errorf("failed to prepare copy into %s: %w", spec.Name, err)
		}
		defer stmt.Close()

		for i, row := range rows {
			if len(row) != len(spec.Columns) {
				return fmt.Errorf("row %d has %d values, want %d", i+1, len(row), len(spec.Columns))
			}
			if _, err := stmt.ExecContext(ctx, row...); err != nil {
				return fmt.Errorf("failed to copy row %d: %w", i+1, err)
			}
		}
		if _, err := stmt.ExecContext(ctx); err != nil {
			return fmt.Errorf("failed to flush copy into %s: %w", spec.Name, err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	metrics.RowsReloaded.WithLabelValues(spec.Name).Add(float64(len(rows)))
	l.logger.Infof("Inserted %d rows into '%s'", len(rows), spec.Name)
	return len(rows), nil
}
