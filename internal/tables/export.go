package tables

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/kmassidik/engagement/internal/common/config"
)

// ExportCSV writes <dir>/<table>.csv for every non-empty table and returns
// the written paths in table-name order.
func ExportCSV(dir string, data map[string]*TableData) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create export directory: %w", err)
	}

	names := make([]string, 0, len(data))
	for name := range data {
		names = append(names, name)
	}
	sort.Strings(names)

	var written []string
	for _, name := range names {
		table := data[name]
		if table.Empty() {
			continue
		}
		if !config.IsIdentifier(name) {
			return written, fmt.Errorf("%w: %q", ErrInvalidTable, name)
		}

		path := filepath.Join(dir, name+".csv")
		if err := writeCSV(path, table); err != nil {
			return written, err
		}
		written = append(written, path)
	}

	return written, nil
}

func writeCSV(path string, table *TableData) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close %s: %w", path, cerr)
		}
	}()

	w := csv.NewWriter(f)
	if err := w.Write(table.Columns); err != nil {
		return fmt.Errorf("failed to write header of %s: %w", path, err)
	}

	record := make([]string, len(table.Columns))
	for _, row := range table.Rows {
		for i := range record {
			record[i] = FormatValue(row[i])
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("failed to write row of %s: %w", path, err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to flush %s: %w", path, err)
	}
	return nil
}
