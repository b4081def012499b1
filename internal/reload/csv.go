package reload

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ReadCSV parses a CSV with a header row into rows in TableSpec column order.
// Extra CSV columns are ignored; every TableSpec column must be present.
func ReadCSV(r io.Reader, spec TableSpec) ([]Row, error) {
	reader := csv.NewReader(r)

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("csv is empty")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read csv header: %w", err)
	}

	positions := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
		if _, dup := positions[name]; !dup {
			positions[name] = i
		}
	}

	index := make([]int, len(spec.Columns))
	for i, col := range spec.Columns {
		pos, ok := positions[col.Name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingColumn, col.Name)
		}
		index[i] = pos
	}

	var rows []Row
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read csv line %d: %w", line, err)
		}

		row := make(Row, len(spec.Columns))
		for i, col := range spec.Columns {
			value, err := convert(col, record[index[i]])
			if err != nil {
				return nil, &ValueError{Line: line, Column: col.Name, Value: record[index[i]], Reason: err.Error()}
			}
			row[i] = value
		}
		rows = append(rows, row)
	}

	return rows, nil
}

func convert(col ColumnSpec, cell string) (interface{}, error) {
	if cell == "" {
		if col.NotNull {
			return nil, fmt.Errorf("is empty")
		}
		return nil, nil
	}

	switch col.Kind {
	case KindInteger:
		n, err := strconv.ParseInt(strings.TrimSpace(cell), 10, 32)
		if err != nil {
			return nil, fmt.Errorf("is not an integer")
		}
		return n, nil
	default:
		return cell, nil
	}
}
