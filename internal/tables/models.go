package tables

import (
	"errors"
	"fmt"
	"time"
)

// Column describes one column of a public table
type Column struct {
	Name     string
	DataType string
	Nullable bool
	Default  *string
}

// String renders the column the way the analysis report lists it
func (c Column) String() string {
	nullable := "NOT NULL"
	if c.Nullable {
		nullable = "NULL"
	}
	s := fmt.Sprintf("%s: %s %s", c.Name, c.DataType, nullable)
	if c.Default != nil && *c.Default != "" {
		s += " DEFAULT " + *c.Default
	}
	return s
}

type TableInfo struct {
	Name     string
	Columns  []Column
	RowCount int64
}

// TableData is a loaded slice of a table. A failed load is an empty
// TableData, never nil.
type TableData struct {
	Name    string
	Columns []string
	Rows    [][]interface{}
}

func (d *TableData) Empty() bool {
	return d == nil || len(d.Rows) == 0
}

var ErrInvalidTable = errors.New("invalid table name")

// FormatValue renders a scanned value as text. NULL becomes the empty
// string, which is what the CSV export writes.
func FormatValue(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(val)
	case string:
		return val
	case time.Time:
		return val.Format(time.RFC3339)
	case float64:
		return fmt.Sprintf("%g", val)
	default:
		return fmt.Sprint(val)
	}
}
