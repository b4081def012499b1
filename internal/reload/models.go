package reload

import (
	"errors"
	"fmt"
	"strings"
)

// ColumnKind is how a CSV cell is converted before it is copied
type ColumnKind int

const (
	KindText ColumnKind = iota
	KindInteger
)

type ColumnSpec struct {
	Name    string
	SQLType string
	Kind    ColumnKind
	NotNull bool
}

// TableSpec is the fixed schema a CSV is reloaded into. Every table also
// gets an id SERIAL PRIMARY KEY.
type TableSpec struct {
	Name    string
	Columns []ColumnSpec
}

// EntryDropoffMapping is the drop-off table the funnel dashboard reads
func EntryDropoffMapping(name string) TableSpec {
	return TableSpec{
		Name: name,
		Columns: []ColumnSpec{
			{Name: "from_page", SQLType: "VARCHAR(1000)", Kind: KindText, NotNull: true},
			{Name: "dropoff_page", SQLType: "VARCHAR(1000)", Kind: KindText, NotNull: true},
			{Name: "dropoff_count", SQLType: "INTEGER", Kind: KindInteger, NotNull: true},
		},
	}
}

// ColumnNames lists the column names in table order
func (s TableSpec) ColumnNames() []string {
	names := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		names[i] = c.Name
	}
	return names
}

// CreateSQL renders the CREATE TABLE statement for quotedName
func (s TableSpec) CreateSQL(quotedName string) string {
	defs := []string{"id SERIAL PRIMARY KEY"}
	for _, c := range s.Columns {
		def := c.Name + " " + c.SQLType
		if c.NotNull {
			def += " NOT NULL"
		}
		defs = append(defs, def)
	}
	return fmt.Sprintf("CREATE TABLE %s (\n\t%s\n)", quotedName, strings.Join(defs, ",\n\t"))
}

// Row is one converted CSV record in TableSpec column order; nil is NULL
type Row []interface{}

var (
	ErrMissingColumn = errors.New("csv is missing a required column")
	ErrInvalidValue  = errors.New("invalid csv value")
)

// ValueError locates a rejected CSV cell; Line is 1-based and counts the header
type ValueError struct {
	Line   int
	Column string
	Value  string
	Reason string
}

func (e *ValueError) Error() string {
	return fmt.Sprintf("line %d, column %s: %q %s", e.Line, e.Column, e.Value, e.Reason)
}

func (e *ValueError) Is(target error) bool {
	return target == ErrInvalidValue
}
