package tables

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/kmassidik/engagement/internal/common/config"
	"github.com/kmassidik/engagement/internal/common/logger"
)

type fakeCatalog struct {
	tables   []string
	infos    map[string]*TableInfo
	data     map[string]*TableData
	failLoad map[string]bool
	limits   map[string][]int
}

func (f *fakeCatalog) ListTables(ctx context.Context) ([]string, error) {
	return f.tables, nil
}

func (f *fakeCatalog) DescribeTable(ctx context.Context, name string) (*TableInfo, error) {
	info, ok := f.infos[name]
	if !ok {
		return nil, errors.New("relation does not exist")
	}
	return info, nil
}

func (f *fakeCatalog) LoadTable(ctx context.Context, name string, limit int) (*TableData, error) {
	if f.limits == nil {
		f.limits = make(map[string][]int)
	}
	f.limits[name] = append(f.limits[name], limit)
	if f.failLoad[name] {
		return nil, errors.New("permission denied")
	}
	data := f.data[name]
	rows := data.Rows
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return &TableData{Name: name, Columns: data.Columns, Rows: rows}, nil
}

func testLoaderConfig() config.LoaderConfig {
	return config.LoaderConfig{
		PreviewRows:     5,
		FullLoadMaxRows: 10000,
		PartialLoadRows: 1000,
		ExportDir:       "exported_tables",
	}
}

func rowsOf(n int) [][]interface{} {
	rows := make([][]interface{}, n)
	for i := range rows {
		rows[i] = []interface{}{int64(i), "page"}
	}
	return rows
}

func TestLoaderRun(t *testing.T) {
	def := "nextval('visits_id_seq'::regclass)"
	catalog := &fakeCatalog{
		tables: []string{"big", "broken", "empty", "missing", "small"},
		infos: map[string]*TableInfo{
			"big":    {Name: "big", RowCount: 25000, Columns: []Column{{Name: "id", DataType: "integer"}}},
			"broken": {Name: "broken", RowCount: 3},
			"empty":  {Name: "empty", RowCount: 0},
			"small": {Name: "small", RowCount: 3, Columns: []Column{
				{Name: "id", DataType: "integer", Default: &def},
				{Name: "page", DataType: "text", Nullable: true},
			}},
		},
		data: map[string]*TableData{
			"big":   {Columns: []string{"id", "page"}, Rows: rowsOf(1500)},
			"small": {Columns: []string{"id", "page"}, Rows: rowsOf(3)},
		},
		failLoad: map[string]bool{"broken": true},
	}

	var out bytes.Buffer
	loaded, err := NewLoader(catalog, testLoaderConfig(), logger.Nop()).Run(context.Background(), &out)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if got := len(loaded["small"].Rows); got != 3 {
		t.Errorf("Expected full load of small, got %d rows", got)
	}
	if got := len(loaded["big"].Rows); got != 1000 {
		t.Errorf("Expected partial load of big, got %d rows", got)
	}
	if _, ok := loaded["empty"]; ok {
		t.Error("Expected empty table to be left out")
	}
	if _, ok := loaded["broken"]; ok {
		t.Error("Expected table without sample data to be left out")
	}
	if data, ok := loaded["missing"]; !ok || !data.Empty() {
		t.Error("Expected undescribable table to yield empty data")
	}

	if got := catalog.limits["small"]; len(got) != 2 || got[0] != 5 || got[1] != 0 {
		t.Errorf("Expected preview then full load of small, got limits %v", got)
	}

	report := out.String()
	for _, want := range []string{
		"Found 5 tables:",
		"Row count: 25,000",
		"  - id: integer NOT NULL DEFAULT nextval('visits_id_seq'::regclass)",
		"  - page: text NULL",
		"Table is empty.",
		"No sample data available.",
		"Table big is large (25000 rows). Loading first 1000 rows...",
		"Total tables processed: 5",
		"Tables with data loaded: 3",
	} {
		if !strings.Contains(report, want) {
			t.Errorf("Expected report to contain %q\n%s", want, report)
		}
	}
}

func TestLoaderRunNoTables(t *testing.T) {
	var out bytes.Buffer
	loaded, err := NewLoader(&fakeCatalog{}, testLoaderConfig(), logger.Nop()).Run(context.Background(), &out)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(loaded) != 0 {
		t.Errorf("Expected no data, got %d tables", len(loaded))
	}
	if !strings.Contains(out.String(), "No tables found in the database.") {
		t.Errorf("Unexpected output: %s", out.String())
	}
}

func TestFormatCount(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0"},
		{999, "999"},
		{1000, "1,000"},
		{1234567, "1,234,567"},
	}
	for _, tt := range tests {
		if got := formatCount(tt.in); got != tt.want {
			t.Errorf("formatCount(%d) = %s, want %s", tt.in, got, tt.want)
		}
	}
}
