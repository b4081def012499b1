package tables

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestExportCSV(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "exported_tables")
	seen := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)

	data := map[string]*TableData{
		"visits": {
			Name:    "visits",
			Columns: []string{"id", "page", "seen_at", "score"},
			Rows: [][]interface{}{
				{int64(1), []byte("home, landing"), seen, 1.5},
				{int64(2), nil, seen, nil},
			},
		},
		"empty": {Name: "empty"},
	}

	written, err := ExportCSV(dir, data)
	if err != nil {
		t.Fatalf("ExportCSV() error = %v", err)
	}
	if len(written) != 1 || filepath.Base(written[0]) != "visits.csv" {
		t.Fatalf("Expected only visits.csv, got %v", written)
	}

	content, err := os.ReadFile(written[0])
	if err != nil {
		t.Fatalf("Failed to read export: %v", err)
	}

	want := "id,page,seen_at,score\n" +
		"1,\"home, landing\",2024-03-01T09:30:00Z,1.5\n" +
		"2,,2024-03-01T09:30:00Z,\n"
	if string(content) != want {
		t.Errorf("Unexpected CSV:\n%s\nwant:\n%s", content, want)
	}

	if _, err := os.Stat(filepath.Join(dir, "empty.csv")); !os.IsNotExist(err) {
		t.Error("Expected no file for an empty table")
	}
}

func TestExportCSVRejectsPathLikeNames(t *testing.T) {
	data := map[string]*TableData{
		"../escape": {Columns: []string{"id"}, Rows: [][]interface{}{{int64(1)}}},
	}
	if _, err := ExportCSV(t.TempDir(), data); err == nil {
		t.Error("Expected error for a table name that is not an identifier")
	}
}
