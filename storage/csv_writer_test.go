package storage

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gmaps-reviews-analyzer/models"
)

func str(s string) *string { return &s }

func sampleTable() *models.Table {
	return &models.Table{Rows: []models.Review{
		{
			Stars:        5,
			Text:         str("Great"),
			Title:        "Cafe X",
			CategoryName: "Cafe",
			ReviewsCount: 2,
			ReviewDate:   time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC),
			Fields:       map[string]any{"stars": 5.0, "text": "Great", "reviewerName": "Taro"},
		},
		{
			Stars:        3,
			Text:         nil,
			Title:        "Cafe X",
			CategoryName: "Cafe",
			ReviewsCount: 2,
			ReviewDate:   time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC),
			Fields:       map[string]any{"stars": 3.0, "likesCount": 4.0},
		},
	}}
}

func TestEncodeTableHeaderAndRows(t *testing.T) {
	var buf bytes.Buffer
	if err := EncodeTable(&buf, sampleTable()); err != nil {
		t.Fatalf("EncodeTable returned error: %v", err)
	}

	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("reading encoded CSV: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("record count: got %d, want 3 (header + 2 rows)", len(records))
	}

	header := strings.Join(records[0], ",")
	want := "review_date,stars,text,title,categoryName,reviewsCount,likesCount,reviewerName"
	if header != want {
		t.Errorf("header: got %q, want %q", header, want)
	}

	if records[1][1] != "5" || records[1][2] != "Great" {
		t.Errorf("row 0: got %v", records[1])
	}
	if records[2][2] != "" {
		t.Errorf("null text should encode as empty string, got %q", records[2][2])
	}
}

func TestProjectionRoundTrip(t *testing.T) {
	rows := []models.StarText{
		{Stars: 5, Text: "Great"},
		{Stars: 3.5, Text: "まあまあ, でも高い"},
		{Stars: 1, Text: "line\nbreak"},
	}

	var buf bytes.Buffer
	if err := EncodeProjection(&buf, rows); err != nil {
		t.Fatalf("EncodeProjection returned error: %v", err)
	}

	parsed, err := ParseProjection(&buf)
	if err != nil {
		t.Fatalf("ParseProjection returned error: %v", err)
	}
	if len(parsed) != len(rows) {
		t.Fatalf("row count: got %d, want %d", len(parsed), len(rows))
	}
	for i := range rows {
		if parsed[i] != rows[i] {
			t.Errorf("row %d: got %+v, want %+v", i, parsed[i], rows[i])
		}
	}
}

func TestCSVStoreWritesFiles(t *testing.T) {
	dir := t.TempDir()
	store, err := NewCSVStore(dir)
	if err != nil {
		t.Fatalf("NewCSVStore returned error: %v", err)
	}

	tablePath, err := store.WriteTable(sampleTable())
	if err != nil {
		t.Fatalf("WriteTable returned error: %v", err)
	}
	if tablePath != filepath.Join(dir, TableFileName) {
		t.Errorf("table path: got %q", tablePath)
	}
	if _, err := os.Stat(tablePath); err != nil {
		t.Errorf("table file missing: %v", err)
	}

	projPath, err := store.WriteProjection([]models.StarText{{Stars: 5, Text: "Great"}})
	if err != nil {
		t.Fatalf("WriteProjection returned error: %v", err)
	}

	f, err := os.Open(projPath)
	if err != nil {
		t.Fatalf("opening projection: %v", err)
	}
	defer f.Close()
	parsed, err := ParseProjection(f)
	if err != nil {
		t.Fatalf("ParseProjection returned error: %v", err)
	}
	if len(parsed) != 1 || parsed[0].Text != "Great" {
		t.Errorf("projection content: got %+v", parsed)
	}
}

func TestCSVStoreOverwrites(t *testing.T) {
	dir := t.TempDir()
	store, err := NewCSVStore(dir)
	if err != nil {
		t.Fatalf("NewCSVStore returned error: %v", err)
	}

	if _, err := store.WriteProjection([]models.StarText{{Stars: 5, Text: "first"}, {Stars: 4, Text: "second"}}); err != nil {
		t.Fatalf("first write: %v", err)
	}
	if _, err := store.WriteProjection([]models.StarText{{Stars: 1, Text: "only"}}); err != nil {
		t.Fatalf("second write: %v", err)
	}

	f, err := os.Open(filepath.Join(dir, ProjectionFileName))
	if err != nil {
		t.Fatalf("opening projection: %v", err)
	}
	defer f.Close()
	parsed, err := ParseProjection(f)
	if err != nil {
		t.Fatalf("ParseProjection returned error: %v", err)
	}
	if len(parsed) != 1 {
		t.Errorf("expected overwrite, got %d rows", len(parsed))
	}
}
