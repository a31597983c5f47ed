package storage

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"gmaps-reviews-analyzer/models"
)

const (
	// TableFileName is the full-table export, overwritten on each fetch.
	TableFileName = "reviews_data.csv"
	// ProjectionFileName is the two-column snapshot of exactly what was
	// sent to the LLM backend.
	ProjectionFileName = "reviews_data_ai.csv"
)

// typedColumns are the table columns every export starts with; remaining raw
// fields follow in sorted order.
var typedColumns = []string{"review_date", "stars", "text", "title", "categoryName", "reviewsCount"}

// CSVStore writes the review table and its AI projection as flat files under
// one output directory. Files are overwritten, never appended.
// Safe for concurrent use.
type CSVStore struct {
	mu  sync.Mutex
	dir string
}

// NewCSVStore creates the output directory if needed and returns the store.
func NewCSVStore(dir string) (*CSVStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("csv: create output dir: %w", err)
	}
	return &CSVStore{dir: dir}, nil
}

// WriteTable writes the full table to reviews_data.csv and returns the path.
func (s *CSVStore) WriteTable(t *models.Table) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.dir, TableFileName)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("csv: create %q: %w", path, err)
	}
	defer f.Close()

	if err := EncodeTable(f, t); err != nil {
		return "", err
	}
	return path, nil
}

// WriteProjection writes the (stars, text) rows to reviews_data_ai.csv and
// returns the path.
func (s *CSVStore) WriteProjection(rows []models.StarText) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.dir, ProjectionFileName)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("csv: create %q: %w", path, err)
	}
	defer f.Close()

	if err := EncodeProjection(f, rows); err != nil {
		return "", err
	}
	return path, nil
}

// EncodeTable renders the full table as CSV: the typed columns first, then
// every remaining raw field name sorted, so a re-run with the same data
// produces an identical file.
func EncodeTable(w io.Writer, t *models.Table) error {
	extras := extraColumns(t)
	header := append(append([]string{}, typedColumns...), extras...)

	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("csv: write header: %w", err)
	}

	for _, r := range t.Rows {
		text := ""
		if r.Text != nil {
			text = *r.Text
		}
		row := []string{
			r.ReviewDate.Format(time.RFC3339),
			formatFloat(r.Stars),
			text,
			r.Title,
			r.CategoryName,
			strconv.Itoa(r.ReviewsCount),
		}
		for _, col := range extras {
			row = append(row, stringifyField(r.Fields[col]))
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("csv: write row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// EncodeProjection renders the two-column (stars, text) view.
func EncodeProjection(w io.Writer, rows []models.StarText) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"stars", "text"}); err != nil {
		return fmt.Errorf("csv: write header: %w", err)
	}
	for _, r := range rows {
		if err := cw.Write([]string{formatFloat(r.Stars), r.Text}); err != nil {
			return fmt.Errorf("csv: write row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ParseProjection reads a projection file back, preserving row order.
func ParseProjection(r io.Reader) ([]models.StarText, error) {
	cr := csv.NewReader(r)
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("csv: read projection: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("csv: projection has no header")
	}

	rows := make([]models.StarText, 0, len(records)-1)
	for i, rec := range records[1:] {
		if len(rec) != 2 {
			return nil, fmt.Errorf("csv: projection row %d has %d columns, want 2", i, len(rec))
		}
		stars, err := strconv.ParseFloat(rec[0], 64)
		if err != nil {
			return nil, fmt.Errorf("csv: projection row %d stars: %w", i, err)
		}
		rows = append(rows, models.StarText{Stars: stars, Text: rec[1]})
	}
	return rows, nil
}

// extraColumns returns the union of raw field names not already covered by a
// typed column, sorted.
func extraColumns(t *models.Table) []string {
	covered := make(map[string]struct{}, len(typedColumns))
	for _, c := range typedColumns {
		covered[c] = struct{}{}
	}

	seen := make(map[string]struct{})
	var extras []string
	for _, r := range t.Rows {
		for k := range r.Fields {
			if _, dup := seen[k]; dup {
				continue
			}
			if _, ok := covered[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			extras = append(extras, k)
		}
	}
	sort.Strings(extras)
	return extras
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func stringifyField(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return formatFloat(t)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprintf("%v", t)
	}
}
