package server

import (
	"context"
	"encoding/json"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gmaps-reviews-analyzer/config"
	"gmaps-reviews-analyzer/models"
	"gmaps-reviews-analyzer/services"
	"gmaps-reviews-analyzer/storage"
	"gmaps-reviews-analyzer/utils"
)

type fakeScraper struct {
	records []models.RawReview
	err     error
	gotURL  string
	gotMax  int
}

func (f *fakeScraper) FetchReviews(_ context.Context, targetURL string, maxReviews int) ([]models.RawReview, error) {
	f.gotURL = targetURL
	f.gotMax = maxReviews
	if f.err != nil {
		return nil, f.err
	}
	return f.records, nil
}

type fakeLLM struct {
	report string
	err    error
}

func (f *fakeLLM) Complete(_ context.Context, _, _ string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.report, nil
}

type fakeTableStore struct {
	table *models.Table
}

func (f *fakeTableStore) WriteTable(t *models.Table) (string, error) {
	f.table = t
	return "reviews", nil
}

func (f *fakeTableStore) FetchAll() (*models.Table, error) {
	if f.table == nil {
		return &models.Table{}, nil
	}
	return f.table, nil
}

func newTestServer(t *testing.T, scraper *fakeScraper, llm *fakeLLM) *Server {
	t.Helper()
	return newTestServerWithStore(t, scraper, llm, nil)
}

func newTestServerWithStore(t *testing.T, scraper *fakeScraper, llm *fakeLLM, db storage.TableWriter) *Server {
	t.Helper()
	logger := utils.NewLoggerAt(utils.LevelError)

	files, err := storage.NewCSVStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewCSVStore returned error: %v", err)
	}

	builder := services.NewTableBuilder(services.NewSyntheticDates(rand.NewSource(1)), logger)
	insights := services.NewInsightService(logger)
	analyzer := services.NewAnalyzer(llm, files, logger)
	prompts := config.NewPromptStore(filepath.Join(t.TempDir(), "prompt.yaml"))

	return New("0", scraper, builder, insights, analyzer, files, db, prompts, logger)
}

func doJSON(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func scrapedRecords() []models.RawReview {
	return []models.RawReview{
		{"stars": 5.0, "text": "Great", "title": "Cafe X", "categoryName": "Cafe", "reviewsCount": 2.0},
		{"stars": 3.0, "text": nil, "title": "Cafe X", "categoryName": "Cafe", "reviewsCount": 2.0},
	}
}

func TestSummaryWithoutFetchIsNoData(t *testing.T) {
	s := newTestServer(t, &fakeScraper{}, &fakeLLM{})

	for _, path := range []string{"/api/summary", "/api/histogram", "/api/monthly", "/api/reviews.csv"} {
		rec := doJSON(t, s, http.MethodGet, path, "")
		if rec.Code != http.StatusConflict {
			t.Errorf("%s before fetch: got %d, want %d", path, rec.Code, http.StatusConflict)
		}
	}
}

func TestFetchValidation(t *testing.T) {
	s := newTestServer(t, &fakeScraper{}, &fakeLLM{})

	tests := []struct {
		name string
		body string
	}{
		{"invalid json", "{not json"},
		{"missing url", `{"maxReviews": 100}`},
		{"zero maxReviews", `{"url": "https://maps.google.com/x", "maxReviews": 0}`},
		{"too many", `{"url": "https://maps.google.com/x", "maxReviews": 1001}`},
	}
	for _, tt := range tests {
		rec := doJSON(t, s, http.MethodPost, "/api/reviews", tt.body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: got %d, want %d", tt.name, rec.Code, http.StatusBadRequest)
		}
	}
}

func TestFetchThenDerivations(t *testing.T) {
	scraper := &fakeScraper{records: scrapedRecords()}
	s := newTestServer(t, scraper, &fakeLLM{})

	rec := doJSON(t, s, http.MethodPost, "/api/reviews", `{"url": "https://maps.google.com/x", "maxReviews": 100}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("fetch: got %d, body %s", rec.Code, rec.Body.String())
	}
	if scraper.gotMax != 100 {
		t.Errorf("maxReviews passed to scraper: got %d", scraper.gotMax)
	}

	var fetched fetchResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &fetched); err != nil {
		t.Fatalf("decoding fetch response: %v", err)
	}
	if fetched.Rows != 2 {
		t.Errorf("rows: got %d, want 2", fetched.Rows)
	}

	rec = doJSON(t, s, http.MethodGet, "/api/summary", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("summary: got %d", rec.Code)
	}
	var summary summaryResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &summary); err != nil {
		t.Fatalf("decoding summary: %v", err)
	}
	if summary.MeanStars != 4.00 {
		t.Errorf("meanStars: got %v, want 4.00", summary.MeanStars)
	}
	if summary.Title != "Cafe X" || summary.ReviewsCount != 2 {
		t.Errorf("summary: got %+v", summary)
	}

	rec = doJSON(t, s, http.MethodGet, "/api/histogram", "")
	var histogram []starCountResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &histogram); err != nil {
		t.Fatalf("decoding histogram: %v", err)
	}
	if len(histogram) != 2 || histogram[0].Stars != 3 || histogram[1].Stars != 5 {
		t.Errorf("histogram: got %+v", histogram)
	}

	rec = doJSON(t, s, http.MethodGet, "/api/monthly", "")
	var monthly []monthCountResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &monthly); err != nil {
		t.Fatalf("decoding monthly: %v", err)
	}
	sum := 0
	for _, b := range monthly {
		sum += b.Count
	}
	if sum != 2 {
		t.Errorf("monthly counts sum to %d, want 2", sum)
	}

	rec = doJSON(t, s, http.MethodGet, "/api/reviews.csv", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("csv download: got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Errorf("content type: got %q", ct)
	}
	if !strings.Contains(rec.Body.String(), "review_date,stars,text") {
		t.Errorf("csv body missing header: %q", rec.Body.String())
	}
}

func TestFetchZeroRecordsShowsNoDataState(t *testing.T) {
	s := newTestServer(t, &fakeScraper{records: nil}, &fakeLLM{})

	rec := doJSON(t, s, http.MethodPost, "/api/reviews", `{"url": "https://maps.google.com/x", "maxReviews": 1000}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("fetch: got %d", rec.Code)
	}

	var fetched fetchResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &fetched); err != nil {
		t.Fatalf("decoding fetch response: %v", err)
	}
	if fetched.Rows != 0 {
		t.Errorf("rows: got %d, want 0", fetched.Rows)
	}
	if fetched.CSVPath == "" {
		t.Error("a zero-row fetch should still report the written file")
	}

	rec = doJSON(t, s, http.MethodGet, "/api/summary", "")
	if rec.Code != http.StatusConflict {
		t.Errorf("summary on empty table: got %d, want %d", rec.Code, http.StatusConflict)
	}
	if !strings.Contains(rec.Body.String(), "no data") {
		t.Errorf("expected explicit no-data message, got %q", rec.Body.String())
	}
}

func TestFetchZeroRecordsOverwritesCSV(t *testing.T) {
	scraper := &fakeScraper{records: scrapedRecords()}
	s := newTestServer(t, scraper, &fakeLLM{})

	if rec := doJSON(t, s, http.MethodPost, "/api/reviews", `{"url": "https://maps.google.com/x", "maxReviews": 10}`); rec.Code != http.StatusOK {
		t.Fatalf("first fetch: got %d", rec.Code)
	}

	scraper.records = nil
	rec := doJSON(t, s, http.MethodPost, "/api/reviews", `{"url": "https://maps.google.com/y", "maxReviews": 10}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("second fetch: got %d", rec.Code)
	}
	var fetched fetchResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &fetched); err != nil {
		t.Fatalf("decoding fetch response: %v", err)
	}

	data, err := os.ReadFile(fetched.CSVPath)
	if err != nil {
		t.Fatalf("reading exported file: %v", err)
	}
	if strings.Contains(string(data), "Great") {
		t.Errorf("export still carries the previous run's rows: %q", data)
	}
	if !strings.HasPrefix(string(data), "review_date,stars,text") {
		t.Errorf("export missing header: %q", data)
	}
}

func TestStoredReviewsSurviveRestart(t *testing.T) {
	store := &fakeTableStore{}
	scraper := &fakeScraper{records: scrapedRecords()}

	s1 := newTestServerWithStore(t, scraper, &fakeLLM{}, store)
	if rec := doJSON(t, s1, http.MethodPost, "/api/reviews", `{"url": "https://maps.google.com/x", "maxReviews": 10}`); rec.Code != http.StatusOK {
		t.Fatalf("fetch: got %d", rec.Code)
	}
	if store.table == nil {
		t.Fatal("fetch should have persisted the table")
	}

	s2 := newTestServerWithStore(t, &fakeScraper{}, &fakeLLM{}, store)
	stored, err := store.FetchAll()
	if err != nil {
		t.Fatalf("FetchAll returned error: %v", err)
	}
	s2.Restore(stored)

	rec := doJSON(t, s2, http.MethodGet, "/api/summary", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("summary after restore: got %d, body %s", rec.Code, rec.Body.String())
	}
	var summary summaryResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &summary); err != nil {
		t.Fatalf("decoding summary: %v", err)
	}
	if summary.MeanStars != 4.00 || summary.Title != "Cafe X" {
		t.Errorf("restored summary: got %+v", summary)
	}
}

func TestRestoreIgnoresEmptyTable(t *testing.T) {
	s := newTestServer(t, &fakeScraper{}, &fakeLLM{})
	s.Restore(&models.Table{})

	rec := doJSON(t, s, http.MethodGet, "/api/summary", "")
	if rec.Code != http.StatusConflict {
		t.Errorf("empty restore should keep the no-data state, got %d", rec.Code)
	}
}

func TestFetchBackendErrorPreservesSession(t *testing.T) {
	scraper := &fakeScraper{records: scrapedRecords()}
	s := newTestServer(t, scraper, &fakeLLM{})

	if rec := doJSON(t, s, http.MethodPost, "/api/reviews", `{"url": "https://maps.google.com/x", "maxReviews": 10}`); rec.Code != http.StatusOK {
		t.Fatalf("first fetch: got %d", rec.Code)
	}

	scraper.err = &models.BackendError{Service: "apify", Err: context.DeadlineExceeded}
	rec := doJSON(t, s, http.MethodPost, "/api/reviews", `{"url": "https://maps.google.com/y", "maxReviews": 10}`)
	if rec.Code != http.StatusBadGateway {
		t.Errorf("failed fetch: got %d, want %d", rec.Code, http.StatusBadGateway)
	}

	rec = doJSON(t, s, http.MethodGet, "/api/summary", "")
	if rec.Code != http.StatusOK {
		t.Errorf("previous dataset should survive a failed fetch, got %d", rec.Code)
	}
}

func TestFetchValidationErrorMapsTo422(t *testing.T) {
	scraper := &fakeScraper{records: []models.RawReview{{"stars": "N/A"}}}
	s := newTestServer(t, scraper, &fakeLLM{})

	rec := doJSON(t, s, http.MethodPost, "/api/reviews", `{"url": "https://maps.google.com/x", "maxReviews": 10}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("got %d, want %d", rec.Code, http.StatusUnprocessableEntity)
	}
	if !strings.Contains(rec.Body.String(), "index 0") {
		t.Errorf("error should name the offending record, got %q", rec.Body.String())
	}
}

func TestAnalysisEndpoint(t *testing.T) {
	s := newTestServer(t, &fakeScraper{records: scrapedRecords()}, &fakeLLM{report: "インサイト"})

	if rec := doJSON(t, s, http.MethodPost, "/api/reviews", `{"url": "https://maps.google.com/x", "maxReviews": 10}`); rec.Code != http.StatusOK {
		t.Fatalf("fetch: got %d", rec.Code)
	}

	rec := doJSON(t, s, http.MethodPost, "/api/analysis", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("analysis: got %d, body %s", rec.Code, rec.Body.String())
	}
	var resp analysisResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding analysis response: %v", err)
	}
	if resp.Report != "インサイト" {
		t.Errorf("report: got %q", resp.Report)
	}
}

func TestAnalysisBackendErrorMapsTo502(t *testing.T) {
	llm := &fakeLLM{err: &models.BackendError{Service: "anthropic", Err: context.DeadlineExceeded}}
	s := newTestServer(t, &fakeScraper{records: scrapedRecords()}, llm)

	if rec := doJSON(t, s, http.MethodPost, "/api/reviews", `{"url": "https://maps.google.com/x", "maxReviews": 10}`); rec.Code != http.StatusOK {
		t.Fatalf("fetch: got %d", rec.Code)
	}

	rec := doJSON(t, s, http.MethodPost, "/api/analysis", "")
	if rec.Code != http.StatusBadGateway {
		t.Errorf("got %d, want %d", rec.Code, http.StatusBadGateway)
	}
}

func TestPromptRoundTrip(t *testing.T) {
	s := newTestServer(t, &fakeScraper{}, &fakeLLM{})

	rec := doJSON(t, s, http.MethodGet, "/api/prompt", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get prompt: got %d", rec.Code)
	}
	var got promptPayload
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decoding prompt: %v", err)
	}
	if got.SystemPrompt != config.DefaultSystemPrompt {
		t.Errorf("expected default prompt before any save")
	}

	rec = doJSON(t, s, http.MethodPut, "/api/prompt", `{"systemPrompt": "新しいプロンプト"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("save prompt: got %d", rec.Code)
	}

	rec = doJSON(t, s, http.MethodGet, "/api/prompt", "")
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decoding prompt: %v", err)
	}
	if got.SystemPrompt != "新しいプロンプト" {
		t.Errorf("prompt round trip: got %q", got.SystemPrompt)
	}
}

func TestSavePromptRejectsEmpty(t *testing.T) {
	s := newTestServer(t, &fakeScraper{}, &fakeLLM{})

	rec := doJSON(t, s, http.MethodPut, "/api/prompt", `{"systemPrompt": "  "}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("got %d, want %d", rec.Code, http.StatusBadRequest)
	}
}
