package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"gmaps-reviews-analyzer/models"
	"gmaps-reviews-analyzer/scraper/apify"
	"gmaps-reviews-analyzer/storage"
)

type fetchRequest struct {
	URL        string `json:"url"`
	MaxReviews int    `json:"maxReviews"`
}

type fetchResponse struct {
	Rows    int    `json:"rows"`
	CSVPath string `json:"csvPath"`
}

type summaryResponse struct {
	MeanStars    float64 `json:"meanStars"`
	TotalRows    int     `json:"totalRows"`
	Title        string  `json:"title"`
	CategoryName string  `json:"categoryName"`
	ReviewsCount int     `json:"reviewsCount"`
}

type starCountResponse struct {
	Stars float64 `json:"stars"`
	Count int     `json:"count"`
}

type monthCountResponse struct {
	Month string `json:"month"`
	Count int    `json:"count"`
}

type analysisResponse struct {
	Report string `json:"report"`
}

type promptPayload struct {
	SystemPrompt string `json:"systemPrompt"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// handleFetchReviews runs one fetch action: scrape, build the table, write
// the full CSV, persist to the database when configured, then swap the
// session. Any failure leaves the previous session untouched.
func (s *Server) handleFetchReviews(w http.ResponseWriter, r *http.Request) {
	var req fetchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.URL) == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}
	if req.MaxReviews < 1 || req.MaxReviews > apify.MaxReviews {
		writeError(w, http.StatusBadRequest, "maxReviews must be between 1 and 1000")
		return
	}

	raw, err := s.scraper.FetchReviews(r.Context(), req.URL, req.MaxReviews)
	if err != nil {
		s.writeActionError(w, err)
		return
	}

	table, err := s.builder.Build(raw)
	if err != nil {
		s.writeActionError(w, err)
		return
	}

	// The flat file always mirrors the latest run, even a zero-row one, so
	// a stale export never outlives the session it came from.
	path, err := s.files.WriteTable(table)
	if err != nil {
		s.writeActionError(w, err)
		return
	}
	resp := fetchResponse{Rows: table.Len(), CSVPath: path}

	if s.db != nil && table.Len() > 0 {
		if _, err := s.db.WriteTable(table); err != nil {
			// Database persistence is best-effort; the session dataset
			// is the source of truth for this run.
			s.logger.Warn("[server] Database write failed: %v", err)
		}
	}

	s.session.Set(table)
	s.logger.Info("[server] Fetch complete: %d rows for %s", table.Len(), req.URL)
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	table, ok := s.currentTable(w)
	if !ok {
		return
	}

	stats, err := s.insights.Summary(table)
	if err != nil {
		s.writeActionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summaryResponse{
		MeanStars:    stats.MeanStars,
		TotalRows:    stats.TotalRows,
		Title:        stats.Title,
		CategoryName: stats.CategoryName,
		ReviewsCount: stats.DeclaredReviewsCount,
	})
}

func (s *Server) handleHistogram(w http.ResponseWriter, r *http.Request) {
	table, ok := s.currentTable(w)
	if !ok {
		return
	}

	histogram := s.insights.StarHistogram(table)
	resp := make([]starCountResponse, 0, len(histogram))
	for _, b := range histogram {
		resp = append(resp, starCountResponse{Stars: b.Stars, Count: b.Count})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleMonthly(w http.ResponseWriter, r *http.Request) {
	table, ok := s.currentTable(w)
	if !ok {
		return
	}

	series := s.insights.MonthlyCounts(table)
	resp := make([]monthCountResponse, 0, len(series))
	for _, b := range series {
		resp = append(resp, monthCountResponse{Month: b.Month.Format("2006-01"), Count: b.Count})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAnalysis(w http.ResponseWriter, r *http.Request) {
	table, ok := s.currentTable(w)
	if !ok {
		return
	}

	systemPrompt, err := s.prompts.Load()
	if err != nil {
		s.writeActionError(w, err)
		return
	}

	report, err := s.analyzer.Analyze(r.Context(), table, systemPrompt)
	if err != nil {
		s.writeActionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, analysisResponse{Report: report})
}

func (s *Server) handleDownloadCSV(w http.ResponseWriter, r *http.Request) {
	table, ok := s.currentTable(w)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="reviews_data.csv"`)
	if err := storage.EncodeTable(w, table); err != nil {
		s.logger.Error("[server] CSV download failed: %v", err)
	}
}

func (s *Server) handleGetPrompt(w http.ResponseWriter, r *http.Request) {
	prompt, err := s.prompts.Load()
	if err != nil {
		s.writeActionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, promptPayload{SystemPrompt: prompt})
}

func (s *Server) handleSavePrompt(w http.ResponseWriter, r *http.Request) {
	var req promptPayload
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.SystemPrompt) == "" {
		writeError(w, http.StatusBadRequest, "systemPrompt is required")
		return
	}

	if err := s.prompts.Save(req.SystemPrompt); err != nil {
		s.writeActionError(w, err)
		return
	}
	s.logger.Info("[server] System prompt saved")
	writeJSON(w, http.StatusOK, req)
}

// currentTable fetches the session dataset, answering the explicit no-data
// state when nothing has been fetched yet.
func (s *Server) currentTable(w http.ResponseWriter) (*models.Table, bool) {
	table := s.session.Get()
	if table == nil {
		writeError(w, http.StatusConflict, "no data: fetch reviews first")
		return nil, false
	}
	return table, true
}

// writeActionError maps the error taxonomy onto HTTP statuses. Every action
// failure surfaces as a message; nothing is swallowed.
func (s *Server) writeActionError(w http.ResponseWriter, err error) {
	var validationErr *models.ValidationError
	var backendErr *models.BackendError

	switch {
	case errors.As(err, &validationErr):
		writeError(w, http.StatusUnprocessableEntity, validationErr.Error())
	case errors.Is(err, models.ErrEmptyTable):
		writeError(w, http.StatusConflict, "no data: "+err.Error())
	case errors.As(err, &backendErr):
		s.logger.Error("[server] Backend failure: %v", err)
		writeError(w, http.StatusBadGateway, backendErr.Error())
	default:
		s.logger.Error("[server] Action failed: %v", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
