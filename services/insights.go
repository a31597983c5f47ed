package services

import (
	"sort"
	"time"

	"gmaps-reviews-analyzer/models"
	"gmaps-reviews-analyzer/utils"
)

// InsightService derives summary statistics and chart-ready distributions
// from a review table. Every operation is read-only and idempotent.
type InsightService struct {
	logger *utils.Logger
}

// NewInsightService creates an InsightService with the given logger.
func NewInsightService(logger *utils.Logger) *InsightService {
	return &InsightService{logger: logger}
}

// Summary computes the aggregate view: mean star rating over all rows plus
// the business fields taken from row 0. Fails with models.ErrEmptyTable on a
// zero-row table, since the mean of an empty set and a first-row lookup are both
// undefined.
func (s *InsightService) Summary(t *models.Table) (*models.SummaryStatistics, error) {
	if t.Len() == 0 {
		return nil, models.ErrEmptyTable
	}

	var total float64
	for _, r := range t.Rows {
		total += r.Stars
	}

	first := t.Rows[0]
	return &models.SummaryStatistics{
		MeanStars:            round2(total / float64(t.Len())),
		TotalRows:            t.Len(),
		Title:                first.Title,
		CategoryName:         first.CategoryName,
		DeclaredReviewsCount: first.ReviewsCount,
	}, nil
}

// StarHistogram groups rows by exact star value and counts each group,
// ascending by value. Values that never occur are omitted, not zero-filled.
func (s *InsightService) StarHistogram(t *models.Table) []models.StarCount {
	counts := make(map[float64]int)
	for _, r := range t.Rows {
		counts[r.Stars]++
	}

	histogram := make([]models.StarCount, 0, len(counts))
	for stars, count := range counts {
		histogram = append(histogram, models.StarCount{Stars: stars, Count: count})
	}
	sort.Slice(histogram, func(i, j int) bool {
		return histogram[i].Stars < histogram[j].Stars
	})
	return histogram
}

// MonthlyCounts groups rows by the calendar month of review_date and counts
// rows per bucket, chronologically. Day-of-month information is discarded;
// months with zero rows do not appear.
func (s *InsightService) MonthlyCounts(t *models.Table) []models.MonthCount {
	counts := make(map[time.Time]int)
	for _, r := range t.Rows {
		month := monthStart(r.ReviewDate)
		counts[month]++
	}

	series := make([]models.MonthCount, 0, len(counts))
	for month, count := range counts {
		series = append(series, models.MonthCount{Month: month, Count: count})
	}
	sort.Slice(series, func(i, j int) bool {
		return series[i].Month.Before(series[j].Month)
	})
	return series
}

func monthStart(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), 1, 0, 0, 0, 0, time.UTC)
}

func round2(f float64) float64 {
	return float64(int(f*100+0.5)) / 100
}
