package services

import (
	"math/rand"
	"strconv"
	"time"

	"gmaps-reviews-analyzer/models"
	"gmaps-reviews-analyzer/utils"
)

// syntheticWindowDays is the lookback window for generated review dates.
const syntheticWindowDays = 730

// DateAssigner decides which review_date a row gets. The scraped data carries
// a real publication date that the current product does not trust end to end,
// so the strategy is pluggable instead of hard-coded.
type DateAssigner interface {
	Assign(raw models.RawReview, now time.Time) time.Time
}

// SyntheticDates draws each row's date independently and uniformly from the
// inclusive range [now − 730 days, now]. The resulting time series is
// scaffolding for the monthly chart, not real chronology.
type SyntheticDates struct {
	rng *rand.Rand
}

// NewSyntheticDates creates the generator. A nil source is seeded from the
// clock.
func NewSyntheticDates(src rand.Source) *SyntheticDates {
	if src == nil {
		src = rand.NewSource(time.Now().UnixNano())
	}
	return &SyntheticDates{rng: rand.New(src)}
}

func (s *SyntheticDates) Assign(_ models.RawReview, now time.Time) time.Time {
	offset := s.rng.Intn(syntheticWindowDays + 1)
	return now.AddDate(0, 0, -syntheticWindowDays+offset)
}

// PublishedDates passes the scraped publication date through and falls back
// to a synthetic date per row when the field is absent or unparseable.
type PublishedDates struct {
	fallback *SyntheticDates
}

// NewPublishedDates creates the passthrough assigner. src seeds the fallback.
func NewPublishedDates(src rand.Source) *PublishedDates {
	return &PublishedDates{fallback: NewSyntheticDates(src)}
}

var publishedLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02",
}

func (p *PublishedDates) Assign(raw models.RawReview, now time.Time) time.Time {
	if v, ok := raw["publishedAtDate"].(string); ok {
		for _, layout := range publishedLayouts {
			if t, err := time.Parse(layout, v); err == nil {
				return t
			}
		}
	}
	return p.fallback.Assign(raw, now)
}

// TableBuilder converts raw scraped records into the structured review table.
type TableBuilder struct {
	dates  DateAssigner
	now    func() time.Time
	logger *utils.Logger
}

// NewTableBuilder creates a builder with the given date strategy.
func NewTableBuilder(dates DateAssigner, logger *utils.Logger) *TableBuilder {
	return &TableBuilder{dates: dates, now: time.Now, logger: logger}
}

// Build produces one row per raw record. The stars field must coerce to a
// number for every record; the first record that fails aborts the whole build
// with a *models.ValidationError; no partially built table is returned.
// An empty input yields an empty table.
func (b *TableBuilder) Build(raw []models.RawReview) (*models.Table, error) {
	now := b.now()
	table := &models.Table{Rows: make([]models.Review, 0, len(raw))}

	for i, rec := range raw {
		stars, ok := toFloat(rec["stars"])
		if !ok {
			return nil, &models.ValidationError{Index: i, Field: "stars", Value: rec["stars"]}
		}

		row := models.Review{
			Stars:        stars,
			Text:         toNullableString(rec["text"]),
			Title:        toString(rec["title"]),
			CategoryName: toString(rec["categoryName"]),
			ReviewDate:   b.dates.Assign(rec, now),
			Fields:       rec,
		}
		if count, ok := toFloat(rec["reviewsCount"]); ok {
			row.ReviewsCount = int(count)
		}

		table.Rows = append(table.Rows, row)
	}

	b.logger.Info("[table] Built table with %d rows from %d raw records", table.Len(), len(raw))
	return table, nil
}

// toFloat accepts JSON numbers and numeric strings.
func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func toNullableString(v any) *string {
	if s, ok := v.(string); ok {
		return &s
	}
	return nil
}
