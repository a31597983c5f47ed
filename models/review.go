package models

import "time"

// RawReview is one record exactly as the scraping backend returned it:
// an open-ended key/value mapping. Consumed once by the table builder.
type RawReview map[string]any

// Review is one structured table row. Typed fields are the columns the rest
// of the application reads by name; Fields keeps every original key so the
// full-table CSV loses nothing.
type Review struct {
	Stars        float64
	Text         *string
	Title        string
	CategoryName string
	ReviewsCount int
	ReviewDate   time.Time
	Fields       map[string]any
}

// Table is the dataset built from one fetch. Row count always equals the
// number of raw records returned; construction never filters.
type Table struct {
	Rows []Review
}

// Len returns the number of rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// SummaryStatistics is a read-only view over a table. Title, CategoryName and
// DeclaredReviewsCount come from row 0, which assumes every row belongs to the
// same business location. That holds for a single-place scrape and is not checked beyond
// that.
type SummaryStatistics struct {
	MeanStars            float64
	TotalRows            int
	Title                string
	CategoryName         string
	DeclaredReviewsCount int
}

// StarText is one row of the reduced two-column view sent to the LLM
// backend. Text is never empty: rows without text are dropped before
// projection.
type StarText struct {
	Stars float64
	Text  string
}

// StarCount is one histogram bucket. Buckets are sparse: star values that
// never occur are simply absent.
type StarCount struct {
	Stars float64
	Count int
}

// MonthCount is one time-series bucket. Month is the first day of the
// calendar month in UTC; months with zero reviews do not appear.
type MonthCount struct {
	Month time.Time
	Count int
}
