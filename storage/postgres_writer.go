package storage

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"gmaps-reviews-analyzer/models"
	"gmaps-reviews-analyzer/utils"
)

// PostgresWriter persists the current review table to PostgreSQL so past
// fetches survive a restart. Each write replaces the previous dataset;
// the analyzer works on one location at a time.
type PostgresWriter struct {
	db *sql.DB
}

// NewPostgresWriter opens a connection to PostgreSQL, runs schema migrations,
// and returns a ready-to-use PostgresWriter.
func NewPostgresWriter(dsn string, logger *utils.Logger) (*PostgresWriter, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}

	retry := &utils.RetryConfig{MaxAttempts: 5, BaseDelay: 2 * time.Second, Logger: logger}
	if err := retry.Do("postgres-ping", db.Ping); err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}

	pw := &PostgresWriter{db: db}
	if err := pw.migrate(); err != nil {
		return nil, fmt.Errorf("postgres: migrate: %w", err)
	}

	return pw, nil
}

func (pw *PostgresWriter) migrate() error {
	_, err := pw.db.Exec(`
		CREATE TABLE IF NOT EXISTS reviews (
			id            SERIAL PRIMARY KEY,
			title         TEXT         NOT NULL DEFAULT '',
			category_name TEXT         NOT NULL DEFAULT '',
			stars         NUMERIC(4,2) NOT NULL,
			text          TEXT,
			reviews_count INTEGER      NOT NULL DEFAULT 0,
			review_date   TIMESTAMPTZ  NOT NULL,
			stored_at     TIMESTAMPTZ  NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_reviews_stars       ON reviews(stars);
		CREATE INDEX IF NOT EXISTS idx_reviews_review_date ON reviews(review_date);
	`)
	return err
}

// Clear deletes all stored reviews.
func (pw *PostgresWriter) Clear() error {
	_, err := pw.db.Exec("DELETE FROM reviews")
	if err != nil {
		return fmt.Errorf("postgres: clear: %w", err)
	}
	return nil
}

// WriteTable replaces the stored dataset with the given table and returns the
// destination table name.
func (pw *PostgresWriter) WriteTable(t *models.Table) (string, error) {
	if err := pw.Clear(); err != nil {
		return "", err
	}

	const batchSize = 50
	for i := 0; i < t.Len(); i += batchSize {
		end := i + batchSize
		if end > t.Len() {
			end = t.Len()
		}
		if err := pw.insertBatch(t.Rows[i:end]); err != nil {
			return "", err
		}
	}
	return "reviews", nil
}

func (pw *PostgresWriter) insertBatch(batch []models.Review) error {
	valueStrings := make([]string, 0, len(batch))
	valueArgs := make([]interface{}, 0, len(batch)*6)

	for idx, r := range batch {
		base := idx * 6
		valueStrings = append(valueStrings,
			fmt.Sprintf("($%d,$%d,$%d,$%d,$%d,$%d)",
				base+1, base+2, base+3, base+4, base+5, base+6))

		var text sql.NullString
		if r.Text != nil {
			text = sql.NullString{String: *r.Text, Valid: true}
		}
		valueArgs = append(valueArgs,
			r.Title, r.CategoryName, r.Stars, text, r.ReviewsCount, r.ReviewDate)
	}

	query := fmt.Sprintf(`
		INSERT INTO reviews (title, category_name, stars, text, reviews_count, review_date)
		VALUES %s
	`, strings.Join(valueStrings, ","))

	_, err := pw.db.Exec(query, valueArgs...)
	if err != nil {
		return fmt.Errorf("postgres: insert batch: %w", err)
	}
	return nil
}

// FetchAll reloads the stored dataset, ordered as inserted. Raw pass-through
// fields are not persisted, so Fields is empty on reloaded rows.
func (pw *PostgresWriter) FetchAll() (*models.Table, error) {
	rows, err := pw.db.Query(`
		SELECT title, category_name, stars, text, reviews_count, review_date
		FROM reviews
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("postgres: fetch all: %w", err)
	}
	defer rows.Close()

	table := &models.Table{}
	for rows.Next() {
		var r models.Review
		var text sql.NullString
		if err := rows.Scan(&r.Title, &r.CategoryName, &r.Stars, &text, &r.ReviewsCount, &r.ReviewDate); err != nil {
			return nil, fmt.Errorf("postgres: scan row: %w", err)
		}
		if text.Valid {
			r.Text = &text.String
		}
		table.Rows = append(table.Rows, r)
	}
	return table, rows.Err()
}

// Close releases the database handle.
func (pw *PostgresWriter) Close() error {
	return pw.db.Close()
}
