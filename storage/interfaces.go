package storage

import "gmaps-reviews-analyzer/models"

// TableWriter is the interface any full-table storage backend must satisfy.
type TableWriter interface {
	WriteTable(t *models.Table) (string, error)
}

// TableStore is a TableWriter whose dataset can be read back, so a stored
// fetch survives a restart.
type TableStore interface {
	TableWriter
	FetchAll() (*models.Table, error)
}

// ProjectionWriter persists the reduced (stars, text) view for auditing.
type ProjectionWriter interface {
	WriteProjection(rows []models.StarText) (string, error)
}
