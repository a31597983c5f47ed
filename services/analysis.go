package services

import (
	"context"
	"fmt"
	"strings"

	"gmaps-reviews-analyzer/llm/anthropic"
	"gmaps-reviews-analyzer/models"
	"gmaps-reviews-analyzer/storage"
	"gmaps-reviews-analyzer/utils"
)

// userMessageTemplate explains the data layout to the model; the projected
// CSV is embedded verbatim after the blank line.
const userMessageTemplate = "以下はGoogleマップのレビューデータです。このデータを分析してください。" +
	"データには評価（stars）とレビューテキスト（text）が含まれています。\n\n%s"

// Analyzer sends the review table's two-column projection to the LLM backend
// and returns its free-text analysis.
type Analyzer struct {
	llm       anthropic.Client
	snapshots storage.ProjectionWriter
	logger    *utils.Logger
}

// NewAnalyzer creates an Analyzer. snapshots receives an auditable copy of
// exactly what is sent upstream.
func NewAnalyzer(llm anthropic.Client, snapshots storage.ProjectionWriter, logger *utils.Logger) *Analyzer {
	return &Analyzer{llm: llm, snapshots: snapshots, logger: logger}
}

// Project reduces the table to (stars, text) pairs, dropping rows whose text
// is absent. Order is preserved.
func Project(t *models.Table) []models.StarText {
	rows := make([]models.StarText, 0, t.Len())
	for _, r := range t.Rows {
		if r.Text == nil {
			continue
		}
		rows = append(rows, models.StarText{Stars: r.Stars, Text: *r.Text})
	}
	return rows
}

// Analyze projects the table, persists the snapshot, and submits one request
// to the LLM backend. The report comes back as an opaque string; backend
// failures propagate as *models.BackendError without retry.
func (a *Analyzer) Analyze(ctx context.Context, t *models.Table, systemPrompt string) (string, error) {
	if t.Len() == 0 {
		return "", models.ErrEmptyTable
	}

	projection := Project(t)
	a.logger.Info("[analysis] Projected %d of %d rows (dropped %d without text)",
		len(projection), t.Len(), t.Len()-len(projection))

	path, err := a.snapshots.WriteProjection(projection)
	if err != nil {
		return "", fmt.Errorf("analysis: persist snapshot: %w", err)
	}
	a.logger.Info("[analysis] Snapshot written to %s", path)

	var csvData strings.Builder
	if err := storage.EncodeProjection(&csvData, projection); err != nil {
		return "", fmt.Errorf("analysis: encode projection: %w", err)
	}

	userMessage := fmt.Sprintf(userMessageTemplate, csvData.String())
	report, err := a.llm.Complete(ctx, systemPrompt, userMessage)
	if err != nil {
		return "", err
	}

	a.logger.Info("[analysis] Received %d characters of analysis", len(report))
	return report, nil
}
