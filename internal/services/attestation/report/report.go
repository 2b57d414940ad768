// Package report archives finalization reports as JSON files.
package report

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/offertoryapp/offertory/internal/services/attestation/storage"
)

// Record is the archived shape of one finalized batch.
type Record struct {
	BatchID        string `json:"batch_id"`
	OrganizationID string `json:"organization_id"`
	Label          string `json:"label,omitempty"`
	TotalCents     int64  `json:"total_cents"`
	FinalizedAt    int64  `json:"finalized_at"`
}

// Writer persists one report file per finalized batch. Writes are atomic:
// a temp file is renamed into place, so a crash never leaves a partial
// report and a replayed event simply rewrites the same content.
type Writer struct {
	dir string
}

// NewWriter constructs a report writer rooted at dir.
func NewWriter(dir string) *Writer {
	return &Writer{dir: strings.TrimSpace(dir)}
}

// Handle archives the finalization report carried by one outbox event.
func (w *Writer) Handle(ctx context.Context, event storage.FinalizationOutboxEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if w == nil || w.dir == "" {
		return fmt.Errorf("report directory is not configured")
	}

	var record Record
	if err := json.Unmarshal([]byte(event.PayloadJSON), &record); err != nil {
		return fmt.Errorf("decode finalization payload: %w", err)
	}
	if record.BatchID == "" {
		return fmt.Errorf("finalization payload is missing batch id")
	}

	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("create report dir: %w", err)
	}

	content, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	content = append(content, '\n')

	finalPath := filepath.Join(w.dir, record.BatchID+".json")
	tempPath := finalPath + ".tmp"
	if err := os.WriteFile(tempPath, content, 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	if err := os.Rename(tempPath, finalPath); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("publish report: %w", err)
	}
	return nil
}
