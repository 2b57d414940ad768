// Package notify announces finalized batches to operators.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/offertoryapp/offertory/internal/services/attestation/storage"
)

// LogNotifier announces finalized batches on the process log. It stands in
// for an email or chat integration and keeps delivery observable without
// external dependencies.
type LogNotifier struct {
	logf func(format string, args ...any)
}

// NewLogNotifier constructs a log-backed notifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{logf: log.Printf}
}

type noticePayload struct {
	BatchID        string `json:"batch_id"`
	OrganizationID string `json:"organization_id"`
	TotalCents     int64  `json:"total_cents"`
	FinalizedAt    int64  `json:"finalized_at"`
}

// Handle announces the finalization carried by one outbox event.
func (n *LogNotifier) Handle(ctx context.Context, event storage.FinalizationOutboxEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var payload noticePayload
	if err := json.Unmarshal([]byte(event.PayloadJSON), &payload); err != nil {
		return fmt.Errorf("decode finalization payload: %w", err)
	}
	if payload.BatchID == "" {
		return fmt.Errorf("finalization payload is missing batch id")
	}

	logf := n.logf
	if logf == nil {
		logf = log.Printf
	}
	logf("batch finalized batch_id=%s organization_id=%s total_cents=%d finalized_at=%d",
		payload.BatchID, payload.OrganizationID, payload.TotalCents, payload.FinalizedAt)
	return nil
}
