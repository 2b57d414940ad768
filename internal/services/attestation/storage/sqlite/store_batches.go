package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/offertoryapp/offertory/internal/services/attestation/storage"
)

// CreateBatch persists a new batch record.
func (s *Store) CreateBatch(ctx context.Context, batch storage.BatchRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}

	batch.ID = strings.TrimSpace(batch.ID)
	batch.OrganizationID = strings.TrimSpace(batch.OrganizationID)
	if batch.ID == "" {
		return fmt.Errorf("batch id is required")
	}
	if batch.OrganizationID == "" {
		return fmt.Errorf("organization id is required")
	}
	if batch.Status == "" {
		batch.Status = storage.BatchStatusOpen
	}
	now := time.Now().UTC()
	if batch.CreatedAt.IsZero() {
		batch.CreatedAt = now
	}
	if batch.UpdatedAt.IsZero() {
		batch.UpdatedAt = batch.CreatedAt
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO batches (
	id,
	organization_id,
	label,
	status,
	total_cents,
	created_at,
	updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?)
`,
		batch.ID,
		batch.OrganizationID,
		batch.Label,
		batch.Status,
		batch.TotalCents,
		toMillis(batch.CreatedAt),
		toMillis(batch.UpdatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("create batch: %w", err)
	}
	return nil
}

// GetBatch returns one batch record by ID.
func (s *Store) GetBatch(ctx context.Context, id string) (storage.BatchRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.BatchRecord{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.BatchRecord{}, fmt.Errorf("storage is not configured")
	}

	id = strings.TrimSpace(id)
	if id == "" {
		return storage.BatchRecord{}, fmt.Errorf("batch id is required")
	}

	row := s.sqlDB.QueryRowContext(ctx, `
SELECT `+batchColumns+`
FROM batches
WHERE id = ?
`, id)
	record, err := scanBatchRecord(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.BatchRecord{}, storage.ErrNotFound
		}
		return storage.BatchRecord{}, fmt.Errorf("get batch: %w", err)
	}
	return record, nil
}

// SetPrimaryAttestation records the first sign-off on an OPEN batch. The
// write is conditional on the batch still being OPEN.
func (s *Store) SetPrimaryAttestation(ctx context.Context, batchID, attestorID, attestorName string, attestedAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}

	batchID = strings.TrimSpace(batchID)
	attestorID = strings.TrimSpace(attestorID)
	attestorName = strings.TrimSpace(attestorName)
	if batchID == "" {
		return fmt.Errorf("batch id is required")
	}
	if attestorID == "" {
		return fmt.Errorf("attestor id is required")
	}
	if attestorName == "" {
		return fmt.Errorf("attestor name is required")
	}
	if attestedAt.IsZero() {
		attestedAt = time.Now().UTC()
	}
	attestedAt = attestedAt.UTC()

	result, err := s.sqlDB.ExecContext(ctx, `
UPDATE batches
SET
	status = ?,
	primary_attestor_id = ?,
	primary_attestor_name = ?,
	primary_attested_at = ?,
	updated_at = ?
WHERE id = ?
AND status = ?
`,
		storage.BatchStatusPrimaryAttested,
		attestorID,
		attestorName,
		toMillis(attestedAt),
		toMillis(attestedAt),
		batchID,
		storage.BatchStatusOpen,
	)
	if err != nil {
		return fmt.Errorf("set primary attestation: %w", err)
	}
	return s.classifyConditionalWrite(ctx, batchID, result)
}

// SetSecondaryAttestation records the second sign-off on a batch whose
// primary attestation is in place. The write is conditional on the batch's
// status and refuses the primary attestor's own identity.
func (s *Store) SetSecondaryAttestation(ctx context.Context, batchID, attestorID, attestorName string, attestedAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}

	batchID = strings.TrimSpace(batchID)
	attestorID = strings.TrimSpace(attestorID)
	attestorName = strings.TrimSpace(attestorName)
	if batchID == "" {
		return fmt.Errorf("batch id is required")
	}
	if attestorID == "" {
		return fmt.Errorf("attestor id is required")
	}
	if attestorName == "" {
		return fmt.Errorf("attestor name is required")
	}
	if attestedAt.IsZero() {
		attestedAt = time.Now().UTC()
	}
	attestedAt = attestedAt.UTC()

	result, err := s.sqlDB.ExecContext(ctx, `
UPDATE batches
SET
	status = ?,
	secondary_attestor_id = ?,
	secondary_attestor_name = ?,
	secondary_attested_at = ?,
	updated_at = ?
WHERE id = ?
AND status = ?
AND primary_attestor_id <> ?
`,
		storage.BatchStatusPendingFinalization,
		attestorID,
		attestorName,
		toMillis(attestedAt),
		toMillis(attestedAt),
		batchID,
		storage.BatchStatusPrimaryAttested,
		attestorID,
	)
	if err != nil {
		return fmt.Errorf("set secondary attestation: %w", err)
	}
	return s.classifyConditionalWrite(ctx, batchID, result)
}

// FinalizeBatch atomically verifies the stored total against the donation
// ledger, marks the batch FINALIZED, and enqueues the given outbox events.
// The whole unit commits or nothing does.
func (s *Store) FinalizeBatch(ctx context.Context, batchID string, finalizedAt time.Time, events []storage.FinalizationOutboxEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}

	batchID = strings.TrimSpace(batchID)
	if batchID == "" {
		return fmt.Errorf("batch id is required")
	}
	if finalizedAt.IsZero() {
		finalizedAt = time.Now().UTC()
	}
	finalizedAt = finalizedAt.UTC()

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("start finalize transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var status string
	var totalCents int64
	err = tx.QueryRowContext(ctx, `
SELECT status, total_cents
FROM batches
WHERE id = ?
`, batchID).Scan(&status, &totalCents)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("read batch for finalize: %w", err)
	}
	if status != storage.BatchStatusPendingFinalization {
		return storage.ErrConcurrentModification
	}

	var ledgerSum int64
	err = tx.QueryRowContext(ctx, `
SELECT COALESCE(SUM(amount_cents), 0)
FROM donations
WHERE batch_id = ?
`, batchID).Scan(&ledgerSum)
	if err != nil {
		return fmt.Errorf("sum donations for finalize: %w", err)
	}
	if ledgerSum != totalCents {
		return fmt.Errorf("%w: stored total %d, ledger sum %d", storage.ErrTotalMismatch, totalCents, ledgerSum)
	}

	result, err := tx.ExecContext(ctx, `
UPDATE batches
SET
	status = ?,
	finalized_at = ?,
	updated_at = ?
WHERE id = ?
AND status = ?
`,
		storage.BatchStatusFinalized,
		toMillis(finalizedAt),
		toMillis(finalizedAt),
		batchID,
		storage.BatchStatusPendingFinalization,
	)
	if err != nil {
		return fmt.Errorf("finalize batch: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("finalize batch rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return storage.ErrConcurrentModification
	}

	for _, event := range events {
		if event.BatchID == "" {
			event.BatchID = batchID
		}
		if err := enqueueOutboxEvent(ctx, tx, event); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit finalize transaction: %w", err)
	}
	return nil
}

// classifyConditionalWrite distinguishes a missing batch from a write whose
// status guard no longer held.
func (s *Store) classifyConditionalWrite(ctx context.Context, batchID string, result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("conditional write rows affected: %w", err)
	}
	if rowsAffected > 0 {
		return nil
	}

	var exists int
	err = s.sqlDB.QueryRowContext(ctx, `SELECT 1 FROM batches WHERE id = ?`, batchID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("check batch existence: %w", err)
	}
	return storage.ErrConcurrentModification
}
