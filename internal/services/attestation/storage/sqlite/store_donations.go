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

// AddDonation appends one ledger entry and folds its amount into the owning
// batch's running total. The write is refused once the batch is finalized.
func (s *Store) AddDonation(ctx context.Context, donation storage.DonationRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}

	donation.ID = strings.TrimSpace(donation.ID)
	donation.BatchID = strings.TrimSpace(donation.BatchID)
	donation.Kind = strings.TrimSpace(donation.Kind)
	donation.DonorName = strings.TrimSpace(donation.DonorName)
	if donation.ID == "" {
		return fmt.Errorf("donation id is required")
	}
	if donation.BatchID == "" {
		return fmt.Errorf("batch id is required")
	}
	if donation.Kind == "" {
		return fmt.Errorf("donation kind is required")
	}
	if donation.AmountCents <= 0 {
		return fmt.Errorf("donation amount must be greater than zero")
	}
	now := time.Now().UTC()
	if donation.CreatedAt.IsZero() {
		donation.CreatedAt = now
	}
	if donation.UpdatedAt.IsZero() {
		donation.UpdatedAt = donation.CreatedAt
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("start donation transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var status string
	err = tx.QueryRowContext(ctx, `
SELECT status
FROM batches
WHERE id = ?
`, donation.BatchID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("read batch for donation: %w", err)
	}
	if status == storage.BatchStatusFinalized {
		return storage.ErrLedgerFrozen
	}

	_, err = tx.ExecContext(ctx, `
INSERT INTO donations (
	id,
	batch_id,
	kind,
	amount_cents,
	donor_name,
	created_at,
	updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?)
`,
		donation.ID,
		donation.BatchID,
		donation.Kind,
		donation.AmountCents,
		donation.DonorName,
		toMillis(donation.CreatedAt),
		toMillis(donation.UpdatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("insert donation: %w", err)
	}

	result, err := tx.ExecContext(ctx, `
UPDATE batches
SET
	total_cents = total_cents + ?,
	updated_at = ?
WHERE id = ?
AND status <> ?
`,
		donation.AmountCents,
		toMillis(donation.UpdatedAt),
		donation.BatchID,
		storage.BatchStatusFinalized,
	)
	if err != nil {
		return fmt.Errorf("update batch total: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update batch total rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return storage.ErrConcurrentModification
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit donation transaction: %w", err)
	}
	return nil
}

// ListDonations returns a batch's ledger entries in insertion order.
func (s *Store) ListDonations(ctx context.Context, batchID string) ([]storage.DonationRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	batchID = strings.TrimSpace(batchID)
	if batchID == "" {
		return nil, fmt.Errorf("batch id is required")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT
	id,
	batch_id,
	kind,
	amount_cents,
	donor_name,
	created_at,
	updated_at
FROM donations
WHERE batch_id = ?
ORDER BY created_at ASC, id ASC
`, batchID)
	if err != nil {
		return nil, fmt.Errorf("list donations: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	donations := make([]storage.DonationRecord, 0)
	for rows.Next() {
		var record storage.DonationRecord
		var createdAt int64
		var updatedAt int64
		if err := rows.Scan(
			&record.ID,
			&record.BatchID,
			&record.Kind,
			&record.AmountCents,
			&record.DonorName,
			&createdAt,
			&updatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan donation: %w", err)
		}
		record.CreatedAt = fromMillis(createdAt)
		record.UpdatedAt = fromMillis(updatedAt)
		donations = append(donations, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate donations: %w", err)
	}
	return donations, nil
}

// SumDonations returns the exact integer sum of a batch's ledger entries.
func (s *Store) SumDonations(ctx context.Context, batchID string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s == nil || s.sqlDB == nil {
		return 0, fmt.Errorf("storage is not configured")
	}

	batchID = strings.TrimSpace(batchID)
	if batchID == "" {
		return 0, fmt.Errorf("batch id is required")
	}

	var exists int
	err := s.sqlDB.QueryRowContext(ctx, `SELECT 1 FROM batches WHERE id = ?`, batchID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, storage.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("check batch existence: %w", err)
	}

	var sum int64
	err = s.sqlDB.QueryRowContext(ctx, `
SELECT COALESCE(SUM(amount_cents), 0)
FROM donations
WHERE batch_id = ?
`, batchID).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("sum donations: %w", err)
	}
	return sum, nil
}
