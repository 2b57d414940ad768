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

// PutAttestor creates or updates one attestor directory entry.
func (s *Store) PutAttestor(ctx context.Context, attestor storage.AttestorRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}

	attestor.ID = strings.TrimSpace(attestor.ID)
	attestor.OrganizationID = strings.TrimSpace(attestor.OrganizationID)
	attestor.DisplayName = strings.TrimSpace(attestor.DisplayName)
	if attestor.ID == "" {
		return fmt.Errorf("attestor id is required")
	}
	if attestor.OrganizationID == "" {
		return fmt.Errorf("organization id is required")
	}
	now := time.Now().UTC()
	if attestor.CreatedAt.IsZero() {
		attestor.CreatedAt = now
	}
	if attestor.UpdatedAt.IsZero() {
		attestor.UpdatedAt = now
	}

	verified := 0
	if attestor.Verified {
		verified = 1
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO attestors (
	id,
	organization_id,
	display_name,
	verified,
	created_at,
	updated_at
) VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	organization_id = excluded.organization_id,
	display_name = excluded.display_name,
	verified = excluded.verified,
	updated_at = excluded.updated_at
`,
		attestor.ID,
		attestor.OrganizationID,
		attestor.DisplayName,
		verified,
		toMillis(attestor.CreatedAt),
		toMillis(attestor.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("put attestor: %w", err)
	}
	return nil
}

// GetAttestor returns one attestor directory entry by ID.
func (s *Store) GetAttestor(ctx context.Context, id string) (storage.AttestorRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.AttestorRecord{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.AttestorRecord{}, fmt.Errorf("storage is not configured")
	}

	id = strings.TrimSpace(id)
	if id == "" {
		return storage.AttestorRecord{}, fmt.Errorf("attestor id is required")
	}

	var record storage.AttestorRecord
	var verified int
	var createdAt int64
	var updatedAt int64
	err := s.sqlDB.QueryRowContext(ctx, `
SELECT
	id,
	organization_id,
	display_name,
	verified,
	created_at,
	updated_at
FROM attestors
WHERE id = ?
`, id).Scan(
		&record.ID,
		&record.OrganizationID,
		&record.DisplayName,
		&verified,
		&createdAt,
		&updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.AttestorRecord{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.AttestorRecord{}, fmt.Errorf("get attestor: %w", err)
	}
	record.Verified = verified != 0
	record.CreatedAt = fromMillis(createdAt)
	record.UpdatedAt = fromMillis(updatedAt)
	return record, nil
}
