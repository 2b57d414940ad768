package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	sqlitemigrate "github.com/offertoryapp/offertory/internal/platform/storage/sqlitemigrate"
	"github.com/offertoryapp/offertory/internal/services/attestation/storage"
	"github.com/offertoryapp/offertory/internal/services/attestation/storage/sqlite/migrations"
	_ "modernc.org/sqlite"
)

// toMillis normalizes timestamps into millisecond precision for storage.
func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

// fromMillis restores millisecond precision and keeps UTC normalization.
func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Store implements attestation persistence over SQLite.
//
// A single SQLite file backs batches, donations, the attestor directory, and
// the finalization outbox so the finalize transition can verify and commit
// everything inside one transaction.
type Store struct {
	sqlDB *sql.DB
}

type execContexter interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// DB returns the raw database handle for maintenance callers.
func (s *Store) DB() *sql.DB {
	if s == nil {
		return nil
	}
	return s.sqlDB
}

// Open opens an attestation SQLite store and applies bundled migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	store := &Store{sqlDB: sqlDB}

	if err := store.runMigrations(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return store, nil
}

// Close releases the underlying SQLite database.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// runMigrations applies embedded DDL snapshots for known schema versions.
func (s *Store) runMigrations() error {
	return sqlitemigrate.ApplyMigrations(s.sqlDB, migrations.FS, "")
}

// isUniqueConstraintError detects SQLite unique constraint violations.
func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

const batchColumns = `
	id,
	organization_id,
	label,
	status,
	total_cents,
	primary_attestor_id,
	primary_attestor_name,
	primary_attested_at,
	secondary_attestor_id,
	secondary_attestor_name,
	secondary_attested_at,
	finalized_at,
	created_at,
	updated_at
`

type rowScanner func(dest ...any) error

func scanBatchRecord(scan rowScanner) (storage.BatchRecord, error) {
	var record storage.BatchRecord
	var primaryAttestedAt sql.NullInt64
	var secondaryAttestedAt sql.NullInt64
	var finalizedAt sql.NullInt64
	var createdAt int64
	var updatedAt int64
	if err := scan(
		&record.ID,
		&record.OrganizationID,
		&record.Label,
		&record.Status,
		&record.TotalCents,
		&record.PrimaryAttestorID,
		&record.PrimaryAttestorName,
		&primaryAttestedAt,
		&record.SecondaryAttestorID,
		&record.SecondaryAttestorName,
		&secondaryAttestedAt,
		&finalizedAt,
		&createdAt,
		&updatedAt,
	); err != nil {
		return storage.BatchRecord{}, err
	}
	record.CreatedAt = fromMillis(createdAt)
	record.UpdatedAt = fromMillis(updatedAt)
	if primaryAttestedAt.Valid {
		value := fromMillis(primaryAttestedAt.Int64)
		record.PrimaryAttestedAt = &value
	}
	if secondaryAttestedAt.Valid {
		value := fromMillis(secondaryAttestedAt.Int64)
		record.SecondaryAttestedAt = &value
	}
	if finalizedAt.Valid {
		value := fromMillis(finalizedAt.Int64)
		record.FinalizedAt = &value
	}
	return record, nil
}

const outboxColumns = `
	id,
	batch_id,
	event_type,
	payload_json,
	dedupe_key,
	status,
	attempt_count,
	next_attempt_at,
	lease_owner,
	lease_expires_at,
	last_error,
	processed_at,
	created_at,
	updated_at
`

func scanOutboxEvent(scan rowScanner) (storage.FinalizationOutboxEvent, error) {
	var event storage.FinalizationOutboxEvent
	var nextAttemptAt int64
	var createdAt int64
	var updatedAt int64
	var leaseExpiresAt sql.NullInt64
	var processedAt sql.NullInt64
	if err := scan(
		&event.ID,
		&event.BatchID,
		&event.EventType,
		&event.PayloadJSON,
		&event.DedupeKey,
		&event.Status,
		&event.AttemptCount,
		&nextAttemptAt,
		&event.LeaseOwner,
		&leaseExpiresAt,
		&event.LastError,
		&processedAt,
		&createdAt,
		&updatedAt,
	); err != nil {
		return storage.FinalizationOutboxEvent{}, err
	}
	event.NextAttemptAt = fromMillis(nextAttemptAt)
	event.CreatedAt = fromMillis(createdAt)
	event.UpdatedAt = fromMillis(updatedAt)
	if leaseExpiresAt.Valid {
		value := fromMillis(leaseExpiresAt.Int64)
		event.LeaseExpiresAt = &value
	}
	if processedAt.Valid {
		value := fromMillis(processedAt.Int64)
		event.ProcessedAt = &value
	}
	return event, nil
}

func normalizeOutboxEvent(event storage.FinalizationOutboxEvent) (storage.FinalizationOutboxEvent, error) {
	event.ID = strings.TrimSpace(event.ID)
	event.BatchID = strings.TrimSpace(event.BatchID)
	event.EventType = strings.TrimSpace(event.EventType)
	event.PayloadJSON = strings.TrimSpace(event.PayloadJSON)
	event.DedupeKey = strings.TrimSpace(event.DedupeKey)
	event.Status = strings.TrimSpace(event.Status)
	event.LeaseOwner = strings.TrimSpace(event.LeaseOwner)
	event.LastError = strings.TrimSpace(event.LastError)
	if event.ID == "" {
		return storage.FinalizationOutboxEvent{}, fmt.Errorf("event id is required")
	}
	if event.BatchID == "" {
		return storage.FinalizationOutboxEvent{}, fmt.Errorf("event batch id is required")
	}
	if event.EventType == "" {
		return storage.FinalizationOutboxEvent{}, fmt.Errorf("event type is required")
	}
	if event.PayloadJSON == "" {
		event.PayloadJSON = "{}"
	}
	if event.Status == "" {
		event.Status = storage.OutboxStatusPending
	}
	if event.AttemptCount < 0 {
		return storage.FinalizationOutboxEvent{}, fmt.Errorf("attempt count must be greater than or equal to zero")
	}
	now := time.Now().UTC()
	if event.NextAttemptAt.IsZero() {
		event.NextAttemptAt = now
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = now
	}
	if event.UpdatedAt.IsZero() {
		event.UpdatedAt = event.CreatedAt
	}
	return event, nil
}

func enqueueOutboxEvent(ctx context.Context, target execContexter, event storage.FinalizationOutboxEvent) error {
	normalized, err := normalizeOutboxEvent(event)
	if err != nil {
		return err
	}

	var leaseExpiresAt sql.NullInt64
	if normalized.LeaseExpiresAt != nil {
		leaseExpiresAt = sql.NullInt64{Int64: toMillis(normalized.LeaseExpiresAt.UTC()), Valid: true}
	}
	var processedAt sql.NullInt64
	if normalized.ProcessedAt != nil {
		processedAt = sql.NullInt64{Int64: toMillis(normalized.ProcessedAt.UTC()), Valid: true}
	}

	_, err = target.ExecContext(ctx, `
INSERT INTO finalization_outbox (
	id,
	batch_id,
	event_type,
	payload_json,
	dedupe_key,
	status,
	attempt_count,
	next_attempt_at,
	lease_owner,
	lease_expires_at,
	last_error,
	processed_at,
	created_at,
	updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(dedupe_key) WHERE dedupe_key <> '' DO NOTHING
`,
		normalized.ID,
		normalized.BatchID,
		normalized.EventType,
		normalized.PayloadJSON,
		normalized.DedupeKey,
		normalized.Status,
		normalized.AttemptCount,
		toMillis(normalized.NextAttemptAt),
		normalized.LeaseOwner,
		leaseExpiresAt,
		normalized.LastError,
		processedAt,
		toMillis(normalized.CreatedAt),
		toMillis(normalized.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("enqueue finalization outbox event: %w", err)
	}
	return nil
}
