// Package storage defines the persistence boundary for the attestation
// service: record shapes, store interfaces, and sentinel errors shared by
// every backing implementation.
package storage

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound indicates a requested record is missing.
	ErrNotFound = errors.New("record not found")
	// ErrAlreadyExists indicates a write conflicted with a uniqueness constraint.
	ErrAlreadyExists = errors.New("record already exists")
	// ErrConcurrentModification indicates a conditional write lost a race:
	// the record's status at write time no longer matched the status the
	// caller read. The caller should re-fetch state before retrying.
	ErrConcurrentModification = errors.New("concurrent modification")
	// ErrLedgerFrozen indicates a donation write targeted a finalized batch.
	ErrLedgerFrozen = errors.New("donation ledger is frozen")
	// ErrTotalMismatch indicates the recomputed donation sum disagreed with
	// the batch's stored total at finalization time.
	ErrTotalMismatch = errors.New("batch total does not match donation sum")
)

// Batch status values as persisted. Transitions only ever move forward
// through this sequence.
const (
	BatchStatusOpen                = "OPEN"
	BatchStatusPrimaryAttested     = "PRIMARY_ATTESTED"
	BatchStatusPendingFinalization = "PENDING_FINALIZATION"
	BatchStatusFinalized           = "FINALIZED"
)

// Finalization outbox status values.
const (
	OutboxStatusPending   = "pending"
	OutboxStatusLeased    = "leased"
	OutboxStatusSucceeded = "succeeded"
	OutboxStatusDead      = "dead"
)

// Finalization outbox event types.
const (
	EventTypeFinalizationReport = "finalization.report"
	EventTypeFinalizationNotice = "finalization.notice"
)

// BatchRecord is one counting session's aggregate donation record.
type BatchRecord struct {
	ID                    string
	OrganizationID        string
	Label                 string
	Status                string
	TotalCents            int64
	PrimaryAttestorID     string
	PrimaryAttestorName   string
	PrimaryAttestedAt     *time.Time
	SecondaryAttestorID   string
	SecondaryAttestorName string
	SecondaryAttestedAt   *time.Time
	FinalizedAt           *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// DonationRecord is one ledger entry belonging to exactly one batch.
type DonationRecord struct {
	ID          string
	BatchID     string
	Kind        string
	AmountCents int64
	DonorName   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// AttestorRecord is one directory entry for a person who may certify batches.
type AttestorRecord struct {
	ID             string
	OrganizationID string
	DisplayName    string
	Verified       bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// FinalizationOutboxEvent is one queued downstream side effect of a
// finalized batch.
type FinalizationOutboxEvent struct {
	ID             string
	BatchID        string
	EventType      string
	PayloadJSON    string
	DedupeKey      string
	Status         string
	AttemptCount   int
	NextAttemptAt  time.Time
	LeaseOwner     string
	LeaseExpiresAt *time.Time
	LastError      string
	ProcessedAt    *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// BatchStore persists batch state. Attestation and finalization writes are
// conditional on the batch's current status; a write whose status guard no
// longer holds fails with ErrConcurrentModification.
type BatchStore interface {
	CreateBatch(ctx context.Context, batch BatchRecord) error
	GetBatch(ctx context.Context, id string) (BatchRecord, error)
	SetPrimaryAttestation(ctx context.Context, batchID, attestorID, attestorName string, attestedAt time.Time) error
	SetSecondaryAttestation(ctx context.Context, batchID, attestorID, attestorName string, attestedAt time.Time) error
	// FinalizeBatch atomically verifies the stored total against the donation
	// sum, marks the batch FINALIZED, and enqueues the given outbox events.
	// The whole unit commits or nothing does.
	FinalizeBatch(ctx context.Context, batchID string, finalizedAt time.Time, events []FinalizationOutboxEvent) error
}

// DonationStore persists ledger entries. Writes are refused once the owning
// batch is finalized.
type DonationStore interface {
	AddDonation(ctx context.Context, donation DonationRecord) error
	ListDonations(ctx context.Context, batchID string) ([]DonationRecord, error)
	SumDonations(ctx context.Context, batchID string) (int64, error)
}

// AttestorStore persists the attestor directory.
type AttestorStore interface {
	PutAttestor(ctx context.Context, attestor AttestorRecord) error
	GetAttestor(ctx context.Context, id string) (AttestorRecord, error)
}

// OutboxStore manages queued finalization side effects with lease/ack
// semantics for a polling dispatcher.
type OutboxStore interface {
	GetOutboxEvent(ctx context.Context, id string) (FinalizationOutboxEvent, error)
	GetOutboxEventByDedupeKey(ctx context.Context, dedupeKey string) (FinalizationOutboxEvent, error)
	LeaseOutboxEvents(ctx context.Context, consumer string, limit int, now time.Time, leaseTTL time.Duration) ([]FinalizationOutboxEvent, error)
	MarkOutboxSucceeded(ctx context.Context, id, consumer string, processedAt time.Time) error
	MarkOutboxRetry(ctx context.Context, id, consumer string, nextAttemptAt time.Time, lastError string) error
	MarkOutboxDead(ctx context.Context, id, consumer string, lastError string, processedAt time.Time) error
}
