package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/offertoryapp/offertory/internal/platform/id"
	"github.com/offertoryapp/offertory/internal/services/attestation/domain"
	"github.com/offertoryapp/offertory/internal/services/attestation/storage"
)

// storeAdapter bridges the workflow engine onto the storage layer: record
// conversion in both directions, storage sentinels mapped onto domain
// sentinels, and finalization side effects enqueued inside the finalize
// transaction.
type storeAdapter struct {
	batches     storage.BatchStore
	donations   storage.DonationStore
	idGenerator func() (string, error)
}

func newStoreAdapter(batches storage.BatchStore, donations storage.DonationStore) *storeAdapter {
	return &storeAdapter{
		batches:     batches,
		donations:   donations,
		idGenerator: id.NewID,
	}
}

func (a *storeAdapter) CreateBatch(ctx context.Context, batch domain.Batch) error {
	if err := a.batches.CreateBatch(ctx, batchToRecord(batch)); err != nil {
		return mapStorageError(err)
	}
	return nil
}

func (a *storeAdapter) GetBatch(ctx context.Context, batchID string) (domain.Batch, error) {
	record, err := a.batches.GetBatch(ctx, batchID)
	if err != nil {
		return domain.Batch{}, mapStorageError(err)
	}
	return recordToBatch(record)
}

func (a *storeAdapter) SetPrimaryAttestation(ctx context.Context, batchID, attestorID, attestorName string, attestedAt time.Time) error {
	if err := a.batches.SetPrimaryAttestation(ctx, batchID, attestorID, attestorName, attestedAt); err != nil {
		return mapStorageError(err)
	}
	return nil
}

func (a *storeAdapter) SetSecondaryAttestation(ctx context.Context, batchID, attestorID, attestorName string, attestedAt time.Time) error {
	if err := a.batches.SetSecondaryAttestation(ctx, batchID, attestorID, attestorName, attestedAt); err != nil {
		return mapStorageError(err)
	}
	return nil
}

// FinalizeBatch commits the terminal transition together with its queued
// side effects. Dedupe keys make the enqueue idempotent, so a repeated
// confirmation can never double-queue the report or the notice.
func (a *storeAdapter) FinalizeBatch(ctx context.Context, batchID string, finalizedAt time.Time) error {
	record, err := a.batches.GetBatch(ctx, batchID)
	if err != nil {
		return mapStorageError(err)
	}

	events, err := a.finalizationEvents(record, finalizedAt)
	if err != nil {
		return err
	}

	if err := a.batches.FinalizeBatch(ctx, batchID, finalizedAt, events); err != nil {
		return mapStorageError(err)
	}
	return nil
}

func (a *storeAdapter) SumDonations(ctx context.Context, batchID string) (int64, error) {
	sum, err := a.donations.SumDonations(ctx, batchID)
	if err != nil {
		return 0, mapStorageError(err)
	}
	return sum, nil
}

func (a *storeAdapter) finalizationEvents(record storage.BatchRecord, finalizedAt time.Time) ([]storage.FinalizationOutboxEvent, error) {
	payload, err := json.Marshal(finalizationPayload{
		BatchID:        record.ID,
		OrganizationID: record.OrganizationID,
		Label:          record.Label,
		TotalCents:     record.TotalCents,
		FinalizedAt:    finalizedAt.UTC().UnixMilli(),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal finalization payload: %w", err)
	}

	eventTypes := []string{
		storage.EventTypeFinalizationReport,
		storage.EventTypeFinalizationNotice,
	}
	events := make([]storage.FinalizationOutboxEvent, 0, len(eventTypes))
	for _, eventType := range eventTypes {
		eventID, err := a.idGenerator()
		if err != nil {
			return nil, fmt.Errorf("generate outbox event id: %w", err)
		}
		events = append(events, storage.FinalizationOutboxEvent{
			ID:          eventID,
			BatchID:     record.ID,
			EventType:   eventType,
			PayloadJSON: string(payload),
			DedupeKey:   eventType + ":" + record.ID,
			Status:      storage.OutboxStatusPending,
		})
	}
	return events, nil
}

// finalizationPayload is the JSON body queued for downstream consumers.
type finalizationPayload struct {
	BatchID        string `json:"batch_id"`
	OrganizationID string `json:"organization_id"`
	Label          string `json:"label,omitempty"`
	TotalCents     int64  `json:"total_cents"`
	FinalizedAt    int64  `json:"finalized_at"`
}

func batchToRecord(batch domain.Batch) storage.BatchRecord {
	return storage.BatchRecord{
		ID:                    batch.ID,
		OrganizationID:        batch.OrganizationID,
		Label:                 batch.Label,
		Status:                batch.Status.String(),
		TotalCents:            batch.TotalCents,
		PrimaryAttestorID:     batch.PrimaryAttestorID,
		PrimaryAttestorName:   batch.PrimaryAttestorName,
		PrimaryAttestedAt:     batch.PrimaryAttestedAt,
		SecondaryAttestorID:   batch.SecondaryAttestorID,
		SecondaryAttestorName: batch.SecondaryAttestorName,
		SecondaryAttestedAt:   batch.SecondaryAttestedAt,
		FinalizedAt:           batch.FinalizedAt,
		CreatedAt:             batch.CreatedAt,
		UpdatedAt:             batch.UpdatedAt,
	}
}

func recordToBatch(record storage.BatchRecord) (domain.Batch, error) {
	status, err := domain.ParseBatchStatus(record.Status)
	if err != nil {
		return domain.Batch{}, fmt.Errorf("parse batch status: %w", err)
	}
	return domain.Batch{
		ID:                    record.ID,
		OrganizationID:        record.OrganizationID,
		Label:                 record.Label,
		Status:                status,
		TotalCents:            record.TotalCents,
		PrimaryAttestorID:     record.PrimaryAttestorID,
		PrimaryAttestorName:   record.PrimaryAttestorName,
		PrimaryAttestedAt:     record.PrimaryAttestedAt,
		SecondaryAttestorID:   record.SecondaryAttestorID,
		SecondaryAttestorName: record.SecondaryAttestorName,
		SecondaryAttestedAt:   record.SecondaryAttestedAt,
		FinalizedAt:           record.FinalizedAt,
		CreatedAt:             record.CreatedAt,
		UpdatedAt:             record.UpdatedAt,
	}, nil
}

// mapStorageError converts storage sentinels into their domain counterparts
// so the engine and coordinator stay ignorant of the backing store.
func mapStorageError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, storage.ErrNotFound):
		return domain.ErrNotFound
	case errors.Is(err, storage.ErrConcurrentModification):
		return domain.ErrConcurrentModification
	case errors.Is(err, storage.ErrTotalMismatch):
		return fmt.Errorf("%w: %w", domain.ErrIntegrityMismatch, err)
	case errors.Is(err, storage.ErrLedgerFrozen):
		return domain.ErrLedgerFrozen
	default:
		return err
	}
}
