package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/offertoryapp/offertory/internal/platform/id"
)

// BatchStatus describes the lifecycle state of a donation batch.
type BatchStatus int

const (
	// BatchStatusUnspecified represents an invalid batch status value.
	BatchStatusUnspecified BatchStatus = iota
	// BatchStatusOpen indicates the batch is being counted.
	BatchStatusOpen
	// BatchStatusPrimaryAttested indicates the first reviewer signed off.
	BatchStatusPrimaryAttested
	// BatchStatusPendingFinalization indicates both reviewers signed off and
	// the batch awaits its irreversible freeze.
	BatchStatusPendingFinalization
	// BatchStatusFinalized indicates the batch is an immutable financial record.
	BatchStatusFinalized
)

// String returns the persisted representation of the status.
func (s BatchStatus) String() string {
	switch s {
	case BatchStatusOpen:
		return "OPEN"
	case BatchStatusPrimaryAttested:
		return "PRIMARY_ATTESTED"
	case BatchStatusPendingFinalization:
		return "PENDING_FINALIZATION"
	case BatchStatusFinalized:
		return "FINALIZED"
	default:
		return "UNSPECIFIED"
	}
}

// ParseBatchStatus converts a persisted status value to a BatchStatus.
func ParseBatchStatus(value string) (BatchStatus, error) {
	switch value {
	case "OPEN":
		return BatchStatusOpen, nil
	case "PRIMARY_ATTESTED":
		return BatchStatusPrimaryAttested, nil
	case "PENDING_FINALIZATION":
		return BatchStatusPendingFinalization, nil
	case "FINALIZED":
		return BatchStatusFinalized, nil
	default:
		return BatchStatusUnspecified, fmt.Errorf("unknown batch status %q", value)
	}
}

// Batch represents one counting session's aggregate donation record.
type Batch struct {
	ID                    string
	OrganizationID        string
	Label                 string
	Status                BatchStatus
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

// CreateBatchInput describes the metadata needed to open a batch.
type CreateBatchInput struct {
	OrganizationID string
	Label          string
}

// CreateBatch creates a new batch with a generated ID and OPEN status.
func CreateBatch(input CreateBatchInput, now func() time.Time, idGenerator func() (string, error)) (Batch, error) {
	if now == nil {
		now = time.Now
	}
	if idGenerator == nil {
		idGenerator = id.NewID
	}

	normalized, err := NormalizeCreateBatchInput(input)
	if err != nil {
		return Batch{}, err
	}

	batchID, err := idGenerator()
	if err != nil {
		return Batch{}, fmt.Errorf("generate batch id: %w", err)
	}

	createdAt := now().UTC()
	return Batch{
		ID:             batchID,
		OrganizationID: normalized.OrganizationID,
		Label:          normalized.Label,
		Status:         BatchStatusOpen,
		CreatedAt:      createdAt,
		UpdatedAt:      createdAt,
	}, nil
}

// NormalizeCreateBatchInput trims and validates batch input metadata.
func NormalizeCreateBatchInput(input CreateBatchInput) (CreateBatchInput, error) {
	input.OrganizationID = strings.TrimSpace(input.OrganizationID)
	if input.OrganizationID == "" {
		return CreateBatchInput{}, ErrOrganizationIDRequired
	}
	input.Label = strings.TrimSpace(input.Label)
	// Label is optional, so empty string is allowed
	return input, nil
}

// BatchState is the externally visible view of a batch's workflow state.
type BatchState struct {
	BatchID               string
	Status                BatchStatus
	PrimaryAttestorName   string
	PrimaryAttestedAt     *time.Time
	SecondaryAttestorName string
	SecondaryAttestedAt   *time.Time
	FinalizedAt           *time.Time
	TotalCents            int64
}

// NewBatchState projects a batch onto its external view.
func NewBatchState(batch Batch) BatchState {
	return BatchState{
		BatchID:               batch.ID,
		Status:                batch.Status,
		PrimaryAttestorName:   batch.PrimaryAttestorName,
		PrimaryAttestedAt:     batch.PrimaryAttestedAt,
		SecondaryAttestorName: batch.SecondaryAttestorName,
		SecondaryAttestedAt:   batch.SecondaryAttestedAt,
		FinalizedAt:           batch.FinalizedAt,
		TotalCents:            batch.TotalCents,
	}
}

// FinalizationResult is the outcome of a successful batch finalization.
type FinalizationResult struct {
	BatchID      string
	FinalizedAt  time.Time
	TotalCents   int64
	ReportQueued bool
}
