package httpapi

import (
	"time"

	"github.com/offertoryapp/offertory/internal/services/attestation/domain"
	"github.com/offertoryapp/offertory/internal/services/attestation/storage"
)

type batchPayload struct {
	ID             string `json:"id"`
	OrganizationID string `json:"organization_id"`
	Label          string `json:"label,omitempty"`
	Status         string `json:"status"`
	TotalCents     int64  `json:"total_cents"`
	CreatedAt      string `json:"created_at"`
}

func batchResponse(batch domain.Batch) batchPayload {
	return batchPayload{
		ID:             batch.ID,
		OrganizationID: batch.OrganizationID,
		Label:          batch.Label,
		Status:         batch.Status.String(),
		TotalCents:     batch.TotalCents,
		CreatedAt:      formatTime(batch.CreatedAt),
	}
}

type batchStatePayload struct {
	BatchID               string  `json:"batch_id"`
	Status                string  `json:"status"`
	TotalCents            int64   `json:"total_cents"`
	PrimaryAttestorName   string  `json:"primary_attestor_name,omitempty"`
	PrimaryAttestedAt     *string `json:"primary_attested_at,omitempty"`
	SecondaryAttestorName string  `json:"secondary_attestor_name,omitempty"`
	SecondaryAttestedAt   *string `json:"secondary_attested_at,omitempty"`
	FinalizedAt           *string `json:"finalized_at,omitempty"`
}

func batchStateResponse(state domain.BatchState) batchStatePayload {
	return batchStatePayload{
		BatchID:               state.BatchID,
		Status:                state.Status.String(),
		TotalCents:            state.TotalCents,
		PrimaryAttestorName:   state.PrimaryAttestorName,
		PrimaryAttestedAt:     formatOptionalTime(state.PrimaryAttestedAt),
		SecondaryAttestorName: state.SecondaryAttestorName,
		SecondaryAttestedAt:   formatOptionalTime(state.SecondaryAttestedAt),
		FinalizedAt:           formatOptionalTime(state.FinalizedAt),
	}
}

type donationPayload struct {
	ID          string `json:"id"`
	BatchID     string `json:"batch_id"`
	Kind        string `json:"kind"`
	AmountCents int64  `json:"amount_cents"`
	DonorName   string `json:"donor_name,omitempty"`
	CreatedAt   string `json:"created_at"`
}

type donationListPayload struct {
	Donations []donationPayload `json:"donations"`
}

func donationResponse(donation domain.Donation) donationPayload {
	return donationPayload{
		ID:          donation.ID,
		BatchID:     donation.BatchID,
		Kind:        donation.Kind.String(),
		AmountCents: donation.AmountCents,
		DonorName:   donation.DonorName,
		CreatedAt:   formatTime(donation.CreatedAt),
	}
}

type finalizationPayload struct {
	BatchID      string `json:"batch_id"`
	Status       string `json:"status"`
	FinalizedAt  string `json:"finalized_at"`
	TotalCents   int64  `json:"total_cents"`
	ReportQueued bool   `json:"report_queued"`
}

type attestorPayload struct {
	ID             string `json:"id"`
	OrganizationID string `json:"organization_id"`
	DisplayName    string `json:"display_name,omitempty"`
	Verified       bool   `json:"verified"`
}

func attestorResponse(record storage.AttestorRecord) attestorPayload {
	return attestorPayload{
		ID:             record.ID,
		OrganizationID: record.OrganizationID,
		DisplayName:    record.DisplayName,
		Verified:       record.Verified,
	}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func formatOptionalTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	formatted := formatTime(*t)
	return &formatted
}
