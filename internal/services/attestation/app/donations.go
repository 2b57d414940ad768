package server

import (
	"context"
	"time"

	"github.com/offertoryapp/offertory/internal/platform/id"
	"github.com/offertoryapp/offertory/internal/services/attestation/domain"
	"github.com/offertoryapp/offertory/internal/services/attestation/storage"
)

// DonationService records and reads ledger entries. Writes go through
// domain validation, then the storage layer's freeze guard.
type DonationService struct {
	donations   storage.DonationStore
	clock       func() time.Time
	idGenerator func() (string, error)
}

// NewDonationService constructs the donation ledger service.
func NewDonationService(donations storage.DonationStore) *DonationService {
	return &DonationService{
		donations:   donations,
		clock:       time.Now,
		idGenerator: id.NewID,
	}
}

// AddDonation appends one entry to a batch's ledger.
func (s *DonationService) AddDonation(ctx context.Context, input domain.CreateDonationInput) (domain.Donation, error) {
	if s == nil || s.donations == nil {
		return domain.Donation{}, domain.ErrStoreNotConfigured
	}

	donation, err := domain.CreateDonation(input, s.clock, s.idGenerator)
	if err != nil {
		return domain.Donation{}, err
	}

	record := storage.DonationRecord{
		ID:          donation.ID,
		BatchID:     donation.BatchID,
		Kind:        donation.Kind.String(),
		AmountCents: donation.AmountCents,
		DonorName:   donation.DonorName,
		CreatedAt:   donation.CreatedAt,
		UpdatedAt:   donation.UpdatedAt,
	}
	if err := s.donations.AddDonation(ctx, record); err != nil {
		return domain.Donation{}, mapStorageError(err)
	}
	return donation, nil
}

// ListDonations returns a batch's ledger entries in insertion order.
func (s *DonationService) ListDonations(ctx context.Context, batchID string) ([]domain.Donation, error) {
	if s == nil || s.donations == nil {
		return nil, domain.ErrStoreNotConfigured
	}

	records, err := s.donations.ListDonations(ctx, batchID)
	if err != nil {
		return nil, mapStorageError(err)
	}

	donations := make([]domain.Donation, 0, len(records))
	for _, record := range records {
		kind, err := domain.ParseDonationKind(record.Kind)
		if err != nil {
			return nil, err
		}
		donations = append(donations, domain.Donation{
			ID:          record.ID,
			BatchID:     record.BatchID,
			Kind:        kind,
			AmountCents: record.AmountCents,
			DonorName:   record.DonorName,
			CreatedAt:   record.CreatedAt,
			UpdatedAt:   record.UpdatedAt,
		})
	}
	return donations, nil
}
