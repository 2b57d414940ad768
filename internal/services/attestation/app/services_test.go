package server

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/offertoryapp/offertory/internal/services/attestation/domain"
	"github.com/offertoryapp/offertory/internal/services/attestation/storage"
)

type fakeAttestorStore struct {
	attestors map[string]storage.AttestorRecord
}

func newFakeAttestorStore() *fakeAttestorStore {
	return &fakeAttestorStore{attestors: make(map[string]storage.AttestorRecord)}
}

func (f *fakeAttestorStore) PutAttestor(_ context.Context, attestor storage.AttestorRecord) error {
	f.attestors[attestor.ID] = attestor
	return nil
}

func (f *fakeAttestorStore) GetAttestor(_ context.Context, id string) (storage.AttestorRecord, error) {
	attestor, ok := f.attestors[id]
	if !ok {
		return storage.AttestorRecord{}, storage.ErrNotFound
	}
	return attestor, nil
}

func TestDonationServiceAddDonation(t *testing.T) {
	t.Parallel()

	donations := newFakeDonationStore()
	service := NewDonationService(donations)
	service.clock = func() time.Time { return appTestTime }
	service.idGenerator = func() (string, error) { return "don-001", nil }

	donation, err := service.AddDonation(context.Background(), domain.CreateDonationInput{
		BatchID:     "batch-1",
		Kind:        domain.DonationKindCash,
		AmountCents: 5000,
		DonorName:   "  Pat  ",
	})
	if err != nil {
		t.Fatalf("AddDonation: %v", err)
	}
	if donation.ID != "don-001" {
		t.Errorf("id = %q, want don-001", donation.ID)
	}
	if donation.DonorName != "Pat" {
		t.Errorf("donor name = %q, want Pat", donation.DonorName)
	}

	stored := donations.donations["batch-1"]
	if len(stored) != 1 {
		t.Fatalf("stored donations = %d, want 1", len(stored))
	}
	if stored[0].Kind != "cash" {
		t.Errorf("stored kind = %q, want cash", stored[0].Kind)
	}
	if stored[0].AmountCents != 5000 {
		t.Errorf("stored amount = %d, want 5000", stored[0].AmountCents)
	}
}

func TestDonationServiceAddDonationRejectsInvalidAmount(t *testing.T) {
	t.Parallel()

	service := NewDonationService(newFakeDonationStore())

	_, err := service.AddDonation(context.Background(), domain.CreateDonationInput{
		BatchID:     "batch-1",
		Kind:        domain.DonationKindCash,
		AmountCents: 0,
	})
	if !errors.Is(err, domain.ErrInvalidDonationAmount) {
		t.Fatalf("error = %v, want ErrInvalidDonationAmount", err)
	}
}

func TestDonationServiceAddDonationFrozenLedger(t *testing.T) {
	t.Parallel()

	donations := newFakeDonationStore()
	donations.addErr = storage.ErrLedgerFrozen
	service := NewDonationService(donations)

	_, err := service.AddDonation(context.Background(), domain.CreateDonationInput{
		BatchID:     "batch-1",
		Kind:        domain.DonationKindCash,
		AmountCents: 100,
	})
	if !errors.Is(err, domain.ErrLedgerFrozen) {
		t.Fatalf("error = %v, want ErrLedgerFrozen", err)
	}
}

func TestDonationServiceListDonations(t *testing.T) {
	t.Parallel()

	donations := newFakeDonationStore()
	donations.donations["batch-1"] = []storage.DonationRecord{
		{ID: "don-1", BatchID: "batch-1", Kind: "cash", AmountCents: 5000, CreatedAt: appTestTime},
		{ID: "don-2", BatchID: "batch-1", Kind: "check", AmountCents: 7500, CreatedAt: appTestTime},
	}
	service := NewDonationService(donations)

	listed, err := service.ListDonations(context.Background(), "batch-1")
	if err != nil {
		t.Fatalf("ListDonations: %v", err)
	}
	if len(listed) != 2 {
		t.Fatalf("donations = %d, want 2", len(listed))
	}
	if listed[0].Kind != domain.DonationKindCash || listed[1].Kind != domain.DonationKindCheck {
		t.Errorf("unexpected kinds: %v, %v", listed[0].Kind, listed[1].Kind)
	}
}

func TestAttestorServiceRegisterAttestor(t *testing.T) {
	t.Parallel()

	attestors := newFakeAttestorStore()
	service := NewAttestorService(attestors)
	service.clock = func() time.Time { return appTestTime }

	record, err := service.RegisterAttestor(context.Background(), storage.AttestorRecord{
		ID:             "  user-1  ",
		OrganizationID: "org-1",
		DisplayName:    "Ada Lovelace",
		Verified:       true,
	})
	if err != nil {
		t.Fatalf("RegisterAttestor: %v", err)
	}
	if record.ID != "user-1" {
		t.Errorf("id = %q, want user-1", record.ID)
	}
	if !record.CreatedAt.Equal(appTestTime) {
		t.Errorf("created at = %v, want %v", record.CreatedAt, appTestTime)
	}

	stored, ok := attestors.attestors["user-1"]
	if !ok {
		t.Fatal("expected stored attestor")
	}
	if !stored.Verified {
		t.Error("expected verified attestor")
	}
}

func TestAttestorServiceRegisterAttestorValidation(t *testing.T) {
	t.Parallel()

	service := NewAttestorService(newFakeAttestorStore())

	tests := []struct {
		name     string
		attestor storage.AttestorRecord
		want     error
	}{
		{"missing id", storage.AttestorRecord{OrganizationID: "org-1"}, domain.ErrAttestorIDRequired},
		{"missing organization", storage.AttestorRecord{ID: "user-1"}, domain.ErrOrganizationIDRequired},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			_, err := service.RegisterAttestor(context.Background(), test.attestor)
			if !errors.Is(err, test.want) {
				t.Errorf("error = %v, want %v", err, test.want)
			}
		})
	}
}

func TestAttestorServiceGetAttestorNotFound(t *testing.T) {
	t.Parallel()

	service := NewAttestorService(newFakeAttestorStore())

	_, err := service.GetAttestor(context.Background(), "ghost")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}
