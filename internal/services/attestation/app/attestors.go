package server

import (
	"context"
	"strings"
	"time"

	"github.com/offertoryapp/offertory/internal/services/attestation/domain"
	"github.com/offertoryapp/offertory/internal/services/attestation/storage"
)

// AttestorService manages the attestor directory.
type AttestorService struct {
	attestors storage.AttestorStore
	clock     func() time.Time
}

// NewAttestorService constructs the attestor directory service.
func NewAttestorService(attestors storage.AttestorStore) *AttestorService {
	return &AttestorService{
		attestors: attestors,
		clock:     time.Now,
	}
}

// RegisterAttestor creates or updates one attestor directory entry.
func (s *AttestorService) RegisterAttestor(ctx context.Context, attestor storage.AttestorRecord) (storage.AttestorRecord, error) {
	if s == nil || s.attestors == nil {
		return storage.AttestorRecord{}, domain.ErrStoreNotConfigured
	}

	attestor.ID = strings.TrimSpace(attestor.ID)
	attestor.OrganizationID = strings.TrimSpace(attestor.OrganizationID)
	attestor.DisplayName = strings.TrimSpace(attestor.DisplayName)
	if attestor.ID == "" {
		return storage.AttestorRecord{}, domain.ErrAttestorIDRequired
	}
	if attestor.OrganizationID == "" {
		return storage.AttestorRecord{}, domain.ErrOrganizationIDRequired
	}

	now := s.clock().UTC()
	attestor.CreatedAt = now
	attestor.UpdatedAt = now
	if err := s.attestors.PutAttestor(ctx, attestor); err != nil {
		return storage.AttestorRecord{}, mapStorageError(err)
	}
	return attestor, nil
}

// GetAttestor returns one attestor directory entry by ID.
func (s *AttestorService) GetAttestor(ctx context.Context, attestorID string) (storage.AttestorRecord, error) {
	if s == nil || s.attestors == nil {
		return storage.AttestorRecord{}, domain.ErrStoreNotConfigured
	}

	attestorID = strings.TrimSpace(attestorID)
	if attestorID == "" {
		return storage.AttestorRecord{}, domain.ErrAttestorIDRequired
	}

	record, err := s.attestors.GetAttestor(ctx, attestorID)
	if err != nil {
		return storage.AttestorRecord{}, mapStorageError(err)
	}
	return record, nil
}
