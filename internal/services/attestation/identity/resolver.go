// Package identity answers attestor eligibility questions against the
// attestor directory.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/offertoryapp/offertory/internal/services/attestation/storage"
)

// Resolver decides whether a person may certify batches for an organization.
// Eligibility requires a verified directory entry in the batch's organization
// that is distinct from the excluded attestor.
type Resolver struct {
	attestors storage.AttestorStore
}

// NewResolver constructs a directory-backed resolver.
func NewResolver(attestors storage.AttestorStore) *Resolver {
	return &Resolver{attestors: attestors}
}

// IsEligibleAttestor reports whether userID may attest for organizationID.
// An unknown user is simply ineligible, not an error; only a directory
// lookup failure surfaces as one.
func (r *Resolver) IsEligibleAttestor(ctx context.Context, organizationID, userID, excludingUserID string) (bool, error) {
	if r == nil || r.attestors == nil {
		return false, errors.New("attestor directory is not configured")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return false, nil
	}
	if excludingUserID != "" && userID == excludingUserID {
		return false, nil
	}

	attestor, err := r.attestors.GetAttestor(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("look up attestor %s: %w", userID, err)
	}

	return attestor.Verified && attestor.OrganizationID == organizationID, nil
}
