package domain

import "errors"

var (
	// ErrBatchIDRequired indicates a missing batch ID.
	ErrBatchIDRequired = errors.New("batch id is required")
	// ErrOrganizationIDRequired indicates a missing organization ID.
	ErrOrganizationIDRequired = errors.New("organization id is required")
	// ErrAttestorIDRequired indicates a missing attestor identity.
	ErrAttestorIDRequired = errors.New("attestor id is required")
	// ErrSignatureNameRequired indicates a missing signature name.
	ErrSignatureNameRequired = errors.New("signature name is required")

	// ErrInvalidState indicates the operation is not valid for the batch's
	// current status.
	ErrInvalidState = errors.New("operation not valid for current batch status")
	// ErrIdentityConflict indicates the same person attempted to attest a
	// batch twice.
	ErrIdentityConflict = errors.New("secondary attestor must differ from primary attestor")
	// ErrIneligibleAttestor indicates the proposed attestor is unknown or
	// unverified.
	ErrIneligibleAttestor = errors.New("attestor is not eligible")

	// ErrConcurrentModification indicates a transition lost a race against
	// another writer; the caller should re-fetch state before retrying.
	ErrConcurrentModification = errors.New("batch was modified concurrently")
	// ErrIntegrityMismatch indicates the donation ledger sum disagrees with
	// the batch's stored total. Never retried automatically.
	ErrIntegrityMismatch = errors.New("batch total does not match ledger sum")
	// ErrTransientStore indicates the store was temporarily unreachable;
	// the operation is safe to retry.
	ErrTransientStore = errors.New("batch store is temporarily unavailable")
	// ErrFinalizationFailed indicates finalization exhausted its retry
	// budget without committing.
	ErrFinalizationFailed = errors.New("finalization failed after retries")
	// ErrLedgerFrozen indicates a donation write targeted a finalized batch.
	ErrLedgerFrozen = errors.New("donation ledger is frozen")

	// ErrNotFound indicates a batch or donation record was not found.
	ErrNotFound = errors.New("record not found")
	// ErrInvalidDonationAmount indicates a non-positive donation amount.
	ErrInvalidDonationAmount = errors.New("donation amount must be greater than zero")
	// ErrInvalidDonationKind indicates a missing or unknown donation kind.
	ErrInvalidDonationKind = errors.New("donation kind is required")

	// ErrStoreNotConfigured indicates missing persistence wiring.
	ErrStoreNotConfigured = errors.New("batch store is not configured")
	// ErrResolverNotConfigured indicates missing identity wiring.
	ErrResolverNotConfigured = errors.New("identity resolver is not configured")
)
