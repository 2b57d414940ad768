// Package errors provides machine-readable error codes for the attestation
// workflow and their transport mapping.
package errors

import "net/http"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Batch validation errors
	CodeBatchSignatureNameEmpty Code = "BATCH_SIGNATURE_NAME_EMPTY"
	CodeBatchAttestorIDEmpty    Code = "BATCH_ATTESTOR_ID_EMPTY"
	CodeBatchIDEmpty            Code = "BATCH_ID_EMPTY"
	CodeOrganizationIDEmpty     Code = "ORGANIZATION_ID_EMPTY"
	CodeBatchInvalidStatus      Code = "BATCH_INVALID_STATUS"

	// Attestation errors
	CodeBatchInvalidState       Code = "BATCH_INVALID_STATE"
	CodeBatchIdentityConflict   Code = "BATCH_IDENTITY_CONFLICT"
	CodeBatchIneligibleAttestor Code = "BATCH_INELIGIBLE_ATTESTOR"

	// Finalization errors
	CodeBatchIntegrityMismatch Code = "BATCH_INTEGRITY_MISMATCH"
	CodeFinalizationFailed     Code = "BATCH_FINALIZATION_FAILED"
	CodeLedgerFrozen           Code = "LEDGER_FROZEN"

	// Donation errors
	CodeDonationInvalidAmount Code = "DONATION_INVALID_AMOUNT"
	CodeDonationInvalidKind   Code = "DONATION_INVALID_KIND"

	// Storage errors
	CodeNotFound               Code = "NOT_FOUND"
	CodeConcurrentModification Code = "CONCURRENT_MODIFICATION"
	CodeStoreUnavailable       Code = "STORE_UNAVAILABLE"
)

// HTTPStatus maps workflow codes to HTTP status codes.
func (c Code) HTTPStatus() int {
	switch c {
	// Bad request - validation failures, bad input
	case CodeBatchSignatureNameEmpty,
		CodeBatchAttestorIDEmpty,
		CodeBatchIDEmpty,
		CodeOrganizationIDEmpty,
		CodeBatchInvalidStatus,
		CodeDonationInvalidAmount,
		CodeDonationInvalidKind:
		return http.StatusBadRequest

	// Conflict - state doesn't allow the operation
	case CodeBatchInvalidState,
		CodeBatchIdentityConflict,
		CodeBatchIneligibleAttestor,
		CodeBatchIntegrityMismatch,
		CodeLedgerFrozen,
		CodeConcurrentModification:
		return http.StatusConflict

	// Not found - resource doesn't exist
	case CodeNotFound:
		return http.StatusNotFound

	// Service unavailable - transient storage failures, safe to retry
	case CodeStoreUnavailable,
		CodeFinalizationFailed:
		return http.StatusServiceUnavailable

	default:
		return http.StatusInternalServerError
	}
}
