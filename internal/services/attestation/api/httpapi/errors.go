package httpapi

import (
	"errors"
	"net/http"

	apperrors "github.com/offertoryapp/offertory/internal/errors"
	"github.com/offertoryapp/offertory/internal/services/attestation/domain"
)

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

// errorCode maps workflow errors to machine-readable codes. Order matters:
// an exhausted finalization wraps the transient store error, so the
// finalization failure is matched before the transient case.
func errorCode(err error) apperrors.Code {
	switch {
	case errors.Is(err, domain.ErrBatchIDRequired):
		return apperrors.CodeBatchIDEmpty
	case errors.Is(err, domain.ErrOrganizationIDRequired):
		return apperrors.CodeOrganizationIDEmpty
	case errors.Is(err, domain.ErrAttestorIDRequired):
		return apperrors.CodeBatchAttestorIDEmpty
	case errors.Is(err, domain.ErrSignatureNameRequired):
		return apperrors.CodeBatchSignatureNameEmpty
	case errors.Is(err, domain.ErrInvalidDonationAmount):
		return apperrors.CodeDonationInvalidAmount
	case errors.Is(err, domain.ErrInvalidDonationKind):
		return apperrors.CodeDonationInvalidKind
	case errors.Is(err, domain.ErrIdentityConflict):
		return apperrors.CodeBatchIdentityConflict
	case errors.Is(err, domain.ErrIneligibleAttestor):
		return apperrors.CodeBatchIneligibleAttestor
	case errors.Is(err, domain.ErrIntegrityMismatch):
		return apperrors.CodeBatchIntegrityMismatch
	case errors.Is(err, domain.ErrLedgerFrozen):
		return apperrors.CodeLedgerFrozen
	case errors.Is(err, domain.ErrInvalidState):
		return apperrors.CodeBatchInvalidState
	case errors.Is(err, domain.ErrFinalizationFailed):
		return apperrors.CodeFinalizationFailed
	case errors.Is(err, domain.ErrConcurrentModification):
		return apperrors.CodeConcurrentModification
	case errors.Is(err, domain.ErrTransientStore):
		return apperrors.CodeStoreUnavailable
	case errors.Is(err, domain.ErrNotFound):
		return apperrors.CodeNotFound
	default:
		return apperrors.CodeUnknown
	}
}

func writeError(w http.ResponseWriter, err error) {
	code := errorCode(err)
	message := err.Error()
	if code == apperrors.CodeUnknown {
		message = "internal error"
	}
	writeErrorResponse(w, code.HTTPStatus(), string(code), message)
}

func writeErrorResponse(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: errorPayload{
		Code:    code,
		Message: message,
	}})
}
