// Package httpapi exposes the attestation workflow as a JSON HTTP API.
package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/offertoryapp/offertory/internal/services/attestation/domain"
	"github.com/offertoryapp/offertory/internal/services/attestation/storage"
)

const maxRequestBody = 1 << 20

// Workflow drives batch lifecycle transitions.
type Workflow interface {
	CreateBatch(ctx context.Context, input domain.CreateBatchInput) (domain.Batch, error)
	GetBatch(ctx context.Context, batchID string) (domain.BatchState, error)
	AttestPrimary(ctx context.Context, input domain.AttestPrimaryInput) (domain.BatchState, error)
	AttestSecondary(ctx context.Context, input domain.AttestSecondaryInput) (domain.BatchState, error)
	ConfirmFinalization(ctx context.Context, batchID string) (domain.FinalizationResult, error)
}

// DonationLedger records and reads ledger entries.
type DonationLedger interface {
	AddDonation(ctx context.Context, input domain.CreateDonationInput) (domain.Donation, error)
	ListDonations(ctx context.Context, batchID string) ([]domain.Donation, error)
}

// AttestorDirectory manages attestor directory entries.
type AttestorDirectory interface {
	RegisterAttestor(ctx context.Context, attestor storage.AttestorRecord) (storage.AttestorRecord, error)
	GetAttestor(ctx context.Context, attestorID string) (storage.AttestorRecord, error)
}

// Handler routes attestation API requests.
type Handler struct {
	workflow  Workflow
	donations DonationLedger
	attestors AttestorDirectory
	mux       *http.ServeMux
}

// NewHandler constructs the API handler with all routes registered.
func NewHandler(workflow Workflow, donations DonationLedger, attestors AttestorDirectory) *Handler {
	h := &Handler{
		workflow:  workflow,
		donations: donations,
		attestors: attestors,
		mux:       http.NewServeMux(),
	}

	h.mux.HandleFunc("POST /v1/batches", h.handleCreateBatch)
	h.mux.HandleFunc("GET /v1/batches/{id}", h.handleGetBatch)
	h.mux.HandleFunc("POST /v1/batches/{id}/donations", h.handleAddDonation)
	h.mux.HandleFunc("GET /v1/batches/{id}/donations", h.handleListDonations)
	h.mux.HandleFunc("POST /v1/batches/{id}/attestations/primary", h.handleAttestPrimary)
	h.mux.HandleFunc("POST /v1/batches/{id}/attestations/secondary", h.handleAttestSecondary)
	h.mux.HandleFunc("POST /v1/batches/{id}/finalization", h.handleConfirmFinalization)
	h.mux.HandleFunc("PUT /v1/attestors/{id}", h.handleRegisterAttestor)
	h.mux.HandleFunc("GET /v1/attestors/{id}", h.handleGetAttestor)
	h.mux.HandleFunc("GET /healthz", h.handleHealth)

	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

type createBatchRequest struct {
	OrganizationID string `json:"organization_id"`
	Label          string `json:"label"`
}

func (h *Handler) handleCreateBatch(w http.ResponseWriter, r *http.Request) {
	var req createBatchRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	batch, err := h.workflow.CreateBatch(r.Context(), domain.CreateBatchInput{
		OrganizationID: req.OrganizationID,
		Label:          req.Label,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, batchResponse(batch))
}

func (h *Handler) handleGetBatch(w http.ResponseWriter, r *http.Request) {
	state, err := h.workflow.GetBatch(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, batchStateResponse(state))
}

type addDonationRequest struct {
	Kind        string `json:"kind"`
	AmountCents int64  `json:"amount_cents"`
	DonorName   string `json:"donor_name"`
}

func (h *Handler) handleAddDonation(w http.ResponseWriter, r *http.Request) {
	var req addDonationRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	kind, err := domain.ParseDonationKind(req.Kind)
	if err != nil {
		writeError(w, domain.ErrInvalidDonationKind)
		return
	}

	donation, err := h.donations.AddDonation(r.Context(), domain.CreateDonationInput{
		BatchID:     r.PathValue("id"),
		Kind:        kind,
		AmountCents: req.AmountCents,
		DonorName:   req.DonorName,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, donationResponse(donation))
}

func (h *Handler) handleListDonations(w http.ResponseWriter, r *http.Request) {
	donations, err := h.donations.ListDonations(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	payload := make([]donationPayload, 0, len(donations))
	for _, donation := range donations {
		payload = append(payload, donationResponse(donation))
	}
	writeJSON(w, http.StatusOK, donationListPayload{Donations: payload})
}

type attestRequest struct {
	AttestorID    string `json:"attestor_id"`
	SignatureName string `json:"signature_name"`
}

func (h *Handler) handleAttestPrimary(w http.ResponseWriter, r *http.Request) {
	var req attestRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	state, err := h.workflow.AttestPrimary(r.Context(), domain.AttestPrimaryInput{
		BatchID:       r.PathValue("id"),
		AttestorID:    req.AttestorID,
		SignatureName: req.SignatureName,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, batchStateResponse(state))
}

func (h *Handler) handleAttestSecondary(w http.ResponseWriter, r *http.Request) {
	var req attestRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	state, err := h.workflow.AttestSecondary(r.Context(), domain.AttestSecondaryInput{
		BatchID:       r.PathValue("id"),
		AttestorID:    req.AttestorID,
		SignatureName: req.SignatureName,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, batchStateResponse(state))
}

func (h *Handler) handleConfirmFinalization(w http.ResponseWriter, r *http.Request) {
	result, err := h.workflow.ConfirmFinalization(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, finalizationPayload{
		BatchID:      result.BatchID,
		Status:       domain.BatchStatusFinalized.String(),
		FinalizedAt:  result.FinalizedAt.UTC().Format(time.RFC3339Nano),
		TotalCents:   result.TotalCents,
		ReportQueued: result.ReportQueued,
	})
}

type registerAttestorRequest struct {
	OrganizationID string `json:"organization_id"`
	DisplayName    string `json:"display_name"`
	Verified       bool   `json:"verified"`
}

func (h *Handler) handleRegisterAttestor(w http.ResponseWriter, r *http.Request) {
	var req registerAttestorRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	record, err := h.attestors.RegisterAttestor(r.Context(), storage.AttestorRecord{
		ID:             r.PathValue("id"),
		OrganizationID: req.OrganizationID,
		DisplayName:    req.DisplayName,
		Verified:       req.Verified,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, attestorResponse(record))
}

func (h *Handler) handleGetAttestor(w http.ResponseWriter, r *http.Request) {
	record, err := h.attestors.GetAttestor(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, attestorResponse(record))
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// decodeRequest reads a JSON request body. It reports whether decoding
// succeeded; on failure the error response is already written.
func decodeRequest(w http.ResponseWriter, r *http.Request, dst any) bool {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "INVALID_REQUEST", "unable to read request body")
		return false
	}
	if len(body) == 0 {
		return true
	}
	if err := json.Unmarshal(body, dst); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid JSON request body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	encoder := json.NewEncoder(w)
	_ = encoder.Encode(payload)
}
