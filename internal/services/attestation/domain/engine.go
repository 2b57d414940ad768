package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/offertoryapp/offertory/internal/platform/id"
	"github.com/offertoryapp/offertory/internal/platform/timeouts"
)

// Store is the persistence boundary the engine drives batch transitions
// through. Attestation writes are conditional on the status the engine read;
// a guard that no longer holds surfaces as ErrConcurrentModification.
type Store interface {
	CreateBatch(ctx context.Context, batch Batch) error
	GetBatch(ctx context.Context, batchID string) (Batch, error)
	SetPrimaryAttestation(ctx context.Context, batchID, attestorID, attestorName string, attestedAt time.Time) error
	SetSecondaryAttestation(ctx context.Context, batchID, attestorID, attestorName string, attestedAt time.Time) error
	FinalizeBatch(ctx context.Context, batchID string, finalizedAt time.Time) error
	SumDonations(ctx context.Context, batchID string) (int64, error)
}

// Resolver reports whether a user may attest a batch for an organization.
// Eligibility requires a known, verified directory entry distinct from the
// excluded attestor.
type Resolver interface {
	IsEligibleAttestor(ctx context.Context, organizationID, userID, excludingUserID string) (bool, error)
}

// AttestPrimaryInput identifies the first reviewer's sign-off.
type AttestPrimaryInput struct {
	BatchID       string
	AttestorID    string
	SignatureName string
}

// AttestSecondaryInput identifies the second reviewer's sign-off.
type AttestSecondaryInput struct {
	BatchID       string
	AttestorID    string
	SignatureName string
}

// Engine validates and applies batch workflow transitions. It is the only
// component allowed to mutate batch status and attestor fields; the terminal
// transition is delegated to the Coordinator.
type Engine struct {
	store        Store
	resolver     Resolver
	coordinator  *Coordinator
	clock        func() time.Time
	idGenerator  func() (string, error)
	storeTimeout time.Duration
}

// NewEngine constructs the attestation workflow engine.
func NewEngine(store Store, resolver Resolver, coordinator *Coordinator) *Engine {
	return &Engine{
		store:        store,
		resolver:     resolver,
		coordinator:  coordinator,
		clock:        time.Now,
		idGenerator:  id.NewID,
		storeTimeout: timeouts.StoreOp,
	}
}

// CreateBatch opens a new batch for counting.
func (e *Engine) CreateBatch(ctx context.Context, input CreateBatchInput) (Batch, error) {
	if e == nil || e.store == nil {
		return Batch{}, ErrStoreNotConfigured
	}
	batch, err := CreateBatch(input, e.clock, e.idGenerator)
	if err != nil {
		return Batch{}, err
	}
	if err := e.writeStore(ctx, func(ctx context.Context) error {
		return e.store.CreateBatch(ctx, batch)
	}); err != nil {
		return Batch{}, err
	}
	return batch, nil
}

// GetBatch returns the authoritative workflow state of one batch.
func (e *Engine) GetBatch(ctx context.Context, batchID string) (BatchState, error) {
	if e == nil || e.store == nil {
		return BatchState{}, ErrStoreNotConfigured
	}
	batchID = strings.TrimSpace(batchID)
	if batchID == "" {
		return BatchState{}, ErrBatchIDRequired
	}
	batch, err := e.readBatch(ctx, batchID)
	if err != nil {
		return BatchState{}, err
	}
	return NewBatchState(batch), nil
}

// AttestPrimary records the first reviewer's sign-off on an OPEN batch.
//
// A repeated call after success fails the status guard rather than silently
// overwriting the first signature.
func (e *Engine) AttestPrimary(ctx context.Context, input AttestPrimaryInput) (BatchState, error) {
	if e == nil || e.store == nil {
		return BatchState{}, ErrStoreNotConfigured
	}
	if e.resolver == nil {
		return BatchState{}, ErrResolverNotConfigured
	}
	batchID := strings.TrimSpace(input.BatchID)
	if batchID == "" {
		return BatchState{}, ErrBatchIDRequired
	}
	attestorID := strings.TrimSpace(input.AttestorID)
	if attestorID == "" {
		return BatchState{}, ErrAttestorIDRequired
	}
	signatureName := strings.TrimSpace(input.SignatureName)
	if signatureName == "" {
		return BatchState{}, ErrSignatureNameRequired
	}

	// One conflict retry: re-read fresh state and re-evaluate every guard.
	for attempt := 0; ; attempt++ {
		batch, err := e.readBatch(ctx, batchID)
		if err != nil {
			return BatchState{}, err
		}
		if batch.Status != BatchStatusOpen {
			return BatchState{}, ErrInvalidState
		}

		eligible, err := e.resolver.IsEligibleAttestor(ctx, batch.OrganizationID, attestorID, "")
		if err != nil {
			return BatchState{}, err
		}
		if !eligible {
			return BatchState{}, ErrIneligibleAttestor
		}

		attestedAt := e.now()
		err = e.writeStore(ctx, func(ctx context.Context) error {
			return e.store.SetPrimaryAttestation(ctx, batchID, attestorID, signatureName, attestedAt)
		})
		if errors.Is(err, ErrConcurrentModification) && attempt == 0 {
			continue
		}
		if err != nil {
			return BatchState{}, err
		}

		batch.Status = BatchStatusPrimaryAttested
		batch.PrimaryAttestorID = attestorID
		batch.PrimaryAttestorName = signatureName
		batch.PrimaryAttestedAt = &attestedAt
		return NewBatchState(batch), nil
	}
}

// AttestSecondary records the second reviewer's sign-off on a batch whose
// primary attestation is in place. The secondary attestor must be a
// different, eligible person.
func (e *Engine) AttestSecondary(ctx context.Context, input AttestSecondaryInput) (BatchState, error) {
	if e == nil || e.store == nil {
		return BatchState{}, ErrStoreNotConfigured
	}
	if e.resolver == nil {
		return BatchState{}, ErrResolverNotConfigured
	}
	batchID := strings.TrimSpace(input.BatchID)
	if batchID == "" {
		return BatchState{}, ErrBatchIDRequired
	}
	attestorID := strings.TrimSpace(input.AttestorID)
	if attestorID == "" {
		return BatchState{}, ErrAttestorIDRequired
	}
	signatureName := strings.TrimSpace(input.SignatureName)
	if signatureName == "" {
		return BatchState{}, ErrSignatureNameRequired
	}

	for attempt := 0; ; attempt++ {
		batch, err := e.readBatch(ctx, batchID)
		if err != nil {
			return BatchState{}, err
		}
		if batch.Status != BatchStatusPrimaryAttested {
			return BatchState{}, ErrInvalidState
		}
		if attestorID == batch.PrimaryAttestorID {
			return BatchState{}, ErrIdentityConflict
		}

		eligible, err := e.resolver.IsEligibleAttestor(ctx, batch.OrganizationID, attestorID, batch.PrimaryAttestorID)
		if err != nil {
			return BatchState{}, err
		}
		if !eligible {
			return BatchState{}, ErrIneligibleAttestor
		}

		attestedAt := e.now()
		err = e.writeStore(ctx, func(ctx context.Context) error {
			return e.store.SetSecondaryAttestation(ctx, batchID, attestorID, signatureName, attestedAt)
		})
		if errors.Is(err, ErrConcurrentModification) && attempt == 0 {
			continue
		}
		if err != nil {
			return BatchState{}, err
		}

		batch.Status = BatchStatusPendingFinalization
		batch.SecondaryAttestorID = attestorID
		batch.SecondaryAttestorName = signatureName
		batch.SecondaryAttestedAt = &attestedAt
		return NewBatchState(batch), nil
	}
}

// ConfirmFinalization executes the terminal transition through the
// finalization coordinator. The engine performs no storage mutation of its
// own here.
func (e *Engine) ConfirmFinalization(ctx context.Context, batchID string) (FinalizationResult, error) {
	if e == nil || e.coordinator == nil {
		return FinalizationResult{}, ErrStoreNotConfigured
	}
	batchID = strings.TrimSpace(batchID)
	if batchID == "" {
		return FinalizationResult{}, ErrBatchIDRequired
	}
	return e.coordinator.Finalize(ctx, batchID)
}

// now returns the clock reading truncated to milliseconds, the precision the
// store persists, so a returned timestamp always equals its stored value.
func (e *Engine) now() time.Time {
	if e.clock == nil {
		return time.Now().UTC().Truncate(time.Millisecond)
	}
	return e.clock().UTC().Truncate(time.Millisecond)
}

func (e *Engine) readBatch(ctx context.Context, batchID string) (Batch, error) {
	opCtx, cancel := e.storeContext(ctx)
	defer cancel()
	batch, err := e.store.GetBatch(opCtx, batchID)
	if err != nil {
		return Batch{}, classifyStoreError(err)
	}
	return batch, nil
}

func (e *Engine) writeStore(ctx context.Context, op func(context.Context) error) error {
	opCtx, cancel := e.storeContext(ctx)
	defer cancel()
	if err := op(opCtx); err != nil {
		return classifyStoreError(err)
	}
	return nil
}

func (e *Engine) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := e.storeTimeout
	if timeout <= 0 {
		timeout = timeouts.StoreOp
	}
	return context.WithTimeout(ctx, timeout)
}

// classifyStoreError maps store timeouts onto the transient error so callers
// can distinguish retry-eligible failures from terminal ones.
func classifyStoreError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrTransientStore, err)
	}
	return err
}
