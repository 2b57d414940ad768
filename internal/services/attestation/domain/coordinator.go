package domain

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/offertoryapp/offertory/internal/platform/timeouts"
)

const (
	defaultFinalizeMaxTries       = 4
	defaultFinalizeInitialBackoff = 100 * time.Millisecond
	defaultFinalizeMaxBackoff     = 2 * time.Second
)

// CoordinatorConfig bounds the finalization retry budget.
type CoordinatorConfig struct {
	MaxTries       uint
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

func (c CoordinatorConfig) normalized() CoordinatorConfig {
	if c.MaxTries == 0 {
		c.MaxTries = defaultFinalizeMaxTries
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = defaultFinalizeInitialBackoff
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = defaultFinalizeMaxBackoff
	}
	return c
}

// Coordinator performs the single irreversible batch transition. It owns the
// PENDING_FINALIZATION to FINALIZED write and the ledger freeze; downstream
// side effects are enqueued in the same storage transaction and dispatched
// separately.
type Coordinator struct {
	store        Store
	clock        func() time.Time
	storeTimeout time.Duration
	config       CoordinatorConfig
}

// NewCoordinator constructs the finalization coordinator.
func NewCoordinator(store Store, config CoordinatorConfig) *Coordinator {
	return &Coordinator{
		store:        store,
		clock:        time.Now,
		storeTimeout: timeouts.StoreOp,
		config:       config.normalized(),
	}
}

// Finalize converts a PENDING_FINALIZATION batch into an immutable record.
//
// The batch is re-read immediately before mutating. A batch that already
// finalized returns the existing result without re-running side effects, so
// a caller whose prior acknowledgement was lost can safely retry. A transient
// store failure during the write is retried with exponential backoff up to
// the configured budget; any terminal failure leaves the batch in
// PENDING_FINALIZATION.
func (c *Coordinator) Finalize(ctx context.Context, batchID string) (FinalizationResult, error) {
	if c == nil || c.store == nil {
		return FinalizationResult{}, ErrStoreNotConfigured
	}
	batchID = strings.TrimSpace(batchID)
	if batchID == "" {
		return FinalizationResult{}, ErrBatchIDRequired
	}

	batch, err := c.readBatch(ctx, batchID)
	if err != nil {
		return FinalizationResult{}, err
	}
	if batch.Status == BatchStatusFinalized {
		return c.existingResult(batch), nil
	}
	if batch.Status != BatchStatusPendingFinalization {
		return FinalizationResult{}, ErrInvalidState
	}

	ledgerSum, err := c.sumDonations(ctx, batchID)
	if err != nil {
		return FinalizationResult{}, err
	}
	if ledgerSum != batch.TotalCents {
		return FinalizationResult{}, fmt.Errorf(
			"%w: stored total %d, ledger sum %d", ErrIntegrityMismatch, batch.TotalCents, ledgerSum,
		)
	}

	finalizedAt := c.now()
	operation := func() (struct{}, error) {
		opCtx, cancel := context.WithTimeout(ctx, c.opTimeout())
		defer cancel()
		writeErr := classifyStoreError(c.store.FinalizeBatch(opCtx, batchID, finalizedAt))
		if writeErr == nil {
			return struct{}{}, nil
		}
		if errors.Is(writeErr, ErrTransientStore) {
			return struct{}{}, writeErr
		}
		return struct{}{}, backoff.Permanent(writeErr)
	}

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = c.config.InitialBackoff
	expo.MaxInterval = c.config.MaxBackoff

	_, err = backoff.Retry(ctx, operation,
		backoff.WithBackOff(expo),
		backoff.WithMaxTries(c.config.MaxTries),
		backoff.WithNotify(func(retryErr error, wait time.Duration) {
			log.Printf("finalize retry batch_id=%s wait=%s error=%v", batchID, wait, retryErr)
		}),
	)
	if err != nil {
		switch {
		case errors.Is(err, ErrIntegrityMismatch):
			return FinalizationResult{}, err
		case errors.Is(err, ErrConcurrentModification):
			// Another writer moved the batch between our read and write.
			fresh, readErr := c.readBatch(ctx, batchID)
			if readErr != nil {
				return FinalizationResult{}, readErr
			}
			if fresh.Status == BatchStatusFinalized {
				return c.existingResult(fresh), nil
			}
			return FinalizationResult{}, ErrInvalidState
		case errors.Is(err, ErrTransientStore):
			return FinalizationResult{}, fmt.Errorf("%w: %w", ErrFinalizationFailed, err)
		default:
			return FinalizationResult{}, err
		}
	}

	return FinalizationResult{
		BatchID:      batchID,
		FinalizedAt:  finalizedAt,
		TotalCents:   batch.TotalCents,
		ReportQueued: true,
	}, nil
}

func (c *Coordinator) existingResult(batch Batch) FinalizationResult {
	result := FinalizationResult{
		BatchID:      batch.ID,
		TotalCents:   batch.TotalCents,
		ReportQueued: true,
	}
	if batch.FinalizedAt != nil {
		result.FinalizedAt = *batch.FinalizedAt
	}
	return result
}

func (c *Coordinator) readBatch(ctx context.Context, batchID string) (Batch, error) {
	opCtx, cancel := context.WithTimeout(ctx, c.opTimeout())
	defer cancel()
	batch, err := c.store.GetBatch(opCtx, batchID)
	if err != nil {
		return Batch{}, classifyStoreError(err)
	}
	return batch, nil
}

func (c *Coordinator) sumDonations(ctx context.Context, batchID string) (int64, error) {
	opCtx, cancel := context.WithTimeout(ctx, c.opTimeout())
	defer cancel()
	sum, err := c.store.SumDonations(opCtx, batchID)
	if err != nil {
		return 0, classifyStoreError(err)
	}
	return sum, nil
}

func (c *Coordinator) opTimeout() time.Duration {
	if c.storeTimeout <= 0 {
		return timeouts.StoreOp
	}
	return c.storeTimeout
}

// now returns the clock reading truncated to milliseconds, the precision the
// store persists, so a returned timestamp always equals its stored value.
func (c *Coordinator) now() time.Time {
	if c.clock == nil {
		return time.Now().UTC().Truncate(time.Millisecond)
	}
	return c.clock().UTC().Truncate(time.Millisecond)
}
