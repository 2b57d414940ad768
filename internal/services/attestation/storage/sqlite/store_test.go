package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/offertoryapp/offertory/internal/services/attestation/storage"
)

func openTempStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "attestation.db")
	store, err := Open(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatalf("close store: %v", err)
		}
	})
	return store
}

var storeTestTime = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func seedOpenBatch(t *testing.T, store *Store, id string) {
	t.Helper()
	err := store.CreateBatch(context.Background(), storage.BatchRecord{
		ID:             id,
		OrganizationID: "org-1",
		Label:          "Sunday AM",
		Status:         storage.BatchStatusOpen,
		CreatedAt:      storeTestTime,
		UpdatedAt:      storeTestTime,
	})
	if err != nil {
		t.Fatalf("create batch: %v", err)
	}
}

func attestBoth(t *testing.T, store *Store, batchID string) {
	t.Helper()
	ctx := context.Background()
	if err := store.SetPrimaryAttestation(ctx, batchID, "user-1", "Ada Lovelace", storeTestTime.Add(time.Minute)); err != nil {
		t.Fatalf("set primary attestation: %v", err)
	}
	if err := store.SetSecondaryAttestation(ctx, batchID, "user-2", "Grace Hopper", storeTestTime.Add(2*time.Minute)); err != nil {
		t.Fatalf("set secondary attestation: %v", err)
	}
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open(""); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestStoreDBNilSafe(t *testing.T) {
	var store *Store
	if store.DB() != nil {
		t.Fatal("expected nil DB for nil store")
	}
}

func TestCreateGetBatchRoundTrip(t *testing.T) {
	store := openTempStore(t)
	seedOpenBatch(t, store, "batch-1")

	got, err := store.GetBatch(context.Background(), "batch-1")
	if err != nil {
		t.Fatalf("get batch: %v", err)
	}
	if got.ID != "batch-1" || got.OrganizationID != "org-1" || got.Label != "Sunday AM" {
		t.Fatalf("unexpected batch: %+v", got)
	}
	if got.Status != storage.BatchStatusOpen {
		t.Fatalf("status = %q, want %q", got.Status, storage.BatchStatusOpen)
	}
	if !got.CreatedAt.Equal(storeTestTime) {
		t.Fatalf("created at = %v, want %v", got.CreatedAt, storeTestTime)
	}
	if got.PrimaryAttestedAt != nil || got.SecondaryAttestedAt != nil || got.FinalizedAt != nil {
		t.Fatal("expected no attestation timestamps on a fresh batch")
	}
}

func TestCreateBatchDuplicate(t *testing.T) {
	store := openTempStore(t)
	seedOpenBatch(t, store, "batch-1")

	err := store.CreateBatch(context.Background(), storage.BatchRecord{
		ID:             "batch-1",
		OrganizationID: "org-1",
	})
	if !errors.Is(err, storage.ErrAlreadyExists) {
		t.Fatalf("error = %v, want ErrAlreadyExists", err)
	}
}

func TestGetBatchNotFound(t *testing.T) {
	store := openTempStore(t)

	_, err := store.GetBatch(context.Background(), "missing")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}

func TestSetPrimaryAttestation(t *testing.T) {
	store := openTempStore(t)
	seedOpenBatch(t, store, "batch-1")
	attestedAt := storeTestTime.Add(time.Minute)

	if err := store.SetPrimaryAttestation(context.Background(), "batch-1", "user-1", "Ada Lovelace", attestedAt); err != nil {
		t.Fatalf("set primary attestation: %v", err)
	}

	got, err := store.GetBatch(context.Background(), "batch-1")
	if err != nil {
		t.Fatalf("get batch: %v", err)
	}
	if got.Status != storage.BatchStatusPrimaryAttested {
		t.Fatalf("status = %q, want %q", got.Status, storage.BatchStatusPrimaryAttested)
	}
	if got.PrimaryAttestorID != "user-1" || got.PrimaryAttestorName != "Ada Lovelace" {
		t.Fatalf("unexpected primary attestor: %+v", got)
	}
	if got.PrimaryAttestedAt == nil || !got.PrimaryAttestedAt.Equal(attestedAt) {
		t.Fatalf("primary attested at = %v, want %v", got.PrimaryAttestedAt, attestedAt)
	}
}

func TestSetPrimaryAttestationStatusGuard(t *testing.T) {
	store := openTempStore(t)
	seedOpenBatch(t, store, "batch-1")

	if err := store.SetPrimaryAttestation(context.Background(), "batch-1", "user-1", "Ada Lovelace", storeTestTime); err != nil {
		t.Fatalf("set primary attestation: %v", err)
	}

	err := store.SetPrimaryAttestation(context.Background(), "batch-1", "user-3", "Katherine Johnson", storeTestTime)
	if !errors.Is(err, storage.ErrConcurrentModification) {
		t.Fatalf("error = %v, want ErrConcurrentModification", err)
	}

	got, err := store.GetBatch(context.Background(), "batch-1")
	if err != nil {
		t.Fatalf("get batch: %v", err)
	}
	if got.PrimaryAttestorID != "user-1" {
		t.Fatalf("primary attestor = %q, want first writer preserved", got.PrimaryAttestorID)
	}
}

func TestSetPrimaryAttestationNotFound(t *testing.T) {
	store := openTempStore(t)

	err := store.SetPrimaryAttestation(context.Background(), "missing", "user-1", "Ada Lovelace", storeTestTime)
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}

func TestSetSecondaryAttestation(t *testing.T) {
	store := openTempStore(t)
	seedOpenBatch(t, store, "batch-1")
	attestBoth(t, store, "batch-1")

	got, err := store.GetBatch(context.Background(), "batch-1")
	if err != nil {
		t.Fatalf("get batch: %v", err)
	}
	if got.Status != storage.BatchStatusPendingFinalization {
		t.Fatalf("status = %q, want %q", got.Status, storage.BatchStatusPendingFinalization)
	}
	if got.SecondaryAttestorID != "user-2" || got.SecondaryAttestorName != "Grace Hopper" {
		t.Fatalf("unexpected secondary attestor: %+v", got)
	}
}

func TestSetSecondaryAttestationRefusesPrimaryIdentity(t *testing.T) {
	store := openTempStore(t)
	seedOpenBatch(t, store, "batch-1")
	if err := store.SetPrimaryAttestation(context.Background(), "batch-1", "user-1", "Ada Lovelace", storeTestTime); err != nil {
		t.Fatalf("set primary attestation: %v", err)
	}

	err := store.SetSecondaryAttestation(context.Background(), "batch-1", "user-1", "Ada Again", storeTestTime)
	if !errors.Is(err, storage.ErrConcurrentModification) {
		t.Fatalf("error = %v, want ErrConcurrentModification", err)
	}

	got, err := store.GetBatch(context.Background(), "batch-1")
	if err != nil {
		t.Fatalf("get batch: %v", err)
	}
	if got.Status != storage.BatchStatusPrimaryAttested {
		t.Fatalf("status = %q, want unchanged %q", got.Status, storage.BatchStatusPrimaryAttested)
	}
}

func TestSetSecondaryAttestationRequiresPrimaryFirst(t *testing.T) {
	store := openTempStore(t)
	seedOpenBatch(t, store, "batch-1")

	err := store.SetSecondaryAttestation(context.Background(), "batch-1", "user-2", "Grace Hopper", storeTestTime)
	if !errors.Is(err, storage.ErrConcurrentModification) {
		t.Fatalf("error = %v, want ErrConcurrentModification", err)
	}
}

func TestAddDonationUpdatesBatchTotal(t *testing.T) {
	store := openTempStore(t)
	seedOpenBatch(t, store, "batch-1")
	ctx := context.Background()

	donations := []storage.DonationRecord{
		{ID: "don-1", BatchID: "batch-1", Kind: "cash", AmountCents: 5000, CreatedAt: storeTestTime},
		{ID: "don-2", BatchID: "batch-1", Kind: "check", AmountCents: 7500, DonorName: "Grace Hopper", CreatedAt: storeTestTime.Add(time.Second)},
	}
	for _, donation := range donations {
		if err := store.AddDonation(ctx, donation); err != nil {
			t.Fatalf("add donation %s: %v", donation.ID, err)
		}
	}

	batch, err := store.GetBatch(ctx, "batch-1")
	if err != nil {
		t.Fatalf("get batch: %v", err)
	}
	if batch.TotalCents != 12500 {
		t.Fatalf("total cents = %d, want 12500", batch.TotalCents)
	}

	sum, err := store.SumDonations(ctx, "batch-1")
	if err != nil {
		t.Fatalf("sum donations: %v", err)
	}
	if sum != 12500 {
		t.Fatalf("sum = %d, want 12500", sum)
	}

	listed, err := store.ListDonations(ctx, "batch-1")
	if err != nil {
		t.Fatalf("list donations: %v", err)
	}
	if len(listed) != 2 {
		t.Fatalf("listed len = %d, want 2", len(listed))
	}
	if listed[0].ID != "don-1" || listed[1].ID != "don-2" {
		t.Fatalf("unexpected order: %q, %q", listed[0].ID, listed[1].ID)
	}
}

func TestAddDonationMissingBatch(t *testing.T) {
	store := openTempStore(t)

	err := store.AddDonation(context.Background(), storage.DonationRecord{
		ID: "don-1", BatchID: "missing", Kind: "cash", AmountCents: 100,
	})
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}

func TestSumDonationsMissingBatch(t *testing.T) {
	store := openTempStore(t)

	_, err := store.SumDonations(context.Background(), "missing")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}

func TestFinalizeBatch(t *testing.T) {
	store := openTempStore(t)
	seedOpenBatch(t, store, "batch-1")
	ctx := context.Background()

	if err := store.AddDonation(ctx, storage.DonationRecord{
		ID: "don-1", BatchID: "batch-1", Kind: "cash", AmountCents: 12500, CreatedAt: storeTestTime,
	}); err != nil {
		t.Fatalf("add donation: %v", err)
	}
	attestBoth(t, store, "batch-1")

	finalizedAt := storeTestTime.Add(10 * time.Minute)
	events := []storage.FinalizationOutboxEvent{
		{
			ID:          "evt-1",
			BatchID:     "batch-1",
			EventType:   storage.EventTypeFinalizationReport,
			PayloadJSON: `{"batch_id":"batch-1"}`,
			DedupeKey:   "report:batch-1",
		},
	}
	if err := store.FinalizeBatch(ctx, "batch-1", finalizedAt, events); err != nil {
		t.Fatalf("finalize batch: %v", err)
	}

	batch, err := store.GetBatch(ctx, "batch-1")
	if err != nil {
		t.Fatalf("get batch: %v", err)
	}
	if batch.Status != storage.BatchStatusFinalized {
		t.Fatalf("status = %q, want %q", batch.Status, storage.BatchStatusFinalized)
	}
	if batch.FinalizedAt == nil || !batch.FinalizedAt.Equal(finalizedAt) {
		t.Fatalf("finalized at = %v, want %v", batch.FinalizedAt, finalizedAt)
	}

	event, err := store.GetOutboxEventByDedupeKey(ctx, "report:batch-1")
	if err != nil {
		t.Fatalf("get outbox event: %v", err)
	}
	if event.Status != storage.OutboxStatusPending {
		t.Fatalf("event status = %q, want %q", event.Status, storage.OutboxStatusPending)
	}
	if event.BatchID != "batch-1" {
		t.Fatalf("event batch id = %q, want %q", event.BatchID, "batch-1")
	}
}

func TestFinalizeBatchRepeatConflicts(t *testing.T) {
	store := openTempStore(t)
	seedOpenBatch(t, store, "batch-1")
	attestBoth(t, store, "batch-1")
	ctx := context.Background()

	if err := store.FinalizeBatch(ctx, "batch-1", storeTestTime, nil); err != nil {
		t.Fatalf("finalize batch: %v", err)
	}

	err := store.FinalizeBatch(ctx, "batch-1", storeTestTime.Add(time.Minute), nil)
	if !errors.Is(err, storage.ErrConcurrentModification) {
		t.Fatalf("error = %v, want ErrConcurrentModification", err)
	}
}

func TestFinalizeBatchFreezesLedger(t *testing.T) {
	store := openTempStore(t)
	seedOpenBatch(t, store, "batch-1")
	attestBoth(t, store, "batch-1")
	ctx := context.Background()

	if err := store.FinalizeBatch(ctx, "batch-1", storeTestTime, nil); err != nil {
		t.Fatalf("finalize batch: %v", err)
	}

	err := store.AddDonation(ctx, storage.DonationRecord{
		ID: "don-late", BatchID: "batch-1", Kind: "cash", AmountCents: 100,
	})
	if !errors.Is(err, storage.ErrLedgerFrozen) {
		t.Fatalf("error = %v, want ErrLedgerFrozen", err)
	}
}

func TestFinalizeBatchTotalMismatch(t *testing.T) {
	store := openTempStore(t)
	seedOpenBatch(t, store, "batch-1")
	ctx := context.Background()

	if err := store.AddDonation(ctx, storage.DonationRecord{
		ID: "don-1", BatchID: "batch-1", Kind: "cash", AmountCents: 5000, CreatedAt: storeTestTime,
	}); err != nil {
		t.Fatalf("add donation: %v", err)
	}
	attestBoth(t, store, "batch-1")

	// Corrupt the running total so the finalize-time verification trips.
	if _, err := store.DB().ExecContext(ctx, `UPDATE batches SET total_cents = 5200 WHERE id = 'batch-1'`); err != nil {
		t.Fatalf("corrupt total: %v", err)
	}

	err := store.FinalizeBatch(ctx, "batch-1", storeTestTime, []storage.FinalizationOutboxEvent{
		{ID: "evt-1", BatchID: "batch-1", EventType: storage.EventTypeFinalizationReport, DedupeKey: "report:batch-1"},
	})
	if !errors.Is(err, storage.ErrTotalMismatch) {
		t.Fatalf("error = %v, want ErrTotalMismatch", err)
	}

	batch, err := store.GetBatch(ctx, "batch-1")
	if err != nil {
		t.Fatalf("get batch: %v", err)
	}
	if batch.Status != storage.BatchStatusPendingFinalization {
		t.Fatalf("status = %q, want unchanged %q", batch.Status, storage.BatchStatusPendingFinalization)
	}
	if _, err := store.GetOutboxEvent(ctx, "evt-1"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("outbox event error = %v, want ErrNotFound after rollback", err)
	}
}

func TestFinalizeBatchNotFound(t *testing.T) {
	store := openTempStore(t)

	err := store.FinalizeBatch(context.Background(), "missing", storeTestTime, nil)
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}

func TestPutGetAttestorRoundTrip(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()

	input := storage.AttestorRecord{
		ID:             "user-1",
		OrganizationID: "org-1",
		DisplayName:    "Ada Lovelace",
		Verified:       true,
		CreatedAt:      storeTestTime,
		UpdatedAt:      storeTestTime,
	}
	if err := store.PutAttestor(ctx, input); err != nil {
		t.Fatalf("put attestor: %v", err)
	}

	got, err := store.GetAttestor(ctx, "user-1")
	if err != nil {
		t.Fatalf("get attestor: %v", err)
	}
	if got.ID != input.ID || got.OrganizationID != input.OrganizationID || got.DisplayName != input.DisplayName {
		t.Fatalf("unexpected attestor: %+v", got)
	}
	if !got.Verified {
		t.Fatal("verified = false, want true")
	}
}

func TestPutAttestorUpsert(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()

	if err := store.PutAttestor(ctx, storage.AttestorRecord{
		ID: "user-1", OrganizationID: "org-1", DisplayName: "Ada", Verified: false,
	}); err != nil {
		t.Fatalf("put attestor: %v", err)
	}
	if err := store.PutAttestor(ctx, storage.AttestorRecord{
		ID: "user-1", OrganizationID: "org-1", DisplayName: "Ada Lovelace", Verified: true,
	}); err != nil {
		t.Fatalf("update attestor: %v", err)
	}

	got, err := store.GetAttestor(ctx, "user-1")
	if err != nil {
		t.Fatalf("get attestor: %v", err)
	}
	if got.DisplayName != "Ada Lovelace" || !got.Verified {
		t.Fatalf("unexpected attestor after upsert: %+v", got)
	}
}

func TestGetAttestorNotFound(t *testing.T) {
	store := openTempStore(t)

	_, err := store.GetAttestor(context.Background(), "missing")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}
