// Package sqlite provides SQLite-backed attestation persistence.
//
// It is the default on-disk store for batches, donations, the attestor
// directory, and the finalization outbox.
package sqlite
