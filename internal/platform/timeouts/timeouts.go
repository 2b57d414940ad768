// Package timeouts defines shared timeout constants used across the service.
// Centralizing these values prevents drift between component boundaries and
// makes the durations discoverable.
package timeouts

import "time"

// StoreOp caps the time allowed for a single batch store or ledger operation.
// Exceeding it is treated as a transient store failure.
const StoreOp = 3 * time.Second

// ReadHeader limits how long the HTTP server waits for request headers.
const ReadHeader = 5 * time.Second

// Shutdown limits how long the HTTP server waits for in-flight requests
// during graceful shutdown.
const Shutdown = 5 * time.Second
