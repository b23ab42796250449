/*
Package storage provides the generic bbolt-backed document engine that
the metadata and quota stores are built on: bucket-scoped put/get/delete/scan, corruption
classification, and in-place compaction.

	┌──────────────────────── ENGINE ───────────────────────────┐
	│                                                             │
	│  Engine                                                    │
	│   - one bbolt file per tenant per store kind                │
	│   - Put/Get/Delete/ForEach (single bucket, key/value)        │
	│   - Update/View (escape hatch for secondary indices)        │
	│   - Compact (defragment in place, used by the reconciler)   │
	│   - Rebuild (reopen handle; fresh file if deleted)           │
	│                                                             │
	└─────────────────────────────────────────────────────────────┘

Classify maps bbolt's own error values onto the two outcomes the rest
of the system cares about: FailureCorruption (ErrInvalid,
ErrVersionMismatch, ErrChecksum - page-level damage) and
FailureLockContention (ErrTimeout - another process or goroutine is
holding the file, and will likely release it). Only the former
triggers the rebuild path in pkg/recovery; the latter is retried.

This package knows nothing about tenants, items, or quotas - it is
reused unchanged by pkg/metadata and pkg/quota.
*/
package storage
