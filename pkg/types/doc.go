/*
Package types defines the core data structures shared across the file
queue store: items, tenants, quotas, and volumes.

These types are intentionally free of behavior beyond small predicate
helpers (Eligible, Refused, IsEnabled) — the state machines that mutate
them live in pkg/metadata, pkg/quota, and pkg/scheduler.
*/
package types
