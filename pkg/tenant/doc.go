/*
Package tenant implements the tenant registry and the per-tenant
"island" of owned state.

Registry persists tenant lifecycle records (enabled/disabled/
suspended) in a single bbolt file and fronts it with a short-lived
status cache so the hot write/claim path does not pay a store read on
every call. Writes invalidate the cached entry immediately.

Island is the lazily-created bundle a tenant exclusively owns: its
metadata store, its quota store, and the mutex that serializes every
mutation against both. Manager creates
islands on first reference and closes them all on shutdown. Evict
drops an island early: the reconciler uses it for islands it opened
only for its own pass, and pkg/recovery after a rebuild.

The tenant mutex lives on Island, not inside metadata.Store or
quota.Store - those packages never try to acquire it themselves. That
means the rebuild flow in pkg/recovery, which already holds
Island.Lock across the whole rebuild, can call metadata Upsert and
quota Seed directly without any risk of self-deadlock. The re-
entrant bypass flag the source used for this
has no equivalent here because there is nothing to re-enter.
*/
package tenant
