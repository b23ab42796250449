/*
Package metadata implements the per-tenant durable item record store:
a bbolt-backed map from item id to record, fronted by an in-memory
active cache holding exactly the non-terminal records.

Write-through ordering is the load-bearing property of this package:
every mutating method persists to the engine before touching the
cache, so a crash between the two leaves the durable state as the
only truth and the next Hydrate rebuilds the cache from it.

Callers (pkg/tenant, pkg/scheduler) serialize access to a Store with
their own per-tenant mutex; Store's internal cache lock only protects
the map itself against concurrent Get/List readers, it is not a
substitute for that outer lock.
*/
package metadata
