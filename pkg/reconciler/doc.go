/*
Package reconciler runs the periodic background sweep of the file
queue store: for every tenant in the registry (opening its island for
the pass if it is not already open), reclaim timed-out
processing records, purge retained terminal records past their
retention window, delete byte files no longer referenced by any
record, remove the empty directories left behind, and - throttled to
its own interval - compact the tenant's stores.

Each step is independent and best-effort: a failure in one tenant or
one step is logged and does not stop the rest of the tick. The
reconciler takes a tenant's mutex only for the step currently touching
its stores and releases it before moving to the next. Compaction holds
the mutex for the whole compaction of both stores, so scheduler and
pool operations on that tenant wait until it finishes.
*/
package reconciler
