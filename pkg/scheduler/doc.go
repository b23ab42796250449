/*
Package scheduler implements claim-next, claim-batch, mark-completed,
mark-failed, reset-timed-out, and status over a tenant's metadata and
quota stores.

	pending ──claim──▶ processing ──complete──▶ (deleted)
	   ▲                    │
	   │                    ├──fail, retry<max──▶ pending (available_at = now+backoff)
	   │                    │
	   └────── fail, retry≥max ──▶ permanently-failed

A Scheduler is stateless across tenants: every method takes the
metadata.Store and quota.Store to operate on, so one instance serves
every tenant in the process. Per-tenant serialization is the caller's
job (pkg/tenant holds the mutex); nothing here takes a lock.

Claiming self-heals against metadata that has outlived its byte file:
if the claimed record's physical_path is missing, the record is
removed and the next candidate is tried rather than returned to the
caller.
*/
package scheduler
