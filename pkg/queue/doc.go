/*
Package queue is the in-process API surface of the file queue store: write_file, read_file, get_info/get_location, claim_next/
claim_batch, mark_completed/mark_failed, status,
capacity_total/capacity_available, and tenant lifecycle. It wires
together pkg/tenant (islanding and registry), pkg/pool (volumes and the
write path), and pkg/scheduler (claim/retry/backoff) behind one type,
Store, that callers construct once at process start and hold for the
process lifetime.

Every per-tenant operation except mark_completed, mark_failed, and
status first checks the tenant is enabled; every per-tenant operation
acquires that tenant's island mutex for the duration of the call - the
ordering the rest of the core relies on (tenant_mutex before store_handle). Store
itself holds no mutex: it is safe for concurrent use by multiple
goroutines operating on different tenants, and operations on the same
tenant serialize through that tenant's Island.
*/
package queue
