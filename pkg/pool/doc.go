/*
Package pool implements the storage pool write path: the
set of mounted volumes, selection by free space, and the two-phase
(physical-then-metadata) write with best-effort rollback.

Write order on success: tenant-wide quota increment, volume pick,
directory quota increment, physical write, metadata upsert. Any step
failing after an earlier one succeeded unwinds everything before it -
decrementing quotas already taken, deleting bytes already written -
so a failed write leaves no observable trace except possibly an
orphaned byte file, which the reconciler's orphan sweep reclaims.

AddVolume requires a volume to pass its health-probe stability window
before admission (see pkg/volume's ProbeStable) - this absorbs the
mount-settling window on networked storage rather than trusting the
first probe.

Pool carries no per-tenant state; every write/read call is handed the
metadata.Store and quota.Store for the tenant being served.
*/
package pool
