/*
Package volume provides byte-level access to the mounted filesystem
subtrees that back the storage pool.

A Volume wraps one already-mounted directory. It knows nothing about
tenants, quotas, or metadata - it only writes, reads, and deletes byte
files at paths the pool computes, and reports capacity/health so the
pool can pick where to place the next item.

# Sharded layout

ShardedPath computes the physical path for an item:

	<mount>/<tenant_id>/<shard_1>/<shard_2>/<item_id><ext>

The number of shard levels is the volume's configured sharding depth
(0-3). Shard 1 is the item id's first character, shard 2 its next two,
keeping any single directory from accumulating enough entries to slow
down directory listings as a tenant's item count grows.

	depth 0: <mount>/t1/ab12cd34.bin
	depth 1: <mount>/t1/a/ab12cd34.bin
	depth 2: <mount>/t1/a/b1/ab12cd34.bin

Every path, whether built by ShardedPath or passed in directly, is
resolved against the mount root before any I/O; anything that would
escape it is rejected.

# Health

Refresh statfs's the mount for capacity and round-trips a small probe
file for read/write health. A single Refresh failure does not by
itself disqualify a volume - ProbeStable requires two consecutive
healthy observations across repeated probes before a caller treats the
volume as stable, since a volume that is flapping is worse to write to
than one that is cleanly down.

# See also

  - pkg/pool - volume selection and the two-phase write path
  - pkg/types - VolumeConfig, VolumeStatus
*/
package volume
