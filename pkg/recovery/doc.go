/*
Package recovery implements corruption detection and the rebuild
protocol: distinguishing a damaged store from one that is
merely locked by another process, and - when damage is confirmed -
backing it up, discarding it, and resynthesizing records from a scan
of the tenant's physical tree.

Sweep's probe retries an ambiguous open failure up to a configured number of
times with a delay between attempts, to rule out transient lock
contention before concluding the store is actually corrupt; only
storage.FailureCorruption triggers a rebuild, never
storage.FailureLockContention.

RebuildTenant follows the protocol in order: acquire the tenant mutex
if an island is already open, close the handle, back up the damaged
file to <path>.corrupted.<UTC-timestamp>, delete it, walk every
mounted volume's subtree for this tenant, and write fresh metadata and
quota records before releasing the mutex. auto_recover gates whether
Sweep triggers this automatically or only reports; fail_fast aborts
the startup sweep on the first rebuild failure instead of continuing
past it.
*/
package recovery
