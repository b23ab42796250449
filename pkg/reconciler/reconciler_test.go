package reconciler

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cuemby/filequeue/pkg/pool"
	"github.com/cuemby/filequeue/pkg/quota"
	"github.com/cuemby/filequeue/pkg/scheduler"
	"github.com/cuemby/filequeue/pkg/storage"
	"github.com/cuemby/filequeue/pkg/tenant"
	"github.com/cuemby/filequeue/pkg/types"
	"github.com/stretchr/testify/require"
)

func newTestHarness(t *testing.T) (*Reconciler, *tenant.Manager, *pool.Pool, *tenant.Registry) {
	t.Helper()
	p := pool.New()
	require.NoError(t, p.AddVolume(types.VolumeConfig{VolumeID: "v1", MountPath: t.TempDir(), ShardingDepth: 1}, 2, time.Millisecond))

	registry, err := tenant.OpenRegistry(filepath.Join(t.TempDir(), "tenants.db"), storage.Config{}, false)
	require.NoError(t, err)
	t.Cleanup(func() { _ = registry.Close() })
	_, err = registry.Create("t1", "")
	require.NoError(t, err)

	mgr := tenant.NewManager(t.TempDir(), t.TempDir(), storage.Config{})
	sched := scheduler.New(scheduler.RetryConfig{MaxRetries: 3, InitialDelay: time.Millisecond})

	cfg := Config{
		CleanupInterval:    time.Hour,
		ProcessingTimeout:  time.Minute,
		FailedRetention:    time.Hour,
		CompactionEnabled:  true,
		CompactionInterval: time.Hour,
	}
	return New(cfg, registry, mgr, p, sched), mgr, p, registry
}

func TestTick_TimeoutRequeueResetsStaleProcessing(t *testing.T) {
	r, mgr, _, _ := newTestHarness(t)
	isl, err := mgr.Island("t1")
	require.NoError(t, err)

	started := time.Now().Add(-time.Hour)
	require.NoError(t, isl.Metadata.Upsert(&types.Item{
		ItemID: "stale", TenantID: "t1", Status: types.StatusProcessing,
		CreatedAt: time.Now(), ProcessingStartedAt: &started,
	}))

	r.tick()

	item, ok := isl.Metadata.Get("stale")
	require.True(t, ok)
	require.Equal(t, types.StatusPending, item.Status)
}

func TestTick_TerminalPurgeRemovesOldPermanentlyFailed(t *testing.T) {
	r, mgr, _, _ := newTestHarness(t)
	isl, err := mgr.Island("t1")
	require.NoError(t, err)

	oldFailure := time.Now().Add(-2 * time.Hour)
	require.NoError(t, isl.Metadata.Upsert(&types.Item{
		ItemID: "dead", TenantID: "t1", Status: types.StatusPermanentlyFailed,
		CreatedAt: oldFailure, LastFailedAt: &oldFailure,
	}))

	r.tick()

	_, ok := isl.Metadata.Get("dead")
	require.False(t, ok)
}

// TestTick_ReconcilesRegisteredTenantNeverOpenedInProcess proves tick
// sweeps a tenant from the registry even though nothing in this
// process has called Island for it yet.
func TestTick_ReconcilesRegisteredTenantNeverOpenedInProcess(t *testing.T) {
	r, mgr, _, registry := newTestHarness(t)

	_, err := registry.Create("t2", "")
	require.NoError(t, err)
	_, alreadyOpen := mgr.Existing("t2")
	require.False(t, alreadyOpen)

	oldFailure := time.Now().Add(-2 * time.Hour)
	isl, err := mgr.Island("t2")
	require.NoError(t, err)
	require.NoError(t, isl.Metadata.Upsert(&types.Item{
		ItemID: "dead", TenantID: "t2", Status: types.StatusPermanentlyFailed,
		CreatedAt: oldFailure, LastFailedAt: &oldFailure,
	}))
	require.NoError(t, isl.Close())
	mgr.Evict("t2")
	_, alreadyOpen = mgr.Existing("t2")
	require.False(t, alreadyOpen)

	r.tick()

	isl, err = mgr.Island("t2")
	require.NoError(t, err)
	_, ok := isl.Metadata.Get("dead")
	require.False(t, ok)
}

func TestTick_OrphanSweepDeletesUnreferencedBytesAndDecrementsQuota(t *testing.T) {
	r, mgr, p, _ := newTestHarness(t)
	isl, err := mgr.Island("t1")
	require.NoError(t, err)

	vol, ok := p.Volume("v1")
	require.True(t, ok)
	path, err := vol.ShardedPath("t1", "orphan123", ".bin")
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("orphaned"), 0o644))

	dir := filepath.Dir(path)
	_, _, err = isl.Quota.TryIncrement(dir)
	require.NoError(t, err)
	_, _, err = isl.Quota.TryIncrement(quota.TenantWideKey)
	require.NoError(t, err)

	r.tick()

	_, statErr := os.Stat(path)
	require.True(t, os.IsNotExist(statErr))

	rec, err := isl.Quota.Get(dir)
	require.NoError(t, err)
	require.Equal(t, int64(0), rec.CurrentCount)
}

func TestTick_CompactionIsThrottled(t *testing.T) {
	r, mgr, _, _ := newTestHarness(t)
	_, err := mgr.Island("t1")
	require.NoError(t, err)

	r.tick()
	r.mu.Lock()
	first, ok := r.lastCompaction["t1"]
	r.mu.Unlock()
	require.True(t, ok)

	r.tick()
	r.mu.Lock()
	second := r.lastCompaction["t1"]
	r.mu.Unlock()
	require.Equal(t, first, second)
}

func TestStartStop(t *testing.T) {
	r, _, _, _ := newTestHarness(t)
	r.cfg.CleanupInterval = 10 * time.Millisecond
	r.Start()
	time.Sleep(30 * time.Millisecond)
	r.Stop()
}
