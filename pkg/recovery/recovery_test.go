package recovery

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cuemby/filequeue/pkg/pool"
	"github.com/cuemby/filequeue/pkg/quota"
	"github.com/cuemby/filequeue/pkg/storage"
	"github.com/cuemby/filequeue/pkg/tenant"
	"github.com/cuemby/filequeue/pkg/types"
	"github.com/stretchr/testify/require"
)

func newTestHarness(t *testing.T) (*Service, *tenant.Manager, *pool.Pool) {
	t.Helper()
	p := pool.New()
	require.NoError(t, p.AddVolume(types.VolumeConfig{VolumeID: "v1", MountPath: t.TempDir(), ShardingDepth: 1}, 2, time.Millisecond))

	mgr := tenant.NewManager(t.TempDir(), t.TempDir(), storage.Config{})
	cfg := DefaultConfig()
	cfg.ProbeDelay = time.Millisecond
	svc := New(cfg, mgr, p)
	return svc, mgr, p
}

func TestSweep_HealthyTenantIsLeftAlone(t *testing.T) {
	svc, mgr, _ := newTestHarness(t)

	isl, err := mgr.Island("t1")
	require.NoError(t, err)
	require.NoError(t, isl.Metadata.Upsert(&types.Item{ItemID: "abc", TenantID: "t1", Status: types.StatusPending, CreatedAt: time.Now()}))
	// Release the file locks before probing: the probe opens the same
	// path itself, which would deadlock against a lock this same
	// process is already holding.
	require.NoError(t, isl.Close())
	mgr.Evict("t1")

	rebuilt, err := svc.Sweep([]string{"t1"})
	require.NoError(t, err)
	require.Empty(t, rebuilt)

	isl, err = mgr.Island("t1")
	require.NoError(t, err)
	_, ok := isl.Metadata.Get("abc")
	require.True(t, ok)
}

func TestSweep_MissingTenantIsNotAFailure(t *testing.T) {
	svc, _, _ := newTestHarness(t)

	rebuilt, err := svc.Sweep([]string{"never-seen"})
	require.NoError(t, err)
	require.Empty(t, rebuilt)
}

func TestRebuildTenant_ResynthesizesRecordsFromPhysicalTree(t *testing.T) {
	svc, mgr, p := newTestHarness(t)

	vol, ok := p.Volume("v1")
	require.True(t, ok)

	_, err := vol.Write(mustSharded(t, vol, "t1", "file1", ".bin"), bytes.NewReader([]byte("one")))
	require.NoError(t, err)
	_, err = vol.Write(mustSharded(t, vol, "t1", "file2", ".bin"), bytes.NewReader([]byte("two-two")))
	require.NoError(t, err)

	// Put a damaged (non-bbolt) store file in place so the rebuild has
	// something to back up.
	metaPath := mgr.MetadataPath("t1")
	require.NoError(t, os.MkdirAll(filepath.Dir(metaPath), 0o755))
	require.NoError(t, os.WriteFile(metaPath, []byte("not a bbolt file"), 0o644))

	require.NoError(t, svc.RebuildTenant("t1"))

	isl, err := mgr.Island("t1")
	require.NoError(t, err)
	records := isl.Metadata.ListNonTerminal()
	require.Len(t, records, 2)

	var total int64
	for _, rec := range records {
		total += rec.SizeBytes
	}
	require.Equal(t, int64(10), total)

	tenantWide, err := isl.Quota.Get(quota.TenantWideKey)
	require.NoError(t, err)
	require.Equal(t, int64(2), tenantWide.CurrentCount)

	backups, err := filepath.Glob(metaPath + ".corrupted.*")
	require.NoError(t, err)
	require.Len(t, backups, 1)
}

func mustSharded(t *testing.T, vol interface {
	ShardedPath(tenantID, itemID, ext string) (string, error)
}, tenantID, itemID, ext string) string {
	t.Helper()
	path, err := vol.ShardedPath(tenantID, itemID, ext)
	require.NoError(t, err)
	return path
}
