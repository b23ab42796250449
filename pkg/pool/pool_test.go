package pool

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"github.com/cuemby/filequeue/pkg/ferr"
	"github.com/cuemby/filequeue/pkg/metadata"
	"github.com/cuemby/filequeue/pkg/quota"
	"github.com/cuemby/filequeue/pkg/storage"
	"github.com/cuemby/filequeue/pkg/types"
	"github.com/stretchr/testify/require"
)

func newTestPool(t *testing.T) (*Pool, *metadata.Store, *quota.Store) {
	t.Helper()
	p := New()
	require.NoError(t, p.AddVolume(types.VolumeConfig{VolumeID: "v1", MountPath: t.TempDir(), ShardingDepth: 1}, 2, time.Millisecond))

	meta, err := metadata.Open(filepath.Join(t.TempDir(), "t1.db"), storage.Config{})
	require.NoError(t, err)
	require.NoError(t, meta.Hydrate())

	quotas, err := quota.Open(filepath.Join(t.TempDir(), "t1-quotas.db"), storage.Config{})
	require.NoError(t, err)

	return p, meta, quotas
}

func TestWrite_PersistsRecordAndBytes(t *testing.T) {
	p, meta, quotas := newTestPool(t)

	itemID, err := p.Write(meta, quotas, "t1", bytes.NewReader([]byte("hello")), "x.txt")
	require.NoError(t, err)
	require.Len(t, itemID, 32)

	item, ok := meta.Get(itemID)
	require.True(t, ok)
	require.Equal(t, int64(5), item.SizeBytes)
	require.Equal(t, types.StatusPending, item.Status)

	vol, _ := p.Volume("v1")
	require.True(t, vol.Exists(item.PhysicalPath))

	rec, err := quotas.Get(quota.TenantWideKey)
	require.NoError(t, err)
	require.EqualValues(t, 1, rec.CurrentCount)
}

func TestWrite_RejectsWhenTenantQuotaExceeded(t *testing.T) {
	p, meta, quotas := newTestPool(t)
	require.NoError(t, quotas.SetLimit(quota.TenantWideKey, 1))

	_, err := p.Write(meta, quotas, "t1", bytes.NewReader([]byte("a")), "")
	require.NoError(t, err)

	_, err = p.Write(meta, quotas, "t1", bytes.NewReader([]byte("b")), "")
	require.True(t, ferr.Is(err, ferr.TenantQuotaExceeded))
}

func TestWrite_NoHealthyVolumeRollsBackTenantQuota(t *testing.T) {
	p := New()
	meta, err := metadata.Open(filepath.Join(t.TempDir(), "t1.db"), storage.Config{})
	require.NoError(t, err)
	require.NoError(t, meta.Hydrate())
	quotas, err := quota.Open(filepath.Join(t.TempDir(), "t1-quotas.db"), storage.Config{})
	require.NoError(t, err)

	_, err = p.Write(meta, quotas, "t1", bytes.NewReader([]byte("a")), "")
	require.True(t, ferr.Is(err, ferr.StorageVolumeUnavailable))

	rec, err := quotas.Get(quota.TenantWideKey)
	require.NoError(t, err)
	require.EqualValues(t, 0, rec.CurrentCount, "rollback should undo the tenant-wide increment")
}

func TestRead_RejectsWrongTenant(t *testing.T) {
	p, meta, quotas := newTestPool(t)
	itemID, err := p.Write(meta, quotas, "t1", bytes.NewReader([]byte("hello")), "")
	require.NoError(t, err)

	_, err = p.Read(meta, "t2", itemID)
	require.True(t, ferr.Is(err, ferr.Unauthorized))
}

func TestGetLocation_NotFound(t *testing.T) {
	p, meta, _ := newTestPool(t)
	_, err := p.GetLocation(meta, "t1", "missing")
	require.True(t, ferr.Is(err, ferr.NotFound))
}

func TestCapacityTotalAndAvailable(t *testing.T) {
	p, _, _ := newTestPool(t)
	require.Greater(t, p.CapacityTotal(), int64(0))
	require.GreaterOrEqual(t, p.CapacityAvailable(), int64(0))
}

func TestAddVolume_RejectsDuplicateID(t *testing.T) {
	p := New()
	cfg := types.VolumeConfig{VolumeID: "v1", MountPath: t.TempDir(), ShardingDepth: 0}
	require.NoError(t, p.AddVolume(cfg, 2, time.Millisecond))
	err := p.AddVolume(cfg, 2, time.Millisecond)
	require.Error(t, err)
}
