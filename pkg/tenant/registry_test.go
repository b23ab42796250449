package tenant

import (
	"path/filepath"
	"testing"

	"github.com/cuemby/filequeue/pkg/ferr"
	"github.com/cuemby/filequeue/pkg/storage"
	"github.com/cuemby/filequeue/pkg/types"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T, autoCreate bool) *Registry {
	t.Helper()
	r, err := OpenRegistry(filepath.Join(t.TempDir(), "tenants.db"), storage.Config{}, autoCreate)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestCreateAndGet(t *testing.T) {
	r := newTestRegistry(t, false)
	rec, err := r.Create("t1", "")
	require.NoError(t, err)
	require.Equal(t, types.TenantEnabled, rec.Status)

	got, err := r.Get("t1")
	require.NoError(t, err)
	require.Equal(t, "t1", got.TenantID)
}

func TestGet_UnknownWithoutAutoCreate(t *testing.T) {
	r := newTestRegistry(t, false)
	_, err := r.Get("ghost")
	require.True(t, ferr.Is(err, ferr.TenantNotFound))
}

func TestGet_UnknownWithAutoCreate(t *testing.T) {
	r := newTestRegistry(t, true)
	rec, err := r.Get("ghost")
	require.NoError(t, err)
	require.Equal(t, types.TenantEnabled, rec.Status)
}

func TestEnableDisable(t *testing.T) {
	r := newTestRegistry(t, false)
	_, err := r.Create("t1", "")
	require.NoError(t, err)

	require.NoError(t, r.Disable("t1"))
	enabled, err := r.IsEnabled("t1")
	require.NoError(t, err)
	require.False(t, enabled)

	require.NoError(t, r.Enable("t1"))
	enabled, err = r.IsEnabled("t1")
	require.NoError(t, err)
	require.True(t, enabled)
}

func TestEnable_UnknownTenant(t *testing.T) {
	r := newTestRegistry(t, false)
	err := r.Enable("ghost")
	require.True(t, ferr.Is(err, ferr.TenantNotFound))
}

func TestListAll(t *testing.T) {
	r := newTestRegistry(t, false)
	_, err := r.Create("t1", "")
	require.NoError(t, err)
	_, err = r.Create("t2", "")
	require.NoError(t, err)

	all, err := r.ListAll()
	require.NoError(t, err)
	require.Len(t, all, 2)
}

func TestIsEnabled_CacheInvalidatedOnDisable(t *testing.T) {
	r := newTestRegistry(t, false)
	_, err := r.Create("t1", "")
	require.NoError(t, err)

	enabled, err := r.IsEnabled("t1")
	require.NoError(t, err)
	require.True(t, enabled, "warms the cache")

	require.NoError(t, r.Disable("t1"))

	enabled, err = r.IsEnabled("t1")
	require.NoError(t, err)
	require.False(t, enabled, "cache entry must be invalidated by Disable")
}
