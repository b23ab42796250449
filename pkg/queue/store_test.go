package queue

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"github.com/cuemby/filequeue/pkg/ferr"
	"github.com/cuemby/filequeue/pkg/pool"
	"github.com/cuemby/filequeue/pkg/scheduler"
	"github.com/cuemby/filequeue/pkg/storage"
	"github.com/cuemby/filequeue/pkg/tenant"
	"github.com/cuemby/filequeue/pkg/types"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	p := pool.New()
	require.NoError(t, p.AddVolume(types.VolumeConfig{VolumeID: "v1", MountPath: t.TempDir(), ShardingDepth: 1}, 2, time.Millisecond))

	registry, err := tenant.OpenRegistry(filepath.Join(t.TempDir(), "tenants.db"), storage.Config{}, false)
	require.NoError(t, err)

	mgr := tenant.NewManager(t.TempDir(), t.TempDir(), storage.Config{})
	sched := scheduler.New(scheduler.RetryConfig{MaxRetries: 2, InitialDelay: time.Millisecond})

	return New(registry, mgr, p, sched)
}

func TestWriteClaimCompleteRoundTrip(t *testing.T) {
	s := newTestStore(t)
	_, err := s.CreateTenant("t1", "")
	require.NoError(t, err)

	itemID, err := s.WriteFile("t1", bytes.NewReader([]byte("payload")), "x.bin")
	require.NoError(t, err)

	loc, err := s.ClaimNext("t1", time.Now())
	require.NoError(t, err)
	require.NotNil(t, loc)
	require.Equal(t, itemID, loc.ItemID)

	require.NoError(t, s.MarkCompleted("t1", itemID))

	_, ok, err := s.Status("t1", itemID)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestWriteFile_RejectsDisabledTenant(t *testing.T) {
	s := newTestStore(t)
	_, err := s.CreateTenant("t1", "")
	require.NoError(t, err)
	require.NoError(t, s.DisableTenant("t1"))

	_, err = s.WriteFile("t1", bytes.NewReader([]byte("x")), "x.bin")
	require.True(t, ferr.Is(err, ferr.TenantDisabled))
}

func TestMarkFailed_RetriesThenPermanentlyFails(t *testing.T) {
	s := newTestStore(t)
	_, err := s.CreateTenant("t1", "")
	require.NoError(t, err)

	itemID, err := s.WriteFile("t1", bytes.NewReader([]byte("x")), "x.bin")
	require.NoError(t, err)
	_, err = s.ClaimNext("t1", time.Now())
	require.NoError(t, err)

	require.NoError(t, s.MarkFailed("t1", itemID, "boom", time.Now()))
	status, ok, err := s.Status("t1", itemID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, types.StatusPending, status)

	require.NoError(t, s.MarkFailed("t1", itemID, "boom again", time.Now()))
	status, ok, err = s.Status("t1", itemID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, types.StatusPermanentlyFailed, status)
}

func TestCapacityTotalAndAvailable(t *testing.T) {
	s := newTestStore(t)
	require.Greater(t, s.CapacityTotal(), int64(0))
	require.GreaterOrEqual(t, s.CapacityAvailable(), int64(0))
}
