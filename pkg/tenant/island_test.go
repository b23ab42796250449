package tenant

import (
	"testing"

	"github.com/cuemby/filequeue/pkg/storage"
	"github.com/stretchr/testify/require"
)

func TestManager_IslandIsLazyAndCached(t *testing.T) {
	m := NewManager(t.TempDir(), t.TempDir(), storage.Config{})
	t.Cleanup(func() { _ = m.Close() })

	isl1, err := m.Island("t1")
	require.NoError(t, err)
	isl2, err := m.Island("t1")
	require.NoError(t, err)
	require.Same(t, isl1, isl2)

	require.Len(t, m.Islands(), 1)
}

func TestManager_SeparateTenantsGetSeparateIslands(t *testing.T) {
	m := NewManager(t.TempDir(), t.TempDir(), storage.Config{})
	t.Cleanup(func() { _ = m.Close() })

	isl1, err := m.Island("t1")
	require.NoError(t, err)
	isl2, err := m.Island("t2")
	require.NoError(t, err)
	require.NotSame(t, isl1, isl2)
}
