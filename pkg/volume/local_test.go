package volume

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/cuemby/filequeue/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestVolume(t *testing.T, shardingDepth int) *Volume {
	t.Helper()
	v, err := New(types.VolumeConfig{
		VolumeID:      "v1",
		MountPath:     t.TempDir(),
		ShardingDepth: shardingDepth,
	})
	require.NoError(t, err)
	return v
}

func TestNew_RejectsBadShardingDepth(t *testing.T) {
	_, err := New(types.VolumeConfig{VolumeID: "v1", MountPath: t.TempDir(), ShardingDepth: 4})
	assert.Error(t, err)
}

func TestShardedPath(t *testing.T) {
	tests := []struct {
		name    string
		depth   int
		itemID  string
		wantEnd string
	}{
		{"no sharding", 0, "abcdef0011223344", filepath.Join("t1", "abcdef0011223344.bin")},
		{"depth 1", 1, "abcdef0011223344", filepath.Join("t1", "a", "abcdef0011223344.bin")},
		{"depth 2", 2, "abcdef0011223344", filepath.Join("t1", "a", "bc", "abcdef0011223344.bin")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := newTestVolume(t, tt.depth)
			p, err := v.ShardedPath("t1", tt.itemID, ".bin")
			require.NoError(t, err)
			assert.Equal(t, filepath.Join(v.MountPath(), tt.wantEnd), p)
		})
	}
}

func TestShardedPath_RejectsTraversal(t *testing.T) {
	v := newTestVolume(t, 1)
	_, err := v.ShardedPath("../escape", "abc123", ".bin")
	assert.Error(t, err)

	_, err = v.ShardedPath("t1", "../../etc/passwd", ".bin")
	assert.Error(t, err)
}

func TestWriteReadDelete(t *testing.T) {
	v := newTestVolume(t, 1)
	path, err := v.ShardedPath("t1", "abc123", ".bin")
	require.NoError(t, err)

	n, err := v.Write(path, bytes.NewReader([]byte("hello")))
	require.NoError(t, err)
	assert.EqualValues(t, 5, n)
	assert.True(t, v.Exists(path))

	rc, err := v.Read(path)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	_ = rc.Close()
	assert.Equal(t, "hello", string(data))

	require.NoError(t, v.Delete(path))
	assert.False(t, v.Exists(path))

	// Deleting again is a no-op, not an error.
	assert.NoError(t, v.Delete(path))
}

func TestWrite_CleansUpPartialFileOnFailure(t *testing.T) {
	v := newTestVolume(t, 0)
	path, err := v.ShardedPath("t1", "deadbeef00", ".bin")
	require.NoError(t, err)

	_, err = v.Write(path, &failingReader{})
	require.Error(t, err)
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr), "partial file should be unlinked")
}

type failingReader struct{}

func (f *failingReader) Read(p []byte) (int, error) {
	return 0, io.ErrClosedPipe
}

func TestRefresh_ReportsHealthy(t *testing.T) {
	v := newTestVolume(t, 0)
	require.NoError(t, v.Refresh())
	assert.True(t, v.Healthy())
	assert.Greater(t, v.TotalCapacity(), int64(0))
}
