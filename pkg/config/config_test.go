package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoad_ParsesAndFillsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
volumes:
  - id: v1
    mount_path: /data/v1
    sharding_depth: 2
metadata_root: /data/meta
quota_root: /data/quota
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Len(t, cfg.Volumes, 1)
	require.Equal(t, "v1", cfg.Volumes[0].ID)
	require.Equal(t, 5, cfg.Retry.Max)
	require.True(t, cfg.AutoRecover)
}

func TestValidate_RejectsNoVolumes(t *testing.T) {
	cfg := Default()
	cfg.MetadataRoot = "/data/meta"
	cfg.QuotaRoot = "/data/quota"
	require.Error(t, cfg.Validate())
}

func TestValidate_RejectsBadShardingDepth(t *testing.T) {
	cfg := Default()
	cfg.MetadataRoot = "/data/meta"
	cfg.QuotaRoot = "/data/quota"
	cfg.Volumes = []VolumeSpec{{ID: "v1", MountPath: "/data/v1", ShardingDepth: 9}}
	require.Error(t, cfg.Validate())
}

func TestValidate_RejectsDuplicateVolumeID(t *testing.T) {
	cfg := Default()
	cfg.MetadataRoot = "/data/meta"
	cfg.QuotaRoot = "/data/quota"
	cfg.Volumes = []VolumeSpec{
		{ID: "v1", MountPath: "/data/v1"},
		{ID: "v1", MountPath: "/data/v2"},
	}
	require.Error(t, cfg.Validate())
}
