package volume

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/cuemby/filequeue/pkg/types"
)

// Volume is byte-level read/write/delete access to one mounted
// filesystem subtree. Membership (mount path, sharding
// depth) is read-only after construction; AvailableSpace/Healthy are
// refreshed by Refresh and read concurrently by the pool.
type Volume struct {
	id            string
	mountPath     string
	shardingDepth int

	totalCapacity  int64
	availableSpace int64
	healthy        bool
}

// New constructs a Volume over an already-mounted directory. It does not
// probe health; callers (normally the pool) do that via Refresh before
// admitting the volume.
func New(cfg types.VolumeConfig) (*Volume, error) {
	if cfg.VolumeID == "" {
		return nil, fmt.Errorf("volume: empty volume id")
	}
	if cfg.ShardingDepth < 0 || cfg.ShardingDepth > 3 {
		return nil, fmt.Errorf("volume %s: sharding depth must be 0-3, got %d", cfg.VolumeID, cfg.ShardingDepth)
	}
	mount, err := filepath.Abs(cfg.MountPath)
	if err != nil {
		return nil, fmt.Errorf("volume %s: resolve mount path: %w", cfg.VolumeID, err)
	}
	if err := os.MkdirAll(mount, 0o755); err != nil {
		return nil, fmt.Errorf("volume %s: create mount root: %w", cfg.VolumeID, err)
	}
	return &Volume{
		id:            cfg.VolumeID,
		mountPath:     mount,
		shardingDepth: cfg.ShardingDepth,
	}, nil
}

func (v *Volume) ID() string        { return v.id }
func (v *Volume) MountPath() string { return v.mountPath }

// TotalCapacity, AvailableSpace, and Healthy report the last values
// observed by Refresh.
func (v *Volume) TotalCapacity() int64  { return v.totalCapacity }
func (v *Volume) AvailableSpace() int64 { return v.availableSpace }
func (v *Volume) Healthy() bool         { return v.healthy }

// Status projects the volume's live attributes.
func (v *Volume) Status() types.VolumeStatus {
	return types.VolumeStatus{
		VolumeID:       v.id,
		MountPath:      v.mountPath,
		TotalCapacity:  v.totalCapacity,
		AvailableSpace: v.availableSpace,
		Healthy:        v.healthy,
	}
}

// ShardedPath computes the physical path for an item under this volume:
// <mount>/<tenant_id>/<shard_1>/<shard_2>/<item_id><ext>, where each
// shard is a 1-2 char prefix of the item id and the number of shard
// levels is this volume's sharding depth.
func (v *Volume) ShardedPath(tenantID, itemID, ext string) (string, error) {
	if err := validateComponent(tenantID); err != nil {
		return "", fmt.Errorf("tenant id: %w", err)
	}
	if err := validateComponent(itemID); err != nil {
		return "", fmt.Errorf("item id: %w", err)
	}
	parts := []string{v.mountPath, tenantID}
	for level := 0; level < v.shardingDepth && level < len(itemID); level++ {
		shardLen := 1
		if level == 1 {
			shardLen = 2
		}
		end := level + shardLen
		if end > len(itemID) {
			end = len(itemID)
		}
		parts = append(parts, itemID[level:end])
	}
	name := itemID + ext
	if err := validateComponent(name); err != nil {
		return "", fmt.Errorf("file name: %w", err)
	}
	parts = append(parts, name)
	return v.resolve(filepath.Join(parts...))
}

// DirectoryOf returns the logical directory path used for directory-level
// quotas: the sharded path's parent directory, as an absolute path.
func DirectoryOf(physicalPath string) string {
	return filepath.Dir(physicalPath)
}

// validateComponent rejects traversal segments and path separators
// embedded in a single path component.
func validateComponent(s string) error {
	if s == "" {
		return fmt.Errorf("empty path component")
	}
	if s == "." || s == ".." {
		return fmt.Errorf("path traversal segment %q rejected", s)
	}
	if strings.ContainsAny(s, "/\\") {
		return fmt.Errorf("path separator in component %q rejected", s)
	}
	return nil
}

// resolve joins p onto the mount root and verifies the result still lies
// under it, defending against any traversal that slipped past
// validateComponent (e.g. via filepath.Join normalization).
func (v *Volume) resolve(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(v.mountPath, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("resolved path %q escapes mount root %q", abs, v.mountPath)
	}
	return abs, nil
}

// Write stores stream at path, creating parent directories idempotently.
// Any partial file left by a failed write is unlinked before returning
//.
func (v *Volume) Write(path string, stream io.Reader) (written int64, err error) {
	if err := v.withinMount(path); err != nil {
		return 0, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, fmt.Errorf("volume %s: create parent dirs: %w", v.id, err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return 0, fmt.Errorf("volume %s: create file: %w", v.id, err)
	}

	n, copyErr := io.Copy(f, stream)
	closeErr := f.Close()

	if copyErr != nil || closeErr != nil {
		_ = os.Remove(path)
		if copyErr != nil {
			return 0, fmt.Errorf("volume %s: write %s: %w", v.id, path, copyErr)
		}
		return 0, fmt.Errorf("volume %s: close %s: %w", v.id, path, closeErr)
	}
	return n, nil
}

// Read opens path for streaming read. Callers must Close the result.
func (v *Volume) Read(path string) (io.ReadCloser, error) {
	if err := v.withinMount(path); err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("volume %s: read %s: %w", v.id, path, err)
	}
	return f, nil
}

// Delete removes path; a missing file is not an error (callers treat
// byte-delete as best-effort).
func (v *Volume) Delete(path string) error {
	if err := v.withinMount(path); err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("volume %s: delete %s: %w", v.id, path, err)
	}
	return nil
}

// Exists reports whether path currently has a byte file on disk.
func (v *Volume) Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func (v *Volume) withinMount(path string) error {
	_, err := v.resolve(path)
	return err
}

// TenantRoot returns the directory under this volume reserved for one
// tenant's byte files.
func (v *Volume) TenantRoot(tenantID string) string {
	return filepath.Join(v.mountPath, tenantID)
}
