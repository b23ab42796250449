package volume

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
)

// Refresh re-probes capacity and health by statfs-ing the mount and
// round-tripping a small probe file. Healthy reflects "readable,
// writable mount"; transient negatives are tolerated by
// the pool's admission stability window, not by this method.
func (v *Volume) Refresh() error {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(v.mountPath, &stat); err != nil {
		v.healthy = false
		return fmt.Errorf("volume %s: statfs %s: %w", v.id, v.mountPath, err)
	}
	v.totalCapacity = int64(stat.Blocks) * int64(stat.Bsize)
	v.availableSpace = int64(stat.Bavail) * int64(stat.Bsize)

	if err := v.probeReadWrite(); err != nil {
		v.healthy = false
		return err
	}
	v.healthy = true
	return nil
}

func (v *Volume) probeReadWrite() error {
	probePath := filepath.Join(v.mountPath, ".health-"+uuid.NewString())
	if err := os.WriteFile(probePath, []byte("ok"), 0o644); err != nil {
		return fmt.Errorf("volume %s: probe write: %w", v.id, err)
	}
	defer os.Remove(probePath)

	if _, err := os.ReadFile(probePath); err != nil {
		return fmt.Errorf("volume %s: probe read: %w", v.id, err)
	}
	return nil
}

// ProbeStable re-checks health up to attempts times with delay between
// probes, requiring at least 2 consecutive healthy observations before
// reporting stable. Used at pool-admission time.
func ProbeStable(v *Volume, attempts int, delay time.Duration) bool {
	consecutive := 0
	for i := 0; i < attempts; i++ {
		if err := v.Refresh(); err == nil && v.healthy {
			consecutive++
			if consecutive >= 2 {
				return true
			}
		} else {
			consecutive = 0
		}
		if i < attempts-1 {
			time.Sleep(delay)
		}
	}
	return consecutive >= 2
}
