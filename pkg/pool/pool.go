package pool

import (
	"io"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cuemby/filequeue/pkg/ferr"
	"github.com/cuemby/filequeue/pkg/log"
	"github.com/cuemby/filequeue/pkg/metadata"
	"github.com/cuemby/filequeue/pkg/metrics"
	"github.com/cuemby/filequeue/pkg/quota"
	"github.com/cuemby/filequeue/pkg/types"
	"github.com/cuemby/filequeue/pkg/volume"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Pool is the storage pool: the set of mounted volumes,
// selection by free space, and the two-phase (physical-then-metadata)
// write path. It holds no per-tenant state - callers (pkg/tenant, via
// pkg/queue) pass in the metadata.Store and quota.Store for whichever
// tenant is being served.
type Pool struct {
	mu      sync.RWMutex
	volumes map[string]*volume.Volume
	logger  zerolog.Logger
}

// New creates an empty pool.
func New() *Pool {
	return &Pool{
		volumes: make(map[string]*volume.Volume),
		logger:  log.WithComponent("pool"),
	}
}

// AddVolume constructs and admits a volume after requiring it to
// report healthy in at least 2 of probeAttempts consecutive Refresh
// calls.
// Re-adding an already-mounted volume id is an error.
func (p *Pool) AddVolume(cfg types.VolumeConfig, probeAttempts int, probeDelay time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.volumes[cfg.VolumeID]; exists {
		return ferr.New(ferr.IO, "volume "+cfg.VolumeID+" already mounted")
	}
	v, err := volume.New(cfg)
	if err != nil {
		return ferr.Wrap(ferr.IO, err, "construct volume "+cfg.VolumeID)
	}
	if !volume.ProbeStable(v, probeAttempts, probeDelay) {
		return ferr.New(ferr.StorageVolumeUnavailable, "volume "+cfg.VolumeID+" failed health probe")
	}
	p.volumes[cfg.VolumeID] = v
	metrics.VolumesHealthy.Add(1)
	p.logger.Info().Str("volume_id", cfg.VolumeID).Str("mount_path", v.MountPath()).Msg("volume admitted to pool")
	return nil
}

// Volume looks up a mounted volume by id.
func (p *Pool) Volume(id string) (*volume.Volume, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	v, ok := p.volumes[id]
	return v, ok
}

// AllVolumes returns every mounted volume, for callers (the
// reconciler, corruption recovery) that need to walk each one's
// physical tree rather than just read a snapshot.
func (p *Pool) AllVolumes() []*volume.Volume {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*volume.Volume, 0, len(p.volumes))
	for _, v := range p.volumes {
		out = append(out, v)
	}
	return out
}

// VolumeSnapshot is the subset of volume state the metrics collector polls.
type VolumeSnapshot = metrics.VolumeSnapshot

// Volumes satisfies metrics.Source, reporting every mounted volume's
// live health and capacity.
func (p *Pool) Volumes() []VolumeSnapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]VolumeSnapshot, 0, len(p.volumes))
	for _, v := range p.volumes {
		out = append(out, VolumeSnapshot{VolumeID: v.ID(), Healthy: v.Healthy(), AvailableSpace: v.AvailableSpace()})
	}
	return out
}

// selectVolume picks the healthy volume with the most available
// space.
func (p *Pool) selectVolume() (*volume.Volume, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var best *volume.Volume
	for _, v := range p.volumes {
		if !v.Healthy() {
			continue
		}
		if best == nil || v.AvailableSpace() > best.AvailableSpace() {
			best = v
		}
	}
	if best == nil {
		return nil, ferr.New(ferr.StorageVolumeUnavailable, "no healthy volume")
	}
	if best.AvailableSpace() <= 0 {
		return nil, ferr.New(ferr.InsufficientStorage, best.ID())
	}
	return best, nil
}

// CapacityTotal sums total_capacity across healthy volumes.
func (p *Pool) CapacityTotal() int64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var total int64
	for _, v := range p.volumes {
		if v.Healthy() {
			total += v.TotalCapacity()
		}
	}
	return total
}

// CapacityAvailable sums available_space across healthy volumes.
func (p *Pool) CapacityAvailable() int64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var total int64
	for _, v := range p.volumes {
		if v.Healthy() {
			total += v.AvailableSpace()
		}
	}
	return total
}

// Write implements the two-phase write path: tenant-wide
// quota increment, volume pick, directory quota increment, physical
// write, metadata upsert - with best-effort rollback of every prior
// step on a later failure.
func (p *Pool) Write(meta *metadata.Store, quotas *quota.Store, tenantID string, stream io.Reader, originalName string) (itemID string, err error) {
	timer := metrics.NewTimer()
	defer func() {
		outcome := "accepted"
		if err != nil {
			outcome = "rejected"
		}
		metrics.WritesTotal.WithLabelValues(outcome).Inc()
		timer.ObserveDuration(metrics.WriteDuration)
	}()

	accepted, tenantRec, err := quotas.TryIncrement(quota.TenantWideKey)
	if err != nil {
		return "", ferr.Wrap(ferr.IO, err, "tenant quota increment")
	}
	if !accepted {
		metrics.QuotaRefusalsTotal.WithLabelValues("tenant").Inc()
		return "", ferr.Quota(ferr.TenantQuotaExceeded, tenantRec.CurrentCount, tenantRec.MaxCount)
	}

	vol, err := p.selectVolume()
	if err != nil {
		_ = quotas.Decrement(quota.TenantWideKey)
		return "", err
	}

	rawID := strings.ReplaceAll(uuid.New().String(), "-", "")
	ext := filepath.Ext(originalName)
	physicalPath, err := vol.ShardedPath(tenantID, rawID, ext)
	if err != nil {
		_ = quotas.Decrement(quota.TenantWideKey)
		return "", ferr.Wrap(ferr.IO, err, "compute physical path")
	}
	dirPath := volume.DirectoryOf(physicalPath)

	dirAccepted, dirRec, err := quotas.TryIncrement(dirPath)
	if err != nil {
		_ = quotas.Decrement(quota.TenantWideKey)
		return "", ferr.Wrap(ferr.IO, err, "directory quota increment")
	}
	if !dirAccepted {
		_ = quotas.Decrement(quota.TenantWideKey)
		metrics.QuotaRefusalsTotal.WithLabelValues("directory").Inc()
		return "", ferr.Quota(ferr.DirectoryQuotaExceeded, dirRec.CurrentCount, dirRec.MaxCount)
	}

	written, err := vol.Write(physicalPath, stream)
	if err != nil {
		_ = quotas.Decrement(dirPath)
		_ = quotas.Decrement(quota.TenantWideKey)
		return "", ferr.Wrap(ferr.IO, err, "write bytes")
	}

	item := &types.Item{
		ItemID:        rawID,
		TenantID:      tenantID,
		VolumeID:      vol.ID(),
		PhysicalPath:  physicalPath,
		DirectoryPath: dirPath,
		SizeBytes:     written,
		CreatedAt:     time.Now().UTC(),
		Status:        types.StatusPending,
		OriginalName:  originalName,
	}
	if err := meta.Upsert(item); err != nil {
		if delErr := vol.Delete(physicalPath); delErr != nil {
			p.logger.Error().Err(delErr).Str("item_id", rawID).Msg("rollback: failed to delete orphaned byte file")
		}
		_ = quotas.Decrement(dirPath)
		_ = quotas.Decrement(quota.TenantWideKey)
		return "", ferr.Wrap(ferr.IO, err, "persist metadata")
	}

	return rawID, nil
}

// Read opens the byte stream for item_id, validating tenant ownership
// and that its volume is currently mounted.
func (p *Pool) Read(meta *metadata.Store, tenantID, itemID string) (io.ReadCloser, error) {
	item, err := p.authorize(meta, tenantID, itemID)
	if err != nil {
		return nil, err
	}
	vol, ok := p.Volume(item.VolumeID)
	if !ok {
		return nil, ferr.New(ferr.StorageVolumeUnavailable, item.VolumeID)
	}
	return vol.Read(item.PhysicalPath)
}

// GetInfo returns the full record for item_id, or nil if not found.
func (p *Pool) GetInfo(meta *metadata.Store, tenantID, itemID string) (*types.Item, error) {
	item, err := p.authorize(meta, tenantID, itemID)
	if ferr.Is(err, ferr.NotFound) {
		return nil, nil
	}
	return item, err
}

// GetLocation returns the location projection for item_id.
func (p *Pool) GetLocation(meta *metadata.Store, tenantID, itemID string) (*types.Location, error) {
	item, err := p.authorize(meta, tenantID, itemID)
	if err != nil {
		return nil, err
	}
	return item.Location(), nil
}

func (p *Pool) authorize(meta *metadata.Store, tenantID, itemID string) (*types.Item, error) {
	item, ok := meta.Get(itemID)
	if !ok {
		return nil, ferr.New(ferr.NotFound, itemID)
	}
	if item.TenantID != tenantID {
		return nil, ferr.New(ferr.Unauthorized, itemID)
	}
	return item, nil
}
