package recovery

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cuemby/filequeue/pkg/log"
	"github.com/cuemby/filequeue/pkg/metadata"
	"github.com/cuemby/filequeue/pkg/metrics"
	"github.com/cuemby/filequeue/pkg/pool"
	"github.com/cuemby/filequeue/pkg/quota"
	"github.com/cuemby/filequeue/pkg/storage"
	"github.com/cuemby/filequeue/pkg/tenant"
	"github.com/cuemby/filequeue/pkg/types"
	"github.com/cuemby/filequeue/pkg/volume"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Config controls the startup health probe and rebuild behavior (spec
// §6 health_check_enabled, auto_recover, fail_fast).
type Config struct {
	Enabled       bool
	AutoRecover   bool
	FailFast      bool
	ProbeAttempts int
	ProbeDelay    time.Duration
}

// DefaultConfig probes each store up to 3 times, 1 second apart.
func DefaultConfig() Config {
	return Config{
		Enabled:       true,
		AutoRecover:   true,
		FailFast:      false,
		ProbeAttempts: 3,
		ProbeDelay:    time.Second,
	}
}

// Service runs the startup corruption probe and the rebuild protocol
// against a tenant manager and storage pool.
type Service struct {
	cfg     Config
	tenants *tenant.Manager
	pool    *pool.Pool
	logger  zerolog.Logger
}

func New(cfg Config, tenants *tenant.Manager, p *pool.Pool) *Service {
	return &Service{cfg: cfg, tenants: tenants, pool: p, logger: log.WithComponent("recovery")}
}

// Sweep probes every tenant id's metadata and quota files, rebuilding
// whichever ones show a confirmed corruption signature. It returns the
// tenant ids it rebuilt. With fail_fast set, Sweep stops and returns an
// error on the first rebuild failure; otherwise it logs and continues
// with the remaining tenants.
func (s *Service) Sweep(tenantIDs []string) (rebuilt []string, err error) {
	if !s.cfg.Enabled {
		return nil, nil
	}
	for _, tenantID := range tenantIDs {
		kind, probeErr := s.probeTenant(tenantID)
		switch kind {
		case storage.FailureNone:
			continue
		case storage.FailureLockContention:
			s.logger.Warn().Str("tenant_id", tenantID).Err(probeErr).Msg("tenant store still locked after probe retries")
			continue
		case storage.FailureCorruption:
			s.logger.Error().Str("tenant_id", tenantID).Err(probeErr).Msg("tenant store corruption detected")
			if !s.cfg.AutoRecover {
				continue
			}
			if rebuildErr := s.RebuildTenant(tenantID); rebuildErr != nil {
				if s.cfg.FailFast {
					return rebuilt, fmt.Errorf("recovery: rebuild tenant %s: %w", tenantID, rebuildErr)
				}
				s.logger.Error().Str("tenant_id", tenantID).Err(rebuildErr).Msg("rebuild failed, leaving tenant store in place")
				continue
			}
			rebuilt = append(rebuilt, tenantID)
		}
	}
	return rebuilt, nil
}

// probeTenant opens and immediately closes both of a tenant's store
// files, classifying any failure. A lock-contention result is retried
// up to ProbeAttempts times with ProbeDelay between attempts before
// being reported as such; a corruption signature is reported on first
// sight since retrying cannot change a damaged file's checksum.
func (s *Service) probeTenant(tenantID string) (storage.FailureKind, error) {
	cfg := s.tenants.StoreConfig()
	if cfg.Timeout <= 0 {
		// A zero Timeout means "wait forever for the file lock" to
		// bbolt, which would turn a probe of a live, merely-busy
		// tenant into a permanent hang. The probe always bounds its
		// own wait so it can report lock contention instead.
		cfg.Timeout = s.cfg.ProbeDelay
		if cfg.Timeout <= 0 {
			cfg.Timeout = time.Second
		}
	}
	paths := []string{s.tenants.MetadataPath(tenantID), s.tenants.QuotaPath(tenantID)}

	var lastErr error
	for attempt := 0; attempt < s.cfg.ProbeAttempts; attempt++ {
		lastErr = nil
		for _, path := range paths {
			if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
				continue
			}
			engine, openErr := storage.Open(path, cfg)
			if openErr != nil {
				kind := storage.Classify(openErr)
				if kind == storage.FailureCorruption {
					return storage.FailureCorruption, openErr
				}
				lastErr = openErr
				continue
			}
			_ = engine.Close()
		}
		if lastErr == nil {
			return storage.FailureNone, nil
		}
		if attempt < s.cfg.ProbeAttempts-1 {
			time.Sleep(s.cfg.ProbeDelay)
		}
	}
	return storage.Classify(lastErr), lastErr
}

// RebuildTenant executes the rebuild protocol for tenantID: it backs up
// and discards both store files, rescans every mounted volume's subtree
// for this tenant, and writes fresh metadata and quota records derived
// from what is actually present on disk.
//
// If an island for tenantID is already open, its mutex is held for the
// duration so no concurrent operation observes a half-rebuilt tenant;
// the island is evicted from the manager afterward so the next lookup
// reopens the rebuilt files.
func (s *Service) RebuildTenant(tenantID string) (err error) {
	defer func() {
		outcome := "rebuilt"
		if err != nil {
			outcome = "failed"
		}
		metrics.RebuildsTotal.WithLabelValues(outcome).Inc()
	}()

	if isl, ok := s.tenants.Existing(tenantID); ok {
		isl.Lock()
		defer isl.Unlock()
		if err := isl.Close(); err != nil {
			s.logger.Warn().Str("tenant_id", tenantID).Err(err).Msg("close before rebuild reported an error, continuing")
		}
		defer s.tenants.Evict(tenantID)
	}

	metaPath := s.tenants.MetadataPath(tenantID)
	quotaPath := s.tenants.QuotaPath(tenantID)

	if err := backupAndDiscard(metaPath); err != nil {
		return fmt.Errorf("back up metadata store: %w", err)
	}
	if err := backupAndDiscard(quotaPath); err != nil {
		return fmt.Errorf("back up quota store: %w", err)
	}

	meta, err := metadata.Open(metaPath, s.tenants.StoreConfig())
	if err != nil {
		return fmt.Errorf("reopen metadata store: %w", err)
	}
	defer meta.Close()

	quotas, err := quota.Open(quotaPath, s.tenants.StoreConfig())
	if err != nil {
		return fmt.Errorf("reopen quota store: %w", err)
	}
	defer quotas.Close()

	records, dirCounts, err := s.scanTenant(tenantID)
	if err != nil {
		return fmt.Errorf("scan physical tree: %w", err)
	}

	for _, rec := range records {
		if err := meta.Upsert(rec); err != nil {
			return fmt.Errorf("write rebuilt record %s: %w", rec.ItemID, err)
		}
	}
	var tenantWide int64
	for dir, count := range dirCounts {
		if err := quotas.Seed(dir, count); err != nil {
			return fmt.Errorf("write rebuilt quota for %s: %w", dir, err)
		}
		tenantWide += count
	}
	if err := quotas.Seed(quota.TenantWideKey, tenantWide); err != nil {
		return fmt.Errorf("write rebuilt tenant-wide quota: %w", err)
	}

	s.logger.Info().
		Str("tenant_id", tenantID).
		Int("records_rebuilt", len(records)).
		Int("directories_rebuilt", len(dirCounts)).
		Msg("tenant store rebuilt from physical scan")
	return nil
}

// backupAndDiscard renames path to a forensic backup name and leaves
// nothing at path, so a fresh store can be opened there. A missing
// file is not an error - the store may never have existed yet.
func backupAndDiscard(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	backupPath := path + ".corrupted." + time.Now().UTC().Format("20060102150405")
	if err := os.Rename(path, backupPath); err != nil {
		return fmt.Errorf("rename %s to %s: %w", path, backupPath, err)
	}
	return nil
}

// scanTenant walks tenantID's subtree on every mounted volume,
// synthesizing one fresh pending item per byte file found and a
// per-directory file count for quota seeding. Reserved names (health
// probes, forensic backups, engine journal files) are skipped (spec
// §4.8 step 4, volume.IsReservedName).
func (s *Service) scanTenant(tenantID string) ([]*types.Item, map[string]int64, error) {
	var records []*types.Item
	dirCounts := make(map[string]int64)

	for _, vol := range s.pool.AllVolumes() {
		root := vol.TenantRoot(tenantID)
		info, statErr := os.Stat(root)
		if statErr != nil {
			if os.IsNotExist(statErr) {
				continue
			}
			return nil, nil, fmt.Errorf("stat tenant root %s: %w", root, statErr)
		}
		if !info.IsDir() {
			continue
		}

		walkErr := filepath.Walk(root, func(path string, fi os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if fi.IsDir() {
				return nil
			}
			name := fi.Name()
			if volume.IsReservedName(name) {
				return nil
			}
			dir := volume.DirectoryOf(path)
			dirCounts[dir]++

			rawID := strings.ReplaceAll(uuid.New().String(), "-", "")
			records = append(records, &types.Item{
				ItemID:        rawID,
				TenantID:      tenantID,
				VolumeID:      vol.ID(),
				PhysicalPath:  path,
				DirectoryPath: dir,
				SizeBytes:     fi.Size(),
				CreatedAt:     fi.ModTime().UTC(),
				Status:        types.StatusPending,
				OriginalName:  filepath.Base(path),
			})
			return nil
		})
		if walkErr != nil {
			return nil, nil, fmt.Errorf("walk tenant root %s: %w", root, walkErr)
		}
	}
	return records, dirCounts, nil
}
