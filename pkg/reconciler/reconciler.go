package reconciler

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cuemby/filequeue/pkg/log"
	"github.com/cuemby/filequeue/pkg/metrics"
	"github.com/cuemby/filequeue/pkg/pool"
	"github.com/cuemby/filequeue/pkg/quota"
	"github.com/cuemby/filequeue/pkg/scheduler"
	"github.com/cuemby/filequeue/pkg/tenant"
	"github.com/cuemby/filequeue/pkg/volume"
	"github.com/rs/zerolog"
)

// Config paces the reconciler's background sweep.
type Config struct {
	CleanupInterval     time.Duration
	CleanupInitialDelay time.Duration
	ProcessingTimeout   time.Duration
	FailedRetention     time.Duration
	CompactionEnabled   bool
	CompactionInterval  time.Duration
}

// Reconciler runs the periodic sweep over every tenant in the
// registry plus the shared pool's volumes.
type Reconciler struct {
	cfg      Config
	registry *tenant.Registry
	tenants  *tenant.Manager
	pool     *pool.Pool
	sched    *scheduler.Scheduler

	logger zerolog.Logger
	stopCh chan struct{}
	doneCh chan struct{}

	mu             sync.Mutex
	lastCompaction map[string]time.Time
}

func New(cfg Config, registry *tenant.Registry, tenants *tenant.Manager, p *pool.Pool, sched *scheduler.Scheduler) *Reconciler {
	return &Reconciler{
		cfg:            cfg,
		registry:       registry,
		tenants:        tenants,
		pool:           p,
		sched:          sched,
		logger:         log.WithComponent("reconciler"),
		stopCh:         make(chan struct{}),
		doneCh:         make(chan struct{}),
		lastCompaction: make(map[string]time.Time),
	}
}

// Start begins the reconciliation loop in a background goroutine,
// waiting cleanup_initial_delay before the first tick and
// cleanup_interval between ticks.
func (r *Reconciler) Start() {
	go r.run()
}

// Stop signals the loop to exit and blocks until it has.
func (r *Reconciler) Stop() {
	close(r.stopCh)
	<-r.doneCh
}

func (r *Reconciler) run() {
	defer close(r.doneCh)

	if r.cfg.CleanupInitialDelay > 0 {
		select {
		case <-time.After(r.cfg.CleanupInitialDelay):
		case <-r.stopCh:
			return
		}
	}

	interval := r.cfg.CleanupInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.logger.Info().Dur("interval", interval).Msg("reconciler started")

	r.tick()
	for {
		select {
		case <-ticker.C:
			r.tick()
		case <-r.stopCh:
			r.logger.Info().Msg("reconciler stopped")
			return
		}
	}
}

// tick runs every step once, in order, continuing past a step that
// fails for a given tenant. It enumerates the full tenant registry,
// not just the islands already open in this process, so a tenant that
// has gone quiet still gets its terminal-purge and orphan sweep.
func (r *Reconciler) tick() {
	defer metrics.ReconciliationCyclesTotal.Inc()

	now := time.Now()
	r.junkSweep()

	records, err := r.registry.ListAll()
	if err != nil {
		r.logger.Error().Err(err).Msg("tenant enumeration failed")
	}
	for _, rec := range records {
		_, alreadyOpen := r.tenants.Existing(rec.TenantID)
		isl, err := r.tenants.Island(rec.TenantID)
		if err != nil {
			r.logger.Error().Err(err).Str("tenant_id", rec.TenantID).Msg("reconcile: open island failed")
			continue
		}

		r.timeoutRequeue(isl, now)
		r.terminalPurge(isl, now)
		r.orphanSweep(isl)
		if r.cfg.CompactionEnabled {
			r.maybeCompact(isl, now)
		}

		if !alreadyOpen {
			if closeErr := isl.Close(); closeErr != nil {
				r.logger.Error().Err(closeErr).Str("tenant_id", rec.TenantID).Msg("reconcile: close transient island failed")
			}
			r.tenants.Evict(rec.TenantID)
		}
	}
	r.emptyDirectorySweep()
}

// junkSweep removes reserved-name noise files left under any mounted
// volume's top level. It never removes directories.
func (r *Reconciler) junkSweep() {
	stepTimer := metrics.NewTimer()
	defer stepTimer.ObserveDurationVec(metrics.ReconciliationDuration, "junk_sweep")

	for _, vol := range r.pool.AllVolumes() {
		names, err := volume.ListTopLevel(vol)
		if err != nil {
			r.logger.Error().Err(err).Str("volume_id", vol.ID()).Msg("junk sweep: list volume root failed")
			continue
		}
		for _, name := range names {
			if !volume.IsReservedName(name) {
				continue
			}
			if info, err := os.Stat(filepath.Join(vol.MountPath(), name)); err == nil && info.IsDir() {
				continue
			}
			if err := volume.RemoveTopLevel(vol, name); err != nil {
				r.logger.Error().Err(err).Str("volume_id", vol.ID()).Str("name", name).Msg("junk sweep: remove failed")
			}
		}
	}
}

// timeoutRequeue reclaims stale processing records.
func (r *Reconciler) timeoutRequeue(isl *tenant.Island, now time.Time) {
	if r.cfg.ProcessingTimeout <= 0 {
		return
	}
	stepTimer := metrics.NewTimer()
	defer stepTimer.ObserveDurationVec(metrics.ReconciliationDuration, "timeout_requeue")

	isl.Lock()
	defer isl.Unlock()
	if _, err := r.sched.ResetTimedOut(isl.Metadata, r.cfg.ProcessingTimeout, now); err != nil {
		r.logger.Error().Err(err).Str("tenant_id", isl.TenantID).Msg("timeout requeue failed")
	}
}

// terminalPurge removes permanently-failed (and any stray legacy
// completed) records past retention.
func (r *Reconciler) terminalPurge(isl *tenant.Island, now time.Time) {
	if r.cfg.FailedRetention <= 0 {
		return
	}
	stepTimer := metrics.NewTimer()
	defer stepTimer.ObserveDurationVec(metrics.ReconciliationDuration, "terminal_purge")

	isl.Lock()
	defer isl.Unlock()
	cutoff := now.Add(-r.cfg.FailedRetention)
	if _, err := isl.Metadata.PurgeTerminal(cutoff); err != nil {
		r.logger.Error().Err(err).Str("tenant_id", isl.TenantID).Msg("terminal purge failed")
	}
}

// orphanSweep deletes byte files no longer referenced by any
// non-terminal record and decrements their directory's quota count
//.
func (r *Reconciler) orphanSweep(isl *tenant.Island) {
	stepTimer := metrics.NewTimer()
	defer stepTimer.ObserveDurationVec(metrics.ReconciliationDuration, "orphan_sweep")

	isl.Lock()
	known := make(map[string]struct{})
	for _, item := range isl.Metadata.ListNonTerminal() {
		known[item.PhysicalPath] = struct{}{}
	}
	isl.Unlock()

	for _, vol := range r.pool.AllVolumes() {
		root := vol.TenantRoot(isl.TenantID)
		paths, err := volume.WalkFiles(root)
		if err != nil {
			continue
		}
		for _, path := range paths {
			if volume.IsReservedName(filepath.Base(path)) {
				continue
			}
			if _, ok := known[path]; ok {
				continue
			}
			if err := vol.Delete(path); err != nil {
				r.logger.Error().Err(err).Str("tenant_id", isl.TenantID).Str("path", path).Msg("orphan sweep: delete failed")
				continue
			}
			dir := volume.DirectoryOf(path)
			isl.Lock()
			if decErr := isl.Quota.Decrement(dir); decErr != nil {
				r.logger.Error().Err(decErr).Str("tenant_id", isl.TenantID).Str("directory", dir).Msg("orphan sweep: quota decrement failed")
			}
			if decErr := isl.Quota.Decrement(quota.TenantWideKey); decErr != nil {
				r.logger.Error().Err(decErr).Str("tenant_id", isl.TenantID).Msg("orphan sweep: tenant-wide quota decrement failed")
			}
			isl.Unlock()
			metrics.OrphansReclaimedTotal.Inc()
		}
	}
}

// emptyDirectorySweep removes empty leaf directories left behind by
// orphan deletion, depth-first.
func (r *Reconciler) emptyDirectorySweep() {
	stepTimer := metrics.NewTimer()
	defer stepTimer.ObserveDurationVec(metrics.ReconciliationDuration, "empty_directory_sweep")

	for _, vol := range r.pool.AllVolumes() {
		if err := volume.PruneEmptyDirs(vol.MountPath()); err != nil {
			r.logger.Error().Err(err).Str("volume_id", vol.ID()).Msg("empty directory sweep failed")
		}
	}
}

// maybeCompact rebuilds a tenant's stores in place, throttled to
// compaction_interval.
func (r *Reconciler) maybeCompact(isl *tenant.Island, now time.Time) {
	r.mu.Lock()
	last, seen := r.lastCompaction[isl.TenantID]
	due := !seen || now.Sub(last) >= r.cfg.CompactionInterval
	if due {
		r.lastCompaction[isl.TenantID] = now
	}
	r.mu.Unlock()
	if !due {
		return
	}

	stepTimer := metrics.NewTimer()
	defer func() {
		stepTimer.ObserveDurationVec(metrics.ReconciliationDuration, "compaction")
		metrics.CompactionDuration.Observe(stepTimer.Duration().Seconds())
	}()

	isl.Lock()
	defer isl.Unlock()

	before, after, err := isl.Metadata.Engine().Compact()
	if err != nil {
		r.logger.Error().Err(err).Str("tenant_id", isl.TenantID).Msg("metadata store compaction failed")
	} else {
		r.logger.Info().Str("tenant_id", isl.TenantID).Int64("before_bytes", before).Int64("after_bytes", after).Msg("metadata store compacted")
	}

	before, after, err = isl.Quota.Engine().Compact()
	if err != nil {
		r.logger.Error().Err(err).Str("tenant_id", isl.TenantID).Msg("quota store compaction failed")
	} else {
		r.logger.Info().Str("tenant_id", isl.TenantID).Int64("before_bytes", before).Int64("after_bytes", after).Msg("quota store compacted")
	}
}
