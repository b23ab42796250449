package scheduler

import (
	"time"

	"github.com/cuemby/filequeue/pkg/ferr"
	"github.com/cuemby/filequeue/pkg/log"
	"github.com/cuemby/filequeue/pkg/metadata"
	"github.com/cuemby/filequeue/pkg/metrics"
	"github.com/cuemby/filequeue/pkg/quota"
	"github.com/cuemby/filequeue/pkg/types"
	"github.com/cuemby/filequeue/pkg/volume"
	"github.com/rs/zerolog"
)

// RetryConfig is the failure-scheduling configuration:
// max retries before permanent failure, and the backoff curve applied
// to available_at on each retry.
type RetryConfig struct {
	MaxRetries   int
	InitialDelay time.Duration
	Exponential  bool
	MaxDelay     time.Duration
}

// VolumeResolver looks up a mounted volume by id; implemented by the
// storage pool. A volume id that is not mounted resolves ok=false.
type VolumeResolver interface {
	Volume(volumeID string) (*volume.Volume, bool)
}

// Scheduler implements claim-next/claim-batch/mark-completed/
// mark-failed/reset-timed-out/status over one tenant's metadata and
// quota stores. It holds no per-tenant state itself -
// every call is handed the stores to operate on - so a single
// Scheduler instance is shared across all tenants.
type Scheduler struct {
	retry  RetryConfig
	logger zerolog.Logger
}

// New creates a Scheduler with the given retry/backoff configuration.
func New(retry RetryConfig) *Scheduler {
	return &Scheduler{retry: retry, logger: log.WithComponent("scheduler")}
}

// ClaimNext claims the oldest eligible pending record for one tenant's
// metadata store. If the claimed record's byte file is missing on
// disk, the record is removed and the next candidate is tried
// (self-healing against lost bytes). Returns nil, nil when
// the queue drains.
func (s *Scheduler) ClaimNext(meta *metadata.Store, volumes VolumeResolver, now time.Time) (*types.Location, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.ClaimLatency)
	for {
		item, err := meta.ClaimNext(now)
		if err != nil {
			metrics.ClaimsTotal.WithLabelValues("error").Inc()
			return nil, err
		}
		if item == nil {
			metrics.ClaimsTotal.WithLabelValues("empty").Inc()
			return nil, nil
		}
		if s.bytesPresent(item, volumes) {
			metrics.ClaimsTotal.WithLabelValues("claimed").Inc()
			return item.Location(), nil
		}
		s.healMissingBytes(meta, item)
	}
}

// ClaimBatch claims up to n eligible pending records, then drops any
// whose byte file is missing on disk rather than retrying to refill
// the batch.
func (s *Scheduler) ClaimBatch(meta *metadata.Store, volumes VolumeResolver, n int, now time.Time) ([]*types.Location, error) {
	items, err := meta.ClaimBatch(n, now)
	if err != nil {
		metrics.ClaimsTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	if len(items) == 0 {
		metrics.ClaimsTotal.WithLabelValues("empty").Inc()
		return nil, ferr.New(ferr.NoItemsAvailable, "")
	}
	locations := make([]*types.Location, 0, len(items))
	for _, item := range items {
		if s.bytesPresent(item, volumes) {
			locations = append(locations, item.Location())
			metrics.ClaimsTotal.WithLabelValues("claimed").Inc()
			continue
		}
		s.healMissingBytes(meta, item)
	}
	return locations, nil
}

func (s *Scheduler) bytesPresent(item *types.Item, volumes VolumeResolver) bool {
	vol, ok := volumes.Volume(item.VolumeID)
	return ok && vol.Exists(item.PhysicalPath)
}

func (s *Scheduler) healMissingBytes(meta *metadata.Store, item *types.Item) {
	if _, err := meta.Remove(item.ItemID); err != nil {
		s.logger.Error().Err(err).Str("item_id", item.ItemID).Msg("failed to remove record with missing bytes")
		return
	}
	metrics.ClaimsTotal.WithLabelValues("self_healed").Inc()
	s.logger.Warn().Str("item_id", item.ItemID).Str("physical_path", item.PhysicalPath).Msg("claimed record had no byte file, removed")
}

// MarkCompleted deletes the byte file (best-effort), removes the
// record, and decrements the directory and tenant-wide quota counts.
// Idempotent: completing
// an item that is already gone is not an error.
func (s *Scheduler) MarkCompleted(meta *metadata.Store, quotas *quota.Store, volumes VolumeResolver, itemID string) error {
	item, ok := meta.Get(itemID)
	if !ok {
		return nil
	}
	if vol, ok := volumes.Volume(item.VolumeID); ok {
		if err := vol.Delete(item.PhysicalPath); err != nil {
			s.logger.Error().Err(err).Str("item_id", itemID).Msg("failed to delete byte file on completion")
		}
	}
	if _, err := meta.Remove(itemID); err != nil {
		return err
	}
	if err := quotas.Decrement(item.DirectoryPath); err != nil {
		s.logger.Error().Err(err).Str("item_id", itemID).Msg("failed to decrement quota on completion")
	}
	if err := quotas.Decrement(quota.TenantWideKey); err != nil {
		s.logger.Error().Err(err).Str("item_id", itemID).Msg("failed to decrement tenant-wide quota on completion")
	}
	metrics.ItemsCompleted.Inc()
	return nil
}

// MarkFailed increments retry_count and records the failure. Once
// retry_count reaches max_retries the record becomes permanently-failed; otherwise it
// returns to pending with available_at pushed out by the configured
// backoff.
func (s *Scheduler) MarkFailed(meta *metadata.Store, itemID, errMsg string, now time.Time) error {
	item, ok := meta.Get(itemID)
	if !ok {
		return ferr.New(ferr.NotFound, itemID)
	}

	item.RetryCount++
	failedAt := now
	item.LastFailedAt = &failedAt
	item.LastError = errMsg
	item.ProcessingStartedAt = nil

	if item.RetryCount >= s.retry.MaxRetries {
		item.Status = types.StatusPermanentlyFailed
		item.AvailableAt = nil
		metrics.ItemsFailed.WithLabelValues(string(types.StatusPermanentlyFailed)).Inc()
	} else {
		item.Status = types.StatusPending
		availableAt := now.Add(s.backoff(item.RetryCount))
		item.AvailableAt = &availableAt
		metrics.ItemsFailed.WithLabelValues(string(types.StatusPending)).Inc()
	}

	return meta.Upsert(item)
}

// backoff computes the delay before a record failed for the
// retryCount-th time becomes eligible again: exponential
// with a cap, or linear if exponential backoff is disabled.
func (s *Scheduler) backoff(retryCount int) time.Duration {
	if retryCount <= 0 {
		return 0
	}
	var d time.Duration
	if s.retry.Exponential {
		d = s.retry.InitialDelay << uint(retryCount-1)
		if d <= 0 {
			// overflowed the shift
			d = s.retry.MaxDelay
		}
	} else {
		d = s.retry.InitialDelay * time.Duration(retryCount)
	}
	if s.retry.MaxDelay > 0 && d > s.retry.MaxDelay {
		d = s.retry.MaxDelay
	}
	return d
}

// ResetTimedOut reclaims every processing record whose
// processing_started_at is older than now-timeout.
func (s *Scheduler) ResetTimedOut(meta *metadata.Store, timeout time.Duration, now time.Time) (int, error) {
	cutoff := now.Add(-timeout)
	reset, err := meta.ResetTimedOut(cutoff)
	if reset > 0 {
		s.logger.Info().Int("count", reset).Msg("reclaimed timed-out processing records")
	}
	return reset, err
}

// Status returns the current status of item_id, or ok=false if it has
// no record (completed or never existed).
func (s *Scheduler) Status(meta *metadata.Store, itemID string) (types.ItemStatus, bool) {
	item, ok := meta.Get(itemID)
	if !ok {
		return "", false
	}
	return item.Status, true
}
