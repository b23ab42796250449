package queue

import (
	"io"
	"time"

	"github.com/cuemby/filequeue/pkg/ferr"
	"github.com/cuemby/filequeue/pkg/pool"
	"github.com/cuemby/filequeue/pkg/scheduler"
	"github.com/cuemby/filequeue/pkg/tenant"
	"github.com/cuemby/filequeue/pkg/types"
)

// Store is the single entry point callers use to submit, claim, and
// complete work against the file queue store.
type Store struct {
	registry *tenant.Registry
	tenants  *tenant.Manager
	pool     *pool.Pool
	sched    *scheduler.Scheduler
}

func New(registry *tenant.Registry, tenants *tenant.Manager, p *pool.Pool, sched *scheduler.Scheduler) *Store {
	return &Store{registry: registry, tenants: tenants, pool: p, sched: sched}
}

// WriteFile stores stream under tenantID and returns the new item's id
//.
func (s *Store) WriteFile(tenantID string, stream io.Reader, originalName string) (itemID string, err error) {
	isl, err := s.authorize(tenantID)
	if err != nil {
		return "", err
	}
	isl.Lock()
	defer isl.Unlock()
	return s.pool.Write(isl.Metadata, isl.Quota, tenantID, stream, originalName)
}

// ReadFile opens item_id's byte stream. Callers must Close it.
func (s *Store) ReadFile(tenantID, itemID string) (io.ReadCloser, error) {
	isl, err := s.authorize(tenantID)
	if err != nil {
		return nil, err
	}
	isl.Lock()
	defer isl.Unlock()
	return s.pool.Read(isl.Metadata, tenantID, itemID)
}

// GetInfo returns the full record for item_id.
func (s *Store) GetInfo(tenantID, itemID string) (*types.Item, error) {
	isl, err := s.authorize(tenantID)
	if err != nil {
		return nil, err
	}
	isl.Lock()
	defer isl.Unlock()
	return s.pool.GetInfo(isl.Metadata, tenantID, itemID)
}

// GetLocation returns the location projection for item_id.
func (s *Store) GetLocation(tenantID, itemID string) (*types.Location, error) {
	isl, err := s.authorize(tenantID)
	if err != nil {
		return nil, err
	}
	isl.Lock()
	defer isl.Unlock()
	return s.pool.GetLocation(isl.Metadata, tenantID, itemID)
}

// ClaimNext claims the oldest eligible pending item for tenantID (spec
// §6 claim_next). Returns nil, nil when the queue is drained.
func (s *Store) ClaimNext(tenantID string, now time.Time) (*types.Location, error) {
	isl, err := s.authorize(tenantID)
	if err != nil {
		return nil, err
	}
	isl.Lock()
	defer isl.Unlock()
	return s.sched.ClaimNext(isl.Metadata, s.pool, now)
}

// ClaimBatch claims up to n eligible pending items for tenantID (spec
// §6 claim_batch).
func (s *Store) ClaimBatch(tenantID string, n int, now time.Time) ([]*types.Location, error) {
	isl, err := s.authorize(tenantID)
	if err != nil {
		return nil, err
	}
	isl.Lock()
	defer isl.Unlock()
	return s.sched.ClaimBatch(isl.Metadata, s.pool, n, now)
}

// MarkCompleted finalizes item_id: deletes its byte file, removes its
// record, and decrements its quota. tenantID
// authorizes the island; the scheduler itself is tenant-agnostic.
func (s *Store) MarkCompleted(tenantID, itemID string) error {
	isl, err := s.islandFor(tenantID)
	if err != nil {
		return err
	}
	isl.Lock()
	defer isl.Unlock()
	return s.sched.MarkCompleted(isl.Metadata, isl.Quota, s.pool, itemID)
}

// MarkFailed records a failed attempt at item_id, retrying with
// backoff or transitioning to permanently-failed once max_retries is reached
//.
func (s *Store) MarkFailed(tenantID, itemID, errMsg string, now time.Time) error {
	isl, err := s.islandFor(tenantID)
	if err != nil {
		return err
	}
	isl.Lock()
	defer isl.Unlock()
	return s.sched.MarkFailed(isl.Metadata, itemID, errMsg, now)
}

// Status returns item_id's current lifecycle status.
func (s *Store) Status(tenantID, itemID string) (types.ItemStatus, bool, error) {
	isl, err := s.islandFor(tenantID)
	if err != nil {
		return "", false, err
	}
	isl.Lock()
	defer isl.Unlock()
	status, ok := s.sched.Status(isl.Metadata, itemID)
	return status, ok, nil
}

// CapacityTotal sums total_capacity across healthy volumes.
func (s *Store) CapacityTotal() int64 { return s.pool.CapacityTotal() }

// CapacityAvailable sums available_space across healthy volumes (spec
// §6).
func (s *Store) CapacityAvailable() int64 { return s.pool.CapacityAvailable() }

// CreateTenant, EnableTenant, DisableTenant, and ListTenants implement
// the tenant lifecycle operations.
func (s *Store) CreateTenant(tenantID, storagePath string) (*types.TenantRecord, error) {
	return s.registry.Create(tenantID, storagePath)
}

func (s *Store) EnableTenant(tenantID string) error { return s.registry.Enable(tenantID) }

func (s *Store) DisableTenant(tenantID string) error { return s.registry.Disable(tenantID) }

func (s *Store) ListTenants() ([]*types.TenantRecord, error) { return s.registry.ListAll() }

// authorize rejects a disabled tenant before returning its island,
// used by operations that must not touch storage for a disabled
// tenant at all.
func (s *Store) authorize(tenantID string) (*tenant.Island, error) {
	enabled, err := s.registry.IsEnabled(tenantID)
	if err != nil {
		return nil, err
	}
	if !enabled {
		return nil, ferr.New(ferr.TenantDisabled, tenantID)
	}
	return s.tenants.Island(tenantID)
}

// islandFor returns tenantID's island without checking enabled status:
// mark_completed, mark_failed, and status must still be reachable
// against a disabled tenant so in-flight work can be finalized (spec
// §6 lists tenant-disabled only for write_file/read_file/claim_*).
func (s *Store) islandFor(tenantID string) (*tenant.Island, error) {
	return s.tenants.Island(tenantID)
}
