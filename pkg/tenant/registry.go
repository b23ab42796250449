package tenant

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/cuemby/filequeue/pkg/ferr"
	"github.com/cuemby/filequeue/pkg/storage"
	"github.com/cuemby/filequeue/pkg/types"
)

const bucketTenants = "tenants"

// defaultCacheTTL is the lifetime of a cached (tenant_id -> status)
// entry").
const defaultCacheTTL = 5 * time.Minute

type cacheEntry struct {
	status    types.TenantStatus
	expiresAt time.Time
}

// Registry is the durable tenant lifecycle store plus its status
// cache.
type Registry struct {
	engine     *storage.Engine
	autoCreate bool
	cacheTTL   time.Duration

	mu    sync.Mutex
	cache map[string]cacheEntry
}

// OpenRegistry opens (creating if absent) the tenant registry file at
// path. autoCreate controls whether Get on an unknown tenant creates
// it rather than returning tenant-not-found.
func OpenRegistry(path string, cfg storage.Config, autoCreate bool) (*Registry, error) {
	engine, err := storage.Open(path, cfg)
	if err != nil {
		return nil, err
	}
	if err := engine.EnsureBucket(bucketTenants); err != nil {
		_ = engine.Close()
		return nil, err
	}
	return &Registry{
		engine:     engine,
		autoCreate: autoCreate,
		cacheTTL:   defaultCacheTTL,
		cache:      make(map[string]cacheEntry),
	}, nil
}

func (r *Registry) Close() error { return r.engine.Close() }

// Create persists a new enabled tenant record. storagePath is an
// opaque caller-supplied hint (e.g. a quota-root subpath); the core
// does not interpret it.
func (r *Registry) Create(tenantID, storagePath string) (*types.TenantRecord, error) {
	now := time.Now().UTC()
	rec := &types.TenantRecord{
		TenantID:    tenantID,
		Status:      types.TenantEnabled,
		CreatedAt:   now,
		UpdatedAt:   now,
		StoragePath: storagePath,
	}
	if err := r.put(rec); err != nil {
		return nil, err
	}
	r.invalidate(tenantID)
	return rec, nil
}

// Get reads a tenant's record. If the tenant is unknown and
// auto-create is enabled, it is created (as enabled) and returned;
// otherwise tenant-not-found is returned.
func (r *Registry) Get(tenantID string) (*types.TenantRecord, error) {
	rec, ok, err := r.load(tenantID)
	if err != nil {
		return nil, err
	}
	if ok {
		return rec, nil
	}
	if r.autoCreate {
		return r.Create(tenantID, "")
	}
	return nil, ferr.New(ferr.TenantNotFound, tenantID)
}

// IsEnabled reports whether tenantID's status permits operations,
// consulting the status cache before falling through to the durable
// record.
func (r *Registry) IsEnabled(tenantID string) (bool, error) {
	r.mu.Lock()
	entry, ok := r.cache[tenantID]
	r.mu.Unlock()
	if ok && time.Now().Before(entry.expiresAt) {
		return entry.status == types.TenantEnabled, nil
	}

	rec, err := r.Get(tenantID)
	if err != nil {
		return false, err
	}
	r.mu.Lock()
	r.cache[tenantID] = cacheEntry{status: rec.Status, expiresAt: time.Now().Add(r.cacheTTL)}
	r.mu.Unlock()
	return rec.IsEnabled(), nil
}

// Enable transitions a known tenant to enabled.
func (r *Registry) Enable(tenantID string) error {
	return r.setStatus(tenantID, types.TenantEnabled)
}

// Disable transitions a known tenant to disabled.
func (r *Registry) Disable(tenantID string) error {
	return r.setStatus(tenantID, types.TenantDisabled)
}

func (r *Registry) setStatus(tenantID string, status types.TenantStatus) error {
	rec, ok, err := r.load(tenantID)
	if err != nil {
		return err
	}
	if !ok {
		return ferr.New(ferr.TenantNotFound, tenantID)
	}
	rec.Status = status
	rec.UpdatedAt = time.Now().UTC()
	if err := r.put(rec); err != nil {
		return err
	}
	r.invalidate(tenantID)
	return nil
}

// ListAll returns every tenant record, unspecified order.
func (r *Registry) ListAll() ([]*types.TenantRecord, error) {
	var out []*types.TenantRecord
	err := r.engine.ForEach(bucketTenants, func(key string, value []byte) error {
		var rec types.TenantRecord
		if err := json.Unmarshal(value, &rec); err != nil {
			return fmt.Errorf("tenant: decode record %s: %w", key, err)
		}
		out = append(out, &rec)
		return nil
	})
	return out, err
}

func (r *Registry) load(tenantID string) (*types.TenantRecord, bool, error) {
	data, ok, err := r.engine.Get(bucketTenants, tenantID)
	if err != nil {
		return nil, false, fmt.Errorf("tenant: read %s: %w", tenantID, err)
	}
	if !ok {
		return nil, false, nil
	}
	var rec types.TenantRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, false, fmt.Errorf("tenant: decode %s: %w", tenantID, err)
	}
	return &rec, true, nil
}

func (r *Registry) put(rec *types.TenantRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("tenant: encode %s: %w", rec.TenantID, err)
	}
	if err := r.engine.Put(bucketTenants, rec.TenantID, data); err != nil {
		return fmt.Errorf("tenant: persist %s: %w", rec.TenantID, err)
	}
	return nil
}

func (r *Registry) invalidate(tenantID string) {
	r.mu.Lock()
	delete(r.cache, tenantID)
	r.mu.Unlock()
}
