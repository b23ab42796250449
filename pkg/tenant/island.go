package tenant

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/cuemby/filequeue/pkg/metadata"
	"github.com/cuemby/filequeue/pkg/quota"
	"github.com/cuemby/filequeue/pkg/storage"
)

// Island is the exclusive per-tenant bundle of state: its metadata
// store, its quota store, and the mutex that orders every mutation
// against both.
type Island struct {
	TenantID string
	Metadata *metadata.Store
	Quota    *quota.Store

	mu sync.Mutex
}

// Lock acquires the tenant mutex. Callers (scheduler and pool
// operations, reconciler passes, recovery rebuilds) hold it for the
// duration of one logical operation.
func (isl *Island) Lock() { isl.mu.Lock() }

// Unlock releases the tenant mutex.
func (isl *Island) Unlock() { isl.mu.Unlock() }

// Close closes both underlying stores.
func (isl *Island) Close() error {
	metaErr := isl.Metadata.Close()
	quotaErr := isl.Quota.Close()
	if metaErr != nil {
		return metaErr
	}
	return quotaErr
}

// Manager lazily creates and owns every tenant's Island.
type Manager struct {
	metadataRoot string
	quotaRoot    string
	storeConfig  storage.Config

	mu      sync.Mutex
	islands map[string]*Island
}

// NewManager creates a Manager rooted at metadataRoot and quotaRoot
//.
func NewManager(metadataRoot, quotaRoot string, storeConfig storage.Config) *Manager {
	return &Manager{
		metadataRoot: metadataRoot,
		quotaRoot:    quotaRoot,
		storeConfig:  storeConfig,
		islands:      make(map[string]*Island),
	}
}

// Island returns tenantID's island, opening and hydrating its stores
// on first reference.
func (m *Manager) Island(tenantID string) (*Island, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if isl, ok := m.islands[tenantID]; ok {
		return isl, nil
	}

	metaPath := filepath.Join(m.metadataRoot, tenantID+".db")
	meta, err := metadata.Open(metaPath, m.storeConfig)
	if err != nil {
		return nil, fmt.Errorf("tenant: open metadata store for %s: %w", tenantID, err)
	}
	if err := meta.Hydrate(); err != nil {
		_ = meta.Close()
		return nil, fmt.Errorf("tenant: hydrate metadata store for %s: %w", tenantID, err)
	}

	quotaPath := filepath.Join(m.quotaRoot, tenantID+"-quotas.db")
	quotas, err := quota.Open(quotaPath, m.storeConfig)
	if err != nil {
		_ = meta.Close()
		return nil, fmt.Errorf("tenant: open quota store for %s: %w", tenantID, err)
	}

	isl := &Island{TenantID: tenantID, Metadata: meta, Quota: quotas}
	m.islands[tenantID] = isl
	return isl, nil
}

// Existing returns tenantID's island only if it is already open,
// without creating one.
func (m *Manager) Existing(tenantID string) (*Island, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	isl, ok := m.islands[tenantID]
	return isl, ok
}

// Evict drops tenantID's island from the manager without closing it -
// used by pkg/recovery after it has already closed the handles itself
// as part of the rebuild protocol, so the next Island call reopens
// the freshly rebuilt files.
func (m *Manager) Evict(tenantID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.islands, tenantID)
}

// StoreConfig returns the embedded-engine configuration islands are
// opened with.
func (m *Manager) StoreConfig() storage.Config { return m.storeConfig }

// Islands returns every currently-open island, for the queue-depth
// metrics source.
func (m *Manager) Islands() []*Island {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Island, 0, len(m.islands))
	for _, isl := range m.islands {
		out = append(out, isl)
	}
	return out
}

// MetadataPath and QuotaPath compute a tenant's store paths without
// opening an island - used by pkg/recovery's startup probe, which
// must distinguish corruption from lock contention before Island
// would otherwise eagerly open (and potentially panic on) a damaged
// file.
func (m *Manager) MetadataPath(tenantID string) string {
	return filepath.Join(m.metadataRoot, tenantID+".db")
}

func (m *Manager) QuotaPath(tenantID string) string {
	return filepath.Join(m.quotaRoot, tenantID+"-quotas.db")
}

// Close closes every open island's stores.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var first error
	for _, isl := range m.islands {
		if err := isl.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
