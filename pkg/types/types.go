// Package types holds the data model shared across the file queue store:
// items, tenants, quotas, volumes, and the location projection handed back
// to consumers on claim.
package types

import "time"

// ItemStatus is the lifecycle state of a stored item. Completed items are
// deleted rather than persisted in this status; the constant
// exists for the legacy completed-record purge path (§4.7 step 4).
type ItemStatus string

const (
	StatusPending           ItemStatus = "pending"
	StatusProcessing        ItemStatus = "processing"
	StatusFailed            ItemStatus = "failed"
	StatusPermanentlyFailed ItemStatus = "permanently_failed"
	StatusCompleted         ItemStatus = "completed"
)

// Item is the durable record for one submitted byte file.
type Item struct {
	ItemID        string     `json:"item_id"`
	TenantID      string     `json:"tenant_id"`
	VolumeID      string     `json:"volume_id"`
	PhysicalPath  string     `json:"physical_path"`
	DirectoryPath string     `json:"directory_path"`
	SizeBytes     int64      `json:"size_bytes"`
	CreatedAt     time.Time  `json:"created_at"`
	Status        ItemStatus `json:"status"`
	RetryCount    int        `json:"retry_count"`
	LastFailedAt  *time.Time `json:"last_failed_at,omitempty"`
	LastError     string     `json:"last_error,omitempty"`

	ProcessingStartedAt *time.Time `json:"processing_started_at,omitempty"`
	AvailableAt         *time.Time `json:"available_at,omitempty"`
	OriginalName        string     `json:"original_name,omitempty"`
}

// Eligible reports whether the item is pending and past its available-at
// gate as of now.
func (i *Item) Eligible(now time.Time) bool {
	if i.Status != StatusPending {
		return false
	}
	if i.AvailableAt == nil {
		return true
	}
	return !i.AvailableAt.After(now)
}

// Clone returns a deep-enough copy for safe mutation outside the cache.
func (i *Item) Clone() *Item {
	c := *i
	if i.LastFailedAt != nil {
		t := *i.LastFailedAt
		c.LastFailedAt = &t
	}
	if i.ProcessingStartedAt != nil {
		t := *i.ProcessingStartedAt
		c.ProcessingStartedAt = &t
	}
	if i.AvailableAt != nil {
		t := *i.AvailableAt
		c.AvailableAt = &t
	}
	return &c
}

// Location is the projection of an Item handed back to a consumer on
// claim: enough to locate and read the bytes, plus enough
// status to decide whether to retry reading.
type Location struct {
	ItemID        string
	VolumeID      string
	PhysicalPath  string
	DirectoryPath string
	SizeBytes     int64
	Status        ItemStatus
	RetryCount    int
	LastError     string
}

func (i *Item) Location() *Location {
	return &Location{
		ItemID:        i.ItemID,
		VolumeID:      i.VolumeID,
		PhysicalPath:  i.PhysicalPath,
		DirectoryPath: i.DirectoryPath,
		SizeBytes:     i.SizeBytes,
		Status:        i.Status,
		RetryCount:    i.RetryCount,
		LastError:     i.LastError,
	}
}

// QuotaRecord tracks file-count usage for one directory path within a
// tenant. MaxCount == 0 means unlimited; Enabled == false
// bypasses enforcement regardless of MaxCount.
type QuotaRecord struct {
	DirectoryPath string    `json:"directory_path"`
	CurrentCount  int64     `json:"current_count"`
	MaxCount      int64     `json:"max_count"`
	Enabled       bool      `json:"enabled"`
	CreatedAt     time.Time `json:"created_at"`
	LastUpdated   time.Time `json:"last_updated"`
}

// Refused reports whether an increment attempt against this record should
// be rejected.
func (q *QuotaRecord) Refused() bool {
	return q.Enabled && q.MaxCount > 0 && q.CurrentCount >= q.MaxCount
}

// TenantStatus is the lifecycle state of a tenant.
type TenantStatus string

const (
	TenantEnabled   TenantStatus = "enabled"
	TenantDisabled  TenantStatus = "disabled"
	TenantSuspended TenantStatus = "suspended"
)

// TenantRecord is the persisted tenant document.
type TenantRecord struct {
	TenantID    string       `json:"tenant_id"`
	Status      TenantStatus `json:"status"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
	StoragePath string       `json:"storage_path"`
}

// IsEnabled reports whether operations against this tenant should proceed.
func (t *TenantRecord) IsEnabled() bool {
	return t != nil && t.Status == TenantEnabled
}

// VolumeConfig is the fixed-at-startup configuration of one mounted
// volume.
type VolumeConfig struct {
	VolumeID      string `yaml:"id"`
	MountPath     string `yaml:"mount_path"`
	ShardingDepth int    `yaml:"sharding_depth"`
}

// VolumeStatus is the live, mutable state of a mounted volume.
type VolumeStatus struct {
	VolumeID       string
	MountPath      string
	TotalCapacity  int64
	AvailableSpace int64
	Healthy        bool
}
