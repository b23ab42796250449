package quota

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/cuemby/filequeue/pkg/storage"
	"github.com/cuemby/filequeue/pkg/types"
	bolt "go.etcd.io/bbolt"
)

const bucketQuotas = "quotas"

// TenantWideKey is the reserved directory-path key used to model a
// tenant-wide file-count limit alongside per-directory limits (spec
// §3, Quota record).
const TenantWideKey = "\x00tenant-wide"

// Store is one tenant's durable directory-quota map. All methods are
// safe to call only while the caller holds that tenant's mutex (spec
// §4.3: "all operations run under the per-tenant mutex").
type Store struct {
	engine *storage.Engine
}

// Open opens (creating if absent) the bbolt file at path as a quota
// store.
func Open(path string, cfg storage.Config) (*Store, error) {
	engine, err := storage.Open(path, cfg)
	if err != nil {
		return nil, err
	}
	if err := engine.EnsureBucket(bucketQuotas); err != nil {
		_ = engine.Close()
		return nil, err
	}
	return &Store{engine: engine}, nil
}

func (s *Store) Close() error { return s.engine.Close() }

// Engine exposes the underlying engine for recovery and compaction.
func (s *Store) Engine() *storage.Engine { return s.engine }

// Get reads the quota record for dir, or a disabled zero-value record
// if none exists yet.
func (s *Store) Get(dir string) (*types.QuotaRecord, error) {
	data, ok, err := s.engine.Get(bucketQuotas, dir)
	if err != nil {
		return nil, fmt.Errorf("quota: read %s: %w", dir, err)
	}
	if !ok {
		return &types.QuotaRecord{DirectoryPath: dir}, nil
	}
	var rec types.QuotaRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("quota: decode %s: %w", dir, err)
	}
	return &rec, nil
}

// TryIncrement atomically loads-or-creates the record for dir, and if
// it is not refused, increments current_count and persists. accepted
// reports whether the increment took effect.
func (s *Store) TryIncrement(dir string) (accepted bool, rec *types.QuotaRecord, err error) {
	now := timeNow()
	err = s.engine.Update(func(tx *bolt.Tx) error {
		b, bucketErr := tx.CreateBucketIfNotExists([]byte(bucketQuotas))
		if bucketErr != nil {
			return bucketErr
		}
		current, loadErr := loadOrCreate(b, dir, now)
		if loadErr != nil {
			return loadErr
		}
		if current.Refused() {
			rec = current
			accepted = false
			return nil
		}
		current.CurrentCount++
		current.LastUpdated = now
		data, marshalErr := json.Marshal(current)
		if marshalErr != nil {
			return marshalErr
		}
		if putErr := b.Put([]byte(dir), data); putErr != nil {
			return putErr
		}
		rec = current
		accepted = true
		return nil
	})
	if err != nil {
		return false, nil, fmt.Errorf("quota: try_increment %s: %w", dir, err)
	}
	return accepted, rec, nil
}

// Decrement atomically decrements current_count for dir, saturating
// at zero, and persists.
func (s *Store) Decrement(dir string) error {
	now := timeNow()
	err := s.engine.Update(func(tx *bolt.Tx) error {
		b, bucketErr := tx.CreateBucketIfNotExists([]byte(bucketQuotas))
		if bucketErr != nil {
			return bucketErr
		}
		current, loadErr := loadOrCreate(b, dir, now)
		if loadErr != nil {
			return loadErr
		}
		if current.CurrentCount > 0 {
			current.CurrentCount--
		}
		current.LastUpdated = now
		data, marshalErr := json.Marshal(current)
		if marshalErr != nil {
			return marshalErr
		}
		return b.Put([]byte(dir), data)
	})
	if err != nil {
		return fmt.Errorf("quota: decrement %s: %w", dir, err)
	}
	return nil
}

// SetLimit sets max_count for dir; enabled is derived as n > 0.
func (s *Store) SetLimit(dir string, n int64) error {
	now := timeNow()
	err := s.engine.Update(func(tx *bolt.Tx) error {
		b, bucketErr := tx.CreateBucketIfNotExists([]byte(bucketQuotas))
		if bucketErr != nil {
			return bucketErr
		}
		current, loadErr := loadOrCreate(b, dir, now)
		if loadErr != nil {
			return loadErr
		}
		current.MaxCount = n
		current.Enabled = n > 0
		current.LastUpdated = now
		data, marshalErr := json.Marshal(current)
		if marshalErr != nil {
			return marshalErr
		}
		return b.Put([]byte(dir), data)
	})
	if err != nil {
		return fmt.Errorf("quota: set_limit %s: %w", dir, err)
	}
	return nil
}

// Seed directly writes a quota record with current_count = count,
// max_count = 0, enabled = true, overwriting whatever was there. Used
// only by the corruption-recovery rebuild, which reconstructs counts
// from a scan of the physical tree rather than from increments (spec
// §4.8 step 5, "Quota rebuild").
func (s *Store) Seed(dir string, count int64) error {
	now := timeNow()
	rec := &types.QuotaRecord{
		DirectoryPath: dir,
		CurrentCount:  count,
		MaxCount:      0,
		Enabled:       true,
		CreatedAt:     now,
		LastUpdated:   now,
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("quota: encode seed %s: %w", dir, err)
	}
	if err := s.engine.Put(bucketQuotas, dir, data); err != nil {
		return fmt.Errorf("quota: seed %s: %w", dir, err)
	}
	return nil
}

func loadOrCreate(b *bolt.Bucket, dir string, now time.Time) (*types.QuotaRecord, error) {
	data := b.Get([]byte(dir))
	if data == nil {
		return &types.QuotaRecord{
			DirectoryPath: dir,
			CreatedAt:     now,
			LastUpdated:   now,
		}, nil
	}
	var rec types.QuotaRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Count returns the number of quota records currently tracked,
// including the tenant-wide record.
func (s *Store) Count() (int, error) {
	n := 0
	err := s.engine.ForEach(bucketQuotas, func(string, []byte) error {
		n++
		return nil
	})
	return n, err
}

var timeNow = time.Now
