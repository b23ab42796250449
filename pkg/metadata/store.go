package metadata

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cuemby/filequeue/pkg/storage"
	"github.com/cuemby/filequeue/pkg/types"
)

const bucketItems = "items"

// Store is one tenant's durable item-record map plus its active
// cache. Construct with Open, then call Hydrate once before serving
// traffic.
type Store struct {
	engine *storage.Engine

	cacheMu  sync.RWMutex
	cache    map[string]*types.Item
	hydrated bool
}

// Open opens (creating if absent) the bbolt file at path as a
// metadata store. It does not hydrate the cache; call Hydrate.
func Open(path string, cfg storage.Config) (*Store, error) {
	engine, err := storage.Open(path, cfg)
	if err != nil {
		return nil, err
	}
	if err := engine.EnsureBucket(bucketItems); err != nil {
		_ = engine.Close()
		return nil, err
	}
	return &Store{engine: engine, cache: make(map[string]*types.Item)}, nil
}

// Close closes the underlying engine.
func (s *Store) Close() error {
	return s.engine.Close()
}

// Engine exposes the underlying engine for recovery and compaction.
func (s *Store) Engine() *storage.Engine { return s.engine }

// Hydrate loads every record whose status is non-terminal (pending,
// processing, failed, permanently_failed) into the active cache.
// Processing records are left as-is; the reconciler's timeout pass
// resets stale ones.
func (s *Store) Hydrate() error {
	cache := make(map[string]*types.Item)
	err := s.engine.ForEach(bucketItems, func(key string, value []byte) error {
		var item types.Item
		if err := json.Unmarshal(value, &item); err != nil {
			return fmt.Errorf("metadata: decode record %s: %w", key, err)
		}
		if isNonTerminal(item.Status) {
			cache[item.ItemID] = &item
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.cacheMu.Lock()
	s.cache = cache
	s.hydrated = true
	s.cacheMu.Unlock()
	return nil
}

func isNonTerminal(status types.ItemStatus) bool {
	switch status {
	case types.StatusPending, types.StatusProcessing, types.StatusFailed, types.StatusPermanentlyFailed:
		return true
	default:
		return false
	}
}

// Upsert durably writes record, then mirrors it into the cache only
// on success.
func (s *Store) Upsert(item *types.Item) error {
	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("metadata: encode record %s: %w", item.ItemID, err)
	}
	if err := s.engine.Put(bucketItems, item.ItemID, data); err != nil {
		return fmt.Errorf("metadata: persist record %s: %w", item.ItemID, err)
	}
	s.cacheMu.Lock()
	s.cache[item.ItemID] = item.Clone()
	s.cacheMu.Unlock()
	return nil
}

// Remove durably deletes item_id and evicts it from the cache.
// Idempotent: removing an absent record is not an error.
func (s *Store) Remove(itemID string) (bool, error) {
	existed, err := s.engine.Delete(bucketItems, itemID)
	if err != nil {
		return false, fmt.Errorf("metadata: delete record %s: %w", itemID, err)
	}
	s.cacheMu.Lock()
	delete(s.cache, itemID)
	s.cacheMu.Unlock()
	return existed, nil
}

// Get reads item_id from the cache. It does not fall through to the
// durable store - the cache is authoritative for non-terminal records
// after Hydrate.
func (s *Store) Get(itemID string) (*types.Item, bool) {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()
	item, ok := s.cache[itemID]
	if !ok {
		return nil, false
	}
	return item.Clone(), true
}

// ListNonTerminal returns every cached record in unspecified order.
func (s *Store) ListNonTerminal() []*types.Item {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()
	out := make([]*types.Item, 0, len(s.cache))
	for _, item := range s.cache {
		out = append(out, item.Clone())
	}
	return out
}

// ClaimNext finds the pending, eligible record with the minimum
// created_at, transitions it to processing, persists it, and updates
// the cache. Returns nil, nil if none is eligible. Caller
// must hold the tenant mutex.
func (s *Store) ClaimNext(now time.Time) (*types.Item, error) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()

	best := s.findOldestEligibleLocked(now)
	if best == nil {
		return nil, nil
	}
	claimed := claimItem(best, now)
	data, err := json.Marshal(claimed)
	if err != nil {
		return nil, fmt.Errorf("metadata: encode claimed record %s: %w", claimed.ItemID, err)
	}
	if err := s.engine.Put(bucketItems, claimed.ItemID, data); err != nil {
		return nil, fmt.Errorf("metadata: persist claim %s: %w", claimed.ItemID, err)
	}
	s.cache[claimed.ItemID] = claimed
	return claimed.Clone(), nil
}

// ClaimBatch claims up to n eligible pending records, oldest first.
// All persisted in a single transaction: either every claimed record
// durably transitions, or none does.
func (s *Store) ClaimBatch(n int, now time.Time) ([]*types.Item, error) {
	if n <= 0 {
		return nil, nil
	}
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()

	candidates := make([]*types.Item, 0, len(s.cache))
	for _, item := range s.cache {
		if item.Status == types.StatusPending && item.Eligible(now) {
			candidates = append(candidates, item)
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].CreatedAt.Before(candidates[j].CreatedAt)
	})
	if len(candidates) > n {
		candidates = candidates[:n]
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	claimed := make([]*types.Item, len(candidates))
	kvs := make(map[string][]byte, len(candidates))
	for i, c := range candidates {
		item := claimItem(c, now)
		data, err := json.Marshal(item)
		if err != nil {
			return nil, fmt.Errorf("metadata: encode claimed record %s: %w", item.ItemID, err)
		}
		claimed[i] = item
		kvs[item.ItemID] = data
	}
	if err := s.engine.PutAll(bucketItems, kvs); err != nil {
		return nil, fmt.Errorf("metadata: persist batch claim: %w", err)
	}
	result := make([]*types.Item, len(claimed))
	for i, item := range claimed {
		s.cache[item.ItemID] = item
		result[i] = item.Clone()
	}
	return result, nil
}

func (s *Store) findOldestEligibleLocked(now time.Time) *types.Item {
	var best *types.Item
	for _, item := range s.cache {
		if item.Status != types.StatusPending || !item.Eligible(now) {
			continue
		}
		if best == nil || item.CreatedAt.Before(best.CreatedAt) {
			best = item
		}
	}
	return best
}

func claimItem(item *types.Item, now time.Time) *types.Item {
	claimed := item.Clone()
	claimed.Status = types.StatusProcessing
	t := now
	claimed.ProcessingStartedAt = &t
	return claimed
}

// PurgeTerminal removes permanently_failed records whose last_failed_at
// is older than failedCutoff, and any legacy completed records (which
// should not normally persist past Upsert/Remove write-through, but a
// prior crash between the two could leave one behind) regardless of
// age. Returns the number of records removed.
func (s *Store) PurgeTerminal(failedCutoff time.Time) (int, error) {
	s.cacheMu.Lock()
	var purged []string
	for id, item := range s.cache {
		if item.Status != types.StatusPermanentlyFailed {
			continue
		}
		cutoffBasis := item.CreatedAt
		if item.LastFailedAt != nil {
			cutoffBasis = *item.LastFailedAt
		}
		if cutoffBasis.Before(failedCutoff) {
			purged = append(purged, id)
		}
	}
	s.cacheMu.Unlock()

	count := 0
	for _, id := range purged {
		if _, err := s.Remove(id); err != nil {
			return count, fmt.Errorf("metadata: purge %s: %w", id, err)
		}
		count++
	}

	var strayCompleted []string
	err := s.engine.ForEach(bucketItems, func(key string, value []byte) error {
		var item types.Item
		if err := json.Unmarshal(value, &item); err != nil {
			return fmt.Errorf("metadata: decode record %s: %w", key, err)
		}
		if item.Status == types.StatusCompleted {
			strayCompleted = append(strayCompleted, key)
		}
		return nil
	})
	if err != nil {
		return count, err
	}
	for _, id := range strayCompleted {
		if _, err := s.engine.Delete(bucketItems, id); err != nil {
			return count, fmt.Errorf("metadata: purge stray completed %s: %w", id, err)
		}
		count++
	}
	return count, nil
}

// ResetTimedOut reclaims every cached processing record whose
// processing_started_at is older than cutoff: reverted to pending with
// processing_started_at and available_at cleared. A
// per-record persistence failure rolls back only that record's
// in-memory change and continues with the rest.
func (s *Store) ResetTimedOut(cutoff time.Time) (int, error) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()

	var reset int
	for id, item := range s.cache {
		if item.Status != types.StatusProcessing || item.ProcessingStartedAt == nil {
			continue
		}
		if !item.ProcessingStartedAt.Before(cutoff) {
			continue
		}
		reverted := item.Clone()
		reverted.Status = types.StatusPending
		reverted.ProcessingStartedAt = nil
		reverted.AvailableAt = nil

		data, err := json.Marshal(reverted)
		if err != nil {
			continue
		}
		if err := s.engine.Put(bucketItems, id, data); err != nil {
			continue
		}
		s.cache[id] = reverted
		reset++
	}
	return reset, nil
}
