package storage

import (
	"fmt"
	"os"

	bolt "go.etcd.io/bbolt"
)

// Engine is a single-file bbolt database with bucket-scoped put/get/
// delete/scan and an in-place rebuild. Metadata and quota stores are both thin wrappers over
// an Engine; neither package touches *bolt.DB directly.
type Engine struct {
	db   *bolt.DB
	path string
	cfg  Config
}

// Open opens (creating if absent) the bbolt file at path. cfg.Timeout
// bounds how long Open waits for another process's file lock before
// returning bolt.ErrTimeout (classified as FailureLockContention, not
// corruption).
func Open(path string, cfg Config) (*Engine, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: cfg.Timeout})
	if err != nil {
		return nil, err
	}
	return &Engine{db: db, path: path, cfg: cfg}, nil
}

func (e *Engine) Path() string { return e.path }

func (e *Engine) Close() error {
	return e.db.Close()
}

// EnsureBucket creates bucket if it does not already exist.
func (e *Engine) EnsureBucket(bucket string) error {
	return e.db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucket))
		return err
	})
}

// Update runs fn in a read-write transaction; callers needing more
// than a single put/delete (e.g. maintaining a secondary index
// alongside the primary record) use this directly.
func (e *Engine) Update(fn func(tx *bolt.Tx) error) error {
	return e.db.Update(fn)
}

// View runs fn in a read-only transaction.
func (e *Engine) View(fn func(tx *bolt.Tx) error) error {
	return e.db.View(fn)
}

// Put durably writes value under key in bucket, creating the bucket
// if absent.
func (e *Engine) Put(bucket, key string, value []byte) error {
	return e.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(bucket))
		if err != nil {
			return err
		}
		return b.Put([]byte(key), value)
	})
}

// PutAll writes every key/value pair in kvs to bucket within a single
// transaction: either all of them persist, or none do. Used where a
// batch of records must transition all-or-nothing.
func (e *Engine) PutAll(bucket string, kvs map[string][]byte) error {
	return e.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(bucket))
		if err != nil {
			return err
		}
		for k, v := range kvs {
			if err := b.Put([]byte(k), v); err != nil {
				return err
			}
		}
		return nil
	})
}

// Get reads key from bucket. ok is false if the bucket or key does
// not exist.
func (e *Engine) Get(bucket, key string) (value []byte, ok bool, err error) {
	err = e.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return nil
		}
		v := b.Get([]byte(key))
		if v == nil {
			return nil
		}
		value = make([]byte, len(v))
		copy(value, v)
		ok = true
		return nil
	})
	return value, ok, err
}

// Delete removes key from bucket. existed reports whether the key was
// present beforehand; deleting an absent key is not an error (spec
// §4.2 remove is idempotent).
func (e *Engine) Delete(bucket, key string) (existed bool, err error) {
	err = e.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return nil
		}
		if b.Get([]byte(key)) != nil {
			existed = true
		}
		return b.Delete([]byte(key))
	})
	return existed, err
}

// ForEach visits every key/value pair in bucket in key order. A
// missing bucket is treated as empty, not an error.
func (e *Engine) ForEach(bucket string, fn func(key string, value []byte) error) error {
	return e.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			return fn(string(k), v)
		})
	})
}

// Compact closes the handle, writes a defragmented copy via bbolt's
// page-walking compactor, replaces the original file, and reopens it
// - the reconciler's per-tenant store compaction step.
// Caller must hold the tenant mutex across the whole call.
func (e *Engine) Compact() (before, after int64, err error) {
	beforeInfo, err := os.Stat(e.path)
	if err != nil {
		return 0, 0, fmt.Errorf("storage: stat before compact: %w", err)
	}
	before = beforeInfo.Size()

	if err := e.db.Close(); err != nil {
		return 0, 0, fmt.Errorf("storage: close for compact: %w", err)
	}

	tmpPath := e.path + ".compact.tmp"
	if err := compactFile(e.path, tmpPath); err != nil {
		// Best effort: reopen the original so the store stays usable.
		e.db, _ = bolt.Open(e.path, 0o600, &bolt.Options{Timeout: e.cfg.Timeout})
		return before, before, fmt.Errorf("storage: compact: %w", err)
	}
	if err := os.Rename(tmpPath, e.path); err != nil {
		return before, before, fmt.Errorf("storage: replace compacted file: %w", err)
	}

	db, err := bolt.Open(e.path, 0o600, &bolt.Options{Timeout: e.cfg.Timeout})
	if err != nil {
		return before, before, fmt.Errorf("storage: reopen after compact: %w", err)
	}
	e.db = db

	afterInfo, err := os.Stat(e.path)
	if err != nil {
		return before, before, fmt.Errorf("storage: stat after compact: %w", err)
	}
	return before, afterInfo.Size(), nil
}

func compactFile(srcPath, dstPath string) error {
	src, err := bolt.Open(srcPath, 0o600, &bolt.Options{ReadOnly: true})
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer src.Close()

	dst, err := bolt.Open(dstPath, 0o600, nil)
	if err != nil {
		return fmt.Errorf("open destination: %w", err)
	}
	defer dst.Close()

	if err := bolt.Compact(dst, src, 0); err != nil {
		return fmt.Errorf("copy pages: %w", err)
	}
	return nil
}

// Rebuild closes the current handle and opens the file at the same
// path again, creating a fresh, empty store if the file has been
// backed up and deleted. The caller is responsible for the
// backup/delete; this only (re)creates the handle. pkg/recovery does
// not call it: it reopens rebuilt stores through metadata.Open and
// quota.Open.
func (e *Engine) Rebuild() error {
	if e.db != nil {
		_ = e.db.Close()
	}
	db, err := bolt.Open(e.path, 0o600, &bolt.Options{Timeout: e.cfg.Timeout})
	if err != nil {
		return fmt.Errorf("storage: reopen fresh store: %w", err)
	}
	e.db = db
	return nil
}
