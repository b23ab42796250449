package storage

import (
	"errors"
	"time"

	bolt "go.etcd.io/bbolt"
)

// Config holds the embedded-engine options the core passes through
// untranslated. bbolt has no direct
// equivalent of a WAL checkpoint interval or a journal toggle - it is
// always a single copy-on-write file - so JournalOn and CheckpointNTx
// are accepted for configuration compatibility and otherwise ignored.
type Config struct {
	Timeout        time.Duration
	JournalOn      bool
	CheckpointNTx  int
	ConnectionMode string
}

// FailureKind classifies an error returned while opening or touching a
// store, distinguishing page-level damage from a process simply
// holding the file lock.
type FailureKind int

const (
	FailureNone FailureKind = iota
	FailureCorruption
	FailureLockContention
)

// Classify inspects err for bbolt's recoverable-corruption signatures
// (ErrInvalid, ErrVersionMismatch, ErrChecksum) versus the transient
// ErrTimeout raised when Config.Timeout elapses waiting for the file
// lock. Any other error is reported as FailureNone - the caller treats
// it as an ordinary I/O failure, not a rebuild trigger.
func Classify(err error) FailureKind {
	if err == nil {
		return FailureNone
	}
	switch {
	case errors.Is(err, bolt.ErrInvalid), errors.Is(err, bolt.ErrVersionMismatch), errors.Is(err, bolt.ErrChecksum):
		return FailureCorruption
	case errors.Is(err, bolt.ErrTimeout):
		return FailureLockContention
	default:
		return FailureNone
	}
}
