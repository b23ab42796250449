// Package ferr defines the file queue store's error taxonomy as tagged
// outcomes rather than exceptions-for-control-flow: every error kind is
// a distinct, inspectable value a caller can switch on, never a bare
// string.
package ferr

import (
	"errors"
	"fmt"
)

// Kind is one entry of the error taxonomy callers switch on.
type Kind string

const (
	TenantDisabled           Kind = "tenant_disabled"
	TenantNotFound           Kind = "tenant_not_found"
	TenantQuotaExceeded      Kind = "tenant_quota_exceeded"
	DirectoryQuotaExceeded   Kind = "directory_quota_exceeded"
	StorageVolumeUnavailable Kind = "storage_volume_unavailable"
	InsufficientStorage      Kind = "insufficient_storage"
	NotFound                 Kind = "not_found"
	Unauthorized             Kind = "unauthorized"
	AlreadyProcessing        Kind = "already_processing"
	NoItemsAvailable         Kind = "no_items_available"
	CorruptionRecoverable    Kind = "corruption_recoverable"
	IO                       Kind = "io_failure"
)

// Error carries a Kind plus whatever extra fields a caller needs to act
// on it (e.g. Current/Max for quota errors, ItemID for already-processing).
type Error struct {
	Kind    Kind
	Message string
	Current int64
	Max     int64
	ItemID  string
	Err     error
}

func (e *Error) Error() string {
	if e.Message != "" {
		if e.Err != nil {
			return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
		}
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ferr.New(Kind, "")) match on Kind alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// New constructs a bare Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap constructs an Error of the given kind around an underlying cause.
func Wrap(kind Kind, err error, message string) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// Quota builds a quota-exceeded error carrying current/max for the caller.
func Quota(kind Kind, current, max int64) *Error {
	return &Error{Kind: kind, Current: current, Max: max}
}

// Processing builds an already-processing error carrying the item id.
func Processing(itemID string) *Error {
	return &Error{Kind: AlreadyProcessing, ItemID: itemID}
}

// Of reports the Kind of err, walking the unwrap chain, and whether one
// was found at all.
func Of(err error) (Kind, bool) {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind, true
	}
	return "", false
}

// Is reports whether err (or something it wraps) is a *Error of kind k.
func Is(err error, k Kind) bool {
	kind, ok := Of(err)
	return ok && kind == k
}
