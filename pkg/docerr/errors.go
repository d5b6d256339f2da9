// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

// Package docerr defines the error classes surfaced by the document store.
//
// Every failure that a caller is expected to branch on belongs to exactly one
// class. Deadlock and InternalIndexConflict are retryable: the store never
// retries them itself, a calling layer decides whether and how often to try
// again. Fatal means the store has stopped accepting writes.
package docerr

import (
	"github.com/zeebo/errs"
)

var (
	// KindNotRegistered is returned when an object names a kind that has no schema.
	KindNotRegistered = errs.Class("kind not registered")
	// RevisionMismatch is returned when the supplied _rev differs from the stored one.
	RevisionMismatch = errs.Class("revision mismatch")
	// RevNotSpecified is returned when a live object is replaced without a _rev.
	RevNotSpecified = errs.Class("revision not specified")
	// ObjectNotFound is returned when a referenced object or record does not exist.
	ObjectNotFound = errs.Class("object not found")
	// InvalidEncoding is returned for malformed ids and shard designators.
	InvalidEncoding = errs.Class("invalid encoding")
	// InvalidObject is returned when an object or kind definition is malformed.
	InvalidObject = errs.Class("invalid object")
	// QuotaExceeded is returned when a commit would push an owner past its limit.
	QuotaExceeded = errs.Class("quota exceeded")
	// PermissionDenied is returned when a kind rule rejects the caller.
	PermissionDenied = errs.Class("permission denied")
	// Deadlock is returned when the storage engine aborted a conflicting transaction.
	Deadlock = errs.Class("deadlock")
	// InternalIndexConflict is returned when an index entry expected on delete is missing.
	InternalIndexConflict = errs.Class("internal index conflict")
	// MaxRetriesExceeded wraps the last retryable error after the retry bound is hit.
	MaxRetriesExceeded = errs.Class("max retries exceeded")
	// Fatal is returned once the store has hit an unrecoverable storage error.
	Fatal = errs.Class("fatal")
	// KindHasSubKinds is returned when deleting a kind that other kinds extend.
	KindHasSubKinds = errs.Class("kind has sub kinds")
	// NotReady is returned when a component is used before it is initialized.
	NotReady = errs.Class("not ready")
)

// IsRetryable reports whether err may succeed when the operation is repeated.
// An error escalated to MaxRetriesExceeded is final even though it still
// carries the retryable cause.
func IsRetryable(err error) bool {
	if MaxRetriesExceeded.Has(err) {
		return false
	}
	return Deadlock.Has(err) || InternalIndexConflict.Has(err)
}

// IsFatal reports whether err means the store must stop accepting writes.
func IsFatal(err error) bool {
	return Fatal.Has(err)
}
