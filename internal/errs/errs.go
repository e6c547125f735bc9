// Package errs holds the sentinel errors of spec.md §7's error taxonomy,
// shared across internal packages and re-exported by the root package so
// callers can match them with errors.Is.
package errs

import "errors"

var (
	// ErrOutOfBound: index exceeds container length.
	ErrOutOfBound = errors.New("loro: index out of bound")
	// ErrUsedOpID: attempt to insert a local op whose ID is already
	// present (local peer-id collision or double-apply).
	ErrUsedOpID = errors.New("loro: op id already used")
	// ErrDecode: malformed blob or JSON, or a decoded batch with a
	// clearly-broken dep list.
	ErrDecode = errors.New("loro: decode error")
	// ErrNotFound: lookup by container id for a container that has
	// never been registered.
	ErrNotFound = errors.New("loro: not found")
	// ErrLocked: a second transaction begun while one is live.
	ErrLocked = errors.New("loro: concurrent transaction")
	// ErrNoActiveTxn: commit/abort called with no open transaction.
	ErrNoActiveTxn = errors.New("loro: no active transaction")
)
