package loro

import "github.com/loro-dev/loro-go/internal/errs"

// The error taxonomy of spec.md §7, re-exported so callers can match
// them with errors.Is(err, loro.ErrOutOfBound) without importing an
// internal package.
var (
	// ErrOutOfBound: index exceeds container length.
	ErrOutOfBound = errs.ErrOutOfBound
	// ErrUsedOpID: attempt to insert a local op whose ID is already
	// present.
	ErrUsedOpID = errs.ErrUsedOpID
	// ErrDecode: malformed blob or JSON.
	ErrDecode = errs.ErrDecode
	// ErrNotFound: lookup by container id/tree node that was never
	// registered.
	ErrNotFound = errs.ErrNotFound
	// ErrLocked: a mutating call collided with an already-open
	// transaction.
	ErrLocked = errs.ErrLocked
	// ErrNoActiveTxn: Commit/Abort called on a transaction that already
	// finished.
	ErrNoActiveTxn = errs.ErrNoActiveTxn
)
