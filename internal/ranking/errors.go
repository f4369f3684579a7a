package ranking

import (
	"errors"

	"github.com/hyperjump/alexandria/internal/storage"
)

var (
	// ErrNotFound is returned when a fragment identifier matches no row.
	ErrNotFound = storage.ErrNotFound

	// ErrInvariantRisk is returned when a write could not be committed without
	// risking duplicate ranks in a book: the write lock could not be taken, or
	// the book held duplicate ranks at commit time. The transaction has been
	// rolled back and the call may be retried.
	ErrInvariantRisk = errors.New("rank invariant at risk")

	// ErrRankOverflow is returned when a shift would move a rank outside the
	// signed 32-bit range.
	ErrRankOverflow = errors.New("rank out of range")

	// ErrInvalidFragment is returned for fragments missing an id or a book.
	ErrInvalidFragment = errors.New("invalid fragment")
)

// IsRetryable reports whether err is a failure the caller may safely retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrInvariantRisk)
}
