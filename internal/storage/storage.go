// Package storage defines the persistence interface for book fragments.
package storage

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/hyperjump/alexandria/internal/models"
)

var (
	// ErrNotFound is returned when a lookup by identifier matches no row.
	ErrNotFound = errors.New("fragment not found")

	// ErrConflict is returned when a write transaction could not take the
	// database write lock after all retries.
	ErrConflict = errors.New("write transaction conflict")
)

// Storage is the fragment table plus its transaction boundary.
type Storage interface {
	// WithTx runs fn inside a single write transaction. The transaction
	// commits when fn returns nil and rolls back otherwise.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// Reads outside of a transaction
	GetFragment(ctx context.Context, id uuid.UUID) (*models.Fragment, error)
	ListFragments(ctx context.Context, book uuid.UUID) ([]*models.Fragment, error)

	// Stats
	CountFragments(ctx context.Context) (int64, error)
	CountBooks(ctx context.Context) (int64, error)

	Path() string
	Close() error
}

// Tx is the set of fragment operations available inside a write transaction.
type Tx interface {
	GetFragment(ctx context.Context, id uuid.UUID) (*models.Fragment, error)
	ListFragments(ctx context.Context, book uuid.UUID) ([]*models.Fragment, error)
	CountFragments(ctx context.Context, book uuid.UUID) (int64, error)

	// MaxRank returns the highest rank in book; ok is false for an empty book.
	MaxRank(ctx context.Context, book uuid.UUID) (rank int32, ok bool, err error)
	// RankExists reports whether a fragment other than exclude holds rank in book.
	RankExists(ctx context.Context, book uuid.UUID, rank int32, exclude uuid.UUID) (bool, error)
	// RankBounds summarizes the ranks of book in [from, to); a nil to is unbounded.
	RankBounds(ctx context.Context, book uuid.UUID, from int32, to *int32) (RankBounds, error)
	// DuplicateRanks lists every rank held by more than one fragment of book.
	DuplicateRanks(ctx context.Context, book uuid.UUID) ([]int32, error)

	// ShiftRanks adds delta to every rank of book in [from, to); a nil to is
	// unbounded. It returns the number of rows changed.
	ShiftRanks(ctx context.Context, book uuid.UUID, from int32, to *int32, delta int32) (int64, error)

	InsertFragment(ctx context.Context, f *models.Fragment) (int64, error)
	UpdateFragment(ctx context.Context, f *models.Fragment) (int64, error)
	SetRank(ctx context.Context, id uuid.UUID, rank int32) (int64, error)
	DeleteFragment(ctx context.Context, id uuid.UUID) (int64, error)
}

// RankBounds describes the ranks found in a range. Min and Max are zero when
// Count is zero.
type RankBounds struct {
	Count int64
	Min   int64
	Max   int64
}
