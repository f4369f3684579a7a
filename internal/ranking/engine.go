// Package ranking keeps the fragments of each book ordered by a unique
// integer rank across insert, move, update and delete.
package ranking

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"

	"github.com/hyperjump/alexandria/internal/models"
	"github.com/hyperjump/alexandria/internal/storage"
)

// Engine runs rank-preserving mutations against a fragment store. It holds
// no state of its own; every mutation is one store transaction.
type Engine struct {
	store   storage.Storage
	workers int
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithProjectionWorkers sets how many goroutines List uses to project rows.
// Values below 1 are ignored.
func WithProjectionWorkers(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.workers = n
		}
	}
}

// NewEngine creates an engine on top of store.
func NewEngine(store storage.Storage, opts ...EngineOption) *Engine {
	e := &Engine{
		store:   store,
		workers: defaultProjectionWorkers(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Get returns a full fragment.
func (e *Engine) Get(ctx context.Context, id uuid.UUID) (*models.Fragment, error) {
	return e.store.GetFragment(ctx, id)
}

// Create inserts f at its requested rank. When the book already has
// fragments, every fragment at or after that rank is pushed one rank later
// first, whether or not the rank is actually taken. The rank is not clamped:
// a rank past the end of the book leaves a gap. Returns the rows inserted.
func (e *Engine) Create(ctx context.Context, f *models.Fragment) (int64, error) {
	if err := validate(f); err != nil {
		return 0, err
	}
	var inserted int64
	err := e.write(ctx, func(tx storage.Tx) error {
		count, err := tx.CountFragments(ctx, f.Book)
		if err != nil {
			return fmt.Errorf("count fragments: %w", err)
		}
		if count > 0 {
			if _, err := Shift(ctx, tx, f.Book, f.Rank); err != nil {
				return err
			}
		}
		inserted, err = tx.InsertFragment(ctx, f)
		if err != nil {
			return fmt.Errorf("insert fragment: %w", err)
		}
		return checkUnique(ctx, tx, f.Book)
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

// Move sets the rank of fragment id to to, closing the gap it leaves and
// opening one at the destination. A destination past the last rank of the
// book is clamped to that last rank. Returns the number of other fragments
// shifted.
func (e *Engine) Move(ctx context.Context, id uuid.UUID, to int32) (int64, error) {
	var shifted int64
	err := e.write(ctx, func(tx storage.Tx) error {
		moved, n, err := move(ctx, tx, id, to)
		if err != nil {
			return err
		}
		shifted = n
		return checkUnique(ctx, tx, moved.Book)
	})
	if err != nil {
		return 0, err
	}
	return shifted, nil
}

// Update persists every field of f. If another fragment of the target book
// already holds the target rank, the ordering is reconciled first: within
// the same book f is moved there, across books the destination book makes
// room as it would for a new fragment. Returns the rows updated.
func (e *Engine) Update(ctx context.Context, f *models.Fragment) (int64, error) {
	if err := validate(f); err != nil {
		return 0, err
	}
	var updated int64
	err := e.write(ctx, func(tx storage.Tx) error {
		current, err := tx.GetFragment(ctx, f.ID)
		if err != nil {
			return err
		}
		taken, err := tx.RankExists(ctx, f.Book, f.Rank, f.ID)
		if err != nil {
			return fmt.Errorf("check rank: %w", err)
		}
		if taken {
			if current.Book == f.Book {
				if _, _, err := move(ctx, tx, f.ID, f.Rank); err != nil {
					return err
				}
			} else if _, err := Shift(ctx, tx, f.Book, f.Rank); err != nil {
				return err
			}
		}
		updated, err = tx.UpdateFragment(ctx, f)
		if err != nil {
			return fmt.Errorf("update fragment: %w", err)
		}
		return checkUnique(ctx, tx, f.Book)
	})
	if err != nil {
		return 0, err
	}
	return updated, nil
}

// Delete removes a fragment. Remaining ranks are left as they are.
func (e *Engine) Delete(ctx context.Context, id uuid.UUID) error {
	return e.write(ctx, func(tx storage.Tx) error {
		_, err := tx.DeleteFragment(ctx, id)
		return err
	})
}

// move is the transaction body shared by Move and Update. It returns the
// moved fragment with its new rank and the number of fragments shifted.
func move(ctx context.Context, tx storage.Tx, id uuid.UUID, to int32) (*models.Fragment, int64, error) {
	f, err := tx.GetFragment(ctx, id)
	if err != nil {
		return nil, 0, err
	}
	last, _, err := tx.MaxRank(ctx, f.Book)
	if err != nil {
		return nil, 0, fmt.Errorf("read last rank: %w", err)
	}
	if to > last {
		to = last
	}

	var shifted int64
	switch {
	case f.Rank < to:
		opts := []ShiftOption{By(-1)}
		if to < math.MaxInt32 {
			opts = append(opts, UpTo(to+1))
		}
		shifted, err = Shift(ctx, tx, f.Book, f.Rank+1, opts...)
	case to < f.Rank:
		shifted, err = Shift(ctx, tx, f.Book, to, UpTo(f.Rank), By(1))
	default:
		return f, 0, nil
	}
	if err != nil {
		return nil, 0, err
	}
	if _, err := tx.SetRank(ctx, f.ID, to); err != nil {
		return nil, 0, fmt.Errorf("set rank: %w", err)
	}
	f.Rank = to
	return f, shifted, nil
}

// write runs fn in one transaction and reports lock exhaustion as a
// retryable invariant risk.
func (e *Engine) write(ctx context.Context, fn func(tx storage.Tx) error) error {
	err := e.store.WithTx(ctx, fn)
	if errors.Is(err, storage.ErrConflict) {
		return fmt.Errorf("%w: %w", ErrInvariantRisk, err)
	}
	return err
}

func checkUnique(ctx context.Context, tx storage.Tx, book uuid.UUID) error {
	dups, err := tx.DuplicateRanks(ctx, book)
	if err != nil {
		return fmt.Errorf("check ranks: %w", err)
	}
	if len(dups) > 0 {
		return fmt.Errorf("%w: book %s has duplicate ranks %v", ErrInvariantRisk, book, dups)
	}
	return nil
}

func validate(f *models.Fragment) error {
	if f == nil {
		return fmt.Errorf("%w: nil fragment", ErrInvalidFragment)
	}
	if err := f.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidFragment, err)
	}
	f.Normalize()
	return nil
}
