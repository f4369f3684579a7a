package ranking

import (
	"context"
	"fmt"
	"math"

	"github.com/google/uuid"

	"github.com/hyperjump/alexandria/internal/storage"
)

type shiftRange struct {
	to    *int32
	delta int32
}

// ShiftOption narrows or changes a shift.
type ShiftOption func(*shiftRange)

// UpTo sets the exclusive upper bound of the shifted range. Without it the
// range is unbounded above.
func UpTo(to int32) ShiftOption {
	return func(r *shiftRange) { r.to = &to }
}

// By sets the offset added to each rank. The default is +1.
func By(delta int32) ShiftOption {
	return func(r *shiftRange) { r.delta = delta }
}

// Shift adds an offset to the rank of every fragment of book whose rank lies
// in [from, to) and returns the number of fragments changed.
//
// Shift knows nothing about the fragment being inserted or moved. It must run
// inside the caller's transaction; a failed shift leaves rollback to the caller.
func Shift(ctx context.Context, tx storage.Tx, book uuid.UUID, from int32, opts ...ShiftOption) (int64, error) {
	r := shiftRange{delta: 1}
	for _, opt := range opts {
		opt(&r)
	}
	if r.to != nil && *r.to <= from {
		return 0, nil
	}

	bounds, err := tx.RankBounds(ctx, book, from, r.to)
	if err != nil {
		return 0, fmt.Errorf("read rank bounds: %w", err)
	}
	if bounds.Count == 0 {
		return 0, nil
	}
	if bounds.Max+int64(r.delta) > math.MaxInt32 || bounds.Min+int64(r.delta) < math.MinInt32 {
		return 0, fmt.Errorf("%w: shifting ranks %d..%d of book %s by %d",
			ErrRankOverflow, bounds.Min, bounds.Max, book, r.delta)
	}

	n, err := tx.ShiftRanks(ctx, book, from, r.to, r.delta)
	if err != nil {
		return 0, fmt.Errorf("shift ranks: %w", err)
	}
	return n, nil
}
