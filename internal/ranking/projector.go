package ranking

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/hyperjump/alexandria/internal/models"
)

// minParallelProjection is the row count below which projection stays on the
// calling goroutine.
const minParallelProjection = 512

func defaultProjectionWorkers() int {
	return runtime.GOMAXPROCS(0)
}

// List returns the {id, rank} summary of every fragment of book in ascending
// rank order. An unknown or empty book yields an empty list.
func (e *Engine) List(ctx context.Context, book uuid.UUID) ([]models.Simple, error) {
	fragments, err := e.store.ListFragments(ctx, book)
	if err != nil {
		return nil, fmt.Errorf("list fragments: %w", err)
	}
	return Project(fragments, e.workers), nil
}

// Project maps fragments to their {id, rank} summaries using up to workers
// goroutines, then sorts the result by rank. Equal ranks keep their input order.
func Project(fragments []*models.Fragment, workers int) []models.Simple {
	out := make([]models.Simple, len(fragments))
	if len(fragments) < minParallelProjection || workers <= 1 {
		projectRange(fragments, out, 0, len(fragments))
	} else {
		chunk := (len(fragments) + workers - 1) / workers
		var wg sync.WaitGroup
		for start := 0; start < len(fragments); start += chunk {
			end := start + chunk
			if end > len(fragments) {
				end = len(fragments)
			}
			wg.Add(1)
			go func(start, end int) {
				defer wg.Done()
				projectRange(fragments, out, start, end)
			}(start, end)
		}
		wg.Wait()
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Rank < out[j].Rank
	})
	return out
}

func projectRange(fragments []*models.Fragment, out []models.Simple, start, end int) {
	for i := start; i < end; i++ {
		out[i] = models.Simple{ID: fragments[i].ID, Rank: fragments[i].Rank}
	}
}
