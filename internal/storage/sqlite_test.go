package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	"github.com/hyperjump/alexandria/internal/models"
)

func newTestStorage(t *testing.T) *SQLiteStorage {
	t.Helper()
	store, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStorage() failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func newFragment(book uuid.UUID, rank int32) *models.Fragment {
	return &models.Fragment{
		ID:          uuid.New(),
		Content:     fmt.Sprintf("fragment at %d", rank),
		BgSoundType: models.DefaultMediaType,
		ImgType:     models.DefaultMediaType,
		Book:        book,
		Rank:        rank,
	}
}

func insertAll(t *testing.T, store *SQLiteStorage, fragments ...*models.Fragment) {
	t.Helper()
	err := store.WithTx(context.Background(), func(tx Tx) error {
		for _, f := range fragments {
			if _, err := tx.InsertFragment(context.Background(), f); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("insert failed: %v", err)
	}
}

func ranksOf(t *testing.T, store *SQLiteStorage, book uuid.UUID) []int32 {
	t.Helper()
	list, err := store.ListFragments(context.Background(), book)
	if err != nil {
		t.Fatal(err)
	}
	ranks := make([]int32, 0, len(list))
	for _, f := range list {
		ranks = append(ranks, f.Rank)
	}
	return ranks
}

func TestNewSQLiteStorage_CreatesDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "test.db")
	store, err := NewSQLiteStorage(path)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	if _, err := os.Stat(path); err != nil {
		t.Errorf("database file was not created: %v", err)
	}
	if store.Path() != path {
		t.Errorf("Path() = %q, want %q", store.Path(), path)
	}

	var version int
	if err := store.db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		t.Fatal(err)
	}
	if version != currentSchemaVersion {
		t.Errorf("user_version = %d, want %d", version, currentSchemaVersion)
	}
}

func TestNewSQLiteStorage_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	book := uuid.New()
	for i := 0; i < 3; i++ {
		store, err := NewSQLiteStorage(path)
		if err != nil {
			t.Fatalf("open %d failed: %v", i, err)
		}
		insertAll(t, store, newFragment(book, int32(i)))
		_ = store.Close()
	}

	store, err := NewSQLiteStorage(path)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	if got := ranksOf(t, store, book); len(got) != 3 {
		t.Errorf("expected 3 fragments after reopen, got %v", got)
	}
}

func TestNewSQLiteStorage_RejectsNewerSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	store, err := NewSQLiteStorage(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := store.db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion+1)); err != nil {
		t.Fatal(err)
	}
	_ = store.Close()

	if _, err := NewSQLiteStorage(path); err == nil {
		t.Error("expected error opening a database with a newer schema")
	}
}

func TestSQLiteStorage_CRUD(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()
	book := uuid.New()

	src := "rain.ogg"
	f := newFragment(book, 1)
	f.BgSoundSource = &src
	f.Chapter = 4
	insertAll(t, store, f)
	if f.CreatedAt.IsZero() {
		t.Error("CreatedAt should be set")
	}

	got, err := store.GetFragment(ctx, f.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Content != f.Content || got.Book != book || got.Chapter != 4 || got.Rank != 1 {
		t.Errorf("got %+v", got)
	}
	if got.BgSoundSource == nil || *got.BgSoundSource != src {
		t.Errorf("BgSoundSource = %v, want %q", got.BgSoundSource, src)
	}
	if got.ImgSource != nil {
		t.Errorf("ImgSource should be nil, got %q", *got.ImgSource)
	}

	f.Content = "updated"
	err = store.WithTx(ctx, func(tx Tx) error {
		_, err := tx.UpdateFragment(ctx, f)
		return err
	})
	if err != nil {
		t.Fatal(err)
	}
	got, _ = store.GetFragment(ctx, f.ID)
	if got.Content != "updated" {
		t.Errorf("expected updated content, got %q", got.Content)
	}

	err = store.WithTx(ctx, func(tx Tx) error {
		_, err := tx.DeleteFragment(ctx, f.ID)
		return err
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := store.GetFragment(ctx, f.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestSQLiteStorage_NotFound(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()
	missing := uuid.New()

	err := store.WithTx(ctx, func(tx Tx) error {
		if _, err := tx.DeleteFragment(ctx, missing); !errors.Is(err, ErrNotFound) {
			t.Errorf("DeleteFragment: expected ErrNotFound, got %v", err)
		}
		if _, err := tx.SetRank(ctx, missing, 3); !errors.Is(err, ErrNotFound) {
			t.Errorf("SetRank: expected ErrNotFound, got %v", err)
		}
		if _, err := tx.UpdateFragment(ctx, newFragment(uuid.New(), 1)); !errors.Is(err, ErrNotFound) {
			t.Errorf("UpdateFragment: expected ErrNotFound, got %v", err)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestSQLiteStorage_ShiftRanks(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()
	book, other := uuid.New(), uuid.New()
	insertAll(t, store,
		newFragment(book, 1), newFragment(book, 2), newFragment(book, 3), newFragment(book, 4),
		newFragment(other, 2), newFragment(other, 3),
	)

	var n int64
	to := int32(4)
	err := store.WithTx(ctx, func(tx Tx) error {
		var err error
		n, err = tx.ShiftRanks(ctx, book, 2, &to, 10)
		return err
	})
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("bounded shift touched %d rows, want 2", n)
	}
	if got := fmt.Sprint(ranksOf(t, store, book)); got != "[1 4 12 13]" {
		t.Errorf("ranks after bounded shift = %s", got)
	}
	if got := fmt.Sprint(ranksOf(t, store, other)); got != "[2 3]" {
		t.Errorf("other book must not move, got %s", got)
	}

	err = store.WithTx(ctx, func(tx Tx) error {
		var err error
		n, err = tx.ShiftRanks(ctx, book, 4, nil, -1)
		return err
	})
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Errorf("unbounded shift touched %d rows, want 3", n)
	}
	if got := fmt.Sprint(ranksOf(t, store, book)); got != "[1 3 11 12]" {
		t.Errorf("ranks after unbounded shift = %s", got)
	}
}

func TestSQLiteStorage_RankQueries(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()
	book := uuid.New()
	a, b, c := newFragment(book, 1), newFragment(book, 5), newFragment(book, 5)
	insertAll(t, store, a, b, c)

	err := store.WithTx(ctx, func(tx Tx) error {
		top, ok, err := tx.MaxRank(ctx, book)
		if err != nil || !ok || top != 5 {
			t.Errorf("MaxRank = %d, %v, %v; want 5, true, nil", top, ok, err)
		}
		if _, ok, _ := tx.MaxRank(ctx, uuid.New()); ok {
			t.Error("MaxRank of an empty book should not be ok")
		}

		exists, err := tx.RankExists(ctx, book, 1, a.ID)
		if err != nil || exists {
			t.Errorf("RankExists excluding self = %v, %v; want false", exists, err)
		}
		exists, _ = tx.RankExists(ctx, book, 1, uuid.Nil)
		if !exists {
			t.Error("RankExists should find rank 1")
		}

		dups, err := tx.DuplicateRanks(ctx, book)
		if err != nil {
			return err
		}
		if fmt.Sprint(dups) != "[5]" {
			t.Errorf("DuplicateRanks = %v, want [5]", dups)
		}

		to := int32(5)
		bounds, err := tx.RankBounds(ctx, book, 0, &to)
		if err != nil {
			return err
		}
		if bounds.Count != 1 || bounds.Min != 1 || bounds.Max != 1 {
			t.Errorf("RankBounds = %+v", bounds)
		}
		bounds, _ = tx.RankBounds(ctx, book, 100, nil)
		if bounds.Count != 0 {
			t.Errorf("RankBounds of empty range = %+v", bounds)
		}

		count, err := tx.CountFragments(ctx, book)
		if err != nil || count != 3 {
			t.Errorf("CountFragments = %d, %v", count, err)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestSQLiteStorage_WithTxRollsBack(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()
	book := uuid.New()
	boom := errors.New("boom")

	err := store.WithTx(ctx, func(tx Tx) error {
		if _, err := tx.InsertFragment(ctx, newFragment(book, 1)); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if got := ranksOf(t, store, book); len(got) != 0 {
		t.Errorf("rolled back insert should not be visible, got %v", got)
	}

	func() {
		defer func() {
			if recover() == nil {
				t.Error("expected panic to propagate")
			}
		}()
		_ = store.WithTx(ctx, func(tx Tx) error {
			_, _ = tx.InsertFragment(ctx, newFragment(book, 2))
			panic("boom")
		})
	}()
	if got := ranksOf(t, store, book); len(got) != 0 {
		t.Errorf("panicking tx should roll back, got %v", got)
	}
}

func TestSQLiteStorage_Counts(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()
	b1, b2 := uuid.New(), uuid.New()
	insertAll(t, store, newFragment(b1, 1), newFragment(b1, 2), newFragment(b2, 1))

	n, err := store.CountFragments(ctx)
	if err != nil || n != 3 {
		t.Errorf("CountFragments = %d, %v", n, err)
	}
	n, err = store.CountBooks(ctx)
	if err != nil || n != 2 {
		t.Errorf("CountBooks = %d, %v", n, err)
	}
}
