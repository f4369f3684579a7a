package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hyperjump/alexandria/internal/models"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const fragmentColumns = `id, content, oneshot_sound_source, bg_sound_type, bg_sound_source,
	img_type, img_source, book, chapter, rank, created_at, updated_at`

type sqliteTx struct {
	q querier
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFragment(row rowScanner) (*models.Fragment, error) {
	var f models.Fragment
	var oneShot, bgSource, imgSource sql.NullString
	err := row.Scan(&f.ID, &f.Content, &oneShot, &f.BgSoundType, &bgSource,
		&f.ImgType, &imgSource, &f.Book, &f.Chapter, &f.Rank, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		return nil, err
	}
	f.OneShotSoundSource = nullableString(oneShot)
	f.BgSoundSource = nullableString(bgSource)
	f.ImgSource = nullableString(imgSource)
	return &f, nil
}

func nullableString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func getFragment(ctx context.Context, q querier, id uuid.UUID) (*models.Fragment, error) {
	row := q.QueryRowContext(ctx, `SELECT `+fragmentColumns+` FROM fragments WHERE id = ?`, id)
	f, err := scanFragment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return f, nil
}

func listFragments(ctx context.Context, q querier, book uuid.UUID) ([]*models.Fragment, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+fragmentColumns+` FROM fragments WHERE book = ? ORDER BY rank`, book)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fragments []*models.Fragment
	for rows.Next() {
		f, err := scanFragment(rows)
		if err != nil {
			return nil, err
		}
		fragments = append(fragments, f)
	}
	return fragments, rows.Err()
}

func (t *sqliteTx) GetFragment(ctx context.Context, id uuid.UUID) (*models.Fragment, error) {
	return getFragment(ctx, t.q, id)
}

func (t *sqliteTx) ListFragments(ctx context.Context, book uuid.UUID) ([]*models.Fragment, error) {
	return listFragments(ctx, t.q, book)
}

func (t *sqliteTx) CountFragments(ctx context.Context, book uuid.UUID) (int64, error) {
	var count int64
	err := t.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM fragments WHERE book = ?`, book).Scan(&count)
	return count, err
}

func (t *sqliteTx) MaxRank(ctx context.Context, book uuid.UUID) (int32, bool, error) {
	var top sql.NullInt32
	if err := t.q.QueryRowContext(ctx, `SELECT MAX(rank) FROM fragments WHERE book = ?`, book).Scan(&top); err != nil {
		return 0, false, err
	}
	return top.Int32, top.Valid, nil
}

func (t *sqliteTx) RankExists(ctx context.Context, book uuid.UUID, rank int32, exclude uuid.UUID) (bool, error) {
	var exists bool
	err := t.q.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM fragments WHERE book = ? AND rank = ? AND id <> ?)`,
		book, rank, exclude,
	).Scan(&exists)
	return exists, err
}

func (t *sqliteTx) RankBounds(ctx context.Context, book uuid.UUID, from int32, to *int32) (RankBounds, error) {
	query := `SELECT COUNT(*), MIN(rank), MAX(rank) FROM fragments WHERE book = ? AND rank >= ?`
	args := []any{book, from}
	if to != nil {
		query += ` AND rank < ?`
		args = append(args, *to)
	}
	var b RankBounds
	var lo, hi sql.NullInt64
	if err := t.q.QueryRowContext(ctx, query, args...).Scan(&b.Count, &lo, &hi); err != nil {
		return RankBounds{}, err
	}
	b.Min, b.Max = lo.Int64, hi.Int64
	return b, nil
}

func (t *sqliteTx) DuplicateRanks(ctx context.Context, book uuid.UUID) ([]int32, error) {
	rows, err := t.q.QueryContext(ctx,
		`SELECT rank FROM fragments WHERE book = ? GROUP BY rank HAVING COUNT(*) > 1 ORDER BY rank`, book)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ranks []int32
	for rows.Next() {
		var r int32
		if err := rows.Scan(&r); err != nil {
			return nil, err
		}
		ranks = append(ranks, r)
	}
	return ranks, rows.Err()
}

func (t *sqliteTx) ShiftRanks(ctx context.Context, book uuid.UUID, from int32, to *int32, delta int32) (int64, error) {
	query := `UPDATE fragments SET rank = rank + ?, updated_at = ? WHERE book = ? AND rank >= ?`
	args := []any{delta, time.Now(), book, from}
	if to != nil {
		query += ` AND rank < ?`
		args = append(args, *to)
	}
	result, err := t.q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (t *sqliteTx) InsertFragment(ctx context.Context, f *models.Fragment) (int64, error) {
	now := time.Now()
	f.CreatedAt = now
	f.UpdatedAt = now
	result, err := t.q.ExecContext(ctx,
		`INSERT INTO fragments (`+fragmentColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.ID, f.Content, f.OneShotSoundSource, f.BgSoundType, f.BgSoundSource,
		f.ImgType, f.ImgSource, f.Book, f.Chapter, f.Rank, f.CreatedAt, f.UpdatedAt,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (t *sqliteTx) UpdateFragment(ctx context.Context, f *models.Fragment) (int64, error) {
	f.UpdatedAt = time.Now()
	result, err := t.q.ExecContext(ctx,
		`UPDATE fragments SET content = ?, oneshot_sound_source = ?, bg_sound_type = ?,
		 bg_sound_source = ?, img_type = ?, img_source = ?, book = ?, chapter = ?, rank = ?,
		 updated_at = ?
		 WHERE id = ?`,
		f.Content, f.OneShotSoundSource, f.BgSoundType, f.BgSoundSource, f.ImgType,
		f.ImgSource, f.Book, f.Chapter, f.Rank, f.UpdatedAt, f.ID,
	)
	if err != nil {
		return 0, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, fmt.Errorf("%w: %s", ErrNotFound, f.ID)
	}
	return n, nil
}

func (t *sqliteTx) SetRank(ctx context.Context, id uuid.UUID, rank int32) (int64, error) {
	result, err := t.q.ExecContext(ctx,
		`UPDATE fragments SET rank = ?, updated_at = ? WHERE id = ?`, rank, time.Now(), id)
	if err != nil {
		return 0, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return n, nil
}

func (t *sqliteTx) DeleteFragment(ctx context.Context, id uuid.UUID) (int64, error) {
	result, err := t.q.ExecContext(ctx, `DELETE FROM fragments WHERE id = ?`, id)
	if err != nil {
		return 0, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return n, nil
}
