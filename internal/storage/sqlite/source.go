package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"statsidx.io/statsidx/internal/domain"
	apperrors "statsidx.io/statsidx/internal/pkg/errors"
	"statsidx.io/statsidx/internal/storage"
)

// inChunk bounds the number of bound parameters per IN list.
const inChunk = 500

const sourceColumns = `entity_id, natural_id, view_count, purchase_count, revenue_e4, created_at, updated_at`

// SourceStore implements storage.SourceStore.
type SourceStore struct {
	db    *sql.DB
	table string
}

var _ storage.SourceStore = (*SourceStore)(nil)

// Upsert implements storage.SourceStore.
func (s *SourceStore) Upsert(ctx context.Context, rows []domain.SourceRow) error {
	if len(rows) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.Transient("begin source upsert", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		`INSERT INTO %s (natural_id, view_count, purchase_count, revenue_e4, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(natural_id) DO UPDATE SET
		   view_count=excluded.view_count,
		   purchase_count=excluded.purchase_count,
		   revenue_e4=excluded.revenue_e4,
		   updated_at=excluded.updated_at`, quote(s.table)))
	if err != nil {
		return apperrors.Transient("prepare source upsert", err)
	}
	defer stmt.Close()

	now := toNanos(time.Now())
	for _, r := range rows {
		created := now
		if !r.CreatedAt.IsZero() {
			created = toNanos(r.CreatedAt)
		}
		revenue, err := toScaled(r.Counters.Revenue, scaleE4)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx,
			r.NaturalID,
			r.Counters.ViewCount,
			r.Counters.PurchaseCount,
			revenue,
			created,
			now,
		); err != nil {
			return apperrors.Transient("upsert source row", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return apperrors.Transient("commit source upsert", err)
	}
	return nil
}

// Get implements storage.SourceStore.
func (s *SourceStore) Get(ctx context.Context, naturalID int64) (domain.SourceRow, error) {
	row := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT %s FROM %s WHERE natural_id = ?`, sourceColumns, quote(s.table)),
		naturalID)
	r, err := scanSource(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.SourceRow{}, storage.RowNotFound(s.table, naturalID)
	}
	if err != nil {
		return domain.SourceRow{}, apperrors.Transient("get source row", err)
	}
	return r, nil
}

// GetMany implements storage.SourceStore.
func (s *SourceStore) GetMany(ctx context.Context, naturalIDs []int64) ([]domain.SourceRow, error) {
	ids := storage.UniqueIDs(naturalIDs)
	out := make([]domain.SourceRow, 0, len(ids))
	for start := 0; start < len(ids); start += inChunk {
		end := min(start+inChunk, len(ids))
		chunk := ids[start:end]

		query := fmt.Sprintf(`SELECT %s FROM %s WHERE natural_id IN (%s) ORDER BY natural_id`,
			sourceColumns, quote(s.table), placeholders(len(chunk)))
		rows, err := s.db.QueryContext(ctx, query, int64Args(chunk)...)
		if err != nil {
			return nil, apperrors.Transient("get source rows", err)
		}
		got, err := collectSource(rows)
		if err != nil {
			return nil, apperrors.Transient("scan source rows", err)
		}
		out = append(out, got...)
	}
	return out, nil
}

// ForEachBatch implements storage.SourceStore.
func (s *SourceStore) ForEachBatch(ctx context.Context, size int, fn func([]domain.SourceRow) error) error {
	if size <= 0 {
		size = 1000
	}
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE natural_id > ? ORDER BY natural_id LIMIT ?`,
		sourceColumns, quote(s.table))

	var after int64 = math.MinInt64
	for {
		rows, err := s.db.QueryContext(ctx, query, after, size)
		if err != nil {
			return apperrors.Transient("scan source batch", err)
		}
		batch, err := collectSource(rows)
		if err != nil {
			return apperrors.Transient("scan source batch", err)
		}
		if len(batch) == 0 {
			return nil
		}
		// rows are closed before fn runs; fn may write through the same connection.
		if err := fn(batch); err != nil {
			return err
		}
		if len(batch) < size {
			return nil
		}
		after = batch[len(batch)-1].NaturalID
	}
}

// Increment implements storage.SourceStore.
func (s *SourceStore) Increment(ctx context.Context, naturalID int64, d domain.Deltas) (domain.SourceRow, error) {
	revenue, err := toScaled(d.Revenue, scaleE4)
	if err != nil {
		return domain.SourceRow{}, err
	}
	row := s.db.QueryRowContext(ctx, fmt.Sprintf(
		`UPDATE %s SET
		   view_count = view_count + ?,
		   purchase_count = purchase_count + ?,
		   revenue_e4 = revenue_e4 + ?,
		   updated_at = ?
		 WHERE natural_id = ?
		 RETURNING %s`, quote(s.table), sourceColumns),
		d.ViewCount, d.PurchaseCount, revenue, toNanos(time.Now()), naturalID)
	r, err := scanSource(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.SourceRow{}, storage.RowNotFound(s.table, naturalID)
	}
	if err != nil {
		return domain.SourceRow{}, apperrors.Transient("increment source row", err)
	}
	return r, nil
}

// Count implements storage.SourceStore.
func (s *SourceStore) Count(ctx context.Context) (int64, error) {
	return countRows(ctx, s.db, s.table)
}

// Truncate implements storage.SourceStore. Entity ids are not reused afterwards.
func (s *SourceStore) Truncate(ctx context.Context) error {
	return truncate(ctx, s.db, s.table)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSource(sc rowScanner) (domain.SourceRow, error) {
	var (
		r                   domain.SourceRow
		revenue             int64
		createdAt, updateAt int64
	)
	if err := sc.Scan(&r.EntityID, &r.NaturalID, &r.Counters.ViewCount, &r.Counters.PurchaseCount,
		&revenue, &createdAt, &updateAt); err != nil {
		return domain.SourceRow{}, err
	}
	r.Counters.Revenue = fromScaled(revenue, scaleE4)
	r.CreatedAt = fromNanos(createdAt)
	r.UpdatedAt = fromNanos(updateAt)
	return r, nil
}

func collectSource(rows *sql.Rows) ([]domain.SourceRow, error) {
	defer rows.Close()
	var out []domain.SourceRow
	for rows.Next() {
		r, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func countRows(ctx context.Context, db *sql.DB, table string) (int64, error) {
	var n int64
	if err := db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, quote(table))).Scan(&n); err != nil {
		return 0, apperrors.Transient("count "+table, err)
	}
	return n, nil
}

func truncate(ctx context.Context, db *sql.DB, table string) error {
	if _, err := db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s`, quote(table))); err != nil {
		return apperrors.Transient("truncate "+table, err)
	}
	return nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func int64Args(ids []int64) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}
