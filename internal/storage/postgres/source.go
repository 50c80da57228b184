package postgres

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"statsidx.io/statsidx/internal/domain"
	apperrors "statsidx.io/statsidx/internal/pkg/errors"
	"statsidx.io/statsidx/internal/storage"
)

const sourceColumns = `entity_id, natural_id, view_count, purchase_count, revenue, created_at, updated_at`

// SourceStore implements storage.SourceStore.
type SourceStore struct {
	pool  *pgxpool.Pool
	table string
}

var _ storage.SourceStore = (*SourceStore)(nil)

// Upsert implements storage.SourceStore. Rows are sent as one pgx batch.
func (s *SourceStore) Upsert(ctx context.Context, rows []domain.SourceRow) error {
	if len(rows) == 0 {
		return nil
	}
	query := fmt.Sprintf(
		`INSERT INTO %s (natural_id, view_count, purchase_count, revenue, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, COALESCE($5, now()), now())
		 ON CONFLICT (natural_id) DO UPDATE SET
		   view_count = EXCLUDED.view_count,
		   purchase_count = EXCLUDED.purchase_count,
		   revenue = EXCLUDED.revenue,
		   updated_at = now()`, ident(s.table))

	batch := &pgx.Batch{}
	for _, r := range rows {
		var created pgtype.Timestamptz
		if !r.CreatedAt.IsZero() {
			created = pgtype.Timestamptz{Time: r.CreatedAt, Valid: true}
		}
		batch.Queue(query, r.NaturalID, r.Counters.ViewCount, r.Counters.PurchaseCount,
			toNumeric(r.Counters.Revenue.Round(domain.RevenueScale)), created)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return apperrors.Transient("begin source upsert", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return apperrors.Transient("upsert source rows", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return apperrors.Transient("commit source upsert", err)
	}
	return nil
}

// Get implements storage.SourceStore.
func (s *SourceStore) Get(ctx context.Context, naturalID int64) (domain.SourceRow, error) {
	rows, _ := s.pool.Query(ctx,
		fmt.Sprintf(`SELECT %s FROM %s WHERE natural_id = $1`, sourceColumns, ident(s.table)), naturalID)
	r, err := pgx.CollectExactlyOneRow(rows, scanSource)
	if errors.Is(err, pgx.ErrNoRows) {
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
	if len(ids) == 0 {
		return nil, nil
	}
	rows, _ := s.pool.Query(ctx, fmt.Sprintf(
		`SELECT %s FROM %s WHERE natural_id = ANY($1) ORDER BY natural_id`, sourceColumns, ident(s.table)), ids)
	out, err := pgx.CollectRows(rows, scanSource)
	if err != nil {
		return nil, apperrors.Transient("get source rows", err)
	}
	return out, nil
}

// ForEachBatch implements storage.SourceStore with keyset pagination.
func (s *SourceStore) ForEachBatch(ctx context.Context, size int, fn func([]domain.SourceRow) error) error {
	if size <= 0 {
		size = 1000
	}
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE natural_id > $1 ORDER BY natural_id LIMIT $2`,
		sourceColumns, ident(s.table))

	var after int64 = math.MinInt64
	for {
		rows, _ := s.pool.Query(ctx, query, after, size)
		batch, err := pgx.CollectRows(rows, scanSource)
		if err != nil {
			return apperrors.Transient("scan source batch", err)
		}
		if len(batch) == 0 {
			return nil
		}
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
	rows, _ := s.pool.Query(ctx, fmt.Sprintf(
		`UPDATE %s SET
		   view_count = view_count + $1,
		   purchase_count = purchase_count + $2,
		   revenue = revenue + $3,
		   updated_at = now()
		 WHERE natural_id = $4
		 RETURNING %s`, ident(s.table), sourceColumns),
		d.ViewCount, d.PurchaseCount, toNumeric(d.Revenue.Round(domain.RevenueScale)), naturalID)
	r, err := pgx.CollectExactlyOneRow(rows, scanSource)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.SourceRow{}, storage.RowNotFound(s.table, naturalID)
	}
	if err != nil {
		return domain.SourceRow{}, apperrors.Transient("increment source row", err)
	}
	return r, nil
}

// Count implements storage.SourceStore.
func (s *SourceStore) Count(ctx context.Context) (int64, error) {
	return countRows(ctx, s.pool, s.table)
}

// Truncate implements storage.SourceStore. The identity sequence continues,
// so entity ids are never reused.
func (s *SourceStore) Truncate(ctx context.Context) error {
	return truncate(ctx, s.pool, s.table)
}

func scanSource(row pgx.CollectableRow) (domain.SourceRow, error) {
	var (
		r       domain.SourceRow
		revenue pgtype.Numeric
	)
	if err := row.Scan(&r.EntityID, &r.NaturalID, &r.Counters.ViewCount, &r.Counters.PurchaseCount,
		&revenue, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return domain.SourceRow{}, err
	}
	var err error
	if r.Counters.Revenue, err = fromNumeric(revenue); err != nil {
		return domain.SourceRow{}, err
	}
	r.CreatedAt = r.CreatedAt.UTC()
	r.UpdatedAt = r.UpdatedAt.UTC()
	return r, nil
}

func countRows(ctx context.Context, pool *pgxpool.Pool, table string) (int64, error) {
	var n int64
	if err := pool.QueryRow(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, ident(table))).Scan(&n); err != nil {
		return 0, apperrors.Transient("count "+table, err)
	}
	return n, nil
}

func truncate(ctx context.Context, pool *pgxpool.Pool, table string) error {
	if _, err := pool.Exec(ctx, fmt.Sprintf(`TRUNCATE %s`, ident(table))); err != nil {
		return apperrors.Transient("truncate "+table, err)
	}
	return nil
}
