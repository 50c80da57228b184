package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"statsidx.io/statsidx/internal/domain"
	apperrors "statsidx.io/statsidx/internal/pkg/errors"
	"statsidx.io/statsidx/internal/storage"
)

var indexColumnNames = []string{
	"natural_id", "view_count", "purchase_count", "revenue",
	"conversion_rate", "average_order_value", "popularity_tier", "indexed_at",
}

var indexColumns = strings.Join(indexColumnNames, ", ")

// IndexStore implements storage.IndexStore.
type IndexStore struct {
	pool  *pgxpool.Pool
	table string
}

var _ storage.IndexStore = (*IndexStore)(nil)

// Truncate implements storage.IndexStore.
func (s *IndexStore) Truncate(ctx context.Context) error {
	return truncate(ctx, s.pool, s.table)
}

// BulkInsert implements storage.IndexStore using COPY.
func (s *IndexStore) BulkInsert(ctx context.Context, rows []domain.IndexRow) error {
	if len(rows) == 0 {
		return nil
	}
	_, err := s.pool.CopyFrom(ctx, pgx.Identifier{s.table}, indexColumnNames,
		pgx.CopyFromSlice(len(rows), func(i int) ([]any, error) {
			return indexValues(rows[i]), nil
		}))
	if err != nil {
		return apperrors.Transient("bulk insert index rows", err)
	}
	return nil
}

// Upsert implements storage.IndexStore.
func (s *IndexStore) Upsert(ctx context.Context, row domain.IndexRow) error {
	_, err := s.pool.Exec(ctx, fmt.Sprintf(
		`INSERT INTO %s (%s) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (natural_id) DO UPDATE SET
		   view_count = EXCLUDED.view_count,
		   purchase_count = EXCLUDED.purchase_count,
		   revenue = EXCLUDED.revenue,
		   conversion_rate = EXCLUDED.conversion_rate,
		   average_order_value = EXCLUDED.average_order_value,
		   popularity_tier = EXCLUDED.popularity_tier,
		   indexed_at = EXCLUDED.indexed_at`, ident(s.table), indexColumns),
		indexValues(row)...)
	if err != nil {
		return apperrors.Transient("upsert index row", err)
	}
	return nil
}

func indexValues(r domain.IndexRow) []any {
	return []any{
		r.NaturalID,
		r.Counters.ViewCount,
		r.Counters.PurchaseCount,
		toNumeric(r.Counters.Revenue),
		toNumeric(r.ConversionRate),
		toNumeric(r.AverageOrderValue),
		string(r.Tier),
		r.IndexedAt,
	}
}

// Get implements storage.IndexStore.
func (s *IndexStore) Get(ctx context.Context, naturalID int64) (domain.IndexRow, error) {
	rows, _ := s.pool.Query(ctx,
		fmt.Sprintf(`SELECT %s FROM %s WHERE natural_id = $1`, indexColumns, ident(s.table)), naturalID)
	r, err := pgx.CollectExactlyOneRow(rows, scanIndex)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.IndexRow{}, storage.RowNotFound(s.table, naturalID)
	}
	if err != nil {
		return domain.IndexRow{}, apperrors.Transient("get index row", err)
	}
	return r, nil
}

// Scan implements storage.IndexStore.
func (s *IndexStore) Scan(ctx context.Context, q storage.ScanQuery) ([]domain.IndexRow, error) {
	var (
		where []string
		args  []any
	)
	if q.Tier != nil {
		args = append(args, string(*q.Tier))
		where = append(where, fmt.Sprintf("popularity_tier = $%d", len(args)))
	}
	if q.MinPurchases > 0 {
		args = append(args, q.MinPurchases)
		where = append(where, fmt.Sprintf("purchase_count >= $%d", len(args)))
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, `SELECT %s FROM %s`, indexColumns, ident(s.table))
	if len(where) > 0 {
		sb.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	switch q.OrderBy {
	case storage.OrderByConversionRate:
		sb.WriteString(" ORDER BY conversion_rate DESC, natural_id ASC")
	case storage.OrderByViewCount:
		sb.WriteString(" ORDER BY view_count DESC, natural_id ASC")
	default:
		sb.WriteString(" ORDER BY natural_id ASC")
	}
	if q.Limit > 0 {
		args = append(args, q.Limit)
		fmt.Fprintf(&sb, " LIMIT $%d", len(args))
	}

	rows, _ := s.pool.Query(ctx, sb.String(), args...)
	out, err := pgx.CollectRows(rows, scanIndex)
	if err != nil {
		return nil, apperrors.Transient("scan index", err)
	}
	return out, nil
}

// Count implements storage.IndexStore.
func (s *IndexStore) Count(ctx context.Context) (int64, error) {
	return countRows(ctx, s.pool, s.table)
}

// SummaryByTier implements storage.IndexStore.
func (s *IndexStore) SummaryByTier(ctx context.Context) ([]domain.TierSummary, error) {
	rows, _ := s.pool.Query(ctx, fmt.Sprintf(
		`SELECT popularity_tier, COUNT(*), COALESCE(SUM(conversion_rate), 0), COALESCE(SUM(revenue), 0)
		 FROM %s GROUP BY popularity_tier`, ident(s.table)))
	summaries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.TierSummary, error) {
		var (
			tier            string
			count           int64
			convSum, revSum pgtype.Numeric
		)
		if err := row.Scan(&tier, &count, &convSum, &revSum); err != nil {
			return domain.TierSummary{}, err
		}
		conv, err := fromNumeric(convSum)
		if err != nil {
			return domain.TierSummary{}, err
		}
		rev, err := fromNumeric(revSum)
		if err != nil {
			return domain.TierSummary{}, err
		}
		return storage.NewTierSummary(domain.Tier(tier), count, conv, rev), nil
	})
	if err != nil {
		return nil, apperrors.Transient("summarize index", err)
	}

	byTier := make(map[domain.Tier]domain.TierSummary, len(summaries))
	for _, s := range summaries {
		byTier[s.Tier] = s
	}
	return storage.OrderedSummaries(byTier), nil
}

func scanIndex(row pgx.CollectableRow) (domain.IndexRow, error) {
	var (
		r                  domain.IndexRow
		revenue, conv, aov pgtype.Numeric
		tier               string
	)
	if err := row.Scan(&r.NaturalID, &r.Counters.ViewCount, &r.Counters.PurchaseCount,
		&revenue, &conv, &aov, &tier, &r.IndexedAt); err != nil {
		return domain.IndexRow{}, err
	}
	var err error
	if r.Counters.Revenue, err = fromNumeric(revenue); err != nil {
		return domain.IndexRow{}, err
	}
	if r.ConversionRate, err = fromNumeric(conv); err != nil {
		return domain.IndexRow{}, err
	}
	if r.AverageOrderValue, err = fromNumeric(aov); err != nil {
		return domain.IndexRow{}, err
	}
	r.Tier = domain.Tier(tier)
	r.IndexedAt = r.IndexedAt.UTC()
	return r, nil
}
