package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"statsidx.io/statsidx/internal/domain"
	apperrors "statsidx.io/statsidx/internal/pkg/errors"
	"statsidx.io/statsidx/internal/storage"
)

const indexColumns = `natural_id, view_count, purchase_count, revenue_e4, conversion_rate_e2, average_order_value_e4, popularity_tier, indexed_at`

// IndexStore implements storage.IndexStore.
type IndexStore struct {
	db    *sql.DB
	table string
}

var _ storage.IndexStore = (*IndexStore)(nil)

// Truncate implements storage.IndexStore.
func (s *IndexStore) Truncate(ctx context.Context) error {
	return truncate(ctx, s.db, s.table)
}

// BulkInsert implements storage.IndexStore.
func (s *IndexStore) BulkInsert(ctx context.Context, rows []domain.IndexRow) error {
	return s.write(ctx, rows, fmt.Sprintf(
		`INSERT INTO %s (%s) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`, quote(s.table), indexColumns))
}

// Upsert implements storage.IndexStore.
func (s *IndexStore) Upsert(ctx context.Context, row domain.IndexRow) error {
	return s.write(ctx, []domain.IndexRow{row}, fmt.Sprintf(
		`INSERT INTO %s (%s) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(natural_id) DO UPDATE SET
		   view_count=excluded.view_count,
		   purchase_count=excluded.purchase_count,
		   revenue_e4=excluded.revenue_e4,
		   conversion_rate_e2=excluded.conversion_rate_e2,
		   average_order_value_e4=excluded.average_order_value_e4,
		   popularity_tier=excluded.popularity_tier,
		   indexed_at=excluded.indexed_at`, quote(s.table), indexColumns))
}

func (s *IndexStore) write(ctx context.Context, rows []domain.IndexRow, query string) error {
	if len(rows) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.Transient("begin index write", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return apperrors.Transient("prepare index write", err)
	}
	defer stmt.Close()

	for _, r := range rows {
		revenue, err := toScaled(r.Counters.Revenue, scaleE4)
		if err != nil {
			return err
		}
		conv, err := toScaled(r.ConversionRate, scaleE2)
		if err != nil {
			return err
		}
		aov, err := toScaled(r.AverageOrderValue, scaleE4)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx,
			r.NaturalID,
			r.Counters.ViewCount,
			r.Counters.PurchaseCount,
			revenue,
			conv,
			aov,
			string(r.Tier),
			toNanos(r.IndexedAt),
		); err != nil {
			return apperrors.Transient("write index row", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return apperrors.Transient("commit index write", err)
	}
	return nil
}

// Get implements storage.IndexStore.
func (s *IndexStore) Get(ctx context.Context, naturalID int64) (domain.IndexRow, error) {
	row := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT %s FROM %s WHERE natural_id = ?`, indexColumns, quote(s.table)), naturalID)
	r, err := scanIndex(row)
	if errors.Is(err, sql.ErrNoRows) {
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
		where = append(where, "popularity_tier = ?")
		args = append(args, string(*q.Tier))
	}
	if q.MinPurchases > 0 {
		where = append(where, "purchase_count >= ?")
		args = append(args, q.MinPurchases)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, `SELECT %s FROM %s`, indexColumns, quote(s.table))
	if len(where) > 0 {
		sb.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	switch q.OrderBy {
	case storage.OrderByConversionRate:
		sb.WriteString(" ORDER BY conversion_rate_e2 DESC, natural_id ASC")
	case storage.OrderByViewCount:
		sb.WriteString(" ORDER BY view_count DESC, natural_id ASC")
	default:
		sb.WriteString(" ORDER BY natural_id ASC")
	}
	if q.Limit > 0 {
		sb.WriteString(" LIMIT ?")
		args = append(args, q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, apperrors.Transient("scan index", err)
	}
	defer rows.Close()

	var out []domain.IndexRow
	for rows.Next() {
		r, err := scanIndex(rows)
		if err != nil {
			return nil, apperrors.Transient("scan index row", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Transient("scan index", err)
	}
	return out, nil
}

// Count implements storage.IndexStore.
func (s *IndexStore) Count(ctx context.Context) (int64, error) {
	return countRows(ctx, s.db, s.table)
}

// SummaryByTier implements storage.IndexStore.
func (s *IndexStore) SummaryByTier(ctx context.Context) ([]domain.TierSummary, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT popularity_tier, COUNT(*), COALESCE(SUM(conversion_rate_e2), 0), COALESCE(SUM(revenue_e4), 0)
		 FROM %s GROUP BY popularity_tier`, quote(s.table)))
	if err != nil {
		return nil, apperrors.Transient("summarize index", err)
	}
	defer rows.Close()

	byTier := make(map[domain.Tier]domain.TierSummary)
	for rows.Next() {
		var (
			tier                  string
			count, convSum, revE4 int64
		)
		if err := rows.Scan(&tier, &count, &convSum, &revE4); err != nil {
			return nil, apperrors.Transient("scan tier summary", err)
		}
		byTier[domain.Tier(tier)] = storage.NewTierSummary(domain.Tier(tier), count,
			fromScaled(convSum, scaleE2), fromScaled(revE4, scaleE4))
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Transient("summarize index", err)
	}
	return storage.OrderedSummaries(byTier), nil
}

func scanIndex(sc rowScanner) (domain.IndexRow, error) {
	var (
		r                  domain.IndexRow
		revenue, conv, aov int64
		tier               string
		indexedAt          int64
	)
	if err := sc.Scan(&r.NaturalID, &r.Counters.ViewCount, &r.Counters.PurchaseCount,
		&revenue, &conv, &aov, &tier, &indexedAt); err != nil {
		return domain.IndexRow{}, err
	}
	r.Counters.Revenue = fromScaled(revenue, scaleE4)
	r.ConversionRate = fromScaled(conv, scaleE2)
	r.AverageOrderValue = fromScaled(aov, scaleE4)
	r.Tier = domain.Tier(tier)
	r.IndexedAt = fromNanos(indexedAt)
	return r, nil
}
