package postgres

import (
	"context"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"statsidx.io/statsidx/internal/domain"
	apperrors "statsidx.io/statsidx/internal/pkg/errors"
	"statsidx.io/statsidx/internal/storage"
)

// Changelog implements storage.Changelog.
// natural_id is the primary key, so appending a pending id is a no-op.
type Changelog struct {
	pool  *pgxpool.Pool
	table string
}

var _ storage.Changelog = (*Changelog)(nil)

// Append implements storage.Changelog.
func (c *Changelog) Append(ctx context.Context, naturalIDs ...int64) error {
	ids := storage.UniqueIDs(naturalIDs)
	if len(ids) == 0 {
		return nil
	}
	_, err := c.pool.Exec(ctx, fmt.Sprintf(
		`INSERT INTO %s (natural_id)
		 SELECT id FROM unnest($1::bigint[]) WITH ORDINALITY AS t(id, ord) ORDER BY ord
		 ON CONFLICT (natural_id) DO NOTHING`, ident(c.table)), ids)
	if err != nil {
		return apperrors.Transient("append changelog", err)
	}
	return nil
}

// Drain implements storage.Changelog. Rows are claimed with FOR UPDATE SKIP
// LOCKED and deleted in the same statement, so concurrent drains never claim
// the same id. limit <= 0 drains everything.
func (c *Changelog) Drain(ctx context.Context, limit int) ([]domain.ChangelogEntry, error) {
	var lim any
	if limit > 0 {
		lim = int64(limit)
	}
	rows, _ := c.pool.Query(ctx, fmt.Sprintf(
		`WITH claimed AS (
		   SELECT natural_id FROM %[1]s ORDER BY version LIMIT $1 FOR UPDATE SKIP LOCKED
		 )
		 DELETE FROM %[1]s AS cl USING claimed
		 WHERE cl.natural_id = claimed.natural_id
		 RETURNING cl.natural_id, cl.version`, ident(c.table)), lim)
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.ChangelogEntry, error) {
		var e domain.ChangelogEntry
		err := row.Scan(&e.NaturalID, &e.Version)
		return e, err
	})
	if err != nil {
		return nil, apperrors.Transient("drain changelog", err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

// Pending implements storage.Changelog.
func (c *Changelog) Pending(ctx context.Context) (int64, error) {
	return countRows(ctx, c.pool, c.table)
}

// Truncate implements storage.Changelog.
func (c *Changelog) Truncate(ctx context.Context) error {
	return truncate(ctx, c.pool, c.table)
}
