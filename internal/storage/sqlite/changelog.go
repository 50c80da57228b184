package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"statsidx.io/statsidx/internal/domain"
	apperrors "statsidx.io/statsidx/internal/pkg/errors"
	"statsidx.io/statsidx/internal/storage"
)

// Changelog implements storage.Changelog.
// natural_id is UNIQUE, so appending a pending id is a no-op and the entry
// keeps its original version.
type Changelog struct {
	db    *sql.DB
	table string
}

var _ storage.Changelog = (*Changelog)(nil)

// Append implements storage.Changelog.
func (c *Changelog) Append(ctx context.Context, naturalIDs ...int64) error {
	if len(naturalIDs) == 0 {
		return nil
	}
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.Transient("begin changelog append", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		`INSERT INTO %s (natural_id, created_at) VALUES (?, ?)
		 ON CONFLICT(natural_id) DO NOTHING`, quote(c.table)))
	if err != nil {
		return apperrors.Transient("prepare changelog append", err)
	}
	defer stmt.Close()

	now := toNanos(time.Now())
	for _, id := range naturalIDs {
		if _, err := stmt.ExecContext(ctx, id, now); err != nil {
			return apperrors.Transient("append changelog", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return apperrors.Transient("commit changelog append", err)
	}
	return nil
}

// Drain implements storage.Changelog with a single DELETE ... RETURNING
// statement, which SQLite executes atomically. limit <= 0 drains everything.
func (c *Changelog) Drain(ctx context.Context, limit int) ([]domain.ChangelogEntry, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := c.db.QueryContext(ctx, fmt.Sprintf(
		`DELETE FROM %[1]s
		 WHERE version IN (SELECT version FROM %[1]s ORDER BY version LIMIT ?)
		 RETURNING natural_id, version`, quote(c.table)), limit)
	if err != nil {
		return nil, apperrors.Transient("drain changelog", err)
	}
	defer rows.Close()

	var out []domain.ChangelogEntry
	for rows.Next() {
		var e domain.ChangelogEntry
		if err := rows.Scan(&e.NaturalID, &e.Version); err != nil {
			return nil, apperrors.Transient("scan drained entry", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Transient("drain changelog", err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

// Pending implements storage.Changelog.
func (c *Changelog) Pending(ctx context.Context) (int64, error) {
	return countRows(ctx, c.db, c.table)
}

// Truncate implements storage.Changelog.
func (c *Changelog) Truncate(ctx context.Context) error {
	return truncate(ctx, c.db, c.table)
}
