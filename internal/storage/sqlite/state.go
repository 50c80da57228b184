package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"statsidx.io/statsidx/internal/domain"
	apperrors "statsidx.io/statsidx/internal/pkg/errors"
	"statsidx.io/statsidx/internal/storage"
)

// StateStore implements storage.StateStore on the indexer_state table.
type StateStore struct {
	db *sql.DB
}

var _ storage.StateStore = (*StateStore)(nil)

// Ensure implements storage.StateStore. New indexes start invalid.
func (s *StateStore) Ensure(ctx context.Context, name string, defaultMode domain.Mode) (domain.IndexState, error) {
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO indexer_state (index_name, mode, status, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(index_name) DO NOTHING`,
		name, string(defaultMode), string(domain.StatusInvalid), toNanos(time.Now())); err != nil {
		return domain.IndexState{}, apperrors.Transient("ensure index state", err)
	}
	return s.Get(ctx, name)
}

// Get implements storage.StateStore.
func (s *StateStore) Get(ctx context.Context, name string) (domain.IndexState, error) {
	var (
		st               domain.IndexState
		mode, status     string
		builtAt, drainAt *int64
		updatedAt        int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT index_name, mode, status, built_at, last_drain_at, updated_at
		 FROM indexer_state WHERE index_name = ?`, name).
		Scan(&st.Name, &mode, &status, &builtAt, &drainAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.IndexState{}, storage.StateNotFound(name)
	}
	if err != nil {
		return domain.IndexState{}, apperrors.Transient("get index state", err)
	}
	st.Mode = domain.Mode(mode)
	st.Status = domain.IndexStatus(status)
	st.BuiltAt = fromNullNanos(builtAt)
	st.LastDrainAt = fromNullNanos(drainAt)
	st.UpdatedAt = fromNanos(updatedAt)
	return st, nil
}

// SetMode implements storage.StateStore.
func (s *StateStore) SetMode(ctx context.Context, name string, mode domain.Mode) error {
	return s.update(ctx, name, "set index mode",
		`UPDATE indexer_state SET mode = ?, updated_at = ? WHERE index_name = ?`,
		string(mode), toNanos(time.Now()), name)
}

// SetStatus implements storage.StateStore.
func (s *StateStore) SetStatus(ctx context.Context, name string, status domain.IndexStatus, builtAt *time.Time) error {
	return s.update(ctx, name, "set index status",
		`UPDATE indexer_state SET status = ?, built_at = COALESCE(?, built_at), updated_at = ? WHERE index_name = ?`,
		string(status), nullableNanos(builtAt), toNanos(time.Now()), name)
}

// TouchDrain implements storage.StateStore.
func (s *StateStore) TouchDrain(ctx context.Context, name string, at time.Time) error {
	return s.update(ctx, name, "touch drain",
		`UPDATE indexer_state SET last_drain_at = ?, updated_at = ? WHERE index_name = ?`,
		toNanos(at), toNanos(time.Now()), name)
}

func (s *StateStore) update(ctx context.Context, name, op, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return apperrors.Transient(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apperrors.Transient(op, err)
	}
	if n == 0 {
		return storage.StateNotFound(name)
	}
	return nil
}
