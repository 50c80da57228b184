package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"statsidx.io/statsidx/internal/domain"
	apperrors "statsidx.io/statsidx/internal/pkg/errors"
	"statsidx.io/statsidx/internal/storage"
)

// StateStore implements storage.StateStore on indexer_state.
type StateStore struct {
	pool *pgxpool.Pool
}

var _ storage.StateStore = (*StateStore)(nil)

// Ensure implements storage.StateStore. New indexes start invalid.
func (s *StateStore) Ensure(ctx context.Context, name string, defaultMode domain.Mode) (domain.IndexState, error) {
	if _, err := s.pool.Exec(ctx,
		`INSERT INTO indexer_state (index_name, mode, status) VALUES ($1, $2, $3)
		 ON CONFLICT (index_name) DO NOTHING`,
		name, string(defaultMode), string(domain.StatusInvalid)); err != nil {
		return domain.IndexState{}, apperrors.Transient("ensure index state", err)
	}
	return s.Get(ctx, name)
}

// Get implements storage.StateStore.
func (s *StateStore) Get(ctx context.Context, name string) (domain.IndexState, error) {
	var (
		st           domain.IndexState
		mode, status string
	)
	err := s.pool.QueryRow(ctx,
		`SELECT index_name, mode, status, built_at, last_drain_at, updated_at
		 FROM indexer_state WHERE index_name = $1`, name).
		Scan(&st.Name, &mode, &status, &st.BuiltAt, &st.LastDrainAt, &st.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.IndexState{}, storage.StateNotFound(name)
	}
	if err != nil {
		return domain.IndexState{}, apperrors.Transient("get index state", err)
	}
	st.Mode = domain.Mode(mode)
	st.Status = domain.IndexStatus(status)
	st.BuiltAt = utcPtr(st.BuiltAt)
	st.LastDrainAt = utcPtr(st.LastDrainAt)
	st.UpdatedAt = st.UpdatedAt.UTC()
	return st, nil
}

// SetMode implements storage.StateStore.
func (s *StateStore) SetMode(ctx context.Context, name string, mode domain.Mode) error {
	return s.update(ctx, name, "set index mode",
		`UPDATE indexer_state SET mode = $1, updated_at = now() WHERE index_name = $2`,
		string(mode), name)
}

// SetStatus implements storage.StateStore.
func (s *StateStore) SetStatus(ctx context.Context, name string, status domain.IndexStatus, builtAt *time.Time) error {
	return s.update(ctx, name, "set index status",
		`UPDATE indexer_state SET status = $1, built_at = COALESCE($2, built_at), updated_at = now()
		 WHERE index_name = $3`,
		string(status), builtAt, name)
}

// TouchDrain implements storage.StateStore.
func (s *StateStore) TouchDrain(ctx context.Context, name string, at time.Time) error {
	return s.update(ctx, name, "touch drain",
		`UPDATE indexer_state SET last_drain_at = $1, updated_at = now() WHERE index_name = $2`,
		at, name)
}

func (s *StateStore) update(ctx context.Context, name, op, query string, args ...any) error {
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return apperrors.Transient(op, err)
	}
	if tag.RowsAffected() == 0 {
		return storage.StateNotFound(name)
	}
	return nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
