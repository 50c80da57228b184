package domain

import (
	"strings"
	"time"

	apperrors "statsidx.io/statsidx/internal/pkg/errors"
)

// Mode is the freshness policy of a logical index.
type Mode string

const (
	// ModeImmediate reindexes a row synchronously on every change.
	ModeImmediate Mode = "immediate"
	// ModeScheduled records changes in the changelog for the runner.
	ModeScheduled Mode = "scheduled"
)

// ParseMode accepts the canonical names plus the "realtime" and "schedule"
// aliases used by operators.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "immediate", "realtime":
		return ModeImmediate, nil
	case "scheduled", "schedule":
		return ModeScheduled, nil
	}
	return "", apperrors.ErrInvalidModef(s)
}

// IndexStatus is the persisted build status of a logical index.
type IndexStatus string

const (
	StatusValid   IndexStatus = "valid"
	StatusInvalid IndexStatus = "invalid"
	StatusWorking IndexStatus = "working"
)

// Health is the operator-facing freshness verdict.
type Health string

const (
	HealthNeverBuilt Health = "never_built"
	HealthInvalid    Health = "invalid"
	HealthRebuilding Health = "rebuilding"
	HealthStale      Health = "stale"
	HealthUpToDate   Health = "up_to_date"
)

// IndexState is the persisted control record of a logical index.
type IndexState struct {
	Name        string      `json:"name"`
	Mode        Mode        `json:"mode"`
	Status      IndexStatus `json:"status"`
	BuiltAt     *time.Time  `json:"built_at,omitempty"`
	LastDrainAt *time.Time  `json:"last_drain_at,omitempty"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// ChangelogEntry is one pending reindex request.
type ChangelogEntry struct {
	NaturalID int64 `json:"natural_id"`
	Version   int64 `json:"version"`
}

// IndexStatusReport is the administrative status of a logical index.
type IndexStatusReport struct {
	Index         string      `json:"index" yaml:"index"`
	Mode          Mode        `json:"mode" yaml:"mode"`
	Status        IndexStatus `json:"status" yaml:"status"`
	Health        Health      `json:"health" yaml:"health"`
	SourceCount   int64       `json:"source_count" yaml:"source_count"`
	IndexCount    int64       `json:"index_count" yaml:"index_count"`
	PendingCount  int64       `json:"pending_changelog_count" yaml:"pending_changelog_count"`
	BuiltAt       *time.Time  `json:"built_at,omitempty" yaml:"built_at,omitempty"`
	LastDrainAt   *time.Time  `json:"last_drain_at,omitempty" yaml:"last_drain_at,omitempty"`
	LastRunnerRun *time.Time  `json:"last_runner_run,omitempty" yaml:"last_runner_run,omitempty"`
}

// DeriveHealth classifies an index from its state and counts.
// Precedence: rebuilding, never built, invalid, stale, up to date.
func DeriveHealth(state IndexState, indexCount, pending int64) Health {
	switch {
	case state.Status == StatusWorking:
		return HealthRebuilding
	case state.BuiltAt == nil && indexCount == 0:
		return HealthNeverBuilt
	case state.Status == StatusInvalid:
		return HealthInvalid
	case pending > 0:
		return HealthStale
	default:
		return HealthUpToDate
	}
}
