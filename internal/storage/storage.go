// Package storage defines the persistence contracts of the stats indexer.
//
// A logical index is backed by three tables (source, index, changelog) plus a
// shared state table. Backends (postgres, sqlite) implement every interface
// here; callers depend on the interfaces only.
//
// Import Path: statsidx.io/statsidx/internal/storage
package storage

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/shopspring/decimal"

	"statsidx.io/statsidx/internal/domain"
	apperrors "statsidx.io/statsidx/internal/pkg/errors"
)

// Driver names.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Tables names the physical tables of one logical index.
type Tables struct {
	Source    string
	Index     string
	Changelog string
}

// Validate checks every table name against the identifier whitelist.
func (t Tables) Validate() error {
	for _, name := range []string{t.Source, t.Index, t.Changelog} {
		if err := ValidateIdentifier(name); err != nil {
			return err
		}
		if name == StateTable {
			return apperrors.Configuration(apperrors.CodeValidationFailed,
				fmt.Sprintf("table name %q is reserved", name))
		}
	}
	if t.Source == t.Index || t.Source == t.Changelog || t.Index == t.Changelog {
		return apperrors.Configuration(apperrors.CodeValidationFailed,
			fmt.Sprintf("tables of one index must be distinct: %s/%s/%s", t.Source, t.Index, t.Changelog))
	}
	return nil
}

// StateTable holds the control record of every index.
const StateTable = "indexer_state"

var identRe = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,62}$`)

// ValidateIdentifier rejects table names that are not plain lower-case SQL identifiers.
func ValidateIdentifier(name string) error {
	if !identRe.MatchString(name) {
		return apperrors.Configuration(apperrors.CodeValidationFailed,
			fmt.Sprintf("invalid table name %q", name)).
			WithParams(map[string]interface{}{"table": name})
	}
	return nil
}

// OrderBy selects the ranking of a Scan.
type OrderBy string

const (
	OrderByConversionRate OrderBy = "conversion_rate"
	OrderByViewCount      OrderBy = "view_count"
	OrderByNaturalID      OrderBy = "natural_id"
)

// ScanQuery filters and ranks index rows.
// Ties are broken by natural id ascending. Limit <= 0 means no limit.
type ScanQuery struct {
	Tier         *domain.Tier
	MinPurchases int64
	OrderBy      OrderBy
	Limit        int
}

// SourceStore is the mutable fact table.
type SourceStore interface {
	// Upsert inserts rows or replaces the counters of existing natural ids.
	Upsert(ctx context.Context, rows []domain.SourceRow) error
	// Get returns ErrNotFound when the natural id is absent.
	Get(ctx context.Context, naturalID int64) (domain.SourceRow, error)
	// GetMany returns the rows that exist; missing ids are skipped.
	GetMany(ctx context.Context, naturalIDs []int64) ([]domain.SourceRow, error)
	// ForEachBatch walks every row in natural id order.
	ForEachBatch(ctx context.Context, size int, fn func([]domain.SourceRow) error) error
	// Increment adds deltas in place and returns the updated row.
	Increment(ctx context.Context, naturalID int64, d domain.Deltas) (domain.SourceRow, error)
	Count(ctx context.Context) (int64, error)
	Truncate(ctx context.Context) error
}

// IndexStore is the derived, query-optimized table.
type IndexStore interface {
	Truncate(ctx context.Context) error
	BulkInsert(ctx context.Context, rows []domain.IndexRow) error
	// Upsert inserts or replaces by natural id.
	Upsert(ctx context.Context, row domain.IndexRow) error
	// Get returns ErrNotFound when the natural id is absent.
	Get(ctx context.Context, naturalID int64) (domain.IndexRow, error)
	Scan(ctx context.Context, q ScanQuery) ([]domain.IndexRow, error)
	Count(ctx context.Context) (int64, error)
	// SummaryByTier returns one entry per tier present, most popular first.
	SummaryByTier(ctx context.Context) ([]domain.TierSummary, error)
}

// Changelog is the deduplicated queue of natural ids awaiting reindex.
type Changelog interface {
	// Append records ids as pending. Already pending ids keep their version.
	Append(ctx context.Context, naturalIDs ...int64) error
	// Drain atomically claims and removes up to limit entries, oldest first.
	// limit <= 0 claims every pending entry.
	// The caller owns retry: entries it fails to process must be appended again.
	Drain(ctx context.Context, limit int) ([]domain.ChangelogEntry, error)
	Pending(ctx context.Context) (int64, error)
	Truncate(ctx context.Context) error
}

// StateStore persists per-index mode and build status.
type StateStore interface {
	// Ensure creates the state record with defaultMode if it does not exist.
	Ensure(ctx context.Context, name string, defaultMode domain.Mode) (domain.IndexState, error)
	Get(ctx context.Context, name string) (domain.IndexState, error)
	SetMode(ctx context.Context, name string, mode domain.Mode) error
	// SetStatus records a build status. builtAt is stored only when non-nil.
	SetStatus(ctx context.Context, name string, status domain.IndexStatus, builtAt *time.Time) error
	TouchDrain(ctx context.Context, name string, at time.Time) error
}

// Set bundles the stores of one logical index.
type Set struct {
	Source    SourceStore
	Index     IndexStore
	Changelog Changelog
}

// Backend opens stores on one database.
type Backend interface {
	Driver() string
	// Open creates the tables of a logical index if needed and returns its stores.
	Open(ctx context.Context, tables Tables) (Set, error)
	State() StateStore
	Ping(ctx context.Context) error
	Close()
}

// RowNotFound is the error stores return for an absent natural id.
func RowNotFound(table string, naturalID int64) error {
	return apperrors.NotFound(apperrors.CodeRowNotFound, "row not found").
		WithParams(map[string]interface{}{"table": table, "natural_id": naturalID})
}

// StateNotFound is returned by StateStore.Get for an unknown index.
func StateNotFound(name string) error {
	return apperrors.ErrIndexNotConfiguredf(name)
}

// UniqueIDs drops duplicate ids, keeping first-seen order.
func UniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// NewTierSummary computes the average conversion from a sum over count rows,
// rounded like the conversion rate itself.
func NewTierSummary(tier domain.Tier, count int64, conversionSum, revenueSum decimal.Decimal) domain.TierSummary {
	avg := decimal.Zero
	if count > 0 {
		avg = conversionSum.DivRound(decimal.NewFromInt(count), 2)
	}
	return domain.TierSummary{
		Tier:          tier,
		Count:         count,
		AvgConversion: avg,
		TotalRevenue:  revenueSum,
	}
}

// OrderedSummaries returns the summaries present in byTier, most popular tier first.
func OrderedSummaries(byTier map[domain.Tier]domain.TierSummary) []domain.TierSummary {
	out := make([]domain.TierSummary, 0, len(byTier))
	for _, tier := range domain.Tiers {
		if s, ok := byTier[tier]; ok {
			out = append(out, s)
		}
	}
	return out
}
