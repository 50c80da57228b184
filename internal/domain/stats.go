// Package domain provides domain models for the stats indexer.
//
// A logical index pairs a source table of per-entity counters with a derived,
// query-optimized table. Types here are storage-agnostic; backends convert.
//
// Import Path: statsidx.io/statsidx/internal/domain
package domain

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	apperrors "statsidx.io/statsidx/internal/pkg/errors"
)

// Counter names as they appear on the wire and in delta maps.
const (
	CounterViewCount     = "view_count"
	CounterPurchaseCount = "purchase_count"
	CounterRevenue       = "revenue"
)

// RevenueScale is the number of decimal places kept for money values.
const RevenueScale = 4

var (
	// MaxCount is the largest count delta or counter value.
	MaxCount = decimal.NewFromInt(math.MaxInt64)
	// MaxRevenue is the largest revenue whose RevenueScale units fit in an int64.
	MaxRevenue = decimal.New(math.MaxInt64, -RevenueScale)
)

// Counters are the named accumulators of a source row.
type Counters struct {
	ViewCount     int64           `json:"view_count" yaml:"view_count"`
	PurchaseCount int64           `json:"purchase_count" yaml:"purchase_count"`
	Revenue       decimal.Decimal `json:"revenue" yaml:"revenue"`
}

// Add returns c increased by d.
func (c Counters) Add(d Deltas) Counters {
	return Counters{
		ViewCount:     c.ViewCount + d.ViewCount,
		PurchaseCount: c.PurchaseCount + d.PurchaseCount,
		Revenue:       c.Revenue.Add(d.Revenue).Round(RevenueScale),
	}
}

// Deltas are non-negative increments applied to Counters.
type Deltas struct {
	ViewCount     int64           `json:"view_count"`
	PurchaseCount int64           `json:"purchase_count"`
	Revenue       decimal.Decimal `json:"revenue"`
}

// IsZero reports whether d changes nothing.
func (d Deltas) IsZero() bool {
	return d.ViewCount == 0 && d.PurchaseCount == 0 && d.Revenue.IsZero()
}

// ErrEmptyDelta is returned by ParseDeltas when every delta is zero.
var ErrEmptyDelta = apperrors.BadRequest(apperrors.CodeInvalidDelta, "no non-zero counter deltas")

// ParseDeltas validates a counter name to delta mapping.
// Unknown names, negative values and fractional count deltas are rejected so
// counters only ever grow.
func ParseDeltas(raw map[string]decimal.Decimal) (Deltas, error) {
	var d Deltas
	names := make([]string, 0, len(raw))
	for name := range raw {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		v := raw[name]
		if v.IsNegative() {
			return Deltas{}, invalidDelta(name, "must not be negative")
		}
		switch name {
		case CounterViewCount, CounterPurchaseCount:
			if !v.Equal(v.Truncate(0)) {
				return Deltas{}, invalidDelta(name, "must be a whole number")
			}
			if v.GreaterThan(MaxCount) {
				return Deltas{}, invalidDelta(name, "exceeds "+MaxCount.String())
			}
			if name == CounterViewCount {
				d.ViewCount = v.IntPart()
			} else {
				d.PurchaseCount = v.IntPart()
			}
		case CounterRevenue:
			r := v.Round(RevenueScale)
			if r.GreaterThan(MaxRevenue) {
				return Deltas{}, invalidDelta(name, "exceeds "+MaxRevenue.String())
			}
			d.Revenue = r
		default:
			return Deltas{}, invalidDelta(name, "unknown counter")
		}
	}
	if d.IsZero() {
		return Deltas{}, ErrEmptyDelta
	}
	return d, nil
}

func invalidDelta(name, reason string) error {
	return apperrors.BadRequest(apperrors.CodeInvalidDelta, fmt.Sprintf("counter %q: %s", name, reason)).
		WithParams(map[string]interface{}{"counter": name})
}

// SourceRow is one fact record per indexable entity.
type SourceRow struct {
	EntityID  int64     `json:"entity_id"`
	NaturalID int64     `json:"natural_id"`
	Counters  Counters  `json:"counters"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IndexRow is the derived record for a source row, keyed by natural id.
type IndexRow struct {
	NaturalID         int64           `json:"natural_id" yaml:"natural_id"`
	Counters          Counters        `json:"counters" yaml:"counters"`
	ConversionRate    decimal.Decimal `json:"conversion_rate" yaml:"conversion_rate"`
	AverageOrderValue decimal.Decimal `json:"average_order_value" yaml:"average_order_value"`
	Tier              Tier            `json:"popularity_tier" yaml:"popularity_tier"`
	IndexedAt         time.Time       `json:"indexed_at" yaml:"indexed_at"`
}

// Tier is the popularity bucket derived from view_count.
type Tier string

const (
	TierHigh   Tier = "high"
	TierMedium Tier = "medium"
	TierLow    Tier = "low"
)

// Tiers lists every tier, most popular first.
var Tiers = []Tier{TierHigh, TierMedium, TierLow}

// ParseTier validates a tier name.
func ParseTier(s string) (Tier, error) {
	switch t := Tier(s); t {
	case TierHigh, TierMedium, TierLow:
		return t, nil
	}
	return "", apperrors.BadRequest(apperrors.CodeValidationFailed, fmt.Sprintf("unknown popularity tier %q", s)).
		WithParams(map[string]interface{}{"tier": s})
}

// TierSummary aggregates index rows of one tier.
type TierSummary struct {
	Tier          Tier            `json:"popularity_tier" yaml:"popularity_tier"`
	Count         int64           `json:"count" yaml:"count"`
	AvgConversion decimal.Decimal `json:"avg_conversion" yaml:"avg_conversion"`
	TotalRevenue  decimal.Decimal `json:"total_revenue" yaml:"total_revenue"`
}

// RowUpdate is one entry of a batch mutation.
type RowUpdate struct {
	NaturalID int64  `json:"natural_id"`
	Deltas    Deltas `json:"deltas"`
}
