// Package calc derives index rows from source rows.
//
// Derive is total and side-effect free apart from reading the clock; it never
// returns an error for well-formed input.
//
// Import Path: statsidx.io/statsidx/internal/calc
package calc

import (
	"time"

	"github.com/shopspring/decimal"

	"statsidx.io/statsidx/internal/domain"
)

// Rounding precision of the derived ratios.
const (
	ConversionRateScale    = 2
	AverageOrderValueScale = 4
)

// Tier thresholds on view_count, inclusive lower bounds.
const (
	HighTierMinViews   = 1000
	MediumTierMinViews = 100
)

var hundred = decimal.NewFromInt(100)

// Clock returns the current time.
type Clock func() time.Time

// Calculator derives IndexRows. The zero value uses the wall clock.
type Calculator struct {
	now Clock
}

// New creates a Calculator. A nil clock means time.Now.
func New(now Clock) *Calculator {
	return &Calculator{now: now}
}

// Derive computes the index row for src.
func (c *Calculator) Derive(src domain.SourceRow) domain.IndexRow {
	return domain.IndexRow{
		NaturalID:         src.NaturalID,
		Counters:          src.Counters,
		ConversionRate:    ConversionRate(src.Counters.PurchaseCount, src.Counters.ViewCount),
		AverageOrderValue: AverageOrderValue(src.Counters.Revenue, src.Counters.PurchaseCount),
		Tier:              TierFor(src.Counters.ViewCount),
		IndexedAt:         c.clock().UTC(),
	}
}

// DeriveAll derives every row in order with a single timestamp.
func (c *Calculator) DeriveAll(src []domain.SourceRow) []domain.IndexRow {
	at := c.clock().UTC()
	out := make([]domain.IndexRow, len(src))
	for i, s := range src {
		out[i] = c.Derive(s)
		out[i].IndexedAt = at
	}
	return out
}

// Now returns the calculator's current time in UTC.
func (c *Calculator) Now() time.Time {
	return c.clock().UTC()
}

func (c *Calculator) clock() time.Time {
	if c == nil || c.now == nil {
		return time.Now()
	}
	return c.now()
}

// ConversionRate is purchases/views*100 rounded half away from zero to two
// places, or zero when there are no views.
func ConversionRate(purchases, views int64) decimal.Decimal {
	if views <= 0 {
		return decimal.Zero.Round(ConversionRateScale)
	}
	return decimal.NewFromInt(purchases).Mul(hundred).
		DivRound(decimal.NewFromInt(views), ConversionRateScale)
}

// AverageOrderValue is revenue/purchases rounded to four places, or zero
// when there are no purchases.
func AverageOrderValue(revenue decimal.Decimal, purchases int64) decimal.Decimal {
	if purchases <= 0 {
		return decimal.Zero.Round(AverageOrderValueScale)
	}
	return revenue.DivRound(decimal.NewFromInt(purchases), AverageOrderValueScale)
}

// TierFor buckets a view count.
func TierFor(views int64) domain.Tier {
	switch {
	case views >= HighTierMinViews:
		return domain.TierHigh
	case views >= MediumTierMinViews:
		return domain.TierMedium
	default:
		return domain.TierLow
	}
}
