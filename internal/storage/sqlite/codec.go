package sqlite

import (
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"

	apperrors "statsidx.io/statsidx/internal/pkg/errors"
)

const (
	scaleE2 = 2
	scaleE4 = 4
)

var (
	maxScaled = decimal.NewFromInt(math.MaxInt64)
	minScaled = decimal.NewFromInt(math.MinInt64)
)

// toScaled converts d to an integer count of 10^-places units, rounding half
// away from zero. Values whose units do not fit in an int64 are rejected.
func toScaled(d decimal.Decimal, places int32) (int64, error) {
	s := d.Round(places).Shift(places)
	if s.GreaterThan(maxScaled) || s.LessThan(minScaled) {
		return 0, apperrors.BadRequest(apperrors.CodeValidationFailed,
			fmt.Sprintf("value %s does not fit the storage scale of %d places", d, places))
	}
	return s.IntPart(), nil
}

func fromScaled(v int64, places int32) decimal.Decimal {
	return decimal.New(v, -places)
}

func toNanos(t time.Time) int64 { return t.UTC().UnixNano() }

func fromNanos(n int64) time.Time { return time.Unix(0, n).UTC() }

func nullableNanos(t *time.Time) any {
	if t == nil {
		return nil
	}
	return toNanos(*t)
}

func fromNullNanos(n *int64) *time.Time {
	if n == nil {
		return nil
	}
	t := fromNanos(*n)
	return &t
}
