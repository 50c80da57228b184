package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	apperrors "statsidx.io/statsidx/internal/pkg/errors"
)

func TestParseDeltas(t *testing.T) {
	tests := []struct {
		name    string
		raw     map[string]decimal.Decimal
		want    Deltas
		wantErr string
	}{
		{
			name: "views only",
			raw:  map[string]decimal.Decimal{CounterViewCount: decimal.NewFromInt(1)},
			want: Deltas{ViewCount: 1},
		},
		{
			name: "purchase with revenue",
			raw: map[string]decimal.Decimal{
				CounterPurchaseCount: decimal.NewFromInt(1),
				CounterRevenue:       decimal.RequireFromString("49.99"),
			},
			want: Deltas{PurchaseCount: 1, Revenue: decimal.RequireFromString("49.99")},
		},
		{
			name:    "negative",
			raw:     map[string]decimal.Decimal{CounterViewCount: decimal.NewFromInt(-1)},
			wantErr: "must not be negative",
		},
		{
			name:    "fractional count",
			raw:     map[string]decimal.Decimal{CounterPurchaseCount: decimal.RequireFromString("1.5")},
			wantErr: "whole number",
		},
		{
			name:    "unknown counter",
			raw:     map[string]decimal.Decimal{"likes": decimal.NewFromInt(1)},
			wantErr: "unknown counter",
		},
		{
			name: "largest count",
			raw:  map[string]decimal.Decimal{CounterViewCount: MaxCount},
			want: Deltas{ViewCount: 9223372036854775807},
		},
		{
			name:    "count beyond int64",
			raw:     map[string]decimal.Decimal{CounterViewCount: decimal.RequireFromString("10000000000000000000")},
			wantErr: "exceeds",
		},
		{
			name:    "purchases beyond int64",
			raw:     map[string]decimal.Decimal{CounterPurchaseCount: decimal.RequireFromString("9223372036854775808")},
			wantErr: "exceeds",
		},
		{
			name: "largest revenue",
			raw:  map[string]decimal.Decimal{CounterRevenue: decimal.RequireFromString("922337203685477.5807")},
			want: Deltas{Revenue: decimal.RequireFromString("922337203685477.5807")},
		},
		{
			name:    "revenue beyond storage scale",
			raw:     map[string]decimal.Decimal{CounterRevenue: decimal.RequireFromString("1000000000000000")},
			wantErr: "exceeds",
		},
		{
			name:    "all zero",
			raw:     map[string]decimal.Decimal{CounterViewCount: decimal.Zero},
			wantErr: "no non-zero",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDeltas(tt.raw)
			if tt.wantErr != "" {
				require.Error(t, err)
				require.Contains(t, err.Error(), tt.wantErr)
				require.ErrorIs(t, err, apperrors.ErrInvalidInput)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want.ViewCount, got.ViewCount)
			require.Equal(t, tt.want.PurchaseCount, got.PurchaseCount)
			require.True(t, tt.want.Revenue.Equal(got.Revenue), "revenue = %s", got.Revenue)
		})
	}
}

func TestCounters_Add(t *testing.T) {
	c := Counters{ViewCount: 10, PurchaseCount: 1, Revenue: decimal.RequireFromString("10.5")}
	got := c.Add(Deltas{ViewCount: 5, Revenue: decimal.RequireFromString("0.25")})

	require.Equal(t, int64(15), got.ViewCount)
	require.Equal(t, int64(1), got.PurchaseCount)
	require.Equal(t, "10.75", got.Revenue.String())
}

func TestParseTier(t *testing.T) {
	for _, tier := range Tiers {
		got, err := ParseTier(string(tier))
		require.NoError(t, err)
		require.Equal(t, tier, got)
	}

	_, err := ParseTier("extreme")
	require.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"immediate", ModeImmediate, false},
		{"realtime", ModeImmediate, false},
		{"Scheduled", ModeScheduled, false},
		{" schedule ", ModeScheduled, false},
		{"hourly", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMode(tt.in)
			if tt.wantErr {
				require.ErrorIs(t, err, apperrors.ErrConfiguration)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestDeriveHealth(t *testing.T) {
	built := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	tests := []struct {
		name       string
		state      IndexState
		indexCount int64
		pending    int64
		want       Health
	}{
		{"fresh and empty", IndexState{Status: StatusInvalid}, 0, 0, HealthNeverBuilt},
		{"rebuilding wins", IndexState{Status: StatusWorking, BuiltAt: &built}, 10, 3, HealthRebuilding},
		{"cleared after build", IndexState{Status: StatusInvalid, BuiltAt: &built}, 0, 0, HealthInvalid},
		{"pending backlog", IndexState{Status: StatusValid, BuiltAt: &built}, 10, 3, HealthStale},
		{"up to date", IndexState{Status: StatusValid, BuiltAt: &built}, 10, 0, HealthUpToDate},
		{"rows without full build", IndexState{Status: StatusInvalid}, 4, 0, HealthInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, DeriveHealth(tt.state, tt.indexCount, tt.pending))
		})
	}
}
