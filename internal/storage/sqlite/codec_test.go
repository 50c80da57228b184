package sqlite

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	apperrors "statsidx.io/statsidx/internal/pkg/errors"
)

func TestToScaled(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		places  int32
		want    int64
		wantErr bool
	}{
		{name: "money", value: "49.99", places: scaleE4, want: 499900},
		{name: "rounds half away from zero", value: "0.00005", places: scaleE4, want: 1},
		{name: "largest revenue", value: "922337203685477.5807", places: scaleE4, want: 9223372036854775807},
		{name: "revenue beyond int64 units", value: "1000000000000000", places: scaleE4, wantErr: true},
		{name: "just past the limit", value: "922337203685477.5808", places: scaleE4, wantErr: true},
		{name: "negative beyond int64 units", value: "-1000000000000000", places: scaleE4, wantErr: true},
		{name: "percent", value: "19.99", places: scaleE2, want: 1999},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := decimal.RequireFromString(tt.value)
			got, err := toScaled(d, tt.places)
			if tt.wantErr {
				require.ErrorIs(t, err, apperrors.ErrInvalidInput)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
			require.True(t, d.Round(tt.places).Equal(fromScaled(got, tt.places)))
		})
	}
}
