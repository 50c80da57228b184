package storage

import (
	"testing"

	"github.com/stretchr/testify/require"

	apperrors "statsidx.io/statsidx/internal/pkg/errors"
)

func TestValidateIdentifier(t *testing.T) {
	tests := []struct {
		name    string
		wantErr bool
	}{
		{"product_stats", false},
		{"_private", false},
		{"stats2", false},
		{"", true},
		{"2stats", true},
		{"Product", true},
		{"stats;drop table x", true},
		{"a-b", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateIdentifier(tt.name)
			if tt.wantErr {
				require.ErrorIs(t, err, apperrors.ErrConfiguration)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestTables_Validate(t *testing.T) {
	require.NoError(t, Tables{Source: "src", Index: "idx", Changelog: "cl"}.Validate())
	require.Error(t, Tables{Source: "src", Index: "src", Changelog: "cl"}.Validate())
	require.Error(t, Tables{Source: "src", Index: "idx", Changelog: "Bad"}.Validate())
	require.ErrorIs(t, Tables{Source: "src", Index: StateTable, Changelog: "cl"}.Validate(), apperrors.ErrConfiguration)
}
