package filter

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sdserrors "github.com/arkilian/sds/internal/errors"
	"github.com/arkilian/sds/pkg/types"
)

func waveSchema() Schema {
	return Schema{
		"Order":   types.DataTypeInt32,
		"Radians": types.DataTypeFloat64,
		"Label":   types.DataTypeString,
		"Active":  types.DataTypeBoolean,
		"At":      types.DataTypeDateTime,
	}
}

func TestCompileAndMatch(t *testing.T) {
	at := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	record := map[string]any{
		"Order":   int64(4),
		"Radians": 25.13,
		"Label":   "WaveDataTarget",
		"Active":  true,
		"At":      at,
	}

	tests := []struct {
		filter string
		want   bool
	}{
		{"Radians lt 50", true},
		{"Radians gt 50", false},
		{"radians le 25.13", true},
		{"Order eq 4 and Active eq true", true},
		{"Order ne 4 or Active", true},
		{"not Active", false},
		{"contains(Label, 'Target')", true},
		{"startswith(Label, 'Wave') and endswith(Label, 'Integer')", false},
		{"tolower(Label) eq 'wavedatatarget'", true},
		{"length(Label) gt 3", true},
		{"At ge '2024-01-01T00:00:00Z'", true},
		{"At lt '2024-01-01T00:00:00Z'", false},
		{"Label eq null", false},
		{"Label ne null", true},
		{"Order ge -1", true},
	}

	for _, tt := range tests {
		t.Run(tt.filter, func(t *testing.T) {
			f, err := Compile(tt.filter, waveSchema())
			require.NoError(t, err)
			assert.Equal(t, tt.want, f.Matches(record))
		})
	}
}

func TestCompile_Invalid(t *testing.T) {
	tests := []string{
		"Radians lt",
		"Unknown lt 5",
		"Radians lt 'abc'",
		"Radians",
		"contains(Radians, 'x')",
		"contains(Label)",
		"nosuch(Label)",
		"Active and Radians",
		"At gt 'not a time'",
		"Label lt null",
	}

	for _, input := range tests {
		t.Run(input, func(t *testing.T) {
			_, err := Compile(input, waveSchema())
			require.Error(t, err)
			assert.True(t, errors.Is(err, sdserrors.ErrInvalidDefinition), "got %v", err)
			assert.Equal(t, sdserrors.CodeInvalidFilter, sdserrors.GetCode(err))
		})
	}
}

func TestMatches_MissingField(t *testing.T) {
	f, err := Compile("Radians lt 50", waveSchema())
	require.NoError(t, err)
	assert.False(t, f.Matches(map[string]any{}))
	assert.Equal(t, "Radians lt 50", f.Source())
}

func TestSchemaOf(t *testing.T) {
	typ := &types.Type{ID: "t", Properties: []types.Property{
		{ID: "k", DataType: types.DataTypeInt64, IsKey: true},
		{ID: "v", DataType: types.DataTypeFloat32},
	}}
	assert.Equal(t, Schema{"k": types.DataTypeInt64, "v": types.DataTypeFloat32}, SchemaOf(typ))
}

func TestFilter_Comparisons(t *testing.T) {
	f, err := Compile("(radians lt 50 and not (Order eq 3)) or startswith(Label, 'w')", waveSchema())
	require.NoError(t, err)
	assert.Equal(t, []Comparison{
		{Property: "Radians", Operator: "lt"},
		{Property: "Order", Operator: "eq"},
		{Property: "Label", Operator: "startswith"},
	}, f.Comparisons())
}
