package view

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sdserrors "github.com/arkilian/sds/internal/errors"
	"github.com/arkilian/sds/pkg/types"
)

func floatProps(ids ...string) []types.Property {
	props := make([]types.Property, len(ids))
	for i, id := range ids {
		props[i] = types.Property{ID: id, DataType: types.DataTypeFloat64}
	}
	return props
}

func sourceType() *types.Type {
	return &types.Type{
		ID: "WaveData",
		Properties: append([]types.Property{{ID: "Order", DataType: types.DataTypeInt32, IsKey: true}},
			floatProps("Tau", "Radians", "Sin", "Cos", "Tan")...),
	}
}

func targetType() *types.Type {
	return &types.Type{
		ID: "WaveDataTarget",
		Properties: append([]types.Property{{ID: "OrderTarget", DataType: types.DataTypeInt32, IsKey: true}},
			floatProps("TauTarget", "RadiansTarget", "SinTarget", "CosTarget", "TanTarget")...),
	}
}

func integerType() *types.Type {
	return &types.Type{
		ID: "WaveDataInteger",
		Properties: []types.Property{
			{ID: "OrderTarget", DataType: types.DataTypeInt32, IsKey: true},
			{ID: "SinInt", DataType: types.DataTypeInt32},
			{ID: "CosInt", DataType: types.DataTypeInt32},
			{ID: "TanInt", DataType: types.DataTypeInt32},
		},
	}
}

func targets(m *types.StreamViewMap) map[string]string {
	out := make(map[string]string, len(m.Properties))
	for _, p := range m.Properties {
		out[p.SourceID] = p.TargetID
	}
	return out
}

func TestResolveMap_AutoPairsByPosition(t *testing.T) {
	v := &types.StreamView{ID: "auto", SourceTypeID: "WaveData", TargetTypeID: "WaveDataTarget"}

	m, err := ResolveMap(v, sourceType(), targetType())
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"Order":   "OrderTarget",
		"Tau":     "TauTarget",
		"Radians": "RadiansTarget",
		"Sin":     "SinTarget",
		"Cos":     "CosTarget",
		"Tan":     "TanTarget",
	}, targets(m))
	for _, p := range m.Properties {
		assert.Equal(t, types.MapModeAuto, p.Mode)
	}
}

func TestResolveMap_AutoSkipsIncompatible(t *testing.T) {
	v := &types.StreamView{ID: "auto", SourceTypeID: "WaveData", TargetTypeID: "WaveDataInteger"}

	m, err := ResolveMap(v, sourceType(), integerType())
	require.NoError(t, err)
	require.Len(t, m.Properties, 6, "every source property appears")
	got := targets(m)
	assert.Equal(t, "OrderTarget", got["Order"])
	assert.Equal(t, "", got["Tau"], "Float64 does not widen to Int32")
	assert.Equal(t, "", got["Sin"])
}

func TestResolveMap_AutoPrefersMatchingIDs(t *testing.T) {
	source := &types.Type{ID: "a", Properties: []types.Property{
		{ID: "k", DataType: types.DataTypeInt16, IsKey: true},
		{ID: "x", DataType: types.DataTypeFloat32},
		{ID: "y", DataType: types.DataTypeFloat64},
	}}
	target := &types.Type{ID: "b", Properties: []types.Property{
		{ID: "k", DataType: types.DataTypeInt64, IsKey: true},
		{ID: "y", DataType: types.DataTypeFloat64},
		{ID: "z", DataType: types.DataTypeFloat64},
	}}
	v := &types.StreamView{ID: "v", SourceTypeID: "a", TargetTypeID: "b"}

	m, err := ResolveMap(v, source, target)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"k": "k", "y": "y", "x": ""}, targets(m),
		"y pairs by id so x cannot claim it by position")
}

func TestResolveMap_ExplicitRoundTrip(t *testing.T) {
	v := &types.StreamView{
		ID:           "manual",
		SourceTypeID: "WaveData",
		TargetTypeID: "WaveDataInteger",
		Properties: []types.StreamViewProperty{
			{SourceID: "Order", TargetID: "OrderTarget"},
			{SourceID: "Sin", TargetID: "SinInt"},
			{SourceID: "Cos", TargetID: "CosInt"},
			{SourceID: "Tan", TargetID: "TanInt"},
		},
	}

	m, err := ResolveMap(v, sourceType(), integerType())
	require.NoError(t, err)

	var ids []string
	for _, p := range m.Properties {
		ids = append(ids, p.SourceID)
	}
	assert.Equal(t, []string{"Order", "Tau", "Radians", "Sin", "Cos", "Tan"}, ids, "source declaration order")
	assert.Equal(t, map[string]string{
		"Order": "OrderTarget", "Tau": "", "Radians": "", "Sin": "SinInt", "Cos": "CosInt", "Tan": "TanInt",
	}, targets(m))
	assert.Equal(t, types.MapModeExplicit, m.Properties[0].Mode)
	assert.Equal(t, types.MapModeUnmapped, m.Properties[1].Mode)

	projected := Project(types.Event{
		"Order": int64(3), "Tau": 3.0, "Radians": 18.85, "Sin": 2.0, "Cos": -1.9, "Tan": 0.4,
	}, m, integerType())
	assert.Equal(t, types.Event{
		"OrderTarget": int64(3), "SinInt": int64(2), "CosInt": int64(-1), "TanInt": int64(0),
	}, projected)
}

func TestResolveMap_Invalid(t *testing.T) {
	base := types.StreamView{ID: "bad", SourceTypeID: "WaveData", TargetTypeID: "WaveDataInteger"}

	tests := []struct {
		name  string
		props []types.StreamViewProperty
	}{
		{"unknown source", []types.StreamViewProperty{{SourceID: "Nope", TargetID: "SinInt"}}},
		{"unknown target", []types.StreamViewProperty{{SourceID: "Sin", TargetID: "Nope"}}},
		{"duplicate source", []types.StreamViewProperty{
			{SourceID: "Sin", TargetID: "SinInt"}, {SourceID: "Sin", TargetID: "CosInt"},
		}},
		{"duplicate target", []types.StreamViewProperty{
			{SourceID: "Sin", TargetID: "SinInt"}, {SourceID: "Cos", TargetID: "SinInt"},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := base
			v.Properties = tt.props
			_, err := ResolveMap(&v, sourceType(), integerType())
			assert.True(t, errors.Is(err, sdserrors.ErrInvalidDefinition), "got %v", err)
		})
	}

	_, err := ResolveMap(&base, targetType(), integerType())
	assert.True(t, errors.Is(err, sdserrors.ErrInvalidDefinition), "types must match the view")

	strType := &types.Type{ID: "WaveDataInteger", Properties: []types.Property{
		{ID: "OrderTarget", DataType: types.DataTypeInt32, IsKey: true},
		{ID: "At", DataType: types.DataTypeDateTime},
	}}
	v := base
	v.Properties = []types.StreamViewProperty{{SourceID: "Sin", TargetID: "At"}}
	_, err = ResolveMap(&v, sourceType(), strType)
	assert.True(t, errors.Is(err, sdserrors.ErrInvalidDefinition), "Float64 cannot map to DateTime")
}

func TestProject_DefaultsAndPurity(t *testing.T) {
	m := &types.StreamViewMap{
		SourceTypeID: "WaveData",
		TargetTypeID: "WaveDataTarget",
		Properties:   []types.StreamViewMapProperty{{SourceID: "Order", TargetID: "OrderTarget"}},
	}
	source := types.Event{"Order": int64(7), "Sin": 0.5}

	out := Project(source, m, targetType())
	assert.Equal(t, int64(7), out["OrderTarget"])
	assert.Equal(t, 0.0, out["SinTarget"])
	assert.Len(t, out, 6)
	assert.Equal(t, types.Event{"Order": int64(7), "Sin": 0.5}, source, "source event is untouched")
}

func TestChain(t *testing.T) {
	autoMap, err := ResolveMap(&types.StreamView{ID: "a", SourceTypeID: "WaveData", TargetTypeID: "WaveDataTarget"},
		sourceType(), targetType())
	require.NoError(t, err)
	toInt, err := ResolveMap(&types.StreamView{
		ID: "b", SourceTypeID: "WaveDataTarget", TargetTypeID: "WaveDataInteger",
		Properties: []types.StreamViewProperty{
			{SourceID: "OrderTarget", TargetID: "OrderTarget"},
			{SourceID: "SinTarget", TargetID: "SinInt"},
		},
	}, targetType(), integerType())
	require.NoError(t, err)

	chain := Chain{NewProjector(autoMap, targetType()), NewProjector(toInt, integerType())}
	out := chain.ProjectAll([]types.Event{{"Order": int64(1), "Sin": -3.7}})
	assert.Equal(t, types.Event{"OrderTarget": int64(1), "SinInt": int64(-3), "CosInt": int64(0), "TanInt": int64(0)}, out[0])

	assert.Equal(t, []types.Event{{"x": 1}}, Chain(nil).ProjectAll([]types.Event{{"x": 1}}))
}
