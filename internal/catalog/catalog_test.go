package catalog

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sdserrors "github.com/arkilian/sds/internal/errors"
	"github.com/arkilian/sds/pkg/types"
)

// memRepository keeps definitions in maps and can be told to fail.
type memRepository struct {
	types   map[string]*types.Type
	views   map[string]*types.StreamView
	streams map[string]*types.Stream
	fail    error
}

func newMemRepository() *memRepository {
	return &memRepository{
		types:   map[string]*types.Type{},
		views:   map[string]*types.StreamView{},
		streams: map[string]*types.Stream{},
	}
}

func (r *memRepository) SaveType(_ context.Context, t *types.Type) error {
	if r.fail != nil {
		return r.fail
	}
	r.types[t.ID] = t.Clone()
	return nil
}

func (r *memRepository) DeleteType(_ context.Context, id string) error {
	if r.fail != nil {
		return r.fail
	}
	delete(r.types, id)
	return nil
}

func (r *memRepository) SaveView(_ context.Context, v *types.StreamView) error {
	if r.fail != nil {
		return r.fail
	}
	r.views[v.ID] = v.Clone()
	return nil
}

func (r *memRepository) DeleteView(_ context.Context, id string) error {
	if r.fail != nil {
		return r.fail
	}
	delete(r.views, id)
	return nil
}

func (r *memRepository) SaveStream(_ context.Context, s *types.Stream) error {
	if r.fail != nil {
		return r.fail
	}
	r.streams[s.ID] = s.Clone()
	return nil
}

func (r *memRepository) DeleteStream(_ context.Context, id string) error {
	if r.fail != nil {
		return r.fail
	}
	delete(r.streams, id)
	return nil
}

func (r *memRepository) Load(context.Context) (*State, error) {
	st := &State{}
	for _, t := range r.types {
		st.Types = append(st.Types, t.Clone())
	}
	for _, v := range r.views {
		st.Views = append(st.Views, v.Clone())
	}
	for _, s := range r.streams {
		st.Streams = append(st.Streams, s.Clone())
	}
	return st, nil
}

func waveType() *types.Type {
	return &types.Type{
		ID:   "WaveData",
		Name: "WaveData",
		Properties: []types.Property{
			{ID: "Order", DataType: types.DataTypeInt32, IsKey: true},
			{ID: "Radians", DataType: types.DataTypeFloat64},
			{ID: "Sin", DataType: types.DataTypeFloat64},
		},
	}
}

func waveTargetType() *types.Type {
	return &types.Type{
		ID: "WaveDataTarget",
		Properties: []types.Property{
			{ID: "OrderTarget", DataType: types.DataTypeInt32, IsKey: true},
			{ID: "RadiansTarget", DataType: types.DataTypeFloat64},
			{ID: "SinTarget", DataType: types.DataTypeFloat64},
		},
	}
}

func waveIntType() *types.Type {
	return &types.Type{
		ID: "WaveDataInteger",
		Properties: []types.Property{
			{ID: "OrderTarget", DataType: types.DataTypeInt32, IsKey: true},
			{ID: "SinInt", DataType: types.DataTypeInt32},
		},
	}
}

func newTestCatalog(t *testing.T) (*Catalog, *memRepository) {
	t.Helper()
	repo := newMemRepository()
	c := New(WithRepository(repo))
	ctx := context.Background()
	for _, typ := range []*types.Type{waveType(), waveTargetType(), waveIntType()} {
		_, err := c.CreateOrGetType(ctx, typ)
		require.NoError(t, err)
	}
	return c, repo
}

func TestCatalog_CreateOrGetType(t *testing.T) {
	c, _ := newTestCatalog(t)
	ctx := context.Background()

	got, err := c.CreateOrGetType(ctx, waveType())
	require.NoError(t, err)
	assert.Equal(t, "WaveData", got.ID)

	changed := waveType()
	changed.Description = "other"
	_, err = c.CreateOrGetType(ctx, changed)
	assert.True(t, errors.Is(err, sdserrors.ErrConflict), "got %v", err)

	_, err = c.CreateOrGetType(ctx, &types.Type{ID: "NoKey", Properties: []types.Property{{ID: "x", DataType: types.DataTypeFloat64}}})
	assert.True(t, errors.Is(err, sdserrors.ErrInvalidDefinition))

	_, err = c.GetType("Missing")
	assert.True(t, errors.Is(err, sdserrors.ErrNotFound))
}

func TestCatalog_ListTypesFiltered(t *testing.T) {
	c, _ := newTestCatalog(t)

	all, err := c.ListTypes("")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	targets, err := c.ListTypes("contains(Id, 'Target')")
	require.NoError(t, err)
	require.Len(t, targets, 1)
	assert.Equal(t, "WaveDataTarget", targets[0].ID)

	_, err = c.ListTypes("contains(Id,")
	assert.True(t, errors.Is(err, sdserrors.ErrInvalidDefinition))
}

func TestCatalog_StreamLifecycle(t *testing.T) {
	c, repo := newTestCatalog(t)
	ctx := context.Background()

	s, err := c.CreateOrGetStream(ctx, &types.Stream{ID: "s1", TypeID: "WaveData"})
	require.NoError(t, err)
	assert.Equal(t, "WaveData", s.StorageTypeID)
	assert.Contains(t, repo.streams, "s1")

	again, err := c.CreateOrGetStream(ctx, &types.Stream{ID: "s1", TypeID: "WaveData", Name: "ignored"})
	require.NoError(t, err)
	assert.Empty(t, again.Name, "create-or-get returns the existing stream")

	_, err = c.CreateOrGetStream(ctx, &types.Stream{ID: "s1", TypeID: "WaveDataTarget"})
	assert.True(t, errors.Is(err, sdserrors.ErrConflict))

	_, err = c.CreateOrGetStream(ctx, &types.Stream{ID: "s2", TypeID: "Missing"})
	assert.True(t, errors.Is(err, sdserrors.ErrNotFound))

	e, err := c.Lookup("s1")
	require.NoError(t, err)
	require.NoError(t, e.Store().Insert(types.Event{"Order": 1, "Sin": 0.5}))

	require.NoError(t, c.DeleteStream(ctx, "s1"))
	_, err = c.Lookup("s1")
	assert.True(t, errors.Is(err, sdserrors.ErrNotFound))
	assert.NotContains(t, repo.streams, "s1")

	_, err = c.CreateOrGetStream(ctx, &types.Stream{ID: "s1", TypeID: "WaveData"})
	require.NoError(t, err)
	e, err = c.Lookup("s1")
	require.NoError(t, err)
	assert.Equal(t, 0, e.Store().Len(), "deleting a stream drops its events")

	err = c.DeleteStream(ctx, "nope")
	assert.True(t, errors.Is(err, sdserrors.ErrNotFound))
}

func TestCatalog_CreateOrUpdateStream(t *testing.T) {
	c, _ := newTestCatalog(t)
	ctx := context.Background()

	_, err := c.CreateOrUpdateStream(ctx, &types.Stream{ID: "s1", TypeID: "WaveData", Tags: []string{"a"}})
	require.NoError(t, err)

	updated, err := c.CreateOrUpdateStream(ctx, &types.Stream{
		ID:                "s1",
		Name:              "Wave",
		PropertyOverrides: []types.PropertyOverride{{PropertyID: "Sin", InterpolationMode: types.InterpolationDiscrete}},
		Indexes:           []types.IndexDefinition{{PropertyID: "Radians"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "Wave", updated.Name)
	assert.Equal(t, []string{"a"}, updated.Tags, "nil tags keep the existing ones")

	e, err := c.Lookup("s1")
	require.NoError(t, err)
	assert.Equal(t, []string{"Radians"}, e.Indexes().Indexes())

	require.NoError(t, e.Store().InsertBatch([]types.Event{{"Order": 0, "Sin": 0.0}, {"Order": 2, "Sin": 1.0}}))
	k, err := e.Store().Key(1)
	require.NoError(t, err)
	ev, err := e.Store().GetAt(k, types.BoundaryExactOrCalculated)
	require.NoError(t, err)
	assert.Equal(t, 0.0, ev["Sin"], "discrete override applies immediately")

	_, err = c.CreateOrUpdateStream(ctx, &types.Stream{ID: "s1", TypeID: "WaveDataTarget"})
	assert.True(t, errors.Is(err, sdserrors.ErrInvalidDefinition))

	_, err = c.CreateOrUpdateStream(ctx, &types.Stream{ID: "s1", Indexes: []types.IndexDefinition{{PropertyID: "Order"}}})
	assert.True(t, errors.Is(err, sdserrors.ErrInvalidDefinition))
	assert.Equal(t, []string{"Radians"}, e.Indexes().Indexes(), "a rejected update changes nothing")

	_, err = c.CreateOrUpdateStream(ctx, &types.Stream{ID: "s1", PropertyOverrides: []types.PropertyOverride{{PropertyID: "Nope", InterpolationMode: types.InterpolationDiscrete}}})
	assert.True(t, errors.Is(err, sdserrors.ErrInvalidDefinition))
}

func TestCatalog_UpdateStreamType(t *testing.T) {
	c, _ := newTestCatalog(t)
	ctx := context.Background()

	_, err := c.CreateOrGetStream(ctx, &types.Stream{ID: "s1", TypeID: "WaveData"})
	require.NoError(t, err)
	_, err = c.CreateOrUpdateView(ctx, &types.StreamView{ID: "auto", SourceTypeID: "WaveData", TargetTypeID: "WaveDataTarget"})
	require.NoError(t, err)
	_, err = c.CreateOrUpdateView(ctx, &types.StreamView{
		ID: "manual", SourceTypeID: "WaveData", TargetTypeID: "WaveDataInteger",
		Properties: []types.StreamViewProperty{{SourceID: "Order", TargetID: "OrderTarget"}, {SourceID: "Sin", TargetID: "SinInt"}},
	})
	require.NoError(t, err)

	s, err := c.UpdateStreamType(ctx, "s1", "auto")
	require.NoError(t, err)
	assert.Equal(t, "WaveDataTarget", s.TypeID)
	assert.Equal(t, "WaveData", s.StorageTypeID)
	assert.Equal(t, []string{"auto"}, s.Views)

	e, err := c.Lookup("s1")
	require.NoError(t, err)
	assert.Equal(t, "WaveDataTarget", e.ReadType().ID)
	out := e.Chain().Project(types.Event{"Order": int64(3), "Radians": 1.5, "Sin": 0.25})
	assert.Equal(t, types.Event{"OrderTarget": int64(3), "RadiansTarget": 1.5, "SinTarget": 0.25}, out)

	_, err = c.UpdateStreamType(ctx, "s1", "manual")
	assert.True(t, errors.Is(err, sdserrors.ErrInvalidDefinition), "manual reads WaveData, stream now reads WaveDataTarget")

	_, err = c.UpdateStreamType(ctx, "s1", "missing")
	assert.True(t, errors.Is(err, sdserrors.ErrNotFound))

	err = c.DeleteView(ctx, "auto")
	assert.True(t, errors.Is(err, sdserrors.ErrConflict))
	require.NoError(t, c.DeleteView(ctx, "manual"))

	err = c.DeleteType(ctx, "WaveDataTarget")
	assert.True(t, errors.Is(err, sdserrors.ErrConflict), "read type is in use")
}

func TestCatalog_ViewMaps(t *testing.T) {
	c, _ := newTestCatalog(t)
	ctx := context.Background()

	_, err := c.CreateOrUpdateView(ctx, &types.StreamView{ID: "v", SourceTypeID: "WaveData", TargetTypeID: "Missing"})
	assert.True(t, errors.Is(err, sdserrors.ErrNotFound))

	_, err = c.CreateOrUpdateView(ctx, &types.StreamView{
		ID: "v", SourceTypeID: "WaveData", TargetTypeID: "WaveDataInteger",
		Properties: []types.StreamViewProperty{{SourceID: "Tau", TargetID: "SinInt"}},
	})
	assert.True(t, errors.Is(err, sdserrors.ErrInvalidDefinition))

	_, err = c.CreateOrUpdateView(ctx, &types.StreamView{ID: "v", SourceTypeID: "WaveData", TargetTypeID: "WaveDataTarget"})
	require.NoError(t, err)
	m, err := c.GetViewMap("v")
	require.NoError(t, err)
	require.Len(t, m.Properties, 3)
	assert.Equal(t, "OrderTarget", m.Properties[0].TargetID)

	assert.Len(t, c.ListViews(), 1)
	err = c.DeleteType(ctx, "WaveDataTarget")
	assert.True(t, errors.Is(err, sdserrors.ErrConflict), "view target is in use")

	require.NoError(t, c.DeleteView(ctx, "v"))
	require.NoError(t, c.DeleteType(ctx, "WaveDataTarget"))
	_, err = c.GetViewMap("v")
	assert.True(t, errors.Is(err, sdserrors.ErrNotFound))
}

func TestCatalog_CreateOrUpdateType(t *testing.T) {
	c, _ := newTestCatalog(t)
	ctx := context.Background()

	_, err := c.CreateOrGetStream(ctx, &types.Stream{ID: "s1", TypeID: "WaveData"})
	require.NoError(t, err)

	withTau := waveType()
	withTau.Properties = append(withTau.Properties, types.Property{ID: "Tau", DataType: types.DataTypeFloat64})
	_, err = c.CreateOrUpdateType(ctx, withTau)
	require.NoError(t, err, "an empty stream follows the new definition")

	e, err := c.Lookup("s1")
	require.NoError(t, err)
	require.NoError(t, e.Store().Insert(types.Event{"Order": 1, "Tau": 2.0}))

	withoutTau := waveType()
	_, err = c.CreateOrUpdateType(ctx, withoutTau)
	assert.True(t, errors.Is(err, sdserrors.ErrConflict), "got %v", err)
	assert.Equal(t, sdserrors.CodeTypeInUse, sdserrors.GetCode(err))

	rekeyed := withTau.Clone()
	rekeyed.Properties[0].DataType = types.DataTypeInt64
	_, err = c.CreateOrUpdateType(ctx, rekeyed)
	assert.True(t, errors.Is(err, sdserrors.ErrInvalidDefinition))
	assert.Equal(t, sdserrors.CodeKeyImmutable, sdserrors.GetCode(err))

	got, err := c.GetType("WaveData")
	require.NoError(t, err)
	assert.True(t, got.Equal(withTau), "rejected updates leave the type unchanged")
}

func TestCatalog_TagsAndMetadata(t *testing.T) {
	c, repo := newTestCatalog(t)
	ctx := context.Background()
	_, err := c.CreateOrGetStream(ctx, &types.Stream{ID: "s1", TypeID: "WaveData"})
	require.NoError(t, err)

	tags, err := c.GetTags("s1")
	require.NoError(t, err)
	assert.Empty(t, tags)

	require.NoError(t, c.SetTags(ctx, "s1", []string{"waves", "periodic"}))
	tags, err = c.GetTags("s1")
	require.NoError(t, err)
	assert.Equal(t, []string{"waves", "periodic"}, tags)

	require.NoError(t, c.SetMetadata(ctx, "s1", map[string]string{"Region": "North America"}))
	require.NoError(t, c.SetMetadataEntry(ctx, "s1", "Country", "USA"))
	md, err := c.GetMetadata("s1")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"Region": "North America", "Country": "USA"}, md)
	assert.Equal(t, "USA", repo.streams["s1"].Metadata["Country"])

	v, err := c.GetMetadataValue("s1", "Region")
	require.NoError(t, err)
	assert.Equal(t, "North America", v)

	_, err = c.GetMetadataValue("s1", "Missing")
	assert.True(t, errors.Is(err, sdserrors.ErrNotFound))
	assert.Equal(t, sdserrors.CodeMetadataNotFound, sdserrors.GetCode(err))

	err = c.SetTags(ctx, "missing", nil)
	assert.True(t, errors.Is(err, sdserrors.ErrNotFound))
}

func TestCatalog_ListStreamsFiltered(t *testing.T) {
	c, _ := newTestCatalog(t)
	ctx := context.Background()
	for i, typ := range []string{"WaveData", "WaveDataTarget", "WaveData"} {
		_, err := c.CreateOrGetStream(ctx, &types.Stream{ID: fmt.Sprintf("s%d", i), TypeID: typ})
		require.NoError(t, err)
	}

	all, err := c.ListStreams("")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "s0", all[0].ID)

	waves, err := c.ListStreams("TypeId eq 'WaveData'")
	require.NoError(t, err)
	assert.Len(t, waves, 2)
}

func TestCatalog_RepositoryFailureChangesNothing(t *testing.T) {
	c, repo := newTestCatalog(t)
	ctx := context.Background()
	repo.fail = errors.New("disk full")

	_, err := c.CreateOrGetStream(ctx, &types.Stream{ID: "s1", TypeID: "WaveData"})
	require.Error(t, err)
	assert.Equal(t, sdserrors.ErrCategoryStorage, sdserrors.GetCategory(err))
	_, err = c.Lookup("s1")
	assert.True(t, errors.Is(err, sdserrors.ErrNotFound))

	err = c.DeleteType(ctx, "WaveDataInteger")
	require.Error(t, err)
	_, err = c.GetType("WaveDataInteger")
	assert.NoError(t, err)
}

func TestCatalog_Restore(t *testing.T) {
	c, repo := newTestCatalog(t)
	ctx := context.Background()
	_, err := c.CreateOrUpdateStream(ctx, &types.Stream{ID: "s1", TypeID: "WaveData", Indexes: []types.IndexDefinition{{PropertyID: "Sin"}}})
	require.NoError(t, err)
	_, err = c.CreateOrUpdateView(ctx, &types.StreamView{ID: "auto", SourceTypeID: "WaveData", TargetTypeID: "WaveDataTarget"})
	require.NoError(t, err)
	_, err = c.UpdateStreamType(ctx, "s1", "auto")
	require.NoError(t, err)

	restored := New(WithRepository(repo))
	require.NoError(t, restored.Restore(ctx))

	defs, err := restored.ListTypes("")
	require.NoError(t, err)
	assert.Len(t, defs, 3)

	e, err := restored.Lookup("s1")
	require.NoError(t, err)
	assert.Equal(t, "WaveDataTarget", e.ReadType().ID)
	assert.Equal(t, []string{"Sin"}, e.Indexes().Indexes())
	assert.Len(t, e.Chain(), 1)
}
