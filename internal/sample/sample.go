// Package sample runs the wave walkthrough against a Service: it creates
// types, streams and stream views, writes and reads wave events through
// every data operation, and cleans up everything it created.
package sample

import (
	"context"
	"fmt"
	"io"
	"math"
	"slices"
	"strings"

	"github.com/arkilian/sds/internal/service"
	"github.com/arkilian/sds/pkg/types"
)

// Resource ids used by the walkthrough.
const (
	StreamID          = "SampleStream"
	SecondaryStreamID = "SampleStream_Secondary"
	CompoundStreamID  = "SampleStream_Compound"

	TypeID          = "SampleType"
	TargetTypeID    = "SampleType_Target"
	TargetIntTypeID = "SampleType_TargetInt"
	CompoundTypeID  = "SampleType_Compound"

	AutoViewID   = "SampleAutoStreamView"
	ManualViewID = "SampleManualStreamView"
)

var waveValues = []string{"Tau", "Radians", "Sin", "Cos", "Tan", "Sinh", "Cosh", "Tanh"}

func waveType() *types.Type {
	t := &types.Type{
		ID:          TypeID,
		Description: "wave measurements indexed by order",
		Properties:  []types.Property{{ID: "Order", DataType: types.DataTypeInt32, IsKey: true}},
	}
	for _, id := range waveValues {
		t.Properties = append(t.Properties, types.Property{ID: id, DataType: types.DataTypeFloat64})
	}
	return t
}

func targetType() *types.Type {
	t := &types.Type{
		ID:         TargetTypeID,
		Properties: []types.Property{{ID: "OrderTarget", DataType: types.DataTypeInt32, IsKey: true}},
	}
	for _, id := range waveValues {
		t.Properties = append(t.Properties, types.Property{ID: id + "Target", DataType: types.DataTypeFloat64})
	}
	return t
}

func targetIntType() *types.Type {
	return &types.Type{
		ID: TargetIntTypeID,
		Properties: []types.Property{
			{ID: "OrderTarget", DataType: types.DataTypeInt32, IsKey: true},
			{ID: "SinInt", DataType: types.DataTypeInt32},
			{ID: "CosInt", DataType: types.DataTypeInt32},
			{ID: "TanInt", DataType: types.DataTypeInt32},
		},
	}
}

func compoundType() *types.Type {
	t := &types.Type{
		ID: CompoundTypeID,
		Properties: []types.Property{
			{ID: "Order", DataType: types.DataTypeInt32, IsKey: true, KeyOrder: 1},
			{ID: "Multiplier", DataType: types.DataTypeInt32, IsKey: true, KeyOrder: 2},
		},
	}
	for _, id := range waveValues {
		t.Properties = append(t.Properties, types.Property{ID: id, DataType: types.DataTypeFloat64})
	}
	return t
}

// Wave returns the wave event at order scaled by multiplier.
func Wave(order int, multiplier float64) types.Event {
	radians := float64(order) * 2 * math.Pi
	return types.Event{
		"Order":   int64(order),
		"Radians": radians,
		"Tau":     radians / (2 * math.Pi),
		"Sin":     multiplier * math.Sin(radians),
		"Cos":     multiplier * math.Cos(radians),
		"Tan":     multiplier * math.Tan(radians),
		"Sinh":    multiplier * math.Sinh(radians),
		"Cosh":    multiplier * math.Cosh(radians),
		"Tanh":    multiplier * math.Tanh(radians),
	}
}

func compoundWave(order, multiplier int) types.Event {
	ev := Wave(order, float64(multiplier))
	ev["Multiplier"] = int64(multiplier)
	return ev
}

// Plan lists every resource the walkthrough may create.
func Plan() service.CleanupPlan {
	return service.CleanupPlan{
		Streams: []string{StreamID, SecondaryStreamID, CompoundStreamID},
		Views:   []string{AutoViewID, ManualViewID},
		Types:   []string{TypeID, CompoundTypeID, TargetTypeID, TargetIntTypeID},
	}
}

// FormatEvent renders ev with its properties in name order.
func FormatEvent(ev types.Event) string {
	names := make([]string, 0, len(ev))
	for k := range ev {
		names = append(names, k)
	}
	slices.Sort(names)
	parts := make([]string, len(names))
	for i, k := range names {
		parts[i] = k + ": " + types.FormatValue(ev[k])
	}
	return strings.Join(parts, ", ")
}

type walkthrough struct {
	ctx context.Context
	svc *service.Service
	w   io.Writer
}

func (r *walkthrough) printf(format string, args ...any) {
	fmt.Fprintf(r.w, format+"\n", args...)
}

func (r *walkthrough) printEvents(events []types.Event) {
	for _, ev := range events {
		r.printf("%s", FormatEvent(ev))
	}
	r.printf("")
}

func (r *walkthrough) key(streamID, text string) (types.Key, error) {
	return r.svc.ParseIndex(streamID, text, service.ReadOptions{})
}

func (r *walkthrough) window(streamID, start, end string, opts service.ReadOptions) ([]types.Event, error) {
	s, err := r.key(streamID, start)
	if err != nil {
		return nil, err
	}
	e, err := r.key(streamID, end)
	if err != nil {
		return nil, err
	}
	return r.svc.GetWindow(streamID, s, e, opts)
}

func (r *walkthrough) rangeFrom(streamID, start string, count int, opts service.ReadOptions) ([]types.Event, error) {
	s, err := r.key(streamID, start)
	if err != nil {
		return nil, err
	}
	return r.svc.GetRange(streamID, s, count, types.BoundaryExactOrCalculated, opts)
}

// Run executes the walkthrough, writing its narration to w. Cleanup runs
// even when a step fails; each cleanup outcome is printed and returned.
func Run(ctx context.Context, svc *service.Service, w io.Writer) ([]service.Result, error) {
	r := &walkthrough{ctx: ctx, svc: svc, w: w}
	err := r.run()
	if err != nil {
		r.printf("%v", err)
	}

	r.printf("Cleaning up")
	results := svc.Cleanup(ctx, Plan())
	for _, res := range results {
		if res.OK() {
			r.printf("Deleted %s %s", res.Kind, res.ID)
		} else {
			r.printf("Got error deleting %s %s but continued on: %v", res.Kind, res.ID, res.Err)
		}
	}
	r.printf("done")
	return results, err
}

func (r *walkthrough) run() error {
	steps := []func() error{
		r.createStream,
		r.insertAndRead,
		r.updateAndReplace,
		r.interpolate,
		r.streamViews,
		r.rebind,
		r.tagsAndMetadata,
		r.removeValues,
		r.secondaryIndexes,
		r.compoundIndex,
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
	}
	return nil
}

func (r *walkthrough) createStream() error {
	r.printf("Creating a type")
	t, err := r.svc.CreateOrGetType(r.ctx, waveType())
	if err != nil {
		return err
	}
	r.printf("Creating a stream")
	_, err = r.svc.CreateOrGetStream(r.ctx, &types.Stream{
		ID:          StreamID,
		Name:        "Wave Data Sample",
		TypeID:      t.ID,
		Description: "A sample stream for storing wave measurements",
	})
	return err
}

func (r *walkthrough) insertAndRead() error {
	r.printf("Inserting data")
	if err := r.svc.Insert(StreamID, Wave(0, 2)); err != nil {
		return err
	}
	var waves []types.Event
	for i := 2; i <= 18; i += 2 {
		waves = append(waves, Wave(i, 2))
	}
	if err := r.svc.InsertBatch(StreamID, waves); err != nil {
		return err
	}

	r.printf("Getting latest event")
	last, err := r.svc.GetLast(StreamID, service.ReadOptions{})
	if err != nil {
		return err
	}
	r.printf("%s", FormatEvent(last))
	r.printf("")

	r.printf("Getting all events")
	all, err := r.window(StreamID, "0", "180", service.ReadOptions{})
	if err != nil {
		return err
	}
	r.printf("Total events found: %d", len(all))
	r.printEvents(all)
	return nil
}

func (r *walkthrough) updateAndReplace() error {
	r.printf("Updating events")
	if err := r.svc.Update(StreamID, Wave(0, 4)); err != nil {
		return err
	}
	var updated []types.Event
	for i := 2; i < 40; i += 2 {
		updated = append(updated, Wave(i, 4))
	}
	if err := r.svc.UpdateBatch(StreamID, updated); err != nil {
		return err
	}
	all, err := r.window(StreamID, "0", "180", service.ReadOptions{})
	if err != nil {
		return err
	}
	r.printf("Getting updated events")
	r.printf("Total events found: %d", len(all))
	r.printEvents(all)

	r.printf("Replacing events")
	first := all[0].Clone()
	first["Sin"], first["Cos"] = 0.717, 0.717
	first["Tan"] = math.Sqrt(2 * 0.717 * 0.717)
	if err := r.svc.Replace(StreamID, first); err != nil {
		return err
	}
	for _, ev := range all {
		ev["Sin"] = 5.0 / 2
		ev["Cos"] = 5 * math.Sqrt(3) / 2
		ev["Tan"] = 5 / math.Sqrt(3)
	}
	if err := r.svc.ReplaceBatch(StreamID, all); err != nil {
		return err
	}
	replaced, err := r.window(StreamID, "0", "180", service.ReadOptions{})
	if err != nil {
		return err
	}
	r.printf("Getting replaced events")
	r.printf("Total events found: %d", len(replaced))
	r.printEvents(replaced)
	return nil
}

func (r *walkthrough) interpolate() error {
	r.printf("Reading at index 1, where no event is stored, calculates a value for each continuous property:")
	got, err := r.rangeFrom(StreamID, "1", 3, service.ReadOptions{})
	if err != nil {
		return err
	}
	r.printEvents(got)

	r.printf("Sampling calculates a value at each of 5, 14, 23 and 32:")
	start, err := r.key(StreamID, "5")
	if err != nil {
		return err
	}
	end, err := r.key(StreamID, "32")
	if err != nil {
		return err
	}
	sampled, err := r.svc.GetSampled(StreamID, start, end, 4, service.ReadOptions{})
	if err != nil {
		return err
	}
	r.printEvents(sampled)

	r.printf("Only events whose radians are less than 50:")
	lo, err := r.key(StreamID, "0")
	if err != nil {
		return err
	}
	hi, err := r.key(StreamID, "180")
	if err != nil {
		return err
	}
	filtered, err := r.svc.GetWindowFiltered(StreamID, lo, hi, types.BoundaryExactOrCalculated, "Radians lt 50", service.ReadOptions{})
	if err != nil {
		return err
	}
	r.printEvents(filtered)

	def, err := r.svc.GetStream(StreamID)
	if err != nil {
		return err
	}
	def.PropertyOverrides = []types.PropertyOverride{{PropertyID: "Radians", InterpolationMode: types.InterpolationDiscrete}}
	if _, err := r.svc.CreateOrUpdateStream(r.ctx, def); err != nil {
		return err
	}
	got, err = r.rangeFrom(StreamID, "1", 3, service.ReadOptions{})
	if err != nil {
		return err
	}
	r.printf("With a discrete override on Radians, the calculated event carries the default value:")
	r.printEvents(got)
	return nil
}

func (r *walkthrough) streamViews() error {
	r.printf("Stream views")
	for _, t := range []*types.Type{targetType(), targetIntType()} {
		if _, err := r.svc.CreateOrUpdateType(r.ctx, t); err != nil {
			return err
		}
	}
	views := []*types.StreamView{
		{ID: AutoViewID, SourceTypeID: TypeID, TargetTypeID: TargetTypeID},
		{ID: ManualViewID, SourceTypeID: TypeID, TargetTypeID: TargetIntTypeID, Properties: []types.StreamViewProperty{
			{SourceID: "Order", TargetID: "OrderTarget"},
			{SourceID: "Sin", TargetID: "SinInt"},
			{SourceID: "Cos", TargetID: "CosInt"},
			{SourceID: "Tan", TargetID: "TanInt"},
		}},
	}
	for _, v := range views {
		if _, err := r.svc.CreateOrUpdateView(r.ctx, v); err != nil {
			return err
		}
	}

	stored, err := r.rangeFrom(StreamID, "1", 3, service.ReadOptions{})
	if err != nil {
		return err
	}
	r.printf("Stored data:")
	for _, ev := range stored {
		r.printf("Sin: %s, Cos: %s, Tan: %s", types.FormatValue(ev["Sin"]), types.FormatValue(ev["Cos"]), types.FormatValue(ev["Tan"]))
	}
	r.printf("")

	auto, err := r.rangeFrom(StreamID, "1", 3, service.ReadOptions{ViewID: AutoViewID})
	if err != nil {
		return err
	}
	r.printf("A view onto a type of the same shape maps properties automatically:")
	for _, ev := range auto {
		r.printf("SinTarget: %s, CosTarget: %s, TanTarget: %s",
			types.FormatValue(ev["SinTarget"]), types.FormatValue(ev["CosTarget"]), types.FormatValue(ev["TanTarget"]))
	}
	r.printf("")

	manual, err := r.rangeFrom(StreamID, "1", 3, service.ReadOptions{ViewID: ManualViewID})
	if err != nil {
		return err
	}
	r.printf("A view can also convert values, here doubles into integers:")
	for _, ev := range manual {
		r.printf("SinInt: %s, CosInt: %s, TanInt: %s",
			types.FormatValue(ev["SinInt"]), types.FormatValue(ev["CosInt"]), types.FormatValue(ev["TanInt"]))
	}
	r.printf("")

	for _, id := range []string{AutoViewID, ManualViewID} {
		m, err := r.svc.GetViewMap(id)
		if err != nil {
			return err
		}
		r.printf("Map of %s:", id)
		for _, p := range m.Properties {
			target := p.TargetID
			if target == "" {
				target = "Not Mapped"
			}
			r.printf("%s => %s", p.SourceID, target)
		}
		r.printf("")
	}
	return nil
}

func (r *walkthrough) rebind() error {
	r.printf("Rebinding the stream through %s", AutoViewID)
	before, err := r.svc.GetFirst(StreamID, service.ReadOptions{})
	if err != nil {
		return err
	}
	def, err := r.svc.UpdateStreamType(r.ctx, StreamID, AutoViewID)
	if err != nil {
		return err
	}
	after, err := r.svc.GetFirst(StreamID, service.ReadOptions{})
	if err != nil {
		return err
	}
	r.printf("The new type id %s compared to the original one %s.", def.TypeID, TypeID)
	r.printf("The new first event %s compared to the original one %s.", FormatEvent(after), FormatEvent(before))

	all, err := r.svc.ListTypes("")
	if err != nil {
		return err
	}
	targets, err := r.svc.ListTypes("contains(Id, 'Target')")
	if err != nil {
		return err
	}
	r.printf("The number of types returned without filtering: %d. With filtering %d.", len(all), len(targets))
	return nil
}

func (r *walkthrough) tagsAndMetadata() error {
	r.printf("Adding tags and metadata to the stream:")
	if err := r.svc.SetTags(r.ctx, StreamID, []string{"waves", "periodic", "2018", "validated"}); err != nil {
		return err
	}
	md := map[string]string{"Region": "North America", "Country": "Canada", "Province": "Quebec"}
	if err := r.svc.SetMetadata(r.ctx, StreamID, md); err != nil {
		return err
	}
	tags, err := r.svc.GetTags(StreamID)
	if err != nil {
		return err
	}
	r.printf("Tags now associated with %s:", StreamID)
	for _, tag := range tags {
		r.printf("%s", tag)
	}
	r.printf("Metadata now associated with %s:", StreamID)
	for _, k := range []string{"Region", "Country", "Province"} {
		v, err := r.svc.GetMetadataValue(StreamID, k)
		if err != nil {
			return err
		}
		r.printf("Metadata key %s: %s", k, v)
	}
	r.printf("")
	return nil
}

func (r *walkthrough) removeValues() error {
	r.printf("Deleting values from the stream")
	k, err := r.key(StreamID, "0")
	if err != nil {
		return err
	}
	if err := r.svc.Remove(StreamID, k); err != nil {
		return err
	}
	start, err := r.key(StreamID, "1")
	if err != nil {
		return err
	}
	end, err := r.key(StreamID, "200")
	if err != nil {
		return err
	}
	if err := r.svc.RemoveWindow(StreamID, start, end); err != nil {
		return err
	}
	left, err := r.window(StreamID, "0", "200", service.ReadOptions{})
	if err != nil {
		return err
	}
	if len(left) == 0 {
		r.printf("All values deleted successfully!")
	}
	r.printf("")
	return nil
}

func (r *walkthrough) secondaryIndexes() error {
	r.printf("Adding a stream with a secondary index.")
	secondary, err := r.svc.CreateOrGetStream(r.ctx, &types.Stream{
		ID:      SecondaryStreamID,
		TypeID:  TypeID,
		Indexes: []types.IndexDefinition{{PropertyID: "Radians"}},
	})
	if err != nil {
		return err
	}
	stream, err := r.svc.GetStream(StreamID)
	if err != nil {
		return err
	}
	r.printf("Secondary indexes on streams. %s:%d. %s:%d.", stream.ID, len(stream.Indexes), secondary.ID, len(secondary.Indexes))

	r.printf("Modifying a stream to have a secondary index.")
	stream.Indexes = []types.IndexDefinition{{PropertyID: "Radians"}}
	if stream, err = r.svc.CreateOrUpdateStream(r.ctx, stream); err != nil {
		return err
	}

	r.printf("Removing a secondary index from a stream.")
	secondary.Indexes = nil
	if secondary, err = r.svc.CreateOrUpdateStream(r.ctx, secondary); err != nil {
		return err
	}
	r.printf("Secondary indexes on streams. %s:%d. %s:%d.", stream.ID, len(stream.Indexes), secondary.ID, len(secondary.Indexes))
	r.printf("")
	return nil
}

func (r *walkthrough) compoundIndex() error {
	r.printf("Creating a type with a compound index")
	t, err := r.svc.CreateOrGetType(r.ctx, compoundType())
	if err != nil {
		return err
	}
	r.printf("Creating a stream of the compound type")
	if _, err := r.svc.CreateOrGetStream(r.ctx, &types.Stream{
		ID:          CompoundStreamID,
		Name:        "Wave Data Sample",
		TypeID:      t.ID,
		Description: "A sample stream for storing wave measurements",
	}); err != nil {
		return err
	}

	r.printf("Inserting data")
	for _, om := range [][2]int{{1, 10}, {2, 2}, {3, 1}, {10, 3}, {10, 8}, {10, 10}} {
		if err := r.svc.Insert(CompoundStreamID, compoundWave(om[0], om[1])); err != nil {
			return err
		}
	}
	first, err := r.svc.GetFirst(CompoundStreamID, service.ReadOptions{})
	if err != nil {
		return err
	}
	last, err := r.svc.GetLast(CompoundStreamID, service.ReadOptions{})
	if err != nil {
		return err
	}
	r.printf("First data: %s. Latest data: %s.", FormatEvent(first), FormatEvent(last))
	r.printf("")

	start := "2" + types.KeySeparator + "1"
	end := "10" + types.KeySeparator + "8"
	data, err := r.window(CompoundStreamID, start, end, service.ReadOptions{})
	if err != nil {
		return err
	}
	r.printf("Window data:")
	r.printEvents(data)
	return nil
}
