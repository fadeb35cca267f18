package sample

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arkilian/sds/internal/catalog"
	"github.com/arkilian/sds/internal/service"
	"github.com/arkilian/sds/pkg/types"
)

func newService() *service.Service {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return service.New(catalog.New(catalog.WithLogger(logger)), service.WithLogger(logger))
}

func TestRun_Walkthrough(t *testing.T) {
	svc := newService()
	var out bytes.Buffer

	results, err := Run(context.Background(), svc, &out)
	require.NoError(t, err, out.String())

	text := out.String()
	assert.Contains(t, text, "Total events found: 10")
	assert.Contains(t, text, "Total events found: 20")
	assert.Contains(t, text, "All values deleted successfully!")
	assert.Contains(t, text, "The new type id "+TargetTypeID)
	assert.Contains(t, text, "With filtering 2.")
	assert.Contains(t, text, "Metadata key Province: Quebec")
	assert.Contains(t, text, "Cos => CosInt")
	assert.Contains(t, text, "Cosh => Not Mapped")
	assert.True(t, strings.HasSuffix(strings.TrimSpace(text), "done"))

	plan := Plan()
	require.Len(t, results, len(plan.Streams)+len(plan.Views)+len(plan.Types))
	for _, r := range results {
		assert.True(t, r.OK(), "%s %s: %v", r.Kind, r.ID, r.Err)
	}

	streams, err := svc.ListStreams("")
	require.NoError(t, err)
	assert.Empty(t, streams)
	list, err := svc.ListTypes("")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestRun_CleanupAfterFailure(t *testing.T) {
	svc := newService()
	conflicting := waveType()
	conflicting.ID = TypeID
	conflicting.Properties = conflicting.Properties[:2]
	_, err := svc.CreateOrUpdateType(context.Background(), conflicting)
	require.NoError(t, err)

	var out bytes.Buffer
	results, err := Run(context.Background(), svc, &out)
	require.Error(t, err)
	assert.Contains(t, out.String(), "Cleaning up")

	var failed int
	for _, r := range results {
		if !r.OK() {
			failed++
		}
	}
	assert.Positive(t, failed)
	list, err := svc.ListTypes("")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestFormatEvent(t *testing.T) {
	got := FormatEvent(types.Event{"Sin": 0.5, "Order": int64(2)})
	assert.Equal(t, "Order: 2, Sin: 0.5", got)
}

func TestPlan_StreamsBeforeDefinitions(t *testing.T) {
	p := Plan()
	assert.Contains(t, p.Streams, CompoundStreamID)
	assert.Contains(t, p.Views, ManualViewID)
	assert.Contains(t, p.Types, TargetIntTypeID)
}
