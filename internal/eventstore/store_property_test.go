package eventstore

import (
	"errors"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	sdserrors "github.com/arkilian/sds/internal/errors"
	"github.com/arkilian/sds/pkg/types"
)

// TestProperty_WindowIsOrdered checks that any sequence of inserts reads
// back in ascending key order without duplicates.
func TestProperty_WindowIsOrdered(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("getWindow returns ascending unique keys", prop.ForAll(
		func(keys []int32) bool {
			s := New("p", waveType())
			distinct := make(map[int32]bool)
			for _, k := range keys {
				err := s.Insert(types.Event{"Order": k})
				if distinct[k] {
					if !errors.Is(err, sdserrors.ErrConflict) {
						return false
					}
					continue
				}
				if err != nil {
					return false
				}
				distinct[k] = true
			}

			events, err := s.GetWindow(types.Key{int64(-1000)}, types.Key{int64(1000)})
			if err != nil || len(events) != len(distinct) {
				return false
			}
			for i := 1; i < len(events); i++ {
				if events[i-1]["Order"].(int64) >= events[i]["Order"].(int64) {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.Int32Range(-1000, 1000)),
	))

	properties.Property("update never duplicates a key", prop.ForAll(
		func(keys []int32) bool {
			s := New("p", waveType())
			distinct := make(map[int32]bool)
			for _, k := range keys {
				if err := s.Update(types.Event{"Order": k, "Radians": float64(k)}); err != nil {
					return false
				}
				distinct[k] = true
			}
			return s.Len() == len(distinct)
		},
		gen.SliceOf(gen.Int32Range(-50, 50)),
	))

	properties.Property("interpolation is linear between neighbors", prop.ForAll(
		func(lo, span, offset int32, a, b float64) bool {
			hi := lo + span
			at := lo + offset%span
			s := New("p", waveType())
			if err := s.InsertBatch([]types.Event{
				{"Order": lo, "Radians": a},
				{"Order": hi, "Radians": b},
			}); err != nil {
				return false
			}
			ev, err := s.GetAt(types.Key{int64(at)}, types.BoundaryExactOrCalculated)
			if err != nil {
				return false
			}
			want := a + (b-a)*float64(at-lo)/float64(span)
			got := ev["Radians"].(float64)
			diff := got - want
			return diff < 1e-6 && diff > -1e-6
		},
		gen.Int32Range(-100, 100),
		gen.Int32Range(2, 50),
		gen.Int32Range(0, 49),
		gen.Float64Range(-100, 100),
		gen.Float64Range(-100, 100),
	))

	properties.TestingRun(t)
}
