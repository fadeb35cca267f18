package types

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"
)

func TestCoerce(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name    string
		dt      DataType
		in      any
		want    any
		wantErr error
	}{
		{"int from int", DataTypeInt32, 7, int64(7), nil},
		{"int from whole float", DataTypeInt64, float64(3), int64(3), nil},
		{"int from json number", DataTypeInt16, json.Number("12"), int64(12), nil},
		{"int rejects fraction", DataTypeInt32, 1.5, nil, ErrValueType},
		{"int16 overflow", DataTypeInt16, 40000, nil, ErrValueOutOfRange},
		{"float from int", DataTypeFloat64, int32(2), float64(2), nil},
		{"float32 precision", DataTypeFloat32, 0.1, float64(float32(0.1)), nil},
		{"string", DataTypeString, "abc", "abc", nil},
		{"string rejects number", DataTypeString, 1, nil, ErrValueType},
		{"bool", DataTypeBoolean, true, true, nil},
		{"datetime from string", DataTypeDateTime, "2024-03-01T12:00:00Z", ts, nil},
		{"datetime bad string", DataTypeDateTime, "yesterday", nil, ErrValueType},
		{"nil is default", DataTypeFloat64, nil, float64(0), nil},
		{"unknown type", DataType("Decimal"), 1, nil, ErrUnsupportedDataType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Coerce(tt.dt, tt.in)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("got err %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if gt, ok := got.(time.Time); ok {
				if !gt.Equal(tt.want.(time.Time)) {
					t.Errorf("got %v, want %v", got, tt.want)
				}
				return
			}
			if got != tt.want {
				t.Errorf("got %v (%T), want %v (%T)", got, got, tt.want, tt.want)
			}
		})
	}
}

func TestConvert_TruncatesTowardZero(t *testing.T) {
	tests := []struct {
		dt   DataType
		in   any
		want any
	}{
		{DataTypeInt32, 2.9, int64(2)},
		{DataTypeInt32, -2.9, int64(-2)},
		{DataTypeInt16, 1e9, int64(math.MaxInt16)},
		{DataTypeInt16, int64(-70000), int64(math.MinInt16)},
		{DataTypeInt64, true, int64(1)},
		{DataTypeFloat64, false, float64(0)},
		{DataTypeBoolean, 0.5, true},
		{DataTypeString, 1.25, "1.25"},
		{DataTypeString, int64(4), "4"},
	}

	for _, tt := range tests {
		got, err := Convert(tt.dt, tt.in)
		if err != nil {
			t.Fatalf("Convert(%s, %v): %v", tt.dt, tt.in, err)
		}
		if got != tt.want {
			t.Errorf("Convert(%s, %v) = %v, want %v", tt.dt, tt.in, got, tt.want)
		}
	}

	if _, err := Convert(DataTypeFloat64, "abc"); !errors.Is(err, ErrValueType) {
		t.Errorf("expected ErrValueType, got %v", err)
	}
}

func TestWidensAndConvertible(t *testing.T) {
	if !Widens(DataTypeInt16, DataTypeInt64) {
		t.Error("Int16 should widen to Int64")
	}
	if Widens(DataTypeInt64, DataTypeInt32) {
		t.Error("Int64 must not widen to Int32")
	}
	if Widens(DataTypeFloat64, DataTypeInt32) {
		t.Error("Float64 must not widen to Int32")
	}
	if !Convertible(DataTypeFloat64, DataTypeInt32) {
		t.Error("Float64 should convert to Int32")
	}
	if Convertible(DataTypeString, DataTypeFloat64) {
		t.Error("String should not convert to Float64")
	}
}

func TestCompare(t *testing.T) {
	tests := []struct {
		a, b any
		want int
	}{
		{int64(1), int64(2), -1},
		{int64(2), 1.5, 1},
		{2.0, int64(2), 0},
		{"a", "b", -1},
		{false, true, -1},
		{time.Unix(10, 0), time.Unix(5, 0), 1},
		{math.NaN(), math.NaN(), 0},
		{math.NaN(), math.Inf(-1), -1},
		{1.0, math.NaN(), 1},
	}
	for _, tt := range tests {
		got, err := Compare(tt.a, tt.b)
		if err != nil {
			t.Fatalf("Compare(%v, %v): %v", tt.a, tt.b, err)
		}
		if got != tt.want {
			t.Errorf("Compare(%v, %v) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}

	if _, err := Compare("a", int64(1)); !errors.Is(err, ErrIncomparable) {
		t.Errorf("expected ErrIncomparable, got %v", err)
	}
}

func TestFromFloat(t *testing.T) {
	if got := FromFloat(DataTypeInt32, 3.99); got != int64(3) {
		t.Errorf("got %v, want 3", got)
	}
	ts := FromFloat(DataTypeDateTime, float64(time.Unix(100, 0).UnixNano())).(time.Time)
	if !ts.Equal(time.Unix(100, 0)) {
		t.Errorf("got %v", ts)
	}
}
