package sensor

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdapters_HeartRate(t *testing.T) {
	cases := []struct {
		shape string
		point DataPoint
	}{
		{ShapeField, DataPoint{"heartRate": 72.0, "heartRateStatus": 3.0, "timestamp": 1000.0}},
		{ShapeValueArray, DataPoint{"values": []interface{}{72.0, 3.0}, "timestamp": 1000.0}},
		{ShapeValueKey, DataPoint{"value_keys": map[string]interface{}{
			"HeartRateSet.HEART_RATE":        72.0,
			"HeartRateSet.HEART_RATE_STATUS": 3.0,
		}, "timestamp": 1000.0}},
	}
	for _, tc := range cases {
		t.Run(tc.shape, func(t *testing.T) {
			a, err := NewAdapter(tc.shape)
			require.NoError(t, err)
			assert.Equal(t, tc.shape, a.Shape())

			s, err := a.HeartRate(tc.point)
			require.NoError(t, err)
			assert.Equal(t, 72.0, s.Value)
			require.NotNil(t, s.Accuracy)
			assert.Equal(t, 3, *s.Accuracy)
			assert.Equal(t, time.UnixMilli(1000), s.Timestamp)
		})
	}
}

func TestAdapters_Steps(t *testing.T) {
	points := map[string]DataPoint{
		ShapeField:      {"steps": 1200.0},
		ShapeValueArray: {"values": []interface{}{1200.0}},
		ShapeValueKey:   {"value_keys": map[string]interface{}{"StepSet.STEPS": 1200.0}},
	}
	for shape, p := range points {
		a, err := NewAdapter(shape)
		require.NoError(t, err)
		s, err := a.Steps(p)
		require.NoError(t, err, shape)
		assert.Equal(t, 1200.0, s.Value, shape)
		assert.True(t, s.Timestamp.IsZero(), shape)
	}
}

func TestAdapters_UnrecognizedShape(t *testing.T) {
	for _, shape := range []string{ShapeField, ShapeValueArray, ShapeValueKey} {
		a, err := NewAdapter(shape)
		require.NoError(t, err)

		_, err = a.HeartRate(DataPoint{"bpm": 70.0, "ts": 1.0})
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrUnrecognizedShape), shape)

		var shapeErr *UnrecognizedShapeError
		require.True(t, errors.As(err, &shapeErr))
		assert.Equal(t, shape, shapeErr.Shape)
		assert.Equal(t, []string{"bpm", "ts"}, shapeErr.Keys)
	}
}

func TestAdapters_AccuracyOutOfRange(t *testing.T) {
	s, err := FieldAdapter{}.HeartRate(DataPoint{"heartRate": 70.0, "heartRateStatus": -3.0})
	require.NoError(t, err)
	assert.Nil(t, s.Accuracy)
}

func TestNewAdapter_Unknown(t *testing.T) {
	_, err := NewAdapter("reflection")
	assert.Error(t, err)
}
