package quality

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sweeney/sleep-monitor/internal/logic"
)

func TestSubScores(t *testing.T) {
	tests := []struct {
		name string
		fn   func(float64) float64
		in   float64
		want float64
	}{
		{"hr ideal", HeartRate, 55, 100},
		{"hr low edge", HeartRate, 40, 0},
		{"hr rising", HeartRate, 42.5, 50},
		{"hr falling", HeartRate, 80, 50},
		{"hr far high", HeartRate, 140, 0},
		{"motion still", Motion, 0, 100},
		{"motion half", Motion, 0.5, 50},
		{"motion over", Motion, 2, 0},
		{"temp ideal", Temperature, 26, 100},
		{"temp cold", Temperature, 22, 50},
		{"temp hot", Temperature, 30, 50},
		{"humid ideal", Humidity, 50, 100},
		{"humid dry", Humidity, 10, 0},
		{"humid wet", Humidity, 67.5, 50},
		{"sound quiet", Sound, 30, 100},
		{"sound mid", Sound, 50, 50},
		{"sound loud", Sound, 70, 0},
		{"brightness dark", Brightness, 10, 100},
		{"brightness mid", Brightness, 45, 50},
		{"brightness bright", Brightness, 90, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, tt.fn(tt.in), 1e-9)
		})
	}
}

func TestScoreIdeal(t *testing.T) {
	s := logic.SensorAggregate{HeartRate: 55, Motion: 0, Temp: 26, Humid: 50, Sound: 10, Brightness: 5}
	assert.Equal(t, 100.0, Score(s))
}

func TestScoreWeighted(t *testing.T) {
	// hr 100, motion 50, temp 50, humid 100, sound 0, brightness 100
	s := logic.SensorAggregate{HeartRate: 50, Motion: 0.5, Temp: 22, Humid: 50, Sound: 80, Brightness: 0}
	// 20 + 10 + 7.5 + 10 + 0 + 15
	assert.InDelta(t, 62.5, Score(s), 1e-9)
}

func TestScoreRoundsToTwoDecimals(t *testing.T) {
	s := logic.SensorAggregate{HeartRate: 55, Motion: 1.0 / 3, Temp: 26, Humid: 50, Sound: 10, Brightness: 5}
	// 100 - 0.2*33.333... = 93.333...
	assert.Equal(t, 93.33, Score(s))
}

func TestScoreNoWearerIsZero(t *testing.T) {
	for _, hr := range []float64{0, 30} {
		s := logic.SensorAggregate{HeartRate: hr, Temp: 26, Humid: 50}
		assert.Equal(t, 0.0, Score(s), "hr=%v", hr)
	}
}
