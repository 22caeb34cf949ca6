// Package quality scores one flush interval for sleep quality on a 0-100
// scale.
package quality

import (
	"math"

	"github.com/sweeney/sleep-monitor/internal/logic"
)

// Weights sets how much each sub-score contributes. They should sum to 1.
type Weights struct {
	HeartRate  float64
	Motion     float64
	Temp       float64
	Humid      float64
	Sound      float64
	Brightness float64
}

// DefaultWeights is used by Score.
var DefaultWeights = Weights{
	HeartRate:  0.2,
	Motion:     0.2,
	Temp:       0.15,
	Humid:      0.1,
	Sound:      0.2,
	Brightness: 0.15,
}

// plateau scores 100 inside [idealLow, idealHigh] and falls linearly to 0
// at minLow and maxHigh.
type plateau struct {
	minLow, idealLow, idealHigh, maxHigh float64
}

func (p plateau) score(v float64) float64 {
	switch {
	case v >= p.idealLow && v <= p.idealHigh:
		return 100
	case v < p.idealLow:
		return clamp(100 * (v - p.minLow) / (p.idealLow - p.minLow))
	default:
		return clamp(100 * (p.maxHigh - v) / (p.maxHigh - p.idealHigh))
	}
}

var (
	heartRateRange   = plateau{40, 45, 60, 100}
	temperatureRange = plateau{20, 24, 28, 32}
	humidityRange    = plateau{25, 40, 60, 75}
)

// Sub-scores.
func HeartRate(bpm float64) float64  { return heartRateRange.score(bpm) }
func Motion(m float64) float64       { return clamp((1 - m) * 100) }
func Temperature(c float64) float64  { return temperatureRange.score(c) }
func Humidity(rh float64) float64    { return humidityRange.score(rh) }
func Sound(level float64) float64    { return falling(level, 30, 70) }
func Brightness(pct float64) float64 { return falling(pct, 30, 60) }

// falling is 100 at or below quiet, 0 at or above loud, linear between.
func falling(v, quiet, loud float64) float64 {
	switch {
	case v <= quiet:
		return 100
	case v >= loud:
		return 0
	}
	return clamp(100 * (loud - v) / (loud - quiet))
}

// Score uses DefaultWeights.
func Score(s logic.SensorAggregate) float64 {
	return ScoreWith(s, DefaultWeights)
}

// ScoreWith returns the weighted score rounded to two decimals. A heart
// rate at or below 30 means the wearable is off and scores 0.
func ScoreWith(s logic.SensorAggregate, w Weights) float64 {
	if s.HeartRate <= 30 {
		return 0
	}
	score := HeartRate(s.HeartRate)*w.HeartRate +
		Motion(s.Motion)*w.Motion +
		Temperature(s.Temp)*w.Temp +
		Humidity(s.Humid)*w.Humid +
		Sound(s.Sound)*w.Sound +
		Brightness(s.Brightness)*w.Brightness
	return math.Round(score*100) / 100
}

func clamp(v float64) float64 {
	return math.Max(0, math.Min(100, v))
}
