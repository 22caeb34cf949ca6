package aggregate

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/sleep-monitor/internal/logic"
)

func TestDrainNumericEmptyReturnsDefault(t *testing.T) {
	b := New(logic.LabelUnknown)
	assert.Equal(t, 0.0, b.DrainNumeric(logic.MetricTemperature, 0))
	assert.Equal(t, -1.0, b.DrainNumeric(logic.MetricTemperature, -1))
}

func TestDrainNumericMean(t *testing.T) {
	b := New(logic.LabelUnknown)
	for _, v := range []float64{10, 20, 30} {
		b.AppendNumeric(logic.MetricHeartRate, v)
	}
	assert.Equal(t, 20.0, b.DrainNumeric(logic.MetricHeartRate, 0))
}

func TestDrainClearsSeries(t *testing.T) {
	b := New(logic.LabelUnknown)
	b.AppendNumeric(logic.MetricSound, 4)
	b.AppendNumeric(logic.MetricSound, 6)

	first := b.DrainNumeric(logic.MetricSound, -1)
	second := b.DrainNumeric(logic.MetricSound, -1)

	assert.Equal(t, 5.0, first)
	assert.Equal(t, -1.0, second)
	assert.Equal(t, 0, b.Len(logic.MetricSound))
}

func TestDrainNumericLeavesOtherMetrics(t *testing.T) {
	b := New(logic.LabelUnknown)
	b.AppendNumeric(logic.MetricSound, 4)
	b.AppendNumeric(logic.MetricTemperature, 21)

	b.DrainNumeric(logic.MetricSound, 0)

	assert.Equal(t, 1, b.Len(logic.MetricTemperature))
}

func TestDrainCategorical(t *testing.T) {
	b := New(logic.LabelUnknown)
	for _, l := range []string{"Left Side", "Left Side", "Unknown", "Right Side"} {
		b.AppendLabel(l)
	}

	assert.Equal(t, "Left Side", b.DrainCategorical(logic.LabelUnknown))
	assert.Equal(t, logic.LabelUnknown, b.DrainCategorical(logic.LabelUnknown), "second drain should yield default")
}

func TestDrainCategoricalAllSentinel(t *testing.T) {
	b := New(logic.LabelUnknown)
	b.AppendLabel(logic.LabelUnknown)
	b.AppendLabel(logic.LabelUnknown)

	assert.Equal(t, "none", b.DrainCategorical("none"))
	assert.Equal(t, 0, b.LabelLen())
}

func TestDrainSnapshot(t *testing.T) {
	b := New(logic.LabelUnknown)
	b.AppendRound(map[logic.Metric]float64{
		logic.MetricHeartRate: 60,
		logic.MetricMotion:    0,
	}, "Supine (Face Up)")
	b.AppendRound(map[logic.Metric]float64{
		logic.MetricHeartRate: 80,
		logic.MetricMotion:    1,
	}, logic.LabelUnknown)

	snap := b.Drain(logic.NumericMetrics, 0, logic.LabelUnknown)

	assert.Equal(t, 2, snap.Rounds)
	assert.Equal(t, 70.0, snap.Means[logic.MetricHeartRate])
	assert.Equal(t, 0.5, snap.Means[logic.MetricMotion])
	assert.Equal(t, 0.0, snap.Means[logic.MetricTemperature])
	assert.Equal(t, "Supine (Face Up)", snap.Label)
	assert.True(t, b.Empty())

	again := b.Drain(logic.NumericMetrics, 0, logic.LabelUnknown)
	assert.Equal(t, 0, again.Rounds)
	assert.Equal(t, logic.LabelUnknown, again.Label)
}

func TestReset(t *testing.T) {
	b := New(logic.LabelUnknown)
	b.AppendNumeric(logic.MetricBrightness, 1)
	b.AppendLabel("Left Side")
	require.False(t, b.Empty())

	b.Reset()

	assert.True(t, b.Empty())
}

// TestConcurrentAppendDrain checks that every appended round is reported by
// exactly one drain while appends and drains race.
func TestConcurrentAppendDrain(t *testing.T) {
	b := New(logic.LabelUnknown)
	const writers, perWriter = 4, 500

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				b.AppendRound(map[logic.Metric]float64{logic.MetricHeartRate: 1}, "Left Side")
			}
		}()
	}

	total := 0
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	for {
		select {
		case <-done:
			total += b.Drain(logic.NumericMetrics, 0, logic.LabelUnknown).Rounds
			assert.Equal(t, writers*perWriter, total)
			assert.True(t, b.Empty())
			return
		default:
			total += b.Drain(logic.NumericMetrics, 0, logic.LabelUnknown).Rounds
		}
	}
}
