package ble

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name      string
		payload   string
		heartRate float64
		motion    float64
	}{
		{"numbers", `{"heartRate": 72, "motion": 0.4}`, 72, 0.4},
		{"bool motion true", `{"heartRate": 65, "motion": true}`, 65, 1},
		{"bool motion false", `{"heartRate": 65, "motion": false}`, 65, 0},
		{"zero heart rate", `{"heartRate": 0, "motion": 0}`, 0, 0},
		{"extra fields", `{"heartRate": 60, "motion": 1, "spo2": 98}`, 60, 1},
		{"trailing newline", "{\"heartRate\": 61, \"motion\": 0}\n", 61, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode([]byte(tt.payload))
			require.NoError(t, err)
			assert.Equal(t, tt.heartRate, got.HeartRate)
			assert.Equal(t, tt.motion, got.Motion)
		})
	}
}

func TestDecodeMalformed(t *testing.T) {
	payloads := []string{
		``,
		`not json`,
		`{"heartRate": 72`,
		`{"motion": 1}`,
		`{"heartRate": 72}`,
		`{"heartRate": null, "motion": 1}`,
		`{"heartRate": "fast", "motion": 1}`,
		`[72, 1]`,
	}

	for _, p := range payloads {
		_, err := Decode([]byte(p))
		assert.ErrorIs(t, err, ErrMalformed, "payload %q", p)
	}
}

func TestFake(t *testing.T) {
	f := NewFake(2)
	assert.True(t, f.Send([]byte("a")))

	got := <-f.Notifications()
	assert.Equal(t, []byte("a"), got)

	require.NoError(t, f.Close())
	require.NoError(t, f.Close())
	assert.False(t, f.Send([]byte("b")))

	_, ok := <-f.Notifications()
	assert.False(t, ok)
}
