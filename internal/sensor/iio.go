package sensor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// IIO device attribute files used by the Raspberry Pi overlays.
const (
	// dht11 overlay: milli-degrees Celsius and milli-percent relative humidity.
	AttrTemperature = "in_temp_input"
	AttrHumidity    = "in_humidityrelative_input"
)

// ADCChannelAttr returns the raw attribute name of an ads1x15 channel.
func ADCChannelAttr(channel int) string {
	return fmt.Sprintf("in_voltage%d_raw", channel)
}

// ADCScaleAttr returns the scale attribute name (millivolts per LSB) of a channel.
func ADCScaleAttr(channel int) string {
	return fmt.Sprintf("in_voltage%d_scale", channel)
}

// FindIIODevice returns the sysfs directory of the first IIO device whose
// name attribute equals name (e.g. "dht11", "ads1115").
func FindIIODevice(root, name string) (string, error) {
	if root == "" {
		root = "/sys/bus/iio/devices"
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		return "", fmt.Errorf("list iio devices: %w", err)
	}
	for _, e := range entries {
		dir := filepath.Join(root, e.Name())
		raw, err := os.ReadFile(filepath.Join(dir, "name"))
		if err != nil {
			continue
		}
		if strings.TrimSpace(string(raw)) == name {
			return dir, nil
		}
	}
	return "", fmt.Errorf("iio device %q not found under %s", name, root)
}

// Attr reads one numeric IIO attribute and multiplies it by Scale.
type Attr struct {
	Path  string
	Scale float64
}

// NewAttr creates an Attr for dir/attr.
func NewAttr(dir, attr string, scale float64) *Attr {
	return &Attr{Path: filepath.Join(dir, attr), Scale: scale}
}

// Read implements Source. The dht11 driver returns EIO or ETIMEDOUT on a bad
// checksum; that surfaces as an error for the caller to default.
func (a *Attr) Read(ctx context.Context) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	raw, err := os.ReadFile(a.Path)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", a.Path, err)
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(string(raw)), 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", a.Path, err)
	}
	return v * a.Scale, nil
}

// ADCFullScale is the largest positive raw reading of a 16-bit ADS1115.
const ADCFullScale = 32767

// Brightness converts a photoresistor divider reading to 0..100 percent,
// where a low raw value means a bright room.
type Brightness struct {
	Raw Source
}

// Read implements Source.
func (b *Brightness) Read(ctx context.Context) (float64, error) {
	raw, err := b.Raw.Read(ctx)
	if err != nil {
		return 0, err
	}
	return BrightnessPercent(raw), nil
}

// BrightnessPercent maps a raw ADC value to brightness percent.
func BrightnessPercent(raw float64) float64 {
	return (ADCFullScale - raw) * 100 / ADCFullScale
}

// ReadScale reads a millivolt-per-LSB scale attribute and returns volts per LSB.
func ReadScale(dir string, channel int) (float64, error) {
	a := NewAttr(dir, ADCScaleAttr(channel), 0.001)
	return a.Read(context.Background())
}
