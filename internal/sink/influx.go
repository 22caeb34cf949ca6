package sink

import (
	"context"
	"fmt"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/sweeney/sleep-monitor/internal/logic"
	"github.com/sweeney/sleep-monitor/internal/quality"
)

// Influx measurement names.
const (
	MeasurementSensor  = "sensor"
	MeasurementPosture = "posture"
)

// Influx writes each payload as two points. The sensor point carries the
// sleep-quality score in the dataPoint field for the dashboard charts.
type Influx struct {
	client influxdb2.Client
	write  api.WriteAPIBlocking
	device string
}

// NewInflux creates a blocking writer for org/bucket.
func NewInflux(url, token, org, bucket, device string) *Influx {
	client := influxdb2.NewClient(url, token)
	return &Influx{
		client: client,
		write:  client.WriteAPIBlocking(org, bucket),
		device: device,
	}
}

func (i *Influx) Name() string { return "influxdb" }

// Points converts p to line-protocol points.
func (i *Influx) Points(p logic.Payload) []*write.Point {
	tags := map[string]string{"device": i.device}
	s := p.Sensor
	sensor := influxdb2.NewPoint(MeasurementSensor, tags, map[string]interface{}{
		"heartRate":  s.HeartRate,
		"motion":     s.Motion,
		"humid":      s.Humid,
		"temp":       s.Temp,
		"sound":      s.Sound,
		"brightness": s.Brightness,
		"light":      s.Light,
		"dataPoint":  quality.Score(s),
	}, p.Timestamp)
	posture := influxdb2.NewPoint(MeasurementPosture, tags, map[string]interface{}{
		"posture": p.Posture.Posture,
	}, p.Timestamp)
	return []*write.Point{sensor, posture}
}

// Publish implements Sink.
func (i *Influx) Publish(ctx context.Context, p logic.Payload) error {
	if err := i.write.WritePoint(ctx, i.Points(p)...); err != nil {
		return fmt.Errorf("write points: %w", err)
	}
	return nil
}

// Close implements Sink.
func (i *Influx) Close() error {
	i.client.Close()
	return nil
}
