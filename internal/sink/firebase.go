package sink

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/sweeney/sleep-monitor/internal/logic"
	"github.com/sweeney/sleep-monitor/internal/quality"
)

// FirebasePath is the Realtime Database node readings are pushed under.
const FirebasePath = "/sensorData"

// Firebase pushes readings to a Realtime Database over its REST API.
type Firebase struct {
	client  *resty.Client
	baseURL string
	auth    string
}

// FirebaseRecord is the JSON body of one push.
type FirebaseRecord struct {
	logic.SensorAggregate
	Posture   string  `json:"posture"`
	Quality   float64 `json:"quality"`
	Timestamp int64   `json:"timestamp"`
}

// NewFirebase creates a client for the database at baseURL. auth is a
// database secret or ID token and may be empty for open rules.
func NewFirebase(baseURL, auth string, timeout time.Duration) *Firebase {
	return &Firebase{
		client:  resty.New().SetTimeout(timeout),
		baseURL: strings.TrimRight(baseURL, "/"),
		auth:    auth,
	}
}

func (f *Firebase) Name() string { return "firebase" }

// Publish implements Sink.
func (f *Firebase) Publish(ctx context.Context, p logic.Payload) error {
	req := f.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(FirebaseRecord{
			SensorAggregate: p.Sensor,
			Posture:         p.Posture.Posture,
			Quality:         quality.Score(p.Sensor),
			Timestamp:       p.Timestamp.UnixMilli(),
		})
	if f.auth != "" {
		req.SetQueryParam("auth", f.auth)
	}

	resp, err := req.Post(f.baseURL + FirebasePath + ".json")
	if err != nil {
		return fmt.Errorf("post %s: %w", FirebasePath, err)
	}
	if resp.IsError() {
		return fmt.Errorf("post %s: status %d: %s", FirebasePath, resp.StatusCode(), resp.String())
	}
	return nil
}

// Close implements Sink.
func (f *Firebase) Close() error { return nil }
