package sink

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"

	"github.com/sweeney/sleep-monitor/internal/logic"
)

// DefaultStream is the Redis stream readings are appended to.
const DefaultStream = "sleep-monitor:readings"

// RedisStream appends each payload to a capped Redis stream so other
// services can consume readings with XREAD.
type RedisStream struct {
	client *redis.Client
	stream string
	maxLen int64
}

// NewRedisStream wraps client. maxLen <= 0 leaves the stream uncapped.
func NewRedisStream(client *redis.Client, stream string, maxLen int64) *RedisStream {
	if stream == "" {
		stream = DefaultStream
	}
	return &RedisStream{client: client, stream: stream, maxLen: maxLen}
}

func (r *RedisStream) Name() string { return "redis" }

// Publish implements Sink.
func (r *RedisStream) Publish(ctx context.Context, p logic.Payload) error {
	sensor, err := json.Marshal(p.Sensor)
	if err != nil {
		return fmt.Errorf("marshal sensor: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: r.stream,
		Values: map[string]interface{}{
			"id":        p.ID,
			"timestamp": p.Timestamp.Unix(),
			"sensor":    string(sensor),
			"posture":   p.Posture.Posture,
			"samples":   p.Samples,
		},
	}
	if r.maxLen > 0 {
		args.MaxLen = r.maxLen
		args.Approx = true
	}
	if err := r.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("xadd %s: %w", r.stream, err)
	}
	return nil
}

// Close implements Sink.
func (r *RedisStream) Close() error {
	return r.client.Close()
}
