package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/cinema-booking/internal/model"
)

// ChannelName is the Redis pub/sub channel carrying a show's events.
func ChannelName(showID uint64) string { return fmt.Sprintf("show:%d:seats", showID) }

// RedisSink publishes seat events with PUBLISH so any instance can relay
// them to its connected clients.
type RedisSink struct {
	rdb redis.Cmdable
}

// NewRedisSink returns a sink publishing through rdb.
func NewRedisSink(rdb redis.Cmdable) *RedisSink { return &RedisSink{rdb: rdb} }

func (s *RedisSink) Name() string { return "redis" }

func (s *RedisSink) Deliver(ctx context.Context, ev model.SeatEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return s.rdb.Publish(ctx, ChannelName(ev.ShowID), string(body)).Err()
}
