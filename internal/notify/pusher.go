package notify

import (
	"context"
	"fmt"

	"github.com/pusher/pusher-http-go/v5"

	"github.com/iliyamo/cinema-booking/internal/model"
)

// PusherChannel is the Pusher channel browsers subscribe to for a show.
func PusherChannel(showID uint64) string { return fmt.Sprintf("show-%d", showID) }

// trigger is the part of *pusher.Client the sink uses.
type trigger interface {
	Trigger(channel string, eventName string, data interface{}) error
}

// PusherSink pushes seat events to browsers through Pusher Channels.  The
// event name is the seat event type.
type PusherSink struct {
	client trigger
}

// PusherConfig holds Pusher app credentials.
type PusherConfig struct {
	AppID   string
	Key     string
	Secret  string
	Cluster string
}

// NewPusherSink builds a Pusher client from cfg.
func NewPusherSink(cfg PusherConfig) *PusherSink {
	return &PusherSink{client: &pusher.Client{
		AppID:   cfg.AppID,
		Key:     cfg.Key,
		Secret:  cfg.Secret,
		Cluster: cfg.Cluster,
		Secure:  true,
	}}
}

func (s *PusherSink) Name() string { return "pusher" }

// Deliver triggers the event.  The Pusher client has its own HTTP timeout
// and takes no context, so ctx is only checked before sending.
func (s *PusherSink) Deliver(ctx context.Context, ev model.SeatEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.client.Trigger(PusherChannel(ev.ShowID), string(ev.Type), ev)
}
