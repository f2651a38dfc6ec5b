// Package notify delivers seat events to observers of a show.  The
// Dispatcher implements ports.Notifier: Publish only enqueues, and a
// single worker hands each event to every configured sink.  Delivery is
// best effort; failures are logged and never reach the caller.
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/cinema-booking/internal/model"
	"github.com/iliyamo/cinema-booking/internal/ports"
)

// Sink is one delivery transport for seat events.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, ev model.SeatEvent) error
}

const (
	defaultBuffer  = 1024
	defaultTimeout = 3 * time.Second
)

// Dispatcher queues seat events and fans them out to sinks.
type Dispatcher struct {
	sinks   []Sink
	timeout time.Duration
	log     logrus.FieldLogger

	mu     sync.RWMutex
	closed bool
	queue  chan model.SeatEvent
	done   chan struct{}
}

// NewDispatcher returns a started Dispatcher.  buffer bounds the number
// of queued events; once it is full new events are dropped.  timeout
// bounds each sink delivery.
func NewDispatcher(log logrus.FieldLogger, buffer int, timeout time.Duration, sinks ...Sink) *Dispatcher {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	d := &Dispatcher{
		sinks:   sinks,
		timeout: timeout,
		log:     log,
		queue:   make(chan model.SeatEvent, buffer),
		done:    make(chan struct{}),
	}
	go d.run()
	return d
}

// Publish enqueues ev for showID without blocking.
func (d *Dispatcher) Publish(showID uint64, ev model.SeatEvent) {
	ev.ShowID = showID
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}
	select {
	case d.queue <- ev:
	default:
		d.log.WithFields(logrus.Fields{
			"show_id": showID,
			"type":    ev.Type,
		}).Warn("notify: queue full, event dropped")
	}
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for ev := range d.queue {
		for _, s := range d.sinks {
			d.deliver(s, ev)
		}
	}
}

func (d *Dispatcher) deliver(s Sink, ev model.SeatEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			d.log.WithField("sink", s.Name()).Errorf("notify: sink panicked: %v", r)
		}
	}()
	if err := s.Deliver(ctx, ev); err != nil {
		d.log.WithError(err).WithFields(logrus.Fields{
			"sink":    s.Name(),
			"show_id": ev.ShowID,
			"type":    ev.Type,
		}).Warn("notify: delivery failed")
	}
}

// Close stops accepting events and waits until the queued ones were
// delivered or ctx ends.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()
	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

var _ ports.Notifier = (*Dispatcher)(nil)
