package service

import (
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/iliyamo/cinema-booking/internal/model"
	"github.com/iliyamo/cinema-booking/internal/repository/memory"
)

const (
	showID = uint64(1)
	userA  = uint64(100)
	userB  = uint64(200)
)

type recorder struct {
	mu     sync.Mutex
	events []model.SeatEvent
}

func (r *recorder) Publish(_ uint64, ev model.SeatEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) all() []model.SeatEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.SeatEvent(nil), r.events...)
}

func (r *recorder) last() model.SeatEvent {
	all := r.all()
	if len(all) == 0 {
		return model.SeatEvent{}
	}
	return all[len(all)-1]
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	store     *memory.Store
	events    *recorder
	clock     *clock
	log       *logrus.Logger
	hook      *test.Hook
	manager   *ReservationManager
	finalizer *BookingFinalizer
	sweeper   *Sweeper
}

// newFixture seeds show 1 (base price 1000) with seats 1..4; seat 2 is VIP.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.New()
	store.AddShow(
		model.Show{ID: showID, HallID: 7, Title: "Matinee", BasePriceCents: 1000, Status: "SCHEDULED"},
		[]model.Seat{
			{ID: 1, RowLabel: "A", SeatNumber: 1, SeatType: model.SeatTypeStandard, IsActive: true},
			{ID: 2, RowLabel: "A", SeatNumber: 2, SeatType: model.SeatTypeVIP, IsActive: true},
			{ID: 3, RowLabel: "A", SeatNumber: 3, SeatType: model.SeatTypeStandard, IsActive: true},
			{ID: 4, RowLabel: "B", SeatNumber: 1, SeatType: model.SeatTypeAccessible, IsActive: true},
		},
	)
	log, hook := test.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)
	ev := &recorder{}
	clk := &clock{t: time.Date(2025, 3, 14, 18, 0, 0, 0, time.UTC)}

	m := NewReservationManager(store, ev, log, 10*time.Minute)
	m.now = clk.Now
	f := NewBookingFinalizer(store, ev, log)
	f.now = clk.Now
	sw := NewSweeper(store, ev, log, 2)
	sw.now = clk.Now

	return &fixture{store: store, events: ev, clock: clk, log: log, hook: hook, manager: m, finalizer: f, sweeper: sw}
}

func (fx *fixture) seat(t *testing.T, seatID uint64) model.ShowSeat {
	t.Helper()
	ss, ok := fx.store.Seat(showID, seatID)
	if !ok {
		t.Fatalf("seat %d not seeded", seatID)
	}
	return ss
}
