// Package memory is an in-process implementation of ports.Store.  It
// honours the same conditional-update contracts as the MySQL repository
// but only serialises writers inside one process, so it is meant for
// local development and tests, never for multi-instance deployments.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/iliyamo/cinema-booking/internal/model"
	"github.com/iliyamo/cinema-booking/internal/ports"
	"github.com/iliyamo/cinema-booking/internal/repository"
)

type seatKey struct {
	show uint64
	seat uint64
}

type state struct {
	shows     map[uint64]model.Show
	hallSeats map[uint64][]model.Seat
	seats     map[seatKey]model.ShowSeat
	bookings  map[uint64]model.Booking
	nextSeat  uint64
	nextBook  uint64
}

func (s *state) clone() *state {
	c := &state{
		shows:     make(map[uint64]model.Show, len(s.shows)),
		hallSeats: make(map[uint64][]model.Seat, len(s.hallSeats)),
		seats:     make(map[seatKey]model.ShowSeat, len(s.seats)),
		bookings:  make(map[uint64]model.Booking, len(s.bookings)),
		nextSeat:  s.nextSeat,
		nextBook:  s.nextBook,
	}
	for k, v := range s.shows {
		c.shows[k] = v
	}
	for k, v := range s.hallSeats {
		c.hallSeats[k] = append([]model.Seat(nil), v...)
	}
	for k, v := range s.seats {
		c.seats[k] = v
	}
	for k, v := range s.bookings {
		v.Seats = append([]model.BookingSeat(nil), v.Seats...)
		v.Combos = append([]model.BookingCombo(nil), v.Combos...)
		c.bookings[k] = v
	}
	return c
}

// Store keeps all records in memory.  Atomic runs units of work one at a
// time against a copy of the state and swaps the copy in on success.
type Store struct {
	mu sync.Mutex
	st *state
}

// New returns an empty Store.
func New() *Store {
	return &Store{st: &state{
		shows:     map[uint64]model.Show{},
		hallSeats: map[uint64][]model.Seat{},
		seats:     map[seatKey]model.ShowSeat{},
		bookings:  map[uint64]model.Booking{},
	}}
}

// AddShow registers a show and the seats of its hall.  Seat records for
// the show are created lazily by SeedShow.
func (m *Store) AddShow(show model.Show, seats []model.Seat) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st.shows[show.ID] = show
	for i := range seats {
		seats[i].HallID = show.HallID
	}
	m.st.hallSeats[show.HallID] = append([]model.Seat(nil), seats...)
}

// Seat returns the current record of one seat for inspection.
func (m *Store) Seat(showID, seatID uint64) (model.ShowSeat, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ss, ok := m.st.seats[seatKey{showID, seatID}]
	return ss, ok
}

// Atomic implements ports.Store.
func (m *Store) Atomic(ctx context.Context, fn func(tx ports.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	work := m.st.clone()
	if err := fn(&tx{st: work}); err != nil {
		return err
	}
	m.st = work
	return nil
}

type tx struct {
	st *state
}

func (t *tx) SeedShow(_ context.Context, showID uint64) (int, error) {
	for k := range t.st.seats {
		if k.show == showID {
			return 0, nil
		}
	}
	show, ok := t.st.shows[showID]
	if !ok {
		return 0, nil
	}
	n := 0
	for _, se := range t.st.hallSeats[show.HallID] {
		if !se.IsActive {
			continue
		}
		t.st.nextSeat++
		t.st.seats[seatKey{showID, se.ID}] = model.ShowSeat{
			ID:         t.st.nextSeat,
			ShowID:     showID,
			SeatID:     se.ID,
			Status:     model.SeatAvailable,
			PriceCents: model.SeatPrice(show.BasePriceCents, se.SeatType),
			RowLabel:   se.RowLabel,
			SeatNumber: se.SeatNumber,
			SeatType:   se.SeatType,
		}
		n++
	}
	return n, nil
}

func (t *tx) TryHold(_ context.Context, showID, seatID, userID uint64, now, expiresAt time.Time) (bool, error) {
	k := seatKey{showID, seatID}
	ss, ok := t.st.seats[k]
	if !ok {
		return false, nil
	}
	if !ss.Holdable(userID, now) {
		return false, nil
	}
	uid, at, exp := userID, now, expiresAt
	ss.Status = model.SeatReserved
	ss.ReservedBy = &uid
	ss.ReservedAt = &at
	ss.ReservationExpires = &exp
	ss.BookingID = nil
	ss.Version++
	t.st.seats[k] = ss
	return true, nil
}

func (t *tx) activeHold(ss model.ShowSeat, userID uint64, now time.Time) bool {
	return ss.Status == model.SeatReserved && ss.ReservedBy != nil && *ss.ReservedBy == userID &&
		ss.ReservationExpires != nil && ss.ReservationExpires.After(now)
}

func (t *tx) HeldSeats(_ context.Context, showID, userID uint64, seatIDs []uint64, now time.Time) ([]model.ShowSeat, error) {
	out := []model.ShowSeat{}
	for _, id := range uniqueSorted(seatIDs) {
		ss, ok := t.st.seats[seatKey{showID, id}]
		if ok && t.activeHold(ss, userID, now) {
			out = append(out, ss)
		}
	}
	return out, nil
}

func (t *tx) MarkBooked(_ context.Context, showID, userID uint64, seatIDs []uint64, bookingID uint64, now time.Time) (int64, error) {
	var n int64
	for _, id := range uniqueSorted(seatIDs) {
		k := seatKey{showID, id}
		ss, ok := t.st.seats[k]
		if !ok || !t.activeHold(ss, userID, now) {
			continue
		}
		bid := bookingID
		ss.Status = model.SeatBooked
		ss.BookingID = &bid
		ss.ReservedBy, ss.ReservedAt, ss.ReservationExpires = nil, nil, nil
		ss.Version++
		t.st.seats[k] = ss
		n++
	}
	return n, nil
}

func (t *tx) release(k seatKey) {
	ss := t.st.seats[k]
	ss.Status = model.SeatAvailable
	ss.BookingID = nil
	ss.ReservedBy, ss.ReservedAt, ss.ReservationExpires = nil, nil, nil
	ss.Version++
	t.st.seats[k] = ss
}

func (t *tx) ReleaseByBooking(_ context.Context, bookingID uint64) ([]uint64, error) {
	ids := []uint64{}
	for _, k := range t.sortedKeys() {
		ss := t.st.seats[k]
		if ss.BookingID != nil && *ss.BookingID == bookingID {
			t.release(k)
			ids = append(ids, k.seat)
		}
	}
	return ids, nil
}

func (t *tx) ReleaseHolds(_ context.Context, showID, userID uint64) ([]uint64, error) {
	ids := []uint64{}
	for _, k := range t.sortedKeys() {
		ss := t.st.seats[k]
		if k.show == showID && ss.Status == model.SeatReserved && ss.ReservedBy != nil && *ss.ReservedBy == userID {
			t.release(k)
			ids = append(ids, k.seat)
		}
	}
	return ids, nil
}

func (t *tx) ReleaseExpired(_ context.Context, now time.Time, limit int) (map[uint64][]uint64, error) {
	out := make(map[uint64][]uint64)
	n := 0
	for _, k := range t.sortedKeys() {
		if limit > 0 && n >= limit {
			break
		}
		ss := t.st.seats[k]
		if ss.HoldExpired(now) {
			t.release(k)
			out[k.show] = append(out[k.show], k.seat)
			n++
		}
	}
	return out, nil
}

func (t *tx) ListByShow(_ context.Context, showID uint64) ([]model.ShowSeat, error) {
	out := []model.ShowSeat{}
	for _, k := range t.sortedKeys() {
		if k.show == showID {
			out = append(out, t.st.seats[k])
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].RowLabel != out[j].RowLabel {
			return out[i].RowLabel < out[j].RowLabel
		}
		return out[i].SeatNumber < out[j].SeatNumber
	})
	return out, nil
}

func (t *tx) CountBookedFor(_ context.Context, bookingID uint64) (int, error) {
	n := 0
	for _, ss := range t.st.seats {
		if ss.Status == model.SeatBooked && ss.BookingID != nil && *ss.BookingID == bookingID {
			n++
		}
	}
	return n, nil
}

func (t *tx) CreateBooking(_ context.Context, b *model.Booking) error {
	for _, other := range t.st.bookings {
		if other.TransactionID == b.TransactionID {
			return repository.ErrConflict
		}
	}
	t.st.nextBook++
	b.ID = t.st.nextBook
	for i := range b.Seats {
		b.Seats[i].BookingID = b.ID
	}
	for i := range b.Combos {
		b.Combos[i].BookingID = b.ID
	}
	cp := *b
	cp.Seats = append([]model.BookingSeat(nil), b.Seats...)
	cp.Combos = append([]model.BookingCombo(nil), b.Combos...)
	t.st.bookings[b.ID] = cp
	return nil
}

func (t *tx) GetBooking(_ context.Context, id uint64, _ bool) (*model.Booking, error) {
	b, ok := t.st.bookings[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	b.Seats = append([]model.BookingSeat{}, b.Seats...)
	b.Combos = append([]model.BookingCombo{}, b.Combos...)
	return &b, nil
}

func (t *tx) ListBookingsByUser(_ context.Context, userID uint64) ([]model.Booking, error) {
	out := []model.Booking{}
	for _, b := range t.st.bookings {
		if b.UserID == userID {
			b.Seats = append([]model.BookingSeat{}, b.Seats...)
			b.Combos = append([]model.BookingCombo{}, b.Combos...)
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (t *tx) UpdateBookingStatus(_ context.Context, id uint64, payment model.PaymentStatus, status model.BookingStatus, paymentRef *string) error {
	b, ok := t.st.bookings[id]
	if !ok {
		return repository.ErrNotFound
	}
	b.PaymentStatus = payment
	b.BookingStatus = status
	if paymentRef != nil {
		ref := *paymentRef
		b.PaymentRef = &ref
	}
	b.UpdatedAt = time.Now().UTC()
	t.st.bookings[id] = b
	return nil
}

func (t *tx) StalePendingBookings(_ context.Context, createdBefore time.Time, limit int) ([]uint64, error) {
	ids := []uint64{}
	for id, b := range t.st.bookings {
		if b.BookingStatus == model.BookingPending && b.CreatedAt.Before(createdBefore) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

func (t *tx) sortedKeys() []seatKey {
	keys := make([]seatKey, 0, len(t.st.seats))
	for k := range t.st.seats {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].show != keys[j].show {
			return keys[i].show < keys[j].show
		}
		return keys[i].seat < keys[j].seat
	})
	return keys
}

func uniqueSorted(ids []uint64) []uint64 {
	seen := make(map[uint64]struct{}, len(ids))
	out := make([]uint64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

var _ ports.Store = (*Store)(nil)
