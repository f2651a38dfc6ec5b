package repository // seat status persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/iliyamo/cinema-booking/internal/model"
)

// showSeatColumns is the projection shared by every seat map query.  The
// seats join supplies the row label, number and type used in booking
// snapshots.
const showSeatColumns = `ss.id, ss.show_id, ss.seat_id, ss.status, ss.price_cents,
       ss.reserved_by, ss.reserved_at, ss.reservation_expires, ss.booking_id, ss.version,
       se.row_label, se.seat_number, se.seat_type`

// SeedShow creates one AVAILABLE show_seat per active seat of the show's
// hall when the show has no records yet.  Prices follow model.SeatPrice.
// INSERT IGNORE makes concurrent seeding of the same show harmless
// because (show_id, seat_id) is unique.
func (s *txStore) SeedShow(ctx context.Context, showID uint64) (int, error) {
	var existing int
	if err := s.tx.GetContext(ctx, &existing, `SELECT COUNT(*) FROM show_seats WHERE show_id = ?`, showID); err != nil {
		return 0, fmt.Errorf("count show seats: %w", err)
	}
	if existing > 0 {
		return 0, nil
	}
	const q = `INSERT IGNORE INTO show_seats (show_id, seat_id, status, price_cents, version)
               SELECT sh.id, se.id, 'AVAILABLE',
                      CASE se.seat_type WHEN 'VIP' THEN sh.base_price_cents * 3 DIV 2 ELSE sh.base_price_cents END,
                      0
               FROM shows sh
               JOIN seats se ON se.hall_id = sh.hall_id AND se.is_active = 1
               WHERE sh.id = ?`
	res, err := s.tx.ExecContext(ctx, q, showID)
	if err != nil {
		return 0, fmt.Errorf("seed show seats: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// TryHold is the compare-and-swap used by the reservation manager.  The
// WHERE clause accepts a seat only when it is AVAILABLE, when its hold
// lapsed before now, or when the same user already holds it.  MySQL
// evaluates the predicate under the row lock, so of two concurrent
// callers for one seat exactly one sees a modified row.
func (s *txStore) TryHold(ctx context.Context, showID, seatID, userID uint64, now, expiresAt time.Time) (bool, error) {
	const q = `UPDATE show_seats
               SET status = 'RESERVED', reserved_by = ?, reserved_at = ?, reservation_expires = ?,
                   booking_id = NULL, version = version + 1
               WHERE show_id = ? AND seat_id = ?
                 AND (status = 'AVAILABLE'
                      OR (status = 'RESERVED' AND (reservation_expires < ? OR reserved_by = ?)))`
	res, err := s.tx.ExecContext(ctx, q, userID, now.UTC(), expiresAt.UTC(), showID, seatID, now.UTC(), userID)
	if err != nil {
		return false, fmt.Errorf("hold seat %d: %w", seatID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// HeldSeats re-reads exactly the requested seats filtered to active holds
// of userID and locks them with FOR UPDATE so the sweeper cannot release
// them before the booking commits.
func (s *txStore) HeldSeats(ctx context.Context, showID, userID uint64, seatIDs []uint64, now time.Time) ([]model.ShowSeat, error) {
	if len(seatIDs) == 0 {
		return []model.ShowSeat{}, nil
	}
	q, args, err := s.in(`SELECT `+showSeatColumns+`
               FROM show_seats ss
               JOIN seats se ON se.id = ss.seat_id
               WHERE ss.show_id = ? AND ss.seat_id IN (?)
                 AND ss.status = 'RESERVED' AND ss.reserved_by = ? AND ss.reservation_expires > ?
               ORDER BY ss.seat_id
               FOR UPDATE`, showID, seatIDs, userID, now.UTC())
	if err != nil {
		return nil, err
	}
	seats := []model.ShowSeat{}
	if err := s.tx.SelectContext(ctx, &seats, q, args...); err != nil {
		return nil, fmt.Errorf("load held seats: %w", err)
	}
	return seats, nil
}

// MarkBooked transitions the held seats to BOOKED in one statement scoped
// to (show, seat set, RESERVED, holder, unexpired).  Callers compare the
// returned count with the number of seats they expected to change.
func (s *txStore) MarkBooked(ctx context.Context, showID, userID uint64, seatIDs []uint64, bookingID uint64, now time.Time) (int64, error) {
	if len(seatIDs) == 0 {
		return 0, nil
	}
	q, args, err := s.in(`UPDATE show_seats
               SET status = 'BOOKED', booking_id = ?, reserved_by = NULL, reserved_at = NULL,
                   reservation_expires = NULL, version = version + 1
               WHERE show_id = ? AND seat_id IN (?)
                 AND status = 'RESERVED' AND reserved_by = ? AND reservation_expires > ?`,
		bookingID, showID, seatIDs, userID, now.UTC())
	if err != nil {
		return 0, err
	}
	res, err := s.tx.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, fmt.Errorf("mark seats booked: %w", err)
	}
	return res.RowsAffected()
}

// ReleaseByBooking frees every seat that still references bookingID.
// The seats are locked first so the returned ids are exactly the rows the
// update changes.
func (s *txStore) ReleaseByBooking(ctx context.Context, bookingID uint64) ([]uint64, error) {
	seatIDs := []uint64{}
	if err := s.tx.SelectContext(ctx, &seatIDs,
		`SELECT seat_id FROM show_seats WHERE booking_id = ? ORDER BY seat_id FOR UPDATE`, bookingID); err != nil {
		return nil, fmt.Errorf("load booked seats: %w", err)
	}
	if len(seatIDs) == 0 {
		return seatIDs, nil
	}
	const q = `UPDATE show_seats
               SET status = 'AVAILABLE', booking_id = NULL, reserved_by = NULL, reserved_at = NULL,
                   reservation_expires = NULL, version = version + 1
               WHERE booking_id = ?`
	if _, err := s.tx.ExecContext(ctx, q, bookingID); err != nil {
		return nil, fmt.Errorf("release booked seats: %w", err)
	}
	return seatIDs, nil
}

// ReleaseHolds drops all RESERVED seats userID holds on showID.
func (s *txStore) ReleaseHolds(ctx context.Context, showID, userID uint64) ([]uint64, error) {
	seatIDs := []uint64{}
	if err := s.tx.SelectContext(ctx, &seatIDs,
		`SELECT seat_id FROM show_seats
         WHERE show_id = ? AND reserved_by = ? AND status = 'RESERVED'
         ORDER BY seat_id FOR UPDATE`, showID, userID); err != nil {
		return nil, fmt.Errorf("load held seats: %w", err)
	}
	if len(seatIDs) == 0 {
		return seatIDs, nil
	}
	const q = `UPDATE show_seats
               SET status = 'AVAILABLE', reserved_by = NULL, reserved_at = NULL,
                   reservation_expires = NULL, version = version + 1
               WHERE show_id = ? AND reserved_by = ? AND status = 'RESERVED'`
	if _, err := s.tx.ExecContext(ctx, q, showID, userID); err != nil {
		return nil, fmt.Errorf("release holds: %w", err)
	}
	return seatIDs, nil
}

type expiredRow struct {
	ID     uint64 `db:"id"`
	ShowID uint64 `db:"show_id"`
	SeatID uint64 `db:"seat_id"`
}

// ReleaseExpired claims a batch of lapsed holds with FOR UPDATE SKIP
// LOCKED, so rows a booking transaction is working on are left for the
// next sweep, then frees them with a predicate that re-checks the expiry
// at write time.
func (s *txStore) ReleaseExpired(ctx context.Context, now time.Time, limit int) (map[uint64][]uint64, error) {
	rows := []expiredRow{}
	if err := s.tx.SelectContext(ctx, &rows,
		`SELECT id, show_id, seat_id FROM show_seats
         WHERE status = 'RESERVED' AND reservation_expires < ?
         ORDER BY id
         LIMIT ?
         FOR UPDATE SKIP LOCKED`, now.UTC(), limit); err != nil {
		return nil, fmt.Errorf("load expired holds: %w", err)
	}
	released := make(map[uint64][]uint64)
	if len(rows) == 0 {
		return released, nil
	}
	ids := make([]uint64, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.ID)
	}
	q, args, err := s.in(`UPDATE show_seats
               SET status = 'AVAILABLE', reserved_by = NULL, reserved_at = NULL,
                   reservation_expires = NULL, version = version + 1
               WHERE id IN (?) AND status = 'RESERVED' AND reservation_expires < ?`, ids, now.UTC())
	if err != nil {
		return nil, err
	}
	if _, err := s.tx.ExecContext(ctx, q, args...); err != nil {
		return nil, fmt.Errorf("release expired holds: %w", err)
	}
	for _, r := range rows {
		released[r.ShowID] = append(released[r.ShowID], r.SeatID)
	}
	return released, nil
}

// ListByShow returns the full seat map of a show ordered by row and
// number.  The reservation manager applies ShowSeat.EffectiveStatus to hide
// lapsed holds.
func (s *txStore) ListByShow(ctx context.Context, showID uint64) ([]model.ShowSeat, error) {
	seats := []model.ShowSeat{}
	err := s.tx.SelectContext(ctx, &seats, `SELECT `+showSeatColumns+`
               FROM show_seats ss
               JOIN seats se ON se.id = ss.seat_id
               WHERE ss.show_id = ?
               ORDER BY se.row_label, se.seat_number`, showID)
	if err != nil {
		return nil, fmt.Errorf("list show seats: %w", err)
	}
	return seats, nil
}

// CountBookedFor counts seats currently BOOKED under bookingID.
func (s *txStore) CountBookedFor(ctx context.Context, bookingID uint64) (int, error) {
	var n int
	if err := s.tx.GetContext(ctx, &n,
		`SELECT COUNT(*) FROM show_seats WHERE booking_id = ? AND status = 'BOOKED'`, bookingID); err != nil {
		return 0, fmt.Errorf("count booked seats: %w", err)
	}
	return n, nil
}
