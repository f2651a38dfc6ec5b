package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/iliyamo/cinema-booking/internal/model"
)

const bookingColumns = `id, user_id, show_id, total_amount_cents, voucher_id, payment_method,
       payment_status, booking_status, transaction_id, payment_ref, created_at, updated_at`

// CreateBooking inserts the booking row followed by its seat and combo
// snapshots.  The generated ID is written back to b and to every line.
func (s *txStore) CreateBooking(ctx context.Context, b *model.Booking) error {
	const q = `INSERT INTO bookings (user_id, show_id, total_amount_cents, voucher_id, payment_method,
                                     payment_status, booking_status, transaction_id, created_at, updated_at)
               VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := s.tx.ExecContext(ctx, q,
		b.UserID, b.ShowID, b.TotalAmountCents, b.VoucherID, b.PaymentMethod,
		b.PaymentStatus, b.BookingStatus, b.TransactionID, b.CreatedAt.UTC(), b.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert booking: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	b.ID = uint64(id)
	for i := range b.Seats {
		b.Seats[i].BookingID = b.ID
	}
	for i := range b.Combos {
		b.Combos[i].BookingID = b.ID
	}
	if err := s.insertSeats(ctx, b.Seats); err != nil {
		return err
	}
	return s.insertCombos(ctx, b.Combos)
}

// insertSeats writes all seat snapshots in a single statement.
func (s *txStore) insertSeats(ctx context.Context, seats []model.BookingSeat) error {
	if len(seats) == 0 {
		return nil
	}
	var sb strings.Builder
	sb.WriteString(`INSERT INTO booking_seats (booking_id, seat_id, row_label, seat_number, seat_type, price_cents) VALUES `)
	args := make([]interface{}, 0, len(seats)*6)
	for i, st := range seats {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString("(?, ?, ?, ?, ?, ?)")
		args = append(args, st.BookingID, st.SeatID, st.RowLabel, st.SeatNumber, st.SeatType, st.PriceCents)
	}
	if _, err := s.tx.ExecContext(ctx, sb.String(), args...); err != nil {
		return fmt.Errorf("insert booking seats: %w", err)
	}
	return nil
}

// insertCombos writes all combo lines in a single statement.
func (s *txStore) insertCombos(ctx context.Context, combos []model.BookingCombo) error {
	if len(combos) == 0 {
		return nil
	}
	var sb strings.Builder
	sb.WriteString(`INSERT INTO booking_combos (booking_id, item_id, unit_price_cents, quantity) VALUES `)
	args := make([]interface{}, 0, len(combos)*4)
	for i, c := range combos {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString("(?, ?, ?, ?)")
		args = append(args, c.BookingID, c.ItemID, c.UnitPriceCents, c.Quantity)
	}
	if _, err := s.tx.ExecContext(ctx, sb.String(), args...); err != nil {
		return fmt.Errorf("insert booking combos: %w", err)
	}
	return nil
}

// GetBooking loads a booking and its lines.  It returns ErrNotFound when
// no booking has the given id.
func (s *txStore) GetBooking(ctx context.Context, id uint64, forUpdate bool) (*model.Booking, error) {
	q := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = ?`
	if forUpdate {
		q += ` FOR UPDATE`
	}
	var b model.Booking
	if err := s.tx.GetContext(ctx, &b, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load booking: %w", err)
	}
	list := []model.Booking{b}
	if err := s.loadLines(ctx, list); err != nil {
		return nil, err
	}
	return &list[0], nil
}

// ListBookingsByUser returns the user's bookings ordered newest first.
func (s *txStore) ListBookingsByUser(ctx context.Context, userID uint64) ([]model.Booking, error) {
	list := []model.Booking{}
	if err := s.tx.SelectContext(ctx, &list,
		`SELECT `+bookingColumns+` FROM bookings WHERE user_id = ? ORDER BY created_at DESC, id DESC`, userID); err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	if err := s.loadLines(ctx, list); err != nil {
		return nil, err
	}
	return list, nil
}

// loadLines fills Seats and Combos of every booking in list with two
// IN queries.
func (s *txStore) loadLines(ctx context.Context, list []model.Booking) error {
	if len(list) == 0 {
		return nil
	}
	ids := make([]uint64, 0, len(list))
	index := make(map[uint64]int, len(list))
	for i := range list {
		ids = append(ids, list[i].ID)
		index[list[i].ID] = i
		list[i].Seats = []model.BookingSeat{}
		list[i].Combos = []model.BookingCombo{}
	}

	q, args, err := s.in(`SELECT booking_id, seat_id, row_label, seat_number, seat_type, price_cents
               FROM booking_seats WHERE booking_id IN (?)
               ORDER BY booking_id, row_label, seat_number`, ids)
	if err != nil {
		return err
	}
	seats := []model.BookingSeat{}
	if err := s.tx.SelectContext(ctx, &seats, q, args...); err != nil {
		return fmt.Errorf("load booking seats: %w", err)
	}
	for _, st := range seats {
		i := index[st.BookingID]
		list[i].Seats = append(list[i].Seats, st)
	}

	q, args, err = s.in(`SELECT booking_id, item_id, unit_price_cents, quantity
               FROM booking_combos WHERE booking_id IN (?)
               ORDER BY booking_id, id`, ids)
	if err != nil {
		return err
	}
	combos := []model.BookingCombo{}
	if err := s.tx.SelectContext(ctx, &combos, q, args...); err != nil {
		return fmt.Errorf("load booking combos: %w", err)
	}
	for _, c := range combos {
		i := index[c.BookingID]
		list[i].Combos = append(list[i].Combos, c)
	}
	return nil
}

// UpdateBookingStatus records a payment/booking status pair.  A nil
// paymentRef keeps the stored reference.
func (s *txStore) UpdateBookingStatus(ctx context.Context, id uint64, payment model.PaymentStatus, status model.BookingStatus, paymentRef *string) error {
	const q = `UPDATE bookings
               SET payment_status = ?, booking_status = ?, payment_ref = COALESCE(?, payment_ref),
                   updated_at = UTC_TIMESTAMP()
               WHERE id = ?`
	if _, err := s.tx.ExecContext(ctx, q, payment, status, paymentRef, id); err != nil {
		return fmt.Errorf("update booking status: %w", err)
	}
	return nil
}

// StalePendingBookings lists PENDING bookings older than createdBefore.
func (s *txStore) StalePendingBookings(ctx context.Context, createdBefore time.Time, limit int) ([]uint64, error) {
	ids := []uint64{}
	if err := s.tx.SelectContext(ctx, &ids,
		`SELECT id FROM bookings WHERE booking_status = 'PENDING' AND created_at < ? ORDER BY id LIMIT ?`,
		createdBefore.UTC(), limit); err != nil {
		return nil, fmt.Errorf("list stale bookings: %w", err)
	}
	return ids, nil
}
