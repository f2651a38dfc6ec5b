package model

import (
	"math"
	"time"
)

// PaymentStatus tracks the outcome reported by the payment provider.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "PENDING"
	PaymentCompleted PaymentStatus = "COMPLETED"
	PaymentFailed    PaymentStatus = "FAILED"
)

// BookingStatus is the lifecycle state of a booking.
type BookingStatus string

const (
	BookingPending   BookingStatus = "PENDING"
	BookingConfirmed BookingStatus = "CONFIRMED"
	BookingCancelled BookingStatus = "CANCELLED"
	BookingCompleted BookingStatus = "COMPLETED"
)

// Booking records a user's purchase attempt for a specific show.  Seats
// and combos are snapshots taken when the booking is created and never
// change afterwards; TotalAmountCents is computed once from them.
//
// Fields:
//
//	ID               – primary key identifier.
//	UserID           – user who made the booking.
//	ShowID           – show being booked.
//	Seats            – seat snapshots (row, number, type, price).
//	Combos           – concession items bought with the tickets.
//	TotalAmountCents – seat prices plus combo subtotals.
//	VoucherID        – optional voucher reference.
//	PaymentMethod    – method chosen by the customer.
//	PaymentStatus    – PENDING, COMPLETED or FAILED.
//	BookingStatus    – PENDING, CONFIRMED, CANCELLED or COMPLETED.
//	TransactionID    – unique token generated at creation.
//	PaymentRef       – provider reference reported with the payment status.
type Booking struct {
	ID               uint64         `db:"id" json:"id"`
	UserID           uint64         `db:"user_id" json:"user_id"`
	ShowID           uint64         `db:"show_id" json:"show_id"`
	Seats            []BookingSeat  `db:"-" json:"seats"`
	Combos           []BookingCombo `db:"-" json:"combos"`
	TotalAmountCents uint32         `db:"total_amount_cents" json:"total_amount_cents"`
	VoucherID        *uint64        `db:"voucher_id" json:"voucher_id,omitempty"`
	PaymentMethod    string         `db:"payment_method" json:"payment_method"`
	PaymentStatus    PaymentStatus  `db:"payment_status" json:"payment_status"`
	BookingStatus    BookingStatus  `db:"booking_status" json:"booking_status"`
	TransactionID    string         `db:"transaction_id" json:"transaction_id"`
	PaymentRef       *string        `db:"payment_ref" json:"payment_ref,omitempty"`
	CreatedAt        time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time      `db:"updated_at" json:"updated_at"`
}

// SeatIDs returns the ids of the seats snapshotted in the booking.
func (b *Booking) SeatIDs() []uint64 {
	ids := make([]uint64, 0, len(b.Seats))
	for _, s := range b.Seats {
		ids = append(ids, s.SeatID)
	}
	return ids
}

// Terminal reports whether the booking can no longer be cancelled.
func (b *Booking) Terminal() bool {
	return b.BookingStatus == BookingCancelled || b.BookingStatus == BookingCompleted
}

// BookingSeat is the denormalised copy of a seat stored with a booking.
type BookingSeat struct {
	BookingID  uint64 `db:"booking_id" json:"-"`
	SeatID     uint64 `db:"seat_id" json:"seat_id"`
	RowLabel   string `db:"row_label" json:"row_label"`
	SeatNumber uint32 `db:"seat_number" json:"seat_number"`
	SeatType   string `db:"seat_type" json:"seat_type"`
	PriceCents uint32 `db:"price_cents" json:"price_cents"`
}

// BookingCombo is one concession line of a booking.
type BookingCombo struct {
	BookingID      uint64 `db:"booking_id" json:"-"`
	ItemID         uint64 `db:"item_id" json:"item_id"`
	UnitPriceCents uint32 `db:"unit_price_cents" json:"unit_price_cents"`
	Quantity       uint32 `db:"quantity" json:"quantity"`
}

// MaxAmountCents is the largest booking total the bookings table stores.
const MaxAmountCents = math.MaxUint32

// Subtotal is the line amount in cents.
func (c BookingCombo) Subtotal() uint64 { return uint64(c.UnitPriceCents) * uint64(c.Quantity) }

// TotalCents sums seat prices and combo subtotals.  The sum is kept in
// 64 bits so callers can reject totals above MaxAmountCents instead of
// storing a wrapped amount.
func TotalCents(seats []BookingSeat, combos []BookingCombo) uint64 {
	var total uint64
	for _, s := range seats {
		total += uint64(s.PriceCents)
	}
	for _, c := range combos {
		total += c.Subtotal()
	}
	return total
}
