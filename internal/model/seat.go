package model

// Seat types recognised by pricing.
const (
	SeatTypeStandard   = "STANDARD"
	SeatTypeVIP        = "VIP"
	SeatTypeAccessible = "ACCESSIBLE"
)

// Seat describes a physical seat in a hall.  Seats are uniquely
// identified by their hall, row label and seat number.
type Seat struct {
	ID         uint64 `db:"id"`
	HallID     uint64 `db:"hall_id"`
	RowLabel   string `db:"row_label"`
	SeatNumber uint32 `db:"seat_number"`
	SeatType   string `db:"seat_type"`
	IsActive   bool   `db:"is_active"`
}

// SeatPrice derives the per-show price of a seat from the show's base
// price.  VIP seats carry a 50% surcharge.  The MySQL seeding query in
// the repository applies the same rule.
func SeatPrice(basePriceCents uint32, seatType string) uint32 {
	if seatType == SeatTypeVIP {
		return basePriceCents * 3 / 2
	}
	return basePriceCents
}
