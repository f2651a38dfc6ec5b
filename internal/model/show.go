package model

import "time"

// Show is a scheduled screening of a movie in a hall.  Only the fields
// the booking core needs are mapped; catalog management lives elsewhere.
type Show struct {
	ID             uint64    `db:"id"`
	HallID         uint64    `db:"hall_id"`
	Title          string    `db:"title"`
	StartsAt       time.Time `db:"starts_at"`
	BasePriceCents uint32    `db:"base_price_cents"`
	Status         string    `db:"status"`
}
