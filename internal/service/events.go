package service

import (
	"sort"
	"time"

	"github.com/iliyamo/cinema-booking/internal/model"
	"github.com/iliyamo/cinema-booking/internal/ports"
)

// emit hands a seat event to the notifier.  Publish never blocks, so it
// is always called after the unit of work has committed.
func emit(n ports.Notifier, typ model.SeatEventType, showID uint64, seatIDs []uint64, userID, bookingID uint64, reason string, at time.Time) {
	if n == nil || len(seatIDs) == 0 {
		return
	}
	ev := model.SeatEvent{
		Type:      typ,
		ShowID:    showID,
		SeatIDs:   append([]uint64(nil), seatIDs...),
		Reason:    reason,
		Timestamp: at.UTC(),
	}
	if userID != 0 {
		ev.UserID = &userID
	}
	if bookingID != 0 {
		ev.BookingID = &bookingID
	}
	n.Publish(showID, ev)
}

// normalizeSeatIDs drops zero and duplicate ids and sorts the rest.  Holds
// are taken in ascending id order so two transactions touching
// overlapping seat sets lock rows in the same order.
func normalizeSeatIDs(ids []uint64) []uint64 {
	seen := make(map[uint64]struct{}, len(ids))
	out := make([]uint64, 0, len(ids))
	for _, id := range ids {
		if id == 0 {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
