package service

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/cinema-booking/internal/model"
	"github.com/iliyamo/cinema-booking/internal/ports"
)

const reconcileBatch = 200

// Reconciler looks for pending bookings whose seats are not all booked
// under them, cancels those bookings and frees whatever seats still
// reference them.  Create writes the booking and the seat transition in
// one unit of work, so a hit here means the records were changed outside
// the service.
type Reconciler struct {
	store    ports.Store
	notifier ports.Notifier
	log      logrus.FieldLogger
	grace    time.Duration
	now      func() time.Time
}

// NewReconciler returns a Reconciler that ignores bookings younger than
// grace.
func NewReconciler(store ports.Store, notifier ports.Notifier, log logrus.FieldLogger, grace time.Duration) *Reconciler {
	return &Reconciler{store: store, notifier: notifier, log: log, grace: grace, now: time.Now}
}

// Run performs one pass and returns the ids of the bookings it
// cancelled.  Errors are logged; a failed booking is retried next pass.
func (r *Reconciler) Run(ctx context.Context) []uint64 {
	cutoff := r.now().UTC().Add(-r.grace)
	var ids []uint64
	err := r.store.Atomic(ctx, func(tx ports.Tx) error {
		var err error
		ids, err = tx.StalePendingBookings(ctx, cutoff, reconcileBatch)
		return err
	})
	if err != nil {
		r.log.WithError(err).Warn("reconcile: list pending bookings failed")
		return nil
	}

	var fixed []uint64
	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		b, released, err := r.reconcile(ctx, id)
		if err != nil {
			r.log.WithError(err).WithField("booking_id", id).Warn("reconcile: booking failed")
			continue
		}
		if b == nil {
			continue
		}
		fixed = append(fixed, id)
		r.log.WithFields(logrus.Fields{
			"booking_id": id,
			"show_id":    b.ShowID,
			"expected":   len(b.Seats),
			"released":   len(released),
		}).Warn("reconcile: cancelled inconsistent pending booking")
		emit(r.notifier, model.EventSeatsReleased, b.ShowID, released, b.UserID, b.ID, model.ReasonBookingReconciled, r.now())
	}
	return fixed
}

// reconcile returns a nil booking when the booking is consistent or no
// longer pending.
func (r *Reconciler) reconcile(ctx context.Context, id uint64) (*model.Booking, []uint64, error) {
	var (
		booking  *model.Booking
		released []uint64
	)
	err := r.store.Atomic(ctx, func(tx ports.Tx) error {
		b, err := tx.GetBooking(ctx, id, true)
		if err != nil {
			return err
		}
		if b.BookingStatus != model.BookingPending {
			return nil
		}
		n, err := tx.CountBookedFor(ctx, id)
		if err != nil {
			return err
		}
		if n == len(b.Seats) && n > 0 {
			return nil
		}
		if err := tx.UpdateBookingStatus(ctx, id, b.PaymentStatus, model.BookingCancelled, nil); err != nil {
			return err
		}
		b.BookingStatus = model.BookingCancelled
		if released, err = tx.ReleaseByBooking(ctx, id); err != nil {
			return err
		}
		booking = b
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return booking, released, nil
}
