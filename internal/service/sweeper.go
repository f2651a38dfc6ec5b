package service

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/cinema-booking/internal/model"
	"github.com/iliyamo/cinema-booking/internal/ports"
)

const defaultSweepBatch = 500

// Sweeper releases holds whose timer has elapsed.
type Sweeper struct {
	store    ports.Store
	notifier ports.Notifier
	log      logrus.FieldLogger
	batch    int
	now      func() time.Time
}

// NewSweeper returns a Sweeper releasing up to batch holds per unit of
// work.  A non-positive batch uses the default.
func NewSweeper(store ports.Store, notifier ports.Notifier, log logrus.FieldLogger, batch int) *Sweeper {
	if batch <= 0 {
		batch = defaultSweepBatch
	}
	return &Sweeper{store: store, notifier: notifier, log: log, batch: batch, now: time.Now}
}

// Sweep releases every hold that had expired when the sweep started and
// publishes one seats-released event per show covering every seat the
// sweep freed, across all batches.  Failures are logged and swallowed;
// seats released before the failure are still announced and the next run
// picks up whatever was left.  It returns the number of seats released.
func (s *Sweeper) Sweep(ctx context.Context) int {
	start := s.now().UTC()
	byShow := map[uint64][]uint64{}
	total := 0
	for {
		var released map[uint64][]uint64
		err := s.store.Atomic(ctx, func(tx ports.Tx) error {
			var err error
			released, err = tx.ReleaseExpired(ctx, start, s.batch)
			return err
		})
		if err != nil {
			s.log.WithError(err).Warn("expiry sweep failed")
			break
		}
		n := 0
		for showID, seatIDs := range released {
			n += len(seatIDs)
			byShow[showID] = append(byShow[showID], seatIDs...)
		}
		total += n
		if n < s.batch || ctx.Err() != nil {
			break
		}
	}

	at := s.now()
	for showID, seatIDs := range byShow {
		emit(s.notifier, model.EventSeatsReleased, showID, normalizeSeatIDs(seatIDs), 0, 0, model.ReasonReservationExpired, at)
	}
	if total > 0 {
		s.log.WithField("count", total).Info("expired holds released")
	}
	return total
}
