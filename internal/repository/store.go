package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/iliyamo/cinema-booking/internal/ports"
)

// Store is the MySQL implementation of ports.Store.  Each unit of work
// runs in its own database transaction; the conditional predicates in
// the individual statements keep concurrent transactions from different
// server instances from overwriting each other.
type Store struct {
	db *sqlx.DB
}

// NewStore returns a Store bound to the provided connection pool.
func NewStore(db *sqlx.DB) *Store { return &Store{db: db} }

// Atomic begins a transaction, hands it to fn and commits when fn
// succeeds.  Any error from fn (or a panic) rolls the transaction back.
func (s *Store) Atomic(ctx context.Context, fn func(tx ports.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := fn(&txStore{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	committed = true
	return nil
}

// txStore implements ports.Tx on top of a single *sqlx.Tx.  The seat
// methods live in show_seat_repository.go and the booking methods in
// booking_repository.go.
type txStore struct {
	tx *sqlx.Tx
}

// in expands slice arguments in query and rebinds it for the driver.
func (s *txStore) in(query string, args ...interface{}) (string, []interface{}, error) {
	q, a, err := sqlx.In(query, args...)
	if err != nil {
		return "", nil, err
	}
	return s.tx.Rebind(q), a, nil
}

var _ ports.Store = (*Store)(nil)
var _ ports.Tx = (*txStore)(nil)
