package service

import (
	"errors"
	"fmt"

	"github.com/iliyamo/cinema-booking/internal/repository"
)

// Error kinds returned by the booking services.  Handlers translate them
// into HTTP statuses with errors.Is.
var (
	// ErrValidation reports a request the caller can fix: seats not held,
	// holds expired, booking already terminal, malformed input.  No state
	// is changed when it is returned.
	ErrValidation = errors.New("validation failed")
	// ErrConflict reports that a conditional update modified a different
	// number of records than the operation expected.  It signals colliding
	// writers rather than a caller mistake.
	ErrConflict = errors.New("seat state conflict")
	// ErrForbidden is returned when a user acts on another user's booking.
	ErrForbidden = errors.New("forbidden")
	// ErrNotFound is returned when the booking does not exist.
	ErrNotFound = errors.New("not found")
)

// SeatError names the seats that caused an operation to fail.
type SeatError struct {
	Kind    error
	Reason  string
	SeatIDs []uint64
}

func (e *SeatError) Error() string {
	return fmt.Sprintf("%s: %v", e.Reason, e.SeatIDs)
}

func (e *SeatError) Unwrap() error { return e.Kind }

func validationf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrValidation}, args...)...)
}

// fromRepo maps repository sentinels onto service kinds.
func fromRepo(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	case errors.Is(err, repository.ErrForbidden):
		return fmt.Errorf("%w: %v", ErrForbidden, err)
	case errors.Is(err, repository.ErrConflict):
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
	return err
}
