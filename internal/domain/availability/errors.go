package availability

import (
	"errors"
	"fmt"

	"github.com/healthfirst/availability/internal/platform/timezone"
)

var (
	ErrInvalidTimeRange        = errors.New("start time must be before end time")
	ErrOverlappingAvailability = errors.New("availability overlaps an existing window")
	ErrInvalidTimezone         = timezone.ErrInvalidTimezone
	ErrRecurrenceTooLarge      = errors.New("recurrence expands to too many occurrences")
	ErrWindowNotFound          = errors.New("availability window not found")
	ErrSlotNotFound            = errors.New("slot not found")
	ErrBookedSlotsExist        = errors.New("window has booked slots")
	ErrSlotImmutable           = errors.New("booked slot cannot be modified")
	ErrStorageFailure          = errors.New("storage failure")
	ErrInvalidSlotDuration     = errors.New("invalid slot duration")
	ErrInvalidStatus           = errors.New("invalid status")
	ErrInvalidRequest          = errors.New("invalid request")
)

// isDomainErr reports whether err already carries one of this package's
// sentinels, storage failures included.
func isDomainErr(err error) bool {
	for _, sentinel := range []error{
		ErrInvalidTimeRange, ErrOverlappingAvailability, ErrInvalidTimezone,
		ErrRecurrenceTooLarge, ErrWindowNotFound, ErrSlotNotFound,
		ErrBookedSlotsExist, ErrSlotImmutable, ErrStorageFailure,
		ErrInvalidSlotDuration, ErrInvalidStatus, ErrInvalidRequest,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}

func storageErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStorageFailure, err)
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}
