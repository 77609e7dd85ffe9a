package availability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/healthfirst/availability/internal/platform/lock"
	"github.com/healthfirst/availability/internal/platform/timezone"
)

const (
	MinSlotMinutes = 15
	MaxSlotMinutes = 480
)

// Options tunes expansion and search.
type Options struct {
	MaxOccurrences    int
	MaxSlots          int
	HorizonMonths     int
	SearchDefaultDays int
	SearchTimezone    string
}

func DefaultOptions() Options {
	return Options{
		MaxOccurrences:    2000,
		MaxSlots:          20000,
		HorizonMonths:     6,
		SearchDefaultDays: 30,
		SearchTimezone:    "UTC",
	}
}

// Service creates, reads and deletes availability windows, updates their
// slots and searches open slots. Writes for one provider are serialized
// through the locker and each runs in a single storage transaction.
type Service struct {
	windows WindowRepository
	slots   SlotRepository
	tx      TxManager
	locker  lock.Locker
	overlap *OverlapValidator
	opts    Options
	logger  zerolog.Logger
	now     func() time.Time
}

func NewService(windows WindowRepository, slots SlotRepository, tx TxManager, locker lock.Locker, opts Options, logger zerolog.Logger) *Service {
	return &Service{
		windows: windows,
		slots:   slots,
		tx:      tx,
		locker:  locker,
		overlap: NewOverlapValidator(windows),
		opts:    opts,
		logger:  logger.With().Str("component", "availability").Logger(),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) expandOptions() ExpandOptions {
	return ExpandOptions{
		MaxOccurrences: s.opts.MaxOccurrences,
		HorizonMonths:  s.opts.HorizonMonths,
		MaxSlots:       s.opts.MaxSlots,
	}
}

func (s *Service) withProvider(ctx context.Context, providerID uuid.UUID, fn func(ctx context.Context) error) error {
	return s.locker.WithLock(ctx, lock.ProviderKey(providerID.String()), func(ctx context.Context) error {
		err := s.tx.WithinTx(ctx, fn)
		if err != nil && !isDomainErr(err) {
			// Begin and commit failures come back from the transactor unwrapped.
			return storageErr("transaction", err)
		}
		return err
	})
}

// CreateAvailability validates the request, materializes every slot and
// stores the window with its slots atomically.
func (s *Service) CreateAvailability(ctx context.Context, req CreateWindowRequest) (*WindowView, error) {
	w, err := s.buildWindow(req)
	if err != nil {
		return nil, err
	}

	slots, err := materialize(w, s.expandOptions())
	if err != nil {
		return nil, err
	}

	err = s.withProvider(ctx, w.ProviderID, func(ctx context.Context) error {
		overlapping, err := s.overlap.HasOverlap(ctx, w.ProviderID, w.StartTime, w.EndTime, nil)
		if err != nil {
			return err
		}
		if overlapping {
			return ErrOverlappingAvailability
		}
		if err := s.windows.Create(ctx, w); err != nil {
			return err
		}
		return s.slots.CreateBatch(ctx, slots)
	})
	if err != nil {
		s.logFailure(err, "create availability", w.ProviderID)
		return nil, err
	}

	s.logger.Info().
		Str("provider_id", w.ProviderID.String()).
		Str("window_id", w.ID.String()).
		Str("recurrence", string(w.RecurrenceType)).
		Int("slots", len(slots)).
		Msg("availability created")

	return newWindowView(*w, slots), nil
}

func (s *Service) buildWindow(req CreateWindowRequest) (*Window, error) {
	if req.ProviderID == uuid.Nil {
		return nil, invalid("provider_id is required")
	}
	if req.SlotDurationMinutes < MinSlotMinutes || req.SlotDurationMinutes > MaxSlotMinutes {
		return nil, fmt.Errorf("%w: slot_duration_minutes must be between %d and %d",
			ErrInvalidSlotDuration, MinSlotMinutes, MaxSlotMinutes)
	}
	recurrence := req.RecurrenceType
	if recurrence == "" {
		recurrence = RecurrenceNone
	}
	if !recurrence.Valid() {
		return nil, invalid("unknown recurrence_type %q", recurrence)
	}
	status := req.Status
	if status == "" {
		status = WindowActive
	}
	if status != WindowActive && status != WindowInactive && status != WindowSuspended {
		return nil, fmt.Errorf("%w: window cannot be created as %q", ErrInvalidStatus, status)
	}
	if req.Price != nil && *req.Price < 0 {
		return nil, invalid("price must not be negative")
	}
	if req.Currency != nil && len(*req.Currency) > 3 {
		return nil, invalid("currency must be at most 3 characters")
	}

	start, err := timezone.ToCanonical(req.StartTime, req.Timezone)
	if err != nil {
		return nil, err
	}
	end, err := timezone.ToCanonical(req.EndTime, req.Timezone)
	if err != nil {
		return nil, err
	}
	if !start.Before(end) {
		return nil, ErrInvalidTimeRange
	}
	if !fitsOneSlot(start, end, req.SlotDurationMinutes) {
		return nil, fmt.Errorf("%w: %d minutes does not fit in the window", ErrInvalidSlotDuration, req.SlotDurationMinutes)
	}

	now := s.now()
	w := &Window{
		ID:                  uuid.New(),
		ProviderID:          req.ProviderID,
		StartTime:           start,
		EndTime:             end,
		Timezone:            req.Timezone,
		RecurrenceType:      recurrence,
		SlotDurationMinutes: req.SlotDurationMinutes,
		Price:               req.Price,
		Currency:            req.Currency,
		Location:            req.Location,
		AppointmentType:     req.AppointmentType,
		SpecialRequirements: req.SpecialRequirements,
		Status:              status,
		Notes:               req.Notes,
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	if w.Recurring() {
		var recurEnd time.Time
		if req.RecurrenceEndDate != nil {
			if recurEnd, err = timezone.ToCanonical(*req.RecurrenceEndDate, req.Timezone); err != nil {
				return nil, err
			}
			if !recurEnd.After(start) {
				return nil, fmt.Errorf("%w: recurrence_end_date must be after start_time", ErrInvalidTimeRange)
			}
		} else {
			recurEnd = w.EffectiveRecurrenceEnd(s.opts.HorizonMonths)
		}
		w.RecurrenceEndDate = &recurEnd
		if recurrence == RecurrenceWeekly {
			w.RecurrenceDays = req.RecurrenceDays.normalize()
		}
		// Longer windows would make consecutive occurrences overlap.
		gap := minOccurrenceGap(recurrence, w.RecurrenceDays, req.StartTime.Date.In(time.UTC).Weekday())
		if span := req.EndTime.In(time.UTC).Sub(req.StartTime.In(time.UTC)); span > gap {
			return nil, fmt.Errorf("%w: a %s window cannot be longer than %s", ErrInvalidTimeRange, recurrence, gap)
		}
	}

	return w, nil
}

// GetAvailability returns the provider's oldest ACTIVE window with its
// slots. Other ACTIVE windows are not included.
func (s *Service) GetAvailability(ctx context.Context, providerID uuid.UUID) (*WindowView, error) {
	windows, err := s.windows.ListByProviderAndStatus(ctx, providerID, WindowActive)
	if err != nil {
		return nil, err
	}
	if len(windows) == 0 {
		return nil, ErrWindowNotFound
	}
	w := windows[0]
	slots, err := s.slots.ListByWindow(ctx, w.ID)
	if err != nil {
		return nil, err
	}
	return newWindowView(*w, slots), nil
}

func (s *Service) GetWindow(ctx context.Context, id uuid.UUID) (*Window, error) {
	return s.windows.GetByID(ctx, id)
}

// DeleteAvailability refuses while any slot is BOOKED. A recurring window
// with cascade set is removed together with its slots; anything else is
// marked DELETED and its slots are kept.
func (s *Service) DeleteAvailability(ctx context.Context, windowID uuid.UUID, cascade bool) error {
	w, err := s.windows.GetByID(ctx, windowID)
	if err != nil {
		return err
	}

	mode := "soft"
	var removed int64
	err = s.withProvider(ctx, w.ProviderID, func(ctx context.Context) error {
		w, err := s.windows.GetByID(ctx, windowID)
		if err != nil {
			return err
		}
		booked, err := s.slots.CountBookedByWindow(ctx, windowID)
		if err != nil {
			return err
		}
		if booked > 0 {
			return fmt.Errorf("%w: %d booked", ErrBookedSlotsExist, booked)
		}

		if cascade && w.Recurring() {
			mode = "cascade"
			if removed, err = s.slots.DeleteByWindow(ctx, windowID); err != nil {
				return err
			}
			return s.windows.Delete(ctx, windowID)
		}
		return s.windows.UpdateStatus(ctx, windowID, WindowDeleted)
	})
	if err != nil {
		s.logFailure(err, "delete availability", w.ProviderID)
		return err
	}

	s.logger.Info().
		Str("provider_id", w.ProviderID.String()).
		Str("window_id", windowID.String()).
		Str("mode", mode).
		Int64("slots_removed", removed).
		Msg("availability deleted")
	return nil
}

// ListProviderSlots returns all of a provider's slots, optionally only those
// in one status.
func (s *Service) ListProviderSlots(ctx context.Context, providerID uuid.UUID, status *SlotStatus) ([]Slot, error) {
	if status != nil && !status.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, *status)
	}
	slots, err := s.slots.ListByProvider(ctx, providerID, status)
	if err != nil {
		return nil, err
	}
	if slots == nil {
		slots = []Slot{}
	}
	return slots, nil
}

func (s *Service) logFailure(err error, op string, providerID uuid.UUID) {
	if errors.Is(err, ErrStorageFailure) {
		s.logger.Error().Err(err).Str("provider_id", providerID.String()).Msg(op + " failed")
		return
	}
	s.logger.Debug().Err(err).Str("provider_id", providerID.String()).Msg(op + " rejected")
}
