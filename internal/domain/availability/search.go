package availability

import (
	"context"
	"fmt"

	"github.com/healthfirst/availability/internal/platform/timezone"
)

// Search returns AVAILABLE slots matching c, earliest first.
func (s *Service) Search(ctx context.Context, c SearchCriteria) ([]Slot, error) {
	f, err := s.resolveFilter(c)
	if err != nil {
		return nil, err
	}
	slots, err := s.slots.Search(ctx, f)
	if err != nil {
		return nil, err
	}
	if slots == nil {
		slots = []Slot{}
	}
	return slots, nil
}

// resolveFilter turns calendar dates into the instant range
// [StartDate 00:00:00, EndDate 23:59:59] of the search zone. EndDate
// defaults to StartDate plus the configured number of days.
func (s *Service) resolveFilter(c SearchCriteria) (SlotFilter, error) {
	if c.StartDate.IsZero() {
		return SlotFilter{}, invalid("start_date is required")
	}
	if !c.StartDate.IsValid() {
		return SlotFilter{}, invalid("start_date %s is not a valid date", c.StartDate)
	}

	zone := c.Timezone
	if zone == "" {
		zone = s.opts.SearchTimezone
	}
	loc, err := timezone.Load(zone)
	if err != nil {
		return SlotFilter{}, err
	}

	endDate := c.StartDate.AddDays(s.opts.SearchDefaultDays)
	if c.EndDate != nil {
		if !c.EndDate.IsValid() {
			return SlotFilter{}, invalid("end_date %s is not a valid date", *c.EndDate)
		}
		endDate = *c.EndDate
	}
	if endDate.Before(c.StartDate) {
		return SlotFilter{}, fmt.Errorf("%w: end_date is before start_date", ErrInvalidTimeRange)
	}
	if c.MaxPrice != nil && *c.MaxPrice < 0 {
		return SlotFilter{}, invalid("max_price must not be negative")
	}
	if c.SlotDurationMinutes != nil && *c.SlotDurationMinutes <= 0 {
		return SlotFilter{}, fmt.Errorf("%w: slot_duration_minutes must be positive", ErrInvalidSlotDuration)
	}

	f := SlotFilter{
		From:                timezone.StartOfDay(c.StartDate, loc),
		To:                  timezone.EndOfDay(endDate, loc),
		AppointmentType:     c.AppointmentType,
		ProviderID:          c.ProviderID,
		MaxPrice:            c.MaxPrice,
		SlotDurationMinutes: c.SlotDurationMinutes,
	}
	if c.Location != nil && *c.Location != "" {
		f.Location = c.Location
	}
	return f, nil
}
