package availability

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"

	"github.com/healthfirst/availability/internal/platform/timezone"
)

type RecurrenceType string

const (
	RecurrenceNone    RecurrenceType = "NONE"
	RecurrenceDaily   RecurrenceType = "DAILY"
	RecurrenceWeekly  RecurrenceType = "WEEKLY"
	RecurrenceMonthly RecurrenceType = "MONTHLY"
)

func (r RecurrenceType) Valid() bool {
	switch r {
	case RecurrenceNone, RecurrenceDaily, RecurrenceWeekly, RecurrenceMonthly:
		return true
	}
	return false
}

type WindowStatus string

const (
	WindowActive    WindowStatus = "ACTIVE"
	WindowInactive  WindowStatus = "INACTIVE"
	WindowSuspended WindowStatus = "SUSPENDED"
	WindowDeleted   WindowStatus = "DELETED"
)

type SlotStatus string

const (
	SlotAvailable SlotStatus = "AVAILABLE"
	SlotBooked    SlotStatus = "BOOKED"
	SlotCancelled SlotStatus = "CANCELLED"
	SlotCompleted SlotStatus = "COMPLETED"
	SlotNoShow    SlotStatus = "NO_SHOW"
)

func (s SlotStatus) Valid() bool {
	switch s {
	case SlotAvailable, SlotBooked, SlotCancelled, SlotCompleted, SlotNoShow:
		return true
	}
	return false
}

// DaySet is a set of weekdays. It encodes as upper-case English day names.
type DaySet []time.Weekday

func (d DaySet) Contains(day time.Weekday) bool {
	for _, x := range d {
		if x == day {
			return true
		}
	}
	return false
}

// normalize returns the set sorted with duplicates removed.
func (d DaySet) normalize() DaySet {
	if len(d) == 0 {
		return nil
	}
	seen := make(map[time.Weekday]bool, len(d))
	out := make(DaySet, 0, len(d))
	for _, x := range d {
		if !seen[x] {
			seen[x] = true
			out = append(out, x)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (d DaySet) MarshalJSON() ([]byte, error) {
	names := make([]string, len(d))
	for i, x := range d {
		names[i] = strings.ToUpper(x.String())
	}
	return json.Marshal(names)
}

func (d *DaySet) UnmarshalJSON(b []byte) error {
	var names []string
	if err := json.Unmarshal(b, &names); err != nil {
		return err
	}
	out := make(DaySet, 0, len(names))
	for _, n := range names {
		day, err := ParseWeekday(n)
		if err != nil {
			return err
		}
		out = append(out, day)
	}
	*d = out
	return nil
}

// ParseWeekday accepts full English day names in any case.
func ParseWeekday(s string) (time.Weekday, error) {
	for day := time.Sunday; day <= time.Saturday; day++ {
		if strings.EqualFold(s, day.String()) {
			return day, nil
		}
	}
	return 0, fmt.Errorf("unknown weekday %q", s)
}

// Window is a provider's declared availability. StartTime, EndTime and
// RecurrenceEndDate are UTC instants; Timezone is the zone it was authored in.
type Window struct {
	ID                  uuid.UUID      `db:"id" json:"id"`
	ProviderID          uuid.UUID      `db:"provider_id" json:"provider_id"`
	StartTime           time.Time      `db:"start_time" json:"start_time"`
	EndTime             time.Time      `db:"end_time" json:"end_time"`
	Timezone            string         `db:"timezone" json:"timezone"`
	RecurrenceType      RecurrenceType `db:"recurrence_type" json:"recurrence_type"`
	RecurrenceDays      DaySet         `db:"recurrence_days" json:"recurrence_days,omitempty"`
	RecurrenceEndDate   *time.Time     `db:"recurrence_end_date" json:"recurrence_end_date,omitempty"`
	SlotDurationMinutes int            `db:"slot_duration_minutes" json:"slot_duration_minutes"`
	Price               *float64       `db:"price" json:"price,omitempty"`
	Currency            *string        `db:"currency" json:"currency,omitempty"`
	Location            *string        `db:"location" json:"location,omitempty"`
	AppointmentType     *string        `db:"appointment_type" json:"appointment_type,omitempty"`
	SpecialRequirements *string        `db:"special_requirements" json:"special_requirements,omitempty"`
	Status              WindowStatus   `db:"status" json:"status"`
	Notes               *string        `db:"notes" json:"notes,omitempty"`
	CreatedAt           time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time      `db:"updated_at" json:"updated_at"`
}

func (w *Window) Recurring() bool {
	return w.RecurrenceType != "" && w.RecurrenceType != RecurrenceNone
}

func (w *Window) SlotDuration() time.Duration {
	return time.Duration(w.SlotDurationMinutes) * time.Minute
}

// EffectiveRecurrenceEnd is the bound used for expansion: the stored
// recurrence end date, or StartTime plus horizonMonths on the window's local
// calendar when none was given.
func (w *Window) EffectiveRecurrenceEnd(horizonMonths int) time.Time {
	if w.RecurrenceEndDate != nil {
		return *w.RecurrenceEndDate
	}
	start := w.StartTime
	if loc, err := timezone.Load(w.Timezone); err == nil {
		start = start.In(loc)
	}
	return addMonthsClamped(start, horizonMonths).UTC()
}

// ConflictsWith reports whether a candidate range [start, end) collides with
// w. A recurring window also collides with every candidate that starts on or
// before its recurrence end date, whatever the weekday or time of day.
func (w *Window) ConflictsWith(start, end time.Time) bool {
	if w.StartTime.Before(end) && w.EndTime.After(start) {
		return true
	}
	return w.Recurring() && w.RecurrenceEndDate != nil && !w.RecurrenceEndDate.Before(start)
}

// Slot is one bookable unit materialized from a window.
type Slot struct {
	ID                  uuid.UUID  `db:"id" json:"id"`
	WindowID            uuid.UUID  `db:"window_id" json:"window_id"`
	ProviderID          uuid.UUID  `db:"provider_id" json:"provider_id"`
	StartTime           time.Time  `db:"start_time" json:"start_time"`
	EndTime             time.Time  `db:"end_time" json:"end_time"`
	Timezone            string     `db:"timezone" json:"timezone"`
	Status              SlotStatus `db:"status" json:"status"`
	Price               *float64   `db:"price" json:"price,omitempty"`
	Currency            *string    `db:"currency" json:"currency,omitempty"`
	Location            *string    `db:"location" json:"location,omitempty"`
	AppointmentType     *string    `db:"appointment_type" json:"appointment_type,omitempty"`
	SpecialRequirements *string    `db:"special_requirements" json:"special_requirements,omitempty"`
	PatientID           *uuid.UUID `db:"patient_id" json:"patient_id,omitempty"`
	BookingNotes        *string    `db:"booking_notes" json:"booking_notes,omitempty"`
	CreatedAt           time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time  `db:"updated_at" json:"updated_at"`
}

func (s *Slot) DurationMinutes() int {
	return int(s.EndTime.Sub(s.StartTime) / time.Minute)
}

// WindowView is a window together with its slots and per-status counts.
type WindowView struct {
	Window
	TotalSlots     int    `json:"total_slots"`
	AvailableSlots int    `json:"available_slots"`
	BookedSlots    int    `json:"booked_slots"`
	CancelledSlots int    `json:"cancelled_slots"`
	Slots          []Slot `json:"slots"`
}

func newWindowView(w Window, slots []Slot) *WindowView {
	v := &WindowView{Window: w, Slots: slots, TotalSlots: len(slots)}
	if v.Slots == nil {
		v.Slots = []Slot{}
	}
	for _, s := range slots {
		switch s.Status {
		case SlotAvailable:
			v.AvailableSlots++
		case SlotBooked:
			v.BookedSlots++
		case SlotCancelled:
			v.CancelledSlots++
		}
	}
	return v
}

// CreateWindowRequest carries wall-clock times in Timezone.
type CreateWindowRequest struct {
	ProviderID          uuid.UUID       `json:"provider_id"`
	StartTime           civil.DateTime  `json:"start_time"`
	EndTime             civil.DateTime  `json:"end_time"`
	Timezone            string          `json:"timezone"`
	RecurrenceType      RecurrenceType  `json:"recurrence_type,omitempty"`
	RecurrenceDays      DaySet          `json:"recurrence_days,omitempty"`
	RecurrenceEndDate   *civil.DateTime `json:"recurrence_end_date,omitempty"`
	SlotDurationMinutes int             `json:"slot_duration_minutes"`
	Price               *float64        `json:"price,omitempty"`
	Currency            *string         `json:"currency,omitempty"`
	Location            *string         `json:"location,omitempty"`
	AppointmentType     *string         `json:"appointment_type,omitempty"`
	SpecialRequirements *string         `json:"special_requirements,omitempty"`
	Status              WindowStatus    `json:"status,omitempty"`
	Notes               *string         `json:"notes,omitempty"`
}

// SlotPatch lists the slot fields an update may change. Nil fields are left
// untouched.
type SlotPatch struct {
	StartTime           *time.Time  `json:"start_time,omitempty"`
	EndTime             *time.Time  `json:"end_time,omitempty"`
	Price               *float64    `json:"price,omitempty"`
	Currency            *string     `json:"currency,omitempty"`
	Location            *string     `json:"location,omitempty"`
	AppointmentType     *string     `json:"appointment_type,omitempty"`
	SpecialRequirements *string     `json:"special_requirements,omitempty"`
	Status              *SlotStatus `json:"status,omitempty"`
	BookingNotes        *string     `json:"booking_notes,omitempty"`
	PatientID           *uuid.UUID  `json:"patient_id,omitempty"`
}

// SearchCriteria filters AVAILABLE slots. Dates are calendar days in
// Timezone.
type SearchCriteria struct {
	StartDate           civil.Date
	EndDate             *civil.Date
	Location            *string
	AppointmentType     *string
	ProviderID          *uuid.UUID
	MaxPrice            *float64
	SlotDurationMinutes *int
	Timezone            string
}

// SlotFilter is the storage-level form of SearchCriteria with resolved
// instants.
type SlotFilter struct {
	From                time.Time
	To                  time.Time
	Location            *string
	AppointmentType     *string
	ProviderID          *uuid.UUID
	MaxPrice            *float64
	SlotDurationMinutes *int
}

// Matches reports whether an AVAILABLE slot satisfies the filter.
func (f SlotFilter) Matches(s *Slot) bool {
	if s.Status != SlotAvailable {
		return false
	}
	if s.StartTime.Before(f.From) || s.StartTime.After(f.To) {
		return false
	}
	if f.Location != nil {
		if s.Location == nil || !strings.Contains(strings.ToLower(*s.Location), strings.ToLower(*f.Location)) {
			return false
		}
	}
	if f.AppointmentType != nil && (s.AppointmentType == nil || *s.AppointmentType != *f.AppointmentType) {
		return false
	}
	if f.ProviderID != nil && s.ProviderID != *f.ProviderID {
		return false
	}
	if f.MaxPrice != nil && (s.Price == nil || *s.Price > *f.MaxPrice) {
		return false
	}
	if f.SlotDurationMinutes != nil && s.DurationMinutes() != *f.SlotDurationMinutes {
		return false
	}
	return true
}
