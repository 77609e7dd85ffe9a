package availability

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// GenerateSlots cuts one occurrence into consecutive slots of the window's
// slot duration. A trailing remainder shorter than one slot is dropped.
func GenerateSlots(w *Window, occ Occurrence) []Slot {
	n := slotCount(w, occ)
	if n <= 0 {
		return nil
	}
	d := w.SlotDuration()

	slots := make([]Slot, 0, n)
	for start := occ.Start; !start.Add(d).After(occ.End); start = start.Add(d) {
		slots = append(slots, Slot{
			ID:                  uuid.New(),
			WindowID:            w.ID,
			ProviderID:          w.ProviderID,
			StartTime:           start,
			EndTime:             start.Add(d),
			Timezone:            w.Timezone,
			Status:              SlotAvailable,
			Price:               w.Price,
			Currency:            w.Currency,
			Location:            w.Location,
			AppointmentType:     w.AppointmentType,
			SpecialRequirements: w.SpecialRequirements,
			CreatedAt:           w.CreatedAt,
			UpdatedAt:           w.CreatedAt,
		})
	}
	return slots
}

// materialize expands w and generates every slot. It stops with
// ErrRecurrenceTooLarge before returning anything when either cap is hit.
// The slot cap is checked before an occurrence's slots are allocated.
func materialize(w *Window, opts ExpandOptions) ([]Slot, error) {
	it, err := Expand(w, opts)
	if err != nil {
		return nil, err
	}
	var slots []Slot
	total := 0
	for it.Next() {
		occ := it.Occurrence()
		total += slotCount(w, occ)
		if opts.MaxSlots > 0 && total > opts.MaxSlots {
			return nil, fmt.Errorf("%w: more than %d slots", ErrRecurrenceTooLarge, opts.MaxSlots)
		}
		slots = append(slots, GenerateSlots(w, occ)...)
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	return slots, nil
}

func slotCount(w *Window, occ Occurrence) int {
	d := w.SlotDuration()
	if d <= 0 {
		return 0
	}
	return int(occ.End.Sub(occ.Start) / d)
}

// fitsOneSlot reports whether at least one slot fits between start and end.
func fitsOneSlot(start, end time.Time, minutes int) bool {
	return end.Sub(start) >= time.Duration(minutes)*time.Minute
}
