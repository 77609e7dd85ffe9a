package availability

import (
	"time"

	"cloud.google.com/go/civil"

	"github.com/healthfirst/availability/internal/platform/timezone"
)

// Occurrence is one concrete instance of a window, as UTC instants.
type Occurrence struct {
	Start time.Time
	End   time.Time
}

// ExpandOptions bounds recurrence expansion.
type ExpandOptions struct {
	// MaxOccurrences is the hard cap; going past it fails with
	// ErrRecurrenceTooLarge.
	MaxOccurrences int
	// HorizonMonths bounds recurring windows that have no end date.
	HorizonMonths int
	// MaxSlots caps the slots materialized for one window. Zero means no cap.
	MaxSlots int
}

// minOccurrenceGap is the shortest wall-clock distance between two
// consecutive occurrence starts. A weekly window with days always occurs on
// its start weekday first, then on the selected days.
func minOccurrenceGap(rt RecurrenceType, days DaySet, first time.Weekday) time.Duration {
	const day = 24 * time.Hour
	switch rt {
	case RecurrenceDaily:
		return day
	case RecurrenceWeekly:
		if len(days) == 0 {
			return 7 * day
		}
		var selected [7]bool
		for _, d := range days {
			selected[d] = true
		}
		next := func(from int) int {
			for n := 1; n < 7; n++ {
				if selected[(from+n)%7] {
					return n
				}
			}
			return 7
		}
		gap := next(int(first))
		for d := 0; d < 7; d++ {
			if n := next(d); selected[d] && n < gap {
				gap = n
			}
		}
		return time.Duration(gap) * day
	case RecurrenceMonthly:
		return 28 * day
	}
	return 0
}

// OccurrenceIter walks the occurrences of a window in order.
//
// Stepping is done on the calendar of the window's own zone, so a 09:00
// daily window stays at 09:00 local time across DST changes and each
// occurrence keeps the wall-clock length of the original.
//
//	it, err := Expand(w, opts)
//	for it.Next() {
//		occ := it.Occurrence()
//	}
//	if err := it.Err(); err != nil { ... }
type OccurrenceIter struct {
	w     *Window
	loc   *time.Location
	opts  ExpandOptions
	first civil.DateTime
	span  time.Duration
	bound time.Time

	count int
	date  civil.Date
	cur   Occurrence
	done  bool
	err   error
}

// Expand prepares a lazy iterator over w's occurrences. Nothing is computed
// until Next is called.
func Expand(w *Window, opts ExpandOptions) (*OccurrenceIter, error) {
	loc, err := timezone.Load(w.Timezone)
	if err != nil {
		return nil, err
	}
	first := civil.DateTimeOf(w.StartTime.In(loc))
	last := civil.DateTimeOf(w.EndTime.In(loc))
	it := &OccurrenceIter{
		w:     w,
		loc:   loc,
		opts:  opts,
		first: first,
		span:  last.In(time.UTC).Sub(first.In(time.UTC)),
		bound: w.EffectiveRecurrenceEnd(opts.HorizonMonths),
	}
	return it, nil
}

// Next advances to the next occurrence and reports whether there is one.
func (it *OccurrenceIter) Next() bool {
	if it.done || it.err != nil {
		return false
	}
	if it.opts.MaxOccurrences > 0 && it.count >= it.opts.MaxOccurrences && it.hasMore() {
		it.err = ErrRecurrenceTooLarge
		return false
	}

	if !it.w.Recurring() {
		if it.count > 0 {
			it.done = true
			return false
		}
		it.cur = Occurrence{Start: it.w.StartTime, End: it.w.EndTime}
		it.count++
		return true
	}

	date := it.nextDate()
	occ := it.occurrenceOn(date)
	if !occ.Start.Before(it.bound) {
		it.done = true
		return false
	}
	it.date = date
	it.cur = occ
	it.count++
	return true
}

// hasMore peeks whether another occurrence exists without consuming it.
func (it *OccurrenceIter) hasMore() bool {
	if !it.w.Recurring() {
		return it.count == 0
	}
	return it.occurrenceOn(it.nextDate()).Start.Before(it.bound)
}

func (it *OccurrenceIter) nextDate() civil.Date {
	if it.count == 0 {
		return it.first.Date
	}
	switch it.w.RecurrenceType {
	case RecurrenceDaily:
		return it.date.AddDays(1)
	case RecurrenceWeekly:
		if len(it.w.RecurrenceDays) == 0 {
			return it.date.AddDays(7)
		}
		d := it.date.AddDays(1)
		for i := 0; i < 7 && !it.w.RecurrenceDays.Contains(d.In(time.UTC).Weekday()); i++ {
			d = d.AddDays(1)
		}
		return d
	case RecurrenceMonthly:
		// Always from the anchor so a 31st clamps per month without drifting.
		return addMonthsDate(it.first.Date, it.count)
	}
	return it.date
}

func (it *OccurrenceIter) occurrenceOn(date civil.Date) Occurrence {
	startWall := civil.DateTime{Date: date, Time: it.first.Time}
	endWall := civil.DateTimeOf(startWall.In(time.UTC).Add(it.span))
	start := timezone.Resolve(startWall, it.loc)
	end := timezone.Resolve(endWall, it.loc)
	if !end.After(start) {
		end = start.Add(it.w.EndTime.Sub(it.w.StartTime))
	}
	return Occurrence{Start: start, End: end}
}

// Occurrence returns the occurrence produced by the last call to Next.
func (it *OccurrenceIter) Occurrence() Occurrence {
	return it.cur
}

// Err returns ErrRecurrenceTooLarge if the cap was hit.
func (it *OccurrenceIter) Err() error {
	return it.err
}

// Reset rewinds the iterator to the first occurrence.
func (it *OccurrenceIter) Reset() {
	it.count = 0
	it.date = civil.Date{}
	it.cur = Occurrence{}
	it.done = false
	it.err = nil
}

// addMonthsDate adds n months, clamping the day to the end of the target
// month (Jan 31 + 1 month = Feb 29 in a leap year).
func addMonthsDate(d civil.Date, n int) civil.Date {
	total := int(d.Month) - 1 + n
	year := d.Year + total/12
	month := time.Month(total%12 + 1)
	if total < 0 && total%12 != 0 {
		year--
		month = time.Month(total%12 + 13)
	}
	lastDay := time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
	day := d.Day
	if day > lastDay {
		day = lastDay
	}
	return civil.Date{Year: year, Month: month, Day: day}
}

// addMonthsClamped applies addMonthsDate to an instant, keeping its clock
// time in the instant's own location.
func addMonthsClamped(t time.Time, n int) time.Time {
	d := addMonthsDate(civil.DateOf(t), n)
	return time.Date(d.Year, d.Month, d.Day, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}
