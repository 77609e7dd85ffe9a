// Package timezone converts provider wall-clock times to canonical UTC
// instants and back.
package timezone

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"cloud.google.com/go/civil"
)

// ErrInvalidTimezone is returned for empty or unknown IANA zone identifiers.
var ErrInvalidTimezone = errors.New("invalid timezone")

var locations sync.Map // zone id -> *time.Location

// Load returns the location for an IANA zone id. Loaded zones are cached for
// the life of the process.
func Load(zoneID string) (*time.Location, error) {
	// "Local" resolves to the host zone in the time package and is not an IANA id.
	if zoneID == "" || zoneID == "Local" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTimezone, zoneID)
	}
	if loc, ok := locations.Load(zoneID); ok {
		return loc.(*time.Location), nil
	}
	loc, err := time.LoadLocation(zoneID)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTimezone, zoneID)
	}
	locations.Store(zoneID, loc)
	return loc, nil
}

// ToCanonical resolves a wall-clock time in zoneID to a UTC instant.
func ToCanonical(local civil.DateTime, zoneID string) (time.Time, error) {
	loc, err := Load(zoneID)
	if err != nil {
		return time.Time{}, err
	}
	return Resolve(local, loc), nil
}

// FromCanonical renders a UTC instant as wall-clock time in zoneID.
func FromCanonical(t time.Time, zoneID string) (civil.DateTime, error) {
	loc, err := Load(zoneID)
	if err != nil {
		return civil.DateTime{}, err
	}
	return civil.DateTimeOf(t.In(loc)), nil
}

// Resolve maps a wall-clock time to an instant in loc.
//
// Ambiguous times (clocks set back) resolve to the earlier instant, i.e. the
// offset in force before the transition. Nonexistent times (clocks set
// forward) are read with the pre-transition offset, which moves them forward
// by the length of the gap: 02:30 on a spring-forward night in New York
// becomes 03:30 EDT.
func Resolve(local civil.DateTime, loc *time.Location) time.Time {
	naive := local.In(time.UTC)
	_, before := naive.Add(-24 * time.Hour).In(loc).Zone()
	_, after := naive.Add(24 * time.Hour).In(loc).Zone()

	for _, offset := range []int{before, after} {
		t := naive.Add(-time.Duration(offset) * time.Second)
		if civil.DateTimeOf(t.In(loc)) == local {
			return t.UTC()
		}
	}
	return naive.Add(-time.Duration(before) * time.Second).UTC()
}

// StartOfDay returns the first instant of date in loc.
func StartOfDay(date civil.Date, loc *time.Location) time.Time {
	return Resolve(civil.DateTime{Date: date}, loc)
}

// EndOfDay returns 23:59:59 of date in loc.
func EndOfDay(date civil.Date, loc *time.Location) time.Time {
	return Resolve(civil.DateTime{Date: date, Time: civil.Time{Hour: 23, Minute: 59, Second: 59}}, loc)
}
