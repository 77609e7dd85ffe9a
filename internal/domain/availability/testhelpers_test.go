package availability

import (
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/healthfirst/availability/internal/platform/lock"
	"github.com/healthfirst/availability/internal/platform/timezone"
)

func newTestService(t *testing.T) (*Service, *MemoryStore) {
	t.Helper()
	return newTestServiceWithOptions(t, DefaultOptions())
}

func newTestServiceWithOptions(t *testing.T, opts Options) (*Service, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	svc := NewService(store.Windows(), store.Slots(), store, lock.NewLocalLocker(), opts, zerolog.Nop())
	return svc, store
}

func dt(t *testing.T, s string) civil.DateTime {
	t.Helper()
	d, err := civil.ParseDateTime(s)
	if err != nil {
		t.Fatalf("parse %q: %v", s, err)
	}
	return d
}

func date(t *testing.T, s string) civil.Date {
	t.Helper()
	d, err := civil.ParseDate(s)
	if err != nil {
		t.Fatalf("parse %q: %v", s, err)
	}
	return d
}

func instant(t *testing.T, local, zone string) time.Time {
	t.Helper()
	ts, err := timezone.ToCanonical(dt(t, local), zone)
	if err != nil {
		t.Fatalf("canonical %q %s: %v", local, zone, err)
	}
	return ts
}

func utc(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t.Fatalf("parse %q: %v", s, err)
	}
	return ts.UTC()
}

// nyWorkday is 09:00-17:00 America/New_York on 2024-01-15 in 30 minute slots.
func nyWorkday(t *testing.T, providerID uuid.UUID) CreateWindowRequest {
	return CreateWindowRequest{
		ProviderID:          providerID,
		StartTime:           dt(t, "2024-01-15T09:00:00"),
		EndTime:             dt(t, "2024-01-15T17:00:00"),
		Timezone:            "America/New_York",
		SlotDurationMinutes: 30,
	}
}

func ptr[T any](v T) *T { return &v }
