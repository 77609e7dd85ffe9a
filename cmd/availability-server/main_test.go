package main

import (
	"context"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/healthfirst/availability/internal/config"
	"github.com/healthfirst/availability/internal/domain/availability"
	"github.com/healthfirst/availability/internal/platform/lock"
)

func memoryConfig() *config.Config {
	return &config.Config{
		StorageBackend:          config.StorageMemory,
		LockBackend:             config.LockLocal,
		MaxOccurrences:          2000,
		MaxSlots:                20000,
		RecurrenceHorizonMonths: 6,
		SearchDefaultDays:       30,
		SearchTimezone:          "UTC",
	}
}

func TestSeedRequests_Shape(t *testing.T) {
	providerID := uuid.New()
	start := civil.Date{Year: 2024, Month: time.March, Day: 4}

	reqs := seedRequests(providerID, start, 4)
	if len(reqs) != 4 {
		t.Fatalf("expected 4 requests, got %d", len(reqs))
	}
	for i, r := range reqs {
		if r.ProviderID != providerID {
			t.Errorf("request %d: wrong provider", i)
		}
		if r.StartTime.Date != start.AddDays(i) || r.EndTime.Date != r.StartTime.Date {
			t.Errorf("request %d: expected a single-day window on %s, got %s - %s", i, start.AddDays(i), r.StartTime, r.EndTime)
		}
		if r.Timezone != reqs[0].Timezone {
			t.Errorf("request %d: expected every window in one zone", i)
		}
	}
	for i, r := range reqs[:3] {
		if r.RecurrenceType != "" {
			t.Errorf("request %d: expected one-off window, got %s", i, r.RecurrenceType)
		}
	}
	last := reqs[3]
	if last.RecurrenceType != availability.RecurrenceWeekly || last.RecurrenceEndDate == nil {
		t.Fatalf("expected the last window to recur weekly with an end date, got %+v", last)
	}
	if last.RecurrenceEndDate.Date != start.AddDays(3+28) {
		t.Errorf("expected recurrence end %s, got %s", start.AddDays(31), last.RecurrenceEndDate.Date)
	}
}

func TestSeedRequests_CreateWithoutConflicts(t *testing.T) {
	cfg := memoryConfig()
	ctx := context.Background()

	store, err := openStorage(ctx, cfg)
	if err != nil {
		t.Fatalf("open storage: %v", err)
	}
	defer store.Close()
	locker, closeLocker, err := openLocker(ctx, cfg)
	if err != nil {
		t.Fatalf("open locker: %v", err)
	}
	defer closeLocker()

	svc := availability.NewService(store.windows, store.slots, store.tx, locker, engineOptions(cfg), zerolog.Nop())
	providerID := uuid.New()
	for i, req := range seedRequests(providerID, civil.Date{Year: 2024, Month: time.May, Day: 6}, 5) {
		view, err := svc.CreateAvailability(ctx, req)
		if err != nil {
			t.Fatalf("request %d: %v", i, err)
		}
		if view.TotalSlots == 0 {
			t.Errorf("request %d: expected slots", i)
		}
	}
}

func TestOpenLocker_DefaultsToLocal(t *testing.T) {
	cfg := memoryConfig()
	cfg.LockBackend = ""

	locker, closeLocker, err := openLocker(context.Background(), cfg)
	if err != nil {
		t.Fatalf("open locker: %v", err)
	}
	defer closeLocker()
	if _, ok := locker.(*lock.LocalLocker); !ok {
		t.Errorf("expected LocalLocker, got %T", locker)
	}
}

func TestJWTConfig_RoundTrip(t *testing.T) {
	cfg := memoryConfig()
	cfg.AuthSigningKey = "0123456789abcdef0123456789abcdef"
	cfg.AuthIssuer = "availability"

	jc := jwtConfig(cfg)
	token, err := jc.IssueToken("dr-who", "provider", uuid.New(), true, time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	if token == "" {
		t.Fatal("expected a signed token")
	}
	if string(jc.SigningKey) != cfg.AuthSigningKey || jc.Issuer != "availability" {
		t.Errorf("unexpected jwt config %+v", jc)
	}
}
