package availability

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/healthfirst/availability/internal/platform/db"
	"github.com/healthfirst/availability/internal/platform/lock"
	"github.com/healthfirst/availability/migrations"
)

// newPGService migrates a throwaway schema and returns a service backed by
// it. Tests using it are skipped unless TEST_DATABASE_URL is set.
func newPGService(t *testing.T) (*Service, *pgxpool.Pool) {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	schema := "availability_test_" + strings.ReplaceAll(uuid.NewString(), "-", "")

	admin, err := db.NewPool(ctx, url, "", 2, 0)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if _, err := db.NewMigrator(admin, migrations.FS).Up(ctx, schema); err != nil {
		admin.Close()
		t.Fatalf("migrate: %v", err)
	}

	pool, err := db.NewPool(ctx, url, schema, 5, 0)
	if err != nil {
		t.Fatalf("connect %s: %v", schema, err)
	}
	t.Cleanup(func() {
		pool.Close()
		_, _ = admin.Exec(context.Background(), "DROP SCHEMA "+schema+" CASCADE")
		admin.Close()
	})

	svc := NewService(NewWindowRepoPG(pool), NewSlotRepoPG(pool), db.NewTransactor(pool),
		lock.NewLocalLocker(), DefaultOptions(), zerolog.Nop())
	return svc, pool
}

func TestPG_CreateAndRead(t *testing.T) {
	svc, _ := newPGService(t)
	ctx := context.Background()
	provider := uuid.New()

	req := nyWorkday(t, provider)
	req.Price = ptr(99.5)
	req.Location = ptr("Main_Street 100%")
	created, err := svc.CreateAvailability(ctx, req)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := svc.GetAvailability(ctx, provider)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ID != created.ID || got.TotalSlots != 16 {
		t.Fatalf("expected window %s with 16 slots, got %s with %d", created.ID, got.ID, got.TotalSlots)
	}
	if !got.StartTime.Equal(utc(t, "2024-01-15T14:00:00Z")) || got.Price == nil || *got.Price != 99.5 {
		t.Errorf("unexpected stored window %+v", got.Window)
	}

	// LIKE metacharacters in the query are matched literally.
	for _, loc := range []string{"street 100%", "main_street"} {
		slots, err := svc.Search(ctx, SearchCriteria{StartDate: date(t, "2024-01-15"), Location: ptr(loc)})
		if err != nil {
			t.Fatalf("search: %v", err)
		}
		if len(slots) != 16 {
			t.Errorf("location %q: expected 16 slots, got %d", loc, len(slots))
		}
	}
	slots, err := svc.Search(ctx, SearchCriteria{StartDate: date(t, "2024-01-15"), Location: ptr("main%street")})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(slots) != 0 {
		t.Errorf("expected %% to be literal, got %d slots", len(slots))
	}
}

func TestPG_OverlapAndWeeklyCascade(t *testing.T) {
	svc, _ := newPGService(t)
	ctx := context.Background()
	provider := uuid.New()

	weekly := nyWorkday(t, provider)
	weekly.RecurrenceType = RecurrenceWeekly
	weekly.RecurrenceDays = DaySet{time.Monday, time.Thursday}
	weekly.RecurrenceEndDate = ptr(dt(t, "2024-01-29T00:00:00"))
	view, err := svc.CreateAvailability(ctx, weekly)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	// Mon 15, Thu 18, Mon 22, Thu 25.
	if view.TotalSlots != 4*16 {
		t.Fatalf("expected 64 slots, got %d", view.TotalSlots)
	}

	w, err := svc.GetWindow(ctx, view.ID)
	if err != nil {
		t.Fatalf("get window: %v", err)
	}
	if len(w.RecurrenceDays) != 2 || w.RecurrenceDays[0] != time.Monday || w.RecurrenceDays[1] != time.Thursday {
		t.Errorf("recurrence days not round-tripped: %v", w.RecurrenceDays)
	}

	clash := nyWorkday(t, provider)
	clash.StartTime = dt(t, "2024-01-20T09:00:00")
	clash.EndTime = dt(t, "2024-01-20T10:00:00")
	if _, err := svc.CreateAvailability(ctx, clash); !errors.Is(err, ErrOverlappingAvailability) {
		t.Errorf("expected ErrOverlappingAvailability, got %v", err)
	}

	if err := svc.DeleteAvailability(ctx, view.ID, true); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := svc.GetWindow(ctx, view.ID); !errors.Is(err, ErrWindowNotFound) {
		t.Errorf("expected window removed, got %v", err)
	}
	remaining, err := svc.ListProviderSlots(ctx, provider, nil)
	if err != nil || len(remaining) != 0 {
		t.Errorf("expected no slots, got %d (%v)", len(remaining), err)
	}
}

func TestPG_ExclusionConstraint(t *testing.T) {
	svc, _ := newPGService(t)
	ctx := context.Background()
	provider := uuid.New()

	w := &Window{
		ID:                  uuid.New(),
		ProviderID:          provider,
		StartTime:           utc(t, "2024-01-15T14:00:00Z"),
		EndTime:             utc(t, "2024-01-15T22:00:00Z"),
		Timezone:            "America/New_York",
		RecurrenceType:      RecurrenceNone,
		SlotDurationMinutes: 30,
		Status:              WindowActive,
		CreatedAt:           time.Now().UTC(),
		UpdatedAt:           time.Now().UTC(),
	}
	if err := svc.windows.Create(ctx, w); err != nil {
		t.Fatalf("insert: %v", err)
	}
	dup := *w
	dup.ID = uuid.New()
	dup.StartTime = dup.StartTime.Add(time.Hour)
	if err := svc.windows.Create(ctx, &dup); !errors.Is(err, ErrOverlappingAvailability) {
		t.Errorf("expected the storage constraint to reject the overlap, got %v", err)
	}
}

func TestPG_UpdateUnlessBooked(t *testing.T) {
	svc, _ := newPGService(t)
	ctx := context.Background()
	view, err := svc.CreateAvailability(ctx, nyWorkday(t, uuid.New()))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	id := view.Slots[0].ID

	patient := uuid.New()
	booked := SlotBooked
	if _, err := svc.UpdateSlot(ctx, id, SlotPatch{Status: &booked, PatientID: &patient}); err != nil {
		t.Fatalf("book: %v", err)
	}
	slot, err := svc.GetSlot(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if slot.Status != SlotBooked || slot.PatientID == nil || *slot.PatientID != patient {
		t.Errorf("unexpected slot %+v", slot)
	}

	slot.Status = SlotCancelled
	written, err := svc.slots.UpdateUnlessBooked(ctx, slot)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if written {
		t.Error("expected no write to a booked slot")
	}
	if err := svc.DeleteAvailability(ctx, view.ID, false); !errors.Is(err, ErrBookedSlotsExist) {
		t.Errorf("expected ErrBookedSlotsExist, got %v", err)
	}
}
