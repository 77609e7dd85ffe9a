package availability

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestGenerateSlots_FloorCount(t *testing.T) {
	start := utc(t, "2024-01-15T14:00:00Z")
	w := &Window{
		ID:                  uuid.New(),
		ProviderID:          uuid.New(),
		Timezone:            "America/New_York",
		SlotDurationMinutes: 30,
		Location:            ptr("Room 4"),
		Price:               ptr(80.0),
	}

	tests := []struct {
		name   string
		length time.Duration
		want   int
	}{
		{"exact fit", 8 * time.Hour, 16},
		{"remainder dropped", 70 * time.Minute, 2},
		{"one slot", 30 * time.Minute, 1},
		{"too short", 29 * time.Minute, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			occ := Occurrence{Start: start, End: start.Add(tt.length)}
			slots := GenerateSlots(w, occ)
			if len(slots) != tt.want {
				t.Fatalf("expected %d slots, got %d", tt.want, len(slots))
			}
			for i, s := range slots {
				wantStart := start.Add(time.Duration(i) * 30 * time.Minute)
				if !s.StartTime.Equal(wantStart) || s.EndTime.Sub(s.StartTime) != 30*time.Minute {
					t.Errorf("slot %d: unexpected range %s-%s", i, s.StartTime, s.EndTime)
				}
				if s.EndTime.After(occ.End) {
					t.Errorf("slot %d ends after the occurrence", i)
				}
				if s.Status != SlotAvailable || s.WindowID != w.ID || s.ProviderID != w.ProviderID {
					t.Errorf("slot %d: unexpected ownership or status: %+v", i, s)
				}
				if s.Timezone != w.Timezone || s.Location == nil || *s.Location != "Room 4" || s.Price == nil || *s.Price != 80 {
					t.Errorf("slot %d: metadata not copied: %+v", i, s)
				}
			}
		})
	}
}

func TestGenerateSlots_ZeroDuration(t *testing.T) {
	start := utc(t, "2024-01-15T14:00:00Z")
	w := &Window{SlotDurationMinutes: 0}
	if slots := GenerateSlots(w, Occurrence{Start: start, End: start.Add(time.Hour)}); slots != nil {
		t.Errorf("expected no slots, got %d", len(slots))
	}
}

func TestMaterialize_RecurringSlotsDoNotOverlap(t *testing.T) {
	w := window(t, "Europe/Berlin", "2024-03-29T08:00:00", "2024-03-29T10:00:00", RecurrenceDaily, "2024-04-02T00:00:00")
	w.SlotDurationMinutes = 45

	slots, err := materialize(w, defaultExpand)
	if err != nil {
		t.Fatalf("materialize: %v", err)
	}
	// 4 days of 2 slots; the trailing 30 minutes of each day are dropped.
	if len(slots) != 8 {
		t.Fatalf("expected 8 slots, got %d", len(slots))
	}
	seen := make(map[uuid.UUID]bool)
	for i, s := range slots {
		if seen[s.ID] {
			t.Errorf("duplicate slot id %s", s.ID)
		}
		seen[s.ID] = true
		if i > 0 && s.StartTime.Before(slots[i-1].EndTime) {
			t.Errorf("slot %d overlaps the previous slot", i)
		}
	}
}

func TestMaterialize_Cap(t *testing.T) {
	w := window(t, "UTC", "2024-01-01T09:00:00", "2024-01-01T10:00:00", RecurrenceDaily, "2025-01-01T00:00:00")
	slots, err := materialize(w, ExpandOptions{MaxOccurrences: 100})
	if !errors.Is(err, ErrRecurrenceTooLarge) {
		t.Fatalf("expected ErrRecurrenceTooLarge, got %v", err)
	}
	if slots != nil {
		t.Errorf("expected no slots on failure, got %d", len(slots))
	}
}

func TestMaterialize_SlotCap(t *testing.T) {
	// Ten daily occurrences of two 30 minute slots.
	w := window(t, "UTC", "2024-01-01T09:00:00", "2024-01-01T10:00:00", RecurrenceDaily, "2024-01-11T00:00:00")

	tests := []struct {
		name     string
		maxSlots int
		wantErr  bool
	}{
		{"no cap", 0, false},
		{"exact", 20, false},
		{"one short", 19, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			slots, err := materialize(w, ExpandOptions{MaxOccurrences: 100, MaxSlots: tt.maxSlots})
			if tt.wantErr {
				if !errors.Is(err, ErrRecurrenceTooLarge) || slots != nil {
					t.Fatalf("expected ErrRecurrenceTooLarge and no slots, got %d slots, %v", len(slots), err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(slots) != 20 {
				t.Errorf("expected 20 slots, got %d", len(slots))
			}
		})
	}
}
