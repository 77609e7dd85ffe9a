package availability

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps windows and slots in process memory for local
// development and tests. It is a TxManager; Windows and Slots return its
// repositories.
//
// A transaction works on a private copy of the data that replaces the live
// copy on commit, so readers never observe a half-written window.
type MemoryStore struct {
	writeMu sync.Mutex // serializes writers and transactions
	mu      sync.RWMutex
	state   *memState
}

type memState struct {
	windows map[uuid.UUID]Window
	slots   map[uuid.UUID]Slot
}

type memTxKey struct{}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: &memState{
		windows: make(map[uuid.UUID]Window),
		slots:   make(map[uuid.UUID]Slot),
	}}
}

func (st *memState) clone() *memState {
	c := &memState{
		windows: make(map[uuid.UUID]Window, len(st.windows)),
		slots:   make(map[uuid.UUID]Slot, len(st.slots)),
	}
	for k, v := range st.windows {
		c.windows[k] = v
	}
	for k, v := range st.slots {
		c.slots[k] = v
	}
	return c
}

func (m *MemoryStore) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(memTxKey{}).(*memState); ok {
		return fn(ctx)
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	m.mu.RLock()
	staged := m.state.clone()
	m.mu.RUnlock()

	if err := fn(context.WithValue(ctx, memTxKey{}, staged)); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return storageErr("commit", err)
	}

	m.mu.Lock()
	m.state = staged
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) read(ctx context.Context, fn func(st *memState)) {
	if st, ok := ctx.Value(memTxKey{}).(*memState); ok {
		fn(st)
		return
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	fn(m.state)
}

func (m *MemoryStore) write(ctx context.Context, fn func(st *memState) error) error {
	if st, ok := ctx.Value(memTxKey{}).(*memState); ok {
		return fn(st)
	}
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(m.state)
}

// -- windows --

// Windows exposes the store as a WindowRepository.
func (m *MemoryStore) Windows() WindowRepository { return memoryWindows{m} }

type memoryWindows struct{ m *MemoryStore }

func (r memoryWindows) Create(ctx context.Context, w *Window) error {
	return r.m.write(ctx, func(st *memState) error {
		if w.ID == uuid.Nil {
			w.ID = uuid.New()
		}
		if w.Status == WindowActive && !w.Recurring() {
			for _, other := range st.windows {
				if other.ProviderID == w.ProviderID && other.Status == WindowActive && !other.Recurring() &&
					other.StartTime.Before(w.EndTime) && other.EndTime.After(w.StartTime) {
					return ErrOverlappingAvailability
				}
			}
		}
		st.windows[w.ID] = *w
		return nil
	})
}

func (r memoryWindows) GetByID(ctx context.Context, id uuid.UUID) (*Window, error) {
	var (
		w  Window
		ok bool
	)
	r.m.read(ctx, func(st *memState) { w, ok = st.windows[id] })
	if !ok {
		return nil, ErrWindowNotFound
	}
	return &w, nil
}

func (r memoryWindows) ListByProviderAndStatus(ctx context.Context, providerID uuid.UUID, status WindowStatus) ([]*Window, error) {
	var out []*Window
	r.m.read(ctx, func(st *memState) {
		for _, w := range st.windows {
			if w.ProviderID == providerID && w.Status == status {
				w := w
				out = append(out, &w)
			}
		}
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

func (r memoryWindows) FindOverlapping(ctx context.Context, providerID uuid.UUID, start, end time.Time, excludeID *uuid.UUID) ([]*Window, error) {
	active, err := r.ListByProviderAndStatus(ctx, providerID, WindowActive)
	if err != nil {
		return nil, err
	}
	var out []*Window
	for _, w := range active {
		if excludeID != nil && w.ID == *excludeID {
			continue
		}
		if w.ConflictsWith(start, end) {
			out = append(out, w)
		}
	}
	return out, nil
}

func (r memoryWindows) UpdateStatus(ctx context.Context, id uuid.UUID, status WindowStatus) error {
	return r.m.write(ctx, func(st *memState) error {
		w, ok := st.windows[id]
		if !ok {
			return ErrWindowNotFound
		}
		w.Status = status
		w.UpdatedAt = time.Now().UTC()
		st.windows[id] = w
		return nil
	})
}

func (r memoryWindows) Delete(ctx context.Context, id uuid.UUID) error {
	return r.m.write(ctx, func(st *memState) error {
		if _, ok := st.windows[id]; !ok {
			return ErrWindowNotFound
		}
		delete(st.windows, id)
		for sid, s := range st.slots {
			if s.WindowID == id {
				delete(st.slots, sid)
			}
		}
		return nil
	})
}

// -- slots --

// Slots exposes the store as a SlotRepository.
func (m *MemoryStore) Slots() SlotRepository { return memorySlots{m} }

type memorySlots struct{ m *MemoryStore }

func (r memorySlots) CreateBatch(ctx context.Context, slots []Slot) error {
	return r.m.write(ctx, func(st *memState) error {
		for _, s := range slots {
			if _, ok := st.windows[s.WindowID]; !ok {
				return storageErr("insert slots", ErrWindowNotFound)
			}
			st.slots[s.ID] = s
		}
		return nil
	})
}

func (r memorySlots) GetByID(ctx context.Context, id uuid.UUID) (*Slot, error) {
	var (
		s  Slot
		ok bool
	)
	r.m.read(ctx, func(st *memState) { s, ok = st.slots[id] })
	if !ok {
		return nil, ErrSlotNotFound
	}
	return &s, nil
}

func (r memorySlots) collect(ctx context.Context, match func(s *Slot) bool) []Slot {
	var out []Slot
	r.m.read(ctx, func(st *memState) {
		for _, s := range st.slots {
			if match(&s) {
				out = append(out, s)
			}
		}
	})
	sortSlots(out)
	return out
}

func (r memorySlots) ListByWindow(ctx context.Context, windowID uuid.UUID) ([]Slot, error) {
	return r.collect(ctx, func(s *Slot) bool { return s.WindowID == windowID }), nil
}

func (r memorySlots) ListByProvider(ctx context.Context, providerID uuid.UUID, status *SlotStatus) ([]Slot, error) {
	return r.collect(ctx, func(s *Slot) bool {
		return s.ProviderID == providerID && (status == nil || s.Status == *status)
	}), nil
}

func (r memorySlots) Search(ctx context.Context, f SlotFilter) ([]Slot, error) {
	return r.collect(ctx, f.Matches), nil
}

func (r memorySlots) CountBookedByWindow(ctx context.Context, windowID uuid.UUID) (int, error) {
	n := 0
	r.m.read(ctx, func(st *memState) {
		for _, s := range st.slots {
			if s.WindowID == windowID && s.Status == SlotBooked {
				n++
			}
		}
	})
	return n, nil
}

func (r memorySlots) DeleteByWindow(ctx context.Context, windowID uuid.UUID) (int64, error) {
	var n int64
	err := r.m.write(ctx, func(st *memState) error {
		for id, s := range st.slots {
			if s.WindowID == windowID {
				delete(st.slots, id)
				n++
			}
		}
		return nil
	})
	return n, err
}

func (r memorySlots) UpdateUnlessBooked(ctx context.Context, s *Slot) (bool, error) {
	written := false
	err := r.m.write(ctx, func(st *memState) error {
		cur, ok := st.slots[s.ID]
		if !ok {
			return ErrSlotNotFound
		}
		if cur.Status == SlotBooked {
			return nil
		}
		st.slots[s.ID] = *s
		written = true
		return nil
	})
	return written, err
}

// sortSlots orders by start time, then id.
func sortSlots(slots []Slot) {
	sort.Slice(slots, func(i, j int) bool {
		if !slots[i].StartTime.Equal(slots[j].StartTime) {
			return slots[i].StartTime.Before(slots[j].StartTime)
		}
		return slots[i].ID.String() < slots[j].ID.String()
	})
}
