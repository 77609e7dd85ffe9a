package availability

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type WindowRepository interface {
	Create(ctx context.Context, w *Window) error
	GetByID(ctx context.Context, id uuid.UUID) (*Window, error)
	// ListByProviderAndStatus returns windows oldest first.
	ListByProviderAndStatus(ctx context.Context, providerID uuid.UUID, status WindowStatus) ([]*Window, error)
	// FindOverlapping returns the provider's ACTIVE windows that conflict
	// with [start, end) under Window.ConflictsWith.
	FindOverlapping(ctx context.Context, providerID uuid.UUID, start, end time.Time, excludeID *uuid.UUID) ([]*Window, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status WindowStatus) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type SlotRepository interface {
	CreateBatch(ctx context.Context, slots []Slot) error
	GetByID(ctx context.Context, id uuid.UUID) (*Slot, error)
	ListByWindow(ctx context.Context, windowID uuid.UUID) ([]Slot, error)
	// ListByProvider returns the provider's slots, optionally limited to one
	// status, ordered by start time.
	ListByProvider(ctx context.Context, providerID uuid.UUID, status *SlotStatus) ([]Slot, error)
	Search(ctx context.Context, f SlotFilter) ([]Slot, error)
	CountBookedByWindow(ctx context.Context, windowID uuid.UUID) (int, error)
	DeleteByWindow(ctx context.Context, windowID uuid.UUID) (int64, error)
	// UpdateUnlessBooked writes s only if the stored slot is not BOOKED and
	// reports whether a row was written.
	UpdateUnlessBooked(ctx context.Context, s *Slot) (bool, error)
}

// TxManager runs fn atomically. Repositories pick the transaction up from
// the context passed to fn.
type TxManager interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}
