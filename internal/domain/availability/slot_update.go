package availability

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

func (s *Service) GetSlot(ctx context.Context, id uuid.UUID) (*Slot, error) {
	return s.slots.GetByID(ctx, id)
}

// UpdateSlot applies the non-nil fields of patch. A BOOKED slot cannot be
// changed at all; any other slot may move to any status.
func (s *Service) UpdateSlot(ctx context.Context, slotID uuid.UUID, patch SlotPatch) (*Slot, error) {
	if patch.Status != nil && !patch.Status.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, *patch.Status)
	}
	if patch.Price != nil && *patch.Price < 0 {
		return nil, invalid("price must not be negative")
	}
	if patch.Currency != nil && len(*patch.Currency) > 3 {
		return nil, invalid("currency must be at most 3 characters")
	}

	current, err := s.slots.GetByID(ctx, slotID)
	if err != nil {
		return nil, err
	}
	if current.Status == SlotBooked {
		return nil, ErrSlotImmutable
	}

	var updated *Slot
	err = s.withProvider(ctx, current.ProviderID, func(ctx context.Context) error {
		slot, err := s.slots.GetByID(ctx, slotID)
		if err != nil {
			return err
		}
		if slot.Status == SlotBooked {
			return ErrSlotImmutable
		}

		applyPatch(slot, patch)
		if !slot.StartTime.Before(slot.EndTime) {
			return ErrInvalidTimeRange
		}
		slot.UpdatedAt = s.now()

		written, err := s.slots.UpdateUnlessBooked(ctx, slot)
		if err != nil {
			return err
		}
		if !written {
			return ErrSlotImmutable
		}
		updated = slot
		return nil
	})
	if err != nil {
		s.logFailure(err, "update slot", current.ProviderID)
		return nil, err
	}

	s.logger.Info().
		Str("slot_id", slotID.String()).
		Str("status", string(updated.Status)).
		Msg("slot updated")
	return updated, nil
}

func applyPatch(slot *Slot, p SlotPatch) {
	if p.StartTime != nil {
		slot.StartTime = p.StartTime.UTC()
	}
	if p.EndTime != nil {
		slot.EndTime = p.EndTime.UTC()
	}
	if p.Price != nil {
		slot.Price = p.Price
	}
	if p.Currency != nil {
		slot.Currency = p.Currency
	}
	if p.Location != nil {
		slot.Location = p.Location
	}
	if p.AppointmentType != nil {
		slot.AppointmentType = p.AppointmentType
	}
	if p.SpecialRequirements != nil {
		slot.SpecialRequirements = p.SpecialRequirements
	}
	if p.Status != nil {
		slot.Status = *p.Status
	}
	if p.BookingNotes != nil {
		slot.BookingNotes = p.BookingNotes
	}
	if p.PatientID != nil {
		slot.PatientID = p.PatientID
	}
}
