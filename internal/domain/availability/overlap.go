package availability

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// OverlapValidator decides whether a candidate range conflicts with a
// provider's ACTIVE windows.
type OverlapValidator struct {
	windows WindowRepository
}

func NewOverlapValidator(windows WindowRepository) *OverlapValidator {
	return &OverlapValidator{windows: windows}
}

// HasOverlap reports a conflict with any ACTIVE window of providerID other
// than excludeID. See Window.ConflictsWith for the rule.
func (v *OverlapValidator) HasOverlap(ctx context.Context, providerID uuid.UUID, start, end time.Time, excludeID *uuid.UUID) (bool, error) {
	found, err := v.windows.FindOverlapping(ctx, providerID, start, end, excludeID)
	if err != nil {
		return false, err
	}
	return len(found) > 0, nil
}
