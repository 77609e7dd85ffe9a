package availability

import (
	"errors"
	"net/http"
	"strconv"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/healthfirst/availability/internal/platform/auth"
	"github.com/healthfirst/availability/internal/platform/lock"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	// Read endpoints – any authenticated caller
	api.GET("/provider/:providerId/availability", h.GetAvailability)
	api.GET("/availability/search", h.Search)

	// Provider endpoints – verified providers acting for themselves, admins
	provider := api.Group("", auth.RequireRole(auth.RoleProvider), auth.RequireVerified())
	provider.POST("/provider/availability", h.CreateAvailability)
	provider.GET("/provider/:providerId/slots", h.ListProviderSlots)
	provider.PUT("/provider/availability/:slotId", h.UpdateSlot)
	provider.DELETE("/provider/availability/:availabilityId", h.DeleteAvailability)
}

func (h *Handler) CreateAvailability(c echo.Context) error {
	var req CreateWindowRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p, _ := auth.PrincipalFromContext(c.Request().Context())
	if req.ProviderID == uuid.Nil && p.Role == auth.RoleProvider {
		req.ProviderID = p.ProviderID
	}
	if err := authorize(p, req.ProviderID); err != nil {
		return err
	}

	view, err := h.svc.CreateAvailability(c.Request().Context(), req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, view)
}

func (h *Handler) GetAvailability(c echo.Context) error {
	providerID, err := uuid.Parse(c.Param("providerId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid providerId")
	}
	view, err := h.svc.GetAvailability(c.Request().Context(), providerID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, view)
}

func (h *Handler) ListProviderSlots(c echo.Context) error {
	providerID, err := uuid.Parse(c.Param("providerId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid providerId")
	}
	p, _ := auth.PrincipalFromContext(c.Request().Context())
	if err := authorize(p, providerID); err != nil {
		return err
	}

	var status *SlotStatus
	if v := c.QueryParam("status"); v != "" {
		s := SlotStatus(v)
		status = &s
	}
	slots, err := h.svc.ListProviderSlots(c.Request().Context(), providerID, status)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, slots)
}

func (h *Handler) UpdateSlot(c echo.Context) error {
	slotID, err := uuid.Parse(c.Param("slotId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid slotId")
	}
	var patch SlotPatch
	if err := c.Bind(&patch); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx := c.Request().Context()
	current, err := h.svc.GetSlot(ctx, slotID)
	if err != nil {
		return httpError(err)
	}
	p, _ := auth.PrincipalFromContext(ctx)
	if err := authorize(p, current.ProviderID); err != nil {
		return err
	}

	slot, err := h.svc.UpdateSlot(ctx, slotID, patch)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, slot)
}

func (h *Handler) DeleteAvailability(c echo.Context) error {
	windowID, err := uuid.Parse(c.Param("availabilityId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid availabilityId")
	}
	cascade := false
	if v := c.QueryParam("delete_recurring"); v != "" {
		if cascade, err = strconv.ParseBool(v); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "delete_recurring must be a boolean")
		}
	}

	ctx := c.Request().Context()
	w, err := h.svc.GetWindow(ctx, windowID)
	if err != nil {
		return httpError(err)
	}
	p, _ := auth.PrincipalFromContext(ctx)
	if err := authorize(p, w.ProviderID); err != nil {
		return err
	}

	if err := h.svc.DeleteAvailability(ctx, windowID, cascade); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) Search(c echo.Context) error {
	criteria, err := parseSearchCriteria(c)
	if err != nil {
		return err
	}
	slots, err := h.svc.Search(c.Request().Context(), criteria)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, slots)
}

func parseSearchCriteria(c echo.Context) (SearchCriteria, error) {
	var sc SearchCriteria

	start, err := civil.ParseDate(c.QueryParam("start_date"))
	if err != nil {
		return sc, echo.NewHTTPError(http.StatusBadRequest, "start_date must be YYYY-MM-DD")
	}
	sc.StartDate = start

	if v := c.QueryParam("end_date"); v != "" {
		end, err := civil.ParseDate(v)
		if err != nil {
			return sc, echo.NewHTTPError(http.StatusBadRequest, "end_date must be YYYY-MM-DD")
		}
		sc.EndDate = &end
	}
	if v := c.QueryParam("location"); v != "" {
		sc.Location = &v
	}
	if v := c.QueryParam("appointment_type"); v != "" {
		sc.AppointmentType = &v
	}
	if v := c.QueryParam("provider_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return sc, echo.NewHTTPError(http.StatusBadRequest, "invalid provider_id")
		}
		sc.ProviderID = &id
	}
	if v := c.QueryParam("max_price"); v != "" {
		price, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return sc, echo.NewHTTPError(http.StatusBadRequest, "invalid max_price")
		}
		sc.MaxPrice = &price
	}
	if v := c.QueryParam("slot_duration_minutes"); v != "" {
		minutes, err := strconv.Atoi(v)
		if err != nil {
			return sc, echo.NewHTTPError(http.StatusBadRequest, "invalid slot_duration_minutes")
		}
		sc.SlotDurationMinutes = &minutes
	}
	sc.Timezone = c.QueryParam("timezone")
	return sc, nil
}

func authorize(p auth.Principal, providerID uuid.UUID) error {
	if !p.CanActFor(providerID) {
		return echo.NewHTTPError(http.StatusForbidden, "not allowed to manage this provider's availability")
	}
	return nil
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrInvalidTimeRange),
		errors.Is(err, ErrInvalidTimezone),
		errors.Is(err, ErrInvalidSlotDuration),
		errors.Is(err, ErrInvalidStatus),
		errors.Is(err, ErrInvalidRequest),
		errors.Is(err, ErrRecurrenceTooLarge):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrWindowNotFound), errors.Is(err, ErrSlotNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrOverlappingAvailability),
		errors.Is(err, ErrBookedSlotsExist),
		errors.Is(err, ErrSlotImmutable),
		errors.Is(err, lock.ErrLockNotAcquired):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
}
