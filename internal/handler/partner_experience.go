package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/experience-booking/internal/apperr"
	"github.com/iliyamo/experience-booking/internal/middleware"
	"github.com/iliyamo/experience-booking/internal/model"
)

// ExperienceStore persists a partner's experiences.
type ExperienceStore interface {
	GetByID(ctx context.Context, id uint64) (*model.Experience, error)
	GetForPartner(ctx context.Context, id, partnerID uint64) (*model.Experience, error)
	ListByPartner(ctx context.Context, partnerID uint64) ([]model.Experience, error)
	Create(ctx context.Context, e *model.Experience) error
	Update(ctx context.Context, e *model.Experience) error
	SetStatus(ctx context.Context, id, partnerID uint64, status string) error
	Delete(ctx context.Context, id, partnerID uint64) error
}

// BookingLister lists the bookings of an experience.
type BookingLister interface {
	ListByExperience(ctx context.Context, experienceID uint64) ([]model.Booking, error)
}

// PartnerLedger reads and changes single bookings.
type PartnerLedger interface {
	GetBooking(ctx context.Context, id uint64) (*model.Booking, error)
	UpdateBookingStatus(ctx context.Context, id uint64, status model.BookingStatus) (*model.Booking, error)
}

// SmsLogReader reads the SMS audit trail.
type SmsLogReader interface {
	ListByBooking(ctx context.Context, bookingID uint64) ([]model.SmsLog, error)
}

// AvailabilityInvalidator drops cached availability after an edit.
type AvailabilityInvalidator interface {
	InvalidateExperience(ctx context.Context, experienceID uint64)
}

// PartnerExperienceHandler serves the partner dashboard endpoints. Partners
// see only what they own; ADMIN partners see everything.
type PartnerExperienceHandler struct {
	Experiences ExperienceStore
	Bookings    BookingLister
	Ledger      PartnerLedger
	SmsLogs     SmsLogReader
	Cache       AvailabilityInvalidator // optional
	validate    *validator.Validate
}

func NewPartnerExperienceHandler(e ExperienceStore, b BookingLister, l PartnerLedger, s SmsLogReader, cache AvailabilityInvalidator) *PartnerExperienceHandler {
	return &PartnerExperienceHandler{
		Experiences: e,
		Bookings:    b,
		Ledger:      l,
		SmsLogs:     s,
		Cache:       cache,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

type experienceReq struct {
	Title        string                  `json:"title" validate:"required,max=255"`
	Description  string                  `json:"description"`
	Location     string                  `json:"location" validate:"required,max=255"`
	Duration     string                  `json:"duration" validate:"max=100"`
	Price        float64                 `json:"price" validate:"gte=0"`
	Category     string                  `json:"category" validate:"max=100"`
	Availability *model.AvailabilityRule `json:"availability"`
}

func (h *PartnerExperienceHandler) decode(c echo.Context) (*model.Experience, error) {
	var req experienceReq
	if err := c.Bind(&req); err != nil {
		return nil, fmt.Errorf("%w: invalid body", apperr.ErrValidation)
	}
	req.Title = strings.TrimSpace(req.Title)
	req.Location = strings.TrimSpace(req.Location)
	if err := h.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return nil, fmt.Errorf("%w: %s failed on %s", apperr.ErrValidation, verrs[0].Field(), verrs[0].Tag())
		}
		return nil, fmt.Errorf("%w: %v", apperr.ErrValidation, err)
	}
	rule := model.AvailabilityRule{Type: model.AvailabilityAlways}
	if req.Availability != nil {
		rule = *req.Availability
		if rule.Type == "" {
			rule.Type = model.AvailabilityAlways
		}
		if err := rule.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", apperr.ErrValidation, err)
		}
	}
	return &model.Experience{
		Title:        req.Title,
		Description:  strings.TrimSpace(req.Description),
		Location:     req.Location,
		Duration:     strings.TrimSpace(req.Duration),
		Price:        req.Price,
		Category:     strings.TrimSpace(req.Category),
		Availability: rule,
	}, nil
}

func currentPartner(c echo.Context) (uint64, error) {
	id, ok := middleware.PartnerID(c)
	if !ok {
		return 0, apperr.ErrUnauthorized
	}
	return id, nil
}

// owned loads an experience the caller may manage.
func (h *PartnerExperienceHandler) owned(ctx context.Context, c echo.Context, id uint64) (*model.Experience, error) {
	partnerID, err := currentPartner(c)
	if err != nil {
		return nil, err
	}
	if middleware.Role(c) == model.RoleAdmin {
		return h.Experiences.GetByID(ctx, id)
	}
	return h.Experiences.GetForPartner(ctx, id, partnerID)
}

func (h *PartnerExperienceHandler) invalidate(ctx context.Context, id uint64) {
	if h.Cache != nil {
		h.Cache.InvalidateExperience(ctx, id)
	}
}

// List handles GET /api/partner/experiences.
func (h *PartnerExperienceHandler) List(c echo.Context) error {
	partnerID, err := currentPartner(c)
	if err != nil {
		return err
	}
	ctx, cancel := withTimeout(c)
	defer cancel()

	items, err := h.Experiences.ListByPartner(ctx, partnerID)
	if err != nil {
		return err
	}
	if items == nil {
		items = []model.Experience{}
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}

// Create handles POST /api/partner/experiences.
func (h *PartnerExperienceHandler) Create(c echo.Context) error {
	partnerID, err := currentPartner(c)
	if err != nil {
		return err
	}
	e, err := h.decode(c)
	if err != nil {
		return err
	}
	e.PartnerID = partnerID
	e.Status = model.ExperienceActive

	ctx, cancel := withTimeout(c)
	defer cancel()
	if err := h.Experiences.Create(ctx, e); err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, e)
}

// Update handles PUT /api/partner/experiences/:id.
func (h *PartnerExperienceHandler) Update(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	e, err := h.decode(c)
	if err != nil {
		return err
	}
	ctx, cancel := withTimeout(c)
	defer cancel()

	cur, err := h.owned(ctx, c, id)
	if err != nil {
		return err
	}
	e.ID = cur.ID
	e.PartnerID = cur.PartnerID
	if err := h.Experiences.Update(ctx, e); err != nil {
		return err
	}
	h.invalidate(ctx, id)
	return c.JSON(http.StatusOK, e)
}

type statusReq struct {
	Status string `json:"status"`
}

// SetStatus handles PATCH /api/partner/experiences/:id/status.
func (h *PartnerExperienceHandler) SetStatus(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	var req statusReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	status := strings.ToLower(strings.TrimSpace(req.Status))
	if status != model.ExperienceActive && status != model.ExperienceInactive {
		return fmt.Errorf("%w: status must be active or inactive", apperr.ErrValidation)
	}
	ctx, cancel := withTimeout(c)
	defer cancel()

	cur, err := h.owned(ctx, c, id)
	if err != nil {
		return err
	}
	if err := h.Experiences.SetStatus(ctx, id, cur.PartnerID, status); err != nil {
		return err
	}
	h.invalidate(ctx, id)
	return c.JSON(http.StatusOK, echo.Map{"id": id, "status": status})
}

// Delete handles DELETE /api/partner/experiences/:id. Booked experiences
// answer 409 and must be deactivated instead.
func (h *PartnerExperienceHandler) Delete(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	ctx, cancel := withTimeout(c)
	defer cancel()

	cur, err := h.owned(ctx, c, id)
	if err != nil {
		return err
	}
	if err := h.Experiences.Delete(ctx, id, cur.PartnerID); err != nil {
		return err
	}
	h.invalidate(ctx, id)
	return c.NoContent(http.StatusNoContent)
}

// ListBookings handles GET /api/partner/experiences/:id/bookings.
func (h *PartnerExperienceHandler) ListBookings(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	ctx, cancel := withTimeout(c)
	defer cancel()

	if _, err := h.owned(ctx, c, id); err != nil {
		return err
	}
	items, err := h.Bookings.ListByExperience(ctx, id)
	if err != nil {
		return err
	}
	if items == nil {
		items = []model.Booking{}
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}

// ownedBooking loads a booking on one of the caller's experiences.
func (h *PartnerExperienceHandler) ownedBooking(ctx context.Context, c echo.Context, id uint64) (*model.Booking, error) {
	b, err := h.Ledger.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := h.owned(ctx, c, b.ExperienceID); err != nil {
		return nil, err
	}
	return b, nil
}

// SetBookingStatus handles PATCH /api/partner/bookings/:id/status.
// Partners may cancel; ADMIN may also confirm.
func (h *PartnerExperienceHandler) SetBookingStatus(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	var req statusReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	target := model.BookingStatus(strings.ToLower(strings.TrimSpace(req.Status)))
	if !target.Valid() {
		return fmt.Errorf("%w: unknown status %q", apperr.ErrValidation, req.Status)
	}
	// Confirmation belongs to the payment flow.
	if target != model.StatusCancelled && middleware.Role(c) != model.RoleAdmin {
		return apperr.ErrForbidden
	}
	ctx, cancel := withTimeout(c)
	defer cancel()

	if _, err := h.ownedBooking(ctx, c, id); err != nil {
		return err
	}
	b, err := h.Ledger.UpdateBookingStatus(ctx, id, target)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, b)
}

// ListSmsLogs handles GET /api/partner/bookings/:id/sms.
func (h *PartnerExperienceHandler) ListSmsLogs(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	ctx, cancel := withTimeout(c)
	defer cancel()

	if _, err := h.ownedBooking(ctx, c, id); err != nil {
		return err
	}
	items, err := h.SmsLogs.ListByBooking(ctx, id)
	if err != nil {
		return err
	}
	if items == nil {
		items = []model.SmsLog{}
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}
