package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/experience-booking/internal/model"
	"github.com/iliyamo/experience-booking/internal/service"
)

// AvailabilityQuerier answers which dates of an experience can be booked.
type AvailabilityQuerier interface {
	AvailableDates(ctx context.Context, experienceID uint64) ([]service.DateAvailability, error)
}

// BookingCreator creates and reads bookings.
type BookingCreator interface {
	CreateBooking(ctx context.Context, in service.BookingInput) (*model.Booking, error)
	GetBooking(ctx context.Context, id uint64) (*model.Booking, error)
}

// BookingHandler serves the public booking endpoints.
type BookingHandler struct {
	Availability AvailabilityQuerier
	Ledger       BookingCreator
}

func NewBookingHandler(a AvailabilityQuerier, l BookingCreator) *BookingHandler {
	return &BookingHandler{Availability: a, Ledger: l}
}

// AvailableDates handles GET /api/bookings/available/:id.
func (h *BookingHandler) AvailableDates(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	ctx, cancel := withTimeout(c)
	defer cancel()

	dates, err := h.Availability.AvailableDates(ctx, id)
	if err != nil {
		return err
	}
	if dates == nil {
		dates = []service.DateAvailability{}
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "dates": dates})
}

// Create handles POST /api/bookings. The booking starts out pending; it is
// confirmed once the payment webhook arrives.
func (h *BookingHandler) Create(c echo.Context) error {
	var in service.BookingInput
	if err := c.Bind(&in); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	ctx, cancel := withTimeout(c)
	defer cancel()

	b, err := h.Ledger.CreateBooking(ctx, in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"success":   true,
		"message":   "Booking oprettet succesfuldt",
		"bookingId": b.ID,
		"booking":   b,
	})
}

// Get handles GET /api/bookings/:id.
func (h *BookingHandler) Get(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	ctx, cancel := withTimeout(c)
	defer cancel()

	b, err := h.Ledger.GetBooking(ctx, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, b)
}
