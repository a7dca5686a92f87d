package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/experience-booking/internal/apperr"
	"github.com/iliyamo/experience-booking/internal/model"
)

// ExperienceBrowser reads experiences for anonymous customers.
type ExperienceBrowser interface {
	ListActive(ctx context.Context, category string) ([]model.Experience, error)
	GetByID(ctx context.Context, id uint64) (*model.Experience, error)
}

// PublicExperience is what customers see of an experience. Partner ids
// and bookkeeping timestamps stay private.
type PublicExperience struct {
	ID           uint64                 `json:"id"`
	Title        string                 `json:"title"`
	Description  string                 `json:"description"`
	Location     string                 `json:"location"`
	Duration     string                 `json:"duration"`
	Price        float64                `json:"price"`
	Category     string                 `json:"category"`
	Availability model.AvailabilityRule `json:"availability"`
}

func publicExperience(e model.Experience) PublicExperience {
	return PublicExperience{
		ID:           e.ID,
		Title:        e.Title,
		Description:  e.Description,
		Location:     e.Location,
		Duration:     e.Duration,
		Price:        e.Price,
		Category:     e.Category,
		Availability: e.Availability,
	}
}

// PublicExperienceHandler serves the unauthenticated catalogue.
type PublicExperienceHandler struct {
	Experiences ExperienceBrowser
}

func NewPublicExperienceHandler(e ExperienceBrowser) *PublicExperienceHandler {
	return &PublicExperienceHandler{Experiences: e}
}

// List handles GET /api/experiences[?category=].
func (h *PublicExperienceHandler) List(c echo.Context) error {
	ctx, cancel := withTimeout(c)
	defer cancel()

	items, err := h.Experiences.ListActive(ctx, strings.TrimSpace(c.QueryParam("category")))
	if err != nil {
		return err
	}
	out := make([]PublicExperience, 0, len(items))
	for _, e := range items {
		out = append(out, publicExperience(e))
	}
	return c.JSON(http.StatusOK, echo.Map{"items": out})
}

// Get handles GET /api/experiences/:id. Inactive experiences are hidden.
func (h *PublicExperienceHandler) Get(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	ctx, cancel := withTimeout(c)
	defer cancel()

	e, err := h.Experiences.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !e.IsActive() {
		return apperr.ErrNotFound
	}
	return c.JSON(http.StatusOK, publicExperience(*e))
}
