package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/experience-booking/internal/service"
)

// ReminderRunner runs the reminder sweep on demand.
type ReminderRunner interface {
	SendRemindersForTomorrow(ctx context.Context) (service.ReminderSummary, error)
}

type NotificationHandler struct {
	Reminders ReminderRunner
}

func NewNotificationHandler(r ReminderRunner) *NotificationHandler {
	return &NotificationHandler{Reminders: r}
}

// RunReminders handles POST /api/notifications/test/reminders. It runs the
// same sweep the daily job does; bookings already reminded are skipped.
func (h *NotificationHandler) RunReminders(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Minute)
	defer cancel()

	sum, err := h.Reminders.SendRemindersForTomorrow(ctx)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "summary": sum})
}
