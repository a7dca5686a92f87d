package middleware

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/experience-booking/internal/apperr"
)

// ErrorHandler is installed as echo's HTTPErrorHandler. Errors from the
// apperr taxonomy map to their status code, echo's own errors keep theirs
// and anything else becomes a logged 500 with a generic message.
func ErrorHandler(log *slog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		var (
			code = apperr.StatusOf(err)
			msg  = apperr.PublicMessage(err)
			he   *echo.HTTPError
		)
		if errors.As(err, &he) {
			code = he.Code
			msg = http.StatusText(he.Code)
			if m, ok := he.Message.(string); ok {
				msg = m
			}
		}

		if code >= http.StatusInternalServerError {
			log.Error("request failed",
				"method", c.Request().Method,
				"path", c.Request().URL.Path,
				"request_id", c.Response().Header().Get(echo.HeaderXRequestID),
				"status", code,
				"err", err)
		}

		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(code)
			return
		}
		_ = c.JSON(code, echo.Map{"error": msg})
	}
}
