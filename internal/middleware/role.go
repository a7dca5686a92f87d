package middleware

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/experience-booking/internal/apperr"
)

// RequireRole rejects requests whose role claim is not one of roles. It
// must run after JWTAuth.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	allowed := make(map[string]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !allowed[Role(c)] {
				return apperr.ErrForbidden
			}
			return next(c)
		}
	}
}
