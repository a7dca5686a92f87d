package middleware // middleware provides shared request processing for handlers

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/experience-booking/internal/apperr"
)

// JWTAuth validates a Bearer access token signed with secret and stores
// the partner id (sub) and role claims in the context. Handlers read them
// with PartnerID and Role.
func JWTAuth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth := c.Request().Header.Get(echo.HeaderAuthorization)
			if !strings.HasPrefix(auth, "Bearer ") {
				return fmt.Errorf("%w: missing bearer token", apperr.ErrUnauthorized)
			}
			raw := strings.TrimPrefix(auth, "Bearer ")

			tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
				return []byte(secret), nil
			}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
			if err != nil || !tok.Valid {
				return fmt.Errorf("%w: invalid token", apperr.ErrUnauthorized)
			}

			sub, err := tok.Claims.GetSubject()
			if err != nil {
				return fmt.Errorf("%w: invalid claims", apperr.ErrUnauthorized)
			}
			id, err := strconv.ParseUint(sub, 10, 64)
			if err != nil || id == 0 {
				return fmt.Errorf("%w: invalid subject", apperr.ErrUnauthorized)
			}
			role := ""
			if claims, ok := tok.Claims.(jwt.MapClaims); ok {
				role, _ = claims["role"].(string)
			}

			c.Set(ctxPartnerID, id)
			c.Set(ctxRole, role)
			return next(c)
		}
	}
}
