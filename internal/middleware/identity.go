package middleware

// identity.go holds the context keys JWTAuth fills in and the helpers
// handlers and other middleware use to read them.

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

const (
	ctxPartnerID = "partner_id"
	ctxRole      = "role"
)

// PartnerID returns the authenticated partner's id.
func PartnerID(c echo.Context) (uint64, bool) {
	id, ok := c.Get(ctxPartnerID).(uint64)
	return id, ok && id > 0
}

// Role returns the authenticated partner's role, or "".
func Role(c echo.Context) string {
	r, _ := c.Get(ctxRole).(string)
	return r
}

// actorKey identifies the caller for rate limiting: the partner id when
// authenticated, "anon" otherwise.
func actorKey(c echo.Context) string {
	if id, ok := PartnerID(c); ok {
		return strconv.FormatUint(id, 10)
	}
	return "anon"
}
