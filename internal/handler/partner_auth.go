package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/experience-booking/internal/apperr"
	"github.com/iliyamo/experience-booking/internal/middleware"
	"github.com/iliyamo/experience-booking/internal/model"
	"github.com/iliyamo/experience-booking/internal/utils"
)

// PartnerReader loads partner accounts.
type PartnerReader interface {
	GetByEmail(ctx context.Context, email string) (*model.Partner, error)
	GetByID(ctx context.Context, id uint64) (*model.Partner, error)
}

// PartnerAuthHandler logs affiliate partners in.
type PartnerAuthHandler struct {
	Partners     PartnerReader
	JWTSecret    string
	AccessTTLMin int
}

func NewPartnerAuthHandler(p PartnerReader, secret string, ttlMin int) *PartnerAuthHandler {
	return &PartnerAuthHandler{Partners: p, JWTSecret: secret, AccessTTLMin: ttlMin}
}

// ----- DTOs -----

type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenPart struct {
	Token   string    `json:"token"`
	Expires time.Time `json:"expires"`
}

type partnerPart struct {
	ID    uint64 `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

type loginResp struct {
	Partner partnerPart `json:"partner"`
	Access  tokenPart   `json:"access"`
}

func toPartnerPart(p *model.Partner) partnerPart {
	return partnerPart{ID: p.ID, Name: p.Name, Email: p.Email, Role: p.Role}
}

// Login: verify credentials and issue an access token.
func (h *PartnerAuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email/password required"})
	}

	ctx, cancel := withTimeout(c)
	defer cancel()

	p, err := h.Partners.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
		}
		return err
	}
	// Same answer for a wrong password and a disabled account.
	if !p.IsActive || !utils.VerifyPassword(p.PasswordHash, req.Password) {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	}

	access, err := utils.NewAccessToken(h.JWTSecret, p.ID, p.Role, h.AccessTTLMin)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "issue access failed"})
	}
	return c.JSON(http.StatusOK, loginResp{
		Partner: toPartnerPart(p),
		Access:  tokenPart{Token: access.Token, Expires: access.Exp},
	})
}

// Me returns the authenticated partner.
func (h *PartnerAuthHandler) Me(c echo.Context) error {
	id, ok := middleware.PartnerID(c)
	if !ok {
		return apperr.ErrUnauthorized
	}
	ctx, cancel := withTimeout(c)
	defer cancel()

	p, err := h.Partners.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return apperr.ErrUnauthorized
		}
		return err
	}
	return c.JSON(http.StatusOK, toPartnerPart(p))
}
