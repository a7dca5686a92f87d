// Package router maps URLs onto handlers and attaches the middleware each
// group needs.
package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/experience-booking/internal/handler"
	"github.com/iliyamo/experience-booking/internal/middleware"
	"github.com/iliyamo/experience-booking/internal/model"
)

// RegisterRoutes registers routes that need no authentication and no
// dependencies.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
}

// RegisterExperiences registers the public experience catalogue.
func RegisterExperiences(e *echo.Echo, p *handler.PublicExperienceHandler, limit echo.MiddlewareFunc) {
	g := e.Group("/api/experiences", limit)
	g.GET("", p.List)
	g.GET("/:id", p.Get)
}

// RegisterBooking registers the public booking API. limit guards both
// endpoints; cache sits in front of the availability read only.
func RegisterBooking(e *echo.Echo, b *handler.BookingHandler, limit, cache echo.MiddlewareFunc) {
	g := e.Group("/api/bookings")
	g.GET("/available/:id", b.AvailableDates, limit, cache)
	g.POST("", b.Create, limit)
	g.GET("/:id", b.Get)
}

// RegisterPayment registers checkout creation and the processor webhook.
// The webhook reads the raw body itself; nothing in front of it may
// consume it.
func RegisterPayment(e *echo.Echo, p *handler.PaymentHandler) {
	g := e.Group("/api/payment")
	g.POST("/create-checkout-session", p.CreateCheckoutSession)
	g.POST("/webhook", p.Webhook)
}

// RegisterSMS registers the inbound SMS webhook.
func RegisterSMS(e *echo.Echo, s *handler.SMSHandler) {
	e.POST("/api/twilio/webhook", s.Inbound)
}

// RegisterPartner registers partner login and the partner dashboard API.
// Everything below /api/partner requires a valid access token.
func RegisterPartner(e *echo.Echo, a *handler.PartnerAuthHandler, p *handler.PartnerExperienceHandler, jwtSecret string) {
	e.POST("/api/partners/login", a.Login)

	g := e.Group("/api/partner")
	g.Use(middleware.JWTAuth(jwtSecret))
	g.Use(middleware.RequireRole(model.RolePartner, model.RoleAdmin))
	g.GET("/me", a.Me)

	g.GET("/experiences", p.List)
	g.POST("/experiences", p.Create)
	g.PUT("/experiences/:id", p.Update)
	g.DELETE("/experiences/:id", p.Delete)
	g.PATCH("/experiences/:id/status", p.SetStatus)
	g.GET("/experiences/:id/bookings", p.ListBookings)

	g.PATCH("/bookings/:id/status", p.SetBookingStatus)
	g.GET("/bookings/:id/sms", p.ListSmsLogs)
}

// RegisterNotifications registers operational endpoints for admins.
func RegisterNotifications(e *echo.Echo, n *handler.NotificationHandler, jwtSecret string) {
	g := e.Group("/api/notifications")
	g.Use(middleware.JWTAuth(jwtSecret))
	g.Use(middleware.RequireRole(model.RoleAdmin))
	g.POST("/test/reminders", n.RunReminders)
}
