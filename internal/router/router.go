package router // router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4" // import the Echo web framework to handle routing

	"github.com/iliyamo/shareables/internal/handler"    // HTTP handlers
	"github.com/iliyamo/shareables/internal/middleware" // JWT, role, cache and rate limit middleware
	"github.com/iliyamo/shareables/internal/model"      // role names
)

// RegisterRoutes registers routes that do not require authentication.
// Currently it exposes only a health check backed by a database ping.
func RegisterRoutes(e *echo.Echo, db handler.Pinger) {
	e.GET("/healthz", handler.Health(db))
}

// RegisterAuth registers the token endpoints under /v1/auth and the
// authenticated profile endpoint at /v1/me.  limit guards the
// unauthenticated group against credential stuffing.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, jwtSecret string, limit echo.MiddlewareFunc) {
	g := e.Group("/v1/auth", limit)
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)
	g.POST("/refresh", a.Refresh)
	// Accepts a refresh token in the body or a bearer token.
	g.POST("/logout", a.Logout)

	auth := e.Group("/v1", middleware.JWTAuth(jwtSecret))
	auth.GET("/me", a.Me)
}

// RegisterShareables mounts the shareable API.  Reads are public and go
// through cache; writes need a JWT, and creating or deleting a shareable
// additionally needs the ADMIN role.  The limiter runs after JWTAuth so
// buckets are keyed per user.
func RegisterShareables(e *echo.Echo, h *handler.ShareableHandler, jwtSecret string, cache, limit echo.MiddlewareFunc) {
	pub := e.Group("/v1/shareables", cache)
	pub.GET("", h.List)
	pub.GET("/:uuid", h.Get)

	g := e.Group("/v1/shareables", middleware.JWTAuth(jwtSecret), limit)
	g.POST("/:uuid/reserve", h.Reserve)
	g.DELETE("/:uuid/reservations/:id", h.CancelReservation)

	admin := e.Group("/v1/shareables",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleAdmin),
		limit,
	)
	admin.POST("", h.Create)
	admin.DELETE("/:uuid", h.Delete)
}
