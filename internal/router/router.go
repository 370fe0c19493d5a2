package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4" // import the Echo web framework to handle routing

	"github.com/iliyamo/gso-inventory-auth/internal/audit"
	"github.com/iliyamo/gso-inventory-auth/internal/config"
	"github.com/iliyamo/gso-inventory-auth/internal/handler"
	"github.com/iliyamo/gso-inventory-auth/internal/middleware"
	"github.com/iliyamo/gso-inventory-auth/internal/model"
)

// RegisterRoutes registers routes that do not require authentication and
// do not belong to the auth flow.  Currently it exposes only a health check
// limited like any anonymous read.
func RegisterRoutes(e *echo.Echo, h handler.Health, rl *middleware.Limiter) {
	e.GET("/healthz", h.Handle, rl.For(config.ClassView))
}

// RegisterAuth registers the /auth endpoints.  Login, registration and the
// reset flow are anonymous and carry their own rate limit class; logout and
// /auth/me need a valid session.  Each route records its audit action only
// when the handler succeeds.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, requireAuth echo.MiddlewareFunc, rl *middleware.Limiter, rec *audit.Recorder) {
	g := e.Group("/auth")
	g.POST("/login", a.Login, rl.For(config.ClassLogin), audit.Middleware(rec, audit.ActionLogin))
	g.POST("/register", a.Register, rl.For(config.ClassRegister), audit.Middleware(rec, audit.ActionRegister))
	g.POST("/password/reset-request", a.RequestPasswordReset,
		rl.For(config.ClassReset), audit.Middleware(rec, audit.ActionPasswordResetRequest))
	g.POST("/password/reset", a.ResetPassword,
		rl.For(config.ClassReset), audit.Middleware(rec, audit.ActionPasswordReset))

	// Authenticated: the limiter runs after requireAuth so it keys on the user.
	g.POST("/logout", a.Logout, requireAuth, rl.For(config.ClassModify), audit.Middleware(rec, audit.ActionLogout))
	g.GET("/me", a.Me, requireAuth, rl.For(config.ClassAPI))
}

// RegisterSessions registers the /sessions endpoints behind requireAuth.
// Static segments (current, device, all) win over :id in echo's router.
func RegisterSessions(e *echo.Echo, s *handler.SessionHandler, requireAuth echo.MiddlewareFunc, rl *middleware.Limiter, rec *audit.Recorder) {
	g := e.Group("/sessions", requireAuth)
	read := rl.For(config.ClassView)
	write := rl.For(config.ClassModify)

	g.GET("", s.List, read)
	g.GET("/:id", s.Get, read)
	g.POST("", s.Create, write, audit.Middleware(rec, audit.ActionSessionCreate))
	g.DELETE("/current", s.DeleteCurrent, write, audit.Middleware(rec, audit.ActionSessionDeleteCurrent))
	g.DELETE("/device", s.DeleteDevice, write, audit.Middleware(rec, audit.ActionSessionDeleteDevice))
	g.DELETE("/all", s.DeleteAll, write, audit.Middleware(rec, audit.ActionSessionDeleteAll))
	g.DELETE("/:id", s.Delete, write, audit.Middleware(rec, audit.ActionSessionDelete))
}

// RegisterAdmin registers the administrator endpoints.  RequireRole reads
// the role Auth loaded from the user row, not the token claim.
func RegisterAdmin(e *echo.Echo, a *handler.AdminHandler, requireAuth echo.MiddlewareFunc, rl *middleware.Limiter, rec *audit.Recorder) {
	g := e.Group("/admin", requireAuth, middleware.RequireRole(model.RoleAdmin))
	g.GET("/users/:id/sessions", a.UserSessions, rl.For(config.ClassAPI))
	g.DELETE("/users/:id/sessions", a.EndUserSessions,
		rl.For(config.ClassModify), audit.Middleware(rec, audit.ActionAdminSessionDeleteAll))
	g.GET("/users/:id/audit", a.UserAudit, rl.For(config.ClassAPI))
}
