package middleware

// identity.go defines the echo context keys the auth middleware populates
// and typed accessors for handlers and other middleware.

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/gso-inventory-auth/internal/model"
)

const (
	CtxUserID    = "user_id"    // uint64
	CtxEmail     = "email"      // string
	CtxRole      = "role"       // string
	CtxSessionID = "session_id" // uint64
	CtxToken     = "token"      // string, the raw bearer token
	CtxSession   = "session"    // model.Session
)

// UserID returns the authenticated user id, or false for anonymous requests.
func UserID(c echo.Context) (uint64, bool) {
	id, ok := c.Get(CtxUserID).(uint64)
	return id, ok && id != 0
}

// Role returns the authenticated user's role.
func Role(c echo.Context) model.Role {
	r, _ := c.Get(CtxRole).(string)
	return model.Role(r)
}

// Email returns the authenticated user's email.
func Email(c echo.Context) string {
	e, _ := c.Get(CtxEmail).(string)
	return e
}

// Token returns the bearer token of the request.
func Token(c echo.Context) string {
	t, _ := c.Get(CtxToken).(string)
	return t
}

// CurrentSession returns the session the request authenticated with.
func CurrentSession(c echo.Context) (model.Session, bool) {
	s, ok := c.Get(CtxSession).(model.Session)
	return s, ok
}
