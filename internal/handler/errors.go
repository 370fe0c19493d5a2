package handler // handler defines http handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/gso-inventory-auth/internal/service"
)

// writeError maps a service error onto a status code and JSON body.
// Unexpected errors are logged and answered with a generic 500 so driver
// messages never reach clients.
func writeError(c echo.Context, log *zap.SugaredLogger, err error) error {
	switch {
	case errors.Is(err, service.ErrInvalidCredentials):
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	case errors.Is(err, service.ErrUnauthenticated):
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthenticated", "message": "account is not active"})
	case errors.Is(err, service.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "not found"})
	case errors.Is(err, service.ErrForbidden):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	case errors.Is(err, service.ErrEmailExists):
		return c.JSON(http.StatusConflict, echo.Map{"error": "email already exists"})
	case errors.Is(err, service.ErrInvalidInput):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid input"})
	case errors.Is(err, service.ErrRateLimited):
		return c.JSON(http.StatusTooManyRequests, echo.Map{"error": "too_many_requests"})
	}
	log.Errorw("request failed", "path", c.Path(), "error", err)
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
}

// auditDetails attaches extra fields to the entry audit.Middleware writes.
func auditDetails(c echo.Context, kv map[string]interface{}) {
	c.Set("audit_details", kv)
}
