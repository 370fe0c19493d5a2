package handler // declare the package name; contains HTTP handlers

import (
	"context"
	"net/http" // net/http provides status codes and response helpers
	"time"

	"github.com/labstack/echo/v4" // echo is the web framework used for this project
)

// Pinger is satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// FailureCounter is satisfied by *audit.Recorder.
type FailureCounter interface {
	Failures() int64
}

// Health is the health-check endpoint used by load balancers and
// monitoring.  It reports 503 when the database does not answer and
// always includes the number of failed audit writes.
type Health struct {
	DB    Pinger
	Audit FailureCounter
}

func (h Health) Handle(c echo.Context) error {
	out := echo.Map{"status": "ok"}
	if h.Audit != nil {
		out["audit_failures"] = h.Audit.Failures()
	}
	if h.DB != nil {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()
		if err := h.DB.PingContext(ctx); err != nil {
			out["status"] = "degraded"
			out["database"] = "unreachable"
			return c.JSON(http.StatusServiceUnavailable, out)
		}
	}
	return c.JSON(http.StatusOK, out)
}
