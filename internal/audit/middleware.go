package audit

import (
	"github.com/labstack/echo/v4"
)

// Context keys read by Middleware.  The auth middleware sets user_id and
// session_id; handlers may set audit_details to enrich the entry.
const (
	ctxUserID  = "user_id"
	ctxSession = "session_id"
	ctxDetails = "audit_details"
)

// Middleware records action after the wrapped handler succeeds.  Only
// handlers returning nil with a 2xx status produce an entry.
func Middleware(rec *Recorder, action string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if err := next(c); err != nil {
				return err
			}
			status := c.Response().Status
			if status < 200 || status > 299 {
				return nil
			}
			details := map[string]interface{}{
				"ip":         c.RealIP(),
				"user_agent": c.Request().UserAgent(),
				"method":     c.Request().Method,
				"path":       c.Path(),
			}
			if id := c.Response().Header().Get(echo.HeaderXRequestID); id != "" {
				details["request_id"] = id
			}
			if sid, ok := c.Get(ctxSession).(uint64); ok {
				details["session_id"] = sid
			}
			if extra, ok := c.Get(ctxDetails).(map[string]interface{}); ok {
				for k, v := range extra {
					details[k] = v
				}
			}
			var actor *uint64
			if uid, ok := c.Get(ctxUserID).(uint64); ok && uid != 0 {
				actor = &uid
			}
			rec.Record(actor, action, details)
			return nil
		}
	}
}
