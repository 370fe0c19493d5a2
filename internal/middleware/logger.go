package middleware

import (
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

// RequestLogger logs one line per request through zap.  5xx responses are
// logged at error level, everything else at info.
func RequestLogger(log *zap.SugaredLogger) echo.MiddlewareFunc {
	return echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogMethod:    true,
		LogURIPath:   true,
		LogStatus:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			fields := []interface{}{
				"method", v.Method,
				"path", v.URIPath,
				"status", v.Status,
				"latency_ms", float64(v.Latency) / float64(time.Millisecond),
				"ip", v.RemoteIP,
				"request_id", v.RequestID,
			}
			if uid, ok := UserID(c); ok {
				fields = append(fields, "user_id", uid)
			}
			if v.Error != nil {
				fields = append(fields, "error", v.Error)
			}
			if v.Status >= 500 {
				log.Errorw("request", fields...)
				return nil
			}
			log.Infow("request", fields...)
			return nil
		},
	})
}
