package middleware

import (
	"net/http"
	"runtime"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// Recovery converts panics into generic 500s. The stack goes to the log;
// the client never sees panic detail.
func Recovery(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			defer func() {
				if r := recover(); r != nil {
					stack := make([]byte, 8<<10)
					n := runtime.Stack(stack, false)

					ev := logger.Error().
						Interface("panic", r).
						Bytes("stack", stack[:n])
					if id, ok := c.Get("request_id").(string); ok {
						ev = ev.Str("request_id", id)
					}
					ev.Msg("panic recovered")

					err = echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
				}
			}()
			return next(c)
		}
	}
}
