package api

import (
	"CoinCast/internal/service/ratelimit"
	xhttp "CoinCast/pkg/http"
	applogger "CoinCast/pkg/logger"

	"github.com/labstack/echo/v4"
)

// rateLimit rejects a client IP with 429 once its bucket is empty.
func rateLimit(rl *ratelimit.Limiter, l *applogger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if rl == nil || rl.Allow(c.RealIP()) {
				return next(c)
			}
			l.Warn("rate limited",
				applogger.String("remote", c.RealIP()),
				applogger.String("route", c.Path()))
			return xhttp.AppErrorResponse(c, xhttp.TooManyRequestsError("too many prediction requests, slow down"))
		}
	}
}
