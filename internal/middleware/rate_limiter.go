package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// RateLimiter limits requests to 10 per minute per client IP. Applied to the
// credential endpoints so password guessing stays slow. The in-memory store
// is enough for a single-instance deployment.
func RateLimiter() echo.MiddlewareFunc {
	config := middleware.RateLimiterConfig{
		Store: middleware.NewRateLimiterMemoryStore(10),
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			return c.JSON(http.StatusTooManyRequests, map[string]string{
				"status":  "error",
				"message": "too many requests, try again later",
			})
		},
	}
	return middleware.RateLimiterWithConfig(config)
}
