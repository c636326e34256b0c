package middleware

import (
	"net/http"
	"strconv"
	"time"

	"salmontrack/internal/caching"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

// RateLimit caps requests per client IP and route using the shared cache. When the cache
// is unreachable requests are let through.
func RateLimit(cache caching.CacheService, limit int, window time.Duration, logger logrus.FieldLogger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if c.Request().Method == http.MethodOptions {
				return next(c)
			}
			key := c.RealIP() + ":" + c.Path()
			limited, err := cache.IsRateLimited(c.Request().Context(), key, limit, window)
			if err != nil {
				logger.WithField("key", key).WithError(err).Warn("rate limit check failed")
				return next(c)
			}
			if limited {
				c.Response().Header().Set("Retry-After", formatSeconds(window))
				return c.JSON(http.StatusTooManyRequests, map[string]string{"error": "too many requests"})
			}
			return next(c)
		}
	}
}

func formatSeconds(d time.Duration) string {
	secs := int(d.Round(time.Second) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}
