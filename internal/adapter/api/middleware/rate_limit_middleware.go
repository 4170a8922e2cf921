package middleware

import (
	"fmt"

	"github.com/labstack/echo/v4"

	"campusmarket/internal/infrastructure/ratelimit"
	"campusmarket/pkg/errors"
	"campusmarket/pkg/logger"
	"campusmarket/pkg/response"
)

const ActionHTTPRequest = "http_request"

// RateLimit throttles requests per client IP with the shared token-bucket
// limiter. Per-user limits on sends and lookups are enforced in the use
// cases.
func RateLimit(limiter *ratelimit.RateLimiter) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ip := c.RealIP()

			allowed, waitTime := limiter.Allow(ip, ActionHTTPRequest)
			if !allowed {
				logger.Warn("RATE LIMIT: Blocked request from IP %s (reset in %v)", ip, waitTime)
				c.Response().Header().Set("Retry-After", fmt.Sprintf("%.0f", waitTime.Seconds()+0.5))
				return response.Error(c, errors.TooManyRequests("Rate limit exceeded", waitTime))
			}

			return next(c)
		}
	}
}
