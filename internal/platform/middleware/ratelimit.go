package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"
)

type RateLimitConfig struct {
	RequestsPerSecond float64
	BurstSize         int
	// ExpiresIn drops idle visitors from the store.
	ExpiresIn time.Duration
}

func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{RequestsPerSecond: 100, BurstSize: 200, ExpiresIn: 3 * time.Minute}
}

// rateLimitKey buckets callers per tenant and client address.
func rateLimitKey(c echo.Context) (string, error) {
	key := c.RealIP()
	if tenant, _ := c.Get("jwt_tenant_id").(string); tenant != "" {
		key = tenant + ":" + key
	}
	return key, nil
}

// RateLimit applies a token bucket per rateLimitKey on top of echo's
// in-memory limiter store.
func RateLimit(cfg RateLimitConfig) echo.MiddlewareFunc {
	limit := strconv.FormatFloat(cfg.RequestsPerSecond, 'f', -1, 64)
	retryAfter := "1"
	if cfg.RequestsPerSecond > 0 && cfg.RequestsPerSecond < 1 {
		retryAfter = strconv.Itoa(int(1/cfg.RequestsPerSecond) + 1)
	}

	store := middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
		Rate:      rate.Limit(cfg.RequestsPerSecond),
		Burst:     cfg.BurstSize,
		ExpiresIn: cfg.ExpiresIn,
	})

	limiter := middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store:               store,
		IdentifierExtractor: rateLimitKey,
		ErrorHandler: func(c echo.Context, err error) error {
			return echo.NewHTTPError(http.StatusForbidden, "unable to identify client")
		},
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			h := c.Response().Header()
			h.Set("Retry-After", retryAfter)
			h.Set("X-RateLimit-Remaining", "0")
			return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
		},
	})

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		limited := limiter(next)
		return func(c echo.Context) error {
			c.Response().Header().Set("X-RateLimit-Limit", limit)
			return limited(c)
		}
	}
}
