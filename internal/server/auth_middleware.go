package server

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"
)

// AuthMiddleware returns a middleware that validates the API token.
func (s *Server) AuthMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if s.config.Token == "" {
			// No token configured, the API is open.
			return next(c)
		}

		token := extractToken(c.Request())
		if token == "" {
			return echo.NewHTTPError(http.StatusUnauthorized, "Missing authentication token")
		}

		// Constant-time comparison to prevent timing attacks
		if subtle.ConstantTimeCompare([]byte(token), []byte(s.config.Token)) != 1 {
			return echo.NewHTTPError(http.StatusUnauthorized, "Invalid authentication token")
		}

		return next(c)
	}
}

// RateLimitMiddleware returns a middleware that limits requests per IP.
func (s *Server) RateLimitMiddleware() echo.MiddlewareFunc {
	if !s.config.RateLimit.Enabled {
		return func(next echo.HandlerFunc) echo.HandlerFunc {
			return next
		}
	}

	rps := s.config.RateLimit.RPS
	if rps <= 0 {
		rps = 10
	}
	burst := s.config.RateLimit.Burst
	if burst <= 0 {
		burst = 20
	}

	config := middleware.RateLimiterConfig{
		Skipper: middleware.DefaultSkipper,
		Store: middleware.NewRateLimiterMemoryStoreWithConfig(
			middleware.RateLimiterMemoryStoreConfig{
				Rate:      rate.Limit(rps),
				Burst:     burst,
				ExpiresIn: 0,
			},
		),
		IdentifierExtractor: func(ctx echo.Context) (string, error) {
			return ctx.RealIP(), nil
		},
		ErrorHandler: func(context echo.Context, err error) error {
			return context.JSON(http.StatusTooManyRequests, map[string]string{
				"error": "Too many requests",
			})
		},
		DenyHandler: func(context echo.Context, identifier string, err error) error {
			return context.JSON(http.StatusTooManyRequests, map[string]string{
				"error": "Rate limit exceeded",
			})
		},
	}

	return middleware.RateLimiterWithConfig(config)
}

func extractToken(r *http.Request) string {
	// 1. Authorization: Bearer <token>
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		return strings.TrimSpace(auth[7:])
	}

	// 2. X-Exthost-Token
	if token := r.Header.Get("X-Exthost-Token"); token != "" {
		return token
	}

	// 3. Query parameter ?token=<token>
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}

	return ""
}
