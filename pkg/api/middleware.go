package api

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	echo "github.com/labstack/echo/v5"

	"github.com/provenance-labs/provd/pkg/ratelimit"
)

const (
	requestIDHeader = "X-Request-ID"
	requestIDKey    = "request_id"
	clientIDKey     = "client_id"
)

// requestID returns middleware that assigns each request an id, honoring
// a caller-provided X-Request-ID.
func requestID() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c *echo.Context) error {
			id := c.Request().Header.Get(requestIDHeader)
			if id == "" {
				id = uuid.NewString()
			}
			c.Set(requestIDKey, id)
			c.Response().Header().Set(requestIDHeader, id)
			return next(c)
		}
	}
}

// securityHeaders returns middleware that sets standard security response headers.
func securityHeaders() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c *echo.Context) error {
			h := c.Response().Header()
			h.Set("X-Frame-Options", "DENY")
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
			h.Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")
			return next(c)
		}
	}
}

// apiKeyAuth returns middleware enforcing the configured API keys. The
// presented key doubles as the rate-limit client identity; unauthenticated
// deployments fall back to the remote IP.
func (s *Server) apiKeyAuth() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c *echo.Context) error {
			key := c.Request().Header.Get(s.cfg.Auth.APIKeyHeader)
			if s.cfg.Auth.RequireAPIKey {
				if key == "" {
					return apiError(http.StatusUnauthorized, kindUnauthenticated, "missing API key")
				}
				if !s.keyAllowed(key) {
					return apiError(http.StatusUnauthorized, kindUnauthenticated, "invalid API key")
				}
			}
			c.Set(clientIDKey, clientIdentity(c, key))
			return next(c)
		}
	}
}

func (s *Server) keyAllowed(key string) bool {
	for _, k := range s.cfg.Auth.APIKeys {
		if k == key {
			return true
		}
	}
	return false
}

// rateLimit returns middleware charging the request against the named
// bucket and the daily spend ledger at the operation family's cost.
func (s *Server) rateLimit(bucket, op string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c *echo.Context) error {
			clientID := clientIdentity(c, "")
			if v, ok := c.Get(clientIDKey).(string); ok && v != "" {
				clientID = v
			}

			decision, err := s.guard.Authorize(c.Request().Context(), clientID, bucket, s.guard.Cost(op))
			if err != nil {
				return err
			}
			if !decision.Allowed {
				s.audit.EmitRateLimited(clientID, bucket, decision.Reason)
				c.Response().Header().Set("Retry-After",
					fmt.Sprintf("%d", int(decision.RetryAfter.Seconds()+0.5)))
				if decision.Reason == ratelimit.ReasonSpendCapExceeded {
					return apiError(http.StatusTooManyRequests, kindSpendCapExceeded,
						"daily spend cap exceeded")
				}
				return apiError(http.StatusTooManyRequests, kindRateLimited,
					fmt.Sprintf("rate limit exceeded for bucket %q", bucket))
			}
			return next(c)
		}
	}
}

// auditHTTP returns middleware emitting one http.request audit event per
// handled request when enabled.
func (s *Server) auditHTTP() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c *echo.Context) error {
			if !s.cfg.Audit.LogHTTPRequests {
				return next(c)
			}
			start := time.Now()
			err := next(c)

			status := http.StatusOK
			if resp, rerr := echo.UnwrapResponse(c.Response()); rerr == nil {
				status = resp.Status
			}
			if err != nil {
				status = http.StatusInternalServerError
				var sc echo.HTTPStatusCoder
				if errors.As(err, &sc) {
					status = sc.StatusCode()
				}
			}
			actor, _ := c.Get(clientIDKey).(string)
			s.audit.EmitHTTPRequest(c.Request().Method, c.Request().URL.Path,
				status, time.Since(start), actor, requestIDFrom(c))
			return err
		}
	}
}

func requestIDFrom(c *echo.Context) string {
	if id, ok := c.Get(requestIDKey).(string); ok {
		return id
	}
	return ""
}

// clientIdentity resolves who the request is charged to: the API key when
// present, else the remote IP.
func clientIdentity(c *echo.Context, key string) string {
	if key != "" {
		return key
	}
	host, _, err := net.SplitHostPort(c.Request().RemoteAddr)
	if err != nil {
		return c.Request().RemoteAddr
	}
	return host
}
