package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/provenance-labs/provd/pkg/version"
)

const (
	healthStatusHealthy   = "healthy"
	healthStatusDegraded  = "degraded"
	healthStatusUnhealthy = "unhealthy"
)

// healthHandler handles GET /health. The shallow form only reports the
// process is up; ?deep=true also probes the database and, when shared
// counters are configured, the cache.
func (s *Server) healthHandler(c *echo.Context) error {
	deep, _ := strconv.ParseBool(c.QueryParam("deep"))
	if !deep {
		return c.JSON(http.StatusOK, &HealthResponse{
			Status:  healthStatusHealthy,
			Version: version.GitCommit,
		})
	}

	reqCtx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]HealthCheck)
	status := healthStatusHealthy

	dbHealth, err := s.dbClient.Health(reqCtx)
	if err != nil {
		status = healthStatusUnhealthy
		checks["db"] = HealthCheck{Status: healthStatusUnhealthy, Message: err.Error()}
	} else {
		checks["db"] = HealthCheck{Status: healthStatusHealthy}
	}

	if s.cache != nil {
		if err := s.cache.Ping(reqCtx); err != nil {
			// Rate limiting fails open, so a cache outage only degrades.
			if status == healthStatusHealthy {
				status = healthStatusDegraded
			}
			checks["cache"] = HealthCheck{Status: healthStatusUnhealthy, Message: err.Error()}
		} else {
			checks["cache"] = HealthCheck{Status: healthStatusHealthy}
		}
	}

	httpStatus := http.StatusOK
	if status == healthStatusUnhealthy {
		httpStatus = http.StatusServiceUnavailable
	}
	return c.JSON(httpStatus, &HealthResponse{
		Status:   status,
		Version:  version.GitCommit,
		Checks:   checks,
		Database: dbHealth,
	})
}
