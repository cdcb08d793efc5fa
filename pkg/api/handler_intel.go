package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"
)

// estimateHandler handles POST /intel/x/collect/estimate.
func (s *Server) estimateHandler(c *echo.Context) error {
	var req EstimateRequest
	if err := c.Bind(&req); err != nil {
		return bindError(err)
	}
	if err := s.validate.Struct(&req); err != nil {
		return validationFailed(err, "window_days (1-90) and max_posts (>=1) are required")
	}

	plan := s.collector.EstimatePlan(req.WindowDays, req.MaxPosts, req.MaxPages)
	return c.JSON(http.StatusOK, &EstimateResponse{
		TargetPages:      plan.TargetPages,
		MentionPages:     plan.MentionPages,
		InteractionPages: plan.InteractionPages,
		TotalRequests:    plan.TotalRequests,
	})
}

// schedulerStatusHandler handles GET /intel/scheduler/status.
func (s *Server) schedulerStatusHandler(c *echo.Context) error {
	return c.JSON(http.StatusOK, s.sched.Status())
}

// schedulerTriggerHandler handles POST /intel/scheduler/trigger. The run
// executes synchronously; budget and single-flight rules still apply.
func (s *Server) schedulerTriggerHandler(c *echo.Context) error {
	var req TriggerRequest
	if err := c.Bind(&req); err != nil {
		return bindError(err)
	}
	if err := s.validate.Struct(&req); err != nil {
		return validationFailed(err, "handle field is required")
	}

	if err := s.sched.TriggerOnce(c.Request().Context(), req.Handle); err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, &TriggerResponse{Handle: req.Handle, Status: "completed"})
}
