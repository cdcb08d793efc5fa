package api

import (
	"fmt"
	"net/http"
	"strconv"

	echo "github.com/labstack/echo/v5"

	"github.com/provenance-labs/provd/pkg/models"
)

// listEventsHandler handles GET /audit/events, querying persisted events.
func (s *Server) listEventsHandler(c *echo.Context) error {
	filters, err := parseEventFilters(c)
	if err != nil {
		return err
	}
	events, err := s.audit.Query(c.Request().Context(), *filters)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, &models.EventsResponse{Events: events})
}

// tailEventsHandler handles GET /audit/tail, reading the in-memory ring.
// Unlike /audit/events it works even when the database is down.
func (s *Server) tailEventsHandler(c *echo.Context) error {
	filters, err := parseEventFilters(c)
	if err != nil {
		return err
	}
	limit := filters.Limit
	if limit == 0 {
		limit = 100
	}
	events := s.audit.Tail(limit, *filters)
	return c.JSON(http.StatusOK, &models.EventsResponse{Events: events})
}

func parseEventFilters(c *echo.Context) (*models.EventFilters, error) {
	filters := &models.EventFilters{
		EventType: c.QueryParam("event_type"),
		ActorID:   c.QueryParam("actor_id"),
	}
	if raw := c.QueryParam("severity"); raw != "" {
		sev := models.EventSeverity(raw)
		if !models.ValidSeverity(sev) {
			return nil, echo.NewHTTPError(http.StatusBadRequest,
				fmt.Sprintf("invalid severity: %s", raw))
		}
		filters.Severity = sev
	}
	if raw := c.QueryParam("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 {
			return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid limit")
		}
		filters.Limit = v
	}
	if raw := c.QueryParam("offset"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid offset")
		}
		filters.Offset = v
	}
	return filters, nil
}
