package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/provenance-labs/provd/pkg/models"
	"github.com/provenance-labs/provd/pkg/store"
)

// listHistoryHandler handles GET /analyze/history.
func (s *Server) listHistoryHandler(c *echo.Context) error {
	filters, err := parseRecordFilters(c)
	if err != nil {
		return err
	}
	res, err := s.store.List(c.Request().Context(), *filters)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, res)
}

// getAnalysisHandler handles GET /analyze/history/:id.
func (s *Server) getAnalysisHandler(c *echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "analysis id is required")
	}
	rec, err := s.store.Get(c.Request().Context(), id)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, rec)
}

// dashboardHandler handles GET /analyze/dashboard.
func (s *Server) dashboardHandler(c *echo.Context) error {
	days := 30
	if raw := c.QueryParam("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 90 {
			return echo.NewHTTPError(http.StatusBadRequest, "days must be between 1 and 90")
		}
		days = parsed
	}
	dash, err := s.store.Dashboard(c.Request().Context(), days)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, dash)
}

// exportHandler handles GET /analyze/export, streaming CSV or JSON.
func (s *Server) exportHandler(c *echo.Context) error {
	format := store.ExportFormat(c.QueryParam("format"))
	if format == "" {
		format = store.ExportCSV
	}
	if !store.ValidExportFormat(format) {
		return echo.NewHTTPError(http.StatusBadRequest, "format must be csv or json")
	}
	filters, err := parseRecordFilters(c)
	if err != nil {
		return err
	}

	contentType := "text/csv"
	if format == store.ExportJSON {
		contentType = "application/json"
	}
	c.Response().Header().Set("Content-Type", contentType)
	c.Response().Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=analyses-%s.%s", time.Now().UTC().Format("2006-01-02"), format))
	c.Response().WriteHeader(http.StatusOK)

	_, err = s.store.Export(c.Request().Context(), c.Response(), format, *filters)
	return err
}

func parseRecordFilters(c *echo.Context) (*models.RecordFilters, error) {
	filters := &models.RecordFilters{}

	if ct := c.QueryParam("content_type"); ct != "" {
		if !models.ValidContentType(models.ContentType(ct)) {
			return nil, echo.NewHTTPError(http.StatusBadRequest,
				fmt.Sprintf("invalid content_type: %s", ct))
		}
		filters.ContentType = models.ContentType(ct)
	}
	filters.Source = c.QueryParam("source")

	if raw := c.QueryParam("is_ai_generated"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid is_ai_generated")
		}
		filters.IsAIGenerated = &v
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
	for param, dst := range map[string]**time.Time{
		"created_after":  &filters.CreatedAfter,
		"created_before": &filters.CreatedBefore,
	} {
		if raw := c.QueryParam(param); raw != "" {
			ts, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				return nil, echo.NewHTTPError(http.StatusBadRequest,
					fmt.Sprintf("invalid %s, expected RFC3339", param))
			}
			*dst = &ts
		}
	}
	return filters, nil
}
