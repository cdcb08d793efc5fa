package api

import (
	"io"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/provenance-labs/provd/pkg/models"
	"github.com/provenance-labs/provd/pkg/services"
)

// detectTextHandler handles POST /detect/text.
func (s *Server) detectTextHandler(c *echo.Context) error {
	var req DetectTextRequest
	if err := c.Bind(&req); err != nil {
		return bindError(err)
	}
	if err := s.validate.Struct(&req); err != nil {
		return validationFailed(err, "text field is required")
	}

	res, err := s.detection.DetectText(c.Request().Context(), req.Text, s.requestMeta(c))
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, res)
}

// detectMediaHandler handles the multipart upload endpoints, one per
// modality: POST /detect/{image,audio,video}.
func (s *Server) detectMediaHandler(modality string) echo.HandlerFunc {
	ct := models.ContentType(modality)
	return func(c *echo.Context) error {
		fh, err := c.FormFile("file")
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "multipart field 'file' is required")
		}
		f, err := fh.Open()
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "failed to open uploaded file")
		}
		defer f.Close()

		data, err := io.ReadAll(f)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "failed to read uploaded file")
		}

		res, err := s.detection.DetectMedia(c.Request().Context(), ct, data, fh.Filename, s.requestMeta(c))
		if err != nil {
			return mapServiceError(err)
		}
		return c.JSON(http.StatusOK, res)
	}
}

// detectURLHandler handles POST /detect/url.
func (s *Server) detectURLHandler(c *echo.Context) error {
	var req DetectURLRequest
	if err := c.Bind(&req); err != nil {
		return bindError(err)
	}
	if err := s.validate.Struct(&req); err != nil {
		return validationFailed(err, "url field must be a valid URL")
	}

	res, err := s.detection.DetectURL(c.Request().Context(), req.URL, s.requestMeta(c))
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, res)
}

// batchTextHandler handles POST /batch/text.
func (s *Server) batchTextHandler(c *echo.Context) error {
	var req BatchTextRequest
	if err := c.Bind(&req); err != nil {
		return bindError(err)
	}
	if err := s.validate.Struct(&req); err != nil {
		return validationFailed(err, "items must be a non-empty list of {item_id, text}")
	}

	items := make([]models.BatchTextItem, len(req.Items))
	for i, it := range req.Items {
		items[i] = models.BatchTextItem{ItemID: it.ItemID, Text: it.Text}
	}

	res, err := s.detection.BatchText(c.Request().Context(), items, req.StopOnError, s.requestMeta(c))
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, res)
}

func (s *Server) requestMeta(c *echo.Context) services.RequestMeta {
	clientID, _ := c.Get(clientIDKey).(string)
	return services.RequestMeta{
		ClientID:  clientID,
		RequestID: requestIDFrom(c),
	}
}
