package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	echo "github.com/labstack/echo/v5"

	"github.com/provenance-labs/provd/pkg/scheduler"
	"github.com/provenance-labs/provd/pkg/services"
	"github.com/provenance-labs/provd/pkg/store"
)

// Machine-readable error kinds carried in the envelope's error field so
// clients can branch without parsing detail text.
const (
	kindValidationFailed    = "ValidationFailed"
	kindInputTooLarge       = "InputTooLarge"
	kindRateLimited         = "RateLimited"
	kindSpendCapExceeded    = "SpendCapExceeded"
	kindUnauthenticated     = "Unauthenticated"
	kindDetectorUnavailable = "DetectorUnavailable"
	kindUnsupportedMedia    = "UnsupportedMedia"
	kindNotFound            = "NotFound"
	kindConflict            = "Conflict"
	kindInternalError       = "InternalError"
)

// errorBody rides on an httpError as the typed message the envelope
// handler renders.
type errorBody struct {
	Kind   string
	Detail string
	Fields []FieldError
}

// httpError carries a status code and a typed message for the envelope
// handler; it satisfies echo.HTTPStatusCoder.
type httpError struct {
	Code    int
	Message any
}

func (e *httpError) Error() string {
	return fmt.Sprintf("code=%d, message=%v", e.Code, e.Message)
}

func (e *httpError) StatusCode() int {
	return e.Code
}

// apiError builds an httpError carrying a typed error body.
func apiError(status int, kind, detail string, fields ...FieldError) *httpError {
	return &httpError{Code: status, Message: &errorBody{Kind: kind, Detail: detail, Fields: fields}}
}

// bindError renders an unparseable request body.
func bindError(err error) *httpError {
	return apiError(http.StatusBadRequest, kindValidationFailed, err.Error())
}

// validationFailed renders a struct validation failure as 422 with the
// per-field list.
func validationFailed(err error, detail string) *httpError {
	body := &errorBody{Kind: kindValidationFailed, Detail: detail}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			body.Fields = append(body.Fields, FieldError{
				Field:  strings.ToLower(fe.Field()),
				Detail: fmt.Sprintf("failed %q validation", fe.Tag()),
			})
		}
	}
	return &httpError{Code: http.StatusUnprocessableEntity, Message: body}
}

// mapServiceError maps service-layer errors to HTTP error responses.
func mapServiceError(err error) *httpError {
	var validErr *services.ValidationError
	if errors.As(err, &validErr) {
		return apiError(http.StatusUnprocessableEntity, kindValidationFailed, validErr.Error(),
			FieldError{Field: validErr.Field, Detail: validErr.Message})
	}
	switch {
	case errors.Is(err, services.ErrNotFound), errors.Is(err, store.ErrNotFound):
		return apiError(http.StatusNotFound, kindNotFound, "resource not found")
	case errors.Is(err, services.ErrInputTooLarge):
		return apiError(http.StatusRequestEntityTooLarge, kindInputTooLarge, err.Error())
	case errors.Is(err, services.ErrInvalidInput):
		return apiError(http.StatusBadRequest, kindValidationFailed, err.Error())
	case errors.Is(err, services.ErrUnsupportedMedia):
		return apiError(http.StatusUnsupportedMediaType, kindUnsupportedMedia, err.Error())
	case errors.Is(err, services.ErrDetectorUnavailable):
		return apiError(http.StatusServiceUnavailable, kindDetectorUnavailable, "detector unavailable")
	case errors.Is(err, scheduler.ErrDisabled):
		return apiError(http.StatusConflict, kindConflict, "scheduler is disabled")
	case errors.Is(err, scheduler.ErrUnknownJob):
		return apiError(http.StatusNotFound, kindNotFound, err.Error())
	case errors.Is(err, scheduler.ErrJobRunning):
		return apiError(http.StatusConflict, kindConflict, err.Error())
	case errors.Is(err, scheduler.ErrBudgetExhausted):
		return apiError(http.StatusTooManyRequests, kindSpendCapExceeded,
			"monthly request budget exhausted")
	}

	// Unexpected error
	slog.Error("Unexpected service error", "error", err)
	return apiError(http.StatusInternalServerError, kindInternalError, "internal server error")
}

// kindForStatus supplies the kind for errors raised without a typed body,
// echo's own routing errors included.
func kindForStatus(status int) string {
	switch status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return kindValidationFailed
	case http.StatusUnauthorized:
		return kindUnauthenticated
	case http.StatusNotFound:
		return kindNotFound
	case http.StatusRequestEntityTooLarge:
		return kindInputTooLarge
	case http.StatusUnsupportedMediaType:
		return kindUnsupportedMedia
	case http.StatusConflict, http.StatusMethodNotAllowed:
		return kindConflict
	case http.StatusTooManyRequests:
		return kindRateLimited
	case http.StatusServiceUnavailable:
		return kindDetectorUnavailable
	}
	return kindInternalError
}

// errorEnvelopeHandler renders every error as the standard envelope.
func errorEnvelopeHandler(c *echo.Context, err error) {
	if resp, rerr := echo.UnwrapResponse(c.Response()); rerr == nil && resp.Committed {
		return
	}

	status := http.StatusInternalServerError
	body := &errorBody{}
	var he *httpError
	var ehe *echo.HTTPError
	if errors.As(err, &he) {
		status = he.Code
		switch m := he.Message.(type) {
		case *errorBody:
			body = m
		default:
			body.Detail = fmt.Sprintf("%v", m)
		}
	} else if errors.As(err, &ehe) {
		status = ehe.Code
		body.Detail = ehe.Message
	}
	if body.Kind == "" {
		body.Kind = kindForStatus(status)
	}

	resp := &ErrorResponse{
		Error:      body.Kind,
		Detail:     body.Detail,
		Fields:     body.Fields,
		StatusCode: status,
		RequestID:  requestIDFrom(c),
		Path:       c.Request().URL.Path,
	}
	if jsonErr := c.JSON(status, resp); jsonErr != nil {
		slog.Error("Failed to write error response", "error", jsonErr)
	}
}
