package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	echo "github.com/labstack/echo/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/provenance-labs/provd/pkg/config"
	"github.com/provenance-labs/provd/pkg/models"
)

func postJSON(e *echo.Echo, path, body string) (*echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func machineProse() string {
	return strings.Repeat("the system performs the task and the system performs the task again. ", 20)
}

func TestDetectTextHandler_Validation(t *testing.T) {
	s := newValidationServer()

	tests := []struct {
		name string
		body string
		want int
	}{
		{name: "missing text", body: `{}`, want: http.StatusUnprocessableEntity},
		{name: "empty text", body: `{"text":""}`, want: http.StatusUnprocessableEntity},
		{name: "malformed json", body: `{not json`, want: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			c, _ := postJSON(e, "/detect/text", tt.body)

			err := s.detectTextHandler(c)
			require.Error(t, err)
			he, ok := err.(*httpError)
			require.True(t, ok, "expected httpError")
			assert.Equal(t, tt.want, he.Code)
		})
	}
}

func TestDetectTextHandler_ValidationListsFields(t *testing.T) {
	s := newValidationServer()

	e := echo.New()
	c, _ := postJSON(e, "/detect/text", `{}`)

	err := s.detectTextHandler(c)
	require.Error(t, err)
	he, ok := err.(*httpError)
	require.True(t, ok)

	body, ok := he.Message.(*errorBody)
	require.True(t, ok, "expected typed error body")
	assert.Equal(t, "ValidationFailed", body.Kind)
	require.NotEmpty(t, body.Fields)
	assert.Equal(t, "text", body.Fields[0].Field)
}

func TestDetectURLHandler_Validation(t *testing.T) {
	s := newValidationServer()

	e := echo.New()
	c, _ := postJSON(e, "/detect/url", `{"url":"not a url"}`)

	err := s.detectURLHandler(c)
	require.Error(t, err)
	he, ok := err.(*httpError)
	require.True(t, ok)
	assert.Equal(t, http.StatusUnprocessableEntity, he.Code)
}

func TestBatchTextHandler_Validation(t *testing.T) {
	s := newValidationServer()

	tests := []struct {
		name string
		body string
	}{
		{name: "missing items", body: `{}`},
		{name: "empty items", body: `{"items":[]}`},
		{name: "item without id", body: `{"items":[{"text":"hello"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			c, _ := postJSON(e, "/batch/text", tt.body)

			err := s.batchTextHandler(c)
			require.Error(t, err)
			he, ok := err.(*httpError)
			require.True(t, ok)
			assert.Equal(t, http.StatusUnprocessableEntity, he.Code)
		})
	}
}

func TestDetectMediaHandler_MissingFile(t *testing.T) {
	s := newValidationServer()

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/detect/image", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := s.detectMediaHandler("image")(c)
	require.Error(t, err)
	he, ok := err.(*echo.HTTPError)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadRequest, he.Code)
	assert.Contains(t, he.Message, "file")
}

func TestDetectText_FullRoute(t *testing.T) {
	cfg := testAPIConfig(t)
	s, mock := newWiredServer(t, cfg)

	mock.ExpectExec("INSERT INTO analysis_records").
		WillReturnResult(sqlmock.NewResult(0, 1))

	body, _ := json.Marshal(map[string]string{"text": machineProse()})
	req := httptest.NewRequest(http.MethodPost, "/detect/text", bytes.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.RemoteAddr = "10.0.0.1:54321"
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	var res models.DetectionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.NotEmpty(t, res.AnalysisID)
	require.NotNil(t, res.Consensus)
	require.Len(t, res.Consensus.Providers, 1)
	assert.Equal(t, "internal", res.Consensus.Providers[0].Provider)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDetectText_TooShortReturnsEnvelope(t *testing.T) {
	cfg := testAPIConfig(t)
	s, _ := newWiredServer(t, cfg)

	req := httptest.NewRequest(http.MethodPost, "/detect/text", strings.NewReader(`{"text":"short"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.RemoteAddr = "10.0.0.1:54321"
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var envelope ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, "ValidationFailed", envelope.Error)
	assert.Equal(t, http.StatusUnprocessableEntity, envelope.StatusCode)
	assert.Equal(t, "/detect/text", envelope.Path)
	assert.NotEmpty(t, envelope.RequestID)
	assert.Contains(t, envelope.Detail, "at least 50")
	require.Len(t, envelope.Fields, 1)
	assert.Equal(t, "text", envelope.Fields[0].Field)
}

func TestDetect_RequiresAPIKeyWhenConfigured(t *testing.T) {
	cfg := testAPIConfig(t)
	cfg.Auth.RequireAPIKey = true
	cfg.Auth.APIKeys = []string{"secret-key"}
	s, mock := newWiredServer(t, cfg)

	t.Run("missing key", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/detect/text", strings.NewReader(`{"text":"x"}`))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := httptest.NewRecorder()
		s.Echo().ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("wrong key", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/detect/text", strings.NewReader(`{"text":"x"}`))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		req.Header.Set("X-API-Key", "wrong")
		rec := httptest.NewRecorder()
		s.Echo().ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("valid key", func(t *testing.T) {
		mock.ExpectExec("INSERT INTO analysis_records").
			WillReturnResult(sqlmock.NewResult(0, 1))

		body, _ := json.Marshal(map[string]string{"text": machineProse()})
		req := httptest.NewRequest(http.MethodPost, "/detect/text", bytes.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		req.Header.Set("X-API-Key", "secret-key")
		rec := httptest.NewRecorder()
		s.Echo().ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	})
}

func TestDetect_RateLimitExhaustionReturns429(t *testing.T) {
	cfg := testAPIConfig(t)
	cfg.RateLimit.Buckets["text"] = config.BucketConfig{Requests: 1, WindowSeconds: 60}
	s, mock := newWiredServer(t, cfg)

	body, _ := json.Marshal(map[string]string{"text": machineProse()})

	mock.ExpectExec("INSERT INTO analysis_records").
		WillReturnResult(sqlmock.NewResult(0, 1))
	req := httptest.NewRequest(http.MethodPost, "/detect/text", bytes.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.RemoteAddr = "10.0.0.1:1111"
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	req = httptest.NewRequest(http.MethodPost, "/detect/text", bytes.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.RemoteAddr = "10.0.0.1:2222"
	rec = httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)

	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	var envelope ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, "RateLimited", envelope.Error)
	assert.Contains(t, envelope.Detail, "text")
}

func TestDetect_SpendCapExhaustionReturns429(t *testing.T) {
	cfg := testAPIConfig(t)
	cfg.RateLimit.DailySpendCap = 0
	s, _ := newWiredServer(t, cfg)

	body, _ := json.Marshal(map[string]string{"text": machineProse()})
	req := httptest.NewRequest(http.MethodPost, "/detect/text", bytes.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.RemoteAddr = "10.0.0.9:1111"
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)

	require.Equal(t, http.StatusTooManyRequests, rec.Code, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	var envelope ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, "SpendCapExceeded", envelope.Error)
}

func TestDetectText_OversizeReturns413(t *testing.T) {
	cfg := testAPIConfig(t)
	cfg.Limits.MaxTextLength = 100
	s, _ := newWiredServer(t, cfg)

	body, _ := json.Marshal(map[string]string{"text": strings.Repeat("a", 101)})
	req := httptest.NewRequest(http.MethodPost, "/detect/text", bytes.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.RemoteAddr = "10.0.0.1:54321"
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)

	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code, rec.Body.String())

	var envelope ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, "InputTooLarge", envelope.Error)
}
