package services

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/provenance-labs/provd/pkg/config"
	"github.com/provenance-labs/provd/pkg/consensus"
	"github.com/provenance-labs/provd/pkg/detector"
	"github.com/provenance-labs/provd/pkg/models"
)

type fakeStore struct {
	records []*models.AnalysisRecord
	err     error
}

func (f *fakeStore) Put(_ context.Context, rec *models.AnalysisRecord) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	rec.AnalysisID = fmt.Sprintf("rec-%d", len(f.records))
	f.records = append(f.records, rec)
	return rec.AnalysisID, nil
}

type fakeAudit struct {
	completed []string
}

func (f *fakeAudit) EmitAnalysisCompleted(analysisID string, _ models.ContentType, _ bool, _ float64, _, _ string) {
	f.completed = append(f.completed, analysisID)
}

type fakeHooks struct {
	events []string
}

func (f *fakeHooks) Enqueue(eventType string, _ any) error {
	f.events = append(f.events, eventType)
	return nil
}

func newTestService(t *testing.T) (*DetectionService, *fakeStore, *fakeAudit, *fakeHooks) {
	t.Helper()
	limits := config.DefaultLimitsConfig()
	engine := consensus.NewEngine(detector.New(limits), config.DefaultConsensusConfig())
	st := &fakeStore{}
	au := &fakeAudit{}
	hooks := &fakeHooks{}
	return NewDetectionService(engine, st, au, hooks, limits), st, au, hooks
}

func machineProse() string {
	return strings.Repeat("the system performs the task and the system performs the task again. ", 20)
}

func TestDetectText_FullPipeline(t *testing.T) {
	s, st, au, hooks := newTestService(t)

	res, err := s.DetectText(context.Background(), machineProse(),
		RequestMeta{ClientID: "client-1", RequestID: "req-1"})
	require.NoError(t, err)

	assert.Equal(t, "rec-0", res.AnalysisID)
	assert.NotEmpty(t, res.Analysis)
	assert.NotEmpty(t, res.Explanation)
	require.NotNil(t, res.Consensus)
	require.Len(t, res.Consensus.Providers, 1)
	assert.Equal(t, "internal", res.Consensus.Providers[0].Provider)

	require.Len(t, st.records, 1)
	rec := st.records[0]
	assert.Equal(t, models.ContentTypeText, rec.ContentType)
	assert.Equal(t, "api", rec.Source)
	assert.Len(t, rec.ContentHash, 64)
	assert.Equal(t, int64(len(machineProse())), rec.InputSize)
	assert.NotEmpty(t, rec.ResultPayload)

	assert.Equal(t, []string{"rec-0"}, au.completed)
	assert.Equal(t, []string{"analysis.completed"}, hooks.events)
}

func TestDetectText_AIVerdictGetsPrediction(t *testing.T) {
	s, _, _, _ := newTestService(t)

	res, err := s.DetectText(context.Background(), machineProse(), RequestMeta{})
	require.NoError(t, err)
	if res.IsAIGenerated {
		require.NotNil(t, res.ModelPrediction, "AI verdicts always carry a prediction")
		assert.Equal(t, "unknown", *res.ModelPrediction)
	}
}

func TestDetectText_ConfidenceIsConsensusProbability(t *testing.T) {
	s, _, _, _ := newTestService(t)

	res, err := s.DetectText(context.Background(), machineProse(), RequestMeta{})
	require.NoError(t, err)
	require.NotNil(t, res.Consensus)

	assert.InDelta(t, res.Consensus.FinalProbability, res.Confidence, 0.0005)
	assert.Equal(t, res.Confidence >= res.Consensus.Threshold, res.IsAIGenerated)
}

func TestDetectText_TooShortIsValidationError(t *testing.T) {
	s, st, _, hooks := newTestService(t)

	_, err := s.DetectText(context.Background(), "too short", RequestMeta{})
	require.Error(t, err)
	assert.True(t, IsValidationError(err))
	assert.Empty(t, st.records, "rejected input is never persisted")
	assert.Empty(t, hooks.events)
}

func TestDetectText_TooLongIsInputTooLarge(t *testing.T) {
	s, _, _, _ := newTestService(t)

	_, err := s.DetectText(context.Background(), strings.Repeat("a", 50001), RequestMeta{})
	require.ErrorIs(t, err, ErrInputTooLarge)
}

func TestDetectMedia_UndecodableImageIsUnsupported(t *testing.T) {
	s, _, _, _ := newTestService(t)

	_, err := s.DetectMedia(context.Background(), models.ContentTypeImage,
		[]byte(strings.Repeat("definitely not an image, just filler bytes. ", 4)), "note.txt", RequestMeta{})
	require.ErrorIs(t, err, ErrUnsupportedMedia)
}

func TestDetectMedia_SizeLimit(t *testing.T) {
	s, _, _, _ := newTestService(t)

	_, err := s.DetectMedia(context.Background(), models.ContentTypeImage,
		make([]byte, 11<<20), "big.png", RequestMeta{})
	require.ErrorIs(t, err, ErrInputTooLarge)
	assert.Contains(t, err.Error(), "10 MiB")
}

func TestDetectMedia_RejectsTextModality(t *testing.T) {
	s, _, _, _ := newTestService(t)

	_, err := s.DetectMedia(context.Background(), models.ContentTypeText,
		[]byte("x"), "x.txt", RequestMeta{})
	require.Error(t, err)
	assert.True(t, IsValidationError(err))
}

func TestDetectURL_HTMLIsStrippedAndAnalyzed(t *testing.T) {
	page := "<html><head><style>body{color:red}</style></head><body>" +
		"<p>" + machineProse() + "</p></body></html>"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, page)
	}))
	defer srv.Close()

	s, st, _, _ := newTestService(t)
	res, err := s.DetectURL(context.Background(), srv.URL, RequestMeta{})
	require.NoError(t, err)
	assert.NotEmpty(t, res.AnalysisID)

	require.Len(t, st.records, 1)
	rec := st.records[0]
	assert.Equal(t, models.ContentTypeText, rec.ContentType)
	assert.Equal(t, "url", rec.Source)
	require.NotNil(t, rec.SourceURL)
	assert.Equal(t, srv.URL, *rec.SourceURL)
}

func TestDetectURL_NotFoundIsInvalidInput(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	s, _, _, _ := newTestService(t)
	_, err := s.DetectURL(context.Background(), srv.URL, RequestMeta{})
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestDetectURL_UnsupportedContentType(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		fmt.Fprint(w, "%PDF-1.7")
	}))
	defer srv.Close()

	s, _, _, _ := newTestService(t)
	_, err := s.DetectURL(context.Background(), srv.URL, RequestMeta{})
	require.ErrorIs(t, err, ErrUnsupportedMedia)
}

func TestDetectURL_RejectsNonHTTPSchemes(t *testing.T) {
	s, _, _, _ := newTestService(t)

	_, err := s.DetectURL(context.Background(), "ftp://example.com/file", RequestMeta{})
	require.Error(t, err)
	assert.True(t, IsValidationError(err))
}

func TestBatchText_MixedResults(t *testing.T) {
	s, st, _, _ := newTestService(t)

	resp, err := s.BatchText(context.Background(), []models.BatchTextItem{
		{ItemID: "a", Text: machineProse()},
		{ItemID: "b", Text: "way too short"},
		{ItemID: "c", Text: machineProse()},
	}, false, RequestMeta{})
	require.NoError(t, err)

	assert.Equal(t, 3, resp.Total)
	assert.Equal(t, 2, resp.Succeeded)
	assert.Equal(t, 1, resp.Failed)
	require.Len(t, resp.Results, 3)
	assert.NotNil(t, resp.Results[0].Result)
	assert.NotEmpty(t, resp.Results[1].Error)
	assert.Nil(t, resp.Results[1].Result)
	assert.Len(t, st.records, 2)
}

func TestBatchText_StopOnError(t *testing.T) {
	s, _, _, _ := newTestService(t)

	resp, err := s.BatchText(context.Background(), []models.BatchTextItem{
		{ItemID: "a", Text: "nope"},
		{ItemID: "b", Text: machineProse()},
	}, true, RequestMeta{})
	require.NoError(t, err)

	assert.Equal(t, 1, resp.Failed)
	assert.Equal(t, 0, resp.Succeeded)
	require.Len(t, resp.Results, 1, "remaining items skipped after first failure")
}

func TestBatchText_TooManyItems(t *testing.T) {
	s, _, _, _ := newTestService(t)

	items := make([]models.BatchTextItem, 51)
	for i := range items {
		items[i] = models.BatchTextItem{ItemID: fmt.Sprintf("i%d", i), Text: machineProse()}
	}
	_, err := s.BatchText(context.Background(), items, false, RequestMeta{})
	require.ErrorIs(t, err, ErrInputTooLarge)
}

func TestStripHTML(t *testing.T) {
	doc := `<html><head><title>T</title><script>var x = "<p>";</script></head>
	<body><h1>Heading</h1><p>First paragraph.</p><p>Second &amp; third.</p></body></html>`

	text := stripHTML(doc)
	assert.Contains(t, text, "First paragraph.")
	assert.Contains(t, text, "Second & third.")
	assert.NotContains(t, text, "<p>")
	assert.NotContains(t, text, "var x")
}
