package consensus

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/provenance-labs/provd/pkg/config"
	"github.com/provenance-labs/provd/pkg/models"
)

func newHTTPProvider(t *testing.T, endpoint string) *httpProvider {
	t.Helper()
	p := newProvider("copyleaks", &config.ProviderConfig{
		Weight:   0.8,
		Endpoint: endpoint,
	}, 2*time.Second, 1)
	hp, ok := p.(*httpProvider)
	require.True(t, ok)
	return hp
}

func textArtifact() Artifact {
	return Artifact{Modality: models.ContentTypeText, Text: "sample text under analysis"}
}

func TestHTTPProvider_OKVote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "text", body["modality"])
		assert.NotEmpty(t, body["text"])

		_ = json.NewEncoder(w).Encode(map[string]any{"probability": 0.83})
	}))
	defer srv.Close()

	vote := newHTTPProvider(t, srv.URL).Probe(context.Background(), textArtifact())
	assert.Equal(t, models.VoteOK, vote.Status)
	require.NotNil(t, vote.Probability)
	assert.InDelta(t, 0.83, *vote.Probability, 1e-9)
	assert.Equal(t, 0.8, vote.Weight)
}

func TestHTTPProvider_NestedScoreField(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"result": map[string]any{"score": 1.7},
		})
	}))
	defer srv.Close()

	vote := newHTTPProvider(t, srv.URL).Probe(context.Background(), textArtifact())
	assert.Equal(t, models.VoteOK, vote.Status)
	require.NotNil(t, vote.Probability)
	assert.Equal(t, 1.0, *vote.Probability, "out-of-range scores are clipped")
}

func TestHTTPProvider_ServerErrorIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	vote := newHTTPProvider(t, srv.URL).Probe(context.Background(), textArtifact())
	assert.Equal(t, models.VoteUnavailable, vote.Status)
	assert.Nil(t, vote.Probability)
}

func TestHTTPProvider_AuthRejectionIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	vote := newHTTPProvider(t, srv.URL).Probe(context.Background(), textArtifact())
	assert.Equal(t, models.VoteError, vote.Status)
	assert.Equal(t, "authentication rejected", vote.Rationale)
}

func TestHTTPProvider_RateLimitedIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	vote := newHTTPProvider(t, srv.URL).Probe(context.Background(), textArtifact())
	assert.Equal(t, models.VoteUnavailable, vote.Status)
	assert.Equal(t, "provider rate limited", vote.Rationale)
}

func TestHTTPProvider_MissingProbabilityIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "done"})
	}))
	defer srv.Close()

	vote := newHTTPProvider(t, srv.URL).Probe(context.Background(), textArtifact())
	assert.Equal(t, models.VoteUnavailable, vote.Status)
}

func TestHTTPProvider_RetriesTransientFailures(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"probability": 0.6})
	}))
	defer srv.Close()

	p := newProvider("copyleaks", &config.ProviderConfig{
		Weight:   0.8,
		Endpoint: srv.URL,
	}, 2*time.Second, 3)

	vote := p.Probe(context.Background(), textArtifact())
	require.Equal(t, models.VoteOK, vote.Status)
	require.NotNil(t, vote.Probability)
	assert.InDelta(t, 0.6, *vote.Probability, 1e-9)
	assert.Equal(t, 3, calls)
}

func TestHTTPProvider_AuthRejectionIsNotRetried(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	p := newProvider("copyleaks", &config.ProviderConfig{
		Weight:   0.8,
		Endpoint: srv.URL,
	}, 2*time.Second, 3)

	vote := p.Probe(context.Background(), textArtifact())
	assert.Equal(t, models.VoteError, vote.Status)
	assert.Equal(t, 1, calls)
}

func TestHTTPProvider_BreakerOpensAfterConsecutiveFailures(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := newHTTPProvider(t, srv.URL)
	for i := 0; i < 3; i++ {
		vote := p.Probe(context.Background(), textArtifact())
		assert.Equal(t, models.VoteUnavailable, vote.Status)
	}

	vote := p.Probe(context.Background(), textArtifact())
	assert.Equal(t, models.VoteUnavailable, vote.Status)
	assert.Equal(t, "circuit open", vote.Rationale)
	assert.Equal(t, 3, calls, "open breaker must not hit the provider")
}

func TestHTTPProvider_UnsupportedModality(t *testing.T) {
	p := newProvider("copyleaks", &config.ProviderConfig{
		Weight:     0.8,
		Endpoint:   "https://unused.test",
		Modalities: []string{"text"},
	}, time.Second, 1)

	vote := p.Probe(context.Background(), Artifact{Modality: models.ContentTypeAudio, Data: []byte("x")})
	assert.Equal(t, models.VoteUnsupported, vote.Status)
}

func TestC2PAProvider_Votes(t *testing.T) {
	p := newProvider("c2pa", &config.ProviderConfig{Weight: 0.9}, time.Second, 1)

	t.Run("no manifest is unsupported", func(t *testing.T) {
		vote := p.Probe(context.Background(), Artifact{
			Modality: models.ContentTypeImage,
			Data:     []byte("plain image bytes"),
		})
		assert.Equal(t, models.VoteUnsupported, vote.Status)
	})

	t.Run("ai tool manifest is near certain", func(t *testing.T) {
		vote := p.Probe(context.Background(), Artifact{
			Modality: models.ContentTypeImage,
			Data:     []byte("xxx c2pa yyy trainedAlgorithmicMedia zzz"),
		})
		require.Equal(t, models.VoteOK, vote.Status)
		assert.InDelta(t, 0.98, *vote.Probability, 1e-9)
	})

	t.Run("capture manifest leans human", func(t *testing.T) {
		vote := p.Probe(context.Background(), Artifact{
			Modality: models.ContentTypeImage,
			Data:     []byte("xxx jumb manifest from camera"),
		})
		require.Equal(t, models.VoteOK, vote.Status)
		assert.InDelta(t, 0.05, *vote.Probability, 1e-9)
	})

	t.Run("text unsupported", func(t *testing.T) {
		vote := p.Probe(context.Background(), textArtifact())
		assert.Equal(t, models.VoteUnsupported, vote.Status)
	})
}
