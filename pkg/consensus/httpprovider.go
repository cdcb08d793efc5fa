package consensus

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"slices"
	"time"

	"github.com/sony/gobreaker"

	"github.com/provenance-labs/provd/pkg/config"
	"github.com/provenance-labs/provd/pkg/models"
)

// maxProviderResponse caps how much of a provider response body is read.
const maxProviderResponse = 1 << 20

// httpProvider adapts one external HTTP JSON scoring API. A circuit
// breaker short-circuits repeatedly failing providers to unavailable
// votes without waiting out the timeout each round.
type httpProvider struct {
	name       string
	endpoint   string
	apiKey     string
	weight     float64
	modalities []string
	retries    int
	client     *http.Client
	breaker    *gobreaker.CircuitBreaker
}

// newProvider builds the adapter for one configured provider. The c2pa
// provider verifies provenance manifests locally; everything else speaks
// HTTP JSON.
func newProvider(name string, pc *config.ProviderConfig, timeout time.Duration, retryAttempts int) Provider {
	if name == "c2pa" {
		return &c2paProvider{name: name, weight: pc.Weight, modalities: pc.Modalities}
	}
	return &httpProvider{
		name:       name,
		endpoint:   pc.Endpoint,
		apiKey:     os.Getenv(pc.APIKeyEnv),
		weight:     pc.Weight,
		modalities: pc.Modalities,
		retries:    max(retryAttempts, 1),
		client:     &http.Client{Timeout: timeout},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    name,
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
		}),
	}
}

func (p *httpProvider) Name() string    { return p.name }
func (p *httpProvider) Weight() float64 { return p.weight }

// Probe scores the artifact through the provider API. Transient faults are
// retried up to the configured attempts inside one breaker execution, so
// the breaker only counts probes that failed after all retries. All
// remaining faults fold into unavailable or error votes.
func (p *httpProvider) Probe(ctx context.Context, art Artifact) models.ConsensusVote {
	if !p.supports(art.Modality) {
		return failedVote(p.name, p.weight, models.VoteUnsupported, "modality not supported")
	}

	result, err := p.breaker.Execute(func() (any, error) {
		var lastErr error
		for attempt := 0; attempt < p.retries; attempt++ {
			prob, err := p.score(ctx, art)
			if err == nil {
				return prob, nil
			}
			lastErr = err
			if !retryableFault(err) || ctx.Err() != nil {
				break
			}
		}
		return nil, lastErr
	})
	if err != nil {
		return p.faultVote(err)
	}
	prob := result.(float64)
	return okVote(p.name, p.weight, prob, "provider score")
}

// retryableFault reports whether a probe fault is worth retrying: 5xx,
// provider rate limits, and transport faults. Auth and contract problems
// are not.
func retryableFault(err error) bool {
	var statusErr *providerStatusError
	if errors.As(err, &statusErr) {
		return statusErr.status >= 500 || statusErr.status == http.StatusTooManyRequests
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

func (p *httpProvider) supports(modality models.ContentType) bool {
	if len(p.modalities) == 0 {
		return true
	}
	return slices.Contains(p.modalities, string(modality))
}

// providerStatusError marks a non-2xx provider response so faultVote can
// map status codes to vote statuses.
type providerStatusError struct {
	status int
}

func (e *providerStatusError) Error() string {
	return fmt.Sprintf("provider returned status %d", e.status)
}

func (p *httpProvider) score(ctx context.Context, art Artifact) (float64, error) {
	body := map[string]any{
		"modality": string(art.Modality),
		"filename": art.Filename,
	}
	if art.Modality == models.ContentTypeText {
		body["text"] = art.Text
	} else {
		body["content"] = base64.StdEncoding.EncodeToString(art.Data)
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return 0, fmt.Errorf("failed to encode probe request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(payload))
	if err != nil {
		return 0, fmt.Errorf("failed to build probe request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, &providerStatusError{status: resp.StatusCode}
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxProviderResponse))
	if err != nil {
		return 0, fmt.Errorf("failed to read provider response: %w", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return 0, fmt.Errorf("provider returned invalid JSON: %w", err)
	}
	prob, ok := extractProbability(decoded)
	if !ok {
		return 0, fmt.Errorf("provider response carries no probability field")
	}
	return prob, nil
}

// faultVote maps transport and status faults to vote statuses:
// auth and contract problems are provider errors, everything transient
// is unavailable.
func (p *httpProvider) faultVote(err error) models.ConsensusVote {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return failedVote(p.name, p.weight, models.VoteUnavailable, "circuit open")
	}
	var statusErr *providerStatusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.status == http.StatusUnauthorized || statusErr.status == http.StatusForbidden:
			return failedVote(p.name, p.weight, models.VoteError, "authentication rejected")
		case statusErr.status == http.StatusTooManyRequests:
			return failedVote(p.name, p.weight, models.VoteUnavailable, "provider rate limited")
		case statusErr.status >= 500:
			return failedVote(p.name, p.weight, models.VoteUnavailable, statusErr.Error())
		default:
			return failedVote(p.name, p.weight, models.VoteError, statusErr.Error())
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return failedVote(p.name, p.weight, models.VoteUnavailable, "probe timed out")
	}
	return failedVote(p.name, p.weight, models.VoteUnavailable, err.Error())
}

// extractProbability finds the score in the provider response, trying the
// common field spellings and one level of nesting.
func extractProbability(decoded map[string]any) (float64, bool) {
	candidates := []string{"probability", "ai_probability", "score", "ai_score", "confidence"}
	for _, key := range candidates {
		if v, ok := decoded[key]; ok {
			if f, ok := toFloat(v); ok {
				return f, true
			}
		}
	}
	for _, nested := range []string{"result", "data", "prediction"} {
		if child, ok := decoded[nested].(map[string]any); ok {
			if f, ok := extractProbability(child); ok {
				return f, true
			}
		}
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}
