package probe

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/memohai/provsync/internal/providers"
)

// modelsEndpoint returns the listing URL and auth headers used to probe base
// for model type t. A version segment already present in base is reused.
func modelsEndpoint(t providers.ModelType, base, apiKey string) (string, map[string]string) {
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	switch t {
	case providers.ModelTypeClaude:
		return withVersion(base, "v1") + "/models", map[string]string{
			"x-api-key":         apiKey,
			"anthropic-version": anthropicVersion,
		}
	case providers.ModelTypeGemini:
		return withVersion(base, "v1beta") + "/models", map[string]string{
			"x-goog-api-key": apiKey,
		}
	default:
		return base + "/models", map[string]string{
			"Authorization": "Bearer " + apiKey,
		}
	}
}

func withVersion(base, version string) string {
	last := base[strings.LastIndex(base, "/")+1:]
	if isVersionSegment(last) {
		return base
	}
	return base + "/" + version
}

// isVersionSegment matches v1, v2, v1beta, v1alpha and the like.
func isVersionSegment(s string) bool {
	if len(s) < 2 || s[0] != 'v' || s[1] < '0' || s[1] > '9' {
		return false
	}
	return true
}

func (s *Service) trial(ctx context.Context, t providers.ModelType, base, apiKey string) trialResult {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	url, headers := modelsEndpoint(t, base, apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return trialResult{message: err.Error()}
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := s.client.Do(req)
	latency := time.Since(start).Milliseconds()
	if err != nil {
		return trialResult{latencyMs: latency, message: err.Error()}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	return classifyResponse(resp.StatusCode, latency)
}

// classifyResponse treats any answer below 500 as reachable, except a
// rejected credential.
func classifyResponse(statusCode int, latencyMs int64) trialResult {
	r := trialResult{statusCode: statusCode, latencyMs: latencyMs}
	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		r.message = fmt.Sprintf("authentication rejected (status %d)", statusCode)
	case statusCode >= 500:
		r.message = fmt.Sprintf("unexpected status %d", statusCode)
	default:
		r.ok = true
	}
	return r
}
