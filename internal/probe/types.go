package probe

import (
	"time"

	"github.com/memohai/provsync/internal/providers"
)

const (
	DefaultTrials = 3
	MaxTrials     = 10

	anthropicVersion = "2023-06-01"
)

// TestRequest asks for every URL to be probed trial_count times with the
// same credentials.
type TestRequest struct {
	ProviderName string              `json:"provider_name"`
	URLs         []string            `json:"urls"`
	APIKey       string              `json:"api_key"`
	ModelType    providers.ModelType `json:"model_type"`
	TrialCount   int                 `json:"trial_count,omitempty"`
}

// URLTestResult is the measurement of one URL. LatencyMs is the median of
// successful trials; when every trial failed it is the fastest failed
// trial's wall time and Quality is failed.
type URLTestResult struct {
	URL          string            `json:"url"`
	LatencyMs    *int64            `json:"latency_ms"`
	Quality      providers.Quality `json:"quality"`
	Success      bool              `json:"success"`
	Successes    int               `json:"successes"`
	Trials       int               `json:"trials"`
	StatusCode   int               `json:"status_code,omitempty"`
	ErrorMessage string            `json:"error_message,omitempty"`
	TestedAt     time.Time         `json:"tested_at"`
}

// ProviderURLsTestResult holds results in input order. FastestURL is nil
// when no URL succeeded.
type ProviderURLsTestResult struct {
	ProviderName     string          `json:"provider_name"`
	Results          []URLTestResult `json:"results"`
	FastestURL       *string         `json:"fastest_url"`
	FastestLatencyMs *int64          `json:"fastest_latency_ms"`
}

type AutoSelectRequest struct {
	TrialCount int `json:"trial_count,omitempty"`
}

// AutoSelectResult reports a probe run and the registry state it committed.
type AutoSelectResult struct {
	Test     ProviderURLsTestResult `json:"test"`
	Provider providers.Provider     `json:"provider"`
	Switched bool                   `json:"switched"`
}

type trialResult struct {
	ok         bool
	latencyMs  int64
	statusCode int
	message    string
}
