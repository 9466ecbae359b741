// Package probe measures candidate base URLs of a provider and can switch
// the provider to the fastest one.
package probe

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	cache "github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"github.com/memohai/provsync/internal/providers"
)

// Registry is the part of the provider registry the prober needs.
type Registry interface {
	Get(ctx context.Context, name string) (providers.Provider, error)
	ReplaceEndpoints(ctx context.Context, name string, fn providers.EndpointUpdate) (providers.Provider, error)
}

type Options struct {
	Trials      int
	Timeout     time.Duration
	MinInterval time.Duration
	CacheTTL    time.Duration
	Client      *http.Client
}

type Service struct {
	registry    Registry
	client      *http.Client
	trials      int
	timeout     time.Duration
	minInterval time.Duration
	results     *cache.Cache
	logger      *slog.Logger
	now         func() time.Time
}

func NewService(log *slog.Logger, registry Registry, opts Options) *Service {
	if opts.Trials <= 0 {
		opts.Trials = DefaultTrials
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 8 * time.Second
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 10 * time.Minute
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{}
	}
	return &Service{
		registry:    registry,
		client:      client,
		trials:      opts.Trials,
		timeout:     opts.Timeout,
		minInterval: opts.MinInterval,
		results:     cache.New(opts.CacheTTL, 2*opts.CacheTTL),
		logger:      log.With(slog.String("service", "probe")),
		now:         time.Now,
	}
}

func (s *Service) validate(req TestRequest) error {
	if strings.TrimSpace(req.APIKey) == "" {
		return &providers.ValidationError{Field: "api_key", Reason: "is required"}
	}
	if !req.ModelType.Valid() {
		return &providers.ValidationError{Field: "model_type", Reason: fmt.Sprintf("must be one of claude, codex, gemini (got %q)", req.ModelType)}
	}
	if len(req.URLs) == 0 {
		return &providers.ValidationError{Field: "urls", Reason: "at least one url is required"}
	}
	for _, u := range req.URLs {
		if strings.TrimSpace(u) == "" {
			return &providers.ValidationError{Field: "urls", Reason: "url must not be empty"}
		}
	}
	if req.TrialCount < 0 || req.TrialCount > MaxTrials {
		return &providers.ValidationError{Field: "trial_count", Reason: fmt.Sprintf("must be between 1 and %d", MaxTrials)}
	}
	return nil
}

// TestURLs probes every URL concurrently; the trials of one URL run in
// sequence. Results keep the input order. Unreachable URLs are reported in
// their result, never as an error.
func (s *Service) TestURLs(ctx context.Context, req TestRequest) (ProviderURLsTestResult, error) {
	if err := s.validate(req); err != nil {
		return ProviderURLsTestResult{}, err
	}
	trials := req.TrialCount
	if trials == 0 {
		trials = s.trials
	}

	results := make([]URLTestResult, len(req.URLs))
	var wg sync.WaitGroup
	for i, u := range req.URLs {
		wg.Add(1)
		go func(idx int, url string) {
			defer wg.Done()
			results[idx] = s.testURL(ctx, req.ModelType, strings.TrimSpace(url), req.APIKey, trials)
		}(i, u)
	}
	wg.Wait()

	out := ProviderURLsTestResult{ProviderName: req.ProviderName, Results: results}
	if idx := fastest(results); idx >= 0 {
		url := results[idx].URL
		latency := *results[idx].LatencyMs
		out.FastestURL = &url
		out.FastestLatencyMs = &latency
	}
	// An interrupted run says nothing about the URLs; keep the last real one.
	if req.ProviderName != "" && ctx.Err() == nil {
		s.results.SetDefault(req.ProviderName, out)
	}
	s.logger.Info("urls tested",
		slog.String("provider", req.ProviderName),
		slog.Int("urls", len(results)),
		slog.Int("trials", trials),
	)
	return out, nil
}

func (s *Service) testURL(ctx context.Context, t providers.ModelType, url, apiKey string, trials int) URLTestResult {
	limit := rate.Inf
	if s.minInterval > 0 {
		limit = rate.Every(s.minInterval)
	}
	limiter := rate.NewLimiter(limit, 1)

	res := URLTestResult{URL: url, Trials: trials}
	var okLatencies []int64
	var fastestFailed *int64
	for i := 0; i < trials; i++ {
		if err := limiter.Wait(ctx); err != nil {
			res.ErrorMessage = err.Error()
			break
		}
		tr := s.trial(ctx, t, url, apiKey)
		res.StatusCode = tr.statusCode
		if tr.ok {
			okLatencies = append(okLatencies, tr.latencyMs)
			continue
		}
		res.ErrorMessage = tr.message
		if fastestFailed == nil || tr.latencyMs < *fastestFailed {
			v := tr.latencyMs
			fastestFailed = &v
		}
	}
	res.TestedAt = s.now().UTC()
	res.Successes = len(okLatencies)
	if len(okLatencies) == 0 {
		var latency int64
		if fastestFailed != nil {
			latency = *fastestFailed
		}
		res.LatencyMs = &latency
		res.Quality = providers.QualityFailed
		if res.ErrorMessage == "" {
			res.ErrorMessage = "no successful trial"
		}
		return res
	}
	median := Median(okLatencies)
	res.LatencyMs = &median
	res.Quality = providers.QualityFor(median, true)
	res.Success = true
	res.ErrorMessage = ""
	return res
}

// Median returns the median of values; for an even count it is the lower of
// the two middle values.
func Median(values []int64) int64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]int64(nil), values...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	return sorted[(len(sorted)-1)/2]
}

// fastest returns the index of the successful result with the lowest
// latency, the earliest on ties, or -1.
func fastest(results []URLTestResult) int {
	best := -1
	for i, r := range results {
		if !r.Success || r.LatencyMs == nil {
			continue
		}
		if best < 0 || *r.LatencyMs < *results[best].LatencyMs {
			best = i
		}
	}
	return best
}

// LastResult returns the most recent test of the named provider, if it is
// still cached.
func (s *Service) LastResult(name string) (ProviderURLsTestResult, bool) {
	v, ok := s.results.Get(name)
	if !ok {
		return ProviderURLsTestResult{}, false
	}
	res, ok := v.(ProviderURLsTestResult)
	return res, ok
}

// TestAndAutoSelectFastest probes every base URL of the named provider,
// records each measurement and switches the active URL to the fastest
// successful one. Candidates are never removed. When no URL succeeds the
// active URL stays as it is.
func (s *Service) TestAndAutoSelectFastest(ctx context.Context, name string, trials int) (AutoSelectResult, error) {
	p, err := s.registry.Get(ctx, name)
	if err != nil {
		return AutoSelectResult{}, err
	}
	test, err := s.TestURLs(ctx, TestRequest{
		ProviderName: p.Name,
		URLs:         p.URLs(),
		APIKey:       p.APIKey,
		ModelType:    p.ModelType,
		TrialCount:   trials,
	})
	if err != nil {
		return AutoSelectResult{}, err
	}
	if err := ctx.Err(); err != nil {
		return AutoSelectResult{Test: test}, fmt.Errorf("auto-select %s: %w", name, err)
	}

	measured := make(map[string]URLTestResult, len(test.Results))
	for _, r := range test.Results {
		measured[r.URL] = r
	}
	previous := p.BaseURL
	updated, err := s.registry.ReplaceEndpoints(ctx, name, func(current providers.Provider) ([]providers.BaseURLRecord, string, error) {
		records := make([]providers.BaseURLRecord, 0, len(current.BaseURLs))
		for _, rec := range current.BaseURLs {
			if r, ok := measured[rec.URL]; ok {
				latency := *r.LatencyMs
				tested := r.TestedAt
				rec.LatencyMs = &latency
				rec.LastTested = &tested
				rec.Quality = r.Quality
			}
			records = append(records, rec)
		}
		active := current.BaseURL
		if test.FastestURL != nil && current.HasURL(*test.FastestURL) {
			active = *test.FastestURL
		}
		return records, active, nil
	})
	if err != nil {
		return AutoSelectResult{Test: test}, err
	}
	switched := updated.BaseURL != previous
	if switched {
		s.logger.Info("active url switched", slog.String("provider", name), slog.String("from", previous), slog.String("to", updated.BaseURL))
	}
	return AutoSelectResult{Test: test, Provider: providers.Masked(updated), Switched: switched}, nil
}
