package probe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memohai/provsync/internal/logger"
	"github.com/memohai/provsync/internal/providers"
)

func delayed(d time.Duration, status int) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(d)
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"data":[]}`))
	}))
}

func newService(reg Registry) *Service {
	return NewService(logger.Discard(), reg, Options{Timeout: 2 * time.Second})
}

func newRegistry(t *testing.T) *providers.Service {
	t.Helper()
	return providers.NewService(logger.Discard(), providers.NewJSONStore(filepath.Join(t.TempDir(), "registry.json")))
}

func TestTestURLsOrderAndFastest(t *testing.T) {
	slow := delayed(80*time.Millisecond, http.StatusOK)
	defer slow.Close()
	fast := delayed(0, http.StatusOK)
	defer fast.Close()

	svc := newService(nil)
	res, err := svc.TestURLs(context.Background(), TestRequest{
		ProviderName: "relay",
		URLs:         []string{slow.URL, fast.URL},
		APIKey:       "sk-test",
		ModelType:    providers.ModelTypeCodex,
		TrialCount:   2,
	})
	require.NoError(t, err)
	require.Len(t, res.Results, 2)
	assert.Equal(t, slow.URL, res.Results[0].URL)
	assert.Equal(t, fast.URL, res.Results[1].URL)
	for _, r := range res.Results {
		assert.True(t, r.Success)
		assert.Equal(t, 2, r.Successes)
		require.NotNil(t, r.LatencyMs)
		assert.NotEqual(t, providers.QualityUntested, r.Quality)
	}
	require.NotNil(t, res.FastestURL)
	assert.Equal(t, fast.URL, *res.FastestURL)
	assert.Equal(t, *res.Results[1].LatencyMs, *res.FastestLatencyMs)

	cached, ok := svc.LastResult("relay")
	require.True(t, ok)
	assert.Equal(t, res, cached)
	_, ok = svc.LastResult("other")
	assert.False(t, ok)
}

func TestCanceledRunKeepsLastResult(t *testing.T) {
	srv := delayed(0, http.StatusOK)
	defer srv.Close()
	svc := newService(nil)
	req := TestRequest{
		ProviderName: "relay",
		URLs:         []string{srv.URL},
		ModelType:    providers.ModelTypeCodex,
		TrialCount:   1,
	}
	first, err := svc.TestURLs(context.Background(), req)
	require.NoError(t, err)
	require.True(t, first.Results[0].Success)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = svc.TestURLs(ctx, req)
	require.NoError(t, err)

	cached, ok := svc.LastResult("relay")
	require.True(t, ok)
	assert.Equal(t, first, cached)
}

func TestFailedURLKeepsLatency(t *testing.T) {
	denied := delayed(0, http.StatusUnauthorized)
	defer denied.Close()
	broken := delayed(0, http.StatusBadGateway)
	defer broken.Close()

	res, err := newService(nil).TestURLs(context.Background(), TestRequest{
		URLs:       []string{denied.URL, broken.URL, "http://127.0.0.1:1"},
		APIKey:     "sk-test",
		ModelType:  providers.ModelTypeClaude,
		TrialCount: 1,
	})
	require.NoError(t, err)
	for _, r := range res.Results {
		assert.False(t, r.Success)
		assert.Equal(t, providers.QualityFailed, r.Quality)
		require.NotNil(t, r.LatencyMs)
		assert.NotEmpty(t, r.ErrorMessage)
	}
	assert.Contains(t, res.Results[0].ErrorMessage, "authentication rejected")
	assert.Nil(t, res.FastestURL)
	assert.Nil(t, res.FastestLatencyMs)
}

func TestClientErrorsCountAsReachable(t *testing.T) {
	notFound := delayed(0, http.StatusNotFound)
	defer notFound.Close()
	res, err := newService(nil).TestURLs(context.Background(), TestRequest{
		URLs: []string{notFound.URL}, APIKey: "k", ModelType: providers.ModelTypeGemini, TrialCount: 1,
	})
	require.NoError(t, err)
	assert.True(t, res.Results[0].Success)
	assert.Equal(t, http.StatusNotFound, res.Results[0].StatusCode)
}

func TestRequestShapePerModelType(t *testing.T) {
	var gotPath, gotKey, gotVersion, gotAuth, gotGoog atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath.Store(r.URL.Path)
		gotKey.Store(r.Header.Get("x-api-key"))
		gotVersion.Store(r.Header.Get("anthropic-version"))
		gotAuth.Store(r.Header.Get("Authorization"))
		gotGoog.Store(r.Header.Get("x-goog-api-key"))
	}))
	defer srv.Close()
	svc := newService(nil)
	ctx := context.Background()

	_, err := svc.TestURLs(ctx, TestRequest{URLs: []string{srv.URL}, APIKey: "ak", ModelType: providers.ModelTypeClaude, TrialCount: 1})
	require.NoError(t, err)
	assert.Equal(t, "/v1/models", gotPath.Load())
	assert.Equal(t, "ak", gotKey.Load())
	assert.Equal(t, anthropicVersion, gotVersion.Load())

	_, err = svc.TestURLs(ctx, TestRequest{URLs: []string{srv.URL + "/v1/"}, APIKey: "ok", ModelType: providers.ModelTypeCodex, TrialCount: 1})
	require.NoError(t, err)
	assert.Equal(t, "/v1/models", gotPath.Load())
	assert.Equal(t, "Bearer ok", gotAuth.Load())

	_, err = svc.TestURLs(ctx, TestRequest{URLs: []string{srv.URL}, APIKey: "gk", ModelType: providers.ModelTypeGemini, TrialCount: 1})
	require.NoError(t, err)
	assert.Equal(t, "/v1beta/models", gotPath.Load())
	assert.Equal(t, "gk", gotGoog.Load())
}

func TestModelsEndpointReusesVersion(t *testing.T) {
	url, _ := modelsEndpoint(providers.ModelTypeClaude, "https://api.anthropic.com/v1", "k")
	assert.Equal(t, "https://api.anthropic.com/v1/models", url)
	url, _ = modelsEndpoint(providers.ModelTypeGemini, "https://g.example.com/v1beta/", "k")
	assert.Equal(t, "https://g.example.com/v1beta/models", url)
	url, _ = modelsEndpoint(providers.ModelTypeGemini, "https://g.example.com/gemini", "k")
	assert.Equal(t, "https://g.example.com/gemini/v1beta/models", url)
	url, _ = modelsEndpoint(providers.ModelTypeCodex, "https://relay.example.com/openai", "k")
	assert.Equal(t, "https://relay.example.com/openai/models", url)
}

func TestValidation(t *testing.T) {
	svc := newService(nil)
	ctx := context.Background()
	cases := map[string]TestRequest{
		"api_key":     {URLs: []string{"http://x"}, ModelType: providers.ModelTypeCodex},
		"model_type":  {URLs: []string{"http://x"}, APIKey: "k", ModelType: "llama"},
		"urls":        {APIKey: "k", ModelType: providers.ModelTypeCodex},
		"trial_count": {URLs: []string{"http://x"}, APIKey: "k", ModelType: providers.ModelTypeCodex, TrialCount: MaxTrials + 1},
	}
	for field, req := range cases {
		_, err := svc.TestURLs(ctx, req)
		var verr *providers.ValidationError
		require.ErrorAs(t, err, &verr, field)
		assert.Equal(t, field, verr.Field)
	}
}

func TestMedian(t *testing.T) {
	assert.Equal(t, int64(0), Median(nil))
	assert.Equal(t, int64(7), Median([]int64{7}))
	assert.Equal(t, int64(20), Median([]int64{30, 10, 20}))
	assert.Equal(t, int64(20), Median([]int64{40, 10, 20, 30}))
}

func TestFastestTieGoesToInputOrder(t *testing.T) {
	ms := func(v int64) *int64 { return &v }
	results := []URLTestResult{
		{URL: "a", LatencyMs: ms(50), Quality: providers.QualityFailed},
		{URL: "b", LatencyMs: ms(120), Success: true},
		{URL: "c", LatencyMs: ms(120), Success: true},
		{URL: "d", LatencyMs: ms(300), Success: true},
	}
	assert.Equal(t, 1, fastest(results))
	assert.Equal(t, -1, fastest(results[:1]))
}

func TestAutoSelectSwitchesToFastest(t *testing.T) {
	u1 := delayed(340*time.Millisecond, http.StatusOK)
	defer u1.Close()
	u2 := delayed(120*time.Millisecond, http.StatusOK)
	defer u2.Close()

	ctx := context.Background()
	reg := newRegistry(t)
	_, err := reg.Create(ctx, providers.Provider{
		Name:      "relay",
		APIKey:    "sk-relay",
		BaseURL:   u1.URL,
		BaseURLs:  []providers.BaseURLRecord{providers.NewRecord(u1.URL), providers.NewRecord(u2.URL)},
		ModelType: providers.ModelTypeClaude,
		Enabled:   true,
	})
	require.NoError(t, err)

	svc := newService(reg)
	res, err := svc.TestAndAutoSelectFastest(ctx, "relay", 1)
	require.NoError(t, err)
	assert.True(t, res.Switched)
	assert.Equal(t, u2.URL, res.Provider.BaseURL)
	assert.NotEqual(t, "sk-relay", res.Provider.APIKey)

	p, err := reg.Get(ctx, "relay")
	require.NoError(t, err)
	assert.Equal(t, u2.URL, p.BaseURL)
	require.Len(t, p.BaseURLs, 2)
	assert.Equal(t, u1.URL, p.BaseURLs[0].URL)
	assert.Equal(t, providers.QualityGood, p.BaseURLs[0].Quality)
	assert.Equal(t, providers.QualityExcellent, p.BaseURLs[1].Quality)
	for _, rec := range p.BaseURLs {
		assert.NotNil(t, rec.LatencyMs)
		assert.NotNil(t, rec.LastTested)
	}
}

func TestAutoSelectKeepsActiveWhenAllFail(t *testing.T) {
	down := delayed(0, http.StatusServiceUnavailable)
	defer down.Close()

	ctx := context.Background()
	reg := newRegistry(t)
	_, err := reg.Create(ctx, providers.Provider{
		Name:      "relay",
		APIKey:    "sk-relay",
		BaseURL:   "http://127.0.0.1:1",
		BaseURLs:  []providers.BaseURLRecord{providers.NewRecord("http://127.0.0.1:1"), providers.NewRecord(down.URL)},
		ModelType: providers.ModelTypeCodex,
		Enabled:   true,
	})
	require.NoError(t, err)

	res, err := newService(reg).TestAndAutoSelectFastest(ctx, "relay", 1)
	require.NoError(t, err)
	assert.False(t, res.Switched)
	assert.Nil(t, res.Test.FastestURL)

	p, err := reg.Get(ctx, "relay")
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:1", p.BaseURL)
	for _, rec := range p.BaseURLs {
		assert.Equal(t, providers.QualityFailed, rec.Quality)
		assert.NotNil(t, rec.LatencyMs)
	}
}

func TestAutoSelectUnknownProvider(t *testing.T) {
	_, err := newService(newRegistry(t)).TestAndAutoSelectFastest(context.Background(), "ghost", 0)
	assert.ErrorIs(t, err, providers.ErrNotFound)
}

type countingRegistry struct {
	p        providers.Provider
	replaced int
}

func (c *countingRegistry) Get(context.Context, string) (providers.Provider, error) { return c.p, nil }

func (c *countingRegistry) ReplaceEndpoints(context.Context, string, providers.EndpointUpdate) (providers.Provider, error) {
	c.replaced++
	return c.p, nil
}

func TestAutoSelectCanceledCommitsNothing(t *testing.T) {
	reg := &countingRegistry{p: providers.Normalize(providers.Provider{
		Name: "relay", APIKey: "k", BaseURL: "http://127.0.0.1:1", ModelType: providers.ModelTypeCodex, Enabled: true,
	})}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newService(reg).TestAndAutoSelectFastest(ctx, "relay", 1)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, reg.replaced)
}
