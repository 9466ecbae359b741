package schedule

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memohai/provsync/internal/logger"
	"github.com/memohai/provsync/internal/probe"
	"github.com/memohai/provsync/internal/providers"
)

type staticLister []providers.Provider

func (l staticLister) List(context.Context) ([]providers.Provider, error) { return l, nil }

type fakeSelector struct {
	calls []string
	fail  map[string]error
}

func (f *fakeSelector) TestAndAutoSelectFastest(_ context.Context, name string, trials int) (probe.AutoSelectResult, error) {
	f.calls = append(f.calls, name)
	if err := f.fail[name]; err != nil {
		return probe.AutoSelectResult{}, err
	}
	return probe.AutoSelectResult{
		Provider: providers.Provider{Name: name, BaseURL: "https://" + name + "-fast.example.com"},
		Switched: true,
	}, nil
}

func candidates(urls ...string) []providers.BaseURLRecord {
	out := make([]providers.BaseURLRecord, 0, len(urls))
	for _, u := range urls {
		out = append(out, providers.NewRecord(u))
	}
	return out
}

func TestRunOnceSelectsEligibleProviders(t *testing.T) {
	lister := staticLister{
		{Name: "multi", Enabled: true, BaseURLs: candidates("https://a", "https://b")},
		{Name: "single", Enabled: true, BaseURLs: candidates("https://a")},
		{Name: "disabled", Enabled: false, BaseURLs: candidates("https://a", "https://b")},
		{Name: "broken", Enabled: true, BaseURLs: candidates("https://a", "https://b")},
	}
	sel := &fakeSelector{fail: map[string]error{"broken": errors.New("boom")}}
	svc := NewService(logger.Discard(), lister, sel, 1, time.Second)

	run, err := svc.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"multi", "broken"}, sel.calls)
	require.Len(t, run.Results, 2)
	assert.True(t, run.Results[0].Switched)
	assert.Equal(t, "https://multi-fast.example.com", run.Results[0].BaseURL)
	assert.Equal(t, "boom", run.Results[1].Error)

	last, ok := svc.Last()
	require.True(t, ok)
	assert.Equal(t, run, last)
}

func TestRunOnceStopsSelectingWhenCanceled(t *testing.T) {
	lister := staticLister{{Name: "multi", Enabled: true, BaseURLs: candidates("https://a", "https://b")}}
	sel := &fakeSelector{}
	svc := NewService(logger.Discard(), lister, sel, 1, time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	run, err := svc.RunOnce(ctx)
	require.NoError(t, err)
	assert.Empty(t, sel.calls)
	require.Len(t, run.Results, 1)
	assert.NotEmpty(t, run.Results[0].Error)
}

func TestStartValidatesPattern(t *testing.T) {
	svc := NewService(logger.Discard(), staticLister{}, &fakeSelector{}, 1, time.Second)
	assert.NoError(t, svc.Start(""))
	assert.Error(t, svc.Start("every tuesday"))
	require.NoError(t, svc.Start("@every 1h"))
	require.NoError(t, svc.Start("0 */6 * * *"))
	assert.Len(t, svc.cron.Entries(), 1)
	require.NoError(t, svc.Stop(context.Background()))
}
