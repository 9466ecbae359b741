// Package schedule re-runs endpoint auto-select for every enabled provider
// on a cron pattern.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

type Service struct {
	cron     *cron.Cron
	parser   cron.Parser
	selector Selector
	lister   Lister
	trials   int
	timeout  time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	entry   cron.EntryID
	pattern string
	last    *Run
}

func NewService(log *slog.Logger, lister Lister, selector Selector, trials int, timeout time.Duration) *Service {
	parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Service{
		cron:     cron.New(cron.WithParser(parser)),
		parser:   parser,
		selector: selector,
		lister:   lister,
		trials:   trials,
		timeout:  timeout,
		logger:   log.With(slog.String("service", "schedule")),
	}
}

// Start schedules the pass on pattern and starts the cron runner. An empty
// pattern disables scheduling.
func (s *Service) Start(pattern string) error {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		s.logger.Info("auto-select schedule disabled")
		return nil
	}
	if _, err := s.parser.Parse(pattern); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", pattern, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.entry != 0 {
		s.cron.Remove(s.entry)
	}
	entryID, err := s.cron.AddFunc(pattern, s.job)
	if err != nil {
		return err
	}
	s.entry = entryID
	s.pattern = pattern
	s.cron.Start()
	s.logger.Info("auto-select scheduled", slog.String("pattern", pattern))
	return nil
}

// Stop halts the runner and waits for a running pass, or for ctx.
func (s *Service) Stop(ctx context.Context) error {
	done := s.cron.Stop().Done()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) job() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if _, err := s.RunOnce(ctx); err != nil {
		s.logger.Error("scheduled auto-select failed", slog.Any("error", err))
	}
}

// RunOnce auto-selects every enabled provider that has more than one
// candidate URL. Providers are handled one after another; a failure is
// recorded and the pass continues.
func (s *Service) RunOnce(ctx context.Context) (Run, error) {
	run := Run{StartedAt: time.Now().UTC(), Results: []RunResult{}}
	items, err := s.lister.List(ctx)
	if err != nil {
		return run, fmt.Errorf("list providers: %w", err)
	}
	for _, p := range items {
		if !p.Enabled || len(p.BaseURLs) < 2 {
			continue
		}
		if err := ctx.Err(); err != nil {
			run.Results = append(run.Results, RunResult{Provider: p.Name, Error: err.Error()})
			continue
		}
		res, err := s.selector.TestAndAutoSelectFastest(ctx, p.Name, s.trials)
		row := RunResult{Provider: p.Name}
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				s.logger.Warn("auto-select interrupted", slog.String("provider", p.Name))
			}
			row.Error = err.Error()
		} else {
			row.BaseURL = res.Provider.BaseURL
			row.Switched = res.Switched
		}
		run.Results = append(run.Results, row)
	}
	run.FinishedAt = time.Now().UTC()

	s.mu.Lock()
	s.last = &run
	s.mu.Unlock()
	s.logger.Info("auto-select pass finished", slog.Int("providers", len(run.Results)))
	return run, nil
}

// Last returns the most recent pass, if any.
func (s *Service) Last() (Run, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return Run{}, false
	}
	return *s.last, true
}
