// Package deploy writes registry providers into external tool
// configurations and removes them again, one independent call per
// (provider, target, scope).
package deploy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/oklog/ulid/v2"

	"github.com/memohai/provsync/internal/adapters"
	"github.com/memohai/provsync/internal/providers"
)

// Registry is the part of the provider registry deploy reads.
type Registry interface {
	Get(ctx context.Context, name string) (providers.Provider, error)
}

type Service struct {
	registry Registry
	adapters *adapters.Registry
	logger   *slog.Logger
	newID    func() string
}

func NewService(log *slog.Logger, registry Registry, adapterRegistry *adapters.Registry) *Service {
	return &Service{
		registry: registry,
		adapters: adapterRegistry,
		logger:   log.With(slog.String("service", "deploy")),
		newID:    func() string { return ulid.Make().String() },
	}
}

type row struct {
	result   PerTargetResult
	provider providers.Provider
	adapter  adapters.Adapter
	// registered is set on remove rows whose name resolved in the registry.
	registered bool
}

// operation runs one row against its adapter.
type operation func(ctx context.Context, r *row) error

func (s *Service) validate(names []string, targets []adapters.Tool, scopes Scopes) ([]adapters.Adapter, error) {
	if len(names) == 0 {
		return nil, &providers.ValidationError{Field: "provider_names", Reason: "at least one provider is required"}
	}
	for _, n := range names {
		if strings.TrimSpace(n) == "" {
			return nil, &providers.ValidationError{Field: "provider_names", Reason: "name must not be empty"}
		}
	}
	if len(targets) == 0 {
		return nil, &providers.ValidationError{Field: "targets", Reason: "at least one target is required"}
	}
	if len(scopes.list()) == 0 {
		return nil, &providers.ValidationError{Field: "scopes", Reason: "select global, project or both"}
	}
	out := make([]adapters.Adapter, 0, len(targets))
	seen := map[adapters.Tool]struct{}{}
	for _, raw := range targets {
		tool, err := s.adapters.ParseTool(raw.String())
		if err != nil {
			return nil, &providers.ValidationError{Field: "targets", Reason: err.Error()}
		}
		if _, dup := seen[tool]; dup {
			continue
		}
		seen[tool] = struct{}{}
		a, _ := s.adapters.Get(tool)
		out = append(out, a)
	}
	return out, nil
}

// Apply writes each named provider to each target and selected scope.
// Unknown and disabled providers fail their rows and nothing is written for
// them.
func (s *Service) Apply(ctx context.Context, req ApplyRequest) (Response, error) {
	targets, err := s.validate(req.ProviderNames, req.Targets, req.Scopes)
	if err != nil {
		return Response{}, err
	}
	resolved := make(map[string]providers.Provider, len(req.ProviderNames))
	reasons := make(map[string]string)
	for _, name := range req.ProviderNames {
		p, err := s.registry.Get(ctx, name)
		switch {
		case errors.Is(err, providers.ErrNotFound):
			reasons[name] = err.Error()
		case err != nil:
			return Response{}, fmt.Errorf("apply: %w", err)
		case !p.Enabled:
			reasons[name] = fmt.Sprintf("provider %s is disabled", name)
		default:
			resolved[name] = p
		}
	}

	rows := s.plan(req.ProviderNames, targets, req.Scopes)
	for i := range rows {
		name := rows[i].result.Provider
		if reason, bad := reasons[name]; bad {
			rows[i].result.State = StateFailed
			rows[i].result.Error = reason
			continue
		}
		rows[i].provider = resolved[name]
	}
	return s.run(ctx, "apply", rows, func(ctx context.Context, r *row) error {
		return r.adapter.Write(ctx, r.provider, r.result.Scope)
	}), nil
}

// Remove drops each named provider from each target and selected scope.
// Single-slot tools receive the registry record when the name is registered
// so they only clear a slot that still holds it.
func (s *Service) Remove(ctx context.Context, req RemoveRequest) (Response, error) {
	targets, err := s.validate(req.ProviderNames, req.Targets, req.Scopes)
	if err != nil {
		return Response{}, err
	}
	known := make(map[string]providers.Provider, len(req.ProviderNames))
	for _, name := range req.ProviderNames {
		p, err := s.registry.Get(ctx, name)
		switch {
		case errors.Is(err, providers.ErrNotFound):
		case err != nil:
			return Response{}, fmt.Errorf("remove: %w", err)
		default:
			known[name] = p
		}
	}

	rows := s.plan(req.ProviderNames, targets, req.Scopes)
	for i := range rows {
		if p, ok := known[rows[i].result.Provider]; ok {
			rows[i].provider = p
			rows[i].registered = true
		}
	}
	return s.run(ctx, "remove", rows, func(ctx context.Context, r *row) error {
		if sr, ok := r.adapter.(adapters.SlotRemover); ok && r.registered {
			return sr.RemoveProvider(ctx, r.provider, r.result.Scope)
		}
		return r.adapter.Remove(ctx, r.result.Provider, r.result.Scope)
	}), nil
}

func (s *Service) plan(names []string, targets []adapters.Adapter, scopes Scopes) []row {
	var rows []row
	for _, name := range names {
		for _, a := range targets {
			for _, scope := range scopes.list() {
				rows = append(rows, row{
					result: PerTargetResult{
						Provider: name,
						Target:   a.Tool(),
						Scope:    scope,
						State:    StatePending,
					},
					adapter: a,
				})
			}
		}
	}
	return rows
}

// run executes the pending rows. Targets proceed in parallel; rows of one
// target run in request order so single-slot tools end up holding the last
// provider named. Once ctx is done no new row starts, but a started write
// finishes.
func (s *Service) run(ctx context.Context, op string, rows []row, fn operation) Response {
	batchID := s.newID()
	log := s.logger.With(slog.String("batch_id", batchID), slog.String("op", op))

	byTarget := map[adapters.Tool][]int{}
	var order []adapters.Tool
	for i := range rows {
		t := rows[i].result.Target
		if _, ok := byTarget[t]; !ok {
			order = append(order, t)
		}
		byTarget[t] = append(byTarget[t], i)
	}

	var wg sync.WaitGroup
	for _, t := range order {
		wg.Add(1)
		go func(indexes []int) {
			defer wg.Done()
			for _, i := range indexes {
				r := &rows[i]
				if r.result.State != StatePending {
					continue
				}
				if ctx.Err() != nil {
					r.result.State = StateFailed
					r.result.Error = canceledReason
					continue
				}
				r.result.State = StateAttempting
				if err := fn(context.WithoutCancel(ctx), r); err != nil {
					r.result.State = StateFailed
					r.result.Error = err.Error()
					log.Warn("target failed",
						slog.String("provider", r.result.Provider),
						slog.String("target", r.result.Target.String()),
						slog.String("scope", string(r.result.Scope)),
						slog.Any("error", err),
					)
					continue
				}
				r.result.State = StateSucceeded
			}
		}(byTarget[t])
	}
	wg.Wait()

	resp := Response{BatchID: batchID, Results: make([]PerTargetResult, 0, len(rows))}
	for _, r := range rows {
		resp.Results = append(resp.Results, r.result)
	}
	log.Info("batch finished", slog.Int("rows", len(resp.Results)), slog.Int("failed", resp.Failed()))
	return resp
}
