// Package discovery reads the providers already configured in external tools
// and imports selected ones into the registry. Discovery itself never writes.
package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/memohai/provsync/internal/adapters"
	"github.com/memohai/provsync/internal/providers"
)

// Registry is the part of the provider registry discovery needs.
type Registry interface {
	Names(ctx context.Context) (map[string]struct{}, error)
	Create(ctx context.Context, p providers.Provider) (providers.Provider, error)
}

type Service struct {
	registry Registry
	adapters *adapters.Registry
	logger   *slog.Logger
}

func NewService(log *slog.Logger, registry Registry, adapterRegistry *adapters.Registry) *Service {
	return &Service{
		registry: registry,
		adapters: adapterRegistry,
		logger:   log.With(slog.String("service", "discovery")),
	}
}

type sourceResult struct {
	items []adapters.DeployedProviderItem
	err   error
}

// Discover reads every adapter concurrently. A failing adapter contributes
// zero items and a warning; it never fails the pass.
func (s *Service) Discover(ctx context.Context) (Result, error) {
	list := s.adapters.List()
	results := make([]sourceResult, len(list))
	var wg sync.WaitGroup
	for i, a := range list {
		wg.Add(1)
		go func(i int, a adapters.Adapter) {
			defer wg.Done()
			items, err := a.ReadDeployed(ctx)
			results[i] = sourceResult{items: items, err: err}
		}(i, a)
	}
	wg.Wait()

	names, err := s.registry.Names(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("discover: %w", err)
	}

	out := Result{
		Items:          []adapters.DeployedProviderItem{},
		AlreadyManaged: []adapters.DeployedProviderItem{},
		Sources:        make([]SourceReport, 0, len(list)),
	}
	for i, a := range list {
		report := SourceReport{Tool: a.Tool()}
		res := results[i]
		if res.err != nil {
			report.Warning = res.err.Error()
			s.logger.Warn("adapter read failed", slog.String("tool", a.Tool().String()), slog.Any("error", res.err))
			out.Sources = append(out.Sources, report)
			continue
		}
		report.Items = len(res.items)
		out.Sources = append(out.Sources, report)
		for _, item := range res.items {
			item.Tool = a.Tool()
			item.InferredModelType = InferModelType(item.ExplicitModelType, item.ProtocolHint, item.Name)
			item.HasAPIKey = item.APIKey != ""
			if _, managed := names[item.Name]; managed {
				out.AlreadyManaged = append(out.AlreadyManaged, item)
				continue
			}
			out.Items = append(out.Items, item)
		}
	}
	s.logger.Info("discovery finished", slog.Int("items", len(out.Items)), slog.Int("already_managed", len(out.AlreadyManaged)))
	return out, nil
}

// Import creates registry entries for the requested discovered items. Each
// request is reported on its own; one failure does not stop the rest.
func (s *Service) Import(ctx context.Context, reqs []ImportRequest) (ImportResponse, error) {
	found, err := s.Discover(ctx)
	if err != nil {
		return ImportResponse{}, err
	}
	resp := ImportResponse{Results: make([]ImportResult, 0, len(reqs))}
	for _, req := range reqs {
		res := ImportResult{Name: req.Name, Tool: req.Tool.String()}
		item, ok := match(found.Items, req)
		if !ok {
			// an already managed item can still be imported under a new name
			item, ok = match(found.AlreadyManaged, req)
		}
		if !ok {
			res.Error = fmt.Sprintf("no discovered provider %q from %s", req.Name, req.Tool)
			resp.Results = append(resp.Results, res)
			continue
		}
		p := BuildProvider(item, req.Overrides)
		res.Name = p.Name
		created, err := s.registry.Create(ctx, p)
		if err != nil {
			res.Error = err.Error()
			s.logger.Warn("import failed", slog.String("provider", p.Name), slog.Any("error", err))
		} else {
			res.Name = created.Name
			res.Imported = true
		}
		resp.Results = append(resp.Results, res)
	}
	return resp, nil
}

func match(items []adapters.DeployedProviderItem, req ImportRequest) (adapters.DeployedProviderItem, bool) {
	tool := adapters.Tool(strings.ToLower(strings.TrimSpace(req.Tool.String())))
	for _, item := range items {
		if item.Tool != tool || item.Name != req.Name {
			continue
		}
		if req.Source != "" && item.Source != req.Source {
			continue
		}
		return item, true
	}
	return adapters.DeployedProviderItem{}, false
}

// BuildProvider turns a discovered item into a registry record. A
// single-model item without a model list yields one model named after
// current_model.
func BuildProvider(item adapters.DeployedProviderItem, o ImportOverrides) providers.Provider {
	p := providers.Provider{
		Name:    item.Name,
		APIKey:  item.APIKey,
		BaseURL: item.BaseURL,
		Enabled: true,
	}
	if o.Name != "" {
		p.Name = o.Name
	}
	if o.APIKey != "" {
		p.APIKey = o.APIKey
	}
	p.ModelType = item.InferredModelType
	if p.ModelType == "" {
		p.ModelType = InferModelType(item.ExplicitModelType, item.ProtocolHint, item.Name)
	}
	if o.ModelType != "" {
		p.ModelType = o.ModelType
	}
	p.Protocol = o.Protocol
	if p.Protocol == "" && p.ModelType.Valid() {
		p.Protocol = InferProtocol(p.ModelType, item.ProtocolHint)
	}
	p.Models = make([]providers.Model, 0, len(item.Models))
	for _, m := range item.Models {
		if !m.ReasoningEffort.Valid() {
			m.ReasoningEffort = ""
		}
		p.Models = append(p.Models, m)
	}
	if len(p.Models) == 0 && item.ModelCount == adapters.SingleModel && item.CurrentModel != "" {
		p.Models = append(p.Models, providers.Model{ID: item.CurrentModel, Name: item.CurrentModel})
	}
	return p
}
