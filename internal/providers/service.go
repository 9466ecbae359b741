package providers

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Service is the canonical registry. Every mutation runs load-modify-save
// under one mutex, so the registry has a single writer.
type Service struct {
	mu     sync.Mutex
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

// NewService creates a registry service over store.
func NewService(log *slog.Logger, store Store) *Service {
	return &Service{
		store:  store,
		logger: log.With(slog.String("service", "providers")),
		now:    time.Now,
	}
}

// List returns every provider in registry order.
func (s *Service) List(ctx context.Context) ([]Provider, error) {
	items, err := s.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("list providers: %w", err)
	}
	out := make([]Provider, 0, len(items))
	for _, p := range items {
		out = append(out, Clone(p))
	}
	return out, nil
}

// Get returns the provider called name.
func (s *Service) Get(ctx context.Context, name string) (Provider, error) {
	items, err := s.store.Load(ctx)
	if err != nil {
		return Provider{}, fmt.Errorf("get provider: %w", err)
	}
	idx := indexOf(items, name)
	if idx < 0 {
		return Provider{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return Clone(items[idx]), nil
}

// Names returns the set of registered provider names.
func (s *Service) Names(ctx context.Context) (map[string]struct{}, error) {
	items, err := s.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("list providers: %w", err)
	}
	out := make(map[string]struct{}, len(items))
	for _, p := range items {
		out[p.Name] = struct{}{}
	}
	return out, nil
}

// Create adds a new provider. A name that is already registered is rejected
// with ErrDuplicateName; this is the import path.
func (s *Service) Create(ctx context.Context, p Provider) (Provider, error) {
	p = Normalize(p)
	if err := Validate(p); err != nil {
		return Provider{}, err
	}
	var created Provider
	err := s.mutate(ctx, func(items []Provider) ([]Provider, error) {
		if indexOf(items, p.Name) >= 0 {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateName, p.Name)
		}
		now := s.now().UTC()
		p.CreatedAt = now
		p.UpdatedAt = now
		created = p
		return append(items, p), nil
	})
	if err != nil {
		return Provider{}, err
	}
	s.logger.Info("provider created", slog.String("provider", created.Name), slog.String("model_type", string(created.ModelType)))
	return Clone(created), nil
}

// Save is the explicit-edit path: an existing provider with the same name is
// updated in place, otherwise the provider is appended. An empty or masked
// api_key keeps the stored key, and stored measurements survive for URLs the
// edit does not re-measure.
func (s *Service) Save(ctx context.Context, p Provider) (Provider, error) {
	var saved Provider
	err := s.mutate(ctx, func(items []Provider) ([]Provider, error) {
		idx := indexOf(items, p.Name)
		now := s.now().UTC()
		next := Clone(p)
		if idx >= 0 {
			existing := items[idx]
			next.APIKey = resolveUpdatedAPIKey(existing.APIKey, next.APIKey)
			next.BaseURLs = mergeMeasurements(existing.BaseURLs, next.BaseURLs)
			next.CreatedAt = existing.CreatedAt
		} else {
			next.CreatedAt = now
		}
		next.UpdatedAt = now
		next = Normalize(next)
		if err := Validate(next); err != nil {
			return nil, err
		}
		saved = next
		if idx >= 0 {
			items[idx] = next
			return items, nil
		}
		return append(items, next), nil
	})
	if err != nil {
		return Provider{}, err
	}
	s.logger.Info("provider saved", slog.String("provider", saved.Name))
	return Clone(saved), nil
}

// Delete removes the provider called name.
func (s *Service) Delete(ctx context.Context, name string) error {
	err := s.mutate(ctx, func(items []Provider) ([]Provider, error) {
		idx := indexOf(items, name)
		if idx < 0 {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return append(items[:idx], items[idx+1:]...), nil
	})
	if err != nil {
		return err
	}
	s.logger.Info("provider deleted", slog.String("provider", name))
	return nil
}

// SetEnabled toggles whether the provider takes part in apply operations.
func (s *Service) SetEnabled(ctx context.Context, name string, enabled bool) (Provider, error) {
	return s.update(ctx, name, func(p *Provider) error {
		p.Enabled = enabled
		return nil
	})
}

// SetActiveURL switches the active base URL to one of the candidates.
func (s *Service) SetActiveURL(ctx context.Context, name, url string) (Provider, error) {
	return s.update(ctx, name, func(p *Provider) error {
		if !p.HasURL(url) {
			return invalid("base_url", "%s is not one of base_urls", url)
		}
		p.BaseURL = url
		return nil
	})
}

// EndpointUpdate computes the replacement candidate list and active URL from
// the current provider.
type EndpointUpdate func(current Provider) (records []BaseURLRecord, active string, err error)

// ReplaceEndpoints swaps base_urls and base_url together in one write, so no
// reader sees an active URL that is not part of the list.
func (s *Service) ReplaceEndpoints(ctx context.Context, name string, fn EndpointUpdate) (Provider, error) {
	return s.update(ctx, name, func(p *Provider) error {
		records, active, err := fn(Clone(*p))
		if err != nil {
			return err
		}
		if !(Provider{BaseURLs: records}).HasURL(active) {
			return invalid("base_url", "%s is not one of base_urls", active)
		}
		p.BaseURLs = records
		p.BaseURL = active
		return nil
	})
}

// AddModel appends a model; its id must be new within the provider.
func (s *Service) AddModel(ctx context.Context, name string, m Model) (Provider, error) {
	return s.update(ctx, name, func(p *Provider) error {
		if p.ModelIndex(m.ID) >= 0 {
			return invalid("models", "duplicate model id %s", m.ID)
		}
		p.Models = append(p.Models, m)
		return nil
	})
}

// UpdateModel replaces the model with id; the replacement may carry a new id.
func (s *Service) UpdateModel(ctx context.Context, name, id string, m Model) (Provider, error) {
	return s.update(ctx, name, func(p *Provider) error {
		idx := p.ModelIndex(id)
		if idx < 0 {
			return fmt.Errorf("%w: %s", ErrModelNotFound, id)
		}
		if m.ID == "" {
			m.ID = id
		}
		p.Models[idx] = m
		return nil
	})
}

// DeleteModel removes the model with id.
func (s *Service) DeleteModel(ctx context.Context, name, id string) (Provider, error) {
	return s.update(ctx, name, func(p *Provider) error {
		idx := p.ModelIndex(id)
		if idx < 0 {
			return fmt.Errorf("%w: %s", ErrModelNotFound, id)
		}
		p.Models = append(p.Models[:idx], p.Models[idx+1:]...)
		return nil
	})
}

func (s *Service) update(ctx context.Context, name string, fn func(p *Provider) error) (Provider, error) {
	var updated Provider
	err := s.mutate(ctx, func(items []Provider) ([]Provider, error) {
		idx := indexOf(items, name)
		if idx < 0 {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		next := Clone(items[idx])
		if err := fn(&next); err != nil {
			return nil, err
		}
		next = Normalize(next)
		if err := Validate(next); err != nil {
			return nil, err
		}
		next.UpdatedAt = s.now().UTC()
		items[idx] = next
		updated = next
		return items, nil
	})
	if err != nil {
		return Provider{}, err
	}
	return Clone(updated), nil
}

func (s *Service) mutate(ctx context.Context, fn func(items []Provider) ([]Provider, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := s.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load registry: %w", err)
	}
	next, err := fn(items)
	if err != nil {
		return err
	}
	if err := s.store.Save(ctx, next); err != nil {
		return fmt.Errorf("save registry: %w", err)
	}
	return nil
}

func indexOf(items []Provider, name string) int {
	for i, p := range items {
		if p.Name == name {
			return i
		}
	}
	return -1
}
