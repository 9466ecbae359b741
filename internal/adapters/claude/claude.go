// Package claude adapts Claude Code's settings.json. The tool reads a single
// endpoint from the env block, so it holds one provider at a time.
package claude

import (
	"context"
	"log/slog"
	"path/filepath"
	"strconv"

	"github.com/memohai/provsync/internal/adapters"
	"github.com/memohai/provsync/internal/providers"
)

const (
	envBaseURL        = "ANTHROPIC_BASE_URL"
	envAuthToken      = "ANTHROPIC_AUTH_TOKEN"
	envAPIKey         = "ANTHROPIC_API_KEY"
	envModel          = "ANTHROPIC_MODEL"
	envThinkingTokens = "MAX_THINKING_TOKENS"
)

// managedKeys are the env entries this adapter owns. ANTHROPIC_API_KEY is
// the alternative credential slot; it is cleared when the token is written
// so the tool does not see two competing credentials.
var managedKeys = []string{envBaseURL, envAuthToken, envAPIKey, envModel, envThinkingTokens}

type Adapter struct {
	paths  adapters.Paths
	logger *slog.Logger
}

func New(log *slog.Logger, paths adapters.Paths) *Adapter {
	return &Adapter{
		paths:  paths,
		logger: log.With(slog.String("adapter", string(adapters.ToolClaude))),
	}
}

func (a *Adapter) Tool() adapters.Tool { return adapters.ToolClaude }

func (a *Adapter) DisplayName() string { return "Claude Code" }

func (a *Adapter) Scopes() []adapters.Scope {
	return []adapters.Scope{adapters.ScopeGlobal, adapters.ScopeProject}
}

func (a *Adapter) Paths(scope adapters.Scope) []string {
	switch scope {
	case adapters.ScopeGlobal:
		return []string{filepath.Join(a.paths.Home, ".claude", "settings.json")}
	case adapters.ScopeProject:
		return []string{filepath.Join(a.paths.Project, ".claude", "settings.json")}
	}
	return nil
}

func (a *Adapter) ReadDeployed(ctx context.Context) ([]adapters.DeployedProviderItem, error) {
	var items []adapters.DeployedProviderItem
	for _, scope := range a.Scopes() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		path := a.Paths(scope)[0]
		doc, exists, err := adapters.ReadDocument(path)
		if err != nil {
			return nil, adapters.Wrap(a.Tool(), "read", path, err)
		}
		if !exists {
			continue
		}
		if item, ok := a.readEnv(doc, scope); ok {
			items = append(items, item)
		}
	}
	return items, nil
}

func (a *Adapter) readEnv(doc adapters.Document, scope adapters.Scope) (adapters.DeployedProviderItem, bool) {
	env, ok := doc.Lookup("env")
	if !ok {
		return adapters.DeployedProviderItem{}, false
	}
	baseURL := env.String(envBaseURL)
	key := env.String(envAuthToken)
	if key == "" {
		key = env.String(envAPIKey)
	}
	if baseURL == "" && key == "" {
		return adapters.DeployedProviderItem{}, false
	}
	item := adapters.DeployedProviderItem{
		Name:              a.DisplayName(),
		BaseURL:           baseURL,
		ModelCount:        adapters.SingleModel,
		Source:            string(scope),
		Tool:              a.Tool(),
		CurrentModel:      env.String(envModel),
		ProtocolHint:      string(providers.ProtocolAnthropic),
		HasAPIKey:         key != "",
		ExplicitModelType: providers.ModelTypeClaude,
		APIKey:            key,
	}
	if item.CurrentModel != "" {
		m := providers.Model{ID: item.CurrentModel, Name: item.CurrentModel}
		if budget, err := strconv.Atoi(env.String(envThinkingTokens)); err == nil && budget > 0 {
			m.ThinkingBudget = &budget
		}
		item.Models = []providers.Model{m}
	}
	return item, true
}

func (a *Adapter) Write(_ context.Context, p providers.Provider, scope adapters.Scope) error {
	if err := adapters.CheckScope(a, scope); err != nil {
		return err
	}
	if err := adapters.CheckModelType(a.Tool(), p, providers.ModelTypeClaude); err != nil {
		return err
	}
	path := a.Paths(scope)[0]
	res, err := adapters.UpdateDocument(path, 0o600, func(doc adapters.Document) error {
		env := doc.Object("env")
		env[envBaseURL] = p.BaseURL
		env[envAuthToken] = p.APIKey
		delete(env, envAPIKey)
		model, hasModel := p.DefaultModel()
		if !hasModel {
			delete(env, envModel)
			delete(env, envThinkingTokens)
			return nil
		}
		env[envModel] = model.ID
		if budget, ok := p.EffectiveThinkingBudget(model); ok {
			env[envThinkingTokens] = strconv.Itoa(budget)
		} else {
			delete(env, envThinkingTokens)
		}
		return nil
	})
	if err != nil {
		return adapters.Wrap(a.Tool(), "write", path, err)
	}
	a.logger.Debug("provider written", slog.String("provider", p.Name), slog.String("path", path), slog.Bool("changed", res.Changed))
	return nil
}

// Remove clears the slot when name is the one discovery reports for it
// ("Claude Code"). The file stores no provider name, so any other name is a
// no-op; registered providers go through RemoveProvider.
func (a *Adapter) Remove(ctx context.Context, name string, scope adapters.Scope) error {
	if err := adapters.CheckScope(a, scope); err != nil {
		return err
	}
	if name != a.DisplayName() {
		a.logger.Debug("slot not held by provider, nothing removed", slog.String("provider", name))
		return nil
	}
	return a.clearSlot(scope, func(adapters.Document) bool { return true })
}

// RemoveProvider clears the managed env keys only while the slot still holds
// p's endpoint and key.
func (a *Adapter) RemoveProvider(ctx context.Context, p providers.Provider, scope adapters.Scope) error {
	if p.Name == a.DisplayName() {
		return a.Remove(ctx, p.Name, scope)
	}
	if err := adapters.CheckScope(a, scope); err != nil {
		return err
	}
	return a.clearSlot(scope, func(env adapters.Document) bool {
		key := env.String(envAuthToken)
		if key == "" {
			key = env.String(envAPIKey)
		}
		return adapters.SlotHolds(p, env.String(envBaseURL), key)
	})
}

func (a *Adapter) clearSlot(scope adapters.Scope, holds func(env adapters.Document) bool) error {
	path := a.Paths(scope)[0]
	_, err := adapters.UpdateDocument(path, 0o600, func(doc adapters.Document) error {
		env, ok := doc.Lookup("env")
		if !ok || !holds(env) {
			return nil
		}
		for _, k := range managedKeys {
			delete(env, k)
		}
		return nil
	})
	return adapters.Wrap(a.Tool(), "remove", path, err)
}
