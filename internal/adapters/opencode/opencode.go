// Package opencode adapts OpenCode's opencode.json, which keeps a map of
// named providers each carrying its own model map.
package opencode

import (
	"context"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"

	"github.com/memohai/provsync/internal/adapters"
	"github.com/memohai/provsync/internal/providers"
)

const (
	schemaURL = "https://opencode.ai/config.json"

	npmAnthropic        = "@ai-sdk/anthropic"
	npmOpenAI           = "@ai-sdk/openai"
	npmOpenAICompatible = "@ai-sdk/openai-compatible"
	npmGoogle           = "@ai-sdk/google"
)

type Adapter struct {
	paths  adapters.Paths
	logger *slog.Logger
}

func New(log *slog.Logger, paths adapters.Paths) *Adapter {
	return &Adapter{
		paths:  paths,
		logger: log.With(slog.String("adapter", string(adapters.ToolOpenCode))),
	}
}

func (a *Adapter) Tool() adapters.Tool { return adapters.ToolOpenCode }

func (a *Adapter) DisplayName() string { return "OpenCode" }

func (a *Adapter) Scopes() []adapters.Scope {
	return []adapters.Scope{adapters.ScopeGlobal, adapters.ScopeProject}
}

func (a *Adapter) Paths(scope adapters.Scope) []string {
	switch scope {
	case adapters.ScopeGlobal:
		base := a.paths.ConfigHome
		if base == "" {
			base = filepath.Join(a.paths.Home, ".config")
		}
		return []string{filepath.Join(base, "opencode", "opencode.json")}
	case adapters.ScopeProject:
		return []string{filepath.Join(a.paths.Project, "opencode.json")}
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
		items = append(items, readProviders(a.logger, doc, scope)...)
	}
	return items, nil
}

func readProviders(log *slog.Logger, doc adapters.Document, scope adapters.Scope) []adapters.DeployedProviderItem {
	section, ok := doc.Lookup("provider")
	if !ok {
		return nil
	}
	names := make([]string, 0, len(section))
	for name := range section {
		names = append(names, name)
	}
	sort.Strings(names)

	items := make([]adapters.DeployedProviderItem, 0, len(names))
	for _, name := range names {
		entry, ok := section.Lookup(name)
		if !ok {
			continue
		}
		options, _ := entry.Lookup("options")
		models := readModels(log, entry)
		item := adapters.DeployedProviderItem{
			Name:         name,
			BaseURL:      options.String("baseURL"),
			ModelCount:   len(models),
			Source:       string(scope),
			Tool:         adapters.ToolOpenCode,
			ProtocolHint: entry.String("npm"),
			APIKey:       options.String("apiKey"),
			Models:       models,
		}
		item.HasAPIKey = item.APIKey != ""
		items = append(items, item)
	}
	return items
}

func readModels(log *slog.Logger, entry adapters.Document) []providers.Model {
	section, ok := entry.Lookup("models")
	if !ok {
		return nil
	}
	ids := make([]string, 0, len(section))
	for id := range section {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]providers.Model, 0, len(ids))
	for _, id := range ids {
		m := providers.Model{ID: id, Name: id}
		if spec, ok := section.Lookup(id); ok {
			if name := spec.String("name"); name != "" {
				m.Name = name
			}
			if options, ok := spec.Lookup("options"); ok {
				if raw := options.String("reasoningEffort"); raw != "" {
					m.ReasoningEffort = adapters.ReasoningEffort(log, id, raw)
				}
				if thinking, ok := options.Lookup("thinking"); ok {
					if budget, ok := adapters.Int(thinking["budgetTokens"]); ok {
						m.ThinkingBudget = &budget
					}
				}
			}
		}
		out = append(out, m)
	}
	return out
}

func (a *Adapter) Write(_ context.Context, p providers.Provider, scope adapters.Scope) error {
	if err := adapters.CheckScope(a, scope); err != nil {
		return err
	}
	path := a.Paths(scope)[0]
	res, err := adapters.UpdateDocument(path, 0o600, func(doc adapters.Document) error {
		if doc.String("$schema") == "" {
			doc["$schema"] = schemaURL
		}
		section := doc.Object("provider")
		entry := section.Object(p.Name)
		entry["npm"] = npmPackage(p)
		entry["name"] = p.Name
		options := entry.Object("options")
		options["baseURL"] = p.BaseURL
		options["apiKey"] = p.APIKey
		writeModels(entry, p)
		return nil
	})
	if err != nil {
		return adapters.Wrap(a.Tool(), "write", path, err)
	}
	a.logger.Debug("provider written", slog.String("provider", p.Name), slog.String("path", path), slog.Bool("changed", res.Changed))
	return nil
}

// writeModels replaces the model map with p's models, keeping keys the user
// added to models that survive.
func writeModels(entry adapters.Document, p providers.Provider) {
	previous, _ := entry.Lookup("models")
	next := map[string]any{}
	for _, m := range p.Models {
		spec := adapters.Document{}
		if prev, ok := previous.Lookup(m.ID); ok {
			spec = prev
		}
		spec["name"] = m.Name
		options := spec.Object("options")
		options.SetOrDelete("reasoningEffort", string(p.EffectiveReasoningEffort(m)))
		if budget, ok := p.EffectiveThinkingBudget(m); ok {
			options["thinking"] = map[string]any{"type": "enabled", "budgetTokens": budget}
		} else {
			delete(options, "thinking")
		}
		if len(options) == 0 {
			delete(spec, "options")
		}
		next[m.ID] = map[string]any(spec)
	}
	entry["models"] = next
}

func npmPackage(p providers.Provider) string {
	switch p.ModelType {
	case providers.ModelTypeClaude:
		return npmAnthropic
	case providers.ModelTypeGemini:
		return npmGoogle
	}
	if p.Protocol == providers.ProtocolOpenAICompatible {
		return npmOpenAICompatible
	}
	return npmOpenAI
}

func (a *Adapter) Remove(_ context.Context, name string, scope adapters.Scope) error {
	if err := adapters.CheckScope(a, scope); err != nil {
		return err
	}
	path := a.Paths(scope)[0]
	_, err := adapters.UpdateDocument(path, 0o600, func(doc adapters.Document) error {
		if section, ok := doc.Lookup("provider"); ok {
			delete(section, name)
		}
		if strings.HasPrefix(doc.String("model"), name+"/") {
			delete(doc, "model")
		}
		return nil
	})
	return adapters.Wrap(a.Tool(), "remove", path, err)
}
