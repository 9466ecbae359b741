// Package codex adapts Codex CLI's config.toml and auth.json. The TOML file
// keeps a table of named model providers, but the tool runs one active
// provider and one active model. Writes that change a managed value re-encode
// the whole file, which drops its comments; unchanged writes leave it alone.
package codex

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/memohai/provsync/internal/adapters"
	"github.com/memohai/provsync/internal/atomicfile"
	"github.com/memohai/provsync/internal/providers"
)

const (
	keyModel           = "model"
	keyModelProvider   = "model_provider"
	keyReasoningEffort = "model_reasoning_effort"
	keyProviders       = "model_providers"
	authAPIKey         = "OPENAI_API_KEY"

	wireResponses = "responses"
	wireChat      = "chat"

	defaultOpenAIURL = "https://api.openai.com/v1"
)

type Adapter struct {
	paths  adapters.Paths
	logger *slog.Logger
}

func New(log *slog.Logger, paths adapters.Paths) *Adapter {
	return &Adapter{
		paths:  paths,
		logger: log.With(slog.String("adapter", string(adapters.ToolCodex))),
	}
}

func (a *Adapter) Tool() adapters.Tool { return adapters.ToolCodex }

func (a *Adapter) DisplayName() string { return "Codex CLI" }

func (a *Adapter) Scopes() []adapters.Scope { return []adapters.Scope{adapters.ScopeGlobal} }

func (a *Adapter) configPath() string { return filepath.Join(a.paths.Home, ".codex", "config.toml") }

func (a *Adapter) authPath() string { return filepath.Join(a.paths.Home, ".codex", "auth.json") }

func (a *Adapter) Paths(scope adapters.Scope) []string {
	if scope != adapters.ScopeGlobal {
		return nil
	}
	return []string{a.configPath(), a.authPath()}
}

// DecodeConfig parses Codex TOML into a generic table.
func DecodeConfig(data []byte) (map[string]any, error) {
	doc := map[string]any{}
	if len(bytes.TrimSpace(data)) == 0 {
		return doc, nil
	}
	if _, err := toml.Decode(string(data), &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", adapters.ErrMalformed, err)
	}
	return doc, nil
}

// EncodeConfig renders a table; keys are emitted in sorted order.
func EncodeConfig(doc map[string]any) ([]byte, error) {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(doc); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func table(doc map[string]any, key string) (map[string]any, bool) {
	t, ok := doc[key].(map[string]any)
	return t, ok
}

func stringAt(doc map[string]any, key string) string {
	s, _ := doc[key].(string)
	return s
}

func (a *Adapter) ReadDeployed(ctx context.Context) ([]adapters.DeployedProviderItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, exists, err := atomicfile.Read(a.configPath())
	if err != nil {
		return nil, adapters.Wrap(a.Tool(), "read", a.configPath(), err)
	}
	if !exists {
		return nil, nil
	}
	doc, err := DecodeConfig(data)
	if err != nil {
		return nil, adapters.Wrap(a.Tool(), "read", a.configPath(), err)
	}
	auth, _, err := adapters.ReadDocument(a.authPath())
	if err != nil {
		return nil, adapters.Wrap(a.Tool(), "read", a.authPath(), err)
	}
	item, ok := a.activeItem(doc, auth)
	if !ok {
		return nil, nil
	}
	return []adapters.DeployedProviderItem{item}, nil
}

func (a *Adapter) activeItem(doc map[string]any, auth adapters.Document) (adapters.DeployedProviderItem, bool) {
	item := adapters.DeployedProviderItem{
		ModelCount:   adapters.SingleModel,
		Source:       string(adapters.ScopeGlobal),
		Tool:         a.Tool(),
		CurrentModel: stringAt(doc, keyModel),
		APIKey:       auth.String(authAPIKey),
	}
	active := stringAt(doc, keyModelProvider)
	providerTables, _ := table(doc, keyProviders)
	spec, hasSpec := table(providerTables, active)
	switch {
	case active != "" && hasSpec:
		item.Name = active
		item.BaseURL = stringAt(spec, "base_url")
		wire := stringAt(spec, "wire_api")
		if wire == "" {
			wire = wireChat
		}
		item.ProtocolHint = "openai-" + wire
		if envKey := stringAt(spec, "env_key"); envKey != "" {
			// the key lives in the environment, not in auth.json
			item.APIKey = ""
		}
	case active == "" && item.APIKey != "":
		item.Name = a.DisplayName()
		item.BaseURL = defaultOpenAIURL
		item.ProtocolHint = "openai-" + wireResponses
	default:
		return adapters.DeployedProviderItem{}, false
	}
	item.HasAPIKey = item.APIKey != ""
	if item.CurrentModel != "" {
		item.Models = []providers.Model{{
			ID:              item.CurrentModel,
			Name:            item.CurrentModel,
			ReasoningEffort: adapters.ReasoningEffort(a.logger, item.CurrentModel, stringAt(doc, keyReasoningEffort)),
		}}
	}
	return item, true
}

func updateConfig(path string, fn func(doc map[string]any) error) (atomicfile.Result, error) {
	return atomicfile.Update(path, 0o600, func(current []byte, _ bool) ([]byte, error) {
		doc, err := DecodeConfig(current)
		if err != nil {
			return nil, err
		}
		before, err := EncodeConfig(doc)
		if err != nil {
			return nil, err
		}
		if err := fn(doc); err != nil {
			return nil, err
		}
		after, err := EncodeConfig(doc)
		if err != nil {
			return nil, err
		}
		if bytes.Equal(before, after) {
			return nil, nil
		}
		return after, nil
	})
}

// ApplyProvider sets p as the active provider of a Codex config table.
func ApplyProvider(doc map[string]any, p providers.Provider) {
	providerTables, ok := table(doc, keyProviders)
	if !ok {
		providerTables = map[string]any{}
		doc[keyProviders] = providerTables
	}
	spec, ok := table(providerTables, p.Name)
	if !ok {
		spec = map[string]any{}
		providerTables[p.Name] = spec
	}
	spec["name"] = p.Name
	spec["base_url"] = p.BaseURL
	spec["wire_api"] = wireAPI(p.Protocol)
	spec["requires_openai_auth"] = true
	delete(spec, "env_key")

	doc[keyModelProvider] = p.Name
	model, ok := p.DefaultModel()
	if !ok {
		delete(doc, keyModel)
		delete(doc, keyReasoningEffort)
		return
	}
	doc[keyModel] = model.ID
	if effort := p.EffectiveReasoningEffort(model); effort != "" {
		doc[keyReasoningEffort] = string(effort)
	} else {
		delete(doc, keyReasoningEffort)
	}
}

func wireAPI(p providers.Protocol) string {
	if p == providers.ProtocolOpenAICompatible {
		return wireChat
	}
	return wireResponses
}

func (a *Adapter) Write(_ context.Context, p providers.Provider, scope adapters.Scope) error {
	if err := adapters.CheckScope(a, scope); err != nil {
		return err
	}
	if err := adapters.CheckModelType(a.Tool(), p, providers.ModelTypeCodex); err != nil {
		return err
	}
	// auth first: a config pointing at a provider whose key is missing is
	// worse than a stored key that is not yet referenced
	if _, err := adapters.UpdateDocument(a.authPath(), 0o600, func(doc adapters.Document) error {
		doc[authAPIKey] = p.APIKey
		return nil
	}); err != nil {
		return adapters.Wrap(a.Tool(), "write", a.authPath(), err)
	}
	res, err := updateConfig(a.configPath(), func(doc map[string]any) error {
		ApplyProvider(doc, p)
		return nil
	})
	if err != nil {
		return adapters.Wrap(a.Tool(), "write", a.configPath(), err)
	}
	a.logger.Debug("provider written", slog.String("provider", p.Name), slog.Bool("changed", res.Changed))
	return nil
}

func (a *Adapter) Remove(_ context.Context, name string, scope adapters.Scope) error {
	if err := adapters.CheckScope(a, scope); err != nil {
		return err
	}
	wasActive := false
	if _, err := updateConfig(a.configPath(), func(doc map[string]any) error {
		if providerTables, ok := table(doc, keyProviders); ok {
			delete(providerTables, name)
		}
		if stringAt(doc, keyModelProvider) == name {
			wasActive = true
			delete(doc, keyModelProvider)
			delete(doc, keyModel)
			delete(doc, keyReasoningEffort)
		}
		return nil
	}); err != nil {
		return adapters.Wrap(a.Tool(), "remove", a.configPath(), err)
	}
	if !wasActive {
		return nil
	}
	_, err := adapters.UpdateDocument(a.authPath(), 0o600, func(doc adapters.Document) error {
		delete(doc, authAPIKey)
		return nil
	})
	return adapters.Wrap(a.Tool(), "remove", a.authPath(), err)
}
