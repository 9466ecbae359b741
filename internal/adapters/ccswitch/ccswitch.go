// Package ccswitch adapts the cc-switch provider switcher. Its config.json
// keeps one provider list per app (claude, codex, gemini); the app section a
// provider lives in decides its model type.
package ccswitch

import (
	"context"
	"log/slog"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/memohai/provsync/internal/adapters"
	"github.com/memohai/provsync/internal/adapters/codex"
	"github.com/memohai/provsync/internal/providers"
)

const (
	configVersion = 2

	keyProviders      = "providers"
	keyCurrent        = "current"
	keySettingsConfig = "settingsConfig"
)

var apps = []providers.ModelType{providers.ModelTypeClaude, providers.ModelTypeCodex, providers.ModelTypeGemini}

type Adapter struct {
	paths  adapters.Paths
	logger *slog.Logger
	now    func() time.Time
	newID  func() string
}

func New(log *slog.Logger, paths adapters.Paths) *Adapter {
	return &Adapter{
		paths:  paths,
		logger: log.With(slog.String("adapter", string(adapters.ToolCCSwitch))),
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

func (a *Adapter) Tool() adapters.Tool { return adapters.ToolCCSwitch }

func (a *Adapter) DisplayName() string { return "cc-switch" }

func (a *Adapter) Scopes() []adapters.Scope { return []adapters.Scope{adapters.ScopeGlobal} }

func (a *Adapter) configPath() string { return filepath.Join(a.paths.Home, ".cc-switch", "config.json") }

func (a *Adapter) Paths(scope adapters.Scope) []string {
	if scope != adapters.ScopeGlobal {
		return nil
	}
	return []string{a.configPath()}
}

func (a *Adapter) ReadDeployed(ctx context.Context) ([]adapters.DeployedProviderItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := a.configPath()
	doc, exists, err := adapters.ReadDocument(path)
	if err != nil {
		return nil, adapters.Wrap(a.Tool(), "read", path, err)
	}
	if !exists {
		return nil, nil
	}
	var items []adapters.DeployedProviderItem
	for _, app := range apps {
		section, ok := doc.Lookup(string(app))
		if !ok {
			continue
		}
		entries, ok := section.Lookup(keyProviders)
		if !ok {
			continue
		}
		for _, id := range sortedKeys(entries) {
			entry, ok := entries.Lookup(id)
			if !ok {
				continue
			}
			item, ok := a.readEntry(app, entry)
			if !ok {
				a.logger.Warn("skipping unreadable entry", slog.String("app", string(app)), slog.String("id", id))
				continue
			}
			items = append(items, item)
		}
	}
	return items, nil
}

func (a *Adapter) readEntry(app providers.ModelType, entry adapters.Document) (adapters.DeployedProviderItem, bool) {
	name := entry.String("name")
	if name == "" {
		return adapters.DeployedProviderItem{}, false
	}
	item := adapters.DeployedProviderItem{
		Name:              name,
		ModelCount:        adapters.SingleModel,
		Source:            string(adapters.ScopeGlobal),
		Tool:              a.Tool(),
		ExplicitModelType: app,
	}
	settings, _ := entry.Lookup(keySettingsConfig)
	switch app {
	case providers.ModelTypeClaude:
		env, _ := settings.Lookup("env")
		item.BaseURL = env.String("ANTHROPIC_BASE_URL")
		item.APIKey = env.String("ANTHROPIC_AUTH_TOKEN")
		if item.APIKey == "" {
			item.APIKey = env.String("ANTHROPIC_API_KEY")
		}
		item.CurrentModel = env.String("ANTHROPIC_MODEL")
		item.ProtocolHint = string(providers.ProtocolAnthropic)
	case providers.ModelTypeGemini:
		env, _ := settings.Lookup("env")
		item.BaseURL = env.String("GOOGLE_GEMINI_BASE_URL")
		item.APIKey = env.String("GEMINI_API_KEY")
		item.CurrentModel = env.String("GEMINI_MODEL")
		item.ProtocolHint = "google"
	case providers.ModelTypeCodex:
		auth, _ := settings.Lookup("auth")
		item.APIKey = auth.String("OPENAI_API_KEY")
		cfg, err := codex.DecodeConfig([]byte(settings.String("config")))
		if err != nil {
			return adapters.DeployedProviderItem{}, false
		}
		item.CurrentModel, _ = cfg["model"].(string)
		active, _ := cfg["model_provider"].(string)
		if tables, ok := cfg["model_providers"].(map[string]any); ok {
			if spec, ok := tables[active].(map[string]any); ok {
				item.BaseURL, _ = spec["base_url"].(string)
				wire, _ := spec["wire_api"].(string)
				if wire == "" {
					wire = "chat"
				}
				item.ProtocolHint = "openai-" + wire
			}
		}
	}
	item.HasAPIKey = item.APIKey != ""
	if item.CurrentModel != "" {
		item.Models = []providers.Model{{ID: item.CurrentModel, Name: item.CurrentModel}}
	}
	return item, true
}

func sortedKeys(d adapters.Document) []string {
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// findEntry returns the id of the entry called name, or "".
func findEntry(entries adapters.Document, name string) string {
	for _, id := range sortedKeys(entries) {
		if entry, ok := entries.Lookup(id); ok && entry.String("name") == name {
			return id
		}
	}
	return ""
}

func (a *Adapter) Write(_ context.Context, p providers.Provider, scope adapters.Scope) error {
	if err := adapters.CheckScope(a, scope); err != nil {
		return err
	}
	if err := adapters.CheckModelType(a.Tool(), p, apps...); err != nil {
		return err
	}
	path := a.configPath()
	res, err := adapters.UpdateDocument(path, 0o600, func(doc adapters.Document) error {
		if _, ok := doc["version"]; !ok {
			doc["version"] = configVersion
		}
		// A name lives in one app section; a changed model type moves it.
		for _, app := range apps {
			if app != p.ModelType {
				dropEntries(doc, app, p.Name)
			}
		}
		section := doc.Object(string(p.ModelType))
		entries := section.Object(keyProviders)
		id := findEntry(entries, p.Name)
		var entry adapters.Document
		if id == "" {
			id = a.newID()
			entry = entries.Object(id)
			entry["id"] = id
			entry["createdAt"] = a.now().UnixMilli()
		} else {
			entry = entries.Object(id)
		}
		entry["name"] = p.Name
		settings := entry.Object(keySettingsConfig)
		if err := applySettings(settings, p); err != nil {
			return err
		}
		if section.String(keyCurrent) == "" {
			section[keyCurrent] = id
		}
		return nil
	})
	if err != nil {
		return adapters.Wrap(a.Tool(), "write", path, err)
	}
	a.logger.Debug("provider written", slog.String("provider", p.Name), slog.Bool("changed", res.Changed))
	return nil
}

func applySettings(settings adapters.Document, p providers.Provider) error {
	model, _ := p.DefaultModel()
	switch p.ModelType {
	case providers.ModelTypeClaude:
		env := settings.Object("env")
		env["ANTHROPIC_BASE_URL"] = p.BaseURL
		env["ANTHROPIC_AUTH_TOKEN"] = p.APIKey
		env.SetOrDelete("ANTHROPIC_MODEL", model.ID)
	case providers.ModelTypeGemini:
		env := settings.Object("env")
		env["GEMINI_API_KEY"] = p.APIKey
		env["GOOGLE_GEMINI_BASE_URL"] = p.BaseURL
		env.SetOrDelete("GEMINI_MODEL", model.ID)
	case providers.ModelTypeCodex:
		settings.Object("auth")["OPENAI_API_KEY"] = p.APIKey
		cfg, err := codex.DecodeConfig([]byte(settings.String("config")))
		if err != nil {
			return err
		}
		codex.ApplyProvider(cfg, p)
		out, err := codex.EncodeConfig(cfg)
		if err != nil {
			return err
		}
		settings["config"] = string(out)
	}
	return nil
}

func (a *Adapter) Remove(_ context.Context, name string, scope adapters.Scope) error {
	if err := adapters.CheckScope(a, scope); err != nil {
		return err
	}
	path := a.configPath()
	_, err := adapters.UpdateDocument(path, 0o600, func(doc adapters.Document) error {
		for _, app := range apps {
			dropEntries(doc, app, name)
		}
		return nil
	})
	return adapters.Wrap(a.Tool(), "remove", path, err)
}

// dropEntries deletes every entry named name from app's section and clears
// current when it pointed at one of them.
func dropEntries(doc adapters.Document, app providers.ModelType, name string) {
	section, ok := doc.Lookup(string(app))
	if !ok {
		return
	}
	entries, ok := section.Lookup(keyProviders)
	if !ok {
		return
	}
	for id := findEntry(entries, name); id != ""; id = findEntry(entries, name) {
		delete(entries, id)
		if section.String(keyCurrent) == id {
			delete(section, keyCurrent)
		}
	}
}
