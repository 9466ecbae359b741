// Package gemini adapts Gemini CLI, which takes its endpoint from ~/.gemini/.env
// and its auth mode from ~/.gemini/settings.json.
package gemini

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"

	"github.com/memohai/provsync/internal/adapters"
	"github.com/memohai/provsync/internal/atomicfile"
	"github.com/memohai/provsync/internal/providers"
)

const (
	envAPIKey  = "GEMINI_API_KEY"
	envBaseURL = "GOOGLE_GEMINI_BASE_URL"
	envModel   = "GEMINI_MODEL"

	authTypeAPIKey   = "gemini-api-key"
	defaultGeminiURL = "https://generativelanguage.googleapis.com"
)

var managedKeys = []string{envAPIKey, envBaseURL, envModel}

type Adapter struct {
	paths  adapters.Paths
	logger *slog.Logger
}

func New(log *slog.Logger, paths adapters.Paths) *Adapter {
	return &Adapter{
		paths:  paths,
		logger: log.With(slog.String("adapter", string(adapters.ToolGemini))),
	}
}

func (a *Adapter) Tool() adapters.Tool { return adapters.ToolGemini }

func (a *Adapter) DisplayName() string { return "Gemini CLI" }

func (a *Adapter) Scopes() []adapters.Scope { return []adapters.Scope{adapters.ScopeGlobal} }

func (a *Adapter) envPath() string { return filepath.Join(a.paths.Home, ".gemini", ".env") }

func (a *Adapter) settingsPath() string {
	return filepath.Join(a.paths.Home, ".gemini", "settings.json")
}

func (a *Adapter) Paths(scope adapters.Scope) []string {
	if scope != adapters.ScopeGlobal {
		return nil
	}
	return []string{a.envPath(), a.settingsPath()}
}

// ParseEnv reads dotenv content. Blank input is an empty map.
func ParseEnv(data []byte) (map[string]string, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return map[string]string{}, nil
	}
	env, err := godotenv.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", adapters.ErrMalformed, err)
	}
	return env, nil
}

// MarshalEnv renders env as sorted KEY="value" lines.
func MarshalEnv(env map[string]string) ([]byte, error) {
	if len(env) == 0 {
		return []byte{}, nil
	}
	out, err := godotenv.Marshal(env)
	if err != nil {
		return nil, err
	}
	return []byte(out + "\n"), nil
}

func (a *Adapter) ReadDeployed(ctx context.Context) ([]adapters.DeployedProviderItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, exists, err := atomicfile.Read(a.envPath())
	if err != nil {
		return nil, adapters.Wrap(a.Tool(), "read", a.envPath(), err)
	}
	if !exists {
		return nil, nil
	}
	env, err := ParseEnv(data)
	if err != nil {
		return nil, adapters.Wrap(a.Tool(), "read", a.envPath(), err)
	}
	key := strings.TrimSpace(env[envAPIKey])
	baseURL := strings.TrimSpace(env[envBaseURL])
	if key == "" && baseURL == "" {
		return nil, nil
	}
	if baseURL == "" {
		baseURL = defaultGeminiURL
	}
	item := adapters.DeployedProviderItem{
		Name:              a.DisplayName(),
		BaseURL:           baseURL,
		ModelCount:        adapters.SingleModel,
		Source:            string(adapters.ScopeGlobal),
		Tool:              a.Tool(),
		CurrentModel:      strings.TrimSpace(env[envModel]),
		ProtocolHint:      "google",
		HasAPIKey:         key != "",
		ExplicitModelType: providers.ModelTypeGemini,
		APIKey:            key,
	}
	if item.CurrentModel != "" {
		item.Models = []providers.Model{{ID: item.CurrentModel, Name: item.CurrentModel}}
	}
	return []adapters.DeployedProviderItem{item}, nil
}

func updateEnv(path string, fn func(env map[string]string)) (atomicfile.Result, error) {
	return atomicfile.Update(path, 0o600, func(current []byte, exists bool) ([]byte, error) {
		env, err := ParseEnv(current)
		if err != nil {
			return nil, err
		}
		before, err := MarshalEnv(env)
		if err != nil {
			return nil, err
		}
		fn(env)
		after, err := MarshalEnv(env)
		if err != nil {
			return nil, err
		}
		if bytes.Equal(before, after) {
			return nil, nil
		}
		if !exists && len(after) == 0 {
			return nil, nil
		}
		return after, nil
	})
}

func (a *Adapter) Write(_ context.Context, p providers.Provider, scope adapters.Scope) error {
	if err := adapters.CheckScope(a, scope); err != nil {
		return err
	}
	if err := adapters.CheckModelType(a.Tool(), p, providers.ModelTypeGemini); err != nil {
		return err
	}
	res, err := updateEnv(a.envPath(), func(env map[string]string) {
		env[envAPIKey] = p.APIKey
		env[envBaseURL] = p.BaseURL
		if model, ok := p.DefaultModel(); ok {
			env[envModel] = model.ID
		} else {
			delete(env, envModel)
		}
	})
	if err != nil {
		return adapters.Wrap(a.Tool(), "write", a.envPath(), err)
	}
	if _, err := adapters.UpdateDocument(a.settingsPath(), 0o644, func(doc adapters.Document) error {
		doc.Object("security").Object("auth")["selectedType"] = authTypeAPIKey
		return nil
	}); err != nil {
		return adapters.Wrap(a.Tool(), "write", a.settingsPath(), err)
	}
	a.logger.Debug("provider written", slog.String("provider", p.Name), slog.Bool("changed", res.Changed))
	return nil
}

// Remove clears the managed keys when name is the one discovery reports for
// the slot. Other names are a no-op; settings.json keeps its auth mode.
func (a *Adapter) Remove(_ context.Context, name string, scope adapters.Scope) error {
	if err := adapters.CheckScope(a, scope); err != nil {
		return err
	}
	if name != a.DisplayName() {
		a.logger.Debug("slot not held by provider, nothing removed", slog.String("provider", name))
		return nil
	}
	return a.clearSlot(func(map[string]string) bool { return true })
}

// RemoveProvider clears the managed keys only while .env still points at p.
func (a *Adapter) RemoveProvider(ctx context.Context, p providers.Provider, scope adapters.Scope) error {
	if p.Name == a.DisplayName() {
		return a.Remove(ctx, p.Name, scope)
	}
	if err := adapters.CheckScope(a, scope); err != nil {
		return err
	}
	return a.clearSlot(func(env map[string]string) bool {
		baseURL := strings.TrimSpace(env[envBaseURL])
		if baseURL == "" {
			baseURL = defaultGeminiURL
		}
		return adapters.SlotHolds(p, baseURL, strings.TrimSpace(env[envAPIKey]))
	})
}

func (a *Adapter) clearSlot(holds func(env map[string]string) bool) error {
	_, err := updateEnv(a.envPath(), func(env map[string]string) {
		if !holds(env) {
			return
		}
		for _, k := range managedKeys {
			delete(env, k)
		}
	})
	return adapters.Wrap(a.Tool(), "remove", a.envPath(), err)
}
