package discovery

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memohai/provsync/internal/adapters"
	"github.com/memohai/provsync/internal/adapters/codex"
	"github.com/memohai/provsync/internal/logger"
	"github.com/memohai/provsync/internal/providers"
)

type fakeAdapter struct {
	tool  adapters.Tool
	items []adapters.DeployedProviderItem
	err   error
}

func (f *fakeAdapter) Tool() adapters.Tool { return f.tool }
func (f *fakeAdapter) DisplayName() string { return string(f.tool) }
func (f *fakeAdapter) Scopes() []adapters.Scope { return []adapters.Scope{adapters.ScopeGlobal} }
func (f *fakeAdapter) Paths(adapters.Scope) []string { return nil }
func (f *fakeAdapter) Remove(context.Context, string, adapters.Scope) error { return nil }
func (f *fakeAdapter) Write(context.Context, providers.Provider, adapters.Scope) error {
	return errors.New("discovery must not write")
}
func (f *fakeAdapter) ReadDeployed(context.Context) ([]adapters.DeployedProviderItem, error) {
	return f.items, f.err
}

func newRegistry(t *testing.T) *providers.Service {
	t.Helper()
	return providers.NewService(logger.Discard(), providers.NewJSONStore(filepath.Join(t.TempDir(), "registry.json")))
}

func newService(t *testing.T, reg *providers.Service, list ...adapters.Adapter) *Service {
	t.Helper()
	ads, err := adapters.NewRegistry(list...)
	require.NoError(t, err)
	return NewService(logger.Discard(), reg, ads)
}

func TestDiscoverIsolatesFailingAdapter(t *testing.T) {
	reg := newRegistry(t)
	svc := newService(t, reg,
		&fakeAdapter{tool: adapters.ToolOpenCode, err: &adapters.Error{Tool: adapters.ToolOpenCode, Op: "read", Err: adapters.ErrMalformed}},
		&fakeAdapter{tool: adapters.ToolClaude, items: []adapters.DeployedProviderItem{{
			Name: "Claude Code", BaseURL: "https://a.example.com", ModelCount: adapters.SingleModel,
			ExplicitModelType: providers.ModelTypeClaude, APIKey: "sk-a",
		}}},
	)

	res, err := svc.Discover(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.Equal(t, "Claude Code", res.Items[0].Name)
	assert.Equal(t, providers.ModelTypeClaude, res.Items[0].InferredModelType)
	assert.True(t, res.Items[0].HasAPIKey)

	require.Len(t, res.Sources, 2)
	assert.Equal(t, adapters.ToolOpenCode, res.Sources[0].Tool)
	assert.Zero(t, res.Sources[0].Items)
	assert.Contains(t, res.Sources[0].Warning, "malformed")
	assert.Equal(t, 1, res.Sources[1].Items)
	assert.Empty(t, res.Sources[1].Warning)
}

func TestDiscoverSeparatesManaged(t *testing.T) {
	ctx := context.Background()
	reg := newRegistry(t)
	_, err := reg.Create(ctx, providers.Provider{
		Name: "relay", APIKey: "sk", BaseURL: "https://relay.example.com", ModelType: providers.ModelTypeCodex, Enabled: true,
	})
	require.NoError(t, err)

	svc := newService(t, reg, &fakeAdapter{tool: adapters.ToolOpenCode, items: []adapters.DeployedProviderItem{
		{Name: "relay", BaseURL: "https://relay.example.com", Source: "global", ProtocolHint: "@ai-sdk/openai"},
		{Name: "Relay", BaseURL: "https://relay.example.com", Source: "global", ProtocolHint: "@ai-sdk/openai"},
		{Name: "local", BaseURL: "http://localhost:8080", Source: "project", ProtocolHint: "@ai-sdk/mistral"},
		{Name: "local", BaseURL: "http://localhost:8081", Source: "global", ProtocolHint: "@ai-sdk/anthropic"},
	}})

	res, err := svc.Discover(ctx)
	require.NoError(t, err)
	require.Len(t, res.AlreadyManaged, 1)
	assert.Equal(t, "relay", res.AlreadyManaged[0].Name)
	require.Len(t, res.Items, 3)
	assert.Equal(t, "Relay", res.Items[0].Name)
	assert.Equal(t, "project", res.Items[1].Source)
	assert.Empty(t, res.Items[1].InferredModelType)
	assert.Equal(t, providers.ModelTypeClaude, res.Items[2].InferredModelType)
}

func TestImportSingleModelFromCodex(t *testing.T) {
	ctx := context.Background()
	home := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(home, ".codex"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(home, ".codex", "config.toml"), []byte(`model = "gpt-5.1"
model_provider = "relay"

[model_providers.relay]
name = "relay"
base_url = "https://relay.example.com/v1"
wire_api = "responses"
`), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(home, ".codex", "auth.json"), []byte(`{"OPENAI_API_KEY":"sk-relay"}`), 0o600))

	reg := newRegistry(t)
	svc := newService(t, reg, codex.New(logger.Discard(), adapters.Paths{Home: home}))

	found, err := svc.Discover(ctx)
	require.NoError(t, err)
	require.Len(t, found.Items, 1)
	assert.Equal(t, adapters.SingleModel, found.Items[0].ModelCount)
	assert.Equal(t, "gpt-5.1", found.Items[0].CurrentModel)

	resp, err := svc.Import(ctx, []ImportRequest{{Tool: adapters.ToolCodex, Name: "relay"}})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.True(t, resp.Results[0].Imported, resp.Results[0].Error)

	p, err := reg.Get(ctx, "relay")
	require.NoError(t, err)
	assert.Equal(t, providers.ModelTypeCodex, p.ModelType)
	assert.Equal(t, providers.ProtocolOpenAI, p.Protocol)
	assert.Equal(t, "sk-relay", p.APIKey)
	assert.Equal(t, "https://relay.example.com/v1", p.BaseURL)
	require.Len(t, p.Models, 1)
	assert.Equal(t, "gpt-5.1", p.Models[0].ID)
	assert.True(t, p.Enabled)

	again, err := svc.Discover(ctx)
	require.NoError(t, err)
	assert.Empty(t, again.Items)
	assert.Len(t, again.AlreadyManaged, 1)
}

func TestImportDropsReasoningEffortOutsideEnum(t *testing.T) {
	ctx := context.Background()
	home := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(home, ".codex"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(home, ".codex", "config.toml"), []byte(`model = "gpt-5.1"
model_provider = "relay"
model_reasoning_effort = "xhigh"

[model_providers.relay]
name = "relay"
base_url = "https://relay.example.com/v1"
wire_api = "responses"
`), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(home, ".codex", "auth.json"), []byte(`{"OPENAI_API_KEY":"sk-relay"}`), 0o600))

	reg := newRegistry(t)
	svc := newService(t, reg, codex.New(logger.Discard(), adapters.Paths{Home: home}))

	resp, err := svc.Import(ctx, []ImportRequest{{Tool: adapters.ToolCodex, Name: "relay"}})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.True(t, resp.Results[0].Imported, resp.Results[0].Error)

	p, err := reg.Get(ctx, "relay")
	require.NoError(t, err)
	require.Len(t, p.Models, 1)
	assert.Equal(t, "gpt-5.1", p.Models[0].ID)
	assert.Empty(t, p.Models[0].ReasoningEffort)
}

func TestBuildProviderClearsUnknownReasoningEffort(t *testing.T) {
	p := BuildProvider(adapters.DeployedProviderItem{
		Name: "relay", BaseURL: "https://relay.example.com", ExplicitModelType: providers.ModelTypeCodex, APIKey: "sk",
		Models: []providers.Model{{ID: "a", ReasoningEffort: "minimal"}, {ID: "b", ReasoningEffort: providers.ReasoningHigh}},
	}, ImportOverrides{})
	require.Len(t, p.Models, 2)
	assert.Empty(t, p.Models[0].ReasoningEffort)
	assert.Equal(t, providers.ReasoningHigh, p.Models[1].ReasoningEffort)
	assert.NoError(t, providers.Validate(providers.Normalize(p)))
}

func TestImportReportsPerItem(t *testing.T) {
	ctx := context.Background()
	reg := newRegistry(t)
	svc := newService(t, reg, &fakeAdapter{tool: adapters.ToolOpenCode, items: []adapters.DeployedProviderItem{
		{Name: "anth", BaseURL: "https://a.example.com", ModelCount: 1, ProtocolHint: "@ai-sdk/anthropic", APIKey: "sk-a",
			Models: []providers.Model{{ID: "claude-sonnet-4-5"}}},
		{Name: "mystery", BaseURL: "https://m.example.com", ModelCount: 0, ProtocolHint: "@ai-sdk/mistral", APIKey: "sk-m"},
	}})

	resp, err := svc.Import(ctx, []ImportRequest{
		{Tool: adapters.ToolOpenCode, Name: "anth"},
		{Tool: adapters.ToolOpenCode, Name: "mystery"},
		{Tool: adapters.ToolOpenCode, Name: "mystery", Overrides: ImportOverrides{ModelType: providers.ModelTypeCodex, Name: "mystery-codex"}},
		{Tool: adapters.ToolOpenCode, Name: "absent"},
	})
	require.NoError(t, err)
	require.Len(t, resp.Results, 4)
	assert.True(t, resp.Results[0].Imported)
	assert.False(t, resp.Results[1].Imported)
	assert.Contains(t, resp.Results[1].Error, "model_type")
	assert.True(t, resp.Results[2].Imported, resp.Results[2].Error)
	assert.Equal(t, "mystery-codex", resp.Results[2].Name)
	assert.False(t, resp.Results[3].Imported)

	names, err := reg.Names(ctx)
	require.NoError(t, err)
	assert.Len(t, names, 2)
}

func TestImportRejectsManagedName(t *testing.T) {
	ctx := context.Background()
	reg := newRegistry(t)
	_, err := reg.Create(ctx, providers.Provider{
		Name: "anth", APIKey: "sk", BaseURL: "https://a.example.com", ModelType: providers.ModelTypeClaude, Enabled: true,
	})
	require.NoError(t, err)
	svc := newService(t, reg, &fakeAdapter{tool: adapters.ToolOpenCode, items: []adapters.DeployedProviderItem{
		{Name: "anth", BaseURL: "https://b.example.com", ProtocolHint: "@ai-sdk/anthropic", APIKey: "sk-b"},
	}})

	resp, err := svc.Import(ctx, []ImportRequest{{Tool: adapters.ToolOpenCode, Name: "anth"}})
	require.NoError(t, err)
	assert.False(t, resp.Results[0].Imported)
	assert.Contains(t, resp.Results[0].Error, providers.ErrDuplicateName.Error())

	p, err := reg.Get(ctx, "anth")
	require.NoError(t, err)
	assert.Equal(t, "https://a.example.com", p.BaseURL)
}
