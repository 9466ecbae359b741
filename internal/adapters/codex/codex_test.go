package codex

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/BurntSushi/toml"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memohai/provsync/internal/adapters"
	"github.com/memohai/provsync/internal/logger"
	"github.com/memohai/provsync/internal/providers"
)

func newAdapter(t *testing.T) *Adapter {
	t.Helper()
	return New(logger.Discard(), adapters.Paths{Home: t.TempDir(), Project: t.TempDir()})
}

func relay() providers.Provider {
	return providers.Normalize(providers.Provider{
		Name:      "relay",
		APIKey:    "sk-relay",
		BaseURL:   "https://relay.example.com/v1",
		ModelType: providers.ModelTypeCodex,
		Enabled:   true,
		Models:    []providers.Model{{ID: "gpt-5.1", ReasoningEffort: providers.ReasoningMedium}, {ID: "gpt-5.1-mini"}},
	})
}

func decodeFile(t *testing.T, path string) map[string]any {
	t.Helper()
	doc := map[string]any{}
	_, err := toml.DecodeFile(path, &doc)
	require.NoError(t, err)
	return doc
}

func TestWriteSetsActiveProvider(t *testing.T) {
	a := newAdapter(t)
	require.NoError(t, a.Write(context.Background(), relay(), adapters.ScopeGlobal))

	doc := decodeFile(t, a.configPath())
	assert.Equal(t, "relay", doc["model_provider"])
	assert.Equal(t, "gpt-5.1", doc["model"])
	assert.Equal(t, "medium", doc["model_reasoning_effort"])
	spec := doc["model_providers"].(map[string]any)["relay"].(map[string]any)
	assert.Equal(t, "https://relay.example.com/v1", spec["base_url"])
	assert.Equal(t, "responses", spec["wire_api"])
	assert.Equal(t, true, spec["requires_openai_auth"])

	auth, _, err := adapters.ReadDocument(a.authPath())
	require.NoError(t, err)
	assert.Equal(t, "sk-relay", auth.String("OPENAI_API_KEY"))
}

func TestWritePreservesUnmanagedKeysAndIsIdempotent(t *testing.T) {
	ctx := context.Background()
	a := newAdapter(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(a.configPath()), 0o755))
	require.NoError(t, os.WriteFile(a.configPath(), []byte(`approval_policy = "on-request"

[model_providers.ollama]
name = "Ollama"
base_url = "http://localhost:11434/v1"

[mcp_servers.docs]
command = "npx"
args = ["-y", "docs-mcp"]
`), 0o600))
	require.NoError(t, os.WriteFile(a.authPath(), []byte(`{"tokens":{"id_token":"abc"}}`), 0o600))

	require.NoError(t, a.Write(ctx, relay(), adapters.ScopeGlobal))
	first, err := os.ReadFile(a.configPath())
	require.NoError(t, err)
	firstAuth, err := os.ReadFile(a.authPath())
	require.NoError(t, err)

	require.NoError(t, a.Write(ctx, relay(), adapters.ScopeGlobal))
	second, err := os.ReadFile(a.configPath())
	require.NoError(t, err)
	secondAuth, err := os.ReadFile(a.authPath())
	require.NoError(t, err)
	assert.Equal(t, string(first), string(second))
	assert.Equal(t, string(firstAuth), string(secondAuth))

	doc := decodeFile(t, a.configPath())
	assert.Equal(t, "on-request", doc["approval_policy"])
	assert.Contains(t, doc["model_providers"], "ollama")
	assert.Contains(t, doc["mcp_servers"], "docs")
	assert.Contains(t, string(secondAuth), "id_token")
}

func TestWriteWithNothingToChangeKeepsComments(t *testing.T) {
	ctx := context.Background()
	a := newAdapter(t)
	require.NoError(t, a.Write(ctx, relay(), adapters.ScopeGlobal))
	written, err := os.ReadFile(a.configPath())
	require.NoError(t, err)

	edited := "# managed by hand, keep this note\n\n" + string(written)
	require.NoError(t, os.WriteFile(a.configPath(), []byte(edited), 0o600))
	require.NoError(t, a.Write(ctx, relay(), adapters.ScopeGlobal))

	after, err := os.ReadFile(a.configPath())
	require.NoError(t, err)
	assert.Equal(t, edited, string(after))
}

func TestProjectScopeFailsFast(t *testing.T) {
	a := newAdapter(t)
	err := a.Write(context.Background(), relay(), adapters.ScopeProject)
	assert.ErrorIs(t, err, adapters.ErrScopeUnsupported)
	assert.ErrorIs(t, a.Remove(context.Background(), "relay", adapters.ScopeProject), adapters.ErrScopeUnsupported)
}

func TestReadDeployedReportsActiveProvider(t *testing.T) {
	ctx := context.Background()
	a := newAdapter(t)
	p := relay()
	p.Protocol = providers.ProtocolOpenAICompatible
	require.NoError(t, a.Write(ctx, p, adapters.ScopeGlobal))

	items, err := a.ReadDeployed(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	item := items[0]
	assert.Equal(t, "relay", item.Name)
	assert.Equal(t, adapters.SingleModel, item.ModelCount)
	assert.Equal(t, "gpt-5.1", item.CurrentModel)
	assert.Equal(t, "openai-chat", item.ProtocolHint)
	assert.Equal(t, "sk-relay", item.APIKey)
	require.Len(t, item.Models, 1)
	assert.Equal(t, providers.ReasoningMedium, item.Models[0].ReasoningEffort)
}

func TestReadDropsReasoningEffortOutsideEnum(t *testing.T) {
	ctx := context.Background()
	a := newAdapter(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(a.configPath()), 0o755))
	require.NoError(t, os.WriteFile(a.configPath(), []byte(`model = "gpt-5.1"
model_provider = "relay"
model_reasoning_effort = "xhigh"

[model_providers.relay]
name = "relay"
base_url = "https://relay.example.com/v1"
`), 0o600))

	items, err := a.ReadDeployed(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Len(t, items[0].Models, 1)
	assert.Equal(t, "gpt-5.1", items[0].Models[0].ID)
	assert.Empty(t, items[0].Models[0].ReasoningEffort)
}

func TestReadDeployedDefaultOpenAI(t *testing.T) {
	a := newAdapter(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(a.configPath()), 0o755))
	require.NoError(t, os.WriteFile(a.configPath(), []byte(`model = "gpt-5.1"`), 0o600))
	require.NoError(t, os.WriteFile(a.authPath(), []byte(`{"OPENAI_API_KEY":"sk-openai"}`), 0o600))

	items, err := a.ReadDeployed(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Codex CLI", items[0].Name)
	assert.Equal(t, defaultOpenAIURL, items[0].BaseURL)
	assert.Equal(t, "gpt-5.1", items[0].CurrentModel)
}

func TestReadMalformed(t *testing.T) {
	a := newAdapter(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(a.configPath()), 0o755))
	require.NoError(t, os.WriteFile(a.configPath(), []byte(`model = `), 0o600))
	_, err := a.ReadDeployed(context.Background())
	assert.ErrorIs(t, err, adapters.ErrMalformed)
}

func TestRemoveActiveProvider(t *testing.T) {
	ctx := context.Background()
	a := newAdapter(t)
	require.NoError(t, a.Write(ctx, relay(), adapters.ScopeGlobal))
	require.NoError(t, a.Remove(ctx, "relay", adapters.ScopeGlobal))

	doc := decodeFile(t, a.configPath())
	assert.NotContains(t, doc, "model_provider")
	assert.NotContains(t, doc, "model")
	tables, _ := doc["model_providers"].(map[string]any)
	assert.NotContains(t, tables, "relay")
	auth, _, err := adapters.ReadDocument(a.authPath())
	require.NoError(t, err)
	assert.NotContains(t, auth, "OPENAI_API_KEY")

	items, err := a.ReadDeployed(ctx)
	require.NoError(t, err)
	assert.Empty(t, items)
}
