package adapters

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memohai/provsync/internal/providers"
)

type stubAdapter struct {
	tool   Tool
	scopes []Scope
}

func (s stubAdapter) Tool() Tool { return s.tool }
func (s stubAdapter) DisplayName() string { return string(s.tool) }
func (s stubAdapter) Scopes() []Scope { return s.scopes }
func (s stubAdapter) Paths(Scope) []string { return nil }
func (s stubAdapter) ReadDeployed(context.Context) ([]DeployedProviderItem, error) {
	return nil, nil
}
func (s stubAdapter) Write(context.Context, providers.Provider, Scope) error { return nil }
func (s stubAdapter) Remove(context.Context, string, Scope) error { return nil }

func TestRegistryKeepsRegistrationOrder(t *testing.T) {
	r, err := NewRegistry(stubAdapter{tool: ToolOpenCode}, stubAdapter{tool: ToolClaude}, stubAdapter{tool: ToolCodex})
	require.NoError(t, err)

	var order []Tool
	for _, a := range r.List() {
		order = append(order, a.Tool())
	}
	assert.Equal(t, []Tool{ToolOpenCode, ToolClaude, ToolCodex}, order)
	assert.Equal(t, []Tool{ToolClaude, ToolCodex, ToolOpenCode}, r.Tools())
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	_, err := NewRegistry(stubAdapter{tool: ToolClaude}, stubAdapter{tool: "Claude"})
	assert.Error(t, err)

	r, err := NewRegistry()
	require.NoError(t, err)
	assert.Error(t, r.Register(nil))
	assert.Error(t, r.Register(stubAdapter{tool: " "}))
}

func TestParseTool(t *testing.T) {
	r, err := NewRegistry(stubAdapter{tool: ToolGemini})
	require.NoError(t, err)

	tool, err := r.ParseTool(" GEMINI ")
	require.NoError(t, err)
	assert.Equal(t, ToolGemini, tool)

	_, err = r.ParseTool("cursor")
	assert.Error(t, err)
}

func TestCheckScope(t *testing.T) {
	a := stubAdapter{tool: ToolCodex, scopes: []Scope{ScopeGlobal}}
	assert.NoError(t, CheckScope(a, ScopeGlobal))

	err := CheckScope(a, ScopeProject)
	assert.ErrorIs(t, err, ErrScopeUnsupported)
	var adapterErr *Error
	require.ErrorAs(t, err, &adapterErr)
	assert.Equal(t, ToolCodex, adapterErr.Tool)
}

func TestCheckModelType(t *testing.T) {
	p := providers.Provider{ModelType: providers.ModelTypeGemini}
	assert.NoError(t, CheckModelType(ToolOpenCode, p))
	assert.NoError(t, CheckModelType(ToolGemini, p, providers.ModelTypeGemini))
	assert.ErrorIs(t, CheckModelType(ToolClaude, p, providers.ModelTypeClaude), ErrIncompatibleModelType)
}

func TestWrapDoesNotNest(t *testing.T) {
	assert.NoError(t, Wrap(ToolClaude, "write", "/x", nil))

	inner := Wrap(ToolClaude, "write", "/x", ErrMalformed)
	outer := Wrap(ToolClaude, "write", "/y", inner)
	assert.Same(t, inner, outer)
	assert.ErrorIs(t, outer, ErrMalformed)
	assert.Equal(t, "claude write /x: malformed configuration file", outer.Error())
}
