// Package adapters defines the contract every external tool configuration
// adapter implements, and the registry that holds them.
package adapters

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/memohai/provsync/internal/providers"
)

// Tool identifies an external tool adapter.
type Tool string

const (
	ToolOpenCode Tool = "opencode"
	ToolClaude   Tool = "claude"
	ToolCodex    Tool = "codex"
	ToolGemini   Tool = "gemini"
	ToolCCSwitch Tool = "ccswitch"
)

func (t Tool) String() string { return string(t) }

// Scope selects the user-global or the per-project configuration.
type Scope string

const (
	ScopeGlobal  Scope = "global"
	ScopeProject Scope = "project"
)

// SingleModel is the model_count of tools that track one active model
// instead of a model list.
const SingleModel = -1

// DeployedProviderItem is a provider found inside a tool's own configuration.
// It is rebuilt on every discovery pass and never persisted.
type DeployedProviderItem struct {
	Name              string              `json:"name"`
	BaseURL           string              `json:"base_url"`
	ModelCount        int                 `json:"model_count"`
	Source            string              `json:"source"`
	Tool              Tool                `json:"tool"`
	InferredModelType providers.ModelType `json:"inferred_model_type,omitempty"`
	CurrentModel      string              `json:"current_model,omitempty"`
	ProtocolHint      string              `json:"protocol_hint,omitempty"`
	HasAPIKey         bool                `json:"has_api_key"`

	// ExplicitModelType is set when the source format records the type itself.
	ExplicitModelType providers.ModelType `json:"-"`
	APIKey            string              `json:"-"`
	Models            []providers.Model   `json:"-"`
}

// Adapter reads and writes exactly one tool's native configuration.
type Adapter interface {
	Tool() Tool
	DisplayName() string
	// Scopes lists the scopes the tool has a configuration file for.
	Scopes() []Scope
	// Paths returns the files the adapter owns for scope.
	Paths(scope Scope) []string
	// ReadDeployed returns the providers configured in the tool. A missing
	// file yields no items and no error.
	ReadDeployed(ctx context.Context) ([]DeployedProviderItem, error)
	// Write merges p into the tool's configuration for scope.
	Write(ctx context.Context, p providers.Provider, scope Scope) error
	// Remove drops the provider called name from the configuration for scope.
	Remove(ctx context.Context, name string, scope Scope) error
}

// SlotRemover is implemented by tools that hold a single provider and store
// no provider name. RemoveProvider clears the slot only while it still holds
// p; deploy prefers it over Remove when p is registered.
type SlotRemover interface {
	RemoveProvider(ctx context.Context, p providers.Provider, scope Scope) error
}

// SlotHolds reports whether a single-slot tool's endpoint and key belong to
// p: the endpoint must be one of p's URLs and a stored key must equal p's.
func SlotHolds(p providers.Provider, baseURL, apiKey string) bool {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return false
	}
	matched := strings.TrimRight(p.BaseURL, "/") == baseURL
	for _, u := range p.URLs() {
		if strings.TrimRight(u, "/") == baseURL {
			matched = true
		}
	}
	if !matched {
		return false
	}
	return apiKey == "" || p.APIKey == "" || apiKey == p.APIKey
}

// ReasoningEffort converts a tool's raw reasoning setting. Values outside
// low, medium and high (Codex also knows minimal and xhigh) are dropped with
// a warning.
func ReasoningEffort(log *slog.Logger, model, raw string) providers.ReasoningEffort {
	effort := providers.ReasoningEffort(strings.ToLower(strings.TrimSpace(raw)))
	if effort.Valid() {
		return effort
	}
	log.Warn("ignoring unsupported reasoning effort", slog.String("model", model), slog.String("reasoning_effort", raw))
	return ""
}

var (
	ErrScopeUnsupported      = errors.New("scope not supported by tool")
	ErrIncompatibleModelType = errors.New("model type not supported by tool")
	ErrMalformed             = errors.New("malformed configuration file")
)

// Error reports a failed adapter operation on one file.
type Error struct {
	Tool Tool
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s %s: %v", e.Tool, e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s %s: %v", e.Tool, e.Op, e.Path, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Wrap returns nil for a nil err, otherwise an *Error.
func Wrap(tool Tool, op, path string, err error) error {
	if err == nil {
		return nil
	}
	var existing *Error
	if errors.As(err, &existing) {
		return err
	}
	return &Error{Tool: tool, Op: op, Path: path, Err: err}
}

// CheckScope fails fast when a does not support scope.
func CheckScope(a Adapter, scope Scope) error {
	for _, s := range a.Scopes() {
		if s == scope {
			return nil
		}
	}
	return &Error{Tool: a.Tool(), Op: "scope", Err: fmt.Errorf("%w: %s", ErrScopeUnsupported, scope)}
}

// CheckModelType fails when p cannot be consumed by a tool that accepts only
// the listed types. An empty list accepts every type.
func CheckModelType(tool Tool, p providers.Provider, accepted ...providers.ModelType) error {
	if len(accepted) == 0 {
		return nil
	}
	for _, t := range accepted {
		if p.ModelType == t {
			return nil
		}
	}
	return &Error{Tool: tool, Op: "write", Err: fmt.Errorf("%w: %s", ErrIncompatibleModelType, p.ModelType)}
}

// Paths holds the roots adapters resolve their files against. ConfigHome
// is the XDG config directory; empty means Home/.config.
type Paths struct {
	Home       string
	Project    string
	ConfigHome string
}
