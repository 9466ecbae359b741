package discovery

import (
	"github.com/memohai/provsync/internal/adapters"
	"github.com/memohai/provsync/internal/providers"
)

// SourceReport summarizes one adapter's part in a discovery pass.
type SourceReport struct {
	Tool    adapters.Tool `json:"tool"`
	Items   int           `json:"items"`
	Warning string        `json:"warning,omitempty"`
}

// Result lists what a discovery pass found. Items excludes providers whose
// name is already registered; those are reported in AlreadyManaged.
type Result struct {
	Items          []adapters.DeployedProviderItem `json:"items"`
	AlreadyManaged []adapters.DeployedProviderItem `json:"already_managed"`
	Sources        []SourceReport                  `json:"sources"`
}

// ImportOverrides replaces discovered values when set.
type ImportOverrides struct {
	Name      string              `json:"name,omitempty"`
	APIKey    string              `json:"api_key,omitempty"`
	ModelType providers.ModelType `json:"model_type,omitempty"`
	Protocol  providers.Protocol  `json:"protocol,omitempty"`
}

// ImportRequest selects one discovered item by tool and name. Source
// narrows the match when the tool reports the same name in both scopes.
type ImportRequest struct {
	Tool      adapters.Tool   `json:"tool"`
	Name      string          `json:"name"`
	Source    string          `json:"source,omitempty"`
	Overrides ImportOverrides `json:"overrides"`
}

type ImportResult struct {
	Name     string `json:"name"`
	Tool     string `json:"tool"`
	Imported bool   `json:"imported"`
	Error    string `json:"error,omitempty"`
}

type ImportResponse struct {
	Results []ImportResult `json:"results"`
}
