package providers

import (
	"errors"
	"fmt"
	"time"
)

// ModelType selects the protocol family of a provider and the tools it may be
// deployed to.
type ModelType string

const (
	ModelTypeClaude ModelType = "claude"
	ModelTypeCodex  ModelType = "codex"
	ModelTypeGemini ModelType = "gemini"
)

// Valid reports whether t is a known model type.
func (t ModelType) Valid() bool {
	switch t {
	case ModelTypeClaude, ModelTypeCodex, ModelTypeGemini:
		return true
	}
	return false
}

// Protocol is the API wire dialect a provider speaks.
type Protocol string

const (
	ProtocolAnthropic        Protocol = "anthropic"
	ProtocolOpenAI           Protocol = "openai"
	ProtocolOpenAICompatible Protocol = "openai-compatible"
)

// Quality is the bucketed classification of a measured endpoint.
type Quality string

const (
	QualityExcellent Quality = "excellent"
	QualityGood      Quality = "good"
	QualityFair      Quality = "fair"
	QualityPoor      Quality = "poor"
	QualityFailed    Quality = "failed"
	QualityUntested  Quality = "untested"
)

type ReasoningEffort string

const (
	ReasoningLow    ReasoningEffort = "low"
	ReasoningMedium ReasoningEffort = "medium"
	ReasoningHigh   ReasoningEffort = "high"
)

// Valid reports whether e is empty or a known effort level.
func (e ReasoningEffort) Valid() bool {
	switch e {
	case "", ReasoningLow, ReasoningMedium, ReasoningHigh:
		return true
	}
	return false
}

// Provider is a named upstream AI API configuration.
type Provider struct {
	Name        string          `json:"name"`
	APIKey      string          `json:"api_key"`
	BaseURL     string          `json:"base_url"`
	BaseURLs    []BaseURLRecord `json:"base_urls"`
	ModelType   ModelType       `json:"model_type"`
	Protocol    Protocol        `json:"protocol"`
	Description string          `json:"description,omitempty"`
	Enabled     bool            `json:"enabled"`
	Models      []Model         `json:"models"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// BaseURLRecord is one candidate endpoint with its last measurement.
// Quality is untested exactly when LatencyMs is nil.
type BaseURLRecord struct {
	URL        string     `json:"url"`
	LatencyMs  *int64     `json:"latency_ms"`
	LastTested *time.Time `json:"last_tested"`
	Quality    Quality    `json:"quality"`
}

// Model is one selectable model under a provider.
type Model struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	ReasoningEffort ReasoningEffort `json:"reasoning_effort,omitempty"`
	ThinkingBudget  *int            `json:"thinking_budget,omitempty"`
}

// URLs returns the candidate URLs in order.
func (p Provider) URLs() []string {
	out := make([]string, 0, len(p.BaseURLs))
	for _, r := range p.BaseURLs {
		out = append(out, r.URL)
	}
	return out
}

// HasURL reports whether url is one of the candidates.
func (p Provider) HasURL(url string) bool {
	for _, r := range p.BaseURLs {
		if r.URL == url {
			return true
		}
	}
	return false
}

// DefaultModel returns the first model, which single-model tools receive.
func (p Provider) DefaultModel() (Model, bool) {
	if len(p.Models) == 0 {
		return Model{}, false
	}
	return p.Models[0], true
}

// ModelIndex returns the position of the model with id, or -1.
func (p Provider) ModelIndex(id string) int {
	for i, m := range p.Models {
		if m.ID == id {
			return i
		}
	}
	return -1
}

// EffectiveReasoningEffort is the effort downstream tools should see. It is
// dropped for model types that have no reasoning knob.
func (p Provider) EffectiveReasoningEffort(m Model) ReasoningEffort {
	if p.ModelType != ModelTypeCodex {
		return ""
	}
	return m.ReasoningEffort
}

// EffectiveThinkingBudget is the token budget downstream tools should see;
// only claude providers carry one.
func (p Provider) EffectiveThinkingBudget(m Model) (int, bool) {
	if p.ModelType != ModelTypeClaude || m.ThinkingBudget == nil || *m.ThinkingBudget <= 0 {
		return 0, false
	}
	return *m.ThinkingBudget, true
}

var (
	ErrNotFound      = errors.New("provider not found")
	ErrDuplicateName = errors.New("provider name already exists")
	ErrModelNotFound = errors.New("model not found")
)

// ValidationError rejects a registry mutation with a field-level reason.
type ValidationError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// ListResponse is the JSON shape of a provider listing.
type ListResponse struct {
	Providers []Provider `json:"providers"`
	Total     int        `json:"total"`
}

// EnabledRequest toggles a provider.
type EnabledRequest struct {
	Enabled bool `json:"enabled"`
}

// ActiveURLRequest switches the active base URL.
type ActiveURLRequest struct {
	BaseURL string `json:"base_url"`
}
