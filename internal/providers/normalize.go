package providers

import (
	"strings"
)

// Latency bucket upper bounds (exclusive) in milliseconds.
const (
	ExcellentBelowMs = 300
	GoodBelowMs      = 800
	FairBelowMs      = 1500
)

// QualityFor buckets a measurement. Any endpoint with no successful trial is
// failed regardless of latency.
func QualityFor(latencyMs int64, ok bool) Quality {
	if !ok {
		return QualityFailed
	}
	switch {
	case latencyMs < ExcellentBelowMs:
		return QualityExcellent
	case latencyMs < GoodBelowMs:
		return QualityGood
	case latencyMs < FairBelowMs:
		return QualityFair
	default:
		return QualityPoor
	}
}

// DefaultProtocol is the dialect assumed when a record does not name one.
func DefaultProtocol(t ModelType) Protocol {
	switch t {
	case ModelTypeClaude:
		return ProtocolAnthropic
	case ModelTypeCodex:
		return ProtocolOpenAI
	case ModelTypeGemini:
		return ProtocolOpenAICompatible
	}
	return ""
}

// ProtocolAllowed reports whether model type t can speak protocol p.
func ProtocolAllowed(t ModelType, p Protocol) bool {
	switch t {
	case ModelTypeClaude:
		return p == ProtocolAnthropic
	case ModelTypeCodex:
		return p == ProtocolOpenAI || p == ProtocolOpenAICompatible
	case ModelTypeGemini:
		return p == ProtocolOpenAICompatible
	}
	return false
}

// NewRecord returns an untested candidate for url.
func NewRecord(url string) BaseURLRecord {
	return BaseURLRecord{URL: url, Quality: QualityUntested}
}

// Clone returns a deep copy of p.
func Clone(p Provider) Provider {
	out := p
	if p.BaseURLs != nil {
		out.BaseURLs = make([]BaseURLRecord, len(p.BaseURLs))
		for i, r := range p.BaseURLs {
			out.BaseURLs[i] = cloneRecord(r)
		}
	}
	if p.Models != nil {
		out.Models = make([]Model, len(p.Models))
		for i, m := range p.Models {
			out.Models[i] = cloneModel(m)
		}
	}
	return out
}

func cloneRecord(r BaseURLRecord) BaseURLRecord {
	if r.LatencyMs != nil {
		v := *r.LatencyMs
		r.LatencyMs = &v
	}
	if r.LastTested != nil {
		v := *r.LastTested
		r.LastTested = &v
	}
	return r
}

func cloneModel(m Model) Model {
	if m.ThinkingBudget != nil {
		v := *m.ThinkingBudget
		m.ThinkingBudget = &v
	}
	return m
}

// Normalize fills derived fields without touching the name: default
// protocol, default model names, the active URL, and the untested invariant
// of every record.
func Normalize(p Provider) Provider {
	p = Clone(p)
	if p.Protocol == "" {
		p.Protocol = DefaultProtocol(p.ModelType)
	}

	p.BaseURL = strings.TrimSpace(p.BaseURL)
	for i := range p.BaseURLs {
		p.BaseURLs[i].URL = strings.TrimSpace(p.BaseURLs[i].URL)
	}
	if p.BaseURL != "" && !p.HasURL(p.BaseURL) {
		p.BaseURLs = append([]BaseURLRecord{NewRecord(p.BaseURL)}, p.BaseURLs...)
	}
	if p.BaseURL == "" && len(p.BaseURLs) > 0 {
		p.BaseURL = p.BaseURLs[0].URL
	}
	for i := range p.BaseURLs {
		p.BaseURLs[i] = normalizeRecord(p.BaseURLs[i])
	}

	for i := range p.Models {
		p.Models[i].ID = strings.TrimSpace(p.Models[i].ID)
		if strings.TrimSpace(p.Models[i].Name) == "" {
			p.Models[i].Name = p.Models[i].ID
		}
	}
	if p.Models == nil {
		p.Models = []Model{}
	}
	return p
}

func normalizeRecord(r BaseURLRecord) BaseURLRecord {
	if r.LatencyMs == nil {
		r.Quality = QualityUntested
		return r
	}
	if r.Quality == "" || r.Quality == QualityUntested {
		r.Quality = QualityFor(*r.LatencyMs, true)
	}
	return r
}

// Validate checks a normalized provider before it reaches the store.
func Validate(p Provider) error {
	if strings.TrimSpace(p.Name) == "" {
		return invalid("name", "is required")
	}
	if strings.TrimSpace(p.APIKey) == "" {
		return invalid("api_key", "is required")
	}
	if !p.ModelType.Valid() {
		return invalid("model_type", "must be one of claude, codex, gemini (got %q)", p.ModelType)
	}
	if !ProtocolAllowed(p.ModelType, p.Protocol) {
		return invalid("protocol", "%q is not supported for model type %s", p.Protocol, p.ModelType)
	}
	if len(p.BaseURLs) == 0 {
		return invalid("base_urls", "at least one base URL is required")
	}
	seen := make(map[string]struct{}, len(p.BaseURLs))
	for _, r := range p.BaseURLs {
		if r.URL == "" {
			return invalid("base_urls", "url must not be empty")
		}
		if _, dup := seen[r.URL]; dup {
			return invalid("base_urls", "duplicate url %s", r.URL)
		}
		seen[r.URL] = struct{}{}
		if (r.LatencyMs == nil) != (r.Quality == QualityUntested) {
			return invalid("base_urls", "quality of %s does not match its measurement", r.URL)
		}
	}
	if !p.HasURL(p.BaseURL) {
		return invalid("base_url", "%s is not one of base_urls", p.BaseURL)
	}
	ids := make(map[string]struct{}, len(p.Models))
	for _, m := range p.Models {
		if m.ID == "" {
			return invalid("models", "model id is required")
		}
		if _, dup := ids[m.ID]; dup {
			return invalid("models", "duplicate model id %s", m.ID)
		}
		ids[m.ID] = struct{}{}
		if !m.ReasoningEffort.Valid() {
			return invalid("models", "reasoning_effort of %s must be low, medium or high", m.ID)
		}
		if m.ThinkingBudget != nil && *m.ThinkingBudget < 0 {
			return invalid("models", "thinking_budget of %s must not be negative", m.ID)
		}
	}
	return nil
}

// MaskAPIKey hides all but the first 8 characters of a key.
func MaskAPIKey(apiKey string) string {
	if apiKey == "" {
		return ""
	}
	if len(apiKey) <= 8 {
		return strings.Repeat("*", len(apiKey))
	}
	return apiKey[:8] + strings.Repeat("*", len(apiKey)-8)
}

// Masked returns a copy of p safe to hand to callers that display it.
func Masked(p Provider) Provider {
	p = Clone(p)
	p.APIKey = MaskAPIKey(p.APIKey)
	return p
}

// resolveUpdatedAPIKey keeps the stored key when an edit sends it back empty
// or in its masked form.
func resolveUpdatedAPIKey(existing, updated string) string {
	if updated == "" || (existing != "" && updated == MaskAPIKey(existing)) {
		return existing
	}
	return updated
}

// mergeMeasurements carries stored measurements over to incoming records
// that have none, so an edit that only reorders or adds URLs keeps them.
func mergeMeasurements(existing, incoming []BaseURLRecord) []BaseURLRecord {
	byURL := make(map[string]BaseURLRecord, len(existing))
	for _, r := range existing {
		byURL[r.URL] = r
	}
	out := make([]BaseURLRecord, len(incoming))
	for i, r := range incoming {
		if prev, ok := byURL[r.URL]; ok && r.LatencyMs == nil && prev.LatencyMs != nil {
			r = cloneRecord(prev)
		}
		out[i] = r
	}
	return out
}
