package discovery

import (
	"strings"

	"github.com/memohai/provsync/internal/providers"
)

// InferModelType resolves the model type of a discovered provider. An
// explicit type recorded by the source wins; otherwise the dialect string
// (npm package, wire_api hint) is matched, and a name containing "gemini"
// is the last resort. An unresolved type is returned empty.
func InferModelType(explicit providers.ModelType, dialect, name string) providers.ModelType {
	if explicit.Valid() {
		return explicit
	}
	d := strings.ToLower(dialect)
	switch {
	case strings.Contains(d, "openai"):
		return providers.ModelTypeCodex
	case strings.Contains(d, "anthropic"):
		return providers.ModelTypeClaude
	case strings.Contains(d, "google"), strings.Contains(strings.ToLower(name), "gemini"):
		return providers.ModelTypeGemini
	}
	return ""
}

// InferProtocol picks the protocol a dialect implies for t, falling back to
// the model type's default when the dialect is absent or not allowed.
func InferProtocol(t providers.ModelType, dialect string) providers.Protocol {
	d := strings.ToLower(dialect)
	var p providers.Protocol
	switch {
	case strings.Contains(d, "openai-compatible"), strings.HasSuffix(d, "openai-chat"):
		p = providers.ProtocolOpenAICompatible
	case strings.Contains(d, "openai"):
		p = providers.ProtocolOpenAI
	case strings.Contains(d, "anthropic"):
		p = providers.ProtocolAnthropic
	}
	if p != "" && providers.ProtocolAllowed(t, p) {
		return p
	}
	return providers.DefaultProtocol(t)
}
