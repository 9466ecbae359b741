package providers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// recordSchema describes a provider record handed in from outside the engine
// (command surface, deep-link callers).
const recordSchema = `{
  "type": "object",
  "required": ["name", "model_type"],
  "anyOf": [
    {"required": ["base_url"]},
    {"required": ["base_urls"]}
  ],
  "properties": {
    "name": {"type": "string", "minLength": 1},
    "api_key": {"type": "string"},
    "base_url": {"type": "string", "pattern": "^https?://"},
    "base_urls": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["url"],
        "properties": {
          "url": {"type": "string", "pattern": "^https?://"},
          "latency_ms": {"type": ["integer", "null"], "minimum": 0},
          "last_tested": {"type": ["string", "null"]},
          "quality": {"enum": ["excellent", "good", "fair", "poor", "failed", "untested"]}
        }
      }
    },
    "model_type": {"enum": ["claude", "codex", "gemini"]},
    "protocol": {"enum": ["", "anthropic", "openai", "openai-compatible"]},
    "description": {"type": "string"},
    "enabled": {"type": "boolean"},
    "models": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id"],
        "properties": {
          "id": {"type": "string", "minLength": 1},
          "name": {"type": "string"},
          "reasoning_effort": {"enum": ["", "low", "medium", "high"]},
          "thinking_budget": {"type": ["integer", "null"], "minimum": 0}
        }
      }
    }
  }
}`

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

func providerSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		if err := c.AddResource("provider.json", strings.NewReader(recordSchema)); err != nil {
			schemaErr = err
			return
		}
		compiledSchema, schemaErr = c.Compile("provider.json")
	})
	return compiledSchema, schemaErr
}

// DecodeRecord validates raw against the record schema and decodes it. A
// record that omits "enabled" is enabled.
func DecodeRecord(raw []byte) (Provider, error) {
	var doc any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return Provider{}, invalid("record", "malformed json: %v", err)
	}
	sch, err := providerSchema()
	if err != nil {
		return Provider{}, fmt.Errorf("compile provider schema: %w", err)
	}
	if err := sch.Validate(doc); err != nil {
		return Provider{}, schemaViolation(err)
	}

	var p Provider
	if err := json.Unmarshal(raw, &p); err != nil {
		return Provider{}, invalid("record", "%v", err)
	}
	if obj, ok := doc.(map[string]any); ok {
		if _, set := obj["enabled"]; !set {
			p.Enabled = true
		}
	}
	return p, nil
}

func schemaViolation(err error) error {
	var verr *jsonschema.ValidationError
	if !errors.As(err, &verr) {
		return invalid("record", "%v", err)
	}
	leaf := verr
	for len(leaf.Causes) > 0 {
		leaf = leaf.Causes[0]
	}
	field := strings.TrimPrefix(leaf.InstanceLocation, "/")
	if field == "" {
		field = "record"
	}
	return &ValidationError{Field: strings.ReplaceAll(field, "/", "."), Reason: leaf.Message}
}
