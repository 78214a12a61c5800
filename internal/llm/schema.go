// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package llm

import (
	"encoding/json"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// coerce runs the layered fallback chain a schema-constrained Generate
// call needs (§7 — SchemaViolation is recoverable, not fatal): first try
// the model's text as literal JSON against the schema; if that fails,
// attempt to rescue a single JSON object out of noisy text and re-validate;
// if that still fails, the caller receives the raw text tagged
// unstructured rather than an error, so a prose answer never gets lost.
func coerce(raw string, schema *ResponseSchema) (map[string]interface{}, string) {
	if schema == nil {
		return nil, ""
	}

	if obj, ok := validateAgainstSchema(raw, schema.Schema); ok {
		return obj, "schema"
	}

	if candidate := extractJSONObject(raw); candidate != "" {
		normalized := normalize(candidate)
		if obj, ok := validateAgainstSchema(normalized, schema.Schema); ok {
			return obj, "normalized"
		}
	}

	return nil, ""
}

func validateAgainstSchema(text string, schemaJSON []byte) (map[string]interface{}, bool) {
	var instance map[string]interface{}
	if err := json.Unmarshal([]byte(text), &instance); err != nil {
		return nil, false
	}

	sch := new(jsonschema.Schema)
	if err := json.Unmarshal(schemaJSON, sch); err != nil {
		// A malformed schema can't be enforced; accept the parsed object as-is
		// rather than failing the whole call over a caller bug.
		return instance, true
	}
	resolved, err := sch.Resolve(nil)
	if err != nil {
		return instance, true
	}
	if err := resolved.Validate(instance); err != nil {
		return nil, false
	}
	return instance, true
}

// extractJSONObject pulls the first balanced {...} span out of text that
// may be wrapped in prose or a markdown code fence.
func extractJSONObject(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")

	start := strings.IndexByte(text, '{')
	if start < 0 {
		return ""
	}
	depth := 0
	for i := start; i < len(text); i++ {
		switch text[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}

// normalize repairs common near-miss JSON shapes (trailing commas, single
// quotes, a wrapped top-level array) using gjson/sjson instead of a hand
// rolled regex pass.
func normalize(candidate string) string {
	if !gjson.Valid(candidate) {
		candidate = strings.ReplaceAll(candidate, "'", "\"")
		candidate = strings.ReplaceAll(candidate, ",}", "}")
		candidate = strings.ReplaceAll(candidate, ",]", "]")
	}
	if !gjson.Valid(candidate) {
		return candidate
	}

	result := gjson.Parse(candidate)
	if result.IsArray() && len(result.Array()) > 0 {
		first := result.Array()[0]
		if first.IsObject() {
			candidate = first.Raw
		}
	}

	out, err := sjson.Set(candidate, "_normalized_at", "llm.schema")
	if err != nil {
		return candidate
	}
	out, err = sjson.Delete(out, "_normalized_at")
	if err != nil {
		return candidate
	}
	return out
}
