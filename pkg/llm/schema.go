package llm

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// planSchemaDoc builds the plan schema with the tool enum restricted to the
// tools available in the current configuration.
func planSchemaDoc(allowedTools []string) map[string]any {
	toolEnum := make([]any, len(allowedTools))
	for i, t := range allowedTools {
		toolEnum[i] = t
	}
	return map[string]any{
		"type":                 "object",
		"required":             []any{"steps"},
		"additionalProperties": false,
		"properties": map[string]any{
			"steps": map[string]any{
				"type":     "array",
				"minItems": 1,
				"items": map[string]any{
					"type":                 "object",
					"required":             []any{"stepKey", "tool", "title", "reason"},
					"additionalProperties": false,
					"properties": map[string]any{
						"stepKey": map[string]any{"type": "string", "minLength": 1},
						"tool":    map[string]any{"type": "string", "enum": toolEnum},
						"title":   map[string]any{"type": "string", "minLength": 1},
						"reason":  map[string]any{"type": "string", "minLength": 1},
					},
				},
			},
		},
	}
}

const assessmentSchemaJSON = `{
	"type": "object",
	"required": ["summary", "overallScore", "riskLevel", "confidence", "categoryScores", "reasons", "missingData"],
	"additionalProperties": false,
	"properties": {
		"summary": {"type": "string", "minLength": 1},
		"overallScore": {"type": "integer", "minimum": 0, "maximum": 100},
		"riskLevel": {"type": "string", "enum": ["low", "medium", "high", "critical"]},
		"confidence": {"type": "string", "enum": ["low", "medium", "high"]},
		"categoryScores": {
			"type": "object",
			"required": ["contractSecurity", "liquiditySafety", "holderHealth", "marketActivity", "transparencyTrust"],
			"additionalProperties": false,
			"properties": {
				"contractSecurity": {"type": "integer", "minimum": 0, "maximum": 100},
				"liquiditySafety": {"type": "integer", "minimum": 0, "maximum": 100},
				"holderHealth": {"type": "integer", "minimum": 0, "maximum": 100},
				"marketActivity": {"type": "integer", "minimum": 0, "maximum": 100},
				"transparencyTrust": {"type": "integer", "minimum": 0, "maximum": 100}
			}
		},
		"reasons": {
			"type": "array",
			"minItems": 1,
			"items": {
				"type": "object",
				"required": ["title", "detail"],
				"properties": {
					"title": {"type": "string", "minLength": 1},
					"detail": {"type": "string", "minLength": 1},
					"evidenceRefs": {"type": "array", "items": {"type": "string"}}
				}
			}
		},
		"missingData": {"type": "array", "items": {"type": "string"}}
	}
}`

// compileSchema compiles a schema document for validation.
func compileSchema(doc any) (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", doc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
}

// validateJSON checks a raw JSON document against a schema document.
func validateJSON(schemaDoc any, raw []byte) error {
	schema, err := compileSchema(schemaDoc)
	if err != nil {
		return err
	}
	var payload any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return fmt.Errorf("output is not valid JSON: %w", err)
	}
	return schema.Validate(payload)
}

func assessmentSchemaDoc() (any, error) {
	var doc any
	if err := json.Unmarshal([]byte(assessmentSchemaJSON), &doc); err != nil {
		return nil, fmt.Errorf("unmarshal assessment schema: %w", err)
	}
	return doc, nil
}
