package api

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// envelopeSchemaJSON is the inbound Tool Invocation Envelope's JSON
// Schema, validated before the payload is unmarshalled onto
// envelope.Envelope. Ported from the shape of envelope.Envelope
// (internal/envelope), required fields per spec.md §3.
const envelopeSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["tool_name", "domain", "action", "risk_level"],
  "properties": {
    "tool_name": {"type": "string", "minLength": 1},
    "domain": {"type": "string", "minLength": 1},
    "action": {"type": "string", "minLength": 1},
    "risk_level": {"type": "string", "enum": ["low", "medium", "high"]},
    "estimated_cost": {"type": "number", "minimum": 0},
    "context": {"type": "object"},
    "request_id": {"type": "string"},
    "idempotency_key": {"type": "string"},
    "deadline_ms": {"type": "integer", "minimum": 0},
    "trace_id": {"type": "string"},
    "caller": {"type": "string"},
    "tenant": {"type": "string"},
    "priority": {"type": "number", "minimum": 0, "maximum": 1},
    "sandboxed": {"type": "boolean"},
    "requires_validation": {"type": "boolean"},
    "rollback_allowed": {"type": "boolean"}
  }
}`

// envelopeSchema is compiled once at package init and reused across
// requests, matching goadesign-goa-ai's compile-then-validate pattern.
var envelopeSchema = mustCompileSchema("envelope.json", envelopeSchemaJSON)

func mustCompileSchema(resource, schemaJSON string) *jsonschema.Schema {
	var doc any
	if err := json.Unmarshal([]byte(schemaJSON), &doc); err != nil {
		panic(fmt.Sprintf("api: invalid embedded schema %s: %v", resource, err))
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(resource, doc); err != nil {
		panic(fmt.Sprintf("api: add schema resource %s: %v", resource, err))
	}
	schema, err := c.Compile(resource)
	if err != nil {
		panic(fmt.Sprintf("api: compile schema %s: %v", resource, err))
	}
	return schema
}

// validateEnvelope checks raw request bytes against envelopeSchema
// before they are unmarshalled onto envelope.Envelope.
func validateEnvelope(raw []byte) error {
	var doc any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("invalid json: %w", err)
	}
	return envelopeSchema.Validate(doc)
}
