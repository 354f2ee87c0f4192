// Package validate wires a JSON Schema compiler as a structural check
// that the ingest controller runs on /events and /ingest bodies before
// its own ad hoc field checks.
package validate

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

const defaultEventsSchema = `{
  "type": "object",
  "properties": {
    "events": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "event_id": {"type": "string"},
          "event_type": {"type": "string"},
          "source": {"type": "string"},
          "user_id": {"type": "string"},
          "occurred_at": {"type": "string"},
          "payload": {"type": "object"}
        }
      }
    },
    "action": {"type": "string"},
    "lines": {"type": "array", "items": {"type": "string"}},
    "source": {"type": "string"},
    "user_id": {"type": "string"}
  }
}`

const defaultIngestSchema = `{
  "type": "object",
  "required": ["source", "event_type", "payload"],
  "properties": {
    "source": {"type": "string"},
    "event_type": {"type": "string"},
    "payload": {"type": "object"}
  }
}`

// Validator compiles and caches the /events and /ingest schemas.
type Validator struct {
	events *jsonschema.Schema
	ingest *jsonschema.Schema
}

// New compiles the events/ingest schemas. An empty schemaFile uses the
// built-in defaults above.
func New(schemaFile string) (*Validator, error) {
	eventsSrc := defaultEventsSchema
	ingestSrc := defaultIngestSchema

	if schemaFile != "" {
		raw, err := readSchemaFile(schemaFile)
		if err != nil {
			return nil, err
		}
		eventsSrc = raw
	}

	events, err := compile("ingestgw://events.json", eventsSrc)
	if err != nil {
		return nil, fmt.Errorf("validate: compile events schema: %w", err)
	}
	ingest, err := compile("ingestgw://ingest.json", ingestSrc)
	if err != nil {
		return nil, fmt.Errorf("validate: compile ingest schema: %w", err)
	}
	return &Validator{events: events, ingest: ingest}, nil
}

func readSchemaFile(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("validate: read schema file: %w", err)
	}
	return string(raw), nil
}

func compile(url, src string) (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(src))
	if err != nil {
		return nil, err
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(url, doc); err != nil {
		return nil, err
	}
	return c.Compile(url)
}

// ValidateEvents checks body against the /events schema.
func (v *Validator) ValidateEvents(body []byte) error {
	return validateAgainst(v.events, body)
}

// ValidateIngest checks body against the /ingest schema.
func (v *Validator) ValidateIngest(body []byte) error {
	return validateAgainst(v.ingest, body)
}

func validateAgainst(schema *jsonschema.Schema, body []byte) error {
	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return fmt.Errorf("invalid json: %w", err)
	}
	return schema.Validate(doc)
}
