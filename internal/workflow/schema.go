package workflow

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const definitionSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["name", "trigger_type", "steps"],
  "properties": {
    "name": {"type": "string", "minLength": 1, "maxLength": 200},
    "description": {"type": "string", "maxLength": 1000},
    "trigger_type": {"enum": ["event", "schedule", "manual", "api"]},
    "trigger_config": {"type": "object"},
    "status": {"enum": ["draft", "active", "archived", "disabled"]},
    "steps": {
      "type": "array",
      "items": {"$ref": "#/$defs/step"}
    }
  },
  "$defs": {
    "step": {
      "type": "object",
      "required": ["type", "name"],
      "properties": {
        "type": {"enum": ["http_request", "condition", "email", "delay", "function"]},
        "name": {"type": "string", "minLength": 1, "maxLength": 100},
        "description": {"type": "string", "maxLength": 500},
        "output_key": {"type": "string"}
      },
      "allOf": [
        {
          "if": {"properties": {"type": {"const": "http_request"}}},
          "then": {
            "required": ["method", "url"],
            "properties": {
              "method": {"enum": ["GET", "POST", "PUT", "DELETE", "PATCH"]},
              "url": {"type": "string", "minLength": 1},
              "headers": {"type": "object", "additionalProperties": {"type": "string"}},
              "body": {"type": "object"},
              "timeout": {"type": "integer", "minimum": 1, "maximum": 300}
            }
          }
        },
        {
          "if": {"properties": {"type": {"const": "condition"}}},
          "then": {
            "required": ["condition"],
            "properties": {
              "condition": {
                "type": "object",
                "required": ["type", "operator", "left", "right"],
                "properties": {
                  "type": {"const": "comparison"},
                  "operator": {"enum": ["eq", "neq", "gt", "gte", "lt", "lte"]},
                  "left": {"$ref": "#/$defs/operand"},
                  "right": {"$ref": "#/$defs/operand"}
                }
              }
            }
          }
        },
        {
          "if": {"properties": {"type": {"const": "email"}}},
          "then": {
            "required": ["to", "subject"],
            "properties": {
              "to": {"type": "array", "items": {"type": "string"}, "minItems": 1},
              "subject": {"type": "string"},
              "body": {"type": "string"}
            }
          }
        },
        {
          "if": {"properties": {"type": {"const": "delay"}}},
          "then": {
            "required": ["seconds"],
            "properties": {
              "seconds": {"type": "number", "minimum": 0, "maximum": 86400}
            }
          }
        },
        {
          "if": {"properties": {"type": {"const": "function"}}},
          "then": {
            "required": ["function"],
            "properties": {
              "function": {"type": "string"},
              "template": {"type": "object"}
            }
          }
        }
      ]
    },
    "operand": {
      "type": "object",
      "required": ["type"],
      "properties": {
        "type": {"enum": ["literal", "variable"]},
        "path": {"type": "string"}
      }
    }
  }
}`

var compiledDefinitionSchema = jsonschema.MustCompileString("workflow-definition.json", definitionSchema)

// ValidateDefinition checks a raw workflow create/update payload against the
// definition schema before the typed parse sees it.
func ValidateDefinition(raw []byte) error {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("invalid json: %w", err)
	}
	if err := compiledDefinitionSchema.Validate(doc); err != nil {
		return fmt.Errorf("definition schema: %w", err)
	}
	return nil
}
