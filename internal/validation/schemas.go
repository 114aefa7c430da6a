package validation

const workflowSchemaURL = "https://projectflow.dev/schemas/workflow.json"

// workflowSchemaJSON describes a WorkflowSpec as the API receives it.
const workflowSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://projectflow.dev/schemas/workflow.json",
  "type": "object",
  "required": ["name", "stages"],
  "properties": {
    "name": { "type": "string", "minLength": 1, "maxLength": 255, "pattern": "\\S" },
    "description": { "type": "string" },
    "type": { "type": "string", "maxLength": 100 },
    "stages": {
      "type": "array",
      "minItems": 1,
      "items": { "$ref": "#/$defs/stage" }
    },
    "terminal_stages": {
      "type": ["array", "null"],
      "items": { "type": "string", "minLength": 1 }
    },
    "rules": { "type": ["object", "null"] },
    "is_active": { "type": ["boolean", "null"] }
  },
  "$defs": {
    "stage": {
      "type": "object",
      "required": ["key"],
      "properties": {
        "key": { "type": "string", "minLength": 1, "maxLength": 100, "pattern": "^\\S+$" },
        "name": { "type": "string" },
        "position": { "type": "integer", "minimum": 0 }
      },
      "additionalProperties": false
    }
  }
}`

const ruleSchemaURL = "https://projectflow.dev/schemas/rule.json"

// ruleSchemaJSON describes a RuleSpec. Conditions must be an object, but an
// empty object is allowed.
const ruleSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://projectflow.dev/schemas/rule.json",
  "type": "object",
  "required": ["name", "rule_type", "conditions"],
  "properties": {
    "name": { "type": "string", "minLength": 1, "maxLength": 255, "pattern": "\\S" },
    "description": { "type": "string" },
    "rule_type": { "type": "string", "minLength": 1, "maxLength": 50 },
    "conditions": { "type": "object" },
    "expression": { "type": "string" },
    "actions": { "type": ["object", "null"] },
    "is_active": { "type": ["boolean", "null"] }
  }
}`
