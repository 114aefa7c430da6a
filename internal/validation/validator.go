// Package validation checks the shape of workflow and rule payloads at the
// API boundary, before they reach the services.
package validation

import (
	"encoding/json"
	"fmt"
	"strings"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"projectflow/backend/pkg/models"
)

// Error is a failed validation. Violations lists each problem with the
// JSON location it was found at.
type Error struct {
	Message    string
	Violations []string
}

func (e *Error) Error() string {
	return e.Message
}

// Validator validates payloads against the embedded JSON Schemas plus the
// structural checks JSON Schema cannot express. It is safe for concurrent use.
type Validator struct {
	workflowSchema *jsonschema.Schema
	ruleSchema     *jsonschema.Schema
}

// New compiles the embedded schemas.
func New() (*Validator, error) {
	c := jsonschema.NewCompiler()

	wf, err := compile(c, workflowSchemaURL, workflowSchemaJSON)
	if err != nil {
		return nil, err
	}
	rule, err := compile(c, ruleSchemaURL, ruleSchemaJSON)
	if err != nil {
		return nil, err
	}
	return &Validator{workflowSchema: wf, ruleSchema: rule}, nil
}

// MustNew is New for package-level initialisation; the schemas are
// constants, so a failure is a programming error.
func MustNew() *Validator {
	v, err := New()
	if err != nil {
		panic(err)
	}
	return v
}

func compile(c *jsonschema.Compiler, url, src string) (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("unmarshal schema %s: %w", url, err)
	}
	if err := c.AddResource(url, doc); err != nil {
		return nil, fmt.Errorf("add schema resource %s: %w", url, err)
	}
	s, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema %s: %w", url, err)
	}
	return s, nil
}

// ValidateWorkflow checks a workflow spec: schema shape, unique stage keys
// and terminal stages that name existing stages.
func (v *Validator) ValidateWorkflow(spec *models.WorkflowSpec) error {
	if spec == nil {
		return &Error{Message: "workflow spec is nil"}
	}
	if err := validateSchema(v.workflowSchema, spec); err != nil {
		return err
	}

	var violations []string
	seen := make(map[string]struct{}, len(spec.Stages))
	for i, stage := range spec.Stages {
		if _, dup := seen[stage.Key]; dup {
			violations = append(violations, fmt.Sprintf("/stages/%d/key: duplicate stage key %q", i, stage.Key))
			continue
		}
		seen[stage.Key] = struct{}{}
	}
	for i, key := range spec.TerminalStages {
		if _, ok := seen[key]; !ok {
			violations = append(violations, fmt.Sprintf("/terminal_stages/%d: unknown stage %q", i, key))
		}
	}
	return violationError(violations)
}

// ValidateRule checks a rule spec against the rule schema.
func (v *Validator) ValidateRule(spec *models.RuleSpec) error {
	if spec == nil {
		return &Error{Message: "rule spec is nil"}
	}
	return validateSchema(v.ruleSchema, spec)
}

func validateSchema(s *jsonschema.Schema, payload any) error {
	doc, err := toJSONValue(payload)
	if err != nil {
		return &Error{Message: "failed to serialize payload: " + err.Error()}
	}
	if err := s.Validate(doc); err != nil {
		verr, ok := err.(*jsonschema.ValidationError)
		if !ok {
			return &Error{Message: err.Error()}
		}
		return violationError(collectViolations(verr))
	}
	return nil
}

func violationError(violations []string) error {
	switch len(violations) {
	case 0:
		return nil
	case 1:
		return &Error{Message: violations[0], Violations: violations}
	default:
		return &Error{
			Message:    fmt.Sprintf("validation failed with %d errors", len(violations)),
			Violations: violations,
		}
	}
}

// toJSONValue round-trips a Go value through JSON so numbers become
// json.Number, as the jsonschema library expects.
func toJSONValue(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jsonschema.UnmarshalJSON(strings.NewReader(string(b)))
}

// collectViolations walks a ValidationError tree and returns its leaf
// messages prefixed with their instance location.
func collectViolations(verr *jsonschema.ValidationError) []string {
	if len(verr.Causes) == 0 {
		loc := "/"
		if len(verr.InstanceLocation) > 0 {
			loc = "/" + strings.Join(verr.InstanceLocation, "/")
		}
		return []string{fmt.Sprintf("%s: %s", loc, verr.Error())}
	}

	var violations []string
	for _, cause := range verr.Causes {
		violations = append(violations, collectViolations(cause)...)
	}
	return violations
}
