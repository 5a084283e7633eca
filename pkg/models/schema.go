package models

import (
	"errors"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// ErrStepConfigInvalid is returned when a step config does not match its schema.
var ErrStepConfigInvalid = errors.New("step config does not match schema")

var stepConfigSchemas = map[StepType]*gojsonschema.Schema{
	StepTypeAskQuestion: mustSchema(`{"type": "object"}`),
	StepTypeSendMessage: mustSchema(`{"type": "object"}`),
	StepTypeUpdateTag: mustSchema(`{
		"type": "object",
		"required": ["tags"],
		"properties": {
			"tags": {
				"type": "array",
				"minItems": 1,
				"items": {"type": "string", "minLength": 1}
			}
		}
	}`),
}

func mustSchema(source string) *gojsonschema.Schema {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(source))
	if err != nil {
		panic(fmt.Sprintf("invalid step config schema: %v", err))
	}

	return schema
}

// ValidateStepConfig checks the free-form config of a step against the schema of its type.
func ValidateStepConfig(step *WorkflowStep) error {
	schema, ok := stepConfigSchemas[step.Type]
	if !ok {
		return nil
	}

	config := step.Config
	if config == nil {
		config = map[string]any{}
	}

	result, err := schema.Validate(gojsonschema.NewGoLoader(config))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStepConfigInvalid, err)
	}

	if result.Valid() {
		return nil
	}

	messages := make([]string, 0, len(result.Errors()))
	for _, resultErr := range result.Errors() {
		messages = append(messages, resultErr.String())
	}

	return fmt.Errorf("%w: %s", ErrStepConfigInvalid, strings.Join(messages, "; "))
}
