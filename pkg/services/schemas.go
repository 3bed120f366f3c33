package services

import (
	"fmt"
	"strings"

	"github.com/dukex/journey/pkg/models"
	"github.com/xeipuuv/gojsonschema"
)

// stepSchemas are the JSON schemas step configurations must satisfy before a version is published.
var stepSchemas = map[models.StepType]map[string]any{
	models.StepTypeAction: {
		"type":     "object",
		"required": []any{"action"},
		"properties": map[string]any{
			"action":     map[string]any{"type": "string", "enum": []any{"send_email", "send_sms", "send_push"}},
			"templateId": map[string]any{"type": "string"},
			"channel":    map[string]any{"type": "string"},
		},
	},
	models.StepTypeDelay: {
		"type": "object",
		"properties": map[string]any{
			"duration": map[string]any{"type": "number", "minimum": 0, "maximum": 525600},
			"unit":     map[string]any{"type": "string", "enum": []any{"minutes", "hours", "days"}},
		},
	},
	models.StepTypeCondition: branchSchema,
	models.StepTypeSplit:     branchSchema,
	models.StepTypeTrigger:   {"type": "object"},
	models.StepTypeExit:      {"type": "object"},
}

var branchSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"type": map[string]any{"type": "string"},
		"ranges": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type":     "object",
				"required": []any{"label"},
				"properties": map[string]any{
					"min":   map[string]any{"type": "number"},
					"max":   map[string]any{"type": "number"},
					"label": map[string]any{"type": "string"},
				},
			},
		},
		"grades": map[string]any{
			"type":                 "object",
			"additionalProperties": map[string]any{"type": "string"},
		},
	},
}

var triggerSchemas = map[models.TriggerType]map[string]any{
	models.TriggerTypeScoreThreshold: {
		"type": "object",
		"properties": map[string]any{
			"minScore":  map[string]any{"type": "number"},
			"direction": map[string]any{"type": "string", "enum": []any{"up", "down"}},
		},
	},
	models.TriggerTypeIntentSignal: {
		"type": "object",
		"properties": map[string]any{
			"signalType": map[string]any{"type": "string"},
		},
	},
	models.TriggerTypeSegment: {
		"type":     "object",
		"required": []any{"segmentId"},
		"properties": map[string]any{
			"segmentId": map[string]any{"type": "string", "minLength": 1},
			"on":        map[string]any{"type": "string", "enum": []any{"enter", "exit"}},
		},
	},
}

// validateConfig validates config against schema and reports violations wrapped in invalid.
func validateConfig(schema, config map[string]any, invalid error) error {
	if config == nil {
		config = map[string]any{}
	}

	result, err := gojsonschema.Validate(gojsonschema.NewGoLoader(schema), gojsonschema.NewGoLoader(config))
	if err != nil {
		return err
	}

	if !result.Valid() {
		messages := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			messages = append(messages, desc.String())
		}

		return fmt.Errorf("%w: %s", invalid, strings.Join(messages, "; "))
	}

	return nil
}
