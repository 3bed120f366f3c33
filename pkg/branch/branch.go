// Package branch selects the outgoing connection of condition and split steps.
// Evaluation is pure: the same config and context always yield the same label.
package branch

import (
	"github.com/dukex/journey/pkg/models"
	"github.com/mitchellh/mapstructure"
)

// Kind discriminates branch configurations.
type Kind string

const (
	KindScoreRange   Kind = "score_range"
	KindLeadGrade    Kind = "lead_grade"
	KindUnrecognized Kind = ""
)

const (
	DefaultLabel      = "default"
	UnrecognizedLabel = "yes"
)

// Config is one of ScoreRange, LeadGrade or Unrecognized.
type Config interface {
	Kind() Kind
	isConfig()
}

// Range is one band of a score_range configuration.
type Range struct {
	Min   *float64 `mapstructure:"min"`
	Max   *float64 `mapstructure:"max"`
	Label string   `mapstructure:"label"`
}

type ScoreRange struct {
	Ranges []Range
}

func (ScoreRange) Kind() Kind { return KindScoreRange }
func (ScoreRange) isConfig()  {}

type LeadGrade struct {
	// Grades maps grade letters to labels; the "default" entry is the fallback label.
	Grades map[string]string
}

func (LeadGrade) Kind() Kind { return KindLeadGrade }
func (LeadGrade) isConfig()  {}

// Unrecognized holds any other configuration type, including a missing one.
type Unrecognized struct {
	Type string
}

func (Unrecognized) Kind() Kind { return KindUnrecognized }
func (Unrecognized) isConfig()  {}

type rawConfig struct {
	Type   string            `mapstructure:"type"`
	Ranges []Range           `mapstructure:"ranges"`
	Grades map[string]string `mapstructure:"grades"`
}

// ParseConfig reads a step configuration. Malformed fields of a known kind
// are ignored rather than rejected so evaluation never fails at run time.
func ParseConfig(config map[string]any) Config {
	var raw rawConfig

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &raw,
		WeaklyTypedInput: true,
	})
	if err == nil {
		err = decoder.Decode(config)
	}

	if err != nil {
		typ, _ := config["type"].(string)
		raw = rawConfig{Type: typ}
	}

	switch Kind(raw.Type) {
	case KindScoreRange:
		return ScoreRange{Ranges: raw.Ranges}
	case KindLeadGrade:
		return LeadGrade{Grades: raw.Grades}
	default:
		return Unrecognized{Type: raw.Type}
	}
}

// Context is the execution state a branch may depend on.
type Context struct {
	ExecutionID string
	ContactID   string
	Score       *float64
	Grade       string
}

// Evaluate returns the branch label for cfg.
func Evaluate(cfg Config, _ Context) string {
	switch c := cfg.(type) {
	case ScoreRange:
		// TODO: compare Context.Score against c.Ranges once range semantics are agreed with product.
		return DefaultLabel
	case LeadGrade:
		if label := c.Grades[DefaultLabel]; label != "" {
			return label
		}

		return DefaultLabel
	default:
		return UnrecognizedLabel
	}
}

// SelectConnection returns the connection labeled label, otherwise the first
// connection, otherwise nil. connections must be ordered by position.
func SelectConnection(label string, connections []*models.StepConnection) *models.StepConnection {
	for _, connection := range connections {
		if connection.Label == label {
			return connection
		}
	}

	if len(connections) > 0 {
		return connections[0]
	}

	return nil
}
