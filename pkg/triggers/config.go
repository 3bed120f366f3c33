package triggers

import (
	"github.com/dukex/journey/pkg/events"
	"github.com/dukex/journey/pkg/models"
	"github.com/mitchellh/mapstructure"
)

const DefaultMinScore = 80.0

// Direction is the way a score must cross a score_threshold trigger.
type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
)

// Membership is the segment change a segment trigger reacts to.
type Membership string

const (
	MembershipEnter Membership = "enter"
	MembershipExit  Membership = "exit"
)

type ScoreThresholdConfig struct {
	MinScore  *float64  `mapstructure:"minScore"`
	Direction Direction `mapstructure:"direction"`
}

// Threshold returns the configured minimum score, or DefaultMinScore.
func (c ScoreThresholdConfig) Threshold() float64 {
	if c.MinScore == nil {
		return DefaultMinScore
	}

	return *c.MinScore
}

type IntentSignalConfig struct {
	SignalType string `mapstructure:"signalType"`
}

type SegmentConfig struct {
	SegmentID string     `mapstructure:"segmentId"`
	On        Membership `mapstructure:"on"`
}

// Matches reports whether a membership change of segmentID fires the trigger.
func (c SegmentConfig) Matches(segmentID string, entered bool) bool {
	if c.SegmentID == "" || c.SegmentID != segmentID {
		return false
	}

	if c.On == MembershipExit {
		return !entered
	}

	return entered
}

func decode(config map[string]any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}

	return decoder.Decode(config)
}

// ScoreSignal is a score or intent observation for one contact.
type ScoreSignal struct {
	OrganizationID string
	ContactID      string
	Score          float64
	EventType      events.EventType
	SignalType     string
}

func ScoreSignalFromScoreChanged(e events.ScoreChanged) ScoreSignal {
	return ScoreSignal{
		OrganizationID: e.OrganizationID,
		ContactID:      e.ContactID,
		Score:          e.Score,
		EventType:      e.GetType(),
	}
}

func ScoreSignalFromIntent(e events.IntentSignalObserved) ScoreSignal {
	return ScoreSignal{
		OrganizationID: e.OrganizationID,
		ContactID:      e.ContactID,
		Score:          e.Score,
		EventType:      e.GetType(),
		SignalType:     e.SignalType,
	}
}

// TriggerType returns the trigger type a signal is evaluated against.
func (s ScoreSignal) TriggerType() models.TriggerType {
	if s.EventType == events.IntentSignalObservedEvent {
		return models.TriggerTypeIntentSignal
	}

	return models.TriggerTypeScoreThreshold
}

// ShouldFire decides from the trigger configuration and the signal alone
// whether the trigger fires. Malformed configurations never fire.
func ShouldFire(trigger *models.JourneyTrigger, signal ScoreSignal) bool {
	switch trigger.Type {
	case models.TriggerTypeScoreThreshold:
		var cfg ScoreThresholdConfig
		if decode(trigger.Config, &cfg) != nil {
			return false
		}

		switch cfg.Direction {
		case DirectionUp, "":
			return signal.Score >= cfg.Threshold()
		case DirectionDown:
			return signal.Score < cfg.Threshold()
		default:
			return false
		}
	case models.TriggerTypeIntentSignal:
		var cfg IntentSignalConfig
		if decode(trigger.Config, &cfg) != nil {
			return false
		}

		return cfg.SignalType == "" || cfg.SignalType == signal.SignalType
	default:
		return false
	}
}
