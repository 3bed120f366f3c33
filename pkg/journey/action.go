package journey

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

var actionChannels = map[string]string{
	"send_email": "email",
	"send_sms":   "sms",
	"send_push":  "push",
}

type actionConfig struct {
	Action     string `mapstructure:"action"`
	TemplateID string `mapstructure:"templateId"`
}

// parseAction returns the action config and its delivery channel.
func parseAction(config map[string]any) (actionConfig, string, error) {
	var cfg actionConfig

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &cfg,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return cfg, "", err
	}

	err = decoder.Decode(config)
	if err != nil {
		return cfg, "", fmt.Errorf("invalid action config: %w", err)
	}

	channel, ok := actionChannels[cfg.Action]
	if !ok {
		return cfg, "", fmt.Errorf("%w %q", ErrUnknownAction, cfg.Action)
	}

	return cfg, channel, nil
}
