package config

import (
	"github.com/cihanayindi/touchswipe-identifier-AIoT/internal/errors"
)

// ParseMode maps a subcommand name onto a Mode.
func ParseMode(name string) (Mode, error) {
	switch Mode(name) {
	case ModeGateway, ModePredict:
		return Mode(name), nil
	default:
		return "", errors.New().WithData(errors.ErrInvalidMode, name)
	}
}

// Validate checks the keys the configured mode depends on. Settings that only
// the other mode reads are not checked.
func (c *Config) Validate() error {
	errFactory := errors.New()

	if _, err := ParseMode(string(c.Mode)); err != nil {
		return err
	}

	if c.Serial.Device == "" {
		return missing("serial.device")
	}
	if c.Serial.BaudRate <= 0 {
		return errFactory.WithData(errors.ErrInvalidConfig, struct {
			Key   string
			Value int
		}{"serial.baud_rate", c.Serial.BaudRate})
	}
	if c.Serial.ReadTimeout <= 0 || c.Serial.PollInterval <= 0 {
		return errFactory.WithData(errors.ErrInvalidInterval, struct {
			ReadTimeout  string
			PollInterval string
		}{c.Serial.ReadTimeout.String(), c.Serial.PollInterval.String()})
	}
	if c.Serial.MaxLineLength <= 0 {
		return missing("serial.max_line_length")
	}

	if c.Journal.Enabled && c.Journal.DBPath == "" {
		return missing("journal.db_path")
	}

	switch c.Mode {
	case ModeGateway:
		return c.validateGateway()
	case ModePredict:
		return c.validatePredict()
	}

	return nil
}

func (c *Config) validateGateway() error {
	b := c.Broker
	required := []struct {
		key   string
		value string
	}{
		{"broker.host", b.Host},
		{"broker.topic", b.Topic},
		{"broker.ca_file", b.CAFile},
		{"store.path", c.Store.Path},
	}
	for _, r := range required {
		if r.value == "" {
			return missing(r.key)
		}
	}

	if b.Port <= 0 || b.Port > 65535 {
		return errors.New().WithData(errors.ErrInvalidConfig, struct {
			Key   string
			Value int
		}{"broker.port", b.Port})
	}
	if b.QueueSize <= 0 || b.PublishAttempts <= 0 || b.Retry.MaxAttempts <= 0 {
		return errors.New().New(errors.ErrInvalidConfig).
			WithMessage("broker.queue_size, broker.publish_attempts and broker.retry.max_attempts must be positive")
	}
	if b.ConnectTimeout <= 0 || b.AckTimeout <= 0 || b.Retry.Cooldown <= 0 {
		return errors.New().WithData(errors.ErrInvalidInterval, "broker timeouts must be positive")
	}

	return nil
}

func (c *Config) validatePredict() error {
	for key, value := range map[string]string{
		"model.scaler": c.Model.Scaler,
		"model.forest": c.Model.Forest,
		"model.labels": c.Model.Labels,
	} {
		if value == "" {
			return missing(key)
		}
	}

	return nil
}

func missing(key string) error {
	return errors.New().WithData(errors.ErrMissingConfig, key)
}
