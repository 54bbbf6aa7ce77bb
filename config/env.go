package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "RAGCHAT_"

// ApplyEnv overrides fields from RAGCHAT_* environment variables. Unset or
// blank variables leave the field untouched.
func (c *Config) ApplyEnv() error {
	str := func(name string, dst *string) {
		if v := strings.TrimSpace(os.Getenv(EnvPrefix + name)); v != "" {
			*dst = v
		}
	}
	str("BASE_URL", &c.BaseURL)
	str("SERVER_ADDR", &c.Server.Addr)
	str("NATS_URL", &c.Nats.URL)
	str("NATS_STREAM", &c.Nats.StreamName)
	str("NATS_SUBJECT_PREFIX", &c.Nats.SubjectPrefix)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FILE", &c.Log.File)

	if err := envInt("TOP_K", &c.Chat.TopK); err != nil {
		return err
	}
	if err := envInt("RATE_BURST", &c.Server.RateBurst); err != nil {
		return err
	}
	if err := envFloat("MIN_SIMILARITY", &c.Chat.MinSimilarity); err != nil {
		return err
	}
	if err := envFloat("RATE_RPS", &c.Server.RateRPS); err != nil {
		return err
	}
	if err := envDuration("CHAT_TIMEOUT", &c.Chat.Timeout); err != nil {
		return err
	}
	if err := envDuration("HEALTH_TIMEOUT", &c.Health.Timeout); err != nil {
		return err
	}
	return envDuration("HEALTH_INTERVAL", &c.Health.Interval)
}

func envInt(name string, dst *int) error {
	v := strings.TrimSpace(os.Getenv(EnvPrefix + name))
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s%s %q: %w", EnvPrefix, name, v, err)
	}
	*dst = n
	return nil
}

func envFloat(name string, dst *float64) error {
	v := strings.TrimSpace(os.Getenv(EnvPrefix + name))
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("invalid %s%s %q: %w", EnvPrefix, name, v, err)
	}
	*dst = f
	return nil
}

func envDuration(name string, dst *time.Duration) error {
	v := strings.TrimSpace(os.Getenv(EnvPrefix + name))
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid %s%s %q: %w", EnvPrefix, name, v, err)
	}
	*dst = d
	return nil
}
