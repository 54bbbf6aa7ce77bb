package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Chat service defaults, matching what the web client always used.
const (
	DefaultBaseURL        = "http://localhost:8000"
	DefaultTopK           = 5
	DefaultMinSimilarity  = 0.05
	DefaultChatTimeout    = 30 * time.Second
	DefaultHealthTimeout  = 5 * time.Second
	DefaultHealthInterval = 30 * time.Second

	// MaxTopK is the upper bound the chat service accepts for top_k.
	MaxTopK = 20
)

// Serve-mode defaults
const (
	DefaultServerAddr = ":3000"
	DefaultRateRPS    = 2.0
	DefaultRateBurst  = 4

	DefaultStreamName    = "RAGCHAT"
	DefaultSubjectPrefix = "ragchat.conversation"
)

// Websocket tuning for the serve-mode bridge.
const (
	WriteWait      = 10 * time.Second    // Time allowed to write a message to the peer
	PongWait       = 60 * time.Second    // Time allowed to read the next pong message from the peer
	PingPeriod     = (PongWait * 9) / 10 // Send pings with this period, must be less than PongWait
	MaxMessageSize = 8192                // Maximum message size allowed from peer
)

// Config is the complete client configuration.
type Config struct {
	BaseURL string       `yaml:"base_url"`
	Chat    ChatConfig   `yaml:"chat"`
	Health  HealthConfig `yaml:"health"`
	Server  ServerConfig `yaml:"server"`
	Nats    NatsConfig   `yaml:"nats"`
	Log     LogConfig    `yaml:"log"`
}

type ChatConfig struct {
	TopK          int           `yaml:"top_k"`
	MinSimilarity float64       `yaml:"min_similarity"`
	Timeout       time.Duration `yaml:"timeout"`
}

type HealthConfig struct {
	Timeout  time.Duration `yaml:"timeout"`
	Interval time.Duration `yaml:"interval"`
}

type ServerConfig struct {
	Addr      string  `yaml:"addr"`
	RateRPS   float64 `yaml:"rate_rps"`
	RateBurst int     `yaml:"rate_burst"`
}

// NatsConfig controls the transcript mirror. An empty URL disables it.
type NatsConfig struct {
	URL           string `yaml:"url"`
	StreamName    string `yaml:"stream"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// Default returns a config populated with every default.
func Default() *Config {
	return &Config{
		BaseURL: DefaultBaseURL,
		Chat: ChatConfig{
			TopK:          DefaultTopK,
			MinSimilarity: DefaultMinSimilarity,
			Timeout:       DefaultChatTimeout,
		},
		Health: HealthConfig{
			Timeout:  DefaultHealthTimeout,
			Interval: DefaultHealthInterval,
		},
		Server: ServerConfig{
			Addr:      DefaultServerAddr,
			RateRPS:   DefaultRateRPS,
			RateBurst: DefaultRateBurst,
		},
		Nats: NatsConfig{
			StreamName:    DefaultStreamName,
			SubjectPrefix: DefaultSubjectPrefix,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load builds a config from defaults, the YAML file at path and the
// environment, in that order of precedence. A missing file is only an error
// when required is true. A .env file in the working directory is loaded
// first if present.
func Load(path string, required bool) (*Config, error) {
	_ = godotenv.Load(".env")

	cfg := Default()
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			if !errors.Is(err, os.ErrNotExist) || required {
				return nil, err
			}
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// Validate checks every value and normalizes the base URL.
func (c *Config) Validate() error {
	base := strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	u, err := url.Parse(base)
	if err != nil {
		return fmt.Errorf("invalid base_url %q: %w", c.BaseURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid base_url %q: want http(s)://host[:port]", c.BaseURL)
	}
	c.BaseURL = base

	if c.Chat.TopK < 1 || c.Chat.TopK > MaxTopK {
		return fmt.Errorf("chat.top_k must be between 1 and %d, got %d", MaxTopK, c.Chat.TopK)
	}
	if c.Chat.MinSimilarity < 0 || c.Chat.MinSimilarity > 1 {
		return fmt.Errorf("chat.min_similarity must be between 0 and 1, got %v", c.Chat.MinSimilarity)
	}
	if c.Chat.Timeout <= 0 {
		return fmt.Errorf("chat.timeout must be positive")
	}
	if c.Health.Timeout <= 0 || c.Health.Interval <= 0 {
		return fmt.Errorf("health.timeout and health.interval must be positive")
	}
	if c.Server.RateRPS <= 0 || c.Server.RateBurst <= 0 {
		return fmt.Errorf("server.rate_rps and server.rate_burst must be positive")
	}
	if c.Nats.URL != "" && (c.Nats.StreamName == "" || c.Nats.SubjectPrefix == "") {
		return fmt.Errorf("nats.stream and nats.subject_prefix are required when nats.url is set")
	}
	return nil
}
