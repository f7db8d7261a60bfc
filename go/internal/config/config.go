package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Push transport choices for the client
const (
	PushWebSocket = "ws"
	PushNATS      = "nats"
	PushNone      = "none"
)

// Config is the file layout of wordduel.yaml. Every section is optional.
type Config struct {
	Client ClientConfig `yaml:"client"`
	Server ServerConfig `yaml:"server"`
}

// ClientConfig holds settings for a session view
type ClientConfig struct {
	ServerURL        string        `yaml:"server_url"`
	Push             string        `yaml:"push"`
	NATSURL          string        `yaml:"nats_url"`
	SubjectPrefix    string        `yaml:"subject_prefix"`
	PlayerID         string        `yaml:"player_id"`
	Token            string        `yaml:"token"`
	PollInterval     time.Duration `yaml:"poll_interval"`
	TickInterval     time.Duration `yaml:"tick_interval"`
	PullTimeout      time.Duration `yaml:"pull_timeout"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
}

// ServerConfig holds settings for the match server
type ServerConfig struct {
	Port          string        `yaml:"port"`
	JWTSecret     string        `yaml:"jwt_secret"`
	TokenTTL      time.Duration `yaml:"token_ttl"`
	StartingCoins int           `yaml:"starting_coins"`
	MaxHints      int           `yaml:"max_hints"`
	NATSURL       string        `yaml:"nats_url"`
	SubjectPrefix string        `yaml:"subject_prefix"`
	DevLogin      bool          `yaml:"dev_login"`
	AllowedOrigin []string      `yaml:"allowed_origins"`
}

// Default returns the built-in configuration
func Default() Config {
	return Config{
		Client: ClientConfig{
			ServerURL:        "http://localhost:8090",
			Push:             PushWebSocket,
			NATSURL:          "nats://localhost:4222",
			SubjectPrefix:    "wordduel",
			PollInterval:     3 * time.Second,
			TickInterval:     time.Second,
			PullTimeout:      5 * time.Second,
			HandshakeTimeout: 5 * time.Second,
		},
		Server: ServerConfig{
			Port:          "8090",
			JWTSecret:     "dev-secret-change-me",
			TokenTTL:      24 * time.Hour,
			StartingCoins: 3,
			MaxHints:      3,
			SubjectPrefix: "wordduel",
			DevLogin:      true,
			AllowedOrigin: []string{"*"},
		},
	}
}

// Load reads the optional YAML file at path over the defaults and then applies
// environment overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}

	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromEnv loads the file named by WORDDUEL_CONFIG, if any
func FromEnv() (*Config, error) {
	return Load(os.Getenv("WORDDUEL_CONFIG"))
}

func (c *Config) applyEnv() {
	cl := &c.Client
	cl.ServerURL = getEnv("WORDDUEL_SERVER_URL", cl.ServerURL)
	cl.Push = getEnv("WORDDUEL_PUSH", cl.Push)
	cl.NATSURL = getEnv("NATS_URL", cl.NATSURL)
	cl.SubjectPrefix = getEnv("WORDDUEL_SUBJECT_PREFIX", cl.SubjectPrefix)
	cl.PlayerID = getEnv("WORDDUEL_PLAYER", cl.PlayerID)
	cl.Token = getEnv("WORDDUEL_TOKEN", cl.Token)
	cl.PollInterval = getEnvAsDuration("WORDDUEL_POLL_INTERVAL", cl.PollInterval)
	cl.TickInterval = getEnvAsDuration("WORDDUEL_TICK_INTERVAL", cl.TickInterval)
	cl.PullTimeout = getEnvAsDuration("WORDDUEL_PULL_TIMEOUT", cl.PullTimeout)
	cl.HandshakeTimeout = getEnvAsDuration("WORDDUEL_HANDSHAKE_TIMEOUT", cl.HandshakeTimeout)

	sv := &c.Server
	sv.Port = getEnv("MATCHSERVER_PORT", sv.Port)
	sv.JWTSecret = getEnv("JWT_SECRET", sv.JWTSecret)
	sv.TokenTTL = getEnvAsDuration("TOKEN_TTL", sv.TokenTTL)
	sv.StartingCoins = getEnvAsInt("STARTING_COINS", sv.StartingCoins)
	sv.MaxHints = getEnvAsInt("MAX_HINTS", sv.MaxHints)
	sv.NATSURL = getEnv("MATCHSERVER_NATS_URL", sv.NATSURL)
	sv.SubjectPrefix = getEnv("WORDDUEL_SUBJECT_PREFIX", sv.SubjectPrefix)
	sv.DevLogin = getEnvAsBool("DEV_LOGIN", sv.DevLogin)
}

func (c *Config) validate() error {
	switch c.Client.Push {
	case PushWebSocket, PushNATS, PushNone:
	default:
		return fmt.Errorf("invalid push transport %q", c.Client.Push)
	}
	if c.Client.PollInterval <= 0 || c.Client.TickInterval <= 0 {
		return fmt.Errorf("poll and tick intervals must be positive")
	}
	if c.Server.StartingCoins < 0 || c.Server.MaxHints < 0 {
		return fmt.Errorf("starting coins and max hints must not be negative")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
