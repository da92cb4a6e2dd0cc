package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/gsarma/judgerun/internal/code"
)

// Config is the process configuration, read from the environment (and an
// optional .env file in the working directory).
type Config struct {
	DatabaseURL       string `env:"DATABASE_URL,required,notEmpty"`
	RootEncryptionKey string `env:"ROOT_ENCRYPTION_KEY,required,notEmpty"`
	Port              string `env:"PORT" envDefault:"8080"`
	// Mode is "api", "worker", or empty for both in one process.
	Mode string `env:"MODE"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	Judge0 Judge0 `envPrefix:"JUDGE0_"`

	WorkerConcurrency  int           `env:"WORKER_CONCURRENCY" envDefault:"5"`
	WorkerPollInterval time.Duration `env:"WORKER_POLL_INTERVAL" envDefault:"500ms"`

	RedisAddr          string `env:"REDIS_ADDR"`
	RateLimitPerMinute int    `env:"RATE_LIMIT_PER_MINUTE" envDefault:"60"`
}

// Judge0 is the server-wide default Judge0 endpoint.
type Judge0 struct {
	URL               string        `env:"URL" envDefault:"http://judge0-server:2358"`
	AuthToken         string        `env:"AUTH_TOKEN"`
	RapidAPIKey       string        `env:"RAPIDAPI_KEY"`
	RapidAPIHost      string        `env:"RAPIDAPI_HOST"`
	OAuthClientID     string        `env:"OAUTH_CLIENT_ID"`
	OAuthClientSecret string        `env:"OAUTH_CLIENT_SECRET"`
	OAuthTokenURL     string        `env:"OAUTH_TOKEN_URL"`
	OAuthScopes       []string      `env:"OAUTH_SCOPES" envSeparator:","`
	MaxAttempts       int           `env:"MAX_ATTEMPTS" envDefault:"30"`
	PollInterval      time.Duration `env:"POLL_INTERVAL" envDefault:"1s"`
	TransportRetries  int           `env:"TRANSPORT_RETRIES" envDefault:"0"`
	HTTPTimeout       time.Duration `env:"HTTP_TIMEOUT" envDefault:"30s"`
}

// ClientConfig converts the env settings into a code.Judge0Config.
func (j Judge0) ClientConfig() code.Judge0Config {
	return code.Judge0Config{
		URL: j.URL,
		Credentials: code.Credentials{
			AuthToken:         j.AuthToken,
			RapidAPIKey:       j.RapidAPIKey,
			RapidAPIHost:      j.RapidAPIHost,
			OAuthClientID:     j.OAuthClientID,
			OAuthClientSecret: j.OAuthClientSecret,
			OAuthTokenURL:     j.OAuthTokenURL,
			OAuthScopes:       j.OAuthScopes,
		},
		MaxAttempts:      j.MaxAttempts,
		PollInterval:     j.PollInterval,
		HTTPTimeout:      j.HTTPTimeout,
		TransportRetries: j.TransportRetries,
	}
}

// Load reads .env (if present) and parses the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadJudge0 parses only the JUDGE0_* variables. Used by the CLI, which has
// no database.
func LoadJudge0() (Judge0, error) {
	_ = godotenv.Load()

	j, err := env.ParseAsWithOptions[Judge0](env.Options{Prefix: "JUDGE0_"})
	if err != nil {
		return Judge0{}, fmt.Errorf("parse env: %w", err)
	}
	return j, nil
}

func (c *Config) validate() error {
	switch c.Mode {
	case "", "api", "worker":
	default:
		return fmt.Errorf("MODE must be api, worker or empty, got %q", c.Mode)
	}
	if c.WorkerConcurrency < 1 {
		return fmt.Errorf("WORKER_CONCURRENCY must be at least 1")
	}
	if c.Judge0.MaxAttempts < 1 {
		return fmt.Errorf("JUDGE0_MAX_ATTEMPTS must be at least 1")
	}
	if c.Judge0.PollInterval <= 0 {
		return fmt.Errorf("JUDGE0_POLL_INTERVAL must be positive")
	}
	return nil
}
