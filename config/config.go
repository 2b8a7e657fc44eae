// Package config loads the client's settings from the environment.
package config

import (
	"io"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Prefix is prepended to every environment variable, e.g. CONVERT_API_BASE_URL
const Prefix = "convert"

// Config is the full client configuration
type Config struct {
	API    API
	Log    Log
	Sentry Sentry
	Redis  Redis

	// SaveDir is where downloads and logs are written by the file sink
	SaveDir string `envconfig:"SAVE_DIR" default:"."`

	// PollInterval is the delay between refreshes while watching a job
	PollInterval time.Duration `envconfig:"POLL_INTERVAL" default:"5s"`
}

// API locates the conversion service
type API struct {
	BaseURL string        `envconfig:"BASE_URL" default:"http://localhost:6969/api"`
	Timeout time.Duration `envconfig:"TIMEOUT" default:"30s"`
}

// Sentry enables exception reporting when DSN is set
type Sentry struct {
	DSN string `envconfig:"DSN"`
	Env string `envconfig:"ENV" default:"dev"`
}

func (s Sentry) Enabled() bool { return s.DSN != "" }

// Redis enables the redis sink when Addr is set
type Redis struct {
	Addr     string `envconfig:"ADDR"`
	DB       int    `envconfig:"DB"`
	Password string `envconfig:"PASSWORD"`
}

func (r Redis) Enabled() bool { return r.Addr != "" }

// Log configures the logrus logger
type Log struct {
	Level  string `envconfig:"LEVEL" default:"info"`
	Format string `envconfig:"FORMAT" default:"text"`

	// Out defaults to stderr
	Out io.Writer `ignored:"true"`
}

// Logger builds a logger from the configuration
func (l Log) Logger() (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(l.Level)
	if err != nil {
		return nil, errors.Wrap(err, "log level")
	}

	logger := logrus.New()
	logger.SetLevel(level)
	logger.SetOutput(os.Stderr)
	if l.Out != nil {
		logger.SetOutput(l.Out)
	}

	switch l.Format {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	case "text", "":
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return nil, errors.Errorf("log format %q: want text or json", l.Format)
	}

	return logger, nil
}

// Load reads the configuration from the environment
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, errors.Wrap(err, "loading config")
	}
	return &cfg, nil
}

// LoadConfig is Load for callers that cannot continue without a config
func LoadConfig() *Config {
	cfg, err := Load()
	if err != nil {
		logrus.Fatal(err)
	}
	return cfg
}
