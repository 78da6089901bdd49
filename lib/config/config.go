// Package config loads process configuration from REMIND_* environment variables.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const Prefix = "REMIND"

type Config struct {
	DbConnectionUri string   `required:"true" split_words:"true"`
	QueueHostPorts  []string `required:"true" split_words:"true"`

	JobsTopic         string `default:"remind.jobs" split_words:"true"`
	JobsConsumerGroup string `default:"remind-workers" split_words:"true"`

	RelayInterval     time.Duration `default:"1s" split_words:"true"`
	RelayLimit        int           `default:"100" split_words:"true"`
	RelayReclaimAfter time.Duration `default:"2m" split_words:"true"`

	JobMaxAttempts    uint16        `default:"3" split_words:"true"`
	JobRetryBaseDelay time.Duration `default:"60s" split_words:"true"`
	JobRetryMaxDelay  time.Duration `default:"10m" split_words:"true"`
	WorkerConcurrency int           `default:"4" split_words:"true"`
	MinDelay          time.Duration `default:"1s" split_words:"true"`
	NotifyClaimTtl    time.Duration `default:"5m" split_words:"true"`

	SweepSchedule       string  `default:"@every 1m" split_words:"true"`
	SweepLimit          int     `default:"100" split_words:"true"`
	SweepSendsPerSecond float64 `default:"5" split_words:"true"`

	SendgridApiKey string        `split_words:"true"`
	SendgridApiUrl string        `default:"https://api.sendgrid.com/v3/mail/send" split_words:"true"`
	SenderEmail    string        `default:"noreply@personalassistant.com" split_words:"true"`
	SendTimeout    time.Duration `default:"10s" split_words:"true"`

	HttpAddress string `default:":8080" split_words:"true"`
	LogLevel    string `default:"info" split_words:"true"`
	LogFormat   string `default:"text" split_words:"true"`
}

// Load reads the configuration from the environment.
func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return cfg, fmt.Errorf("load config: %w", err)
	}
	if cfg.JobMaxAttempts == 0 {
		return cfg, fmt.Errorf("load config: %s_JOB_MAX_ATTEMPTS must be at least 1", Prefix)
	}
	return cfg, nil
}

// MustLoad is like Load but panics on error.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Logger builds the process logger writing to w.
func (c Config) Logger(w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.LogFormat, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
