package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Settings are the process-level knobs read from the environment.
type Settings struct {
	QueriesFile string        `env:"ETL_QUERIES_FILE" envDefault:"config/queries.yml"`
	CacheFile   string        `env:"ETL_CACHE_FILE" envDefault:"cache.json"`
	WebhookURL  string        `env:"ETL_TEAMS_WEBHOOK_URL"` // used when the config leaves webhook_url empty
	SleepTime   int           `env:"ETL_SLEEP_TIME" envDefault:"300"` // seconds between cycles
	LogLevel    string        `env:"ETL_LOG_LEVEL" envDefault:"info"`
	MetricsAddr string        `env:"ETL_METRICS_ADDR"` // e.g. :9108, empty disables /metrics
	RunOnce     bool          `env:"ETL_RUN_ONCE"`
	HTTPTimeout time.Duration `env:"ETL_HTTP_TIMEOUT" envDefault:"10s"`
}

// LoadSettings parses Settings from the process environment.
func LoadSettings() (Settings, error) {
	var s Settings
	if err := env.Parse(&s); err != nil {
		return Settings{}, fmt.Errorf("parse env: %w", err)
	}
	if s.SleepTime < 0 {
		return Settings{}, fmt.Errorf("%w: ETL_SLEEP_TIME must not be negative", ErrInvalidConfig)
	}
	return s, nil
}

// Interval is the pause between two cycles.
func (s Settings) Interval() time.Duration {
	return time.Duration(s.SleepTime) * time.Second
}
