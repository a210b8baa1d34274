package notify

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"etl-notifier/internal/config"
)

// Notifier delivers a rendered message to a chat channel.
type Notifier interface {
	Name() string
	Send(ctx context.Context, message string) error
}

// NewFromConfig builds the notifier selected by cfg.Type. defaultTimeout applies when
// cfg.Timeout is unset.
func NewFromConfig(logger *zap.Logger, cfg config.NotificationConfig, defaultTimeout time.Duration) (Notifier, error) {
	if err := validateURL(cfg.WebhookURL); err != nil {
		return nil, err
	}
	to := cfg.Timeout
	if to <= 0 {
		to = defaultTimeout
	}
	if to <= 0 {
		to = 10 * time.Second
	}
	h := newHook(logger, cfg.WebhookURL, cfg.UserAgent, to)

	switch strings.ToLower(cfg.Type) {
	case "teams":
		return &Teams{hook: h}, nil
	case "webhook":
		return &Webhook{hook: h}, nil
	case "":
		return nil, fmt.Errorf("notification.type is required")
	default:
		return nil, fmt.Errorf("unknown notification type: %s", cfg.Type)
	}
}

func validateURL(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return fmt.Errorf("webhook URL is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid webhook URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("webhook URL must use http or https scheme, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("webhook URL must include a host")
	}
	return nil
}

// RedactURL masks credentials in a URL for logging. Teams workflow URLs carry their
// signature in the query string, so every query value is replaced.
func RedactURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "<invalid-url>"
	}
	if u.RawQuery != "" {
		q := u.Query()
		for k := range q {
			q.Set(k, "REDACTED")
		}
		u.RawQuery = q.Encode()
	}
	return u.Redacted()
}
