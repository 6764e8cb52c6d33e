package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	DefaultPollTimeout    = 30 * time.Second
	DefaultRequestTimeout = 45 * time.Second
	DefaultCatchUp        = 5 * time.Minute
)

// Validate checks the fields the bot cannot start without.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if strings.TrimSpace(c.Telegram.Token) == "" {
		return errors.New("telegram.token is required")
	}
	if strings.HasPrefix(strings.TrimSpace(c.Telegram.Username), "@") {
		return errors.New("telegram.username must not start with '@'")
	}
	poll, err := c.PollTimeout()
	if err != nil {
		return err
	}
	req, err := c.RequestTimeout()
	if err != nil {
		return err
	}
	if req <= poll {
		return fmt.Errorf("telegram.request_timeout (%s) must exceed telegram.poll_timeout (%s)", req, poll)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if _, err := c.CatchUp(); err != nil {
		return err
	}
	if _, err := ParseDurationField("storage.busy_timeout", c.Storage.BusyTimeout); err != nil {
		return err
	}
	switch strings.ToLower(strings.TrimSpace(c.Storage.Driver)) {
	case "", "file", "sqlite", "sqlite3":
		if strings.TrimSpace(c.Storage.Path) == "" {
			return errors.New("storage.path is required")
		}
	case "redis":
		if strings.TrimSpace(c.Storage.Addr) == "" {
			return errors.New("storage.addr is required for redis")
		}
	default:
		return fmt.Errorf("storage.driver: unknown driver %q", c.Storage.Driver)
	}
	return nil
}

func (c *Config) PollTimeout() (time.Duration, error) {
	return ParseDurationOrDefault("telegram.poll_timeout", c.Telegram.PollTimeout, DefaultPollTimeout)
}

func (c *Config) RequestTimeout() (time.Duration, error) {
	return ParseDurationOrDefault("telegram.request_timeout", c.Telegram.RequestTimeout, DefaultRequestTimeout)
}

// CatchUp returns reminders.catch_up; omitted means DefaultCatchUp, "0s" disables.
func (c *Config) CatchUp() (time.Duration, error) {
	if strings.TrimSpace(c.Reminders.CatchUp) == "" {
		return DefaultCatchUp, nil
	}
	return ParseDurationField("reminders.catch_up", c.Reminders.CatchUp)
}

func (c *Config) Location() (*time.Location, error) {
	tz := strings.TrimSpace(c.Reminders.Timezone)
	if tz == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("reminders.timezone: %w", err)
	}
	return loc, nil
}
