package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Durations is every duration-valued setting after parsing. Zero means the
// key was left empty; callers substitute their own default via Or.
type Durations struct {
	ShutdownTimeout time.Duration // http.shutdown_timeout
	SettleDelay     time.Duration // session.settle_delay
	BusyTimeout     time.Duration // storage.busy_timeout
	PollTimeout     time.Duration // telegram.poll_timeout, only when telegram is enabled
}

type durationKey struct {
	name string
	raw  string
	dst  *time.Duration
}

// Durations parses all duration keys at once. The error names every bad key.
func (c *Config) Durations() (Durations, error) {
	var d Durations
	keys := []durationKey{
		{"http.shutdown_timeout", c.HTTP.ShutdownTimeout, &d.ShutdownTimeout},
		{"session.settle_delay", c.Session.SettleDelay, &d.SettleDelay},
		{"storage.busy_timeout", c.Storage.BusyTimeout, &d.BusyTimeout},
	}
	if tg := c.Telegram; tg != nil && tg.Enabled {
		keys = append(keys, durationKey{"telegram.poll_timeout", tg.PollTimeout, &d.PollTimeout})
	}

	var errs []error
	for _, k := range keys {
		v, err := parseDuration(k.raw)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", k.name, err))
			continue
		}
		*k.dst = v
	}
	return d, errors.Join(errs...)
}

// Or returns d, or def when d is unset.
func Or(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}

func parseDuration(raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", raw)
	}
	if d < 0 {
		return 0, fmt.Errorf("duration %q is negative", raw)
	}
	return d, nil
}
