package jobs

import (
	"time"

	"avatarcast/internal/config"
)

// Settings controls scheduling and retry budgets.
type Settings struct {
	TickInterval  time.Duration
	PollInterval  time.Duration
	BackoffBase   time.Duration
	BackoffMax    time.Duration
	Timeout       time.Duration
	SubmitTimeout time.Duration
	CallTimeout   time.Duration
	PollWorkers   int
}

// SettingsFromConfig converts the [jobs] section into Settings.
func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		TickInterval:  time.Duration(cfg.Jobs.TickIntervalMillis) * time.Millisecond,
		PollInterval:  time.Duration(cfg.Jobs.PollIntervalSeconds) * time.Second,
		BackoffBase:   time.Duration(cfg.Jobs.BackoffBaseSeconds) * time.Second,
		BackoffMax:    time.Duration(cfg.Jobs.BackoffMaxSeconds) * time.Second,
		Timeout:       time.Duration(cfg.Jobs.TimeoutSeconds) * time.Second,
		SubmitTimeout: time.Duration(cfg.Jobs.SubmitTimeoutSeconds) * time.Second,
		CallTimeout:   time.Duration(cfg.Provider.TimeoutSeconds) * time.Second,
		PollWorkers:   cfg.Jobs.PollWorkers,
	}
}

func (s Settings) withDefaults() Settings {
	if s.TickInterval <= 0 {
		s.TickInterval = 500 * time.Millisecond
	}
	if s.PollInterval <= 0 {
		s.PollInterval = 5 * time.Second
	}
	if s.BackoffBase <= 0 {
		s.BackoffBase = 2 * time.Second
	}
	if s.BackoffMax <= 0 {
		s.BackoffMax = time.Minute
	}
	if s.BackoffMax < s.BackoffBase {
		s.BackoffMax = s.BackoffBase
	}
	if s.Timeout <= 0 {
		s.Timeout = 30 * time.Minute
	}
	if s.SubmitTimeout <= 0 {
		s.SubmitTimeout = time.Minute
	}
	if s.CallTimeout <= 0 {
		s.CallTimeout = 30 * time.Second
	}
	if s.PollWorkers <= 0 {
		s.PollWorkers = 4
	}
	return s
}

// backoffDelay returns the delay before retry number attempt (1-based):
// base, base*2, base*4, ... capped at max. A server hint wins when larger,
// still bounded by max.
func backoffDelay(base, max time.Duration, attempt int, hint time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := base
	for i := 1; i < attempt; i++ {
		if delay > max/2 {
			delay = max
			break
		}
		delay *= 2
	}
	if hint > delay {
		delay = hint
	}
	if delay > max {
		delay = max
	}
	return delay
}
