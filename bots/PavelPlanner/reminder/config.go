package reminder

import (
	"time"

	"pavelplanner/bot"
)

type Config struct {
	PollInterval    time.Duration
	ReminderLead    time.Duration
	ReminderWindow  time.Duration
	DigestAt        time.Duration // offset from local midnight
	DigestWindow    time.Duration
	DedupRetention  time.Duration
	SendTimeout     time.Duration
	SendConcurrency int
}

// NewConfig converts the bot configuration. cfg is expected to be validated.
func NewConfig(cfg *bot.Config) Config {
	s := &cfg.Scheduler
	return Config{
		PollInterval:    s.PollInterval(),
		ReminderLead:    s.ReminderLead(),
		ReminderWindow:  s.ReminderWindow(),
		DigestAt:        s.DigestOffset(),
		DigestWindow:    s.DigestWindow(),
		DedupRetention:  s.DedupRetention(),
		SendTimeout:     cfg.SendTimeout(),
		SendConcurrency: cfg.SendConcurrency,
	}
}
