package bot

import (
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/pkg/errors"
)

const (
	EnvDev  = "dev"
	EnvProd = "prod"
)

// Config keeps bot configuration. Values come from the JSON file first, then
// environment variables override them; unset fields get their defaults.
type Config struct {
	Env             string    `json:"Env" env:"APP_ENV" env-default:"dev"`
	TgToken         string    `json:"TgToken" env:"TG_TOKEN" env-required:"true"`
	DBConnStr       string    `json:"DBConnStr" env:"DB_CONN_STR"`
	RetryAttempts   int       `json:"RetryAttempts" env:"RETRY_ATTEMPTS" env-default:"3"`
	RetryDelayMs    int       `json:"RetryDelayMs" env:"RETRY_DELAY_MS" env-default:"1000"`
	SendTimeoutSec  int       `json:"SendTimeoutSec" env:"SEND_TIMEOUT_SEC" env-default:"10"`
	SendConcurrency int       `json:"SendConcurrency" env:"SEND_CONCURRENCY" env-default:"8"`
	Scheduler       Scheduler `json:"Scheduler"`
}

// Scheduler keeps the knobs of the reminder and digest passes.
type Scheduler struct {
	PollIntervalSec     int    `json:"PollIntervalSec" env:"POLL_INTERVAL_SEC" env-default:"60"`
	ReminderLeadMin     int    `json:"ReminderLeadMin" env:"REMINDER_LEAD_MIN" env-default:"60"`
	ReminderWindowMin   int    `json:"ReminderWindowMin" env:"REMINDER_WINDOW_MIN" env-default:"1"`
	DigestAt            string `json:"DigestAt" env:"DIGEST_AT" env-default:"09:00"`
	DigestWindowMin     int    `json:"DigestWindowMin" env:"DIGEST_WINDOW_MIN" env-default:"2"`
	UTCOffsetMin        int    `json:"UTCOffsetMin" env:"UTC_OFFSET_MIN" env-default:"180"`
	DedupRetentionHours int    `json:"DedupRetentionHours" env:"DEDUP_RETENTION_HOURS" env-default:"48"`
}

// ReadConfig reads configuration from the given JSON file. An empty name
// means the configuration comes from the environment only.
func ReadConfig(cfgFile string) (*Config, error) {
	cfg := new(Config)

	var err error
	if cfgFile == "" {
		err = cleanenv.ReadEnv(cfg)
	} else {
		err = cleanenv.ReadConfig(cfgFile, cfg)
	}
	if err != nil {
		return nil, errors.Wrap(err, "couldn't read configuration")
	}

	if err = cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate makes sure the values are usable.
func (c *Config) Validate() error {
	if c.Env != EnvDev && c.Env != EnvProd {
		return errors.Errorf("unknown env %q", c.Env)
	}
	if c.RetryAttempts < 1 {
		return errors.New("RetryAttempts must be positive")
	}
	if c.SendTimeoutSec < 1 || c.SendConcurrency < 1 {
		return errors.New("SendTimeoutSec and SendConcurrency must be positive")
	}
	return c.Scheduler.Validate()
}

// Validate makes sure the scheduler knobs are consistent.
func (s *Scheduler) Validate() error {
	if s.PollIntervalSec < 1 {
		return errors.New("PollIntervalSec must be positive")
	}
	if s.ReminderLeadMin < 1 {
		return errors.New("ReminderLeadMin must be positive")
	}
	if s.ReminderWindowMin < 0 || s.ReminderWindowMin >= s.ReminderLeadMin {
		return errors.New("ReminderWindowMin must be in [0, ReminderLeadMin)")
	}
	if s.DigestWindowMin < 1 {
		return errors.New("DigestWindowMin must be positive")
	}
	if s.DedupRetentionHours < 1 {
		return errors.New("DedupRetentionHours must be positive")
	}
	if s.UTCOffsetMin <= -24*60 || s.UTCOffsetMin >= 24*60 {
		return errors.New("UTCOffsetMin must be within a day")
	}
	if _, err := time.Parse("15:04", s.DigestAt); err != nil {
		return errors.Wrapf(err, "DigestAt %q isn't in the format HH:MM", s.DigestAt)
	}
	// the digest has no catch-up: every window must contain a tick
	if s.PollInterval() > s.DigestWindow() {
		return errors.New("PollIntervalSec must not exceed DigestWindowMin")
	}
	if s.DigestOffset()+s.DigestWindow() > 24*time.Hour {
		return errors.New("digest window must end by midnight")
	}
	return nil
}

func (c *Config) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelayMs) * time.Millisecond
}

func (c *Config) SendTimeout() time.Duration {
	return time.Duration(c.SendTimeoutSec) * time.Second
}

func (s *Scheduler) PollInterval() time.Duration {
	return time.Duration(s.PollIntervalSec) * time.Second
}

func (s *Scheduler) ReminderLead() time.Duration {
	return time.Duration(s.ReminderLeadMin) * time.Minute
}

func (s *Scheduler) ReminderWindow() time.Duration {
	return time.Duration(s.ReminderWindowMin) * time.Minute
}

func (s *Scheduler) DigestWindow() time.Duration {
	return time.Duration(s.DigestWindowMin) * time.Minute
}

func (s *Scheduler) DedupRetention() time.Duration {
	return time.Duration(s.DedupRetentionHours) * time.Hour
}

// DigestOffset returns the digest time as an offset from local midnight.
// DigestAt is expected to be validated.
func (s *Scheduler) DigestOffset() time.Duration {
	t, _ := time.Parse("15:04", s.DigestAt)
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute
}
