// Package config loads and watches the bot's YAML configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	yaml "go.yaml.in/yaml/v3"
)

// Config is the root configuration document.
//
// All durations are Go duration strings (e.g. "30s", "1m", "5m").
type Config struct {
	Telegram TelegramConfig `yaml:"telegram"`
	Logging  LoggingConfig  `yaml:"logging"`
	Storage  StorageConfig  `yaml:"storage"`
	Party    PartyConfig    `yaml:"party"`
	Stamina  StaminaConfig  `yaml:"stamina"`

	// AdminSecret is the shared credential for kick / force-delete /
	// set-stamina actions. Empty disables admin actions entirely.
	AdminSecret string `yaml:"admin_secret"`
}

type TelegramConfig struct {
	Token string `yaml:"token"`

	// PartyChatID is the group chat where party roster messages are posted.
	PartyChatID int64 `yaml:"party_chat_id"`

	PollTimeout Duration `yaml:"poll_timeout"`

	// NotifyRatePerSec caps outbound sends (Telegram flood control).
	NotifyRatePerSec int `yaml:"notify_rate_per_sec"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

type StorageConfig struct {
	Path        string   `yaml:"path"`
	BusyTimeout Duration `yaml:"busy_timeout"`
}

type PartyConfig struct {
	// ReminderLead is how far ahead of the scheduled time the reminder
	// sweep picks an activity up.
	ReminderLead  Duration `yaml:"reminder_lead"`
	SweepInterval Duration `yaml:"sweep_interval"`
}

type StaminaConfig struct {
	// Period is the time to regenerate one point.
	Period Duration `yaml:"period"`
	Cap    int      `yaml:"cap"`

	// Thresholds are the notification levels, ascending. The cap itself
	// is usually the final entry.
	Thresholds []int `yaml:"thresholds"`

	SweepInterval Duration `yaml:"sweep_interval"`
}

// Duration wraps time.Duration with YAML string parsing ("5m", "90s").
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	s := strings.TrimSpace(value.Value)
	if s == "" {
		*d = 0
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	if v < 0 {
		return fmt.Errorf("duration must be >= 0, got %q", value.Value)
	}
	*d = Duration(v)
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

// Load reads, strictly decodes, defaults and validates a config file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg, err := Parse(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes config bytes. Unknown fields are rejected.
func Parse(b []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(strings.NewReader(string(b)))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Storage.Path == "" {
		c.Storage.Path = "./partybot.db"
	}
	if c.Storage.BusyTimeout <= 0 {
		c.Storage.BusyTimeout = Duration(5 * time.Second)
	}
	if c.Telegram.PollTimeout <= 0 {
		c.Telegram.PollTimeout = Duration(10 * time.Second)
	}
	if c.Telegram.NotifyRatePerSec <= 0 {
		c.Telegram.NotifyRatePerSec = 3
	}
	if c.Party.ReminderLead <= 0 {
		c.Party.ReminderLead = Duration(5 * time.Minute)
	}
	if c.Party.SweepInterval <= 0 {
		c.Party.SweepInterval = Duration(time.Minute)
	}
	if c.Stamina.Period <= 0 {
		c.Stamina.Period = Duration(24 * time.Minute)
	}
	if c.Stamina.Cap <= 0 {
		c.Stamina.Cap = 60
	}
	if len(c.Stamina.Thresholds) == 0 {
		c.Stamina.Thresholds = []int{40, c.Stamina.Cap}
	}
	if c.Stamina.SweepInterval <= 0 {
		c.Stamina.SweepInterval = Duration(time.Minute)
	}
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.Telegram.Token) == "" {
		return errors.New("telegram.token is required")
	}
	if c.Telegram.PartyChatID == 0 {
		return errors.New("telegram.party_chat_id is required")
	}
	if !sort.IntsAreSorted(c.Stamina.Thresholds) {
		return errors.New("stamina.thresholds must be ascending")
	}
	for _, t := range c.Stamina.Thresholds {
		if t <= 0 || t > c.Stamina.Cap {
			return fmt.Errorf("stamina threshold %d out of range 1..%d", t, c.Stamina.Cap)
		}
	}
	return nil
}
