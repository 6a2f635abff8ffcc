package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	// Spreadsheet backing the whole roster.
	SheetID     string   `yaml:"sheetID" validate:"required"`
	PersonsTab  string   `yaml:"personsTab"`
	TeamsTab    string   `yaml:"teamsTab"`
	ReleasesTab string   `yaml:"releasesTab"`
	TaskTabs    []string `yaml:"taskTabs" validate:"required,min=1"`

	// Commanders receive the periodic not-here summaries.
	Commanders []string `yaml:"commanders,omitempty"`

	// Staffing invariants.
	MinIn       int `yaml:"minIn" validate:"min=0"`
	MaxShortOut int `yaml:"maxShortOut" validate:"min=0"`

	// Reminder cadence, in hours.
	RemindShortOutHours int `yaml:"remindShortOutHours" validate:"min=1"`
	RemindLongOutHours  int `yaml:"remindLongOutHours" validate:"min=1"`

	// UTCOffsetHours is the single fixed offset applied to all parsed
	// times; there is no per-region timezone handling.
	UTCOffsetHours int `yaml:"utcOffsetHours"`

	MainChannel string `yaml:"mainChannel,omitempty"`
	OpsChannel  string `yaml:"opsChannel,omitempty"`

	// LangFile points at a yaml message bundle; empty means English
	// fallbacks only.
	LangFile string `yaml:"langFile,omitempty"`

	// PostgresDSN enables the audit log when set.
	PostgresDSN string `yaml:"postgresDSN,omitempty"`
}

var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Load loads and validates the configuration from dutywatch_config.yaml
// It looks for the config file in the current directory first, then in the user's home directory
func Load() (*Config, error) {
	configPath, err := findConfigFile()
	if err != nil {
		return nil, fmt.Errorf("failed to find config file: %w", err)
	}

	return LoadFromPath(configPath)
}

// LoadFromPath loads and validates the configuration from a specific path
func LoadFromPath(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate validates the configuration struct
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}

// Location returns the fixed timezone every parsed instant lives in.
func (c *Config) Location() *time.Location {
	return time.FixedZone(fmt.Sprintf("UTC%+d", c.UTCOffsetHours), c.UTCOffsetHours*3600)
}

// RemindShortOutEvery returns the short-out reminder cadence.
func (c *Config) RemindShortOutEvery() time.Duration {
	return time.Duration(c.RemindShortOutHours) * time.Hour
}

// RemindLongOutEvery returns the long-out reminder cadence.
func (c *Config) RemindLongOutEvery() time.Duration {
	return time.Duration(c.RemindLongOutHours) * time.Hour
}

func defaults() *Config {
	return &Config{
		PersonsTab:          "persons",
		TeamsTab:            "teams",
		ReleasesTab:         "releases",
		TaskTabs:            []string{"tasks"},
		MinIn:               20,
		MaxShortOut:         5,
		RemindShortOutHours: 2,
		RemindLongOutHours:  4,
		UTCOffsetHours:      2,
	}
}

// findConfigFile searches for dutywatch_config.yaml in current directory and home directory
func findConfigFile() (string, error) {
	return findFile("dutywatch_config.yaml")
}
