// Package config turns flags, environment and the config file into a
// validated run configuration.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/praetorian-inc/diskaudit/pkg/inventory"
	"github.com/spf13/viper"
)

const EnvPrefix = "DISKAUDIT"

// Keys shared by flags, environment variables and the config file.
const (
	KeyTenant          = "tenant"
	KeyStart           = "start"
	KeyEnd             = "end"
	KeyInclude         = "include"
	KeyExclude         = "exclude"
	KeyOutput          = "output"
	KeyInventory       = "inventory"
	KeyActivityLogFile = "activity-log-file"
	KeyMetricsFile     = "metrics-file"
	KeyTemplateDir     = "template-dir"
	KeyLogLevel        = "log-level"
	KeyNoColor         = "no-color"
	KeyQuiet           = "quiet"
)

const dateLayout = "2006-01-02"

var ErrInvalidWindow = errors.New("start must be before end")

type Config struct {
	Tenant          string   `validate:"required_without=ActivityLogFile"`
	Start           string   `validate:"required"`
	End             string   `validate:"omitempty"`
	Include         []string `validate:"dive,required"`
	Exclude         []string `validate:"dive,required"`
	Output          string
	Inventory       string `validate:"omitempty,oneof=graph compute none"`
	ActivityLogFile string `validate:"omitempty,file"`
	MetricsFile     string
	TemplateDir     string `validate:"omitempty,dir"`
	LogLevel        string `validate:"oneof=debug info warn warning error"`
	NoColor         bool
	Quiet           bool

	// Derived by Load.
	WindowStart   time.Time
	WindowEnd     time.Time
	InventoryMode inventory.Mode
}

// SetDefaults registers the defaults that are not carried by flags.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyInventory, string(inventory.ModeGraph))
	v.SetDefault(KeyLogLevel, "info")
}

// EnvKeyReplacer maps a key such as activity-log-file to the variable
// DISKAUDIT_ACTIVITY_LOG_FILE.
func EnvKeyReplacer() *strings.Replacer {
	return strings.NewReplacer("-", "_")
}

// Load reads every key from v, validates the result and derives the window.
// A .env file in the working directory is loaded first if present; variables
// already set in the environment win.
func Load(v *viper.Viper, now time.Time) (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Tenant:          strings.TrimSpace(v.GetString(KeyTenant)),
		Start:           strings.TrimSpace(v.GetString(KeyStart)),
		End:             strings.TrimSpace(v.GetString(KeyEnd)),
		Include:         splitList(v.GetStringSlice(KeyInclude)),
		Exclude:         splitList(v.GetStringSlice(KeyExclude)),
		Output:          strings.TrimSpace(v.GetString(KeyOutput)),
		Inventory:       strings.ToLower(strings.TrimSpace(v.GetString(KeyInventory))),
		ActivityLogFile: strings.TrimSpace(v.GetString(KeyActivityLogFile)),
		MetricsFile:     strings.TrimSpace(v.GetString(KeyMetricsFile)),
		TemplateDir:     strings.TrimSpace(v.GetString(KeyTemplateDir)),
		LogLevel:        strings.ToLower(strings.TrimSpace(v.GetString(KeyLogLevel))),
		NoColor:         v.GetBool(KeyNoColor),
		Quiet:           v.GetBool(KeyQuiet),
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	start, err := ParseTime(cfg.Start)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", KeyStart, err)
	}
	end := now.UTC()
	if cfg.End != "" {
		if end, err = ParseTime(cfg.End); err != nil {
			return nil, fmt.Errorf("invalid %s: %w", KeyEnd, err)
		}
	}
	if !start.Before(end) {
		return nil, fmt.Errorf("%w: %s is not before %s", ErrInvalidWindow, start.Format(time.RFC3339), end.Format(time.RFC3339))
	}
	cfg.WindowStart, cfg.WindowEnd = start, end

	if cfg.InventoryMode, err = inventory.ParseMode(cfg.Inventory); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ParseTime accepts a calendar date, taken as midnight UTC, or an RFC 3339
// timestamp.
func ParseTime(s string) (time.Time, error) {
	if t, err := time.Parse(dateLayout, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%q is neither YYYY-MM-DD nor RFC 3339", s)
	}
	return t.UTC(), nil
}

// splitList flattens comma separated entries, which is how lists arrive from
// the environment.
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
