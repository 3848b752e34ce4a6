package config

import (
	"fmt"
	"net/url"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// Load reads configuration from the process environment.
// It applies defaults for unset values and validates the result.
func Load() (*Config, error) {
	return LoadFrom(os.Getenv)
}

// LoadFrom reads configuration through getenv, which returns "" for unset keys.
func LoadFrom(getenv func(string) string) (*Config, error) {
	cfg := &Config{}

	if err := loadStruct(reflect.ValueOf(cfg).Elem(), getenv); err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// loadStruct recursively populates struct fields from tagged environment keys.
func loadStruct(v reflect.Value, getenv func(string) string) error {
	t := v.Type()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		fieldVal := v.Field(i)

		if !fieldVal.CanSet() {
			continue
		}

		if field.Type.Kind() == reflect.Struct && field.Type != reflect.TypeOf(time.Time{}) {
			if err := loadStruct(fieldVal, getenv); err != nil {
				return err
			}
			continue
		}

		envName := field.Tag.Get("env")
		if envName == "" {
			continue
		}

		value := getenv(envName)
		if alt := field.Tag.Get("envAlt"); value == "" && alt != "" {
			value = getenv(alt)
		}

		if value == "" {
			if field.Tag.Get("required") == "true" {
				return fmt.Errorf("required environment variable %s is not set", envName)
			}
			value = field.Tag.Get("default")
		}
		if value == "" {
			continue
		}

		if err := setField(fieldVal, value); err != nil {
			return fmt.Errorf("invalid value for %s=%q: %w", envName, value, err)
		}
	}

	return nil
}

// setField sets a reflect.Value from a string based on its type.
func setField(field reflect.Value, value string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(strings.TrimSpace(value))

	case reflect.Int, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return fmt.Errorf("invalid duration: %w", err)
			}
			field.SetInt(int64(d))
			return nil
		}
		i, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
		if err != nil {
			return fmt.Errorf("invalid integer: %w", err)
		}
		field.SetInt(i)

	case reflect.Bool:
		b, err := strconv.ParseBool(strings.TrimSpace(value))
		if err != nil {
			return fmt.Errorf("invalid boolean: %w", err)
		}
		field.SetBool(b)

	default:
		return fmt.Errorf("unsupported field type: %s", field.Kind())
	}

	return nil
}

var (
	validLevels    = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	validFormats   = map[string]bool{"text": true, "json": true}
	validEncodings = map[string]bool{"utf-8": true, "utf8": true, "windows-1252": true, "cp1252": true, "iso-8859-1": true, "latin1": true}
)

// Validate checks that the configuration is valid.
// Returns an error describing all validation failures.
func (c *Config) Validate() error {
	var errs []string

	// Database
	if c.Database.URL == "" {
		errs = append(errs, "DATABASE_URL is required")
	}
	if c.Database.MaxConns <= 0 {
		errs = append(errs, "DB_MAX_CONNS must be positive")
	}
	if c.Database.MinConns < 0 {
		errs = append(errs, "DB_MIN_CONNS must be non-negative")
	}
	if c.Database.MaxConns < c.Database.MinConns {
		errs = append(errs, fmt.Sprintf("DB_MAX_CONNS (%d) must be >= DB_MIN_CONNS (%d)",
			c.Database.MaxConns, c.Database.MinConns))
	}
	if c.Database.ConnectTimeout <= 0 {
		errs = append(errs, "DB_CONNECT_TIMEOUT must be positive")
	}

	// Roster
	if strings.TrimSpace(c.Roster.OutputDir) == "" {
		errs = append(errs, "ROSTER_OUTPUT_DIR must not be empty")
	}
	if c.Roster.Workers <= 0 {
		errs = append(errs, "ROSTER_WORKERS must be positive")
	}
	// Each worker holds a connection for its transaction; one more serves role lookups.
	if c.Roster.Workers >= c.Database.MaxConns && c.Database.MaxConns > 0 {
		errs = append(errs, fmt.Sprintf("ROSTER_WORKERS (%d) must be < DB_MAX_CONNS (%d)",
			c.Roster.Workers, c.Database.MaxConns))
	}
	if c.Roster.ProgressEvery <= 0 {
		errs = append(errs, "ROSTER_PROGRESS_EVERY must be positive")
	}
	if c.Roster.RecordTimeout <= 0 {
		errs = append(errs, "ROSTER_RECORD_TIMEOUT must be positive")
	}
	if strings.TrimSpace(c.Roster.DefaultRole) == "" {
		errs = append(errs, "ROSTER_DEFAULT_ROLE must not be empty")
	}
	if c.Roster.RoleCacheTTL <= 0 {
		errs = append(errs, "ROSTER_ROLE_CACHE_TTL must be positive")
	}
	if !validEncodings[strings.ToLower(c.Roster.CSVEncoding)] {
		errs = append(errs, fmt.Sprintf("ROSTER_CSV_ENCODING (%q) must be one of: utf-8, windows-1252, iso-8859-1", c.Roster.CSVEncoding))
	}

	// Schedule
	if c.Schedule.Interval < time.Minute {
		errs = append(errs, "SCHEDULE_INTERVAL must be at least 1m")
	}
	if c.Schedule.Port <= 0 || c.Schedule.Port > 65535 {
		errs = append(errs, fmt.Sprintf("OPS_PORT (%d) must be 1-65535", c.Schedule.Port))
	}
	if c.Schedule.ShutdownTimeout <= 0 {
		errs = append(errs, "OPS_SHUTDOWN_TIMEOUT must be positive")
	}
	if t := c.Schedule.TriggerToken; t != "" && len(t) < 16 {
		errs = append(errs, "OPS_TRIGGER_TOKEN must be at least 16 characters")
	}

	// Logging
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, fmt.Sprintf("LOG_LEVEL (%q) must be one of: debug, info, warn, error", c.Logging.Level))
	}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		errs = append(errs, fmt.Sprintf("LOG_FORMAT (%q) must be one of: text, json", c.Logging.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// String returns a safe string representation of the config for logging.
// The database password is redacted.
func (c *Config) String() string {
	var b strings.Builder
	b.WriteString("Config{")
	fmt.Fprintf(&b, "Database: {URL: %s, MaxConns: %d, MinConns: %d}, ",
		redactURL(c.Database.URL), c.Database.MaxConns, c.Database.MinConns)
	fmt.Fprintf(&b, "Roster: {InputPath: %q, OutputDir: %q, Workers: %d, RecordTimeout: %s, DefaultRole: %q, ArchiveInput: %v}, ",
		c.Roster.InputPath, c.Roster.OutputDir, c.Roster.Workers, c.Roster.RecordTimeout, c.Roster.DefaultRole, c.Roster.ArchiveInput)
	fmt.Fprintf(&b, "Schedule: {Interval: %s, Addr: %q, TriggerEnabled: %v}, ",
		c.Schedule.Interval, c.Schedule.Addr(), c.Schedule.TriggerToken != "")
	fmt.Fprintf(&b, "Logging: {Level: %q, Format: %q}", c.Logging.Level, c.Logging.Format)
	b.WriteString("}")
	return b.String()
}

// redactURL hides the password of a connection URL. Unparseable values are fully masked.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" {
		return "[MASKED]"
	}
	return u.Redacted()
}
