// Package config loads rostersync settings from environment variables.
// Defaults are applied for unset values and everything is validated up front
// so a misconfigured job fails before touching the roster or the database.
package config

import (
	"net"
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Database DatabaseConfig
	Roster   RosterConfig
	Schedule ScheduleConfig
	Logging  LoggingConfig
}

// DatabaseConfig holds the access-control database connection settings.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string (required)
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL" required:"true"`

	// MaxConns is the maximum number of connections in the pool (default: 10)
	MaxConns int `env:"DB_MAX_CONNS" default:"10"`

	// MinConns is the minimum number of connections to keep open (default: 1)
	MinConns int `env:"DB_MIN_CONNS" default:"1"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`

	// ConnectTimeout bounds pool creation and the startup ping (default: 10s)
	ConnectTimeout time.Duration `env:"DB_CONNECT_TIMEOUT" default:"10s"`
}

// RosterConfig holds reconciliation settings.
type RosterConfig struct {
	// InputPath is the snapshot used when no file is given on the command line
	InputPath string `env:"ROSTER_INPUT_PATH" default:"./data/roster.xlsx"`

	// OutputDir receives the run artifacts and the run lock (default: ./output)
	OutputDir string `env:"ROSTER_OUTPUT_DIR" default:"./output"`

	// Sheet is the XLSX sheet to read; empty selects the active sheet
	Sheet string `env:"ROSTER_SHEET"`

	// CSVEncoding is the charset of CSV snapshots: utf-8, windows-1252, iso-8859-1
	CSVEncoding string `env:"ROSTER_CSV_ENCODING" default:"utf-8"`

	// Workers is the number of records reconciled in parallel (default: 1)
	Workers int `env:"ROSTER_WORKERS" default:"1"`

	// ProgressEvery is the number of records between progress reports (default: 50)
	ProgressEvery int `env:"ROSTER_PROGRESS_EVERY" default:"50"`

	// RecordTimeout bounds the database work for one record (default: 30s)
	RecordTimeout time.Duration `env:"ROSTER_RECORD_TIMEOUT" default:"30s"`

	// DefaultRole is the role given to people inserted from the roster
	DefaultRole string `env:"ROSTER_DEFAULT_ROLE" default:"aprendiz"`

	// RoleCacheTTL is how long role lookups are cached (default: 5m)
	RoleCacheTTL time.Duration `env:"ROSTER_ROLE_CACHE_TTL" default:"5m"`

	// ArchiveInput moves the snapshot to processed/ after a successful run
	ArchiveInput bool `env:"ROSTER_ARCHIVE_INPUT" default:"false"`
}

// ScheduleConfig holds settings for the long-running schedule command.
type ScheduleConfig struct {
	// Interval is the time between scheduled runs (default: 24h)
	Interval time.Duration `env:"SCHEDULE_INTERVAL" default:"24h"`

	// Host is the interface the ops server binds to (default: 0.0.0.0)
	Host string `env:"OPS_HOST" default:"0.0.0.0"`

	// Port is the ops server port (default: 9090)
	Port int `env:"OPS_PORT" default:"9090"`

	// ReadTimeout is the maximum duration for reading a request (default: 10s)
	ReadTimeout time.Duration `env:"OPS_READ_TIMEOUT" default:"10s"`

	// ShutdownTimeout bounds graceful shutdown, including an in-flight run (default: 30s)
	ShutdownTimeout time.Duration `env:"OPS_SHUTDOWN_TIMEOUT" default:"30s"`

	// TriggerToken authorizes POST /runs on the ops server; empty disables it
	TriggerToken string `env:"OPS_TRIGGER_TOKEN"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the ops server listen address in host:port format.
func (c *ScheduleConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
