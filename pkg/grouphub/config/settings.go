package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	gherrors "github.com/randalmurphal/grouphub/pkg/grouphub/errors"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "GROUPHUB_"

// Settings is the typed configuration of a grouphub server.
type Settings struct {
	Server    ServerSettings
	Database  DatabaseSettings
	Bus       BusSettings
	Notify    NotifySettings
	Scheduler SchedulerSettings
	Log       LogSettings
}

// ServerSettings configures the HTTP API.
type ServerSettings struct {
	Addr string
}

// DatabaseSettings selects the subscription store.
type DatabaseSettings struct {
	Driver string // "memory", "sqlite", or "postgres"
	DSN    string
}

// BusSettings configures event fan-out.
type BusSettings struct {
	Executor        string // "immediate" or "pool"
	Workers         int
	QueueSize       int
	ListenerTimeout time.Duration
	RetryAttempts   int
}

// NotifySettings selects the notification transport.
type NotifySettings struct {
	Transport  string // "apprise", "nats", "amqp", or "none"
	AppriseURL string
	NATSURL    string
	AMQPURL    string
}

// SchedulerSettings configures the webhook scheduler.
type SchedulerSettings struct {
	Enabled  bool
	Interval time.Duration
}

// LogSettings configures the slog handler.
type LogSettings struct {
	Level  string // "debug", "info", "warn", "error"
	Format string // "json" or "text"
}

// Defaults returns the settings used when nothing is configured.
func Defaults() Settings {
	return Settings{
		Server:   ServerSettings{Addr: ":9000"},
		Database: DatabaseSettings{Driver: "sqlite", DSN: "grouphub.db"},
		Bus: BusSettings{
			Executor:        "pool",
			Workers:         4,
			QueueSize:       256,
			ListenerTimeout: 30 * time.Second,
			RetryAttempts:   1,
		},
		Notify: NotifySettings{
			Transport:  "apprise",
			AppriseURL: "http://localhost:8000",
		},
		Scheduler: SchedulerSettings{Enabled: true, Interval: 5 * time.Minute},
		Log:       LogSettings{Level: "info", Format: "json"},
	}
}

// FromConfig overlays the values present in c onto Defaults.
func FromConfig(c Config) Settings {
	s := Defaults()

	server := c.Section("server")
	s.Server.Addr = server.String("addr", s.Server.Addr)

	db := c.Section("database")
	s.Database.Driver = db.String("driver", s.Database.Driver)
	s.Database.DSN = db.String("dsn", s.Database.DSN)

	b := c.Section("bus")
	s.Bus.Executor = b.String("executor", s.Bus.Executor)
	s.Bus.Workers = b.Int("workers", s.Bus.Workers)
	s.Bus.QueueSize = b.Int("queue_size", s.Bus.QueueSize)
	s.Bus.ListenerTimeout = b.Duration("listener_timeout", s.Bus.ListenerTimeout)
	s.Bus.RetryAttempts = b.Int("retry_attempts", s.Bus.RetryAttempts)

	n := c.Section("notify")
	s.Notify.Transport = n.String("transport", s.Notify.Transport)
	s.Notify.AppriseURL = n.String("apprise_url", s.Notify.AppriseURL)
	s.Notify.NATSURL = n.String("nats_url", s.Notify.NATSURL)
	s.Notify.AMQPURL = n.String("amqp_url", s.Notify.AMQPURL)

	sch := c.Section("scheduler")
	s.Scheduler.Enabled = sch.Bool("enabled", s.Scheduler.Enabled)
	s.Scheduler.Interval = sch.Duration("interval", s.Scheduler.Interval)

	l := c.Section("log")
	s.Log.Level = l.String("level", s.Log.Level)
	s.Log.Format = l.String("format", s.Log.Format)

	return s
}

// ApplyEnv overrides settings from GROUPHUB_* variables found by lookup.
func (s *Settings) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(EnvPrefix + key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		v, ok := lookup(EnvPrefix + key)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return gherrors.Invalid(EnvPrefix+key, "must be an integer, got %q", v)
		}
		*dst = n
		return nil
	}
	dur := func(key string, dst *time.Duration) error {
		v, ok := lookup(EnvPrefix + key)
		if !ok || v == "" {
			return nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return gherrors.Invalid(EnvPrefix+key, "must be a duration, got %q", v)
		}
		*dst = d
		return nil
	}

	str("SERVER_ADDR", &s.Server.Addr)
	str("DB_DRIVER", &s.Database.Driver)
	str("DB_DSN", &s.Database.DSN)
	str("BUS_EXECUTOR", &s.Bus.Executor)
	str("NOTIFY_TRANSPORT", &s.Notify.Transport)
	str("APPRISE_URL", &s.Notify.AppriseURL)
	str("NATS_URL", &s.Notify.NATSURL)
	str("AMQP_URL", &s.Notify.AMQPURL)
	str("LOG_LEVEL", &s.Log.Level)
	str("LOG_FORMAT", &s.Log.Format)

	if v, ok := lookup(EnvPrefix + "SCHEDULER_ENABLED"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return gherrors.Invalid(EnvPrefix+"SCHEDULER_ENABLED", "must be a boolean, got %q", v)
		}
		s.Scheduler.Enabled = b
	}

	for _, f := range []func() error{
		func() error { return num("BUS_WORKERS", &s.Bus.Workers) },
		func() error { return num("BUS_QUEUE_SIZE", &s.Bus.QueueSize) },
		func() error { return num("BUS_RETRY_ATTEMPTS", &s.Bus.RetryAttempts) },
		func() error { return dur("LISTENER_TIMEOUT", &s.Bus.ListenerTimeout) },
		func() error { return dur("SCHEDULER_INTERVAL", &s.Scheduler.Interval) },
	} {
		if err := f(); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks enumerated values and ranges.
func (s Settings) Validate() error {
	switch s.Database.Driver {
	case "memory", "sqlite", "postgres":
	default:
		return gherrors.Invalid("database.driver", "unknown driver %q", s.Database.Driver)
	}
	if s.Database.Driver != "memory" && s.Database.DSN == "" {
		return gherrors.Invalid("database.dsn", "must be set for %s", s.Database.Driver)
	}

	switch s.Bus.Executor {
	case "immediate", "pool":
	default:
		return gherrors.Invalid("bus.executor", "unknown executor %q", s.Bus.Executor)
	}
	if s.Bus.Workers < 1 {
		return gherrors.Invalid("bus.workers", "must be at least 1")
	}
	if s.Bus.ListenerTimeout < 0 {
		return gherrors.Invalid("bus.listener_timeout", "must not be negative")
	}
	if s.Bus.RetryAttempts < 1 {
		return gherrors.Invalid("bus.retry_attempts", "must be at least 1")
	}

	switch s.Notify.Transport {
	case "none":
	case "apprise":
		if s.Notify.AppriseURL == "" {
			return gherrors.Invalid("notify.apprise_url", "required for apprise transport")
		}
	case "nats":
		if s.Notify.NATSURL == "" {
			return gherrors.Invalid("notify.nats_url", "required for nats transport")
		}
	case "amqp":
		if s.Notify.AMQPURL == "" {
			return gherrors.Invalid("notify.amqp_url", "required for amqp transport")
		}
	default:
		return gherrors.Invalid("notify.transport", "unknown transport %q", s.Notify.Transport)
	}

	if s.Scheduler.Enabled && s.Scheduler.Interval <= 0 {
		return gherrors.Invalid("scheduler.interval", "must be positive")
	}
	return nil
}

// LoadSettings loads .env, then the config file at path (skipped when
// empty), then GROUPHUB_* environment overrides, and validates the result.
func LoadSettings(path string) (Settings, error) {
	if err := LoadDotEnv(); err != nil {
		return Settings{}, err
	}

	c := New(nil)
	if path != "" {
		var err error
		if c, err = FromFile(path); err != nil {
			return Settings{}, err
		}
	}

	s := FromConfig(c)
	if err := s.ApplyEnv(os.LookupEnv); err != nil {
		return Settings{}, err
	}
	if err := s.Validate(); err != nil {
		return Settings{}, fmt.Errorf("invalid settings: %w", err)
	}
	return s, nil
}
