package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Logging    LoggingConfig    `yaml:"logging"`
	Auth       AuthConfig       `yaml:"auth"`
	Detector   DetectorConfig   `yaml:"detector"`
	Monitor    MonitorConfig    `yaml:"monitor"`
	Persist    PersistConfig    `yaml:"persist"`
	Redis      RedisConfig      `yaml:"redis"`
	Push       PushConfig       `yaml:"push"`
	WorkerPool WorkerPoolConfig `yaml:"worker_pool"`
	Retention  RetentionConfig  `yaml:"retention"`
}

// ServerConfig holds the server-related configuration.
type ServerConfig struct {
	Port                   int           `yaml:"port"`
	RateLimitPerSec        float64       `yaml:"rate_limit_per_sec"`
	RateLimitBurst         int           `yaml:"rate_limit_burst"`
	CacheTTLSeconds        int           `yaml:"cache_ttl_seconds"`
	CacheTTL               time.Duration `yaml:"-"`
	ShutdownTimeoutSeconds int           `yaml:"shutdown_timeout_seconds"`
	ShutdownTimeout        time.Duration `yaml:"-"`
	AllowedOrigins         []string      `yaml:"allowed_origins"`
	MaxFrameBytes          int64         `yaml:"max_frame_bytes"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
	LogLevel               string `yaml:"log_level"`
}

// LoggingConfig selects the zerolog level and output format (json or text).
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// AuthConfig holds the HS256 secret used to verify access tokens.
type AuthConfig struct {
	JWTSecret       string        `yaml:"jwt_secret"`
	TokenTTLMinutes int           `yaml:"token_ttl_minutes"`
	TokenTTL        time.Duration `yaml:"-"`
}

// DetectorConfig describes the remote object-detection service.
type DetectorConfig struct {
	URL            string            `yaml:"url"`
	Headers        map[string]string `yaml:"headers"`
	HTTPProxy      string            `yaml:"http_proxy"`
	TimeoutSeconds int               `yaml:"timeout_seconds"`
	Timeout        time.Duration     `yaml:"-"`
	Workers        int               `yaml:"workers"`
	QueueSize      int               `yaml:"queue_size"`
	PersonLabels   []string          `yaml:"person_labels"`
	PhoneLabels    []string          `yaml:"phone_labels"`
}

// BandsConfig holds the severity band thresholds of one distraction type.
type BandsConfig struct {
	LowSeconds    float64 `yaml:"low_seconds"`
	MediumSeconds float64 `yaml:"medium_seconds"`
	HighSeconds   float64 `yaml:"high_seconds"`
}

// MonitorConfig holds the per-session analysis settings.
type MonitorConfig struct {
	PersonConfidenceThreshold float64       `yaml:"person_confidence_threshold"`
	PhoneConfidenceThreshold  float64       `yaml:"phone_confidence_threshold"`
	ProximityThreshold        float64       `yaml:"proximity_threshold"`
	GracePeriodSeconds        float64       `yaml:"grace_period_seconds"`
	GracePeriod               time.Duration `yaml:"-"`
	MinReportableSeconds      float64       `yaml:"min_reportable_seconds"`
	MinReportable             time.Duration `yaml:"-"`
	AbsenceTimeoutSeconds     float64       `yaml:"absence_timeout_seconds"`
	AbsenceTimeout            time.Duration `yaml:"-"`
	TickIntervalMs            int           `yaml:"tick_interval_ms"`
	TickInterval              time.Duration `yaml:"-"`
	MaxInFlight               int           `yaml:"max_in_flight"`
	MaxFPS                    float64       `yaml:"max_fps"`
	OutboundBuffer            int           `yaml:"outbound_buffer"`
	Annotate                  bool          `yaml:"annotate"`
	TrackUserAbsent           bool          `yaml:"track_user_absent"`
	TrackMultiplePersons      bool          `yaml:"track_multiple_persons"`
	PhoneBands                BandsConfig   `yaml:"phone_bands"`
	AbsentBands               BandsConfig   `yaml:"absent_bands"`
	MultiplePersonsBands      BandsConfig   `yaml:"multiple_persons_bands"`
}

// PersistConfig sizes the asynchronous event writer.
type PersistConfig struct {
	Workers             int           `yaml:"workers"`
	QueueSize           int           `yaml:"queue_size"`
	MaxRetries          int           `yaml:"max_retries"`
	InitialBackoffMs    int           `yaml:"initial_backoff_ms"`
	InitialBackoff      time.Duration `yaml:"-"`
	MaxBackoffSeconds   int           `yaml:"max_backoff_seconds"`
	MaxBackoff          time.Duration `yaml:"-"`
	WriteTimeoutSeconds int           `yaml:"write_timeout_seconds"`
	WriteTimeout        time.Duration `yaml:"-"`
}

// RedisConfig enables cross-instance session ownership when Addr is set.
type RedisConfig struct {
	Addr               string        `yaml:"addr"`
	Password           string        `yaml:"password"`
	DB                 int           `yaml:"db"`
	PresenceTTLSeconds int           `yaml:"presence_ttl_seconds"`
	PresenceTTL        time.Duration `yaml:"-"`
}

// Enabled reports whether a Redis address was configured.
func (c RedisConfig) Enabled() bool {
	return c.Addr != ""
}

// PushConfig holds the VAPID keys for web push notifications.
type PushConfig struct {
	PublicKey   string `yaml:"vapid_public_key"`
	PrivateKey  string `yaml:"vapid_private_key"`
	Subject     string `yaml:"subject"`
	TTL         int    `yaml:"ttl"`
	MinSeverity string `yaml:"min_severity"`
}

// Enabled reports whether both VAPID keys are present.
func (c PushConfig) Enabled() bool {
	return c.PublicKey != "" && c.PrivateKey != ""
}

// WorkerPoolConfig holds the configuration for the notification worker pool.
type WorkerPoolConfig struct {
	Size      int `yaml:"size"`
	QueueSize int `yaml:"queue_size"`
}

// RetentionConfig controls the background purge of old events. Days <= 0 disables it.
type RetentionConfig struct {
	Days            int           `yaml:"days"`
	IntervalMinutes int           `yaml:"interval_minutes"`
	Interval        time.Duration `yaml:"-"`
}

// Load reads the configuration from the given path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a configuration with every default applied.
func Default() *Config {
	var cfg Config
	applyDefaults(&cfg)
	return &cfg
}

// Validate rejects settings the monitor cannot run with.
func (c *Config) Validate() error {
	m := c.Monitor
	if m.PersonConfidenceThreshold < 0 || m.PersonConfidenceThreshold > 1 {
		return fmt.Errorf("monitor.person_confidence_threshold must be within [0, 1]")
	}
	if m.PhoneConfidenceThreshold < 0 || m.PhoneConfidenceThreshold > 1 {
		return fmt.Errorf("monitor.phone_confidence_threshold must be within [0, 1]")
	}
	for name, b := range map[string]BandsConfig{
		"phone_bands":            m.PhoneBands,
		"absent_bands":           m.AbsentBands,
		"multiple_persons_bands": m.MultiplePersonsBands,
	} {
		if !(b.LowSeconds < b.MediumSeconds && b.MediumSeconds < b.HighSeconds) {
			return fmt.Errorf("monitor.%s must be strictly increasing", name)
		}
	}
	if m.AbsenceTimeout <= m.GracePeriod {
		return fmt.Errorf("monitor.absence_timeout_seconds must be greater than monitor.grace_period_seconds")
	}
	switch c.Push.MinSeverity {
	case "low", "medium", "high":
	default:
		return fmt.Errorf("push.min_severity must be one of low, medium, high")
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8000
	}
	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 5
	}
	if cfg.Server.CacheTTLSeconds <= 0 {
		cfg.Server.CacheTTLSeconds = 5
	}
	cfg.Server.CacheTTL = time.Duration(cfg.Server.CacheTTLSeconds) * time.Second
	if cfg.Server.ShutdownTimeoutSeconds <= 0 {
		cfg.Server.ShutdownTimeoutSeconds = 10
	}
	cfg.Server.ShutdownTimeout = time.Duration(cfg.Server.ShutdownTimeoutSeconds) * time.Second
	if cfg.Server.MaxFrameBytes <= 0 {
		cfg.Server.MaxFrameBytes = 4 << 20
	}

	if cfg.Database.DSN == "" {
		cfg.Database.DSN = "file:focusguard.db?_foreign_keys=on"
	}
	if cfg.Database.LogLevel == "" {
		cfg.Database.LogLevel = "warn"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Auth.TokenTTLMinutes <= 0 {
		cfg.Auth.TokenTTLMinutes = 30
	}
	cfg.Auth.TokenTTL = time.Duration(cfg.Auth.TokenTTLMinutes) * time.Minute

	if cfg.Detector.TimeoutSeconds <= 0 {
		cfg.Detector.TimeoutSeconds = 5
	}
	cfg.Detector.Timeout = time.Duration(cfg.Detector.TimeoutSeconds) * time.Second
	if cfg.Detector.Workers <= 0 {
		cfg.Detector.Workers = 4
	}
	if cfg.Detector.QueueSize <= 0 {
		cfg.Detector.QueueSize = cfg.Detector.Workers
	}
	if len(cfg.Detector.PersonLabels) == 0 {
		cfg.Detector.PersonLabels = []string{"person"}
	}
	if len(cfg.Detector.PhoneLabels) == 0 {
		cfg.Detector.PhoneLabels = []string{"cell phone", "phone", "mobile phone"}
	}

	m := &cfg.Monitor
	if m.PersonConfidenceThreshold == 0 {
		m.PersonConfidenceThreshold = 0.5
	}
	if m.PhoneConfidenceThreshold == 0 {
		m.PhoneConfidenceThreshold = 0.4
	}
	if m.ProximityThreshold <= 0 {
		m.ProximityThreshold = 0.3
	}
	if m.GracePeriodSeconds <= 0 {
		m.GracePeriodSeconds = 2
	}
	m.GracePeriod = seconds(m.GracePeriodSeconds)
	if m.MinReportableSeconds <= 0 {
		m.MinReportableSeconds = 3
	}
	m.MinReportable = seconds(m.MinReportableSeconds)
	if m.AbsenceTimeoutSeconds <= 0 {
		m.AbsenceTimeoutSeconds = 10
	}
	m.AbsenceTimeout = seconds(m.AbsenceTimeoutSeconds)
	if m.TickIntervalMs <= 0 {
		m.TickIntervalMs = 250
	}
	m.TickInterval = time.Duration(m.TickIntervalMs) * time.Millisecond
	if m.MaxInFlight <= 0 {
		m.MaxInFlight = 2
	}
	if m.OutboundBuffer <= 0 {
		m.OutboundBuffer = 16
	}
	if m.PhoneBands == (BandsConfig{}) {
		m.PhoneBands = BandsConfig{LowSeconds: 10, MediumSeconds: 15, HighSeconds: 60}
	}
	if m.AbsentBands == (BandsConfig{}) {
		m.AbsentBands = BandsConfig{LowSeconds: 10, MediumSeconds: 30, HighSeconds: 120}
	}
	if m.MultiplePersonsBands == (BandsConfig{}) {
		m.MultiplePersonsBands = BandsConfig{LowSeconds: 10, MediumSeconds: 30, HighSeconds: 120}
	}

	if cfg.Persist.Workers <= 0 {
		cfg.Persist.Workers = 2
	}
	if cfg.Persist.QueueSize <= 0 {
		cfg.Persist.QueueSize = 256
	}
	if cfg.Persist.MaxRetries <= 0 {
		cfg.Persist.MaxRetries = 5
	}
	if cfg.Persist.InitialBackoffMs <= 0 {
		cfg.Persist.InitialBackoffMs = 100
	}
	cfg.Persist.InitialBackoff = time.Duration(cfg.Persist.InitialBackoffMs) * time.Millisecond
	if cfg.Persist.MaxBackoffSeconds <= 0 {
		cfg.Persist.MaxBackoffSeconds = 5
	}
	cfg.Persist.MaxBackoff = time.Duration(cfg.Persist.MaxBackoffSeconds) * time.Second
	if cfg.Persist.WriteTimeoutSeconds <= 0 {
		cfg.Persist.WriteTimeoutSeconds = 5
	}
	cfg.Persist.WriteTimeout = time.Duration(cfg.Persist.WriteTimeoutSeconds) * time.Second

	if cfg.Redis.PresenceTTLSeconds <= 0 {
		cfg.Redis.PresenceTTLSeconds = 30
	}
	cfg.Redis.PresenceTTL = time.Duration(cfg.Redis.PresenceTTLSeconds) * time.Second

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}
	if cfg.Push.MinSeverity == "" {
		cfg.Push.MinSeverity = "high"
	}

	if cfg.WorkerPool.Size <= 0 {
		cfg.WorkerPool.Size = 1
	}
	if cfg.WorkerPool.QueueSize <= 0 {
		cfg.WorkerPool.QueueSize = 64
	}

	if cfg.Retention.IntervalMinutes <= 0 {
		cfg.Retention.IntervalMinutes = 60
	}
	cfg.Retention.Interval = time.Duration(cfg.Retention.IntervalMinutes) * time.Minute
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
