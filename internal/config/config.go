package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jwalitptl/availability-api/internal/model"
	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"
)

const EnvPrefix = "AVAILABILITY"

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Upstream  UpstreamConfig  `mapstructure:"upstream"`
	Sync      SyncConfig      `mapstructure:"sync"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Filter    FilterConfig    `mapstructure:"filter"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Auth      AuthConfig      `mapstructure:"auth"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// DSN returns the connection string for the configured driver.
func (c DatabaseConfig) DSN() string {
	if c.Driver == "sqlite" {
		return "file:" + c.Path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
}

type UpstreamConfig struct {
	BaseURL           string        `mapstructure:"base_url"`
	Token             string        `mapstructure:"token"`
	Timeout           time.Duration `mapstructure:"timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
	MaxFailures       int           `mapstructure:"max_failures"`
	OpenTimeout       time.Duration `mapstructure:"open_timeout"`
}

type SyncConfig struct {
	Timezone      string        `mapstructure:"timezone"`
	SlotStart     string        `mapstructure:"slot_start"`
	SlotEnd       string        `mapstructure:"slot_end"`
	SlotStep      time.Duration `mapstructure:"slot_step"`
	HorizonDays   int           `mapstructure:"horizon_days"`
	RetentionDays int           `mapstructure:"retention_days"`
	FreshFor      time.Duration `mapstructure:"fresh_for"`
	OutdatedAfter time.Duration `mapstructure:"outdated_after"`
	FetchTimeout  time.Duration `mapstructure:"fetch_timeout"`
}

type SchedulerConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	AutoSyncInterval time.Duration `mapstructure:"auto_sync_interval"`
	CleanupInterval  time.Duration `mapstructure:"cleanup_interval"`
	ExtendInterval   time.Duration `mapstructure:"extend_interval"`
	LogCapacity      int           `mapstructure:"log_capacity"`
	HealthPort       int           `mapstructure:"health_port"`
}

type Label struct {
	ID    string `mapstructure:"id"`
	Label string `mapstructure:"label"`
}

type FilterConfig struct {
	Mode                string        `mapstructure:"mode"`
	DoctorID            string        `mapstructure:"doctor_id"`
	ClinicID            string        `mapstructure:"clinic_id"`
	TreatmentType       string        `mapstructure:"treatment_type"`
	TreatmentSelectable bool          `mapstructure:"treatment_selectable"`
	CacheTTL            time.Duration `mapstructure:"cache_ttl"`
	Doctors             []Label       `mapstructure:"doctors"`
	Clinics             []Label       `mapstructure:"clinics"`
	Treatments          []Label       `mapstructure:"treatments"`
}

// Settings converts the configured form shape into its model form.
func (c FilterConfig) Settings() model.FilterSettings {
	return model.FilterSettings{
		Mode:                model.FilterMode(c.Mode),
		DoctorID:            c.DoctorID,
		ClinicID:            c.ClinicID,
		TreatmentType:       c.TreatmentType,
		TreatmentSelectable: c.TreatmentSelectable,
	}
}

type RedisConfig struct {
	URL           string        `mapstructure:"url"`
	ChannelPrefix string        `mapstructure:"channel_prefix"`
	PoolSize      int           `mapstructure:"pool_size"`
	MaxRetries    int           `mapstructure:"max_retries"`
	RetryBackoff  time.Duration `mapstructure:"retry_backoff"`
	SyncChannel   string        `mapstructure:"sync_channel"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	Issuer    string `mapstructure:"issuer"`
}

type RateLimitConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

// Secrets are read from the environment only, never from config files.
type Secrets struct {
	UpstreamToken string `envconfig:"UPSTREAM_TOKEN"`
	JWTSecret     string `envconfig:"JWT_SECRET"`
	DBPassword    string `envconfig:"DB_PASSWORD"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.request_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.allowed_origins", []string{"*"})

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "availability")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.path", "availability.db")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("upstream.base_url", "")
	v.SetDefault("upstream.token", "")
	v.SetDefault("upstream.timeout", 15*time.Second)
	v.SetDefault("upstream.requests_per_second", 5.0)
	v.SetDefault("upstream.burst", 5)
	v.SetDefault("upstream.max_failures", 5)
	v.SetDefault("upstream.open_timeout", 30*time.Second)

	v.SetDefault("sync.timezone", "UTC")
	v.SetDefault("sync.slot_start", "09:00")
	v.SetDefault("sync.slot_end", "20:30")
	v.SetDefault("sync.slot_step", 30*time.Minute)
	v.SetDefault("sync.horizon_days", 21)
	v.SetDefault("sync.retention_days", 21)
	v.SetDefault("sync.fresh_for", time.Hour)
	v.SetDefault("sync.outdated_after", 24*time.Hour)
	v.SetDefault("sync.fetch_timeout", 20*time.Second)

	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.auto_sync_interval", 30*time.Minute)
	v.SetDefault("scheduler.cleanup_interval", 24*time.Hour)
	v.SetDefault("scheduler.extend_interval", 7*24*time.Hour)
	v.SetDefault("scheduler.log_capacity", 100)
	v.SetDefault("scheduler.health_port", 8081)

	v.SetDefault("filter.mode", string(model.FilterModeDoctor))
	v.SetDefault("filter.doctor_id", "")
	v.SetDefault("filter.clinic_id", "")
	v.SetDefault("filter.treatment_type", "")
	v.SetDefault("filter.treatment_selectable", true)
	v.SetDefault("filter.cache_ttl", time.Minute)

	v.SetDefault("redis.url", "")
	v.SetDefault("redis.channel_prefix", "availability")
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.max_retries", 3)
	v.SetDefault("redis.retry_backoff", 100*time.Millisecond)
	v.SetDefault("redis.sync_channel", "availability.sync_requests")

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.issuer", "availability-api")

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests_per_second", 20.0)
	v.SetDefault("rate_limit.burst", 40)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
}

// Load reads configuration from path (or config.yml in the usual locations
// when path is empty), then applies AVAILABILITY_* environment overrides and
// secrets. A missing config file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/app/config")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	var secrets Secrets
	if err := envconfig.Process(EnvPrefix, &secrets); err != nil {
		return nil, fmt.Errorf("failed to read secrets: %w", err)
	}
	cfg.applySecrets(secrets)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applySecrets(s Secrets) {
	if s.UpstreamToken != "" {
		c.Upstream.Token = s.UpstreamToken
	}
	if s.JWTSecret != "" {
		c.Auth.JWTSecret = s.JWTSecret
	}
	if s.DBPassword != "" {
		c.Database.Password = s.DBPassword
	}
}

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres":
	case "sqlite":
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required for the sqlite driver")
		}
	default:
		return fmt.Errorf("unsupported database.driver %q", c.Database.Driver)
	}

	switch model.FilterMode(c.Filter.Mode) {
	case model.FilterModeDoctor, model.FilterModeClinic:
	default:
		return fmt.Errorf("unsupported filter.mode %q", c.Filter.Mode)
	}

	if _, err := time.LoadLocation(c.Sync.Timezone); err != nil {
		return fmt.Errorf("invalid sync.timezone: %w", err)
	}
	if len(c.SlotGrid()) == 0 {
		return fmt.Errorf("sync slot grid %s-%s every %s is empty", c.Sync.SlotStart, c.Sync.SlotEnd, c.Sync.SlotStep)
	}
	if c.Sync.FreshFor <= 0 || c.Sync.OutdatedAfter <= c.Sync.FreshFor {
		return fmt.Errorf("sync.fresh_for must be positive and below sync.outdated_after")
	}
	if c.Sync.HorizonDays <= 0 || c.Sync.RetentionDays <= 0 {
		return fmt.Errorf("sync.horizon_days and sync.retention_days must be positive")
	}
	if c.Scheduler.LogCapacity <= 0 {
		return fmt.Errorf("scheduler.log_capacity must be positive")
	}
	return nil
}

// SlotGrid returns the configured default slot times.
func (c *Config) SlotGrid() []model.TimeOfDay {
	start, err := model.ParseTimeOfDay(c.Sync.SlotStart)
	if err != nil {
		return nil
	}
	end, err := model.ParseTimeOfDay(c.Sync.SlotEnd)
	if err != nil {
		return nil
	}
	return model.SlotGrid(start, end, c.Sync.SlotStep)
}
