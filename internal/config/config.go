package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"vehiql/internal/model"
)

// DefaultPath is used when VEHIQL_CONFIG_PATH is unset.
const DefaultPath = "configs/config.yaml"

type Config struct {
	Server struct {
		Port                int `yaml:"port"`
		ReadTimeoutSeconds  int `yaml:"read_timeout_seconds"`
		WriteTimeoutSeconds int `yaml:"write_timeout_seconds"`
	} `yaml:"server"`

	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`

	Redis struct {
		Address         string `yaml:"address"`
		Password        string `yaml:"password"`
		DB              int    `yaml:"db"`
		CacheTTLSeconds int    `yaml:"cache_ttl_seconds"`
	} `yaml:"redis"`

	Auth struct {
		JWTSecret string   `yaml:"jwt_secret"`
		Issuer    string   `yaml:"issuer"`
		Admins    []string `yaml:"admins"` // external ids or emails promoted on sign-in
	} `yaml:"auth"`

	Dealership struct {
		Name    string `yaml:"name"`
		Address string `yaml:"address"`
		Phone   string `yaml:"phone"`
		Email   string `yaml:"email"`
	} `yaml:"dealership"`

	Booking struct {
		MaxAdvanceDays int `yaml:"max_advance_days"`
	} `yaml:"booking"`

	RateLimit struct {
		RequestsPerSecond float64 `yaml:"requests_per_second"`
		Burst             int     `yaml:"burst"`
	} `yaml:"rate_limit"`

	Logging struct {
		Level      string `yaml:"level"`
		File       string `yaml:"file"`
		MaxSizeMB  int    `yaml:"max_size_mb"`
		MaxBackups int    `yaml:"max_backups"`
		MaxAgeDays int    `yaml:"max_age_days"`
	} `yaml:"logging"`

	Monitoring struct {
		HealthCheckPort   int  `yaml:"health_check_port"`
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port"`
		GRPCHealthPort    int  `yaml:"grpc_health_port"`
	} `yaml:"monitoring"`

	Backup struct {
		Enabled       bool   `yaml:"enabled"`
		IntervalHours int    `yaml:"interval_hours"`
		Path          string `yaml:"path"`
		RetentionDays int    `yaml:"retention_days"`
	} `yaml:"backup"`

	Notify struct {
		Telegram struct {
			BotToken string  `yaml:"bot_token"`
			ChatIDs  []int64 `yaml:"chat_ids"`
		} `yaml:"telegram"`
		Email struct {
			SMTPHost string `yaml:"smtp_host"`
			SMTPPort int    `yaml:"smtp_port"`
			Username string `yaml:"username"`
			Password string `yaml:"password"`
			From     string `yaml:"from"`
		} `yaml:"email"`
		RatePerSecond float64 `yaml:"rate_per_second"`
		MaxRetries    int     `yaml:"max_retries"`
		MonthlyReport bool    `yaml:"monthly_report"`
	} `yaml:"notify"`

	Reminders struct {
		Enabled     bool   `yaml:"enabled"`
		Timezone    string `yaml:"timezone"`
		DailyHour   int    `yaml:"daily_hour"`
		DailyMinute int    `yaml:"daily_minute"`
	} `yaml:"reminders"`

	Kafka struct {
		Brokers     string `yaml:"brokers"` // comma separated
		TopicPrefix string `yaml:"topic_prefix"`
	} `yaml:"kafka"`

	Sheets struct {
		Enabled         bool   `yaml:"enabled"`
		CredentialsFile string `yaml:"credentials_file"`
		SpreadsheetID   string `yaml:"spreadsheet_id"`
		SheetName       string `yaml:"sheet_name"`
	} `yaml:"sheets"`
}

// Load reads the YAML file at path, expanding ${ENV_VAR} placeholders.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	if cfg.Database.Path == "" {
		cfg.Database.Path = "data/vehiql.db"
	}
	if err = os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return nil, err
	}

	return &cfg, cfg.Validate()
}

// Validate reports every setting the server cannot start without.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		errs = append(errs, errors.New("auth.jwt_secret is required"))
	}
	if c.Dealership.Name == "" {
		errs = append(errs, errors.New("dealership.name is required"))
	}
	if c.Booking.MaxAdvanceDays < 0 {
		errs = append(errs, errors.New("booking.max_advance_days must not be negative"))
	}
	if c.RateLimit.RequestsPerSecond < 0 {
		errs = append(errs, errors.New("rate_limit.requests_per_second must not be negative"))
	}
	if c.Reminders.DailyHour < 0 || c.Reminders.DailyHour > 23 || c.Reminders.DailyMinute < 0 || c.Reminders.DailyMinute > 59 {
		errs = append(errs, errors.New("reminders.daily_hour/daily_minute out of range"))
	}
	if c.Sheets.Enabled && (c.Sheets.CredentialsFile == "" || c.Sheets.SpreadsheetID == "") {
		errs = append(errs, errors.New("sheets.credentials_file and sheets.spreadsheet_id are required when sheets are enabled"))
	}
	return errors.Join(errs...)
}

func (c *Config) ListenAddr() string {
	if c.Server.Port == 0 {
		return ":8080"
	}
	return fmt.Sprintf(":%d", c.Server.Port)
}

func (c *Config) ReadTimeout() time.Duration {
	return secondsOr(c.Server.ReadTimeoutSeconds, 10)
}

func (c *Config) WriteTimeout() time.Duration {
	return secondsOr(c.Server.WriteTimeoutSeconds, 15)
}

func (c *Config) CacheTTL() time.Duration {
	return secondsOr(c.Redis.CacheTTLSeconds, 300)
}

// MaxAdvanceDays is how far ahead a test drive can be booked.
func (c *Config) MaxAdvanceDays() int {
	if c.Booking.MaxAdvanceDays <= 0 {
		return 60
	}
	return c.Booking.MaxAdvanceDays
}

func (c *Config) RateLimitBurst() int {
	if c.RateLimit.Burst <= 0 {
		return 20
	}
	return c.RateLimit.Burst
}

func (c *Config) HealthPort() int {
	if c.Monitoring.HealthCheckPort == 0 {
		return 8090
	}
	return c.Monitoring.HealthCheckPort
}

func (c *Config) PrometheusPort() int {
	if c.Monitoring.PrometheusPort == 0 {
		return 9090
	}
	return c.Monitoring.PrometheusPort
}

func (c *Config) BackupInterval() time.Duration {
	if c.Backup.IntervalHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.Backup.IntervalHours) * time.Hour
}

func (c *Config) BackupDir() string {
	if c.Backup.Path == "" {
		return "backups"
	}
	return c.Backup.Path
}

func (c *Config) BackupRetentionDays() int {
	if c.Backup.RetentionDays <= 0 {
		return 14
	}
	return c.Backup.RetentionDays
}

func (c *Config) NotifyRate() float64 {
	if c.Notify.RatePerSecond <= 0 {
		return 1
	}
	return c.Notify.RatePerSecond
}

func (c *Config) NotifyMaxRetries() int {
	if c.Notify.MaxRetries <= 0 {
		return 3
	}
	return c.Notify.MaxRetries
}

func (c *Config) KafkaTopicPrefix() string {
	if c.Kafka.TopicPrefix == "" {
		return "vehiql"
	}
	return c.Kafka.TopicPrefix
}

// DealershipProfile seeds the dealership row on first start.
func (c *Config) DealershipProfile() model.DealershipInfo {
	return model.DealershipInfo{
		Name:    c.Dealership.Name,
		Address: c.Dealership.Address,
		Phone:   c.Dealership.Phone,
		Email:   c.Dealership.Email,
	}
}

func secondsOr(v, def int) time.Duration {
	if v <= 0 {
		v = def
	}
	return time.Duration(v) * time.Second
}
