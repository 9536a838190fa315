package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the whole application configuration.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	DB      DBConfig      `mapstructure:"db"`
	Blob    BlobConfig    `mapstructure:"blob"`
	Feed    FeedConfig    `mapstructure:"feed"`
	Log     LogConfig     `mapstructure:"log"`
	Kiosk   KioskConfig   `mapstructure:"kiosk"`
	Auth    AuthConfig    `mapstructure:"auth"`
	Tracing TracingConfig `mapstructure:"tracing"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port" validate:"min=1,max=65535"`
	PublicURL       string        `mapstructure:"public_url"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DBConfig struct {
	Driver          string        `mapstructure:"driver" validate:"oneof=mysql postgres sqlite"`
	DSN             string        `mapstructure:"dsn"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" validate:"min=0"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" validate:"min=0"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	SlowThreshold   time.Duration `mapstructure:"slow_threshold"`
	LogLevel        string        `mapstructure:"log_level" validate:"oneof=silent error warn info"`
}

type BlobConfig struct {
	Backend         string `mapstructure:"backend" validate:"oneof=local gcs"`
	Dir             string `mapstructure:"dir"`
	BaseURL         string `mapstructure:"base_url"`
	Bucket          string `mapstructure:"bucket" validate:"required_if=Backend gcs"`
	CredentialsFile string `mapstructure:"credentials_file"`
}

type FeedConfig struct {
	Backend       string `mapstructure:"backend" validate:"oneof=memory redis postgres"`
	Buffer        int    `mapstructure:"buffer" validate:"min=1"`
	RedisAddr     string `mapstructure:"redis_addr" validate:"required_if=Backend redis"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
	Channel       string `mapstructure:"channel"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format" validate:"oneof=json console"`
}

type KioskConfig struct {
	OrgName    string `mapstructure:"org_name"`
	SiteName   string `mapstructure:"site_name"`
	Timezone   string `mapstructure:"timezone"`
	Lang       string `mapstructure:"lang" validate:"oneof=th en"`
	PageSize   int    `mapstructure:"page_size" validate:"min=1,max=1000"`
	RecentCap  int    `mapstructure:"recent_cap" validate:"min=1"`
	RecentPath string `mapstructure:"recent_path"`
}

type AuthConfig struct {
	Username string `mapstructure:"username"`
	FullName string `mapstructure:"full_name"`
	// Password may be a bcrypt hash or plaintext; it only seeds the operator
	// row when the username does not exist yet.
	Password string `mapstructure:"password"`
}

type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Exporter    string `mapstructure:"exporter" validate:"oneof=stdout otlp"`
	Endpoint    string `mapstructure:"endpoint"`
	Insecure    bool   `mapstructure:"insecure"`
	ServiceName string `mapstructure:"service_name"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// Location resolves the kiosk timezone.
func (k KioskConfig) Location() (*time.Location, error) {
	return time.LoadLocation(k.Timezone)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.public_url", "")
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.shutdown_timeout", "15s")

	v.SetDefault("db.driver", "sqlite")
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.password", "")
	v.SetDefault("db.host", "127.0.0.1")
	v.SetDefault("db.port", 3306)
	v.SetDefault("db.user", "root")
	v.SetDefault("db.name", "visitor_kiosk")
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("db.path", "kiosk.db")
	v.SetDefault("db.max_open_conns", 25)
	v.SetDefault("db.max_idle_conns", 10)
	v.SetDefault("db.conn_max_lifetime", "1h")
	v.SetDefault("db.slow_threshold", "1s")
	v.SetDefault("db.log_level", "warn")

	v.SetDefault("blob.backend", "local")
	v.SetDefault("blob.dir", "./uploads/photos")
	v.SetDefault("blob.base_url", "/uploads/photos")
	v.SetDefault("blob.bucket", "")
	v.SetDefault("blob.credentials_file", "")

	v.SetDefault("feed.backend", "memory")
	v.SetDefault("feed.buffer", 64)
	v.SetDefault("feed.redis_addr", "")
	v.SetDefault("feed.redis_password", "")
	v.SetDefault("feed.redis_db", 0)
	v.SetDefault("feed.channel", "kiosk:visitors")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("kiosk.org_name", "")
	v.SetDefault("kiosk.site_name", "")
	v.SetDefault("kiosk.timezone", "Asia/Bangkok")
	v.SetDefault("kiosk.lang", "th")
	v.SetDefault("kiosk.page_size", 50)
	v.SetDefault("kiosk.recent_cap", 50)
	v.SetDefault("kiosk.recent_path", "./data/recent")

	v.SetDefault("auth.username", "admin")
	v.SetDefault("auth.full_name", "Front Desk")
	v.SetDefault("auth.password", "")

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.exporter", "stdout")
	v.SetDefault("tracing.endpoint", "")
	v.SetDefault("tracing.insecure", false)
	v.SetDefault("tracing.service_name", "visitor-kiosk")

	v.SetDefault("metrics.enabled", true)
}

// Load reads .env (optional), then config file, then KIOSK_* environment
// variables. Later sources win.
func Load(path string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("KIOSK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// plain names used by the container platform
	_ = v.BindEnv("server.port", "KIOSK_SERVER_PORT", "PORT")
	_ = v.BindEnv("server.cors_origins", "KIOSK_SERVER_CORS_ORIGINS", "CORS_ORIGINS")
	_ = v.BindEnv("db.dsn", "KIOSK_DB_DSN", "MYSQL_URL", "DATABASE_URL")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// normalize infers the driver from a URL-style DSN and tidies lists.
func (c *Config) normalize() {
	dsn := strings.TrimSpace(c.DB.DSN)
	switch {
	case strings.HasPrefix(dsn, "mysql://"):
		c.DB.Driver = "mysql"
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		c.DB.Driver = "postgres"
	}

	origins := make([]string, 0, len(c.Server.CORSOrigins))
	for _, o := range c.Server.CORSOrigins {
		for _, part := range strings.Split(o, ",") {
			if p := strings.TrimSpace(part); p != "" {
				origins = append(origins, p)
			}
		}
	}
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c.Server.CORSOrigins = origins
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
}

var validate = validator.New()

// Validate checks struct tags and the cross-field rules tags cannot express.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if _, err := c.Kiosk.Location(); err != nil {
		return fmt.Errorf("invalid config: kiosk.timezone: %w", err)
	}
	if c.Server.PublicURL != "" {
		if _, err := url.ParseRequestURI(c.Server.PublicURL); err != nil {
			return fmt.Errorf("invalid config: server.public_url: %w", err)
		}
	}
	if c.Feed.Backend == "postgres" && c.DB.Driver != "postgres" {
		return errors.New("invalid config: feed.backend=postgres needs db.driver=postgres")
	}
	return nil
}
