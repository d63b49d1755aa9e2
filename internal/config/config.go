package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	StaticPath string        `mapstructure:"static_path"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	Secret     string        `mapstructure:"secret"`
	LogLevel   string        `mapstructure:"log_level"`

	Database DatabaseConfig `mapstructure:"database"`
	Billing  BillingConfig  `mapstructure:"billing"`
	Ledger   LedgerConfig   `mapstructure:"ledger"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Redis    RedisConfig    `mapstructure:"redis"`
	RTC      RTCConfig      `mapstructure:"rtc"`
	Signal   SignalConfig   `mapstructure:"signal"`
}

type DatabaseConfig struct {
	Driver       string        `mapstructure:"driver"`
	DSN          string        `mapstructure:"dsn"`
	LockTimeout  time.Duration `mapstructure:"lock_timeout"`
	MaxOpenConns int           `mapstructure:"max_open_conns"`
}

type BillingConfig struct {
	DefaultPrice           float64 `mapstructure:"default_price"`
	DefaultDoctorPercent   float64 `mapstructure:"default_doctor_percent"`
	DefaultPlatformPercent float64 `mapstructure:"default_platform_percent"`
}

type LedgerConfig struct {
	Timezone      string        `mapstructure:"timezone"`
	RetryAttempts uint          `mapstructure:"retry_attempts"`
	RetryDelay    time.Duration `mapstructure:"retry_delay"`
	RetryMaxDelay time.Duration `mapstructure:"retry_max_delay"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	JWTIssuer string `mapstructure:"jwt_issuer"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Channel  string `mapstructure:"channel"`
}

type RTCConfig struct {
	ICEServers []string `mapstructure:"ice_servers"`
}

type SignalConfig struct {
	SendBuffer int           `mapstructure:"send_buffer"`
	JoinLimit  int           `mapstructure:"join_limit"`
	JoinWindow time.Duration `mapstructure:"join_window"`
}

// insecureSecret is the cookie secret default; release mode refuses it.
const insecureSecret = "change-me"

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("secret", insecureSecret)
	v.SetDefault("log_level", "info")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "consult.db")
	v.SetDefault("database.lock_timeout", "20s")
	v.SetDefault("database.max_open_conns", 10)

	v.SetDefault("billing.default_price", 150.0)
	v.SetDefault("billing.default_doctor_percent", 70.0)
	v.SetDefault("billing.default_platform_percent", 30.0)

	v.SetDefault("ledger.timezone", "Local")
	v.SetDefault("ledger.retry_attempts", 3)
	v.SetDefault("ledger.retry_delay", "100ms")
	v.SetDefault("ledger.retry_max_delay", "1s")

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.jwt_issuer", "consult")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.channel", "consult.notes.saved")

	v.SetDefault("rtc.ice_servers", []string{"stun:stun.l.google.com:19302"})

	v.SetDefault("signal.send_buffer", 64)
	v.SetDefault("signal.join_limit", 20)
	v.SetDefault("signal.join_window", "1m")
}

func Load() (*Config, error) {
	// .env is optional; real environment wins over it.
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvPrefix("CONSULT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("⚠️ Config file not found (%s), using defaults\n", fileName)
	} else {
		fmt.Printf("✅ Loaded config: %s\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	fmt.Printf("🧩 Mode: %s | Port: %d | DB: %s\n", cfg.Mode, cfg.Port, cfg.Database.Driver)
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "mysql", "postgres":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}
	if c.Mode == "release" && (c.Secret == "" || c.Secret == insecureSecret) {
		return fmt.Errorf("secret must be set in release mode")
	}
	if c.Ledger.RetryAttempts == 0 {
		return fmt.Errorf("ledger.retry_attempts must be at least 1")
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("ledger.timezone: %w", err)
	}
	return nil
}

// Location is the zone used to cut calendar days and months.
func (c *Config) Location() (*time.Location, error) {
	if c.Ledger.Timezone == "" || c.Ledger.Timezone == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Ledger.Timezone)
}
