package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type AppConfig struct {
	App       AppSettings       `mapstructure:"app"`
	Postgres  PostgresSettings  `mapstructure:"postgres"`
	Redis     RedisSettings     `mapstructure:"redis"`
	Kafka     KafkaSettings     `mapstructure:"kafka"`
	Session   SessionSettings   `mapstructure:"session"`
	SMTP      SMTPSettings      `mapstructure:"smtp"`
	Lockout   LockoutSettings   `mapstructure:"lockout"`
	OTP       OTPSettings       `mapstructure:"otp"`
	Reset     ResetSettings     `mapstructure:"reset"`
	RateLimit RateLimitSettings `mapstructure:"rate_limit"`
	Argon2    Argon2Settings    `mapstructure:"argon2"`
	CORS      CORSSettings      `mapstructure:"cors"`
}

type AppSettings struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

type PostgresSettings struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	User              string        `mapstructure:"user"`
	Password          string        `mapstructure:"password"`
	Database          string        `mapstructure:"database"`
	SSLMode           string        `mapstructure:"ssl_mode"`
	MaxConns          int32         `mapstructure:"max_conns"`
	MinConns          int32         `mapstructure:"min_conns"`
	MaxConnLifetime   time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime   time.Duration `mapstructure:"max_conn_idle_time"`
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
}

// RedisSettings configures the Redis connection used by rate limiting.
type RedisSettings struct {
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	DB         int    `mapstructure:"db"`
	Password   string `mapstructure:"password"`
	TLSEnabled bool   `mapstructure:"tls_enabled"`
}

// KafkaSettings configures the security event producer. An empty broker list
// switches the service to the logging stub publisher.
type KafkaSettings struct {
	Brokers     []string `mapstructure:"brokers"`
	TopicPrefix string   `mapstructure:"topic_prefix"`
}

// SessionSettings configures the HS256 session token issuer and its cookies.
type SessionSettings struct {
	Secret       string        `mapstructure:"secret"`
	TTL          time.Duration `mapstructure:"ttl"`
	CookieDomain string        `mapstructure:"cookie_domain"`
}

// SMTPSettings configures outbound transactional mail.
type SMTPSettings struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	From         string `mapstructure:"from"`
	ResetBaseURL string `mapstructure:"reset_base_url"`
}

// LockoutSettings configures the failed-login lockout policy.
type LockoutSettings struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	Duration    time.Duration `mapstructure:"duration"`
}

// OTPSettings configures e-mail verification codes.
type OTPSettings struct {
	TTL time.Duration `mapstructure:"ttl"`
}

// ResetSettings configures password reset tokens.
type ResetSettings struct {
	TokenLength int `mapstructure:"token_length"`
}

// RateLimitSettings configures per-IP sliding windows on sensitive endpoints.
type RateLimitSettings struct {
	WindowDuration     time.Duration `mapstructure:"window_duration"`
	LoginMaxAttempts   int           `mapstructure:"login_max_attempts"`
	ProfileMaxAttempts int           `mapstructure:"profile_max_attempts"`
}

// Argon2Settings configures Argon2id password hashing parameters.
type Argon2Settings struct {
	Memory      uint32 `mapstructure:"memory"`
	Iterations  uint32 `mapstructure:"iterations"`
	Parallelism uint8  `mapstructure:"parallelism"`
	SaltLength  uint32 `mapstructure:"salt_length"`
	KeyLength   uint32 `mapstructure:"key_length"`
}

type CORSSettings struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

func Load() (*AppConfig, error) {
	v := viper.New()

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix("ANNA")

	setDefaults(v)

	if err := bindEnvs(v, []string{
		"app.name",
		"app.env",
		"app.host",
		"app.port",
		"postgres.host",
		"postgres.port",
		"postgres.user",
		"postgres.password",
		"postgres.database",
		"postgres.ssl_mode",
		"postgres.max_conns",
		"postgres.min_conns",
		"postgres.max_conn_lifetime",
		"postgres.max_conn_idle_time",
		"postgres.health_check_period",
		"redis.host",
		"redis.port",
		"redis.db",
		"redis.password",
		"redis.tls_enabled",
		"kafka.brokers",
		"kafka.topic_prefix",
		"session.secret",
		"session.ttl",
		"session.cookie_domain",
		"smtp.host",
		"smtp.port",
		"smtp.username",
		"smtp.password",
		"smtp.from",
		"smtp.reset_base_url",
		"lockout.max_attempts",
		"lockout.duration",
		"otp.ttl",
		"reset.token_length",
		"rate_limit.window_duration",
		"rate_limit.login_max_attempts",
		"rate_limit.profile_max_attempts",
		"argon2.memory",
		"argon2.iterations",
		"argon2.parallelism",
		"argon2.salt_length",
		"argon2.key_length",
		"cors.allowed_origins",
	}); err != nil {
		return nil, err
	}

	v.AutomaticEnv()

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *AppConfig) validate() error {
	if c.App.Env == "production" && c.Session.Secret == "" {
		return fmt.Errorf("session.secret must be set in production")
	}
	if c.Lockout.MaxAttempts <= 0 {
		return fmt.Errorf("lockout.max_attempts must be positive")
	}
	if c.Lockout.Duration <= 0 {
		return fmt.Errorf("lockout.duration must be positive")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "anna-api")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.host", "0.0.0.0")
	v.SetDefault("app.port", 3000)

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "anna")
	v.SetDefault("postgres.password", "anna_password")
	v.SetDefault("postgres.database", "anna")
	v.SetDefault("postgres.ssl_mode", "disable")
	v.SetDefault("postgres.max_conns", 10)
	v.SetDefault("postgres.min_conns", 2)
	v.SetDefault("postgres.max_conn_lifetime", "60m")
	v.SetDefault("postgres.max_conn_idle_time", "15m")
	v.SetDefault("postgres.health_check_period", "30s")

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.tls_enabled", false)

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic_prefix", "anna")

	v.SetDefault("session.secret", "dev-session-secret")
	v.SetDefault("session.ttl", "1h")
	v.SetDefault("session.cookie_domain", "")

	v.SetDefault("smtp.host", "")
	v.SetDefault("smtp.port", 587)
	v.SetDefault("smtp.username", "")
	v.SetDefault("smtp.password", "")
	v.SetDefault("smtp.from", "no-reply@annamusic.local")
	v.SetDefault("smtp.reset_base_url", "http://localhost:5173/reset-password")

	v.SetDefault("lockout.max_attempts", 5)
	v.SetDefault("lockout.duration", "2m")

	v.SetDefault("otp.ttl", "10m")

	v.SetDefault("reset.token_length", 32)

	v.SetDefault("rate_limit.window_duration", "15m")
	v.SetDefault("rate_limit.login_max_attempts", 5)
	v.SetDefault("rate_limit.profile_max_attempts", 10)

	v.SetDefault("argon2.memory", 65536)
	v.SetDefault("argon2.iterations", 3)
	v.SetDefault("argon2.parallelism", 4)
	v.SetDefault("argon2.salt_length", 16)
	v.SetDefault("argon2.key_length", 32)

	v.SetDefault("cors.allowed_origins", []string{"http://localhost:5173"})
}

func bindEnvs(v *viper.Viper, keys []string) error {
	for _, key := range keys {
		envKey := strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, "ANNA_"+envKey, envKey); err != nil {
			return fmt.Errorf("bind env for %s: %w", key, err)
		}
	}
	return nil
}
