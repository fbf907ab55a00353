package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"mystore/internal/pkg/errors"
)

type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	CORS      CORSConfig      `mapstructure:"cors"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Session   SessionConfig   `mapstructure:"session"`
	Roles     RolesConfig     `mapstructure:"roles"`
	MyStore   MyStoreConfig   `mapstructure:"mystore"`
}

type AppConfig struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
	URL  string `mapstructure:"url"`
}

type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

type DatabaseConfig struct {
	URL            string `mapstructure:"url"`
	MaxConnections int    `mapstructure:"max_connections"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

type JWTConfig struct {
	Secret         string        `mapstructure:"secret"`
	AccessTokenTTL time.Duration `mapstructure:"access_token_ttl"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
	MaxAge         int      `mapstructure:"max_age"`
}

type RateLimitConfig struct {
	LoginPerMinute  int `mapstructure:"login_per_minute"`
	ForgotPerMinute int `mapstructure:"forgot_per_minute"`
}

type LoggingConfig struct {
	Level    string `mapstructure:"level"`
	Format   string `mapstructure:"format"`
	Output   string `mapstructure:"output"`
	FilePath string `mapstructure:"file_path"`
}

type SessionConfig struct {
	Lifetime      time.Duration `mapstructure:"lifetime"`
	PruneSchedule string        `mapstructure:"prune_schedule"`
}

// RolesConfig maps role ids to slugs for users whose role relation is not loaded.
// Keys are decimal role ids.
type RolesConfig struct {
	RoleMap map[string]string `mapstructure:"role_map"`
}

type MyStoreConfig struct {
	SystemActorID int64             `mapstructure:"system_actor_id"`
	Invitations   InvitationsConfig `mapstructure:"invitations"`
	Mail          MailConfig        `mapstructure:"mail"`
	Seats         SeatsConfig       `mapstructure:"seats"`
	Passwords     PasswordsConfig   `mapstructure:"passwords"`
	Unsubscribe   UnsubscribeConfig `mapstructure:"unsubscribe"`
}

type InvitationsConfig struct {
	ExpiresHours   int    `mapstructure:"expires_hours"`
	SweepBatchSize int    `mapstructure:"sweep_batch_size"`
	SweepSchedule  string `mapstructure:"sweep_schedule"`
}

type MailConfig struct {
	Dispatch    string     `mapstructure:"dispatch"`
	Queue       string     `mapstructure:"queue"`
	FromAddress string     `mapstructure:"from_address"`
	FromName    string     `mapstructure:"from_name"`
	SMTP        SMTPConfig `mapstructure:"smtp"`
}

type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

type SeatsConfig struct {
	CountSuspended bool `mapstructure:"count_suspended"`
}

type PasswordsConfig struct {
	ResetTTL time.Duration `mapstructure:"reset_ttl"`
}

type UnsubscribeConfig struct {
	SigningKey string        `mapstructure:"signing_key"`
	LinkTTL    time.Duration `mapstructure:"link_ttl"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "mystore")
	v.SetDefault("app.env", "production")
	v.SetDefault("app.url", "http://localhost:8080")

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)

	v.SetDefault("database.max_connections", 10)

	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("redis.pool_size", 10)

	v.SetDefault("jwt.access_token_ttl", 15*time.Minute)

	v.SetDefault("cors.allowed_methods", []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"})
	v.SetDefault("cors.allowed_headers", []string{"Authorization", "Content-Type"})
	v.SetDefault("cors.max_age", 600)

	v.SetDefault("rate_limit.login_per_minute", 10)
	v.SetDefault("rate_limit.forgot_per_minute", 5)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")

	v.SetDefault("session.lifetime", 120*time.Minute)
	v.SetDefault("session.prune_schedule", "@hourly")

	v.SetDefault("mystore.system_actor_id", 0)
	v.SetDefault("mystore.invitations.expires_hours", 72)
	v.SetDefault("mystore.invitations.sweep_batch_size", 100)
	v.SetDefault("mystore.invitations.sweep_schedule", "*/10 * * * *")
	v.SetDefault("mystore.mail.dispatch", "auto")
	v.SetDefault("mystore.mail.queue", "mail")
	v.SetDefault("mystore.mail.from_name", "mystore")
	v.SetDefault("mystore.mail.smtp.port", 587)
	v.SetDefault("mystore.passwords.reset_ttl", 60*time.Minute)
	v.SetDefault("mystore.unsubscribe.link_ttl", 30*24*time.Hour)
}

func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate reports settings every binary needs before it can start.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Database.URL) == "" {
		return fmt.Errorf("%w: database.url", errors.ErrConfigurationMissing)
	}
	if c.MyStore.Invitations.ExpiresHours <= 0 {
		return fmt.Errorf("%w: mystore.invitations.expires_hours must be positive", errors.ErrConfigurationMissing)
	}
	return nil
}

// RequireServerSecrets is checked by the HTTP server only; the CLI and worker
// run without signing keys.
func (c *Config) RequireServerSecrets() error {
	if c.JWT.Secret == "" {
		return fmt.Errorf("%w: jwt.secret", errors.ErrConfigurationMissing)
	}
	if c.MyStore.Unsubscribe.SigningKey == "" {
		return fmt.Errorf("%w: mystore.unsubscribe.signing_key", errors.ErrConfigurationMissing)
	}
	return nil
}

// TestingProfile reports whether the process runs under a deterministic test profile.
func (c AppConfig) TestingProfile() bool {
	switch strings.ToLower(c.Env) {
	case "testing", "test":
		return true
	}
	return false
}
