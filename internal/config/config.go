package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Env            string        `mapstructure:"ENV"`
	Port           string        `mapstructure:"PORT"`
	DatabaseURL    string        `mapstructure:"DATABASE_URL"`
	CORSAllowed    string        `mapstructure:"CORS_ALLOWED_ORIGINS"`
	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	LogLevel       string        `mapstructure:"LOG_LEVEL"`
	SessionTTL     time.Duration `mapstructure:"SESSION_TTL"`

	RedisAddr       string        `mapstructure:"REDIS_ADDR"`
	RedisPassword   string        `mapstructure:"REDIS_PASSWORD"`
	RedisDB         int           `mapstructure:"REDIS_DB"`
	LoginRateLimit  int           `mapstructure:"LOGIN_RATE_LIMIT"`
	LoginRateWindow time.Duration `mapstructure:"LOGIN_RATE_WINDOW"`

	KafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	KafkaTopic   string `mapstructure:"KAFKA_TOPIC"`

	// Seeds an admin into the in-memory repository; ignored with DATABASE_URL.
	SeedAdminUsername string `mapstructure:"SEED_ADMIN_USERNAME"`
	SeedAdminPassword string `mapstructure:"SEED_ADMIN_PASSWORD"`

	// Used by the watch command.
	APIURL       string        `mapstructure:"API_URL"`
	PollInterval time.Duration `mapstructure:"POLL_INTERVAL"`
}

func Load() (Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	_ = v.ReadInConfig()

	// Unmarshal only sees keys viper knows about, so every key gets a default.
	v.SetDefault("ENV", "dev")
	v.SetDefault("PORT", "8080")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("CORS_ALLOWED_ORIGINS", "*")
	v.SetDefault("SESSION_TTL", "168h")
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("LOGIN_RATE_LIMIT", 10)
	v.SetDefault("LOGIN_RATE_WINDOW", "1m")
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("KAFKA_TOPIC", "supportdesk.tickets")
	v.SetDefault("SEED_ADMIN_USERNAME", "")
	v.SetDefault("SEED_ADMIN_PASSWORD", "")
	v.SetDefault("API_URL", "http://localhost:8080")
	v.SetDefault("POLL_INTERVAL", "3s")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
