package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
		// BaseURL is the public origin used in payment redirects.
		BaseURL       string `yaml:"base_url"`
		SessionSecret string `yaml:"session_secret"`
		SessionTTL    string `yaml:"session_ttl"`
		SecureCookie  bool   `yaml:"secure_cookie"`
	} `yaml:"server"`
	Questions struct {
		// Source is "csv" (default) or "postgres".
		Source string `yaml:"source"`
		Path   string `yaml:"path"`
	} `yaml:"questions"`
	Quiz struct {
		TrialSize int `yaml:"trial_size"`
	} `yaml:"quiz"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Payments struct {
		// Provider is "stripe" or "local". Empty selects stripe when a secret
		// key is set and otherwise leaves checkout unavailable.
		Provider string `yaml:"provider"`
	} `yaml:"payments"`
	Stripe struct {
		SecretKey     string `yaml:"secret_key"`
		PriceID       string `yaml:"price_id"`
		WebhookSecret string `yaml:"webhook_secret"`
	} `yaml:"stripe"`
	AMQP struct {
		URL      string `yaml:"url"`
		Exchange string `yaml:"exchange"`
	} `yaml:"amqp"`
	Timeouts struct {
		External string `yaml:"external"`
	} `yaml:"timeouts"`
}

// Load reads a .env file if present, the YAML config from path, and then
// applies environment overrides for secrets and endpoints.
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	override(&cfg.Server.BaseURL, "BASE_URL")
	override(&cfg.Server.SessionSecret, "SESSION_SECRET")
	override(&cfg.Questions.Path, "QUESTIONS_PATH")
	override(&cfg.Redis.Addr, "REDIS_ADDR")
	override(&cfg.Redis.Password, "REDIS_PASSWORD")
	override(&cfg.Postgres.URL, "DATABASE_URL")
	override(&cfg.Payments.Provider, "PAYMENTS_PROVIDER")
	override(&cfg.Stripe.SecretKey, "STRIPE_SECRET_KEY")
	override(&cfg.Stripe.PriceID, "STRIPE_PRICE_ID")
	override(&cfg.Stripe.WebhookSecret, "STRIPE_WEBHOOK_SECRET")
	override(&cfg.AMQP.URL, "AMQP_URL")
	if raw := os.Getenv("TRIAL_SIZE"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			cfg.Quiz.TrialSize = n
		}
	}
}

func override(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// Duration parses a duration string or returns the fallback if empty.
func Duration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
