package app

import (
	"os"
	"strings"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

// Config holds the complete application configuration, loadable from
// environment variables (PSP_ prefix), flags, or YAML config files.
type Config struct {
	Addr string `default:"0.0.0.0:8080" usage:"API server listen address"`
	// DatabaseURL selects PostgreSQL storage. Without it orders live in
	// memory, which is meant for local development only.
	DatabaseURL string `usage:"PostgreSQL connection URL (PSP_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	Stripe      StripeConfig
	Redis       RedisConfig
	Kafka       KafkaConfig
	Audit       AuditConfig
	RateLimit   RateLimitConfig
	CORS        CORSConfig
	Graceful    GracefulConfig
}

// StripeConfig configures the card processor. Card tenders are refused
// when SecretKey is empty.
type StripeConfig struct {
	SecretKey     string        `usage:"Stripe secret API key" flag:"stripe-secret-key"`
	WebhookSecret string        `usage:"Stripe webhook signing secret; empty disables signature checks" flag:"stripe-webhook-secret"`
	Currency      string        `default:"eur" usage:"ISO currency of every charge"`
	Timeout       time.Duration `default:"10s" usage:"Timeout of a single Stripe API call"`
}

// RedisConfig configures webhook event deduplication. An empty Addr keeps
// the processed event ids in process memory.
type RedisConfig struct {
	Addr      string        `usage:"Redis address (host:port)" flag:"redis-addr"`
	Password  string        `usage:"Redis password"`
	DB        int           `default:"0" usage:"Redis database number"`
	DedupeTTL time.Duration `default:"24h" usage:"How long processed webhook event ids are remembered" flag:"dedupe-ttl"`
}

// KafkaConfig configures the audit event stream. Without brokers audit
// events are written to the log.
type KafkaConfig struct {
	Brokers    []string `usage:"Kafka bootstrap brokers" flag:"kafka-brokers"`
	AuditTopic string   `default:"psp.audit" usage:"Topic receiving audit events" flag:"audit-topic"`
}

// AuditConfig bounds the asynchronous audit sink.
type AuditConfig struct {
	Buffer       int           `default:"1024" usage:"Audit events queued before new ones are dropped"`
	DrainTimeout time.Duration `default:"5s" usage:"Time allowed to flush queued audit events on shutdown"`
	// MaxDropped turns the readiness probe red once exceeded.
	MaxDropped int64 `default:"1000" usage:"Dropped audit events tolerated before readiness fails"`
}

// RateLimitConfig controls the per-merchant sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"300" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config files,
// and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	return loadConfig(aconfig.Config{
		EnvPrefix: "PSP",
		Files:     []string{"config.yaml", "/etc/psp/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
}

func loadConfig(ac aconfig.Config) (*Config, error) {
	var cfg Config
	if err := aconfig.LoaderFor(&cfg, ac).Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.RateLimit.Max <= 0 || c.RateLimit.Window <= 0 {
		return errors.New("rate limit max and window must be positive")
	}
	if c.Audit.Buffer <= 0 {
		return errors.New("audit buffer must be positive")
	}
	if c.Stripe.SecretKey != "" && len(c.Stripe.Currency) != 3 {
		return errors.Errorf("invalid currency %q", c.Stripe.Currency)
	}
	return nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's PSP_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
	if c.Redis.Addr == "" {
		if v := os.Getenv("REDIS_ADDR"); v != "" {
			c.Redis.Addr = v
		}
	}
	c.Stripe.Currency = strings.ToLower(c.Stripe.Currency)
}
