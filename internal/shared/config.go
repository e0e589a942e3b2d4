package shared

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"reviewpulse/internal/domain"
)

const DefaultConfigPath = "config.yaml"

// ProviderConfig tunes one review source. Secrets only come from the
// environment.
type ProviderConfig struct {
	BaseURL  string        `yaml:"base_url"`
	Cooldown time.Duration `yaml:"cooldown"`
	MaxPages int           `yaml:"max_pages"`
	PageSize int           `yaml:"page_size"`
	RPS      int           `yaml:"rps"`

	APIKey      string `yaml:"-"`
	AccessToken string `yaml:"-"`
}

type Config struct {
	AppEnv      string `yaml:"app_env"`
	HTTPAddr    string `yaml:"http_addr"`
	MetricsAddr string `yaml:"metrics_addr"`

	// DBDriver is "mysql" or "sqlite".
	DBDriver   string `yaml:"db_driver"`
	MySQLDSN   string `yaml:"-"`
	SQLitePath string `yaml:"sqlite_path"`

	// Empty RedisAddr disables the review cache and forces sql windows.
	RedisAddr string `yaml:"redis_addr"`
	RedisPass string `yaml:"-"`
	RedisDB   int    `yaml:"redis_db"`
	// WindowStore is "sql" or "redis".
	WindowStore string        `yaml:"window_store"`
	CacheTTL    time.Duration `yaml:"cache_ttl"`

	NATSURL     string `yaml:"nats_url"`
	NATSSubject string `yaml:"nats_subject"`

	Workers     int           `yaml:"workers"`
	SyncTimeout time.Duration `yaml:"sync_timeout"`

	Log struct {
		Level      string `yaml:"level"`
		File       string `yaml:"file"`
		MaxSizeMB  int    `yaml:"max_size_mb"`
		MaxBackups int    `yaml:"max_backups"`
		MaxAgeDays int    `yaml:"max_age_days"`
	} `yaml:"log"`

	Enrichment struct {
		BatchSize   int           `yaml:"batch_size"`
		BatchDelay  time.Duration `yaml:"batch_delay"`
		ItemTimeout time.Duration `yaml:"item_timeout"`
		// Async returns the sync after upsert and enriches in the background.
		Async bool `yaml:"async"`
	} `yaml:"enrichment"`

	LLM struct {
		BaseURL     string        `yaml:"base_url"`
		Model       string        `yaml:"model"`
		Temperature float64       `yaml:"temperature"`
		Timeout     time.Duration `yaml:"timeout"`
		APIKey      string        `yaml:"-"`
	} `yaml:"llm"`

	Google struct {
		ProviderConfig `yaml:",inline"`
		BusinessBaseURL string `yaml:"business_base_url"`
	} `yaml:"google"`
	Yelp        ProviderConfig `yaml:"yelp"`
	Reddit      ProviderConfig `yaml:"reddit"`
	TripAdvisor ProviderConfig `yaml:"tripadvisor"`
}

func defaults() Config {
	var c Config
	c.AppEnv = "prod"
	c.HTTPAddr = ":8080"
	c.MetricsAddr = ":9100"
	c.DBDriver = "mysql"
	c.MySQLDSN = "root:root@tcp(localhost:3306)/reviewpulse?parseTime=true&charset=utf8mb4&loc=UTC"
	c.SQLitePath = "reviewpulse.db"
	c.WindowStore = "sql"
	c.CacheTTL = 5 * time.Minute
	c.Workers = 4
	c.SyncTimeout = 5 * time.Minute

	c.Log.Level = "info"
	c.Log.MaxSizeMB = 100
	c.Log.MaxBackups = 5
	c.Log.MaxAgeDays = 14

	c.Enrichment.BatchSize = 5
	c.Enrichment.BatchDelay = time.Second
	c.Enrichment.ItemTimeout = 30 * time.Second

	c.LLM.BaseURL = "https://api.openai.com/v1"
	c.LLM.Model = "gpt-4o-mini"
	c.LLM.Temperature = 0.1
	c.LLM.Timeout = 30 * time.Second

	// Yelp's review endpoint is quota-bound; the rest sync on demand.
	c.Yelp.Cooldown = 24 * time.Hour
	for _, p := range []*ProviderConfig{&c.Google.ProviderConfig, &c.Yelp, &c.Reddit, &c.TripAdvisor} {
		p.MaxPages = 10
		p.RPS = 5
	}
	c.Reddit.RPS = 1
	return c
}

// Load builds the config from defaults, then the YAML file at CONFIG_PATH
// (if present), then environment variables. A .env file in the working
// directory is loaded first and never overrides the real environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Msg("ignoring unreadable .env")
	}

	c := defaults()
	path := env("CONFIG_PATH", DefaultConfigPath)
	switch data, err := os.ReadFile(path); {
	case err == nil:
		if err := yaml.Unmarshal(data, &c); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	case !errors.Is(err, os.ErrNotExist):
		return Config{}, fmt.Errorf("read %s: %w", path, err)
	}

	overrideStr(&c.AppEnv, "APP_ENV")
	overrideStr(&c.HTTPAddr, "HTTP_ADDR")
	overrideStr(&c.MetricsAddr, "METRICS_ADDR")
	overrideStr(&c.DBDriver, "DB_DRIVER")
	overrideStr(&c.MySQLDSN, "MYSQL_DSN")
	overrideStr(&c.SQLitePath, "SQLITE_PATH")
	overrideStr(&c.RedisAddr, "REDIS_ADDR")
	overrideStr(&c.RedisPass, "REDIS_PASSWORD")
	overrideInt(&c.RedisDB, "REDIS_DB")
	overrideStr(&c.WindowStore, "WINDOW_STORE")
	if n, ok := intEnv("CACHE_TTL_SECONDS"); ok {
		c.CacheTTL = time.Duration(n) * time.Second
	}
	overrideStr(&c.NATSURL, "NATS_URL")
	overrideStr(&c.NATSSubject, "NATS_SUBJECT")
	overrideInt(&c.Workers, "SYNC_WORKERS")
	overrideDur(&c.SyncTimeout, "SYNC_TIMEOUT")

	overrideStr(&c.Log.Level, "LOG_LEVEL")
	overrideStr(&c.Log.File, "LOG_FILE")

	overrideInt(&c.Enrichment.BatchSize, "ENRICH_BATCH_SIZE")
	overrideDur(&c.Enrichment.BatchDelay, "ENRICH_BATCH_DELAY")
	overrideBool(&c.Enrichment.Async, "ENRICH_ASYNC")

	overrideStr(&c.LLM.BaseURL, "OPENAI_BASE_URL")
	overrideStr(&c.LLM.Model, "LLM_MODEL")
	overrideStr(&c.LLM.APIKey, "OPENAI_API_KEY")

	overrideStr(&c.Google.APIKey, "GOOGLE_PLACES_API_KEY")
	overrideStr(&c.Google.AccessToken, "GOOGLE_BUSINESS_ACCESS_TOKEN")
	overrideStr(&c.Yelp.APIKey, "YELP_API_KEY")
	overrideStr(&c.TripAdvisor.APIKey, "TRIPADVISOR_API_KEY")
	for _, p := range domain.AllPlatforms() {
		overrideDur(&c.Provider(p).Cooldown, strings.ToUpper(string(p))+"_COOLDOWN")
	}

	if c.LLM.APIKey == "" {
		log.Warn().Msg("OPENAI_API_KEY is empty; enrichment calls will fail until it is set")
	}
	return c, c.validate()
}

func (c *Config) validate() error {
	switch c.DBDriver {
	case "mysql", "sqlite":
	default:
		return fmt.Errorf("DB_DRIVER must be mysql or sqlite, got %q", c.DBDriver)
	}
	switch c.WindowStore {
	case "sql":
	case "redis":
		if c.RedisAddr == "" {
			return errors.New("WINDOW_STORE=redis needs REDIS_ADDR")
		}
	default:
		return fmt.Errorf("WINDOW_STORE must be sql or redis, got %q", c.WindowStore)
	}
	if c.Enrichment.BatchSize <= 0 {
		return errors.New("enrichment batch size must be positive")
	}
	return nil
}

// Provider returns the mutable settings block for p.
func (c *Config) Provider(p domain.Platform) *ProviderConfig {
	switch p {
	case domain.PlatformGoogle:
		return &c.Google.ProviderConfig
	case domain.PlatformYelp:
		return &c.Yelp
	case domain.PlatformReddit:
		return &c.Reddit
	case domain.PlatformTripAdvisor:
		return &c.TripAdvisor
	}
	return &ProviderConfig{}
}

// Cooldown is the sync window for p; zero means no limit.
func (c *Config) Cooldown(p domain.Platform) time.Duration { return c.Provider(p).Cooldown }

// Credentials implements domain.CredentialStore.
func (c *Config) Credentials(p domain.Platform) domain.Credentials {
	pc := c.Provider(p)
	return domain.Credentials{APIKey: pc.APIKey, AccessToken: pc.AccessToken}
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func overrideStr(dst *string, k string) {
	if v := os.Getenv(k); v != "" {
		*dst = v
	}
}

func intEnv(k string) (int, bool) {
	v := os.Getenv(k)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Warn().Str("var", k).Str("value", v).Msg("ignoring non-integer env value")
		return 0, false
	}
	return n, true
}

func overrideInt(dst *int, k string) {
	if n, ok := intEnv(k); ok {
		*dst = n
	}
}

// overrideDur accepts Go durations ("24h") or plain seconds.
func overrideDur(dst *time.Duration, k string) {
	v := os.Getenv(k)
	if v == "" {
		return
	}
	if d, err := time.ParseDuration(v); err == nil {
		*dst = d
		return
	}
	if n, err := strconv.Atoi(v); err == nil {
		*dst = time.Duration(n) * time.Second
		return
	}
	log.Warn().Str("var", k).Str("value", v).Msg("ignoring invalid duration")
}

func overrideBool(dst *bool, k string) {
	if v := os.Getenv(k); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
