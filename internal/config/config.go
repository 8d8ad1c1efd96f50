package config

import (
	"os"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Perplexity PerplexityConfig `yaml:"perplexity" mapstructure:"perplexity"`
	DeepSeek   DeepSeekConfig   `yaml:"deepseek" mapstructure:"deepseek"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Jina       JinaConfig       `yaml:"jina" mapstructure:"jina"`
	Redis      RedisConfig      `yaml:"redis" mapstructure:"redis"`
	Gateway    GatewayConfig    `yaml:"gateway" mapstructure:"gateway"`
	Cache      CacheConfig      `yaml:"cache" mapstructure:"cache"`
	Topics     TopicsConfig     `yaml:"topics" mapstructure:"topics"`
	Stages     StagesConfig     `yaml:"stages" mapstructure:"stages"`
	Validation ValidationConfig `yaml:"validation" mapstructure:"validation"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// PerplexityConfig holds Perplexity API settings. Stages 1-3 search through it.
type PerplexityConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Model   string `yaml:"model" mapstructure:"model"`
}

// DeepSeekConfig holds DeepSeek chat settings used for query generation and
// validation.
type DeepSeekConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Model   string `yaml:"model" mapstructure:"model"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key   string `yaml:"key" mapstructure:"key"`
	Model string `yaml:"model" mapstructure:"model"`
}

// JinaConfig holds Jina AI Reader settings.
type JinaConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// RedisConfig configures the response cache. An empty Addr selects the
// store-backed cache instead.
type RedisConfig struct {
	Addr     string `yaml:"addr" mapstructure:"addr"`
	Password string `yaml:"password" mapstructure:"password"`
	DB       int    `yaml:"db" mapstructure:"db"`
	Prefix   string `yaml:"prefix" mapstructure:"prefix"`
}

// GatewayConfig controls the serialized external-call gateway.
type GatewayConfig struct {
	MinIntervalMs           int     `yaml:"min_interval_ms" mapstructure:"min_interval_ms"`
	QueueSize               int     `yaml:"queue_size" mapstructure:"queue_size"`
	CallTimeoutSecs         int     `yaml:"call_timeout_secs" mapstructure:"call_timeout_secs"`
	MaxAttempts             int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs        int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs            int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	BackoffMultiplier       float64 `yaml:"backoff_multiplier" mapstructure:"backoff_multiplier"`
	JitterFraction          float64 `yaml:"jitter_fraction" mapstructure:"jitter_fraction"`
	CircuitFailureThreshold int     `yaml:"circuit_failure_threshold" mapstructure:"circuit_failure_threshold"`
	CircuitResetSecs        int     `yaml:"circuit_reset_secs" mapstructure:"circuit_reset_secs"`
}

// MinInterval returns the minimum gap between outbound calls.
func (g GatewayConfig) MinInterval() time.Duration {
	return time.Duration(g.MinIntervalMs) * time.Millisecond
}

// CacheConfig controls response caching per operation.
type CacheConfig struct {
	Enabled          bool `yaml:"enabled" mapstructure:"enabled"`
	ExpandTTLHours   int  `yaml:"expand_ttl_hours" mapstructure:"expand_ttl_hours"`
	Stage1TTLHours   int  `yaml:"stage1_ttl_hours" mapstructure:"stage1_ttl_hours"`
	Stage2TTLHours   int  `yaml:"stage2_ttl_hours" mapstructure:"stage2_ttl_hours"`
	Stage3TTLHours   int  `yaml:"stage3_ttl_hours" mapstructure:"stage3_ttl_hours"`
	Stage4TTLHours   int  `yaml:"stage4_ttl_hours" mapstructure:"stage4_ttl_hours"`
	CleanupEveryMins int  `yaml:"cleanup_every_mins" mapstructure:"cleanup_every_mins"`
}

// TTL returns the cache lifetime for the named operation, or zero when
// caching is disabled.
func (c CacheConfig) TTL(operation string) time.Duration {
	if !c.Enabled {
		return 0
	}
	hours := map[string]int{
		"expand": c.ExpandTTLHours,
		"stage1": c.Stage1TTLHours,
		"stage2": c.Stage2TTLHours,
		"stage3": c.Stage3TTLHours,
		"stage4": c.Stage4TTLHours,
	}[operation]
	return time.Duration(hours) * time.Hour
}

// TopicsConfig controls query generation.
type TopicsConfig struct {
	DefaultQueryCount int `yaml:"default_query_count" mapstructure:"default_query_count"`
	MaxQueryCount     int `yaml:"max_query_count" mapstructure:"max_query_count"`
}

// StagesConfig controls the stage processors.
type StagesConfig struct {
	MinCompanies     int      `yaml:"min_companies" mapstructure:"min_companies"`
	MaxCompanies     int      `yaml:"max_companies" mapstructure:"max_companies"`
	Marketplaces     []string `yaml:"marketplaces" mapstructure:"marketplaces"`
	MarketplacesFile string   `yaml:"marketplaces_file" mapstructure:"marketplaces_file"`
	ContactPaths     []string `yaml:"contact_paths" mapstructure:"contact_paths"`
	ScrapeTimeoutSec int      `yaml:"scrape_timeout_secs" mapstructure:"scrape_timeout_secs"`
	// FallbackRetry sends companies stages 2 and 3 could not resolve through
	// DeepSeek once more.
	FallbackRetry bool `yaml:"fallback_retry" mapstructure:"fallback_retry"`
}

// ValidationConfig controls Stage 4.
type ValidationConfig struct {
	Provider      string `yaml:"provider" mapstructure:"provider"`
	MinRelevance  int    `yaml:"min_relevance" mapstructure:"min_relevance"`
	FallbackBasic bool   `yaml:"fallback_basic" mapstructure:"fallback_basic"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port             int      `yaml:"port" mapstructure:"port"`
	StageTimeoutSecs int      `yaml:"stage_timeout_secs" mapstructure:"stage_timeout_secs"`
	CORSOrigins      []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// DefaultMarketplaces lists B2B marketplace domains that are never accepted
// as a company's own website.
var DefaultMarketplaces = []string{
	"alibaba.com",
	"1688.com",
	"made-in-china.com",
	"globalsources.com",
	"tmart.com",
	"dhgate.com",
	"aliexpress.com",
	"taobao.com",
	"tmall.com",
	"jd.com",
	"amazon.cn",
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("ENRICHER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "enricher.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.stage_timeout_secs", 600)
	v.SetDefault("server.cors_origins", []string{"*"})
	// Empty defaults register the keys so env-only values reach Unmarshal.
	for _, key := range []string{
		"perplexity.key", "deepseek.key", "anthropic.key", "jina.key",
		"redis.addr", "redis.password", "stages.marketplaces_file",
	} {
		v.SetDefault(key, "")
	}
	v.SetDefault("redis.db", 0)
	v.SetDefault("perplexity.base_url", "https://api.perplexity.ai")
	v.SetDefault("perplexity.model", "sonar-pro")
	v.SetDefault("deepseek.base_url", "https://api.deepseek.com/v1")
	v.SetDefault("deepseek.model", "deepseek-chat")
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("jina.base_url", "https://r.jina.ai")
	v.SetDefault("redis.prefix", "enricher:")
	v.SetDefault("gateway.min_interval_ms", 500)
	v.SetDefault("gateway.queue_size", 1024)
	v.SetDefault("gateway.call_timeout_secs", 90)
	v.SetDefault("gateway.max_attempts", 3)
	v.SetDefault("gateway.initial_backoff_ms", 1000)
	v.SetDefault("gateway.max_backoff_ms", 30000)
	v.SetDefault("gateway.backoff_multiplier", 2.0)
	v.SetDefault("gateway.jitter_fraction", 0.25)
	v.SetDefault("gateway.circuit_failure_threshold", 5)
	v.SetDefault("gateway.circuit_reset_secs", 30)
	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.expand_ttl_hours", 24)
	v.SetDefault("cache.stage1_ttl_hours", 24)
	v.SetDefault("cache.stage2_ttl_hours", 72)
	v.SetDefault("cache.stage3_ttl_hours", 72)
	v.SetDefault("cache.stage4_ttl_hours", 0)
	v.SetDefault("cache.cleanup_every_mins", 60)
	v.SetDefault("topics.default_query_count", 10)
	v.SetDefault("topics.max_query_count", 50)
	v.SetDefault("stages.min_companies", 10)
	v.SetDefault("stages.max_companies", 15)
	v.SetDefault("stages.marketplaces", DefaultMarketplaces)
	v.SetDefault("stages.contact_paths", []string{"/contact", "/contact-us", "/about"})
	v.SetDefault("stages.scrape_timeout_secs", 15)
	v.SetDefault("stages.fallback_retry", true)
	v.SetDefault("validation.provider", "deepseek")
	v.SetDefault("validation.min_relevance", 50)
	v.SetDefault("validation.fallback_basic", true)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	if cfg.Stages.MarketplacesFile != "" {
		extra, err := LoadMarketplaces(cfg.Stages.MarketplacesFile)
		if err != nil {
			return nil, err
		}
		cfg.Stages.Marketplaces = append(cfg.Stages.Marketplaces, extra...)
	}

	return &cfg, nil
}

// LoadMarketplaces reads a YAML list of marketplace domains.
func LoadMarketplaces(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "config: read marketplaces file %s", path)
	}
	var doc struct {
		Marketplaces []string `yaml:"marketplaces"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, eris.Wrapf(err, "config: parse marketplaces file %s", path)
	}
	out := make([]string, 0, len(doc.Marketplaces))
	for _, m := range doc.Marketplaces {
		if m = strings.ToLower(strings.TrimSpace(m)); m != "" {
			out = append(out, m)
		}
	}
	return out, nil
}

// Validate checks that the settings needed by the given mode are present.
// Modes: "serve", "topic", "stage", "offline". Offline commands only touch
// the store.
func (c *Config) Validate(mode string) error {
	var problems []string

	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		problems = append(problems, "store.driver must be sqlite or postgres")
	}
	if c.Store.DatabaseURL == "" {
		problems = append(problems, "store.database_url is required")
	}

	needSearch := mode == "serve" || mode == "stage"
	needChat := mode == "serve" || mode == "topic" || mode == "stage"

	if needSearch && c.Perplexity.Key == "" {
		problems = append(problems, "perplexity.key is required")
	}
	if needChat {
		switch c.Validation.Provider {
		case "anthropic":
			if c.Anthropic.Key == "" && mode != "topic" {
				problems = append(problems, "anthropic.key is required when validation.provider is anthropic")
			}
			if c.DeepSeek.Key == "" {
				problems = append(problems, "deepseek.key is required for query generation")
			}
		case "deepseek":
			if c.DeepSeek.Key == "" {
				problems = append(problems, "deepseek.key is required")
			}
		default:
			problems = append(problems, "validation.provider must be deepseek or anthropic")
		}
	}
	if mode == "serve" && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		problems = append(problems, "server.port must be between 1 and 65535")
	}
	if c.Stages.MinCompanies > c.Stages.MaxCompanies {
		problems = append(problems, "stages.min_companies must not exceed stages.max_companies")
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Redacted returns a copy with secrets masked, suitable for printing.
func (c Config) Redacted() Config {
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return "****"
	}
	c.Perplexity.Key = mask(c.Perplexity.Key)
	c.DeepSeek.Key = mask(c.DeepSeek.Key)
	c.Anthropic.Key = mask(c.Anthropic.Key)
	c.Jina.Key = mask(c.Jina.Key)
	c.Redis.Password = mask(c.Redis.Password)
	if c.Store.Driver == "postgres" {
		c.Store.DatabaseURL = mask(c.Store.DatabaseURL)
	}
	return c
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
