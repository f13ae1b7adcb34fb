package utils

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
	"go.uber.org/zap/zapcore"

	"timetabler/internal/cache"
	"timetabler/internal/extract"
	"timetabler/internal/normalize"
	"timetabler/internal/taxonomy"
	"timetabler/pkg/database"
)

// EnvPrefix namespaces environment overrides: TIMETABLER_SERVER_ADDR sets
// server.addr.
const EnvPrefix = "TIMETABLER_"

type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Database   DatabaseConfig   `koanf:"database"`
	Taxonomy   TaxonomyConfig   `koanf:"taxonomy"`
	Normalizer NormalizerConfig `koanf:"normalizer"`
	Cache      CacheConfig      `koanf:"cache"`
	Extraction ExtractionConfig `koanf:"extraction"`
	Auth       AuthConfig       `koanf:"auth"`
	Logging    LoggingConfig    `koanf:"logging"`
}

type ServerConfig struct {
	Addr            string        `koanf:"addr"`
	TCPAddr         string        `koanf:"tcp_addr"`  // empty disables the TCP feed
	GRPCAddr        string        `koanf:"grpc_addr"` // empty disables gRPC health
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	MaxUploadBytes  int64         `koanf:"max_upload_bytes"`
}

type DatabaseConfig struct {
	Path string `koanf:"path"`
}

type TaxonomyConfig struct {
	Path    string `koanf:"path"`
	Variant string `koanf:"variant"`
	Watch   bool   `koanf:"watch"`
	Strict  bool   `koanf:"strict"`
}

type NormalizerConfig struct {
	UnmatchedColor string `koanf:"unmatched_color"`
	FallbackColor  string `koanf:"fallback_color"`
}

type CacheConfig struct {
	MaxEntries             int           `koanf:"max_entries"`
	TTL                    time.Duration `koanf:"ttl"`
	FingerprintPrefixBytes int           `koanf:"fingerprint_prefix_bytes"`
}

type ExtractionConfig struct {
	Provider      string        `koanf:"provider"`
	APIKey        string        `koanf:"api_key"`
	Model         string        `koanf:"model"`
	BaseURL       string        `koanf:"base_url"`
	Timeout       time.Duration `koanf:"timeout"`
	MaxTokens     int           `koanf:"max_tokens"`
	RatePerMinute int           `koanf:"rate_per_minute"` // 0 means unlimited
	Burst         int           `koanf:"burst"`
}

type AuthConfig struct {
	Enabled           bool          `koanf:"enabled"`
	Secret            string        `koanf:"secret"`
	Issuer            string        `koanf:"issuer"`
	TTL               time.Duration `koanf:"ttl"`
	AdminPasswordHash string        `koanf:"admin_password_hash"`
}

type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Addr:            ":8080",
			TCPAddr:         ":9090",
			GRPCAddr:        ":9091",
			ShutdownTimeout: 10 * time.Second,
			MaxUploadBytes:  20 << 20,
		},
		Database: DatabaseConfig{Path: database.MemoryPath},
		Taxonomy: TaxonomyConfig{Variant: taxonomy.VariantKanji, Watch: true},
		Normalizer: NormalizerConfig{
			UnmatchedColor: normalize.DefaultUnmatchedColor,
			FallbackColor:  normalize.DefaultFallbackColor,
		},
		Cache: CacheConfig{
			MaxEntries:             cache.DefaultMaxEntries,
			TTL:                    cache.DefaultTTL,
			FingerprintPrefixBytes: 1 << 20,
		},
		Extraction: ExtractionConfig{
			Provider:      extract.ProviderOpenAI,
			Timeout:       90 * time.Second,
			MaxTokens:     1000,
			RatePerMinute: 60,
			Burst:         5,
		},
		Auth: AuthConfig{
			Issuer: "timetabler",
			TTL:    12 * time.Hour,
		},
		Logging: LoggingConfig{Level: "info", Format: "json"},
	}
}

// Load reads defaults, then the optional YAML file at path, then
// TIMETABLER_* environment variables. The provider's usual key variable
// (OPENAI_API_KEY, GEMINI_API_KEY) fills an empty extraction.api_key.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := Defaults()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if cfg.Extraction.APIKey == "" {
		cfg.Extraction.APIKey = providerKey(cfg.Extraction.Provider)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// envKey maps TIMETABLER_SECTION_FIELD_NAME to section.field_name.
func envKey(s string) string {
	lower := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	section, field, ok := strings.Cut(lower, "_")
	if !ok {
		return lower
	}
	return section + "." + field
}

func providerKey(provider string) string {
	switch strings.ToLower(provider) {
	case extract.ProviderGemini:
		if v := os.Getenv("GEMINI_API_KEY"); v != "" {
			return v
		}
		return os.Getenv("GOOGLE_API_KEY")
	default:
		return os.Getenv("OPENAI_API_KEY")
	}
}

func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if c.Server.Addr == "" {
		add("server.addr is required")
	}
	if c.Server.ShutdownTimeout <= 0 {
		add("server.shutdown_timeout must be positive")
	}
	if c.Server.MaxUploadBytes <= 0 {
		add("server.max_upload_bytes must be positive")
	}

	switch c.Taxonomy.Variant {
	case taxonomy.VariantKanji, taxonomy.VariantHiragana:
	default:
		add("taxonomy.variant %q: want %s or %s", c.Taxonomy.Variant, taxonomy.VariantKanji, taxonomy.VariantHiragana)
	}

	if !normalize.ValidColor(c.Normalizer.UnmatchedColor) {
		add("normalizer.unmatched_color %q is not #RRGGBB", c.Normalizer.UnmatchedColor)
	}
	if !normalize.ValidColor(c.Normalizer.FallbackColor) {
		add("normalizer.fallback_color %q is not #RRGGBB", c.Normalizer.FallbackColor)
	}

	if c.Cache.MaxEntries <= 0 {
		add("cache.max_entries must be positive")
	}
	if c.Cache.TTL < 0 {
		add("cache.ttl must not be negative")
	}
	if c.Cache.FingerprintPrefixBytes <= 0 {
		add("cache.fingerprint_prefix_bytes must be positive")
	}

	switch strings.ToLower(c.Extraction.Provider) {
	case extract.ProviderOpenAI, extract.ProviderGemini:
	default:
		add("extraction.provider %q: want %s or %s", c.Extraction.Provider, extract.ProviderOpenAI, extract.ProviderGemini)
	}
	if c.Extraction.Timeout <= 0 {
		add("extraction.timeout must be positive")
	}
	if c.Extraction.MaxTokens <= 0 {
		add("extraction.max_tokens must be positive")
	}
	if c.Extraction.RatePerMinute < 0 {
		add("extraction.rate_per_minute must not be negative")
	}
	if c.Extraction.Burst < 0 {
		add("extraction.burst must not be negative")
	}

	if c.Auth.Enabled {
		if c.Auth.Secret == "" {
			add("auth.secret is required when auth is enabled")
		}
		if c.Auth.TTL <= 0 {
			add("auth.ttl must be positive")
		}
	}

	if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
		add("logging.level %q: %v", c.Logging.Level, err)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		add("logging.format %q: want json or console", c.Logging.Format)
	}

	return errors.Join(errs...)
}

// ExtractorConfig converts the extraction section for extract.New.
func (c ExtractionConfig) ExtractorConfig() extract.Config {
	return extract.Config{
		Provider:      c.Provider,
		APIKey:        c.APIKey,
		Model:         c.Model,
		BaseURL:       c.BaseURL,
		Timeout:       c.Timeout,
		MaxTokens:     c.MaxTokens,
		RatePerMinute: c.RatePerMinute,
		Burst:         c.Burst,
	}
}
