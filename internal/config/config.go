package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	defaultTimezone = "UTC"
	defaultIndustry = "Technology"

	configPathEnv     = "RIVAL_SCANNER_CONFIG"
	logLevelEnv       = "LOG_LEVEL"
	perplexityKeyEnv  = "PERPLEXITY_API_KEY"
	anthropicKeyEnv   = "ANTHROPIC_API_KEY"
	poeKeyEnv         = "POE_API_KEY"
	analysisModelEnv  = "ANALYSIS_MODEL"
	storageURLEnv     = "SUPABASE_URL"
	storageKeyEnv     = "SUPABASE_SERVICE_ROLE_KEY"
	braveKeyEnv       = "BRAVE_API_KEY"
	newsAPIKeyEnv     = "NEWS_API_KEY"
	defaultUserIDEnv  = "DEFAULT_USER_ID"
	redisAddressEnv   = "REDIS_ADDRESS"
	cronSecretEnv     = "CRON_SECRET"
	serverAddrEnv     = "SERVER_ADDR"
	telegramTokenEnv  = "TELEGRAM_BOT_TOKEN"
	telegramChatIDEnv = "TELEGRAM_CHAT_ID"
	analysisProvEnv   = "ANALYSIS_PROVIDER"
	storageBackendEnv = "STORAGE_BACKEND"

	defaultPoeEndpoint = "https://api.poe.com/v1/chat/completions"
	defaultPoeModel    = "Claude-Sonnet-4"
)

// Storage backends and analysis providers understood by the application.
const (
	BackendREST    = "rest"
	BackendSQLite  = "sqlite"
	ProviderClaude = "claude"
	ProviderPoe    = "poe"
)

// Config holds high-level settings required across the application.
type Config struct {
	Logging       LoggingConfig      `yaml:"logging"`
	Discovery     DiscoveryConfig    `yaml:"discovery"`
	Search        SearchConfig       `yaml:"search"`
	Analysis      AnalysisConfig     `yaml:"analysis"`
	Storage       StorageConfig      `yaml:"storage"`
	Scheduler     SchedulerConfig    `yaml:"scheduler"`
	Lease         LeaseConfig        `yaml:"lease"`
	Server        ServerConfig       `yaml:"server"`
	Notifications NotificationConfig `yaml:"notifications"`
	Tenant        TenantConfig       `yaml:"tenant"`
}

// LoggingConfig selects the slog level and handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format" validate:"omitempty,oneof=text json"`
}

// DiscoveryConfig describes the Perplexity discovery adapter and collection limits.
type DiscoveryConfig struct {
	Endpoint            string              `yaml:"endpoint" validate:"required,url"`
	Model               string              `yaml:"model" validate:"required"`
	APIKey              string              `yaml:"apiKey" validate:"required"`
	CompetitorLimit     int                 `yaml:"competitorLimit" validate:"min=1,max=15"`
	NewsLimit           int                 `yaml:"newsLimit" validate:"min=1,max=50"`
	NewsSources         []string            `yaml:"newsSources" validate:"min=1,dive,oneof=perplexity brave newsapi"`
	CallDelay           time.Duration       `yaml:"callDelay"`
	Timeout             time.Duration       `yaml:"timeout"`
	FallbackCompetitors map[string][]string `yaml:"fallbackCompetitors"`
}

// SearchConfig holds the legacy search-API credentials.
type SearchConfig struct {
	BraveEndpoint   string `yaml:"braveEndpoint"`
	BraveAPIKey     string `yaml:"braveApiKey"`
	NewsAPIEndpoint string `yaml:"newsApiEndpoint"`
	NewsAPIKey      string `yaml:"newsApiKey"`
}

// AnalysisConfig defines the text-generation backend.
type AnalysisConfig struct {
	Provider     string        `yaml:"provider" validate:"oneof=claude poe"`
	Endpoint     string        `yaml:"endpoint"`
	Model        string        `yaml:"model" validate:"required"`
	APIKey       string        `yaml:"apiKey" validate:"required"`
	MaxTokens    int           `yaml:"maxTokens" validate:"min=1"`
	Temperature  float64       `yaml:"temperature" validate:"min=0,max=2"`
	SystemPrompt string        `yaml:"systemPrompt"`
	CallDelay    time.Duration `yaml:"callDelay"`
	Timeout      time.Duration `yaml:"timeout"`
}

// StorageConfig points at the relational store.
type StorageConfig struct {
	Backend string `yaml:"backend" validate:"oneof=rest sqlite"`
	URL     string `yaml:"url" validate:"required"`
	Key     string `yaml:"key" validate:"required_if=Backend rest"`
}

// SchedulerConfig defines when sweeps run and the liveness thresholds.
type SchedulerConfig struct {
	CronExpression string         `yaml:"cronExpression" validate:"required"`
	Timezone       string         `yaml:"timezone"`
	StuckAfter     time.Duration  `yaml:"stuckAfter" validate:"min=1m"`
	RefreshTimeout time.Duration  `yaml:"refreshTimeout" validate:"min=1s"`
	location       *time.Location `yaml:"-"`
}

// Location resolves the scheduler timezone string to a time.Location.
func (s SchedulerConfig) Location() *time.Location {
	if s.location != nil {
		return s.location
	}
	loc, _ := time.LoadLocation(defaultTimezone)
	return loc
}

// LeaseConfig selects the refresh lease backend; empty RedisAddress keeps it in-process.
type LeaseConfig struct {
	RedisAddress string        `yaml:"redisAddress"`
	TTL          time.Duration `yaml:"ttl" validate:"min=1s"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr       string `yaml:"addr"`
	CronSecret string `yaml:"cronSecret"`
}

// NotificationConfig encapsulates outbound channels (Telegram, etc.).
type NotificationConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
}

// TelegramConfig wires all data required to send messages.
type TelegramConfig struct {
	BotToken string `yaml:"botToken"`
	ChatID   string `yaml:"chatId"`
}

// TenantConfig carries the identity used when no user is attached to a request.
type TenantConfig struct {
	FallbackUserID  string `yaml:"fallbackUserId"`
	DefaultIndustry string `yaml:"defaultIndustry"`
}

// Load reads .env and YAML configuration (if present) and applies environment overrides.
func Load() Config {
	// a missing .env is the normal case outside local development
	_ = godotenv.Load()

	cfg := defaultConfig()

	if path := os.Getenv(configPathEnv); path != "" {
		if raw, err := os.ReadFile(path); err != nil {
			log.Printf("config: cannot read %s: %v (falling back to defaults)", path, err)
		} else {
			var fileCfg Config
			if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
				log.Printf("config: cannot parse %s: %v (falling back to defaults)", path, err)
			} else {
				cfg = mergeConfig(cfg, fileCfg)
			}
		}
	}

	cfg.applyEnvOverrides()
	cfg.bindTimezone()

	return cfg
}

// Validate checks required credentials and value ranges. The error names every
// offending field together with the environment variable that sets it.
func (c Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate config: %w", err)
	}

	problems := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		problems = append(problems, describe(fe))
	}
	return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
}

var validate = newValidator()

func newValidator() *validator.Validate {
	return validator.New(validator.WithRequiredStructEnabled())
}

func describe(fe validator.FieldError) string {
	field := strings.TrimPrefix(fe.Namespace(), "Config.")
	switch fe.Tag() {
	case "required", "required_if":
		if env := envHint(fe); env != "" {
			return fmt.Sprintf("missing %s (set %s)", field, env)
		}
		return fmt.Sprintf("missing %s", field)
	default:
		return fmt.Sprintf("%s fails %q (value %v)", field, fe.Tag()+"="+fe.Param(), fe.Value())
	}
}

func envHint(fe validator.FieldError) string {
	switch fe.Namespace() {
	case "Config.Discovery.APIKey":
		return perplexityKeyEnv
	case "Config.Analysis.APIKey":
		return anthropicKeyEnv + " or " + poeKeyEnv
	case "Config.Storage.URL":
		return storageURLEnv
	case "Config.Storage.Key":
		return storageKeyEnv
	default:
		return ""
	}
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(logLevelEnv); v != "" {
		c.Logging.Level = v
	}

	if v := os.Getenv(perplexityKeyEnv); v != "" {
		c.Discovery.APIKey = v
	}

	if v := os.Getenv(analysisProvEnv); v != "" {
		c.Analysis.Provider = strings.ToLower(v)
	}
	switch c.Analysis.Provider {
	case ProviderPoe:
		if c.Analysis.Endpoint == "" {
			c.Analysis.Endpoint = defaultPoeEndpoint
		}
		if strings.HasPrefix(c.Analysis.Model, "claude-") {
			c.Analysis.Model = defaultPoeModel
		}
		if v := os.Getenv(poeKeyEnv); v != "" {
			c.Analysis.APIKey = v
		}
	default:
		if v := os.Getenv(anthropicKeyEnv); v != "" {
			c.Analysis.APIKey = v
		}
	}
	if v := os.Getenv(analysisModelEnv); v != "" {
		c.Analysis.Model = v
	}

	if v := os.Getenv(storageBackendEnv); v != "" {
		c.Storage.Backend = strings.ToLower(v)
	}
	if v := os.Getenv(storageURLEnv); v != "" {
		c.Storage.URL = v
	}
	if v := os.Getenv(storageKeyEnv); v != "" {
		c.Storage.Key = v
	}

	if v := os.Getenv(braveKeyEnv); v != "" {
		c.Search.BraveAPIKey = v
	}
	if v := os.Getenv(newsAPIKeyEnv); v != "" {
		c.Search.NewsAPIKey = v
	}

	if v := os.Getenv(defaultUserIDEnv); v != "" {
		c.Tenant.FallbackUserID = v
	}

	if v := os.Getenv(redisAddressEnv); v != "" {
		c.Lease.RedisAddress = v
	}

	if v := os.Getenv(cronSecretEnv); v != "" {
		c.Server.CronSecret = v
	}
	if v := os.Getenv(serverAddrEnv); v != "" {
		c.Server.Addr = v
	}

	if v := os.Getenv(telegramTokenEnv); v != "" {
		c.Notifications.Telegram.BotToken = v
	}
	if v := os.Getenv(telegramChatIDEnv); v != "" {
		c.Notifications.Telegram.ChatID = v
	}
}

func (c *Config) bindTimezone() {
	tz := c.Scheduler.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Printf("config: unknown timezone %s, reverting to %s", tz, defaultTimezone)
		loc, _ = time.LoadLocation(defaultTimezone)
	}
	c.Scheduler.location = loc
}

func mergeConfig(base, override Config) Config {
	if override.Logging.Level != "" {
		base.Logging.Level = override.Logging.Level
	}
	if override.Logging.Format != "" {
		base.Logging.Format = override.Logging.Format
	}

	if override.Discovery.Endpoint != "" {
		base.Discovery.Endpoint = override.Discovery.Endpoint
	}
	if override.Discovery.Model != "" {
		base.Discovery.Model = override.Discovery.Model
	}
	if override.Discovery.APIKey != "" {
		base.Discovery.APIKey = override.Discovery.APIKey
	}
	if override.Discovery.CompetitorLimit > 0 {
		base.Discovery.CompetitorLimit = override.Discovery.CompetitorLimit
	}
	if override.Discovery.NewsLimit > 0 {
		base.Discovery.NewsLimit = override.Discovery.NewsLimit
	}
	if len(override.Discovery.NewsSources) > 0 {
		base.Discovery.NewsSources = override.Discovery.NewsSources
	}
	if override.Discovery.CallDelay > 0 {
		base.Discovery.CallDelay = override.Discovery.CallDelay
	}
	if override.Discovery.Timeout > 0 {
		base.Discovery.Timeout = override.Discovery.Timeout
	}
	if len(override.Discovery.FallbackCompetitors) > 0 {
		base.Discovery.FallbackCompetitors = override.Discovery.FallbackCompetitors
	}

	if override.Search.BraveEndpoint != "" {
		base.Search.BraveEndpoint = override.Search.BraveEndpoint
	}
	if override.Search.BraveAPIKey != "" {
		base.Search.BraveAPIKey = override.Search.BraveAPIKey
	}
	if override.Search.NewsAPIEndpoint != "" {
		base.Search.NewsAPIEndpoint = override.Search.NewsAPIEndpoint
	}
	if override.Search.NewsAPIKey != "" {
		base.Search.NewsAPIKey = override.Search.NewsAPIKey
	}

	if override.Analysis.Provider != "" {
		base.Analysis.Provider = override.Analysis.Provider
	}
	if override.Analysis.Endpoint != "" {
		base.Analysis.Endpoint = override.Analysis.Endpoint
	}
	if override.Analysis.Model != "" {
		base.Analysis.Model = override.Analysis.Model
	}
	if override.Analysis.APIKey != "" {
		base.Analysis.APIKey = override.Analysis.APIKey
	}
	if override.Analysis.MaxTokens > 0 {
		base.Analysis.MaxTokens = override.Analysis.MaxTokens
	}
	if override.Analysis.Temperature > 0 {
		base.Analysis.Temperature = override.Analysis.Temperature
	}
	if override.Analysis.SystemPrompt != "" {
		base.Analysis.SystemPrompt = override.Analysis.SystemPrompt
	}
	if override.Analysis.CallDelay > 0 {
		base.Analysis.CallDelay = override.Analysis.CallDelay
	}
	if override.Analysis.Timeout > 0 {
		base.Analysis.Timeout = override.Analysis.Timeout
	}

	if override.Storage.Backend != "" {
		base.Storage.Backend = override.Storage.Backend
	}
	if override.Storage.URL != "" {
		base.Storage.URL = override.Storage.URL
	}
	if override.Storage.Key != "" {
		base.Storage.Key = override.Storage.Key
	}

	if override.Scheduler.CronExpression != "" {
		base.Scheduler.CronExpression = override.Scheduler.CronExpression
	}
	if override.Scheduler.Timezone != "" {
		base.Scheduler.Timezone = override.Scheduler.Timezone
	}
	if override.Scheduler.StuckAfter > 0 {
		base.Scheduler.StuckAfter = override.Scheduler.StuckAfter
	}
	if override.Scheduler.RefreshTimeout > 0 {
		base.Scheduler.RefreshTimeout = override.Scheduler.RefreshTimeout
	}

	if override.Lease.RedisAddress != "" {
		base.Lease.RedisAddress = override.Lease.RedisAddress
	}
	if override.Lease.TTL > 0 {
		base.Lease.TTL = override.Lease.TTL
	}

	if override.Server.Addr != "" {
		base.Server.Addr = override.Server.Addr
	}
	if override.Server.CronSecret != "" {
		base.Server.CronSecret = override.Server.CronSecret
	}

	if override.Notifications.Telegram.BotToken != "" {
		base.Notifications.Telegram.BotToken = override.Notifications.Telegram.BotToken
	}
	if override.Notifications.Telegram.ChatID != "" {
		base.Notifications.Telegram.ChatID = override.Notifications.Telegram.ChatID
	}

	if override.Tenant.FallbackUserID != "" {
		base.Tenant.FallbackUserID = override.Tenant.FallbackUserID
	}
	if override.Tenant.DefaultIndustry != "" {
		base.Tenant.DefaultIndustry = override.Tenant.DefaultIndustry
	}

	return base
}

func defaultConfig() Config {
	tz, _ := time.LoadLocation(defaultTimezone)
	return Config{
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Discovery: DiscoveryConfig{
			Endpoint:        "https://api.perplexity.ai/chat/completions",
			Model:           "sonar",
			CompetitorLimit: 15,
			NewsLimit:       20,
			NewsSources:     []string{"perplexity", "brave", "newsapi"},
			CallDelay:       500 * time.Millisecond,
			Timeout:         45 * time.Second,
			FallbackCompetitors: map[string][]string{
				"technology": {"Microsoft", "Google", "Amazon", "Apple", "Salesforce"},
				"fintech":    {"Stripe", "Square", "PayPal", "Adyen", "Plaid"},
				"healthcare": {"UnitedHealth", "CVS Health", "Teladoc", "Epic Systems", "Cerner"},
			},
		},
		Search: SearchConfig{
			BraveEndpoint:   "https://api.search.brave.com/res/v1/news/search",
			NewsAPIEndpoint: "https://newsapi.org/v2/everything",
		},
		Analysis: AnalysisConfig{
			Provider:     ProviderClaude,
			Model:        "claude-sonnet-4-20250514",
			MaxTokens:    2000,
			Temperature:  0.3,
			SystemPrompt: "You are a competitive intelligence analyst. Respond with JSON only.",
			CallDelay:    300 * time.Millisecond,
			Timeout:      60 * time.Second,
		},
		Storage: StorageConfig{Backend: BackendREST},
		Scheduler: SchedulerConfig{
			CronExpression: "*/5 * * * *",
			Timezone:       defaultTimezone,
			StuckAfter:     30 * time.Minute,
			RefreshTimeout: 90 * time.Second,
			location:       tz,
		},
		Lease:  LeaseConfig{TTL: 10 * time.Minute},
		Server: ServerConfig{Addr: ":8080"},
		Tenant: TenantConfig{FallbackUserID: "system", DefaultIndustry: defaultIndustry},
	}
}
